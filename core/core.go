// Package core is the terminal sink of a remux pipeline. It fans control
// commands out to the workers and hands finished fMP4 segments to the caller.
package core

import (
	"context"
	"fmt"
	"io"

	"github.com/kokoavailable/flv2fmp4/av"
	"github.com/kokoavailable/flv2fmp4/exchange"
	"github.com/kokoavailable/flv2fmp4/metrics"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

var (
	// 지금은 꺼낼 버퍼가 없다. 나중에 다시 부르면 된다.
	ErrNoData = fmt.Errorf("%w: no segment available", av.ErrPending)
	ErrClosed = errors.New("core: closed")
)

// 명령을 받는 워커 순서. 데이터가 흐르는 순서와 같다.
var workers = []exchange.Destination{exchange.Decoder, exchange.Demuxer, exchange.Remuxer}

// Router 는 Core 가 쓰는 Exchange 의 일부이다.
type Router interface {
	exchange.Poster
	Register(dest exchange.Destination, mb *exchange.Mailbox)
}

// Segment 는 리먹서가 만든 출력 버퍼 하나.
type Segment struct {
	Kind     exchange.SegmentKind
	Keyframe bool
	Data     []byte
}

// Core 는 메일박스로 받은 세그먼트를 FIFO 로 쌓아 두고, 부르는 쪽이 꺼내 간다.
// Consume 과 Next 는 한 고루틴에서만 부른다.
type Core struct {
	ex exchange.Poster
	mb *exchange.Mailbox

	queue []*Segment
	err   error // 워커가 보고한 첫 치명적 에러
	eos   bool
}

func New(r Router, size int) *Core {
	c := &Core{
		ex: r,
		mb: exchange.NewMailbox(size),
	}
	r.Register(exchange.Core, c.mb)
	return c
}

// PushData 는 원본 FLV 바이트를 디코더로 보낸다. b 의 소유권은 넘어간다.
func (c *Core) PushData(b []byte) error {
	metrics.BytesReceived.Add(float64(len(b)))
	return c.send(exchange.Decoder, &exchange.PushData{Data: b})
}

// Start 는 모든 워커의 처리를 켠다.
func (c *Core) Start() error {
	return c.broadcast(exchange.Start)
}

// Stop 은 처리를 끈다. 받은 데이터는 워커에 쌓인다.
func (c *Core) Stop() error {
	return c.broadcast(exchange.Stop)
}

// Now 는 각 워커가 쌓인 것을 한 번 처리하게 한다.
func (c *Core) Now() error {
	return c.broadcast(exchange.Now)
}

// EndOfStream 은 입력이 끝났음을 알린다. 디코더에서 시작해 리먹서를 거쳐 Core 로 돌아온다.
func (c *Core) EndOfStream() error {
	return c.send(exchange.Decoder, &exchange.Control{Command: exchange.EndOfStream})
}

// DropAllWorkers 는 워커를 모두 끝낸다. 남은 작업은 버려진다.
func (c *Core) DropAllWorkers() error {
	return c.broadcast(exchange.Close)
}

// Close 는 Core 의 메일박스를 닫는다. 이후 Next 는 ErrClosed.
func (c *Core) Close() {
	c.mb.Close()
}

func (c *Core) broadcast(cmd exchange.Command) error {
	for _, dest := range workers {
		if err := c.send(dest, &exchange.Control{Command: cmd}); err != nil {
			return err
		}
	}
	return nil
}

func (c *Core) send(dest exchange.Destination, content exchange.Content) error {
	err := c.ex.Post(exchange.Packed{Routing: dest, Content: content})
	return errors.Wrapf(err, "core: send %T to %s", content, dest)
}

// Consume 은 메일박스를 막히지 않고 비운 뒤 가장 오래된 버퍼를 돌려준다.
// 비어 있으면 ErrNoData. 워커가 치명적 에러를 보고했으면 쌓인 버퍼를 다 꺼낸 뒤 그 에러,
// 스트림이 끝났으면 io.EOF.
func (c *Core) Consume() ([]byte, error) {
	c.drain()
	if seg := c.pop(); seg != nil {
		return seg.Data, nil
	}
	if err := c.done(); err != nil {
		return nil, err
	}
	return nil, ErrNoData
}

// Next 는 세그먼트가 올 때까지 기다린다.
func (c *Core) Next(ctx context.Context) (*Segment, error) {
	for {
		c.drain()
		if seg := c.pop(); seg != nil {
			return seg, nil
		}
		if err := c.done(); err != nil {
			return nil, err
		}

		select {
		case p, ok := <-c.mb.C:
			if !ok {
				return nil, ErrClosed
			}
			c.handle(p)
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Err 는 보고된 치명적 에러. 없으면 nil.
func (c *Core) Err() error {
	return c.err
}

func (c *Core) done() error {
	if c.err != nil {
		return c.err
	}
	if c.eos {
		return io.EOF
	}
	return nil
}

func (c *Core) drain() {
	for {
		select {
		case p, ok := <-c.mb.C:
			if !ok {
				return
			}
			c.handle(p)
		default:
			return
		}
	}
}

func (c *Core) pop() *Segment {
	if len(c.queue) == 0 {
		return nil
	}
	seg := c.queue[0]
	c.queue[0] = nil
	c.queue = c.queue[1:]
	metrics.BytesSent.Add(float64(len(seg.Data)))
	return seg
}

func (c *Core) handle(p exchange.Packed) {
	switch m := p.Content.(type) {
	case *exchange.CoreData:
		c.queue = append(c.queue, &Segment{Kind: m.Kind, Keyframe: m.Keyframe, Data: m.Data})
	case *exchange.ErrorReport:
		if c.err == nil {
			c.err = m.Err
			log.Errorf("core: %s failed: %v", m.From, m.Err)
		}
	case *exchange.Control:
		if m.Command == exchange.EndOfStream {
			log.Debug("core: end of stream")
			c.eos = true
		}
	default:
		log.Warningf("core: unexpected %T", p.Content)
	}
}
