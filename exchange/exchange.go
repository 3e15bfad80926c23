// Package exchange routes typed envelopes between the remux workers.
package exchange

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/kokoavailable/flv2fmp4/metrics"
	log "github.com/sirupsen/logrus"
)

var (
	ErrNoRoute           = errors.New("exchange: no route to destination")
	ErrDestinationClosed = errors.New("exchange: destination closed")
	ErrExchangeClosed    = errors.New("exchange: closed")
)

// 수신자 메일박스가 가득 찼을 때 Run 이 다시 시도하기까지 기다리는 시간.
const retryInterval = time.Millisecond

// Exchange 는 자기 수신 채널 하나로 봉투를 받아 Routing 이 가리키는 메일박스로 옮긴다.
// 옮기는 동작은 막히지 않는다. 가득 찬 수신자 몫은 수신자별 대기열에 두었다가
// 다음 폴에서 먼저 보낸다. 수신자별 순서는 유지된다.
type Exchange struct {
	in   chan Packed
	done chan struct{}
	once sync.Once

	mu      sync.Mutex
	routes  map[Destination]*Mailbox
	backlog map[Destination][]Packed
}

func New(size int) *Exchange {
	return &Exchange{
		in:      make(chan Packed, size),
		done:    make(chan struct{}),
		routes:  make(map[Destination]*Mailbox),
		backlog: make(map[Destination][]Packed),
	}
}

func (e *Exchange) Register(dest Destination, mb *Mailbox) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.routes[dest] = mb
}

func (e *Exchange) Unregister(dest Destination) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.routes, dest)
	delete(e.backlog, dest)
}

// Post 는 봉투를 수신 채널에 넣는다. 이미 닫힌 수신자면 바로 실패한다.
func (e *Exchange) Post(p Packed) error {
	e.mu.Lock()
	mb, ok := e.routes[p.Routing]
	e.mu.Unlock()
	if ok && mb.Closed() {
		return fmt.Errorf("%w: %s", ErrDestinationClosed, p.Routing)
	}

	select {
	case <-e.done:
		return ErrExchangeClosed
	default:
	}
	select {
	case e.in <- p:
		return nil
	case <-e.done:
		return ErrExchangeClosed
	}
}

// Poll 은 대기열을 먼저 비우고, 수신 채널에서 봉투 하나를 막히지 않고 꺼내 전달한다.
// 꺼낸 봉투가 있으면 true.
func (e *Exchange) Poll() (bool, error) {
	e.flush()
	select {
	case p := <-e.in:
		return true, e.route(p)
	default:
		return false, nil
	}
}

// Run 은 ctx 가 끝나거나 Close 될 때까지 봉투를 옮긴다.
func (e *Exchange) Run(ctx context.Context) {
	for {
		var retry <-chan time.Time
		if e.pending() > 0 {
			e.flush()
			if e.pending() > 0 {
				retry = time.After(retryInterval)
			}
		}

		select {
		case p := <-e.in:
			if err := e.route(p); err != nil {
				log.Warningf("exchange: drop %T to %s: %v", p.Content, p.Routing, err)
			}
		case <-retry:
		case <-ctx.Done():
			return
		case <-e.done:
			return
		}
	}
}

// Close 는 Run 을 멈춘다. 메일박스는 각 소유자가 닫는다.
func (e *Exchange) Close() {
	e.once.Do(func() {
		close(e.done)
	})
}

func (e *Exchange) pending() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, q := range e.backlog {
		n += len(q)
	}
	return n
}

func (e *Exchange) route(p Packed) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	mb, ok := e.routes[p.Routing]
	if !ok {
		metrics.DeliveryFailures.WithLabelValues(p.Routing.String()).Inc()
		return fmt.Errorf("%w: %s", ErrNoRoute, p.Routing)
	}
	// 앞선 봉투가 대기 중이면 순서를 지키기 위해 뒤에 붙인다.
	if len(e.backlog[p.Routing]) > 0 {
		e.backlog[p.Routing] = append(e.backlog[p.Routing], p)
		return nil
	}
	return e.deliver(mb, p)
}

// e.mu 를 잡은 상태에서 부른다.
func (e *Exchange) deliver(mb *Mailbox, p Packed) error {
	ok, err := mb.offer(p)
	if err != nil {
		// 닫힌 채널은 다시 시도해도 소용이 없다. 수신자는 끝난 것으로 본다.
		delete(e.routes, p.Routing)
		delete(e.backlog, p.Routing)
		metrics.DeliveryFailures.WithLabelValues(p.Routing.String()).Inc()
		return fmt.Errorf("%w: %s", err, p.Routing)
	}
	if !ok {
		e.backlog[p.Routing] = append(e.backlog[p.Routing], p)
	}
	return nil
}

func (e *Exchange) flush() {
	e.mu.Lock()
	defer e.mu.Unlock()

	for dest, q := range e.backlog {
		mb, ok := e.routes[dest]
		if !ok {
			delete(e.backlog, dest)
			continue
		}
		n := 0
		for ; n < len(q); n++ {
			sent, err := mb.offer(q[n])
			if err != nil {
				log.Warningf("exchange: %s closed, %d envelopes dropped", dest, len(q)-n)
				metrics.DeliveryFailures.WithLabelValues(dest.String()).Add(float64(len(q) - n))
				delete(e.routes, dest)
				n = len(q)
				break
			}
			if !sent {
				break
			}
		}
		if n == len(q) {
			delete(e.backlog, dest)
		} else {
			e.backlog[dest] = q[n:]
		}
	}
}

// Poster 는 워커가 Exchange 에 봉투를 넘길 때 쓰는 인터페이스이다.
type Poster interface {
	Post(p Packed) error
}
