// Package pipeline wires the decoder, demuxer and remuxer workers to a core
// through one exchange.
package pipeline

import (
	"context"
	"io"
	"sync"

	"github.com/kokoavailable/flv2fmp4/core"
	"github.com/kokoavailable/flv2fmp4/exchange"
	"github.com/kokoavailable/flv2fmp4/metrics"
	"github.com/kokoavailable/flv2fmp4/remux"

	log "github.com/sirupsen/logrus"
)

type Config struct {
	QueueSize  int     // 메일박스 크기
	Audio      bool    // 오디오 트랙 사용
	Video      bool    // 비디오 트랙 사용
	DefaultFPS float64 // 메타데이터에 framerate 가 없을 때

	// Record 가 있으면 선택된 트랙의 태그를 FLV 로 기록한다. 닫는 것은 부르는 쪽이다.
	Record io.Writer
}

func DefaultConfig() Config {
	return Config{
		QueueSize:  1024,
		Audio:      true,
		Video:      true,
		DefaultFPS: remux.DefaultFPS,
	}
}

// Pipeline 은 FLV 입력 하나에 대한 세션이다.
// Core 로 데이터를 밀어 넣고 세그먼트를 꺼낸다.
type Pipeline struct {
	*core.Core

	ex      *exchange.Exchange
	dec     *Decoder
	dmx     *Demuxer
	rmx     *remux.Remuxer
	mbs     []*exchange.Mailbox
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
	once    sync.Once
}

func New(cfg Config) *Pipeline {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultConfig().QueueSize
	}
	ex := exchange.New(cfg.QueueSize)
	p := &Pipeline{
		Core: core.New(ex, cfg.QueueSize),
		ex:   ex,
	}

	decMb := p.mailbox(exchange.Decoder, cfg.QueueSize)
	dmxMb := p.mailbox(exchange.Demuxer, cfg.QueueSize)
	rmxMb := p.mailbox(exchange.Remuxer, cfg.QueueSize)

	p.dec = NewDecoder(ex, decMb)
	p.dmx = NewDemuxer(ex, dmxMb, cfg.Audio, cfg.Video, cfg.Record)
	p.rmx = remux.New(ex, rmxMb, remux.WithDefaultFPS(cfg.DefaultFPS))
	return p
}

func (p *Pipeline) mailbox(dest exchange.Destination, size int) *exchange.Mailbox {
	mb := exchange.NewMailbox(size)
	p.ex.Register(dest, mb)
	p.mbs = append(p.mbs, mb)
	return mb
}

// Start 는 워커와 Exchange 를 띄우고 처리를 켠다.
func (p *Pipeline) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.started = true
	metrics.ActiveSessions.Inc()

	go p.ex.Run(ctx)
	for _, run := range []func() error{p.dec.Run, p.dmx.Run, p.rmx.Run} {
		p.wg.Add(1)
		go func(run func() error) {
			defer p.wg.Done()
			run()
		}(run)
	}
	return p.Core.Start()
}

// Close 는 워커를 끝내고 Exchange 를 멈춘다. 여러 번 불러도 된다.
func (p *Pipeline) Close() {
	p.once.Do(func() {
		if !p.started {
			p.Core.Close()
			return
		}
		if err := p.DropAllWorkers(); err != nil {
			log.Debugf("pipeline close: %v", err)
		}
		p.wg.Wait()
		for _, mb := range p.mbs {
			mb.Close()
		}
		p.cancel()
		p.ex.Close()
		p.Core.Close()
		metrics.ActiveSessions.Dec()
	})
}
