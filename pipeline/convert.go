package pipeline

import (
	"context"
	"io"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// Convert 는 r 의 FLV 를 끝까지 읽어 fMP4 로 w 에 쓴다.
// 변환 실패는 이미 쓴 출력을 되돌리지 않는다.
func Convert(ctx context.Context, r io.Reader, w io.Writer, cfg Config, chunk int) error {
	if chunk <= 0 {
		chunk = 64 * 1024
	}
	p := New(cfg)
	defer p.Close()
	if err := p.Start(); err != nil {
		return err
	}

	// 입력을 못 읽으면 EndOfStream 이 오지 않는다. Next 를 깨우기 위해 ctx 를 끊는다.
	parent := ctx
	ctx, cancel := context.WithCancel(parent)
	defer cancel()
	feed := make(chan error, 1)
	go func() {
		err := push(p, r, chunk)
		if err != nil {
			cancel()
		}
		feed <- err
	}()

	var n int
	for {
		seg, err := p.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			if ctx.Err() != nil && parent.Err() == nil {
				// ctx 를 끊은 것은 push 이다. feed 에 에러가 이미 있다.
				return <-feed
			}
			return err
		}
		if _, err := w.Write(seg.Data); err != nil {
			return errors.Wrap(err, "write fmp4")
		}
		n++
	}
	log.Debugf("converted %d segments", n)
	return <-feed
}

func push(p *Pipeline, r io.Reader, chunk int) error {
	for {
		buf := make([]byte, chunk)
		n, err := r.Read(buf)
		if n > 0 {
			if perr := p.PushData(buf[:n]); perr != nil {
				return perr
			}
		}
		if err == io.EOF {
			return p.EndOfStream()
		}
		if err != nil {
			return errors.Wrap(err, "read flv")
		}
	}
}
