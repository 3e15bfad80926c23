package httpfmp4

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/kokoavailable/flv2fmp4/av"
	"github.com/kokoavailable/flv2fmp4/metrics"
	"github.com/kokoavailable/flv2fmp4/pipeline"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

const maxQueueNum = 1024

// Viewer 는 재생 중인 플레이어 하나이다. C 가 닫히면 재생이 끝난 것이다.
type Viewer struct {
	av.RWBaser
	UID    string
	C      <-chan []byte
	c      chan []byte
	closed bool
}

func newViewer(uid string, timeout time.Duration) *Viewer {
	c := make(chan []byte, maxQueueNum)
	return &Viewer{
		RWBaser: av.NewRWBaser(timeout),
		UID:     uid,
		C:       c,
		c:       c,
	}
}

// Source 의 lock 을 잡은 상태에서 부른다. 큐가 가득 차면 false.
func (v *Viewer) send(b []byte) bool {
	select {
	case v.c <- b:
		return true
	default:
		return false
	}
}

func (v *Viewer) close() {
	if !v.closed {
		v.closed = true
		close(v.c)
	}
}

// Source 는 업로드 중인 FLV 스트림 하나와 그 변환 파이프라인이다.
// 변환된 세그먼트를 캐시에 넣고 연결된 플레이어에게 나눠준다.
type Source struct {
	av.RWBaser
	info    av.Info
	p       *pipeline.Pipeline
	cache   *SegmentCache
	timeout time.Duration

	lock    sync.Mutex
	viewers map[string]*Viewer
	closed  bool
	err     error
	done    chan struct{}
}

func NewSource(info av.Info, cfg pipeline.Config, timeout time.Duration) (*Source, error) {
	s := &Source{
		RWBaser: av.NewRWBaser(timeout),
		info:    info,
		p:       pipeline.New(cfg),
		cache:   NewSegmentCache(),
		timeout: timeout,
		viewers: make(map[string]*Viewer),
		done:    make(chan struct{}),
	}
	if err := s.p.Start(); err != nil {
		s.p.Close()
		return nil, err
	}
	go s.pump()
	return s, nil
}

func (s *Source) Info() av.Info {
	return s.info
}

// Write 는 FLV 바이트를 파이프라인에 넣는다. b 는 복사된다.
func (s *Source) Write(b []byte) (int, error) {
	buf := make([]byte, len(b))
	copy(buf, b)
	s.RecBytes(len(b))
	if err := s.p.PushData(buf); err != nil {
		return 0, err
	}
	return len(b), nil
}

// Ingest 는 r 이 끝날 때까지 chunk 바이트씩 읽어 넣고 스트림 끝을 알린다.
func (s *Source) Ingest(r io.Reader, chunk int) error {
	buf := make([]byte, chunk)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			if _, werr := s.Write(buf[:n]); werr != nil {
				return werr
			}
		}
		if err == io.EOF {
			return s.p.EndOfStream()
		}
		if err != nil {
			return errors.Wrap(err, "read flv")
		}
	}
}

// Done 은 마지막 세그먼트까지 나눠준 뒤 닫힌다.
func (s *Source) Done() <-chan struct{} {
	return s.done
}

// Err 는 변환이 실패했을 때의 에러.
func (s *Source) Err() error {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.err
}

func (s *Source) pump() {
	defer close(s.done)
	for {
		seg, err := s.p.Next(context.Background())
		if err != nil {
			s.lock.Lock()
			if !errors.Is(err, io.EOF) {
				log.Warningf("[%v] remux stopped: %v", s.info, err)
				s.err = err
			}
			s.closeViewers()
			s.lock.Unlock()
			return
		}

		s.lock.Lock()
		s.cache.SetItem(seg)
		for uid, v := range s.viewers {
			if !v.send(seg.Data) {
				// 따라오지 못하는 플레이어는 끊는다. 조각을 건너뛰면 재생이 깨진다.
				log.Warningf("[%v] viewer %s queue max!!!", s.info, uid)
				s.removeViewer(v)
			}
		}
		s.lock.Unlock()
	}
}

// AddViewer 는 캐시된 세그먼트를 먼저 넣은 뒤 플레이어를 등록한다.
func (s *Source) AddViewer(uid string) *Viewer {
	s.lock.Lock()
	defer s.lock.Unlock()

	v := newViewer(uid, s.timeout)
	for _, b := range s.cache.Snapshot() {
		v.send(b)
	}
	if s.closed {
		v.close()
		return v
	}
	s.viewers[uid] = v
	metrics.ActiveViewers.Inc()
	return v
}

func (s *Source) RemoveViewer(v *Viewer) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.removeViewer(v)
}

func (s *Source) removeViewer(v *Viewer) {
	if _, ok := s.viewers[v.UID]; !ok {
		return
	}
	delete(s.viewers, v.UID)
	v.close()
	metrics.ActiveViewers.Dec()
}

func (s *Source) closeViewers() {
	s.closed = true
	for _, v := range s.viewers {
		s.removeViewer(v)
	}
}

func (s *Source) Viewers() int {
	s.lock.Lock()
	defer s.lock.Unlock()
	return len(s.viewers)
}

// Close 는 파이프라인을 멈추고 플레이어 연결을 끊는다.
func (s *Source) Close() {
	s.p.Close()
	<-s.done
	log.Debugf("[%v] source closed", s.info)
}
