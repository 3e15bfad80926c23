package pipeline

import (
	"errors"
	"io"

	"github.com/kokoavailable/flv2fmp4/av"
	"github.com/kokoavailable/flv2fmp4/container/flv"
	"github.com/kokoavailable/flv2fmp4/exchange"
	"github.com/kokoavailable/flv2fmp4/metrics"

	log "github.com/sirupsen/logrus"
)

// Demuxer 는 onMetaData 를 꺼내고 선택되지 않은 트랙의 태그를 걸러 Remuxer 로 보낸다.
type Demuxer struct {
	ex exchange.Poster
	mb *exchange.Mailbox

	dmx      *flv.Demuxer
	rec      io.Writer
	dvr      *flv.FLVWriter // rec 가 있을 때 헤더를 받으면 만든다
	pending  []exchange.Content
	demuxing bool
	eos      bool
}

// rec 가 nil 이 아니면 Remuxer 로 보내는 헤더와 태그를 FLV 로 함께 기록한다.
func NewDemuxer(ex exchange.Poster, mb *exchange.Mailbox, audio, video bool, rec io.Writer) *Demuxer {
	return &Demuxer{
		ex:  ex,
		mb:  mb,
		dmx: flv.NewDemuxer(audio, video),
		rec: rec,
	}
}

func (d *Demuxer) Run() error {
	for p := range d.mb.C {
		var now bool
		switch c := p.Content.(type) {
		case *exchange.PushFlvHeader, *exchange.PushTag:
			d.pending = append(d.pending, c)
		case *exchange.Control:
			switch c.Command {
			case exchange.Start:
				d.demuxing = true
			case exchange.Stop:
				d.demuxing = false
			case exchange.Now:
				now = true
			case exchange.EndOfStream:
				d.eos = true
			case exchange.Close:
				log.Debug("demuxer closed")
				return nil
			}
		default:
			log.Warningf("demuxer: unexpected %T", p.Content)
		}
		if !d.demuxing && !now {
			continue
		}

		d.demux()
		if d.eos {
			d.eos = false
			post(d.ex, exchange.Remuxer, &exchange.Control{Command: exchange.EndOfStream})
		}
	}
	return nil
}

func (d *Demuxer) demux() {
	for _, c := range d.pending {
		switch m := c.(type) {
		case *exchange.PushFlvHeader:
			h := d.dmx.DemuxH(&m.Header)
			d.startRecord(h)
			post(d.ex, exchange.Remuxer, &exchange.PushFlvHeader{Header: *h})
		case *exchange.PushTag:
			meta, forward := d.dmx.Demux(m.Tag)
			if meta != nil {
				post(d.ex, exchange.Remuxer, &exchange.PushMetadata{Meta: meta})
			}
			if !forward {
				metrics.TagsDropped.WithLabelValues("track_disabled").Inc()
				continue
			}
			d.record(m.Tag)
			post(d.ex, exchange.Remuxer, m)
		}
	}
	d.pending = nil
}

func (d *Demuxer) startRecord(h *flv.Header) {
	if d.rec == nil || d.dvr != nil {
		return
	}
	w, err := flv.NewFLVWriter(d.rec, h.HasAudio, h.HasVideo)
	if err != nil {
		log.Warningf("demuxer: record stopped: %v", err)
		d.rec = nil
		return
	}
	d.dvr = w
}

// 기록 실패는 변환을 멈추지 않는다. 쓰기 에러가 나면 기록만 그만둔다.
func (d *Demuxer) record(tag *flv.Tag) {
	if d.dvr == nil {
		return
	}
	err := d.dvr.WriteFlvTag(tag)
	if errors.Is(err, av.ErrNotSupported) {
		log.Debugf("demuxer: %s not recorded", tag)
		return
	}
	if err != nil {
		log.Warningf("demuxer: record stopped: %v", err)
		d.dvr = nil
		d.rec = nil
		return
	}
	metrics.TagsRecorded.Inc()
}
