package pipeline

import (
	"github.com/kokoavailable/flv2fmp4/container/flv"
	"github.com/kokoavailable/flv2fmp4/exchange"
	"github.com/kokoavailable/flv2fmp4/metrics"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// Decoder 는 밀어 넣은 바이트에서 헤더와 태그를 잘라 Demuxer 로 보내는 워커이다.
type Decoder struct {
	ex exchange.Poster
	mb *exchange.Mailbox

	dec      *flv.Decoder
	decoding bool
	eos      bool
}

func NewDecoder(ex exchange.Poster, mb *exchange.Mailbox) *Decoder {
	return &Decoder{
		ex:  ex,
		mb:  mb,
		dec: flv.NewDecoder(),
	}
}

func (d *Decoder) Run() error {
	for p := range d.mb.C {
		var now bool
		switch c := p.Content.(type) {
		case *exchange.PushData:
			d.dec.Push(c.Data)
		case *exchange.Control:
			switch c.Command {
			case exchange.Start:
				d.decoding = true
			case exchange.Stop:
				d.decoding = false
			case exchange.Now:
				now = true
			case exchange.EndOfStream:
				d.eos = true
			case exchange.Close:
				log.Debug("decoder closed")
				return nil
			}
		default:
			log.Warningf("decoder: unexpected %T", p.Content)
		}
		if !d.decoding && !now {
			continue
		}

		if err := d.decode(); err != nil {
			err = errors.Wrap(err, "decode")
			report(d.ex, exchange.Decoder, err)
			return err
		}
		if d.eos {
			d.eos = false
			if err := d.dec.Finish(); err != nil {
				err = errors.Wrap(err, "decode")
				report(d.ex, exchange.Decoder, err)
				return err
			}
			post(d.ex, exchange.Demuxer, &exchange.Control{Command: exchange.EndOfStream})
		}
	}
	return nil
}

// decode 는 버퍼에 완전히 들어온 만큼만 처리한다. 나머지는 다음 PushData 를 기다린다.
func (d *Decoder) decode() error {
	if d.dec.Header() == nil {
		if d.dec.Len() < flv.HeaderLen {
			return nil
		}
		h, err := d.dec.DecodeHeader()
		if err != nil {
			return err
		}
		log.Debugf("flv header: version %d audio %v video %v", h.Version, h.HasAudio, h.HasVideo)
		post(d.ex, exchange.Demuxer, &exchange.PushFlvHeader{Header: *h})
	}

	tags, err := d.dec.DecodeBody()
	for _, tag := range tags {
		metrics.TagsDecoded.WithLabelValues(tag.Type.String()).Inc()
		post(d.ex, exchange.Demuxer, &exchange.PushTag{Tag: tag})
	}
	return err
}

func post(ex exchange.Poster, dest exchange.Destination, c exchange.Content) {
	if err := ex.Post(exchange.Packed{Routing: dest, Content: c}); err != nil {
		log.Warningf("post %T to %s: %v", c, dest, err)
	}
}

func report(ex exchange.Poster, from exchange.Destination, err error) {
	log.Errorf("%s: %v", from, err)
	metrics.Errors.WithLabelValues(from.String()).Inc()
	post(ex, exchange.Core, &exchange.ErrorReport{From: from, Err: err})
}
