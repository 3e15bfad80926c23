package remux

import (
	"github.com/kokoavailable/flv2fmp4/container/fmp4"
)

// Serializer 는 박스 트리를 바이트로 만든다. 리먹서는 박스 내부를 보지 않는다.
type Serializer interface {
	Bytes() ([]byte, error)
}

// BoxEncoder 는 컨텍스트로부터 박스 트리를 만든다.
type BoxEncoder interface {
	Init(ctx *Context) (Serializer, error)
	Fragment(track *TrackContext, sample *SampleContext) (Serializer, error)
}

type fmp4Encoder struct{}

// NewBoxEncoder 는 container/fmp4 로 박스를 만드는 기본 인코더이다.
func NewBoxEncoder() BoxEncoder {
	return fmp4Encoder{}
}

func (fmp4Encoder) Init(ctx *Context) (Serializer, error) {
	major, compatible := ctx.brands()
	init := &fmp4.Init{
		MajorBrand:       major,
		MinorVersion:     ctx.minorVersion(),
		CompatibleBrands: compatible,
		Duration:         uint64(ctx.Duration),
	}
	for _, t := range ctx.Tracks() {
		init.Tracks = append(init.Tracks, &fmp4.InitTrack{
			ID:        t.ID,
			TimeScale: t.TimeScale,
			Codec:     t.Codec,
		})
	}
	return init, nil
}

func (fmp4Encoder) Fragment(track *TrackContext, sample *SampleContext) (Serializer, error) {
	return &fmp4.Fragment{
		SequenceNumber: track.SequenceNumber,
		TrackID:        track.ID,
		BaseTime:       sample.DecodeTime,
		Samples: []*fmp4.Sample{{
			Duration:  sample.Duration,
			PTSOffset: sample.CompositionOffset,
			Flags:     sample.flags(),
			Payload:   sample.Data,
		}},
	}, nil
}
