package remux

import (
	"fmt"

	"github.com/kokoavailable/flv2fmp4/av"
	"github.com/kokoavailable/flv2fmp4/container/flv"
	"github.com/kokoavailable/flv2fmp4/container/fmp4"
	"github.com/kokoavailable/flv2fmp4/exchange"
	"github.com/kokoavailable/flv2fmp4/metrics"
	"github.com/kokoavailable/flv2fmp4/parser"
	"github.com/kokoavailable/flv2fmp4/parser/aac"
	"github.com/kokoavailable/flv2fmp4/parser/h264"

	"github.com/bluenviron/mediacommon/v2/pkg/codecs/mpeg4audio"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

var (
	ErrSequenceHeaderAfterConfig = fmt.Errorf("%w: codec sequence header after configuration", av.ErrSequence)
	ErrInvalidSampleRate         = fmt.Errorf("%w: audio sample rate", av.ErrMalformed)
)

// Remuxer 는 태그를 받아 fMP4 세그먼트를 만드는 워커이다.
// Context 와 대기 태그 큐는 Run 을 도는 고루틴만 건드린다.
type Remuxer struct {
	ex  exchange.Poster
	mb  *exchange.Mailbox
	enc BoxEncoder

	remuxing bool
	eos      bool
	tags     []*flv.Tag

	ctx        *Context
	parser     *parser.CodecParser
	defaultFPS float64
}

type Option func(*Remuxer)

// WithBoxEncoder 는 박스 인코더를 바꾼다.
func WithBoxEncoder(enc BoxEncoder) Option {
	return func(r *Remuxer) {
		r.enc = enc
	}
}

// WithDefaultFPS 는 메타데이터에 framerate 가 없을 때 쓸 값이다.
func WithDefaultFPS(fps float64) Option {
	return func(r *Remuxer) {
		r.defaultFPS = fps
	}
}

func New(ex exchange.Poster, mb *exchange.Mailbox, opts ...Option) *Remuxer {
	r := &Remuxer{
		ex:         ex,
		mb:         mb,
		enc:        NewBoxEncoder(),
		ctx:        NewContext(),
		parser:     parser.NewCodecParser(),
		defaultFPS: DefaultFPS,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Context 는 테스트와 상태 조회용. Run 이 끝난 뒤에만 읽는다.
func (r *Remuxer) Context() *Context {
	return r.ctx
}

// Run 은 메일박스가 닫히거나 Close 를 받을 때까지 돈다.
// 치명적 에러는 Core 에 알리고 반환한다.
func (r *Remuxer) Run() error {
	for p := range r.mb.C {
		now, exit := r.handle(p)
		if exit {
			return nil
		}
		if !r.remuxing && !now {
			continue
		}

		if err := r.remux(); err != nil {
			err = errors.Wrap(err, "remux")
			r.report(err)
			return err
		}
		if r.eos {
			r.eos = false
			r.post(&exchange.Control{Command: exchange.EndOfStream})
		}
	}
	return nil
}

func (r *Remuxer) handle(p exchange.Packed) (now, exit bool) {
	switch c := p.Content.(type) {
	case *exchange.PushTag:
		r.tags = append(r.tags, c.Tag)
	case *exchange.PushFlvHeader:
		r.ctx.ParseFlvHeader(c.Header)
	case *exchange.PushMetadata:
		r.ctx.ParseMetadata(c.Meta)
	case *exchange.Control:
		switch c.Command {
		case exchange.Start:
			r.remuxing = true
		case exchange.Stop:
			r.remuxing = false
		case exchange.Now:
			return true, false
		case exchange.EndOfStream:
			r.eos = true
		case exchange.Close:
			log.Debug("remuxer closed")
			return false, true
		}
	default:
		log.Warningf("remuxer: unexpected %T", p.Content)
	}
	return false, false
}

// remux 는 대기 태그를 순서대로 처리한다. 설정이 끝나는 즉시 초기화 세그먼트를 한 번 보낸다.
func (r *Remuxer) remux() error {
	for {
		if err := r.sendInit(); err != nil {
			return err
		}
		if len(r.tags) == 0 {
			return nil
		}
		tag := r.tags[0]
		r.tags[0] = nil
		r.tags = r.tags[1:]

		if err := r.remuxTag(tag); err != nil {
			return err
		}
	}
}

func (r *Remuxer) sendInit() error {
	if !r.ctx.IsConfigured() || r.ctx.IsHeaderSent() {
		return nil
	}
	if len(r.ctx.Tracks()) == 0 {
		// 헤더에 트랙이 하나도 없다. 보낼 것이 없다.
		r.ctx.SetHeaderSent(true)
		log.Warning("flv header declares no tracks")
		return nil
	}

	s, err := r.enc.Init(r.ctx)
	if err != nil {
		return err
	}
	b, err := s.Bytes()
	if err != nil {
		return err
	}
	r.ctx.SetHeaderSent(true)
	metrics.InitSegments.Inc()
	log.Debugf("init segment %d bytes, tracks %d", len(b), len(r.ctx.Tracks()))
	r.post(&exchange.CoreData{Kind: exchange.SegmentInit, Data: b})
	return nil
}

func (r *Remuxer) remuxTag(tag *flv.Tag) error {
	if tag.Filter {
		// 암호화 태그는 아직 풀 수 없다.
		metrics.TagsDropped.WithLabelValues("encrypted").Inc()
		log.Debugf("remuxer: encrypted %s skipped", tag)
		return nil
	}
	switch tag.Type {
	case flv.TagAudio:
		return r.remuxAudio(tag)
	case flv.TagVideo:
		return r.remuxVideo(tag)
	}
	// 스크립트는 메타데이터로 이미 따로 왔다.
	return nil
}

func (r *Remuxer) remuxAudio(tag *flv.Tag) error {
	a, err := r.parser.ParseAudio(tag)
	if err != nil {
		return err
	}

	if r.ctx.IsConfigured() {
		if a.IsSequenceHeader() {
			return ErrSequenceHeaderAfterConfig
		}
		return r.emitAudio(tag, a)
	}

	if !r.ctx.IsAudioConfigured() {
		if err := r.configureAudio(a); err != nil {
			return err
		}
	}
	r.assumeMetadata(a.IsSequenceHeader())
	if r.ctx.IsConfigured() && !a.IsSequenceHeader() {
		if err := r.sendInit(); err != nil {
			return err
		}
		return r.emitAudio(tag, a)
	}
	if !a.IsSequenceHeader() {
		metrics.TagsDropped.WithLabelValues("unconfigured").Inc()
	}
	return nil
}

func (r *Remuxer) configureAudio(a *parser.Audio) error {
	switch {
	case a.MP3 != nil:
		h := a.MP3.Header
		if h.SampleRate == 0 {
			return fmt.Errorf("%w: mp3 %d", ErrInvalidSampleRate, h.SampleRate)
		}
		r.ctx.ConfigureAudioMetadata(&fmp4.CodecMPEG1Audio{
			SampleRate:   h.SampleRate,
			ChannelCount: h.Channels(),
		}, h.SampleRate, h.SamplesPerFrame())
		log.Debugf("audio configured: mp3 %s layer %d %d Hz", h.Version, h.Layer, h.SampleRate)

	case a.IsSequenceHeader():
		seq := a.AAC.(*aac.SequenceHeader)
		rate := seq.SampleRate()
		if rate == 0 {
			return fmt.Errorf("%w: aac frequency index %d", ErrInvalidSampleRate, seq.SamplingFrequencyIndex)
		}
		conf, err := seq.AudioSpecificConfig()
		if err != nil {
			// 확장 필드를 못 읽어도 앞 두 바이트로 설정을 만든다.
			log.Debugf("audio specific config: %v", err)
			conf = &mpeg4audio.AudioSpecificConfig{
				Type:         mpeg4audio.ObjectType(seq.ObjectType),
				SampleRate:   rate,
				ChannelCount: seq.Channels(),
			}
		}
		r.ctx.ConfigureAudioMetadata(&fmp4.CodecMPEG4Audio{Config: *conf}, rate, aac.SamplesPerFrame)
		log.Debugf("audio configured: aac object %d %d Hz %d ch", seq.ObjectType, rate, seq.Channels())
	}
	return nil
}

func (r *Remuxer) emitAudio(tag *flv.Tag, a *parser.Audio) error {
	track := r.ctx.Audio
	if track == nil {
		metrics.TagsDropped.WithLabelValues("no_track").Inc()
		return nil
	}

	var data []byte
	switch {
	case a.MP3 != nil:
		data = a.MP3.Data
	default:
		data = a.AAC.(*aac.Raw).Data
	}

	dts := track.toTimescale(tag.Timestamp)
	track.align.align(&dts, track.SampleDuration, uint64(track.TimeScale)/timeScale)

	return r.emit(track, &SampleContext{
		DecodeTime: dts,
		Size:       uint32(len(data)),
		Duration:   track.SampleDuration,
		DependsOn:  2,
		Data:       data,
	}, "audio")
}

func (r *Remuxer) remuxVideo(tag *flv.Tag) error {
	pkt, err := r.parser.ParseVideo(tag)
	if errors.Is(err, h264.ErrNotConfigured) {
		// 시퀀스 헤더보다 먼저 온 프레임은 풀 수 없다.
		metrics.TagsDropped.WithLabelValues("unconfigured").Inc()
		return nil
	}
	if err != nil {
		return err
	}

	switch p := pkt.(type) {
	case *h264.EndOfSequence:
		log.Debug("avc end of sequence")
		return nil

	case *h264.SequenceHeader:
		if r.ctx.IsConfigured() {
			return ErrSequenceHeaderAfterConfig
		}
		if r.ctx.IsVideoConfigured() {
			return nil
		}
		if err := r.configureVideo(p); err != nil {
			return err
		}
		r.assumeMetadata(true)
		return nil

	case *h264.Frame:
		if !r.ctx.IsConfigured() {
			r.assumeMetadata(false)
			if !r.ctx.IsConfigured() {
				metrics.TagsDropped.WithLabelValues("unconfigured").Inc()
				return nil
			}
			if err := r.sendInit(); err != nil {
				return err
			}
		}
		return r.emitVideo(tag, p)
	}
	return nil
}

func (r *Remuxer) configureVideo(seq *h264.SequenceHeader) error {
	width, height, err := seq.Resolution()
	if err != nil {
		return err
	}
	if r.ctx.Width == 0 {
		r.ctx.Width = float64(width)
	}
	if r.ctx.Height == 0 {
		r.ctx.Height = float64(height)
	}
	r.ctx.ConfigureVideoMetadata(&fmp4.CodecH264{
		SPS:                  seq.SPS,
		PPS:                  seq.PPS,
		ProfileCompatibility: seq.ProfileCompatibility,
		NALULengthSize:       seq.NALULengthSize,
	}, r.defaultFPS)
	log.Debugf("video configured: avc profile %d level %d %dx%d", seq.ProfileIndication, seq.LevelIndication, width, height)
	return nil
}

func (r *Remuxer) emitVideo(tag *flv.Tag, f *h264.Frame) error {
	track := r.ctx.Video
	if track == nil {
		metrics.TagsDropped.WithLabelValues("no_track").Inc()
		return nil
	}

	s := &SampleContext{
		DecodeTime:        track.toTimescale(tag.Timestamp),
		Size:              uint32(len(f.Data)),
		Duration:          track.SampleDuration,
		CompositionOffset: f.CompositionTime * int32(track.TimeScale/timeScale),
		IsKeyframe:        f.Kind == h264.Keyframe,
		Data:              f.Data,
	}
	if s.IsKeyframe {
		s.DependsOn = 2
		s.IsDependedOn = 1
		track.keyframeSeen = true
	} else {
		s.DependsOn = 1
		s.IsNonSync = true
		if !track.keyframeSeen {
			s.IsLeading = 1
		}
	}
	return r.emit(track, s, "video")
}

func (r *Remuxer) emit(track *TrackContext, s *SampleContext, kind string) error {
	f, err := r.enc.Fragment(track, s)
	if err != nil {
		return err
	}
	b, err := f.Bytes()
	if err != nil {
		return err
	}
	track.SequenceNumber++

	metrics.Fragments.WithLabelValues(kind).Inc()
	metrics.FragmentSize.Observe(float64(len(b)))
	r.post(&exchange.CoreData{Kind: exchange.SegmentFragment, Keyframe: s.IsKeyframe, Data: b})
	return nil
}

// assumeMetadata 는 onMetaData 없이 두 코덱이 모두 설정된 스트림을 위해 빈 메타데이터로 진행한다.
// 시퀀스 헤더를 처리하는 중이면 다음 미디어 태그까지 기다린다.
func (r *Remuxer) assumeMetadata(seqHeader bool) {
	if seqHeader || r.ctx.IsMetadataParsed() || !r.ctx.IsHeaderParsed() {
		return
	}
	if r.ctx.IsAudioConfigured() && r.ctx.IsVideoConfigured() {
		log.Warning("no onMetaData before media, using defaults")
		r.ctx.ParseMetadata(nil)
	}
}

func (r *Remuxer) post(c exchange.Content) {
	if err := r.ex.Post(exchange.Packed{Routing: exchange.Core, Content: c}); err != nil {
		log.Warningf("remuxer: post %T: %v", c, err)
	}
}

func (r *Remuxer) report(err error) {
	log.Errorf("remuxer: %v", err)
	metrics.Errors.WithLabelValues("remuxer").Inc()
	r.post(&exchange.ErrorReport{From: exchange.Remuxer, Err: err})
}
