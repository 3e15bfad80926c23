package remux

import (
	"strconv"

	"github.com/kokoavailable/flv2fmp4/container/flv"
	"github.com/kokoavailable/flv2fmp4/container/fmp4"
)

// 메타데이터의 초 단위 값을 밀리초로 바꿀 때 쓴다.
const timeScale = 1000

// 메타데이터에도 설정에도 프레임레이트가 없을 때.
const DefaultFPS = 25

const (
	videoTrackID = 1
	audioTrackID = 2
)

// Context 는 헤더, 메타데이터, 코덱 설정을 모아 초기화 세그먼트를 언제 보낼지 결정한다.
// 네 개의 준비 플래그가 모두 true 가 되어야 설정 완료이다. 되돌아가는 경로는 없다.
type Context struct {
	FPS      float64
	Duration uint32 // ms

	Width  float64
	Height float64

	HasAudio bool
	HasVideo bool

	AudioCodecID  uint8
	AudioDataRate uint32

	VideoCodecID  uint8
	VideoDataRate uint32

	MajorBrand       string
	MinorVersion     string
	CompatibleBrands []string

	Audio *TrackContext
	Video *TrackContext

	headerParsed    bool
	metadataParsed  bool
	audioConfigured bool
	videoConfigured bool
	headerSent      bool
}

func NewContext() *Context {
	return &Context{
		MajorBrand:       "isom",
		MinorVersion:     "512",
		CompatibleBrands: []string{"isom", "iso2", "avc1", "mp41"},
	}
}

// ParseFlvHeader 는 트랙 유무를 기록한다.
// 헤더에 없는 트랙은 기다릴 코덱 설정도 없으므로 설정된 것으로 본다.
func (c *Context) ParseFlvHeader(h flv.Header) {
	c.HasAudio = h.HasAudio
	c.HasVideo = h.HasVideo
	if !c.HasAudio {
		c.audioConfigured = true
	}
	if !c.HasVideo {
		c.videoConfigured = true
	}
	c.headerParsed = true
}

// ParseMetadata 는 들어 있는 값만 덮어쓴다. 없는 키는 이전 값을 유지한다.
func (c *Context) ParseMetadata(m *flv.MetaData) {
	if m != nil {
		if v, ok := m.Number("duration"); ok {
			c.Duration = uint32(v * timeScale)
		}
		if v, ok := m.Number("width"); ok {
			c.Width = v
		}
		if v, ok := m.Number("height"); ok {
			c.Height = v
		}
		if v, ok := m.Number("framerate"); ok {
			c.FPS = v
		}
		if v, ok := m.Number("audiocodecid"); ok {
			c.AudioCodecID = uint8(v)
		}
		if v, ok := m.Number("audiodatarate"); ok {
			c.AudioDataRate = uint32(v)
		}
		if v, ok := m.Number("videocodecid"); ok {
			c.VideoCodecID = uint8(v)
		}
		if v, ok := m.Number("videodatarate"); ok {
			c.VideoDataRate = uint32(v)
		}
		if v, ok := m.String("major_brand"); ok {
			c.MajorBrand = v
		}
		if v, ok := m.String("minor_version"); ok {
			c.MinorVersion = v
		}
		// "isomiso2avc1mp41" 처럼 4 글자씩 붙어 있다.
		if v, ok := m.String("compatible_brands"); ok && len(v) >= 4 {
			var brands []string
			for i := 0; i+4 <= len(v); i += 4 {
				brands = append(brands, v[i:i+4])
			}
			c.CompatibleBrands = brands
		}
	}
	c.metadataParsed = true
}

// ConfigureAudioMetadata 는 첫 오디오 코덱 설정으로 트랙을 만든다.
func (c *Context) ConfigureAudioMetadata(codec fmp4.Codec, sampleRate, samplesPerFrame int) {
	c.Audio = newTrackContext(audioTrackID, uint32(sampleRate), codec, uint32(samplesPerFrame))
	c.audioConfigured = true
}

// ConfigureVideoMetadata 는 첫 비디오 코덱 설정으로 트랙을 만든다.
// 샘플 길이는 프레임레이트로 정한다.
func (c *Context) ConfigureVideoMetadata(codec fmp4.Codec, fps float64) {
	if c.FPS > 0 {
		fps = c.FPS
	}
	if fps <= 0 {
		fps = DefaultFPS
	}
	c.Video = newTrackContext(videoTrackID, videoTimescale, codec, uint32(videoTimescale/fps))
	c.videoConfigured = true
}

func (c *Context) IsAudioConfigured() bool {
	return c.audioConfigured
}

func (c *Context) IsVideoConfigured() bool {
	return c.videoConfigured
}

func (c *Context) IsMetadataParsed() bool {
	return c.metadataParsed
}

func (c *Context) IsHeaderParsed() bool {
	return c.headerParsed
}

func (c *Context) IsConfigured() bool {
	return c.headerParsed && c.metadataParsed && c.audioConfigured && c.videoConfigured
}

func (c *Context) IsHeaderSent() bool {
	return c.headerSent
}

// SetHeaderSent 는 한 방향 래치이다. false 로는 돌아가지 않는다.
func (c *Context) SetHeaderSent(sent bool) {
	if sent {
		c.headerSent = true
	}
}

// Tracks 는 초기화 세그먼트에 들어갈 트랙. 비디오가 먼저.
func (c *Context) Tracks() []*TrackContext {
	var ret []*TrackContext
	if c.Video != nil {
		ret = append(ret, c.Video)
	}
	if c.Audio != nil {
		ret = append(ret, c.Audio)
	}
	return ret
}

func (c *Context) minorVersion() uint32 {
	v, err := strconv.ParseUint(c.MinorVersion, 10, 32)
	if err != nil {
		return 0
	}
	return uint32(v)
}

func (c *Context) brands() (major [4]byte, compatible [][4]byte) {
	copy(major[:], c.MajorBrand)
	for _, b := range c.CompatibleBrands {
		var v [4]byte
		copy(v[:], b)
		compatible = append(compatible, v)
	}
	return
}
