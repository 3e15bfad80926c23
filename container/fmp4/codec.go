package fmp4

import (
	"github.com/bluenviron/mediacommon/v2/pkg/codecs/mpeg4audio"
)

// Specification: ISO 14496-1, Table 5
const (
	objectTypeIndicationAudioISO14496part3 = 0x40
	objectTypeIndicationAudioISO11172part3 = 0x6B
)

// Specification: ISO 14496-1, Table 6
const (
	streamTypeAudioStream = 0x05
)

// Codec 은 트랙의 샘플 엔트리를 결정한다.
type Codec interface {
	IsVideo() bool
}

// CodecH264 는 avc1 + avcC.
type CodecH264 struct {
	SPS                  [][]byte
	PPS                  [][]byte
	ProfileCompatibility uint8
	NALULengthSize       int
}

func (*CodecH264) IsVideo() bool { return true }

// CodecMPEG4Audio 는 mp4a + esds (AAC).
type CodecMPEG4Audio struct {
	Config mpeg4audio.AudioSpecificConfig
}

func (*CodecMPEG4Audio) IsVideo() bool { return false }

// CodecMPEG1Audio 는 mp4a + esds (MP3).
type CodecMPEG1Audio struct {
	SampleRate   int
	ChannelCount int
}

func (*CodecMPEG1Audio) IsVideo() bool { return false }
