package aac

import (
	"fmt"

	"github.com/bluenviron/mediacommon/v2/pkg/codecs/mpeg4audio"
	"github.com/kokoavailable/flv2fmp4/av"
	"github.com/kokoavailable/flv2fmp4/utils/bitio"
)

/*
FLV 오디오 태그 안의 AAC 페이로드를 해석한다.
패킷 타입 0 은 AudioSpecificConfig 를 담은 시퀀스 헤더, 1 은 raw access unit 이다.
fMP4 에는 ADTS 헤더 없이 raw 프레임을 그대로 싣는다.
*/

// AAC 의 샘플 레이트 테이블이다. SamplingFrequencyIndex 로 참조해 실제 Hz 값을 얻는다.
var aacRates = []int{96000, 88200, 64000, 48000, 44100, 32000, 24000, 22050, 16000, 12000, 11025, 8000, 7350}

// raw AAC 프레임 하나의 샘플 수.
const SamplesPerFrame = 1024

var (
	ErrSpecificBufInvalid = fmt.Errorf("%w: aac sequence header too short", av.ErrMalformed)
	ErrPacketType         = fmt.Errorf("%w: aac packet type", av.ErrNotSupported)
)

// Packet 은 SequenceHeader 또는 Raw 이다.
type Packet interface {
	isPacket()
}

// SequenceHeader 는 AudioSpecificConfig 의 앞 두 바이트에서 읽은 값과 원본 바이트이다.
type SequenceHeader struct {
	ObjectType             uint8 // 5 bits
	SamplingFrequencyIndex uint8 // 4 bits
	ChannelConfiguration   uint8 // 4 bits
	Config                 []byte
}

// Raw 는 가공하지 않은 access unit 이다.
type Raw struct {
	Data []byte
}

func (*SequenceHeader) isPacket() {}
func (*Raw) isPacket()            {}

// 패킷 타입에 따라 처리 방식을 결정한다.
func Parse(b []byte, packetType uint8) (Packet, error) {
	switch packetType {
	case av.AAC_SEQHDR:
		return parseSequenceHeader(b)
	case av.AAC_RAW:
		return &Raw{Data: b}, nil
	}
	return nil, fmt.Errorf("%w %d", ErrPacketType, packetType)
}

func parseSequenceHeader(src []byte) (*SequenceHeader, error) {
	// 입력 데이터는 최소 2바이트 이상이여야 한다.
	if len(src) < 2 {
		return nil, ErrSpecificBufInvalid
	}
	r := bitio.NewReader(src)
	objectType, _ := r.ReadBits(5)
	sfi, _ := r.ReadBits(4)
	channel, _ := r.ReadBits(4)

	return &SequenceHeader{
		ObjectType:             uint8(objectType),
		SamplingFrequencyIndex: uint8(sfi),
		ChannelConfiguration:   uint8(channel),
		Config:                 src,
	}, nil
}

// SampleRate 는 인덱스가 테이블 안이면 테이블 값을, 아니면(명시적 주파수 15) 설정 전체를 풀어 얻는다.
// 알 수 없으면 0.
func (h *SequenceHeader) SampleRate() int {
	if int(h.SamplingFrequencyIndex) < len(aacRates) {
		return aacRates[h.SamplingFrequencyIndex]
	}
	var conf mpeg4audio.AudioSpecificConfig
	if err := conf.Unmarshal(h.Config); err != nil {
		return 0
	}
	return conf.SampleRate
}

// Channels 는 채널 수. 채널 설정 0 (PCE 에 정의) 은 스테레오로 본다.
func (h *SequenceHeader) Channels() int {
	switch {
	case h.ChannelConfiguration == 0:
		return 2
	case h.ChannelConfiguration == 7:
		return 8
	}
	return int(h.ChannelConfiguration)
}

// AudioSpecificConfig 는 esds 에 넣을 설정을 돌려준다.
func (h *SequenceHeader) AudioSpecificConfig() (*mpeg4audio.AudioSpecificConfig, error) {
	var conf mpeg4audio.AudioSpecificConfig
	if err := conf.Unmarshal(h.Config); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSpecificBufInvalid, err)
	}
	return &conf, nil
}
