package flv

import (
	"fmt"

	"github.com/kokoavailable/flv2fmp4/av"
	"github.com/kokoavailable/flv2fmp4/protocol/amf"
	"github.com/kokoavailable/flv2fmp4/utils/pio"
)

type TagType uint8

const (
	TagAudio  TagType = av.TAG_AUDIO
	TagVideo  TagType = av.TAG_VIDEO
	TagScript TagType = av.TAG_SCRIPTDATAAMF0
)

func (t TagType) String() string {
	switch t {
	case TagAudio:
		return "audio"
	case TagVideo:
		return "video"
	case TagScript:
		return "script"
	}
	return fmt.Sprintf("unknown(%d)", uint8(t))
}

// ConcatTimestamp 는 24비트 타임스탬프와 8비트 확장을 32비트 ms 값으로 합친다.
func ConcatTimestamp(base uint32, ext uint8) uint32 {
	return (base & 0x00ffffff) | uint32(ext)<<24
}

// FLV 태그 하나. 디코더가 만들고 리먹서가 소비한다.
type Tag struct {
	Filter            bool    // 암호화(필터) 여부
	Type              TagType // 비디오 0x09, 오디오 0x08, 메타데이터 0x12
	DataSize          uint32  // 태그 헤더 11 바이트를 뺀 길이. 타입별 헤더 + 본문.
	TimestampBase     uint32  // 하위 24비트
	TimestampExtended uint8   // 상위 8비트
	Timestamp         uint32  // 둘을 합친 dts(ms)
	StreamID          uint32  // always 0. 읽기만 하고 무시한다.

	Header TagHeader
	Body   TagBody

	// 필터 비트가 켜진 태그에서만 채워진다.
	Encryption   *EncryptionTagHeader
	FilterParams *FilterParameters
}

func (tag *Tag) IsAudio() bool { return tag.Type == TagAudio }

func (tag *Tag) IsVideo() bool { return tag.Type == TagVideo }

func (tag *Tag) IsScript() bool { return tag.Type == TagScript }

// Data 는 오디오/비디오 본문 바이트. 그 외 태그는 nil.
func (tag *Tag) Data() []byte {
	switch b := tag.Body.(type) {
	case *AudioBody:
		return b.Data
	case *VideoBody:
		return b.Data
	}
	return nil
}

func (tag *Tag) String() string {
	return fmt.Sprintf("<%s ts=%d size=%d filter=%v>", tag.Type, tag.Timestamp, tag.DataSize, tag.Filter)
}

// TagHeader 는 *AudioTagHeader, *VideoTagHeader, ScriptTagHeader, *EncryptionTagHeader 중 하나.
type TagHeader interface {
	av.PacketHeader
	headerLen() int
}

// TagBody 는 *AudioBody, *VideoBody, *ScriptBody, *EncryptedBody 중 하나.
type TagBody interface {
	isBody()
}

type AudioTagHeader struct {
	/*
		SoundFormat: UB[4]
		2 = MP3, 10 = AAC. 그 외는 리먹서에서 지원하지 않는다.
	*/
	SoundFormatID uint8
	/*
		SoundRate: UB[2]
		0 = 5.5-kHz, 1 = 11-kHz, 2 = 22-kHz, 3 = 44-kHz. AAC 는 항상 3.
	*/
	SoundRate uint8
	// 0 = snd8Bit, 1 = snd16Bit
	SoundSize uint8
	// 0 = sndMono, 1 = sndStereo
	SoundType uint8
	/*
		SoundFormat 이 AAC 일 때만 존재한다.
		0: AAC sequence header
		1: AAC raw
	*/
	PacketType uint8
}

var (
	_ av.AudioPacketHeader = (*AudioTagHeader)(nil)
	_ av.VideoPacketHeader = (*VideoTagHeader)(nil)
)

func (h *AudioTagHeader) SoundFormat() uint8 {
	return h.SoundFormatID
}

func (h *AudioTagHeader) AACPacketType() uint8 {
	return h.PacketType
}

func (h *AudioTagHeader) headerLen() int {
	if h.SoundFormatID == av.SOUND_AAC {
		return 2
	}
	return 1
}

// FLV 오디오 태그 헤더를 파싱하여 오디오 데이터의 메타 정보를 추출한다.
func (h *AudioTagHeader) parse(b []byte) (n int, err error) {
	if len(b) < 1 {
		err = fmt.Errorf("%w: invalid audiodata len=%d", ErrDataSizeMismatch, len(b))
		return
	}
	flags := b[0]
	h.SoundFormatID = flags >> 4       // 상위 4비트
	h.SoundRate = (flags >> 2) & 0x3   // 중간 2비트
	h.SoundSize = (flags >> 1) & 0x1   // 7번째 비트
	h.SoundType = flags & 0x1          // 하위 1 비트
	n++

	// 태그의 사운드 포맷이 aac 일 경우에만 패킷 타입이 있다.
	if h.SoundFormatID == av.SOUND_AAC {
		if len(b) < 2 {
			err = fmt.Errorf("%w: invalid aac audiodata len=%d", ErrDataSizeMismatch, len(b))
			return
		}
		h.PacketType = b[1]
		n++
	}
	return
}

type VideoTagHeader struct {
	/*
		1: keyframe (for AVC, a seekable frame)
		2: inter frame (for AVC, a non-seekable frame)
		3: disposable inter frame (H.263 only)
		4: generated keyframe (reserved for server use only)
		5: video info/command frame
	*/
	FrameType uint8
	// 7: AVC. 그 외 코덱은 지원하지 않는다.
	Codec uint8
	/*
		Codec 이 AVC 일 때만 존재한다.
		0: AVC sequence header
		1: AVC NALU
		2: AVC end of sequence
	*/
	AVCPacketType uint8
	// pts - dts (ms). 24비트 부호 있는 정수.
	Composition int32
}

func (h *VideoTagHeader) IsKeyFrame() bool {
	return h.FrameType == av.FRAME_KEY
}

func (h *VideoTagHeader) IsSeq() bool {
	return h.FrameType == av.FRAME_KEY &&
		h.AVCPacketType == av.AVC_SEQHDR
}

func (h *VideoTagHeader) CodecID() uint8 {
	return h.Codec
}

func (h *VideoTagHeader) CompositionTime() int32 {
	return h.Composition
}

func (h *VideoTagHeader) headerLen() int {
	if h.Codec == av.VIDEO_H264 {
		return 5
	}
	return 1
}

// FLV 비디오 태그 헤더를 파싱하여 비디오 데이터의 메타정보를 추출한다.
func (h *VideoTagHeader) parse(b []byte) (n int, err error) {
	if len(b) < 1 {
		err = fmt.Errorf("%w: invalid videodata len=%d", ErrDataSizeMismatch, len(b))
		return
	}
	flags := b[0]
	h.FrameType = flags >> 4 // 상위 4비트
	h.Codec = flags & 0xf    // 하위 4비트
	n++
	if h.Codec != av.VIDEO_H264 {
		return
	}
	if len(b) < 5 {
		err = fmt.Errorf("%w: invalid avc videodata len=%d", ErrDataSizeMismatch, len(b))
		return
	}
	h.AVCPacketType = b[1]
	// b[2], b[3], b[4] 가 컴포지션 타임이다. 24비트 빅 엔디언이며 음수일 수 있다.
	h.Composition = pio.I24BE(b[2:5])
	n += 4
	return
}

type ScriptTagHeader struct{}

func (ScriptTagHeader) headerLen() int { return 0 }

// 암호화 태그 헤더 자리. 해석은 아직 구현되지 않았다.
type EncryptionTagHeader struct{}

func (*EncryptionTagHeader) headerLen() int { return 0 }

// 필터 파라미터 자리. 해석은 아직 구현되지 않았다.
type FilterParameters struct{}

type AudioBody struct {
	Data []byte
}

type VideoBody struct {
	Data []byte
}

// onMetaData 같은 스크립트 태그 본문. 이름 + 값.
type ScriptBody struct {
	Name  string
	Value amf.Value
}

// 암호화된 태그의 원본 바이트. 복호화는 지원하지 않는다.
type EncryptedBody struct {
	Data []byte
}

func (*AudioBody) isBody()     {}
func (*VideoBody) isBody()     {}
func (*ScriptBody) isBody()    {}
func (*EncryptedBody) isBody() {}
