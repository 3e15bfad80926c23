package h264

import (
	"fmt"

	mch264 "github.com/bluenviron/mediacommon/v2/pkg/codecs/h264"
	"github.com/kokoavailable/flv2fmp4/av"
	"github.com/kokoavailable/flv2fmp4/utils/pio"
)

/*
NALU란 AVC 비디오 코덱에서 사용되는 데이터 단위로 Network Abstraction Layer Unit의 약자이다.
sps, pps idr slice 등을 포함하며 FLV 에서는 길이 프리픽스(AVCC) 형태로 들어온다.

시퀀스 파라미터 셋
SPS 는 비디오 스트림에서 전역 설정 정보를 의미한다. 해상도, 프로파일, 레벨이 여기 있다.

PPS 픽쳐 파라미터 셋
"특정" 비디오 프레임 또는 슬라이스에 대한 세부 설정 정보를 정의한다.

IDR instantaneous Decoder Refesh
이전 프레임의 참조 없이 독립적으로 디코딩 가능한 키 프레임이다. fMP4 에서 sync sample 이 된다.

fMP4 는 AVCC 를 그대로 쓴다. 길이 프리픽스로 읽히지 않는 Annex B 프레임만 AVCC 로 바꾼다.
길이 필드를 검증하고 키프레임 여부만 분류한다.
*/
const (
	nalu_type_idr byte = 5 // slice_layer_without_partitioning_rbsp( ), sliceheader

	naluBytesLen int = 4
	minRecordLen int = 7
)

var (
	ErrDecDataNil       = fmt.Errorf("%w: avc sequence header too short", av.ErrMalformed)
	ErrSpsData          = fmt.Errorf("%w: sps data error", av.ErrMalformed)
	ErrPpsData          = fmt.Errorf("%w: pps data error", av.ErrMalformed)
	ErrVideoDataInvalid = fmt.Errorf("%w: video data not match", av.ErrMalformed)
	ErrNaluBodyLen      = fmt.Errorf("%w: nalu body len error", av.ErrMalformed)
	ErrPacketType       = fmt.Errorf("%w: avc packet type", av.ErrNotSupported)
	ErrNotConfigured    = fmt.Errorf("%w: avc nalu before sequence header", av.ErrSequence)
)

type FrameKind uint8

const (
	Keyframe FrameKind = iota
	Interframe
)

func (k FrameKind) String() string {
	if k == Keyframe {
		return "keyframe"
	}
	return "interframe"
}

// Packet 은 SequenceHeader, Frame, EndOfSequence 중 하나이다.
type Packet interface {
	isPacket()
}

// avc 구성 레코드 (AVCDecoderConfigurationRecord)
type SequenceHeader struct {
	ConfigurationVersion uint8
	ProfileIndication    uint8
	ProfileCompatibility uint8
	LevelIndication      uint8
	NALULengthSize       int // 1, 2, 4
	SPS                  [][]byte
	PPS                  [][]byte
	Record               []byte // 원본 레코드
}

// Frame 은 길이 프리픽스 NALU 들로 된 access unit 하나이다.
type Frame struct {
	Kind            FrameKind
	CompositionTime int32
	Data            []byte
}

type EndOfSequence struct{}

func (*SequenceHeader) isPacket() {}
func (*Frame) isPacket()          {}
func (*EndOfSequence) isPacket()  {}

// 메인 구조체. 시퀀스 헤더에서 읽은 NALU 길이 필드 크기를 기억한다.
type Parser struct {
	naluLen int
}

func NewParser() *Parser {
	return &Parser{}
}

// Parse 는 AVC 패킷 타입에 따라 본문을 해석한다.
func (parser *Parser) Parse(b []byte, packetType uint8, keyFrame bool, cts int32) (Packet, error) {
	switch packetType {
	case av.AVC_SEQHDR:
		seq, err := ParseSequenceHeader(b)
		if err != nil {
			return nil, err
		}
		parser.naluLen = seq.NALULengthSize
		return seq, nil
	case av.AVC_NALU:
		return parser.parseFrame(b, keyFrame, cts)
	case av.AVC_EOS:
		return &EndOfSequence{}, nil
	}
	return nil, fmt.Errorf("%w %d", ErrPacketType, packetType)
}

// 디 메서드는 시퀀스 헤더를 다룬다. 바이트 슬라이스를 받아, sps, pps를 파싱한다.
// 여러 개의 sps/pps 를 허용하며 스타트 코드는 붙이지 않는다.
func ParseSequenceHeader(src []byte) (*SequenceHeader, error) {
	// 인풋의 길이를 먼저 체크해 패닉을 예방한다.
	if len(src) < minRecordLen {
		return nil, ErrDecDataNil
	}

	seq := &SequenceHeader{
		ConfigurationVersion: src[0],
		ProfileIndication:    src[1],
		ProfileCompatibility: src[2],
		LevelIndication:      src[3],
		NALULengthSize:       int(src[4]&0x03) + 1,
		Record:               src,
	}
	if seq.NALULengthSize == 3 {
		return nil, fmt.Errorf("%w: nalu length size 3", ErrDecDataNil)
	}

	//get sps
	spsNum := int(src[5] & 0x1f)
	pos := 6
	for i := 0; i < spsNum; i++ {
		if len(src[pos:]) < 2 {
			return nil, ErrSpsData
		}
		spsLen := int(pio.U16BE(src[pos:]))
		pos += 2
		if len(src[pos:]) < spsLen || spsLen <= 0 {
			return nil, ErrSpsData
		}
		seq.SPS = append(seq.SPS, src[pos:pos+spsLen])
		pos += spsLen
	}

	//get pps
	if len(src[pos:]) < 1 {
		return nil, ErrPpsData
	}
	ppsNum := int(src[pos])
	pos++
	for i := 0; i < ppsNum; i++ {
		if len(src[pos:]) < 2 {
			return nil, ErrPpsData
		}
		ppsLen := int(pio.U16BE(src[pos:]))
		pos += 2
		if len(src[pos:]) < ppsLen || ppsLen <= 0 {
			return nil, ErrPpsData
		}
		seq.PPS = append(seq.PPS, src[pos:pos+ppsLen])
		pos += ppsLen
	}

	if len(seq.SPS) == 0 {
		return nil, ErrSpsData
	}
	if len(seq.PPS) == 0 {
		return nil, ErrPpsData
	}
	return seq, nil
}

// Resolution 은 첫 SPS 에서 해상도를 읽는다.
func (seq *SequenceHeader) Resolution() (width, height int, err error) {
	var sps mch264.SPS
	if err = sps.Unmarshal(seq.SPS[0]); err != nil {
		return 0, 0, fmt.Errorf("%w: %v", ErrSpsData, err)
	}
	return sps.Width(), sps.Height(), nil
}

// 주어진 바이트가 스타트 코드와 일치하는가 ?
func isNaluHeader(src []byte) bool {
	if len(src) < naluBytesLen {
		return false
	}
	return src[0] == 0x00 &&
		src[1] == 0x00 &&
		src[2] == 0x00 &&
		src[3] == 0x01
}

// nal unit 의 사이즈계산, avcc포맷에서 일반적이다. 사이즈는 n바이트 빅 인디안
func naluSize(src []byte, n int) (int, error) {
	if len(src) < n {
		return 0, ErrVideoDataInvalid
	}
	size := int(0)
	for i := 0; i < n; i++ {
		size = size<<8 + int(src[i])
	}
	return size, nil
}

// 길이 프리픽스 NALU 들을 검증하고 IDR 이 있으면 키프레임으로 분류한다.
func (parser *Parser) parseFrame(src []byte, keyFrame bool, cts int32) (*Frame, error) {
	if parser.naluLen == 0 {
		return nil, ErrNotConfigured
	}

	idr, err := walkNalus(src, parser.naluLen)
	if err != nil && isNaluHeader(src) && parser.naluLen == naluBytesLen {
		// 일부 인코더는 Annex B 를 그대로 싣는다. 길이 프리픽스로 읽히지 않을 때만 바꾼다.
		avcc := annexbToAVCC(src)
		if idr, err = walkNalus(avcc, naluBytesLen); err == nil {
			src = avcc
		}
	}
	if err != nil {
		return nil, err
	}

	kind := Interframe
	if keyFrame || idr {
		kind = Keyframe
	}
	return &Frame{
		Kind:            kind,
		CompositionTime: cts,
		Data:            src,
	}, nil
}

// walkNalus 는 n 바이트 길이 프리픽스 NALU 열을 끝까지 검사한다. IDR 이 있으면 true.
func walkNalus(src []byte, n int) (idr bool, err error) {
	dataSize := len(src)
	if dataSize < n { // 최소 nalu 헤더 길이 체크
		return false, ErrVideoDataInvalid
	}

	index := 0
	for dataSize > 0 {
		nalLen, err := naluSize(src[index:], n)
		if err != nil {
			return false, err
		}
		index += n
		dataSize -= n

		// 유효사이즈 검사.
		if dataSize < nalLen || nalLen <= 0 {
			return false, ErrNaluBodyLen
		}
		if src[index]&0x1f == nalu_type_idr {
			idr = true
		}
		index += nalLen
		dataSize -= nalLen
	}
	return idr, nil
}

// 스타트 코드(3/4 바이트)로 구분된 NALU 를 4 바이트 길이 프리픽스로 바꾼다.
func annexbToAVCC(src []byte) []byte {
	var nalus [][]byte
	start := -1
	i := 0
	for i+3 <= len(src) {
		if src[i] == 0 && src[i+1] == 0 && src[i+2] == 1 {
			if start >= 0 {
				end := i
				if end > start && src[end-1] == 0 {
					end--
				}
				nalus = append(nalus, src[start:end])
			}
			i += 3
			start = i
			continue
		}
		i++
	}
	if start >= 0 && start < len(src) {
		nalus = append(nalus, src[start:])
	}

	size := 0
	for _, n := range nalus {
		size += naluBytesLen + len(n)
	}
	out := make([]byte, 0, size)
	for _, n := range nalus {
		l := make([]byte, naluBytesLen)
		pio.PutU32BE(l, uint32(len(n)))
		out = append(out, l...)
		out = append(out, n...)
	}
	return out
}
