package parser

import (
	"errors"
	"fmt"

	"github.com/kokoavailable/flv2fmp4/av"
	"github.com/kokoavailable/flv2fmp4/container/flv"
	"github.com/kokoavailable/flv2fmp4/parser/aac"
	"github.com/kokoavailable/flv2fmp4/parser/h264"
	"github.com/kokoavailable/flv2fmp4/parser/mp3"
)

var (
	ErrTagKindMismatch  = fmt.Errorf("%w: tag kind mismatch", av.ErrMalformed)
	ErrUnsupportedCodec = fmt.Errorf("%w: unsupported codec", av.ErrNotSupported)
	ErrEncryptedTag     = fmt.Errorf("%w: encrypted tag", av.ErrNotSupported)
)

// Audio 는 오디오 태그 하나를 해석한 결과이다. 둘 중 하나만 채워진다.
type Audio struct {
	AAC aac.Packet
	MP3 *MP3Frame
}

// MP3Frame 은 헤더와 프레임 원본이다.
type MP3Frame struct {
	Header *mp3.Header
	Data   []byte
}

// IsSequenceHeader 는 코덱 설정용 패킷인지 돌려준다. MP3 는 매 프레임 헤더가 설정이다.
func (a *Audio) IsSequenceHeader() bool {
	_, ok := a.AAC.(*aac.SequenceHeader)
	return ok
}

// CodecParser 는 태그 헤더를 보고 코덱별 파서로 보낸다.
// AVC 는 NALU 길이 필드 크기를 기억해야 하므로 트랙마다 하나씩 둔다.
type CodecParser struct {
	h264 *h264.Parser
}

func NewCodecParser() *CodecParser {
	return &CodecParser{}
}

// ParseAudio 는 오디오 태그에서 샘플 파라미터를 뽑는다.
func (codeParser *CodecParser) ParseAudio(tag *flv.Tag) (*Audio, error) {
	if _, ok := tag.Body.(*flv.EncryptedBody); ok {
		return nil, ErrEncryptedTag
	}
	h, ok := tag.Header.(*flv.AudioTagHeader)
	if !ok {
		return nil, fmt.Errorf("%w: want audio, got %s", ErrTagKindMismatch, tag.Type)
	}
	body, ok := tag.Body.(*flv.AudioBody)
	if !ok {
		return nil, fmt.Errorf("%w: audio header with %T body", ErrTagKindMismatch, tag.Body)
	}

	switch h.SoundFormat() {
	case av.SOUND_MP3:
		mh, err := mp3.Parse(body.Data)
		if err != nil {
			return nil, err
		}
		return &Audio{MP3: &MP3Frame{Header: mh, Data: body.Data}}, nil
	case av.SOUND_AAC:
		p, err := aac.Parse(body.Data, h.AACPacketType())
		if errors.Is(err, aac.ErrPacketType) {
			return nil, fmt.Errorf("%w: %v", ErrUnsupportedCodec, err)
		}
		if err != nil {
			return nil, err
		}
		return &Audio{AAC: p}, nil
	}
	return nil, fmt.Errorf("%w: sound format %d", ErrUnsupportedCodec, h.SoundFormat())
}

// ParseVideo 는 비디오 태그를 시퀀스 헤더, 프레임, 시퀀스 끝으로 나눈다. AVC 만 지원한다.
func (codeParser *CodecParser) ParseVideo(tag *flv.Tag) (h264.Packet, error) {
	if _, ok := tag.Body.(*flv.EncryptedBody); ok {
		return nil, ErrEncryptedTag
	}
	h, ok := tag.Header.(*flv.VideoTagHeader)
	if !ok {
		return nil, fmt.Errorf("%w: want video, got %s", ErrTagKindMismatch, tag.Type)
	}
	body, ok := tag.Body.(*flv.VideoBody)
	if !ok {
		return nil, fmt.Errorf("%w: video header with %T body", ErrTagKindMismatch, tag.Body)
	}
	if h.CodecID() != av.VIDEO_H264 {
		return nil, fmt.Errorf("%w: video codec %d", ErrUnsupportedCodec, h.CodecID())
	}

	if codeParser.h264 == nil {
		codeParser.h264 = h264.NewParser()
	}
	p, err := codeParser.h264.Parse(body.Data, h.AVCPacketType, h.IsKeyFrame(), h.CompositionTime())
	if errors.Is(err, h264.ErrPacketType) {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedCodec, err)
	}
	return p, err
}
