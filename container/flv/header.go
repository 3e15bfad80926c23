package flv

import (
	"fmt"

	"github.com/kokoavailable/flv2fmp4/av"
	"github.com/kokoavailable/flv2fmp4/utils/bitio"
	"github.com/kokoavailable/flv2fmp4/utils/pio"
)

const (
	HeaderLen    = 9  // 파일 헤더 길이
	TagHeaderLen = 11 // 태그 헤더 길이. previous tag size 계산에 쓰인다.
)

var (
	ErrMalformedHeader = fmt.Errorf("%w: flv header malformed", av.ErrMalformed)
)

var signature = [3]byte{'F', 'L', 'V'}

// FLV 파일 헤더. 파일 맨 앞 9 바이트.
type Header struct {
	Signature  [3]byte // "FLV"
	Version    uint8   // 보통 1
	HasAudio   bool    // flags 의 bit 2
	HasVideo   bool    // flags 의 bit 0
	DataOffset uint32  // 헤더 길이. 본문은 이 위치에서 시작한다.
}

// ParseHeader 는 9 바이트 헤더를 해석한다.
func ParseHeader(b []byte) (*Header, error) {
	if len(b) < HeaderLen {
		return nil, ErrMalformedHeader
	}
	h := &Header{}
	copy(h.Signature[:], b[0:3])
	if h.Signature != signature {
		return nil, fmt.Errorf("%w: signature %q", ErrMalformedHeader, b[0:3])
	}
	h.Version = b[3]
	flags := bitio.Byte(b[4])
	h.HasAudio = flags.Bit(2)
	h.HasVideo = flags.Bit(0)
	h.DataOffset = pio.U32BE(b[5:9])
	if h.DataOffset < HeaderLen {
		return nil, fmt.Errorf("%w: data offset %d", ErrMalformedHeader, h.DataOffset)
	}
	return h, nil
}

func (h *Header) Marshal() []byte {
	b := make([]byte, HeaderLen)
	copy(b[0:3], h.Signature[:])
	b[3] = h.Version
	if h.HasAudio {
		b[4] |= 0x04
	}
	if h.HasVideo {
		b[4] |= 0x01
	}
	pio.PutU32BE(b[5:9], h.DataOffset)
	return b
}
