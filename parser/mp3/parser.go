package mp3

import (
	"fmt"

	"github.com/kokoavailable/flv2fmp4/av"
	"github.com/kokoavailable/flv2fmp4/utils/bitio"
)

/*
MPEG 오디오 프레임 헤더(4바이트)를 읽는다.

	AAAAAAAA AAABBCCD EEEEFFGH IIJJKLMM
	A sync(11) B version(2) C layer(2) D protection
	E bitrate index(4) F sampling frequency index(2) G padding H private
	I channel mode(2) J mode extension(2) K copyright L original M emphasis(2)
*/

type Version uint8

const (
	Mp25 Version = iota // MPEG 2.5
	Mp20                // MPEG 2
	Mp10                // MPEG 1
)

func (v Version) String() string {
	switch v {
	case Mp25:
		return "MPEG-2.5"
	case Mp20:
		return "MPEG-2"
	case Mp10:
		return "MPEG-1"
	}
	return fmt.Sprintf("Version(%d)", uint8(v))
}

type Layer uint8

const (
	L1 Layer = iota + 1
	L2
	L3
)

type ChannelMode uint8

const (
	Stereo ChannelMode = iota
	JointStereo
	DualChannel
	Mono
)

const syncWord = 0x7ff

var (
	ErrDataInvalid      = fmt.Errorf("%w: mp3 header too short", av.ErrMalformed)
	ErrSyncWordMismatch = fmt.Errorf("%w: mp3 sync word mismatch", av.ErrMalformed)
	ErrReserved         = fmt.Errorf("%w: mp3 reserved value", av.ErrMalformed)
)

// sampling_frequency - '11' reserved 는 0 으로 둔다.
var mp3Rates = map[Version][4]int{
	Mp10: {44100, 48000, 32000, 0},
	Mp20: {22050, 24000, 16000, 0},
	Mp25: {11025, 12000, 8000, 0},
}

// kbps. 인덱스 0 (free) 과 15 (bad) 는 0.
var (
	bitratesV1L1  = [16]int{0, 32, 64, 96, 128, 160, 192, 224, 256, 288, 320, 352, 384, 416, 448, 0}
	bitratesV1L2  = [16]int{0, 32, 48, 56, 64, 80, 96, 112, 128, 160, 192, 224, 256, 320, 384, 0}
	bitratesV1L3  = [16]int{0, 32, 40, 48, 56, 64, 80, 96, 112, 128, 160, 192, 224, 256, 320, 0}
	bitratesV2L1  = [16]int{0, 32, 48, 56, 64, 80, 96, 112, 128, 144, 160, 176, 192, 224, 256, 0}
	bitratesV2L23 = [16]int{0, 8, 16, 24, 32, 40, 48, 56, 64, 80, 96, 112, 128, 144, 160, 0}
)

// Header 는 프레임 헤더에서 읽은 값이다.
type Header struct {
	Version       Version
	Layer         Layer
	Protected     bool // CRC 가 붙어 있다 (protection bit 0)
	BitrateIndex  uint8
	Bitrate       int // kbps, 0 이면 free/bad
	SampleRate    int // Hz, 0 이면 reserved
	Padding       bool
	ChannelMode   ChannelMode
	ModeExtension uint8 // JointStereo 일 때만 의미가 있다
}

// Parse 는 페이로드 앞 4바이트를 헤더로 읽는다.
func Parse(src []byte) (*Header, error) {
	// 최소 4바이트
	if len(src) < 4 {
		return nil, ErrDataInvalid
	}
	r := bitio.NewReader(src[:4])
	read := func(n int) uint8 {
		v, _ := r.ReadBits(n)
		return uint8(v)
	}

	if sync, _ := r.ReadBits(11); sync != syncWord {
		return nil, fmt.Errorf("%w: %#x", ErrSyncWordMismatch, sync)
	}

	h := &Header{}
	switch read(2) {
	case 0:
		h.Version = Mp25
	case 1:
		return nil, fmt.Errorf("%w: version", ErrReserved)
	case 2:
		h.Version = Mp20
	case 3:
		h.Version = Mp10
	}

	layer := read(2)
	if layer == 0 {
		return nil, fmt.Errorf("%w: layer", ErrReserved)
	}
	h.Layer = Layer(4 - layer)
	h.Protected = read(1) == 0

	h.BitrateIndex = read(4)
	h.Bitrate = bitrateTable(h.Version, h.Layer)[h.BitrateIndex]
	h.SampleRate = mp3Rates[h.Version][read(2)]
	h.Padding = read(1) == 1
	read(1) // private

	h.ChannelMode = ChannelMode(read(2))
	ext := read(2)
	if h.ChannelMode == JointStereo {
		h.ModeExtension = ext
	}
	return h, nil
}

func bitrateTable(v Version, l Layer) [16]int {
	if v == Mp10 {
		switch l {
		case L1:
			return bitratesV1L1
		case L2:
			return bitratesV1L2
		}
		return bitratesV1L3
	}
	if l == L1 {
		return bitratesV2L1
	}
	return bitratesV2L23
}

// SamplesPerFrame 는 프레임 하나에 든 PCM 샘플 수이다.
func (h *Header) SamplesPerFrame() int {
	switch h.Layer {
	case L1:
		return 384
	case L2:
		return 1152
	}
	if h.Version == Mp10 {
		return 1152
	}
	return 576
}

// Channels 는 채널 수.
func (h *Header) Channels() int {
	if h.ChannelMode == Mono {
		return 1
	}
	return 2
}
