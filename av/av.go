package av

import (
	"fmt"
)

const (
	TAG_AUDIO          = 8
	TAG_VIDEO          = 9
	TAG_SCRIPTDATAAMF0 = 18
)

const (
	SOUND_MP3                   = 2
	SOUND_NELLYMOSER_16KHZ_MONO = 4
	SOUND_NELLYMOSER_8KHZ_MONO  = 5
	SOUND_NELLYMOSER            = 6
	SOUND_ALAW                  = 7
	SOUND_MULAW                 = 8
	SOUND_AAC                   = 10
	SOUND_SPEEX                 = 11

	SOUND_5_5Khz = 0
	SOUND_11Khz  = 1
	SOUND_22Khz  = 2
	SOUND_44Khz  = 3

	SOUND_8BIT  = 0
	SOUND_16BIT = 1

	SOUND_MONO   = 0
	SOUND_STEREO = 1

	AAC_SEQHDR = 0
	AAC_RAW    = 1
)

const (
	AVC_SEQHDR = 0
	AVC_NALU   = 1
	AVC_EOS    = 2

	FRAME_KEY   = 1
	FRAME_INTER = 2

	VIDEO_H264 = 7
)

// 태그 헤더는 인터페이스로 정의돼 오디오 태그 헤더와 비디오 태그 헤더로 확장된다.
// 코덱 파서는 구체 타입을 몰라도 이 인터페이스로 헤더 정보를 읽는다.
type PacketHeader interface {
}

type AudioPacketHeader interface {
	PacketHeader          // 공통 부모 인터페이스
	SoundFormat() uint8   // 오디오 포맷 정보 반환 (AAC, MP3)
	AACPacketType() uint8 // AAC 패킷 타입 반환 (헤더/데이터 구분)
}

// 키 프레임은 독립적으로 디코딩이 가능한 프레임이다. fMP4 에서는 sync sample 로 표시된다.
// 컴포지션 타임은 프레임의 디코딩 시간과 화면에 표시되는 시간 사이의 차이이다. (pts - dts)
type VideoPacketHeader interface {
	PacketHeader            // 공통 부모 인터페이스
	IsKeyFrame() bool       // 키 프레임 여부 반환
	IsSeq() bool            // 시퀀스 헤더 여부 반환
	CodecID() uint8         // 비디오 코덱 ID 반환(H.264)
	CompositionTime() int32 // 컴포지션 타임 오프셋 반환
}

// Alive 메서드를 정의합니다
type Alive interface {
	Alive() bool
}

// 스트림을 고유하게 식별하기 위해 필요한 정보.
type Info struct {
	Key string // 스트림 식별 고유 키 (app/name)
	URL string // 요청 URL
	UID string // 세션 고유 UID
}

func (info Info) String() string {
	return fmt.Sprintf("<key: %s, URL: %s, UID: %s>",
		info.Key, info.URL, info.UID)
}
