package exchange

import (
	"fmt"

	"github.com/kokoavailable/flv2fmp4/container/flv"
)

// Destination 은 봉투의 수신자이다. 맵 키로 바로 쓴다.
type Destination uint8

const (
	Core Destination = iota
	Decoder
	Demuxer
	Remuxer
)

func (d Destination) String() string {
	switch d {
	case Core:
		return "core"
	case Decoder:
		return "decoder"
	case Demuxer:
		return "demuxer"
	case Remuxer:
		return "remuxer"
	}
	return fmt.Sprintf("destination(%d)", uint8(d))
}

// Content 는 봉투에 담기는 메시지이다.
type Content interface {
	isContent()
}

// Packed 는 라우팅 필드와 메시지를 묶은 봉투이다.
type Packed struct {
	Routing Destination
	Content Content
}

// PushData 는 디코더로 가는 원본 FLV 바이트.
type PushData struct {
	Data []byte
}

// PushFlvHeader 는 디코더가 읽은 FLV 헤더. 값으로 복사해 보낸다.
type PushFlvHeader struct {
	Header flv.Header
}

// PushTag 는 태그 하나. 받는 쪽으로 소유권이 넘어간다.
type PushTag struct {
	Tag *flv.Tag
}

// PushMetadata 는 onMetaData 스크립트에서 뽑은 값.
type PushMetadata struct {
	Meta *flv.MetaData
}

type Command uint8

const (
	Start       Command = iota // 처리를 켠다
	Stop                       // 처리를 끈다. 받은 데이터는 쌓아 둔다
	Now                        // 쌓인 것을 지금 처리한다
	EndOfStream                // 입력이 끝났다. 처리 후 다음 단계로 넘긴다
	Close                      // 워커 종료. 남은 작업은 버린다
)

func (c Command) String() string {
	switch c {
	case Start:
		return "start"
	case Stop:
		return "stop"
	case Now:
		return "now"
	case EndOfStream:
		return "end-of-stream"
	case Close:
		return "close"
	}
	return fmt.Sprintf("command(%d)", uint8(c))
}

// Control 은 워커 제어 메시지.
type Control struct {
	Command Command
}

type SegmentKind uint8

const (
	SegmentInit     SegmentKind = iota // ftyp + moov
	SegmentFragment                    // moof + mdat
)

func (k SegmentKind) String() string {
	if k == SegmentInit {
		return "init"
	}
	return "fragment"
}

// CoreData 는 리먹서가 만든 출력 버퍼이다.
type CoreData struct {
	Kind     SegmentKind
	Keyframe bool // 비디오 키프레임 샘플을 담은 조각
	Data     []byte
}

// ErrorReport 는 워커의 치명적 에러를 Core 에 알린다.
type ErrorReport struct {
	From Destination
	Err  error
}

func (*PushData) isContent()      {}
func (*PushFlvHeader) isContent() {}
func (*PushTag) isContent()       {}
func (*PushMetadata) isContent()  {}
func (*Control) isContent()       {}
func (*CoreData) isContent()      {}
func (*ErrorReport) isContent()   {}
