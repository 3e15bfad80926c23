package flv

import (
	"github.com/kr/pretty"
	log "github.com/sirupsen/logrus"
)

// Demuxer 는 디코더가 잘라낸 태그를 트랙 선택에 따라 거른다.
// onMetaData 는 메타데이터로 따로 꺼내고, 꺼진 트랙의 태그는 버린다.
type Demuxer struct {
	audio bool // 오디오 트랙 사용 여부
	video bool // 비디오 트랙 사용 여부
}

func NewDemuxer(audio, video bool) *Demuxer {
	return &Demuxer{
		audio: audio,
		video: video,
	}
}

// DemuxH 는 헤더의 트랙 플래그를 선택된 트랙으로 좁힌 사본을 돌려준다.
func (d *Demuxer) DemuxH(h *Header) *Header {
	ret := *h
	ret.HasAudio = h.HasAudio && d.audio
	ret.HasVideo = h.HasVideo && d.video
	return &ret
}

// Demux 는 태그를 분류한다. meta 가 nil 이 아니면 메타데이터도 함께 보낸다.
// forward 가 false 이면 태그는 버린다.
func (d *Demuxer) Demux(tag *Tag) (meta *MetaData, forward bool) {
	switch tag.Type {
	case TagScript:
		if m, ok := NewMetaData(tag); ok {
			log.Debugf("onMetaData: %# v", pretty.Formatter(m.Properties))
			meta = m
		}
		return meta, true
	case TagAudio:
		return nil, d.audio
	case TagVideo:
		return nil, d.video
	}
	return nil, false
}
