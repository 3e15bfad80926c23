package flv

import (
	"github.com/kokoavailable/flv2fmp4/protocol/amf"
)

const onMetaData = "onMetaData"

// MetaData 는 onMetaData 스크립트 태그에서 뽑은 key/value 목록이다.
// duration, width, height, framerate, audiocodecid, videocodecid 같은 값이 들어 있다.
type MetaData struct {
	amf.Properties
}

// NewMetaData 는 onMetaData 태그이면 메타데이터를 만든다. 다른 스크립트 태그는 false.
func NewMetaData(tag *Tag) (*MetaData, bool) {
	body, ok := tag.Body.(*ScriptBody)
	if !ok || body.Name != onMetaData {
		return nil, false
	}
	ps, ok := amf.PropertiesOf(body.Value)
	if !ok {
		return nil, false
	}
	return &MetaData{Properties: ps}, true
}

var (
	audioMetaKeys = map[string]bool{
		"audiocodecid": true, "audiodatarate": true, "audiosamplerate": true,
		"audiosamplesize": true, "audiodelay": true, "stereo": true,
	}
	videoMetaKeys = map[string]bool{
		"videocodecid": true, "videodatarate": true, "width": true, "height": true,
		"framerate": true,
	}
)

// Tracks 는 audio/video 중 꺼진 트랙의 키를 뺀 목록을 만든다. 순서는 유지된다.
func (m *MetaData) Tracks(audio, video bool) amf.Properties {
	ret := make(amf.Properties, 0, len(m.Properties))
	for _, p := range m.Properties {
		if !audio && audioMetaKeys[p.Key] {
			continue
		}
		if !video && videoMetaKeys[p.Key] {
			continue
		}
		ret = append(ret, p)
	}
	return ret
}
