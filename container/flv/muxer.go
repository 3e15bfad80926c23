package flv

/*
태그를 받아 FLV 바이트 스트림으로 기록한다.
업로드된 스트림을 보관(dvr)하거나 디코더를 거친 태그를 그대로 다시 쓰는데 사용한다.
*/
import (
	"fmt"
	"io"

	"github.com/kokoavailable/flv2fmp4/av"
	"github.com/kokoavailable/flv2fmp4/protocol/amf"
	"github.com/kokoavailable/flv2fmp4/utils/pio"
)

type FLVWriter struct {
	w        io.Writer
	buf      []byte
	hasAudio bool
	hasVideo bool
}

// flv 헤더와 첫 previous tag size(0)를 기록한다.
func NewFLVWriter(w io.Writer, hasAudio, hasVideo bool) (*FLVWriter, error) {
	ret := &FLVWriter{
		w:        w,
		buf:      make([]byte, TagHeaderLen),
		hasAudio: hasAudio,
		hasVideo: hasVideo,
	}

	h := Header{
		Signature:  signature,
		Version:    1,
		HasAudio:   hasAudio,
		HasVideo:   hasVideo,
		DataOffset: HeaderLen,
	}
	if _, err := w.Write(h.Marshal()); err != nil {
		return nil, err
	}
	pio.PutI32BE(ret.buf[:4], 0)
	if _, err := w.Write(ret.buf[:4]); err != nil {
		return nil, err
	}
	return ret, nil
}

// WriteTag 는 태그 헤더, 데이터, previous tag size 를 차례로 쓴다.
// data 는 오디오/비디오 태그 헤더를 포함한 태그 본문 전체이다.
func (writer *FLVWriter) WriteTag(typeID TagType, timestamp uint32, data []byte) error {
	h := writer.buf[:TagHeaderLen]
	dataLen := len(data)
	preDataLen := dataLen + TagHeaderLen
	timestampbase := timestamp & 0xffffff
	timestampExt := timestamp >> 24 & 0xff

	pio.PutU8(h[0:1], uint8(typeID))
	pio.PutI24BE(h[1:4], int32(dataLen))
	pio.PutI24BE(h[4:7], int32(timestampbase))
	pio.PutU8(h[7:8], uint8(timestampExt))
	pio.PutI24BE(h[8:11], 0)

	if _, err := writer.w.Write(h); err != nil {
		return err
	}
	if _, err := writer.w.Write(data); err != nil {
		return err
	}

	pio.PutI32BE(h[:4], int32(preDataLen))
	if _, err := writer.w.Write(h[:4]); err != nil {
		return err
	}
	return nil
}

// WriteFlvTag 는 디코더가 만든 태그를 다시 직렬화한다. 타임스탬프 확장 바이트도 그대로 쓴다.
// 헤더에 없는 트랙의 onMetaData 키는 빼고 쓴다. 암호화 태그는 원본 헤더 필드가 남아 있지 않아 쓸 수 없다.
func (writer *FLVWriter) WriteFlvTag(tag *Tag) error {
	switch b := tag.Body.(type) {
	case *AudioBody:
		h, ok := tag.Header.(*AudioTagHeader)
		if !ok {
			return fmt.Errorf("%w: audio body with %T", av.ErrMalformed, tag.Header)
		}
		return writer.WriteAudio(h, tag.Timestamp, b.Data)
	case *VideoBody:
		h, ok := tag.Header.(*VideoTagHeader)
		if !ok {
			return fmt.Errorf("%w: video body with %T", av.ErrMalformed, tag.Header)
		}
		return writer.WriteVideo(h, tag.Timestamp, b.Data)
	case *ScriptBody:
		if meta, ok := NewMetaData(tag); ok && !(writer.hasAudio && writer.hasVideo) {
			return writer.WriteMetaData(tag.Timestamp, meta.Tracks(writer.hasAudio, writer.hasVideo))
		}
		data, err := amf.Script(b.Name, b.Value)
		if err != nil {
			return err
		}
		return writer.WriteTag(TagScript, tag.Timestamp, data)
	}
	return fmt.Errorf("%w: write %s", av.ErrNotSupported, tag)
}

// WriteMetaData 는 onMetaData 스크립트 태그를 쓴다.
func (writer *FLVWriter) WriteMetaData(timestamp uint32, ps amf.Properties) error {
	body, err := amf.MetaData(ps)
	if err != nil {
		return err
	}
	return writer.WriteTag(TagScript, timestamp, body)
}

// WriteAudio 는 오디오 태그 헤더를 붙여 쓴다. AAC 이면 packetType 이 들어간다.
func (writer *FLVWriter) WriteAudio(h *AudioTagHeader, timestamp uint32, payload []byte) error {
	flags := h.SoundFormatID<<4 | (h.SoundRate&0x3)<<2 | (h.SoundSize&0x1)<<1 | h.SoundType&0x1
	data := []byte{flags}
	if h.SoundFormatID == av.SOUND_AAC {
		data = append(data, h.PacketType)
	}
	return writer.WriteTag(TagAudio, timestamp, append(data, payload...))
}

// WriteVideo 는 비디오 태그 헤더를 붙여 쓴다. AVC 이면 패킷 타입과 컴포지션 타임이 들어간다.
func (writer *FLVWriter) WriteVideo(h *VideoTagHeader, timestamp uint32, payload []byte) error {
	data := []byte{h.FrameType<<4 | h.Codec&0xf}
	if h.Codec == av.VIDEO_H264 {
		cts := make([]byte, 3)
		pio.PutI24BE(cts, h.Composition)
		data = append(data, h.AVCPacketType)
		data = append(data, cts...)
	}
	return writer.WriteTag(TagVideo, timestamp, append(data, payload...))
}
