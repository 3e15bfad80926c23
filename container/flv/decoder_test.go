package flv

import (
	"bytes"
	"errors"
	"fmt"
	"testing"

	"github.com/kokoavailable/flv2fmp4/av"
	"github.com/kokoavailable/flv2fmp4/protocol/amf"
	"github.com/stretchr/testify/require"
)

var (
	testAACConfig = []byte{0x12, 0x10}
	testAVCRecord = []byte{
		0x01, 0x64, 0x00, 0x1f, 0xff, 0xe1, 0x00, 0x04,
		0x67, 0x64, 0x00, 0x1f,
		0x01, 0x00, 0x02, 0x68, 0xee,
	}
	testNALU = []byte{0x00, 0x00, 0x00, 0x02, 0x65, 0x88}
)

func writeTestStream(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	w, err := NewFLVWriter(&buf, true, true)
	require.NoError(t, err)

	require.NoError(t, w.WriteMetaData(0, amf.Properties{
		{Key: "duration", Value: amf.Number(10)},
		{Key: "width", Value: amf.Number(1280)},
	}))
	require.NoError(t, w.WriteAudio(&AudioTagHeader{SoundFormatID: av.SOUND_AAC, SoundRate: 3, SoundSize: 1, SoundType: 1, PacketType: av.AAC_SEQHDR}, 0, testAACConfig))
	require.NoError(t, w.WriteVideo(&VideoTagHeader{FrameType: av.FRAME_KEY, Codec: av.VIDEO_H264, AVCPacketType: av.AVC_SEQHDR}, 0, testAVCRecord))
	require.NoError(t, w.WriteVideo(&VideoTagHeader{FrameType: av.FRAME_KEY, Codec: av.VIDEO_H264, AVCPacketType: av.AVC_NALU, Composition: -40}, 0x01000010, testNALU))
	return buf.Bytes()
}

func TestConcatTimestamp(t *testing.T) {
	require.Equal(t, uint32(0x01123456), ConcatTimestamp(0x123456, 0x01))
	require.Equal(t, uint32(0x00ffffff), ConcatTimestamp(0xffffffff, 0))
	require.Equal(t, uint32(0xff000000), ConcatTimestamp(0, 0xff))
}

func TestParseHeader(t *testing.T) {
	h, err := ParseHeader([]byte{'F', 'L', 'V', 0x01, 0x05, 0x00, 0x00, 0x00, 0x09})
	require.NoError(t, err)
	require.Equal(t, &Header{
		Signature:  [3]byte{'F', 'L', 'V'},
		Version:    1,
		HasAudio:   true,
		HasVideo:   true,
		DataOffset: 9,
	}, h)
	require.Equal(t, []byte{'F', 'L', 'V', 0x01, 0x05, 0x00, 0x00, 0x00, 0x09}, h.Marshal())

	h, err = ParseHeader([]byte{'F', 'L', 'V', 0x01, 0x04, 0x00, 0x00, 0x00, 0x09})
	require.NoError(t, err)
	require.True(t, h.HasAudio)
	require.False(t, h.HasVideo)

	for _, ca := range []struct {
		name string
		byts []byte
	}{
		{"signature", []byte{'F', 'L', 'X', 0x01, 0x05, 0x00, 0x00, 0x00, 0x09}},
		{"short", []byte{'F', 'L', 'V', 0x01}},
		{"offset", []byte{'F', 'L', 'V', 0x01, 0x05, 0x00, 0x00, 0x00, 0x08}},
	} {
		t.Run(ca.name, func(t *testing.T) {
			_, err := ParseHeader(ca.byts)
			require.ErrorIs(t, err, ErrMalformedHeader)
		})
	}
}

func TestDecodeHeaderShort(t *testing.T) {
	d := NewDecoder()
	d.Push([]byte{'F', 'L', 'V'})
	_, err := d.DecodeHeader()
	require.ErrorIs(t, err, ErrMalformedHeader)
	require.Equal(t, 3, d.Len())
}

func TestDecodeBody(t *testing.T) {
	d := NewDecoder()
	d.Push(writeTestStream(t))

	h, err := d.DecodeHeader()
	require.NoError(t, err)
	require.True(t, h.HasAudio)
	require.True(t, h.HasVideo)

	tags, err := d.DecodeBody()
	require.NoError(t, err)
	require.Len(t, tags, 4)
	require.NoError(t, d.Finish())

	require.Equal(t, TagScript, tags[0].Type)
	sb := tags[0].Body.(*ScriptBody)
	require.Equal(t, "onMetaData", sb.Name)

	require.Equal(t, TagAudio, tags[1].Type)
	ah := tags[1].Header.(*AudioTagHeader)
	require.Equal(t, uint8(av.SOUND_AAC), ah.SoundFormat())
	require.Equal(t, uint8(av.AAC_SEQHDR), ah.AACPacketType())
	require.Equal(t, testAACConfig, tags[1].Data())
	require.Equal(t, uint32(4), tags[1].DataSize)

	require.Equal(t, TagVideo, tags[2].Type)
	vh := tags[2].Header.(*VideoTagHeader)
	require.True(t, vh.IsSeq())
	require.Equal(t, testAVCRecord, tags[2].Data())

	vh = tags[3].Header.(*VideoTagHeader)
	require.True(t, vh.IsKeyFrame())
	require.False(t, vh.IsSeq())
	require.Equal(t, int32(-40), vh.CompositionTime())
	require.Equal(t, uint32(0x000010), tags[3].TimestampBase)
	require.Equal(t, uint8(0x01), tags[3].TimestampExtended)
	require.Equal(t, uint32(0x01000010), tags[3].Timestamp)
	require.Equal(t, testNALU, tags[3].Data())
}

func TestDecodeBodyChunked(t *testing.T) {
	stream := writeTestStream(t)
	d := NewDecoder()

	var tags []*Tag
	headerDone := false
	for _, b := range stream {
		d.Push([]byte{b})
		if !headerDone {
			if d.Len() < HeaderLen {
				continue
			}
			_, err := d.DecodeHeader()
			require.NoError(t, err)
			headerDone = true
		}
		ts, err := d.DecodeBody()
		require.NoError(t, err)
		tags = append(tags, ts...)
	}

	require.Len(t, tags, 4)
	require.Equal(t, []TagType{TagScript, TagAudio, TagVideo, TagVideo},
		[]TagType{tags[0].Type, tags[1].Type, tags[2].Type, tags[3].Type})
	require.NoError(t, d.Finish())
}

func TestDecodeFrameSizeMismatch(t *testing.T) {
	stream := writeTestStream(t)

	// the script tag is followed by its previous tag size; break it
	d := NewDecoder()
	d.Push(stream)
	_, err := d.DecodeHeader()
	require.NoError(t, err)
	first, err := d.DecodeBody()
	require.NoError(t, err)
	scriptSize := first[0].DataSize

	corrupt := append([]byte(nil), stream...)
	off := HeaderLen + prevTagSizeLen + TagHeaderLen + int(scriptSize)
	corrupt[off+3]++

	d = NewDecoder()
	d.Push(corrupt)
	_, err = d.DecodeHeader()
	require.NoError(t, err)
	tags, err := d.DecodeBody()
	require.ErrorIs(t, err, ErrFrameSizeMismatch)
	require.True(t, errors.Is(err, av.ErrMalformed))
	require.Contains(t, err.Error(), fmt.Sprintf("record at byte %d", off))
	require.Len(t, tags, 1)
}

func TestDecodeFirstPrevSizeMustBeZero(t *testing.T) {
	d := NewDecoder()
	d.Push([]byte{'F', 'L', 'V', 0x01, 0x05, 0x00, 0x00, 0x00, 0x09})
	d.Push([]byte{0x00, 0x00, 0x00, 0x01})
	d.Push(make([]byte, TagHeaderLen))
	_, err := d.DecodeHeader()
	require.NoError(t, err)
	_, err = d.DecodeBody()
	require.ErrorIs(t, err, ErrFrameSizeMismatch)
}

func TestDecodeInvalidTagType(t *testing.T) {
	d := NewDecoder()
	d.Push([]byte{'F', 'L', 'V', 0x01, 0x05, 0x00, 0x00, 0x00, 0x09})
	d.Push([]byte{0x00, 0x00, 0x00, 0x00})
	d.Push([]byte{0x07, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00})
	_, err := d.DecodeHeader()
	require.NoError(t, err)
	_, err = d.DecodeBody()
	require.ErrorIs(t, err, ErrInvalidTagType)
}

func TestDecodeBodyBeforeHeader(t *testing.T) {
	d := NewDecoder()
	_, err := d.DecodeBody()
	require.ErrorIs(t, err, ErrHeaderNotDecoded)
}

func TestDecodeExtendedHeader(t *testing.T) {
	var buf bytes.Buffer
	buf.Write([]byte{'F', 'L', 'V', 0x01, 0x01, 0x00, 0x00, 0x00, 0x0c, 0xaa, 0xbb, 0xcc})
	var body bytes.Buffer
	w, err := NewFLVWriter(&body, false, true)
	require.NoError(t, err)
	require.NoError(t, w.WriteVideo(&VideoTagHeader{FrameType: av.FRAME_KEY, Codec: av.VIDEO_H264, AVCPacketType: av.AVC_NALU}, 5, testNALU))
	buf.Write(body.Bytes()[HeaderLen:])

	d := NewDecoder()
	d.Push(buf.Bytes())
	h, err := d.DecodeHeader()
	require.NoError(t, err)
	require.Equal(t, uint32(12), h.DataOffset)
	tags, err := d.DecodeBody()
	require.NoError(t, err)
	require.Len(t, tags, 1)
	require.Equal(t, uint32(5), tags[0].Timestamp)
}

func TestDecodeTruncated(t *testing.T) {
	stream := writeTestStream(t)
	d := NewDecoder()
	d.Push(stream[:len(stream)-7])
	_, err := d.DecodeHeader()
	require.NoError(t, err)
	tags, err := d.DecodeBody()
	require.NoError(t, err)
	require.Len(t, tags, 3)
	require.ErrorIs(t, d.Finish(), ErrTruncated)
}

func TestDecodeEncryptedTag(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewFLVWriter(&buf, true, false)
	require.NoError(t, err)
	require.NoError(t, w.WriteTag(TagAudio|0x20, 0, []byte{0xde, 0xad}))

	d := NewDecoder()
	d.Push(buf.Bytes())
	_, err = d.DecodeHeader()
	require.NoError(t, err)
	tags, err := d.DecodeBody()
	require.NoError(t, err)
	require.Len(t, tags, 1)

	tag := tags[0]
	require.True(t, tag.Filter)
	require.Equal(t, TagAudio, tag.Type)
	require.NotNil(t, tag.Encryption)
	require.NotNil(t, tag.FilterParams)
	require.Equal(t, &EncryptedBody{Data: []byte{0xde, 0xad}}, tag.Body)
}

func TestDecodeDataSizeMismatch(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewFLVWriter(&buf, true, false)
	require.NoError(t, err)
	// AAC tag too short to carry its packet type
	require.NoError(t, w.WriteTag(TagAudio, 0, []byte{0xaf}))

	d := NewDecoder()
	d.Push(buf.Bytes())
	_, err = d.DecodeHeader()
	require.NoError(t, err)
	_, err = d.DecodeBody()
	require.ErrorIs(t, err, ErrDataSizeMismatch)
}

func TestDecodeSetDataFrame(t *testing.T) {
	var script bytes.Buffer
	require.NoError(t, amf.Encode(&script, amf.String("@setDataFrame")))
	require.NoError(t, amf.Encode(&script, amf.String("onMetaData")))
	require.NoError(t, amf.Encode(&script, amf.ECMAArray{Length: 1, Properties: amf.Properties{
		{Key: "framerate", Value: amf.Number(30)},
	}}))

	var buf bytes.Buffer
	w, err := NewFLVWriter(&buf, false, true)
	require.NoError(t, err)
	require.NoError(t, w.WriteTag(TagScript, 0, script.Bytes()))

	d := NewDecoder()
	d.Push(buf.Bytes())
	_, err = d.DecodeHeader()
	require.NoError(t, err)
	tags, err := d.DecodeBody()
	require.NoError(t, err)
	require.Len(t, tags, 1)

	meta, ok := NewMetaData(tags[0])
	require.True(t, ok)
	fps, ok := meta.Number("framerate")
	require.True(t, ok)
	require.Equal(t, 30.0, fps)
}

func TestDecodeMalformedScript(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewFLVWriter(&buf, false, true)
	require.NoError(t, err)
	require.NoError(t, w.WriteTag(TagScript, 0, []byte{0x02, 0x00, 0x0a, 'o', 'n'}))

	d := NewDecoder()
	d.Push(buf.Bytes())
	_, err = d.DecodeHeader()
	require.NoError(t, err)
	_, err = d.DecodeBody()
	require.ErrorIs(t, err, ErrMalformedScript)
	require.False(t, errors.Is(err, av.ErrPending))
}

func TestDemuxer(t *testing.T) {
	d := NewDecoder()
	d.Push(writeTestStream(t))
	h, err := d.DecodeHeader()
	require.NoError(t, err)
	tags, err := d.DecodeBody()
	require.NoError(t, err)

	dm := NewDemuxer(false, true)
	nh := dm.DemuxH(h)
	require.False(t, nh.HasAudio)
	require.True(t, nh.HasVideo)
	require.True(t, h.HasAudio)

	meta, fwd := dm.Demux(tags[0])
	require.True(t, fwd)
	require.NotNil(t, meta)
	width, _ := meta.Number("width")
	require.Equal(t, 1280.0, width)

	_, fwd = dm.Demux(tags[1])
	require.False(t, fwd)

	meta, fwd = dm.Demux(tags[3])
	require.True(t, fwd)
	require.Nil(t, meta)
}

func TestWriteFlvTagRoundTrip(t *testing.T) {
	stream := writeTestStream(t)

	d := NewDecoder()
	d.Push(stream)
	h, err := d.DecodeHeader()
	require.NoError(t, err)
	tags, err := d.DecodeBody()
	require.NoError(t, err)
	require.Len(t, tags, 4)

	var buf bytes.Buffer
	w, err := NewFLVWriter(&buf, h.HasAudio, h.HasVideo)
	require.NoError(t, err)
	for _, tag := range tags {
		require.NoError(t, w.WriteFlvTag(tag))
	}
	require.Equal(t, stream, buf.Bytes())
}

func TestWriteFlvTagEncrypted(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewFLVWriter(&buf, true, false)
	require.NoError(t, err)

	tag := &Tag{Filter: true, Type: TagAudio, Header: &EncryptionTagHeader{}, Body: &EncryptedBody{Data: []byte{0xde}}}
	err = w.WriteFlvTag(tag)
	require.ErrorIs(t, err, av.ErrNotSupported)
	require.Equal(t, HeaderLen+4, buf.Len())
}

func TestWriteFlvTagAudioOnly(t *testing.T) {
	d := NewDecoder()
	d.Push(writeTestStream(t))
	_, err := d.DecodeHeader()
	require.NoError(t, err)
	tags, err := d.DecodeBody()
	require.NoError(t, err)

	var buf bytes.Buffer
	w, err := NewFLVWriter(&buf, true, false)
	require.NoError(t, err)
	require.NoError(t, w.WriteFlvTag(tags[0]))

	d = NewDecoder()
	d.Push(buf.Bytes())
	h, err := d.DecodeHeader()
	require.NoError(t, err)
	require.False(t, h.HasVideo)
	tags, err = d.DecodeBody()
	require.NoError(t, err)
	require.Len(t, tags, 1)

	meta, ok := NewMetaData(tags[0])
	require.True(t, ok)
	require.Equal(t, amf.Properties{{Key: "duration", Value: amf.Number(10)}}, meta.Properties)
}

func TestMetaDataTracks(t *testing.T) {
	meta := &MetaData{Properties: amf.Properties{
		{Key: "duration", Value: amf.Number(10)},
		{Key: "width", Value: amf.Number(1280)},
		{Key: "audiocodecid", Value: amf.Number(10)},
		{Key: "stereo", Value: amf.Boolean(true)},
		{Key: "videocodecid", Value: amf.Number(7)},
	}}

	require.Equal(t, meta.Properties, meta.Tracks(true, true))
	require.Equal(t, amf.Properties{
		{Key: "duration", Value: amf.Number(10)},
		{Key: "width", Value: amf.Number(1280)},
		{Key: "videocodecid", Value: amf.Number(7)},
	}, meta.Tracks(false, true))
	require.Equal(t, amf.Properties{
		{Key: "duration", Value: amf.Number(10)},
	}, meta.Tracks(false, false))
}
