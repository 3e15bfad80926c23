package parser

import (
	"testing"

	"github.com/kokoavailable/flv2fmp4/av"
	"github.com/kokoavailable/flv2fmp4/container/flv"
	"github.com/kokoavailable/flv2fmp4/parser/aac"
	"github.com/kokoavailable/flv2fmp4/parser/h264"
	"github.com/kokoavailable/flv2fmp4/parser/mp3"
	"github.com/stretchr/testify/require"
)

func audioTag(format, packetType uint8, data []byte) *flv.Tag {
	return &flv.Tag{
		Type:   flv.TagAudio,
		Header: &flv.AudioTagHeader{SoundFormatID: format, PacketType: packetType},
		Body:   &flv.AudioBody{Data: data},
	}
}

func videoTag(frameType, codec, packetType uint8, data []byte) *flv.Tag {
	return &flv.Tag{
		Type:   flv.TagVideo,
		Header: &flv.VideoTagHeader{FrameType: frameType, Codec: codec, AVCPacketType: packetType},
		Body:   &flv.VideoBody{Data: data},
	}
}

func TestParseAudio(t *testing.T) {
	p := NewCodecParser()

	a, err := p.ParseAudio(audioTag(av.SOUND_AAC, av.AAC_SEQHDR, []byte{0x12, 0x10}))
	require.NoError(t, err)
	require.True(t, a.IsSequenceHeader())
	require.Equal(t, 44100, a.AAC.(*aac.SequenceHeader).SampleRate())

	a, err = p.ParseAudio(audioTag(av.SOUND_AAC, av.AAC_RAW, []byte{0x21, 0x00}))
	require.NoError(t, err)
	require.False(t, a.IsSequenceHeader())
	require.Equal(t, &aac.Raw{Data: []byte{0x21, 0x00}}, a.AAC)

	a, err = p.ParseAudio(audioTag(av.SOUND_MP3, 0, []byte{0xff, 0xfb, 0x90, 0x64, 0x00}))
	require.NoError(t, err)
	require.Nil(t, a.AAC)
	require.Equal(t, 44100, a.MP3.Header.SampleRate)
	require.Equal(t, mp3.Mp10, a.MP3.Header.Version)
	require.Len(t, a.MP3.Data, 5)
}

func TestParseAudioErrors(t *testing.T) {
	p := NewCodecParser()

	_, err := p.ParseAudio(audioTag(av.SOUND_SPEEX, 0, []byte{0x00}))
	require.ErrorIs(t, err, ErrUnsupportedCodec)

	_, err = p.ParseAudio(audioTag(av.SOUND_AAC, 5, []byte{0x00}))
	require.ErrorIs(t, err, ErrUnsupportedCodec)
	require.ErrorIs(t, err, av.ErrNotSupported)

	_, err = p.ParseAudio(videoTag(av.FRAME_KEY, av.VIDEO_H264, av.AVC_NALU, nil))
	require.ErrorIs(t, err, ErrTagKindMismatch)

	_, err = p.ParseAudio(audioTag(av.SOUND_MP3, 0, []byte{0x00, 0x00, 0x00, 0x00}))
	require.ErrorIs(t, err, mp3.ErrSyncWordMismatch)

	_, err = p.ParseAudio(&flv.Tag{
		Filter: true,
		Type:   flv.TagAudio,
		Header: &flv.EncryptionTagHeader{},
		Body:   &flv.EncryptedBody{Data: []byte{0x01}},
	})
	require.ErrorIs(t, err, ErrEncryptedTag)
	require.ErrorIs(t, err, av.ErrNotSupported)
}

func TestParseVideo(t *testing.T) {
	p := NewCodecParser()

	rec := []byte{
		0x01, 0x64, 0x00, 0x1f, 0xff, 0xe1, 0x00, 0x04,
		0x67, 0x64, 0x00, 0x1f,
		0x01, 0x00, 0x02, 0x68, 0xee,
	}
	pkt, err := p.ParseVideo(videoTag(av.FRAME_KEY, av.VIDEO_H264, av.AVC_SEQHDR, rec))
	require.NoError(t, err)
	require.IsType(t, &h264.SequenceHeader{}, pkt)

	pkt, err = p.ParseVideo(videoTag(av.FRAME_INTER, av.VIDEO_H264, av.AVC_NALU, []byte{0x00, 0x00, 0x00, 0x02, 0x41, 0x9a}))
	require.NoError(t, err)
	require.Equal(t, h264.Interframe, pkt.(*h264.Frame).Kind)

	pkt, err = p.ParseVideo(videoTag(av.FRAME_KEY, av.VIDEO_H264, av.AVC_NALU, []byte{0x00, 0x00, 0x00, 0x02, 0x65, 0x88}))
	require.NoError(t, err)
	require.Equal(t, h264.Keyframe, pkt.(*h264.Frame).Kind)

	_, err = p.ParseVideo(videoTag(av.FRAME_KEY, 4, 0, []byte{0x00}))
	require.ErrorIs(t, err, ErrUnsupportedCodec)

	_, err = p.ParseVideo(videoTag(av.FRAME_KEY, av.VIDEO_H264, 7, nil))
	require.ErrorIs(t, err, ErrUnsupportedCodec)

	_, err = p.ParseVideo(audioTag(av.SOUND_AAC, av.AAC_RAW, nil))
	require.ErrorIs(t, err, ErrTagKindMismatch)
}
