package mp3

import (
	"testing"

	"github.com/kokoavailable/flv2fmp4/av"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	for _, ca := range []struct {
		name string
		byts []byte
		h    *Header
		spf  int
	}{
		{
			"mpeg1 layer3 128k joint stereo",
			[]byte{0xff, 0xfb, 0x90, 0x64},
			&Header{
				Version:       Mp10,
				Layer:         L3,
				BitrateIndex:  9,
				Bitrate:       128,
				SampleRate:    44100,
				ChannelMode:   JointStereo,
				ModeExtension: 2,
			},
			1152,
		},
		{
			"mpeg2 layer3 mono",
			[]byte{0xff, 0xf3, 0x44, 0xc0},
			&Header{
				Version:      Mp20,
				Layer:        L3,
				BitrateIndex: 4,
				Bitrate:      32,
				SampleRate:   24000,
				ChannelMode:  Mono,
			},
			576,
		},
		{
			"mpeg1 layer2 stereo with crc",
			[]byte{0xff, 0xfc, 0xc4, 0x00},
			&Header{
				Version:      Mp10,
				Layer:        L2,
				Protected:    true,
				BitrateIndex: 12,
				Bitrate:      256,
				SampleRate:   48000,
				ChannelMode:  Stereo,
			},
			1152,
		},
		{
			"free bitrate and reserved rate pass through",
			[]byte{0xff, 0xfb, 0x0c, 0x00},
			&Header{
				Version:     Mp10,
				Layer:       L3,
				Bitrate:     0,
				SampleRate:  0,
				ChannelMode: Stereo,
			},
			1152,
		},
	} {
		t.Run(ca.name, func(t *testing.T) {
			h, err := Parse(ca.byts)
			require.NoError(t, err)
			require.Equal(t, ca.h, h)
			require.Equal(t, ca.spf, h.SamplesPerFrame())
		})
	}
}

func TestParseErrors(t *testing.T) {
	_, err := Parse([]byte{0xff, 0xfb, 0x90})
	require.ErrorIs(t, err, ErrDataInvalid)

	_, err = Parse([]byte{0xfe, 0xfb, 0x90, 0x64})
	require.ErrorIs(t, err, ErrSyncWordMismatch)
	require.ErrorIs(t, err, av.ErrMalformed)

	// version '01'
	_, err = Parse([]byte{0xff, 0xeb, 0x90, 0x64})
	require.ErrorIs(t, err, ErrReserved)

	// layer '00'
	_, err = Parse([]byte{0xff, 0xf9, 0x90, 0x64})
	require.ErrorIs(t, err, ErrReserved)
}
