package remux

import (
	"testing"

	"github.com/kokoavailable/flv2fmp4/container/flv"
	"github.com/kokoavailable/flv2fmp4/container/fmp4"
	"github.com/kokoavailable/flv2fmp4/protocol/amf"
	"github.com/stretchr/testify/require"
)

func testMeta(ps ...amf.Property) *flv.MetaData {
	return &flv.MetaData{Properties: ps}
}

func TestContextDefaults(t *testing.T) {
	c := NewContext()
	require.Equal(t, "isom", c.MajorBrand)
	require.Equal(t, uint32(512), c.minorVersion())
	major, compatible := c.brands()
	require.Equal(t, [4]byte{'i', 's', 'o', 'm'}, major)
	require.Equal(t, [][4]byte{
		{'i', 's', 'o', 'm'},
		{'i', 's', 'o', '2'},
		{'a', 'v', 'c', '1'},
		{'m', 'p', '4', '1'},
	}, compatible)
	require.False(t, c.IsConfigured())
	require.Empty(t, c.Tracks())
}

func TestContextConfiguredInAnyOrder(t *testing.T) {
	steps := map[string]func(c *Context){
		"header":   func(c *Context) { c.ParseFlvHeader(flv.Header{HasAudio: true, HasVideo: true}) },
		"metadata": func(c *Context) { c.ParseMetadata(testMeta()) },
		"audio":    func(c *Context) { c.ConfigureAudioMetadata(&fmp4.CodecMPEG1Audio{SampleRate: 44100, ChannelCount: 2}, 44100, 1152) },
		"video":    func(c *Context) { c.ConfigureVideoMetadata(&fmp4.CodecH264{}, 0) },
	}
	for _, order := range [][]string{
		{"header", "metadata", "audio", "video"},
		{"video", "audio", "metadata", "header"},
		{"metadata", "video", "header", "audio"},
		{"audio", "header", "video", "metadata"},
	} {
		c := NewContext()
		for i, name := range order {
			require.False(t, c.IsConfigured(), "before %s", name)
			steps[name](c)
			if i == len(order)-1 {
				require.True(t, c.IsConfigured())
			}
		}
	}
}

func TestContextHeaderWithoutTracks(t *testing.T) {
	c := NewContext()
	c.ParseFlvHeader(flv.Header{HasVideo: true})
	require.True(t, c.IsAudioConfigured())
	require.False(t, c.IsVideoConfigured())

	c.ParseMetadata(nil)
	require.True(t, c.IsMetadataParsed())
	require.False(t, c.IsConfigured())

	c.ConfigureVideoMetadata(&fmp4.CodecH264{}, 30)
	require.True(t, c.IsConfigured())
	require.Len(t, c.Tracks(), 1)
	require.Equal(t, uint32(3000), c.Video.SampleDuration)
}

func TestContextHeaderSentLatch(t *testing.T) {
	c := NewContext()
	require.False(t, c.IsHeaderSent())
	c.SetHeaderSent(false)
	require.False(t, c.IsHeaderSent())
	c.SetHeaderSent(true)
	require.True(t, c.IsHeaderSent())
	c.SetHeaderSent(false)
	require.True(t, c.IsHeaderSent())
}

func TestContextMetadataKeepsPrevious(t *testing.T) {
	c := NewContext()
	c.ParseMetadata(testMeta(
		amf.Property{Key: "duration", Value: amf.Number(12.5)},
		amf.Property{Key: "width", Value: amf.Number(1280)},
		amf.Property{Key: "height", Value: amf.Number(720)},
		amf.Property{Key: "framerate", Value: amf.Number(30)},
		amf.Property{Key: "videocodecid", Value: amf.Number(7)},
	))
	require.Equal(t, uint32(12500), c.Duration)
	require.Equal(t, float64(1280), c.Width)

	c.ParseMetadata(testMeta(
		amf.Property{Key: "width", Value: amf.Number(640)},
		amf.Property{Key: "audiocodecid", Value: amf.Number(10)},
	))
	require.Equal(t, uint32(12500), c.Duration)
	require.Equal(t, float64(640), c.Width)
	require.Equal(t, float64(720), c.Height)
	require.Equal(t, float64(30), c.FPS)
	require.Equal(t, uint8(7), c.VideoCodecID)
	require.Equal(t, uint8(10), c.AudioCodecID)
}

func TestContextBrandsFromMetadata(t *testing.T) {
	c := NewContext()
	c.ParseMetadata(testMeta(
		amf.Property{Key: "major_brand", Value: amf.String("mp42")},
		amf.Property{Key: "minor_version", Value: amf.String("0")},
		amf.Property{Key: "compatible_brands", Value: amf.String("mp42isomavc1")},
	))
	major, compatible := c.brands()
	require.Equal(t, [4]byte{'m', 'p', '4', '2'}, major)
	require.Equal(t, uint32(0), c.minorVersion())
	require.Equal(t, [][4]byte{
		{'m', 'p', '4', '2'},
		{'i', 's', 'o', 'm'},
		{'a', 'v', 'c', '1'},
	}, compatible)

	c.ParseMetadata(testMeta(amf.Property{Key: "minor_version", Value: amf.String("abc")}))
	require.Equal(t, uint32(0), c.minorVersion())
}

func TestContextFrameRate(t *testing.T) {
	c := NewContext()
	c.ConfigureVideoMetadata(&fmp4.CodecH264{}, 0)
	require.Equal(t, uint32(videoTimescale/DefaultFPS), c.Video.SampleDuration)

	c = NewContext()
	c.ParseMetadata(testMeta(amf.Property{Key: "framerate", Value: amf.Number(50)}))
	c.ConfigureVideoMetadata(&fmp4.CodecH264{}, 25)
	require.Equal(t, uint32(1800), c.Video.SampleDuration)
	require.Equal(t, uint32(1), c.Video.SequenceNumber)
}

func TestAlign(t *testing.T) {
	var a align
	// 44.1kHz, 1024 샘플. FLV 는 23, 46, 70 ms 로 반올림해서 싣는다.
	hz := uint64(44100 / 1000)
	for i, ms := range []uint64{0, 23, 46, 70} {
		dts := ms * 44100 / 1000
		a.align(&dts, 1024, hz)
		require.Equal(t, uint64(i)*1024, dts)
	}

	// 큰 점프는 새 기준이 된다.
	dts := uint64(10000 * 44100 / 1000)
	a.align(&dts, 1024, hz)
	require.Equal(t, uint64(10000*44100/1000), dts)
}
