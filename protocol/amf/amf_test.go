package amf

import (
	"bytes"
	"testing"

	"github.com/kokoavailable/flv2fmp4/utils/pio"
	"github.com/stretchr/testify/require"
)

func decodeBytes(t *testing.T, b []byte) (Value, *pio.Queue) {
	t.Helper()
	q := pio.NewQueue(b)
	v, err := Decode(q)
	require.NoError(t, err)
	return v, q
}

func TestDecodeScalars(t *testing.T) {
	for _, ca := range []struct {
		name string
		byts []byte
		val  Value
	}{
		{
			"number",
			[]byte{0x00, 0x40, 0x59, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00},
			Number(100),
		},
		{
			"boolean",
			[]byte{0x01, 0x01},
			Boolean(true),
		},
		{
			"string",
			[]byte{0x02, 0x00, 0x03, 'a', 'b', 'c'},
			String("abc"),
		},
		{
			"long string",
			[]byte{0x0c, 0x00, 0x00, 0x00, 0x02, 'h', 'i'},
			LongString("hi"),
		},
		{
			"date",
			[]byte{0x0b, 0x40, 0x59, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0xff, 0xfe},
			Date{Time: 100, Offset: -2},
		},
		{
			"reference",
			[]byte{0x07, 0x01, 0x02},
			Reference(0x0102),
		},
		{
			"null",
			[]byte{0x05},
			Null{},
		},
		{
			"undefined",
			[]byte{0x06},
			Undefined{},
		},
		{
			"unknown marker",
			[]byte{0x11},
			NotImplemented{Type: 0x11},
		},
	} {
		t.Run(ca.name, func(t *testing.T) {
			v, q := decodeBytes(t, ca.byts)
			require.Equal(t, ca.val, v)
			require.Equal(t, 0, q.Len())
		})
	}
}

func TestObjectKeepsOrderAndTerminator(t *testing.T) {
	byts := []byte{
		0x03,
		0x00, 0x01, 'b', 0x01, 0x00,
		0x00, 0x01, 'a', 0x02, 0x00, 0x01, 'x',
		0x00, 0x00, 0x09,
		0xaa, // trailing byte belongs to the caller
	}
	v, q := decodeBytes(t, byts)

	obj, ok := v.(Object)
	require.True(t, ok)
	require.Equal(t, Properties{
		{Key: "b", Value: Boolean(false)},
		{Key: "a", Value: String("x")},
		{Key: "", Value: ObjectEnd{}},
	}, obj.Properties)
	require.Equal(t, 1, q.Len())

	s, ok := obj.String("a")
	require.True(t, ok)
	require.Equal(t, "x", s)
}

func TestECMAArrayStopsAtTerminator(t *testing.T) {
	byts := []byte{
		0x08, 0x00, 0x00, 0x00, 0x05, // declares 5 entries
		0x00, 0x08, 'd', 'u', 'r', 'a', 't', 'i', 'o', 'n',
		0x00, 0x40, 0x24, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
		0x00, 0x00, 0x09,
	}
	v, q := decodeBytes(t, byts)

	arr := v.(ECMAArray)
	require.Equal(t, uint32(5), arr.Length)
	require.Len(t, arr.Properties, 2)
	d, ok := arr.Number("duration")
	require.True(t, ok)
	require.Equal(t, 10.0, d)
	require.Equal(t, 0, q.Len())
}

func TestECMAArrayStopsAtCount(t *testing.T) {
	byts := []byte{
		0x08, 0x00, 0x00, 0x00, 0x01,
		0x00, 0x01, 'w', 0x00, 0x40, 0x94, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
		0x00, 0x00, 0x09,
	}
	v, q := decodeBytes(t, byts)

	arr := v.(ECMAArray)
	require.Len(t, arr.Properties, 1)
	w, _ := arr.Number("w")
	require.Equal(t, 1280.0, w)
	// terminator left over
	require.Equal(t, 3, q.Len())
}

func TestStrictArray(t *testing.T) {
	byts := []byte{
		0x0a, 0x00, 0x00, 0x00, 0x02,
		0x01, 0x01,
		0x05,
	}
	v, _ := decodeBytes(t, byts)
	require.Equal(t, StrictArray{Boolean(true), Null{}}, v)
}

func TestDecodeErrors(t *testing.T) {
	t.Run("invalid utf8", func(t *testing.T) {
		_, err := Decode(pio.NewQueue([]byte{0x02, 0x00, 0x02, 0xff, 0xfe}))
		require.ErrorIs(t, err, ErrInvalidString)
	})

	t.Run("short", func(t *testing.T) {
		_, err := Decode(pio.NewQueue([]byte{0x00, 0x40}))
		require.ErrorIs(t, err, pio.ErrShortBuffer)
	})

	t.Run("sub parser marker check", func(t *testing.T) {
		_, err := decodeNumber(pio.NewQueue([]byte{0x01, 0x00}))
		require.ErrorIs(t, err, ErrInvalidTypeMarker)
	})

	t.Run("too deep", func(t *testing.T) {
		var byts []byte
		for i := 0; i < maxDepth+2; i++ {
			byts = append(byts, 0x03, 0x00, 0x01, 'k')
		}
		_, err := Decode(pio.NewQueue(byts))
		require.ErrorIs(t, err, ErrTooDeep)
	})
}

func TestEncodeDecode(t *testing.T) {
	body, err := MetaData(Properties{
		{Key: "width", Value: Number(640)},
		{Key: "height", Value: Number(360)},
		{Key: "encoder", Value: String("test")},
		{Key: "stereo", Value: Boolean(true)},
	})
	require.NoError(t, err)

	q := pio.NewQueue(body)
	name, err := Decode(q)
	require.NoError(t, err)
	require.Equal(t, String("onMetaData"), name)

	v, err := Decode(q)
	require.NoError(t, err)
	ps, ok := PropertiesOf(v)
	require.True(t, ok)

	w, _ := ps.Number("width")
	require.Equal(t, 640.0, w)
	enc, _ := ps.String("encoder")
	require.Equal(t, "test", enc)
	st, _ := ps.Bool("stereo")
	require.True(t, st)
}

func TestEncodeUnsupported(t *testing.T) {
	var buf bytes.Buffer
	err := Encode(&buf, NotImplemented{Type: 0x11})
	require.ErrorIs(t, err, ErrUnsupportedValue)
}
