package bitio

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestByte(t *testing.T) {
	b := Byte(0b10101011)

	require.True(t, b.Bit(0))
	require.False(t, b.Bit(2))
	require.True(t, b.Bit(7))
	require.False(t, b.Bit(6))

	require.Equal(t, uint8(0b10101), b.Range(3, 7))
	require.Equal(t, uint8(0b1011), b.Range(0, 3))
	require.Equal(t, uint8(0b101), b.Range(3, 5))
	require.Equal(t, uint8(0b10101011), b.Range(0, 7))
}

func TestFlvFlags(t *testing.T) {
	// audio + video
	b := Byte(0x05)
	require.True(t, b.Bit(2))
	require.True(t, b.Bit(0))

	// filter bit set on a video tag
	tag := Byte(0x29)
	require.True(t, tag.Bit(5))
	require.Equal(t, uint8(9), tag.Range(0, 4))
}

func TestReader(t *testing.T) {
	r := NewReader([]byte{0xff, 0xfb, 0x90, 0x64})

	v, err := r.ReadBits(11)
	require.NoError(t, err)
	require.Equal(t, uint32(0x7ff), v)

	v, err = r.ReadBits(2)
	require.NoError(t, err)
	require.Equal(t, uint32(3), v)

	v, err = r.ReadBits(2)
	require.NoError(t, err)
	require.Equal(t, uint32(1), v)

	f, err := r.ReadFlag()
	require.NoError(t, err)
	require.True(t, f)

	v, err = r.ReadBits(4)
	require.NoError(t, err)
	require.Equal(t, uint32(9), v)

	require.Equal(t, 12, r.Left())
	require.NoError(t, r.Skip(12))

	_, err = r.ReadBits(1)
	require.ErrorIs(t, err, ErrShortBuffer)
}
