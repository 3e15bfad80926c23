package av

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRWBaser(t *testing.T) {
	rw := NewRWBaser(50 * time.Millisecond)
	require.True(t, rw.Alive())

	rw.RecBytes(10)
	rw.RecBytes(5)
	require.Equal(t, uint64(15), rw.Bytes())

	time.Sleep(60 * time.Millisecond)
	require.False(t, rw.Alive())
	rw.SetPreTime()
	require.True(t, rw.Alive())
}
