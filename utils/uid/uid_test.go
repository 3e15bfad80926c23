package uid

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewId(t *testing.T) {
	a := NewId()
	b := NewId()
	require.Len(t, a, 16)
	require.NotEqual(t, a, b)
}

func TestRandStringRunes(t *testing.T) {
	s := RandStringRunes(48)
	require.Len(t, s, 48)
	require.Regexp(t, "^[a-zA-Z0-9]+$", s)
}
