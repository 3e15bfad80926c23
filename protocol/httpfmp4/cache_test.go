package httpfmp4

import (
	"testing"

	"github.com/kokoavailable/flv2fmp4/core"
	"github.com/kokoavailable/flv2fmp4/exchange"
	"github.com/stretchr/testify/require"
)

func frag(b byte, key bool) *core.Segment {
	return &core.Segment{Kind: exchange.SegmentFragment, Keyframe: key, Data: []byte{b}}
}

func TestSegmentCache(t *testing.T) {
	cache := NewSegmentCache()
	cache.SetItem(frag(1, false))
	require.Nil(t, cache.Snapshot())

	cache.SetItem(&core.Segment{Kind: exchange.SegmentInit, Data: []byte{0}})
	require.Equal(t, [][]byte{{0}, {1}}, cache.Snapshot())

	cache.SetItem(frag(2, true))
	cache.SetItem(frag(3, false))
	require.Equal(t, [][]byte{{0}, {2}, {3}}, cache.Snapshot())
	require.Equal(t, 2, cache.Len())
}

func TestSegmentCacheLimit(t *testing.T) {
	cache := NewSegmentCache()
	cache.num = 3
	cache.SetItem(&core.Segment{Kind: exchange.SegmentInit, Data: []byte{0}})
	for i := byte(1); i <= 5; i++ {
		cache.SetItem(frag(i, false))
	}
	require.Equal(t, [][]byte{{0}, {3}, {4}, {5}}, cache.Snapshot())
}
