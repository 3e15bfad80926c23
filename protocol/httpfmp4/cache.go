package httpfmp4

import (
	"container/list"
	"sync"

	"github.com/kokoavailable/flv2fmp4/core"
	"github.com/kokoavailable/flv2fmp4/exchange"
)

const (
	// 키프레임이 오지 않는 스트림(오디오 전용 등)에서 보관할 최대 조각 수
	maxCacheNum = 512
)

// 늦게 들어온 플레이어가 바로 재생할 수 있도록 초기화 세그먼트와
// 마지막 비디오 키프레임부터의 조각을 보관한다.
type SegmentCache struct {
	lock sync.RWMutex
	init []byte     // ftyp + moov
	ll   *list.List // moof + mdat, 도착 순서
	num  int
}

func NewSegmentCache() *SegmentCache {
	return &SegmentCache{
		ll:  list.New(),
		num: maxCacheNum,
	}
}

// SetItem 은 세그먼트를 캐시에 넣는다. 키프레임 조각이 오면 이전 조각은 버린다.
func (cache *SegmentCache) SetItem(seg *core.Segment) {
	cache.lock.Lock()
	defer cache.lock.Unlock()

	if seg.Kind == exchange.SegmentInit {
		cache.init = seg.Data
		return
	}
	if seg.Keyframe {
		cache.ll.Init()
	}
	if cache.ll.Len() == cache.num {
		cache.ll.Remove(cache.ll.Front()) // 가장 오래된 조각
	}
	cache.ll.PushBack(seg.Data)
}

// Snapshot 은 지금 보관 중인 세그먼트를 재생 순서대로 돌려준다.
// 초기화 세그먼트가 아직 없으면 nil.
func (cache *SegmentCache) Snapshot() [][]byte {
	cache.lock.RLock()
	defer cache.lock.RUnlock()

	if cache.init == nil {
		return nil
	}
	ret := make([][]byte, 0, cache.ll.Len()+1)
	ret = append(ret, cache.init)
	for e := cache.ll.Front(); e != nil; e = e.Next() {
		ret = append(ret, e.Value.([]byte))
	}
	return ret
}

func (cache *SegmentCache) Len() int {
	cache.lock.RLock()
	defer cache.lock.RUnlock()
	return cache.ll.Len()
}
