package av

import (
	"sync"
	"time"
)

// 세션의 활동 시각과 주고받은 바이트 수를 관리한다.
// HTTP 세션(업로드/재생)이 임베드하며, 타임아웃이 지나면 정리 대상이 된다.
type RWBaser struct {
	lock    sync.Mutex    // 여러 고루틴이 동시에 갱신할때 충돌 방지.
	timeout time.Duration // 마지막 활동에서 이 시간이 지나면 세션이 끊긴 것으로 본다.
	PreTime time.Time     // 마지막 활동 시점.
	bytes   uint64        // 지금까지 처리한 바이트
}

func NewRWBaser(duration time.Duration) RWBaser {
	return RWBaser{
		timeout: duration,
		PreTime: time.Now(),
	}
}

// RecBytes 는 처리한 바이트를 더하고 활동 시각을 갱신한다.
func (rw *RWBaser) RecBytes(n int) {
	rw.lock.Lock()
	defer rw.lock.Unlock()
	rw.bytes += uint64(n)
	rw.PreTime = time.Now()
}

func (rw *RWBaser) Bytes() uint64 {
	rw.lock.Lock()
	defer rw.lock.Unlock()
	return rw.bytes
}

func (rw *RWBaser) SetPreTime() {
	rw.lock.Lock()
	rw.PreTime = time.Now()
	rw.lock.Unlock()
}

func (rw *RWBaser) Alive() bool {
	rw.lock.Lock()
	b := !(time.Now().Sub(rw.PreTime) >= rw.timeout)
	rw.lock.Unlock()
	return b
}
