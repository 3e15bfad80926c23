package pool

// 디코더는 태그 본문을 끊임없이 잘라낸다.
// 매번 작은 슬라이스를 새로 할당하는 대신, 큰 버퍼를 미리 잡아두고 구간을 잘라서 준다.
// 버퍼가 차면 새 버퍼를 만든다. 이미 나간 슬라이스는 이전 버퍼를 계속 참조하므로 덮어써지지 않는다.

type Pool struct {
	pos int    // 현재 버퍼에서 사용된 위치(오프셋)
	buf []byte // 미리 할당된 고정 크기의 바이트 배열
}

// 메모리 풀 최대크기. 500 kb
const maxpoolsize = 500 * 1024

func (pool *Pool) Get(size int) []byte {
	// 풀보다 큰 요청은 풀을 거치지 않는다.
	if size > maxpoolsize {
		return make([]byte, size)
	}
	if maxpoolsize-pool.pos < size {
		pool.pos = 0
		pool.buf = make([]byte, maxpoolsize)
	}
	b := pool.buf[pool.pos : pool.pos+size : pool.pos+size]
	pool.pos += size
	return b
}

func NewPool() *Pool {
	return &Pool{
		buf: make([]byte, maxpoolsize),
	}
}
