package pio

import (
	"fmt"
	"math"

	"github.com/kokoavailable/flv2fmp4/av"
)

var (
	ErrShortBuffer = fmt.Errorf("%w: short buffer", av.ErrPending)
)

// Queue 는 앞에서부터 소비되는 바이트 큐이다. 커서가 없고, 읽은 바이트는 버려진다.
// 읽기 연산은 필요한 바이트가 모두 있을 때만 소비하며, 부족하면 아무것도 소비하지 않는다.
type Queue struct {
	buf []byte
	// 총 소비한 바이트 수. 디코드 에러가 난 스트림 위치를 알려줄 때 쓴다.
	consumed uint64
}

func NewQueue(b []byte) *Queue {
	return &Queue{buf: b}
}

func (q *Queue) Push(b []byte) {
	q.buf = append(q.buf, b...)
}

func (q *Queue) Len() int {
	return len(q.buf)
}

// Consumed 는 큐가 만들어진 뒤 소비한 바이트 수이다.
func (q *Queue) Consumed() uint64 {
	return q.consumed
}

// 소비하지 않고 앞의 n 바이트를 본다.
func (q *Queue) Peek(n int) ([]byte, error) {
	if n < 0 || len(q.buf) < n {
		return nil, ErrShortBuffer
	}
	return q.buf[:n], nil
}

func (q *Queue) take(n int) ([]byte, error) {
	b, err := q.Peek(n)
	if err != nil {
		return nil, err
	}
	q.buf = q.buf[n:]
	q.consumed += uint64(n)
	if len(q.buf) == 0 {
		q.buf = nil
	}
	return b, nil
}

// n 바이트를 새 슬라이스로 복사해 꺼낸다.
func (q *Queue) Bytes(n int) ([]byte, error) {
	b, err := q.take(n)
	if err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, b)
	return out, nil
}

// n 바이트를 dst 에 복사해 꺼낸다. dst 의 길이는 n 이상이어야 한다.
func (q *Queue) Read(dst []byte) error {
	b, err := q.take(len(dst))
	if err != nil {
		return err
	}
	copy(dst, b)
	return nil
}

func (q *Queue) Skip(n int) error {
	_, err := q.take(n)
	return err
}

func (q *Queue) U8() (uint8, error) {
	b, err := q.take(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (q *Queue) U16BE() (uint16, error) {
	b, err := q.take(2)
	if err != nil {
		return 0, err
	}
	return U16BE(b), nil
}

func (q *Queue) I16BE() (int16, error) {
	b, err := q.take(2)
	if err != nil {
		return 0, err
	}
	return I16BE(b), nil
}

func (q *Queue) U32BE() (uint32, error) {
	b, err := q.take(4)
	if err != nil {
		return 0, err
	}
	return U32BE(b), nil
}

func (q *Queue) F64BE() (float64, error) {
	b, err := q.take(8)
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(U64BE(b)), nil
}

