// Package bitio reads bit fields out of FLV flag bytes and codec headers.
package bitio

import (
	"fmt"

	"github.com/kokoavailable/flv2fmp4/av"
)

var (
	ErrShortBuffer = fmt.Errorf("%w: not enough bits", av.ErrMalformed)
)

// Byte 는 한 바이트 안의 비트 필드를 읽는다.
// 인덱스 0 은 최하위 비트이다. 0b10101011 에서 Bit(2) 는 0, Range(3,7) 은 0b10101.
type Byte uint8

// Bit 는 i 번째 비트를 돌려준다.
func (b Byte) Bit(i uint) bool {
	return (uint8(b)>>i)&1 == 1
}

// Range 는 lo..hi (양끝 포함) 비트를 정수로 돌려준다.
func (b Byte) Range(lo, hi uint) uint8 {
	width := hi - lo + 1
	return (uint8(b) >> lo) & uint8((1<<width)-1)
}

// Reader 는 최상위 비트부터 순서대로 읽는 비트 리더이다. 코덱 헤더처럼 필드가 바이트 경계를 넘나들 때 쓴다.
type Reader struct {
	buf []byte
	pos int // 읽은 비트 수
}

func NewReader(b []byte) *Reader {
	return &Reader{buf: b}
}

// Left 는 남은 비트 수.
func (r *Reader) Left() int {
	return len(r.buf)*8 - r.pos
}

func (r *Reader) ReadBits(n int) (uint32, error) {
	if n > 32 || r.Left() < n {
		return 0, ErrShortBuffer
	}
	var v uint32
	for i := 0; i < n; i++ {
		byt := r.buf[r.pos>>3]
		bit := (byt >> (7 - uint(r.pos&7))) & 1
		v = v<<1 | uint32(bit)
		r.pos++
	}
	return v, nil
}

func (r *Reader) ReadFlag() (bool, error) {
	v, err := r.ReadBits(1)
	return v == 1, err
}

func (r *Reader) Skip(n int) error {
	if r.Left() < n {
		return ErrShortBuffer
	}
	r.pos += n
	return nil
}
