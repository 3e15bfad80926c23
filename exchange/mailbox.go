package exchange

import (
	"sync"
)

// Mailbox 는 워커의 수신 채널이다. 닫힌 뒤의 전달은 패닉 대신 에러가 된다.
type Mailbox struct {
	C <-chan Packed

	c      chan Packed
	mu     sync.RWMutex
	closed bool
}

func NewMailbox(size int) *Mailbox {
	c := make(chan Packed, size)
	return &Mailbox{
		C: c,
		c: c,
	}
}

// offer 는 막히지 않는 전달. 가득 차 있으면 false.
func (m *Mailbox) offer(p Packed) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return false, ErrDestinationClosed
	}
	select {
	case m.c <- p:
		return true, nil
	default:
		return false, nil
	}
}

func (m *Mailbox) Closed() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.closed
}

// Close 는 여러 번 불러도 된다.
func (m *Mailbox) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed {
		m.closed = true
		close(m.c)
	}
}
