package channel

import (
	"context"
	"sync"

	"github.com/x4pay/x402-ble-go"
)

// Memory is an in-process Channel. Writes are recorded and handed to an
// optional peer; Notify delivers bytes to the registered callback.
type Memory struct {
	mu       sync.Mutex
	writes   [][]byte
	notify   func([]byte)
	peer     func([]byte)
	writeErr error
	failNext int
	nextErr  error
	closed   bool
}

// NewMemory returns an open in-memory channel.
func NewMemory() *Memory {
	return &Memory{}
}

// Write implements Channel.
func (m *Memory) Write(ctx context.Context, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return x402.ErrChannelClosed
	}
	if m.writeErr != nil {
		err := m.writeErr
		m.mu.Unlock()
		return err
	}
	if m.failNext > 0 {
		m.failNext--
		err := m.nextErr
		m.mu.Unlock()
		return err
	}
	buf := append([]byte(nil), data...)
	m.writes = append(m.writes, buf)
	peer := m.peer
	m.mu.Unlock()

	if peer != nil {
		peer(buf)
	}
	return nil
}

// OnNotify implements Channel.
func (m *Memory) OnNotify(callback func([]byte)) {
	m.mu.Lock()
	m.notify = callback
	m.mu.Unlock()
}

// Disconnect implements Channel.
func (m *Memory) Disconnect() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

// Closed reports whether Disconnect was called.
func (m *Memory) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// Notify delivers a notification as if the peripheral had sent it. It is
// dropped after Disconnect.
func (m *Memory) Notify(data []byte) {
	m.mu.Lock()
	cb := m.notify
	closed := m.closed
	m.mu.Unlock()

	if cb != nil && !closed {
		cb(data)
	}
}

// Attach sets the peer that receives every successful write.
func (m *Memory) Attach(peer func([]byte)) {
	m.mu.Lock()
	m.peer = peer
	m.mu.Unlock()
}

// FailWrites makes subsequent writes return err; nil restores them.
func (m *Memory) FailWrites(err error) {
	m.mu.Lock()
	m.writeErr = err
	m.mu.Unlock()
}

// FailNext makes only the next n writes return err.
func (m *Memory) FailNext(n int, err error) {
	m.mu.Lock()
	m.failNext = n
	m.nextErr = err
	m.mu.Unlock()
}

// Writes returns a copy of everything written so far.
func (m *Memory) Writes() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([][]byte, len(m.writes))
	for i, w := range m.writes {
		out[i] = append([]byte(nil), w...)
	}
	return out
}
