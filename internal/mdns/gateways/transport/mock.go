package transport

import (
	"context"
	"net"
	"sync"
)

// SentDatagram records one Send call on a MockTransport.
type SentDatagram struct {
	Data  []byte
	Iface string
	Dst   *net.UDPAddr // nil for multicast
}

// MockTransport is an in-memory Transport for tests: it records every send
// and lets tests inject inbound datagrams into the registered handler.
type MockTransport struct {
	mu      sync.Mutex
	handler Handler
	sent    []SentDatagram
	sendErr error
}

// NewMockTransport returns an empty mock transport.
func NewMockTransport() *MockTransport {
	return &MockTransport{}
}

func (t *MockTransport) Start(_ context.Context, handler Handler) error {
	t.mu.Lock()
	t.handler = handler
	t.mu.Unlock()
	return nil
}

func (t *MockTransport) Stop() error {
	t.mu.Lock()
	t.handler = nil
	t.mu.Unlock()
	return nil
}

func (t *MockTransport) Send(data []byte, iface string, dst *net.UDPAddr) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.sendErr != nil {
		return t.sendErr
	}
	t.sent = append(t.sent, SentDatagram{
		Data:  append([]byte(nil), data...),
		Iface: iface,
		Dst:   dst,
	})
	return nil
}

// FailSends makes subsequent Send calls return err (nil restores success).
func (t *MockTransport) FailSends(err error) {
	t.mu.Lock()
	t.sendErr = err
	t.mu.Unlock()
}

// Sent returns a snapshot of everything sent so far.
func (t *MockTransport) Sent() []SentDatagram {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]SentDatagram, len(t.sent))
	copy(out, t.sent)
	return out
}

// Reset clears the sent log.
func (t *MockTransport) Reset() {
	t.mu.Lock()
	t.sent = nil
	t.mu.Unlock()
}

// Inject delivers an inbound datagram to the registered handler, if any.
func (t *MockTransport) Inject(iface string, src *net.UDPAddr, data []byte) {
	t.mu.Lock()
	handler := t.handler
	t.mu.Unlock()
	if handler != nil {
		handler(iface, src, data)
	}
}

var _ Transport = &MockTransport{}
