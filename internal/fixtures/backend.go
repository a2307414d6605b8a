package fixtures

import (
	"context"
	"io/ioutil"
	"net"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MockBackend implements pencil.Backend with overridable functions.
type MockBackend struct {
	TB testing.TB

	FnName func() string
	FnSend func(ctx context.Context, payload []byte) error
}

func (m *MockBackend) Name() string {
	if m.FnName != nil {
		return m.FnName()
	}
	return "mock"
}

func (m *MockBackend) Send(ctx context.Context, payload []byte) error {
	if m.FnSend != nil {
		return m.FnSend(ctx, payload)
	}
	assert.Fail(m.TB, "Backend.Send must not be called")
	return nil
}

// CapturingBackend records every payload it is asked to send, failing while an error is set.
type CapturingBackend struct {
	mu       sync.Mutex
	payloads []string
	err      error
}

func (c *CapturingBackend) Name() string {
	return "capturing"
}

func (c *CapturingBackend) Send(ctx context.Context, payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.payloads = append(c.payloads, string(payload))
	return nil
}

// SetError makes all further sends fail with err, or succeed if err is nil.
func (c *CapturingBackend) SetError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.err = err
}

// Payloads returns the successfully sent payloads in order.
func (c *CapturingBackend) Payloads() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.payloads...)
}

// TCPSink is a TCP server that collects everything written to each accepted connection.
type TCPSink struct {
	Addr string

	l        net.Listener
	wg       sync.WaitGroup
	mu       sync.Mutex
	received []string
}

// NewTCPSink listens on a random local port.  It is closed when the test finishes.
func NewTCPSink(tb testing.TB) *TCPSink {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(tb, err)
	s := &TCPSink{
		Addr: l.Addr().String(),
		l:    l,
	}
	s.wg.Add(1)
	go s.accept()
	tb.Cleanup(s.Close)
	return s
}

func (s *TCPSink) accept() {
	defer s.wg.Done()
	for {
		c, err := s.l.Accept()
		if err != nil {
			return
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer c.Close()
			data, _ := ioutil.ReadAll(c)
			s.mu.Lock()
			s.received = append(s.received, string(data))
			s.mu.Unlock()
		}()
	}
}

// Received returns the data of each completed connection, in completion order.
func (s *TCPSink) Received() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.received...)
}

// Close stops accepting and waits for in-flight connections.
func (s *TCPSink) Close() {
	_ = s.l.Close()
	s.wg.Wait()
}

// ClosedAddress returns a local TCP address nothing is listening on.
func ClosedAddress(tb testing.TB) string {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(tb, err)
	addr := l.Addr().String()
	require.NoError(tb, l.Close())
	return addr
}
