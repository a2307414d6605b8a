// Package fakesocket provides in-memory net.PacketConn implementations for tests and benchmarks.
package fakesocket

import (
	"bytes"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"sync"
	"time"
)

// FakeMetric is a fake metric.
var FakeMetric = []byte("foo.bar.baz:2|c")

// FakeAddr is a fake net.Addr
var FakeAddr = &net.UDPAddr{
	IP:   net.IPv4(127, 0, 0, 1),
	Port: 8181,
}

// FakePacketConn is a fake net.PacketConn that hands out queued packets in order, and blocks once the
// queue is empty until more are queued or it is closed.
type FakePacketConn struct {
	mu      sync.Mutex
	cond    *sync.Cond
	packets [][]byte
	closed  bool
}

// NewFakePacketConn returns a FakePacketConn with packets already queued.
func NewFakePacketConn(packets ...[]byte) *FakePacketConn {
	fpc := &FakePacketConn{
		packets: packets,
	}
	fpc.cond = sync.NewCond(&fpc.mu)
	return fpc
}

// Queue adds a packet to be returned by ReadFrom.
func (fpc *FakePacketConn) Queue(packet []byte) {
	fpc.mu.Lock()
	defer fpc.mu.Unlock()
	fpc.packets = append(fpc.packets, packet)
	fpc.cond.Broadcast()
}

// Pending returns the number of packets not read yet.
func (fpc *FakePacketConn) Pending() int {
	fpc.mu.Lock()
	defer fpc.mu.Unlock()
	return len(fpc.packets)
}

// ReadFrom copies the next queued packet into b.
func (fpc *FakePacketConn) ReadFrom(b []byte) (int, net.Addr, error) {
	fpc.mu.Lock()
	defer fpc.mu.Unlock()
	for len(fpc.packets) == 0 && !fpc.closed {
		fpc.cond.Wait()
	}
	if fpc.closed {
		return 0, nil, net.ErrClosed
	}
	n := copy(b, fpc.packets[0])
	fpc.packets = fpc.packets[1:]
	return n, FakeAddr, nil
}

// WriteTo dummy impl.
func (fpc *FakePacketConn) WriteTo(b []byte, addr net.Addr) (int, error) {
	return len(b), nil
}

// Close unblocks readers, which then fail with net.ErrClosed.
func (fpc *FakePacketConn) Close() error {
	fpc.mu.Lock()
	defer fpc.mu.Unlock()
	if fpc.closed {
		return net.ErrClosed
	}
	fpc.closed = true
	fpc.cond.Broadcast()
	return nil
}

// LocalAddr dummy impl.
func (fpc *FakePacketConn) LocalAddr() net.Addr { return FakeAddr }

// SetDeadline dummy impl.
func (fpc *FakePacketConn) SetDeadline(t time.Time) error { return nil }

// SetReadDeadline dummy impl.
func (fpc *FakePacketConn) SetReadDeadline(t time.Time) error { return nil }

// SetWriteDeadline dummy impl.
func (fpc *FakePacketConn) SetWriteDeadline(t time.Time) error { return nil }

// FakeRandomPacketConn is a fake net.PacketConn providing random fake metrics as fast as they are read.
type FakeRandomPacketConn struct {
	mu     sync.Mutex
	closed bool
}

// ReadFrom generates random metric and writes in into b.
func (frpc *FakeRandomPacketConn) ReadFrom(b []byte) (int, net.Addr, error) {
	frpc.mu.Lock()
	closed := frpc.closed
	frpc.mu.Unlock()
	if closed {
		return 0, nil, net.ErrClosed
	}

	num := rand.Int31n(10000) // Randomize metric name
	buf := new(bytes.Buffer)
	switch rand.Int31n(3) {
	case 0: // Counter
		fmt.Fprintf(buf, "pencil.tester.counter_%d:%f|c\n", num, rand.Float64()*100) // #nosec
	case 1: // Gauge
		fmt.Fprintf(buf, "pencil.tester.gauge_%d:%f|g\n", num, rand.Float64()*100) // #nosec
	case 2: // Timer
		for i := 0; i < 10; i++ {
			fmt.Fprintf(buf, "pencil.tester.timer_%d:%f|ms\n", num, rand.Float64()*100) // #nosec
		}
	default:
		panic(errors.New("unreachable"))
	}
	n := copy(b, buf.Bytes())
	return n, FakeAddr, nil
}

// WriteTo dummy impl.
func (frpc *FakeRandomPacketConn) WriteTo(b []byte, addr net.Addr) (int, error) {
	return len(b), nil
}

// Close makes further reads fail with net.ErrClosed.
func (frpc *FakeRandomPacketConn) Close() error {
	frpc.mu.Lock()
	defer frpc.mu.Unlock()
	frpc.closed = true
	return nil
}

// LocalAddr dummy impl.
func (frpc *FakeRandomPacketConn) LocalAddr() net.Addr { return FakeAddr }

// SetDeadline dummy impl.
func (frpc *FakeRandomPacketConn) SetDeadline(t time.Time) error { return nil }

// SetReadDeadline dummy impl.
func (frpc *FakeRandomPacketConn) SetReadDeadline(t time.Time) error { return nil }

// SetWriteDeadline dummy impl.
func (frpc *FakeRandomPacketConn) SetWriteDeadline(t time.Time) error { return nil }

// Factory is a replacement for net.ListenPacket() that produces instances of FakeRandomPacketConn.
func Factory() (net.PacketConn, error) {
	return &FakeRandomPacketConn{}, nil
}
