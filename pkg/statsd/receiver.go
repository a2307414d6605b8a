package statsd

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/tilinna/clock"

	"github.com/pencil-metrics/pencil/pkg/stats"
)

// ip packet size is stored in two bytes and that is how big in theory the packet can be.
// In practice it is highly unlikely but still possible to get packets bigger than usual MTU of 1500.
const packetSizeUDP = 0xffff

// ReceiverStats holds statistics for a DatagramReceiver.
type ReceiverStats struct {
	LastPacket       time.Time
	PacketsReceived  uint64
	MessagesReceived uint64
}

// DatagramReceiver reads datagrams from a PacketConn and appends every non-empty line to a MessageBuffer.
// Lines are not parsed here, that happens once per flush in the MetricAggregator.
type DatagramReceiver struct {
	// Counter fields below must be read/written only using atomic instructions.
	// 64-bit fields must be the first fields in the struct to guarantee proper memory alignment.
	// See https://golang.org/pkg/sync/atomic/#pkg-note-BUG
	lastPacket       int64 // When last packet was received. Unix timestamp in nsec.
	packetsReceived  uint64
	messagesReceived uint64

	buffer *MessageBuffer
	logger logrus.FieldLogger
}

// NewDatagramReceiver initialises a new DatagramReceiver.
func NewDatagramReceiver(buffer *MessageBuffer, logger logrus.FieldLogger) *DatagramReceiver {
	return &DatagramReceiver{
		buffer: buffer,
		logger: logger,
	}
}

// GetStats returns current DatagramReceiver stats. Safe for concurrent use.
func (dr *DatagramReceiver) GetStats() ReceiverStats {
	var lastPacket time.Time
	if ns := atomic.LoadInt64(&dr.lastPacket); ns != 0 {
		lastPacket = time.Unix(0, ns)
	}
	return ReceiverStats{
		LastPacket:       lastPacket,
		PacketsReceived:  atomic.LoadUint64(&dr.packetsReceived),
		MessagesReceived: atomic.LoadUint64(&dr.messagesReceived),
	}
}

// Receive accepts incoming datagrams on c until c is closed.  Closing c is the only way to stop it;
// the returned error is nil if that happened after ctx was done.
func (dr *DatagramReceiver) Receive(ctx context.Context, c net.PacketConn) error {
	clck := clock.FromContext(ctx)
	statser := stats.FromContext(ctx)
	buf := make([]byte, packetSizeUDP)
	for {
		// This will error out when the socket is closed.
		nbytes, _, err := c.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			if netErr, ok := err.(net.Error); ok && !netErr.Temporary() {
				return fmt.Errorf("non-temporary error reading from socket: %v", err)
			}
			dr.logger.WithError(err).Warn("Error reading from socket")
			continue
		}
		atomic.AddUint64(&dr.packetsReceived, 1)
		atomic.StoreInt64(&dr.lastPacket, clck.Now().UnixNano())
		n := dr.handlePacket(buf[:nbytes])
		atomic.AddUint64(&dr.messagesReceived, uint64(n))
		statser.Increment("receiver.packets")
		statser.Count("receiver.messages", float64(n))
	}
}

// handlePacket splits msg into lines and buffers them.  It returns the number of lines buffered.
func (dr *DatagramReceiver) handlePacket(msg []byte) int {
	n := 0
	for len(msg) > 0 {
		var line []byte
		// protocol does not require line to end in \n
		if idx := bytes.IndexByte(msg, '\n'); idx == -1 {
			line, msg = msg, nil
		} else {
			line, msg = msg[:idx], msg[idx+1:]
		}
		line = bytes.TrimRight(line, "\r")
		if len(line) == 0 {
			continue
		}
		dr.buffer.Append(string(line))
		n++
	}
	return n
}
