package statsd

import (
	"sync"
)

// MessageBuffer is the hand-off point between the receivers and the flusher.  Append never blocks on a
// flush in progress for longer than the swap of a slice header.
type MessageBuffer struct {
	mu       sync.Mutex
	messages []string
}

// NewMessageBuffer returns an empty MessageBuffer.
func NewMessageBuffer() *MessageBuffer {
	return &MessageBuffer{}
}

// Append adds a raw message to the buffer.
func (mb *MessageBuffer) Append(raw string) {
	mb.mu.Lock()
	mb.messages = append(mb.messages, raw)
	mb.mu.Unlock()
}

// Drain swaps in an empty buffer and returns the previous contents.  A message appended concurrently
// is either in the returned slice or in the next Drain, never both.
func (mb *MessageBuffer) Drain() []string {
	mb.mu.Lock()
	messages := mb.messages
	mb.messages = nil
	mb.mu.Unlock()
	return messages
}

// Snapshot returns a copy of the messages currently buffered.
func (mb *MessageBuffer) Snapshot() []string {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	return append([]string(nil), mb.messages...)
}

// Len returns the number of buffered messages.
func (mb *MessageBuffer) Len() int {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	return len(mb.messages)
}
