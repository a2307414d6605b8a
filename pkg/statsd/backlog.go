package statsd

import (
	"bytes"
	"sync"
)

// Backlog holds rendered reports that have not been delivered yet, oldest first.  Only the flusher
// appends and releases, so no Append can land between a Snapshot and its Release.  Other goroutines
// may read the sizes or Clear at any time; a Release after a Clear finds nothing left to remove.
type Backlog struct {
	maxBatches int // 0 means unbounded

	mu      sync.Mutex
	batches [][]byte
	size    int
	dropped uint64
}

// NewBacklog creates a Backlog.  When maxBatches is positive, appending beyond it drops the oldest batch.
func NewBacklog(maxBatches int) *Backlog {
	return &Backlog{
		maxBatches: maxBatches,
	}
}

// Append adds a batch to the end of the backlog and returns the number of batches dropped to make room.
func (b *Backlog) Append(batch []byte) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.batches = append(b.batches, batch)
	b.size += len(batch)
	dropped := 0
	for b.maxBatches > 0 && len(b.batches) > b.maxBatches {
		b.size -= len(b.batches[0])
		b.batches[0] = nil
		b.batches = b.batches[1:]
		dropped++
	}
	b.dropped += uint64(dropped)
	return dropped
}

// Snapshot returns the whole backlog as a single newline terminated payload, and the number of batches
// it covers.  Pass that number to Release once the payload is delivered.
func (b *Backlog) Snapshot() ([]byte, int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.batches) == 0 {
		return nil, 0
	}
	var buf bytes.Buffer
	buf.Grow(b.size + len(b.batches))
	for _, batch := range b.batches {
		buf.Write(batch)
		buf.WriteByte('\n')
	}
	return buf.Bytes(), len(b.batches)
}

// Release removes the n oldest batches.
func (b *Backlog) Release(n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if n > len(b.batches) {
		n = len(b.batches)
	}
	for i := 0; i < n; i++ {
		b.size -= len(b.batches[i])
		b.batches[i] = nil
	}
	b.batches = b.batches[n:]
	if len(b.batches) == 0 {
		b.batches = nil
	}
}

// Clear removes every batch and returns how many there were.
func (b *Backlog) Clear() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := len(b.batches)
	b.batches = nil
	b.size = 0
	return n
}

// Len returns the number of pending batches.
func (b *Backlog) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.batches)
}

// Size returns the number of bytes pending, excluding separators.
func (b *Backlog) Size() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.size
}

// Dropped returns the number of batches dropped because the backlog was full.
func (b *Backlog) Dropped() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}
