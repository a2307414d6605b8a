package statsd

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBacklogSnapshotAndRelease(t *testing.T) {
	t.Parallel()
	b := NewBacklog(0)
	payload, n := b.Snapshot()
	assert.Nil(t, payload)
	assert.Zero(t, n)

	assert.Zero(t, b.Append([]byte("a 1 10\nb 2 10")))
	assert.Zero(t, b.Append([]byte("a 3 20")))
	assert.Equal(t, 2, b.Len())
	assert.Equal(t, 19, b.Size())

	payload, n = b.Snapshot()
	assert.Equal(t, "a 1 10\nb 2 10\na 3 20\n", string(payload))
	assert.Equal(t, 2, n)

	// Arrives while the snapshot is being sent.
	b.Append([]byte("c 4 30"))
	b.Release(n)

	payload, n = b.Snapshot()
	assert.Equal(t, "c 4 30\n", string(payload))
	assert.Equal(t, 1, n)
	assert.Equal(t, 6, b.Size())
}

func TestBacklogReleaseMoreThanHeld(t *testing.T) {
	t.Parallel()
	b := NewBacklog(0)
	b.Append([]byte("a 1 10"))
	b.Release(5)
	assert.Zero(t, b.Len())
	assert.Zero(t, b.Size())
}

func TestBacklogDropsOldestWhenFull(t *testing.T) {
	t.Parallel()
	b := NewBacklog(2)
	assert.Zero(t, b.Append([]byte("1")))
	assert.Zero(t, b.Append([]byte("2")))
	assert.Equal(t, 1, b.Append([]byte("3")))
	assert.EqualValues(t, 1, b.Dropped())

	payload, n := b.Snapshot()
	assert.Equal(t, "2\n3\n", string(payload))
	assert.Equal(t, 2, n)
}

func TestBacklogClear(t *testing.T) {
	t.Parallel()
	b := NewBacklog(0)
	b.Append([]byte("a 1 10"))
	b.Append([]byte("b 2 10"))
	assert.Equal(t, 2, b.Clear())
	assert.Zero(t, b.Len())
	assert.Zero(t, b.Size())
}

func TestBacklogReleaseAfterClear(t *testing.T) {
	t.Parallel()
	b := NewBacklog(0)
	b.Append([]byte("a 1 10"))
	_, n := b.Snapshot()
	b.Clear()
	b.Release(n)
	assert.Zero(t, b.Len())

	b.Append([]byte("b 2 20"))
	payload, n := b.Snapshot()
	assert.Equal(t, 1, n)
	assert.Equal(t, "b 2 20\n", string(payload))
}
