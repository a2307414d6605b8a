package statsd

import (
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageBufferDrain(t *testing.T) {
	t.Parallel()
	mb := NewMessageBuffer()
	assert.Nil(t, mb.Drain())

	mb.Append("a:1|c")
	mb.Append("b:2|g")
	assert.Equal(t, 2, mb.Len())
	assert.Equal(t, []string{"a:1|c", "b:2|g"}, mb.Snapshot())
	assert.Equal(t, []string{"a:1|c", "b:2|g"}, mb.Drain())
	assert.Zero(t, mb.Len())
	assert.Empty(t, mb.Drain())
}

func TestMessageBufferSnapshotIsACopy(t *testing.T) {
	t.Parallel()
	mb := NewMessageBuffer()
	mb.Append("a:1|c")
	snapshot := mb.Snapshot()
	snapshot[0] = "changed"
	assert.Equal(t, []string{"a:1|c"}, mb.Drain())
}

func TestMessageBufferConcurrentAppendAndDrain(t *testing.T) {
	t.Parallel()
	const writers = 8
	const perWriter = 1000

	mb := NewMessageBuffer()
	var wg sync.WaitGroup
	wg.Add(writers)
	for w := 0; w < writers; w++ {
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				mb.Append(strconv.Itoa(w) + ":" + strconv.Itoa(i) + "|c")
			}
		}(w)
	}

	seen := map[string]int{}
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	for finished := false; !finished; {
		select {
		case <-done:
			finished = true
		default:
		}
		for _, m := range mb.Drain() {
			seen[m]++
		}
	}

	require.Len(t, seen, writers*perWriter)
	for m, n := range seen {
		assert.Equal(t, 1, n, m)
	}
}
