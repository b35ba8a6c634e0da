package fabric

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInboxInterleavesProducers(t *testing.T) {
	in := NewInbox(64)

	var wg sync.WaitGroup
	for p := 0; p < 4; p++ {
		wg.Add(1)
		go func(base int64) {
			defer wg.Done()
			for i := int64(0); i < 8; i++ {
				in.Push(batchWithSeq(base + i))
			}
		}(int64(p) * 100)
	}
	wg.Wait()

	seen := make(map[int64]bool)
	ctx := context.Background()
	for i := 0; i < 32; i++ {
		b, err := in.Next(ctx)
		require.NoError(t, err)
		seen[seqOf(t, b)] = true
	}
	assert.Len(t, seen, 32, "every pushed batch arrives exactly once")
	assert.Equal(t, uint64(0), in.Dropped())
}

func TestInboxDropOldest(t *testing.T) {
	in := NewInbox(2)
	for i := int64(0); i < 5; i++ {
		in.Push(batchWithSeq(i))
	}

	assert.Equal(t, uint64(3), in.Dropped())
	assert.Equal(t, 2, in.Pending())

	ctx := context.Background()
	b, err := in.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), seqOf(t, b))
}

func TestInboxClose(t *testing.T) {
	in := NewInbox(4)
	in.Push(batchWithSeq(1))
	in.Close()

	ctx := context.Background()
	_, err := in.Next(ctx)
	require.NoError(t, err, "queued batches drain after close")
	_, err = in.Next(ctx)
	assert.ErrorIs(t, err, ErrSubscriptionClosed)

	assert.Equal(t, 1, in.Push(batchWithSeq(2)), "pushes after close are dropped")
}
