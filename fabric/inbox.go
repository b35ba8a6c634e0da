package fabric

import (
	"context"
	"sync"

	"github.com/datagate-io/datagate/message"
)

// Inbox is the input side of a sink: a multi-producer queue fed by every
// rule bound to the sink. Batches interleave in arrival order with no
// cross-rule ordering guarantee. Like subscriber queues, the inbox is
// bounded with drop-oldest overflow so a stalled sink transport cannot
// back up into rule tasks.
type Inbox struct {
	cap int

	mu      sync.Mutex
	queue   []*message.Batch
	dropped uint64
	closed  bool

	notify chan struct{}
}

// NewInbox creates an inbox buffering at most queueCap batches. A
// non-positive capacity uses DefaultQueueCap.
func NewInbox(queueCap int) *Inbox {
	if queueCap <= 0 {
		queueCap = DefaultQueueCap
	}
	return &Inbox{
		cap:    queueCap,
		notify: make(chan struct{}, 1),
	}
}

// Push enqueues a batch from a rule task, evicting the oldest entries
// past capacity. Never blocks. Returns the number of batches dropped;
// pushing to a closed inbox drops the batch itself.
func (in *Inbox) Push(batch *message.Batch) int {
	in.mu.Lock()
	if in.closed {
		in.dropped++
		in.mu.Unlock()
		return 1
	}
	in.queue = append(in.queue, batch)
	dropped := 0
	for len(in.queue) > in.cap {
		in.queue = in.queue[1:]
		dropped++
	}
	in.dropped += uint64(dropped)
	in.mu.Unlock()

	in.wake()
	return dropped
}

// Next blocks until a batch is available, the inbox is closed and
// drained (ErrSubscriptionClosed), or the context is done.
func (in *Inbox) Next(ctx context.Context) (*message.Batch, error) {
	for {
		in.mu.Lock()
		if len(in.queue) > 0 {
			batch := in.queue[0]
			in.queue = in.queue[1:]
			in.mu.Unlock()
			return batch, nil
		}
		closed := in.closed
		in.mu.Unlock()

		if closed {
			return nil, ErrSubscriptionClosed
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-in.notify:
		}
	}
}

// Dropped returns how many batches have been lost to overflow or pushes
// after close.
func (in *Inbox) Dropped() uint64 {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.dropped
}

// Pending returns the number of batches waiting to be drained.
func (in *Inbox) Pending() int {
	in.mu.Lock()
	defer in.mu.Unlock()
	return len(in.queue)
}

// Close marks the inbox closed. Queued batches remain readable until
// drained; later pushes are dropped.
func (in *Inbox) Close() {
	in.mu.Lock()
	if in.closed {
		in.mu.Unlock()
		return
	}
	in.closed = true
	in.mu.Unlock()
	in.wake()
}

func (in *Inbox) wake() {
	select {
	case in.notify <- struct{}{}:
	default:
	}
}
