// Package fabric implements the routing fabric between sources, rules
// and sinks: broadcast fan-out where every subscriber sees every batch,
// each at its own pace behind a bounded drop-oldest queue, so a slow
// rule can never apply backpressure to the source that feeds it.
package fabric

import (
	"context"
	"sync"

	"github.com/datagate-io/datagate/errors"
	"github.com/datagate-io/datagate/message"
)

// ErrSubscriptionClosed is returned by Next once a subscription has been
// cancelled and its queue drained.
var ErrSubscriptionClosed = errors.New("subscription closed")

// DefaultQueueCap bounds each subscriber's queue when no explicit
// capacity is configured. The original broadcast channels used the same
// depth.
const DefaultQueueCap = 16

// Broadcaster is the output side of a source: it publishes every batch
// to all current subscribers independently. Publishing never blocks; a
// lagging subscriber loses its oldest buffered batches and the drop is
// recorded against that subscriber.
type Broadcaster struct {
	mu       sync.Mutex
	subs     map[*Subscription]struct{}
	queueCap int
	closed   bool

	// onDrop, when set, observes every dropped batch (metrics wiring).
	onDrop func(owner string, dropped int)
}

// NewBroadcaster creates a broadcaster whose subscribers buffer at most
// queueCap batches each. A non-positive capacity uses DefaultQueueCap.
func NewBroadcaster(queueCap int) *Broadcaster {
	if queueCap <= 0 {
		queueCap = DefaultQueueCap
	}
	return &Broadcaster{
		subs:     make(map[*Subscription]struct{}),
		queueCap: queueCap,
	}
}

// OnDrop registers an observer called whenever a subscriber's queue
// overflows and a batch is discarded.
func (b *Broadcaster) OnDrop(fn func(owner string, dropped int)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onDrop = fn
}

// Subscribe registers a new subscriber identified by owner (the rule id)
// and returns its stream handle.
func (b *Broadcaster) Subscribe(owner string) *Subscription {
	sub := &Subscription{
		owner:  owner,
		cap:    b.queueCap,
		notify: make(chan struct{}, 1),
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		sub.close()
		return sub
	}
	b.subs[sub] = struct{}{}
	return sub
}

// Unsubscribe removes the subscriber. Batches already queued for other
// subscribers are unaffected and publishing continues without blocking.
func (b *Broadcaster) Unsubscribe(sub *Subscription) {
	b.mu.Lock()
	delete(b.subs, sub)
	b.mu.Unlock()
	sub.close()
}

// SubscriberCount returns the number of live subscriptions.
func (b *Broadcaster) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Publish fans the batch out to every subscriber. Each subscriber
// receives an independent deep copy, so no two rule tasks ever share
// message state. Returns the number of subscribers reached.
func (b *Broadcaster) Publish(batch *message.Batch) int {
	b.mu.Lock()
	if b.closed || len(b.subs) == 0 {
		b.mu.Unlock()
		return 0
	}
	targets := make([]*Subscription, 0, len(b.subs))
	for sub := range b.subs {
		targets = append(targets, sub)
	}
	onDrop := b.onDrop
	b.mu.Unlock()

	for i, sub := range targets {
		out := batch
		if i < len(targets)-1 {
			out = batch.Clone()
		}
		if dropped := sub.push(out); dropped > 0 && onDrop != nil {
			onDrop(sub.owner, dropped)
		}
	}
	return len(targets)
}

// Close tears the broadcaster down, closing every subscription. Queued
// batches remain readable until drained.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	subs := make([]*Subscription, 0, len(b.subs))
	for sub := range b.subs {
		subs = append(subs, sub)
	}
	b.subs = make(map[*Subscription]struct{})
	b.mu.Unlock()

	for _, sub := range subs {
		sub.close()
	}
}

// Subscription is one subscriber's bounded view of a broadcast stream.
type Subscription struct {
	owner string
	cap   int

	mu      sync.Mutex
	queue   []*message.Batch
	dropped uint64
	closed  bool

	// notify carries at most one pending wakeup; Next re-checks the
	// queue after every receive, so one token is enough.
	notify chan struct{}
}

// Owner returns the subscriber identity given at Subscribe time.
func (s *Subscription) Owner() string { return s.owner }

// Dropped returns how many batches this subscriber has lost to queue
// overflow since subscribing.
func (s *Subscription) Dropped() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

// Pending returns the number of batches waiting to be read.
func (s *Subscription) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// Next blocks until a batch is available, the subscription is closed and
// drained (ErrSubscriptionClosed), or the context is done.
func (s *Subscription) Next(ctx context.Context) (*message.Batch, error) {
	for {
		s.mu.Lock()
		if len(s.queue) > 0 {
			batch := s.queue[0]
			s.queue = s.queue[1:]
			s.mu.Unlock()
			return batch, nil
		}
		closed := s.closed
		s.mu.Unlock()

		if closed {
			return nil, ErrSubscriptionClosed
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-s.notify:
		}
	}
}

// push appends a batch, evicting the oldest entries past capacity.
// Returns the number of batches dropped.
func (s *Subscription) push(batch *message.Batch) int {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return 0
	}
	s.queue = append(s.queue, batch)
	dropped := 0
	for len(s.queue) > s.cap {
		s.queue = s.queue[1:]
		dropped++
	}
	s.dropped += uint64(dropped)
	s.mu.Unlock()

	s.wake()
	return dropped
}

func (s *Subscription) close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()
	s.wake()
}

func (s *Subscription) wake() {
	select {
	case s.notify <- struct{}{}:
	default:
	}
}
