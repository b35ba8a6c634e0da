package rule

import (
	"context"
	"log/slog"
	"time"

	"github.com/datagate-io/datagate/errors"
	"github.com/datagate-io/datagate/fabric"
	"github.com/datagate-io/datagate/lifecycle"
	"github.com/datagate-io/datagate/message"
	"github.com/datagate-io/datagate/metric"
)

// Source is the slice of a source resource a rule needs: its broadcast
// output and its reference ledger.
type Source interface {
	Subscribe(owner string) *fabric.Subscription
	Unsubscribe(sub *fabric.Subscription)
	Lifecycle() *lifecycle.Lifecycle
}

// Sink is the slice of a sink resource a rule needs: its bounded input
// and its reference ledger.
type Sink interface {
	Push(b *message.Batch) int
	Lifecycle() *lifecycle.Lifecycle
}

// Dependencies carries the ambient services injected into a rule.
type Dependencies struct {
	Logger  *slog.Logger
	Metrics *metric.Metrics
}

// Rule is one running processing unit. The task owns the compiled
// program exclusively; the window engine inside it needs no locking.
type Rule struct {
	def     Definition
	prog    *program
	life    *lifecycle.Lifecycle
	sources []Source
	sinks   []Sink
	subs    []*fabric.Subscription
	inbox   *fabric.Inbox
	logger  *slog.Logger
	metrics *metric.Metrics

	cancel context.CancelFunc
	done   chan struct{}
}

// New builds a rule over already-resolved source and sink handles. The
// definition must have passed Validate.
func New(def Definition, sources []Source, sinks []Sink, deps Dependencies) *Rule {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Rule{
		def:     def,
		life:    lifecycle.New("rule/"+def.ID, logger.With("rule", def.ID)),
		sources: sources,
		sinks:   sinks,
		logger:  logger.With("rule", def.ID),
		metrics: deps.Metrics,
	}
}

// ID returns the rule id.
func (r *Rule) ID() string { return r.def.ID }

// Definition returns the rule's current definition.
func (r *Rule) Definition() Definition { return r.def }

// Lifecycle exposes the rule's state machine.
func (r *Rule) Lifecycle() *lifecycle.Lifecycle { return r.life }

// Start compiles the definition, marks every bound resource's
// reference active, subscribes to the sources and spawns the task. A
// partial activation rolls back the references it already flipped.
func (r *Rule) Start(ctx context.Context) error {
	return r.life.Start(ctx, func(context.Context) error {
		prog, err := r.def.compile()
		if err != nil {
			return err
		}

		var activated []*lifecycle.Lifecycle
		rollback := func() {
			for _, lc := range activated {
				lc.DeactivateRef(r.def.ID)
			}
		}
		for _, src := range r.sources {
			if err := src.Lifecycle().ActivateRef(r.def.ID); err != nil {
				rollback()
				return err
			}
			activated = append(activated, src.Lifecycle())
		}
		for _, snk := range r.sinks {
			if err := snk.Lifecycle().ActivateRef(r.def.ID); err != nil {
				rollback()
				return err
			}
			activated = append(activated, snk.Lifecycle())
		}

		r.prog = prog
		r.inbox = fabric.NewInbox(fabric.DefaultQueueCap * len(r.sources))
		r.subs = r.subs[:0]
		for _, src := range r.sources {
			r.subs = append(r.subs, src.Subscribe(r.def.ID))
		}

		runCtx, cancel := context.WithCancel(context.Background())
		r.cancel = cancel
		r.done = make(chan struct{})
		for i, sub := range r.subs {
			go r.pump(runCtx, r.sources[i], sub)
		}
		go r.run(runCtx)

		if r.metrics != nil {
			r.metrics.SetStatus("rule", r.def.ID, metric.StatusRunning)
		}
		return nil
	})
}

// Stop cancels the task, waits for its acknowledgement and releases the
// active references.
func (r *Rule) Stop(timeout time.Duration) error {
	err := r.life.Stop(timeout, r.deactivate)
	if err == nil && r.metrics != nil {
		r.metrics.SetStatus("rule", r.def.ID, metric.StatusStopped)
	}
	return err
}

// Delete stops the rule if needed.
func (r *Rule) Delete(timeout time.Duration) error {
	return r.life.Delete(timeout, r.deactivate)
}

// swap adopts a new definition and bindings. Only legal while stopped;
// the manager stops and restarts around it.
func (r *Rule) swap(def Definition, sources []Source, sinks []Sink) {
	r.def = def
	r.sources = sources
	r.sinks = sinks
}

func (r *Rule) deactivate(timeout time.Duration) error {
	if r.cancel != nil {
		r.cancel()
		r.cancel = nil
	}
	if r.done != nil {
		select {
		case <-r.done:
		case <-time.After(timeout):
			return errors.WrapFatal(errors.ErrInternalTimeout, "Rule", "Stop", "task did not acknowledge shutdown")
		}
		r.done = nil
	}
	for i, sub := range r.subs {
		r.sources[i].Unsubscribe(sub)
	}
	r.subs = r.subs[:0]
	if r.inbox != nil {
		r.inbox.Close()
		r.inbox = nil
	}
	for _, src := range r.sources {
		src.Lifecycle().DeactivateRef(r.def.ID)
	}
	for _, snk := range r.sinks {
		snk.Lifecycle().DeactivateRef(r.def.ID)
	}
	return nil
}

// pump forwards one subscription into the rule's merged inbox. Batches
// from different sources interleave in arrival order; order within one
// source edge is preserved.
func (r *Rule) pump(ctx context.Context, _ Source, sub *fabric.Subscription) {
	for {
		b, err := sub.Next(ctx)
		if err != nil {
			return
		}
		r.inbox.Push(b)
	}
}

// run is the rule task. It waits on the merged inbox with a deadline
// borrowed from the window engine, so a window closes on time even
// while no messages arrive.
func (r *Rule) run(ctx context.Context) {
	defer close(r.done)
	for {
		waitCtx := ctx
		var cancel context.CancelFunc
		if r.prog.win != nil {
			if d, ok := r.prog.win.NextDeadline(); ok {
				waitCtx, cancel = context.WithDeadline(ctx, d)
			}
		}

		b, err := r.inbox.Next(waitCtx)
		if cancel != nil {
			cancel()
		}
		if err != nil {
			if ctx.Err() != nil {
				// Shutting down: emit whatever the windows still hold.
				if r.prog.win != nil {
					r.emit(r.prog.win.Drain())
				}
				return
			}
			if r.prog.win == nil {
				// Inbox closed out from under the task.
				return
			}
			// Window deadline fired with no traffic.
			r.emit(r.prog.win.Flush(time.Now()))
			continue
		}
		r.process(b)
	}
}

func (r *Rule) process(b *message.Batch) {
	if !r.prog.chain.Apply(b) {
		if r.metrics != nil {
			r.metrics.BatchesProcessed.WithLabelValues(r.def.ID, "filtered").Inc()
		}
		return
	}
	if r.metrics != nil {
		r.metrics.BatchesProcessed.WithLabelValues(r.def.ID, "passed").Inc()
	}

	if r.prog.win == nil {
		r.forward(b)
		return
	}
	now := time.Now()
	var closed []*message.Batch
	for _, m := range b.Messages() {
		closed = append(closed, r.prog.win.Add(m, now)...)
	}
	r.emit(closed)
}

// emit aggregates each closed window into one output message and
// forwards it.
func (r *Rule) emit(closed []*message.Batch) {
	for _, cb := range closed {
		if r.metrics != nil {
			r.metrics.WindowCloses.WithLabelValues(r.def.ID).Inc()
		}
		out := message.New()
		out.SetName(r.def.Name)
		for _, agg := range r.prog.aggs {
			name, v := agg.Aggregate(cb)
			out.Set(name, v)
		}
		ob := message.FromMessage(out)
		ob.SetName(r.def.Name)
		cb.MetaRange(func(key string, v message.Value) bool {
			ob.MetaSet(key, v)
			return true
		})
		r.forward(ob)
	}
}

// forward hands the batch to every bound sink. All but the last sink
// receive an independent clone so sinks never share mutable state.
func (r *Rule) forward(b *message.Batch) {
	for i, snk := range r.sinks {
		out := b
		if i < len(r.sinks)-1 {
			out = b.Clone()
		}
		snk.Push(out)
	}
}
