// Package sink implements egress resources. A Sink drains its bounded
// inbox on a dedicated task, encodes each batch through its configured
// codec and hands the payload to a protocol writer. Multiple rules may
// push into the same sink; their batches interleave in arrival order.
package sink

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/datagate-io/datagate/errors"
	"github.com/datagate-io/datagate/fabric"
	"github.com/datagate-io/datagate/lifecycle"
	"github.com/datagate-io/datagate/message"
	"github.com/datagate-io/datagate/metric"
	"github.com/datagate-io/datagate/retry"
)

// Config describes one sink resource. Target is the writer-specific
// destination (file path, MQTT topic, NATS subject, Influx measurement)
// and may embed {field} placeholders resolved per batch.
type Config struct {
	ID       string         `json:"id" yaml:"id"`
	Name     string         `json:"name" yaml:"name"`
	Adapter  string         `json:"adapter" yaml:"adapter"`
	Codec    string         `json:"codec,omitempty" yaml:"codec,omitempty"`
	Target   string         `json:"target" yaml:"target"`
	QueueCap int            `json:"queue_cap,omitempty" yaml:"queue_cap,omitempty"`
	Args     map[string]any `json:"args,omitempty" yaml:"args,omitempty"`
}

// Dependencies carries the ambient services injected into a sink.
type Dependencies struct {
	Logger  *slog.Logger
	Metrics *metric.Metrics
}

// Sink is an egress resource: lifecycle state, a bounded inbox fed by
// rules and the writer draining it.
type Sink struct {
	cfg     Config
	codec   message.Codec
	writer  Writer
	life    *lifecycle.Lifecycle
	in      *fabric.Inbox
	metrics *metric.Metrics
	logger  *slog.Logger

	retryCfg retry.Config

	cancel context.CancelFunc
	done   chan struct{}
}

// New builds a sink from its configuration. Writer and codec are
// resolved here so configuration faults surface before start.
func New(cfg Config, deps Dependencies) (*Sink, error) {
	if cfg.ID == "" {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "Sink", "New", "id is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("sink", cfg.ID)

	codec, err := message.NewCodec(cfg.Codec)
	if err != nil {
		return nil, err
	}
	writer, err := NewWriter(cfg, logger)
	if err != nil {
		return nil, err
	}

	queueCap := cfg.QueueCap
	if queueCap <= 0 {
		queueCap = fabric.DefaultQueueCap
	}

	s := &Sink{
		cfg:     cfg,
		codec:   codec,
		writer:  writer,
		life:    lifecycle.New("sink/"+cfg.ID, logger),
		in:      fabric.NewInbox(queueCap),
		metrics: deps.Metrics,
		logger:  logger,

		retryCfg: retry.Config{
			MaxAttempts:  3,
			InitialDelay: 50 * time.Millisecond,
			MaxDelay:     time.Second,
			Multiplier:   2.0,
			AddJitter:    true,
		},
	}
	if s.metrics != nil {
		s.life.OnStatusChange(func(healthy bool, errText string) {
			if healthy {
				s.metrics.SetStatus("sink", cfg.ID, metric.StatusRunning)
				return
			}
			s.metrics.SetStatus("sink", cfg.ID, metric.StatusError)
			s.metrics.ResourceErrors.WithLabelValues("sink", cfg.ID).Inc()
		})
	}
	return s, nil
}

// ID returns the resource id.
func (s *Sink) ID() string { return s.cfg.ID }

// Config returns the configuration the sink was built from.
func (s *Sink) Config() Config { return s.cfg }

// Lifecycle exposes the resource's state machine and reference ledger.
func (s *Sink) Lifecycle() *lifecycle.Lifecycle { return s.life }

// Push queues one batch for delivery. Returns the number of batches
// dropped to make room (the oldest go first when the inbox is full).
func (s *Sink) Push(b *message.Batch) int {
	dropped := s.in.Push(b)
	if dropped > 0 {
		if s.metrics != nil {
			s.metrics.BatchesDropped.WithLabelValues(s.cfg.ID).Add(float64(dropped))
		}
		s.logger.Debug("inbox overflow", "dropped", dropped)
	}
	return dropped
}

// Start connects the writer and spawns the drain task.
func (s *Sink) Start(ctx context.Context) error {
	return s.life.Start(ctx, func(startCtx context.Context) error {
		// The remote end may still be coming up; transient connect
		// failures back off before the start is declared failed.
		err := retry.Do(startCtx, retry.Connect(), func() error {
			return s.writer.Connect(startCtx)
		})
		if err != nil {
			return err
		}
		runCtx, cancel := context.WithCancel(context.Background())
		s.cancel = cancel
		s.done = make(chan struct{})
		go s.drain(runCtx)
		if s.metrics != nil {
			s.metrics.SetStatus("sink", s.cfg.ID, metric.StatusRunning)
		}
		return nil
	})
}

// Stop cancels the drain task, waits for it to acknowledge shutdown and
// closes the writer. A task that misses the timeout is a fatal internal
// error, not a silent leak.
func (s *Sink) Stop(timeout time.Duration) error {
	err := s.life.Stop(timeout, s.deactivate)
	if err == nil && s.metrics != nil {
		s.metrics.SetStatus("sink", s.cfg.ID, metric.StatusStopped)
	}
	return err
}

// Delete stops the sink if needed and closes the inbox. Refused while
// any rule still references this sink.
func (s *Sink) Delete(timeout time.Duration) error {
	if err := s.life.Delete(timeout, s.deactivate); err != nil {
		return err
	}
	s.in.Close()
	return nil
}

func (s *Sink) deactivate(timeout time.Duration) error {
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	if s.done != nil {
		select {
		case <-s.done:
		case <-time.After(timeout):
			return errors.WrapFatal(errors.ErrInternalTimeout, "Sink", "Stop", "drain task did not acknowledge shutdown")
		}
		s.done = nil
	}
	return s.writer.Close(timeout)
}

// drain is the sink task: it waits on the inbox, encodes and writes.
// Write and encode failures feed the debounced error tracker; the next
// successful delivery flips the sink back to healthy.
func (s *Sink) drain(ctx context.Context) {
	defer close(s.done)
	for {
		b, err := s.in.Next(ctx)
		if err != nil {
			return
		}
		if err := s.deliver(ctx, b); err != nil {
			s.logger.Debug("delivery failed", "error", err)
			s.life.PutErr(err.Error())
			continue
		}
		s.life.PutOK()
		if s.metrics != nil {
			s.metrics.BatchesPublished.WithLabelValues(s.cfg.ID).Inc()
		}
	}
}

func (s *Sink) deliver(ctx context.Context, b *message.Batch) error {
	target, err := resolveTarget(s.cfg.Target, b)
	if err != nil {
		return err
	}
	payload, err := s.codec.Encode(b)
	if err != nil {
		return err
	}
	// Transient write failures get a short backoff before the batch is
	// given up on; invalid payloads fail straight away.
	return retry.Do(ctx, s.retryCfg, func() error {
		return s.writer.Write(ctx, target, payload, b)
	})
}

// resolveTarget substitutes {field} placeholders in the configured
// target with values from the batch's first message (falling back to
// batch metadata). A referenced field absent from the message is an
// encode error, not a silently empty segment.
func resolveTarget(target string, b *message.Batch) (string, error) {
	if !strings.Contains(target, "{") {
		return target, nil
	}

	var sb strings.Builder
	rest := target
	for {
		open := strings.Index(rest, "{")
		if open < 0 {
			sb.WriteString(rest)
			return sb.String(), nil
		}
		closing := strings.Index(rest[open:], "}")
		if closing < 0 {
			sb.WriteString(rest)
			return sb.String(), nil
		}
		sb.WriteString(rest[:open])
		field := rest[open+1 : open+closing]
		rest = rest[open+closing+1:]

		v, ok := lookupTemplateField(b, field)
		if !ok {
			return "", errors.Wrap(errors.ErrEncode, "Sink", "resolveTarget", "template field "+field+" is absent")
		}
		s, ok := templateString(v)
		if !ok {
			return "", errors.Wrap(errors.ErrEncode, "Sink", "resolveTarget", "template field "+field+" is not a scalar")
		}
		sb.WriteString(s)
	}
}

func lookupTemplateField(b *message.Batch, field string) (message.Value, bool) {
	if !b.IsEmpty() {
		if v, ok := b.Messages()[0].Get(field); ok {
			return v, true
		}
	}
	return b.MetaGet(field)
}

func templateString(v message.Value) (string, bool) {
	if s, ok := v.AsString(); ok {
		return s, true
	}
	if i, ok := v.AsInt(); ok {
		return strconv.FormatInt(i, 10), true
	}
	if u, ok := v.AsUint(); ok {
		return strconv.FormatUint(u, 10), true
	}
	if f, ok := v.AsFloat(); ok {
		return strconv.FormatFloat(f, 'g', -1, 64), true
	}
	if b, ok := v.AsBool(); ok {
		return strconv.FormatBool(b), true
	}
	return "", false
}
