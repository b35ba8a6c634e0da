// Package source implements ingestion resources. A Source owns a
// protocol adapter that produces raw payloads, decodes them through its
// configured codec and broadcasts the resulting batches to every
// subscribed rule.
package source

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/datagate-io/datagate/errors"
	"github.com/datagate-io/datagate/fabric"
	"github.com/datagate-io/datagate/lifecycle"
	"github.com/datagate-io/datagate/message"
	"github.com/datagate-io/datagate/metric"
)

// Config describes one source resource.
type Config struct {
	ID       string         `json:"id" yaml:"id"`
	Name     string         `json:"name" yaml:"name"`
	Adapter  string         `json:"adapter" yaml:"adapter"`
	Codec    string         `json:"codec,omitempty" yaml:"codec,omitempty"`
	QueueCap int            `json:"queue_cap,omitempty" yaml:"queue_cap,omitempty"`
	Args     map[string]any `json:"args,omitempty" yaml:"args,omitempty"`
}

// Dependencies carries the ambient services injected into a source.
type Dependencies struct {
	Logger  *slog.Logger
	Metrics *metric.Metrics
}

// Source is an ingestion resource: lifecycle state, a broadcast output
// and the protocol adapter feeding it.
type Source struct {
	cfg     Config
	codec   message.Codec
	adapter Adapter
	life    *lifecycle.Lifecycle
	out     *fabric.Broadcaster
	metrics *metric.Metrics
	logger  *slog.Logger
	cancel  context.CancelFunc
}

// New builds a source from its configuration. The adapter and codec are
// resolved here so configuration faults surface before the resource is
// ever started.
func New(cfg Config, deps Dependencies) (*Source, error) {
	if cfg.ID == "" {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "Source", "New", "id is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("source", cfg.ID)

	codec, err := message.NewCodec(cfg.Codec)
	if err != nil {
		return nil, err
	}
	adapter, err := NewAdapter(cfg, logger)
	if err != nil {
		return nil, err
	}

	queueCap := cfg.QueueCap
	if queueCap <= 0 {
		queueCap = fabric.DefaultQueueCap
	}
	out := fabric.NewBroadcaster(queueCap)

	s := &Source{
		cfg:     cfg,
		codec:   codec,
		adapter: adapter,
		life:    lifecycle.New("source/"+cfg.ID, logger),
		out:     out,
		metrics: deps.Metrics,
		logger:  logger,
	}
	if s.metrics != nil {
		out.OnDrop(func(owner string, dropped int) {
			s.metrics.BatchesDropped.WithLabelValues(owner).Add(float64(dropped))
		})
		s.life.OnStatusChange(func(healthy bool, errText string) {
			if healthy {
				s.metrics.SetStatus("source", cfg.ID, metric.StatusRunning)
				return
			}
			s.metrics.SetStatus("source", cfg.ID, metric.StatusError)
			s.metrics.ResourceErrors.WithLabelValues("source", cfg.ID).Inc()
		})
	}
	return s, nil
}

// ID returns the resource id.
func (s *Source) ID() string { return s.cfg.ID }

// Config returns the configuration the source was built from.
func (s *Source) Config() Config { return s.cfg }

// Lifecycle exposes the resource's state machine and reference ledger.
func (s *Source) Lifecycle() *lifecycle.Lifecycle { return s.life }

// Adapter exposes the protocol adapter, mainly so the inproc adapter
// can be fed in tests and manual pipelines.
func (s *Source) Adapter() Adapter { return s.adapter }

// Subscribe attaches a new subscriber to the broadcast output.
func (s *Source) Subscribe(owner string) *fabric.Subscription {
	return s.out.Subscribe(owner)
}

// Unsubscribe detaches a subscriber without touching the others.
func (s *Source) Unsubscribe(sub *fabric.Subscription) {
	s.out.Unsubscribe(sub)
}

// Start activates the adapter and begins broadcasting.
func (s *Source) Start(ctx context.Context) error {
	return s.life.Start(ctx, func(context.Context) error {
		runCtx, cancel := context.WithCancel(context.Background())
		if err := s.adapter.Start(runCtx, s.ingest); err != nil {
			cancel()
			return err
		}
		s.cancel = cancel
		if s.metrics != nil {
			s.metrics.SetStatus("source", s.cfg.ID, metric.StatusRunning)
		}
		return nil
	})
}

// Stop deactivates the adapter. Refused while a running rule still
// holds an active reference.
func (s *Source) Stop(timeout time.Duration) error {
	err := s.life.Stop(timeout, s.deactivate)
	if err == nil && s.metrics != nil {
		s.metrics.SetStatus("source", s.cfg.ID, metric.StatusStopped)
	}
	return err
}

// Delete stops the source if needed and closes the broadcast output.
// Refused while any rule still references this source.
func (s *Source) Delete(timeout time.Duration) error {
	if err := s.life.Delete(timeout, s.deactivate); err != nil {
		return err
	}
	s.out.Close()
	return nil
}

func (s *Source) deactivate(timeout time.Duration) error {
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	return s.adapter.Stop(timeout)
}

// ingest decodes one raw payload and broadcasts the batch. Decode
// failures feed the debounced error tracker instead of stopping the
// source; the next good payload flips it back to healthy.
func (s *Source) ingest(payload []byte) {
	b, err := s.codec.Decode(payload)
	if err != nil {
		s.logger.Debug("payload decode failed", "error", err)
		s.life.PutErr(err.Error())
		return
	}
	s.life.PutOK()

	b.SetName(s.cfg.Name)
	b.MetaSet("batch_id", message.String(uuid.NewString()))
	b.MetaSet("source_id", message.String(s.cfg.ID))
	b.MetaSet("ingested_at", message.Int(time.Now().UnixMilli()))
	s.Publish(b)
}

// Publish broadcasts an already-decoded batch to every subscriber.
func (s *Source) Publish(b *message.Batch) {
	if s.metrics != nil {
		s.metrics.BatchesIngested.WithLabelValues(s.cfg.ID).Inc()
	}
	s.out.Publish(b)
}
