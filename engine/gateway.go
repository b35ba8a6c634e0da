// Package engine implements the Gateway: the owner of every source,
// sink and rule, their configuration CRUD, persistence and start/stop
// orchestration.
package engine

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/datagate-io/datagate/errors"
	"github.com/datagate-io/datagate/health"
	"github.com/datagate-io/datagate/metric"
	"github.com/datagate-io/datagate/rule"
	"github.com/datagate-io/datagate/sink"
	"github.com/datagate-io/datagate/source"
	"github.com/datagate-io/datagate/store"
)

// Dependencies carries the ambient services shared by every resource
// the gateway creates. Store may be nil for fully in-memory operation.
type Dependencies struct {
	Logger  *slog.Logger
	Metrics *metric.Metrics
	Store   *store.Store
}

// Gateway owns the resource maps and the rule manager. All lookups and
// configuration changes are serialized behind its mutex; data flow
// between running resources never takes it.
type Gateway struct {
	mu      sync.Mutex
	sources map[string]*source.Source
	sinks   map[string]*sink.Sink
	rules   *rule.Manager
	deps    Dependencies
	logger  *slog.Logger
}

// New builds an empty gateway.
func New(deps Dependencies) *Gateway {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	g := &Gateway{
		sources: make(map[string]*source.Source),
		sinks:   make(map[string]*sink.Sink),
		deps:    deps,
		logger:  logger,
	}
	g.rules = rule.NewManager(g, rule.Dependencies{Logger: logger, Metrics: deps.Metrics})
	return g
}

// Source implements rule.Resolver.
func (g *Gateway) Source(id string) (rule.Source, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	src, ok := g.sources[id]
	if !ok {
		return nil, errors.Wrap(errors.ErrNotFound, "Gateway", "Source", id)
	}
	return src, nil
}

// Sink implements rule.Resolver.
func (g *Gateway) Sink(id string) (rule.Sink, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	snk, ok := g.sinks[id]
	if !ok {
		return nil, errors.Wrap(errors.ErrNotFound, "Gateway", "Sink", id)
	}
	return snk, nil
}

// Rules exposes the rule manager.
func (g *Gateway) Rules() *rule.Manager { return g.rules }

// HealthReporter builds a reporter over every resource the gateway
// owns. The listers snapshot live maps, so later CRUD is reflected in
// later reports.
func (g *Gateway) HealthReporter() *health.Reporter {
	rep := health.NewReporter()
	rep.Track("source", func() []health.Resource {
		sources := g.ListSources()
		out := make([]health.Resource, len(sources))
		for i, src := range sources {
			out[i] = src
		}
		return out
	})
	rep.Track("sink", func() []health.Resource {
		sinks := g.ListSinks()
		out := make([]health.Resource, len(sinks))
		for i, snk := range sinks {
			out[i] = snk
		}
		return out
	})
	rep.Track("rule", func() []health.Resource {
		rules := g.rules.List()
		out := make([]health.Resource, len(rules))
		for i, r := range rules {
			out[i] = r
		}
		return out
	})
	return rep
}

// CreateSource validates, registers and persists a source resource.
func (g *Gateway) CreateSource(cfg source.Config) (*source.Source, error) {
	src, err := source.New(cfg, source.Dependencies{Logger: g.logger, Metrics: g.deps.Metrics})
	if err != nil {
		return nil, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if _, exists := g.sources[cfg.ID]; exists {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "Gateway", "CreateSource", "source "+cfg.ID+" already exists")
	}
	if g.deps.Store != nil {
		if err := g.deps.Store.SaveResource(cfg.ID, store.KindSource, cfg); err != nil {
			return nil, err
		}
	}
	g.sources[cfg.ID] = src
	g.logger.Info("source created", "source", cfg.ID, "adapter", cfg.Adapter)
	return src, nil
}

// GetSource returns a source by id.
func (g *Gateway) GetSource(id string) (*source.Source, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	src, ok := g.sources[id]
	if !ok {
		return nil, errors.Wrap(errors.ErrNotFound, "Gateway", "GetSource", id)
	}
	return src, nil
}

// ListSources returns every source, ordered by id.
func (g *Gateway) ListSources() []*source.Source {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]*source.Source, 0, len(g.sources))
	for _, src := range g.sources {
		out = append(out, src)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// DeleteSource removes a source. The resource's own lifecycle
// re-validates its ledger at the moment of action, so a rule created
// between a caller's "can delete" check and this call still wins.
func (g *Gateway) DeleteSource(id string, timeout time.Duration) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	src, ok := g.sources[id]
	if !ok {
		return errors.Wrap(errors.ErrNotFound, "Gateway", "DeleteSource", id)
	}
	if err := src.Delete(timeout); err != nil {
		return err
	}
	if g.deps.Store != nil {
		if err := g.deps.Store.DeleteResource(id); err != nil && !errors.Is(err, errors.ErrNotFound) {
			return err
		}
	}
	delete(g.sources, id)
	g.logger.Info("source deleted", "source", id)
	return nil
}

// CreateSink validates, registers and persists a sink resource.
func (g *Gateway) CreateSink(cfg sink.Config) (*sink.Sink, error) {
	snk, err := sink.New(cfg, sink.Dependencies{Logger: g.logger, Metrics: g.deps.Metrics})
	if err != nil {
		return nil, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if _, exists := g.sinks[cfg.ID]; exists {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "Gateway", "CreateSink", "sink "+cfg.ID+" already exists")
	}
	if g.deps.Store != nil {
		if err := g.deps.Store.SaveResource(cfg.ID, store.KindSink, cfg); err != nil {
			return nil, err
		}
	}
	g.sinks[cfg.ID] = snk
	g.logger.Info("sink created", "sink", cfg.ID, "adapter", cfg.Adapter)
	return snk, nil
}

// GetSink returns a sink by id.
func (g *Gateway) GetSink(id string) (*sink.Sink, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	snk, ok := g.sinks[id]
	if !ok {
		return nil, errors.Wrap(errors.ErrNotFound, "Gateway", "GetSink", id)
	}
	return snk, nil
}

// ListSinks returns every sink, ordered by id.
func (g *Gateway) ListSinks() []*sink.Sink {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]*sink.Sink, 0, len(g.sinks))
	for _, snk := range g.sinks {
		out = append(out, snk)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// DeleteSink removes a sink with the same at-action ledger check as
// DeleteSource.
func (g *Gateway) DeleteSink(id string, timeout time.Duration) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	snk, ok := g.sinks[id]
	if !ok {
		return errors.Wrap(errors.ErrNotFound, "Gateway", "DeleteSink", id)
	}
	if err := snk.Delete(timeout); err != nil {
		return err
	}
	if g.deps.Store != nil {
		if err := g.deps.Store.DeleteResource(id); err != nil && !errors.Is(err, errors.ErrNotFound) {
			return err
		}
	}
	delete(g.sinks, id)
	g.logger.Info("sink deleted", "sink", id)
	return nil
}

// CreateRule validates, registers and persists a rule.
func (g *Gateway) CreateRule(def rule.Definition) (*rule.Rule, error) {
	r, err := g.rules.Create(def)
	if err != nil {
		return nil, err
	}
	if g.deps.Store != nil {
		if err := g.deps.Store.SaveRule(def.ID, def); err != nil {
			g.rules.Delete(def.ID, time.Second)
			return nil, err
		}
	}
	g.logger.Info("rule created", "rule", def.ID)
	return r, nil
}

// UpdateRule swaps a rule's definition and persists it.
func (g *Gateway) UpdateRule(def rule.Definition) error {
	if err := g.rules.Update(def); err != nil {
		return err
	}
	if g.deps.Store != nil {
		return g.deps.Store.SaveRule(def.ID, def)
	}
	return nil
}

// DeleteRule stops and removes a rule and its persisted definition.
func (g *Gateway) DeleteRule(id string, timeout time.Duration) error {
	if err := g.rules.Delete(id, timeout); err != nil {
		return err
	}
	if g.deps.Store != nil {
		if err := g.deps.Store.DeleteRule(id); err != nil && !errors.Is(err, errors.ErrNotFound) {
			return err
		}
	}
	g.logger.Info("rule deleted", "rule", id)
	return nil
}

// Load rebuilds the resource maps from the persisted configuration.
// Nothing is started; the caller decides with StartAll.
func (g *Gateway) Load() error {
	if g.deps.Store == nil {
		return nil
	}

	sourceCfgs, err := store.LoadResources[source.Config](g.deps.Store, store.KindSource)
	if err != nil {
		return err
	}
	sinkCfgs, err := store.LoadResources[sink.Config](g.deps.Store, store.KindSink)
	if err != nil {
		return err
	}
	ruleDefs, err := store.LoadRules[rule.Definition](g.deps.Store)
	if err != nil {
		return err
	}

	g.mu.Lock()
	for id, cfg := range sourceCfgs {
		src, err := source.New(cfg, source.Dependencies{Logger: g.logger, Metrics: g.deps.Metrics})
		if err != nil {
			g.mu.Unlock()
			return errors.Wrap(err, "Gateway", "Load", "rebuild source "+id)
		}
		g.sources[id] = src
	}
	for id, cfg := range sinkCfgs {
		snk, err := sink.New(cfg, sink.Dependencies{Logger: g.logger, Metrics: g.deps.Metrics})
		if err != nil {
			g.mu.Unlock()
			return errors.Wrap(err, "Gateway", "Load", "rebuild sink "+id)
		}
		g.sinks[id] = snk
	}
	g.mu.Unlock()

	// Rules resolve their bindings through the gateway, so the maps
	// must be populated (and the mutex free) before creating them.
	ids := make([]string, 0, len(ruleDefs))
	for id := range ruleDefs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if _, err := g.rules.Create(ruleDefs[id]); err != nil {
			return errors.Wrap(err, "Gateway", "Load", "rebuild rule "+id)
		}
	}
	g.logger.Info("configuration loaded",
		"sources", len(sourceCfgs), "sinks", len(sinkCfgs), "rules", len(ruleDefs))
	return nil
}

// StartAll starts every sink and source concurrently, then every rule.
// Resources come up before the rules that reference them so no early
// batch meets a closed inbox.
func (g *Gateway) StartAll(ctx context.Context) error {
	var eg errgroup.Group
	for _, snk := range g.ListSinks() {
		eg.Go(func() error { return snk.Start(ctx) })
	}
	for _, src := range g.ListSources() {
		eg.Go(func() error { return src.Start(ctx) })
	}
	if err := eg.Wait(); err != nil {
		return err
	}
	for _, r := range g.rules.List() {
		if err := r.Start(ctx); err != nil {
			return err
		}
	}
	return nil
}

// StopAll stops every rule first, releasing the active references, then
// every source and sink concurrently.
func (g *Gateway) StopAll(timeout time.Duration) error {
	firstErr := g.rules.StopAll(timeout)

	var eg errgroup.Group
	for _, src := range g.ListSources() {
		eg.Go(func() error {
			err := src.Stop(timeout)
			if errors.Is(err, errors.ErrAlreadyStopped) {
				return nil
			}
			return err
		})
	}
	for _, snk := range g.ListSinks() {
		eg.Go(func() error {
			err := snk.Stop(timeout)
			if errors.Is(err, errors.ErrAlreadyStopped) {
				return nil
			}
			return err
		})
	}
	if err := eg.Wait(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
