package rule

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/datagate-io/datagate/errors"
)

// stopTimeout bounds the task-shutdown wait during update restarts and
// gateway teardown.
const stopTimeout = 5 * time.Second

// Resolver looks up the source and sink resources a rule binds to.
type Resolver interface {
	Source(id string) (Source, error)
	Sink(id string) (Sink, error)
}

// Manager owns the rule set: create, update, start, stop and delete,
// with the reference-ledger bookkeeping against every bound resource.
type Manager struct {
	mu       sync.Mutex
	rules    map[string]*Rule
	resolver Resolver
	deps     Dependencies
}

// NewManager builds an empty manager over a resource resolver.
func NewManager(resolver Resolver, deps Dependencies) *Manager {
	return &Manager{
		rules:    make(map[string]*Rule),
		resolver: resolver,
		deps:     deps,
	}
}

// Create validates the definition, records a passive reference on every
// bound resource and registers the rule stopped. Nothing is left behind
// on failure: resolution happens before the first ledger write.
func (m *Manager) Create(def Definition) (*Rule, error) {
	if err := def.Validate(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.rules[def.ID]; exists {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "Manager", "Create", "rule "+def.ID+" already exists")
	}

	sources, sinks, err := m.resolve(def)
	if err != nil {
		return nil, err
	}

	for _, src := range sources {
		src.Lifecycle().AddRef(def.ID)
	}
	for _, snk := range sinks {
		snk.Lifecycle().AddRef(def.ID)
	}

	r := New(def, sources, sinks, m.deps)
	m.rules[def.ID] = r
	return r, nil
}

// Update swaps a rule's definition. Bindings may change: references on
// resources no longer bound are released, new bindings gain one.
func (m *Manager) Update(def Definition) error {
	if err := def.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.rules[def.ID]
	if !ok {
		return errors.Wrap(errors.ErrNotFound, "Manager", "Update", "rule "+def.ID)
	}

	sources, sinks, err := m.resolve(def)
	if err != nil {
		return err
	}

	old := r.Definition()
	oldSources, oldSinks := r.sources, r.sinks

	// Newly bound resources need their ledger entry before the swap:
	// the restart inside Update activates every binding and activation
	// demands an existing entry. Bindings kept across the update keep
	// their entry untouched.
	oldSrcSet := idSet(old.Sources)
	oldSnkSet := idSet(old.Sinks)
	var added []interface{ DelRef(string) }
	for i, id := range def.Sources {
		if !oldSrcSet[id] {
			sources[i].Lifecycle().AddRef(def.ID)
			added = append(added, sources[i].Lifecycle())
		}
	}
	for i, id := range def.Sinks {
		if !oldSnkSet[id] {
			sinks[i].Lifecycle().AddRef(def.ID)
			added = append(added, sinks[i].Lifecycle())
		}
	}

	wasRunning := r.life.Running()
	if wasRunning {
		if err := r.Stop(stopTimeout); err != nil {
			for _, lc := range added {
				lc.DelRef(def.ID)
			}
			return err
		}
	}
	r.swap(def, sources, sinks)

	// Release the bindings the new definition dropped.
	newSrcSet := idSet(def.Sources)
	newSnkSet := idSet(def.Sinks)
	for i, id := range old.Sources {
		if !newSrcSet[id] {
			oldSources[i].Lifecycle().DelRef(old.ID)
		}
	}
	for i, id := range old.Sinks {
		if !newSnkSet[id] {
			oldSinks[i].Lifecycle().DelRef(old.ID)
		}
	}

	if wasRunning {
		// A failed restart leaves the rule stopped with the new
		// definition and its references in place; the caller retries
		// Start once the fault is resolved.
		return r.Start(context.Background())
	}
	return nil
}

func idSet(ids []string) map[string]bool {
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}

// Start activates a rule.
func (m *Manager) Start(ctx context.Context, id string) error {
	r, err := m.get(id)
	if err != nil {
		return err
	}
	return r.Start(ctx)
}

// Stop deactivates a rule.
func (m *Manager) Stop(id string, timeout time.Duration) error {
	r, err := m.get(id)
	if err != nil {
		return err
	}
	return r.Stop(timeout)
}

// Delete stops the rule if needed, removes its references from every
// bound resource and forgets it.
func (m *Manager) Delete(id string, timeout time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.rules[id]
	if !ok {
		return errors.Wrap(errors.ErrNotFound, "Manager", "Delete", "rule "+id)
	}
	if err := r.Delete(timeout); err != nil {
		return err
	}
	for _, src := range r.sources {
		src.Lifecycle().DelRef(id)
	}
	for _, snk := range r.sinks {
		snk.Lifecycle().DelRef(id)
	}
	delete(m.rules, id)
	return nil
}

// Get returns a rule by id.
func (m *Manager) Get(id string) (*Rule, error) {
	return m.get(id)
}

// List returns every rule, ordered by id.
func (m *Manager) List() []*Rule {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Rule, 0, len(m.rules))
	for _, r := range m.rules {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// StopAll stops every running rule. Used on gateway shutdown, before
// sources and sinks go down, so ledgers never block the resources.
func (m *Manager) StopAll(timeout time.Duration) error {
	var firstErr error
	for _, r := range m.List() {
		if !r.life.Running() {
			continue
		}
		if err := r.Stop(timeout); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (m *Manager) get(id string) (*Rule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rules[id]
	if !ok {
		return nil, errors.Wrap(errors.ErrNotFound, "Manager", "Get", "rule "+id)
	}
	return r, nil
}

func (m *Manager) resolve(def Definition) ([]Source, []Sink, error) {
	sources := make([]Source, 0, len(def.Sources))
	for _, id := range def.Sources {
		src, err := m.resolver.Source(id)
		if err != nil {
			return nil, nil, err
		}
		sources = append(sources, src)
	}
	sinks := make([]Sink, 0, len(def.Sinks))
	for _, id := range def.Sinks {
		snk, err := m.resolver.Sink(id)
		if err != nil {
			return nil, nil, err
		}
		sinks = append(sinks, snk)
	}
	return sources, sinks, nil
}
