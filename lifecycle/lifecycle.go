// Package lifecycle implements the shared state machine, reference-count
// ledger and debounced error tracking attached to every pluggable
// gateway resource (device, source, sink, app, rule).
package lifecycle

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/datagate-io/datagate/errors"
)

// State represents the run state of a resource.
type State int

const (
	// StateStopped indicates the resource is not running
	StateStopped State = iota
	// StateRunning indicates the resource is running
	StateRunning
)

// String returns a string representation of the resource state
func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateRunning:
		return "running"
	default:
		return "unknown"
	}
}

// Status is a point-in-time snapshot of a resource's lifecycle state.
// Healthy is an orthogonal sub-state that only matters while running.
type Status struct {
	State     State
	Healthy   bool
	LastError string
	Refs      []RefEntry
}

// Lifecycle is the owned state object guarding one resource. State
// transitions (start/stop/delete) are serialized end to end behind the
// transition mutex. The data mutex guards state, tracker and ledger and
// is never held across activation or shutdown waits: the resource's own
// task must be able to report PutErr/PutOK while a Stop is waiting for
// its acknowledgement. Both mutexes are scoped to this one resource,
// never shared across resources.
type Lifecycle struct {
	transition sync.Mutex

	mu      sync.Mutex
	name    string
	state   State
	tracker ErrorTracker
	ledger  ReferenceLedger
	logger  *slog.Logger

	// onStatusChange, when set, is invoked on every Healthy<->Error
	// edge so callers can persist resource status. Called without the
	// lifecycle mutex held.
	onStatusChange func(healthy bool, errText string)
}

// New creates a lifecycle for the named resource in the Stopped state.
func New(name string, logger *slog.Logger) *Lifecycle {
	if logger == nil {
		logger = slog.Default()
	}
	return &Lifecycle{name: name, logger: logger}
}

// OnStatusChange registers a callback for Healthy<->Error edges.
func (lc *Lifecycle) OnStatusChange(fn func(healthy bool, errText string)) {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	lc.onStatusChange = fn
}

// Start transitions the resource to Running/Healthy after running the
// resource-specific activation (open connection, subscribe, spawn task).
// Fails with ErrAlreadyRunning when already running; a failed activation
// leaves the resource stopped.
func (lc *Lifecycle) Start(ctx context.Context, activate func(context.Context) error) error {
	lc.transition.Lock()
	defer lc.transition.Unlock()

	lc.mu.Lock()
	if lc.state == StateRunning {
		lc.mu.Unlock()
		return errors.Wrap(errors.ErrAlreadyRunning, "Lifecycle", "Start", lc.name)
	}
	lc.tracker = ErrorTracker{}
	lc.mu.Unlock()

	// Activation runs without the data mutex: connect handlers may
	// already report through PutErr/PutOK.
	if activate != nil {
		if err := activate(ctx); err != nil {
			return errors.Wrap(err, "Lifecycle", "Start", lc.name+" activation")
		}
	}

	lc.mu.Lock()
	lc.state = StateRunning
	lc.mu.Unlock()
	lc.logger.Info("resource started", "resource", lc.name)
	return nil
}

// Stop deactivates a running resource. Fails with ErrAlreadyStopped when
// already stopped and with ErrBusy when a live rule still references the
// resource; the stop is refused, never silently skipped. The deactivate
// hook must wait for task shutdown acknowledgement within the timeout;
// its timeout error (ErrInternalTimeout) is propagated as fatal and the
// resource stays marked running.
func (lc *Lifecycle) Stop(timeout time.Duration, deactivate func(time.Duration) error) error {
	lc.transition.Lock()
	defer lc.transition.Unlock()

	lc.mu.Lock()
	if lc.state == StateStopped {
		lc.mu.Unlock()
		return errors.Wrap(errors.ErrAlreadyStopped, "Lifecycle", "Stop", lc.name)
	}
	if !lc.ledger.CanStop() {
		lc.mu.Unlock()
		return errors.Wrap(errors.ErrBusy, "Lifecycle", "Stop", lc.name)
	}
	lc.mu.Unlock()

	// The data mutex is free while deactivate waits for the task to
	// acknowledge shutdown: an in-flight delivery must be able to finish
	// its PutOK/PutErr before the task parks on the done channel.
	if deactivate != nil {
		if err := deactivate(timeout); err != nil {
			return errors.WrapFatal(err, "Lifecycle", "Stop", lc.name+" deactivation")
		}
	}

	lc.mu.Lock()
	lc.state = StateStopped
	lc.mu.Unlock()
	lc.logger.Info("resource stopped", "resource", lc.name)
	return nil
}

// Delete tears the resource down. Allowed only when the ledger is empty,
// re-validated here at the moment of action; a stale Snapshot from a UI
// check is never trusted. A still-running resource is stopped first.
func (lc *Lifecycle) Delete(timeout time.Duration, deactivate func(time.Duration) error) error {
	lc.transition.Lock()
	defer lc.transition.Unlock()

	lc.mu.Lock()
	if !lc.ledger.CanDelete() {
		lc.mu.Unlock()
		return errors.Wrap(errors.ErrReferencedByRule, "Lifecycle", "Delete", lc.name)
	}
	running := lc.state == StateRunning
	lc.mu.Unlock()

	if running {
		// Same rule as Stop: the task reports status while draining, so
		// the data mutex stays free during the shutdown wait.
		if deactivate != nil {
			if err := deactivate(timeout); err != nil {
				return errors.WrapFatal(err, "Lifecycle", "Delete", lc.name+" deactivation")
			}
		}
		lc.mu.Lock()
		lc.state = StateStopped
		lc.mu.Unlock()
	}

	lc.logger.Info("resource deleted", "resource", lc.name)
	return nil
}

// State returns the current run state.
func (lc *Lifecycle) State() State {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	return lc.state
}

// Running reports whether the resource is currently running.
func (lc *Lifecycle) Running() bool {
	return lc.State() == StateRunning
}

// Status returns a point-in-time snapshot of state, health and ledger.
func (lc *Lifecycle) Status() Status {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	return Status{
		State:     lc.state,
		Healthy:   !lc.tracker.InError(),
		LastError: lc.tracker.LastErr(),
		Refs:      lc.ledger.Snapshot(),
	}
}

// PutErr feeds an error observation through the debounced tracker and
// logs/flags only on the edges the tracker reports.
func (lc *Lifecycle) PutErr(text string) {
	lc.mu.Lock()
	updateText, flip := lc.tracker.PutErr(text)
	cb := lc.onStatusChange
	lc.mu.Unlock()

	if updateText {
		lc.logger.Warn("resource error", "resource", lc.name, "error", text)
	}
	if flip && cb != nil {
		cb(false, text)
	}
}

// PutOK feeds a success observation through the tracker; repeated calls
// while healthy are no-ops.
func (lc *Lifecycle) PutOK() {
	lc.mu.Lock()
	clearText, flip := lc.tracker.PutOK()
	cb := lc.onStatusChange
	lc.mu.Unlock()

	if clearText {
		lc.logger.Info("resource recovered", "resource", lc.name)
	}
	if flip && cb != nil {
		cb(true, "")
	}
}

// AddRef records that a rule references this resource (not yet running).
func (lc *Lifecycle) AddRef(ruleID string) {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	lc.ledger.AddRef(ruleID)
}

// ActivateRef marks the rule's reference live as the rule starts.
func (lc *Lifecycle) ActivateRef(ruleID string) error {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	if !lc.ledger.ActivateRef(ruleID) {
		return errors.Wrap(errors.ErrNotFound, "Lifecycle", "ActivateRef", "reference "+ruleID)
	}
	return nil
}

// DeactivateRef marks the rule's reference inactive as the rule stops.
func (lc *Lifecycle) DeactivateRef(ruleID string) error {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	if !lc.ledger.DeactivateRef(ruleID) {
		return errors.Wrap(errors.ErrNotFound, "Lifecycle", "DeactivateRef", "reference "+ruleID)
	}
	return nil
}

// DelRef removes the rule's reference on rule deletion.
func (lc *Lifecycle) DelRef(ruleID string) {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	lc.ledger.DelRef(ruleID)
}

// CanStop reports whether no live rule depends on the resource. This is
// a snapshot; Stop re-checks under the same mutex before acting.
func (lc *Lifecycle) CanStop() bool {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	return lc.ledger.CanStop()
}

// CanDelete reports whether nothing references the resource.
func (lc *Lifecycle) CanDelete() bool {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	return lc.ledger.CanDelete()
}
