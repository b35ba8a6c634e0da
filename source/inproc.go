package source

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/datagate-io/datagate/errors"
)

func init() {
	mustRegisterAdapter("inproc", newInprocAdapter)
}

// InprocAdapter is an in-process source fed directly by the embedding
// application or by tests, with no external transport.
type InprocAdapter struct {
	mu   sync.Mutex
	emit func([]byte)
}

func newInprocAdapter(_ Config, _ *slog.Logger) (Adapter, error) {
	return &InprocAdapter{}, nil
}

// Start records the emit callback; there is nothing to connect.
func (a *InprocAdapter) Start(_ context.Context, emit func([]byte)) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.emit = emit
	return nil
}

// Stop detaches the emit callback; later feeds are rejected.
func (a *InprocAdapter) Stop(time.Duration) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.emit = nil
	return nil
}

// Feed hands one raw payload to the owning source. Fails while the
// source is not running.
func (a *InprocAdapter) Feed(payload []byte) error {
	a.mu.Lock()
	emit := a.emit
	a.mu.Unlock()
	if emit == nil {
		return errors.Wrap(errors.ErrNoConnection, "InprocAdapter", "Feed", "source is not running")
	}
	emit(payload)
	return nil
}
