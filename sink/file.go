package sink

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/datagate-io/datagate/errors"
	"github.com/datagate-io/datagate/message"
)

func init() {
	mustRegisterWriter("file", newFileWriter)
}

// fileWriter appends one encoded payload per line to the target path.
// Files are opened lazily per resolved target so templated paths fan
// out to separate files.
type fileWriter struct {
	mu     sync.Mutex
	files  map[string]*os.File
	logger *slog.Logger
}

func newFileWriter(_ Config, logger *slog.Logger) (Writer, error) {
	return &fileWriter{files: make(map[string]*os.File), logger: logger}, nil
}

func (w *fileWriter) Connect(context.Context) error { return nil }

func (w *fileWriter) Write(_ context.Context, target string, payload []byte, _ *message.Batch) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	f, ok := w.files[target]
	if !ok {
		var err error
		f, err = os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return errors.WrapTransient(err, "Sink", "file", "open "+target)
		}
		w.files[target] = f
	}

	if _, err := f.Write(append(payload, '\n')); err != nil {
		// Reopen on the next write rather than wedging on a stale handle.
		f.Close()
		delete(w.files, target)
		return errors.WrapTransient(err, "Sink", "file", "append to "+target)
	}
	return nil
}

func (w *fileWriter) Close(time.Duration) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	var firstErr error
	for target, f := range w.files {
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = errors.Wrap(err, "Sink", "file", "close "+target)
		}
		delete(w.files, target)
	}
	return firstErr
}
