// Package window implements the windowing engine that buffers messages
// across batches and emits them as synthetic batches when a window
// closes. An Engine is owned exclusively by its rule task: the task
// calls Add for every message, arms a timer from NextDeadline, and
// calls Flush when the timer fires. There is no internal locking.
package window

import (
	"sort"
	"time"

	"github.com/datagate-io/datagate/errors"
	"github.com/datagate-io/datagate/message"
)

// Policy selects how windows open and close.
type Policy string

const (
	// PolicyTumbling closes fixed-length non-overlapping spans.
	PolicyTumbling Policy = "tumbling"
	// PolicyHopping keeps multiple overlapping spans open at once.
	PolicyHopping Policy = "hopping"
	// PolicySession closes on inactivity or maximum duration.
	PolicySession Policy = "session"
	// PolicyCount closes when the buffer reaches a message threshold.
	PolicyCount Policy = "count"
)

// Config describes one rule's windowing policy.
type Config struct {
	Policy   Policy        `json:"policy" yaml:"policy"`
	Interval time.Duration `json:"interval,omitempty" yaml:"interval,omitempty"`
	Hop      time.Duration `json:"hop,omitempty" yaml:"hop,omitempty"`
	Timeout  time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	Max      time.Duration `json:"max,omitempty" yaml:"max,omitempty"`
	Count    int           `json:"count,omitempty" yaml:"count,omitempty"`
}

// Validate checks the parameters the chosen policy requires.
func (c Config) Validate() error {
	switch c.Policy {
	case PolicyTumbling:
		if c.Interval <= 0 {
			return errors.WrapInvalid(errors.ErrInvalidConfig, "Window", "Validate", "tumbling interval must be positive")
		}
	case PolicyHopping:
		if c.Interval <= 0 {
			return errors.WrapInvalid(errors.ErrInvalidConfig, "Window", "Validate", "hopping interval must be positive")
		}
		if c.Hop <= 0 || c.Hop > c.Interval {
			return errors.WrapInvalid(errors.ErrInvalidConfig, "Window", "Validate", "hop must be positive and no longer than the interval")
		}
	case PolicySession:
		if c.Timeout <= 0 {
			return errors.WrapInvalid(errors.ErrInvalidConfig, "Window", "Validate", "session timeout must be positive")
		}
		if c.Max > 0 && c.Max < c.Timeout {
			return errors.WrapInvalid(errors.ErrInvalidConfig, "Window", "Validate", "session max must be at least the timeout")
		}
	case PolicyCount:
		if c.Count <= 0 {
			return errors.WrapInvalid(errors.ErrInvalidConfig, "Window", "Validate", "count threshold must be positive")
		}
	default:
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Window", "Validate", "unknown policy "+string(c.Policy))
	}
	return nil
}

// span is one open window. Time policies track the span bounds; count
// and session spans track activity instead.
type span struct {
	start  time.Time // span begin for tumbling/hopping
	opened time.Time // first-message arrival for session/count
	lastAt time.Time // latest-message arrival, session inactivity base
	buf    []*message.Message
}

// Engine buffers messages into open spans and closes them per policy.
// Closed spans come back as synthetic batches carrying window_start and
// window_end metadata; the caller hands them to its aggregators.
type Engine struct {
	cfg   Config
	spans []*span
}

// New builds an engine after validating the configuration.
func New(cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Engine{cfg: cfg}, nil
}

// Add buffers one message stamped with its arrival time. Spans that
// ended at or before the arrival time close first, so a late-opening
// span never contaminates an aggregate that was already due. The
// returned batches are the spans this call closed, oldest first.
func (e *Engine) Add(m *message.Message, at time.Time) []*message.Batch {
	closed := e.closeDue(at)

	switch e.cfg.Policy {
	case PolicyTumbling:
		start := at.Truncate(e.cfg.Interval)
		e.spanAt(start, at).append(m, at)
	case PolicyHopping:
		// The message lands in every hop-aligned span whose range
		// covers its arrival time.
		first := at.Truncate(e.cfg.Hop)
		for start := first; at.Sub(start) < e.cfg.Interval; start = start.Add(-e.cfg.Hop) {
			e.spanAt(start, at).append(m, at)
		}
	case PolicySession:
		if len(e.spans) == 0 {
			e.spans = append(e.spans, &span{opened: at, lastAt: at})
		}
		e.spans[0].append(m, at)
	case PolicyCount:
		if len(e.spans) == 0 {
			e.spans = append(e.spans, &span{opened: at, lastAt: at})
		}
		s := e.spans[0]
		s.append(m, at)
		if len(s.buf) >= e.cfg.Count {
			closed = append(closed, e.emit(s))
			e.spans = e.spans[:0]
		}
	}
	return closed
}

// Flush closes every span whose deadline has passed. The rule task
// calls it when the NextDeadline timer fires.
func (e *Engine) Flush(now time.Time) []*message.Batch {
	return e.closeDue(now)
}

// Drain closes all open spans regardless of deadline, emitting whatever
// is buffered. Called on rule stop so no messages are silently lost.
func (e *Engine) Drain() []*message.Batch {
	var out []*message.Batch
	for _, s := range e.spans {
		if len(s.buf) > 0 {
			out = append(out, e.emit(s))
		}
	}
	e.spans = e.spans[:0]
	return out
}

// NextDeadline reports the earliest instant at which a span closes.
// Count windows close on Add alone and report no deadline.
func (e *Engine) NextDeadline() (time.Time, bool) {
	var earliest time.Time
	for _, s := range e.spans {
		d := e.deadline(s)
		if d.IsZero() {
			continue
		}
		if earliest.IsZero() || d.Before(earliest) {
			earliest = d
		}
	}
	return earliest, !earliest.IsZero()
}

// OpenSpans reports the number of currently open windows.
func (e *Engine) OpenSpans() int { return len(e.spans) }

// spanAt finds or opens the span starting at the given instant.
func (e *Engine) spanAt(start, at time.Time) *span {
	for _, s := range e.spans {
		if s.start.Equal(start) {
			return s
		}
	}
	s := &span{start: start, opened: at, lastAt: at}
	e.spans = append(e.spans, s)
	return s
}

// closeDue emits every span whose deadline is at or before now,
// oldest deadline first, and keeps the rest open.
func (e *Engine) closeDue(now time.Time) []*message.Batch {
	var due []*span
	kept := e.spans[:0]
	for _, s := range e.spans {
		d := e.deadline(s)
		if !d.IsZero() && !d.After(now) {
			due = append(due, s)
			continue
		}
		kept = append(kept, s)
	}
	e.spans = kept

	sort.Slice(due, func(i, j int) bool {
		return e.deadline(due[i]).Before(e.deadline(due[j]))
	})
	out := make([]*message.Batch, 0, len(due))
	for _, s := range due {
		out = append(out, e.emit(s))
	}
	return out
}

// deadline computes when a span must close. Zero means no time bound.
func (e *Engine) deadline(s *span) time.Time {
	switch e.cfg.Policy {
	case PolicyTumbling, PolicyHopping:
		return s.start.Add(e.cfg.Interval)
	case PolicySession:
		d := s.lastAt.Add(e.cfg.Timeout)
		if e.cfg.Max > 0 {
			if limit := s.opened.Add(e.cfg.Max); limit.Before(d) {
				return limit
			}
		}
		return d
	default:
		return time.Time{}
	}
}

// emit wraps a span's buffer into a synthetic batch with window bounds
// in the batch metadata.
func (e *Engine) emit(s *span) *message.Batch {
	b := message.FromMessages(s.buf)
	switch e.cfg.Policy {
	case PolicyTumbling, PolicyHopping:
		b.MetaSet("window_start", message.Int(s.start.UnixMilli()))
		b.MetaSet("window_end", message.Int(s.start.Add(e.cfg.Interval).UnixMilli()))
	default:
		b.MetaSet("window_start", message.Int(s.opened.UnixMilli()))
		b.MetaSet("window_end", message.Int(s.lastAt.UnixMilli()))
	}
	return b
}

func (s *span) append(m *message.Message, at time.Time) {
	s.buf = append(s.buf, m)
	s.lastAt = at
}
