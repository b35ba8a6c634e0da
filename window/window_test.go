package window

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datagate-io/datagate/message"
)

func msgAt(v int64) *message.Message {
	m := message.New()
	m.Set("v", message.Int(v))
	return m
}

func at(ms int64) time.Time {
	return time.UnixMilli(ms)
}

func values(b *message.Batch) []int64 {
	var out []int64
	for _, m := range b.Messages() {
		v, _ := m.Get("v")
		i, _ := v.AsInt()
		out = append(out, i)
	}
	return out
}

func TestTumblingWindowBoundary(t *testing.T) {
	e, err := New(Config{Policy: PolicyTumbling, Interval: time.Second})
	require.NoError(t, err)

	require.Empty(t, e.Add(msgAt(1), at(100)))
	require.Empty(t, e.Add(msgAt(2), at(400)))
	require.Empty(t, e.Add(msgAt(3), at(900)))

	// The message at t=1050 belongs to the next span; the first span is
	// already due and closes before the new one opens.
	closed := e.Add(msgAt(4), at(1050))
	require.Len(t, closed, 1)
	assert.Equal(t, []int64{1, 2, 3}, values(closed[0]))

	start, _ := closed[0].MetaGet("window_start")
	end, _ := closed[0].MetaGet("window_end")
	assert.Equal(t, message.Int(0), start)
	assert.Equal(t, message.Int(1000), end)

	closed = e.Flush(at(2000))
	require.Len(t, closed, 1)
	assert.Equal(t, []int64{4}, values(closed[0]))
}

func TestTumblingFlushBeforeDeadlineKeepsSpanOpen(t *testing.T) {
	e, err := New(Config{Policy: PolicyTumbling, Interval: time.Second})
	require.NoError(t, err)

	e.Add(msgAt(1), at(100))
	assert.Empty(t, e.Flush(at(999)))
	assert.Equal(t, 1, e.OpenSpans())

	closed := e.Flush(at(1000))
	require.Len(t, closed, 1)
	assert.Equal(t, 0, e.OpenSpans())
}

func TestTumblingNextDeadline(t *testing.T) {
	e, err := New(Config{Policy: PolicyTumbling, Interval: time.Second})
	require.NoError(t, err)

	_, ok := e.NextDeadline()
	assert.False(t, ok, "no open span, no deadline")

	e.Add(msgAt(1), at(300))
	d, ok := e.NextDeadline()
	require.True(t, ok)
	assert.Equal(t, at(1000), d)
}

func TestHoppingOverlappingSpans(t *testing.T) {
	// Length 1000ms, hop 500ms: a message at t=700 belongs to spans
	// [500,1500) and [0,1000).
	e, err := New(Config{Policy: PolicyHopping, Interval: time.Second, Hop: 500 * time.Millisecond})
	require.NoError(t, err)

	e.Add(msgAt(1), at(700))
	assert.Equal(t, 2, e.OpenSpans())

	// The arrival at t=1200 is past [0,1000)'s deadline, so that span
	// closes on the add; the message itself lands in [500,1500) and
	// [1000,2000).
	closed := e.Add(msgAt(2), at(1200))
	require.Len(t, closed, 1)
	assert.Equal(t, []int64{1}, values(closed[0]))

	closed = e.Flush(at(1500))
	require.Len(t, closed, 1)
	assert.Equal(t, []int64{1, 2}, values(closed[0]))

	closed = e.Flush(at(3000))
	require.Len(t, closed, 1)
	assert.Equal(t, []int64{2}, values(closed[0]))
}

func TestSessionClosesOnInactivity(t *testing.T) {
	e, err := New(Config{Policy: PolicySession, Timeout: 500 * time.Millisecond})
	require.NoError(t, err)

	e.Add(msgAt(1), at(0))
	e.Add(msgAt(2), at(400)) // keeps the session alive past t=500

	assert.Empty(t, e.Flush(at(800)))

	closed := e.Flush(at(900))
	require.Len(t, closed, 1)
	assert.Equal(t, []int64{1, 2}, values(closed[0]))
}

func TestSessionMaxDurationWinsOverActivity(t *testing.T) {
	e, err := New(Config{Policy: PolicySession, Timeout: 500 * time.Millisecond, Max: time.Second})
	require.NoError(t, err)

	e.Add(msgAt(1), at(0))
	e.Add(msgAt(2), at(400))
	e.Add(msgAt(3), at(800))

	d, ok := e.NextDeadline()
	require.True(t, ok)
	assert.Equal(t, at(1000), d, "max caps the inactivity deadline")

	// A message arriving after the cap closes the session first and
	// starts a fresh one.
	closed := e.Add(msgAt(4), at(1100))
	require.Len(t, closed, 1)
	assert.Equal(t, []int64{1, 2, 3}, values(closed[0]))
	assert.Equal(t, 1, e.OpenSpans())
}

func TestCountClosesOnThreshold(t *testing.T) {
	e, err := New(Config{Policy: PolicyCount, Count: 3})
	require.NoError(t, err)

	require.Empty(t, e.Add(msgAt(1), at(0)))
	require.Empty(t, e.Add(msgAt(2), at(10)))

	closed := e.Add(msgAt(3), at(20))
	require.Len(t, closed, 1)
	assert.Equal(t, []int64{1, 2, 3}, values(closed[0]))

	_, ok := e.NextDeadline()
	assert.False(t, ok, "count windows close on add, never by timer")
}

func TestDrainEmitsOpenSpans(t *testing.T) {
	e, err := New(Config{Policy: PolicyCount, Count: 10})
	require.NoError(t, err)

	e.Add(msgAt(1), at(0))
	e.Add(msgAt(2), at(10))

	closed := e.Drain()
	require.Len(t, closed, 1)
	assert.Equal(t, []int64{1, 2}, values(closed[0]))
	assert.Equal(t, 0, e.OpenSpans())
	assert.Empty(t, e.Drain())
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		ok   bool
	}{
		{"tumbling ok", Config{Policy: PolicyTumbling, Interval: time.Second}, true},
		{"tumbling zero interval", Config{Policy: PolicyTumbling}, false},
		{"hopping ok", Config{Policy: PolicyHopping, Interval: time.Second, Hop: 500 * time.Millisecond}, true},
		{"hop longer than interval", Config{Policy: PolicyHopping, Interval: time.Second, Hop: 2 * time.Second}, false},
		{"session ok", Config{Policy: PolicySession, Timeout: time.Second}, true},
		{"session max below timeout", Config{Policy: PolicySession, Timeout: time.Second, Max: 100 * time.Millisecond}, false},
		{"count ok", Config{Policy: PolicyCount, Count: 5}, true},
		{"count zero", Config{Policy: PolicyCount}, false},
		{"unknown policy", Config{Policy: "sliding"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}
