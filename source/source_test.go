package source

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datagate-io/datagate/errors"
	"github.com/datagate-io/datagate/message"
)

func newInprocSource(t *testing.T, id string) (*Source, *InprocAdapter) {
	t.Helper()
	s, err := New(Config{ID: id, Name: "readings", Adapter: "inproc"}, Dependencies{})
	require.NoError(t, err)
	adapter, ok := s.Adapter().(*InprocAdapter)
	require.True(t, ok)
	return s, adapter
}

func TestSourceRejectsUnknownAdapterAndCodec(t *testing.T) {
	_, err := New(Config{ID: "s1", Adapter: "telepathy"}, Dependencies{})
	require.Error(t, err)

	_, err = New(Config{ID: "s1", Adapter: "inproc", Codec: "xml"}, Dependencies{})
	require.Error(t, err)

	_, err = New(Config{Adapter: "inproc"}, Dependencies{})
	require.Error(t, err, "id is required")
}

func TestSourceDecodesAndBroadcasts(t *testing.T) {
	s, adapter := newInprocSource(t, "s1")
	sub := s.Subscribe("rule-a")
	defer s.Unsubscribe(sub)

	require.NoError(t, s.Start(context.Background()))
	defer s.Stop(time.Second)

	require.NoError(t, adapter.Feed([]byte(`{"temp": 21}`)))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	b, err := sub.Next(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, b.Len())

	got, ok := b.Messages()[0].Get("temp")
	require.True(t, ok)
	assert.Equal(t, message.Int(21), got)

	srcID, ok := b.MetaGet("source_id")
	require.True(t, ok)
	assert.Equal(t, message.String("s1"), srcID)
	assert.Equal(t, "readings", b.Name())
}

func TestSourceDebouncesDecodeErrors(t *testing.T) {
	s, adapter := newInprocSource(t, "s1")
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop(time.Second)

	require.NoError(t, adapter.Feed([]byte(`{not json`)))
	status := s.Lifecycle().Status()
	assert.False(t, status.Healthy)
	assert.NotEmpty(t, status.LastError)

	// A good payload flips the source back to healthy.
	require.NoError(t, adapter.Feed([]byte(`{"ok": true}`)))
	assert.True(t, s.Lifecycle().Status().Healthy)
}

func TestSourceLifecycleGuards(t *testing.T) {
	s, adapter := newInprocSource(t, "s1")

	require.ErrorIs(t, adapter.Feed([]byte(`{}`)), errors.ErrNoConnection)

	require.NoError(t, s.Start(context.Background()))
	require.ErrorIs(t, s.Start(context.Background()), errors.ErrAlreadyRunning)

	require.NoError(t, s.Stop(time.Second))
	require.ErrorIs(t, s.Stop(time.Second), errors.ErrAlreadyStopped)
	require.ErrorIs(t, adapter.Feed([]byte(`{}`)), errors.ErrNoConnection)
}

func TestSourceStopRefusedWhileActivelyReferenced(t *testing.T) {
	s, _ := newInprocSource(t, "s1")
	require.NoError(t, s.Start(context.Background()))

	s.Lifecycle().AddRef("r1")
	require.NoError(t, s.Lifecycle().ActivateRef("r1"))
	require.ErrorIs(t, s.Stop(time.Second), errors.ErrBusy)

	require.NoError(t, s.Lifecycle().DeactivateRef("r1"))
	require.NoError(t, s.Stop(time.Second))

	require.ErrorIs(t, s.Delete(time.Second), errors.ErrReferencedByRule)
	s.Lifecycle().DelRef("r1")
	require.NoError(t, s.Delete(time.Second))
}

func TestAdapterTagsIncludeBuiltins(t *testing.T) {
	tags := AdapterTags()
	assert.Contains(t, tags, "inproc")
	assert.Contains(t, tags, "mqtt")
	assert.Contains(t, tags, "nats")
}
