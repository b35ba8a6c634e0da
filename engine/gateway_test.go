package engine

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datagate-io/datagate/errors"
	"github.com/datagate-io/datagate/lifecycle"
	"github.com/datagate-io/datagate/metric"
	"github.com/datagate-io/datagate/rule"
	"github.com/datagate-io/datagate/sink"
	"github.com/datagate-io/datagate/source"
	"github.com/datagate-io/datagate/store"
)

func newGateway(t *testing.T) *Gateway {
	t.Helper()
	return New(Dependencies{Metrics: metric.NewRegistry().Core()})
}

func newPersistentGateway(t *testing.T, path string) *Gateway {
	t.Helper()
	st, err := store.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return New(Dependencies{Metrics: metric.NewRegistry().Core(), Store: st})
}

func srcCfg(id string) source.Config {
	return source.Config{ID: id, Name: id, Adapter: "inproc", Codec: "json"}
}

func snkCfg(id, path string) sink.Config {
	return sink.Config{ID: id, Name: id, Adapter: "file", Codec: "json", Target: path}
}

func ruleDef(id, src, snk string) rule.Definition {
	return rule.Definition{ID: id, Name: id, Sources: []string{src}, Sinks: []string{snk}}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

func TestGatewayResourceCRUD(t *testing.T) {
	g := newGateway(t)
	dir := t.TempDir()

	_, err := g.CreateSource(srcCfg("press"))
	require.NoError(t, err)
	_, err = g.CreateSink(snkCfg("archive", filepath.Join(dir, "out.jsonl")))
	require.NoError(t, err)

	_, err = g.CreateSource(srcCfg("press"))
	assert.ErrorIs(t, err, errors.ErrInvalidConfig)

	_, err = g.CreateSource(source.Config{ID: "bad", Adapter: "no-such-adapter"})
	assert.ErrorIs(t, err, errors.ErrInvalidConfig)

	src, err := g.GetSource("press")
	require.NoError(t, err)
	assert.Equal(t, "press", src.ID())

	_, err = g.GetSource("ghost")
	assert.ErrorIs(t, err, errors.ErrNotFound)
	_, err = g.GetSink("ghost")
	assert.ErrorIs(t, err, errors.ErrNotFound)

	_, err = g.CreateSource(srcCfg("aaa"))
	require.NoError(t, err)
	sources := g.ListSources()
	require.Len(t, sources, 2)
	assert.Equal(t, "aaa", sources[0].ID())
	assert.Equal(t, "press", sources[1].ID())

	require.NoError(t, g.DeleteSource("aaa", time.Second))
	assert.ErrorIs(t, g.DeleteSource("aaa", time.Second), errors.ErrNotFound)
	require.NoError(t, g.DeleteSink("archive", time.Second))
}

func TestGatewayDeleteRefusedWhileBound(t *testing.T) {
	g := newGateway(t)
	dir := t.TempDir()

	_, err := g.CreateSource(srcCfg("press"))
	require.NoError(t, err)
	_, err = g.CreateSink(snkCfg("archive", filepath.Join(dir, "out.jsonl")))
	require.NoError(t, err)
	_, err = g.CreateRule(ruleDef("r1", "press", "archive"))
	require.NoError(t, err)

	assert.ErrorIs(t, g.DeleteSource("press", time.Second), errors.ErrReferencedByRule)
	assert.ErrorIs(t, g.DeleteSink("archive", time.Second), errors.ErrReferencedByRule)

	require.NoError(t, g.DeleteRule("r1", time.Second))
	assert.ErrorIs(t, g.DeleteRule("r1", time.Second), errors.ErrNotFound)

	require.NoError(t, g.DeleteSource("press", time.Second))
	require.NoError(t, g.DeleteSink("archive", time.Second))
}

func TestGatewayStartStopAll(t *testing.T) {
	g := newGateway(t)
	dir := t.TempDir()
	out := filepath.Join(dir, "out.jsonl")

	src, err := g.CreateSource(srcCfg("press"))
	require.NoError(t, err)
	snk, err := g.CreateSink(snkCfg("archive", out))
	require.NoError(t, err)
	r, err := g.CreateRule(ruleDef("r1", "press", "archive"))
	require.NoError(t, err)

	require.NoError(t, g.StartAll(context.Background()))
	assert.Equal(t, lifecycle.StateRunning, src.Lifecycle().Status().State)
	assert.Equal(t, lifecycle.StateRunning, snk.Lifecycle().Status().State)
	assert.Equal(t, lifecycle.StateRunning, r.Lifecycle().Status().State)

	feed := src.Adapter().(*source.InprocAdapter)
	require.NoError(t, feed.Feed([]byte(`{"temp": 21}`)))

	waitFor(t, func() bool {
		data, err := os.ReadFile(out)
		return err == nil && len(data) > 0
	})
	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.JSONEq(t, `{"temp": 21}`, string(data[:len(data)-1]))

	require.NoError(t, g.StopAll(2*time.Second))
	assert.Equal(t, lifecycle.StateStopped, src.Lifecycle().Status().State)
	assert.Equal(t, lifecycle.StateStopped, snk.Lifecycle().Status().State)
	assert.Equal(t, lifecycle.StateStopped, r.Lifecycle().Status().State)

	// Idempotent once everything is down.
	require.NoError(t, g.StopAll(2*time.Second))
}

func TestGatewayPersistenceReload(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "gw.db")

	g := newPersistentGateway(t, dbPath)
	_, err := g.CreateSource(srcCfg("press"))
	require.NoError(t, err)
	_, err = g.CreateSource(srcCfg("oven"))
	require.NoError(t, err)
	_, err = g.CreateSink(snkCfg("archive", filepath.Join(dir, "out.jsonl")))
	require.NoError(t, err)
	_, err = g.CreateRule(ruleDef("r1", "press", "archive"))
	require.NoError(t, err)
	require.NoError(t, g.DeleteSource("oven", time.Second))

	reborn := newPersistentGateway(t, dbPath)
	require.NoError(t, reborn.Load())

	src, err := reborn.GetSource("press")
	require.NoError(t, err)
	assert.Equal(t, "inproc", src.Config().Adapter)

	_, err = reborn.GetSource("oven")
	assert.ErrorIs(t, err, errors.ErrNotFound)

	snk, err := reborn.GetSink("archive")
	require.NoError(t, err)
	assert.Equal(t, "file", snk.Config().Adapter)

	r, err := reborn.Rules().Get("r1")
	require.NoError(t, err)
	assert.Equal(t, []string{"press"}, r.Definition().Sources)

	// The rebuilt rule holds references again, so the binding rules
	// still protect its resources.
	assert.ErrorIs(t, reborn.DeleteSource("press", time.Second), errors.ErrReferencedByRule)
}

func TestGatewayUpdateRulePersists(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "gw.db")

	g := newPersistentGateway(t, dbPath)
	_, err := g.CreateSource(srcCfg("press"))
	require.NoError(t, err)
	_, err = g.CreateSource(srcCfg("oven"))
	require.NoError(t, err)
	_, err = g.CreateSink(snkCfg("archive", filepath.Join(dir, "out.jsonl")))
	require.NoError(t, err)
	_, err = g.CreateRule(ruleDef("r1", "press", "archive"))
	require.NoError(t, err)

	require.NoError(t, g.UpdateRule(ruleDef("r1", "oven", "archive")))

	reborn := newPersistentGateway(t, dbPath)
	require.NoError(t, reborn.Load())
	r, err := reborn.Rules().Get("r1")
	require.NoError(t, err)
	assert.Equal(t, []string{"oven"}, r.Definition().Sources)
}

func TestGatewayLoadWithoutStore(t *testing.T) {
	g := newGateway(t)
	require.NoError(t, g.Load())
	assert.Empty(t, g.ListSources())
	assert.Empty(t, g.ListSinks())
}
