package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datagate-io/datagate/errors"
)

type testCfg struct {
	ID      string         `json:"id"`
	Adapter string         `json:"adapter"`
	Args    map[string]any `json:"args,omitempty"`
}

func openTemp(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "gate.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestResourceRoundTrip(t *testing.T) {
	s := openTemp(t)

	cfg := testCfg{ID: "s1", Adapter: "mqtt", Args: map[string]any{"broker": "tcp://localhost:1883"}}
	require.NoError(t, s.SaveResource("s1", KindSource, cfg))
	require.NoError(t, s.SaveResource("k1", KindSink, testCfg{ID: "k1", Adapter: "file"}))

	sources, err := LoadResources[testCfg](s, KindSource)
	require.NoError(t, err)
	require.Len(t, sources, 1)
	assert.Equal(t, "mqtt", sources["s1"].Adapter)
	assert.Equal(t, "tcp://localhost:1883", sources["s1"].Args["broker"])

	sinks, err := LoadResources[testCfg](s, KindSink)
	require.NoError(t, err)
	require.Len(t, sinks, 1)
}

func TestSaveResourceUpserts(t *testing.T) {
	s := openTemp(t)

	require.NoError(t, s.SaveResource("s1", KindSource, testCfg{ID: "s1", Adapter: "inproc"}))
	require.NoError(t, s.SaveResource("s1", KindSource, testCfg{ID: "s1", Adapter: "nats"}))

	sources, err := LoadResources[testCfg](s, KindSource)
	require.NoError(t, err)
	require.Len(t, sources, 1)
	assert.Equal(t, "nats", sources["s1"].Adapter)
}

func TestDeleteResource(t *testing.T) {
	s := openTemp(t)

	require.NoError(t, s.SaveResource("s1", KindSource, testCfg{ID: "s1"}))
	require.NoError(t, s.DeleteResource("s1"))
	require.ErrorIs(t, s.DeleteResource("s1"), errors.ErrNotFound)

	sources, err := LoadResources[testCfg](s, KindSource)
	require.NoError(t, err)
	assert.Empty(t, sources)
}

func TestRuleRoundTrip(t *testing.T) {
	s := openTemp(t)

	type def struct {
		ID      string   `json:"id"`
		Sources []string `json:"sources"`
	}
	require.NoError(t, s.SaveRule("r1", def{ID: "r1", Sources: []string{"s1"}}))

	rules, err := LoadRules[def](s)
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, []string{"s1"}, rules["r1"].Sources)

	require.NoError(t, s.DeleteRule("r1"))
	require.ErrorIs(t, s.DeleteRule("r1"), errors.ErrNotFound)
}
