package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "gate.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "log_level: debug\n"))
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "datagate.db", cfg.StorePath)
	assert.Equal(t, ":9090", cfg.MetricsAddr)
	assert.Equal(t, 16, cfg.QueueCap)
	assert.Equal(t, 5*time.Second, cfg.StopTimeout.Std())
	assert.Equal(t, slog.LevelDebug, cfg.SlogLevel())
}

func TestLoadFullConfig(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
log_level: warn
log_format: json
store_path: /var/lib/datagate/gate.db
metrics_addr: ":9100"
queue_cap: 64
stop_timeout: 10s
`))
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/datagate/gate.db", cfg.StorePath)
	assert.Equal(t, 64, cfg.QueueCap)
	assert.Equal(t, 10*time.Second, cfg.StopTimeout.Std())
}

func TestLoadRejectsBadValues(t *testing.T) {
	_, err := Load(writeConfig(t, "log_level: loud\n"))
	require.Error(t, err)

	_, err = Load(writeConfig(t, "queue_cap: -1\n"))
	require.Error(t, err)

	_, err = Load(writeConfig(t, "not: [valid: yaml\n"))
	require.Error(t, err)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestSafeConfigSwap(t *testing.T) {
	sc := NewSafeConfig(Default())
	assert.Equal(t, "info", sc.Get().LogLevel)

	next := Default()
	next.LogLevel = "error"
	require.NoError(t, sc.Update(next))
	assert.Equal(t, "error", sc.Get().LogLevel)

	bad := Default()
	bad.QueueCap = 0
	require.Error(t, sc.Update(bad))
	assert.Equal(t, "error", sc.Get().LogLevel, "failed update leaves the old config live")
}
