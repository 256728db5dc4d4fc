package config_test

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/serroba/online-docs/internal/config"
	"github.com/stretchr/testify/require"
)

func TestDefault_IsValid(t *testing.T) {
	t.Parallel()

	cfg := config.Default()

	require.NoError(t, cfg.Validate())
	require.Equal(t, 5*time.Second, cfg.Engine.ConflictWindow)
	require.Equal(t, 10, cfg.Engine.ActiveWindowSize)
	require.Equal(t, 5*time.Minute, cfg.Engine.PruneAfter)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  addr: ":9090"
engine:
  conflict_window: 2s
  auto_resolve: true
  min_confidence: 0.75
log_level: debug
`), 0o600))

	cfg, err := config.Load(path)
	require.NoError(t, err)

	require.Equal(t, ":9090", cfg.Server.Addr)
	require.Equal(t, 2*time.Second, cfg.Engine.ConflictWindow)
	require.True(t, cfg.Engine.AutoResolve)
	require.InDelta(t, 0.75, cfg.Engine.MinConfidence, 1e-9)
	require.Equal(t, 10, cfg.Engine.ActiveWindowSize, "unset keys keep defaults")

	level, err := config.ParseLevel(cfg.LogLevel)
	require.NoError(t, err)
	require.Equal(t, slog.LevelDebug, level)
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := config.Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	require.Equal(t, config.Default().Server.Addr, cfg.Server.Addr)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	t.Setenv("OTMERGE_CONFLICT_WINDOW", "750ms")
	t.Setenv("OTMERGE_MIN_CONFIDENCE", "0.9")

	cfg, err := config.Load("")
	require.NoError(t, err)
	require.Equal(t, 750*time.Millisecond, cfg.Engine.ConflictWindow)
	require.InDelta(t, 0.9, cfg.Engine.MinConfidence, 1e-9)
}

func TestLoad_EnvOverridesEveryTunable(t *testing.T) {
	t.Setenv("OTMERGE_ACTIVE_WINDOW_SIZE", "25")
	t.Setenv("OTMERGE_PRUNE_AFTER", "90s")
	t.Setenv("OTMERGE_CLEANUP_INTERVAL", "15s")
	t.Setenv("OTMERGE_NOTIFICATION_BUFFER", "8")
	t.Setenv("OTMERGE_HISTORY_SIZE", "500")
	t.Setenv("OTMERGE_CAPACITY", "32")

	cfg, err := config.Load("")
	require.NoError(t, err)
	require.Equal(t, 25, cfg.Engine.ActiveWindowSize)
	require.Equal(t, 90*time.Second, cfg.Engine.PruneAfter)
	require.Equal(t, 15*time.Second, cfg.Engine.CleanupInterval)
	require.Equal(t, 8, cfg.Engine.NotificationBuffer)
	require.Equal(t, 500, cfg.Relay.HistorySize)
	require.Equal(t, 32, cfg.Relay.Capacity)
}

func TestLoad_RejectsBadValues(t *testing.T) {
	tests := map[string]string{
		"OTMERGE_AUTO_RESOLVE":   "maybe",
		"OTMERGE_PRUNE_AFTER":    "soon",
		"OTMERGE_CAPACITY":       "many",
		"OTMERGE_MIN_CONFIDENCE": "high",
	}

	for key, value := range tests {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, value)

			_, err := config.Load("")
			require.ErrorContains(t, err, key)
		})
	}
}

func TestValidate_CollectsErrors(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	cfg.Engine.MinConfidence = 2
	cfg.Engine.ActiveWindowSize = 0
	cfg.LogLevel = "loud"

	err := cfg.Validate()
	require.ErrorContains(t, err, "min_confidence")
	require.ErrorContains(t, err, "active_window_size")
	require.ErrorContains(t, err, "loud")
}
