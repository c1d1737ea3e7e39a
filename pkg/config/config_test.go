package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 10*time.Second, cfg.ScanTimeout)

	attempts, backoff, timeout := cfg.ConnectBudget(false)
	assert.Equal(t, 3, attempts)
	assert.Equal(t, 500*time.Millisecond, backoff)
	assert.Equal(t, 10*time.Second, timeout)

	attempts, backoff, timeout = cfg.ConnectBudget(true)
	assert.Equal(t, 5, attempts)
	assert.Equal(t, 800*time.Millisecond, backoff)
	assert.Equal(t, 20*time.Second, timeout)

	assert.Equal(t, 10*time.Second, cfg.DiscoveryTimeout(false))
	assert.Equal(t, 15*time.Second, cfg.DiscoveryTimeout(true))
	assert.Equal(t, 3, cfg.FirmwareReadRetries(false))
	assert.Equal(t, 5, cfg.FirmwareReadRetries(true))
	assert.Equal(t, 15*time.Second, cfg.ChallengeWait(false))
	assert.Equal(t, 25*time.Second, cfg.ChallengeWait(true))
	assert.Equal(t, 20*time.Second, cfg.KeepalivePeriod(false))
	assert.Equal(t, 30*time.Second, cfg.KeepalivePeriod(true))
	assert.Equal(t, 15*time.Second, cfg.Liveness.HeartbeatPeriod)
	assert.Equal(t, 5*time.Second, cfg.Liveness.WatchdogPeriod)
	assert.Equal(t, 2*time.Second, cfg.WatchdogGrace(false))
	assert.Equal(t, 5*time.Second, cfg.WatchdogGrace(true))
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "boardlink.yaml")
	content := `
log_level: debug
connect:
  attempts: 7
  timeout: 30s
liveness:
  heartbeat_period: 45s
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	// Overridden values.
	assert.Equal(t, "debug", cfg.LogLevel)
	attempts, _, timeout := cfg.ConnectBudget(false)
	assert.Equal(t, 7, attempts)
	assert.Equal(t, 30*time.Second, timeout)
	assert.Equal(t, 45*time.Second, cfg.Liveness.HeartbeatPeriod)

	// Untouched values keep their defaults.
	assert.Equal(t, 500*time.Millisecond, cfg.Connect.Backoff)
	assert.Equal(t, 5*time.Second, cfg.Liveness.WatchdogPeriod)
}

func TestLoadEmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log_level: [unclosed"), 0o644))
	_, err := Load(path)
	assert.Error(t, err)
}

func TestNewLogger(t *testing.T) {
	cfg := Default()
	cfg.LogLevel = "warn"
	logger, err := cfg.NewLogger()
	require.NoError(t, err)
	assert.Equal(t, logrus.WarnLevel, logger.GetLevel())

	cfg.LogLevel = "nonsense"
	_, err = cfg.NewLogger()
	assert.Error(t, err)
}
