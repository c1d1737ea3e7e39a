// Package config holds the engine's tunable timing profile. Every value
// defaults to the constants proven out against real boards; a YAML file can
// override any of them.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Config holds application configuration
type Config struct {
	LogLevel    string        `yaml:"log_level" default:"info"`
	ScanTimeout time.Duration `yaml:"scan_timeout" default:"10s"`

	Connect  ConnectConfig  `yaml:"connect"`
	Auth     AuthConfig     `yaml:"auth"`
	Liveness LivenessConfig `yaml:"liveness"`
}

// ConnectConfig covers dialing and service discovery. Newer-variant boards
// (GT family) carry slower radios and get more generous budgets.
type ConnectConfig struct {
	Attempts      int           `yaml:"attempts" default:"3"`
	Backoff       time.Duration `yaml:"backoff" default:"500ms"`
	Timeout       time.Duration `yaml:"timeout" default:"10s"`
	NewerAttempts int           `yaml:"newer_attempts" default:"5"`
	NewerBackoff  time.Duration `yaml:"newer_backoff" default:"800ms"`
	NewerTimeout  time.Duration `yaml:"newer_timeout" default:"20s"`

	DiscoveryTimeout      time.Duration `yaml:"discovery_timeout" default:"10s"`
	NewerDiscoveryTimeout time.Duration `yaml:"newer_discovery_timeout" default:"15s"`
}

// AuthConfig covers the unlock sequence.
type AuthConfig struct {
	FirmwareReadRetries      int           `yaml:"firmware_read_retries" default:"3"`
	NewerFirmwareReadRetries int           `yaml:"newer_firmware_read_retries" default:"5"`
	ReadTimeout              time.Duration `yaml:"read_timeout" default:"5s"`
	WriteTimeout             time.Duration `yaml:"write_timeout" default:"5s"`

	ChallengeWait      time.Duration `yaml:"challenge_wait" default:"15s"`
	NewerChallengeWait time.Duration `yaml:"newer_challenge_wait" default:"25s"`

	SettleDelay       time.Duration `yaml:"settle_delay" default:"300ms"`
	SubscribePause    time.Duration `yaml:"subscribe_pause" default:"500ms"`
	InterSubscribeGap time.Duration `yaml:"inter_subscribe_gap" default:"100ms"`
	KeepalivePeriod   time.Duration `yaml:"keepalive_period" default:"20s"`
	NewerKeepalive    time.Duration `yaml:"newer_keepalive_period" default:"30s"`
	SentinelReadDelay time.Duration `yaml:"sentinel_read_delay" default:"250ms"`
}

// LivenessConfig covers the post-unlock heartbeat and watchdog timers.
type LivenessConfig struct {
	HeartbeatPeriod    time.Duration `yaml:"heartbeat_period" default:"15s"`
	WatchdogPeriod     time.Duration `yaml:"watchdog_period" default:"5s"`
	WatchdogGrace      time.Duration `yaml:"watchdog_grace" default:"2s"`
	NewerWatchdogGrace time.Duration `yaml:"newer_watchdog_grace" default:"5s"`
}

// Default returns the configuration with every field at its default value.
func Default() *Config {
	cfg := &Config{}
	defaults.SetDefaults(cfg)
	return cfg
}

// Load reads a YAML file over the defaults. An empty path returns pure
// defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %q: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %q: %w", path, err)
	}
	return cfg, nil
}

// NewLogger creates a logger configured from LogLevel.
func (c *Config) NewLogger() (*logrus.Logger, error) {
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", c.LogLevel, err)
	}

	logger := logrus.New()
	logger.SetLevel(level)
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})
	return logger, nil
}

// ConnectBudget returns the bounded-retry connect budget for the model
// family.
func (c *Config) ConnectBudget(newer bool) (attempts int, backoff, timeout time.Duration) {
	if newer {
		return c.Connect.NewerAttempts, c.Connect.NewerBackoff, c.Connect.NewerTimeout
	}
	return c.Connect.Attempts, c.Connect.Backoff, c.Connect.Timeout
}

// DiscoveryTimeout returns the service-discovery budget for the model family.
func (c *Config) DiscoveryTimeout(newer bool) time.Duration {
	if newer {
		return c.Connect.NewerDiscoveryTimeout
	}
	return c.Connect.DiscoveryTimeout
}

// FirmwareReadRetries returns the firmware-revision read budget for the
// model family.
func (c *Config) FirmwareReadRetries(newer bool) int {
	if newer {
		return c.Auth.NewerFirmwareReadRetries
	}
	return c.Auth.FirmwareReadRetries
}

// ChallengeWait returns the challenge accumulation budget for the flow.
func (c *Config) ChallengeWait(modified bool) time.Duration {
	if modified {
		return c.Auth.NewerChallengeWait
	}
	return c.Auth.ChallengeWait
}

// KeepalivePeriod returns the keepalive re-send period for the model family.
func (c *Config) KeepalivePeriod(newer bool) time.Duration {
	if newer {
		return c.Auth.NewerKeepalive
	}
	return c.Auth.KeepalivePeriod
}

// WatchdogGrace returns the delay before the watchdog starts polling.
func (c *Config) WatchdogGrace(newer bool) time.Duration {
	if newer {
		return c.Liveness.NewerWatchdogGrace
	}
	return c.Liveness.WatchdogGrace
}
