package main

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/floatdeck/boardlink/pkg/config"
)

// loadConfig reads the --config file if given, otherwise returns defaults.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		return config.Default(), nil
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config %s: %w", path, err)
	}
	return cfg, nil
}

// configureLogger creates a logger with the level from --log-level.
// Without the flag the command stays quiet.
func configureLogger(cmd *cobra.Command) (*logrus.Logger, error) {
	// Default to panic level (essentially silent for normal operations)
	logLevel := logrus.PanicLevel

	logLevelStr, _ := cmd.Flags().GetString("log-level")
	if logLevelStr != "" {
		switch logLevelStr {
		case "debug":
			logLevel = logrus.DebugLevel
		case "info":
			logLevel = logrus.InfoLevel
		case "warn":
			logLevel = logrus.WarnLevel
		case "error":
			logLevel = logrus.ErrorLevel
		default:
			return nil, fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", logLevelStr)
		}
	}

	logger := logrus.New()
	logger.SetLevel(logLevel)
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})

	return logger, nil
}
