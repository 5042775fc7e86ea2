package util

import (
	"fmt"
	"os"
	"time"

	"github.com/mpapenbr/f1-telemetry-gateway-go/log"
	"github.com/mpapenbr/f1-telemetry-gateway-go/pkg/config"
)

func ParseLogLevel(l string, defaultVal log.Level) log.Level {
	level, err := log.ParseLevel(l)
	if err != nil {
		return defaultVal
	}
	return level
}

// SetupLogger creates the logger from the log flags and installs it as default
func SetupLogger() (*log.Logger, error) {
	var logger *log.Logger
	switch config.LogFormat {
	case "json":
		logger = log.New(
			os.Stderr,
			ParseLogLevel(config.LogLevel, log.InfoLevel),
			log.WithCaller(true),
			log.AddCallerSkip(1))
	default:
		logger = log.DevLogger(
			os.Stderr,
			ParseLogLevel(config.LogLevel, log.DebugLevel),
			log.WithCaller(true),
			log.AddCallerSkip(1))
	}
	filtered, err := logger.WithFilter(config.LogFilter)
	if err != nil {
		return nil, fmt.Errorf("invalid log filter %q: %w", config.LogFilter, err)
	}
	log.ResetDefault(filtered)
	return filtered, nil
}

// ParseDuration returns defaultVal (with a warning) for invalid values
func ParseDuration(name, value string, defaultVal time.Duration) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil {
		log.Warn("Invalid duration value, using default",
			log.String("name", name),
			log.String("value", value),
			log.Duration("default", defaultVal))
		return defaultVal
	}
	return d
}
