// Package logging is the logging facade shared by every birpc component.
// It is driven by a single environment variable, WS_RPC_LOGGING, exactly
// as the original's logger.py describes, mapped onto go.uber.org/zap
// instead of Python's logging/loguru since zap is the logging library
// this corpus reaches for.
package logging

import (
	"os"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// EnvVar is the environment variable selecting the logging mode.
const EnvVar = "WS_RPC_LOGGING"

// Mode mirrors the original's LoggingModes enum.
type Mode int

const (
	NoLogs Mode = iota
	Uvicorn
	Simple
	Loguru
)

func modeFromString(s string) Mode {
	switch strings.ToUpper(s) {
	case "NO_LOGS":
		return NoLogs
	case "UVICORN":
		return Uvicorn
	case "LOGURU":
		return Loguru
	case "SIMPLE":
		return Simple
	default:
		return Simple // default, matching the original
	}
}

var (
	once sync.Once
	base *zap.Logger
)

func buildBase() *zap.Logger {
	mode := modeFromString(os.Getenv(EnvVar))
	switch mode {
	case NoLogs:
		return zap.NewNop()
	case Uvicorn:
		cfg := zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		cfg.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05")
		cfg.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
		logger, err := cfg.Build()
		if err != nil {
			return zap.NewNop()
		}
		return logger
	case Loguru:
		cfg := zap.NewProductionConfig()
		cfg.Encoding = "json"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		logger, err := cfg.Build()
		if err != nil {
			return zap.NewNop()
		}
		return logger
	default: // Simple
		cfg := zap.NewProductionConfig()
		cfg.Encoding = "console"
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
		cfg.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout(time.RFC3339)
		logger, err := cfg.Build()
		if err != nil {
			return zap.NewNop()
		}
		return logger
	}
}

// Get returns a named *zap.Logger, configured per WS_RPC_LOGGING. The
// underlying base logger is built once and cached; name becomes the
// logger's name (zap's Named), matching the original's per-module named loggers
// (fasterpc.RPC_CHANNEL, fasterpc.RPC_CLIENT, ...).
func Get(name string) *zap.Logger {
	once.Do(func() { base = buildBase() })
	return base.Named(name)
}

// Sugared is Get(name).Sugar(), for call sites that prefer printf-style
// logging (Warnf/Errorf) over zap's structured fields.
func Sugared(name string) *zap.SugaredLogger {
	return Get(name).Sugar()
}

