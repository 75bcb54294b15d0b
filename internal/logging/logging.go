// Package logging builds the zap logger shared by all four CLI tools.
//
// Debug-level output is gated behind an env var in addition to
// --verbose, following the structured-logging style used broadly
// across this suite's infra tools.
package logging

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// DebugEnvVar forces debug-level logging regardless of --verbose.
const DebugEnvVar = "LLOBF_DEBUG"

// New builds a logger for a CLI tool. verbose selects a human-readable
// console encoder at debug level; otherwise a compact production
// encoder at info level is used, unless DebugEnvVar is set.
func New(verbose bool) *zap.SugaredLogger {
	level := zapcore.InfoLevel
	if verbose || os.Getenv(DebugEnvVar) == "1" {
		level = zapcore.DebugLevel
	}

	cfg := zap.NewProductionConfig()
	if verbose {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(level)
	cfg.DisableStacktrace = true

	logger, err := cfg.Build()
	if err != nil {
		// Logger construction failing is not a condition any of these
		// tools can sensibly recover from or continue obfuscating
		// without visibility into; fall back to a no-op logger so the
		// pass itself can still run.
		logger = zap.NewNop()
	}
	return logger.Sugar()
}
