// ═══════════════════════════════════════════════════════════════════════════════════════════════
// Telemetry — structured logging for the pipeline and its CLI driver
// ───────────────────────────────────────────────────────────────────────────────────────────────
//
// The teacher's own reference model prints a banner-commented stats
// block with fmt.Sprintf at the end of a run. This plays the same
// diagnostic role for both that end-of-run summary and the per-cycle
// fatal-abort and rollback/retire trace lines, through a structured
// logger instead of ad hoc Printf calls.
//
// ═══════════════════════════════════════════════════════════════════════════════════════════════
package telemetry

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is the structured logger type every package in this module
// takes, so only this package needs to import zap directly.
type Logger = zap.SugaredLogger

// New builds a SugaredLogger configured for a long-running simulation
// run: level controls verbosity ("debug", "info", "warn", "error";
// anything unrecognized falls back to "info").
func New(level string) (*Logger, error) {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = zapcore.InfoLevel
	}

	cfg := zap.NewProductionConfig()
	cfg.Encoding = "console"
	cfg.EncoderConfig.TimeKey = ""
	cfg.Level = zap.NewAtomicLevelAt(lvl)

	logger, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return logger.Sugar(), nil
}

// NewNop returns a logger that discards everything, for tests and for
// embedding internal/pipeline in contexts that don't want log output.
func NewNop() *Logger {
	return zap.NewNop().Sugar()
}
