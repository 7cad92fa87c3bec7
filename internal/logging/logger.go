// Package logging configures the structured logger shared by the generator,
// the sender adapters and the CLI.
package logging

import (
	"fmt"
	"log"
	"os"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is the process-wide sugared logger. Components that are not handed
// a logger explicitly fall back to it.
var Logger *zap.SugaredLogger

func newLogger(level zapcore.Level) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()

	cfg.Sampling = nil

	cfg.Level = zap.NewAtomicLevelAt(level)

	cfg.EncoderConfig.EncodeTime = func(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
		zapcore.RFC3339NanoTimeEncoder(t.UTC(), enc)
	}

	cfg.EncoderConfig.EncodeDuration = zapcore.StringDurationEncoder

	cfg.DisableStacktrace = true

	return cfg.Build()
}

func init() {
	level := zapcore.InfoLevel

	if levelStr, ok := os.LookupEnv("LOG_LEVEL"); ok && levelStr != "" {
		parsed, err := zapcore.ParseLevel(levelStr)
		if err != nil {
			log.Fatal(fmt.Errorf("invalid LOG_LEVEL environment variable value: %w", err))
		}
		level = parsed
	}

	if err := SetLevel(level); err != nil {
		log.Fatal(fmt.Errorf("failed to set log level: %w", err))
	}
}

// SetLevel rebuilds the global logger at the given level and installs it as
// the zap global as well.
func SetLevel(level zapcore.Level) error {
	logger, err := newLogger(level)
	if err != nil {
		return err
	}

	zap.ReplaceGlobals(logger)

	Logger = logger.Sugar()

	return nil
}

// SetLevelString parses a level name ("debug", "info", "warn", ...) and
// applies it with SetLevel.
func SetLevelString(levelStr string) error {
	level, err := zapcore.ParseLevel(levelStr)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", levelStr, err)
	}
	return SetLevel(level)
}

// OrDefault returns l, or the global Logger when l is nil.
func OrDefault(l *zap.SugaredLogger) *zap.SugaredLogger {
	if l != nil {
		return l
	}
	return Logger
}

// Sync flushes the global logger. Errors from syncing stderr on some
// platforms are ignored.
func Sync() {
	_ = Logger.Sync()
}
