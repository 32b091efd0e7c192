// Package logging provides the session logger used across the pipeline.
// Each session owns one SessionLogger built on a tee of two zap cores: a
// console core writing to the external output surface, and a buffer core
// whose accumulated text becomes the captured session log attached to the
// execution report.
// Related: internal/session/session.go, internal/report/writer.go
// Tags: logging, zap, session-log
package logging

import (
	"bytes"
	"io"
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// SessionLogger wraps zap with a capture buffer so durable log lines land
// both on the output surface and in the session's collected log text.
type SessionLogger struct {
	zap *zap.Logger
	buf *lockedBuffer
}

// lockedBuffer is a Writer safe for use as a zap sink.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// Options configures a SessionLogger.
type Options struct {
	// Console is the output surface writer. Defaults to os.Stderr.
	Console io.Writer
	// Level is the minimum level for the console core. The capture core
	// always records at debug and above.
	Level zapcore.Level
	// TaskID, when non-empty, is attached to every entry.
	TaskID string
}

// New creates a SessionLogger with a console core and a capture core.
func New(opts Options) *SessionLogger {
	console := opts.Console
	if console == nil {
		console = os.Stderr
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder

	buf := &lockedBuffer{}
	consoleCore := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encCfg),
		zapcore.AddSync(zapcore.Lock(writerSyncer{console})),
		opts.Level,
	)
	captureCore := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encCfg),
		zapcore.AddSync(buf),
		zapcore.DebugLevel,
	)

	logger := zap.New(zapcore.NewTee(consoleCore, captureCore))
	if opts.TaskID != "" {
		logger = logger.With(zap.String("task", opts.TaskID))
	}

	return &SessionLogger{zap: logger, buf: buf}
}

// NewNop returns a logger that still captures but writes nothing to the
// console. Useful in tests and for components constructed without a session.
func NewNop() *SessionLogger {
	return New(Options{Console: io.Discard, Level: zapcore.DebugLevel})
}

type writerSyncer struct{ io.Writer }

func (w writerSyncer) Sync() error { return nil }

// Debug logs at debug level.
func (l *SessionLogger) Debug(msg string, fields ...zap.Field) { l.zap.Debug(msg, fields...) }

// Info logs at info level.
func (l *SessionLogger) Info(msg string, fields ...zap.Field) { l.zap.Info(msg, fields...) }

// Warn logs at warn level.
func (l *SessionLogger) Warn(msg string, fields ...zap.Field) { l.zap.Warn(msg, fields...) }

// Error logs at error level.
func (l *SessionLogger) Error(msg string, fields ...zap.Field) { l.zap.Error(msg, fields...) }

// With returns a logger with the fields attached, sharing the same capture
// buffer as the receiver.
func (l *SessionLogger) With(fields ...zap.Field) *SessionLogger {
	return &SessionLogger{zap: l.zap.With(fields...), buf: l.buf}
}

// Captured returns everything logged through this logger (and loggers
// derived from it via With) since creation.
func (l *SessionLogger) Captured() string {
	return l.buf.String()
}

// Sync flushes buffered entries.
func (l *SessionLogger) Sync() error {
	return l.zap.Sync()
}
