// Package logger defines the structured-logging interface used throughout
// actorcore and a default log/slog-backed implementation.
package logger

import (
	"log/slog"
	"os"
)

// Logger is the structured-logging interface the environment, the coop
// registry, and the config watcher log through. Key-value pairs
// keep it compatible with slog, logrus, zap, or any other structured
// logger an embedding application already uses.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
	Debug(msg string, args ...any)
}

// SlogLogger adapts log/slog.Logger to the Logger interface.
type SlogLogger struct {
	logger *slog.Logger
}

// NewSlogLogger wraps l, or a default text handler on os.Stderr if l is nil.
func NewSlogLogger(l *slog.Logger) *SlogLogger {
	if l == nil {
		l = slog.New(slog.NewTextHandler(os.Stderr, nil))
	}
	return &SlogLogger{logger: l}
}

func (s *SlogLogger) Info(msg string, args ...any)  { s.logger.Info(msg, args...) }
func (s *SlogLogger) Warn(msg string, args ...any)  { s.logger.Warn(msg, args...) }
func (s *SlogLogger) Error(msg string, args ...any) { s.logger.Error(msg, args...) }
func (s *SlogLogger) Debug(msg string, args ...any) { s.logger.Debug(msg, args...) }

// Noop discards every log call. Useful as a default before the environment
// has been configured with a real logger.
type Noop struct{}

func (Noop) Info(string, ...any)  {}
func (Noop) Warn(string, ...any)  {}
func (Noop) Error(string, ...any) {}
func (Noop) Debug(string, ...any) {}
