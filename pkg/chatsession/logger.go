package chatsession

import (
	"fmt"
	"log/slog"
)

// Logger is the interface for logging in chatsession.
type Logger interface {
	ErrorPrintf(format string, args ...any)
	WarnPrintf(format string, args ...any)
	InfoPrintf(format string, args ...any)
	DebugPrintf(format string, args ...any)
}

// DefaultLogger returns a Logger writing to slog.Default().
func DefaultLogger() Logger {
	return slogLogger{}
}

// SlogLogger creates a Logger from a slog.Logger.
func SlogLogger(l *slog.Logger) Logger {
	return slogLogger{l}
}

type slogLogger struct {
	l *slog.Logger
}

func (s slogLogger) logger() *slog.Logger {
	if s.l == nil {
		return slog.Default()
	}
	return s.l
}

func (s slogLogger) ErrorPrintf(format string, args ...any) {
	s.logger().Error("chatsession: " + fmt.Sprintf(format, args...))
}

func (s slogLogger) WarnPrintf(format string, args ...any) {
	s.logger().Warn("chatsession: " + fmt.Sprintf(format, args...))
}

func (s slogLogger) InfoPrintf(format string, args ...any) {
	s.logger().Info("chatsession: " + fmt.Sprintf(format, args...))
}

func (s slogLogger) DebugPrintf(format string, args ...any) {
	s.logger().Debug("chatsession: " + fmt.Sprintf(format, args...))
}
