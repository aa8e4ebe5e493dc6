package cli

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	auth "github.com/photolog/photolog-auth"
)

// slogLogger adapts slog to the printf style auth.Logger.
type slogLogger struct {
	l *slog.Logger
}

var _ auth.Logger = (*slogLogger)(nil)

func newSlogLogger(w io.Writer, level string) *slogLogger {
	h := slog.NewTextHandler(w, &slog.HandlerOptions{Level: parseLevel(level)})
	return &slogLogger{l: slog.New(h)}
}

func (s *slogLogger) Debug(format string, args ...any) {
	s.l.Debug(fmt.Sprintf(format, args...))
}

func (s *slogLogger) Info(format string, args ...any) {
	s.l.Info(fmt.Sprintf(format, args...))
}

func (s *slogLogger) Warn(format string, args ...any) {
	s.l.Warn(fmt.Sprintf(format, args...))
}

func (s *slogLogger) Error(format string, args ...any) {
	s.l.Error(fmt.Sprintf(format, args...))
}

func (s *slogLogger) With(args ...any) *slogLogger {
	return &slogLogger{l: s.l.With(args...)}
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
