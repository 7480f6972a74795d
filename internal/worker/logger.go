package worker

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/hibiken/asynq"
)

// slogLogger routes asynq's internal logging through slog.
type slogLogger struct {
	l *slog.Logger
}

// NewLogger returns an [asynq.Logger] writing to l.
func NewLogger(l *slog.Logger) asynq.Logger {
	return slogLogger{l: l.With("component", "asynq")}
}

func (s slogLogger) Debug(args ...any) { s.l.Debug(fmt.Sprint(args...)) }
func (s slogLogger) Info(args ...any)  { s.l.Info(fmt.Sprint(args...)) }
func (s slogLogger) Warn(args ...any)  { s.l.Warn(fmt.Sprint(args...)) }
func (s slogLogger) Error(args ...any) { s.l.Error(fmt.Sprint(args...)) }

func (s slogLogger) Fatal(args ...any) {
	s.l.Error(fmt.Sprint(args...))
	os.Exit(1)
}
