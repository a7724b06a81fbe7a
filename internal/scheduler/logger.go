package scheduler

import "log/slog"

// cronLogger routes cron's internal logging to slog.
type cronLogger struct {
	log *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debug("Cron "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Error("Cron "+msg, append([]any{"error", err}, keysAndValues...)...)
}
