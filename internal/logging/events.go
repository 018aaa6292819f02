package logging

import "log/slog"

// HandlerInstalled logs a first-writer-wins cache install for a reference's
// request handler.
func HandlerInstalled(logger *slog.Logger, identity, endpoint string) {
	logger.Debug("request handler cached", slog.String("identity", identity), slog.String("endpoint", endpoint))
}

// HandlerCleared logs an explicit cache eviction, e.g. after a connection
// failure forces re-resolution.
func HandlerCleared(logger *slog.Logger, identity string) {
	logger.Debug("request handler cache cleared", slog.String("identity", identity))
}

// ConnectionResolved logs a successful endpoint resolution. extra carries
// transport-specific fields, such as a connection correlation id, that
// callers want threaded through without widening every other call site.
func ConnectionResolved(logger *slog.Logger, identity, endpoint string, extra ...slog.Attr) {
	args := []any{slog.String("identity", identity), slog.String("endpoint", endpoint)}
	for _, a := range extra {
		args = append(args, a)
	}
	logger.Info("connection resolved", args...)
}

// RetryScheduled logs a retry decision, including the delay chosen and how
// many attempts have been made so far.
func RetryScheduled(logger *slog.Logger, operation string, attempt int, delayMS int64) {
	logger.Warn("retrying invocation", slog.String("operation", operation), slog.Int("attempt", attempt), slog.Int64("delay_ms", delayMS))
}

// InvocationFailed logs a terminal (non-retried) invocation failure.
func InvocationFailed(logger *slog.Logger, operation string, err error) {
	logger.Error("invocation failed", slog.String("operation", operation), slog.Any("error", err))
}
