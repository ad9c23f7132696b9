package notify

import (
	"context"
	"log/slog"
)

// LogNotifier writes messages to a slog.Logger instead of delivering them.
// It is meant for development; the code appears in the log line.
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Send(ctx context.Context, email, subject, body string) error {
	n.logger.LogAttrs(ctx, slog.LevelInfo, "notification",
		slog.String("to", email),
		slog.String("subject", subject),
		slog.String("body", body),
	)
	return nil
}
