package notify

import (
	"context"
	"log/slog"
)

// LogSender renders notifications and writes them to the log instead of
// delivering them. It is the development default.
type LogSender struct {
	logger *slog.Logger
}

func NewLogSender(logger *slog.Logger) *LogSender {
	return &LogSender{logger: logger}
}

func (s *LogSender) Send(ctx context.Context, event Event) error {
	msg, err := Render(event)
	if err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "notification",
		"to", msg.To, "subject", msg.Subject, "kind", event.Kind, "requestId", event.RequestID)
	return nil
}
