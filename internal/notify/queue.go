package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/adamara/apiserver/internal/mq"
)

// DefaultChannel is the broker channel notification events travel on.
const DefaultChannel = "adrequest.notifications"

// Publisher is the part of *mq.MQ used by QueueSender.
type Publisher interface {
	PublishJSON(ctx context.Context, channel string, v any, attrs map[string]string) (string, error)
}

// QueueSender hands events to the broker for the worker to deliver.
type QueueSender struct {
	publisher Publisher
	channel   string
}

func NewQueueSender(publisher Publisher, channel string) *QueueSender {
	if channel == "" {
		channel = DefaultChannel
	}
	return &QueueSender{publisher: publisher, channel: channel}
}

func (s *QueueSender) Send(ctx context.Context, event Event) error {
	_, err := s.publisher.PublishJSON(ctx, s.channel, event, map[string]string{
		"kind":      string(event.Kind),
		"requestId": event.RequestID.String(),
	})
	if err != nil {
		return fmt.Errorf("publish notification: %w", err)
	}
	return nil
}

// Subscriber is the part of *mq.MQ used by Consumer.
type Subscriber interface {
	Subscribe(ctx context.Context, channel string, handler mq.Handler) error
}

// Consumer reads queued events and delivers them through a Sender.
type Consumer struct {
	subscriber Subscriber
	channel    string
	sender     Sender
	logger     *slog.Logger
}

func NewConsumer(subscriber Subscriber, channel string, sender Sender, logger *slog.Logger) *Consumer {
	if channel == "" {
		channel = DefaultChannel
	}
	return &Consumer{
		subscriber: subscriber,
		channel:    channel,
		sender:     sender,
		logger:     logger,
	}
}

// Run consumes until ctx is done or the subscription fails.
func (c *Consumer) Run(ctx context.Context) error {
	c.logger.InfoContext(ctx, "consuming notifications", "channel", c.channel)
	return c.subscriber.Subscribe(ctx, c.channel, c.handle)
}

func (c *Consumer) handle(ctx context.Context, msg mq.Message) error {
	var event Event
	if err := json.Unmarshal(msg.Data, &event); err != nil {
		c.logger.WarnContext(ctx, "dropping malformed notification", "messageId", msg.ID, "error", err)
		return fmt.Errorf("%w: %v", mq.ErrDiscard, err)
	}
	if event.Kind != KindConfirmation && event.Kind != KindStatusUpdate {
		c.logger.WarnContext(ctx, "dropping notification of unknown kind", "messageId", msg.ID, "kind", event.Kind)
		return fmt.Errorf("%w: unknown kind %q", mq.ErrDiscard, event.Kind)
	}

	if err := c.sender.Send(ctx, event); err != nil {
		c.logger.ErrorContext(ctx, "notification delivery failed",
			"messageId", msg.ID, "kind", event.Kind, "requestId", event.RequestID, "error", err)
		return err
	}
	c.logger.InfoContext(ctx, "notification delivered",
		"messageId", msg.ID, "kind", event.Kind, "requestId", event.RequestID)
	return nil
}
