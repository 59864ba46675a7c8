// Package notify delivers requester notifications off the request path.
package notify

import (
	"context"
	"time"

	"github.com/adamara/apiserver/types"
	"github.com/google/uuid"
)

// Kind identifies the notification template.
type Kind string

const (
	KindConfirmation Kind = "confirmation"
	KindStatusUpdate Kind = "status_update"
)

// Event describes something the requester should hear about.
type Event struct {
	Kind           Kind                `json:"kind"`
	RequestID      uuid.UUID           `json:"requestId"`
	RequesterName  string              `json:"requesterName"`
	RequesterEmail string              `json:"requesterEmail"`
	AdType         types.AdType        `json:"adType"`
	Status         types.RequestStatus `json:"status"`
	OccurredAt     time.Time           `json:"occurredAt"`
}

// Confirmation builds the event sent after a request is accepted.
func Confirmation(req types.AdRequest) Event {
	return newEvent(KindConfirmation, req)
}

// StatusUpdate builds the event sent after a request changes status.
func StatusUpdate(req types.AdRequest) Event {
	return newEvent(KindStatusUpdate, req)
}

func newEvent(kind Kind, req types.AdRequest) Event {
	return Event{
		Kind:           kind,
		RequestID:      req.ID,
		RequesterName:  req.RequesterName,
		RequesterEmail: req.RequesterEmail,
		AdType:         req.AdType,
		Status:         req.Status,
		OccurredAt:     req.LastUpdated,
	}
}

// Notifier accepts events for best-effort delivery. Notify never fails
// and never blocks on delivery.
type Notifier interface {
	Notify(ctx context.Context, event Event)
}

// Sender performs one delivery attempt.
type Sender interface {
	Send(ctx context.Context, event Event) error
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(ctx context.Context, event Event) error

func (f SenderFunc) Send(ctx context.Context, event Event) error {
	return f(ctx, event)
}
