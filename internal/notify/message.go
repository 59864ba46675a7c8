package notify

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"

	"github.com/adamara/apiserver/types"
)

//go:embed templates/*.html
var templateFS embed.FS

var templates = template.Must(template.ParseFS(templateFS, "templates/*.html"))

var statusMessages = map[types.RequestStatus]string{
	types.StatusPending:   "is pending review",
	types.StatusInReview:  "is now being reviewed by our team",
	types.StatusApproved:  "has been approved",
	types.StatusRejected:  "could not be approved at this time",
	types.StatusCompleted: "has been completed",
}

// Message is a rendered notification ready for delivery.
type Message struct {
	To      string
	Subject string
	HTML    string
	Text    string
}

// StatusMessage returns the phrase describing status to a requester.
func StatusMessage(status types.RequestStatus) string {
	if msg, ok := statusMessages[status]; ok {
		return msg
	}
	return "has been updated"
}

// Render builds the message for event.
func Render(event Event) (Message, error) {
	data := struct {
		Event
		StatusMessage string
	}{
		Event:         event,
		StatusMessage: StatusMessage(event.Status),
	}

	var (
		name    string
		subject string
		text    string
	)
	switch event.Kind {
	case KindConfirmation:
		name = "confirmation.html"
		subject = fmt.Sprintf("Your Ad Request #%s has been received", event.RequestID)
		text = fmt.Sprintf("Hello %s,\n\nThank you for submitting your %s ad request. Your Request ID is %s.\n",
			event.RequesterName, event.AdType, event.RequestID)
	case KindStatusUpdate:
		name = "status_update.html"
		subject = fmt.Sprintf("Update on Your Ad Request #%s", event.RequestID)
		text = fmt.Sprintf("Hello %s,\n\nYour %s ad request (ID: %s) %s.\n",
			event.RequesterName, event.AdType, event.RequestID, data.StatusMessage)
	default:
		return Message{}, fmt.Errorf("unknown notification kind %q", event.Kind)
	}

	var body bytes.Buffer
	if err := templates.ExecuteTemplate(&body, name, data); err != nil {
		return Message{}, fmt.Errorf("render %s: %w", name, err)
	}
	return Message{
		To:      event.RequesterEmail,
		Subject: subject,
		HTML:    body.String(),
		Text:    text,
	}, nil
}
