package notifier

import (
	"context"
	"time"
)

// Message is a multipart email with a plain-text and an HTML body.
type Message struct {
	From    string
	To      []string
	Subject string
	Text    string
	HTML    string
}

type SendResult struct {
	MessageID string
	SentAt    time.Time
}

type EmailSender interface {
	SendEmail(ctx context.Context, msg Message) (SendResult, error)
}
