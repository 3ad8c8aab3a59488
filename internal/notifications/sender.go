package notifications

import (
	"context"

	"github.com/bissquit/incident-tracker/internal/domain"
)

// Notification is a rendered message addressed to a single channel.
type Notification struct {
	To      string
	Subject string
	Body    string
	// Payload is the structured data the message was rendered from.
	Payload *NotificationPayload
}

// Sender delivers notifications of one channel type.
type Sender interface {
	Type() domain.ChannelType
	Send(ctx context.Context, notification Notification) error
}
