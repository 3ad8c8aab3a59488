package notifications

import (
	"context"
	"fmt"

	"github.com/bissquit/incident-tracker/internal/domain"
)

// Dispatcher routes notifications to the sender registered for a channel type.
type Dispatcher struct {
	senders map[domain.ChannelType]Sender
}

// NewDispatcher creates a new notification dispatcher.
func NewDispatcher(senders ...Sender) *Dispatcher {
	senderMap := make(map[domain.ChannelType]Sender)
	for _, s := range senders {
		senderMap[s.Type()] = s
	}
	return &Dispatcher{senders: senderMap}
}

// Supports reports whether a sender is registered for channelType.
func (d *Dispatcher) Supports(channelType domain.ChannelType) bool {
	_, ok := d.senders[channelType]
	return ok
}

// SendToChannel sends a notification using the sender for channelType.
func (d *Dispatcher) SendToChannel(ctx context.Context, channelType domain.ChannelType, notification Notification) error {
	sender, ok := d.senders[channelType]
	if !ok {
		return NewNonRetryableError(fmt.Errorf("%w: %s", ErrNoSender, channelType))
	}
	return sender.Send(ctx, notification)
}
