package notifications

import "errors"

// Notification errors.
var (
	ErrQueueFull   = errors.New("notification queue is full")
	ErrNoSender    = errors.New("no sender for channel type")
	ErrQueueClosed = errors.New("notification queue is closed")
	ErrEmptyTarget = errors.New("notification target is empty")
)
