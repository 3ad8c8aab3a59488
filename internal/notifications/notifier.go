package notifications

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/bissquit/incident-tracker/internal/domain"
	"github.com/google/uuid"
)

// NotifierConfig contains notifier configuration.
type NotifierConfig struct {
	Channels    []domain.NotificationChannel
	MaxAttempts int
	BaseURL     string
}

// Notifier turns incident lifecycle events into queued notifications,
// one per configured channel. It never sends anything itself.
type Notifier struct {
	queue       *Queue
	channels    []domain.NotificationChannel
	maxAttempts int
	baseURL     string
	now         func() time.Time
}

// NewNotifier creates a new Notifier.
func NewNotifier(config NotifierConfig, queue *Queue) *Notifier {
	return &Notifier{
		queue:       queue,
		channels:    config.Channels,
		maxAttempts: max(config.MaxAttempts, 1),
		baseURL:     strings.TrimRight(config.BaseURL, "/"),
		now:         time.Now,
	}
}

// OnIncidentCreated queues notifications for a newly created incident.
func (n *Notifier) OnIncidentCreated(ctx context.Context, incident *domain.Incident) error {
	payload := NewCreatedPayload(incident, n.buildIncidentURL(incident.ID), n.now())
	return n.enqueue(ctx, incident.ID, payload)
}

// OnStatusChanged queues notifications for a status change.
func (n *Notifier) OnStatusChanged(ctx context.Context, incident *domain.Incident, from domain.IncidentStatus) error {
	msgType, ok := messageTypeFor(incident.Status)
	if !ok {
		slog.Debug("no notification for status", "incident_id", incident.ID, "status", incident.Status)
		return nil
	}

	payload := NewStatusPayload(msgType, incident, from, n.buildIncidentURL(incident.ID), n.now())
	return n.enqueue(ctx, incident.ID, payload)
}

func (n *Notifier) enqueue(_ context.Context, incidentID int64, payload NotificationPayload) error {
	if len(n.channels) == 0 {
		return nil
	}

	var errs []error
	for _, ch := range n.channels {
		item := &QueueItem{
			ID:            uuid.NewString(),
			IncidentID:    incidentID,
			Channel:       ch,
			Payload:       payload,
			MaxAttempts:   n.maxAttempts,
			NextAttemptAt: payload.GeneratedAt,
			CreatedAt:     payload.GeneratedAt,
		}
		if err := n.queue.Enqueue(item); err != nil {
			recordNotificationSent(string(ch.Type), "dropped")
			errs = append(errs, fmt.Errorf("enqueue for channel %s: %w", ch.Name, err))
		}
	}

	slog.Debug("notifications queued",
		"incident_id", incidentID,
		"message_type", payload.MessageType,
		"channels", len(n.channels)-len(errs),
	)
	return errors.Join(errs...)
}

// buildIncidentURL constructs the API URL for an incident.
func (n *Notifier) buildIncidentURL(id int64) string {
	if n.baseURL == "" {
		return ""
	}
	return fmt.Sprintf("%s/api/v1/incidents/%d", n.baseURL, id)
}
