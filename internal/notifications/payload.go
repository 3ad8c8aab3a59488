package notifications

import (
	"time"

	"github.com/bissquit/incident-tracker/internal/domain"
)

// MessageType defines the type of notification.
type MessageType string

// Message types.
const (
	MessageTypeCreated    MessageType = "created"
	MessageTypeInProgress MessageType = "in_progress"
	MessageTypeClosed     MessageType = "closed"
)

// messageTypeFor returns the message type announcing that an incident entered status.
func messageTypeFor(status domain.IncidentStatus) (MessageType, bool) {
	switch status {
	case domain.IncidentStatusInProgress:
		return MessageTypeInProgress, true
	case domain.IncidentStatusClosed:
		return MessageTypeClosed, true
	}
	return "", false
}

// NotificationPayload contains data for rendering a notification.
type NotificationPayload struct {
	MessageType MessageType   `json:"message_type"`
	Incident    IncidentData  `json:"incident"`
	Changes     *StatusChange `json:"changes,omitempty"`
	Duration    time.Duration `json:"duration,omitempty"`
	IncidentURL string        `json:"incident_url,omitempty"`
	GeneratedAt time.Time     `json:"generated_at"`
}

// IncidentData contains incident information for notification.
type IncidentData struct {
	ID           int64      `json:"id"`
	Number       string     `json:"number"`
	Description  string     `json:"description"`
	ActionsTaken string     `json:"actions_taken"`
	RCA          string     `json:"rca,omitempty"`
	Resolution   string     `json:"resolution,omitempty"`
	Status       string     `json:"status"`
	CreatedAt    time.Time  `json:"created_at"`
	ClosedAt     *time.Time `json:"closed_at,omitempty"`
}

// StatusChange describes the transition a notification announces.
type StatusChange struct {
	From string `json:"from"`
	To   string `json:"to"`
}

func newIncidentData(incident *domain.Incident) IncidentData {
	return IncidentData{
		ID:           incident.ID,
		Number:       incident.Number,
		Description:  incident.Description,
		ActionsTaken: incident.ActionsTaken,
		RCA:          incident.RCA,
		Resolution:   incident.Resolution,
		Status:       string(incident.Status),
		CreatedAt:    incident.CreatedAt,
		ClosedAt:     incident.ClosedAt,
	}
}

// NewCreatedPayload creates a payload announcing a new incident.
func NewCreatedPayload(incident *domain.Incident, incidentURL string, now time.Time) NotificationPayload {
	return NotificationPayload{
		MessageType: MessageTypeCreated,
		Incident:    newIncidentData(incident),
		IncidentURL: incidentURL,
		GeneratedAt: now,
	}
}

// NewStatusPayload creates a payload announcing a status change.
// For closed incidents Duration holds the time from creation to close.
func NewStatusPayload(msgType MessageType, incident *domain.Incident, from domain.IncidentStatus, incidentURL string, now time.Time) NotificationPayload {
	payload := NotificationPayload{
		MessageType: msgType,
		Incident:    newIncidentData(incident),
		Changes: &StatusChange{
			From: string(from),
			To:   string(incident.Status),
		},
		IncidentURL: incidentURL,
		GeneratedAt: now,
	}
	if incident.ClosedAt != nil {
		payload.Duration = incident.ClosedAt.Sub(incident.CreatedAt)
	}
	return payload
}
