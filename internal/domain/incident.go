package domain

import (
	"fmt"
	"time"
)

// IncidentStatus represents the lifecycle status of an incident.
type IncidentStatus string

// Incident statuses.
const (
	IncidentStatusOpen       IncidentStatus = "OPEN"
	IncidentStatusInProgress IncidentStatus = "IN_PROGRESS"
	IncidentStatusClosed     IncidentStatus = "CLOSED"
)

// IsValid checks if the status is one of the known statuses.
func (s IncidentStatus) IsValid() bool {
	return s == IncidentStatusOpen ||
		s == IncidentStatusInProgress ||
		s == IncidentStatusClosed
}

// IsTerminal reports whether no transition leaves the status.
func (s IncidentStatus) IsTerminal() bool {
	return s == IncidentStatusClosed
}

// Next returns the only status reachable from s.
// The second return value is false for terminal and unknown statuses.
func (s IncidentStatus) Next() (IncidentStatus, bool) {
	switch s {
	case IncidentStatusOpen:
		return IncidentStatusInProgress, true
	case IncidentStatusInProgress:
		return IncidentStatusClosed, true
	}
	return "", false
}

// CanTransitionTo reports whether target is the forward edge out of s.
// Guards on incident fields are not checked here.
func (s IncidentStatus) CanTransitionTo(target IncidentStatus) bool {
	next, ok := s.Next()
	return ok && next == target
}

// AllowsFieldEdits reports whether rca and resolution may be written in this status.
func (s IncidentStatus) AllowsFieldEdits() bool {
	return s == IncidentStatusInProgress
}

// Incident is a tracked issue with its remediation narrative.
type Incident struct {
	ID           int64          `json:"id"`
	Number       string         `json:"number"`
	Description  string         `json:"description"`
	ActionsTaken string         `json:"actions_taken"`
	RCA          string         `json:"rca,omitempty"`
	Resolution   string         `json:"resolution,omitempty"`
	Status       IncidentStatus `json:"status"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	ClosedAt     *time.Time     `json:"closed_at"`
}

// IncidentNumber formats an incident ID the way operators refer to it, e.g. INC-000042.
func IncidentNumber(id int64) string {
	return fmt.Sprintf("INC-%06d", id)
}

// Clone returns a deep copy of the incident.
func (i *Incident) Clone() *Incident {
	c := *i
	if i.ClosedAt != nil {
		t := *i.ClosedAt
		c.ClosedAt = &t
	}
	return &c
}

// StatusChange is a single entry of an incident's status history.
type StatusChange struct {
	ID         int64          `json:"id"`
	IncidentID int64          `json:"incident_id"`
	FromStatus IncidentStatus `json:"from_status"`
	ToStatus   IncidentStatus `json:"to_status"`
	ChangedAt  time.Time      `json:"changed_at"`
}
