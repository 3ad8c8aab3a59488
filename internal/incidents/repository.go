package incidents

import (
	"context"

	"github.com/bissquit/incident-tracker/internal/domain"
)

// MutateFunc modifies an incident in place. Returning an error aborts the
// update and nothing is persisted.
type MutateFunc func(incident *domain.Incident) error

// Repository defines the interface for incident storage.
type Repository interface {
	// CreateIncident stores a new incident and assigns its ID and timestamps.
	CreateIncident(ctx context.Context, incident *domain.Incident) error
	GetIncident(ctx context.Context, id int64) (*domain.Incident, error)
	// ListIncidents returns all incidents ordered by ID.
	ListIncidents(ctx context.Context) ([]*domain.Incident, error)

	// UpdateIncident loads the incident, applies fn and stores the result
	// atomically with respect to other updates of the same incident.
	// A status change made by fn is appended to the status history.
	UpdateIncident(ctx context.Context, id int64, fn MutateFunc) (*domain.Incident, error)

	ListStatusChanges(ctx context.Context, incidentID int64) ([]*domain.StatusChange, error)
}
