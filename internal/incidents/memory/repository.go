// Package memory provides an in-process implementation of the incidents repository.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/bissquit/incident-tracker/internal/domain"
	"github.com/bissquit/incident-tracker/internal/incidents"
)

// Repository implements incidents.Repository on top of maps guarded by a mutex.
// Every update runs its mutation under the write lock, so concurrent
// read-modify-write cycles on one incident cannot interleave.
type Repository struct {
	mu           sync.RWMutex
	incidents    map[int64]*domain.Incident
	history      map[int64][]*domain.StatusChange
	lastID       int64
	lastChangeID int64
	now          func() time.Time
}

// NewRepository creates an empty in-memory repository.
func NewRepository() *Repository {
	return &Repository{
		incidents: make(map[int64]*domain.Incident),
		history:   make(map[int64][]*domain.StatusChange),
		now:       time.Now,
	}
}

// CreateIncident stores a copy of incident under the next ID.
func (r *Repository) CreateIncident(_ context.Context, incident *domain.Incident) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.lastID++
	now := r.now()

	incident.ID = r.lastID
	incident.Number = domain.IncidentNumber(incident.ID)
	incident.CreatedAt = now
	incident.UpdatedAt = now

	r.incidents[incident.ID] = incident.Clone()
	return nil
}

// GetIncident returns a copy of the stored incident.
func (r *Repository) GetIncident(_ context.Context, id int64) (*domain.Incident, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	incident, ok := r.incidents[id]
	if !ok {
		return nil, incidents.ErrIncidentNotFound
	}
	return incident.Clone(), nil
}

// ListIncidents returns copies of all incidents ordered by ID.
func (r *Repository) ListIncidents(_ context.Context) ([]*domain.Incident, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	// IDs are dense: every ID up to lastID was assigned and none is deleted.
	result := make([]*domain.Incident, 0, len(r.incidents))
	for id := int64(1); id <= r.lastID; id++ {
		if incident, ok := r.incidents[id]; ok {
			result = append(result, incident.Clone())
		}
	}
	return result, nil
}

// UpdateIncident applies fn to a copy of the incident and stores the copy
// only if fn succeeds.
func (r *Repository) UpdateIncident(_ context.Context, id int64, fn incidents.MutateFunc) (*domain.Incident, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.incidents[id]
	if !ok {
		return nil, incidents.ErrIncidentNotFound
	}

	updated := current.Clone()
	if err := fn(updated); err != nil {
		return nil, err
	}

	// Identity and creation data are owned by the repository.
	updated.ID = current.ID
	updated.Number = current.Number
	updated.CreatedAt = current.CreatedAt
	updated.UpdatedAt = r.now()

	if updated.Status != current.Status {
		r.lastChangeID++
		r.history[id] = append(r.history[id], &domain.StatusChange{
			ID:         r.lastChangeID,
			IncidentID: id,
			FromStatus: current.Status,
			ToStatus:   updated.Status,
			ChangedAt:  updated.UpdatedAt,
		})
	}

	r.incidents[id] = updated
	return updated.Clone(), nil
}

// ListStatusChanges returns the status history of an incident, oldest first.
func (r *Repository) ListStatusChanges(_ context.Context, incidentID int64) ([]*domain.StatusChange, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	changes := r.history[incidentID]
	result := make([]*domain.StatusChange, 0, len(changes))
	for _, c := range changes {
		copied := *c
		result = append(result, &copied)
	}
	return result, nil
}
