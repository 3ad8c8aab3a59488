package incidents

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bissquit/incident-tracker/internal/domain"
	"github.com/bissquit/incident-tracker/internal/pkg/ctxlog"
	"github.com/bissquit/incident-tracker/internal/pkg/metrics"
)

// EventNotifier is notified about incident lifecycle events.
type EventNotifier interface {
	OnIncidentCreated(ctx context.Context, incident *domain.Incident) error
	OnStatusChanged(ctx context.Context, incident *domain.Incident, from domain.IncidentStatus) error
}

// Service implements incident business logic.
type Service struct {
	repo     Repository
	notifier EventNotifier
	now      func() time.Time
}

// NewService creates a new incident service. notifier may be nil.
func NewService(repo Repository, notifier EventNotifier) *Service {
	return &Service{
		repo:     repo,
		notifier: notifier,
		now:      time.Now,
	}
}

// CreateIncidentInput holds data for creating an incident.
type CreateIncidentInput struct {
	Description  string
	ActionsTaken string
}

// UpdateFieldsInput holds a partial update of the investigation fields.
type UpdateFieldsInput struct {
	RCA        *string
	Resolution *string
}

func (in UpdateFieldsInput) isEmpty() bool {
	return in.RCA == nil && in.Resolution == nil
}

// UpdateIncidentInput holds a combined update: fields are applied first,
// then the status transition.
type UpdateIncidentInput struct {
	RCA        *string
	Resolution *string
	Status     *domain.IncidentStatus
}

// CreateIncident creates a new incident in OPEN status.
func (s *Service) CreateIncident(ctx context.Context, input CreateIncidentInput) (*domain.Incident, error) {
	if isBlank(input.Description) {
		return nil, s.reject("create", fmt.Errorf("%w: description is required", ErrValidation))
	}
	if isBlank(input.ActionsTaken) {
		return nil, s.reject("create", fmt.Errorf("%w: actions_taken is required", ErrValidation))
	}

	incident := &domain.Incident{
		Description:  input.Description,
		ActionsTaken: input.ActionsTaken,
		Status:       domain.IncidentStatusOpen,
	}

	if err := s.repo.CreateIncident(ctx, incident); err != nil {
		return nil, fmt.Errorf("create incident: %w", err)
	}

	metrics.IncidentsCreated.Inc()
	ctxlog.FromContext(ctx).Info("incident created", "incident_id", incident.ID)

	if s.notifier != nil {
		if err := s.notifier.OnIncidentCreated(ctx, incident); err != nil {
			ctxlog.FromContext(ctx).Warn("failed to notify about created incident",
				"incident_id", incident.ID,
				"error", err,
			)
		}
	}

	return incident, nil
}

// GetIncident retrieves an incident by ID.
func (s *Service) GetIncident(ctx context.Context, id int64) (*domain.Incident, error) {
	return s.repo.GetIncident(ctx, id)
}

// ListIncidents retrieves all incidents.
// Filtering and sorting for display is done with ApplyListQuery.
func (s *Service) ListIncidents(ctx context.Context) ([]*domain.Incident, error) {
	return s.repo.ListIncidents(ctx)
}

// ListStatusChanges returns the status history of an incident.
func (s *Service) ListStatusChanges(ctx context.Context, id int64) ([]*domain.StatusChange, error) {
	if _, err := s.repo.GetIncident(ctx, id); err != nil {
		return nil, err
	}
	return s.repo.ListStatusChanges(ctx, id)
}

// UpdateStatus moves an incident along OPEN -> IN_PROGRESS -> CLOSED.
func (s *Service) UpdateStatus(ctx context.Context, id int64, target domain.IncidentStatus) (*domain.Incident, error) {
	var from domain.IncidentStatus
	updated, err := s.repo.UpdateIncident(ctx, id, func(incident *domain.Incident) error {
		from = incident.Status
		return transition(incident, target, s.now())
	})
	if err != nil {
		return nil, s.reject("update_status", err)
	}

	s.statusChanged(ctx, updated, from)
	return updated, nil
}

// UpdateFields overwrites rca and/or resolution of an in-progress incident.
func (s *Service) UpdateFields(ctx context.Context, id int64, input UpdateFieldsInput) (*domain.Incident, error) {
	if input.isEmpty() {
		return nil, s.reject("update_fields", fmt.Errorf("%w: rca or resolution is required", ErrValidation))
	}

	updated, err := s.repo.UpdateIncident(ctx, id, func(incident *domain.Incident) error {
		return applyFields(incident, input.RCA, input.Resolution)
	})
	if err != nil {
		return nil, s.reject("update_fields", err)
	}

	ctxlog.FromContext(ctx).Info("incident fields updated", "incident_id", id)
	return updated, nil
}

// UpdateIncident applies fields and status in one atomic step.
// If any step is rejected nothing is stored.
func (s *Service) UpdateIncident(ctx context.Context, id int64, input UpdateIncidentInput) (*domain.Incident, error) {
	fields := UpdateFieldsInput{RCA: input.RCA, Resolution: input.Resolution}
	if fields.isEmpty() && input.Status == nil {
		return nil, s.reject("update", fmt.Errorf("%w: nothing to update", ErrValidation))
	}

	var from domain.IncidentStatus
	updated, err := s.repo.UpdateIncident(ctx, id, func(incident *domain.Incident) error {
		from = incident.Status
		if !fields.isEmpty() {
			if err := applyFields(incident, fields.RCA, fields.Resolution); err != nil {
				return err
			}
		}
		if input.Status != nil {
			return transition(incident, *input.Status, s.now())
		}
		return nil
	})
	if err != nil {
		return nil, s.reject("update", err)
	}

	if updated.Status != from {
		s.statusChanged(ctx, updated, from)
	}
	return updated, nil
}

func (s *Service) statusChanged(ctx context.Context, incident *domain.Incident, from domain.IncidentStatus) {
	metrics.IncidentTransitions.WithLabelValues(string(from), string(incident.Status)).Inc()
	ctxlog.FromContext(ctx).Info("incident status changed",
		"incident_id", incident.ID,
		"from", from,
		"to", incident.Status,
	)

	if s.notifier == nil {
		return
	}
	if err := s.notifier.OnStatusChanged(ctx, incident, from); err != nil {
		ctxlog.FromContext(ctx).Warn("failed to notify about status change",
			"incident_id", incident.ID,
			"error", err,
		)
	}
}

// reject records a refused operation and returns err unchanged.
func (s *Service) reject(operation string, err error) error {
	if reason := rejectionReason(err); reason != "" {
		metrics.IncidentOperationsRejected.WithLabelValues(operation, reason).Inc()
	}
	return err
}

func rejectionReason(err error) string {
	switch {
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrIncidentNotFound):
		return "not_found"
	case errors.Is(err, ErrInvalidTransition):
		return "invalid_transition"
	case errors.Is(err, ErrPreconditionFailed):
		return "precondition_failed"
	case errors.Is(err, ErrInvalidState):
		return "invalid_state"
	}
	return ""
}
