// Package postgres provides PostgreSQL implementation of the incidents repository.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/bissquit/incident-tracker/internal/domain"
	"github.com/bissquit/incident-tracker/internal/incidents"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const incidentColumns = `id, description, actions_taken, COALESCE(rca, ''), COALESCE(resolution, ''),
		status, created_at, updated_at, closed_at`

// Repository implements incidents.Repository using PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new PostgreSQL repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// CreateIncident inserts a new incident.
func (r *Repository) CreateIncident(ctx context.Context, incident *domain.Incident) error {
	query := `
		INSERT INTO incidents (description, actions_taken, rca, resolution, status)
		VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''), $5)
		RETURNING id, created_at, updated_at
	`
	err := r.db.QueryRow(ctx, query,
		incident.Description,
		incident.ActionsTaken,
		incident.RCA,
		incident.Resolution,
		incident.Status,
	).Scan(&incident.ID, &incident.CreatedAt, &incident.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create incident: %w", err)
	}

	incident.Number = domain.IncidentNumber(incident.ID)
	return nil
}

// GetIncident retrieves an incident by ID.
func (r *Repository) GetIncident(ctx context.Context, id int64) (*domain.Incident, error) {
	query := `SELECT ` + incidentColumns + ` FROM incidents WHERE id = $1`

	incident, err := scanIncident(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, incidents.ErrIncidentNotFound
		}
		return nil, fmt.Errorf("get incident: %w", err)
	}
	return incident, nil
}

// ListIncidents retrieves all incidents ordered by ID.
func (r *Repository) ListIncidents(ctx context.Context) ([]*domain.Incident, error) {
	query := `SELECT ` + incidentColumns + ` FROM incidents ORDER BY id`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list incidents: %w", err)
	}
	defer rows.Close()

	result := make([]*domain.Incident, 0)
	for rows.Next() {
		incident, err := scanIncident(rows)
		if err != nil {
			return nil, fmt.Errorf("scan incident: %w", err)
		}
		result = append(result, incident)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate incidents: %w", err)
	}
	return result, nil
}

// UpdateIncident locks the incident row, applies fn and writes the result
// in a single transaction.
func (r *Repository) UpdateIncident(ctx context.Context, id int64, fn incidents.MutateFunc) (*domain.Incident, error) {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			slog.Error("failed to rollback transaction", "error", err)
		}
	}()

	query := `SELECT ` + incidentColumns + ` FROM incidents WHERE id = $1 FOR UPDATE`
	current, err := scanIncident(tx.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, incidents.ErrIncidentNotFound
		}
		return nil, fmt.Errorf("lock incident: %w", err)
	}

	updated := current.Clone()
	if err := fn(updated); err != nil {
		return nil, err
	}

	update := `
		UPDATE incidents
		SET rca = NULLIF($2, ''), resolution = NULLIF($3, ''), status = $4,
		    closed_at = $5, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at
	`
	err = tx.QueryRow(ctx, update,
		id,
		updated.RCA,
		updated.Resolution,
		updated.Status,
		updated.ClosedAt,
	).Scan(&updated.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("update incident: %w", err)
	}

	if updated.Status != current.Status {
		insert := `
			INSERT INTO incident_status_changes (incident_id, from_status, to_status, changed_at)
			VALUES ($1, $2, $3, $4)
		`
		if _, err := tx.Exec(ctx, insert, id, current.Status, updated.Status, updated.UpdatedAt); err != nil {
			return nil, fmt.Errorf("record status change: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}

	// Description and actions are immutable after creation.
	updated.ID = current.ID
	updated.Number = current.Number
	updated.Description = current.Description
	updated.ActionsTaken = current.ActionsTaken
	updated.CreatedAt = current.CreatedAt
	return updated, nil
}

// ListStatusChanges retrieves the status history of an incident, oldest first.
func (r *Repository) ListStatusChanges(ctx context.Context, incidentID int64) ([]*domain.StatusChange, error) {
	query := `
		SELECT id, incident_id, from_status, to_status, changed_at
		FROM incident_status_changes
		WHERE incident_id = $1
		ORDER BY id
	`
	rows, err := r.db.Query(ctx, query, incidentID)
	if err != nil {
		return nil, fmt.Errorf("list status changes: %w", err)
	}
	defer rows.Close()

	result := make([]*domain.StatusChange, 0)
	for rows.Next() {
		var c domain.StatusChange
		if err := rows.Scan(&c.ID, &c.IncidentID, &c.FromStatus, &c.ToStatus, &c.ChangedAt); err != nil {
			return nil, fmt.Errorf("scan status change: %w", err)
		}
		result = append(result, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate status changes: %w", err)
	}
	return result, nil
}

func scanIncident(row pgx.Row) (*domain.Incident, error) {
	var incident domain.Incident
	err := row.Scan(
		&incident.ID,
		&incident.Description,
		&incident.ActionsTaken,
		&incident.RCA,
		&incident.Resolution,
		&incident.Status,
		&incident.CreatedAt,
		&incident.UpdatedAt,
		&incident.ClosedAt,
	)
	if err != nil {
		return nil, err
	}
	incident.Number = domain.IncidentNumber(incident.ID)
	return &incident, nil
}
