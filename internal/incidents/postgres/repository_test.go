//go:build integration

package postgres

import (
	"context"
	"errors"
	"log"
	"os"
	"sync"
	"testing"

	"github.com/bissquit/incident-tracker/internal/domain"
	"github.com/bissquit/incident-tracker/internal/incidents"
	pgutil "github.com/bissquit/incident-tracker/internal/pkg/postgres"
	"github.com/bissquit/incident-tracker/internal/testutil"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testPool *pgxpool.Pool

func TestMain(m *testing.M) {
	ctx := context.Background()

	pg, err := testutil.NewPostgresContainer(ctx)
	if err != nil {
		log.Fatalf("start postgres: %v", err)
	}

	if err := pgutil.Migrate(pg.ConnectionString); err != nil {
		log.Fatalf("run migrations: %v", err)
	}

	testPool, err = pgutil.Connect(ctx, pgutil.Config{URL: pg.ConnectionString, MaxOpenConns: 10, ConnectAttempts: 3})
	if err != nil {
		log.Fatalf("connect: %v", err)
	}

	code := m.Run()

	testPool.Close()
	if err := pg.Terminate(ctx); err != nil {
		log.Printf("terminate postgres: %v", err)
	}
	os.Exit(code)
}

func newIncident(t *testing.T, repo *Repository) *domain.Incident {
	t.Helper()
	incident := &domain.Incident{
		Description:  "Disk full on db1",
		ActionsTaken: "Freed temp files",
		Status:       domain.IncidentStatusOpen,
	}
	require.NoError(t, repo.CreateIncident(context.Background(), incident))
	return incident
}

func TestRepository_CreateAndGet(t *testing.T) {
	repo := NewRepository(testPool)
	created := newIncident(t, repo)

	assert.Positive(t, created.ID)
	assert.Equal(t, domain.IncidentNumber(created.ID), created.Number)
	assert.False(t, created.CreatedAt.IsZero())

	got, err := repo.GetIncident(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.Description, got.Description)
	assert.Equal(t, domain.IncidentStatusOpen, got.Status)
	assert.Empty(t, got.RCA)
	assert.Nil(t, got.ClosedAt)
}

func TestRepository_GetIncident_NotFound(t *testing.T) {
	_, err := NewRepository(testPool).GetIncident(context.Background(), 987654)
	assert.ErrorIs(t, err, incidents.ErrIncidentNotFound)
}

func TestRepository_ListIncidents_OrderedByID(t *testing.T) {
	repo := NewRepository(testPool)
	first := newIncident(t, repo)
	second := newIncident(t, repo)

	list, err := repo.ListIncidents(context.Background())
	require.NoError(t, err)

	var firstIdx, secondIdx = -1, -1
	for i, inc := range list {
		switch inc.ID {
		case first.ID:
			firstIdx = i
		case second.ID:
			secondIdx = i
		}
	}
	require.NotEqual(t, -1, firstIdx)
	assert.Less(t, firstIdx, secondIdx)
}

func TestRepository_UpdateIncident_LifecycleAndHistory(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(testPool)
	service := incidents.NewService(repo, nil)
	created := newIncident(t, repo)

	_, err := service.UpdateStatus(ctx, created.ID, domain.IncidentStatusInProgress)
	require.NoError(t, err)

	rca, resolution := "Log rotation disabled", "Enabled logrotate"
	_, err = service.UpdateFields(ctx, created.ID, incidents.UpdateFieldsInput{RCA: &rca, Resolution: &resolution})
	require.NoError(t, err)

	closed, err := service.UpdateStatus(ctx, created.ID, domain.IncidentStatusClosed)
	require.NoError(t, err)
	assert.NotNil(t, closed.ClosedAt)
	assert.Equal(t, rca, closed.RCA)

	got, err := repo.GetIncident(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.IncidentStatusClosed, got.Status)
	assert.Equal(t, resolution, got.Resolution)

	history, err := repo.ListStatusChanges(ctx, created.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, domain.IncidentStatusOpen, history[0].FromStatus)
	assert.Equal(t, domain.IncidentStatusClosed, history[1].ToStatus)
}

func TestRepository_UpdateIncident_MutationErrorRollsBack(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(testPool)
	created := newIncident(t, repo)
	errBoom := errors.New("boom")

	_, err := repo.UpdateIncident(ctx, created.ID, func(incident *domain.Incident) error {
		incident.Status = domain.IncidentStatusInProgress
		return errBoom
	})
	require.ErrorIs(t, err, errBoom)

	got, err := repo.GetIncident(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.IncidentStatusOpen, got.Status)

	history, err := repo.ListStatusChanges(ctx, created.ID)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestRepository_UpdateIncident_NotFound(t *testing.T) {
	_, err := NewRepository(testPool).UpdateIncident(context.Background(), 987654, func(*domain.Incident) error {
		return nil
	})
	assert.ErrorIs(t, err, incidents.ErrIncidentNotFound)
}

func TestRepository_ConcurrentTransitions_SingleWinner(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(testPool)
	service := incidents.NewService(repo, nil)
	created := newIncident(t, repo)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := service.UpdateStatus(ctx, created.ID, domain.IncidentStatusInProgress); err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)

	history, err := repo.ListStatusChanges(ctx, created.ID)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}
