package notifications

import (
	"context"
	"testing"
	"time"

	"github.com/bissquit/incident-tracker/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testChannels() []domain.NotificationChannel {
	return []domain.NotificationChannel{
		{Name: "ops-chat", Type: domain.ChannelTypeMattermost, Target: "https://mm.example.com/hooks/abc"},
		{Name: "pager", Type: domain.ChannelTypeWebhook, Target: "https://pager.example.com/hook"},
	}
}

func testIncident(status domain.IncidentStatus) *domain.Incident {
	created := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	return &domain.Incident{
		ID:           7,
		Number:       "INC-000007",
		Description:  "Disk full on db1",
		ActionsTaken: "Freed temp files",
		Status:       status,
		CreatedAt:    created,
	}
}

func newTestNotifier(channels []domain.NotificationChannel, capacity int) (*Notifier, *Queue) {
	queue := NewQueue(capacity)
	n := NewNotifier(NotifierConfig{
		Channels:    channels,
		MaxAttempts: 4,
		BaseURL:     "https://incidents.example.com/",
	}, queue)
	n.now = func() time.Time { return fixedNow }
	return n, queue
}

func TestNotifier_OnIncidentCreated_QueuesPerChannel(t *testing.T) {
	n, queue := newTestNotifier(testChannels(), 10)

	err := n.OnIncidentCreated(context.Background(), testIncident(domain.IncidentStatusOpen))
	require.NoError(t, err)

	items := queue.FetchReady(fixedNow, 10)
	require.Len(t, items, 2)
	assert.Equal(t, "ops-chat", items[0].Channel.Name)
	assert.Equal(t, "pager", items[1].Channel.Name)
	assert.NotEqual(t, items[0].ID, items[1].ID)

	item := items[0]
	assert.Equal(t, int64(7), item.IncidentID)
	assert.Equal(t, 4, item.MaxAttempts)
	assert.Equal(t, MessageTypeCreated, item.Payload.MessageType)
	assert.Nil(t, item.Payload.Changes)
	assert.Equal(t, "https://incidents.example.com/api/v1/incidents/7", item.Payload.IncidentURL)
}

func TestNotifier_OnStatusChanged(t *testing.T) {
	n, queue := newTestNotifier(testChannels()[:1], 10)

	incident := testIncident(domain.IncidentStatusInProgress)
	require.NoError(t, n.OnStatusChanged(context.Background(), incident, domain.IncidentStatusOpen))

	items := queue.FetchReady(fixedNow, 10)
	require.Len(t, items, 1)
	payload := items[0].Payload
	assert.Equal(t, MessageTypeInProgress, payload.MessageType)
	require.NotNil(t, payload.Changes)
	assert.Equal(t, "OPEN", payload.Changes.From)
	assert.Equal(t, "IN_PROGRESS", payload.Changes.To)
	assert.Zero(t, payload.Duration)
}

func TestNotifier_OnStatusChanged_ClosedCarriesDuration(t *testing.T) {
	n, queue := newTestNotifier(testChannels()[:1], 10)

	incident := testIncident(domain.IncidentStatusClosed)
	closedAt := incident.CreatedAt.Add(90 * time.Minute)
	incident.ClosedAt = &closedAt
	incident.RCA = "Log rotation disabled"
	incident.Resolution = "Enabled logrotate"

	require.NoError(t, n.OnStatusChanged(context.Background(), incident, domain.IncidentStatusInProgress))

	items := queue.FetchReady(fixedNow, 10)
	require.Len(t, items, 1)
	assert.Equal(t, MessageTypeClosed, items[0].Payload.MessageType)
	assert.Equal(t, 90*time.Minute, items[0].Payload.Duration)
	assert.Equal(t, "Enabled logrotate", items[0].Payload.Incident.Resolution)
}

func TestNotifier_OnStatusChanged_OpenIsIgnored(t *testing.T) {
	n, queue := newTestNotifier(testChannels(), 10)

	require.NoError(t, n.OnStatusChanged(context.Background(), testIncident(domain.IncidentStatusOpen), domain.IncidentStatusOpen))
	assert.Equal(t, 0, queue.Stats().Pending)
}

func TestNotifier_NoChannels(t *testing.T) {
	n, queue := newTestNotifier(nil, 10)

	require.NoError(t, n.OnIncidentCreated(context.Background(), testIncident(domain.IncidentStatusOpen)))
	assert.Equal(t, 0, queue.Stats().Pending)
}

func TestNotifier_QueueFull(t *testing.T) {
	n, queue := newTestNotifier(testChannels(), 1)

	err := n.OnIncidentCreated(context.Background(), testIncident(domain.IncidentStatusOpen))
	require.ErrorIs(t, err, ErrQueueFull)
	assert.Contains(t, err.Error(), "pager")
	assert.Equal(t, 1, queue.Stats().Pending)
}

func TestNotifier_NoBaseURL(t *testing.T) {
	queue := NewQueue(10)
	n := NewNotifier(NotifierConfig{Channels: testChannels()[:1]}, queue)

	require.NoError(t, n.OnIncidentCreated(context.Background(), testIncident(domain.IncidentStatusOpen)))
	items := queue.FetchReady(time.Now().Add(time.Second), 10)
	require.Len(t, items, 1)
	assert.Empty(t, items[0].Payload.IncidentURL)
	assert.Equal(t, 1, items[0].MaxAttempts)
}
