package webhook

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bissquit/incident-tracker/internal/domain"
	"github.com/bissquit/incident-tracker/internal/notifications"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func TestNewSender_Defaults(t *testing.T) {
	sender := NewSender(Config{})

	assert.Equal(t, defaultTimeout, sender.config.Timeout)
	assert.Equal(t, rate.Limit(defaultRateLimit), sender.limiter.Limit())
	assert.Equal(t, defaultBurst, sender.limiter.Burst())
	assert.Equal(t, domain.ChannelTypeWebhook, sender.Type())
}

func TestSender_Send_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "delivery-1", r.Header.Get(DeliveryIDHeader))
		assert.Equal(t, "closed", r.Header.Get(EventHeader))
		assert.Equal(t, "secret", r.Header.Get("X-Token"))

		var msg Message
		require.NoError(t, json.NewDecoder(r.Body).Decode(&msg))
		assert.Equal(t, "delivery-1", msg.DeliveryID)
		assert.Equal(t, "subject", msg.Subject)
		assert.Equal(t, "text", msg.Text)
		assert.Equal(t, notifications.MessageTypeClosed, msg.Event)
		require.NotNil(t, msg.Payload)
		assert.Equal(t, "INC-000001", msg.Payload.Incident.Number)

		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	sender := NewSender(Config{Headers: map[string]string{"X-Token": "secret"}})
	sender.newID = func() string { return "delivery-1" }

	err := sender.Send(context.Background(), notifications.Notification{
		To:      server.URL,
		Subject: "subject",
		Body:    "text",
		Payload: &notifications.NotificationPayload{
			MessageType: notifications.MessageTypeClosed,
			Incident:    notifications.IncidentData{Number: "INC-000001"},
		},
	})
	assert.NoError(t, err)
}

func TestSender_Send_UniqueDeliveryIDs(t *testing.T) {
	var (
		mu  sync.Mutex
		ids []string
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		ids = append(ids, r.Header.Get(DeliveryIDHeader))
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	sender := NewSender(Config{})
	for i := 0; i < 2; i++ {
		require.NoError(t, sender.Send(context.Background(), notifications.Notification{To: server.URL, Body: "x"}))
	}

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, ids, 2)
	assert.NotEmpty(t, ids[0])
	assert.NotEqual(t, ids[0], ids[1])
}

func TestSender_Send_EmptyTarget(t *testing.T) {
	err := NewSender(Config{}).Send(context.Background(), notifications.Notification{Body: "x"})

	var deliveryErr *notifications.DeliveryError
	require.ErrorAs(t, err, &deliveryErr)
	assert.False(t, deliveryErr.IsRetryable())
}

func TestSender_Send_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("maintenance"))
	}))
	defer server.Close()

	err := NewSender(Config{}).Send(context.Background(), notifications.Notification{To: server.URL, Body: "x"})

	var deliveryErr *notifications.DeliveryError
	require.ErrorAs(t, err, &deliveryErr)
	assert.True(t, deliveryErr.IsRetryable())
	assert.Contains(t, deliveryErr.Error(), "maintenance")
}

func TestSender_Send_RateLimitHonoursContext(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	sender := NewSender(Config{RateLimit: 0.001, Burst: 1})
	require.NoError(t, sender.Send(context.Background(), notifications.Notification{To: server.URL, Body: "x"}))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := sender.Send(ctx, notifications.Notification{To: server.URL, Body: "x"})
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}
