// Package webhook delivers incident notifications as JSON to arbitrary HTTP endpoints.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/bissquit/incident-tracker/internal/domain"
	"github.com/bissquit/incident-tracker/internal/notifications"
	"github.com/bissquit/incident-tracker/internal/pkg/ctxlog"
	"github.com/bissquit/incident-tracker/internal/version"
	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

const (
	defaultTimeout   = 10 * time.Second
	defaultRateLimit = 5
	defaultBurst     = 10

	// DeliveryIDHeader carries a unique id per delivery attempt.
	DeliveryIDHeader = "X-Delivery-ID"
	// EventHeader carries the notification message type.
	EventHeader = "X-Incident-Event"
)

// Config holds webhook sender configuration.
type Config struct {
	Timeout   time.Duration
	RateLimit float64 // requests per second across all webhook channels
	Burst     int
	Headers   map[string]string
}

// Sender posts notifications to generic webhooks.
type Sender struct {
	config     Config
	httpClient *http.Client
	limiter    *rate.Limiter
	newID      func() string
}

// NewSender creates a new webhook sender.
func NewSender(config Config) *Sender {
	if config.Timeout == 0 {
		config.Timeout = defaultTimeout
	}
	if config.RateLimit <= 0 {
		config.RateLimit = defaultRateLimit
	}
	if config.Burst <= 0 {
		config.Burst = defaultBurst
	}

	return &Sender{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
		limiter:    rate.NewLimiter(rate.Limit(config.RateLimit), config.Burst),
		newID:      uuid.NewString,
	}
}

// Type returns the channel type.
func (s *Sender) Type() domain.ChannelType {
	return domain.ChannelTypeWebhook
}

// Message is the JSON document posted to the webhook.
type Message struct {
	DeliveryID string                             `json:"delivery_id"`
	Subject    string                             `json:"subject"`
	Text       string                             `json:"text"`
	Event      notifications.MessageType          `json:"event,omitempty"`
	Payload    *notifications.NotificationPayload `json:"payload,omitempty"`
}

// Send posts the notification to notification.To, waiting for the rate limiter first.
func (s *Sender) Send(ctx context.Context, notification notifications.Notification) error {
	if notification.To == "" {
		return &notifications.DeliveryError{Channel: string(s.Type()), Message: notifications.ErrEmptyTarget.Error()}
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return notifications.NewRetryableError(fmt.Errorf("rate limiter: %w", err))
	}

	msg := Message{
		DeliveryID: s.newID(),
		Subject:    notification.Subject,
		Text:       notification.Body,
		Payload:    notification.Payload,
	}
	if notification.Payload != nil {
		msg.Event = notification.Payload.MessageType
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, notification.To, bytes.NewReader(body))
	if err != nil {
		return notifications.NewNonRetryableError(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "incident-tracker/"+version.Version)
	req.Header.Set(DeliveryIDHeader, msg.DeliveryID)
	if msg.Event != "" {
		req.Header.Set(EventHeader, string(msg.Event))
	}
	for k, v := range s.config.Headers {
		req.Header.Set(k, v)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return notifications.TransportError(string(s.Type()), err)
	}
	defer func() { _ = resp.Body.Close() }()

	if err := notifications.CheckResponse(string(s.Type()), resp); err != nil {
		return err
	}

	ctxlog.FromContext(ctx).Debug("webhook delivered",
		"target", notifications.MaskURL(notification.To),
		"delivery_id", msg.DeliveryID,
	)
	return nil
}
