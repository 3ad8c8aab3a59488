// Package mattermost sends incident notifications to Mattermost incoming webhooks.
package mattermost

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/bissquit/incident-tracker/internal/domain"
	"github.com/bissquit/incident-tracker/internal/notifications"
)

const (
	defaultTimeout  = 10 * time.Second
	defaultUsername = "Incident Tracker"
)

// Config holds Mattermost sender configuration.
// The webhook URL comes from each channel's target.
type Config struct {
	DefaultUsername string        // username for display, default "Incident Tracker"
	DefaultIconURL  string        // icon URL (optional)
	Timeout         time.Duration // request timeout
}

// Sender implements Mattermost notification sender via Incoming Webhooks.
type Sender struct {
	config     Config
	httpClient *http.Client
}

// NewSender creates a new Mattermost sender.
func NewSender(config Config) *Sender {
	if config.DefaultUsername == "" {
		config.DefaultUsername = defaultUsername
	}
	if config.Timeout == 0 {
		config.Timeout = defaultTimeout
	}

	return &Sender{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
	}
}

// Type returns the channel type.
func (s *Sender) Type() domain.ChannelType {
	return domain.ChannelTypeMattermost
}

type webhookPayload struct {
	Text        string       `json:"text,omitempty"`
	Username    string       `json:"username,omitempty"`
	IconURL     string       `json:"icon_url,omitempty"`
	Attachments []attachment `json:"attachments,omitempty"`
}

type attachment struct {
	Fallback  string `json:"fallback"`
	Color     string `json:"color,omitempty"`
	Title     string `json:"title,omitempty"`
	TitleLink string `json:"title_link,omitempty"`
	Text      string `json:"text"`
}

// Send posts a notification to the webhook in notification.To. When the
// structured payload is available the message is sent as a colored attachment.
func (s *Sender) Send(ctx context.Context, notification notifications.Notification) error {
	webhookURL := notification.To
	if webhookURL == "" {
		return &notifications.DeliveryError{Channel: string(s.Type()), Message: notifications.ErrEmptyTarget.Error()}
	}

	body, err := json.Marshal(s.buildPayload(notification))
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return notifications.TransportError(string(s.Type()), err)
	}
	defer func() { _ = resp.Body.Close() }()

	if err := notifications.CheckResponse(string(s.Type()), resp); err != nil {
		return err
	}

	slog.Debug("mattermost message sent", "webhook", notifications.MaskURL(webhookURL))
	return nil
}

func (s *Sender) buildPayload(notification notifications.Notification) webhookPayload {
	payload := webhookPayload{
		Username: s.config.DefaultUsername,
		IconURL:  s.config.DefaultIconURL,
	}

	if notification.Payload == nil {
		if notification.Subject != "" {
			payload.Text = fmt.Sprintf("### %s\n\n%s", notification.Subject, notification.Body)
		} else {
			payload.Text = notification.Body
		}
		return payload
	}

	payload.Attachments = []attachment{{
		Fallback:  notification.Subject,
		Color:     statusColor(notification.Payload.Incident.Status),
		Title:     notification.Subject,
		TitleLink: notification.Payload.IncidentURL,
		Text:      notification.Body,
	}}
	return payload
}

func statusColor(status string) string {
	switch domain.IncidentStatus(status) {
	case domain.IncidentStatusOpen:
		return "#d24b4e"
	case domain.IncidentStatusInProgress:
		return "#f2a93b"
	case domain.IncidentStatusClosed:
		return "#3db887"
	default:
		return ""
	}
}
