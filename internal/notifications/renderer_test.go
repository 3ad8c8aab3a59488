package notifications

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bissquit/incident-tracker/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRenderer(t *testing.T) {
	r, err := NewRenderer()
	require.NoError(t, err)

	assert.Len(t, r.templates, len(renderedChannels)*len(renderedMessages))
}

func TestRenderer_RenderCreated(t *testing.T) {
	r, err := NewRenderer()
	require.NoError(t, err)

	payload := NewCreatedPayload(testIncident(domain.IncidentStatusOpen), "https://incidents.example.com/api/v1/incidents/7", fixedNow)

	subject, body, err := r.Render(domain.ChannelTypeMattermost, payload)
	require.NoError(t, err)

	assert.Equal(t, "[New incident] INC-000007: Disk full on db1", subject)
	assert.Contains(t, body, "**INC-000007** opened")
	assert.Contains(t, body, "**Actions taken:** Freed temp files")
	assert.Contains(t, body, "**Status:** Open")
	assert.Contains(t, body, "[View incident](https://incidents.example.com/api/v1/incidents/7)")
}

func TestRenderer_RenderInProgress(t *testing.T) {
	r, err := NewRenderer()
	require.NoError(t, err)

	payload := NewStatusPayload(MessageTypeInProgress, testIncident(domain.IncidentStatusInProgress), domain.IncidentStatusOpen, "", fixedNow)

	subject, body, err := r.Render(domain.ChannelTypeMattermost, payload)
	require.NoError(t, err)
	assert.Equal(t, "[In progress] INC-000007: Disk full on db1", subject)
	assert.Contains(t, body, "Open → In Progress")
	assert.NotContains(t, body, "View incident")

	_, body, err = r.Render(domain.ChannelTypeWebhook, payload)
	require.NoError(t, err)
	assert.Equal(t, "INC-000007 moved from OPEN to IN_PROGRESS: Disk full on db1", body)
}

func TestRenderer_RenderClosed(t *testing.T) {
	r, err := NewRenderer()
	require.NoError(t, err)

	incident := testIncident(domain.IncidentStatusClosed)
	closedAt := incident.CreatedAt.Add(2*time.Hour + 5*time.Minute)
	incident.ClosedAt = &closedAt
	incident.RCA = "Log rotation disabled"
	incident.Resolution = "Enabled logrotate"

	payload := NewStatusPayload(MessageTypeClosed, incident, domain.IncidentStatusInProgress, "", fixedNow)

	_, body, err := r.Render(domain.ChannelTypeMattermost, payload)
	require.NoError(t, err)
	assert.Contains(t, body, "closed after 2h 5m")
	assert.Contains(t, body, "**Root cause:** Log rotation disabled")
	assert.Contains(t, body, "**Closed at:** Mar 1, 2026 12:05 UTC")

	_, body, err = r.Render(domain.ChannelTypeWebhook, payload)
	require.NoError(t, err)
	lines := strings.Split(body, "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "Resolution: Enabled logrotate", lines[2])
}

func TestRenderer_RenderEmail(t *testing.T) {
	r, err := NewRenderer()
	require.NoError(t, err)

	incident := testIncident(domain.IncidentStatusClosed)
	closedAt := incident.CreatedAt.Add(45 * time.Minute)
	incident.ClosedAt = &closedAt
	incident.RCA = "Log rotation disabled"
	incident.Resolution = "Enabled logrotate"

	payload := NewStatusPayload(MessageTypeClosed, incident, domain.IncidentStatusInProgress, "https://incidents.example.com/api/v1/incidents/7", fixedNow)

	subject, body, err := r.Render(domain.ChannelTypeEmail, payload)
	require.NoError(t, err)
	assert.Equal(t, "[Closed] INC-000007: Disk full on db1", subject)
	assert.Contains(t, body, "Incident INC-000007 has been closed after 45m.")
	assert.Contains(t, body, "Root cause:\nLog rotation disabled")
	assert.Contains(t, body, "Closed at:     Mar 1, 2026 10:45 UTC")
	assert.True(t, strings.HasSuffix(body, "Details: https://incidents.example.com/api/v1/incidents/7"))

	_, body, err = r.Render(domain.ChannelTypeEmail,
		NewStatusPayload(MessageTypeInProgress, testIncident(domain.IncidentStatusInProgress), domain.IncidentStatusOpen, "", fixedNow))
	require.NoError(t, err)
	assert.Contains(t, body, "Status:        Open -> In Progress")
	assert.NotContains(t, body, "Details:")
}

func TestRenderer_UnknownTemplate(t *testing.T) {
	r, err := NewRenderer()
	require.NoError(t, err)

	_, _, err = r.Render(domain.ChannelType("sms"), NewCreatedPayload(testIncident(domain.IncidentStatusOpen), "", fixedNow))
	assert.Error(t, err)
}

func TestRenderSubject_TruncatesLongDescription(t *testing.T) {
	incident := testIncident(domain.IncidentStatusOpen)
	incident.Description = strings.Repeat("x", 120) + "\nsecond line"

	subject := renderSubject(NewCreatedPayload(incident, "", fixedNow))
	assert.True(t, strings.HasSuffix(subject, "..."))
	assert.NotContains(t, subject, "second line")
}

func TestTemplateFuncs(t *testing.T) {
	assert.Equal(t, "In Progress", titleCase("IN_PROGRESS"))
	assert.Equal(t, "45s", formatDuration(45*time.Second))
	assert.Equal(t, "3m", formatDuration(3*time.Minute))
	assert.Equal(t, "1h", formatDuration(time.Hour))
	assert.Equal(t, "1h 30m", formatDuration(90*time.Minute))
	assert.Empty(t, formatTime(nil))
	assert.Empty(t, formatTime((*time.Time)(nil)))
	assert.Equal(t, "Mar 1, 2026 12:00 UTC", formatTime(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)))
	assert.Equal(t, "✅", statusEmoji("CLOSED"))
	assert.Equal(t, "📋", statusEmoji("UNKNOWN"))
}

func TestCheckResponse(t *testing.T) {
	tests := []struct {
		status    int
		wantErr   bool
		retryable bool
	}{
		{http.StatusOK, false, false},
		{http.StatusNoContent, false, false},
		{http.StatusBadRequest, true, false},
		{http.StatusForbidden, true, false},
		{http.StatusNotFound, true, false},
		{http.StatusTooManyRequests, true, true},
		{http.StatusBadGateway, true, true},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			rec := httptest.NewRecorder()
			rec.WriteHeader(tt.status)
			_, _ = rec.WriteString("details")

			err := CheckResponse("webhook", rec.Result())
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, tt.retryable, isRetryable(err))
		})
	}
}

func TestMaskURL(t *testing.T) {
	assert.Equal(t, "https://short", MaskURL("https://short"))
	masked := MaskURL("https://mattermost.example.com/hooks/abcdefghijklmnopqrstuvwxyz")
	assert.Equal(t, "https://mattermost.e...qrstuvwxyz", masked)
}
