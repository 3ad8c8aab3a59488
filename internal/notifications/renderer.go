package notifications

import (
	"bytes"
	"embed"
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/bissquit/incident-tracker/internal/domain"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

//go:embed templates/*.tmpl
var templatesFS embed.FS

var (
	renderedChannels = []domain.ChannelType{domain.ChannelTypeMattermost, domain.ChannelTypeWebhook, domain.ChannelTypeEmail}
	renderedMessages = []MessageType{MessageTypeCreated, MessageTypeInProgress, MessageTypeClosed}
)

// Renderer renders notifications from templates.
type Renderer struct {
	templates map[string]*template.Template
}

// NewRenderer creates a new renderer and loads all templates.
func NewRenderer() (*Renderer, error) {
	funcMap := template.FuncMap{
		"title":          titleCase,
		"upper":          strings.ToUpper,
		"formatTime":     formatTime,
		"formatDuration": formatDuration,
		"statusEmoji":    statusEmoji,
	}

	r := &Renderer{templates: make(map[string]*template.Template)}

	for _, channel := range renderedChannels {
		for _, msg := range renderedMessages {
			name := templateName(channel, msg)
			filename := fmt.Sprintf("templates/%s.tmpl", name)

			content, err := templatesFS.ReadFile(filename)
			if err != nil {
				return nil, fmt.Errorf("read template %s: %w", filename, err)
			}

			tmpl, err := template.New(name).Funcs(funcMap).Option("missingkey=error").Parse(string(content))
			if err != nil {
				return nil, fmt.Errorf("parse template %s: %w", name, err)
			}

			r.templates[name] = tmpl
		}
	}

	return r, nil
}

func templateName(channel domain.ChannelType, msg MessageType) string {
	return fmt.Sprintf("%s_%s", channel, msg)
}

// Render renders a notification payload for the specified channel type.
// Returns subject and body.
func (r *Renderer) Render(channelType domain.ChannelType, payload NotificationPayload) (subject, body string, err error) {
	subject = renderSubject(payload)

	name := templateName(channelType, payload.MessageType)
	tmpl, ok := r.templates[name]
	if !ok {
		return "", "", fmt.Errorf("template not found: %s", name)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, payload); err != nil {
		return "", "", fmt.Errorf("execute template %s: %w", name, err)
	}

	return subject, strings.TrimSpace(buf.String()), nil
}

func renderSubject(payload NotificationPayload) string {
	var prefix string
	switch payload.MessageType {
	case MessageTypeCreated:
		prefix = "New incident"
	case MessageTypeInProgress:
		prefix = "In progress"
	case MessageTypeClosed:
		prefix = "Closed"
	default:
		prefix = "Notification"
	}

	return fmt.Sprintf("[%s] %s: %s", prefix, payload.Incident.Number, firstLine(payload.Incident.Description))
}

// firstLine returns the first line of s, truncated to 80 runes.
func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	runes := []rune(strings.TrimSpace(s))
	if len(runes) > 80 {
		return string(runes[:77]) + "..."
	}
	return string(runes)
}

var titleCaser = cases.Title(language.English)

// titleCase turns a status such as IN_PROGRESS into "In Progress".
func titleCase(s string) string {
	return titleCaser.String(strings.ReplaceAll(s, "_", " "))
}

// formatTime accepts time.Time or *time.Time; a nil pointer renders empty.
func formatTime(v any) string {
	switch t := v.(type) {
	case time.Time:
		return t.UTC().Format("Jan 2, 2006 15:04 UTC")
	case *time.Time:
		if t != nil {
			return t.UTC().Format("Jan 2, 2006 15:04 UTC")
		}
	}
	return ""
}

func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}

	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60

	if hours > 0 {
		if minutes > 0 {
			return fmt.Sprintf("%dh %dm", hours, minutes)
		}
		return fmt.Sprintf("%dh", hours)
	}
	return fmt.Sprintf("%dm", minutes)
}

func statusEmoji(status string) string {
	switch domain.IncidentStatus(status) {
	case domain.IncidentStatusOpen:
		return "🔴"
	case domain.IncidentStatusInProgress:
		return "🔧"
	case domain.IncidentStatusClosed:
		return "✅"
	default:
		return "📋"
	}
}
