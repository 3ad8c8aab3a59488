package domain

// ChannelType identifies how a notification is delivered.
type ChannelType string

// Channel types.
const (
	ChannelTypeMattermost ChannelType = "mattermost"
	ChannelTypeWebhook    ChannelType = "webhook"
	ChannelTypeEmail      ChannelType = "email"
)

// IsValid reports whether t is a supported channel type.
func (t ChannelType) IsValid() bool {
	switch t {
	case ChannelTypeMattermost, ChannelTypeWebhook, ChannelTypeEmail:
		return true
	}
	return false
}

// NotificationChannel is a configured notification destination.
type NotificationChannel struct {
	Name   string
	Type   ChannelType
	Target string
}
