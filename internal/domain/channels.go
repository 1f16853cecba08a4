package domain

type ChannelType string

const (
	ChannelEmail    ChannelType = "email"
	ChannelTelegram ChannelType = "telegram"
	ChannelSlack    ChannelType = "slack"
	ChannelSMS      ChannelType = "sms"
)

// NotificationChannel is a per-user delivery destination: an email address,
// a chat id, a webhook URL or a phone number depending on Type.
type NotificationChannel struct {
	ID          int64             `json:"id"`
	UserID      int64             `json:"user_id"`
	Type        ChannelType       `json:"type"`
	Destination string            `json:"destination"`
	Enabled     bool              `json:"enabled"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// Subscriber is a user with an active subscription to a monitor, along
// with all of that user's channels.
type Subscriber struct {
	UserID   int64                 `json:"user_id"`
	Name     string                `json:"name"`
	Channels []NotificationChannel `json:"channels"`
}

// Payload is what every transport receives for one transition.
type Payload struct {
	MonitorID MonitorID `json:"monitor_id"`
	URL       string    `json:"url"`
	Status    Status    `json:"status"`
	Message   string    `json:"message"`
}
