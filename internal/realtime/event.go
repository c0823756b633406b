package realtime

import "time"

// Event types pushed over live channels.
const (
	EventNotification = "notification"
	EventSystem       = "system"
)

// NotificationPayload carries enough of the notification for a client
// to render or badge-update without a follow-up fetch.
type NotificationPayload struct {
	ID        int64     `json:"id"`
	Kind      string    `json:"kind"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
	Read      bool      `json:"read"`
}

// Event is the envelope written to a live channel.
type Event struct {
	Type         string               `json:"type"`
	Notification *NotificationPayload `json:"notification,omitempty"`
	Message      string               `json:"message,omitempty"`
}
