package realtime

import (
	"time"

	"github.com/google/uuid"
)

// Notification is the payload delivered on a user's channel.
type Notification struct {
	ID        uuid.UUID `json:"id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

// NewNotification builds a notification with a fresh id.
func NewNotification(content string) *Notification {
	return &Notification{
		ID:        uuid.New(),
		Content:   content,
		CreatedAt: time.Now(),
	}
}
