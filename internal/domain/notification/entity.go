package notification

import (
	"encoding/json"
	"time"
)

type Type string

const (
	TypeBookingCreated   Type = "booking_created"
	TypeBookingConfirmed Type = "booking_confirmed"
	TypeBookingCancelled Type = "booking_cancelled"
	TypeBookingCompleted Type = "booking_completed"

	TypeGroupRegistration Type = "group_registration"
	TypeGroupEnded        Type = "group_ended"

	TypeCardExpired Type = "card_expired"
)

// Notification is a per-user inbox record. Data carries entity references
// (booking_id, session_id, ...) as loose JSON so the inbox schema never
// changes when a new notification type appears.
type Notification struct {
	ID        int64           `gorm:"column:id;primaryKey" json:"id"`
	UserID    int64           `gorm:"column:user_id;index:idx_notifications_user_unread" json:"user_id"`
	Type      Type            `gorm:"column:type" json:"type"`
	Title     string          `gorm:"column:title" json:"title"`
	Message   string          `gorm:"column:message" json:"message"`
	Data      json.RawMessage `gorm:"column:data" json:"data,omitempty"`
	IsRead    bool            `gorm:"column:is_read;index:idx_notifications_user_unread" json:"is_read"`
	CreatedAt time.Time       `gorm:"column:created_at;index" json:"created_at"`
}

func (Notification) TableName() string {
	return "notifications"
}
