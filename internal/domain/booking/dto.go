package booking

import (
	"time"

	"github.com/google/uuid"
)

// CreateRequest carries the creation parameters. Exactly one of CategoryID
// and CardInstanceID must be set.
type CreateRequest struct {
	RelationshipID int64      `json:"relationship_id" binding:"required"`
	CategoryID     *int64     `json:"category_id"`
	CardInstanceID *uuid.UUID `json:"card_instance_id"`
	AddressID      *int64     `json:"address_id"`
	StartTime      time.Time  `json:"start_time" binding:"required"`
	EndTime        time.Time  `json:"end_time" binding:"required"`
}

type TransitionRequest struct {
	Action string `json:"action" binding:"required"`
	Reason string `json:"reason"`
}

type SlotCapacityRequest struct {
	SlotCapacity int `json:"slot_capacity" binding:"required,gte=1"`
}

// View adds the human-readable status to a booking for API responses.
type View struct {
	Booking
	StatusLabel string `json:"status_label"`
}

func NewView(b *Booking) View {
	return View{Booking: *b, StatusLabel: b.Status.String()}
}
