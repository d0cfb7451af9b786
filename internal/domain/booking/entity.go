package booking

import (
	"time"

	"github.com/google/uuid"
)

type Status int

const (
	StatusPending          Status = 1
	StatusConfirmed        Status = 2
	StatusCompleted        Status = 3
	StatusCancelled        Status = 4
	StatusTimeoutCancelled Status = 5
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusConfirmed:
		return "confirmed"
	case StatusCompleted:
		return "completed"
	case StatusCancelled:
		return "cancelled"
	case StatusTimeoutCancelled:
		return "timeout_cancelled"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transition can leave s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled || s == StatusTimeoutCancelled
}

// Booking is one scheduled session between a student and a coach. Exactly one
// credit source — a ledger category or a card instance — is resolved at
// creation and stored; completion dispatches on it.
type Booking struct {
	ID             int64      `gorm:"column:id;primaryKey" json:"id"`
	StudentID      int64      `gorm:"column:student_id;index" json:"student_id"`
	CoachID        int64      `gorm:"column:coach_id;index" json:"coach_id"`
	RelationshipID int64      `gorm:"column:relationship_id;index" json:"relationship_id"`
	AddressID      *int64     `gorm:"column:address_id" json:"address_id,omitempty"`
	StartTime      time.Time  `gorm:"column:start_time;index" json:"start_time"`
	EndTime        time.Time  `gorm:"column:end_time" json:"end_time"`
	CategoryID     *int64     `gorm:"column:category_id" json:"category_id,omitempty"`
	CardInstanceID *uuid.UUID `gorm:"column:card_instance_id;type:uuid" json:"card_instance_id,omitempty"`
	Status         Status     `gorm:"column:status;default:1" json:"status"`
	CreatedBy      int64      `gorm:"column:created_by" json:"created_by"`
	CancelReason   string     `gorm:"column:cancel_reason;type:text" json:"cancel_reason,omitempty"`
	CreatedAt      time.Time  `gorm:"column:created_at" json:"created_at"`
	UpdatedAt      time.Time  `gorm:"column:updated_at" json:"updated_at"`
	CancelledAt    *time.Time `gorm:"column:cancelled_at" json:"cancelled_at,omitempty"`
}

func (Booking) TableName() string { return "bookings" }

type SourceKind int

const (
	SourceCategory SourceKind = iota
	SourceCard
)

// CreditSource is the tagged variant completion dispatches on.
type CreditSource struct {
	Kind       SourceKind
	CategoryID int64
	CardID     uuid.UUID
}

func (b *Booking) CreditSource() CreditSource {
	if b.CardInstanceID != nil {
		return CreditSource{Kind: SourceCard, CardID: *b.CardInstanceID}
	}
	var catID int64
	if b.CategoryID != nil {
		catID = *b.CategoryID
	}
	return CreditSource{Kind: SourceCategory, CategoryID: catID}
}

// CoachTimeTemplate carries the coach's per-slot parallel booking capacity.
// Coaches without an active template get capacity 1.
type CoachTimeTemplate struct {
	ID           int64     `gorm:"column:id;primaryKey" json:"id"`
	CoachID      int64     `gorm:"column:coach_id;index" json:"coach_id"`
	SlotCapacity int       `gorm:"column:slot_capacity;default:1" json:"slot_capacity"`
	Active       bool      `gorm:"column:active;default:true" json:"active"`
	CreatedAt    time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt    time.Time `gorm:"column:updated_at" json:"updated_at"`
}

func (CoachTimeTemplate) TableName() string { return "coach_time_templates" }
