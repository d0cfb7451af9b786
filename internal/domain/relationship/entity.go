package relationship

import "time"

// Relationship binds one student to one coach and scopes a credit ledger.
// Unbinding soft-disables the pair while open bookings still reference it.
type Relationship struct {
	ID             int64     `gorm:"column:id;primaryKey" json:"id"`
	StudentID      int64     `gorm:"column:student_id;uniqueIndex:idx_relationships_pair" json:"student_id"`
	CoachID        int64     `gorm:"column:coach_id;uniqueIndex:idx_relationships_pair" json:"coach_id"`
	Active         bool      `gorm:"column:active;default:true" json:"active"`
	BookingEnabled bool      `gorm:"column:booking_enabled;default:true" json:"booking_enabled"`
	Timezone       string    `gorm:"column:timezone;default:UTC" json:"timezone"`
	CreatedAt      time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt      time.Time `gorm:"column:updated_at" json:"updated_at"`
}

func (Relationship) TableName() string { return "relationships" }

// Category is a coach-defined course type. Every coach carries exactly one
// default category that can never be deleted.
type Category struct {
	ID        int64     `gorm:"column:id;primaryKey" json:"id"`
	CoachID   int64     `gorm:"column:coach_id;index" json:"coach_id"`
	Name      string    `gorm:"column:name" json:"name"`
	IsDefault bool      `gorm:"column:is_default;default:false" json:"is_default"`
	CreatedAt time.Time `gorm:"column:created_at" json:"created_at"`
}

func (Category) TableName() string { return "categories" }

// CategoryBalance tracks remaining lesson credits for one relationship in one
// category. Remaining never goes below zero. Once the expire date has passed
// the row is lazily cleared: Remaining drops to zero, IsCleared flips on and
// the pre-clear value is captured exactly once in OriginalBeforeClear.
type CategoryBalance struct {
	ID                  int64      `gorm:"column:id;primaryKey" json:"id"`
	RelationshipID      int64      `gorm:"column:relationship_id;uniqueIndex:idx_balances_rel_cat" json:"relationship_id"`
	CategoryID          int64      `gorm:"column:category_id;uniqueIndex:idx_balances_rel_cat" json:"category_id"`
	Remaining           int        `gorm:"column:remaining;default:0" json:"remaining"`
	ExpireDate          *time.Time `gorm:"column:expire_date" json:"expire_date,omitempty"`
	IsCleared           bool       `gorm:"column:is_cleared;default:false" json:"is_cleared"`
	OriginalBeforeClear *int       `gorm:"column:original_before_clear" json:"original_before_clear,omitempty"`
	CreatedAt           time.Time  `gorm:"column:created_at" json:"created_at"`
	UpdatedAt           time.Time  `gorm:"column:updated_at" json:"updated_at"`
}

func (CategoryBalance) TableName() string { return "category_balances" }

// Credit log reasons.
const (
	LogLessonExpire   = "lesson_expire"
	LogLessonComplete = "lesson_complete"
	LogGroupCheckIn   = "group_checkin"
	LogCheckInRevert  = "checkin_revert"
	LogManualAdjust   = "manual_adjust"
)

// CreditLog is the append-only audit trail of every balance mutation.
// Balance holds the remaining value after the change was applied.
type CreditLog struct {
	ID             int64     `gorm:"column:id;primaryKey" json:"id"`
	RelationshipID int64     `gorm:"column:relationship_id;index" json:"relationship_id"`
	CategoryID     int64     `gorm:"column:category_id" json:"category_id"`
	Change         int       `gorm:"column:change" json:"change"`
	Balance        int       `gorm:"column:balance" json:"balance"`
	Reason         string    `gorm:"column:reason;type:varchar(32);index" json:"reason"`
	CreatedAt      time.Time `gorm:"column:created_at" json:"created_at"`
}

func (CreditLog) TableName() string { return "credit_logs" }
