package card

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// CardTemplate is a coach-defined prepaid package. Once instances have been
// issued from it the template is frozen except for enable/disable, and
// deletion becomes a soft delete to preserve issuance history.
type CardTemplate struct {
	ID          int64          `gorm:"column:id;primaryKey" json:"id"`
	CoachID     int64          `gorm:"column:coach_id;index" json:"coach_id"`
	Name        string         `gorm:"column:name" json:"name"`
	Color       string         `gorm:"column:color;type:varchar(16)" json:"color"`
	LessonCount *int           `gorm:"column:lesson_count" json:"lesson_count,omitempty"` // nil = unlimited
	ValidDays   int            `gorm:"column:valid_days" json:"valid_days"`
	Active      bool           `gorm:"column:active;default:true" json:"active"`
	Issued      bool           `gorm:"column:issued;default:false" json:"issued"`
	CreatedAt   time.Time      `gorm:"column:created_at" json:"created_at"`
	UpdatedAt   time.Time      `gorm:"column:updated_at" json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"column:deleted_at;index" json:"-"`
}

func (CardTemplate) TableName() string { return "card_templates" }

type Status string

const (
	StatusUnopened Status = "unopened"
	StatusActive   Status = "active"
	StatusPaused   Status = "paused"
	StatusExpired  Status = "expired"
)

// CardInstance is one issued card. Lesson count and validity are copied from
// the template at issuance; later template edits never reach issued cards.
// The expire date stays nil until first activation. Pausing freezes the
// remaining validity in whole days, resuming computes a fresh expire date from
// the frozen value and clears it.
type CardInstance struct {
	ID                 uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	TemplateID         int64      `gorm:"column:template_id;index" json:"template_id"`
	StudentID          int64      `gorm:"column:student_id;index" json:"student_id"`
	CoachID            int64      `gorm:"column:coach_id;index" json:"coach_id"`
	RelationshipID     int64      `gorm:"column:relationship_id;index" json:"relationship_id"`
	Status             Status     `gorm:"column:status;type:varchar(16);default:unopened" json:"status"`
	LessonCount        *int       `gorm:"column:lesson_count" json:"lesson_count,omitempty"`
	RemainingLessons   *int       `gorm:"column:remaining_lessons" json:"remaining_lessons,omitempty"`
	UsedCount          int        `gorm:"column:used_count;default:0" json:"used_count"`
	ValidDays          int        `gorm:"column:valid_days" json:"valid_days"`
	ActivatedAt        *time.Time `gorm:"column:activated_at" json:"activated_at,omitempty"`
	ExpireDate         *time.Time `gorm:"column:expire_date" json:"expire_date,omitempty"`
	RemainingValidDays *int       `gorm:"column:remaining_valid_days" json:"remaining_valid_days,omitempty"`
	CreatedAt          time.Time  `gorm:"column:created_at" json:"created_at"`
	UpdatedAt          time.Time  `gorm:"column:updated_at" json:"updated_at"`
}

func (CardInstance) TableName() string { return "card_instances" }

func (ci *CardInstance) BeforeCreate(_ *gorm.DB) error {
	if ci.ID == uuid.Nil {
		ci.ID = uuid.New()
	}
	return nil
}

// Unlimited reports whether the card carries no lesson count.
func (ci *CardInstance) Unlimited() bool { return ci.LessonCount == nil }
