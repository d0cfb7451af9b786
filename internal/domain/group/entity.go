package group

import "time"

type SessionStatus int

const (
	SessionDraft SessionStatus = 0
	SessionOpen  SessionStatus = 1
	SessionEnded SessionStatus = 2
)

func (s SessionStatus) String() string {
	switch s {
	case SessionDraft:
		return "draft"
	case SessionOpen:
		return "open"
	case SessionEnded:
		return "ended"
	default:
		return "unknown"
	}
}

type PriceMode string

const (
	PriceModeCredit PriceMode = "credit"
	PriceModeFree   PriceMode = "free"
)

type EnrollmentScope string

const (
	ScopeAnyone   EnrollmentScope = "anyone"
	ScopeStudents EnrollmentScope = "students"
)

// End reasons. Ending is terminal; the label records how the session ended.
const (
	EndReasonCancelled = "cancelled"
	EndReasonCompleted = "completed"
	EndReasonShortfall = "insufficient participants"
)

// GroupSession is a one-to-many slot: one coach, one time window, many
// students each consuming credits independently at check-in.
type GroupSession struct {
	ID              int64           `gorm:"column:id;primaryKey" json:"id"`
	CoachID         int64           `gorm:"column:coach_id;index" json:"coach_id"`
	CategoryID      int64           `gorm:"column:category_id" json:"category_id"`
	Title           string          `gorm:"column:title" json:"title"`
	StartTime       time.Time       `gorm:"column:start_time;index" json:"start_time"`
	EndTime         time.Time       `gorm:"column:end_time" json:"end_time"`
	CapacityMin     int             `gorm:"column:capacity_min" json:"capacity_min"`
	CapacityMax     int             `gorm:"column:capacity_max" json:"capacity_max"`
	CurrentCount    int             `gorm:"column:current_count;default:0" json:"current_count"`
	PriceMode       PriceMode       `gorm:"column:price_mode;type:varchar(16)" json:"price_mode"`
	LessonCost      int             `gorm:"column:lesson_cost" json:"lesson_cost"`
	AutoConfirm     bool            `gorm:"column:auto_confirm" json:"auto_confirm"`
	EnrollmentScope EnrollmentScope `gorm:"column:enrollment_scope;type:varchar(16)" json:"enrollment_scope"`
	Status          SessionStatus   `gorm:"column:status;default:0" json:"status"`
	EndReason       string          `gorm:"column:end_reason" json:"end_reason,omitempty"`
	CreatedAt       time.Time       `gorm:"column:created_at" json:"created_at"`
	UpdatedAt       time.Time       `gorm:"column:updated_at" json:"updated_at"`
}

func (GroupSession) TableName() string { return "group_sessions" }

// CanEnroll is the capacity gate for new registrations.
func (s *GroupSession) CanEnroll() bool {
	return s.Status == SessionOpen && s.CurrentCount < s.CapacityMax
}

type RegistrationStatus int

const (
	RegistrationPending   RegistrationStatus = 1
	RegistrationConfirmed RegistrationStatus = 2
	RegistrationCompleted RegistrationStatus = 3
	RegistrationCancelled RegistrationStatus = 4
	RegistrationRejected  RegistrationStatus = 5
)

func (s RegistrationStatus) String() string {
	switch s {
	case RegistrationPending:
		return "pending"
	case RegistrationConfirmed:
		return "confirmed"
	case RegistrationCompleted:
		return "completed"
	case RegistrationCancelled:
		return "cancelled"
	case RegistrationRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

type CheckInStatus int

const (
	CheckInNone   CheckInStatus = 0
	CheckedIn     CheckInStatus = 1
	CheckInAbsent CheckInStatus = 2
)

// GroupRegistration tracks one student in one session. Check-in is the only
// event that debits credits; registering merely reserves them.
type GroupRegistration struct {
	ID             int64              `gorm:"column:id;primaryKey" json:"id"`
	GroupSessionID int64              `gorm:"column:group_session_id;index" json:"group_session_id"`
	StudentID      int64              `gorm:"column:student_id;index" json:"student_id"`
	RelationshipID *int64             `gorm:"column:relationship_id;index" json:"relationship_id,omitempty"`
	Status         RegistrationStatus `gorm:"column:status;default:1" json:"status"`
	CheckInStatus  CheckInStatus      `gorm:"column:check_in_status;default:0" json:"check_in_status"`
	CreatedAt      time.Time          `gorm:"column:created_at" json:"created_at"`
	UpdatedAt      time.Time          `gorm:"column:updated_at" json:"updated_at"`
}

func (GroupRegistration) TableName() string { return "group_registrations" }
