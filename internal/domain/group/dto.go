package group

import "time"

type CreateSessionRequest struct {
	CategoryID      int64     `json:"category_id" binding:"required"`
	Title           string    `json:"title" binding:"required,min=1,max=120"`
	StartTime       time.Time `json:"start_time" binding:"required"`
	EndTime         time.Time `json:"end_time" binding:"required"`
	CapacityMin     int       `json:"capacity_min"`
	CapacityMax     int       `json:"capacity_max" binding:"required,min=1"`
	PriceMode       string    `json:"price_mode" binding:"omitempty,oneof=credit free"`
	LessonCost      int       `json:"lesson_cost"`
	AutoConfirm     bool      `json:"auto_confirm"`
	EnrollmentScope string    `json:"enrollment_scope" binding:"omitempty,oneof=anyone students"`
}

type EndSessionRequest struct {
	Reason string `json:"reason" binding:"required,oneof=cancelled completed"`
}

type SessionView struct {
	ID              int64      `json:"id"`
	CoachID         int64      `json:"coach_id"`
	CategoryID      int64      `json:"category_id"`
	Title           string     `json:"title"`
	StartTime       time.Time  `json:"start_time"`
	EndTime         time.Time  `json:"end_time"`
	CapacityMin     int        `json:"capacity_min"`
	CapacityMax     int        `json:"capacity_max"`
	CurrentCount    int        `json:"current_count"`
	PriceMode       string     `json:"price_mode"`
	LessonCost      int        `json:"lesson_cost"`
	AutoConfirm     bool       `json:"auto_confirm"`
	EnrollmentScope string     `json:"enrollment_scope"`
	Status          int        `json:"status"`
	StatusLabel     string     `json:"status_label"`
	EndReason       string     `json:"end_reason,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

func NewSessionView(s *GroupSession) SessionView {
	return SessionView{
		ID:              s.ID,
		CoachID:         s.CoachID,
		CategoryID:      s.CategoryID,
		Title:           s.Title,
		StartTime:       s.StartTime,
		EndTime:         s.EndTime,
		CapacityMin:     s.CapacityMin,
		CapacityMax:     s.CapacityMax,
		CurrentCount:    s.CurrentCount,
		PriceMode:       string(s.PriceMode),
		LessonCost:      s.LessonCost,
		AutoConfirm:     s.AutoConfirm,
		EnrollmentScope: string(s.EnrollmentScope),
		Status:          int(s.Status),
		StatusLabel:     s.Status.String(),
		EndReason:       s.EndReason,
		CreatedAt:       s.CreatedAt,
	}
}

type RegistrationView struct {
	ID             int64     `json:"id"`
	GroupSessionID int64     `json:"group_session_id"`
	StudentID      int64     `json:"student_id"`
	RelationshipID *int64    `json:"relationship_id,omitempty"`
	Status         int       `json:"status"`
	StatusLabel    string    `json:"status_label"`
	CheckInStatus  int       `json:"check_in_status"`
	CreatedAt      time.Time `json:"created_at"`
}

func NewRegistrationView(r *GroupRegistration) RegistrationView {
	return RegistrationView{
		ID:             r.ID,
		GroupSessionID: r.GroupSessionID,
		StudentID:      r.StudentID,
		RelationshipID: r.RelationshipID,
		Status:         int(r.Status),
		StatusLabel:    r.Status.String(),
		CheckInStatus:  int(r.CheckInStatus),
		CreatedAt:      r.CreatedAt,
	}
}
