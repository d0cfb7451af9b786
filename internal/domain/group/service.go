package group

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"coachbook/internal/database"
	"coachbook/internal/domain/relationship"
)

// Service manages group sessions and their registrations. current_count is
// only ever touched under the session row lock, so capacity can never be
// oversubscribed by concurrent registrations.
type Service struct {
	db     *gorm.DB
	ledger CreditLedger
	notifs NotificationSender
}

func NewService(db *gorm.DB, ledger CreditLedger, notifs NotificationSender) *Service {
	return &Service{db: db, ledger: ledger, notifs: notifs}
}

func (s *Service) CreateSession(ctx context.Context, coachID int64, req CreateSessionRequest) (*GroupSession, error) {
	if !req.EndTime.After(req.StartTime) || req.StartTime.Before(time.Now()) {
		return nil, ErrValidation
	}
	if req.CapacityMax < 1 || req.CapacityMin < 0 || req.CapacityMin > req.CapacityMax {
		return nil, ErrValidation
	}

	mode := PriceMode(req.PriceMode)
	if mode == "" {
		mode = PriceModeCredit
	}
	if mode != PriceModeCredit && mode != PriceModeFree {
		return nil, ErrValidation
	}
	cost := req.LessonCost
	if mode == PriceModeCredit && cost < 1 {
		cost = 1
	}
	if mode == PriceModeFree {
		cost = 0
	}

	scope := EnrollmentScope(req.EnrollmentScope)
	if scope == "" {
		scope = ScopeStudents
	}
	if scope != ScopeAnyone && scope != ScopeStudents {
		return nil, ErrValidation
	}

	var sess GroupSession
	err := database.Transact(s.db.WithContext(ctx), func(tx *gorm.DB) error {
		var cat relationship.Category
		err := tx.First(&cat, req.CategoryID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return relationship.ErrCategoryNotFound
		}
		if err != nil {
			return err
		}
		if cat.CoachID != coachID {
			return relationship.ErrNotRelationshipCoach
		}

		sess = GroupSession{
			CoachID:         coachID,
			CategoryID:      req.CategoryID,
			Title:           req.Title,
			StartTime:       req.StartTime,
			EndTime:         req.EndTime,
			CapacityMin:     req.CapacityMin,
			CapacityMax:     req.CapacityMax,
			PriceMode:       mode,
			LessonCost:      cost,
			AutoConfirm:     req.AutoConfirm,
			EnrollmentScope: scope,
			Status:          SessionDraft,
		}
		return tx.Create(&sess).Error
	})
	if err != nil {
		return nil, err
	}
	return &sess, nil
}

// Publish opens a draft session for enrollment.
func (s *Service) Publish(ctx context.Context, coachID, sessionID int64) (*GroupSession, error) {
	return s.mutateSession(ctx, sessionID, func(tx *gorm.DB, sess *GroupSession) error {
		if sess.CoachID != coachID {
			return ErrForbidden
		}
		if sess.Status != SessionDraft {
			return ErrSessionNotDraft
		}
		return tx.Model(sess).Update("status", SessionOpen).Error
	})
}

// Register enrolls a student. Credits are reserved, not debited: the
// availability check counts this registration into the occupancy of later
// checks, and the actual deduction waits for check-in.
func (s *Service) Register(ctx context.Context, studentID, sessionID int64) (*GroupRegistration, error) {
	var reg GroupRegistration
	var sess GroupSession

	err := database.Transact(s.db.WithContext(ctx), func(tx *gorm.DB) error {
		if err := sessionForUpdate(tx, sessionID, &sess); err != nil {
			return err
		}
		if !sess.CanEnroll() {
			if sess.Status != SessionOpen {
				return ErrSessionNotOpen
			}
			return ErrSessionFull
		}

		var existing int64
		err := tx.Model(&GroupRegistration{}).
			Where("group_session_id = ? AND student_id = ? AND status NOT IN (4, 5)", sessionID, studentID).
			Count(&existing).Error
		if err != nil {
			return err
		}
		if existing > 0 {
			return ErrAlreadyRegistered
		}

		var relID *int64
		var rel relationship.Relationship
		err = tx.Where("student_id = ? AND coach_id = ?", studentID, sess.CoachID).First(&rel).Error
		switch {
		case err == nil && rel.Active:
			relID = &rel.ID
		case err != nil && !errors.Is(err, gorm.ErrRecordNotFound):
			return err
		}

		if sess.EnrollmentScope == ScopeStudents && relID == nil {
			return ErrRelationshipRequired
		}
		if sess.PriceMode == PriceModeCredit {
			if relID == nil {
				return ErrRelationshipRequired
			}
			avail, err := s.ledger.AvailableForBooking(tx, *relID, sess.CategoryID)
			if err != nil {
				return err
			}
			if avail < sess.LessonCost {
				return relationship.ErrInsufficientCredit
			}
		}

		status := RegistrationPending
		if sess.AutoConfirm {
			status = RegistrationConfirmed
			if err := bumpCount(tx, &sess, 1); err != nil {
				return err
			}
		}

		reg = GroupRegistration{
			GroupSessionID: sessionID,
			StudentID:      studentID,
			RelationshipID: relID,
			Status:         status,
			CheckInStatus:  CheckInNone,
		}
		return tx.Create(&reg).Error
	})
	if err != nil {
		return nil, err
	}

	if s.notifs != nil {
		_ = s.notifs.NotifyGroupRegistration(ctx, sess.CoachID, sessionID, studentID)
	}
	return &reg, nil
}

// ConfirmRegistration is the coach's manual-confirm path; it re-checks
// capacity under the session lock before taking the seat.
func (s *Service) ConfirmRegistration(ctx context.Context, coachID, registrationID int64) (*GroupRegistration, error) {
	return s.mutateRegistration(ctx, registrationID, func(tx *gorm.DB, sess *GroupSession, reg *GroupRegistration) error {
		if sess.CoachID != coachID {
			return ErrForbidden
		}
		if reg.Status != RegistrationPending {
			return ErrInvalidRegState
		}
		if !sess.CanEnroll() {
			if sess.Status != SessionOpen {
				return ErrSessionNotOpen
			}
			return ErrSessionFull
		}

		if err := bumpCount(tx, sess, 1); err != nil {
			return err
		}
		return tx.Model(reg).Update("status", RegistrationConfirmed).Error
	})
}

func (s *Service) RejectRegistration(ctx context.Context, coachID, registrationID int64) (*GroupRegistration, error) {
	return s.mutateRegistration(ctx, registrationID, func(tx *gorm.DB, sess *GroupSession, reg *GroupRegistration) error {
		if sess.CoachID != coachID {
			return ErrForbidden
		}
		if reg.Status != RegistrationPending {
			return ErrInvalidRegState
		}
		return tx.Model(reg).Update("status", RegistrationRejected).Error
	})
}

// CancelRegistration frees the seat when a confirmed registration backs out.
// A merely pending registration never held a seat, so the count stays put.
func (s *Service) CancelRegistration(ctx context.Context, actorID, registrationID int64) (*GroupRegistration, error) {
	return s.mutateRegistration(ctx, registrationID, func(tx *gorm.DB, sess *GroupSession, reg *GroupRegistration) error {
		if actorID != reg.StudentID && actorID != sess.CoachID {
			return ErrForbidden
		}
		if reg.Status != RegistrationPending && reg.Status != RegistrationConfirmed {
			return ErrInvalidRegState
		}

		if reg.Status == RegistrationConfirmed {
			if err := bumpCount(tx, sess, -1); err != nil {
				return err
			}
		}
		return tx.Model(reg).Update("status", RegistrationCancelled).Error
	})
}

// CheckIn is the single point where a group session debits the ledger. The
// deduction and the status flip commit together or not at all.
func (s *Service) CheckIn(ctx context.Context, coachID, registrationID int64) (*GroupRegistration, error) {
	return s.mutateRegistration(ctx, registrationID, func(tx *gorm.DB, sess *GroupSession, reg *GroupRegistration) error {
		if sess.CoachID != coachID {
			return ErrForbidden
		}
		if reg.Status != RegistrationConfirmed {
			return ErrInvalidRegState
		}

		if sess.PriceMode == PriceModeCredit {
			if reg.RelationshipID == nil {
				return ErrRelationshipRequired
			}
			err := s.ledger.Decrease(tx, *reg.RelationshipID, sess.CategoryID, sess.LessonCost, relationship.LogGroupCheckIn)
			if err != nil {
				return err
			}
		}

		return tx.Model(reg).Updates(map[string]interface{}{
			"status":          RegistrationCompleted,
			"check_in_status": CheckedIn,
		}).Error
	})
}

func (s *Service) MarkAbsent(ctx context.Context, coachID, registrationID int64) (*GroupRegistration, error) {
	return s.mutateRegistration(ctx, registrationID, func(tx *gorm.DB, sess *GroupSession, reg *GroupRegistration) error {
		if sess.CoachID != coachID {
			return ErrForbidden
		}
		if reg.Status != RegistrationConfirmed {
			return ErrInvalidRegState
		}
		return tx.Model(reg).Update("check_in_status", CheckInAbsent).Error
	})
}

// RevertCheckIn compensates a mistaken check-in: the debited lesson cost goes
// back onto the ledger and the registration returns to confirmed.
func (s *Service) RevertCheckIn(ctx context.Context, coachID, registrationID int64) (*GroupRegistration, error) {
	return s.mutateRegistration(ctx, registrationID, func(tx *gorm.DB, sess *GroupSession, reg *GroupRegistration) error {
		if sess.CoachID != coachID {
			return ErrForbidden
		}
		if reg.Status != RegistrationCompleted || reg.CheckInStatus != CheckedIn {
			return ErrNotCheckedIn
		}

		if sess.PriceMode == PriceModeCredit && reg.RelationshipID != nil {
			err := s.ledger.Increase(tx, *reg.RelationshipID, sess.CategoryID, sess.LessonCost, relationship.LogCheckInRevert)
			if err != nil {
				return err
			}
		}

		return tx.Model(reg).Updates(map[string]interface{}{
			"status":          RegistrationConfirmed,
			"check_in_status": CheckInNone,
		}).Error
	})
}

// EndSession closes an open session. Ending is terminal.
func (s *Service) EndSession(ctx context.Context, coachID, sessionID int64, reason string) (*GroupSession, error) {
	if reason != EndReasonCancelled && reason != EndReasonCompleted {
		return nil, ErrValidation
	}

	sess, err := s.mutateSession(ctx, sessionID, func(tx *gorm.DB, sess *GroupSession) error {
		if sess.CoachID != coachID {
			return ErrForbidden
		}
		if sess.Status == SessionEnded {
			return ErrSessionEnded
		}
		return tx.Model(sess).Updates(map[string]interface{}{
			"status":     SessionEnded,
			"end_reason": reason,
		}).Error
	})
	if err != nil {
		return nil, err
	}

	if s.notifs != nil {
		regs, lerr := s.ListRegistrations(ctx, sessionID)
		if lerr == nil {
			for _, reg := range regs {
				if reg.Status == RegistrationPending || reg.Status == RegistrationConfirmed {
					_ = s.notifs.NotifyGroupEnded(ctx, reg.StudentID, sessionID, reason)
				}
			}
		}
	}
	return sess, nil
}

func (s *Service) GetSession(ctx context.Context, id int64) (*GroupSession, error) {
	var sess GroupSession
	err := s.db.WithContext(ctx).First(&sess, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	return &sess, nil
}

func (s *Service) ListSessionsByCoach(ctx context.Context, coachID int64) ([]GroupSession, error) {
	var out []GroupSession
	err := s.db.WithContext(ctx).Where("coach_id = ?", coachID).Order("start_time DESC").Find(&out).Error
	return out, err
}

func (s *Service) ListOpenSessions(ctx context.Context, limit int) ([]GroupSession, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	var out []GroupSession
	err := s.db.WithContext(ctx).
		Where("status = ? AND start_time > ?", SessionOpen, time.Now()).
		Order("start_time").Limit(limit).
		Find(&out).Error
	return out, err
}

func (s *Service) ListRegistrations(ctx context.Context, sessionID int64) ([]GroupRegistration, error) {
	var out []GroupRegistration
	err := s.db.WithContext(ctx).Where("group_session_id = ?", sessionID).Order("id").Find(&out).Error
	return out, err
}

func (s *Service) ListMyRegistrations(ctx context.Context, studentID int64) ([]GroupRegistration, error) {
	var out []GroupRegistration
	err := s.db.WithContext(ctx).Where("student_id = ?", studentID).Order("id DESC").Find(&out).Error
	return out, err
}

func (s *Service) mutateSession(ctx context.Context, sessionID int64, fn func(tx *gorm.DB, sess *GroupSession) error) (*GroupSession, error) {
	var out GroupSession
	err := database.Transact(s.db.WithContext(ctx), func(tx *gorm.DB) error {
		var sess GroupSession
		if err := sessionForUpdate(tx, sessionID, &sess); err != nil {
			return err
		}
		if err := fn(tx, &sess); err != nil {
			return err
		}
		return tx.First(&out, sessionID).Error
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *Service) mutateRegistration(ctx context.Context, registrationID int64, fn func(tx *gorm.DB, sess *GroupSession, reg *GroupRegistration) error) (*GroupRegistration, error) {
	var out GroupRegistration
	err := database.Transact(s.db.WithContext(ctx), func(tx *gorm.DB) error {
		var reg GroupRegistration
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&reg, registrationID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrRegistrationNotFound
		}
		if err != nil {
			return err
		}

		var sess GroupSession
		if err := sessionForUpdate(tx, reg.GroupSessionID, &sess); err != nil {
			return err
		}
		if err := fn(tx, &sess, &reg); err != nil {
			return err
		}
		return tx.First(&out, registrationID).Error
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func sessionForUpdate(tx *gorm.DB, id int64, sess *GroupSession) error {
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(sess, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrSessionNotFound
	}
	return err
}

func bumpCount(tx *gorm.DB, sess *GroupSession, delta int) error {
	next := sess.CurrentCount + delta
	if next < 0 {
		next = 0
	}
	if err := tx.Model(sess).Update("current_count", next).Error; err != nil {
		return err
	}
	sess.CurrentCount = next
	return nil
}
