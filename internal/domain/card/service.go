package card

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"coachbook/internal/database"
	"coachbook/internal/domain/relationship"
)

// Service owns the prepaid-card lifecycle:
//
//	unopened --activate--> active --deactivate--> paused --reactivate--> active
//	active --(expiry passed, lazy or swept)--> expired
//
// All validity arithmetic is calendar-day based: a card expiring on day D is
// usable through the whole of D.
type Service struct {
	db *gorm.DB
}

func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

func (s *Service) CreateTemplate(ctx context.Context, coachID int64, name, color string, lessonCount *int, validDays int) (*CardTemplate, error) {
	if validDays <= 0 {
		return nil, errors.New("valid_days must be positive")
	}
	if lessonCount != nil && *lessonCount <= 0 {
		return nil, errors.New("lesson_count must be positive or null for unlimited")
	}

	t := CardTemplate{CoachID: coachID, Name: name, Color: color, LessonCount: lessonCount, ValidDays: validDays, Active: true}
	if err := s.db.WithContext(ctx).Create(&t).Error; err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *Service) SetTemplateActive(ctx context.Context, coachID, templateID int64, active bool) error {
	res := s.db.WithContext(ctx).Model(&CardTemplate{}).
		Where("id = ? AND coach_id = ?", templateID, coachID).
		Update("active", active)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrTemplateNotFound
	}
	return nil
}

// DeleteTemplate removes a disabled template. Templates that never issued a
// card are hard-deleted; everything else is soft-deleted to keep history.
func (s *Service) DeleteTemplate(ctx context.Context, coachID, templateID int64) error {
	return database.Transact(s.db.WithContext(ctx), func(tx *gorm.DB) error {
		var t CardTemplate
		err := tx.Where("id = ? AND coach_id = ?", templateID, coachID).First(&t).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrTemplateNotFound
		}
		if err != nil {
			return err
		}
		if t.Active {
			return ErrTemplateEnabled
		}

		if !t.Issued {
			return tx.Unscoped().Delete(&t).Error
		}
		return tx.Delete(&t).Error
	})
}

func (s *Service) ListTemplates(ctx context.Context, coachID int64) ([]CardTemplate, error) {
	var out []CardTemplate
	err := s.db.WithContext(ctx).Where("coach_id = ?", coachID).Order("id").Find(&out).Error
	return out, err
}

// Issue creates a card instance for a student, copying lesson count and
// validity from the template at this moment.
func (s *Service) Issue(ctx context.Context, templateID, relationshipID int64) (*CardInstance, error) {
	var ci CardInstance
	err := database.Transact(s.db.WithContext(ctx), func(tx *gorm.DB) error {
		var t CardTemplate
		err := tx.First(&t, templateID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrTemplateNotFound
		}
		if err != nil {
			return err
		}
		if !t.Active {
			return ErrTemplateDisabled
		}

		var rel relationship.Relationship
		err = tx.First(&rel, relationshipID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return relationship.ErrRelationshipNotFound
		}
		if err != nil {
			return err
		}
		if rel.CoachID != t.CoachID {
			return ErrNotRelationCoach
		}

		var remaining *int
		if t.LessonCount != nil {
			v := *t.LessonCount
			remaining = &v
		}
		ci = CardInstance{
			TemplateID:       t.ID,
			StudentID:        rel.StudentID,
			CoachID:          rel.CoachID,
			RelationshipID:   rel.ID,
			Status:           StatusUnopened,
			LessonCount:      t.LessonCount,
			RemainingLessons: remaining,
			ValidDays:        t.ValidDays,
		}
		if err := tx.Create(&ci).Error; err != nil {
			return err
		}

		if !t.Issued {
			return tx.Model(&t).Update("issued", true).Error
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &ci, nil
}

// Activate starts the validity window. Only an unopened card can be activated;
// re-activating an active card is rejected, a paused card must go through
// Reactivate.
func (s *Service) Activate(ctx context.Context, id uuid.UUID) (*CardInstance, error) {
	return s.transition(ctx, id, func(tx *gorm.DB, ci *CardInstance) error {
		switch ci.Status {
		case StatusActive:
			return ErrAlreadyActive
		case StatusPaused:
			return ErrInvalidState
		case StatusExpired:
			return ErrCardExpired
		}

		now := time.Now()
		expire := dateOnly(now).AddDate(0, 0, ci.ValidDays)
		return tx.Model(ci).Updates(map[string]interface{}{
			"status":       StatusActive,
			"activated_at": now,
			"expire_date":  expire,
		}).Error
	})
}

// Deactivate pauses an active card, freezing the unused validity in whole
// days so the student loses nothing while paused.
func (s *Service) Deactivate(ctx context.Context, id uuid.UUID) (*CardInstance, error) {
	return s.transition(ctx, id, func(tx *gorm.DB, ci *CardInstance) error {
		if ci.Status != StatusActive {
			return ErrInvalidState
		}

		remaining := 0
		if ci.ExpireDate != nil {
			remaining = daysBetween(dateOnly(time.Now()), *ci.ExpireDate)
			if remaining < 0 {
				remaining = 0
			}
		}
		return tx.Model(ci).Updates(map[string]interface{}{
			"status":               StatusPaused,
			"remaining_valid_days": remaining,
		}).Error
	})
}

// Reactivate resumes a paused card: the new expire date is today plus the
// frozen day count. Cards paused before the freeze existed fall back to their
// stale expire date and fail once that has passed.
func (s *Service) Reactivate(ctx context.Context, id uuid.UUID) (*CardInstance, error) {
	return s.transition(ctx, id, func(tx *gorm.DB, ci *CardInstance) error {
		if ci.Status != StatusPaused {
			return ErrInvalidState
		}

		if ci.RemainingValidDays == nil {
			if ci.ExpireDate == nil || dateOnly(time.Now()).After(*ci.ExpireDate) {
				return ErrCardExpired
			}
			return tx.Model(ci).Update("status", StatusActive).Error
		}

		expire := dateOnly(time.Now()).AddDate(0, 0, *ci.RemainingValidDays)
		return tx.Model(ci).Updates(map[string]interface{}{
			"status":               StatusActive,
			"expire_date":          expire,
			"remaining_valid_days": nil,
		}).Error
	})
}

// Delete removes a card that can no longer matter: expired, never opened and
// unused, or fully exhausted. Anything else is refused with the reason.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	return database.Transact(s.db.WithContext(ctx), func(tx *gorm.DB) error {
		ci, err := instanceForUpdate(tx, id)
		if err != nil {
			return err
		}
		if err := lazyExpire(tx, ci); err != nil {
			return err
		}

		switch {
		case ci.Status == StatusExpired:
		case ci.Status == StatusUnopened && ci.UsedCount == 0:
		case !ci.Unlimited() && ci.RemainingLessons != nil && *ci.RemainingLessons == 0:
		case ci.Status == StatusPaused:
			return &NotDeletableError{Reason: "card is paused with validity remaining"}
		default:
			return &NotDeletableError{Reason: "card is still usable"}
		}

		return tx.Delete(ci).Error
	})
}

// DeductLesson consumes one lesson inside the caller's transaction. It is the
// card-side counterpart of the ledger Decrease and runs at booking completion.
func (s *Service) DeductLesson(tx *gorm.DB, id uuid.UUID) error {
	ci, err := instanceForUpdate(tx, id)
	if err != nil {
		return err
	}
	if err := lazyExpire(tx, ci); err != nil {
		return err
	}

	if reason := usableReason(ci); reason != "" {
		return &UnavailableError{Reason: reason}
	}

	updates := map[string]interface{}{
		"used_count": gorm.Expr("used_count + 1"),
	}
	if !ci.Unlimited() {
		updates["remaining_lessons"] = gorm.Expr("remaining_lessons - 1")
	}
	return tx.Model(ci).Updates(updates).Error
}

// CheckAvailable is the read-only guard used before offering the card as a
// booking option. It mutates nothing, including lazy expiry.
func (s *Service) CheckAvailable(tx *gorm.DB, id uuid.UUID) error {
	var ci CardInstance
	err := tx.First(&ci, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrCardNotFound
	}
	if err != nil {
		return err
	}

	if ci.Status == StatusActive && expiredNow(&ci) {
		return &UnavailableError{Reason: "validity period has ended"}
	}
	if reason := usableReason(&ci); reason != "" {
		return &UnavailableError{Reason: reason}
	}
	return nil
}

func (s *Service) GetByID(ctx context.Context, id uuid.UUID) (*CardInstance, error) {
	var ci CardInstance
	err := database.Transact(s.db.WithContext(ctx), func(tx *gorm.DB) error {
		c, err := instanceForUpdate(tx, id)
		if err != nil {
			return err
		}
		if err := lazyExpire(tx, c); err != nil {
			return err
		}
		ci = *c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &ci, nil
}

func (s *Service) ListByRelationship(ctx context.Context, relationshipID int64) ([]CardInstance, error) {
	var out []CardInstance
	err := s.db.WithContext(ctx).Where("relationship_id = ?", relationshipID).Order("created_at").Find(&out).Error
	return out, err
}

func (s *Service) ListByStudent(ctx context.Context, studentID int64) ([]CardInstance, error) {
	var out []CardInstance
	err := s.db.WithContext(ctx).Where("student_id = ?", studentID).Order("created_at").Find(&out).Error
	return out, err
}

func (s *Service) transition(ctx context.Context, id uuid.UUID, fn func(tx *gorm.DB, ci *CardInstance) error) (*CardInstance, error) {
	var out CardInstance
	err := database.Transact(s.db.WithContext(ctx), func(tx *gorm.DB) error {
		ci, err := instanceForUpdate(tx, id)
		if err != nil {
			return err
		}
		if err := lazyExpire(tx, ci); err != nil {
			return err
		}
		if err := fn(tx, ci); err != nil {
			return err
		}
		return tx.First(&out, "id = ?", id).Error
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func instanceForUpdate(tx *gorm.DB, id uuid.UUID) (*CardInstance, error) {
	var ci CardInstance
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&ci, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrCardNotFound
	}
	if err != nil {
		return nil, err
	}
	return &ci, nil
}

// lazyExpire flips an active card whose window has ended. The sweeper does the
// same in bulk; this covers reads that land between sweeps.
func lazyExpire(tx *gorm.DB, ci *CardInstance) error {
	if ci.Status != StatusActive || !expiredNow(ci) {
		return nil
	}
	if err := tx.Model(ci).Update("status", StatusExpired).Error; err != nil {
		return err
	}
	ci.Status = StatusExpired
	return nil
}

func expiredNow(ci *CardInstance) bool {
	return ci.ExpireDate != nil && dateOnly(time.Now()).After(*ci.ExpireDate)
}

// usableReason returns the stable reason a card cannot cover a lesson, or ""
// when it can.
func usableReason(ci *CardInstance) string {
	switch ci.Status {
	case StatusUnopened:
		return "card has not been activated"
	case StatusPaused:
		return "card is paused"
	case StatusExpired:
		return "validity period has ended"
	}
	if !ci.Unlimited() && (ci.RemainingLessons == nil || *ci.RemainingLessons <= 0) {
		return "no lessons left on card"
	}
	return ""
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func daysBetween(from, to time.Time) int {
	return int(to.Sub(from).Hours() / 24)
}
