package booking

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"coachbook/internal/database"
	"coachbook/internal/domain/card"
	"coachbook/internal/domain/relationship"
)

// Transition actions accepted by Transition.
const (
	ActionConfirm  = "confirm"
	ActionCancel   = "cancel"
	ActionComplete = "complete"
)

// Service drives the booking state machine:
//
//	pending -confirm-> confirmed -complete-> completed
//	pending|confirmed -cancel-> cancelled
//	pending -(sweep)-> timeout_cancelled
//
// Credits are only reserved at creation (via the occupancy count) and debited
// at completion, inside the completion transaction.
type Service struct {
	db        *gorm.DB
	ledger    CreditLedger
	cards     CardLedger
	users     UserDirectory
	addresses AddressDirectory
	notifs    NotificationSender
}

func NewService(db *gorm.DB, ledger CreditLedger, cards CardLedger, users UserDirectory, addresses AddressDirectory, notifs NotificationSender) *Service {
	return &Service{db: db, ledger: ledger, cards: cards, users: users, addresses: addresses, notifs: notifs}
}

// Create validates every precondition and inserts the booking as pending, all
// inside one transaction so two concurrent requests cannot both pass the
// conflict and availability checks.
func (s *Service) Create(ctx context.Context, actorID int64, req CreateRequest) (*Booking, error) {
	if !req.EndTime.After(req.StartTime) {
		return nil, ErrValidation
	}
	if req.StartTime.Before(time.Now()) {
		return nil, ErrValidation
	}
	if (req.CategoryID == nil) == (req.CardInstanceID == nil) {
		return nil, ErrAmbiguousSource
	}

	var b Booking
	err := database.Transact(s.db.WithContext(ctx), func(tx *gorm.DB) error {
		var rel relationship.Relationship
		err := tx.First(&rel, req.RelationshipID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return relationship.ErrRelationshipNotFound
		}
		if err != nil {
			return err
		}
		if actorID != rel.StudentID && actorID != rel.CoachID {
			return ErrForbidden
		}
		if !rel.Active {
			return ErrRelationshipClosed
		}
		if !rel.BookingEnabled {
			return ErrBookingDisabled
		}

		if _, err := s.users.GetByID(ctx, rel.StudentID); err != nil {
			return err
		}
		if _, err := s.users.GetByID(ctx, rel.CoachID); err != nil {
			return err
		}
		if req.AddressID != nil {
			if _, err := s.addresses.GetByID(ctx, *req.AddressID); err != nil {
				return err
			}
		}

		if req.CategoryID != nil {
			var cat relationship.Category
			err := tx.First(&cat, *req.CategoryID).Error
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return relationship.ErrCategoryNotFound
			}
			if err != nil {
				return err
			}
			if cat.CoachID != rel.CoachID {
				return relationship.ErrNotRelationshipCoach
			}

			avail, err := s.ledger.AvailableForBooking(tx, rel.ID, cat.ID)
			if err != nil {
				return err
			}
			if avail <= 0 {
				return relationship.ErrInsufficientCredit
			}
		} else {
			var ci card.CardInstance
			err := tx.First(&ci, "id = ?", *req.CardInstanceID).Error
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return card.ErrCardNotFound
			}
			if err != nil {
				return err
			}
			if ci.RelationshipID != rel.ID {
				return ErrCardNotOnRelation
			}
			if err := s.cards.CheckAvailable(tx, ci.ID); err != nil {
				return err
			}
		}

		if err := s.checkStudentConflict(tx, rel.StudentID, req.StartTime, req.EndTime); err != nil {
			return err
		}
		if err := s.checkCoachCapacity(tx, rel.CoachID, req.StartTime, req.EndTime); err != nil {
			return err
		}

		b = Booking{
			StudentID:      rel.StudentID,
			CoachID:        rel.CoachID,
			RelationshipID: rel.ID,
			AddressID:      req.AddressID,
			StartTime:      req.StartTime,
			EndTime:        req.EndTime,
			CategoryID:     req.CategoryID,
			CardInstanceID: req.CardInstanceID,
			Status:         StatusPending,
			CreatedBy:      actorID,
		}
		return tx.Create(&b).Error
	})
	if err != nil {
		return nil, err
	}

	if s.notifs != nil {
		recipient := b.CoachID
		if actorID == b.CoachID {
			recipient = b.StudentID
		}
		_ = s.notifs.NotifyBookingCreated(ctx, recipient, b.ID, b.StartTime)
	}
	return &b, nil
}

// Transition dispatches an action string from the transport layer.
func (s *Service) Transition(ctx context.Context, bookingID, actorID int64, action, reason string) (*Booking, error) {
	switch action {
	case ActionConfirm:
		return s.Confirm(ctx, bookingID, actorID)
	case ActionCancel:
		return s.Cancel(ctx, bookingID, actorID, reason)
	case ActionComplete:
		return s.Complete(ctx, bookingID, actorID)
	default:
		return nil, ErrUnknownAction
	}
}

// Confirm accepts a pending booking. Only the counterparty of whoever created
// it may confirm.
func (s *Service) Confirm(ctx context.Context, bookingID, actorID int64) (*Booking, error) {
	b, err := s.mutate(ctx, bookingID, func(tx *gorm.DB, b *Booking) error {
		if actorID != b.StudentID && actorID != b.CoachID {
			return ErrForbidden
		}
		if actorID == b.CreatedBy {
			return ErrSelfConfirm
		}
		if b.Status != StatusPending {
			return ErrInvalidTransition
		}
		return tx.Model(b).Update("status", StatusConfirmed).Error
	})
	if err != nil {
		return nil, err
	}

	if s.notifs != nil {
		_ = s.notifs.NotifyBookingConfirmed(ctx, b.CreatedBy, b.ID)
	}
	return b, nil
}

// Cancel closes an open booking. Either party may cancel; nothing was debited
// yet, so the ledger is untouched.
func (s *Service) Cancel(ctx context.Context, bookingID, actorID int64, reason string) (*Booking, error) {
	b, err := s.mutate(ctx, bookingID, func(tx *gorm.DB, b *Booking) error {
		if actorID != b.StudentID && actorID != b.CoachID {
			return ErrForbidden
		}
		if b.Status.Terminal() {
			return ErrInvalidTransition
		}
		now := time.Now()
		return tx.Model(b).Updates(map[string]interface{}{
			"status":        StatusCancelled,
			"cancel_reason": reason,
			"cancelled_at":  now,
		}).Error
	})
	if err != nil {
		return nil, err
	}

	if s.notifs != nil {
		recipient := b.StudentID
		if actorID == b.StudentID {
			recipient = b.CoachID
		}
		_ = s.notifs.NotifyBookingCancelled(ctx, recipient, b.ID, reason)
	}
	return b, nil
}

// Complete is coach-only and debits the booking's credit source atomically
// with the status flip. A failed deduction leaves the booking confirmed.
func (s *Service) Complete(ctx context.Context, bookingID, actorID int64) (*Booking, error) {
	b, err := s.mutate(ctx, bookingID, func(tx *gorm.DB, b *Booking) error {
		if actorID != b.CoachID {
			if actorID == b.StudentID {
				return ErrCoachOnlyComplete
			}
			return ErrForbidden
		}
		if b.Status != StatusConfirmed {
			return ErrInvalidTransition
		}

		src := b.CreditSource()
		switch src.Kind {
		case SourceCard:
			if err := s.cards.DeductLesson(tx, src.CardID); err != nil {
				return err
			}
		default:
			if err := s.ledger.Decrease(tx, b.RelationshipID, src.CategoryID, 1, relationship.LogLessonComplete); err != nil {
				return err
			}
		}

		return tx.Model(b).Update("status", StatusCompleted).Error
	})
	if err != nil {
		return nil, err
	}

	if s.notifs != nil {
		_ = s.notifs.NotifyBookingCompleted(ctx, b.StudentID, b.ID)
	}
	return b, nil
}

func (s *Service) GetByID(ctx context.Context, id int64) (*Booking, error) {
	var b Booking
	err := s.db.WithContext(ctx).First(&b, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrBookingNotFound
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (s *Service) ListForStudent(ctx context.Context, studentID int64, limit, offset int) ([]Booking, error) {
	return s.list(ctx, "student_id = ?", studentID, limit, offset)
}

func (s *Service) ListForCoach(ctx context.Context, coachID int64, limit, offset int) ([]Booking, error) {
	return s.list(ctx, "coach_id = ?", coachID, limit, offset)
}

func (s *Service) list(ctx context.Context, cond string, id int64, limit, offset int) ([]Booking, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	var out []Booking
	err := s.db.WithContext(ctx).Where(cond, id).
		Order("start_time DESC").Limit(limit).Offset(offset).
		Find(&out).Error
	return out, err
}

// SetSlotCapacity upserts the coach's per-slot parallel booking capacity.
func (s *Service) SetSlotCapacity(ctx context.Context, coachID int64, capacity int) (*CoachTimeTemplate, error) {
	if capacity < 1 {
		return nil, ErrValidation
	}

	var t CoachTimeTemplate
	err := database.Transact(s.db.WithContext(ctx), func(tx *gorm.DB) error {
		err := tx.Where("coach_id = ? AND active", coachID).First(&t).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			t = CoachTimeTemplate{CoachID: coachID, SlotCapacity: capacity, Active: true}
			return tx.Create(&t).Error
		}
		if err != nil {
			return err
		}
		t.SlotCapacity = capacity
		return tx.Model(&t).Update("slot_capacity", capacity).Error
	})
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *Service) mutate(ctx context.Context, bookingID int64, fn func(tx *gorm.DB, b *Booking) error) (*Booking, error) {
	var out Booking
	err := database.Transact(s.db.WithContext(ctx), func(tx *gorm.DB) error {
		var b Booking
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&b, bookingID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrBookingNotFound
		}
		if err != nil {
			return err
		}
		if err := fn(tx, &b); err != nil {
			return err
		}
		return tx.First(&out, bookingID).Error
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// checkStudentConflict rejects any overlap with the student's own open
// bookings. Intervals are half-open: [start, end).
func (s *Service) checkStudentConflict(tx *gorm.DB, studentID int64, start, end time.Time) error {
	var cnt int64
	err := tx.Model(&Booking{}).
		Where("student_id = ? AND status IN (1, 2) AND start_time < ? AND end_time > ?", studentID, end, start).
		Count(&cnt).Error
	if err != nil {
		return err
	}
	if cnt > 0 {
		return ErrSlotConflict
	}
	return nil
}

// checkCoachCapacity allows as many overlapping open bookings as the coach's
// active time template permits, defaulting to one.
func (s *Service) checkCoachCapacity(tx *gorm.DB, coachID int64, start, end time.Time) error {
	var cnt int64
	err := tx.Model(&Booking{}).
		Where("coach_id = ? AND status IN (1, 2) AND start_time < ? AND end_time > ?", coachID, end, start).
		Count(&cnt).Error
	if err != nil {
		return err
	}

	capacity := 1
	var t CoachTimeTemplate
	err = tx.Where("coach_id = ? AND active", coachID).First(&t).Error
	if err == nil {
		capacity = t.SlotCapacity
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	if int(cnt) >= capacity {
		return ErrCoachCapacityFull
	}
	return nil
}
