package relationship

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"coachbook/internal/database"
)

const defaultCategoryName = "General"

// Service owns the relationship records and the per-category credit ledger.
// All balance mutations run inside a transaction with the balance row locked,
// so concurrent completions against one relationship are serialized.
type Service struct {
	db *gorm.DB
}

func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

// Bind creates the student↔coach relationship on first contact, seeding a zero
// balance for every category the coach currently defines. Re-binding an
// existing pair reactivates it instead of failing.
func (s *Service) Bind(ctx context.Context, studentID, coachID int64) (*Relationship, error) {
	var rel Relationship

	err := database.Transact(s.db.WithContext(ctx), func(tx *gorm.DB) error {
		err := tx.Where("student_id = ? AND coach_id = ?", studentID, coachID).First(&rel).Error
		if err == nil {
			if !rel.Active {
				rel.Active = true
				return tx.Model(&rel).Update("active", true).Error
			}
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		if _, err := s.ensureDefaultCategory(tx, coachID); err != nil {
			return err
		}

		rel = Relationship{StudentID: studentID, CoachID: coachID, Active: true, BookingEnabled: true, Timezone: "UTC"}
		if err := tx.Create(&rel).Error; err != nil {
			if database.IsUniqueViolation(err) {
				return tx.Where("student_id = ? AND coach_id = ?", studentID, coachID).First(&rel).Error
			}
			return err
		}

		var cats []Category
		if err := tx.Where("coach_id = ?", coachID).Find(&cats).Error; err != nil {
			return err
		}
		for _, cat := range cats {
			b := CategoryBalance{RelationshipID: rel.ID, CategoryID: cat.ID}
			if err := tx.Create(&b).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &rel, nil
}

// Unbind removes the relationship. While open bookings or group registrations
// still reference it the pair is only soft-disabled so they can run to
// completion.
func (s *Service) Unbind(ctx context.Context, relationshipID int64) error {
	return database.Transact(s.db.WithContext(ctx), func(tx *gorm.DB) error {
		rel, err := getRelationship(tx, relationshipID)
		if err != nil {
			return err
		}

		var open int64
		err = tx.Table("bookings").
			Where("relationship_id = ? AND status IN (1, 2)", rel.ID).
			Count(&open).Error
		if err != nil {
			return err
		}

		var openRegs int64
		err = tx.Table("group_registrations").
			Where("relationship_id = ? AND status IN (1, 2)", rel.ID).
			Count(&openRegs).Error
		if err != nil {
			return err
		}

		if open+openRegs > 0 {
			return tx.Model(rel).Update("active", false).Error
		}

		if err := tx.Where("relationship_id = ?", rel.ID).Delete(&CategoryBalance{}).Error; err != nil {
			return err
		}
		return tx.Delete(rel).Error
	})
}

// SetBookingEnabled lets the coach pause new bookings without unbinding.
func (s *Service) SetBookingEnabled(ctx context.Context, relationshipID, coachID int64, enabled bool) error {
	res := s.db.WithContext(ctx).Model(&Relationship{}).
		Where("id = ? AND coach_id = ?", relationshipID, coachID).
		Update("booking_enabled", enabled)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrRelationshipNotFound
	}
	return nil
}

func (s *Service) GetByID(ctx context.Context, id int64) (*Relationship, error) {
	return getRelationship(s.db.WithContext(ctx), id)
}

func (s *Service) GetByPair(ctx context.Context, studentID, coachID int64) (*Relationship, error) {
	var rel Relationship
	err := s.db.WithContext(ctx).Where("student_id = ? AND coach_id = ?", studentID, coachID).First(&rel).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrRelationshipNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rel, nil
}

func (s *Service) ListByStudent(ctx context.Context, studentID int64) ([]Relationship, error) {
	var out []Relationship
	err := s.db.WithContext(ctx).Where("student_id = ? AND active", studentID).Order("id").Find(&out).Error
	return out, err
}

func (s *Service) ListByCoach(ctx context.Context, coachID int64) ([]Relationship, error) {
	var out []Relationship
	err := s.db.WithContext(ctx).Where("coach_id = ? AND active", coachID).Order("id").Find(&out).Error
	return out, err
}

// CreateCategory defines a new course type for the coach and seeds a zero
// balance entry into every one of the coach's relationships.
func (s *Service) CreateCategory(ctx context.Context, coachID int64, name string) (*Category, error) {
	var cat Category
	err := database.Transact(s.db.WithContext(ctx), func(tx *gorm.DB) error {
		if _, err := s.ensureDefaultCategory(tx, coachID); err != nil {
			return err
		}

		cat = Category{CoachID: coachID, Name: name}
		if err := tx.Create(&cat).Error; err != nil {
			return err
		}

		var rels []Relationship
		if err := tx.Where("coach_id = ?", coachID).Find(&rels).Error; err != nil {
			return err
		}
		for _, rel := range rels {
			b := CategoryBalance{RelationshipID: rel.ID, CategoryID: cat.ID}
			if err := tx.Create(&b).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &cat, nil
}

// DeleteCategory removes a coach category. The default category is permanent,
// and a category with any credits left on any relationship cannot go away.
func (s *Service) DeleteCategory(ctx context.Context, coachID, categoryID int64) error {
	return database.Transact(s.db.WithContext(ctx), func(tx *gorm.DB) error {
		var cat Category
		err := tx.Where("id = ? AND coach_id = ?", categoryID, coachID).First(&cat).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrCategoryNotFound
		}
		if err != nil {
			return err
		}
		if cat.IsDefault {
			return ErrDefaultCategory
		}

		var nonEmpty int64
		err = tx.Model(&CategoryBalance{}).
			Where("category_id = ? AND remaining > 0", cat.ID).
			Count(&nonEmpty).Error
		if err != nil {
			return err
		}
		if nonEmpty > 0 {
			return ErrCategoryNotEmpty
		}

		if err := tx.Where("category_id = ?", cat.ID).Delete(&CategoryBalance{}).Error; err != nil {
			return err
		}
		return tx.Delete(&cat).Error
	})
}

func (s *Service) ListCategories(ctx context.Context, coachID int64) ([]Category, error) {
	var out []Category
	err := database.Transact(s.db.WithContext(ctx), func(tx *gorm.DB) error {
		if _, err := s.ensureDefaultCategory(tx, coachID); err != nil {
			return err
		}
		return tx.Where("coach_id = ?", coachID).Order("is_default DESC, id").Find(&out).Error
	})
	return out, err
}

// AddCategory attaches a balance entry for an existing coach category to one
// relationship. Adding a category twice is a no-op.
func (s *Service) AddCategory(ctx context.Context, relationshipID, categoryID int64) error {
	return database.Transact(s.db.WithContext(ctx), func(tx *gorm.DB) error {
		rel, err := getRelationship(tx, relationshipID)
		if err != nil {
			return err
		}

		var cat Category
		err = tx.First(&cat, categoryID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrCategoryNotFound
		}
		if err != nil {
			return err
		}
		if cat.CoachID != rel.CoachID {
			return ErrNotRelationshipCoach
		}

		b := CategoryBalance{RelationshipID: rel.ID, CategoryID: cat.ID}
		if err := tx.Create(&b).Error; err != nil {
			if database.IsUniqueViolation(err) {
				return nil
			}
			return err
		}
		return nil
	})
}

// RemoveCategory detaches a balance entry from the relationship. It refuses
// while credits remain and never touches the coach's default category.
func (s *Service) RemoveCategory(ctx context.Context, relationshipID, categoryID int64) error {
	return database.Transact(s.db.WithContext(ctx), func(tx *gorm.DB) error {
		var cat Category
		err := tx.First(&cat, categoryID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrCategoryNotFound
		}
		if err != nil {
			return err
		}
		if cat.IsDefault {
			return ErrDefaultCategory
		}

		bal, err := balanceForUpdate(tx, relationshipID, categoryID)
		if err != nil {
			return err
		}
		if bal.Remaining > 0 {
			return ErrCategoryNotEmpty
		}
		return tx.Delete(bal).Error
	})
}

// GetAvailable returns the remaining credits after lazily applying the expiry
// clear. The clear is idempotent: the first call past the expire date zeroes
// the balance and writes exactly one lesson_expire audit record, later calls
// observe is_cleared and exit early.
func (s *Service) GetAvailable(ctx context.Context, relationshipID, categoryID int64) (int, error) {
	var out int
	err := database.Transact(s.db.WithContext(ctx), func(tx *gorm.DB) error {
		n, err := s.available(tx, relationshipID, categoryID)
		out = n
		return err
	})
	return out, err
}

// GetAvailableForBooking is GetAvailable minus credits already reserved by the
// relationship's own open bookings and open group registrations.
func (s *Service) GetAvailableForBooking(ctx context.Context, relationshipID, categoryID int64) (int, error) {
	var out int
	err := database.Transact(s.db.WithContext(ctx), func(tx *gorm.DB) error {
		n, err := s.AvailableForBooking(tx, relationshipID, categoryID)
		out = n
		return err
	})
	return out, err
}

// AvailableForBooking is the transaction-scoped variant used by the booking
// and group services inside their own creation transactions.
func (s *Service) AvailableForBooking(tx *gorm.DB, relationshipID, categoryID int64) (int, error) {
	avail, err := s.available(tx, relationshipID, categoryID)
	if err != nil {
		return 0, err
	}

	occupied, err := occupiedCredits(tx, relationshipID, categoryID)
	if err != nil {
		return 0, err
	}

	if occupied >= avail {
		return 0, nil
	}
	return avail - occupied, nil
}

// Decrease re-validates availability under the row lock and subtracts. It is
// called at completion time only; creation merely reserves via occupancy.
func (s *Service) Decrease(tx *gorm.DB, relationshipID, categoryID int64, count int, reason string) error {
	if count <= 0 {
		return ErrInvalidCount
	}

	avail, err := s.available(tx, relationshipID, categoryID)
	if err != nil {
		return err
	}
	if avail < count {
		return ErrInsufficientCredit
	}

	return s.applyChange(tx, relationshipID, categoryID, -count, reason)
}

// Increase compensates a deduction that already happened, e.g. reverting a
// group-session check-in. Plain cancellations never call it.
func (s *Service) Increase(tx *gorm.DB, relationshipID, categoryID int64, count int, reason string) error {
	if count <= 0 {
		return ErrInvalidCount
	}
	return s.applyChange(tx, relationshipID, categoryID, count, reason)
}

// Adjust is the coach's manual top-up or correction path.
func (s *Service) Adjust(ctx context.Context, coachID, relationshipID, categoryID int64, delta int, expireDate *time.Time) (*CategoryBalance, error) {
	var out CategoryBalance
	err := database.Transact(s.db.WithContext(ctx), func(tx *gorm.DB) error {
		rel, err := getRelationship(tx, relationshipID)
		if err != nil {
			return err
		}
		if rel.CoachID != coachID {
			return ErrNotRelationshipCoach
		}

		bal, err := balanceForUpdate(tx, relationshipID, categoryID)
		if err != nil {
			return err
		}
		if bal.Remaining+delta < 0 {
			return ErrInsufficientCredit
		}

		updates := map[string]interface{}{"remaining": gorm.Expr("remaining + ?", delta)}
		if delta > 0 {
			// a top-up reopens a cleared balance and may set a fresh expiry
			updates["is_cleared"] = false
			if expireDate != nil {
				updates["expire_date"] = expireDate
			}
		}
		if err := tx.Model(bal).Updates(updates).Error; err != nil {
			return err
		}

		log := CreditLog{
			RelationshipID: relationshipID,
			CategoryID:     categoryID,
			Change:         delta,
			Balance:        bal.Remaining + delta,
			Reason:         LogManualAdjust,
		}
		if err := tx.Create(&log).Error; err != nil {
			return err
		}

		return tx.First(&out, bal.ID).Error
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// ListBalances returns the relationship's full ledger with expiry lazily
// applied to each entry.
func (s *Service) ListBalances(ctx context.Context, relationshipID int64) ([]CategoryBalance, error) {
	var out []CategoryBalance
	err := database.Transact(s.db.WithContext(ctx), func(tx *gorm.DB) error {
		rel, err := getRelationship(tx, relationshipID)
		if err != nil {
			return err
		}

		var balances []CategoryBalance
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("relationship_id = ?", relationshipID).
			Order("category_id").
			Find(&balances).Error; err != nil {
			return err
		}

		loc := location(rel.Timezone)
		for i := range balances {
			if err := clearIfExpired(tx, &balances[i], loc); err != nil {
				return err
			}
		}
		out = balances
		return nil
	})
	return out, err
}

func (s *Service) ListCreditLogs(ctx context.Context, relationshipID int64, limit int) ([]CreditLog, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	var out []CreditLog
	err := s.db.WithContext(ctx).
		Where("relationship_id = ?", relationshipID).
		Order("id DESC").Limit(limit).
		Find(&out).Error
	return out, err
}

// available loads the balance row FOR UPDATE and applies the lazy clear. It
// must run inside tx so that the clear and any following decrement share one
// lock (no clear-then-stale-decrement window).
func (s *Service) available(tx *gorm.DB, relationshipID, categoryID int64) (int, error) {
	rel, err := getRelationship(tx, relationshipID)
	if err != nil {
		return 0, err
	}

	bal, err := balanceForUpdate(tx, relationshipID, categoryID)
	if err != nil {
		return 0, err
	}

	if err := clearIfExpired(tx, bal, location(rel.Timezone)); err != nil {
		return 0, err
	}
	return bal.Remaining, nil
}

func (s *Service) applyChange(tx *gorm.DB, relationshipID, categoryID int64, delta int, reason string) error {
	bal, err := balanceForUpdate(tx, relationshipID, categoryID)
	if err != nil {
		return err
	}

	next := bal.Remaining + delta
	if next < 0 {
		return ErrInsufficientCredit
	}
	if err := tx.Model(bal).Update("remaining", next).Error; err != nil {
		return err
	}

	log := CreditLog{
		RelationshipID: relationshipID,
		CategoryID:     categoryID,
		Change:         delta,
		Balance:        next,
		Reason:         reason,
	}
	return tx.Create(&log).Error
}

func (s *Service) ensureDefaultCategory(tx *gorm.DB, coachID int64) (*Category, error) {
	var cat Category
	err := tx.Where("coach_id = ? AND is_default", coachID).First(&cat).Error
	if err == nil {
		return &cat, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	cat = Category{CoachID: coachID, Name: defaultCategoryName, IsDefault: true}
	if err := tx.Create(&cat).Error; err != nil {
		return nil, err
	}
	return &cat, nil
}

// DefaultCategory resolves the coach's permanent category, creating it on
// first use.
func (s *Service) DefaultCategory(ctx context.Context, coachID int64) (*Category, error) {
	var out *Category
	err := database.Transact(s.db.WithContext(ctx), func(tx *gorm.DB) error {
		cat, err := s.ensureDefaultCategory(tx, coachID)
		out = cat
		return err
	})
	return out, err
}

func getRelationship(tx *gorm.DB, id int64) (*Relationship, error) {
	var rel Relationship
	err := tx.First(&rel, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrRelationshipNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rel, nil
}

func balanceForUpdate(tx *gorm.DB, relationshipID, categoryID int64) (*CategoryBalance, error) {
	var bal CategoryBalance
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("relationship_id = ? AND category_id = ?", relationshipID, categoryID).
		First(&bal).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrCategoryNotFound
	}
	if err != nil {
		return nil, err
	}
	return &bal, nil
}

// clearIfExpired zeroes a balance whose expire date has fully passed. A credit
// expiring on day D stays usable through the last instant of D in the
// relationship's timezone. OriginalBeforeClear is written once and never again.
func clearIfExpired(tx *gorm.DB, bal *CategoryBalance, loc *time.Location) error {
	if bal.IsCleared || bal.ExpireDate == nil {
		return nil
	}

	d := bal.ExpireDate.In(loc)
	endOfDay := time.Date(d.Year(), d.Month(), d.Day(), 23, 59, 59, int(time.Second-1), loc)
	if !time.Now().After(endOfDay) {
		return nil
	}

	original := bal.Remaining
	updates := map[string]interface{}{
		"remaining":  0,
		"is_cleared": true,
	}
	if bal.OriginalBeforeClear == nil {
		updates["original_before_clear"] = original
	}
	if err := tx.Model(bal).Updates(updates).Error; err != nil {
		return err
	}
	bal.Remaining = 0
	bal.IsCleared = true
	if bal.OriginalBeforeClear == nil {
		bal.OriginalBeforeClear = &original
	}

	if original == 0 {
		return nil
	}
	log := CreditLog{
		RelationshipID: bal.RelationshipID,
		CategoryID:     bal.CategoryID,
		Change:         -original,
		Balance:        0,
		Reason:         LogLessonExpire,
	}
	return tx.Create(&log).Error
}

// occupiedCredits counts credits reserved by the relationship's own open
// one-off bookings plus the lesson cost of its open registrations in open
// credit-mode group sessions. Reservation only; nothing is debited here.
func occupiedCredits(tx *gorm.DB, relationshipID, categoryID int64) (int, error) {
	var bookings int64
	err := tx.Table("bookings").
		Where("relationship_id = ? AND category_id = ? AND status IN (1, 2)", relationshipID, categoryID).
		Count(&bookings).Error
	if err != nil {
		return 0, err
	}

	var groupCost int
	err = tx.Raw(`
SELECT COALESCE(SUM(gs.lesson_cost), 0)
FROM group_registrations gr
JOIN group_sessions gs ON gs.id = gr.group_session_id
WHERE gr.relationship_id = ?
  AND gr.status IN (1, 2)
  AND gs.status = 1
  AND gs.price_mode = 'credit'
  AND gs.category_id = ?
`, relationshipID, categoryID).Scan(&groupCost).Error
	if err != nil {
		return 0, err
	}

	return int(bookings) + groupCost, nil
}

func location(tz string) *time.Location {
	if tz == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return time.UTC
	}
	return loc
}
