package relationship_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"coachbook/internal/database"
	"coachbook/internal/domain/booking"
	"coachbook/internal/domain/group"
	"coachbook/internal/domain/relationship"
)

func setupTestService(t *testing.T) (*relationship.Service, *gorm.DB) {
	t.Helper()
	dsn := fmt.Sprintf("file:rel_test_%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(
		sqlite.New(sqlite.Config{DriverName: "sqlite", DSN: dsn}),
		&gorm.Config{Logger: logger.Default.LogMode(logger.Silent)},
	)
	if err != nil {
		t.Fatalf("failed to open sqlite db: %v", err)
	}
	err = db.AutoMigrate(
		&relationship.Relationship{},
		&relationship.Category{},
		&relationship.CategoryBalance{},
		&relationship.CreditLog{},
		&booking.Booking{},
		&group.GroupSession{},
		&group.GroupRegistration{},
	)
	if err != nil {
		t.Fatalf("failed to migrate db: %v", err)
	}
	return relationship.NewService(db), db
}

func bindWithCredits(t *testing.T, svc *relationship.Service, studentID, coachID int64, credits int) (*relationship.Relationship, *relationship.Category) {
	t.Helper()
	ctx := context.Background()

	rel, err := svc.Bind(ctx, studentID, coachID)
	if err != nil {
		t.Fatalf("Bind returned error: %v", err)
	}
	cat, err := svc.DefaultCategory(ctx, coachID)
	if err != nil {
		t.Fatalf("DefaultCategory returned error: %v", err)
	}
	if credits > 0 {
		if _, err := svc.Adjust(ctx, coachID, rel.ID, cat.ID, credits, nil); err != nil {
			t.Fatalf("Adjust returned error: %v", err)
		}
	}
	return rel, cat
}

func TestBindSeedsDefaultCategoryBalance(t *testing.T) {
	svc, _ := setupTestService(t)
	ctx := context.Background()

	rel, err := svc.Bind(ctx, 1, 2)
	if err != nil {
		t.Fatalf("Bind returned error: %v", err)
	}

	balances, err := svc.ListBalances(ctx, rel.ID)
	if err != nil {
		t.Fatalf("ListBalances returned error: %v", err)
	}
	if len(balances) != 1 {
		t.Fatalf("expected one seeded balance, got %d", len(balances))
	}
	if balances[0].Remaining != 0 {
		t.Fatalf("expected zero initial balance, got %d", balances[0].Remaining)
	}

	again, err := svc.Bind(ctx, 1, 2)
	if err != nil {
		t.Fatalf("second Bind returned error: %v", err)
	}
	if again.ID != rel.ID {
		t.Fatalf("expected re-bind to reuse relationship %d, got %d", rel.ID, again.ID)
	}
}

func TestUnbindSoftDisablesWithOpenBookings(t *testing.T) {
	svc, db := setupTestService(t)
	ctx := context.Background()

	rel, _ := bindWithCredits(t, svc, 1, 2, 1)

	open := booking.Booking{
		StudentID:      1,
		CoachID:        2,
		RelationshipID: rel.ID,
		StartTime:      time.Now().Add(24 * time.Hour),
		EndTime:        time.Now().Add(25 * time.Hour),
		Status:         booking.StatusPending,
		CreatedBy:      1,
	}
	if err := db.Create(&open).Error; err != nil {
		t.Fatalf("failed to create booking: %v", err)
	}

	if err := svc.Unbind(ctx, rel.ID); err != nil {
		t.Fatalf("Unbind returned error: %v", err)
	}

	got, err := svc.GetByID(ctx, rel.ID)
	if err != nil {
		t.Fatalf("expected relationship to survive unbind, got %v", err)
	}
	if got.Active {
		t.Fatal("expected relationship to be disabled, still active")
	}

	// No open bookings left: unbind removes the pair entirely.
	db.Model(&booking.Booking{}).Where("id = ?", open.ID).Update("status", booking.StatusCancelled)
	if err := svc.Unbind(ctx, rel.ID); err != nil {
		t.Fatalf("second Unbind returned error: %v", err)
	}
	if _, err := svc.GetByID(ctx, rel.ID); !errors.Is(err, relationship.ErrRelationshipNotFound) {
		t.Fatalf("expected ErrRelationshipNotFound, got %v", err)
	}
}

func TestExpiryClearIsIdempotent(t *testing.T) {
	svc, db := setupTestService(t)
	ctx := context.Background()

	rel, cat := bindWithCredits(t, svc, 1, 2, 7)

	yesterday := time.Now().AddDate(0, 0, -1)
	err := db.Model(&relationship.CategoryBalance{}).
		Where("relationship_id = ? AND category_id = ?", rel.ID, cat.ID).
		Update("expire_date", yesterday).Error
	if err != nil {
		t.Fatalf("failed to backdate expire date: %v", err)
	}

	avail, err := svc.GetAvailable(ctx, rel.ID, cat.ID)
	if err != nil {
		t.Fatalf("GetAvailable returned error: %v", err)
	}
	if avail != 0 {
		t.Fatalf("expected cleared balance, got %d", avail)
	}

	// Reading again must not produce a second clear or a second audit record.
	if _, err := svc.ListBalances(ctx, rel.ID); err != nil {
		t.Fatalf("ListBalances returned error: %v", err)
	}
	if _, err := svc.GetAvailable(ctx, rel.ID, cat.ID); err != nil {
		t.Fatalf("second GetAvailable returned error: %v", err)
	}

	var expireLogs []relationship.CreditLog
	err = db.Where("relationship_id = ? AND reason = ?", rel.ID, relationship.LogLessonExpire).
		Find(&expireLogs).Error
	if err != nil {
		t.Fatalf("failed to load credit logs: %v", err)
	}
	if len(expireLogs) != 1 {
		t.Fatalf("expected exactly one expire log, got %d", len(expireLogs))
	}
	if expireLogs[0].Change != -7 || expireLogs[0].Balance != 0 {
		t.Fatalf("expected change -7 balance 0, got %d and %d", expireLogs[0].Change, expireLogs[0].Balance)
	}

	var bal relationship.CategoryBalance
	err = db.Where("relationship_id = ? AND category_id = ?", rel.ID, cat.ID).First(&bal).Error
	if err != nil {
		t.Fatalf("failed to load balance: %v", err)
	}
	if !bal.IsCleared {
		t.Fatal("expected balance to be marked cleared")
	}
	if bal.OriginalBeforeClear == nil || *bal.OriginalBeforeClear != 7 {
		t.Fatalf("expected original before clear 7, got %v", bal.OriginalBeforeClear)
	}
}

func TestExpiryClearSkipsAuditForZeroBalance(t *testing.T) {
	svc, db := setupTestService(t)
	ctx := context.Background()

	rel, cat := bindWithCredits(t, svc, 1, 2, 0)

	yesterday := time.Now().AddDate(0, 0, -1)
	db.Model(&relationship.CategoryBalance{}).
		Where("relationship_id = ? AND category_id = ?", rel.ID, cat.ID).
		Update("expire_date", yesterday)

	if _, err := svc.GetAvailable(ctx, rel.ID, cat.ID); err != nil {
		t.Fatalf("GetAvailable returned error: %v", err)
	}

	var count int64
	db.Model(&relationship.CreditLog{}).
		Where("relationship_id = ? AND reason = ?", rel.ID, relationship.LogLessonExpire).
		Count(&count)
	if count != 0 {
		t.Fatalf("expected no expire log for zero balance, got %d", count)
	}
}

func TestDecreaseFloorsAtInsufficientCredit(t *testing.T) {
	svc, db := setupTestService(t)

	rel, cat := bindWithCredits(t, svc, 1, 2, 2)

	for i := 0; i < 2; i++ {
		err := database.Transact(db, func(tx *gorm.DB) error {
			return svc.Decrease(tx, rel.ID, cat.ID, 1, relationship.LogLessonComplete)
		})
		if err != nil {
			t.Fatalf("Decrease %d returned error: %v", i+1, err)
		}
	}

	err := database.Transact(db, func(tx *gorm.DB) error {
		return svc.Decrease(tx, rel.ID, cat.ID, 1, relationship.LogLessonComplete)
	})
	if !errors.Is(err, relationship.ErrInsufficientCredit) {
		t.Fatalf("expected ErrInsufficientCredit, got %v", err)
	}

	avail, err := svc.GetAvailable(context.Background(), rel.ID, cat.ID)
	if err != nil {
		t.Fatalf("GetAvailable returned error: %v", err)
	}
	if avail != 0 {
		t.Fatalf("expected balance 0, got %d", avail)
	}
}

func TestOccupiedCreditsReduceBookingAvailability(t *testing.T) {
	svc, db := setupTestService(t)
	ctx := context.Background()

	rel, cat := bindWithCredits(t, svc, 1, 2, 5)

	pending := booking.Booking{
		StudentID:      1,
		CoachID:        2,
		RelationshipID: rel.ID,
		CategoryID:     &cat.ID,
		StartTime:      time.Now().Add(24 * time.Hour),
		EndTime:        time.Now().Add(25 * time.Hour),
		Status:         booking.StatusPending,
		CreatedBy:      1,
	}
	if err := db.Create(&pending).Error; err != nil {
		t.Fatalf("failed to create booking: %v", err)
	}

	sess := group.GroupSession{
		CoachID:     2,
		CategoryID:  cat.ID,
		Title:       "drills",
		StartTime:   time.Now().Add(48 * time.Hour),
		EndTime:     time.Now().Add(50 * time.Hour),
		CapacityMin: 1,
		CapacityMax: 5,
		PriceMode:   group.PriceModeCredit,
		LessonCost:  2,
		Status:      group.SessionOpen,
	}
	if err := db.Create(&sess).Error; err != nil {
		t.Fatalf("failed to create session: %v", err)
	}
	reg := group.GroupRegistration{
		GroupSessionID: sess.ID,
		StudentID:      1,
		RelationshipID: &rel.ID,
		Status:         group.RegistrationConfirmed,
	}
	if err := db.Create(&reg).Error; err != nil {
		t.Fatalf("failed to create registration: %v", err)
	}

	raw, err := svc.GetAvailable(ctx, rel.ID, cat.ID)
	if err != nil {
		t.Fatalf("GetAvailable returned error: %v", err)
	}
	if raw != 5 {
		t.Fatalf("expected raw balance 5, got %d", raw)
	}

	// One pending booking plus a 2-credit group reservation leaves 2 bookable.
	bookable, err := svc.GetAvailableForBooking(ctx, rel.ID, cat.ID)
	if err != nil {
		t.Fatalf("GetAvailableForBooking returned error: %v", err)
	}
	if bookable != 2 {
		t.Fatalf("expected 2 bookable credits, got %d", bookable)
	}

	// Completed bookings and ended sessions stop counting as occupied.
	db.Model(&booking.Booking{}).Where("id = ?", pending.ID).Update("status", booking.StatusCompleted)
	db.Model(&group.GroupSession{}).Where("id = ?", sess.ID).Update("status", group.SessionEnded)

	bookable, err = svc.GetAvailableForBooking(ctx, rel.ID, cat.ID)
	if err != nil {
		t.Fatalf("GetAvailableForBooking returned error: %v", err)
	}
	if bookable != 5 {
		t.Fatalf("expected 5 bookable credits after release, got %d", bookable)
	}
}

func TestRemoveCategoryGuards(t *testing.T) {
	svc, _ := setupTestService(t)
	ctx := context.Background()

	rel, defaultCat := bindWithCredits(t, svc, 1, 2, 0)

	if err := svc.RemoveCategory(ctx, rel.ID, defaultCat.ID); !errors.Is(err, relationship.ErrDefaultCategory) {
		t.Fatalf("expected ErrDefaultCategory, got %v", err)
	}

	extra, err := svc.CreateCategory(ctx, 2, "Technique")
	if err != nil {
		t.Fatalf("CreateCategory returned error: %v", err)
	}
	if _, err := svc.Adjust(ctx, 2, rel.ID, extra.ID, 3, nil); err != nil {
		t.Fatalf("Adjust returned error: %v", err)
	}

	if err := svc.RemoveCategory(ctx, rel.ID, extra.ID); !errors.Is(err, relationship.ErrCategoryNotEmpty) {
		t.Fatalf("expected ErrCategoryNotEmpty, got %v", err)
	}

	if _, err := svc.Adjust(ctx, 2, rel.ID, extra.ID, -3, nil); err != nil {
		t.Fatalf("draining Adjust returned error: %v", err)
	}
	if err := svc.RemoveCategory(ctx, rel.ID, extra.ID); err != nil {
		t.Fatalf("RemoveCategory returned error: %v", err)
	}
}

func TestAdjustReopensClearedBalance(t *testing.T) {
	svc, db := setupTestService(t)
	ctx := context.Background()

	rel, cat := bindWithCredits(t, svc, 1, 2, 4)

	yesterday := time.Now().AddDate(0, 0, -1)
	db.Model(&relationship.CategoryBalance{}).
		Where("relationship_id = ? AND category_id = ?", rel.ID, cat.ID).
		Update("expire_date", yesterday)

	if avail, _ := svc.GetAvailable(ctx, rel.ID, cat.ID); avail != 0 {
		t.Fatalf("expected cleared balance, got %d", avail)
	}

	future := time.Now().AddDate(0, 1, 0)
	bal, err := svc.Adjust(ctx, 2, rel.ID, cat.ID, 6, &future)
	if err != nil {
		t.Fatalf("Adjust returned error: %v", err)
	}
	if bal.Remaining != 6 {
		t.Fatalf("expected remaining 6 after top-up, got %d", bal.Remaining)
	}
	if bal.IsCleared {
		t.Fatal("expected top-up to reopen the cleared balance")
	}

	avail, err := svc.GetAvailable(ctx, rel.ID, cat.ID)
	if err != nil {
		t.Fatalf("GetAvailable returned error: %v", err)
	}
	if avail != 6 {
		t.Fatalf("expected 6 available after reopen, got %d", avail)
	}
}

func TestUnbindSoftDisablesWithOpenGroupRegistration(t *testing.T) {
	svc, db := setupTestService(t)
	ctx := context.Background()

	rel, _ := bindWithCredits(t, svc, 1, 2, 3)

	sess := group.GroupSession{
		CoachID:    2,
		CategoryID: 1,
		StartTime:  time.Now().Add(24 * time.Hour),
		EndTime:    time.Now().Add(26 * time.Hour),
		CapacityMax: 5, CurrentCount: 1,
		PriceMode: group.PriceModeCredit, LessonCost: 1,
		Status: group.SessionOpen,
	}
	if err := db.Create(&sess).Error; err != nil {
		t.Fatalf("failed to create session: %v", err)
	}
	reg := group.GroupRegistration{
		GroupSessionID: sess.ID,
		StudentID:      1,
		RelationshipID: &rel.ID,
		Status:         group.RegistrationConfirmed,
	}
	if err := db.Create(&reg).Error; err != nil {
		t.Fatalf("failed to create registration: %v", err)
	}

	if err := svc.Unbind(ctx, rel.ID); err != nil {
		t.Fatalf("Unbind returned error: %v", err)
	}

	// The confirmed registration still needs the pair and its balances
	// for check-in, so the unbind only disables it.
	got, err := svc.GetByID(ctx, rel.ID)
	if err != nil {
		t.Fatalf("expected relationship to survive unbind, got %v", err)
	}
	if got.Active {
		t.Fatal("expected relationship to be disabled, still active")
	}
	var balances int64
	db.Model(&relationship.CategoryBalance{}).Where("relationship_id = ?", rel.ID).Count(&balances)
	if balances == 0 {
		t.Fatal("expected balances to survive while the registration is open")
	}

	// Registration closed: unbind removes the pair entirely.
	db.Model(&group.GroupRegistration{}).Where("id = ?", reg.ID).Update("status", group.RegistrationCancelled)
	if err := svc.Unbind(ctx, rel.ID); err != nil {
		t.Fatalf("second Unbind returned error: %v", err)
	}
	if _, err := svc.GetByID(ctx, rel.ID); !errors.Is(err, relationship.ErrRelationshipNotFound) {
		t.Fatalf("expected ErrRelationshipNotFound, got %v", err)
	}
}
