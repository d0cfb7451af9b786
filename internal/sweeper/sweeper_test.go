package sweeper

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"coachbook/internal/domain/booking"
	"coachbook/internal/domain/card"
	"coachbook/internal/domain/group"
	"coachbook/internal/domain/notification"
)

func setupSweeper(t *testing.T) (*Sweeper, *gorm.DB) {
	t.Helper()
	dsn := fmt.Sprintf("file:sweeper_test_%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(
		sqlite.New(sqlite.Config{DriverName: "sqlite", DSN: dsn}),
		&gorm.Config{Logger: logger.Default.LogMode(logger.Silent)},
	)
	if err != nil {
		t.Fatalf("failed to open sqlite db: %v", err)
	}
	err = db.AutoMigrate(
		&booking.Booking{},
		&card.CardTemplate{},
		&card.CardInstance{},
		&group.GroupSession{},
		&group.GroupRegistration{},
		&notification.Notification{},
	)
	if err != nil {
		t.Fatalf("failed to migrate db: %v", err)
	}

	notifService := notification.NewService(notification.NewRepository(db))
	return New(db, notifService, time.Hour, 30*24*time.Hour), db
}

func TestSweepTimesOutStalePendingBookings(t *testing.T) {
	sw, db := setupSweeper(t)
	ctx := context.Background()

	stale := booking.Booking{
		StudentID: 1, CoachID: 2, RelationshipID: 3,
		StartTime: time.Now().Add(-2 * time.Hour),
		EndTime:   time.Now().Add(-1 * time.Hour),
		Status:    booking.StatusPending,
		CreatedBy: 1,
	}
	confirmed := booking.Booking{
		StudentID: 1, CoachID: 2, RelationshipID: 3,
		StartTime: time.Now().Add(-2 * time.Hour),
		EndTime:   time.Now().Add(-1 * time.Hour),
		Status:    booking.StatusConfirmed,
		CreatedBy: 1,
	}
	upcoming := booking.Booking{
		StudentID: 1, CoachID: 2, RelationshipID: 3,
		StartTime: time.Now().Add(2 * time.Hour),
		EndTime:   time.Now().Add(3 * time.Hour),
		Status:    booking.StatusPending,
		CreatedBy: 1,
	}
	for _, b := range []*booking.Booking{&stale, &confirmed, &upcoming} {
		if err := db.Create(b).Error; err != nil {
			t.Fatalf("failed to create booking: %v", err)
		}
	}

	report, err := sw.RunSweepOnce(ctx)
	if err != nil {
		t.Fatalf("RunSweepOnce returned error: %v", err)
	}
	if report.BookingsTimedOut != 1 {
		t.Fatalf("expected 1 timed-out booking, got %d", report.BookingsTimedOut)
	}

	var timedOut booking.Booking
	if err := db.First(&timedOut, stale.ID).Error; err != nil {
		t.Fatalf("lookup stale booking: %v", err)
	}
	if timedOut.Status != booking.StatusTimeoutCancelled {
		t.Fatalf("expected timeout-cancelled status, got %v", timedOut.Status)
	}
	if timedOut.CancelledAt == nil {
		t.Fatal("expected cancelled_at to be set")
	}

	var kept booking.Booking
	if err := db.First(&kept, confirmed.ID).Error; err != nil {
		t.Fatalf("lookup confirmed booking: %v", err)
	}
	if kept.Status != booking.StatusConfirmed {
		t.Fatalf("confirmed booking must be untouched, got %v", kept.Status)
	}
	var future booking.Booking
	if err := db.First(&future, upcoming.ID).Error; err != nil {
		t.Fatalf("lookup upcoming booking: %v", err)
	}
	if future.Status != booking.StatusPending {
		t.Fatalf("future pending booking must be untouched, got %v", future.Status)
	}

	// Idempotent: a second sweep finds nothing.
	report, err = sw.RunSweepOnce(ctx)
	if err != nil {
		t.Fatalf("second RunSweepOnce returned error: %v", err)
	}
	if report.BookingsTimedOut != 0 {
		t.Fatalf("expected 0 on second sweep, got %d", report.BookingsTimedOut)
	}
}

func TestSweepExpiresCardsAndNotifies(t *testing.T) {
	sw, db := setupSweeper(t)
	ctx := context.Background()

	past := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	future := time.Now().UTC().AddDate(0, 0, 10)

	expired := card.CardInstance{ID: uuid.New(), StudentID: 7, CoachID: 2, RelationshipID: 3, Status: card.StatusActive, ValidDays: 30, ExpireDate: &past}
	current := card.CardInstance{ID: uuid.New(), StudentID: 8, CoachID: 2, RelationshipID: 4, Status: card.StatusActive, ValidDays: 30, ExpireDate: &future}
	paused := card.CardInstance{ID: uuid.New(), StudentID: 9, CoachID: 2, RelationshipID: 5, Status: card.StatusPaused, ValidDays: 30, ExpireDate: &past}
	for _, ci := range []*card.CardInstance{&expired, &current, &paused} {
		if err := db.Create(ci).Error; err != nil {
			t.Fatalf("failed to create card: %v", err)
		}
	}

	report, err := sw.RunSweepOnce(ctx)
	if err != nil {
		t.Fatalf("RunSweepOnce returned error: %v", err)
	}
	if report.CardsExpired != 1 {
		t.Fatalf("expected 1 expired card, got %d", report.CardsExpired)
	}

	var swept card.CardInstance
	if err := db.First(&swept, "id = ?", expired.ID).Error; err != nil {
		t.Fatalf("lookup expired card: %v", err)
	}
	if swept.Status != card.StatusExpired {
		t.Fatalf("expected expired status, got %s", swept.Status)
	}
	// A paused card keeps its frozen validity even past the stale date.
	var untouched card.CardInstance
	if err := db.First(&untouched, "id = ?", paused.ID).Error; err != nil {
		t.Fatalf("lookup paused card: %v", err)
	}
	if untouched.Status != card.StatusPaused {
		t.Fatalf("paused card must be untouched, got %s", untouched.Status)
	}

	var notifs []notification.Notification
	db.Where("user_id = ?", 7).Find(&notifs)
	if len(notifs) != 1 || notifs[0].Type != notification.TypeCardExpired {
		t.Fatalf("expected one card-expired notification, got %+v", notifs)
	}
}

func TestSweepEndsShortfallSessions(t *testing.T) {
	sw, db := setupSweeper(t)
	ctx := context.Background()

	soonShort := group.GroupSession{
		CoachID: 2, CategoryID: 1, Title: "soon short",
		StartTime: time.Now().Add(30 * time.Minute), EndTime: time.Now().Add(90 * time.Minute),
		CapacityMin: 3, CapacityMax: 10, CurrentCount: 1,
		PriceMode: group.PriceModeCredit, LessonCost: 1, Status: group.SessionOpen,
	}
	soonFull := group.GroupSession{
		CoachID: 2, CategoryID: 1, Title: "soon full",
		StartTime: time.Now().Add(30 * time.Minute), EndTime: time.Now().Add(90 * time.Minute),
		CapacityMin: 3, CapacityMax: 10, CurrentCount: 3,
		PriceMode: group.PriceModeCredit, LessonCost: 1, Status: group.SessionOpen,
	}
	laterShort := group.GroupSession{
		CoachID: 2, CategoryID: 1, Title: "later short",
		StartTime: time.Now().Add(90 * time.Minute), EndTime: time.Now().Add(3 * time.Hour),
		CapacityMin: 3, CapacityMax: 10, CurrentCount: 0,
		PriceMode: group.PriceModeCredit, LessonCost: 1, Status: group.SessionOpen,
	}
	for _, s := range []*group.GroupSession{&soonShort, &soonFull, &laterShort} {
		if err := db.Create(s).Error; err != nil {
			t.Fatalf("failed to create session: %v", err)
		}
	}

	report, err := sw.RunSweepOnce(ctx)
	if err != nil {
		t.Fatalf("RunSweepOnce returned error: %v", err)
	}
	if report.SessionsEnded != 1 {
		t.Fatalf("expected 1 ended session, got %d", report.SessionsEnded)
	}

	var ended group.GroupSession
	if err := db.First(&ended, soonShort.ID).Error; err != nil {
		t.Fatalf("lookup shortfall session: %v", err)
	}
	if ended.Status != group.SessionEnded || ended.EndReason != group.EndReasonShortfall {
		t.Fatalf("expected shortfall-ended session, got %v/%q", ended.Status, ended.EndReason)
	}
	var full group.GroupSession
	if err := db.First(&full, soonFull.ID).Error; err != nil {
		t.Fatalf("lookup full session: %v", err)
	}
	if full.Status != group.SessionOpen {
		t.Fatalf("session meeting its minimum must stay open, got %v", full.Status)
	}
	var later group.GroupSession
	if err := db.First(&later, laterShort.ID).Error; err != nil {
		t.Fatalf("lookup later session: %v", err)
	}
	if later.Status != group.SessionOpen {
		t.Fatalf("session outside the lookahead must stay open, got %v", later.Status)
	}

	report, err = sw.RunSweepOnce(ctx)
	if err != nil {
		t.Fatalf("second RunSweepOnce returned error: %v", err)
	}
	if report.SessionsEnded != 0 {
		t.Fatalf("expected 0 on second sweep, got %d", report.SessionsEnded)
	}
}

func TestSweepPrunesReadNotifications(t *testing.T) {
	sw, db := setupSweeper(t)
	ctx := context.Background()

	old := notification.Notification{UserID: 1, Type: notification.TypeBookingConfirmed, Title: "old", IsRead: true}
	if err := db.Create(&old).Error; err != nil {
		t.Fatalf("failed to create notification: %v", err)
	}
	db.Model(&old).Update("created_at", time.Now().Add(-60*24*time.Hour))

	oldUnread := notification.Notification{UserID: 1, Type: notification.TypeBookingConfirmed, Title: "old unread"}
	if err := db.Create(&oldUnread).Error; err != nil {
		t.Fatalf("failed to create notification: %v", err)
	}
	db.Model(&oldUnread).Update("created_at", time.Now().Add(-60*24*time.Hour))

	if _, err := sw.RunSweepOnce(ctx); err != nil {
		t.Fatalf("RunSweepOnce returned error: %v", err)
	}

	var count int64
	db.Model(&notification.Notification{}).Count(&count)
	if count != 1 {
		t.Fatalf("expected only the unread notification to survive, got %d", count)
	}
}
