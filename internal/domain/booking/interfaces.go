package booking

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"coachbook/internal/domain/address"
	"coachbook/internal/domain/auth"
)

// CreditLedger is the category-credit side of completion. Both methods run
// inside the booking transaction so the availability check and the decrement
// share one lock.
type CreditLedger interface {
	AvailableForBooking(tx *gorm.DB, relationshipID, categoryID int64) (int, error)
	Decrease(tx *gorm.DB, relationshipID, categoryID int64, count int, reason string) error
}

// CardLedger is the prepaid-card side of completion.
type CardLedger interface {
	CheckAvailable(tx *gorm.DB, id uuid.UUID) error
	DeductLesson(tx *gorm.DB, id uuid.UUID) error
}

// UserDirectory resolves the external identity service's user records.
type UserDirectory interface {
	GetByID(ctx context.Context, id int64) (*auth.User, error)
}

// AddressDirectory resolves coach addresses.
type AddressDirectory interface {
	GetByID(ctx context.Context, id int64) (*address.Address, error)
}

// NotificationSender delivers fire-and-forget transition notices. Failures
// never roll back the transition that produced them.
type NotificationSender interface {
	NotifyBookingCreated(ctx context.Context, recipientID, bookingID int64, start time.Time) error
	NotifyBookingConfirmed(ctx context.Context, recipientID, bookingID int64) error
	NotifyBookingCancelled(ctx context.Context, recipientID, bookingID int64, reason string) error
	NotifyBookingCompleted(ctx context.Context, recipientID, bookingID int64) error
}
