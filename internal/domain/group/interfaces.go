package group

import (
	"context"

	"gorm.io/gorm"
)

// CreditLedger is the subset of the relationship ledger the capacity manager
// needs: reservation checks at registration, the debit at check-in, and the
// compensating credit when a check-in is reverted.
type CreditLedger interface {
	AvailableForBooking(tx *gorm.DB, relationshipID, categoryID int64) (int, error)
	Decrease(tx *gorm.DB, relationshipID, categoryID int64, count int, reason string) error
	Increase(tx *gorm.DB, relationshipID, categoryID int64, count int, reason string) error
}

// NotificationSender delivers fire-and-forget notices; failures are ignored.
type NotificationSender interface {
	NotifyGroupRegistration(ctx context.Context, coachID, sessionID, studentID int64) error
	NotifyGroupEnded(ctx context.Context, recipientID, sessionID int64, reason string) error
}
