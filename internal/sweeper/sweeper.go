package sweeper

import (
	"context"
	"log"
	"time"

	"gorm.io/gorm"

	"coachbook/internal/domain/booking"
	"coachbook/internal/domain/card"
	"coachbook/internal/domain/group"
	"coachbook/internal/domain/notification"
)

// Sweeper runs the deadline maintenance passes: timing out stale bookings,
// expiring cards whose validity ended, and closing under-subscribed group
// sessions shortly before they start. Every pass is a conditional bulk
// update, so running a sweep twice in a row is harmless.
type Sweeper struct {
	db            *gorm.DB
	notifications *notification.Service

	// GroupLookahead is how far before start time an open session is checked
	// against its minimum head count.
	GroupLookahead time.Duration

	// NotificationRetention bounds how long read notifications are kept.
	NotificationRetention time.Duration
}

type SweepReport struct {
	BookingsTimedOut int64 `json:"bookings_timed_out"`
	CardsExpired     int64 `json:"cards_expired"`
	SessionsEnded    int64 `json:"sessions_ended"`
}

func New(db *gorm.DB, notifications *notification.Service, groupLookahead, notificationRetention time.Duration) *Sweeper {
	if groupLookahead <= 0 {
		groupLookahead = time.Hour
	}
	return &Sweeper{
		db:                    db,
		notifications:         notifications,
		GroupLookahead:        groupLookahead,
		NotificationRetention: notificationRetention,
	}
}

// RunSweepOnce executes all passes and reports what changed. A failing pass
// is logged and skipped; the others still run.
func (s *Sweeper) RunSweepOnce(ctx context.Context) (SweepReport, error) {
	var report SweepReport
	var firstErr error

	n, err := s.timeoutBookings(ctx)
	if err != nil {
		log.Printf("sweeper: booking timeout pass failed: %v", err)
		firstErr = err
	}
	report.BookingsTimedOut = n

	n, err = s.expireCards(ctx)
	if err != nil {
		log.Printf("sweeper: card expiry pass failed: %v", err)
		if firstErr == nil {
			firstErr = err
		}
	}
	report.CardsExpired = n

	n, err = s.endShortfallSessions(ctx)
	if err != nil {
		log.Printf("sweeper: group shortfall pass failed: %v", err)
		if firstErr == nil {
			firstErr = err
		}
	}
	report.SessionsEnded = n

	if s.notifications != nil && s.NotificationRetention > 0 {
		if _, err := s.notifications.CleanupOld(ctx, s.NotificationRetention); err != nil {
			log.Printf("sweeper: notification cleanup failed: %v", err)
		}
	}

	return report, firstErr
}

// timeoutBookings cancels bookings that are still pending when their start
// time passes. Confirmed bookings are left alone.
func (s *Sweeper) timeoutBookings(ctx context.Context) (int64, error) {
	now := time.Now()
	res := s.db.WithContext(ctx).Model(&booking.Booking{}).
		Where("status = ? AND start_time < ?", booking.StatusPending, now).
		Updates(map[string]interface{}{
			"status":        booking.StatusTimeoutCancelled,
			"cancel_reason": "not confirmed before start time",
			"cancelled_at":  now,
		})
	return res.RowsAffected, res.Error
}

// expireCards flips active cards whose expire date has fully passed. The
// comparison mirrors the lazy check inside the card service: a card expires
// the day AFTER its expire date, never during it.
func (s *Sweeper) expireCards(ctx context.Context) (int64, error) {
	now := time.Now().UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	var expiring []card.CardInstance
	err := s.db.WithContext(ctx).
		Where("status = ? AND expire_date < ?", card.StatusActive, today).
		Find(&expiring).Error
	if err != nil {
		return 0, err
	}
	if len(expiring) == 0 {
		return 0, nil
	}

	res := s.db.WithContext(ctx).Model(&card.CardInstance{}).
		Where("status = ? AND expire_date < ?", card.StatusActive, today).
		Update("status", card.StatusExpired)
	if res.Error != nil {
		return 0, res.Error
	}

	if s.notifications != nil {
		for _, ci := range expiring {
			if err := s.notifications.NotifyCardExpired(ctx, ci.StudentID, ci.ID.String()); err != nil {
				log.Printf("sweeper: card expiry notification failed for %s: %v", ci.ID, err)
			}
		}
	}
	return res.RowsAffected, nil
}

// endShortfallSessions closes open sessions approaching their start time
// without reaching the minimum head count.
func (s *Sweeper) endShortfallSessions(ctx context.Context) (int64, error) {
	now := time.Now()
	res := s.db.WithContext(ctx).Model(&group.GroupSession{}).
		Where("status = ? AND start_time > ? AND start_time <= ? AND current_count < capacity_min",
			group.SessionOpen, now, now.Add(s.GroupLookahead)).
		Updates(map[string]interface{}{
			"status":     group.SessionEnded,
			"end_reason": group.EndReasonShortfall,
		})
	return res.RowsAffected, res.Error
}

// Schedule runs sweeps on a fixed interval until the returned channel is
// closed or the context is cancelled.
func (s *Sweeper) Schedule(ctx context.Context, interval time.Duration) chan struct{} {
	stopCh := make(chan struct{})

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				report, err := s.RunSweepOnce(ctx)
				if err != nil {
					log.Printf("sweeper: sweep finished with errors: %v", err)
				}
				if report.BookingsTimedOut+report.CardsExpired+report.SessionsEnded > 0 {
					log.Printf("sweeper: timed out %d bookings, expired %d cards, ended %d sessions",
						report.BookingsTimedOut, report.CardsExpired, report.SessionsEnded)
				}
			case <-stopCh:
				log.Println("sweeper: stopped")
				return
			case <-ctx.Done():
				log.Println("sweeper: stopped (context done)")
				return
			}
		}
	}()

	log.Printf("sweeper: scheduled with interval %v", interval)
	return stopCh
}
