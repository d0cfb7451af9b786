package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

type Service struct {
	repo *Repository
}

func NewService(repo *Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) Create(ctx context.Context, userID int64, t Type, title, message string, data map[string]any) error {
	n := &Notification{
		UserID:  userID,
		Type:    t,
		Title:   title,
		Message: message,
	}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return err
		}
		n.Data = raw
	}
	return s.repo.Create(ctx, n)
}

func (s *Service) GetUserNotifications(ctx context.Context, userID int64, limit int) ([]Notification, int64, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	list, err := s.repo.GetByUserID(ctx, userID, limit)
	if err != nil {
		return nil, 0, err
	}

	unread, err := s.repo.CountUnread(ctx, userID)
	if err != nil {
		unread = 0
	}
	return list, unread, nil
}

func (s *Service) MarkAsRead(ctx context.Context, notificationID, userID int64) error {
	return s.repo.MarkAsRead(ctx, notificationID, userID)
}

func (s *Service) MarkAllAsRead(ctx context.Context, userID int64) error {
	return s.repo.MarkAllAsRead(ctx, userID)
}

func (s *Service) NotifyBookingCreated(ctx context.Context, recipientID, bookingID int64, start time.Time) error {
	return s.Create(
		ctx,
		recipientID,
		TypeBookingCreated,
		"New booking request",
		fmt.Sprintf("A new booking was requested for %s", start.Format("2006-01-02 15:04")),
		map[string]any{"booking_id": bookingID},
	)
}

func (s *Service) NotifyBookingConfirmed(ctx context.Context, recipientID, bookingID int64) error {
	return s.Create(
		ctx,
		recipientID,
		TypeBookingConfirmed,
		"Booking confirmed",
		"Your booking has been confirmed",
		map[string]any{"booking_id": bookingID},
	)
}

func (s *Service) NotifyBookingCancelled(ctx context.Context, recipientID, bookingID int64, reason string) error {
	msg := "The booking has been cancelled"
	if reason != "" {
		msg = fmt.Sprintf("The booking has been cancelled: %s", reason)
	}
	return s.Create(
		ctx,
		recipientID,
		TypeBookingCancelled,
		"Booking cancelled",
		msg,
		map[string]any{"booking_id": bookingID, "reason": reason},
	)
}

func (s *Service) NotifyBookingCompleted(ctx context.Context, recipientID, bookingID int64) error {
	return s.Create(
		ctx,
		recipientID,
		TypeBookingCompleted,
		"Lesson completed",
		"The lesson has been marked completed and a credit was deducted",
		map[string]any{"booking_id": bookingID},
	)
}

func (s *Service) NotifyGroupRegistration(ctx context.Context, coachID, sessionID, studentID int64) error {
	return s.Create(
		ctx,
		coachID,
		TypeGroupRegistration,
		"New group registration",
		"A student registered for your group session",
		map[string]any{"session_id": sessionID, "student_id": studentID},
	)
}

func (s *Service) NotifyGroupEnded(ctx context.Context, recipientID, sessionID int64, reason string) error {
	return s.Create(
		ctx,
		recipientID,
		TypeGroupEnded,
		"Group session ended",
		fmt.Sprintf("A group session you registered for has ended (%s)", reason),
		map[string]any{"session_id": sessionID, "reason": reason},
	)
}

func (s *Service) NotifyCardExpired(ctx context.Context, recipientID int64, cardID string) error {
	return s.Create(
		ctx,
		recipientID,
		TypeCardExpired,
		"Card expired",
		"One of your lesson cards has passed its validity period",
		map[string]any{"card_id": cardID},
	)
}

// CleanupOld removes read notifications older than the retention window.
func (s *Service) CleanupOld(ctx context.Context, retention time.Duration) (int64, error) {
	return s.repo.DeleteOlderThan(ctx, time.Now().Add(-retention))
}
