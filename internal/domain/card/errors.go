package card

import "errors"

var (
	ErrTemplateNotFound = errors.New("card template not found")
	ErrTemplateEnabled  = errors.New("card template must be disabled before deletion")
	ErrCardNotFound     = errors.New("card not found")
	ErrAlreadyActive    = errors.New("card is already active")
	ErrCardExpired      = errors.New("card has expired")
	ErrInvalidState     = errors.New("card state does not allow this transition")

	ErrCardUnavailable   = errors.New("card unavailable")
	ErrCardNotDeletable  = errors.New("card cannot be deleted")
	ErrNotRelationCoach  = errors.New("template does not belong to the relationship's coach")
	ErrTemplateDisabled  = errors.New("card template is disabled")
)

// UnavailableError explains why a card cannot cover a lesson right now. The
// reason is a stable string the calling layer renders directly.
type UnavailableError struct {
	Reason string
}

func (e *UnavailableError) Error() string { return "card unavailable: " + e.Reason }
func (e *UnavailableError) Unwrap() error { return ErrCardUnavailable }

// NotDeletableError explains why a card must be kept.
type NotDeletableError struct {
	Reason string
}

func (e *NotDeletableError) Error() string { return "card cannot be deleted: " + e.Reason }
func (e *NotDeletableError) Unwrap() error { return ErrCardNotDeletable }
