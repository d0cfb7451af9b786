package booking

import "errors"

var (
	ErrValidation          = errors.New("validation error")
	ErrBookingNotFound     = errors.New("booking not found")
	ErrForbidden           = errors.New("actor is not a party to this booking")
	ErrSelfConfirm         = errors.New("booking creator cannot confirm their own request")
	ErrCoachOnlyComplete   = errors.New("only the coach can complete a booking")
	ErrInvalidTransition   = errors.New("booking status does not allow this transition")
	ErrSlotConflict        = errors.New("time slot overlaps an existing booking")
	ErrCoachCapacityFull   = errors.New("coach is fully booked for this slot")
	ErrBookingDisabled     = errors.New("coach has paused new bookings for this relationship")
	ErrRelationshipClosed  = errors.New("relationship is no longer active")
	ErrCardNotOnRelation   = errors.New("card does not belong to this relationship")
	ErrAmbiguousSource     = errors.New("exactly one of category_id and card_instance_id is required")
	ErrUnknownAction       = errors.New("unknown transition action")
)
