package group

import "errors"

var (
	ErrValidation           = errors.New("validation error")
	ErrSessionNotFound      = errors.New("group session not found")
	ErrSessionNotOpen       = errors.New("group session is not open for enrollment")
	ErrSessionNotDraft      = errors.New("group session has already been published")
	ErrSessionFull          = errors.New("group session is full")
	ErrSessionEnded         = errors.New("group session has ended")
	ErrAlreadyRegistered    = errors.New("student is already registered for this session")
	ErrRegistrationNotFound = errors.New("registration not found")
	ErrInvalidRegState      = errors.New("registration status does not allow this transition")
	ErrRelationshipRequired = errors.New("an active relationship with the coach is required")
	ErrForbidden            = errors.New("actor is not allowed to manage this session")
	ErrNotCheckedIn         = errors.New("registration has no check-in to revert")
)
