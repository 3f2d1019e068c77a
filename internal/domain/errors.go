package domain

import "errors"

// Domain errors
var (
	// Lookup errors
	ErrSessionNotFound       = errors.New("session not found")
	ErrRegistrationNotFound  = errors.New("registration not found")
	ErrWaitlistEntryNotFound = errors.New("waitlist entry not found")

	// Admission errors
	ErrSessionFull        = errors.New("session has no free seats")
	ErrSessionNotOpen     = errors.New("session is not open for enrollment")
	ErrSeatsAvailable     = errors.New("session still has free seats, register directly")
	ErrOfferExpired       = errors.New("waitlist offer has expired")
	ErrAlreadyWaitlisted  = errors.New("child is already on the waitlist for this session")

	// State machine errors
	ErrInvalidStateTransition = errors.New("invalid state transition")

	// Concurrency errors
	ErrVersionConflict = errors.New("event stream version conflict")

	// Validation errors
	ErrInvalidUserID    = errors.New("invalid user id")
	ErrInvalidChildID   = errors.New("invalid child id")
	ErrInvalidSessionID = errors.New("invalid session id")
	ErrInvalidAmount    = errors.New("amount paid cannot be negative")
)

// IsNotFoundError checks if the error is a not found error
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrSessionNotFound) ||
		errors.Is(err, ErrRegistrationNotFound) ||
		errors.Is(err, ErrWaitlistEntryNotFound)
}

// IsValidationError checks if the error is a validation error
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidUserID) ||
		errors.Is(err, ErrInvalidChildID) ||
		errors.Is(err, ErrInvalidSessionID) ||
		errors.Is(err, ErrInvalidAmount)
}

// IsConflictError checks if the error is a conflict error
func IsConflictError(err error) bool {
	return errors.Is(err, ErrSessionFull) ||
		errors.Is(err, ErrInvalidStateTransition) ||
		errors.Is(err, ErrAlreadyWaitlisted) ||
		errors.Is(err, ErrVersionConflict)
}
