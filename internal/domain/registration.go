package domain

import (
	"strings"
	"time"
)

// RegistrationStatus represents the status of a registration
type RegistrationStatus string

const (
	RegistrationStatusPending   RegistrationStatus = "pending"
	RegistrationStatusConfirmed RegistrationStatus = "confirmed"
	RegistrationStatusCanceled  RegistrationStatus = "canceled"
	RegistrationStatusRefunded  RegistrationStatus = "refunded"
)

// IsValid checks if the status is a valid RegistrationStatus
func (s RegistrationStatus) IsValid() bool {
	switch s {
	case RegistrationStatusPending, RegistrationStatusConfirmed,
		RegistrationStatusCanceled, RegistrationStatusRefunded:
		return true
	}
	return false
}

// String returns the string representation of RegistrationStatus
func (s RegistrationStatus) String() string {
	return string(s)
}

// registrationTransitions enumerates every legal transition. Anything not
// listed here fails with ErrInvalidStateTransition.
var registrationTransitions = map[RegistrationStatus][]RegistrationStatus{
	RegistrationStatusPending:   {RegistrationStatusConfirmed, RegistrationStatusCanceled},
	RegistrationStatusConfirmed: {RegistrationStatusRefunded, RegistrationStatusCanceled},
}

// CanTransitionTo reports whether the transition from s to target is legal
func (s RegistrationStatus) CanTransitionTo(target RegistrationStatus) bool {
	for _, allowed := range registrationTransitions[s] {
		if allowed == target {
			return true
		}
	}
	return false
}

// Registration represents one child's enrollment in one session.
// Only confirmed registrations count against session capacity.
type Registration struct {
	ID          string             `json:"id"`
	SessionID   string             `json:"session_id"`
	ChildID     string             `json:"child_id"`
	UserID      string             `json:"user_id"`
	Status      RegistrationStatus `json:"status"`
	AmountPaid  *float64           `json:"amount_paid,omitempty"`
	ConfirmedAt *time.Time         `json:"confirmed_at,omitempty"`
	CanceledAt  *time.Time         `json:"canceled_at,omitempty"`
	RefundedAt  *time.Time         `json:"refunded_at,omitempty"`
	CreatedAt   time.Time          `json:"created_at"`
	UpdatedAt   time.Time          `json:"updated_at"`
}

// Validate validates the registration fields
func (r *Registration) Validate() error {
	if strings.TrimSpace(r.UserID) == "" {
		return ErrInvalidUserID
	}
	if strings.TrimSpace(r.ChildID) == "" {
		return ErrInvalidChildID
	}
	if strings.TrimSpace(r.SessionID) == "" {
		return ErrInvalidSessionID
	}
	return nil
}

// IsConfirmed checks if the registration is in confirmed status
func (r *Registration) IsConfirmed() bool {
	return r.Status == RegistrationStatusConfirmed
}

// IsTerminal reports whether the registration reached a terminal status
func (r *Registration) IsTerminal() bool {
	return r.Status == RegistrationStatusCanceled || r.Status == RegistrationStatusRefunded
}

// Confirm transitions pending → confirmed, recording the paid amount
func (r *Registration) Confirm(amount float64, now time.Time) error {
	if !r.Status.CanTransitionTo(RegistrationStatusConfirmed) {
		return ErrInvalidStateTransition
	}
	if amount < 0 {
		return ErrInvalidAmount
	}
	r.Status = RegistrationStatusConfirmed
	r.AmountPaid = &amount
	r.ConfirmedAt = &now
	r.UpdatedAt = now
	return nil
}

// Cancel transitions pending or confirmed → canceled. The caller is
// responsible for triggering promotion when a confirmed seat is freed.
func (r *Registration) Cancel(now time.Time) error {
	if !r.Status.CanTransitionTo(RegistrationStatusCanceled) {
		return ErrInvalidStateTransition
	}
	r.Status = RegistrationStatusCanceled
	r.CanceledAt = &now
	r.UpdatedAt = now
	return nil
}

// Refund transitions confirmed → refunded
func (r *Registration) Refund(now time.Time) error {
	if !r.Status.CanTransitionTo(RegistrationStatusRefunded) {
		return ErrInvalidStateTransition
	}
	r.Status = RegistrationStatusRefunded
	r.RefundedAt = &now
	r.UpdatedAt = now
	return nil
}
