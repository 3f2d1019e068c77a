package domain

import (
	"strings"
	"time"
)

// WaitlistStatus represents the status of a waitlist entry
type WaitlistStatus string

const (
	WaitlistStatusWaiting   WaitlistStatus = "waiting"
	WaitlistStatusOffered   WaitlistStatus = "offered"
	WaitlistStatusConverted WaitlistStatus = "converted"
	WaitlistStatusExpired   WaitlistStatus = "expired"
	WaitlistStatusWithdrawn WaitlistStatus = "withdrawn"
)

// String returns the string representation of WaitlistStatus
func (s WaitlistStatus) String() string {
	return string(s)
}

// IsTerminal reports whether the status is terminal. Terminal entries no
// longer hold a queue position.
func (s WaitlistStatus) IsTerminal() bool {
	switch s {
	case WaitlistStatusConverted, WaitlistStatusExpired, WaitlistStatusWithdrawn:
		return true
	}
	return false
}

var waitlistTransitions = map[WaitlistStatus][]WaitlistStatus{
	WaitlistStatusWaiting: {WaitlistStatusOffered, WaitlistStatusWithdrawn},
	WaitlistStatusOffered: {WaitlistStatusConverted, WaitlistStatusExpired},
}

// CanTransitionTo reports whether the transition from s to target is legal
func (s WaitlistStatus) CanTransitionTo(target WaitlistStatus) bool {
	for _, allowed := range waitlistTransitions[s] {
		if allowed == target {
			return true
		}
	}
	return false
}

// WaitlistEntry is one child's place in a session's FIFO waitlist.
// Positions are 1-based and contiguous among non-terminal entries.
type WaitlistEntry struct {
	ID             string         `json:"id"`
	SessionID      string         `json:"session_id"`
	ChildID        string         `json:"child_id"`
	UserID         string         `json:"user_id"`
	Status         WaitlistStatus `json:"status"`
	Position       int            `json:"position"`
	OfferedAt      *time.Time     `json:"offered_at,omitempty"`
	OfferExpiresAt *time.Time     `json:"offer_expires_at,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// Validate validates the waitlist entry fields
func (e *WaitlistEntry) Validate() error {
	if strings.TrimSpace(e.UserID) == "" {
		return ErrInvalidUserID
	}
	if strings.TrimSpace(e.ChildID) == "" {
		return ErrInvalidChildID
	}
	if strings.TrimSpace(e.SessionID) == "" {
		return ErrInvalidSessionID
	}
	return nil
}

// IsTerminal reports whether the entry reached a terminal status
func (e *WaitlistEntry) IsTerminal() bool {
	return e.Status.IsTerminal()
}

// OfferIsExpired reports whether an outstanding offer has passed its window.
// Entries past the window stay in offered status until the expiry sweep or a
// conversion attempt observes them.
func (e *WaitlistEntry) OfferIsExpired(now time.Time) bool {
	return e.Status == WaitlistStatusOffered &&
		e.OfferExpiresAt != nil && now.After(*e.OfferExpiresAt)
}

// Offer transitions waiting → offered and stamps the offer window
func (e *WaitlistEntry) Offer(now time.Time, window time.Duration) error {
	if !e.Status.CanTransitionTo(WaitlistStatusOffered) {
		return ErrInvalidStateTransition
	}
	expires := now.Add(window)
	e.Status = WaitlistStatusOffered
	e.OfferedAt = &now
	e.OfferExpiresAt = &expires
	e.UpdatedAt = now
	return nil
}

// Convert transitions offered → converted. An offer past its window converts
// to ErrOfferExpired instead, even if the sweep has not run yet.
func (e *WaitlistEntry) Convert(now time.Time) error {
	if e.OfferIsExpired(now) {
		return ErrOfferExpired
	}
	if !e.Status.CanTransitionTo(WaitlistStatusConverted) {
		return ErrInvalidStateTransition
	}
	e.Status = WaitlistStatusConverted
	e.UpdatedAt = now
	return nil
}

// Expire transitions offered → expired
func (e *WaitlistEntry) Expire(now time.Time) error {
	if !e.Status.CanTransitionTo(WaitlistStatusExpired) {
		return ErrInvalidStateTransition
	}
	e.Status = WaitlistStatusExpired
	e.UpdatedAt = now
	return nil
}

// Withdraw transitions waiting → withdrawn
func (e *WaitlistEntry) Withdraw(now time.Time) error {
	if !e.Status.CanTransitionTo(WaitlistStatusWithdrawn) {
		return ErrInvalidStateTransition
	}
	e.Status = WaitlistStatusWithdrawn
	e.UpdatedAt = now
	return nil
}
