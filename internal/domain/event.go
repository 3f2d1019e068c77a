package domain

import (
	"encoding/json"
	"time"
)

// Event types for the enrollment audit log
const (
	EventRegistrationCreated   = "RegistrationCreated"
	EventRegistrationConfirmed = "RegistrationConfirmed"
	EventPaymentCompleted      = "PaymentCompleted"
	EventRegistrationCanceled  = "RegistrationCanceled"
	EventRegistrationRefunded  = "RegistrationRefunded"

	EventWaitlistJoined    = "WaitlistJoined"
	EventWaitlistOffered   = "WaitlistOffered"
	EventWaitlistConverted = "WaitlistConverted"
	EventWaitlistExpired   = "WaitlistExpired"
	EventWaitlistLeft      = "WaitlistLeft"
	EventWaitlistReordered = "WaitlistReordered"
)

// Event is one immutable record in an entity's audit stream. Version is
// assigned per stream, starting at 1 with no gaps; (StreamID, Version) is
// unique across the log.
type Event struct {
	ID        string          `json:"id"`
	StreamID  string          `json:"stream_id"`
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data"`
	Version   int64           `json:"version"`
	ActorID   string          `json:"actor_id,omitempty"`
	TenantID  string          `json:"tenant_id,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// RegistrationStream returns the stream id for a registration's audit log
func RegistrationStream(registrationID string) string {
	return "registration-" + registrationID
}

// WaitlistStream returns the stream id for a waitlist entry's audit log
func WaitlistStream(entryID string) string {
	return "waitlist-" + entryID
}

// Event payloads. Every mutation writes exactly one event per affected
// stream, carrying enough data to rebuild the entity by replay.

type RegistrationCreatedData struct {
	RegistrationID string    `json:"registration_id"`
	SessionID      string    `json:"session_id"`
	ChildID        string    `json:"child_id"`
	UserID         string    `json:"user_id"`
	CreatedAt      time.Time `json:"created_at"`
}

type RegistrationConfirmedData struct {
	RegistrationID string    `json:"registration_id"`
	SessionID      string    `json:"session_id"`
	ConfirmedAt    time.Time `json:"confirmed_at"`
}

type PaymentCompletedData struct {
	RegistrationID string    `json:"registration_id"`
	Amount         float64   `json:"amount"`
	CompletedAt    time.Time `json:"completed_at"`
}

type RegistrationCanceledData struct {
	RegistrationID string    `json:"registration_id"`
	SessionID      string    `json:"session_id"`
	WasConfirmed   bool      `json:"was_confirmed"`
	CanceledAt     time.Time `json:"canceled_at"`
}

type RegistrationRefundedData struct {
	RegistrationID string    `json:"registration_id"`
	SessionID      string    `json:"session_id"`
	Amount         float64   `json:"amount"`
	RefundedAt     time.Time `json:"refunded_at"`
}

type WaitlistJoinedData struct {
	EntryID   string    `json:"entry_id"`
	SessionID string    `json:"session_id"`
	ChildID   string    `json:"child_id"`
	UserID    string    `json:"user_id"`
	Position  int       `json:"position"`
	JoinedAt  time.Time `json:"joined_at"`
}

type WaitlistOfferedData struct {
	EntryID        string    `json:"entry_id"`
	SessionID      string    `json:"session_id"`
	OfferedAt      time.Time `json:"offered_at"`
	OfferExpiresAt time.Time `json:"offer_expires_at"`
}

type WaitlistConvertedData struct {
	EntryID        string    `json:"entry_id"`
	SessionID      string    `json:"session_id"`
	RegistrationID string    `json:"registration_id"`
	ConvertedAt    time.Time `json:"converted_at"`
}

type WaitlistExpiredData struct {
	EntryID   string    `json:"entry_id"`
	SessionID string    `json:"session_id"`
	ExpiredAt time.Time `json:"expired_at"`
}

type WaitlistLeftData struct {
	EntryID   string    `json:"entry_id"`
	SessionID string    `json:"session_id"`
	Position  int       `json:"position"`
	LeftAt    time.Time `json:"left_at"`
}

type WaitlistReorderedData struct {
	EntryID     string    `json:"entry_id"`
	SessionID   string    `json:"session_id"`
	OldPosition int       `json:"old_position"`
	NewPosition int       `json:"new_position"`
	ReorderedAt time.Time `json:"reordered_at"`
}
