package dto

import (
	"time"

	"github.com/smroczek2/camp-os-sub002/internal/domain"
)

// CreateRegistrationRequest is the request to create a pending registration
type CreateRegistrationRequest struct {
	SessionID string `json:"session_id" binding:"required,uuid"`
	ChildID   string `json:"child_id" binding:"required,uuid"`
}

// ConfirmPaymentRequest confirms payment for a pending registration.
// Payment capture happens upstream; this carries only the settled amount.
type ConfirmPaymentRequest struct {
	Amount float64 `json:"amount" binding:"required,gte=0"`
}

// RegistrationResponse is the API representation of a registration
type RegistrationResponse struct {
	ID          string     `json:"id"`
	SessionID   string     `json:"session_id"`
	ChildID     string     `json:"child_id"`
	UserID      string     `json:"user_id"`
	Status      string     `json:"status"`
	AmountPaid  *float64   `json:"amount_paid,omitempty"`
	ConfirmedAt *time.Time `json:"confirmed_at,omitempty"`
	CanceledAt  *time.Time `json:"canceled_at,omitempty"`
	RefundedAt  *time.Time `json:"refunded_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// NewRegistrationResponse converts a domain registration to a response
func NewRegistrationResponse(reg *domain.Registration) *RegistrationResponse {
	return &RegistrationResponse{
		ID:          reg.ID,
		SessionID:   reg.SessionID,
		ChildID:     reg.ChildID,
		UserID:      reg.UserID,
		Status:      reg.Status.String(),
		AmountPaid:  reg.AmountPaid,
		ConfirmedAt: reg.ConfirmedAt,
		CanceledAt:  reg.CanceledAt,
		RefundedAt:  reg.RefundedAt,
		CreatedAt:   reg.CreatedAt,
		UpdatedAt:   reg.UpdatedAt,
	}
}

// JoinWaitlistRequest is the request to join a session's waitlist
type JoinWaitlistRequest struct {
	SessionID string `json:"session_id" binding:"required,uuid"`
	ChildID   string `json:"child_id" binding:"required,uuid"`
}

// WaitlistEntryResponse is the API representation of a waitlist entry
type WaitlistEntryResponse struct {
	ID             string     `json:"id"`
	SessionID      string     `json:"session_id"`
	ChildID        string     `json:"child_id"`
	UserID         string     `json:"user_id"`
	Status         string     `json:"status"`
	Position       int        `json:"position"`
	OfferedAt      *time.Time `json:"offered_at,omitempty"`
	OfferExpiresAt *time.Time `json:"offer_expires_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// NewWaitlistEntryResponse converts a domain waitlist entry to a response
func NewWaitlistEntryResponse(entry *domain.WaitlistEntry) *WaitlistEntryResponse {
	return &WaitlistEntryResponse{
		ID:             entry.ID,
		SessionID:      entry.SessionID,
		ChildID:        entry.ChildID,
		UserID:         entry.UserID,
		Status:         entry.Status.String(),
		Position:       entry.Position,
		OfferedAt:      entry.OfferedAt,
		OfferExpiresAt: entry.OfferExpiresAt,
		CreatedAt:      entry.CreatedAt,
	}
}

// AcceptOfferResponse is returned when an offer converts into a registration
type AcceptOfferResponse struct {
	Entry        *WaitlistEntryResponse `json:"entry"`
	Registration *RegistrationResponse  `json:"registration"`
}

// WaitlistPositionResponse reports a child's current place in line
type WaitlistPositionResponse struct {
	SessionID string `json:"session_id"`
	ChildID   string `json:"child_id"`
	Position  int    `json:"position"`
	Status    string `json:"status"`
}

// CapacitySummaryResponse reports seat usage for a session
type CapacitySummaryResponse struct {
	SessionID string `json:"session_id"`
	Capacity  int    `json:"capacity"`
	Confirmed int    `json:"confirmed"`
	Waiting   int    `json:"waiting"`
	Available int    `json:"available"`
}

// EventResponse is the API representation of an audit event
type EventResponse struct {
	ID        string    `json:"id"`
	StreamID  string    `json:"stream_id"`
	Type      string    `json:"type"`
	Data      any       `json:"data"`
	Version   int64     `json:"version"`
	ActorID   string    `json:"actor_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// PaginatedResponse wraps a paginated list
type PaginatedResponse struct {
	Items     any `json:"items"`
	Page      int `json:"page"`
	PageSize  int `json:"page_size"`
	ItemCount int `json:"item_count"`
}
