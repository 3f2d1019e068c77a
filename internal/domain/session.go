package domain

import "time"

// SessionStatus represents the lifecycle status of a camp session
type SessionStatus string

const (
	SessionStatusDraft     SessionStatus = "draft"
	SessionStatusOpen      SessionStatus = "open"
	SessionStatusClosed    SessionStatus = "closed"
	SessionStatusCompleted SessionStatus = "completed"
)

// Session represents a camp session with a fixed seat capacity.
// Session configuration is owned by the admin surface; admission control
// only reads capacity and status.
type Session struct {
	ID        string        `json:"id"`
	Name      string        `json:"name"`
	Capacity  int           `json:"capacity"`
	Status    SessionStatus `json:"status"`
	StartDate time.Time     `json:"start_date"`
	EndDate   time.Time     `json:"end_date"`
	CreatedAt time.Time     `json:"created_at"`
}

// IsOpen reports whether the session accepts new enrollment requests
func (s *Session) IsOpen() bool {
	return s.Status == SessionStatusOpen
}
