package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/smroczek2/camp-os-sub002/internal/domain"
)

// TxRunner runs a unit of work inside a database transaction. Every
// enrollment mutation commits its row changes and audit events atomically
// through one of these.
type TxRunner interface {
	// RunInTx begins a transaction, runs fn, and commits on nil error.
	// Serialization failures and version conflicts surface as
	// domain.ErrVersionConflict so callers can retry.
	RunInTx(ctx context.Context, fn func(ctx context.Context, tx pgx.Tx) error) error
}

// EventStore defines the interface for the append-only enrollment audit log
type EventStore interface {
	// AppendTx appends one event to its stream. expectedVersion is the
	// version the caller last observed; a mismatch fails with
	// domain.ErrVersionConflict and nothing is written.
	AppendTx(ctx context.Context, tx pgx.Tx, event *domain.Event, expectedVersion int64) error

	// CurrentVersionTx returns the stream's latest version, 0 when the
	// stream does not exist yet.
	CurrentVersionTx(ctx context.Context, tx pgx.Tx, streamID string) (int64, error)

	// ReadStream returns every event of a stream, oldest first
	ReadStream(ctx context.Context, streamID string) ([]domain.Event, error)
}

// SessionRepository defines the interface for session data access
type SessionRepository interface {
	// GetByID retrieves a session by its ID
	GetByID(ctx context.Context, id string) (*domain.Session, error)

	// GetForUpdateTx locks the session row for the rest of the transaction.
	// Seat claims for one session serialize on this lock.
	GetForUpdateTx(ctx context.Context, tx pgx.Tx, id string) (*domain.Session, error)

	// CountConfirmedTx counts confirmed registrations for a session inside
	// the transaction. The free-seat check derives from this count, never
	// from a stored counter.
	CountConfirmedTx(ctx context.Context, tx pgx.Tx, sessionID string) (int, error)

	// CountConfirmed counts confirmed registrations outside a transaction,
	// for read-only capacity summaries.
	CountConfirmed(ctx context.Context, sessionID string) (int, error)

	// Create creates a session record
	Create(ctx context.Context, session *domain.Session) error
}

// RegistrationRepository defines the interface for registration data access
type RegistrationRepository interface {
	// CreateTx inserts a registration within a transaction
	CreateTx(ctx context.Context, tx pgx.Tx, reg *domain.Registration) error

	// UpdateTx persists a registration's mutable fields within a transaction
	UpdateTx(ctx context.Context, tx pgx.Tx, reg *domain.Registration) error

	// GetByID retrieves a registration by its ID
	GetByID(ctx context.Context, id string) (*domain.Registration, error)

	// GetByIDTx retrieves a registration with a row lock
	GetByIDTx(ctx context.Context, tx pgx.Tx, id string) (*domain.Registration, error)

	// ListBySession retrieves registrations for a session
	ListBySession(ctx context.Context, sessionID string, limit, offset int) ([]*domain.Registration, error)

	// ListByUser retrieves registrations created by a user
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]*domain.Registration, error)
}

// WaitlistRepository defines the interface for waitlist data access
type WaitlistRepository interface {
	// CreateTx inserts a waitlist entry within a transaction
	CreateTx(ctx context.Context, tx pgx.Tx, entry *domain.WaitlistEntry) error

	// UpdateTx persists a waitlist entry's mutable fields within a transaction
	UpdateTx(ctx context.Context, tx pgx.Tx, entry *domain.WaitlistEntry) error

	// GetByID retrieves a waitlist entry by its ID
	GetByID(ctx context.Context, id string) (*domain.WaitlistEntry, error)

	// GetByIDTx retrieves a waitlist entry with a row lock
	GetByIDTx(ctx context.Context, tx pgx.Tx, id string) (*domain.WaitlistEntry, error)

	// MaxPositionTx returns the highest position among active entries of a
	// session, 0 when the waitlist is empty.
	MaxPositionTx(ctx context.Context, tx pgx.Tx, sessionID string) (int, error)

	// NextWaitingTx returns the waiting entry with the lowest position,
	// locked, or domain.ErrWaitlistEntryNotFound when nobody is waiting.
	NextWaitingTx(ctx context.Context, tx pgx.Tx, sessionID string) (*domain.WaitlistEntry, error)

	// ListActiveAfterPositionTx returns active entries behind the given
	// position, lowest first, locked for repacking.
	ListActiveAfterPositionTx(ctx context.Context, tx pgx.Tx, sessionID string, position int) ([]*domain.WaitlistEntry, error)

	// HasActiveEntryTx reports whether the child already holds an active
	// entry on the session's waitlist.
	HasActiveEntryTx(ctx context.Context, tx pgx.Tx, sessionID, childID string) (bool, error)

	// ListExpiredOffers returns offered entries whose window passed before
	// cutoff, oldest expiry first.
	ListExpiredOffers(ctx context.Context, cutoff time.Time, limit int) ([]*domain.WaitlistEntry, error)

	// ListBySession retrieves active entries for a session ordered by position
	ListBySession(ctx context.Context, sessionID string) ([]*domain.WaitlistEntry, error)

	// GetActiveBySessionChild retrieves the child's active entry on a
	// session's waitlist
	GetActiveBySessionChild(ctx context.Context, sessionID, childID string) (*domain.WaitlistEntry, error)

	// CountWaiting counts waiting entries for a session
	CountWaiting(ctx context.Context, sessionID string) (int, error)
}
