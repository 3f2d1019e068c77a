package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/smroczek2/camp-os-sub002/internal/domain"
	"github.com/smroczek2/camp-os-sub002/pkg/telemetry"
)

// PostgresWaitlistRepository implements WaitlistRepository using PostgreSQL
type PostgresWaitlistRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresWaitlistRepository creates a new PostgresWaitlistRepository
func NewPostgresWaitlistRepository(pool *pgxpool.Pool) *PostgresWaitlistRepository {
	return &PostgresWaitlistRepository{pool: pool}
}

const waitlistColumns = `id, session_id, child_id, user_id, status, position,
	offered_at, offer_expires_at, created_at, updated_at`

func scanWaitlistEntry(row pgx.Row) (*domain.WaitlistEntry, error) {
	var e domain.WaitlistEntry
	err := row.Scan(
		&e.ID, &e.SessionID, &e.ChildID, &e.UserID, &e.Status, &e.Position,
		&e.OfferedAt, &e.OfferExpiresAt, &e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrWaitlistEntryNotFound
		}
		return nil, fmt.Errorf("failed to scan waitlist entry: %w", err)
	}
	return &e, nil
}

// CreateTx inserts a waitlist entry within a transaction
func (r *PostgresWaitlistRepository) CreateTx(ctx context.Context, tx pgx.Tx, entry *domain.WaitlistEntry) error {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.waitlist.create")
	defer span.End()

	span.SetAttributes(
		attribute.String("entry_id", entry.ID),
		attribute.String("session_id", entry.SessionID),
		attribute.Int("position", entry.Position),
	)

	_, err := tx.Exec(ctx, `
		INSERT INTO waitlist_entries (
			id, session_id, child_id, user_id, status, position,
			offered_at, offer_expires_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`,
		entry.ID,
		entry.SessionID,
		entry.ChildID,
		entry.UserID,
		entry.Status.String(),
		entry.Position,
		entry.OfferedAt,
		entry.OfferExpiresAt,
		entry.CreatedAt,
		entry.UpdatedAt,
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to create waitlist entry: %w", err)
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

// UpdateTx persists a waitlist entry's mutable fields within a transaction
func (r *PostgresWaitlistRepository) UpdateTx(ctx context.Context, tx pgx.Tx, entry *domain.WaitlistEntry) error {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.waitlist.update")
	defer span.End()

	span.SetAttributes(
		attribute.String("entry_id", entry.ID),
		attribute.String("status", entry.Status.String()),
	)

	result, err := tx.Exec(ctx, `
		UPDATE waitlist_entries SET
			status = $2,
			position = $3,
			offered_at = $4,
			offer_expires_at = $5,
			updated_at = $6
		WHERE id = $1
	`,
		entry.ID,
		entry.Status.String(),
		entry.Position,
		entry.OfferedAt,
		entry.OfferExpiresAt,
		entry.UpdatedAt,
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to update waitlist entry: %w", err)
	}
	if result.RowsAffected() == 0 {
		span.SetStatus(codes.Error, "waitlist entry not found")
		return domain.ErrWaitlistEntryNotFound
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

// GetByID retrieves a waitlist entry by its ID
func (r *PostgresWaitlistRepository) GetByID(ctx context.Context, id string) (*domain.WaitlistEntry, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.waitlist.get_by_id")
	defer span.End()

	span.SetAttributes(attribute.String("entry_id", id))

	entry, err := scanWaitlistEntry(r.pool.QueryRow(ctx,
		`SELECT `+waitlistColumns+` FROM waitlist_entries WHERE id = $1`, id))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetStatus(codes.Ok, "")
	return entry, nil
}

// GetByIDTx retrieves a waitlist entry with a row lock
func (r *PostgresWaitlistRepository) GetByIDTx(ctx context.Context, tx pgx.Tx, id string) (*domain.WaitlistEntry, error) {
	return scanWaitlistEntry(tx.QueryRow(ctx,
		`SELECT `+waitlistColumns+` FROM waitlist_entries WHERE id = $1 FOR UPDATE`, id))
}

// MaxPositionTx returns the highest active position, 0 for an empty waitlist
func (r *PostgresWaitlistRepository) MaxPositionTx(ctx context.Context, tx pgx.Tx, sessionID string) (int, error) {
	var max int
	err := tx.QueryRow(ctx, `
		SELECT COALESCE(MAX(position), 0) FROM waitlist_entries
		WHERE session_id = $1 AND status IN ('waiting', 'offered')
	`, sessionID).Scan(&max)
	if err != nil {
		return 0, fmt.Errorf("failed to read max waitlist position: %w", err)
	}
	return max, nil
}

// NextWaitingTx returns the lowest-position waiting entry, locked
func (r *PostgresWaitlistRepository) NextWaitingTx(ctx context.Context, tx pgx.Tx, sessionID string) (*domain.WaitlistEntry, error) {
	return scanWaitlistEntry(tx.QueryRow(ctx, `
		SELECT `+waitlistColumns+` FROM waitlist_entries
		WHERE session_id = $1 AND status = 'waiting'
		ORDER BY position ASC
		LIMIT 1
		FOR UPDATE
	`, sessionID))
}

// ListActiveAfterPositionTx returns active entries behind position, locked
func (r *PostgresWaitlistRepository) ListActiveAfterPositionTx(ctx context.Context, tx pgx.Tx, sessionID string, position int) ([]*domain.WaitlistEntry, error) {
	rows, err := tx.Query(ctx, `
		SELECT `+waitlistColumns+` FROM waitlist_entries
		WHERE session_id = $1 AND status IN ('waiting', 'offered') AND position > $2
		ORDER BY position ASC
		FOR UPDATE
	`, sessionID, position)
	if err != nil {
		return nil, fmt.Errorf("failed to list waitlist entries: %w", err)
	}
	return collectWaitlistRows(rows)
}

// HasActiveEntryTx reports whether the child already holds an active entry
func (r *PostgresWaitlistRepository) HasActiveEntryTx(ctx context.Context, tx pgx.Tx, sessionID, childID string) (bool, error) {
	var exists bool
	err := tx.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM waitlist_entries
			WHERE session_id = $1 AND child_id = $2 AND status IN ('waiting', 'offered')
		)
	`, sessionID, childID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check waitlist membership: %w", err)
	}
	return exists, nil
}

// ListExpiredOffers returns offered entries whose window passed before cutoff
func (r *PostgresWaitlistRepository) ListExpiredOffers(ctx context.Context, cutoff time.Time, limit int) ([]*domain.WaitlistEntry, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.waitlist.list_expired_offers")
	defer span.End()

	rows, err := r.pool.Query(ctx, `
		SELECT `+waitlistColumns+` FROM waitlist_entries
		WHERE status = 'offered' AND offer_expires_at < $1
		ORDER BY offer_expires_at ASC
		LIMIT $2
	`, cutoff, limit)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to list expired offers: %w", err)
	}

	entries, err := collectWaitlistRows(rows)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetAttributes(attribute.Int("entry_count", len(entries)))
	span.SetStatus(codes.Ok, "")
	return entries, nil
}

// ListBySession retrieves active entries for a session ordered by position
func (r *PostgresWaitlistRepository) ListBySession(ctx context.Context, sessionID string) ([]*domain.WaitlistEntry, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.waitlist.list_by_session")
	defer span.End()

	span.SetAttributes(attribute.String("session_id", sessionID))

	rows, err := r.pool.Query(ctx, `
		SELECT `+waitlistColumns+` FROM waitlist_entries
		WHERE session_id = $1 AND status IN ('waiting', 'offered')
		ORDER BY position ASC
	`, sessionID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to list waitlist entries: %w", err)
	}

	entries, err := collectWaitlistRows(rows)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetStatus(codes.Ok, "")
	return entries, nil
}

// GetActiveBySessionChild retrieves the child's active entry on a session's waitlist
func (r *PostgresWaitlistRepository) GetActiveBySessionChild(ctx context.Context, sessionID, childID string) (*domain.WaitlistEntry, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.waitlist.get_active_by_child")
	defer span.End()

	span.SetAttributes(
		attribute.String("session_id", sessionID),
		attribute.String("child_id", childID),
	)

	entry, err := scanWaitlistEntry(r.pool.QueryRow(ctx, `
		SELECT `+waitlistColumns+` FROM waitlist_entries
		WHERE session_id = $1 AND child_id = $2 AND status IN ('waiting', 'offered')
	`, sessionID, childID))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetStatus(codes.Ok, "")
	return entry, nil
}

// CountWaiting counts waiting entries for a session
func (r *PostgresWaitlistRepository) CountWaiting(ctx context.Context, sessionID string) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM waitlist_entries WHERE session_id = $1 AND status = 'waiting'`,
		sessionID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count waiting entries: %w", err)
	}
	return count, nil
}

func collectWaitlistRows(rows pgx.Rows) ([]*domain.WaitlistEntry, error) {
	defer rows.Close()

	var entries []*domain.WaitlistEntry
	for rows.Next() {
		var e domain.WaitlistEntry
		if err := rows.Scan(
			&e.ID, &e.SessionID, &e.ChildID, &e.UserID, &e.Status, &e.Position,
			&e.OfferedAt, &e.OfferExpiresAt, &e.CreatedAt, &e.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan waitlist entry: %w", err)
		}
		entries = append(entries, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate waitlist entries: %w", err)
	}
	return entries, nil
}
