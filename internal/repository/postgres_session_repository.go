package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/smroczek2/camp-os-sub002/internal/domain"
	"github.com/smroczek2/camp-os-sub002/pkg/telemetry"
)

// PostgresSessionRepository implements SessionRepository using PostgreSQL
type PostgresSessionRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresSessionRepository creates a new PostgresSessionRepository
func NewPostgresSessionRepository(pool *pgxpool.Pool) *PostgresSessionRepository {
	return &PostgresSessionRepository{pool: pool}
}

const sessionColumns = `id, name, capacity, status, start_date, end_date, created_at`

func scanSession(row pgx.Row) (*domain.Session, error) {
	var s domain.Session
	err := row.Scan(&s.ID, &s.Name, &s.Capacity, &s.Status, &s.StartDate, &s.EndDate, &s.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to scan session: %w", err)
	}
	return &s, nil
}

// GetByID retrieves a session by its ID
func (r *PostgresSessionRepository) GetByID(ctx context.Context, id string) (*domain.Session, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.session.get_by_id")
	defer span.End()

	span.SetAttributes(attribute.String("session_id", id))

	session, err := scanSession(r.pool.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE id = $1`, id))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetStatus(codes.Ok, "")
	return session, nil
}

// GetForUpdateTx locks the session row for the rest of the transaction
func (r *PostgresSessionRepository) GetForUpdateTx(ctx context.Context, tx pgx.Tx, id string) (*domain.Session, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.session.get_for_update")
	defer span.End()

	span.SetAttributes(attribute.String("session_id", id))

	session, err := scanSession(tx.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetStatus(codes.Ok, "")
	return session, nil
}

// CountConfirmedTx counts confirmed registrations for a session in-tx
func (r *PostgresSessionRepository) CountConfirmedTx(ctx context.Context, tx pgx.Tx, sessionID string) (int, error) {
	var count int
	err := tx.QueryRow(ctx,
		`SELECT COUNT(*) FROM registrations WHERE session_id = $1 AND status = 'confirmed'`,
		sessionID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count confirmed registrations: %w", err)
	}
	return count, nil
}

// CountConfirmed counts confirmed registrations outside a transaction
func (r *PostgresSessionRepository) CountConfirmed(ctx context.Context, sessionID string) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM registrations WHERE session_id = $1 AND status = 'confirmed'`,
		sessionID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count confirmed registrations: %w", err)
	}
	return count, nil
}

// Create creates a session record
func (r *PostgresSessionRepository) Create(ctx context.Context, session *domain.Session) error {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.session.create")
	defer span.End()

	span.SetAttributes(attribute.String("session_id", session.ID))

	_, err := r.pool.Exec(ctx, `
		INSERT INTO sessions (id, name, capacity, status, start_date, end_date, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`,
		session.ID,
		session.Name,
		session.Capacity,
		session.Status,
		session.StartDate,
		session.EndDate,
		session.CreatedAt,
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to create session: %w", err)
	}

	span.SetStatus(codes.Ok, "")
	return nil
}
