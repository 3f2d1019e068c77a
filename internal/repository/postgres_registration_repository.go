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

// PostgresRegistrationRepository implements RegistrationRepository using PostgreSQL
type PostgresRegistrationRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRegistrationRepository creates a new PostgresRegistrationRepository
func NewPostgresRegistrationRepository(pool *pgxpool.Pool) *PostgresRegistrationRepository {
	return &PostgresRegistrationRepository{pool: pool}
}

const registrationColumns = `id, session_id, child_id, user_id, status, amount_paid,
	confirmed_at, canceled_at, refunded_at, created_at, updated_at`

func scanRegistration(row pgx.Row) (*domain.Registration, error) {
	var reg domain.Registration
	err := row.Scan(
		&reg.ID, &reg.SessionID, &reg.ChildID, &reg.UserID, &reg.Status, &reg.AmountPaid,
		&reg.ConfirmedAt, &reg.CanceledAt, &reg.RefundedAt, &reg.CreatedAt, &reg.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrRegistrationNotFound
		}
		return nil, fmt.Errorf("failed to scan registration: %w", err)
	}
	return &reg, nil
}

// CreateTx inserts a registration within a transaction
func (r *PostgresRegistrationRepository) CreateTx(ctx context.Context, tx pgx.Tx, reg *domain.Registration) error {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.registration.create")
	defer span.End()

	span.SetAttributes(
		attribute.String("registration_id", reg.ID),
		attribute.String("session_id", reg.SessionID),
	)

	_, err := tx.Exec(ctx, `
		INSERT INTO registrations (
			id, session_id, child_id, user_id, status, amount_paid,
			confirmed_at, canceled_at, refunded_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`,
		reg.ID,
		reg.SessionID,
		reg.ChildID,
		reg.UserID,
		reg.Status.String(),
		reg.AmountPaid,
		reg.ConfirmedAt,
		reg.CanceledAt,
		reg.RefundedAt,
		reg.CreatedAt,
		reg.UpdatedAt,
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to create registration: %w", err)
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

// UpdateTx persists a registration's mutable fields within a transaction
func (r *PostgresRegistrationRepository) UpdateTx(ctx context.Context, tx pgx.Tx, reg *domain.Registration) error {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.registration.update")
	defer span.End()

	span.SetAttributes(
		attribute.String("registration_id", reg.ID),
		attribute.String("status", reg.Status.String()),
	)

	result, err := tx.Exec(ctx, `
		UPDATE registrations SET
			status = $2,
			amount_paid = $3,
			confirmed_at = $4,
			canceled_at = $5,
			refunded_at = $6,
			updated_at = $7
		WHERE id = $1
	`,
		reg.ID,
		reg.Status.String(),
		reg.AmountPaid,
		reg.ConfirmedAt,
		reg.CanceledAt,
		reg.RefundedAt,
		reg.UpdatedAt,
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to update registration: %w", err)
	}
	if result.RowsAffected() == 0 {
		span.SetStatus(codes.Error, "registration not found")
		return domain.ErrRegistrationNotFound
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

// GetByID retrieves a registration by its ID
func (r *PostgresRegistrationRepository) GetByID(ctx context.Context, id string) (*domain.Registration, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.registration.get_by_id")
	defer span.End()

	span.SetAttributes(attribute.String("registration_id", id))

	reg, err := scanRegistration(r.pool.QueryRow(ctx,
		`SELECT `+registrationColumns+` FROM registrations WHERE id = $1`, id))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetStatus(codes.Ok, "")
	return reg, nil
}

// GetByIDTx retrieves a registration with a row lock
func (r *PostgresRegistrationRepository) GetByIDTx(ctx context.Context, tx pgx.Tx, id string) (*domain.Registration, error) {
	return scanRegistration(tx.QueryRow(ctx,
		`SELECT `+registrationColumns+` FROM registrations WHERE id = $1 FOR UPDATE`, id))
}

// ListBySession retrieves registrations for a session
func (r *PostgresRegistrationRepository) ListBySession(ctx context.Context, sessionID string, limit, offset int) ([]*domain.Registration, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.registration.list_by_session")
	defer span.End()

	span.SetAttributes(attribute.String("session_id", sessionID))

	return r.list(ctx, `SELECT `+registrationColumns+`
		FROM registrations WHERE session_id = $1
		ORDER BY created_at DESC LIMIT $2 OFFSET $3`, sessionID, limit, offset)
}

// ListByUser retrieves registrations created by a user
func (r *PostgresRegistrationRepository) ListByUser(ctx context.Context, userID string, limit, offset int) ([]*domain.Registration, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.registration.list_by_user")
	defer span.End()

	span.SetAttributes(attribute.String("user_id", userID))

	return r.list(ctx, `SELECT `+registrationColumns+`
		FROM registrations WHERE user_id = $1
		ORDER BY created_at DESC LIMIT $2 OFFSET $3`, userID, limit, offset)
}

func (r *PostgresRegistrationRepository) list(ctx context.Context, query string, args ...interface{}) ([]*domain.Registration, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list registrations: %w", err)
	}
	defer rows.Close()

	var regs []*domain.Registration
	for rows.Next() {
		var reg domain.Registration
		if err := rows.Scan(
			&reg.ID, &reg.SessionID, &reg.ChildID, &reg.UserID, &reg.Status, &reg.AmountPaid,
			&reg.ConfirmedAt, &reg.CanceledAt, &reg.RefundedAt, &reg.CreatedAt, &reg.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan registration: %w", err)
		}
		regs = append(regs, &reg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate registrations: %w", err)
	}
	return regs, nil
}
