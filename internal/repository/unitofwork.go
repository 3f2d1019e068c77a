package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/smroczek2/camp-os-sub002/internal/domain"
)

// Postgres error codes that surface as retryable conflicts
const (
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
	pgUniqueViolation      = "23505"
)

// PgxTxRunner implements TxRunner on a pgx connection pool
type PgxTxRunner struct {
	pool *pgxpool.Pool
}

// NewPgxTxRunner creates a new PgxTxRunner
func NewPgxTxRunner(pool *pgxpool.Pool) *PgxTxRunner {
	return &PgxTxRunner{pool: pool}
}

// RunInTx runs fn inside a transaction and commits on nil error
func (r *PgxTxRunner) RunInTx(ctx context.Context, fn func(ctx context.Context, tx pgx.Tx) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(ctx, tx); err != nil {
		return mapPgError(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return mapPgError(fmt.Errorf("failed to commit transaction: %w", err))
	}
	return nil
}

// mapPgError translates low-level postgres conflicts into domain errors.
// A unique violation on the event log's (stream_id, version) key means two
// writers raced on the same stream, which is the same situation as a failed
// version check.
func mapPgError(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case pgSerializationFailure, pgDeadlockDetected:
		return fmt.Errorf("%w: %s", domain.ErrVersionConflict, pgErr.Message)
	case pgUniqueViolation:
		switch pgErr.ConstraintName {
		case "enrollment_events_pkey", "uq_waitlist_active_position":
			return fmt.Errorf("%w: %s", domain.ErrVersionConflict, pgErr.ConstraintName)
		case "uq_waitlist_active_child":
			return domain.ErrAlreadyWaitlisted
		}
	}
	return err
}
