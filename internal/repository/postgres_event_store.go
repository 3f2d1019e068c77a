package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/smroczek2/camp-os-sub002/internal/domain"
	"github.com/smroczek2/camp-os-sub002/pkg/telemetry"
)

// PostgresEventStore implements EventStore on the enrollment_events table.
// The (stream_id, version) primary key enforces per-stream ordering even if
// two transactions pass the version check concurrently.
type PostgresEventStore struct {
	pool *pgxpool.Pool
}

// NewPostgresEventStore creates a new PostgresEventStore
func NewPostgresEventStore(pool *pgxpool.Pool) *PostgresEventStore {
	return &PostgresEventStore{pool: pool}
}

// CurrentVersionTx returns the stream's latest version, 0 for a new stream
func (s *PostgresEventStore) CurrentVersionTx(ctx context.Context, tx pgx.Tx, streamID string) (int64, error) {
	var version int64
	err := tx.QueryRow(ctx,
		`SELECT COALESCE(MAX(version), 0) FROM enrollment_events WHERE stream_id = $1`,
		streamID,
	).Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("failed to read stream version: %w", err)
	}
	return version, nil
}

// AppendTx appends one event at expectedVersion+1
func (s *PostgresEventStore) AppendTx(ctx context.Context, tx pgx.Tx, event *domain.Event, expectedVersion int64) error {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.events.append")
	defer span.End()

	span.SetAttributes(
		attribute.String("stream_id", event.StreamID),
		attribute.String("event_type", event.Type),
		attribute.Int64("expected_version", expectedVersion),
	)

	current, err := s.CurrentVersionTx(ctx, tx, event.StreamID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	if current != expectedVersion {
		err := fmt.Errorf("%w: stream %s at version %d, expected %d",
			domain.ErrVersionConflict, event.StreamID, current, expectedVersion)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	event.Version = expectedVersion + 1

	_, err = tx.Exec(ctx, `
		INSERT INTO enrollment_events (id, stream_id, type, data, version, actor_id, tenant_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`,
		event.ID,
		event.StreamID,
		event.Type,
		event.Data,
		event.Version,
		nullString(event.ActorID),
		nullString(event.TenantID),
		event.CreatedAt,
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to append event: %w", err)
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

// ReadStream returns every event of a stream, oldest first
func (s *PostgresEventStore) ReadStream(ctx context.Context, streamID string) ([]domain.Event, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.events.read_stream")
	defer span.End()

	span.SetAttributes(attribute.String("stream_id", streamID))

	rows, err := s.pool.Query(ctx, `
		SELECT id, stream_id, type, data, version, COALESCE(actor_id, ''), COALESCE(tenant_id, ''), created_at
		FROM enrollment_events
		WHERE stream_id = $1
		ORDER BY version ASC
	`, streamID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to read stream: %w", err)
	}
	defer rows.Close()

	var events []domain.Event
	for rows.Next() {
		var ev domain.Event
		if err := rows.Scan(&ev.ID, &ev.StreamID, &ev.Type, &ev.Data, &ev.Version,
			&ev.ActorID, &ev.TenantID, &ev.CreatedAt); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to iterate events: %w", err)
	}

	span.SetAttributes(attribute.Int("event_count", len(events)))
	span.SetStatus(codes.Ok, "")
	return events, nil
}

// nullString converts string to *string, returning nil for empty strings
func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
