package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/smroczek2/camp-os-sub002/internal/domain"
	"github.com/smroczek2/camp-os-sub002/internal/metrics"
	"github.com/smroczek2/camp-os-sub002/internal/repository"
	"github.com/smroczek2/camp-os-sub002/pkg/logger"
	"github.com/smroczek2/camp-os-sub002/pkg/retry"
)

// Actor identifies who performed a mutation, for audit attribution.
// Ownership and permissions are verified upstream.
type Actor struct {
	ID       string
	TenantID string
}

// txExecutor runs enrollment units of work: entity mutation plus audit
// append, committed as one transaction. Version conflicts from concurrent
// writers are retried with backoff before surfacing.
type txExecutor struct {
	runner  repository.TxRunner
	retrier *retry.Retrier
	log     *logger.Logger
}

func newTxExecutor(runner repository.TxRunner) *txExecutor {
	return &txExecutor{
		runner:  runner,
		retrier: retry.New(retry.DefaultConfig()),
		log:     logger.Get(),
	}
}

// execute runs fn transactionally, retrying only on version conflicts
func (e *txExecutor) execute(ctx context.Context, operation string, fn func(ctx context.Context, tx pgx.Tx) error) error {
	result := e.retrier.Do(ctx, func(ctx context.Context) error {
		err := e.runner.RunInTx(ctx, fn)
		if err == nil {
			return nil
		}
		if errors.Is(err, domain.ErrVersionConflict) {
			metrics.RecordVersionConflict(ctx, operation)
			return err
		}
		return retry.Permanent(err)
	})

	if result.Err == nil {
		if result.Attempts > 1 {
			e.log.Debug("operation succeeded after retry",
				zap.String("operation", operation),
				zap.Int("attempts", result.Attempts),
			)
		}
		return nil
	}

	if errors.Is(result.Err, retry.ErrMaxRetriesExceeded) {
		e.log.Warn("retries exhausted on version conflict",
			zap.String("operation", operation),
			zap.Int("attempts", result.Attempts),
			zap.Error(result.LastError),
		)
		return fmt.Errorf("%w: retries exhausted", domain.ErrVersionConflict)
	}
	return result.Err
}

// appendEvent appends one audit event at the stream's next version. The
// expected-version check plus the (stream_id, version) key turn a lost race
// into domain.ErrVersionConflict instead of a silent overwrite.
func appendEvent(ctx context.Context, tx pgx.Tx, store repository.EventStore,
	streamID, eventType string, payload interface{}, actor Actor, now time.Time) error {

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s payload: %w", eventType, err)
	}

	current, err := store.CurrentVersionTx(ctx, tx, streamID)
	if err != nil {
		return err
	}

	event := &domain.Event{
		ID:        uuid.New().String(),
		StreamID:  streamID,
		Type:      eventType,
		Data:      data,
		ActorID:   actor.ID,
		TenantID:  actor.TenantID,
		CreatedAt: now,
	}
	return store.AppendTx(ctx, tx, event, current)
}
