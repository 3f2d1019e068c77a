package service

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/smroczek2/camp-os-sub002/internal/domain"
	"github.com/smroczek2/camp-os-sub002/internal/repository"
	"github.com/smroczek2/camp-os-sub002/pkg/logger"
)

// CapacityLedger answers "is there a free seat" for a session. There is no
// counter table: the confirmed count is re-derived from registration rows
// inside the same transaction, so it can never drift from the source of
// truth. Callers lock the session row first, which serializes concurrent
// seat claims on the same session.
type CapacityLedger struct {
	sessions repository.SessionRepository
	log      *logger.Logger
}

// NewCapacityLedger creates a new CapacityLedger
func NewCapacityLedger(sessions repository.SessionRepository) *CapacityLedger {
	return &CapacityLedger{
		sessions: sessions,
		log:      logger.Get(),
	}
}

// ConfirmedCount returns the session's confirmed registration count
func (l *CapacityLedger) ConfirmedCount(ctx context.Context, sessionID string) (int, error) {
	return l.sessions.CountConfirmed(ctx, sessionID)
}

// TryReserveSeatTx claims a seat for the rest of the transaction. The caller
// must already hold the session row lock via GetForUpdateTx. Fails with
// domain.ErrSessionFull when every seat is taken.
func (l *CapacityLedger) TryReserveSeatTx(ctx context.Context, tx pgx.Tx, session *domain.Session) error {
	confirmed, err := l.sessions.CountConfirmedTx(ctx, tx, session.ID)
	if err != nil {
		return err
	}
	if confirmed >= session.Capacity {
		return fmt.Errorf("%w: %d of %d seats taken", domain.ErrSessionFull, confirmed, session.Capacity)
	}
	return nil
}

// ReleaseSeat marks that a previously confirmed seat was freed. The actual
// effect is the registration leaving confirmed status; this exists for
// symmetry and leaves an operational trace.
func (l *CapacityLedger) ReleaseSeat(ctx context.Context, sessionID string) {
	l.log.Debug("seat released", zap.String("session_id", sessionID))
}
