package service

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/smroczek2/camp-os-sub002/internal/domain"
	"github.com/smroczek2/camp-os-sub002/internal/repository"
	"github.com/smroczek2/camp-os-sub002/pkg/clock"
	"github.com/smroczek2/camp-os-sub002/pkg/logger"
)

// DefaultOfferWindow is how long a promoted entry may accept its offer
const DefaultOfferWindow = 48 * time.Hour

// PromotionCoordinator reacts to freed seats. It runs inside the same
// transaction as the seat-freeing mutation, so freeing and promotion commit
// or roll back together. One freed seat promotes at most one entry.
type PromotionCoordinator struct {
	waitlist repository.WaitlistRepository
	events   repository.EventStore
	window   time.Duration
	clock    clock.Clock
	log      *logger.Logger
}

// NewPromotionCoordinator creates a new PromotionCoordinator
func NewPromotionCoordinator(waitlist repository.WaitlistRepository, events repository.EventStore,
	offerWindow time.Duration, clk clock.Clock) *PromotionCoordinator {
	if offerWindow <= 0 {
		offerWindow = DefaultOfferWindow
	}
	if clk == nil {
		clk = clock.NewSystem()
	}
	return &PromotionCoordinator{
		waitlist: waitlist,
		events:   events,
		window:   offerWindow,
		clock:    clk,
		log:      logger.Get(),
	}
}

// PromoteNextTx extends an offer to the lowest-position waiting entry of the
// session. An empty waitlist is a valid outcome, not an error: the returned
// entry is nil when nobody was promoted.
func (c *PromotionCoordinator) PromoteNextTx(ctx context.Context, tx pgx.Tx, sessionID string, actor Actor) (*domain.WaitlistEntry, error) {
	entry, err := c.waitlist.NextWaitingTx(ctx, tx, sessionID)
	if err != nil {
		if errors.Is(err, domain.ErrWaitlistEntryNotFound) {
			return nil, nil
		}
		return nil, err
	}

	now := c.clock.Now()
	if err := entry.Offer(now, c.window); err != nil {
		return nil, err
	}
	if err := c.waitlist.UpdateTx(ctx, tx, entry); err != nil {
		return nil, err
	}

	err = appendEvent(ctx, tx, c.events, domain.WaitlistStream(entry.ID), domain.EventWaitlistOffered,
		domain.WaitlistOfferedData{
			EntryID:        entry.ID,
			SessionID:      entry.SessionID,
			OfferedAt:      now,
			OfferExpiresAt: *entry.OfferExpiresAt,
		}, actor, now)
	if err != nil {
		return nil, err
	}

	c.log.Info("waitlist entry promoted",
		zap.String("entry_id", entry.ID),
		zap.String("session_id", sessionID),
		zap.Int("position", entry.Position),
		zap.Time("offer_expires_at", *entry.OfferExpiresAt),
	)
	return entry, nil
}
