package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/smroczek2/camp-os-sub002/internal/domain"
	"github.com/smroczek2/camp-os-sub002/internal/dto"
	"github.com/smroczek2/camp-os-sub002/internal/metrics"
	"github.com/smroczek2/camp-os-sub002/internal/repository"
	"github.com/smroczek2/camp-os-sub002/pkg/clock"
	"github.com/smroczek2/camp-os-sub002/pkg/logger"
	"github.com/smroczek2/camp-os-sub002/pkg/telemetry"
)

// WaitlistService defines the interface for waitlist business logic
type WaitlistService interface {
	// JoinWaitlist adds a child to a full session's waitlist. Sessions with
	// free seats reject the join with ErrSeatsAvailable.
	JoinWaitlist(ctx context.Context, actor Actor, req *dto.JoinWaitlistRequest) (*dto.WaitlistEntryResponse, error)

	// AcceptOffer converts an offered entry into a confirmed registration.
	// An offer past its window fails with ErrOfferExpired and the seat is
	// re-offered to the next waiting entry.
	AcceptOffer(ctx context.Context, actor Actor, entryID string) (*dto.AcceptOfferResponse, error)

	// LeaveWaitlist withdraws a waiting entry and repacks later positions
	LeaveWaitlist(ctx context.Context, actor Actor, entryID string) (*dto.WaitlistEntryResponse, error)

	// GetEntry retrieves a waitlist entry by ID
	GetEntry(ctx context.Context, entryID string) (*dto.WaitlistEntryResponse, error)

	// GetPosition reports a child's current place in a session's line
	GetPosition(ctx context.Context, sessionID, childID string) (*dto.WaitlistPositionResponse, error)

	// ExpireOffers sweeps offered entries past their window, expiring each
	// and promoting the next waiting entry in the same transaction. Returns
	// the number of entries expired.
	ExpireOffers(ctx context.Context, limit int) (int, error)
}

// waitlistService implements WaitlistService
type waitlistService struct {
	exec          *txExecutor
	waitlist      repository.WaitlistRepository
	registrations repository.RegistrationRepository
	sessions      repository.SessionRepository
	events        repository.EventStore
	capacity      *CapacityLedger
	promoter      *PromotionCoordinator
	publisher     EventPublisher
	summaries     SummaryInvalidator
	clock         clock.Clock
	log           *logger.Logger
}

// NewWaitlistService creates a new waitlist service
func NewWaitlistService(
	runner repository.TxRunner,
	waitlist repository.WaitlistRepository,
	registrations repository.RegistrationRepository,
	sessions repository.SessionRepository,
	events repository.EventStore,
	capacity *CapacityLedger,
	promoter *PromotionCoordinator,
	publisher EventPublisher,
	summaries SummaryInvalidator,
	clk clock.Clock,
) WaitlistService {
	if publisher == nil {
		publisher = NewNoOpEventPublisher()
	}
	if clk == nil {
		clk = clock.NewSystem()
	}
	return &waitlistService{
		exec:          newTxExecutor(runner),
		waitlist:      waitlist,
		registrations: registrations,
		sessions:      sessions,
		events:        events,
		capacity:      capacity,
		promoter:      promoter,
		publisher:     publisher,
		summaries:     summaries,
		clock:         clk,
		log:           logger.Get(),
	}
}

// JoinWaitlist adds a child to a full session's waitlist
func (s *waitlistService) JoinWaitlist(ctx context.Context, actor Actor, req *dto.JoinWaitlistRequest) (*dto.WaitlistEntryResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.waitlist.join")
	defer span.End()

	if req == nil {
		span.SetStatus(codes.Error, "invalid session_id")
		return nil, domain.ErrInvalidSessionID
	}

	now := s.clock.Now()
	entry := &domain.WaitlistEntry{
		ID:        uuid.New().String(),
		SessionID: req.SessionID,
		ChildID:   req.ChildID,
		UserID:    actor.ID,
		Status:    domain.WaitlistStatusWaiting,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := entry.Validate(); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetAttributes(
		attribute.String("entry_id", entry.ID),
		attribute.String("session_id", entry.SessionID),
		attribute.String("user_id", actor.ID),
	)

	err := s.exec.execute(ctx, "waitlist.join", func(ctx context.Context, tx pgx.Tx) error {
		// The session lock makes the full-session check and the position
		// assignment one atomic step: two concurrent joins cannot observe
		// the same max position
		session, err := s.sessions.GetForUpdateTx(ctx, tx, req.SessionID)
		if err != nil {
			return err
		}
		if !session.IsOpen() {
			return domain.ErrSessionNotOpen
		}

		confirmed, err := s.sessions.CountConfirmedTx(ctx, tx, session.ID)
		if err != nil {
			return err
		}
		if confirmed < session.Capacity {
			return domain.ErrSeatsAvailable
		}

		exists, err := s.waitlist.HasActiveEntryTx(ctx, tx, req.SessionID, req.ChildID)
		if err != nil {
			return err
		}
		if exists {
			return domain.ErrAlreadyWaitlisted
		}

		max, err := s.waitlist.MaxPositionTx(ctx, tx, req.SessionID)
		if err != nil {
			return err
		}
		entry.Position = max + 1

		if err := s.waitlist.CreateTx(ctx, tx, entry); err != nil {
			return err
		}
		return appendEvent(ctx, tx, s.events, domain.WaitlistStream(entry.ID), domain.EventWaitlistJoined,
			domain.WaitlistJoinedData{
				EntryID:   entry.ID,
				SessionID: entry.SessionID,
				ChildID:   entry.ChildID,
				UserID:    entry.UserID,
				Position:  entry.Position,
				JoinedAt:  now,
			}, actor, now)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	metrics.RecordWaitlistJoin(ctx, entry.SessionID)
	s.log.Info("joined waitlist",
		zap.String("entry_id", entry.ID),
		zap.String("session_id", entry.SessionID),
		zap.Int("position", entry.Position),
	)

	span.SetStatus(codes.Ok, "")
	return dto.NewWaitlistEntryResponse(entry), nil
}

// AcceptOffer converts an offered entry into a confirmed registration
func (s *waitlistService) AcceptOffer(ctx context.Context, actor Actor, entryID string) (*dto.AcceptOfferResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.waitlist.accept_offer")
	defer span.End()

	span.SetAttributes(attribute.String("entry_id", entryID))

	var (
		entry       *domain.WaitlistEntry
		reg         *domain.Registration
		promoted    *domain.WaitlistEntry
		lateArrival bool
	)
	err := s.exec.execute(ctx, "waitlist.accept_offer", func(ctx context.Context, tx pgx.Tx) error {
		promoted = nil
		lateArrival = false

		var err error
		entry, err = s.waitlist.GetByIDTx(ctx, tx, entryID)
		if err != nil {
			return err
		}

		now := s.clock.Now()

		// A late acceptance expires the offer in place and hands the seat
		// to the next waiting entry; the expiry commits even though the
		// caller gets ErrOfferExpired
		if entry.OfferIsExpired(now) {
			lateArrival = true
			if err := entry.Expire(now); err != nil {
				return err
			}
			if err := s.waitlist.UpdateTx(ctx, tx, entry); err != nil {
				return err
			}
			if err := appendEvent(ctx, tx, s.events, domain.WaitlistStream(entry.ID), domain.EventWaitlistExpired,
				domain.WaitlistExpiredData{
					EntryID:   entry.ID,
					SessionID: entry.SessionID,
					ExpiredAt: now,
				}, actor, now); err != nil {
				return err
			}
			if err := s.repackPositionsTx(ctx, tx, entry.SessionID, entry.Position, actor, now); err != nil {
				return err
			}
			promoted, err = s.promoter.PromoteNextTx(ctx, tx, entry.SessionID, actor)
			return err
		}

		if err := entry.Convert(now); err != nil {
			return err
		}

		// The seat was earmarked when the offer was extended; the capacity
		// check here guards against a double-offer ever reaching the same
		// freed seat
		session, err := s.sessions.GetForUpdateTx(ctx, tx, entry.SessionID)
		if err != nil {
			return err
		}
		if err := s.capacity.TryReserveSeatTx(ctx, tx, session); err != nil {
			return err
		}

		reg = &domain.Registration{
			ID:        uuid.New().String(),
			SessionID: entry.SessionID,
			ChildID:   entry.ChildID,
			UserID:    entry.UserID,
			Status:    domain.RegistrationStatusConfirmed,
			CreatedAt: now,
			UpdatedAt: now,
		}
		reg.ConfirmedAt = &now

		if err := s.registrations.CreateTx(ctx, tx, reg); err != nil {
			return err
		}
		if err := s.waitlist.UpdateTx(ctx, tx, entry); err != nil {
			return err
		}

		regStream := domain.RegistrationStream(reg.ID)
		if err := appendEvent(ctx, tx, s.events, regStream, domain.EventRegistrationCreated,
			domain.RegistrationCreatedData{
				RegistrationID: reg.ID,
				SessionID:      reg.SessionID,
				ChildID:        reg.ChildID,
				UserID:         reg.UserID,
				CreatedAt:      now,
			}, actor, now); err != nil {
			return err
		}
		if err := appendEvent(ctx, tx, s.events, regStream, domain.EventRegistrationConfirmed,
			domain.RegistrationConfirmedData{
				RegistrationID: reg.ID,
				SessionID:      reg.SessionID,
				ConfirmedAt:    now,
			}, actor, now); err != nil {
			return err
		}
		if err := appendEvent(ctx, tx, s.events, domain.WaitlistStream(entry.ID), domain.EventWaitlistConverted,
			domain.WaitlistConvertedData{
				EntryID:        entry.ID,
				SessionID:      entry.SessionID,
				RegistrationID: reg.ID,
				ConvertedAt:    now,
			}, actor, now); err != nil {
			return err
		}
		return s.repackPositionsTx(ctx, tx, entry.SessionID, entry.Position, actor, now)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	if lateArrival {
		metrics.RecordExpiration(ctx, 1)
		s.invalidateSummary(ctx, entry.SessionID)
		s.notifyExpired(ctx, entry)
		s.notifyPromotion(ctx, promoted)
		span.SetStatus(codes.Error, "offer expired")
		return nil, domain.ErrOfferExpired
	}

	var responseSeconds float64
	if entry.OfferedAt != nil {
		responseSeconds = entry.UpdatedAt.Sub(*entry.OfferedAt).Seconds()
	}
	metrics.RecordConversion(ctx, entry.SessionID, responseSeconds)
	s.invalidateSummary(ctx, entry.SessionID)
	if err := s.publisher.PublishRegistrationConfirmed(ctx, reg); err != nil {
		s.log.Warn("failed to publish confirmation", zap.String("registration_id", reg.ID), zap.Error(err))
	}

	s.log.Info("waitlist offer accepted",
		zap.String("entry_id", entry.ID),
		zap.String("registration_id", reg.ID),
		zap.String("session_id", entry.SessionID),
	)

	span.SetStatus(codes.Ok, "")
	return &dto.AcceptOfferResponse{
		Entry:        dto.NewWaitlistEntryResponse(entry),
		Registration: dto.NewRegistrationResponse(reg),
	}, nil
}

// LeaveWaitlist withdraws a waiting entry and repacks later positions
func (s *waitlistService) LeaveWaitlist(ctx context.Context, actor Actor, entryID string) (*dto.WaitlistEntryResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.waitlist.leave")
	defer span.End()

	span.SetAttributes(attribute.String("entry_id", entryID))

	var entry *domain.WaitlistEntry
	err := s.exec.execute(ctx, "waitlist.leave", func(ctx context.Context, tx pgx.Tx) error {
		var err error
		entry, err = s.waitlist.GetByIDTx(ctx, tx, entryID)
		if err != nil {
			return err
		}

		now := s.clock.Now()
		leftPosition := entry.Position
		if err := entry.Withdraw(now); err != nil {
			return err
		}
		if err := s.waitlist.UpdateTx(ctx, tx, entry); err != nil {
			return err
		}
		if err := appendEvent(ctx, tx, s.events, domain.WaitlistStream(entry.ID), domain.EventWaitlistLeft,
			domain.WaitlistLeftData{
				EntryID:   entry.ID,
				SessionID: entry.SessionID,
				Position:  leftPosition,
				LeftAt:    now,
			}, actor, now); err != nil {
			return err
		}

		// No promotion fires: a waiting entry held no seat
		return s.repackPositionsTx(ctx, tx, entry.SessionID, leftPosition, actor, now)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	metrics.RecordWaitlistLeave(ctx, entry.SessionID)
	s.log.Info("left waitlist",
		zap.String("entry_id", entry.ID),
		zap.String("session_id", entry.SessionID),
	)

	span.SetStatus(codes.Ok, "")
	return dto.NewWaitlistEntryResponse(entry), nil
}

// GetEntry retrieves a waitlist entry by ID
func (s *waitlistService) GetEntry(ctx context.Context, entryID string) (*dto.WaitlistEntryResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.waitlist.get_entry")
	defer span.End()

	entry, err := s.waitlist.GetByID(ctx, entryID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetStatus(codes.Ok, "")
	return dto.NewWaitlistEntryResponse(entry), nil
}

// GetPosition reports a child's current place in a session's line
func (s *waitlistService) GetPosition(ctx context.Context, sessionID, childID string) (*dto.WaitlistPositionResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.waitlist.get_position")
	defer span.End()

	span.SetAttributes(
		attribute.String("session_id", sessionID),
		attribute.String("child_id", childID),
	)

	entry, err := s.waitlist.GetActiveBySessionChild(ctx, sessionID, childID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	// An offer past its window reads as expired even before the sweep
	// persists it
	status := entry.Status
	if entry.OfferIsExpired(s.clock.Now()) {
		status = domain.WaitlistStatusExpired
	}

	span.SetStatus(codes.Ok, "")
	return &dto.WaitlistPositionResponse{
		SessionID: sessionID,
		ChildID:   childID,
		Position:  entry.Position,
		Status:    status.String(),
	}, nil
}

// ExpireOffers sweeps offered entries past their window
func (s *waitlistService) ExpireOffers(ctx context.Context, limit int) (int, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.waitlist.expire_offers")
	defer span.End()

	if limit <= 0 {
		limit = 100
	}

	candidates, err := s.waitlist.ListExpiredOffers(ctx, s.clock.Now(), limit)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return 0, err
	}

	actor := Actor{ID: "system:offer-expiry"}
	expired := 0
	for _, candidate := range candidates {
		var (
			entry    *domain.WaitlistEntry
			promoted *domain.WaitlistEntry
			skipped  bool
		)
		err := s.exec.execute(ctx, "waitlist.expire", func(ctx context.Context, tx pgx.Tx) error {
			promoted = nil
			skipped = false

			var err error
			entry, err = s.waitlist.GetByIDTx(ctx, tx, candidate.ID)
			if err != nil {
				return err
			}

			now := s.clock.Now()
			// Accepted or already swept since listing: expiring again is a
			// no-op, and no second promotion fires
			if !entry.OfferIsExpired(now) {
				skipped = true
				return nil
			}

			if err := entry.Expire(now); err != nil {
				return err
			}
			if err := s.waitlist.UpdateTx(ctx, tx, entry); err != nil {
				return err
			}
			if err := appendEvent(ctx, tx, s.events, domain.WaitlistStream(entry.ID), domain.EventWaitlistExpired,
				domain.WaitlistExpiredData{
					EntryID:   entry.ID,
					SessionID: entry.SessionID,
					ExpiredAt: now,
				}, actor, now); err != nil {
				return err
			}
			if err := s.repackPositionsTx(ctx, tx, entry.SessionID, entry.Position, actor, now); err != nil {
				return err
			}
			promoted, err = s.promoter.PromoteNextTx(ctx, tx, entry.SessionID, actor)
			return err
		})
		if err != nil {
			s.log.Error("failed to expire offer",
				zap.String("entry_id", candidate.ID),
				zap.Error(err),
			)
			continue
		}
		if skipped {
			continue
		}

		expired++
		s.invalidateSummary(ctx, entry.SessionID)
		s.notifyExpired(ctx, entry)
		s.notifyPromotion(ctx, promoted)
	}

	if expired > 0 {
		metrics.RecordExpiration(ctx, int64(expired))
	}
	span.SetAttributes(attribute.Int("expired_count", expired))
	span.SetStatus(codes.Ok, "")
	return expired, nil
}

// repackPositionsTx shifts active entries behind a vacated position down one
// place so non-terminal positions stay contiguous from 1. Every terminal
// transition vacates a position: leave, expire, and convert all repack.
func (s *waitlistService) repackPositionsTx(ctx context.Context, tx pgx.Tx, sessionID string, vacated int, actor Actor, now time.Time) error {
	behind, err := s.waitlist.ListActiveAfterPositionTx(ctx, tx, sessionID, vacated)
	if err != nil {
		return err
	}
	for _, e := range behind {
		oldPos := e.Position
		e.Position = oldPos - 1
		e.UpdatedAt = now
		if err := s.waitlist.UpdateTx(ctx, tx, e); err != nil {
			return err
		}
		if err := appendEvent(ctx, tx, s.events, domain.WaitlistStream(e.ID), domain.EventWaitlistReordered,
			domain.WaitlistReorderedData{
				EntryID:     e.ID,
				SessionID:   e.SessionID,
				OldPosition: oldPos,
				NewPosition: e.Position,
				ReorderedAt: now,
			}, actor, now); err != nil {
			return err
		}
	}
	return nil
}

func (s *waitlistService) invalidateSummary(ctx context.Context, sessionID string) {
	if s.summaries != nil {
		s.summaries.Invalidate(ctx, sessionID)
	}
}

func (s *waitlistService) notifyPromotion(ctx context.Context, promoted *domain.WaitlistEntry) {
	if promoted == nil {
		return
	}
	metrics.RecordOffer(ctx, promoted.SessionID)
	if err := s.publisher.PublishWaitlistOffered(ctx, promoted); err != nil {
		s.log.Warn("failed to publish offer", zap.String("entry_id", promoted.ID), zap.Error(err))
	}
}

func (s *waitlistService) notifyExpired(ctx context.Context, entry *domain.WaitlistEntry) {
	if err := s.publisher.PublishWaitlistExpired(ctx, entry); err != nil {
		s.log.Warn("failed to publish expiration", zap.String("entry_id", entry.ID), zap.Error(err))
	}
}
