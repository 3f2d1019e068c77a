package service

import (
	"context"

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

// RegistrationService defines the interface for registration lifecycle logic
type RegistrationService interface {
	// CreateRegistration creates a pending registration. Pending does not
	// consume a seat, so creation succeeds regardless of capacity.
	CreateRegistration(ctx context.Context, actor Actor, req *dto.CreateRegistrationRequest) (*dto.RegistrationResponse, error)

	// ConfirmPayment confirms a pending registration after payment settled.
	// The seat is claimed here; a full session fails with ErrSessionFull.
	ConfirmPayment(ctx context.Context, actor Actor, registrationID string, req *dto.ConfirmPaymentRequest) (*dto.RegistrationResponse, error)

	// CancelRegistration cancels a pending or confirmed registration
	CancelRegistration(ctx context.Context, actor Actor, registrationID string) (*dto.RegistrationResponse, error)

	// RefundRegistration refunds a confirmed registration
	RefundRegistration(ctx context.Context, actor Actor, registrationID string) (*dto.RegistrationResponse, error)

	// GetRegistration retrieves a registration by ID
	GetRegistration(ctx context.Context, registrationID string) (*dto.RegistrationResponse, error)

	// GetRegistrationEvents returns the registration's audit stream, oldest first
	GetRegistrationEvents(ctx context.Context, registrationID string) ([]*dto.EventResponse, error)

	// ListUserRegistrations retrieves registrations created by a user
	ListUserRegistrations(ctx context.Context, userID string, page, pageSize int) (*dto.PaginatedResponse, error)
}

// registrationService implements RegistrationService
type registrationService struct {
	exec          *txExecutor
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

// NewRegistrationService creates a new registration service
func NewRegistrationService(
	runner repository.TxRunner,
	registrations repository.RegistrationRepository,
	sessions repository.SessionRepository,
	events repository.EventStore,
	capacity *CapacityLedger,
	promoter *PromotionCoordinator,
	publisher EventPublisher,
	summaries SummaryInvalidator,
	clk clock.Clock,
) RegistrationService {
	if publisher == nil {
		publisher = NewNoOpEventPublisher()
	}
	if clk == nil {
		clk = clock.NewSystem()
	}
	return &registrationService{
		exec:          newTxExecutor(runner),
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

// CreateRegistration creates a pending registration
func (s *registrationService) CreateRegistration(ctx context.Context, actor Actor, req *dto.CreateRegistrationRequest) (*dto.RegistrationResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.registration.create")
	defer span.End()

	if req == nil {
		span.SetStatus(codes.Error, "invalid session_id")
		return nil, domain.ErrInvalidSessionID
	}

	now := s.clock.Now()
	reg := &domain.Registration{
		ID:        uuid.New().String(),
		SessionID: req.SessionID,
		ChildID:   req.ChildID,
		UserID:    actor.ID,
		Status:    domain.RegistrationStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := reg.Validate(); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetAttributes(
		attribute.String("registration_id", reg.ID),
		attribute.String("session_id", reg.SessionID),
		attribute.String("user_id", actor.ID),
	)

	session, err := s.sessions.GetByID(ctx, req.SessionID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if !session.IsOpen() {
		span.SetStatus(codes.Error, "session not open")
		return nil, domain.ErrSessionNotOpen
	}

	err = s.exec.execute(ctx, "registration.create", func(ctx context.Context, tx pgx.Tx) error {
		if err := s.registrations.CreateTx(ctx, tx, reg); err != nil {
			return err
		}
		return appendEvent(ctx, tx, s.events, domain.RegistrationStream(reg.ID), domain.EventRegistrationCreated,
			domain.RegistrationCreatedData{
				RegistrationID: reg.ID,
				SessionID:      reg.SessionID,
				ChildID:        reg.ChildID,
				UserID:         reg.UserID,
				CreatedAt:      now,
			}, actor, now)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	metrics.RecordRegistrationCreated(ctx, reg.SessionID)
	s.log.Info("registration created",
		zap.String("registration_id", reg.ID),
		zap.String("session_id", reg.SessionID),
	)

	span.SetStatus(codes.Ok, "")
	return dto.NewRegistrationResponse(reg), nil
}

// ConfirmPayment confirms a pending registration and claims a seat
func (s *registrationService) ConfirmPayment(ctx context.Context, actor Actor, registrationID string, req *dto.ConfirmPaymentRequest) (*dto.RegistrationResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.registration.confirm_payment")
	defer span.End()

	span.SetAttributes(attribute.String("registration_id", registrationID))

	if req == nil || req.Amount < 0 {
		span.SetStatus(codes.Error, "invalid amount")
		return nil, domain.ErrInvalidAmount
	}

	var reg *domain.Registration
	err := s.exec.execute(ctx, "registration.confirm_payment", func(ctx context.Context, tx pgx.Tx) error {
		var err error
		reg, err = s.registrations.GetByIDTx(ctx, tx, registrationID)
		if err != nil {
			return err
		}

		// Session lock serializes concurrent seat claims
		session, err := s.sessions.GetForUpdateTx(ctx, tx, reg.SessionID)
		if err != nil {
			return err
		}
		if err := s.capacity.TryReserveSeatTx(ctx, tx, session); err != nil {
			return err
		}

		now := s.clock.Now()
		if err := reg.Confirm(req.Amount, now); err != nil {
			return err
		}
		if err := s.registrations.UpdateTx(ctx, tx, reg); err != nil {
			return err
		}

		stream := domain.RegistrationStream(reg.ID)
		if err := appendEvent(ctx, tx, s.events, stream, domain.EventRegistrationConfirmed,
			domain.RegistrationConfirmedData{
				RegistrationID: reg.ID,
				SessionID:      reg.SessionID,
				ConfirmedAt:    now,
			}, actor, now); err != nil {
			return err
		}
		return appendEvent(ctx, tx, s.events, stream, domain.EventPaymentCompleted,
			domain.PaymentCompletedData{
				RegistrationID: reg.ID,
				Amount:         req.Amount,
				CompletedAt:    now,
			}, actor, now)
	})
	if err != nil {
		if reg != nil && domain.IsConflictError(err) {
			metrics.RecordRejection(ctx, reg.SessionID)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	metrics.RecordConfirmation(ctx, reg.SessionID)
	s.invalidateSummary(ctx, reg.SessionID)
	if err := s.publisher.PublishRegistrationConfirmed(ctx, reg); err != nil {
		// Notification failure never rolls back the confirmation
		s.log.Warn("failed to publish confirmation", zap.String("registration_id", reg.ID), zap.Error(err))
	}

	s.log.Info("registration confirmed",
		zap.String("registration_id", reg.ID),
		zap.String("session_id", reg.SessionID),
		zap.Float64("amount", req.Amount),
	)

	span.SetStatus(codes.Ok, "")
	return dto.NewRegistrationResponse(reg), nil
}

// CancelRegistration cancels a pending or confirmed registration
func (s *registrationService) CancelRegistration(ctx context.Context, actor Actor, registrationID string) (*dto.RegistrationResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.registration.cancel")
	defer span.End()

	span.SetAttributes(attribute.String("registration_id", registrationID))

	var (
		reg      *domain.Registration
		promoted *domain.WaitlistEntry
	)
	err := s.exec.execute(ctx, "registration.cancel", func(ctx context.Context, tx pgx.Tx) error {
		promoted = nil

		var err error
		reg, err = s.registrations.GetByIDTx(ctx, tx, registrationID)
		if err != nil {
			return err
		}
		wasConfirmed := reg.IsConfirmed()

		now := s.clock.Now()
		if err := reg.Cancel(now); err != nil {
			return err
		}
		if err := s.registrations.UpdateTx(ctx, tx, reg); err != nil {
			return err
		}
		if err := appendEvent(ctx, tx, s.events, domain.RegistrationStream(reg.ID), domain.EventRegistrationCanceled,
			domain.RegistrationCanceledData{
				RegistrationID: reg.ID,
				SessionID:      reg.SessionID,
				WasConfirmed:   wasConfirmed,
				CanceledAt:     now,
			}, actor, now); err != nil {
			return err
		}

		// A confirmed cancellation frees a seat; the promotion has to land
		// in the same commit so no reader ever sees the seat free with the
		// waitlist untouched
		if wasConfirmed {
			if _, err := s.sessions.GetForUpdateTx(ctx, tx, reg.SessionID); err != nil {
				return err
			}
			s.capacity.ReleaseSeat(ctx, reg.SessionID)
			promoted, err = s.promoter.PromoteNextTx(ctx, tx, reg.SessionID, actor)
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	metrics.RecordCancellation(ctx, reg.SessionID)
	s.invalidateSummary(ctx, reg.SessionID)
	s.notifyPromotion(ctx, promoted)

	s.log.Info("registration canceled",
		zap.String("registration_id", reg.ID),
		zap.String("session_id", reg.SessionID),
		zap.Bool("promotion_triggered", promoted != nil),
	)

	span.SetStatus(codes.Ok, "")
	return dto.NewRegistrationResponse(reg), nil
}

// RefundRegistration refunds a confirmed registration
func (s *registrationService) RefundRegistration(ctx context.Context, actor Actor, registrationID string) (*dto.RegistrationResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.registration.refund")
	defer span.End()

	span.SetAttributes(attribute.String("registration_id", registrationID))

	var (
		reg      *domain.Registration
		promoted *domain.WaitlistEntry
	)
	err := s.exec.execute(ctx, "registration.refund", func(ctx context.Context, tx pgx.Tx) error {
		promoted = nil

		var err error
		reg, err = s.registrations.GetByIDTx(ctx, tx, registrationID)
		if err != nil {
			return err
		}

		now := s.clock.Now()
		if err := reg.Refund(now); err != nil {
			return err
		}
		if err := s.registrations.UpdateTx(ctx, tx, reg); err != nil {
			return err
		}

		var amount float64
		if reg.AmountPaid != nil {
			amount = *reg.AmountPaid
		}
		if err := appendEvent(ctx, tx, s.events, domain.RegistrationStream(reg.ID), domain.EventRegistrationRefunded,
			domain.RegistrationRefundedData{
				RegistrationID: reg.ID,
				SessionID:      reg.SessionID,
				Amount:         amount,
				RefundedAt:     now,
			}, actor, now); err != nil {
			return err
		}

		// Refund always frees a seat (only confirmed can be refunded)
		if _, err := s.sessions.GetForUpdateTx(ctx, tx, reg.SessionID); err != nil {
			return err
		}
		s.capacity.ReleaseSeat(ctx, reg.SessionID)
		promoted, err = s.promoter.PromoteNextTx(ctx, tx, reg.SessionID, actor)
		return err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	metrics.RecordRefund(ctx, reg.SessionID)
	s.invalidateSummary(ctx, reg.SessionID)
	s.notifyPromotion(ctx, promoted)

	s.log.Info("registration refunded",
		zap.String("registration_id", reg.ID),
		zap.String("session_id", reg.SessionID),
		zap.Bool("promotion_triggered", promoted != nil),
	)

	span.SetStatus(codes.Ok, "")
	return dto.NewRegistrationResponse(reg), nil
}

// GetRegistration retrieves a registration by ID
func (s *registrationService) GetRegistration(ctx context.Context, registrationID string) (*dto.RegistrationResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.registration.get")
	defer span.End()

	reg, err := s.registrations.GetByID(ctx, registrationID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetStatus(codes.Ok, "")
	return dto.NewRegistrationResponse(reg), nil
}

// GetRegistrationEvents returns the registration's audit stream, oldest first
func (s *registrationService) GetRegistrationEvents(ctx context.Context, registrationID string) ([]*dto.EventResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.registration.get_events")
	defer span.End()

	events, err := s.events.ReadStream(ctx, domain.RegistrationStream(registrationID))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if len(events) == 0 {
		span.SetStatus(codes.Error, "registration not found")
		return nil, domain.ErrRegistrationNotFound
	}

	out := make([]*dto.EventResponse, 0, len(events))
	for _, ev := range events {
		out = append(out, &dto.EventResponse{
			ID:        ev.ID,
			StreamID:  ev.StreamID,
			Type:      ev.Type,
			Data:      ev.Data,
			Version:   ev.Version,
			ActorID:   ev.ActorID,
			CreatedAt: ev.CreatedAt,
		})
	}

	span.SetStatus(codes.Ok, "")
	return out, nil
}

// ListUserRegistrations retrieves registrations created by a user
func (s *registrationService) ListUserRegistrations(ctx context.Context, userID string, page, pageSize int) (*dto.PaginatedResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.registration.list_by_user")
	defer span.End()

	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	regs, err := s.registrations.ListByUser(ctx, userID, pageSize, (page-1)*pageSize)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	items := make([]*dto.RegistrationResponse, 0, len(regs))
	for _, reg := range regs {
		items = append(items, dto.NewRegistrationResponse(reg))
	}

	span.SetStatus(codes.Ok, "")
	return &dto.PaginatedResponse{
		Items:     items,
		Page:      page,
		PageSize:  pageSize,
		ItemCount: len(items),
	}, nil
}

func (s *registrationService) invalidateSummary(ctx context.Context, sessionID string) {
	if s.summaries != nil {
		s.summaries.Invalidate(ctx, sessionID)
	}
}

func (s *registrationService) notifyPromotion(ctx context.Context, promoted *domain.WaitlistEntry) {
	if promoted == nil {
		return
	}
	metrics.RecordOffer(ctx, promoted.SessionID)
	if err := s.publisher.PublishWaitlistOffered(ctx, promoted); err != nil {
		s.log.Warn("failed to publish offer", zap.String("entry_id", promoted.ID), zap.Error(err))
	}
}
