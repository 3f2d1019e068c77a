package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smroczek2/camp-os-sub002/internal/domain"
	"github.com/smroczek2/camp-os-sub002/internal/dto"
	"github.com/smroczek2/camp-os-sub002/pkg/clock"
)

var testNow = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

func openSession(capacity int) *domain.Session {
	return &domain.Session{
		ID:       "sess-1",
		Name:     "Summer Camp Week 1",
		Capacity: capacity,
		Status:   domain.SessionStatusOpen,
	}
}

type registrationFixture struct {
	runner    *mockTxRunner
	regs      *mockRegistrationRepository
	sessions  *mockSessionRepository
	events    *recordingEventStore
	waitlist  *mockWaitlistRepository
	publisher *mockEventPublisher
	summaries *mockSummaryInvalidator
	svc       RegistrationService
}

func newRegistrationFixture() *registrationFixture {
	f := &registrationFixture{
		runner:    &mockTxRunner{},
		regs:      &mockRegistrationRepository{},
		sessions:  &mockSessionRepository{},
		events:    &recordingEventStore{},
		waitlist:  &mockWaitlistRepository{},
		publisher: &mockEventPublisher{},
		summaries: &mockSummaryInvalidator{},
	}
	promoter := NewPromotionCoordinator(f.waitlist, f.events, DefaultOfferWindow, clock.NewFixed(testNow))
	f.svc = NewRegistrationService(
		f.runner, f.regs, f.sessions, f.events,
		NewCapacityLedger(f.sessions), promoter,
		f.publisher, f.summaries, clock.NewFixed(testNow),
	)
	return f
}

func TestCreateRegistration(t *testing.T) {
	actor := Actor{ID: "user-1", TenantID: "tenant-1"}
	req := &dto.CreateRegistrationRequest{SessionID: "sess-1", ChildID: "child-1"}

	t.Run("creates pending registration with audit event", func(t *testing.T) {
		f := newRegistrationFixture()
		f.sessions.GetByIDFn = func(ctx context.Context, id string) (*domain.Session, error) {
			return openSession(10), nil
		}

		result, err := f.svc.CreateRegistration(context.Background(), actor, req)

		require.NoError(t, err)
		assert.Equal(t, "pending", result.Status)
		assert.Equal(t, "sess-1", result.SessionID)
		assert.Equal(t, "user-1", result.UserID)

		require.Len(t, f.regs.created, 1)
		created := f.regs.created[0]
		assert.Equal(t, domain.RegistrationStatusPending, created.Status)

		types := f.events.typesFor(domain.RegistrationStream(created.ID))
		assert.Equal(t, []string{domain.EventRegistrationCreated}, types)
	})

	t.Run("session not open", func(t *testing.T) {
		f := newRegistrationFixture()
		f.sessions.GetByIDFn = func(ctx context.Context, id string) (*domain.Session, error) {
			s := openSession(10)
			s.Status = domain.SessionStatusClosed
			return s, nil
		}

		_, err := f.svc.CreateRegistration(context.Background(), actor, req)

		assert.ErrorIs(t, err, domain.ErrSessionNotOpen)
		assert.Empty(t, f.regs.created)
	})

	t.Run("session not found", func(t *testing.T) {
		f := newRegistrationFixture()

		_, err := f.svc.CreateRegistration(context.Background(), actor, req)

		assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	})

	t.Run("missing child id", func(t *testing.T) {
		f := newRegistrationFixture()

		_, err := f.svc.CreateRegistration(context.Background(), actor,
			&dto.CreateRegistrationRequest{SessionID: "sess-1"})

		assert.ErrorIs(t, err, domain.ErrInvalidChildID)
	})

	t.Run("anonymous actor rejected", func(t *testing.T) {
		f := newRegistrationFixture()

		_, err := f.svc.CreateRegistration(context.Background(), Actor{}, req)

		assert.ErrorIs(t, err, domain.ErrInvalidUserID)
	})
}

func TestConfirmPayment(t *testing.T) {
	actor := Actor{ID: "user-1"}

	pendingReg := func() *domain.Registration {
		return &domain.Registration{
			ID:        "reg-1",
			SessionID: "sess-1",
			ChildID:   "child-1",
			UserID:    "user-1",
			Status:    domain.RegistrationStatusPending,
		}
	}

	t.Run("claims seat and records payment", func(t *testing.T) {
		f := newRegistrationFixture()
		f.regs.GetByIDTxFn = func(ctx context.Context, tx pgx.Tx, id string) (*domain.Registration, error) {
			return pendingReg(), nil
		}
		f.sessions.GetForUpdateTxFn = func(ctx context.Context, tx pgx.Tx, id string) (*domain.Session, error) {
			return openSession(10), nil
		}
		f.sessions.CountConfirmedTxFn = func(ctx context.Context, tx pgx.Tx, sessionID string) (int, error) {
			return 3, nil
		}

		result, err := f.svc.ConfirmPayment(context.Background(), actor, "reg-1",
			&dto.ConfirmPaymentRequest{Amount: 199.99})

		require.NoError(t, err)
		assert.Equal(t, "confirmed", result.Status)
		require.NotNil(t, result.AmountPaid)
		assert.Equal(t, 199.99, *result.AmountPaid)

		require.Len(t, f.regs.updated, 1)
		types := f.events.typesFor(domain.RegistrationStream("reg-1"))
		assert.Equal(t, []string{domain.EventRegistrationConfirmed, domain.EventPaymentCompleted}, types)

		require.Len(t, f.publisher.confirmed, 1)
		assert.Equal(t, []string{"sess-1"}, f.summaries.invalidated)
	})

	t.Run("full session rejects confirmation", func(t *testing.T) {
		f := newRegistrationFixture()
		f.regs.GetByIDTxFn = func(ctx context.Context, tx pgx.Tx, id string) (*domain.Registration, error) {
			return pendingReg(), nil
		}
		f.sessions.GetForUpdateTxFn = func(ctx context.Context, tx pgx.Tx, id string) (*domain.Session, error) {
			return openSession(5), nil
		}
		f.sessions.CountConfirmedTxFn = func(ctx context.Context, tx pgx.Tx, sessionID string) (int, error) {
			return 5, nil
		}

		_, err := f.svc.ConfirmPayment(context.Background(), actor, "reg-1",
			&dto.ConfirmPaymentRequest{Amount: 100})

		assert.ErrorIs(t, err, domain.ErrSessionFull)
		assert.Empty(t, f.regs.updated)
		assert.Empty(t, f.events.appended)
		assert.Empty(t, f.publisher.confirmed)
	})

	t.Run("last seat goes to exactly one of two racers", func(t *testing.T) {
		f := newRegistrationFixture()
		confirmed := 0
		f.regs.GetByIDTxFn = func(ctx context.Context, tx pgx.Tx, id string) (*domain.Registration, error) {
			reg := pendingReg()
			reg.ID = id
			return reg, nil
		}
		f.sessions.GetForUpdateTxFn = func(ctx context.Context, tx pgx.Tx, id string) (*domain.Session, error) {
			return openSession(1), nil
		}
		f.sessions.CountConfirmedTxFn = func(ctx context.Context, tx pgx.Tx, sessionID string) (int, error) {
			return confirmed, nil
		}
		f.regs.UpdateTxFn = func(ctx context.Context, tx pgx.Tx, reg *domain.Registration) error {
			confirmed++
			return nil
		}

		_, err1 := f.svc.ConfirmPayment(context.Background(), actor, "reg-1",
			&dto.ConfirmPaymentRequest{Amount: 100})
		_, err2 := f.svc.ConfirmPayment(context.Background(), actor, "reg-2",
			&dto.ConfirmPaymentRequest{Amount: 100})

		require.NoError(t, err1)
		assert.ErrorIs(t, err2, domain.ErrSessionFull)
		assert.Equal(t, 1, confirmed)
	})

	t.Run("already confirmed", func(t *testing.T) {
		f := newRegistrationFixture()
		f.regs.GetByIDTxFn = func(ctx context.Context, tx pgx.Tx, id string) (*domain.Registration, error) {
			reg := pendingReg()
			reg.Status = domain.RegistrationStatusConfirmed
			return reg, nil
		}
		f.sessions.GetForUpdateTxFn = func(ctx context.Context, tx pgx.Tx, id string) (*domain.Session, error) {
			return openSession(10), nil
		}

		_, err := f.svc.ConfirmPayment(context.Background(), actor, "reg-1",
			&dto.ConfirmPaymentRequest{Amount: 100})

		assert.ErrorIs(t, err, domain.ErrInvalidStateTransition)
	})

	t.Run("negative amount", func(t *testing.T) {
		f := newRegistrationFixture()

		_, err := f.svc.ConfirmPayment(context.Background(), actor, "reg-1",
			&dto.ConfirmPaymentRequest{Amount: -5})

		assert.ErrorIs(t, err, domain.ErrInvalidAmount)
	})

	t.Run("registration not found", func(t *testing.T) {
		f := newRegistrationFixture()

		_, err := f.svc.ConfirmPayment(context.Background(), actor, "missing",
			&dto.ConfirmPaymentRequest{Amount: 100})

		assert.ErrorIs(t, err, domain.ErrRegistrationNotFound)
	})

	t.Run("version conflict retried to success", func(t *testing.T) {
		f := newRegistrationFixture()
		f.regs.GetByIDTxFn = func(ctx context.Context, tx pgx.Tx, id string) (*domain.Registration, error) {
			return pendingReg(), nil
		}
		f.sessions.GetForUpdateTxFn = func(ctx context.Context, tx pgx.Tx, id string) (*domain.Session, error) {
			return openSession(10), nil
		}
		attempt := 0
		f.runner.RunInTxFn = func(ctx context.Context, fn func(ctx context.Context, tx pgx.Tx) error) error {
			attempt++
			if attempt == 1 {
				return domain.ErrVersionConflict
			}
			return fn(ctx, nil)
		}

		result, err := f.svc.ConfirmPayment(context.Background(), actor, "reg-1",
			&dto.ConfirmPaymentRequest{Amount: 100})

		require.NoError(t, err)
		assert.Equal(t, "confirmed", result.Status)
		assert.Equal(t, 2, attempt)
	})

	t.Run("version conflict surfaces after retries exhaust", func(t *testing.T) {
		f := newRegistrationFixture()
		f.runner.RunInTxFn = func(ctx context.Context, fn func(ctx context.Context, tx pgx.Tx) error) error {
			return domain.ErrVersionConflict
		}

		_, err := f.svc.ConfirmPayment(context.Background(), actor, "reg-1",
			&dto.ConfirmPaymentRequest{Amount: 100})

		assert.ErrorIs(t, err, domain.ErrVersionConflict)
	})
}

func TestCancelRegistration(t *testing.T) {
	actor := Actor{ID: "user-1"}

	t.Run("pending cancel frees no seat and promotes nobody", func(t *testing.T) {
		f := newRegistrationFixture()
		f.regs.GetByIDTxFn = func(ctx context.Context, tx pgx.Tx, id string) (*domain.Registration, error) {
			return &domain.Registration{
				ID: "reg-1", SessionID: "sess-1", ChildID: "child-1", UserID: "user-1",
				Status: domain.RegistrationStatusPending,
			}, nil
		}

		result, err := f.svc.CancelRegistration(context.Background(), actor, "reg-1")

		require.NoError(t, err)
		assert.Equal(t, "canceled", result.Status)
		assert.Zero(t, f.sessions.getForUpdateCalls)
		assert.Zero(t, f.waitlist.nextWaitingCalls)
		assert.Empty(t, f.publisher.offered)

		types := f.events.typesFor(domain.RegistrationStream("reg-1"))
		assert.Equal(t, []string{domain.EventRegistrationCanceled}, types)
	})

	t.Run("confirmed cancel promotes the head of the waitlist", func(t *testing.T) {
		f := newRegistrationFixture()
		f.regs.GetByIDTxFn = func(ctx context.Context, tx pgx.Tx, id string) (*domain.Registration, error) {
			return &domain.Registration{
				ID: "reg-1", SessionID: "sess-1", ChildID: "child-1", UserID: "user-1",
				Status: domain.RegistrationStatusConfirmed,
			}, nil
		}
		f.sessions.GetForUpdateTxFn = func(ctx context.Context, tx pgx.Tx, id string) (*domain.Session, error) {
			return openSession(5), nil
		}
		f.waitlist.NextWaitingTxFn = func(ctx context.Context, tx pgx.Tx, sessionID string) (*domain.WaitlistEntry, error) {
			return &domain.WaitlistEntry{
				ID: "wl-1", SessionID: "sess-1", ChildID: "child-2", UserID: "user-2",
				Status: domain.WaitlistStatusWaiting, Position: 1,
			}, nil
		}

		result, err := f.svc.CancelRegistration(context.Background(), actor, "reg-1")

		require.NoError(t, err)
		assert.Equal(t, "canceled", result.Status)

		require.Len(t, f.waitlist.updated, 1)
		promoted := f.waitlist.updated[0]
		assert.Equal(t, domain.WaitlistStatusOffered, promoted.Status)
		require.NotNil(t, promoted.OfferExpiresAt)
		assert.Equal(t, testNow.Add(DefaultOfferWindow), *promoted.OfferExpiresAt)

		types := f.events.typesFor(domain.WaitlistStream("wl-1"))
		assert.Equal(t, []string{domain.EventWaitlistOffered}, types)
		require.Len(t, f.publisher.offered, 1)
		assert.Equal(t, "wl-1", f.publisher.offered[0].ID)
	})

	t.Run("confirmed cancel with empty waitlist succeeds quietly", func(t *testing.T) {
		f := newRegistrationFixture()
		f.regs.GetByIDTxFn = func(ctx context.Context, tx pgx.Tx, id string) (*domain.Registration, error) {
			return &domain.Registration{
				ID: "reg-1", SessionID: "sess-1", ChildID: "child-1", UserID: "user-1",
				Status: domain.RegistrationStatusConfirmed,
			}, nil
		}
		f.sessions.GetForUpdateTxFn = func(ctx context.Context, tx pgx.Tx, id string) (*domain.Session, error) {
			return openSession(5), nil
		}

		result, err := f.svc.CancelRegistration(context.Background(), actor, "reg-1")

		require.NoError(t, err)
		assert.Equal(t, "canceled", result.Status)
		assert.Equal(t, 1, f.waitlist.nextWaitingCalls)
		assert.Empty(t, f.publisher.offered)
	})

	t.Run("refunded cannot cancel", func(t *testing.T) {
		f := newRegistrationFixture()
		f.regs.GetByIDTxFn = func(ctx context.Context, tx pgx.Tx, id string) (*domain.Registration, error) {
			return &domain.Registration{
				ID: "reg-1", SessionID: "sess-1",
				Status: domain.RegistrationStatusRefunded,
			}, nil
		}

		_, err := f.svc.CancelRegistration(context.Background(), actor, "reg-1")

		assert.ErrorIs(t, err, domain.ErrInvalidStateTransition)
	})
}

func TestRefundRegistration(t *testing.T) {
	actor := Actor{ID: "admin-1"}

	t.Run("confirmed refund frees seat and promotes", func(t *testing.T) {
		f := newRegistrationFixture()
		amount := 250.0
		f.regs.GetByIDTxFn = func(ctx context.Context, tx pgx.Tx, id string) (*domain.Registration, error) {
			return &domain.Registration{
				ID: "reg-1", SessionID: "sess-1", ChildID: "child-1", UserID: "user-1",
				Status: domain.RegistrationStatusConfirmed, AmountPaid: &amount,
			}, nil
		}
		f.sessions.GetForUpdateTxFn = func(ctx context.Context, tx pgx.Tx, id string) (*domain.Session, error) {
			return openSession(5), nil
		}
		f.waitlist.NextWaitingTxFn = func(ctx context.Context, tx pgx.Tx, sessionID string) (*domain.WaitlistEntry, error) {
			return &domain.WaitlistEntry{
				ID: "wl-1", SessionID: "sess-1", ChildID: "child-2", UserID: "user-2",
				Status: domain.WaitlistStatusWaiting, Position: 1,
			}, nil
		}

		result, err := f.svc.RefundRegistration(context.Background(), actor, "reg-1")

		require.NoError(t, err)
		assert.Equal(t, "refunded", result.Status)

		types := f.events.typesFor(domain.RegistrationStream("reg-1"))
		assert.Equal(t, []string{domain.EventRegistrationRefunded}, types)
		require.Len(t, f.publisher.offered, 1)
	})

	t.Run("pending cannot refund", func(t *testing.T) {
		f := newRegistrationFixture()
		f.regs.GetByIDTxFn = func(ctx context.Context, tx pgx.Tx, id string) (*domain.Registration, error) {
			return &domain.Registration{
				ID: "reg-1", SessionID: "sess-1",
				Status: domain.RegistrationStatusPending,
			}, nil
		}

		_, err := f.svc.RefundRegistration(context.Background(), actor, "reg-1")

		assert.ErrorIs(t, err, domain.ErrInvalidStateTransition)
		assert.Zero(t, f.waitlist.nextWaitingCalls)
	})
}

func TestGetRegistrationEvents(t *testing.T) {
	t.Run("returns stream oldest first", func(t *testing.T) {
		f := newRegistrationFixture()
		stream := domain.RegistrationStream("reg-1")
		for _, typ := range []string{domain.EventRegistrationCreated, domain.EventRegistrationConfirmed} {
			require.NoError(t, f.events.AppendTx(context.Background(), nil, &domain.Event{
				ID: typ, StreamID: stream, Type: typ, Data: []byte(`{}`),
			}, f.events.versions[stream]))
		}

		events, err := f.svc.GetRegistrationEvents(context.Background(), "reg-1")

		require.NoError(t, err)
		require.Len(t, events, 2)
		assert.Equal(t, domain.EventRegistrationCreated, events[0].Type)
		assert.Equal(t, int64(1), events[0].Version)
		assert.Equal(t, int64(2), events[1].Version)
	})

	t.Run("empty stream reads as not found", func(t *testing.T) {
		f := newRegistrationFixture()

		_, err := f.svc.GetRegistrationEvents(context.Background(), "missing")

		assert.ErrorIs(t, err, domain.ErrRegistrationNotFound)
	})
}

func TestListUserRegistrations(t *testing.T) {
	f := newRegistrationFixture()
	var gotLimit, gotOffset int
	f.regs.ListByUserFn = func(ctx context.Context, userID string, limit, offset int) ([]*domain.Registration, error) {
		gotLimit, gotOffset = limit, offset
		return []*domain.Registration{
			{ID: "reg-1", SessionID: "sess-1", UserID: userID, Status: domain.RegistrationStatusPending},
		}, nil
	}

	result, err := f.svc.ListUserRegistrations(context.Background(), "user-1", 3, 10)

	require.NoError(t, err)
	assert.Equal(t, 3, result.Page)
	assert.Equal(t, 10, result.PageSize)
	assert.Equal(t, 1, result.ItemCount)
	assert.Equal(t, 10, gotLimit)
	assert.Equal(t, 20, gotOffset)

	// Out-of-range paging falls back to defaults
	result, err = f.svc.ListUserRegistrations(context.Background(), "user-1", 0, 1000)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Page)
	assert.Equal(t, 20, result.PageSize)
}

func TestTxExecutorPermanentErrors(t *testing.T) {
	// Domain errors other than version conflicts must not burn retries
	f := newRegistrationFixture()
	attempts := 0
	f.runner.RunInTxFn = func(ctx context.Context, fn func(ctx context.Context, tx pgx.Tx) error) error {
		attempts++
		return errors.New("column does not exist")
	}

	_, err := f.svc.CancelRegistration(context.Background(), Actor{ID: "user-1"}, "reg-1")

	require.Error(t, err)
	assert.Equal(t, 1, attempts)
}
