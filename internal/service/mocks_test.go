package service

import (
	"context"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/smroczek2/camp-os-sub002/internal/domain"
)

// mockTxRunner runs the unit of work directly with a nil transaction.
// Override RunInTxFn to inject transaction-level failures.
type mockTxRunner struct {
	RunInTxFn func(ctx context.Context, fn func(ctx context.Context, tx pgx.Tx) error) error
	calls     int
}

func (m *mockTxRunner) RunInTx(ctx context.Context, fn func(ctx context.Context, tx pgx.Tx) error) error {
	m.calls++
	if m.RunInTxFn != nil {
		return m.RunInTxFn(ctx, fn)
	}
	return fn(ctx, nil)
}

// recordingEventStore is an in-memory append-only log that enforces the same
// expected-version rule as the Postgres store.
type recordingEventStore struct {
	mu        sync.Mutex
	appended  []*domain.Event
	versions  map[string]int64
	appendErr error
}

func (s *recordingEventStore) AppendTx(ctx context.Context, tx pgx.Tx, event *domain.Event, expectedVersion int64) error {
	if s.appendErr != nil {
		return s.appendErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.versions == nil {
		s.versions = make(map[string]int64)
	}
	if s.versions[event.StreamID] != expectedVersion {
		return domain.ErrVersionConflict
	}
	s.versions[event.StreamID]++
	event.Version = s.versions[event.StreamID]
	s.appended = append(s.appended, event)
	return nil
}

func (s *recordingEventStore) CurrentVersionTx(ctx context.Context, tx pgx.Tx, streamID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.versions[streamID], nil
}

func (s *recordingEventStore) ReadStream(ctx context.Context, streamID string) ([]domain.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Event
	for _, ev := range s.appended {
		if ev.StreamID == streamID {
			out = append(out, *ev)
		}
	}
	return out, nil
}

// typesFor returns the appended event types of one stream, in append order
func (s *recordingEventStore) typesFor(streamID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, ev := range s.appended {
		if ev.StreamID == streamID {
			out = append(out, ev.Type)
		}
	}
	return out
}

type mockSessionRepository struct {
	GetByIDFn          func(ctx context.Context, id string) (*domain.Session, error)
	GetForUpdateTxFn   func(ctx context.Context, tx pgx.Tx, id string) (*domain.Session, error)
	CountConfirmedTxFn func(ctx context.Context, tx pgx.Tx, sessionID string) (int, error)
	CountConfirmedFn   func(ctx context.Context, sessionID string) (int, error)
	CreateFn           func(ctx context.Context, session *domain.Session) error

	getForUpdateCalls int
}

func (m *mockSessionRepository) GetByID(ctx context.Context, id string) (*domain.Session, error) {
	if m.GetByIDFn != nil {
		return m.GetByIDFn(ctx, id)
	}
	return nil, domain.ErrSessionNotFound
}

func (m *mockSessionRepository) GetForUpdateTx(ctx context.Context, tx pgx.Tx, id string) (*domain.Session, error) {
	m.getForUpdateCalls++
	if m.GetForUpdateTxFn != nil {
		return m.GetForUpdateTxFn(ctx, tx, id)
	}
	return nil, domain.ErrSessionNotFound
}

func (m *mockSessionRepository) CountConfirmedTx(ctx context.Context, tx pgx.Tx, sessionID string) (int, error) {
	if m.CountConfirmedTxFn != nil {
		return m.CountConfirmedTxFn(ctx, tx, sessionID)
	}
	return 0, nil
}

func (m *mockSessionRepository) CountConfirmed(ctx context.Context, sessionID string) (int, error) {
	if m.CountConfirmedFn != nil {
		return m.CountConfirmedFn(ctx, sessionID)
	}
	return 0, nil
}

func (m *mockSessionRepository) Create(ctx context.Context, session *domain.Session) error {
	if m.CreateFn != nil {
		return m.CreateFn(ctx, session)
	}
	return nil
}

type mockRegistrationRepository struct {
	CreateTxFn      func(ctx context.Context, tx pgx.Tx, reg *domain.Registration) error
	UpdateTxFn      func(ctx context.Context, tx pgx.Tx, reg *domain.Registration) error
	GetByIDFn       func(ctx context.Context, id string) (*domain.Registration, error)
	GetByIDTxFn     func(ctx context.Context, tx pgx.Tx, id string) (*domain.Registration, error)
	ListBySessionFn func(ctx context.Context, sessionID string, limit, offset int) ([]*domain.Registration, error)
	ListByUserFn    func(ctx context.Context, userID string, limit, offset int) ([]*domain.Registration, error)

	created []*domain.Registration
	updated []*domain.Registration
}

func (m *mockRegistrationRepository) CreateTx(ctx context.Context, tx pgx.Tx, reg *domain.Registration) error {
	if m.CreateTxFn != nil {
		return m.CreateTxFn(ctx, tx, reg)
	}
	m.created = append(m.created, reg)
	return nil
}

func (m *mockRegistrationRepository) UpdateTx(ctx context.Context, tx pgx.Tx, reg *domain.Registration) error {
	if m.UpdateTxFn != nil {
		return m.UpdateTxFn(ctx, tx, reg)
	}
	m.updated = append(m.updated, reg)
	return nil
}

func (m *mockRegistrationRepository) GetByID(ctx context.Context, id string) (*domain.Registration, error) {
	if m.GetByIDFn != nil {
		return m.GetByIDFn(ctx, id)
	}
	return nil, domain.ErrRegistrationNotFound
}

func (m *mockRegistrationRepository) GetByIDTx(ctx context.Context, tx pgx.Tx, id string) (*domain.Registration, error) {
	if m.GetByIDTxFn != nil {
		return m.GetByIDTxFn(ctx, tx, id)
	}
	return nil, domain.ErrRegistrationNotFound
}

func (m *mockRegistrationRepository) ListBySession(ctx context.Context, sessionID string, limit, offset int) ([]*domain.Registration, error) {
	if m.ListBySessionFn != nil {
		return m.ListBySessionFn(ctx, sessionID, limit, offset)
	}
	return nil, nil
}

func (m *mockRegistrationRepository) ListByUser(ctx context.Context, userID string, limit, offset int) ([]*domain.Registration, error) {
	if m.ListByUserFn != nil {
		return m.ListByUserFn(ctx, userID, limit, offset)
	}
	return nil, nil
}

type mockWaitlistRepository struct {
	CreateTxFn                  func(ctx context.Context, tx pgx.Tx, entry *domain.WaitlistEntry) error
	UpdateTxFn                  func(ctx context.Context, tx pgx.Tx, entry *domain.WaitlistEntry) error
	GetByIDFn                   func(ctx context.Context, id string) (*domain.WaitlistEntry, error)
	GetByIDTxFn                 func(ctx context.Context, tx pgx.Tx, id string) (*domain.WaitlistEntry, error)
	MaxPositionTxFn             func(ctx context.Context, tx pgx.Tx, sessionID string) (int, error)
	NextWaitingTxFn             func(ctx context.Context, tx pgx.Tx, sessionID string) (*domain.WaitlistEntry, error)
	ListActiveAfterPositionTxFn func(ctx context.Context, tx pgx.Tx, sessionID string, position int) ([]*domain.WaitlistEntry, error)
	HasActiveEntryTxFn          func(ctx context.Context, tx pgx.Tx, sessionID, childID string) (bool, error)
	ListExpiredOffersFn         func(ctx context.Context, cutoff time.Time, limit int) ([]*domain.WaitlistEntry, error)
	ListBySessionFn             func(ctx context.Context, sessionID string) ([]*domain.WaitlistEntry, error)
	GetActiveBySessionChildFn   func(ctx context.Context, sessionID, childID string) (*domain.WaitlistEntry, error)
	CountWaitingFn              func(ctx context.Context, sessionID string) (int, error)

	created          []*domain.WaitlistEntry
	updated          []*domain.WaitlistEntry
	nextWaitingCalls int
}

func (m *mockWaitlistRepository) CreateTx(ctx context.Context, tx pgx.Tx, entry *domain.WaitlistEntry) error {
	if m.CreateTxFn != nil {
		return m.CreateTxFn(ctx, tx, entry)
	}
	m.created = append(m.created, entry)
	return nil
}

func (m *mockWaitlistRepository) UpdateTx(ctx context.Context, tx pgx.Tx, entry *domain.WaitlistEntry) error {
	if m.UpdateTxFn != nil {
		return m.UpdateTxFn(ctx, tx, entry)
	}
	m.updated = append(m.updated, entry)
	return nil
}

func (m *mockWaitlistRepository) GetByID(ctx context.Context, id string) (*domain.WaitlistEntry, error) {
	if m.GetByIDFn != nil {
		return m.GetByIDFn(ctx, id)
	}
	return nil, domain.ErrWaitlistEntryNotFound
}

func (m *mockWaitlistRepository) GetByIDTx(ctx context.Context, tx pgx.Tx, id string) (*domain.WaitlistEntry, error) {
	if m.GetByIDTxFn != nil {
		return m.GetByIDTxFn(ctx, tx, id)
	}
	return nil, domain.ErrWaitlistEntryNotFound
}

func (m *mockWaitlistRepository) MaxPositionTx(ctx context.Context, tx pgx.Tx, sessionID string) (int, error) {
	if m.MaxPositionTxFn != nil {
		return m.MaxPositionTxFn(ctx, tx, sessionID)
	}
	return 0, nil
}

func (m *mockWaitlistRepository) NextWaitingTx(ctx context.Context, tx pgx.Tx, sessionID string) (*domain.WaitlistEntry, error) {
	m.nextWaitingCalls++
	if m.NextWaitingTxFn != nil {
		return m.NextWaitingTxFn(ctx, tx, sessionID)
	}
	return nil, domain.ErrWaitlistEntryNotFound
}

func (m *mockWaitlistRepository) ListActiveAfterPositionTx(ctx context.Context, tx pgx.Tx, sessionID string, position int) ([]*domain.WaitlistEntry, error) {
	if m.ListActiveAfterPositionTxFn != nil {
		return m.ListActiveAfterPositionTxFn(ctx, tx, sessionID, position)
	}
	return nil, nil
}

func (m *mockWaitlistRepository) HasActiveEntryTx(ctx context.Context, tx pgx.Tx, sessionID, childID string) (bool, error) {
	if m.HasActiveEntryTxFn != nil {
		return m.HasActiveEntryTxFn(ctx, tx, sessionID, childID)
	}
	return false, nil
}

func (m *mockWaitlistRepository) ListExpiredOffers(ctx context.Context, cutoff time.Time, limit int) ([]*domain.WaitlistEntry, error) {
	if m.ListExpiredOffersFn != nil {
		return m.ListExpiredOffersFn(ctx, cutoff, limit)
	}
	return nil, nil
}

func (m *mockWaitlistRepository) ListBySession(ctx context.Context, sessionID string) ([]*domain.WaitlistEntry, error) {
	if m.ListBySessionFn != nil {
		return m.ListBySessionFn(ctx, sessionID)
	}
	return nil, nil
}

func (m *mockWaitlistRepository) GetActiveBySessionChild(ctx context.Context, sessionID, childID string) (*domain.WaitlistEntry, error) {
	if m.GetActiveBySessionChildFn != nil {
		return m.GetActiveBySessionChildFn(ctx, sessionID, childID)
	}
	return nil, domain.ErrWaitlistEntryNotFound
}

func (m *mockWaitlistRepository) CountWaiting(ctx context.Context, sessionID string) (int, error) {
	if m.CountWaitingFn != nil {
		return m.CountWaitingFn(ctx, sessionID)
	}
	return 0, nil
}

// mockEventPublisher counts notifications instead of sending them
type mockEventPublisher struct {
	mu         sync.Mutex
	confirmed  []*domain.Registration
	offered    []*domain.WaitlistEntry
	expired    []*domain.WaitlistEntry
	publishErr error
}

func (m *mockEventPublisher) PublishRegistrationConfirmed(ctx context.Context, reg *domain.Registration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.publishErr != nil {
		return m.publishErr
	}
	m.confirmed = append(m.confirmed, reg)
	return nil
}

func (m *mockEventPublisher) PublishWaitlistOffered(ctx context.Context, entry *domain.WaitlistEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.publishErr != nil {
		return m.publishErr
	}
	m.offered = append(m.offered, entry)
	return nil
}

func (m *mockEventPublisher) PublishWaitlistExpired(ctx context.Context, entry *domain.WaitlistEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.publishErr != nil {
		return m.publishErr
	}
	m.expired = append(m.expired, entry)
	return nil
}

func (m *mockEventPublisher) Close() error { return nil }

// mockSummaryInvalidator records which sessions had their summary dropped
type mockSummaryInvalidator struct {
	mu          sync.Mutex
	invalidated []string
}

func (m *mockSummaryInvalidator) Invalidate(ctx context.Context, sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.invalidated = append(m.invalidated, sessionID)
}
