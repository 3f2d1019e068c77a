package service

import (
	"context"
	"encoding/json"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/smroczek2/camp-os-sub002/internal/dto"
	"github.com/smroczek2/camp-os-sub002/internal/repository"
	"github.com/smroczek2/camp-os-sub002/pkg/logger"
	pkgredis "github.com/smroczek2/camp-os-sub002/pkg/redis"
	"github.com/smroczek2/camp-os-sub002/pkg/telemetry"
)

const summaryKeyPrefix = "capacity:summary:"

// SummaryInvalidator drops a session's cached capacity summary after a
// seat-affecting mutation
type SummaryInvalidator interface {
	Invalidate(ctx context.Context, sessionID string)
}

// SummaryService defines the interface for session capacity summaries
type SummaryService interface {
	SummaryInvalidator

	// GetSessionCapacitySummary reports capacity, confirmed and waiting
	// counts for a session
	GetSessionCapacitySummary(ctx context.Context, sessionID string) (*dto.CapacitySummaryResponse, error)
}

// summaryService implements SummaryService with a short-TTL redis cache.
// Summaries are the hottest read during enrollment opens; singleflight
// collapses concurrent cache misses into one database round-trip.
type summaryService struct {
	sessions repository.SessionRepository
	waitlist repository.WaitlistRepository
	redis    *pkgredis.Client
	ttl      time.Duration
	group    singleflight.Group
	log      *logger.Logger
}

// NewSummaryService creates a new summary service. The redis client may be
// nil; summaries then always read from the database.
func NewSummaryService(sessions repository.SessionRepository, waitlist repository.WaitlistRepository,
	rdb *pkgredis.Client, ttl time.Duration) SummaryService {
	if ttl <= 0 {
		ttl = 5 * time.Second
	}
	return &summaryService{
		sessions: sessions,
		waitlist: waitlist,
		redis:    rdb,
		ttl:      ttl,
		log:      logger.Get(),
	}
}

// GetSessionCapacitySummary reports seat usage for a session
func (s *summaryService) GetSessionCapacitySummary(ctx context.Context, sessionID string) (*dto.CapacitySummaryResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.summary.get")
	defer span.End()

	span.SetAttributes(attribute.String("session_id", sessionID))

	if cached := s.fromCache(ctx, sessionID); cached != nil {
		span.SetAttributes(attribute.Bool("cache_hit", true))
		span.SetStatus(codes.Ok, "")
		return cached, nil
	}

	v, err, _ := s.group.Do(sessionID, func() (interface{}, error) {
		return s.load(ctx, sessionID)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetStatus(codes.Ok, "")
	return v.(*dto.CapacitySummaryResponse), nil
}

// Invalidate drops the session's cached summary
func (s *summaryService) Invalidate(ctx context.Context, sessionID string) {
	if s.redis == nil {
		return
	}
	if err := s.redis.Client().Del(ctx, summaryKeyPrefix+sessionID).Err(); err != nil {
		s.log.Warn("failed to invalidate summary cache",
			zap.String("session_id", sessionID),
			zap.Error(err),
		)
	}
}

func (s *summaryService) load(ctx context.Context, sessionID string) (*dto.CapacitySummaryResponse, error) {
	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	confirmed, err := s.sessions.CountConfirmed(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	waiting, err := s.waitlist.CountWaiting(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	available := session.Capacity - confirmed
	if available < 0 {
		available = 0
	}
	summary := &dto.CapacitySummaryResponse{
		SessionID: sessionID,
		Capacity:  session.Capacity,
		Confirmed: confirmed,
		Waiting:   waiting,
		Available: available,
	}
	s.toCache(ctx, sessionID, summary)
	return summary, nil
}

func (s *summaryService) fromCache(ctx context.Context, sessionID string) *dto.CapacitySummaryResponse {
	if s.redis == nil {
		return nil
	}
	raw, err := s.redis.Client().Get(ctx, summaryKeyPrefix+sessionID).Result()
	if err != nil {
		return nil
	}
	var summary dto.CapacitySummaryResponse
	if err := json.Unmarshal([]byte(raw), &summary); err != nil {
		return nil
	}
	return &summary
}

func (s *summaryService) toCache(ctx context.Context, sessionID string, summary *dto.CapacitySummaryResponse) {
	if s.redis == nil {
		return
	}
	raw, err := json.Marshal(summary)
	if err != nil {
		return
	}
	if err := s.redis.Client().Set(ctx, summaryKeyPrefix+sessionID, raw, s.ttl).Err(); err != nil {
		s.log.Warn("failed to cache summary",
			zap.String("session_id", sessionID),
			zap.Error(err),
		)
	}
}
