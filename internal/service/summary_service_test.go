package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smroczek2/camp-os-sub002/internal/domain"
)

func TestGetSessionCapacitySummary(t *testing.T) {
	t.Run("reports seat usage without a cache", func(t *testing.T) {
		sessions := &mockSessionRepository{
			GetByIDFn: func(ctx context.Context, id string) (*domain.Session, error) {
				return openSession(10), nil
			},
			CountConfirmedFn: func(ctx context.Context, sessionID string) (int, error) {
				return 7, nil
			},
		}
		waitlist := &mockWaitlistRepository{
			CountWaitingFn: func(ctx context.Context, sessionID string) (int, error) {
				return 3, nil
			},
		}
		svc := NewSummaryService(sessions, waitlist, nil, time.Second)

		summary, err := svc.GetSessionCapacitySummary(context.Background(), "sess-1")

		require.NoError(t, err)
		assert.Equal(t, 10, summary.Capacity)
		assert.Equal(t, 7, summary.Confirmed)
		assert.Equal(t, 3, summary.Waiting)
		assert.Equal(t, 3, summary.Available)
	})

	t.Run("available never reads negative", func(t *testing.T) {
		sessions := &mockSessionRepository{
			GetByIDFn: func(ctx context.Context, id string) (*domain.Session, error) {
				return openSession(5), nil
			},
			CountConfirmedFn: func(ctx context.Context, sessionID string) (int, error) {
				return 6, nil
			},
		}
		svc := NewSummaryService(sessions, &mockWaitlistRepository{}, nil, time.Second)

		summary, err := svc.GetSessionCapacitySummary(context.Background(), "sess-1")

		require.NoError(t, err)
		assert.Zero(t, summary.Available)
	})

	t.Run("unknown session", func(t *testing.T) {
		svc := NewSummaryService(&mockSessionRepository{}, &mockWaitlistRepository{}, nil, time.Second)

		_, err := svc.GetSessionCapacitySummary(context.Background(), "missing")

		assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	})

	t.Run("invalidate without redis is a no-op", func(t *testing.T) {
		svc := NewSummaryService(&mockSessionRepository{}, &mockWaitlistRepository{}, nil, time.Second)
		svc.Invalidate(context.Background(), "sess-1")
	})
}
