package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/smroczek2/camp-os-sub002/internal/service"
	"github.com/smroczek2/camp-os-sub002/pkg/logger"
)

// OfferExpiryWorkerConfig contains configuration for the offer expiry worker
type OfferExpiryWorkerConfig struct {
	// SweepInterval is the interval between sweeps for lapsed offers
	SweepInterval time.Duration
	// BatchSize is the number of offers to process in each sweep
	BatchSize int
}

// DefaultOfferExpiryWorkerConfig returns default configuration
func DefaultOfferExpiryWorkerConfig() *OfferExpiryWorkerConfig {
	return &OfferExpiryWorkerConfig{
		SweepInterval: time.Minute,
		BatchSize:     100,
	}
}

// OfferExpiryWorker periodically sweeps waitlist offers whose acceptance
// window lapsed. Each expired offer hands its seat to the next waiting
// entry; reads already treat lapsed offers as expired, so the sweep only
// persists what the rest of the system assumes.
type OfferExpiryWorker struct {
	waitlist service.WaitlistService
	config   *OfferExpiryWorkerConfig
	log      *logger.Logger
	stopCh   chan struct{}
	wg       sync.WaitGroup
	mu       sync.Mutex
	running  bool

	// Stats
	totalExpired     int64
	lastSweepTime    time.Time
	lastExpiredCount int
}

// NewOfferExpiryWorker creates a new offer expiry worker
func NewOfferExpiryWorker(waitlist service.WaitlistService, config *OfferExpiryWorkerConfig) *OfferExpiryWorker {
	if config == nil {
		config = DefaultOfferExpiryWorkerConfig()
	}
	return &OfferExpiryWorker{
		waitlist: waitlist,
		config:   config,
		log:      logger.Get(),
	}
}

// Start starts the offer expiry worker
func (w *OfferExpiryWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("offer expiry worker already running")
	}
	w.running = true
	// A fresh channel per run lets a stopped worker start again
	w.stopCh = make(chan struct{})
	stopCh := w.stopCh
	w.mu.Unlock()

	w.log.Info("Starting offer expiry worker")

	w.wg.Add(1)
	go w.sweepLoop(ctx, stopCh)

	return nil
}

// Stop stops the offer expiry worker
func (w *OfferExpiryWorker) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	stopCh := w.stopCh
	w.mu.Unlock()

	w.log.Info("Stopping offer expiry worker")
	close(stopCh)
	w.wg.Wait()
	w.log.Info("Offer expiry worker stopped")
}

// sweepLoop periodically runs the expiry sweep
func (w *OfferExpiryWorker) sweepLoop(ctx context.Context, stopCh <-chan struct{}) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.config.SweepInterval)
	defer ticker.Stop()

	// Run immediately on start
	w.sweep(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

// sweep expires one batch of lapsed offers
func (w *OfferExpiryWorker) sweep(ctx context.Context) {
	w.mu.Lock()
	w.lastSweepTime = time.Now()
	w.mu.Unlock()

	expired, err := w.waitlist.ExpireOffers(ctx, w.config.BatchSize)
	if err != nil {
		w.log.Error(fmt.Sprintf("Failed to expire offers: %v", err))
		return
	}

	w.mu.Lock()
	w.lastExpiredCount = expired
	w.totalExpired += int64(expired)
	w.mu.Unlock()

	if expired > 0 {
		w.log.Info(fmt.Sprintf("Expired %d lapsed offers", expired))
	}
}

// GetStats returns worker statistics
func (w *OfferExpiryWorker) GetStats() *OfferExpiryWorkerStats {
	w.mu.Lock()
	defer w.mu.Unlock()

	return &OfferExpiryWorkerStats{
		IsRunning:        w.running,
		TotalExpired:     w.totalExpired,
		LastSweepTime:    w.lastSweepTime,
		LastExpiredCount: w.lastExpiredCount,
	}
}

// OfferExpiryWorkerStats contains worker statistics
type OfferExpiryWorkerStats struct {
	IsRunning        bool      `json:"is_running"`
	TotalExpired     int64     `json:"total_expired"`
	LastSweepTime    time.Time `json:"last_sweep_time"`
	LastExpiredCount int       `json:"last_expired_count"`
}
