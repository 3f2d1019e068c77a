package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/smroczek2/camp-os-sub002/internal/metrics"
	"github.com/smroczek2/camp-os-sub002/internal/repository"
	"github.com/smroczek2/camp-os-sub002/internal/service"
	"github.com/smroczek2/camp-os-sub002/internal/worker"
	"github.com/smroczek2/camp-os-sub002/pkg/clock"
	"github.com/smroczek2/camp-os-sub002/pkg/config"
	"github.com/smroczek2/camp-os-sub002/pkg/database"
	"github.com/smroczek2/camp-os-sub002/pkg/logger"
	"github.com/smroczek2/camp-os-sub002/pkg/telemetry"
)

// Standalone offer-expiry sweeper. Deploy this instead of the in-process
// sweep when the API runs with more than one replica, so only one sweeper
// walks the expired offers.
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if err := logger.Init(&logger.Config{
		Level:       cfg.App.Environment,
		ServiceName: cfg.App.Name + "-offer-expiry",
		Development: cfg.IsDevelopment(),
	}); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	appLog := logger.Get()
	appLog.Info("Starting offer expiry worker...")

	ctx := context.Background()

	if _, err := telemetry.Init(ctx, &telemetry.Config{
		Enabled:        cfg.OTel.Enabled,
		ServiceName:    cfg.OTel.ServiceName + "-offer-expiry",
		ServiceVersion: cfg.App.Version,
		Environment:    cfg.App.Environment,
		CollectorAddr:  cfg.OTel.CollectorAddr,
		SampleRatio:    cfg.OTel.SampleRatio,
	}); err != nil {
		appLog.Fatal(fmt.Sprintf("Telemetry init failed: %v", err))
	}
	defer telemetry.Shutdown(ctx)

	if err := metrics.Init(); err != nil {
		appLog.Fatal(fmt.Sprintf("Metrics init failed: %v", err))
	}

	db, err := database.NewPostgres(ctx, &database.PostgresConfig{
		Host:            cfg.Database.Host,
		Port:            cfg.Database.Port,
		User:            cfg.Database.User,
		Password:        cfg.Database.Password,
		Database:        cfg.Database.DBName,
		SSLMode:         cfg.Database.SSLMode,
		MaxConns:        cfg.Database.MaxConns,
		MinConns:        cfg.Database.MinConns,
		MaxConnLifetime: cfg.Database.ConnMaxLifetime,
		MaxConnIdleTime: cfg.Database.ConnMaxIdleTime,
		ConnectTimeout:  5 * time.Second,
		MaxRetries:      3,
		RetryInterval:   time.Second,
		EnableTracing:   cfg.OTel.Enabled,
	})
	if err != nil {
		appLog.Fatal(fmt.Sprintf("Database connection failed: %v", err))
	}
	defer db.Close()

	var publisher service.EventPublisher
	publisher, err = service.NewKafkaEventPublisher(ctx, &service.EventPublisherConfig{
		Brokers:     cfg.Kafka.Brokers,
		Topic:       cfg.Kafka.Topic,
		ServiceName: cfg.App.Name,
		ClientID:    cfg.Kafka.ClientID + "-offer-expiry",
	})
	if err != nil {
		appLog.Warn(fmt.Sprintf("Kafka connection failed, using no-op publisher: %v", err))
		publisher = service.NewNoOpEventPublisher()
	}
	defer publisher.Close()

	pool := db.Pool()
	txRunner := repository.NewPgxTxRunner(pool)
	eventStore := repository.NewPostgresEventStore(pool)
	sessionRepo := repository.NewPostgresSessionRepository(pool)
	registrationRepo := repository.NewPostgresRegistrationRepository(pool)
	waitlistRepo := repository.NewPostgresWaitlistRepository(pool)

	sysClock := clock.NewSystem()
	ledger := service.NewCapacityLedger(sessionRepo)
	promoter := service.NewPromotionCoordinator(waitlistRepo, eventStore, cfg.Enrollment.OfferWindow, sysClock)
	waitlist := service.NewWaitlistService(
		txRunner, waitlistRepo, registrationRepo, sessionRepo, eventStore, ledger, promoter, publisher, nil, sysClock)

	expiryWorker := worker.NewOfferExpiryWorker(waitlist, &worker.OfferExpiryWorkerConfig{
		SweepInterval: cfg.Enrollment.SweepInterval,
		BatchSize:     cfg.Enrollment.SweepBatchSize,
	})
	if err := expiryWorker.Start(ctx); err != nil {
		appLog.Fatal(fmt.Sprintf("Failed to start offer expiry worker: %v", err))
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	appLog.Info("Shutting down offer expiry worker...")

	expiryWorker.Stop()

	stats := expiryWorker.GetStats()
	appLog.Info(fmt.Sprintf("Worker exited, total offers expired: %d", stats.TotalExpired))
}
