package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/smroczek2/camp-os-sub002/internal/handler"
	"github.com/smroczek2/camp-os-sub002/internal/metrics"
	"github.com/smroczek2/camp-os-sub002/internal/repository"
	"github.com/smroczek2/camp-os-sub002/internal/service"
	"github.com/smroczek2/camp-os-sub002/internal/worker"
	"github.com/smroczek2/camp-os-sub002/migrations"
	"github.com/smroczek2/camp-os-sub002/pkg/clock"
	"github.com/smroczek2/camp-os-sub002/pkg/config"
	"github.com/smroczek2/camp-os-sub002/pkg/database"
	"github.com/smroczek2/camp-os-sub002/pkg/logger"
	"github.com/smroczek2/camp-os-sub002/pkg/middleware"
	pkgredis "github.com/smroczek2/camp-os-sub002/pkg/redis"
	"github.com/smroczek2/camp-os-sub002/pkg/telemetry"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logCfg := &logger.Config{
		Level:       cfg.App.Environment,
		ServiceName: cfg.App.Name,
		Development: cfg.IsDevelopment(),
	}
	if err := logger.Init(logCfg); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	appLog := logger.Get()
	appLog.Info("Starting enrollment service...")

	ctx := context.Background()

	// Tracing
	if _, err := telemetry.Init(ctx, &telemetry.Config{
		Enabled:        cfg.OTel.Enabled,
		ServiceName:    cfg.OTel.ServiceName,
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

	// Database
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
	appLog.Info("Database connected")

	if err := migrations.Apply(ctx, db.Pool()); err != nil {
		appLog.Fatal(fmt.Sprintf("Migrations failed: %v", err))
	}
	appLog.Info("Migrations applied")

	// Redis is a cache and idempotency store; the service degrades to
	// database reads without it
	var redisClient *pkgredis.Client
	redisClient, err = pkgredis.NewClient(ctx, &pkgredis.Config{
		Host:          cfg.Redis.Host,
		Port:          cfg.Redis.Port,
		Password:      cfg.Redis.Password,
		DB:            cfg.Redis.DB,
		PoolSize:      cfg.Redis.PoolSize,
		MinIdleConns:  cfg.Redis.MinIdleConns,
		MaxRetries:    3,
		RetryInterval: 100 * time.Millisecond,
		DialTimeout:   cfg.Redis.DialTimeout,
		ReadTimeout:   cfg.Redis.ReadTimeout,
		WriteTimeout:  cfg.Redis.WriteTimeout,
	})
	if err != nil {
		appLog.Warn(fmt.Sprintf("Redis connection failed, running without cache: %v", err))
		redisClient = nil
	} else {
		defer redisClient.Close()
		appLog.Info("Redis connected")
	}

	// Kafka notifications are fire-and-forget; fall back to no-op
	var publisher service.EventPublisher
	publisher, err = service.NewKafkaEventPublisher(ctx, &service.EventPublisherConfig{
		Brokers:     cfg.Kafka.Brokers,
		Topic:       cfg.Kafka.Topic,
		ServiceName: cfg.App.Name,
		ClientID:    cfg.Kafka.ClientID,
	})
	if err != nil {
		appLog.Warn(fmt.Sprintf("Kafka connection failed, using no-op publisher: %v", err))
		publisher = service.NewNoOpEventPublisher()
	} else {
		appLog.Info("Kafka event publisher connected")
	}
	defer publisher.Close()

	// Repositories
	pool := db.Pool()
	txRunner := repository.NewPgxTxRunner(pool)
	eventStore := repository.NewPostgresEventStore(pool)
	sessionRepo := repository.NewPostgresSessionRepository(pool)
	registrationRepo := repository.NewPostgresRegistrationRepository(pool)
	waitlistRepo := repository.NewPostgresWaitlistRepository(pool)

	// Services
	sysClock := clock.NewSystem()
	ledger := service.NewCapacityLedger(sessionRepo)
	promoter := service.NewPromotionCoordinator(waitlistRepo, eventStore, cfg.Enrollment.OfferWindow, sysClock)
	summaries := service.NewSummaryService(sessionRepo, waitlistRepo, redisClient, cfg.Enrollment.SummaryCacheTTL)
	registrations := service.NewRegistrationService(
		txRunner, registrationRepo, sessionRepo, eventStore, ledger, promoter, publisher, summaries, sysClock)
	waitlist := service.NewWaitlistService(
		txRunner, waitlistRepo, registrationRepo, sessionRepo, eventStore, ledger, promoter, publisher, summaries, sysClock)

	// Offer expiry sweep
	expiryWorker := worker.NewOfferExpiryWorker(waitlist, &worker.OfferExpiryWorkerConfig{
		SweepInterval: cfg.Enrollment.SweepInterval,
		BatchSize:     cfg.Enrollment.SweepBatchSize,
	})
	if err := expiryWorker.Start(ctx); err != nil {
		appLog.Fatal(fmt.Sprintf("Failed to start offer expiry worker: %v", err))
	}
	defer expiryWorker.Stop()

	// Handlers
	registrationHandler := handler.NewRegistrationHandler(registrations)
	waitlistHandler := handler.NewWaitlistHandler(waitlist)
	sessionHandler := handler.NewSessionHandler(summaries)
	healthHandler := handler.NewHealthHandler(db, redisClient)

	if !cfg.App.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/health", healthHandler.Health)
	router.GET("/ready", healthHandler.Ready)
	router.GET("/worker/stats", func(c *gin.Context) {
		c.JSON(http.StatusOK, expiryWorker.GetStats())
	})

	v1 := router.Group("/api/v1")
	v1.Use(middleware.Actor(&middleware.ActorConfig{
		Secret: cfg.JWT.Secret,
		Issuer: cfg.JWT.Issuer,
	}))

	writeGuards := []gin.HandlerFunc{}
	if redisClient != nil {
		writeGuards = append(writeGuards, middleware.Idempotency(
			middleware.DefaultIdempotencyConfig(redisClient.Client())))
	}

	regs := v1.Group("/registrations")
	{
		regs.POST("", append(writeGuards, registrationHandler.Create)...)
		regs.POST("/:id/confirm", append(writeGuards, registrationHandler.ConfirmPayment)...)
		regs.POST("/:id/cancel", append(writeGuards, registrationHandler.Cancel)...)
		regs.POST("/:id/refund", append(writeGuards, registrationHandler.Refund)...)
		regs.GET("", registrationHandler.ListMine)
		regs.GET("/:id", registrationHandler.Get)
		regs.GET("/:id/events", registrationHandler.GetEvents)
	}

	wl := v1.Group("/waitlist")
	{
		wl.POST("", append(writeGuards, waitlistHandler.Join)...)
		wl.POST("/:id/accept", append(writeGuards, waitlistHandler.Accept)...)
		wl.POST("/:id/leave", append(writeGuards, waitlistHandler.Leave)...)
		wl.GET("/:id", waitlistHandler.Get)
	}

	sessions := v1.Group("/sessions")
	{
		sessions.GET("/:id/capacity", sessionHandler.GetCapacitySummary)
		sessions.GET("/:id/waitlist/position", waitlistHandler.GetPosition)
	}

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		appLog.Info(fmt.Sprintf("Enrollment service listening on %s", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLog.Fatal(fmt.Sprintf("Failed to start server: %v", err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	appLog.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLog.Fatal(fmt.Sprintf("Server forced to shutdown: %v", err))
	}

	appLog.Info("Server exited gracefully")
}
