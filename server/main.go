package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"mindline/api/routes"
	"mindline/internal/notifications"
	"mindline/internal/patients"
	"mindline/internal/shared/config"
	"mindline/internal/shared/database"
	"mindline/internal/slots"
	"mindline/internal/waitlist"
	"mindline/internal/waterfall"
	"mindline/pkg/logger"
	"mindline/pkg/ratelimit"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	appLogger := logger.GetDefault()

	if err := godotenv.Load(); err != nil {
		if os.Getenv("GIN_MODE") == "release" || os.Getenv("DOCKER_CONTAINER") == "true" {
			appLogger.Info("Production environment: using container environment variables")
		} else {
			appLogger.Info("No .env file found, using system environment variables")
		}
	} else {
		appLogger.Info("Development environment: loaded .env file")
	}

	cfg := config.Load()
	gin.SetMode(cfg.GinMode)

	db, err := database.InitDB(cfg)
	if err != nil {
		appLogger.Error("failed to connect", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	// Rate limiter
	var rateLimiter *ratelimit.RateLimiter
	if cfg.RateLimit.Enabled {
		rateLimiter = ratelimit.NewRateLimiter(db.GetRedisClient(), &ratelimit.Config{
			Enabled:         cfg.RateLimit.Enabled,
			WindowDuration:  cfg.RateLimit.WindowDuration,
			DefaultRequests: cfg.RateLimit.DefaultRequests,
			WebhookRequests: cfg.RateLimit.WebhookRequests,
			StaffRequests:   cfg.RateLimit.StaffRequests,
			AdminRequests:   cfg.RateLimit.AdminRequests,
			HealthRequests:  cfg.RateLimit.HealthRequests,
			WhitelistedIPs:  cfg.RateLimit.WhitelistedIPs,
		})
		appLogger.Info("Rate limiter initialized",
			slog.Duration("window", cfg.RateLimit.WindowDuration),
			slog.Int("default_requests", cfg.RateLimit.DefaultRequests),
		)
	} else {
		appLogger.Info("Rate limiting disabled")
	}

	// Patient directory and waitlist
	patientService := patients.NewService(patients.NewRepository(db.GetPostgreSQL()))
	waitlistService := waitlist.NewService(
		waitlist.NewRepository(db.GetPostgreSQL(), db.GetRedisClient()),
		patientService,
		nil,
	)

	// Outbound messaging: synchronous SMS client for offers, Kafka pipeline
	// for courtesy notices and staff reports.
	smsClient := notifications.NewSMSClient(cfg.SMS)
	deliveryStore := notifications.NewDeliveryStore(db.GetPostgreSQL())

	producerConfig := notifications.DefaultProducerConfig()
	producerConfig.Brokers = cfg.Kafka.Brokers
	producerConfig.MessageTopic = cfg.Kafka.MessageTopic
	producerConfig.DeadLetterTopic = cfg.Kafka.DeadLetterTopic
	producer, err := notifications.NewKafkaMessageProducer(producerConfig)
	if err != nil {
		appLogger.Error("failed to create Kafka producer", slog.Any("error", err))
		os.Exit(1)
	}
	defer producer.Close()

	notificationService := notifications.NewService(smsClient, producer, deliveryStore, patientService, cfg.SMS.StaffNumber)

	consumerCtx, consumerCancel := context.WithCancel(context.Background())
	defer consumerCancel()
	consumer, err := notifications.NewKafkaMessageConsumer(&notifications.ConsumerConfig{
		Brokers:              cfg.Kafka.Brokers,
		GroupID:              cfg.Kafka.ConsumerGroupID,
		Topics:               []string{cfg.Kafka.MessageTopic},
		SessionTimeout:       30 * time.Second,
		HeartbeatInterval:    3 * time.Second,
		MaxProcessingTime:    time.Minute,
		MaxRetries:           3,
		RetryBackoffDuration: time.Second,
	}, smsClient, deliveryStore, producer)
	if err != nil {
		appLogger.Error("failed to create Kafka consumer", slog.Any("error", err))
		os.Exit(1)
	}
	if err := consumer.StartConsumers(consumerCtx, cfg.Kafka.NumWorkers); err != nil {
		appLogger.Error("failed to start Kafka consumers", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := consumer.Stop(); err != nil {
			appLogger.Error("Error stopping message consumer", slog.Any("error", err))
		}
	}()

	// Waterfall engine
	waterfallStore := waterfall.NewStore(db.GetPostgreSQL())
	scheduler := waterfall.NewScheduler(waterfallStore, notificationService, notificationService, cfg.Waterfall.SendRetryLimit)
	waterfallService := waterfall.NewService(
		waterfallStore,
		waitlistService,
		scheduler,
		notificationService,
		waitlist.RankConfig{HighFlexibilityThreshold: cfg.Ranking.HighFlexibilityThreshold},
		cfg.Waterfall.ResponseWindow,
		cfg.Waterfall.OfferInterval,
	)
	reconciler := waterfall.NewReconciler(
		waterfallStore,
		waterfall.NewLocker(db.GetRedisClient()),
		scheduler,
		notificationService,
		notificationService,
		waitlistService,
		waitlistService,
	)
	slotService := slots.NewService(slots.NewRepository(db.GetPostgreSQL()), waterfallService)

	// Background processors
	processorCtx, processorCancel := context.WithCancel(context.Background())
	defer processorCancel()

	tickProcessor := waterfall.NewJobProcessor(scheduler, waterfallStore, &waterfall.JobConfig{
		TickInterval: cfg.Waterfall.TickInterval,
		BatchSize:    200,
	})
	tickProcessor.Start(processorCtx)
	defer tickProcessor.Stop()

	sweepProcessor := waitlist.NewSweepProcessor(waitlistService, &waitlist.SweepConfig{
		Interval: cfg.Waterfall.ExpirySweepInterval,
	})
	sweepProcessor.Start(processorCtx)
	defer sweepProcessor.Stop()

	services := &routes.Services{
		Patients:      patientService,
		Slots:         slotService,
		Waitlist:      waitlistService,
		Waterfall:     waterfallService,
		Reconciler:    reconciler,
		Notifications: notificationService,
	}

	router := setupRouter(cfg, db, rateLimiter, services)

	srv := &http.Server{
		Addr:           cfg.GetServerAddress(),
		Handler:        router,
		ReadTimeout:    cfg.ReadTimeout,
		WriteTimeout:   cfg.WriteTimeout,
		IdleTimeout:    cfg.IdleTimeout,
		MaxHeaderBytes: cfg.MaxHeaderBytes,
	}

	go func() {
		appLogger.Info("Server running",
			slog.String("address", cfg.GetServerAddress()),
			slog.String("health_check", fmt.Sprintf("http://localhost:%s/health", cfg.Port)),
			slog.String("version", cfg.APIVersion),
			slog.Bool("rate_limiting", cfg.RateLimit.Enabled),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Error("Server failed", slog.Any("error", err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	appLogger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		appLogger.Error("Forced shutdown", slog.Any("error", err))
	}

	appLogger.Info("Server exited gracefully")
}

func setupRouter(cfg *config.Config, db *database.DB, rateLimiter *ratelimit.RateLimiter, services *routes.Services) *gin.Engine {
	engine := gin.New()
	appLogger := logger.GetDefault()

	engine.Use(RequestLoggerMiddleware(appLogger), gin.Recovery())

	engine.Use(cors.New(cors.Config{
		AllowOriginFunc: func(origin string) bool {
			return true
		},
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Length", "Content-Type", "Authorization", "X-Webhook-Secret"},
		ExposeHeaders:    []string{"Content-Length", "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	if rateLimiter != nil {
		engine.Use(ratelimit.Middleware(rateLimiter))
	}

	appRouter := routes.NewRouter(cfg, db, services)
	appRouter.SetupRoutes(engine)

	return engine
}

func RequestLoggerMiddleware(l *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		duration := time.Since(start)
		l.LogHTTPRequest(c, duration)
	}
}
