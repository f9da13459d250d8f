package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fenilmodi00/ipo-allotment/config"
	"github.com/fenilmodi00/ipo-allotment/database"
	"github.com/fenilmodi00/ipo-allotment/handlers"
	"github.com/fenilmodi00/ipo-allotment/jobs"
	"github.com/fenilmodi00/ipo-allotment/models"
	"github.com/fenilmodi00/ipo-allotment/services"
	"github.com/fenilmodi00/ipo-allotment/shared"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/sirupsen/logrus"
)

func main() {
	// Load config
	cfg := config.LoadConfig()
	config.ConfigureLogging(cfg)
	rateLimits := config.DefaultRateLimitConfig()

	// Core services; the in-memory state is authoritative, Postgres is optional
	master := services.NewIPOMasterService(services.DefaultSeedEntries())
	history := services.NewHistoryStore(cfg.GetHistoryLimit())
	cache := services.NewAllotmentCache(cfg.GetCacheTTL(), 0)
	registrars := services.NewRegistrarService()

	var databaseCheck func(ctx context.Context) error
	if cfg.DatabaseURL != "" {
		if err := database.Connect(cfg.DatabaseURL); err != nil {
			logrus.WithError(err).Fatal("Failed to connect to database")
		}
		defer database.Close()

		if err := database.Migrate("database/schema.sql"); err != nil {
			logrus.WithError(err).Warn("Migration warning")
		}

		repository := database.NewAllotmentRepository(database.DB)
		master.SetPersistence(repository)
		history.SetPersistence(repository)

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := master.Load(ctx); err != nil {
			logrus.WithError(err).Warn("Failed to hydrate IPO master directory, continuing with seed data")
		}
		if err := history.Load(ctx); err != nil {
			logrus.WithError(err).Warn("Failed to hydrate allotment history")
		}
		cancel()

		databaseCheck = database.HealthCheck
	} else {
		logrus.Warn("DATABASE_URL not set, running with in-memory state only")
	}

	// Outbound HTTP: pooled net/http for registrar lookups, colly for portal listings
	clientFactory := shared.NewHTTPClientFactory(cfg.GetRegistrarTimeout())
	defer clientFactory.CleanupAllClients()

	factory := services.NewRegistrarFactory(services.AdapterOptions{
		Fetcher:  shared.NewStandardFetcher(clientFactory.CreateOptimizedHTTPClient(cfg.GetRegistrarTimeout()), rateLimits.MaxRetries),
		Timeout:  cfg.GetRegistrarTimeout(),
		MinDelay: rateLimits.RegistrarDelay,
	})

	var publisher shared.EventPublisher = shared.NoopPublisher{}
	if cfg.AMQPURL != "" {
		rabbit, err := shared.NewRabbitMQPublisher(cfg.AMQPURL, shared.AllotmentExchange)
		if err != nil {
			logrus.WithError(err).Warn("Failed to connect to RabbitMQ, discovery events will be dropped")
		} else {
			publisher = rabbit
		}
	}
	defer publisher.Close()

	allotmentService := services.NewAllotmentService(master, factory, cache, history, shared.NewSHA256Hasher())
	automationService := services.NewAutomationService(master, registrars, shared.NewCollyFetcher(cfg.GetDiscoveryTimeout()), publisher, cfg.GetDiscoveryTimeout())
	if cfg.UseHeadlessDiscovery() {
		automationService.SetFetcher(models.RegistrarKFintech, shared.NewBrowserFetcher(cfg.GetDiscoveryTimeout(), "select"))
	}

	logrus.WithFields(logrus.Fields{
		"registrars":         factory.SupportedRegistrars(),
		"cache_ttl":          cfg.GetCacheTTL(),
		"history_limit":      history.Limit(),
		"registrar_timeout":  cfg.GetRegistrarTimeout(),
		"registrar_delay":    rateLimits.RegistrarDelay,
		"headless_discovery": cfg.UseHeadlessDiscovery(),
	}).Info("Allotment services initialized")

	// Background jobs
	syncJob := jobs.NewResultReleaseCheckJob(automationService)
	cleanupJob := jobs.NewCacheCleanupJob(cache)

	scheduler := jobs.NewScheduler()
	if err := scheduler.AddJob(cfg.SyncSchedule, syncJob); err != nil {
		logrus.WithError(err).Fatal("Invalid SYNC_SCHEDULE")
	}
	if err := scheduler.AddJob(cfg.CacheCleanupSchedule, cleanupJob); err != nil {
		logrus.WithError(err).Fatal("Invalid CACHE_CLEANUP_SCHEDULE")
	}
	scheduler.Start()
	defer scheduler.Stop()

	// Discover freshly published allotments on launch
	scheduler.RunNow(syncJob)

	// Setup Fiber
	app := fiber.New(fiber.Config{
		AppName:      "ipo-allotment",
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 2 * time.Minute,
	})

	// Middleware
	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(cors.New())

	router := &handlers.Router{
		Allotments: handlers.NewAllotmentHandler(allotmentService),
		IPOs:       handlers.NewIPOHandler(master, registrars, factory),
		Admin:      handlers.NewAdminHandler(master, automationService, allotmentService, registrars),
		Health:     handlers.NewHealthHandler(databaseCheck),
		AdminToken: cfg.AdminToken,
	}
	router.Register(app)

	go func() {
		logrus.Infof("Server starting on port %s", cfg.ServerPort)
		if err := app.Listen(":" + cfg.ServerPort); err != nil {
			logrus.WithError(err).Fatal("Server failed to start")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logrus.Info("Shutting down server")
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		logrus.WithError(err).Error("Server shutdown failed")
	}
	allotmentService.Metrics().LogSummary()
	automationService.Metrics().LogSummary()
}
