package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"github.com/creditshop/creditshop-api/internal/config"
	"github.com/creditshop/creditshop-api/internal/domain/catalog"
	"github.com/creditshop/creditshop-api/internal/domain/ledger"
	"github.com/creditshop/creditshop-api/internal/domain/notification"
	"github.com/creditshop/creditshop-api/internal/domain/user"
	"github.com/creditshop/creditshop-api/internal/middleware"
	"github.com/creditshop/creditshop-api/internal/pkg/database"
	"github.com/creditshop/creditshop-api/internal/pkg/events"
	"github.com/creditshop/creditshop-api/internal/pkg/imaging"
	"github.com/creditshop/creditshop-api/internal/pkg/jwt"
	"github.com/creditshop/creditshop-api/internal/pkg/lock"
	"github.com/creditshop/creditshop-api/internal/pkg/logger"
	"github.com/creditshop/creditshop-api/internal/pkg/metrics"
	"github.com/creditshop/creditshop-api/internal/pkg/relay"
	pkgresponse "github.com/creditshop/creditshop-api/internal/pkg/response"
	"github.com/creditshop/creditshop-api/internal/pkg/secret"
	"github.com/creditshop/creditshop-api/internal/pkg/storage"
)

// handlers groups everything the router mounts
type handlers struct {
	catalog       *catalog.Handler
	ledger        *ledger.Handler
	users         *user.Handler
	notifications *notification.Handler
	ws            http.Handler
	wsConnections func() int
}

func main() {
	cfg := config.Load()
	logger.Init(logger.Config{
		Level:       cfg.LogLevel,
		Environment: cfg.Env,
		LogFile:     cfg.LogFile,
	})

	log.Info().
		Str("env", cfg.Env).
		Str("port", cfg.Port).
		Msg("Starting CreditShop API")

	db, err := database.NewPostgres(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer database.ClosePostgres(db)

	if cfg.AutoMigrate {
		if err := database.Migrate(context.Background(), db); err != nil {
			log.Fatal().Err(err).Msg("Failed to apply schema")
		}
	}

	redisClient, err := database.NewRedis(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer database.CloseRedis(redisClient)

	metrics.MustRegister()
	jwtService := jwt.NewService(cfg.JWTSecret, cfg.JWTAccessTTL)

	// ---------- Infrastructure ----------
	var store storage.Storage
	if cfg.StorageEnabled() {
		s3Store, err := storage.NewS3Storage(context.Background(), storage.Config{
			Endpoint:  cfg.S3Endpoint,
			Region:    cfg.S3Region,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			Bucket:    cfg.S3Bucket,
			PublicURL: cfg.S3PublicURL,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create S3 storage")
		}
		store = s3Store
	} else {
		log.Warn().Msg("S3 credentials not configured, product files disabled")
	}

	var publisher events.Publisher = events.NopPublisher{}
	if cfg.AMQPURL != "" {
		amqpPublisher, err := events.NewAMQPPublisher(cfg.AMQPURL, cfg.EventsExchange)
		if err != nil {
			log.Error().Err(err).Msg("Failed to connect to event broker, events will be dropped")
		} else {
			defer amqpPublisher.Close()
			publisher = amqpPublisher
		}
	}

	locker := newLocker(redisClient, lock.Options{TTL: cfg.UserLockTTL, Wait: cfg.UserLockWait})
	box := secret.NewBox(cfg.SecretsKey)

	// ---------- Repositories ----------
	userRepo := user.NewRepository(db)
	catalogRepo := catalog.NewRepository(db)
	ledgerRepo := ledger.NewRepository(db)
	notificationRepo := notification.NewRepository(db)

	// ---------- WebSocket hub ----------
	hub := notification.NewHub(redisClient)
	go hub.Run()
	defer hub.Shutdown()

	// ---------- Services ----------
	var dispatcher *notification.RelayDispatcher
	relayClient := relay.NewClient(cfg.RelayBaseURL, time.Duration(cfg.RelayTimeoutSeconds)*time.Second, "creditshop-api")
	if relayClient.Enabled() {
		dispatcher = notification.NewRelayDispatcher(relayClient, box, notificationRepo, userRepo, cfg.RelayMaxAttempts)
	}

	notificationService := notification.NewService(notificationRepo, notification.NewWSPublisher(hub), dispatcher, box)
	catalogService := catalog.NewService(catalogRepo, store, imaging.NewProcessor(imaging.DefaultConfig()))
	ledgerService := ledger.NewService(
		ledgerRepo,
		catalogService,
		userRepo,
		locker,
		notificationService,
		publisher,
		ledger.WithLockTTL(cfg.UserLockTTL),
		ledger.WithHistoryLimit(cfg.HistoryDefaultLimit),
	)
	userService := user.NewService(userRepo, ledgerService)

	// ---------- Scheduled jobs ----------
	scheduler := cron.New()
	if cfg.SweepSchedule != "" {
		if err := ledger.NewSweepJob(ledgerService, 500).Schedule(scheduler, cfg.SweepSchedule); err != nil {
			log.Fatal().Err(err).Str("spec", cfg.SweepSchedule).Msg("Invalid sweep schedule")
		}
	}
	if cfg.NotificationCleanupSchedule != "" {
		cleanup := notification.NewCleanupJob(notificationRepo, cfg.NotificationRetentionDays)
		if err := cleanup.Schedule(scheduler, cfg.NotificationCleanupSchedule); err != nil {
			log.Fatal().Err(err).Str("spec", cfg.NotificationCleanupSchedule).Msg("Invalid cleanup schedule")
		}
	}
	scheduler.Start()

	// ---------- Router ----------
	r := newRouter(cfg, jwtService, handlers{
		catalog:       catalog.NewHandler(catalogService),
		ledger:        ledger.NewHandler(ledgerService, catalogService, cfg.DownloadURLTTL),
		users:         user.NewHandler(userService),
		notifications: notification.NewHandler(notificationService),
		ws:            notification.NewWSHandler(hub, cfg.AllowedOrigins),
		wsConnections: hub.ConnectionCount,
	})

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Msg("HTTP server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	select {
	case <-scheduler.Stop().Done():
	case <-ctx.Done():
		log.Warn().Msg("Scheduled jobs still running at shutdown")
	}
	if dispatcher != nil {
		dispatcher.Wait()
	}

	log.Info().Msg("Server exited properly")
}

func newLocker(client *redis.Client, opts lock.Options) lock.Locker {
	if client == nil {
		log.Warn().Msg("Using in-process user locks; run a single instance")
		return lock.NewLocalLocker(opts)
	}
	return lock.NewRedisLocker(client, opts)
}

func newRouter(cfg *config.Config, jwtService *jwt.Service, h handlers) chi.Router {
	authMiddleware := middleware.Auth(jwtService)

	r := chi.NewRouter()

	r.Use(chimw.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recover)
	r.Use(middleware.CORSHandler(cfg.AllowedOrigins))

	// WebSocket endpoint; token may come as ?token= on the upgrade request
	r.With(authMiddleware).Get("/ws", h.ws.ServeHTTP)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		pkgresponse.OK(w, map[string]interface{}{
			"status":         "ok",
			"version":        "1.0.0",
			"ws_connections": h.wsConnections(),
		})
	})
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(chimw.Compress(5))

		r.Mount("/catalog", h.catalog.Routes())
		r.Mount("/notifications", h.notifications.Routes(authMiddleware))

		r.Group(func(r chi.Router) {
			r.Use(authMiddleware)
			r.Mount("/me", h.users.Routes())
			h.ledger.UserRoutes(r)
		})
	})

	r.Route("/api/admin", func(r chi.Router) {
		r.Use(authMiddleware)
		r.Use(middleware.RequireAdmin())

		h.catalog.AdminRoutes(r)
		h.ledger.AdminRoutes(r)
		h.notifications.AdminRoutes(r)
	})

	return r
}
