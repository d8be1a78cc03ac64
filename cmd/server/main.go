package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/trackfleet/logistics-core/internal/archive"
	"github.com/trackfleet/logistics-core/internal/config"
	"github.com/trackfleet/logistics-core/internal/dashboard"
	"github.com/trackfleet/logistics-core/internal/db"
	"github.com/trackfleet/logistics-core/internal/dispatch"
	"github.com/trackfleet/logistics-core/internal/health"
	"github.com/trackfleet/logistics-core/internal/jobs"
	"github.com/trackfleet/logistics-core/internal/metrics"
	"github.com/trackfleet/logistics-core/internal/queue"
	"github.com/trackfleet/logistics-core/internal/ratelimiter"
	"github.com/trackfleet/logistics-core/internal/realtime"
	"github.com/trackfleet/logistics-core/internal/repository"
	"github.com/trackfleet/logistics-core/internal/scheduler"
	"github.com/trackfleet/logistics-core/internal/store/mongostore"
	"github.com/trackfleet/logistics-core/internal/store/redisstore"
	"github.com/trackfleet/logistics-core/internal/tenant"
)

func main() {
	_ = godotenv.Load()

	logger, _ := zap.NewProduction()
	defer logger.Sync() //nolint:errcheck

	// ---- configuration ----
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}

	// ---- backing stores ----
	ctx := context.Background()
	pool, err := db.Connect(ctx, cfg)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer pool.Close()

	if err := db.Migrate(cfg.DatabaseURL); err != nil {
		logger.Fatal("failed to run migrations", zap.Error(err))
	}
	logger.Info("database migrations applied")

	redis := redisstore.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	defer redis.Close() //nolint:errcheck

	mongo, err := mongostore.Connect(ctx, cfg.MongoURI, cfg.MongoDatabase)
	if err != nil {
		logger.Fatal("failed to connect to mongodb", zap.Error(err))
	}
	defer mongo.Close(ctx) //nolint:errcheck

	// ---- metrics ----
	promReg := prometheus.NewRegistry()
	m := metrics.New(promReg)

	// ---- repositories ----
	notifRepo := repository.NewPgNotificationRepo(pool)
	tenantRepo := repository.NewPgTenantRepo(pool)
	dirRepo := repository.NewPgDirectoryRepo(pool)
	billingRepo := repository.NewPgBillingRepo(pool)
	fleetRepo := repository.NewPgFleetRepo(pool)
	sessionRepo := repository.NewPgSessionRepo(pool)
	statsRepo := repository.NewPgStatsRepo(pool)

	// ---- realtime hub ----
	hub := realtime.NewHub(fleetRepo, redis, logger, m.HubHooks())

	// ---- notification pipeline ----
	var emailSink dispatch.EmailSink
	if cfg.EmailWebhookURL != "" {
		emailSink = dispatch.NewWebhookEmailSink(cfg.EmailWebhookURL, cfg.EmailAPIKey, 10*time.Second)
	}
	var smsSink dispatch.SMSSink
	if cfg.SMSWebhookURL != "" {
		smsSink = dispatch.NewWebhookSMSSink(cfg.SMSWebhookURL, cfg.SMSAPIKey, 10*time.Second)
	}

	limiter := ratelimiter.New(cfg.RateLimit)
	dispatcher := dispatch.New(
		notifRepo,
		dirRepo,
		dispatch.NewRedisSubscriptions(redis),
		hub,
		emailSink,
		smsSink,
		dispatch.NewWebPushSink(10*time.Second),
		limiter,
		logger,
		m.DispatchHooks(),
	)

	q := queue.New(redis, logger, m.QueueHooks())
	notifier := queue.NewNotifier(q, dispatcher, logger)
	runner := queue.NewRunner(q, dispatcher, cfg.QueueDrainMax, logger)

	// ---- projections and maintenance ----
	projection := dashboard.NewProjection(statsRepo, redis, hub, logger)

	archiver := archive.NewArchiver(mongo, []archive.Source{
		{Name: "tracking", Collection: "tracking_points", ArchiveCollection: "tracking_points_archive",
			TimeField: "recorded_at", Retention: cfg.TrackingRetention},
		{Name: "telemetry", Collection: "telemetry", ArchiveCollection: "telemetry_archive",
			TimeField: "recorded_at", Retention: cfg.TelemetryRetention},
		{Name: "audit", Collection: "audit_entries", ArchiveCollection: "audit_entries_archive",
			TimeField: "created_at", Retention: cfg.AuditRetention},
	}, logger)
	files := archive.NewFileRotator(cfg.LogDir, cfg.TempDir, logger)

	probes := []health.Probe{
		{Name: "postgres", Check: func(ctx context.Context) error { return pool.Ping(ctx) }},
		{Name: "mongo", Check: mongo.Ping},
		{Name: "redis", Check: redis.Ping},
	}
	if cfg.MLServiceURL != "" {
		probes = append(probes, health.HTTPProbe("ml_service", cfg.MLServiceURL+"/health"))
	}
	monitor := health.NewMonitor(probes, redis, hub, logger)

	// ---- job registration ----
	deps := jobs.Deps{
		Logger:    logger,
		Cfg:       cfg,
		Tenants:   tenant.NewIterator(tenantRepo, logger),
		Notifier:  notifier,
		Queue:     runner,
		Notifs:    notifRepo,
		Billing:   billingRepo,
		Fleet:     fleetRepo,
		Directory: dirRepo,
		Sessions:  sessionRepo,
		Stats:     statsRepo,
		Docs:      mongo,
		Cache:     redis,
		Dashboard: projection,
		Archiver:  archiver,
		Owners:    fleetRepo,
		Files:     files,
		Health:    monitor,
	}

	reg := scheduler.NewRegistry(logger)
	if err := deps.RegisterAll(reg); err != nil {
		logger.Fatal("failed to register jobs", zap.Error(err))
	}

	sched := scheduler.New(reg, scheduler.SystemClock(), cfg.ShutdownGrace, logger, m.SchedulerHooks())

	schedCtx, cancelSched := context.WithCancel(ctx)
	defer cancelSched()
	schedDone := make(chan struct{})
	go func() {
		defer close(schedDone)
		sched.Run(schedCtx)
	}()

	// ---- HTTP server ----
	mux := http.NewServeMux()
	// Token verification belongs to the auth service; until its verifier
	// is wired here, connections are anonymous and restricted to public
	// tracking rooms.
	mux.Handle("/ws", realtime.NewServer(hub, nil, logger))
	mux.Handle("/metrics", promhttp.HandlerFor(promReg, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		snap, err := monitor.Latest(r.Context())
		if err != nil || !snap.Healthy() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		m.ObserveHealth(snap)
		w.WriteHeader(http.StatusOK)
	})

	srv := &http.Server{
		Addr:        ":" + cfg.HTTPPort,
		Handler:     mux,
		ReadTimeout: cfg.ReadTimeout,
		// Websocket upgrades need an unbounded write window.
		WriteTimeout: 0,
	}

	go func() {
		logger.Info("server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	// ---- graceful shutdown ----
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutdown signal received")

	// 1. Stop accepting new HTTP requests and websocket upgrades.
	shutdownCtx, shutdownCancel := context.WithTimeout(ctx, cfg.ShutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", zap.Error(err))
	}

	// 2. Stop the scheduler; it cancels running handlers and waits out
	// the grace window itself.
	cancelSched()
	<-schedDone

	logger.Info("server stopped cleanly")
}
