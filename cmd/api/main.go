package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wolfman30/realestate-marketplace/cmd/mainconfig"
	"github.com/wolfman30/realestate-marketplace/internal/api/router"
	"github.com/wolfman30/realestate-marketplace/internal/app/bootstrap"
	"github.com/wolfman30/realestate-marketplace/internal/auth"
	appconfig "github.com/wolfman30/realestate-marketplace/internal/config"
	"github.com/wolfman30/realestate-marketplace/internal/contracts"
	"github.com/wolfman30/realestate-marketplace/internal/events"
	httpmiddleware "github.com/wolfman30/realestate-marketplace/internal/http/middleware"
	"github.com/wolfman30/realestate-marketplace/internal/notify"
	"github.com/wolfman30/realestate-marketplace/internal/observability/metrics"
	"github.com/wolfman30/realestate-marketplace/internal/proposals"
	"github.com/wolfman30/realestate-marketplace/pkg/logging"
)

func main() {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	cfg := appconfig.Load()
	logger := logging.NewWithOptions(logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat})
	logger.Info("starting marketplace API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool := connectPostgresPool(ctx, cfg.DatabaseURL, logger)
	if pool != nil {
		defer pool.Close()
	}
	statsDB := openStatsDB(cfg.DatabaseURL, logger)
	if statsDB != nil {
		defer func() { _ = statsDB.Close() }()
	}
	redisClient := bootstrap.OpenRedis(ctx, cfg, logger)
	if redisClient != nil {
		defer func() { _ = redisClient.Close() }()
	}

	awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		logger.Error("failed to load AWS config", "error", err)
		os.Exit(1)
	}
	emailSender, err := bootstrap.BuildEmailSender(cfg, awsCfg, logger)
	if err != nil {
		logger.Error("failed to configure email relay", "error", err)
		os.Exit(1)
	}

	metricsHandler, proposalMetrics, outboxMetrics := setupMetrics()

	hub := notify.NewHub(logger)
	var (
		proposalRepo  proposals.Repository
		parties       proposals.Parties
		inboxStore    notify.Store
		directory     notify.UserDirectory
		contractStore contracts.Store
	)
	if pool != nil {
		proposalRepo = proposals.NewPostgresRepository(pool)
		parties = proposals.NewPostgresParties(pool)
		inboxStore = notify.NewPostgresStore(pool)
		directory = notify.NewPostgresDirectory(pool)
		contractStore = contracts.NewPostgresStore(pool)
	} else {
		logger.Warn("DATABASE_URL not set; using in-memory storage")
		memParties := proposals.NewInMemoryParties()
		memParties.AllowUnknown = true
		proposalRepo = proposals.NewInMemoryRepository()
		parties = memParties
		inboxStore = notify.NewInMemoryStore()
		directory = notify.NewStaticDirectory()
		contractStore = contracts.NewInMemoryStore()
	}

	contractArchive := bootstrap.BuildContractArchive(cfg, awsCfg, logger)
	if contractArchive != nil {
		contractStore = contracts.NewArchivingStore(contractStore, contractArchive, logger)
	}

	inboxOpts := []notify.Option{
		notify.WithPublisher(hub),
		notify.WithEmail(emailSender, directory),
	}
	if feed := bootstrap.NotificationFeed(redisClient, cfg); feed != nil {
		inboxOpts = append(inboxOpts, notify.WithFeed(feed))
	}
	inbox := notify.NewService(inboxStore, logger, inboxOpts...)

	serviceOpts := []proposals.ServiceOption{
		proposals.WithNotifier(inbox),
		proposals.WithContracts(contractStore),
		proposals.WithMetrics(proposalMetrics),
	}
	if stats := statsReader(statsDB, proposalRepo, logger); stats != nil {
		serviceOpts = append(serviceOpts, proposals.WithStats(stats))
	}
	proposalService := proposals.NewService(proposalRepo, parties, logger, serviceOpts...)

	if cfg.AuthJWTSecret == "" {
		logger.Warn("AUTH_JWT_SECRET not set; every /api request will be rejected")
	}
	limiter := httpmiddleware.NewRateLimiter(cfg.ProposalRateLimitRPS, cfg.ProposalRateLimitBurst)

	r := router.New(&router.Config{
		Logger:             logger,
		Verifier:           auth.NewVerifier(cfg.AuthJWTSecret),
		Proposals:          proposals.NewHandler(proposalService, logger),
		Notifications:      notify.NewHandler(inbox, logger),
		Hub:                hub,
		Contracts:          contracts.NewHandler(contractStore, logger).WithArchive(contractArchive),
		ProposalLimiter:    limiter,
		MetricsHandler:     metricsHandler,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		Ready:              readinessCheck(pool),
	})

	var workers sync.WaitGroup
	startWorker := func(name string, run func(context.Context)) {
		workers.Add(1)
		go func() {
			defer workers.Done()
			logger.Info("background worker started", "worker", name)
			run(ctx)
			logger.Info("background worker stopped", "worker", name)
		}()
	}
	if pool != nil {
		deliverer := events.NewDeliverer(events.NewOutboxStore(pool), bootstrap.BuildOutboxHandler(cfg, awsCfg, logger), logger).
			WithBatchSize(int32(cfg.OutboxBatchSize)).
			WithInterval(cfg.OutboxPollInterval).
			WithMaxAttempts(cfg.OutboxMaxAttempts).
			WithMetrics(outboxMetrics)
		startWorker("outbox", deliverer.Start)
	}
	startWorker("notification-sweeper", notify.NewSweeper(inboxStore, logger).WithInterval(cfg.NotificationSweep).Start)
	startWorker("rate-limit-evict", func(ctx context.Context) { evictIdleBuckets(ctx, limiter, 10*time.Minute) })

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}
	workers.Wait()

	logger.Info("server stopped")
	fmt.Println("Server exited gracefully")
}

// setupMetrics registers the service collectors on a dedicated registry.
func setupMetrics() (http.Handler, *metrics.ProposalMetrics, *metrics.OutboxMetrics) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	proposalMetrics := metrics.NewProposalMetrics(reg)
	outboxMetrics := metrics.NewOutboxMetrics(reg)
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), proposalMetrics, outboxMetrics
}

func connectPostgresPool(ctx context.Context, databaseURL string, logger *logging.Logger) *pgxpool.Pool {
	if strings.TrimSpace(databaseURL) == "" {
		return nil
	}
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		logger.Error("failed to create postgres pool", "error", err)
		os.Exit(1)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		logger.Error("failed to reach postgres", "error", err)
		os.Exit(1)
	}
	return pool
}

// openStatsDB opens the database/sql handle used by the aggregate statistics
// query. It shares DATABASE_URL with the pgx pool.
func openStatsDB(databaseURL string, logger *logging.Logger) *sql.DB {
	if strings.TrimSpace(databaseURL) == "" {
		return nil
	}
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		logger.Warn("stats database unavailable", "error", err)
		return nil
	}
	db.SetMaxOpenConns(4)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return db
}

// statsReader picks the source for proposal statistics. Without one the
// stats endpoint answers with an error.
func statsReader(statsDB *sql.DB, repo proposals.Repository, logger *logging.Logger) proposals.StatsReader {
	if statsDB != nil {
		return proposals.NewSQLStats(statsDB)
	}
	if r, ok := repo.(proposals.StatsReader); ok {
		return r
	}
	logger.Warn("proposal statistics disabled; no stats database")
	return nil
}

func readinessCheck(pool *pgxpool.Pool) func(context.Context) error {
	if pool == nil {
		return nil
	}
	return pool.Ping
}

func evictIdleBuckets(ctx context.Context, limiter *httpmiddleware.RateLimiter, idle time.Duration) {
	ticker := time.NewTicker(idle)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			limiter.Evict(now.Add(-idle))
		}
	}
}
