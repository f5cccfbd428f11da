// File: cmd/app/main.go
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"poetry-pipeline/internal/config"
	"poetry-pipeline/internal/infra/api"
	"poetry-pipeline/internal/infra/api/apiv1"
	pg "poetry-pipeline/internal/infra/db/postgres"
	"poetry-pipeline/internal/infra/logging"
	"poetry-pipeline/internal/infra/metrics"
	red "poetry-pipeline/internal/infra/redis"
	"poetry-pipeline/internal/infra/sched"
	"poetry-pipeline/internal/infra/worker"
	"poetry-pipeline/internal/usecase"
)

// set with -ldflags "-X main.version=... -X main.commit=..."
var (
	version = "dev"
	commit  = "none"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ---- CLI flags ----
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "console logging and verbose output")
	noWorker := flag.Bool("api-only", false, "serve the operator API without consuming jobs")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	metrics.MustRegister()
	metrics.SetBuildInfo(version, commit)
	logger.Info().Str("version", version).Str("commit", commit).Bool("dev", cfg.Runtime.Dev).Msg("starting poetry pipeline")

	// ---- Postgres ----
	pool, err := pg.ConnectPostgres(ctx, cfg.Database.URL, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres")
	}
	defer pool.Close()

	// ---- Redis ----
	redisClient, err := red.NewClient(ctx, &cfg.Redis, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis")
	}
	defer redisClient.Close()
	broker := red.NewBroker(redisClient, red.BrokerOptions{
		Queue:         cfg.Queue.Name,
		Attempts:      cfg.Queue.Attempts,
		Backoff:       cfg.Queue.Backoff,
		KeepCompleted: cfg.Queue.KeepCompleted,
		KeepFailed:    cfg.Queue.KeepFailed,
		CancelTTL:     cfg.Redis.TTL,
	}, logger)
	locker := red.NewLocker(redisClient)
	rateLimiter := red.NewRateLimiter(redisClient)

	// ---- Repositories ----
	repos := pg.NewRepositories(pool)

	// ---- Providers ----
	providers, err := buildProviders(ctx, cfg, repos, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("providers")
	}

	// ---- Use cases ----
	agent := buildAgent(cfg, repos, providers, logger)
	jobUC := usecase.NewJobUseCase(repos.Jobs, repos.Logs, broker, logger)

	// ---- Worker ----
	workerPool := worker.NewPool(cfg.Queue.Concurrency, logger)
	if !*noWorker {
		processor := worker.NewJobProcessor(broker, locker, repos.Jobs, agent, cfg.Redis.TTL, cfg.Queue.PollInterval, logger)
		workerPool.Start(ctx)
		go processor.Start(ctx, workerPool)
	}

	// ---- Auto-generate ----
	var autoGen *sched.AutoGenerator
	if cfg.Scheduler.Enabled {
		autoGen = sched.NewAutoGenerator(jobUC, cfg.Scheduler.MaxBacklog, providers.SourceModels, logger)
		if err := autoGen.Start(cfg.Scheduler.AutoGenerateCron); err != nil {
			logger.Fatal().Err(err).Msg("auto-generate schedule")
		}
	}

	// ---- Pool stats ----
	go func() {
		t := time.NewTicker(15 * time.Second)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				s := pool.Stat()
				metrics.SetDBPoolStats(s.TotalConns(), s.IdleConns(), s.AcquiredConns())
			}
		}
	}()

	// ---- Operator HTTP API ----
	srv := apiv1.NewServer(jobUC, rateLimiter, cfg.HTTP.SubmitLimit, logger)
	handler := api.NewRouter(srv, api.RouterOptions{
		AdminToken: cfg.HTTP.AdminToken,
		Timeout:    cfg.HTTP.Timeout,
		Checks: map[string]api.HealthChecker{
			"postgres": pool.Ping,
			"redis":    redisClient.Ping,
		},
	}, logger)
	server := &http.Server{Addr: fmt.Sprintf(":%d", cfg.HTTP.Port), Handler: handler, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		logger.Info().Str("addr", server.Addr).Msg("operator api listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("http server error")
		}
	}()

	// ---- Graceful shutdown ----
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	<-sigc
	logger.Info().Msg("shutdown requested")

	if autoGen != nil {
		autoGen.Stop()
	}
	shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
	defer stop()
	_ = server.Shutdown(shutdownCtx)

	// running jobs see a cancelled context and are left for stalled recovery
	cancel()
	workerPool.Stop()
	logger.Info().Msg("bye")
}
