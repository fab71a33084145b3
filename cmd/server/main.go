/*
main.go - Application entry point

PURPOSE:
  Starts the obligation engine: HTTP API plus the daily generation
  scheduler. Handles configuration, dependency injection, and graceful
  shutdown.

STARTUP SEQUENCE:
  1. Load configuration (.env + environment)
  2. Build the logger
  3. Open the store (SQLite or PostgreSQL)
  4. Build notifiers (log, run history, owner inbox, optional Redis)
  5. Build the engine, HTTP router and scheduler
  6. Serve until SIGINT/SIGTERM

COMMAND-LINE FLAGS:
  -env     Env file to load (default: .env)
  -owners  Comma-separated user ids notified when records are generated

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the scheduler (waits for an in-flight run)
  2. Stop accepting new connections
  3. Wait for active requests to complete (30s timeout)
  4. Close store and Redis connections

SEE ALSO:
  - config/config.go: Environment keys
  - api/server.go: Router configuration
  - engine/engine.go: Generation entrypoints
*/
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/warp/obligation-engine/api"
	"github.com/warp/obligation-engine/billing"
	"github.com/warp/obligation-engine/config"
	"github.com/warp/obligation-engine/engine"
	"github.com/warp/obligation-engine/generic"
	"github.com/warp/obligation-engine/logger"
	"github.com/warp/obligation-engine/notify"
	"github.com/warp/obligation-engine/payroll"
	"github.com/warp/obligation-engine/store/postgres"
	"github.com/warp/obligation-engine/store/sqlite"
)

// backend is what both stores provide.
type backend interface {
	api.Store
	billing.TxStore
	payroll.TxStore
	payroll.AttendanceAggregator
	generic.Inbox
}

func main() {
	envFile := flag.String("env", ".env", "Env file to load")
	owners := flag.String("owners", "", "Comma-separated user ids notified when records are generated")
	flag.Parse()

	cfg, err := config.Load(*envFile)
	if err != nil {
		fallback := zerolog.New(os.Stderr)
		fallback.Fatal().Err(err).Msg("load config")
	}

	log := logger.New(logger.Config{Env: cfg.App.Env, Level: cfg.App.LogLevel})
	log = log.With().Str("app", cfg.App.Name).Logger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := openStore(ctx, cfg.DB)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.DB.Driver).Msg("failed to initialize database")
	}
	defer closeStore()

	loc, _ := cfg.Generation.Location()
	precision := int32(cfg.Generation.CurrencyPrecision)
	exec := generic.ExecutionContext{
		Actor:             cfg.Generation.Actor,
		Clock:             generic.SystemClock{},
		Location:          loc,
		CurrencyPrecision: &precision,
	}

	notifiers := notify.Multi{
		notify.LogNotifier{Log: log},
		notify.RunRecorder{Runs: store},
		notify.InboxNotifier{Inbox: store, Recipients: splitList(*owners), Clock: exec.Clock},
	}
	if cfg.Redis.Enabled() {
		rdb, err := notify.NewRedisClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			log.Warn().Err(err).Str("addr", cfg.Redis.Addr).Msg("redis unavailable, summaries will not be published")
		} else {
			defer rdb.Close()
			notifiers = append(notifiers, notify.NewRedisNotifier(rdb, cfg.Redis.Channel))
		}
	}

	eng := engine.New(engine.Options{
		Contracts:   store,
		Employees:   store,
		Attendance:  store,
		Notifier:    notifiers,
		BillPrefix:  cfg.Generation.BillPrefix,
		Concurrency: cfg.Generation.Concurrency,
		Log:         log.With().Str("component", "engine").Logger(),
	})

	handler := api.NewHandler(store, eng, exec, log)
	router := api.NewRouter(handler, nil)

	scheduler := api.NewGenerationScheduler(eng, exec, log)
	scheduler.Enabled = cfg.Scheduler.Enabled
	scheduler.CheckInterval = cfg.Scheduler.Interval
	scheduler.BillingHour = cfg.Scheduler.BillingHour
	scheduler.PayrollHour = cfg.Scheduler.PayrollHour
	scheduler.Start()

	server := &http.Server{
		Addr:         cfg.HTTP.Addr(),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Msg("server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down server")

	scheduler.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}

func openStore(ctx context.Context, cfg config.DBConfig) (backend, func(), error) {
	switch cfg.Driver {
	case "postgres":
		pool, err := postgres.NewPool(ctx, cfg.ConnectionString())
		if err != nil {
			return nil, nil, err
		}
		store, err := postgres.New(ctx, pool)
		if err != nil {
			pool.Close()
			return nil, nil, err
		}
		return store, store.Close, nil
	default:
		store, err := sqlite.New(cfg.Path)
		if err != nil {
			return nil, nil, err
		}
		return store, func() { _ = store.Close() }, nil
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
