package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"golang.org/x/sync/errgroup"

	"github.com/soochol/minizaps/internal/api"
	"github.com/soochol/minizaps/internal/config"
	"github.com/soochol/minizaps/internal/connectors"
	"github.com/soochol/minizaps/internal/db"
	"github.com/soochol/minizaps/internal/definition"
	"github.com/soochol/minizaps/internal/logging"
	"github.com/soochol/minizaps/internal/repository"
	"github.com/soochol/minizaps/internal/services"
	"github.com/soochol/minizaps/internal/zaps/ports"
)

const shutdownTimeout = 10 * time.Second

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.LoadDefault()
	}
	return config.Load(path)
}

func serve(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config file (default: ./config.yaml if present)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	logging.Setup(cfg.Logging.Format, cfg.Logging.Level)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := openRunStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	history := services.NewRunHistoryService(store)
	history.CleanupOrphanedRuns(ctx)

	g, gctx := errgroup.WithContext(ctx)

	loader := definition.NewLoader(cfg.Workflows.Dir)
	registry := connectors.NewDefaultRegistry(cfg.Engine.WebhookTimeout)
	signals := services.NewRunSignals()
	limiter := services.NewConcurrencyLimiter(cfg.Scheduler.Limits())
	runner := services.NewRunner(store, loader, registry,
		services.WithSignals(signals),
		services.WithActiveRegistry(services.NewActiveRegistry()),
		services.WithRetryPolicy(cfg.Engine.Retry.Policy()),
		services.WithPausePollInterval(cfg.Engine.PausePollInterval),
		services.WithConcurrencyLimiter(limiter),
	)
	workflowSvc := services.NewWorkflowService(gctx, store, loader, runner, cfg.Engine.DefaultMaxRetries)

	scheduler := services.NewSchedulerService(workflowSvc)
	for _, sched := range cfg.Scheduler.Schedules {
		if err := scheduler.AddSchedule(sched); err != nil {
			return fmt.Errorf("scheduler: %w", err)
		}
	}

	srv := api.NewServer(workflowSvc, history, services.NewStatusController(store, signals), registry, store)
	srv.SetDefinitionLoader(loader)
	srv.SetActiveRegistry(runner.Active())
	srv.SetSchedulerService(scheduler)
	srv.SetConcurrencyLimiter(limiter)

	httpServer := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g.Go(func() error {
		slog.Info("starting minizaps server", "addr", httpServer.Addr, "workflows", cfg.Workflows.Dir, "connectors", registry.List())
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return scheduler.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		slog.Info("shutting down")
		return httpServer.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	workflowSvc.Wait()
	return err
}

// openRunStore returns the in-memory store, mirrored to PostgreSQL when a
// database URL is configured.
func openRunStore(ctx context.Context, cfg *config.Config) (ports.RunStore, func(), error) {
	mem := repository.NewMemoryRunRepositoryWithCapacity(cfg.Engine.MaxRunRecords)
	if cfg.Database.URL == "" {
		slog.Info("no database configured, runs are kept in memory")
		return mem, func() {}, nil
	}

	database, err := db.New(ctx, cfg.Database.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("database: %w", err)
	}
	if err := database.Migrate(ctx); err != nil {
		database.Close()
		return nil, nil, fmt.Errorf("database migrate: %w", err)
	}
	slog.Info("connected to database")
	return repository.NewPersistentRunRepository(mem, database), func() { database.Close() }, nil
}
