package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ledgerkit/ledgerkit-backend/internal/adapter/httpapi"
	"github.com/ledgerkit/ledgerkit-backend/internal/adapter/repository/postgres"
	"github.com/ledgerkit/ledgerkit-backend/internal/config"
	"github.com/ledgerkit/ledgerkit-backend/internal/usecase/action"
	"github.com/ledgerkit/ledgerkit-backend/internal/usecase/engine"
	"github.com/ledgerkit/ledgerkit-backend/internal/usecase/matcher"
	"github.com/ledgerkit/ledgerkit-backend/internal/usecase/retro"
	"github.com/ledgerkit/ledgerkit-backend/internal/usecase/trigger"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// 1. Setup Database
	db, err := postgres.NewDB(cfg.Database.DSN(), postgres.PoolConfig{
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	})
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// 2. Initialize Repositories (Postgres)
	ruleRepo := postgres.NewRuleRepository(db)
	journalRepo := postgres.NewJournalRepository(db)
	jobRepo := postgres.NewJobRepository(db)

	// 3. Initialize Services (Use Cases)
	triggerLibrary := trigger.NewLibrary()
	actionLibrary := action.NewLibrary(journalRepo)
	engineService := engine.NewService(ruleRepo, triggerLibrary, actionLibrary, logger)
	matcherService := matcher.NewService(journalRepo, triggerLibrary, cfg.Matcher.PageSize)
	retroService := retro.NewService(jobRepo)

	// 4. Start the background job worker
	worker := retro.NewWorker(jobRepo, ruleRepo, journalRepo, engineService, logger,
		cfg.Worker.PollInterval, cfg.Worker.PageSize)

	workerCtx, stopWorker := context.WithCancel(context.Background())
	workerDone := make(chan struct{})
	go func() {
		defer close(workerDone)
		worker.Run(workerCtx)
	}()

	// 5. Start HTTP server
	apiServer := httpapi.NewServer(db, ruleRepo, journalRepo, engineService,
		matcherService, retroService, cfg.HTTP.APIToken, logger)

	httpServer := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      apiServer,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("http server listening", "addr", cfg.HTTP.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)

	sig := <-sigChan
	logger.Info("shutting down", "signal", sig.String())

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}

	stopWorker()
	<-workerDone
	logger.Info("server stopped")
}
