package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tendant/simple-animation-pipeline/internal/config"
	"github.com/tendant/simple-animation-pipeline/internal/dbosruntime"
	"github.com/tendant/simple-animation-pipeline/internal/dedupe"
	"github.com/tendant/simple-animation-pipeline/internal/handlers"
	"github.com/tendant/simple-animation-pipeline/internal/logger"
	"github.com/tendant/simple-animation-pipeline/internal/setup"
	"github.com/tendant/simple-animation-pipeline/internal/workflows"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	log, err := logger.Initialize(cfg.LogJSON, cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	ctx := context.Background()

	p, err := setup.New(ctx, cfg, log)
	if err != nil {
		log.Fatalw("Failed to initialize pipeline", "error", err)
	}
	defer p.Close()

	// Initialize DBOS runtime (required)
	dbosRuntime, err := dbosruntime.NewRuntime(ctx, dbosruntime.Config{
		DatabaseURL:        cfg.DBOSDatabaseURL,
		AppName:            "pipeline-worker",
		QueueName:          cfg.DBOSQueueName,
		Concurrency:        cfg.DBOSConcurrency,
		ApplicationVersion: cfg.DBOSApplicationVersion,
	})
	if err != nil {
		log.Fatalw("Failed to initialize DBOS", "error", err)
	}

	// Initialize workflow runner with DBOS support (registers workflows with DBOS)
	workflowRunner := workflows.NewWorkflowRunner(dbosRuntime)
	p.Register(workflowRunner)

	// Launch DBOS (must be done after workflow registration)
	if err := dbosRuntime.Launch(); err != nil {
		log.Fatalw("Failed to launch DBOS", "error", err)
	}
	defer dbosRuntime.Shutdown(10 * time.Second)

	log.Infow("DBOS runtime initialized",
		"queue", dbosRuntime.QueueName(),
		"concurrency", dbosRuntime.Concurrency(),
	)

	// Submission ledger shares the DBOS system database
	var ledger handlers.SubmissionRecorder
	tracker, err := dedupe.NewTracker(ctx, dbosRuntime.DB(), log.Named("dedupe"))
	if err != nil {
		log.Warnw("Submission ledger unavailable; dedupe counts disabled", "error", err)
	} else {
		ledger = tracker
	}

	mux := http.NewServeMux()
	asyncHandler := handlers.NewAsyncHandler(workflowRunner, ledger, cfg.BaseSeed, log.Named("http"))
	handlers.RegisterAsync(mux, asyncHandler, p.Metrics.Handler())

	server := &http.Server{
		Addr:    cfg.WorkerHTTPAddr,
		Handler: mux,
	}

	// Start server in goroutine
	go func() {
		log.Infow("Pipeline worker starting", "addr", cfg.WorkerHTTPAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalw("Server failed", "error", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Errorw("Server forced to shutdown", "error", err)
	}

	log.Info("Server stopped")
}
