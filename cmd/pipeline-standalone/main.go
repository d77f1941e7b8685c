package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tendant/simple-animation-pipeline/internal/config"
	"github.com/tendant/simple-animation-pipeline/internal/handlers"
	"github.com/tendant/simple-animation-pipeline/internal/logger"
	"github.com/tendant/simple-animation-pipeline/internal/setup"
	"github.com/tendant/simple-animation-pipeline/internal/workflows"
	"github.com/tendant/simple-animation-pipeline/pkg/pipeline"
)

// Standalone pipeline server for quick testing
// Runs each request synchronously; artifacts go to OUTPUT_DIR
// No database needed
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

	log.Infow("Pipeline standalone server",
		"mode", "embedded",
		"storage", cfg.StorageBackend,
		"output_dir", cfg.OutputDir,
		"http_addr", cfg.HTTPAddr,
	)

	p, err := setup.New(context.Background(), cfg, log)
	if err != nil {
		log.Fatalw("Failed to initialize pipeline", "error", err)
	}
	defer p.Close()

	// Initialize workflow runner (synchronous only)
	workflowRunner := workflows.NewWorkflowRunner(nil)
	p.Register(workflowRunner)
	log.Infow("Registered workflows",
		pipeline.JobAnimation, p.Animation.Name(),
		pipeline.JobConcepts, p.Concepts.Name(),
	)

	mux := http.NewServeMux()
	handlers.RegisterSync(mux, handlers.NewSyncHandler(workflowRunner, log.Named("http")), p.Metrics.Handler())

	server := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: mux,
	}

	// Start server in goroutine
	go func() {
		log.Infow("Pipeline server ready", "addr", cfg.HTTPAddr)
		log.Info(`Quick test:
  curl -X POST http://localhost:8080/v1/animate -d '{"text":"The Sun warms the Earth"}'

Available endpoints:
  GET  /health        - Health check
  POST /v1/animate    - Run the full pipeline and return the report
  POST /v1/concepts   - Preview concepts and seeds
  GET  /metrics       - Prometheus metrics`)

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalw("Server failed", "error", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	// In-flight runs observe request cancellation; entities not yet started are reported as cancelled
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Errorw("Server forced to shutdown", "error", err)
	}

	log.Info("Server stopped")
}
