package runner

import (
	"context"
	"os"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tendant/simple-animation-pipeline/internal/config"
	"github.com/tendant/simple-animation-pipeline/internal/dbosruntime"
	"github.com/tendant/simple-animation-pipeline/internal/setup"
	"github.com/tendant/simple-animation-pipeline/internal/workflows"
	"github.com/tendant/simple-animation-pipeline/pkg/pipeline"
)

// ErrRuntimeNotInitialized is returned by the asynchronous methods when the
// runner was created without a database
var ErrRuntimeNotInitialized = workflows.ErrRuntimeNotInitialized

// Config holds the configuration for initializing the pipeline runner
type Config struct {
	DatabaseURL        string // DBOS PostgreSQL connection string; empty runs in-process only
	AppName            string // Application name for DBOS
	QueueName          string // DBOS queue name
	Concurrency        int    // Number of runs executed at once by this process
	ApplicationVersion string // Optional: Override binary hash for version matching

	// Getenv supplies the pipeline settings (OPENAI_API_KEY, OUTPUT_DIR, ...).
	// Nil reads .env and the process environment.
	Getenv func(string) string

	Logger *zap.SugaredLogger
}

// Runner provides a high-level API for running the animation pipeline in
// process, and through DBOS when a database is configured
type Runner struct {
	runtime  *dbosruntime.Runtime
	runner   *workflows.WorkflowRunner
	pipeline *setup.Pipeline
}

// New creates and initializes a new pipeline runner
func New(cfg Config) (*Runner, error) {
	ctx := context.Background()

	var pcfg *config.Config
	var err error
	if cfg.Getenv != nil {
		pcfg, err = config.FromEnv(cfg.Getenv)
	} else {
		pcfg, err = config.Load()
	}
	if err != nil {
		return nil, errors.Wrap(err, "load pipeline config")
	}

	p, err := setup.New(ctx, pcfg, cfg.Logger)
	if err != nil {
		return nil, errors.Wrap(err, "initialize pipeline")
	}

	var dbosRuntime *dbosruntime.Runtime
	if cfg.DatabaseURL != "" {
		dbosRuntime, err = dbosruntime.NewRuntime(ctx, dbosruntime.Config{
			DatabaseURL:        cfg.DatabaseURL,
			AppName:            cfg.AppName,
			QueueName:          cfg.QueueName,
			Concurrency:        cfg.Concurrency,
			ApplicationVersion: cfg.ApplicationVersion,
		})
		if err != nil {
			p.Close()
			return nil, errors.Wrap(err, "initialize DBOS")
		}
	}

	workflowRunner := workflows.NewWorkflowRunner(dbosRuntime)
	p.Register(workflowRunner)

	// Launch DBOS (must be after workflow registration)
	if dbosRuntime != nil {
		if err := dbosRuntime.Launch(); err != nil {
			p.Close()
			return nil, errors.Wrap(err, "launch DBOS")
		}
	}

	return &Runner{
		runtime:  dbosRuntime,
		runner:   workflowRunner,
		pipeline: p,
	}, nil
}

// Animate runs the full pipeline in process and returns its report
func (r *Runner) Animate(ctx context.Context, text string, baseSeed *int64) (*pipeline.Report, error) {
	result, err := r.run(ctx, pipeline.ProcessRequest{Text: text, Job: pipeline.JobAnimation, BaseSeed: baseSeed})
	if err != nil {
		return nil, err
	}
	return result.Report, nil
}

// Concepts previews the concepts and seeds of text in process
func (r *Runner) Concepts(ctx context.Context, text string, baseSeed *int64) (*pipeline.ConceptsResponse, error) {
	result, err := r.run(ctx, pipeline.ProcessRequest{Text: text, Job: pipeline.JobConcepts, BaseSeed: baseSeed})
	if err != nil {
		return nil, err
	}
	if !result.Success {
		return nil, errors.Wrap(workflows.ErrExtractionFailed, result.Error)
	}

	resp := &pipeline.ConceptsResponse{}
	resp.Concepts, _ = result.Outputs["concepts"].([]string)
	resp.Seeds, _ = result.Outputs["seeds"].([]int64)
	return resp, nil
}

// RunAnimation enqueues an animation run and returns its run ID
func (r *Runner) RunAnimation(ctx context.Context, text string, baseSeed *int64) (string, error) {
	return r.runner.RunAsync(ctx, pipeline.ProcessRequest{
		Text:     text,
		Job:      pipeline.JobAnimation,
		BaseSeed: baseSeed,
	})
}

// RunConcepts enqueues a concept preview and returns its run ID
func (r *Runner) RunConcepts(ctx context.Context, text string) (string, error) {
	return r.runner.RunAsync(ctx, pipeline.ProcessRequest{
		Text: text,
		Job:  pipeline.JobConcepts,
	})
}

// Status returns the state of an enqueued run
func (r *Runner) Status(ctx context.Context, runID string) (*pipeline.RunStatus, error) {
	return r.runner.GetStatus(ctx, runID)
}

// Shutdown gracefully shuts down the pipeline runner
func (r *Runner) Shutdown(timeoutSeconds int) {
	if r.runtime != nil {
		r.runtime.Shutdown(time.Duration(timeoutSeconds) * time.Second)
	}
	r.pipeline.Close()
}

func (r *Runner) run(ctx context.Context, req pipeline.ProcessRequest) (*workflows.WorkflowResult, error) {
	return r.runner.Run(&workflows.WorkflowContext{
		Ctx:     ctx,
		Request: req,
		RunID:   uuid.New().String(),
	})
}

// EnvFromMap adapts a map to Config.Getenv, falling back to the process environment
func EnvFromMap(m map[string]string) func(string) string {
	return func(key string) string {
		if v, ok := m[key]; ok {
			return v
		}
		return os.Getenv(key)
	}
}
