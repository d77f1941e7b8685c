package workflows

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/tendant/simple-animation-pipeline/internal/metrics"
	"github.com/tendant/simple-animation-pipeline/pkg/pipeline"
)

// AnimationWorkflow extracts concepts from text and runs one EntityJob per concept,
// at most parallelism at a time, returning an order-preserving report.
type AnimationWorkflow struct {
	source ConceptSource
	deps   *jobDeps

	baseSeed    int64
	parallelism int
}

// Option configures an AnimationWorkflow
type Option func(*AnimationWorkflow)

// WithLogger sets the structured logger
func WithLogger(l *zap.SugaredLogger) Option {
	return func(w *AnimationWorkflow) {
		if l != nil {
			w.deps.logger = l
		}
	}
}

// WithMetrics sets the metrics recorder
func WithMetrics(m *metrics.Recorder) Option {
	return func(w *AnimationWorkflow) { w.deps.metrics = m }
}

// WithBaseSeed sets the base seed used when a request does not carry one
func WithBaseSeed(seed int64) Option {
	return func(w *AnimationWorkflow) { w.baseSeed = seed }
}

// WithParallelism sets the parallelism used when a request does not carry one
func WithParallelism(n int) Option {
	return func(w *AnimationWorkflow) {
		if n > 0 {
			w.parallelism = n
		}
	}
}

// NewAnimationWorkflow creates a new animation workflow from its collaborators
func NewAnimationWorkflow(source ConceptSource, enricher PromptEnricher, synthesizer ImageSynthesizer, animator Animator, opts ...Option) *AnimationWorkflow {
	w := &AnimationWorkflow{
		source: source,
		deps: &jobDeps{
			enricher:    enricher,
			synthesizer: synthesizer,
			animator:    animator,
			logger:      zap.NewNop().Sugar(),
		},
		baseSeed:    pipeline.DefaultBaseSeed,
		parallelism: pipeline.DefaultParallelism,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Name returns the workflow name
func (w *AnimationWorkflow) Name() string {
	return "AnimationWorkflow"
}

// Execute runs the animation workflow for a ProcessRequest
func (w *AnimationWorkflow) Execute(wctx *WorkflowContext) (*WorkflowResult, error) {
	req := wctx.Request
	if strings.TrimSpace(req.Text) == "" {
		err := errors.Wrap(ErrInvalidRequest, "text is required")
		return &WorkflowResult{Success: false, Error: err.Error()}, err
	}

	baseSeed := w.baseSeed
	if req.BaseSeed != nil {
		baseSeed = *req.BaseSeed
	}

	report := w.run(wctx.Ctx, wctx.RunID, req.Text, baseSeed, req.Parallelism)
	result := &WorkflowResult{
		Success: !report.Aborted,
		Report:  report,
	}
	if report.Aborted {
		result.Error = report.AbortReason
	}
	return result, nil
}

// Run processes text end to end. Parallelism values <= 0 select the configured default.
func (w *AnimationWorkflow) Run(ctx context.Context, text string, baseSeed int64, parallelism int) *pipeline.Report {
	return w.run(ctx, uuid.New().String(), text, baseSeed, parallelism)
}

func (w *AnimationWorkflow) run(ctx context.Context, runID, text string, baseSeed int64, parallelism int) *pipeline.Report {
	ctx = pipeline.WithRunID(ctx, runID)
	log := w.deps.logger.With("run_id", runID)
	if parallelism <= 0 {
		parallelism = w.parallelism
	}

	// Step 1: Extract concepts
	log.Infow("Starting pipeline", "base_seed", baseSeed, "parallelism", parallelism)
	concepts, reason := extractConcepts(ctx, w.source, text)
	if reason != "" {
		log.Errorw("Pipeline aborted", "reason", reason)
		w.deps.metrics.Run("aborted")
		return pipeline.AbortedReport(runID, reason)
	}
	log.Infow("Extracted concepts", "concepts", concepts)

	// Steps 2-4: assign seeds and fan out, bounded by parallelism
	results := w.fanOut(ctx, runID, concepts, baseSeed, parallelism)

	// Step 5: results are already in concept order
	report := &pipeline.Report{
		RunID:     runID,
		Concepts:  concepts,
		Results:   results,
		Cancelled: ctx.Err() != nil,
	}

	succeeded, failed := report.Counts()
	outcome := "completed"
	if report.Cancelled {
		outcome = "cancelled"
	}
	w.deps.metrics.Run(outcome)
	log.Infow("Pipeline finished", "succeeded", succeeded, "failed", failed, "cancelled", report.Cancelled)
	return report
}

// extractConcepts calls the concept source and returns a non-empty reason on run-level failure
func extractConcepts(ctx context.Context, source ConceptSource, text string) ([]string, string) {
	res := guard(func() ([]string, error) {
		return source.Extract(ctx, text)
	})

	switch {
	case res.failed():
		return nil, fmt.Sprintf("%s: %v", ErrExtractionFailed, res.err)
	case len(res.value) == 0:
		return nil, fmt.Sprintf("%s: no concepts returned", ErrExtractionFailed)
	case strings.Contains(res.value[0], pipeline.ExtractionErrorMarker):
		return nil, ErrExtractionFailed.Error()
	}

	concepts := make([]string, len(res.value))
	copy(concepts, res.value)
	return concepts, ""
}

// fanOut runs one job per concept and writes each result into the slot of its index
func (w *AnimationWorkflow) fanOut(ctx context.Context, runID string, concepts []string, baseSeed int64, parallelism int) []pipeline.EntityResult {
	results := make([]pipeline.EntityResult, len(concepts))
	sem := semaphore.NewWeighted(int64(parallelism))

	var wg sync.WaitGroup
	for i, concept := range concepts {
		seed := pipeline.SeedFor(baseSeed, i)

		wg.Add(1)
		go func() {
			defer wg.Done()

			if err := sem.Acquire(ctx, 1); err != nil {
				results[i] = w.cancelled(concept, seed)
				return
			}
			defer sem.Release(1)

			if ctx.Err() != nil {
				results[i] = w.cancelled(concept, seed)
				return
			}

			w.deps.metrics.JobStarted()
			defer w.deps.metrics.JobFinished()

			results[i] = newEntityJob(w.deps, runID, concept, seed).Run(ctx)
		}()
	}
	wg.Wait()

	return results
}

func (w *AnimationWorkflow) cancelled(concept string, seed int64) pipeline.EntityResult {
	w.deps.metrics.Entity(string(pipeline.StageQueued), "cancelled")
	return pipeline.Failed(concept, seed, pipeline.StageQueued, fmt.Sprintf("%s for %s", ErrCancelled, concept))
}
