package workflows

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/tendant/simple-animation-pipeline/internal/metrics"
	"github.com/tendant/simple-animation-pipeline/pkg/pipeline"
)

// JobState is a state of the per-entity state machine
type JobState int

const (
	StateEnriching JobState = iota
	StateSynthesizing
	StateAnimating
	StateDone
	StateFailed
)

func (s JobState) String() string {
	switch s {
	case StateEnriching:
		return "enriching"
	case StateSynthesizing:
		return "synthesizing"
	case StateAnimating:
		return "animating"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("JobState(%d)", int(s))
	}
}

// IsTerminal reports whether the state is terminal (finished).
func (s JobState) IsTerminal() bool {
	return s == StateDone || s == StateFailed
}

// stageResult is the tagged outcome of one stage call
type stageResult[T any] struct {
	value T
	err   error
}

func (r stageResult[T]) failed() bool { return r.err != nil }

// guard calls fn and converts a returned error or a panic into a failed stageResult
func guard[T any](fn func() (T, error)) (res stageResult[T]) {
	defer func() {
		if p := recover(); p != nil {
			res = stageResult[T]{err: errors.Newf("panic: %v", p)}
		}
	}()
	v, err := fn()
	return stageResult[T]{value: v, err: err}
}

// jobDeps are the collaborators shared by every job of a run; they are read-only
type jobDeps struct {
	enricher    PromptEnricher
	synthesizer ImageSynthesizer
	animator    Animator
	logger      *zap.SugaredLogger
	metrics     *metrics.Recorder
}

// EntityJob sequences enrichment, synthesis and animation for one concept.
// Every failure is converted into a failure EntityResult; Run never panics.
type EntityJob struct {
	deps *jobDeps
	log  *zap.SugaredLogger

	concept string
	seed    int64
	state   JobState

	prompt       string
	imageRef     string
	animationRef string

	failedStage pipeline.Stage
	failure     string
}

func newEntityJob(deps *jobDeps, runID, concept string, seed int64) *EntityJob {
	return &EntityJob{
		deps:    deps,
		log:     deps.logger.With("run_id", runID, "concept", concept, "seed", seed),
		concept: concept,
		seed:    seed,
		state:   StateEnriching,
	}
}

// State returns the current state
func (j *EntityJob) State() JobState {
	return j.state
}

// Run drives the job to a terminal state and returns its result
func (j *EntityJob) Run(ctx context.Context) pipeline.EntityResult {
	for !j.state.IsTerminal() {
		j.state = j.step(ctx)
	}

	if j.state == StateFailed {
		j.deps.metrics.Entity(string(j.failedStage), "failure")
		return pipeline.Failed(j.concept, j.seed, j.failedStage, j.failure)
	}

	j.deps.metrics.Entity(string(pipeline.StageAnimating), "success")
	j.log.Infow("Entity completed", "image", j.imageRef, "animation", j.animationRef)
	return pipeline.Succeeded(j.concept, j.seed, j.prompt, j.imageRef, j.animationRef)
}

func (j *EntityJob) step(ctx context.Context) JobState {
	switch j.state {
	case StateEnriching:
		j.prompt = j.enrich(ctx)
		j.log.Debugw("Enriched prompt", "prompt", j.prompt)
		return StateSynthesizing

	case StateSynthesizing:
		res := j.synthesize(ctx)
		if res.failed() {
			return j.fail(pipeline.StageSynthesizing, fmt.Sprintf("image generation failed for %s", j.concept), res.err)
		}
		j.imageRef = res.value
		j.log.Debugw("Generated image", "image", j.imageRef)
		return StateAnimating

	case StateAnimating:
		res := j.animate(ctx)
		if res.failed() {
			return j.fail(pipeline.StageAnimating, fmt.Sprintf("animation generation failed for %s", j.concept), res.err)
		}
		j.animationRef = res.value
		return StateDone
	}

	return j.fail(pipeline.Stage(j.state.String()), fmt.Sprintf("invalid job state %s for %s", j.state, j.concept), nil)
}

func (j *EntityJob) fail(stage pipeline.Stage, message string, cause error) JobState {
	j.failedStage = stage
	j.failure = message
	j.log.Warnw("Entity failed", "stage", stage, "error", cause)
	return StateFailed
}

// enrich never fails; an empty prompt or a panicking enricher yields the fallback prompt
func (j *EntityJob) enrich(ctx context.Context) string {
	start := time.Now()
	res := guard(func() (string, error) {
		return j.deps.enricher.Enrich(ctx, j.concept), nil
	})
	j.deps.metrics.ObserveStage(string(pipeline.StageEnriching), time.Since(start))

	if res.failed() || strings.TrimSpace(res.value) == "" {
		j.log.Warnw("Enrichment degraded to fallback prompt", "error", res.err)
		return pipeline.FallbackPrompt(j.concept)
	}
	return res.value
}

// synthesize requests exactly one image and keeps the first reference
func (j *EntityJob) synthesize(ctx context.Context) stageResult[string] {
	start := time.Now()
	res := guard(func() ([]string, error) {
		return j.deps.synthesizer.Generate(ctx, j.prompt, j.seed, 1)
	})
	j.deps.metrics.ObserveStage(string(pipeline.StageSynthesizing), time.Since(start))

	if res.failed() {
		return stageResult[string]{err: errors.Mark(res.err, ErrImageGeneration)}
	}
	if len(res.value) == 0 {
		return stageResult[string]{err: errors.Wrap(ErrImageGeneration, "no images returned")}
	}
	return stageResult[string]{value: res.value[0]}
}

func (j *EntityJob) animate(ctx context.Context) stageResult[string] {
	type animation struct {
		ref string
		ok  bool
	}

	start := time.Now()
	res := guard(func() (animation, error) {
		ref, ok, err := j.deps.animator.Animate(ctx, j.imageRef, j.prompt, j.seed, pipeline.AnimationFilename(j.concept, j.seed))
		return animation{ref: ref, ok: ok}, err
	})
	j.deps.metrics.ObserveStage(string(pipeline.StageAnimating), time.Since(start))

	if res.failed() {
		return stageResult[string]{err: errors.Mark(res.err, ErrAnimation)}
	}
	if !res.value.ok {
		return stageResult[string]{err: errors.Wrap(ErrAnimation, "animator reported failure")}
	}
	return stageResult[string]{value: res.value.ref}
}
