package workflows

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tendant/simple-animation-pipeline/pkg/pipeline"
)

func testDeps(enricher PromptEnricher, synth ImageSynthesizer, anim Animator) *jobDeps {
	return &jobDeps{
		enricher:    enricher,
		synthesizer: synth,
		animator:    anim,
		logger:      zap.NewNop().Sugar(),
	}
}

type panickingEnricher struct{}

func (panickingEnricher) Enrich(ctx context.Context, concept string) string {
	panic("template missing")
}

func TestJobState_String(t *testing.T) {
	assert.Equal(t, "enriching", StateEnriching.String())
	assert.Equal(t, "synthesizing", StateSynthesizing.String())
	assert.Equal(t, "animating", StateAnimating.String())
	assert.Equal(t, "done", StateDone.String())
	assert.Equal(t, "failed", StateFailed.String())
	assert.Equal(t, "JobState(42)", JobState(42).String())
}

func TestJobState_IsTerminal(t *testing.T) {
	assert.False(t, StateEnriching.IsTerminal())
	assert.False(t, StateSynthesizing.IsTerminal())
	assert.False(t, StateAnimating.IsTerminal())
	assert.True(t, StateDone.IsTerminal())
	assert.True(t, StateFailed.IsTerminal())
}

func TestEntityJob_HappyPath(t *testing.T) {
	synth := &stubSynthesizer{}
	anim := &stubAnimator{}
	job := newEntityJob(testDeps(&stubEnricher{}, synth, anim), "run-1", "Sun", 42)
	assert.Equal(t, StateEnriching, job.State())

	res := job.Run(context.Background())

	assert.Equal(t, StateDone, job.State())
	assert.Equal(t, pipeline.Succeeded("Sun", 42, "prompt for Sun", "img_Sun", "anim_img_Sun"), res)
	assert.Equal(t, 1, synth.count["Sun"], "exactly one image is requested")
	assert.Equal(t, []string{"animation_Sun_42.gif"}, anim.hints)
}

func TestEntityJob_StepTransitions(t *testing.T) {
	job := newEntityJob(testDeps(&stubEnricher{}, &stubSynthesizer{}, &stubAnimator{}), "run-1", "Moon", 44)
	ctx := context.Background()

	var seen []JobState
	for !job.State().IsTerminal() {
		job.state = job.step(ctx)
		seen = append(seen, job.state)
	}
	assert.Equal(t, []JobState{StateSynthesizing, StateAnimating, StateDone}, seen)
}

func TestEntityJob_EmptyEnrichmentUsesFallback(t *testing.T) {
	enricher := &stubEnricher{prompts: map[string]string{"Earth": "   "}}
	res := newEntityJob(testDeps(enricher, &stubSynthesizer{}, &stubAnimator{}), "run-1", "Earth", 43).Run(context.Background())

	require.True(t, res.IsSuccess())
	assert.Equal(t, "show me Earth, highly detailed, realistic", res.Prompt)
}

func TestEntityJob_PanickingEnricherUsesFallback(t *testing.T) {
	synth := &stubSynthesizer{}
	res := newEntityJob(testDeps(panickingEnricher{}, synth, &stubAnimator{}), "run-1", "Moon", 1).Run(context.Background())

	require.True(t, res.IsSuccess())
	assert.Equal(t, pipeline.FallbackPrompt("Moon"), res.Prompt)
	assert.EqualValues(t, 1, synth.calls.Load())
}

func TestEntityJob_ExtraImagesAreDiscarded(t *testing.T) {
	anim := &stubAnimator{}
	res := newEntityJob(testDeps(&stubEnricher{}, &stubSynthesizer{extra: true}, anim), "run-1", "Sun", 42).Run(context.Background())

	require.True(t, res.IsSuccess())
	assert.Equal(t, "img_Sun", res.ImageRef)
	assert.EqualValues(t, 1, anim.calls.Load())
}

func TestEntityJob_SynthesisFailures(t *testing.T) {
	tests := []struct {
		name  string
		synth *stubSynthesizer
	}{
		{"error", &stubSynthesizer{fail: map[string]bool{"Sun": true}}},
		{"no images", &stubSynthesizer{empty: map[string]bool{"Sun": true}}},
		{"panic", &stubSynthesizer{panics: map[string]bool{"Sun": true}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			anim := &stubAnimator{}
			job := newEntityJob(testDeps(&stubEnricher{}, tt.synth, anim), "run-1", "Sun", 42)

			res := job.Run(context.Background())

			assert.Equal(t, StateFailed, job.State())
			assert.Equal(t, pipeline.Failed("Sun", 42, pipeline.StageSynthesizing, "image generation failed for Sun"), res)
			assert.Zero(t, anim.calls.Load())
		})
	}
}

func TestEntityJob_AnimationFailures(t *testing.T) {
	tests := []struct {
		name string
		anim *stubAnimator
	}{
		{"error", &stubAnimator{fail: map[string]bool{"Sun": true}}},
		{"unsuccessful", &stubAnimator{unsuccessful: map[string]bool{"Sun": true}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := newEntityJob(testDeps(&stubEnricher{}, &stubSynthesizer{}, tt.anim), "run-1", "Sun", 42).Run(context.Background())

			assert.Equal(t, pipeline.StatusFailure, res.Status)
			assert.Equal(t, pipeline.StageAnimating, res.Stage)
			assert.Equal(t, "animation generation failed for Sun", res.Error)
			assert.Empty(t, res.AnimationRef)
		})
	}
}

func TestGuard(t *testing.T) {
	ok := guard(func() (int, error) { return 7, nil })
	assert.False(t, ok.failed())
	assert.Equal(t, 7, ok.value)

	panicked := guard(func() (int, error) { panic("boom") })
	require.True(t, panicked.failed())
	assert.Contains(t, panicked.err.Error(), "boom")
}
