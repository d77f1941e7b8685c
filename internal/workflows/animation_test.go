package workflows

import (
	"context"
	"fmt"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/simple-animation-pipeline/internal/metrics"
	"github.com/tendant/simple-animation-pipeline/pkg/pipeline"
)

func newTestWorkflow(src *stubSource, synth *stubSynthesizer, anim *stubAnimator, opts ...Option) (*AnimationWorkflow, *stubEnricher) {
	enricher := &stubEnricher{}
	if anim.tracker != nil {
		enricher.tracker = anim.tracker
	}
	return NewAnimationWorkflow(src, enricher, synth, anim, opts...), enricher
}

func TestAnimationWorkflow_SunEarthMoonExample(t *testing.T) {
	src := &stubSource{concepts: []string{"Sun", "Earth", "Moon"}}
	synth := &stubSynthesizer{fail: map[string]bool{"Earth": true}}
	anim := &stubAnimator{}
	w, _ := newTestWorkflow(src, synth, anim)

	report := w.Run(context.Background(), "The Sun, the Earth and the Moon", 42, 3)

	require.False(t, report.Aborted)
	require.Len(t, report.Results, 3)
	assert.Equal(t, []string{"Sun", "Earth", "Moon"}, report.Concepts)

	assert.Equal(t, pipeline.Succeeded("Sun", 42, "prompt for Sun", "img_Sun", "anim_img_Sun"), report.Results[0])
	assert.Equal(t, pipeline.Failed("Earth", 43, pipeline.StageSynthesizing, "image generation failed for Earth"), report.Results[1])
	assert.Equal(t, pipeline.Succeeded("Moon", 44, "prompt for Moon", "img_Moon", "anim_img_Moon"), report.Results[2])

	assert.Equal(t, int64(42), synth.seedFor("Sun"))
	assert.Equal(t, int64(43), synth.seedFor("Earth"))
	assert.Equal(t, int64(44), synth.seedFor("Moon"))
	assert.EqualValues(t, 2, anim.calls.Load(), "failed entity must not reach the animator")
}

func TestAnimationWorkflow_CollaboratorsSeeRunID(t *testing.T) {
	synth := &stubSynthesizer{}
	w, _ := newTestWorkflow(&stubSource{concepts: []string{"Sun", "Moon"}}, synth, &stubAnimator{})

	report := w.Run(context.Background(), "The Sun and the Moon", 42, 2)
	require.NotEmpty(t, report.RunID)

	synth.mu.Lock()
	defer synth.mu.Unlock()
	assert.Equal(t, report.RunID, synth.runIDs["Sun"])
	assert.Equal(t, report.RunID, synth.runIDs["Moon"])
}

func TestAnimationWorkflow_ReportLengthAndOrder(t *testing.T) {
	for k := 1; k <= 9; k++ {
		t.Run(fmt.Sprintf("k=%d", k), func(t *testing.T) {
			concepts := make([]string, k)
			for i := range concepts {
				concepts[i] = fmt.Sprintf("concept%d", i)
			}
			w, _ := newTestWorkflow(&stubSource{concepts: concepts}, &stubSynthesizer{}, &stubAnimator{})

			report := w.Run(context.Background(), "text", 100, 2)

			require.Len(t, report.Results, k)
			for i, res := range report.Results {
				assert.Equal(t, concepts[i], res.Concept)
				assert.Equal(t, int64(100+i), res.Seed)
				assert.True(t, res.IsSuccess())
			}
		})
	}
}

func TestAnimationWorkflow_SeedsAreDistinctAndReproducible(t *testing.T) {
	concepts := []string{"Sun", "Earth", "Moon", "galaxy", "comet"}

	seedsOf := func() []int64 {
		synth := &stubSynthesizer{}
		w, _ := newTestWorkflow(&stubSource{concepts: concepts}, synth, &stubAnimator{})
		w.Run(context.Background(), "text", 7, 2)

		seeds := make([]int64, len(concepts))
		for i, c := range concepts {
			seeds[i] = synth.seedFor(c)
		}
		return seeds
	}

	first := seedsOf()
	second := seedsOf()

	assert.Equal(t, []int64{7, 8, 9, 10, 11}, first)
	assert.Equal(t, first, second)
}

func TestAnimationWorkflow_EmptyImagesFailsOnlyThatEntity(t *testing.T) {
	synth := &stubSynthesizer{empty: map[string]bool{"Moon": true}}
	w, _ := newTestWorkflow(&stubSource{concepts: []string{"Sun", "Earth", "Moon"}}, synth, &stubAnimator{})

	report := w.Run(context.Background(), "text", 42, 3)

	require.Len(t, report.Results, 3)
	assert.True(t, report.Results[0].IsSuccess())
	assert.True(t, report.Results[1].IsSuccess())
	assert.False(t, report.Results[2].IsSuccess())
	assert.Contains(t, report.Results[2].Error, "Moon")
	assert.Equal(t, "image generation failed for Moon", report.Results[2].Error)
}

func TestAnimationWorkflow_AnimatorFailureIsIsolated(t *testing.T) {
	anim := &stubAnimator{
		unsuccessful: map[string]bool{"Sun": true},
		fail:         map[string]bool{"Moon": true},
	}
	w, _ := newTestWorkflow(&stubSource{concepts: []string{"Sun", "Earth", "Moon"}}, &stubSynthesizer{}, anim)

	report := w.Run(context.Background(), "text", 42, 3)

	require.Len(t, report.Results, 3)
	assert.Equal(t, pipeline.Failed("Sun", 42, pipeline.StageAnimating, "animation generation failed for Sun"), report.Results[0])
	assert.True(t, report.Results[1].IsSuccess())
	assert.Equal(t, pipeline.Failed("Moon", 44, pipeline.StageAnimating, "animation generation failed for Moon"), report.Results[2])
}

func TestAnimationWorkflow_ExtractionFailureAborts(t *testing.T) {
	tests := []struct {
		name string
		src  *stubSource
	}{
		{"error marker", &stubSource{concepts: []string{pipeline.ExtractionErrorMarker}}},
		{"returned error", &stubSource{err: errors.New("openai: 500")}},
		{"empty list", &stubSource{concepts: []string{}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			synth := &stubSynthesizer{}
			anim := &stubAnimator{}
			w, enricher := newTestWorkflow(tt.src, synth, anim)

			report := w.Run(context.Background(), "text", 42, 3)

			assert.True(t, report.Aborted)
			assert.Empty(t, report.Results)
			assert.Contains(t, report.AbortReason, ErrExtractionFailed.Error())
			assert.EqualValues(t, 1, tt.src.calls.Load())
			assert.Zero(t, enricher.calls.Load())
			assert.Zero(t, synth.calls.Load())
			assert.Zero(t, anim.calls.Load())
		})
	}
}

func TestAnimationWorkflow_ConcurrencyBound(t *testing.T) {
	const parallelism = 2
	concepts := []string{"a", "b", "c", "d", "e", "f", "g"}

	tracker := &activeTracker{}
	synth := &stubSynthesizer{delay: func(string) time.Duration { return 30 * time.Millisecond }}
	anim := &stubAnimator{tracker: tracker}
	w, _ := newTestWorkflow(&stubSource{concepts: concepts}, synth, anim)

	report := w.Run(context.Background(), "text", 42, parallelism)

	require.Len(t, report.Results, len(concepts))
	assert.LessOrEqual(t, tracker.maxActive(), parallelism)
	assert.Greater(t, tracker.maxActive(), 1, "jobs should run concurrently")
}

func TestAnimationWorkflow_DefaultParallelism(t *testing.T) {
	tracker := &activeTracker{}
	synth := &stubSynthesizer{delay: func(string) time.Duration { return 20 * time.Millisecond }}
	anim := &stubAnimator{tracker: tracker}
	w, _ := newTestWorkflow(&stubSource{concepts: []string{"a", "b", "c", "d", "e", "f"}}, synth, anim)

	w.Run(context.Background(), "text", 42, 0)

	assert.LessOrEqual(t, tracker.maxActive(), pipeline.DefaultParallelism)
}

func TestAnimationWorkflow_OrderPreservedUnderReverseCompletion(t *testing.T) {
	concepts := []string{"c0", "c1", "c2", "c3", "c4"}
	delays := map[string]time.Duration{}
	for i, c := range concepts {
		delays[c] = time.Duration(len(concepts)-i) * 25 * time.Millisecond
	}

	synth := &stubSynthesizer{delay: func(c string) time.Duration { return delays[c] }}
	anim := &stubAnimator{}
	w, _ := newTestWorkflow(&stubSource{concepts: concepts}, synth, anim)

	report := w.Run(context.Background(), "text", 42, len(concepts))

	assert.Equal(t, []string{"c4", "c3", "c2", "c1", "c0"}, anim.completionOrder())
	require.Len(t, report.Results, len(concepts))
	for i, res := range report.Results {
		assert.Equal(t, concepts[i], res.Concept)
		assert.Equal(t, "img_"+concepts[i], res.ImageRef)
	}
}

func TestAnimationWorkflow_CancellationKeepsCompletedResults(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var blocked sync.WaitGroup
	blocked.Add(2)
	synth := &stubSynthesizer{
		blockOn: map[string]bool{"Earth": true, "Moon": true},
		onCall: func(concept string) {
			if concept != "Sun" {
				blocked.Done()
			}
		},
	}
	anim := &stubAnimator{onDone: func(concept string) {
		if concept == "Sun" {
			blocked.Wait()
			cancel()
		}
	}}
	w, _ := newTestWorkflow(&stubSource{concepts: []string{"Sun", "Earth", "Moon"}}, synth, anim)

	report := w.Run(ctx, "text", 42, 3)

	assert.True(t, report.Cancelled)
	assert.False(t, report.Aborted)
	require.Len(t, report.Results, 3)
	assert.Equal(t, pipeline.Succeeded("Sun", 42, "prompt for Sun", "img_Sun", "anim_img_Sun"), report.Results[0])
	assert.Equal(t, pipeline.Failed("Earth", 43, pipeline.StageSynthesizing, "image generation failed for Earth"), report.Results[1])
	assert.Equal(t, pipeline.Failed("Moon", 44, pipeline.StageSynthesizing, "image generation failed for Moon"), report.Results[2])
}

func TestAnimationWorkflow_CancelledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	synth := &stubSynthesizer{}
	w, _ := newTestWorkflow(&stubSource{concepts: []string{"Sun", "Earth"}}, synth, &stubAnimator{})

	report := w.Run(ctx, "text", 42, 1)

	assert.True(t, report.Cancelled)
	require.Len(t, report.Results, 2)
	for i, res := range report.Results {
		assert.Equal(t, pipeline.StageQueued, res.Stage)
		assert.Equal(t, fmt.Sprintf("entity cancelled before start for %s", res.Concept), res.Error)
		assert.True(t, strings.HasPrefix(res.Error, ErrCancelled.Error()))
		assert.Equal(t, int64(42+i), res.Seed)
	}
	assert.Zero(t, synth.calls.Load())
}

func TestAnimationWorkflow_PanicIsContained(t *testing.T) {
	synth := &stubSynthesizer{panics: map[string]bool{"Earth": true}}
	w, _ := newTestWorkflow(&stubSource{concepts: []string{"Sun", "Earth", "Moon"}}, synth, &stubAnimator{})

	var report *pipeline.Report
	require.NotPanics(t, func() {
		report = w.Run(context.Background(), "text", 42, 3)
	})

	assert.True(t, report.Results[0].IsSuccess())
	assert.Equal(t, "image generation failed for Earth", report.Results[1].Error)
	assert.True(t, report.Results[2].IsSuccess())
}

func TestAnimationWorkflow_RecordsMetrics(t *testing.T) {
	rec := metrics.NewRecorder()
	synth := &stubSynthesizer{fail: map[string]bool{"Earth": true}}
	w, _ := newTestWorkflow(&stubSource{concepts: []string{"Sun", "Earth"}}, synth, &stubAnimator{}, WithMetrics(rec))

	w.Run(context.Background(), "text", 42, 2)

	resp := httptest.NewRecorder()
	rec.Handler().ServeHTTP(resp, httptest.NewRequest("GET", "/metrics", nil))
	body := resp.Body.String()

	assert.Contains(t, body, `animation_pipeline_runs_total{outcome="completed"} 1`)
	assert.Contains(t, body, `animation_pipeline_entities_total{outcome="success",stage="animating"} 1`)
	assert.Contains(t, body, `animation_pipeline_entities_total{outcome="failure",stage="synthesizing"} 1`)
	assert.Contains(t, body, `animation_pipeline_active_jobs 0`)
}

func TestAnimationWorkflow_Execute(t *testing.T) {
	t.Run("rejects empty text", func(t *testing.T) {
		w, _ := newTestWorkflow(&stubSource{}, &stubSynthesizer{}, &stubAnimator{})

		result, err := w.Execute(&WorkflowContext{Ctx: context.Background(), Request: pipeline.ProcessRequest{Job: pipeline.JobAnimation, Text: "  "}, RunID: "run-1"})

		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrInvalidRequest))
		assert.False(t, result.Success)
	})

	t.Run("applies request seed and run id", func(t *testing.T) {
		synth := &stubSynthesizer{}
		w, _ := newTestWorkflow(&stubSource{concepts: []string{"Sun", "Moon"}}, synth, &stubAnimator{}, WithBaseSeed(1))
		seed := int64(500)

		result, err := w.Execute(&WorkflowContext{
			Ctx:     context.Background(),
			Request: pipeline.ProcessRequest{Job: pipeline.JobAnimation, Text: "text", BaseSeed: &seed},
			RunID:   "run-7",
		})

		require.NoError(t, err)
		assert.True(t, result.Success)
		assert.Equal(t, "run-7", result.Report.RunID)
		assert.Equal(t, int64(501), synth.seedFor("Moon"))
	})

	t.Run("uses workflow default seed", func(t *testing.T) {
		synth := &stubSynthesizer{}
		w, _ := newTestWorkflow(&stubSource{concepts: []string{"Sun"}}, synth, &stubAnimator{}, WithBaseSeed(9))

		_, err := w.Execute(&WorkflowContext{Ctx: context.Background(), Request: pipeline.ProcessRequest{Text: "text"}, RunID: "r"})

		require.NoError(t, err)
		assert.Equal(t, int64(9), synth.seedFor("Sun"))
	})

	t.Run("reports abort as unsuccessful", func(t *testing.T) {
		w, _ := newTestWorkflow(&stubSource{concepts: []string{pipeline.ExtractionErrorMarker}}, &stubSynthesizer{}, &stubAnimator{})

		result, err := w.Execute(&WorkflowContext{Ctx: context.Background(), Request: pipeline.ProcessRequest{Text: "text"}, RunID: "r"})

		require.NoError(t, err)
		assert.False(t, result.Success)
		assert.True(t, result.Report.Aborted)
		assert.Equal(t, ErrExtractionFailed.Error(), result.Error)
	})
}
