package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder_Counts(t *testing.T) {
	r := NewRecorder()

	r.Run("completed")
	r.Run("completed")
	r.Run("aborted")
	r.Entity("animating", "success")
	r.Entity("synthesizing", "failure")
	r.JobStarted()
	r.JobStarted()
	r.JobFinished()
	r.ObserveStage("synthesizing", 250*time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.runs.WithLabelValues("completed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.runs.WithLabelValues("aborted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.entities.WithLabelValues("synthesizing", "failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.activeJobs))
	assert.Equal(t, 1, testutil.CollectAndCount(r.stageDuration))
}

func TestRecorder_NilIsNoop(t *testing.T) {
	var r *Recorder
	assert.NotPanics(t, func() {
		r.Run("completed")
		r.Entity("animating", "success")
		r.ObserveStage("animating", time.Second)
		r.JobStarted()
		r.JobFinished()
	})
	assert.NotNil(t, r.Handler())
}

func TestRecorder_Handler(t *testing.T) {
	r := NewRecorder()
	r.Run("completed")

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `animation_pipeline_runs_total{outcome="completed"} 1`)
}
