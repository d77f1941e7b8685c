package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/tendant/simple-animation-pipeline/internal/dbosruntime"
	"github.com/tendant/simple-animation-pipeline/internal/dedupe"
	"github.com/tendant/simple-animation-pipeline/internal/workflows"
	"github.com/tendant/simple-animation-pipeline/pkg/pipeline"
)

// AsyncRunner enqueues workflows and reports their status
type AsyncRunner interface {
	RunAsync(ctx context.Context, req pipeline.ProcessRequest) (string, error)
	GetStatus(ctx context.Context, runID string) (*workflows.WorkflowStatus, error)
}

// SubmissionRecorder counts repeated submissions
type SubmissionRecorder interface {
	Record(ctx context.Context, s dedupe.Submission) (int, error)
	GetSeenCount(ctx context.Context, text, job string) (int, error)
}

// AsyncHandler handles asynchronous workflow requests
type AsyncHandler struct {
	runner   AsyncRunner
	ledger   SubmissionRecorder
	baseSeed int64
	logger   *zap.SugaredLogger
}

// NewAsyncHandler creates a new async handler; ledger may be nil
func NewAsyncHandler(runner AsyncRunner, ledger SubmissionRecorder, baseSeed int64, logger *zap.SugaredLogger) *AsyncHandler {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &AsyncHandler{
		runner:   runner,
		ledger:   ledger,
		baseSeed: baseSeed,
		logger:   logger,
	}
}

// HandleProcessAsync handles POST /v1/process - enqueues workflow and returns immediately
func (h *AsyncHandler) HandleProcessAsync(w http.ResponseWriter, r *http.Request) {
	var req pipeline.ProcessRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		writeError(w, http.StatusBadRequest, "text is required")
		return
	}
	if req.Job == "" {
		req.Job = pipeline.JobAnimation
	}

	runID, err := h.runner.RunAsync(r.Context(), req)
	if err != nil {
		h.logger.Errorw("Failed to enqueue workflow", "job", req.Job, "error", err)
		switch {
		case errors.Is(err, workflows.ErrWorkflowNotFound):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, workflows.ErrRuntimeNotInitialized):
			writeError(w, http.StatusServiceUnavailable, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, "failed to enqueue workflow: "+err.Error())
		}
		return
	}

	// The ledger is advisory; a failure to record never rejects an enqueued run
	seen := 0
	if h.ledger != nil {
		seed := h.baseSeed
		if req.BaseSeed != nil {
			seed = *req.BaseSeed
		}
		seen, err = h.ledger.Record(r.Context(), dedupe.Submission{Text: req.Text, Job: req.Job, BaseSeed: seed, RunID: runID})
		if err != nil {
			h.logger.Warnw("Failed to record submission", "run_id", runID, "error", err)
		}
	}

	h.logger.Infow("Workflow enqueued", "run_id", runID, "job", req.Job, "dedupe_seen_count", seen)
	writeJSON(w, http.StatusAccepted, pipeline.ProcessResponse{
		RunID:           runID,
		DedupeSeenCount: seen,
	})
}

// HandleStatus handles GET /v1/runs/{id} - returns workflow status
func (h *AsyncHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("id")
	if runID == "" {
		writeError(w, http.StatusBadRequest, "run id is required")
		return
	}

	status, err := h.runner.GetStatus(r.Context(), runID)
	if err != nil {
		switch {
		case errors.Is(err, dbosruntime.ErrRunNotFound):
			writeError(w, http.StatusNotFound, "run not found")
		case errors.Is(err, workflows.ErrRuntimeNotInitialized):
			writeError(w, http.StatusServiceUnavailable, err.Error())
		default:
			h.logger.Errorw("Failed to get workflow status", "run_id", runID, "error", err)
			writeError(w, http.StatusInternalServerError, "failed to get workflow status")
		}
		return
	}

	writeJSON(w, http.StatusOK, status)
}

// HandleSeen handles POST /v1/submissions/seen - reports how often a text was submitted
func (h *AsyncHandler) HandleSeen(w http.ResponseWriter, r *http.Request) {
	if h.ledger == nil {
		writeError(w, http.StatusServiceUnavailable, "submission ledger is not configured")
		return
	}

	var req pipeline.SeenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		writeError(w, http.StatusBadRequest, "text is required")
		return
	}
	if req.Job == "" {
		req.Job = pipeline.JobAnimation
	}

	seen, err := h.ledger.GetSeenCount(r.Context(), req.Text, req.Job)
	if err != nil {
		h.logger.Errorw("Failed to read submission count", "job", req.Job, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to read submission count")
		return
	}

	writeJSON(w, http.StatusOK, pipeline.SeenResponse{Job: req.Job, SeenCount: seen})
}
