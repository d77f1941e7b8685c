package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tendant/simple-animation-pipeline/internal/workflows"
	"github.com/tendant/simple-animation-pipeline/pkg/pipeline"
)

// SyncRunner executes a workflow in the request goroutine
type SyncRunner interface {
	Run(wctx *workflows.WorkflowContext) (*workflows.WorkflowResult, error)
}

// SyncHandler runs workflows while the client waits
type SyncHandler struct {
	runner SyncRunner
	logger *zap.SugaredLogger
}

// NewSyncHandler creates a new sync handler
func NewSyncHandler(runner SyncRunner, logger *zap.SugaredLogger) *SyncHandler {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &SyncHandler{runner: runner, logger: logger}
}

// HandleAnimate handles POST /v1/animate - runs the full pipeline and returns the report
func (h *SyncHandler) HandleAnimate(w http.ResponseWriter, r *http.Request) {
	result, runID, ok := h.run(w, r, pipeline.JobAnimation)
	if !ok {
		return
	}

	report := result.Report
	if report == nil {
		report = pipeline.AbortedReport(runID, result.Error)
	}
	status := http.StatusOK
	if report.Aborted {
		status = http.StatusUnprocessableEntity
	}

	succeeded, failed := report.Counts()
	h.logger.Infow("Animation run finished", "run_id", runID, "succeeded", succeeded, "failed", failed, "aborted", report.Aborted)
	writeJSON(w, status, report)
}

// HandleConcepts handles POST /v1/concepts - extracts concepts and seeds without generating anything
func (h *SyncHandler) HandleConcepts(w http.ResponseWriter, r *http.Request) {
	result, runID, ok := h.run(w, r, pipeline.JobConcepts)
	if !ok {
		return
	}

	if !result.Success {
		writeError(w, http.StatusUnprocessableEntity, result.Error)
		return
	}

	resp := pipeline.ConceptsResponse{RunID: runID}
	resp.Concepts, _ = result.Outputs["concepts"].([]string)
	resp.Seeds, _ = result.Outputs["seeds"].([]int64)
	writeJSON(w, http.StatusOK, resp)
}

// run decodes the request, forces job and executes it; it writes the error response itself
func (h *SyncHandler) run(w http.ResponseWriter, r *http.Request, job string) (*workflows.WorkflowResult, string, bool) {
	var req pipeline.ProcessRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request: "+err.Error())
		return nil, "", false
	}
	if strings.TrimSpace(req.Text) == "" {
		writeError(w, http.StatusBadRequest, "text is required")
		return nil, "", false
	}
	req.Job = job

	runID := uuid.New().String()
	h.logger.Infow("Processing request", "run_id", runID, "job", job, "text_length", len(req.Text))

	result, err := h.runner.Run(&workflows.WorkflowContext{
		Ctx:     r.Context(),
		Request: req,
		RunID:   runID,
	})
	if err != nil {
		h.logger.Errorw("Workflow execution failed", "run_id", runID, "error", err)
		status := http.StatusInternalServerError
		if errors.Is(err, workflows.ErrInvalidRequest) {
			status = http.StatusBadRequest
		}
		writeError(w, status, err.Error())
		return nil, "", false
	}

	return result, runID, true
}
