package workflows

import (
	"context"
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/dbos-inc/dbos-transact-golang/dbos"
	"github.com/google/uuid"

	"github.com/tendant/simple-animation-pipeline/internal/dbosruntime"
	"github.com/tendant/simple-animation-pipeline/pkg/pipeline"
)

// WorkflowContext contains context for workflow execution
type WorkflowContext struct {
	Ctx     context.Context
	Request pipeline.ProcessRequest
	RunID   string
}

// WorkflowResult contains the result of workflow execution
type WorkflowResult struct {
	Success bool                   `json:"success"`
	Error   string                 `json:"error,omitempty"`
	Report  *pipeline.Report       `json:"report,omitempty"`
	Outputs map[string]interface{} `json:"outputs,omitempty"`
}

// Workflow defines the interface for processing workflows
type Workflow interface {
	// Execute runs the workflow
	Execute(wctx *WorkflowContext) (*WorkflowResult, error)

	// Name returns the workflow name
	Name() string
}

// WorkflowRunner executes workflows
type WorkflowRunner struct {
	workflows   map[string]Workflow
	dbosRuntime *dbosruntime.Runtime

	// Status lookups; backed by DBOS when a runtime is configured
	lookupStatus func(runID string) (*dbos.WorkflowStatus, error)
	lookupResult func(runID string) (*WorkflowResult, error)
}

// NewWorkflowRunner creates a new workflow runner; dbosRuntime may be nil for synchronous use
func NewWorkflowRunner(dbosRuntime *dbosruntime.Runtime) *WorkflowRunner {
	runner := &WorkflowRunner{
		workflows:   make(map[string]Workflow),
		dbosRuntime: dbosRuntime,
	}

	// Register the DBOS workflow function
	if dbosRuntime != nil {
		dbos.RegisterWorkflow(dbosRuntime.Context(), runner.executeWorkflowDBOS)
		runner.lookupStatus = dbosRuntime.WorkflowStatus
		runner.lookupResult = func(runID string) (*WorkflowResult, error) {
			handle, err := dbos.RetrieveWorkflow[*WorkflowResult](dbosRuntime.Context(), runID)
			if err != nil {
				return nil, errors.Wrap(err, "retrieve workflow")
			}
			return handle.GetResult()
		}
	}

	return runner
}

// Register registers a workflow
func (r *WorkflowRunner) Register(job string, workflow Workflow) {
	r.workflows[job] = workflow
}

// Lookup returns the workflow registered for job
func (r *WorkflowRunner) Lookup(job string) (Workflow, bool) {
	w, ok := r.workflows[job]
	return w, ok
}

// Run executes a workflow for the given job type synchronously
func (r *WorkflowRunner) Run(wctx *WorkflowContext) (*WorkflowResult, error) {
	workflow, ok := r.workflows[wctx.Request.Job]
	if !ok {
		return &WorkflowResult{
			Success: false,
			Error:   ErrWorkflowNotFound.Error(),
		}, errors.Wrapf(ErrWorkflowNotFound, "job %q", wctx.Request.Job)
	}

	return workflow.Execute(wctx)
}

// RunAsync enqueues a workflow for async execution via DBOS
func (r *WorkflowRunner) RunAsync(ctx context.Context, req pipeline.ProcessRequest) (string, error) {
	if r.dbosRuntime == nil {
		return "", ErrRuntimeNotInitialized
	}
	if _, ok := r.workflows[req.Job]; !ok {
		return "", errors.Wrapf(ErrWorkflowNotFound, "job %q", req.Job)
	}

	// Workflow ID doubles as the run ID reported to callers
	workflowID := fmt.Sprintf("%s-%s", req.Job, uuid.New().String())

	handle, err := dbos.RunWorkflow[pipeline.ProcessRequest, *WorkflowResult](
		r.dbosRuntime.Context(),
		r.executeWorkflowDBOS,
		req,
		dbos.WithWorkflowID(workflowID),
		dbos.WithQueue(r.dbosRuntime.QueueName()),
	)
	if err != nil {
		return "", errors.Wrap(err, "enqueue workflow")
	}

	return handle.GetWorkflowID(), nil
}

// executeWorkflowDBOS is the DBOS workflow function that wraps registered workflows
func (r *WorkflowRunner) executeWorkflowDBOS(dbosCtx dbos.DBOSContext, req pipeline.ProcessRequest) (*WorkflowResult, error) {
	workflowID, err := dbosCtx.GetWorkflowID()
	if err != nil {
		return &WorkflowResult{Success: false, Error: err.Error()}, err
	}

	// DBOSContext implements context.Context
	return r.Run(&WorkflowContext{
		Ctx:     dbosCtx,
		Request: req,
		RunID:   workflowID,
	})
}

// WorkflowStatus represents the status of a workflow execution
type WorkflowStatus = pipeline.RunStatus

// GetStatus retrieves the status of a workflow execution; finished runs carry their report
func (r *WorkflowRunner) GetStatus(ctx context.Context, runID string) (*WorkflowStatus, error) {
	if r.lookupStatus == nil {
		return nil, errors.Wrap(ErrRuntimeNotInitialized, "status tracking requires DBOS runtime")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	info, err := r.lookupStatus(runID)
	if err != nil {
		return nil, err
	}

	status := &WorkflowStatus{
		RunID:     info.ID,
		State:     StateFromDBOS(string(info.Status)),
		Name:      info.Name,
		CreatedAt: info.CreatedAt.UTC(),
		UpdatedAt: info.UpdatedAt.UTC(),
	}

	if info.Status != dbos.WorkflowStatusSuccess && info.Status != dbos.WorkflowStatusError {
		return status, nil
	}
	if r.lookupResult == nil {
		return status, nil
	}

	// The workflow has finished, so this returns without blocking
	result, err := r.lookupResult(runID)
	if result == nil {
		if err != nil {
			status.Error = err.Error()
		}
		return status, nil
	}
	status.Report = result.Report
	status.Outputs = result.Outputs
	status.Error = result.Error
	if !result.Success {
		status.State = "failed"
		if status.Error == "" && err != nil {
			status.Error = err.Error()
		}
	}
	return status, nil
}

// StateFromDBOS maps a dbos.workflow_status status to the API state vocabulary
func StateFromDBOS(status string) string {
	switch status {
	case "ENQUEUED":
		return "pending"
	case "SUCCESS":
		return "succeeded"
	case "ERROR", "MAX_RECOVERY_ATTEMPTS_EXCEEDED", "RETRIES_EXCEEDED":
		return "failed"
	case "CANCELLED":
		return "cancelled"
	default:
		return "running"
	}
}
