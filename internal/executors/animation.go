package executors

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	simpleworkflow "github.com/tendant/simple-workflow"
	"go.uber.org/zap"

	"github.com/tendant/simple-animation-pipeline/internal/workflows"
	"github.com/tendant/simple-animation-pipeline/pkg/pipeline"
)

// Runner executes a registered workflow synchronously
type Runner interface {
	Run(wctx *workflows.WorkflowContext) (*workflows.WorkflowResult, error)
}

// PipelineExecutor implements simpleworkflow.WorkflowExecutor for the animation
// and concepts jobs, so runs can also be driven from a simple-workflow queue
type PipelineExecutor struct {
	runner Runner
	logger *zap.SugaredLogger
}

// NewPipelineExecutor creates a new executor backed by runner
func NewPipelineExecutor(runner Runner, logger *zap.SugaredLogger) *PipelineExecutor {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &PipelineExecutor{runner: runner, logger: logger}
}

// payload is the JSON body of a simple-workflow run
type payload struct {
	Text        string            `json:"text"`
	Job         string            `json:"job"`
	BaseSeed    *int64            `json:"base_seed,omitempty"`
	Parallelism int               `json:"parallelism,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// Execute implements simpleworkflow.WorkflowExecutor
func (e *PipelineExecutor) Execute(ctx context.Context, run *simpleworkflow.WorkflowRun) (interface{}, error) {
	var params payload
	if err := json.Unmarshal(run.Payload, &params); err != nil {
		return nil, errors.Wrap(err, "parse payload")
	}
	if strings.TrimSpace(params.Text) == "" {
		return nil, errors.Wrap(workflows.ErrInvalidRequest, "payload text is required")
	}
	if params.Job == "" {
		params.Job = pipeline.JobAnimation
	}

	runID := uuid.New().String()
	e.logger.Infow("Executing pipeline run", "run_id", runID, "job", params.Job)

	result, err := e.runner.Run(&workflows.WorkflowContext{
		Ctx: ctx,
		Request: pipeline.ProcessRequest{
			Text:        params.Text,
			Job:         params.Job,
			BaseSeed:    params.BaseSeed,
			Parallelism: params.Parallelism,
			Metadata:    params.Metadata,
		},
		RunID: runID,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "%s workflow failed", params.Job)
	}
	if !result.Success {
		return nil, errors.Newf("%s workflow returned failure: %s", params.Job, result.Error)
	}

	e.logger.Infow("Pipeline run completed", "run_id", runID, "job", params.Job)

	out := map[string]interface{}{
		"run_id": runID,
		"job":    params.Job,
	}
	if result.Report != nil {
		out["report"] = result.Report
	}
	if result.Outputs != nil {
		out["outputs"] = result.Outputs
	}
	return out, nil
}
