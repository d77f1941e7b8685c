package workflows

import (
	"strings"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/tendant/simple-animation-pipeline/pkg/pipeline"
)

// ConceptsWorkflow previews a run: it extracts concepts and assigns seeds
// without calling any generation service.
type ConceptsWorkflow struct {
	source   ConceptSource
	baseSeed int64
	logger   *zap.SugaredLogger
}

// NewConceptsWorkflow creates a new concept preview workflow
func NewConceptsWorkflow(source ConceptSource, baseSeed int64, logger *zap.SugaredLogger) *ConceptsWorkflow {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &ConceptsWorkflow{source: source, baseSeed: baseSeed, logger: logger}
}

// Name returns the workflow name
func (w *ConceptsWorkflow) Name() string {
	return "ConceptsWorkflow"
}

// Execute extracts concepts and returns them with their seeds in Outputs
func (w *ConceptsWorkflow) Execute(wctx *WorkflowContext) (*WorkflowResult, error) {
	req := wctx.Request
	if strings.TrimSpace(req.Text) == "" {
		err := errors.Wrap(ErrInvalidRequest, "text is required")
		return &WorkflowResult{Success: false, Error: err.Error()}, err
	}

	baseSeed := w.baseSeed
	if req.BaseSeed != nil {
		baseSeed = *req.BaseSeed
	}

	concepts, reason := extractConcepts(wctx.Ctx, w.source, req.Text)
	if reason != "" {
		w.logger.Warnw("Concept extraction failed", "run_id", wctx.RunID, "reason", reason)
		return &WorkflowResult{Success: false, Error: reason}, nil
	}

	seeds := make([]int64, len(concepts))
	for i := range concepts {
		seeds[i] = pipeline.SeedFor(baseSeed, i)
	}
	w.logger.Infow("Extracted concepts", "run_id", wctx.RunID, "concepts", concepts)

	return &WorkflowResult{
		Success: true,
		Outputs: map[string]interface{}{
			"concepts": concepts,
			"seeds":    seeds,
		},
	}, nil
}
