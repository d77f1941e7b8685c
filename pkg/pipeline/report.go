package pipeline

// Status tags an EntityResult as success or failure
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailure Status = "failure"
)

// Stage names the step of an entity job
type Stage string

const (
	StageEnriching    Stage = "enriching"
	StageSynthesizing Stage = "synthesizing"
	StageAnimating    Stage = "animating"
	StageQueued       Stage = "queued"
)

// EntityResult is the outcome of one concept.
// Success results carry Prompt, ImageRef and AnimationRef; failure results carry Error and Stage.
type EntityResult struct {
	Status       Status `json:"status"`
	Concept      string `json:"concept"`
	Seed         int64  `json:"seed"`
	Prompt       string `json:"prompt,omitempty"`
	ImageRef     string `json:"image_ref,omitempty"`
	AnimationRef string `json:"animation_ref,omitempty"`
	Stage        Stage  `json:"failed_stage,omitempty"`
	Error        string `json:"error,omitempty"`
}

// Succeeded builds a success result
func Succeeded(concept string, seed int64, prompt, imageRef, animationRef string) EntityResult {
	return EntityResult{
		Status:       StatusSuccess,
		Concept:      concept,
		Seed:         seed,
		Prompt:       prompt,
		ImageRef:     imageRef,
		AnimationRef: animationRef,
	}
}

// Failed builds a failure result
func Failed(concept string, seed int64, stage Stage, message string) EntityResult {
	return EntityResult{
		Status:  StatusFailure,
		Concept: concept,
		Seed:    seed,
		Stage:   stage,
		Error:   message,
	}
}

// IsSuccess reports whether the entity reached Done
func (r EntityResult) IsSuccess() bool {
	return r.Status == StatusSuccess
}

// Report is the ordered result of one pipeline run.
// Results[i] corresponds to the i-th extracted concept.
type Report struct {
	RunID       string         `json:"run_id,omitempty"`
	Concepts    []string       `json:"concepts,omitempty"`
	Results     []EntityResult `json:"results"`
	Aborted     bool           `json:"aborted"`
	AbortReason string         `json:"abort_reason,omitempty"`
	Cancelled   bool           `json:"cancelled,omitempty"`
}

// AbortedReport returns an empty report with the run-level failure flag set
func AbortedReport(runID, reason string) *Report {
	return &Report{
		RunID:       runID,
		Results:     []EntityResult{},
		Aborted:     true,
		AbortReason: reason,
	}
}

// Counts returns the number of successful and failed entities
func (r *Report) Counts() (succeeded, failed int) {
	for _, res := range r.Results {
		if res.IsSuccess() {
			succeeded++
		} else {
			failed++
		}
	}
	return succeeded, failed
}
