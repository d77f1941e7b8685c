package pipeline

import (
	"fmt"
	"time"
)

// ProcessRequest represents a request to turn educational text into animations
type ProcessRequest struct {
	Text        string            `json:"text"`
	Job         string            `json:"job"` // animation, concepts
	BaseSeed    *int64            `json:"base_seed,omitempty"`
	Parallelism int               `json:"parallelism,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// ProcessResponse represents the response from triggering processing
type ProcessResponse struct {
	RunID           string `json:"run_id"`
	DedupeSeenCount int    `json:"dedupe_seen_count"`
}

// SeenRequest asks how often a text has been submitted for a job
type SeenRequest struct {
	Text string `json:"text"`
	Job  string `json:"job,omitempty"`
}

// SeenResponse reports the submission count for a text and job
type SeenResponse struct {
	Job       string `json:"job"`
	SeenCount int    `json:"seen_count"`
}

// ConceptsResponse is the body of a concept preview
type ConceptsResponse struct {
	RunID    string   `json:"run_id"`
	Concepts []string `json:"concepts"`
	Seeds    []int64  `json:"seeds"`

	// Enriched image prompt per concept, when requested
	Prompts map[string]string `json:"prompts,omitempty"`
}

// RunStatus is the state of an asynchronous run
type RunStatus struct {
	RunID     string    `json:"run_id"`
	State     string    `json:"state"` // "pending", "running", "succeeded", "failed", "cancelled"
	Name      string    `json:"name,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Set once the run has finished
	Report  *Report                `json:"report,omitempty"`
	Outputs map[string]interface{} `json:"outputs,omitempty"`
	Error   string                 `json:"error,omitempty"`
}

// JobType constants
const (
	JobAnimation = "animation"
	JobConcepts  = "concepts"
)

// DerivedType constants (match simple-content conventions)
const (
	DerivedTypeAnimation = "animation"
)

// Pipeline defaults
const (
	DefaultBaseSeed    int64 = 42
	DefaultParallelism       = 3

	// ExtractionErrorMarker is returned as the first concept when extraction fails
	ExtractionErrorMarker = "error in concept extraction"
)

// SeedFor returns the deterministic seed of the entity at index.
func SeedFor(baseSeed int64, index int) int64 {
	return baseSeed + int64(index)
}

// FallbackPrompt is the generation prompt used when enrichment cannot produce one.
func FallbackPrompt(concept string) string {
	return "show me " + concept + ", highly detailed, realistic"
}

// AnimationFilename is the filename hint passed to animators for an entity.
// The concept is passed through SafeName.
func AnimationFilename(concept string, seed int64) string {
	return fmt.Sprintf("animation_%s_%d.gif", SafeName(concept), seed)
}
