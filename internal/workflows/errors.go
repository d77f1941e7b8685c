package workflows

import "github.com/cockroachdb/errors"

var (
	// ErrWorkflowNotFound is returned when a workflow is not registered
	ErrWorkflowNotFound = errors.New("workflow not found")

	// ErrInvalidRequest is returned when the request is invalid
	ErrInvalidRequest = errors.New("invalid workflow request")

	// ErrExtractionFailed marks a run-level abort: no concepts were extracted
	ErrExtractionFailed = errors.New("entity extraction failed")

	// ErrImageGeneration marks a failed synthesizing stage
	ErrImageGeneration = errors.New("image generation failed")

	// ErrAnimation marks a failed animating stage
	ErrAnimation = errors.New("animation generation failed")

	// ErrCancelled marks an entity that never started because the run was cancelled
	ErrCancelled = errors.New("entity cancelled before start")

	// ErrRuntimeNotInitialized is returned by async operations without a DBOS runtime
	ErrRuntimeNotInitialized = errors.New("DBOS runtime not initialized")
)
