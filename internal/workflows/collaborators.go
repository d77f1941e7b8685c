package workflows

import "context"

// ConceptSource extracts visualizable concepts from educational text.
// Extraction failure is signalled by an error, an empty list, or a list whose
// first element is pipeline.ExtractionErrorMarker.
type ConceptSource interface {
	Extract(ctx context.Context, text string) ([]string, error)
}

// PromptEnricher turns a concept into an image generation prompt.
// It never fails: implementations fall back to a template internally.
type PromptEnricher interface {
	Enrich(ctx context.Context, concept string) string
}

// ImageSynthesizer generates up to count images for a prompt and returns their references
type ImageSynthesizer interface {
	Generate(ctx context.Context, prompt string, seed int64, count int) ([]string, error)
}

// Animator animates a still image. A false flag reports failure without an error.
type Animator interface {
	Animate(ctx context.Context, imageRef, prompt string, seed int64, filenameHint string) (string, bool, error)
}
