package enrich

import (
	"context"
	_ "embed"
	"fmt"
	"os"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/tendant/simple-animation-pipeline/internal/llm"
	"github.com/tendant/simple-animation-pipeline/pkg/pipeline"
)

//go:embed templates.yaml
var defaultTemplates []byte

const systemPrompt = `You are an expert at creating detailed, descriptive prompts for image generation.
Convert simple entities into detailed prompts that will generate high-quality, educational images.

Rules:
1. Always include "show me" at the start
2. Add relevant scientific or educational details
3. Include "highly detailed, realistic" at the end
4. Keep the prompt clear and focused
5. Return ONLY the prompt text, no explanations or additional text

Example input: "Earth"
Example output: show me the Earth from space, highly detailed, realistic`

type templateFile struct {
	Templates map[string]string `yaml:"templates"`
}

// Templates maps a concept to a fixed prompt
type Templates map[string]string

// DefaultTemplates returns the built-in template table
func DefaultTemplates() Templates {
	t, err := parseTemplates(defaultTemplates)
	if err != nil {
		panic(fmt.Sprintf("embedded templates.yaml: %v", err))
	}
	return t
}

// LoadTemplates reads a template file and layers it over the built-in table
func LoadTemplates(path string) (Templates, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read templates file")
	}
	overrides, err := parseTemplates(data)
	if err != nil {
		return nil, errors.Wrapf(err, "parse %s", path)
	}

	t := DefaultTemplates()
	for k, v := range overrides {
		t[k] = v
	}
	return t, nil
}

func parseTemplates(data []byte) (Templates, error) {
	var f templateFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, err
	}
	if f.Templates == nil {
		return Templates{}, nil
	}
	return Templates(f.Templates), nil
}

// Enricher turns a concept into an image prompt. It never fails: a template
// hit is returned as is, otherwise the model is asked, and any model error
// or empty reply yields the fallback prompt.
type Enricher struct {
	client    llm.Completer
	templates Templates
	logger    *zap.SugaredLogger
}

// NewEnricher creates an enricher; a nil templates table selects the built-in one
func NewEnricher(client llm.Completer, templates Templates, logger *zap.SugaredLogger) *Enricher {
	if templates == nil {
		templates = DefaultTemplates()
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Enricher{client: client, templates: templates, logger: logger}
}

// Enrich returns the image prompt for concept
func (e *Enricher) Enrich(ctx context.Context, concept string) string {
	if p, ok := e.templates[concept]; ok {
		return p
	}
	if e.client == nil {
		return pipeline.FallbackPrompt(concept)
	}

	temperature := 0.7
	resp, err := e.client.Chat(ctx, llm.ChatRequest{
		SystemPrompt: systemPrompt,
		UserPrompt:   fmt.Sprintf("Create a detailed prompt for: %s", concept),
		Temperature:  &temperature,
	})
	if err != nil {
		e.logger.Warnw("Prompt enrichment failed, using fallback", "concept", concept, "error", err)
		return pipeline.FallbackPrompt(concept)
	}
	if resp.Content == "" {
		return pipeline.FallbackPrompt(concept)
	}
	return resp.Content
}

// EnrichAll enriches each concept in turn
func (e *Enricher) EnrichAll(ctx context.Context, concepts []string) map[string]string {
	out := make(map[string]string, len(concepts))
	for _, c := range concepts {
		out[c] = e.Enrich(ctx, c)
	}
	return out
}
