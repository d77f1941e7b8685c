package concepts

import (
	"context"
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/tendant/simple-animation-pipeline/internal/llm"
	"github.com/tendant/simple-animation-pipeline/pkg/pipeline"
)

const systemPrompt = `You are an expert at identifying key educational concepts that can be visualized.
From the given educational content, extract main concepts that would make good visuals or animations.

Rules:
1. Only extract single-word concepts that can be clearly visualized
2. Focus on physical objects and clear visual concepts (e.g., "Earth", "Sun", "galaxy")
3. Return ONLY a list of strings ["word1", "word2", ...]
4. Each concept must be a single word, no phrases or compound words
5. Limit to the most important 3-5 concepts`

// ErrInvalidFormat is returned by ParseList when the reply is not a list of strings
var ErrInvalidFormat = errors.New("reply is not a list of strings")

// Extractor asks a chat model for the visualizable concepts in a text.
// Failures are reported in-band as a single-element list holding the
// extraction error marker.
type Extractor struct {
	client llm.Completer
	logger *zap.SugaredLogger
}

// NewExtractor creates a concept extractor
func NewExtractor(client llm.Completer, logger *zap.SugaredLogger) *Extractor {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Extractor{client: client, logger: logger}
}

// Extract returns the concepts in text in the order the model listed them
func (e *Extractor) Extract(ctx context.Context, text string) ([]string, error) {
	temperature := 0.1
	resp, err := e.client.Chat(ctx, llm.ChatRequest{
		SystemPrompt: systemPrompt,
		UserPrompt:   fmt.Sprintf("Extract key visualizable concepts from:\n%s", text),
		Temperature:  &temperature,
	})
	if err != nil {
		e.logger.Errorw("Concept extraction API error", "error", err)
		return []string{pipeline.ExtractionErrorMarker}, nil
	}

	concepts, err := ParseList(resp.Content)
	if err != nil {
		e.logger.Errorw("Concept extraction reply unparseable", "error", err, "reply", resp.Content)
		return []string{pipeline.ExtractionErrorMarker}, nil
	}

	e.logger.Debugw("Extracted concepts", "concepts", concepts)
	return concepts, nil
}

// ParseList parses a JSON array or a single-quoted list literal of strings,
// optionally wrapped in a markdown code fence. Blank items are dropped.
func ParseList(reply string) ([]string, error) {
	body := stripFence(reply)
	if !strings.HasPrefix(body, "[") {
		return nil, errors.Wrapf(ErrInvalidFormat, "%q", truncate(body, 80))
	}

	// JSON arrays and single-quoted lists are both YAML flow sequences
	var items []interface{}
	if err := yaml.Unmarshal([]byte(body), &items); err != nil {
		return nil, errors.Wrap(ErrInvalidFormat, err.Error())
	}

	concepts := make([]string, 0, len(items))
	for i, item := range items {
		s, ok := item.(string)
		if !ok {
			return nil, errors.Wrapf(ErrInvalidFormat, "item %d is %T", i, item)
		}
		if s = strings.TrimSpace(s); s != "" {
			concepts = append(concepts, s)
		}
	}
	return concepts, nil
}

func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		// drop the language tag line
		s = s[nl+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
