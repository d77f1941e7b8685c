package explore

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/tendant/simple-animation-pipeline/internal/llm"
)

// WordsPerMinute is the reading speed used to size explorations
const WordsPerMinute = 250

// DeclinedFocusReply is returned when the reader declines a focused exploration
const DeclinedFocusReply = "No problem! Feel free to ask for a focused exploration anytime."

const writerPrompt = "You are a knowledgeable and engaging writer who creates compelling explorations of various topics."

// Entity is a visualizable thing found in an exploration
type Entity struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Relevance   string `json:"relevance"`
}

// Explorer writes short educational texts about a reader's interest. The
// texts are the input the animation pipeline extracts concepts from.
type Explorer struct {
	client llm.Completer
	logger *zap.SugaredLogger
}

// NewExplorer creates an explorer
func NewExplorer(client llm.Completer, logger *zap.SugaredLogger) *Explorer {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Explorer{client: client, logger: logger}
}

// Explore writes roughly readMinutes of text about interest; readMinutes < 1 means 1
func (e *Explorer) Explore(ctx context.Context, interest string, readMinutes int) (string, error) {
	if strings.TrimSpace(interest) == "" {
		return "", errors.New("interest is required")
	}
	if readMinutes < 1 {
		readMinutes = 1
	}
	words := readMinutes * WordsPerMinute

	prompt := fmt.Sprintf(`Generate an engaging exploration about %[1]s. The response should:
- Be approximately %[2]d words
- Be structured in 3-4 clear paragraphs
- Include specific examples and insights
- Be informative yet accessible
- Start with an engaging hook
- End with a forward-looking conclusion

Make sure to:
- Focus on what makes %[1]s fascinating
- Include some lesser-known aspects
- Connect it to broader themes or applications`, interest, words)

	return e.write(ctx, prompt, 0.7)
}

// ExploreFocus writes about one aspect of interest. A focus of "no" declines politely.
func (e *Explorer) ExploreFocus(ctx context.Context, interest, focus string) (string, error) {
	if strings.EqualFold(strings.TrimSpace(focus), "no") {
		return DeclinedFocusReply, nil
	}

	prompt := fmt.Sprintf(`Create an engaging exploration about %[1]s, focusing specifically on %[2]s.
The response should be around %[3]d words, structured in clear paragraphs, and provide
insightful information about how %[2]s relates to %[1]s.
Include specific examples and conclude with thought-provoking ideas for further exploration.`, interest, focus, WordsPerMinute)

	return e.write(ctx, prompt, 0.7)
}

// PotentialEntities asks for three concrete entities in text worth visualizing
func (e *Explorer) PotentialEntities(ctx context.Context, text, interest string) ([]Entity, error) {
	prompt := fmt.Sprintf(`Analyze the following text about %[1]s and identify 3 physical entities (objects, places, or things)
that would be most suitable for visual representation. Each must be concrete, specific and strongly related to the topic.

Text to analyze: %[2]s

Return a JSON object with an "entities" array containing exactly 3 objects with these properties:
- name: The specific name of the entity
- description: A brief, clear description focusing on visual aspects
- relevance: Why this entity is important to understanding %[1]s`, interest, text)

	temperature := 0.5
	resp, err := e.client.Chat(ctx, llm.ChatRequest{
		SystemPrompt: "You are an expert at identifying concrete, visual elements from text that would be suitable for image or video creation.",
		UserPrompt:   prompt,
		Temperature:  &temperature,
	})
	if err != nil {
		return nil, errors.Wrap(err, "extract entities")
	}

	var out struct {
		Entities []Entity `json:"entities"`
	}
	body := strings.TrimSuffix(strings.TrimPrefix(strings.TrimSpace(resp.Content), "```json"), "```")
	if err := json.Unmarshal([]byte(strings.TrimSpace(body)), &out); err != nil {
		return nil, errors.Wrap(err, "decode entities")
	}
	return out.Entities, nil
}

func (e *Explorer) write(ctx context.Context, prompt string, temperature float64) (string, error) {
	maxTokens := 1000
	resp, err := e.client.Chat(ctx, llm.ChatRequest{
		SystemPrompt: writerPrompt,
		UserPrompt:   prompt,
		Temperature:  &temperature,
		MaxTokens:    &maxTokens,
	})
	if err != nil {
		e.logger.Warnw("Exploration failed", "error", err)
		return "", errors.Wrap(err, "generate exploration")
	}
	return resp.Content, nil
}
