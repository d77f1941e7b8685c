package concepts

import (
	"context"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/simple-animation-pipeline/internal/llm"
	"github.com/tendant/simple-animation-pipeline/pkg/pipeline"
)

type fakeCompleter struct {
	reply string
	err   error
	last  llm.ChatRequest
}

func (f *fakeCompleter) Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	f.last = req
	if f.err != nil {
		return nil, f.err
	}
	return &llm.ChatResponse{Content: f.reply}, nil
}

func TestParseList(t *testing.T) {
	tests := []struct {
		name  string
		reply string
		want  []string
	}{
		{"json", `["Sun", "Earth", "Moon"]`, []string{"Sun", "Earth", "Moon"}},
		{"single quotes", `['Sun', 'Earth', 'Moon']`, []string{"Sun", "Earth", "Moon"}},
		{"fenced", "```python\n['galaxy', 'blackhole']\n```", []string{"galaxy", "blackhole"}},
		{"fenced no tag", "```\n[\"comet\"]\n```", []string{"comet"}},
		{"blank items dropped", `["Sun", " ", "Moon"]`, []string{"Sun", "Moon"}},
		{"empty", `[]`, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseList(tt.reply)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseList_Invalid(t *testing.T) {
	for _, reply := range []string{
		"Sun, Earth, Moon",
		"The concepts are Sun and Moon.",
		`[1, 2, 3]`,
		`["Sun", ["nested"]]`,
		`["unterminated`,
	} {
		_, err := ParseList(reply)
		assert.True(t, errors.Is(err, ErrInvalidFormat), reply)
	}
}

func TestExtractor_Extract(t *testing.T) {
	fc := &fakeCompleter{reply: `['Sun', 'Earth', 'Moon']`}
	got, err := NewExtractor(fc, nil).Extract(context.Background(), "The Sun warms the Earth.")

	require.NoError(t, err)
	assert.Equal(t, []string{"Sun", "Earth", "Moon"}, got)
	assert.Contains(t, fc.last.UserPrompt, "The Sun warms the Earth.")
	require.NotNil(t, fc.last.Temperature)
	assert.Equal(t, 0.1, *fc.last.Temperature)
}

func TestExtractor_FailuresReturnMarker(t *testing.T) {
	for name, fc := range map[string]*fakeCompleter{
		"api error":   {err: errors.New("status 500")},
		"unparseable": {reply: "Sun and Moon"},
	} {
		t.Run(name, func(t *testing.T) {
			got, err := NewExtractor(fc, nil).Extract(context.Background(), "text")
			require.NoError(t, err)
			assert.Equal(t, []string{pipeline.ExtractionErrorMarker}, got)
		})
	}
}
