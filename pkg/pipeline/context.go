package pipeline

import (
	"context"
	"strings"
	"unicode"
)

type runIDKey struct{}

// WithRunID returns a context carrying the run ID. Artifact stores use it to
// keep the files of concurrent runs apart.
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey{}, runID)
}

// RunIDFrom returns the run ID carried by ctx, or ""
func RunIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(runIDKey{}).(string)
	return id
}

// SafeName replaces every rune that is not a letter, digit, '.', '-' or '_'
// with an underscore, so s can be used as a single path element
func SafeName(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '.' || r == '-' || r == '_' {
			return r
		}
		return '_'
	}, s)
}
