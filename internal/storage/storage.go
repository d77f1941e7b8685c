package storage

import (
	"context"
	"io"

	"github.com/cockroachdb/errors"
)

// Artifact kinds, also used as subdirectory and derivation names
const (
	KindImage     = "generated_images"
	KindAnimation = "animations"
)

// ErrNotFound is returned when an artifact reference does not resolve
var ErrNotFound = errors.New("artifact not found")

// ErrInvalidRef is returned for references a store cannot interpret
var ErrInvalidRef = errors.New("invalid artifact reference")

// ArtifactStore persists generated images and animations and hands back
// opaque references the pipeline reports to callers. Every Put yields a new
// artifact; a reference is never shared between two Puts.
type ArtifactStore interface {
	// PutImage stores a generated image and returns its reference
	PutImage(ctx context.Context, name string, r io.Reader) (string, error)

	// PutAnimation stores an animation derived from the image at sourceRef
	PutAnimation(ctx context.Context, sourceRef, name string, r io.Reader) (string, error)

	// Open returns a reader for the artifact at ref
	Open(ctx context.Context, ref string) (io.ReadCloser, error)
}
