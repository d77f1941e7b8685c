package storage

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/tendant/simple-content/pkg/simplecontent"

	"github.com/tendant/simple-animation-pipeline/pkg/pipeline"
)

// DerivedVersion is the variant version recorded on uploaded animations
const DerivedVersion = 1

// ContentStore implements ArtifactStore on a simple-content service.
// Images are uploaded as content; animations are uploaded as content derived
// from their image. References are content IDs.
type ContentStore struct {
	service  simplecontent.Service
	ownerID  uuid.UUID
	tenantID uuid.UUID
}

// NewContentStore creates a store that uploads on behalf of owner and tenant
func NewContentStore(service simplecontent.Service, ownerID, tenantID uuid.UUID) *ContentStore {
	return &ContentStore{
		service:  service,
		ownerID:  ownerID,
		tenantID: tenantID,
	}
}

// PutImage uploads an image and returns its content ID
func (cs *ContentStore) PutImage(ctx context.Context, name string, r io.Reader) (string, error) {
	content, err := cs.service.UploadContent(ctx, simplecontent.UploadContentRequest{
		OwnerID:      cs.ownerID,
		TenantID:     cs.tenantID,
		Name:         strings.TrimSuffix(name, path.Ext(name)),
		DocumentType: mimeFor(name),
		Reader:       r,
		FileName:     name,
		Tags:         runTags(ctx, KindImage),
	})
	if err != nil {
		return "", errors.Wrap(err, "upload image")
	}

	return content.ID.String(), nil
}

// PutAnimation uploads an animation derived from the image content at sourceRef
func (cs *ContentStore) PutAnimation(ctx context.Context, sourceRef, name string, r io.Reader) (string, error) {
	parentID, err := uuid.Parse(sourceRef)
	if err != nil {
		return "", errors.Wrapf(ErrInvalidRef, "content ID %q", sourceRef)
	}

	variant := variantName(pipeline.DerivedTypeAnimation, DerivedVersion)
	derived, err := cs.service.UploadDerivedContent(ctx, simplecontent.UploadDerivedContentRequest{
		ParentID:       parentID,
		DerivationType: pipeline.DerivedTypeAnimation,
		Variant:        variant,
		Reader:         r,
		FileName:       name,
		Tags:           runTags(ctx, pipeline.DerivedTypeAnimation, variant),
	})
	if err != nil {
		return "", errors.Wrap(err, "upload derived animation")
	}

	return derived.ID.String(), nil
}

// Open downloads the content at ref
func (cs *ContentStore) Open(ctx context.Context, ref string) (io.ReadCloser, error) {
	id, err := uuid.Parse(ref)
	if err != nil {
		return nil, errors.Wrapf(ErrInvalidRef, "content ID %q", ref)
	}

	reader, err := cs.service.DownloadContent(ctx, id)
	if err != nil {
		return nil, errors.Wrap(err, "download content")
	}

	return reader, nil
}

// runTags appends a run:<id> tag when ctx carries a run ID
func runTags(ctx context.Context, tags ...string) []string {
	if runID := pipeline.RunIDFrom(ctx); runID != "" {
		tags = append(tags, "run:"+runID)
	}
	return tags
}

func variantName(kind string, version int) string {
	return fmt.Sprintf("%s_v%d", kind, version)
}

func mimeFor(name string) string {
	switch strings.ToLower(path.Ext(name)) {
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".mp4":
		return "video/mp4"
	default:
		return "application/octet-stream"
	}
}
