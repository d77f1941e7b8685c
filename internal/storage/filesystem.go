package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/tendant/simple-animation-pipeline/pkg/pipeline"
)

const maxNameAttempts = 1000

// FilesystemStore implements ArtifactStore on a local directory.
// References are slash-separated paths relative to the base directory.
type FilesystemStore struct {
	baseDir string
}

// NewFilesystemStore creates the base directory and its artifact subdirectories
func NewFilesystemStore(baseDir string) (*FilesystemStore, error) {
	for _, kind := range []string{KindImage, KindAnimation} {
		if err := os.MkdirAll(filepath.Join(baseDir, kind), 0755); err != nil {
			return nil, errors.Wrapf(err, "create %s directory", kind)
		}
	}

	return &FilesystemStore{baseDir: baseDir}, nil
}

// BaseDir returns the root directory of the store
func (fs *FilesystemStore) BaseDir() string {
	return fs.baseDir
}

// PutImage writes an image under generated_images/<run_id>/
func (fs *FilesystemStore) PutImage(ctx context.Context, name string, r io.Reader) (string, error) {
	return fs.put(ctx, KindImage, name, r)
}

// PutAnimation writes an animation under animations/<run_id>/
func (fs *FilesystemStore) PutAnimation(ctx context.Context, sourceRef, name string, r io.Reader) (string, error) {
	return fs.put(ctx, KindAnimation, name, r)
}

// put writes r to a file that did not exist before. The file lives in a
// directory named after the run ID in ctx, when there is one; a name already
// taken gets a numeric suffix.
func (fs *FilesystemStore) put(ctx context.Context, kind, name string, r io.Reader) (string, error) {
	dir := kind
	if runID := pipeline.SafeName(pipeline.RunIDFrom(ctx)); runID != "" && runID != "." && runID != ".." {
		dir = kind + "/" + runID
	}
	dirPath, err := fs.resolve(dir)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dirPath, 0755); err != nil {
		return "", errors.Wrapf(err, "create %s", dir)
	}

	base := filepath.Base(name)
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)

	for n := 1; n <= maxNameAttempts; n++ {
		file := base
		if n > 1 {
			file = fmt.Sprintf("%s_%d%s", stem, n, ext)
		}
		ref := dir + "/" + file

		f, err := os.OpenFile(filepath.Join(dirPath, file), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
		if errors.Is(err, os.ErrExist) {
			continue
		}
		if err != nil {
			return "", errors.Wrap(err, "create artifact file")
		}

		_, err = io.Copy(f, r)
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return "", errors.Wrapf(err, "write %s", ref)
		}
		return ref, nil
	}

	return "", errors.Newf("no free name for %s/%s after %d attempts", dir, base, maxNameAttempts)
}

// Open returns a reader for the file at ref
func (fs *FilesystemStore) Open(ctx context.Context, ref string) (io.ReadCloser, error) {
	path, err := fs.resolve(ref)
	if err != nil {
		return nil, err
	}

	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrapf(ErrNotFound, "%s", ref)
		}
		return nil, errors.Wrap(err, "open artifact")
	}

	return file, nil
}

// resolve maps a reference to a path, rejecting anything outside the base directory
func (fs *FilesystemStore) resolve(ref string) (string, error) {
	base := filepath.Clean(fs.baseDir)
	path := filepath.Clean(filepath.Join(base, filepath.FromSlash(ref)))

	if path == base || !strings.HasPrefix(path, base+string(filepath.Separator)) {
		return "", errors.Wrapf(ErrInvalidRef, "path traversal in %q", ref)
	}
	return path, nil
}
