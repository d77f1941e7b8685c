package setup

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/simple-animation-pipeline/internal/animate"
	"github.com/tendant/simple-animation-pipeline/internal/config"
	"github.com/tendant/simple-animation-pipeline/internal/storage"
	"github.com/tendant/simple-animation-pipeline/internal/workflows"
	"github.com/tendant/simple-animation-pipeline/pkg/pipeline"
)

func testConfig(t *testing.T, env map[string]string) *config.Config {
	t.Helper()
	base := map[string]string{
		"OUTPUT_DIR":     t.TempDir(),
		"AWS_ACCESS_KEY": "AKIATEST",
		"AWS_SECRET_KEY": "secret",
	}
	for k, v := range env {
		base[k] = v
	}
	cfg, err := config.FromEnv(func(k string) string { return base[k] })
	require.NoError(t, err)
	return cfg
}

func TestNew_FilesystemAndLocalAnimator(t *testing.T) {
	p, err := New(context.Background(), testConfig(t, nil), nil)
	require.NoError(t, err)
	defer p.Close()

	assert.IsType(t, &storage.FilesystemStore{}, p.Store)
	assert.IsType(t, &animate.LocalAnimator{}, p.Animator)
	assert.False(t, p.Chat.IsConfigured())

	runner := workflows.NewWorkflowRunner(nil)
	p.Register(runner)
	_, ok := runner.Lookup(pipeline.JobAnimation)
	assert.True(t, ok)
	_, ok = runner.Lookup(pipeline.JobConcepts)
	assert.True(t, ok)
}

func TestNew_RemoteAnimator(t *testing.T) {
	p, err := New(context.Background(), testConfig(t, map[string]string{"ANIMATOR_URL": "http://localhost:7860"}), nil)
	require.NoError(t, err)
	defer p.Close()

	assert.IsType(t, &animate.RemoteAnimator{}, p.Animator)
}

func TestNew_ContentStore(t *testing.T) {
	p, err := New(context.Background(), testConfig(t, map[string]string{"STORAGE_BACKEND": "content"}), nil)
	require.NoError(t, err)
	defer p.Close()

	assert.IsType(t, &storage.ContentStore{}, p.Store)
}

func TestNew_InvalidContentOwner(t *testing.T) {
	_, err := New(context.Background(), testConfig(t, map[string]string{
		"STORAGE_BACKEND":  "content",
		"CONTENT_OWNER_ID": "not-a-uuid",
	}), nil)
	assert.Error(t, err)
}

func TestNew_TemplatesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "templates.yaml")
	require.NoError(t, os.WriteFile(path, []byte("templates:\n  Mars: show me Mars at dusk\n"), 0644))

	p, err := New(context.Background(), testConfig(t, map[string]string{"ENRICH_TEMPLATES_FILE": path}), nil)
	require.NoError(t, err)
	defer p.Close()

	assert.Equal(t, "show me Mars at dusk", p.Enricher.Enrich(context.Background(), "Mars"))

	_, err = New(context.Background(), testConfig(t, map[string]string{"ENRICH_TEMPLATES_FILE": filepath.Join(t.TempDir(), "missing.yaml")}), nil)
	assert.Error(t, err)
}
