package setup

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/tendant/simple-content/pkg/simplecontent/presets"
	"go.uber.org/zap"

	"github.com/tendant/simple-animation-pipeline/internal/animate"
	"github.com/tendant/simple-animation-pipeline/internal/concepts"
	"github.com/tendant/simple-animation-pipeline/internal/config"
	"github.com/tendant/simple-animation-pipeline/internal/enrich"
	"github.com/tendant/simple-animation-pipeline/internal/explore"
	"github.com/tendant/simple-animation-pipeline/internal/imagegen"
	"github.com/tendant/simple-animation-pipeline/internal/llm"
	"github.com/tendant/simple-animation-pipeline/internal/metrics"
	"github.com/tendant/simple-animation-pipeline/internal/storage"
	"github.com/tendant/simple-animation-pipeline/internal/workflows"
	"github.com/tendant/simple-animation-pipeline/pkg/pipeline"
)

// Pipeline holds the collaborators and workflows built from a Config
type Pipeline struct {
	Store     storage.ArtifactStore
	Chat      *llm.Client
	Extractor *concepts.Extractor
	Enricher  *enrich.Enricher
	Explorer  *explore.Explorer
	Images    *imagegen.Generator
	Animator  workflows.Animator
	Metrics   *metrics.Recorder

	Animation *workflows.AnimationWorkflow
	Concepts  *workflows.ConceptsWorkflow

	cleanup func()
}

// New wires every collaborator from cfg
func New(ctx context.Context, cfg *config.Config, logger *zap.SugaredLogger) (*Pipeline, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	p := &Pipeline{Metrics: metrics.NewRecorder(), cleanup: func() {}}

	store, cleanup, err := newStore(cfg)
	if err != nil {
		return nil, err
	}
	p.Store, p.cleanup = store, cleanup

	p.Chat = llm.NewClient(llm.Config{
		APIKey:  cfg.OpenAIAPIKey,
		BaseURL: cfg.OpenAIBaseURL,
		Model:   cfg.OpenAIModel,
		Logger:  logger.Named("llm"),
	})
	if !p.Chat.IsConfigured() {
		logger.Warnw("OPENAI_API_KEY not set; extraction will abort and enrichment will use templates or fallback prompts")
	}

	templates := enrich.DefaultTemplates()
	if cfg.EnrichTemplatesFile != "" {
		if templates, err = enrich.LoadTemplates(cfg.EnrichTemplatesFile); err != nil {
			p.Close()
			return nil, err
		}
	}

	p.Extractor = concepts.NewExtractor(p.Chat, logger.Named("concepts"))
	p.Enricher = enrich.NewEnricher(p.Chat, templates, logger.Named("enrich"))
	p.Explorer = explore.NewExplorer(p.Chat, logger.Named("explore"))

	bedrock, err := imagegen.NewBedrockClient(ctx, cfg.AWSRegion, cfg.AWSAccessKey, cfg.AWSSecretKey)
	if err != nil {
		p.Close()
		return nil, err
	}
	p.Images = imagegen.NewGenerator(bedrock, p.Store, imagegen.Config{
		ModelID:           cfg.ImageModelID,
		RequestsPerMinute: cfg.ImageRequestsPerMinute,
		Logger:            logger.Named("imagegen"),
	})

	if cfg.AnimatorURL != "" {
		p.Animator = animate.NewRemoteAnimator(p.Store, animate.RemoteConfig{
			URL:    cfg.AnimatorURL,
			Frames: cfg.AnimationFrames,
			Logger: logger.Named("animate"),
		})
		logger.Infow("Using remote animator", "url", cfg.AnimatorURL)
	} else {
		p.Animator = animate.NewLocalAnimator(p.Store, animate.LocalConfig{
			Frames: cfg.AnimationFrames,
			Logger: logger.Named("animate"),
		})
		logger.Infow("Using local animator")
	}

	p.Animation = workflows.NewAnimationWorkflow(p.Extractor, p.Enricher, p.Images, p.Animator,
		workflows.WithLogger(logger.Named("pipeline")),
		workflows.WithMetrics(p.Metrics),
		workflows.WithBaseSeed(cfg.BaseSeed),
		workflows.WithParallelism(cfg.MaxParallelTasks),
	)
	p.Concepts = workflows.NewConceptsWorkflow(p.Extractor, cfg.BaseSeed, logger.Named("pipeline"))

	return p, nil
}

// Register adds the pipeline's workflows to runner under their job names
func (p *Pipeline) Register(runner *workflows.WorkflowRunner) {
	runner.Register(pipeline.JobAnimation, p.Animation)
	runner.Register(pipeline.JobConcepts, p.Concepts)
}

// Close releases the artifact store
func (p *Pipeline) Close() {
	if p.cleanup != nil {
		p.cleanup()
	}
}

func newStore(cfg *config.Config) (storage.ArtifactStore, func(), error) {
	switch cfg.StorageBackend {
	case config.StorageContent:
		ownerID, err := uuid.Parse(cfg.ContentOwnerID)
		if err != nil {
			return nil, nil, errors.Wrapf(err, "invalid CONTENT_OWNER_ID %q", cfg.ContentOwnerID)
		}
		tenantID, err := uuid.Parse(cfg.ContentTenantID)
		if err != nil {
			return nil, nil, errors.Wrapf(err, "invalid CONTENT_TENANT_ID %q", cfg.ContentTenantID)
		}

		svc, cleanup, err := presets.NewDevelopment(presets.WithDevStorage(cfg.OutputDir))
		if err != nil {
			return nil, nil, errors.Wrap(err, "initialize simple-content service")
		}
		return storage.NewContentStore(svc, ownerID, tenantID), cleanup, nil

	default:
		fs, err := storage.NewFilesystemStore(cfg.OutputDir)
		if err != nil {
			return nil, nil, err
		}
		return fs, func() {}, nil
	}
}
