package imagegen

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/tendant/simple-animation-pipeline/internal/storage"
)

const (
	// DefaultModelID is the Titan image generator on Bedrock
	DefaultModelID = "amazon.titan-image-generator-v1"

	// DefaultNegativePrompt steers the model away from low quality output
	DefaultNegativePrompt = "blurry, bad quality, distorted"

	maxSeed = 2147483646
)

// ErrInvalidParameters is returned when generation parameters are out of range
var ErrInvalidParameters = errors.New("invalid image generation parameters")

// ErrNoImages is returned when the model answers without images
var ErrNoImages = errors.New("model returned no images")

// InvokeModelAPI is the subset of the Bedrock runtime client used here
type InvokeModelAPI interface {
	InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

// Params are per-request generation settings
type Params struct {
	Width          int
	Height         int
	CfgScale       float64
	Quality        string
	NegativePrompt string
}

// DefaultParams returns 1024x1024 standard quality at cfg scale 8
func DefaultParams() Params {
	return Params{
		Width:          1024,
		Height:         1024,
		CfgScale:       8,
		Quality:        "standard",
		NegativePrompt: DefaultNegativePrompt,
	}
}

// Validate checks dimensions, image count and cfg scale
func (p Params) Validate(count int) error {
	if p.Width <= 0 || p.Height <= 0 || p.Width%64 != 0 || p.Height%64 != 0 {
		return errors.Wrap(ErrInvalidParameters, "width and height must be multiples of 64")
	}
	if count < 1 || count > 10 {
		return errors.Wrap(ErrInvalidParameters, "number of images must be between 1 and 10")
	}
	if p.CfgScale < 1 || p.CfgScale > 35 {
		return errors.Wrap(ErrInvalidParameters, "cfg scale must be between 1 and 35")
	}
	return nil
}

// Config configures a Generator
type Config struct {
	ModelID           string
	Params            Params
	RequestsPerMinute int // 0 = unlimited
	Logger            *zap.SugaredLogger
}

// Generator synthesizes images with a Titan model and stores them as artifacts
type Generator struct {
	api     InvokeModelAPI
	store   storage.ArtifactStore
	modelID string
	params  Params
	limiter *rate.Limiter
	logger  *zap.SugaredLogger
}

// NewGenerator creates a generator on top of a Bedrock runtime client
func NewGenerator(api InvokeModelAPI, store storage.ArtifactStore, cfg Config) *Generator {
	if cfg.ModelID == "" {
		cfg.ModelID = DefaultModelID
	}
	if cfg.Params == (Params{}) {
		cfg.Params = DefaultParams()
	}
	if cfg.Params.NegativePrompt == "" {
		cfg.Params.NegativePrompt = DefaultNegativePrompt
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop().Sugar()
	}

	g := &Generator{
		api:     api,
		store:   store,
		modelID: cfg.ModelID,
		params:  cfg.Params,
		logger:  cfg.Logger,
	}
	if cfg.RequestsPerMinute > 0 {
		g.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RequestsPerMinute)), 1)
	}
	return g
}

// NewBedrockClient builds a Bedrock runtime client. Static keys are used when
// both are set; otherwise the default AWS credential chain applies.
func NewBedrockClient(ctx context.Context, region, accessKey, secretKey string) (*bedrockruntime.Client, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if accessKey != "" && secretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(accessKey, secretKey, ""),
		))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "load AWS config")
	}
	return bedrockruntime.NewFromConfig(cfg), nil
}

type textToImageParams struct {
	Text         string `json:"text"`
	NegativeText string `json:"negativeText,omitempty"`
}

type imageGenerationConfig struct {
	CfgScale       float64 `json:"cfgScale"`
	Seed           int64   `json:"seed"`
	Quality        string  `json:"quality"`
	Width          int     `json:"width"`
	Height         int     `json:"height"`
	NumberOfImages int     `json:"numberOfImages"`
}

type titanRequest struct {
	TaskType              string                `json:"taskType"`
	TextToImageParams     textToImageParams     `json:"textToImageParams"`
	ImageGenerationConfig imageGenerationConfig `json:"imageGenerationConfig"`
}

type titanResponse struct {
	Images []string `json:"images"`
	Error  string   `json:"error,omitempty"`
}

// Generate creates count images for prompt with seed and returns their artifact references
func (g *Generator) Generate(ctx context.Context, prompt string, seed int64, count int) ([]string, error) {
	if err := g.params.Validate(count); err != nil {
		return nil, err
	}
	if seed < 0 || seed > maxSeed {
		return nil, errors.Wrapf(ErrInvalidParameters, "seed %d outside 0..%d", seed, maxSeed)
	}

	body, err := json.Marshal(titanRequest{
		TaskType:          "TEXT_IMAGE",
		TextToImageParams: textToImageParams{Text: prompt, NegativeText: g.params.NegativePrompt},
		ImageGenerationConfig: imageGenerationConfig{
			CfgScale:       g.params.CfgScale,
			Seed:           seed,
			Quality:        g.params.Quality,
			Width:          g.params.Width,
			Height:         g.params.Height,
			NumberOfImages: count,
		},
	})
	if err != nil {
		return nil, errors.Wrap(err, "marshal titan request")
	}

	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return nil, errors.Wrap(err, "wait for image rate limit")
		}
	}

	g.logger.Debugw("Invoking image model", "model", g.modelID, "seed", seed, "count", count)
	out, err := g.api.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(g.modelID),
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
		Body:        body,
	})
	if err != nil {
		return nil, errors.Wrap(err, "invoke image model")
	}

	var resp titanResponse
	if err := json.Unmarshal(out.Body, &resp); err != nil {
		return nil, errors.Wrap(err, "decode titan response")
	}
	if resp.Error != "" {
		return nil, errors.Newf("image model error: %s", resp.Error)
	}
	if len(resp.Images) == 0 {
		return nil, ErrNoImages
	}

	refs := make([]string, 0, len(resp.Images))
	for i, b64 := range resp.Images {
		data, err := base64.StdEncoding.DecodeString(b64)
		if err != nil {
			return nil, errors.Wrapf(err, "decode image %d", i+1)
		}

		ref, err := g.store.PutImage(ctx, ImageFilename(seed, i+1), bytes.NewReader(data))
		if err != nil {
			return nil, errors.Wrapf(err, "store image %d", i+1)
		}
		g.logger.Infow("Saved image", "ref", ref, "seed", seed)
		refs = append(refs, ref)
	}
	return refs, nil
}

// ImageFilename names the n-th (1-based) image generated for seed
func ImageFilename(seed int64, n int) string {
	return fmt.Sprintf("image_%d_%d.png", seed, n)
}
