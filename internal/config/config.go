package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"

	"github.com/tendant/simple-animation-pipeline/pkg/pipeline"
)

// Storage backends
const (
	StorageFilesystem = "filesystem"
	StorageContent    = "content"
)

// Config holds process configuration read from the environment
type Config struct {
	HTTPAddr       string
	WorkerHTTPAddr string

	OutputDir       string
	StorageBackend  string
	ContentOwnerID  string
	ContentTenantID string

	BaseSeed         int64
	MaxParallelTasks int

	OpenAIAPIKey  string
	OpenAIBaseURL string
	OpenAIModel   string

	AWSAccessKey           string
	AWSSecretKey           string
	AWSRegion              string
	ImageModelID           string
	ImageRequestsPerMinute int

	AnimatorURL     string
	AnimationFrames int

	EnrichTemplatesFile string

	DBOSDatabaseURL        string
	DBOSQueueName          string
	DBOSConcurrency        int
	DBOSApplicationVersion string

	LogLevel string
	LogJSON  bool
}

// Load reads .env (if present) and the environment into a Config
func Load() (*Config, error) {
	// Load .env file if it exists (silently ignore if not found)
	_ = godotenv.Load()
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from a lookup function
func FromEnv(getenv func(string) string) (*Config, error) {
	cfg := &Config{
		HTTPAddr:               getenv("PIPELINE_HTTP_ADDR"),
		WorkerHTTPAddr:         getenv("WORKER_HTTP_ADDR"),
		OutputDir:              getenv("OUTPUT_DIR"),
		StorageBackend:         strings.ToLower(getenv("STORAGE_BACKEND")),
		ContentOwnerID:         getenv("CONTENT_OWNER_ID"),
		ContentTenantID:        getenv("CONTENT_TENANT_ID"),
		OpenAIAPIKey:           getenv("OPENAI_API_KEY"),
		OpenAIBaseURL:          getenv("OPENAI_BASE_URL"),
		OpenAIModel:            getenv("OPENAI_MODEL"),
		AWSAccessKey:           getenv("AWS_ACCESS_KEY"),
		AWSSecretKey:           getenv("AWS_SECRET_KEY"),
		AWSRegion:              getenv("AWS_REGION"),
		ImageModelID:           getenv("IMAGE_MODEL_ID"),
		AnimatorURL:            getenv("ANIMATOR_URL"),
		EnrichTemplatesFile:    getenv("ENRICH_TEMPLATES_FILE"),
		DBOSDatabaseURL:        getenv("DBOS_SYSTEM_DATABASE_URL"),
		DBOSQueueName:          getenv("DBOS_QUEUE_NAME"),
		DBOSApplicationVersion: getenv("DBOS_APPLICATION_VERSION"),
		LogLevel:               getenv("LOG_LEVEL"),
	}

	var err error
	if cfg.BaseSeed, err = parseInt64(getenv, "BASE_SEED", pipeline.DefaultBaseSeed); err != nil {
		return nil, err
	}
	if cfg.MaxParallelTasks, err = parseInt(getenv, "MAX_PARALLEL_TASKS"); err != nil {
		return nil, err
	}
	if cfg.ImageRequestsPerMinute, err = parseInt(getenv, "IMAGE_REQUESTS_PER_MINUTE"); err != nil {
		return nil, err
	}
	if cfg.AnimationFrames, err = parseInt(getenv, "ANIMATION_FRAMES"); err != nil {
		return nil, err
	}
	if cfg.DBOSConcurrency, err = parseInt(getenv, "DBOS_CONCURRENCY"); err != nil {
		return nil, err
	}
	if v := getenv("LOG_JSON"); v != "" {
		if cfg.LogJSON, err = strconv.ParseBool(v); err != nil {
			return nil, errors.Wrapf(err, "invalid LOG_JSON %q", v)
		}
	}

	cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// WithDefaults fills in default values for optional fields
func (c *Config) WithDefaults() {
	if c.HTTPAddr == "" {
		c.HTTPAddr = ":8080"
	}
	if c.WorkerHTTPAddr == "" {
		c.WorkerHTTPAddr = ":8081"
	}
	if c.OutputDir == "" {
		c.OutputDir = "pipeline_outputs"
	}
	if c.StorageBackend == "" {
		c.StorageBackend = StorageFilesystem
	}
	if c.ContentOwnerID == "" {
		c.ContentOwnerID = "00000000-0000-0000-0000-000000000001"
	}
	if c.ContentTenantID == "" {
		c.ContentTenantID = "00000000-0000-0000-0000-000000000002"
	}
	if c.MaxParallelTasks <= 0 {
		c.MaxParallelTasks = pipeline.DefaultParallelism
	}
	if c.OpenAIBaseURL == "" {
		c.OpenAIBaseURL = "https://api.openai.com/v1"
	}
	if c.OpenAIModel == "" {
		c.OpenAIModel = "gpt-3.5-turbo"
	}
	if c.AWSRegion == "" {
		c.AWSRegion = "us-east-1"
	}
	if c.ImageModelID == "" {
		c.ImageModelID = "amazon.titan-image-generator-v1"
	}
	if c.AnimationFrames <= 0 {
		c.AnimationFrames = 16
	}
}

// Validate checks enumerated settings
func (c *Config) Validate() error {
	switch c.StorageBackend {
	case StorageFilesystem, StorageContent:
	default:
		return errors.Newf("invalid STORAGE_BACKEND %q (want %s or %s)", c.StorageBackend, StorageFilesystem, StorageContent)
	}
	return nil
}

func parseInt(getenv func(string) string, key string) (int, error) {
	v := getenv(key)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid %s %q", key, v)
	}
	return n, nil
}

func parseInt64(getenv func(string) string, key string, def int64) (int64, error) {
	v := getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid %s %q", key, v)
	}
	return n, nil
}
