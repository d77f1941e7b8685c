package animate

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/disintegration/imaging"
	"go.uber.org/zap"

	"github.com/tendant/simple-animation-pipeline/internal/storage"
)

const (
	// DefaultFrames is the number of frames requested per animation
	DefaultFrames = 16

	// DefaultNegativePrompt is sent with every remote animation request
	DefaultNegativePrompt = "blurry, bad quality, distorted"

	defaultRemoteTimeout = 30 * time.Second
	maxUploadSide        = 512
)

// RemoteConfig configures a RemoteAnimator
type RemoteConfig struct {
	URL            string
	Frames         int
	NegativePrompt string
	Timeout        time.Duration
	Logger         *zap.SugaredLogger
}

// RemoteAnimator sends a still to an image-to-animation service at <URL>/generate.
// It reports failure by flag: any transport, status or decoding problem is
// logged and returned as ("", false, nil).
type RemoteAnimator struct {
	endpoint       string
	frames         int
	negativePrompt string
	client         *http.Client
	store          storage.ArtifactStore
	logger         *zap.SugaredLogger
}

// NewRemoteAnimator creates a remote animator that reads and writes through store
func NewRemoteAnimator(store storage.ArtifactStore, cfg RemoteConfig) *RemoteAnimator {
	if cfg.Frames <= 0 {
		cfg.Frames = DefaultFrames
	}
	if cfg.NegativePrompt == "" {
		cfg.NegativePrompt = DefaultNegativePrompt
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultRemoteTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop().Sugar()
	}

	return &RemoteAnimator{
		endpoint:       strings.TrimRight(cfg.URL, "/") + "/generate",
		frames:         cfg.Frames,
		negativePrompt: cfg.NegativePrompt,
		client:         &http.Client{Timeout: cfg.Timeout},
		store:          store,
		logger:         cfg.Logger,
	}
}

type generateRequest struct {
	Image          string `json:"image"`
	Prompt         string `json:"prompt"`
	NegativePrompt string `json:"negative_prompt"`
	Seed           int64  `json:"seed"`
	NumFrames      int    `json:"num_frames"`
}

type generateResponse struct {
	Animation string `json:"animation"`
}

// Animate turns the image at imageRef into an animation stored under filenameHint
func (a *RemoteAnimator) Animate(ctx context.Context, imageRef, prompt string, seed int64, filenameHint string) (string, bool, error) {
	ref, err := a.animate(ctx, imageRef, prompt, seed, filenameHint)
	if err != nil {
		a.logger.Warnw("Remote animation failed", "image", imageRef, "seed", seed, "endpoint", a.endpoint, "error", err)
		return "", false, nil
	}
	a.logger.Infow("Animation saved", "ref", ref, "seed", seed)
	return ref, true, nil
}

func (a *RemoteAnimator) animate(ctx context.Context, imageRef, prompt string, seed int64, filenameHint string) (string, error) {
	payload, err := a.encodeImage(ctx, imageRef)
	if err != nil {
		return "", err
	}

	body, err := json.Marshal(generateRequest{
		Image:          payload,
		Prompt:         prompt,
		NegativePrompt: a.negativePrompt,
		Seed:           seed,
		NumFrames:      a.frames,
	})
	if err != nil {
		return "", errors.Wrap(err, "marshal request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", errors.Wrap(err, "create request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return "", errors.Wrap(err, "send request")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", errors.Newf("animation service returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var out generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", errors.Wrap(err, "decode response")
	}
	if out.Animation == "" {
		return "", errors.New("response has no animation")
	}
	data, err := base64.StdEncoding.DecodeString(out.Animation)
	if err != nil {
		return "", errors.Wrap(err, "decode animation")
	}

	return a.store.PutAnimation(ctx, imageRef, filenameHint, bytes.NewReader(data))
}

// encodeImage loads the still, shrinks it to fit the upload box and returns base64 PNG
func (a *RemoteAnimator) encodeImage(ctx context.Context, imageRef string) (string, error) {
	rc, err := a.store.Open(ctx, imageRef)
	if err != nil {
		return "", errors.Wrap(err, "open image")
	}
	defer rc.Close()

	img, err := imaging.Decode(rc)
	if err != nil {
		return "", errors.Wrap(err, "decode image")
	}

	b := img.Bounds()
	if b.Dx() > maxUploadSide || b.Dy() > maxUploadSide {
		img = imaging.Fit(img, maxUploadSide, maxUploadSide, imaging.Lanczos)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return "", errors.Wrap(err, "encode image")
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}
