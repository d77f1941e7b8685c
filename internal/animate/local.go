package animate

import (
	"bytes"
	"context"
	"image"
	"image/color/palette"
	"image/draw"
	"image/gif"

	"github.com/cockroachdb/errors"
	"github.com/disintegration/imaging"
	"go.uber.org/zap"

	"github.com/tendant/simple-animation-pipeline/internal/storage"
)

// LocalConfig configures a LocalAnimator
type LocalConfig struct {
	Frames int
	Size   int     // output edge in pixels; 0 = 256
	Zoom   float64 // peak zoom factor; 0 = 1.3
	Delay  int     // per-frame delay in 100ths of a second; 0 = 8
	Logger *zap.SugaredLogger
}

// LocalAnimator renders a looping zoom-and-pan GIF from the still without any
// external service. The seed picks the pan direction, so output is reproducible.
type LocalAnimator struct {
	frames int
	size   int
	zoom   float64
	delay  int
	store  storage.ArtifactStore
	logger *zap.SugaredLogger
}

var panAnchors = []imaging.Anchor{
	imaging.Center,
	imaging.TopLeft,
	imaging.TopRight,
	imaging.BottomLeft,
	imaging.BottomRight,
}

// NewLocalAnimator creates a local animator that reads and writes through store
func NewLocalAnimator(store storage.ArtifactStore, cfg LocalConfig) *LocalAnimator {
	if cfg.Frames <= 0 {
		cfg.Frames = DefaultFrames
	}
	if cfg.Size <= 0 {
		cfg.Size = 256
	}
	if cfg.Zoom <= 1 {
		cfg.Zoom = 1.3
	}
	if cfg.Delay <= 0 {
		cfg.Delay = 8
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop().Sugar()
	}

	return &LocalAnimator{
		frames: cfg.Frames,
		size:   cfg.Size,
		zoom:   cfg.Zoom,
		delay:  cfg.Delay,
		store:  store,
		logger: cfg.Logger,
	}
}

// Animate renders the animation and stores it under filenameHint
func (a *LocalAnimator) Animate(ctx context.Context, imageRef, prompt string, seed int64, filenameHint string) (string, bool, error) {
	rc, err := a.store.Open(ctx, imageRef)
	if err != nil {
		return "", false, errors.Wrap(err, "open image")
	}
	src, err := imaging.Decode(rc)
	rc.Close()
	if err != nil {
		return "", false, errors.Wrap(err, "decode image")
	}

	anim, err := a.Render(ctx, src, seed)
	if err != nil {
		return "", false, err
	}

	var buf bytes.Buffer
	if err := gif.EncodeAll(&buf, anim); err != nil {
		return "", false, errors.Wrap(err, "encode gif")
	}

	ref, err := a.store.PutAnimation(ctx, imageRef, filenameHint, &buf)
	if err != nil {
		return "", false, errors.Wrap(err, "store animation")
	}
	a.logger.Infow("Animation rendered", "ref", ref, "frames", a.frames, "seed", seed)
	return ref, true, nil
}

// Render builds the frames: zoom rises then falls so the loop is seamless
func (a *LocalAnimator) Render(ctx context.Context, src image.Image, seed int64) (*gif.GIF, error) {
	base := imaging.Fill(src, a.size, a.size, imaging.Center, imaging.Lanczos)
	anchor := panAnchors[int(uint64(seed)%uint64(len(panAnchors)))]

	out := &gif.GIF{LoopCount: 0}
	for i := 0; i < a.frames; i++ {
		if err := ctx.Err(); err != nil {
			return nil, errors.Wrap(err, "render cancelled")
		}

		scale := 1 + (a.zoom-1)*triangle(i, a.frames)
		side := int(float64(a.size) / scale)
		if side < 1 {
			side = 1
		}
		frame := imaging.Resize(imaging.CropAnchor(base, side, side, anchor), a.size, a.size, imaging.Linear)

		pm := image.NewPaletted(frame.Bounds(), palette.Plan9)
		draw.FloydSteinberg.Draw(pm, frame.Bounds(), frame, image.Point{})

		out.Image = append(out.Image, pm)
		out.Delay = append(out.Delay, a.delay)
	}
	return out, nil
}

// triangle maps frame i of n onto 0..1..0
func triangle(i, n int) float64 {
	if n <= 1 {
		return 0
	}
	t := float64(i) / float64(n)
	if t <= 0.5 {
		return t * 2
	}
	return (1 - t) * 2
}
