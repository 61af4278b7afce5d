package overlay

import (
	"fmt"
	"image"
	"image/draw"
	"image/gif"
	"os"
	"time"

	"github.com/bryanchriswhite/focuspet/internal/logger"
)

// defaultFrameDelay is used for GIF frames that declare no delay
const defaultFrameDelay = 100 * time.Millisecond

// Animation is a decoded, fully composed frame sequence
type Animation struct {
	Path   string
	Frames []*image.RGBA
	Delays []time.Duration

	// Valid is false for the placeholder used when the asset could not be loaded
	Valid bool
}

// Size returns the intrinsic frame size, or the zero point when unknown
func (a *Animation) Size() image.Point {
	if a == nil || len(a.Frames) == 0 {
		return image.Point{}
	}
	return a.Frames[0].Bounds().Size()
}

// FrameRect returns the intrinsic frame rectangle
func (a *Animation) FrameRect() image.Rectangle {
	return image.Rectangle{Max: a.Size()}
}

// FrameCount returns the number of frames
func (a *Animation) FrameCount() int {
	if a == nil {
		return 0
	}
	return len(a.Frames)
}

// Delay returns how long frame i stays on screen
func (a *Animation) Delay(i int) time.Duration {
	if a == nil || i < 0 || i >= len(a.Delays) || a.Delays[i] <= 0 {
		return defaultFrameDelay
	}
	return a.Delays[i]
}

// LoadAnimation decodes an animated GIF and composes every frame onto the
// full logical screen, honoring each frame's disposal method.
func LoadAnimation(path string) (*Animation, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open animation: %w", err)
	}
	defer f.Close()

	g, err := gif.DecodeAll(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode animation %s: %w", path, err)
	}
	if len(g.Image) == 0 {
		return nil, fmt.Errorf("animation %s has no frames", path)
	}

	bounds := image.Rect(0, 0, g.Config.Width, g.Config.Height)
	if bounds.Empty() {
		bounds = g.Image[0].Bounds()
	}
	if bounds.Empty() {
		return nil, fmt.Errorf("animation %s has an empty frame rect", path)
	}

	anim := &Animation{
		Path:   path,
		Frames: make([]*image.RGBA, 0, len(g.Image)),
		Delays: make([]time.Duration, 0, len(g.Image)),
		Valid:  true,
	}

	canvas := image.NewRGBA(bounds)
	for i, frame := range g.Image {
		var previous *image.RGBA
		disposal := byte(gif.DisposalNone)
		if i < len(g.Disposal) {
			disposal = g.Disposal[i]
		}
		if disposal == gif.DisposalPrevious {
			previous = cloneRGBA(canvas)
		}

		draw.Draw(canvas, frame.Bounds(), frame, frame.Bounds().Min, draw.Over)
		anim.Frames = append(anim.Frames, cloneRGBA(canvas))

		delay := defaultFrameDelay
		if i < len(g.Delay) && g.Delay[i] > 0 {
			delay = time.Duration(g.Delay[i]) * 10 * time.Millisecond
		}
		anim.Delays = append(anim.Delays, delay)

		switch disposal {
		case gif.DisposalBackground:
			draw.Draw(canvas, frame.Bounds(), image.Transparent, image.Point{}, draw.Src)
		case gif.DisposalPrevious:
			canvas = previous
		}
	}

	return anim, nil
}

// LoadOrPlaceholder loads the animation at path. A missing or invalid asset
// is logged as a warning and replaced by a size x size placeholder.
func LoadOrPlaceholder(path string, size int, label string) *Animation {
	anim, err := LoadAnimation(path)
	if err == nil {
		return anim
	}

	logger.WithComponent("overlay").Warn().
		Err(err).
		Str("asset", path).
		Int("fallback_size", size).
		Msg("Animation not found or invalid, pet will use fallback size")

	return Placeholder(path, size, label)
}

// Placeholder returns a single-frame animation drawn without any asset
func Placeholder(path string, size int, label string) *Animation {
	return &Animation{
		Path:   path,
		Frames: []*image.RGBA{renderPlaceholder(size, label)},
		Delays: []time.Duration{time.Second},
		Valid:  false,
	}
}

func cloneRGBA(src *image.RGBA) *image.RGBA {
	dst := image.NewRGBA(src.Bounds())
	copy(dst.Pix, src.Pix)
	return dst
}
