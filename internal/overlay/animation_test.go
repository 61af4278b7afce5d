package overlay

import (
	"image"
	"image/color"
	"image/gif"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeGIF(t *testing.T, g *gif.GIF) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pet.gif")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, gif.EncodeAll(f, g))
	require.NoError(t, f.Close())
	return path
}

func TestLoadAnimation(t *testing.T) {
	palette := color.Palette{color.Transparent, color.RGBA{R: 255, A: 255}, color.RGBA{B: 255, A: 255}}

	first := image.NewPaletted(image.Rect(0, 0, 40, 30), palette)
	first.SetColorIndex(0, 0, 1)
	// second frame only covers a corner; the rest must carry over
	second := image.NewPaletted(image.Rect(20, 10, 40, 30), palette)
	second.SetColorIndex(39, 29, 2)

	path := writeGIF(t, &gif.GIF{
		Image:    []*image.Paletted{first, second},
		Delay:    []int{5, 0},
		Disposal: []byte{gif.DisposalNone, gif.DisposalNone},
		Config:   image.Config{Width: 40, Height: 30, ColorModel: palette},
	})

	anim, err := LoadAnimation(path)
	require.NoError(t, err)

	assert.True(t, anim.Valid)
	assert.Equal(t, 2, anim.FrameCount())
	assert.Equal(t, image.Pt(40, 30), anim.Size())
	assert.Equal(t, image.Rect(0, 0, 40, 30), anim.FrameRect())
	assert.Equal(t, 50*time.Millisecond, anim.Delay(0))
	assert.Equal(t, defaultFrameDelay, anim.Delay(1))

	assert.Equal(t, color.RGBA{R: 255, A: 255}, anim.Frames[1].RGBAAt(0, 0))
	assert.Equal(t, color.RGBA{B: 255, A: 255}, anim.Frames[1].RGBAAt(39, 29))
	assert.Equal(t, color.RGBA{}, anim.Frames[0].RGBAAt(39, 29))
}

func TestLoadAnimationMissing(t *testing.T) {
	_, err := LoadAnimation(filepath.Join(t.TempDir(), "nope.gif"))
	assert.Error(t, err)
}

func TestLoadAnimationInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.gif")
	require.NoError(t, os.WriteFile(path, []byte("not a gif"), 0o644))

	_, err := LoadAnimation(path)
	assert.Error(t, err)
}

func TestLoadOrPlaceholder(t *testing.T) {
	anim := LoadOrPlaceholder(filepath.Join(t.TempDir(), "nope.gif"), 120, "focuspet")

	assert.False(t, anim.Valid)
	assert.Equal(t, 1, anim.FrameCount())
	assert.Equal(t, image.Pt(120, 120), anim.Size())
}

func TestPlaceholderDrawsLabel(t *testing.T) {
	img := Placeholder("", 100, "focuspet").Frames[0]

	textPixels := 0
	for y := 0; y < 100; y++ {
		for x := 0; x < 100; x++ {
			if img.RGBAAt(x, y) == placeholderText {
				textPixels++
			}
		}
	}
	assert.Positive(t, textPixels)
	assert.Equal(t, placeholderFill, img.RGBAAt(0, 0))
}

func TestCompose(t *testing.T) {
	frame := image.NewRGBA(image.Rect(0, 0, 2, 1))
	frame.SetRGBA(1, 0, color.RGBA{G: 255, A: 255})

	out := compose(frame)
	assert.Equal(t, background, out.RGBAAt(0, 0))
	assert.Equal(t, color.RGBA{G: 255, A: 255}, out.RGBAAt(1, 0))
}

func TestBlendImageClips(t *testing.T) {
	dst := image.NewRGBA(image.Rect(0, 0, 4, 4))
	src := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for i := range src.Pix {
		src.Pix[i] = 255
	}

	BlendImage(dst, src, 2, 2, 1.0)

	assert.Equal(t, color.RGBA{}, dst.RGBAAt(1, 1))
	assert.Equal(t, color.RGBA{R: 255, G: 255, B: 255, A: 255}, dst.RGBAAt(3, 3))
}

func TestAnchor(t *testing.T) {
	area := image.Rect(0, 24, 1920, 1080)
	got := Anchor(area, image.Pt(200, 150), Margins{Right: 20, Bottom: 60})

	assert.Equal(t, image.Rect(1700, 870, 1900, 1020), got)
}

func TestClampTo(t *testing.T) {
	screen := image.Rect(0, 0, 100, 100)

	tests := []struct {
		name string
		in   image.Rectangle
		want image.Rectangle
	}{
		{"inside", image.Rect(10, 10, 20, 20), image.Rect(10, 10, 20, 20)},
		{"past right and bottom", image.Rect(95, 95, 105, 105), image.Rect(90, 90, 100, 100)},
		{"past left and top", image.Rect(-5, -5, 5, 5), image.Rect(0, 0, 10, 10)},
		{"larger than screen", image.Rect(-10, -10, 140, 140), image.Rect(0, 0, 150, 150)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, clampTo(tt.in, screen))
		})
	}
}
