package capture

import (
	"errors"
	"image"
	"testing"

	"github.com/bryanchriswhite/focuspet/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nopSource struct{ name string }

func (n *nopSource) Open() error     { return nil }
func (n *nopSource) Acquire() *Frame { return nil }
func (n *nopSource) Close() error    { return nil }
func (n *nopSource) Name() string    { return n.name }

func TestFrameValid(t *testing.T) {
	var nilFrame *Frame

	tests := []struct {
		name  string
		frame *Frame
		want  bool
	}{
		{"nil frame", nilFrame, false},
		{"nil image", &Frame{}, false},
		{"zero sized", &Frame{Image: image.NewRGBA(image.Rect(0, 0, 0, 0))}, false},
		{"zero width", &Frame{Image: image.NewRGBA(image.Rect(0, 0, 0, 10))}, false},
		{"valid", &Frame{Image: image.NewRGBA(image.Rect(0, 0, 4, 3))}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.frame.Valid())
		})
	}
}

func TestNewFrameStampsMetadata(t *testing.T) {
	a := NewFrame(1, image.NewRGBA(image.Rect(0, 0, 1, 1)))
	b := NewFrame(2, image.NewRGBA(image.Rect(0, 0, 1, 1)))

	assert.Equal(t, uint64(1), a.Seq)
	assert.NotEmpty(t, a.TraceID)
	assert.NotEqual(t, a.TraceID, b.TraceID)
	assert.False(t, a.Timestamp.IsZero())
}

func TestRegistry(t *testing.T) {
	Register("test-nop", func(cfg config.CameraConfig) (Source, error) {
		return &nopSource{name: cfg.Device}, nil
	})
	Register("test-broken", func(cfg config.CameraConfig) (Source, error) {
		return nil, errors.New("no camera")
	})

	assert.Contains(t, Backends(), "test-nop")

	src, err := New(config.CameraConfig{Backend: "test-nop", Device: "/dev/video9"})
	require.NoError(t, err)
	assert.Equal(t, "/dev/video9", src.Name())

	_, err = New(config.CameraConfig{Backend: "test-broken"})
	assert.Error(t, err)

	_, err = New(config.CameraConfig{Backend: "missing"})
	assert.ErrorIs(t, err, ErrUnknownBackend)
}

func TestRGBAFromPacked(t *testing.T) {
	data := []byte{
		1, 2, 3, 4, 5, 6, 7, 8,
		9, 10, 11, 12, 13, 14, 15, 16,
	}

	img := RGBAFromPacked(data, 2, 2)
	require.NotNil(t, img)
	assert.Equal(t, image.Rect(0, 0, 2, 2), img.Bounds())
	assert.Equal(t, uint8(13), img.RGBAAt(1, 1).R)

	assert.Nil(t, RGBAFromPacked(data[:10], 2, 2))
	assert.Nil(t, RGBAFromPacked(data, 0, 2))
}
