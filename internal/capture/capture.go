package capture

import (
	"errors"
	"fmt"
	"image"
	"sort"
	"sync"
	"time"

	"github.com/bryanchriswhite/focuspet/internal/config"
	"github.com/google/uuid"
)

// ErrUnknownBackend is returned by New for a backend nobody registered
var ErrUnknownBackend = errors.New("unknown capture backend")

// Frame is one camera image. It is owned by whoever acquired it and is not
// shared after it has been classified.
type Frame struct {
	Seq       uint64
	TraceID   string
	Timestamp time.Time
	Image     *image.RGBA
}

// NewFrame stamps an image with sequence, trace ID and capture time
func NewFrame(seq uint64, img *image.RGBA) *Frame {
	return &Frame{
		Seq:       seq,
		TraceID:   uuid.New().String(),
		Timestamp: time.Now(),
		Image:     img,
	}
}

// Valid reports whether the frame carries pixels worth classifying
func (f *Frame) Valid() bool {
	if f == nil || f.Image == nil {
		return false
	}
	return !f.Image.Rect.Empty() && len(f.Image.Pix) > 0
}

// Source defines the interface for camera backends
type Source interface {
	// Open acquires the camera. Called once, from the goroutine that will read it.
	Open() error

	// Acquire returns the next frame, or nil when none is available right now.
	// It must never block for long and never fail on transient unavailability.
	Acquire() *Frame

	// Close releases the camera
	Close() error

	// Name returns a human-readable name for this source
	Name() string
}

// Factory builds a Source from camera configuration
type Factory func(cfg config.CameraConfig) (Source, error)

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Factory)
)

// Register makes a backend available to New. Backends call it from init.
func Register(name string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = factory
}

// Backends lists the registered backend names
func Backends() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// New creates the source named by cfg.Backend
func New(cfg config.CameraConfig) (Source, error) {
	registryMu.RLock()
	factory, ok := registry[cfg.Backend]
	registryMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %q (available: %v)", ErrUnknownBackend, cfg.Backend, Backends())
	}

	src, err := factory(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s source: %w", cfg.Backend, err)
	}
	return src, nil
}

// RGBAFromPacked copies tightly packed RGBA bytes into a new image. It returns
// nil when data is shorter than width*height*4.
func RGBAFromPacked(data []byte, width, height int) *image.RGBA {
	if width <= 0 || height <= 0 {
		return nil
	}
	size := width * height * 4
	if len(data) < size {
		return nil
	}
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	copy(img.Pix, data[:size])
	return img
}
