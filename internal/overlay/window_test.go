package overlay

import (
	"image"
	"testing"
	"time"

	"github.com/bryanchriswhite/focuspet/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSurface records calls instead of talking to a display server
type fakeSurface struct {
	screen    image.Rectangle
	available image.Rectangle
	bounds    image.Rectangle
	mapped    bool

	maps, unmaps, raises, focuses, draws int

	events chan Event
}

func newFakeSurface() *fakeSurface {
	return &fakeSurface{
		screen:    image.Rect(0, 0, 1920, 1080),
		available: image.Rect(0, 0, 1920, 1040),
		events:    make(chan Event),
	}
}

func (s *fakeSurface) Screen() image.Rectangle        { return s.screen }
func (s *fakeSurface) AvailableArea() image.Rectangle { return s.available }
func (s *fakeSurface) Configure(b image.Rectangle) error {
	s.bounds = b
	return nil
}
func (s *fakeSurface) Map() error                 { s.mapped = true; s.maps++; return nil }
func (s *fakeSurface) Unmap() error               { s.mapped = false; s.unmaps++; return nil }
func (s *fakeSurface) Raise() error               { s.raises++; return nil }
func (s *fakeSurface) Focus() error               { s.focuses++; return nil }
func (s *fakeSurface) Draw(img *image.RGBA) error { s.draws++; return nil }
func (s *fakeSurface) Events() <-chan Event       { return s.events }
func (s *fakeSurface) Close() error               { return nil }

func testOverlayConfig() config.OverlayConfig {
	return config.OverlayConfig{
		Asset:        "missing.gif",
		FallbackSize: 200,
		MarginRight:  20,
		MarginBottom: 60,
		Title:        "focuspet",
	}
}

func newTestWindow(t *testing.T) (*Window, *fakeSurface) {
	t.Helper()
	s := newFakeSurface()
	cfg := testOverlayConfig()
	w, err := NewWindow(s, Placeholder(cfg.Asset, cfg.FallbackSize, cfg.Title), cfg)
	require.NoError(t, err)
	return w, s
}

func TestNewWindowAnchorsBottomRight(t *testing.T) {
	w, s := newTestWindow(t)

	assert.Equal(t, image.Pt(1920-200-20, 1040-200-60), w.Position())
	assert.Equal(t, w.Bounds(), s.bounds)
	assert.False(t, w.Visible())
	assert.False(t, w.Locked())
}

func TestNewWindowWithoutAnimationUsesFallbackSize(t *testing.T) {
	s := newFakeSurface()
	w, err := NewWindow(s, nil, testOverlayConfig())
	require.NoError(t, err)

	assert.Equal(t, image.Pt(200, 200), w.Bounds().Size())
	assert.False(t, w.Animation().Valid)
}

func TestShowLocksAndFocuses(t *testing.T) {
	w, s := newTestWindow(t)

	require.NoError(t, w.Show())
	assert.True(t, w.Visible())
	assert.True(t, w.Locked())
	assert.True(t, s.mapped)
	assert.Equal(t, 1, s.focuses)
	assert.Equal(t, 1, s.raises)
	assert.Positive(t, s.draws)

	// showing again re-raises without mapping twice
	require.NoError(t, w.Show())
	assert.Equal(t, 1, s.maps)
	assert.Equal(t, 2, s.raises)
	assert.True(t, w.Locked())
}

func TestHideIgnoredWhileLocked(t *testing.T) {
	w, s := newTestWindow(t)
	require.NoError(t, w.Show())

	for i := 0; i < 1000; i++ {
		require.NoError(t, w.Hide())
	}

	assert.True(t, w.Visible())
	assert.True(t, w.Locked())
	assert.Zero(t, s.unmaps)
}

func TestUserClose(t *testing.T) {
	w, s := newTestWindow(t)
	require.NoError(t, w.Show())

	require.NoError(t, w.UserClose())
	assert.False(t, w.Visible())
	assert.False(t, w.Locked())
	assert.Equal(t, 1, s.unmaps)

	// already hidden
	require.NoError(t, w.UserClose())
	assert.False(t, w.Visible())
	assert.False(t, w.Locked())
	assert.Equal(t, 1, s.unmaps)

	// Hide on an unlocked, hidden window stays a no-op
	require.NoError(t, w.Hide())
	assert.False(t, w.Visible())
}

func TestShowAfterUserCloseLocksAgain(t *testing.T) {
	w, _ := newTestWindow(t)
	require.NoError(t, w.Show())
	require.NoError(t, w.UserClose())

	require.NoError(t, w.Show())
	assert.True(t, w.Visible())
	assert.True(t, w.Locked())
}

func TestEscapeClosesAndCloseRequestDoesNot(t *testing.T) {
	w, _ := newTestWindow(t)
	require.NoError(t, w.Show())

	require.NoError(t, w.HandleEvent(Event{Kind: EventCloseRequest}))
	assert.True(t, w.Visible(), "window manager close must not dismiss a locked pet")

	require.NoError(t, w.HandleEvent(Event{Kind: EventKeyPress, Key: KeyOther}))
	assert.True(t, w.Visible())

	require.NoError(t, w.HandleEvent(Event{Kind: EventKeyPress, Key: KeyEscape}))
	assert.False(t, w.Visible())
	assert.False(t, w.Locked())
}

func TestDrag(t *testing.T) {
	w, s := newTestWindow(t)
	require.NoError(t, w.Show())
	start := w.Position()

	require.NoError(t, w.HandleEvent(Event{Kind: EventButtonPress, Pointer: image.Pt(1000, 900)}))
	require.NoError(t, w.HandleEvent(Event{Kind: EventMotion, Pointer: image.Pt(990, 880)}))
	require.NoError(t, w.HandleEvent(Event{Kind: EventMotion, Pointer: image.Pt(900, 800)}))
	require.NoError(t, w.HandleEvent(Event{Kind: EventButtonRelease, Pointer: image.Pt(900, 800)}))

	assert.Equal(t, start.Add(image.Pt(-100, -100)), w.Position())
	assert.Equal(t, w.Bounds(), s.bounds)

	// motion without a held button does nothing
	require.NoError(t, w.HandleEvent(Event{Kind: EventMotion, Pointer: image.Pt(0, 0)}))
	assert.Equal(t, start.Add(image.Pt(-100, -100)), w.Position())
}

func TestDragClampedToScreen(t *testing.T) {
	w, _ := newTestWindow(t)
	require.NoError(t, w.Show())

	require.NoError(t, w.HandleEvent(Event{Kind: EventButtonPress, Pointer: image.Pt(100, 100)}))
	require.NoError(t, w.HandleEvent(Event{Kind: EventMotion, Pointer: image.Pt(5000, 5000)}))
	assert.Equal(t, image.Rect(1720, 880, 1920, 1080), w.Bounds())

	require.NoError(t, w.HandleEvent(Event{Kind: EventMotion, Pointer: image.Pt(-5000, -5000)}))
	assert.Equal(t, image.Pt(0, 0), w.Position())
}

func TestTickAdvancesOnlyWhileVisible(t *testing.T) {
	s := newFakeSurface()
	anim := &Animation{
		Frames: []*image.RGBA{
			image.NewRGBA(image.Rect(0, 0, 10, 10)),
			image.NewRGBA(image.Rect(0, 0, 10, 10)),
		},
		Delays: []time.Duration{50 * time.Millisecond, 70 * time.Millisecond},
		Valid:  true,
	}
	w, err := NewWindow(s, anim, testOverlayConfig())
	require.NoError(t, err)

	w.Tick()
	assert.Zero(t, w.frame)
	assert.Zero(t, s.draws)

	require.NoError(t, w.Show())
	draws := s.draws
	assert.Equal(t, anim.Delays[1], w.Tick())
	assert.Equal(t, 1, w.frame)
	assert.Equal(t, draws+1, s.draws)

	assert.Equal(t, anim.Delays[0], w.Tick())
	assert.Zero(t, w.frame)
}

func TestExposeRedraws(t *testing.T) {
	w, s := newTestWindow(t)

	require.NoError(t, w.HandleEvent(Event{Kind: EventExpose}))
	assert.Zero(t, s.draws, "hidden windows do not draw")

	require.NoError(t, w.Show())
	draws := s.draws
	require.NoError(t, w.HandleEvent(Event{Kind: EventExpose}))
	assert.Equal(t, draws+1, s.draws)
}
