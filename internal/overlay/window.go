// Package overlay implements the on-screen pet: a borderless, always-on-top
// window that distraction can only ever show and that only the user can
// close.
package overlay

import (
	"fmt"
	"image"
	"time"

	"github.com/bryanchriswhite/focuspet/internal/config"
	"github.com/bryanchriswhite/focuspet/internal/logger"
	"github.com/rs/zerolog"
)

// Window is the overlay visibility state machine.
//
// Once shown, the window is locked: Hide becomes a no-op and only UserClose
// hides it again. A Window is not safe for concurrent use; it belongs to the
// UI event loop.
type Window struct {
	surface Surface
	anim    *Animation
	log     *zerolog.Logger

	bounds  image.Rectangle
	visible bool
	locked  bool

	dragging bool
	dragFrom image.Point

	frame        int
	ignoredHides uint64
}

// NewWindow sizes the window to the animation (or cfg.FallbackSize when the
// animation has no usable size) and anchors it to the bottom-right of the
// available screen area. The window starts hidden.
func NewWindow(surface Surface, anim *Animation, cfg config.OverlayConfig) (*Window, error) {
	if anim == nil || anim.FrameCount() == 0 {
		anim = Placeholder(cfg.Asset, cfg.FallbackSize, cfg.Title)
	}

	size := anim.Size()
	if size.X <= 0 || size.Y <= 0 {
		size = image.Pt(cfg.FallbackSize, cfg.FallbackSize)
	}

	w := &Window{
		surface: surface,
		anim:    anim,
		log:     logger.WithComponent("overlay"),
		bounds: Anchor(surface.AvailableArea(), size, Margins{
			Right:  cfg.MarginRight,
			Bottom: cfg.MarginBottom,
		}),
	}

	if err := surface.Configure(w.bounds); err != nil {
		return nil, fmt.Errorf("failed to place overlay: %w", err)
	}

	w.log.Debug().
		Str("asset", anim.Path).
		Bool("valid", anim.Valid).
		Str("frame_rect", anim.FrameRect().String()).
		Int("frame_count", anim.FrameCount()).
		Str("bounds", w.bounds.String()).
		Msg("Overlay created")

	return w, nil
}

// Show maps the window, raises it above everything else, engages the lock
// and takes keyboard focus. Calling it while shown re-raises and re-focuses.
func (w *Window) Show() error {
	if !w.visible {
		if err := w.surface.Map(); err != nil {
			return fmt.Errorf("failed to map overlay: %w", err)
		}
		// window managers may place a newly mapped window themselves
		if err := w.surface.Configure(w.bounds); err != nil {
			w.log.Warn().Err(err).Msg("Failed to restore overlay position")
		}
		w.visible = true
	}
	w.locked = true

	if err := w.surface.Raise(); err != nil {
		w.log.Warn().Err(err).Msg("Failed to raise overlay")
	}
	if err := w.surface.Focus(); err != nil {
		w.log.Debug().Err(err).Msg("Failed to focus overlay")
	}

	w.redraw()
	return nil
}

// Hide is the automated hide path. It does nothing while the lock is
// engaged.
func (w *Window) Hide() error {
	if w.locked {
		w.ignoredHides++
		w.log.Debug().Uint64("ignored", w.ignoredHides).Msg("hide() ignored because pet is locked (only user can close)")
		return nil
	}
	if !w.visible {
		return nil
	}

	if err := w.surface.Unmap(); err != nil {
		return fmt.Errorf("failed to unmap overlay: %w", err)
	}
	w.visible = false
	return nil
}

// UserClose disengages the lock and hides the window, whatever its state
func (w *Window) UserClose() error {
	w.locked = false
	w.dragging = false
	if !w.visible {
		return nil
	}

	if err := w.surface.Unmap(); err != nil {
		return fmt.Errorf("failed to unmap overlay: %w", err)
	}
	w.visible = false
	w.log.Info().Msg("Pet closed by user")
	return nil
}

// HandleEvent applies one surface event
func (w *Window) HandleEvent(ev Event) error {
	switch ev.Kind {
	case EventKeyPress:
		if ev.Key == KeyEscape {
			return w.UserClose()
		}
	case EventCloseRequest:
		return w.Hide()
	case EventButtonPress:
		w.dragging = true
		w.dragFrom = ev.Pointer
	case EventMotion:
		if w.dragging {
			return w.drag(ev.Pointer)
		}
	case EventButtonRelease:
		w.dragging = false
	case EventExpose:
		w.redraw()
	}
	return nil
}

// drag moves the window by the pointer delta since the previous event
func (w *Window) drag(to image.Point) error {
	delta := to.Sub(w.dragFrom)
	w.dragFrom = to
	if delta == (image.Point{}) {
		return nil
	}

	next := clampTo(w.bounds.Add(delta), w.surface.Screen())
	if next == w.bounds {
		return nil
	}
	if err := w.surface.Configure(next); err != nil {
		return fmt.Errorf("failed to move overlay: %w", err)
	}
	w.bounds = next
	return nil
}

// Tick advances the animation by one frame and returns how long that frame
// should stay on screen. Frames only advance while the window is visible.
func (w *Window) Tick() time.Duration {
	if w.visible && w.anim.FrameCount() > 1 {
		w.frame = (w.frame + 1) % w.anim.FrameCount()
		w.redraw()
	}
	return w.anim.Delay(w.frame)
}

func (w *Window) redraw() {
	if !w.visible || w.anim.FrameCount() == 0 {
		return
	}
	if err := w.surface.Draw(compose(w.anim.Frames[w.frame])); err != nil {
		w.log.Debug().Err(err).Int("frame", w.frame).Msg("Failed to draw overlay frame")
	}
}

// Visible reports whether the window is mapped
func (w *Window) Visible() bool { return w.visible }

// Locked reports whether only the user can hide the window
func (w *Window) Locked() bool { return w.locked }

// Position returns the window's top-left corner in screen coordinates
func (w *Window) Position() image.Point { return w.bounds.Min }

// Bounds returns the window geometry
func (w *Window) Bounds() image.Rectangle { return w.bounds }

// Animation returns the animation being played
func (w *Window) Animation() *Animation { return w.anim }
