package overlay

import "image"

// EventKind identifies an input or window-system event delivered by a Surface
type EventKind int

const (
	EventExpose EventKind = iota
	EventKeyPress
	EventButtonPress
	EventMotion
	EventButtonRelease
	// EventCloseRequest is the window manager asking the window to close
	EventCloseRequest
)

func (k EventKind) String() string {
	switch k {
	case EventExpose:
		return "expose"
	case EventKeyPress:
		return "key-press"
	case EventButtonPress:
		return "button-press"
	case EventMotion:
		return "motion"
	case EventButtonRelease:
		return "button-release"
	case EventCloseRequest:
		return "close-request"
	default:
		return "unknown"
	}
}

// Key is a keyboard key the overlay cares about
type Key int

const (
	KeyOther Key = iota
	KeyEscape
)

// Event is one surface event. Pointer is in screen coordinates and is only
// meaningful for pointer events.
type Event struct {
	Kind    EventKind
	Key     Key
	Pointer image.Point
}

// Surface is the native window behind the overlay. Implementations deliver
// events on a channel and must accept calls only from the goroutine that
// owns the Window.
type Surface interface {
	// Screen returns the full geometry of the primary display
	Screen() image.Rectangle

	// AvailableArea returns the part of the display not covered by panels
	// and docks
	AvailableArea() image.Rectangle

	// Configure moves and resizes the window
	Configure(bounds image.Rectangle) error

	Map() error
	Unmap() error
	Raise() error
	Focus() error

	// Draw replaces the window contents. img is sized to the window.
	Draw(img *image.RGBA) error

	// Events is closed when the surface is closed
	Events() <-chan Event

	Close() error
}
