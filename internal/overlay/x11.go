package overlay

import (
	"fmt"
	"image"
	"sync"

	"github.com/BurntSushi/xgb"
	"github.com/BurntSushi/xgb/xproto"
	"github.com/bryanchriswhite/focuspet/internal/logger"
	"github.com/rs/zerolog"
)

const (
	keysymEscape = 0xff1b

	// _MOTIF_WM_HINTS flags
	motifHintsDecorations = 1 << 1

	// WM_NORMAL_HINTS flags
	sizeHintUSPosition = 1 << 0
	sizeHintPMinSize   = 1 << 4
	sizeHintPMaxSize   = 1 << 5

	eventsBuffer = 32
)

// X11Surface is a Surface backed by a plain X11 window
type X11Surface struct {
	conn   *xgb.Conn
	screen *xproto.ScreenInfo
	win    xproto.Window
	gc     xproto.Gcontext
	log    *zerolog.Logger

	wmProtocols  xproto.Atom
	wmDelete     xproto.Atom
	escapeCodes  map[xproto.Keycode]bool
	bitsPerPixel int
	scanlinePad  int
	maxRequest   int

	mu     sync.Mutex
	bounds image.Rectangle
	closed bool

	events   chan Event
	stopChan chan struct{}
}

// NewX11Surface connects to the X server named by $DISPLAY and creates an
// unmapped, undecorated utility window that stays above other windows.
func NewX11Surface(title string) (*X11Surface, error) {
	conn, err := xgb.NewConn()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to X server: %w", err)
	}

	setup := xproto.Setup(conn)
	s := &X11Surface{
		conn:        conn,
		screen:      setup.DefaultScreen(conn),
		log:         logger.WithComponent("x11-surface"),
		escapeCodes: make(map[xproto.Keycode]bool),
		maxRequest:  int(setup.MaximumRequestLength) * 4,
		events:      make(chan Event, eventsBuffer),
		stopChan:    make(chan struct{}),
	}

	for _, format := range setup.PixmapFormats {
		if format.Depth == s.screen.RootDepth {
			s.bitsPerPixel = int(format.BitsPerPixel)
			s.scanlinePad = int(format.ScanlinePad)
			break
		}
	}
	if s.bitsPerPixel != 24 && s.bitsPerPixel != 32 {
		conn.Close()
		return nil, fmt.Errorf("unsupported pixmap format for depth %d: %d bits per pixel", s.screen.RootDepth, s.bitsPerPixel)
	}

	if err := s.createWindow(title); err != nil {
		conn.Close()
		return nil, err
	}

	if err := s.loadEscapeKeycodes(setup); err != nil {
		s.log.Warn().Err(err).Msg("Failed to read keyboard mapping, Escape will not close the pet")
	}

	go s.eventLoop()

	s.log.Info().
		Uint32("window_id", uint32(s.win)).
		Str("screen", s.Screen().String()).
		Str("available", s.AvailableArea().String()).
		Msg("Overlay window created")

	return s, nil
}

func (s *X11Surface) createWindow(title string) error {
	win, err := xproto.NewWindowId(s.conn)
	if err != nil {
		return fmt.Errorf("failed to create window ID: %w", err)
	}
	s.win = win

	mask := uint32(xproto.CwBackPixel | xproto.CwEventMask)
	values := []uint32{
		uint32(background.R)<<16 | uint32(background.G)<<8 | uint32(background.B),
		xproto.EventMaskExposure |
			xproto.EventMaskKeyPress |
			xproto.EventMaskButtonPress |
			xproto.EventMaskButtonRelease |
			xproto.EventMaskButton1Motion |
			xproto.EventMaskStructureNotify,
	}

	s.bounds = image.Rect(0, 0, 1, 1)
	err = xproto.CreateWindowChecked(
		s.conn,
		s.screen.RootDepth,
		s.win,
		s.screen.Root,
		0, 0,
		1, 1,
		0,
		xproto.WindowClassInputOutput,
		s.screen.RootVisual,
		mask,
		values,
	).Check()
	if err != nil {
		return fmt.Errorf("failed to create window: %w", err)
	}

	gc, err := xproto.NewGcontextId(s.conn)
	if err != nil {
		return fmt.Errorf("failed to create graphics context ID: %w", err)
	}
	if err := xproto.CreateGCChecked(s.conn, gc, xproto.Drawable(s.win), 0, nil).Check(); err != nil {
		return fmt.Errorf("failed to create graphics context: %w", err)
	}
	s.gc = gc

	if err := s.setHints(title); err != nil {
		s.log.Warn().Err(err).Msg("Failed to set window manager hints")
	}
	return nil
}

// setHints asks the window manager for a frameless, always-on-top tool
// window and for WM_DELETE_WINDOW instead of being killed on close.
func (s *X11Surface) setHints(title string) error {
	if err := s.setString("_NET_WM_NAME", "UTF8_STRING", title); err != nil {
		return err
	}
	if err := s.changeProperty(xproto.AtomWmName, xproto.AtomString, 8, []byte(title)); err != nil {
		return err
	}
	class := title + "\x00" + title + "\x00"
	if err := s.changeProperty(xproto.AtomWmClass, xproto.AtomString, 8, []byte(class)); err != nil {
		return err
	}

	motif, err := s.getAtom("_MOTIF_WM_HINTS")
	if err != nil {
		return err
	}
	// flags, functions, decorations, input mode, status
	if err := s.changeProperty(motif, motif, 32, cardinals(motifHintsDecorations, 0, 0, 0, 0)); err != nil {
		return err
	}

	if err := s.setAtoms("_NET_WM_WINDOW_TYPE", "_NET_WM_WINDOW_TYPE_UTILITY"); err != nil {
		return err
	}
	if err := s.setAtoms("_NET_WM_STATE", "_NET_WM_STATE_ABOVE", "_NET_WM_STATE_SKIP_TASKBAR", "_NET_WM_STATE_SKIP_PAGER"); err != nil {
		return err
	}

	if s.wmProtocols, err = s.getAtom("WM_PROTOCOLS"); err != nil {
		return err
	}
	if s.wmDelete, err = s.getAtom("WM_DELETE_WINDOW"); err != nil {
		return err
	}
	return s.changeProperty(s.wmProtocols, xproto.AtomAtom, 32, cardinals(uint32(s.wmDelete)))
}

func (s *X11Surface) loadEscapeKeycodes(setup *xproto.SetupInfo) error {
	count := byte(setup.MaxKeycode - setup.MinKeycode + 1)
	reply, err := xproto.GetKeyboardMapping(s.conn, setup.MinKeycode, count).Reply()
	if err != nil {
		return err
	}

	per := int(reply.KeysymsPerKeycode)
	for i := 0; i < int(count); i++ {
		for j := 0; j < per && i*per+j < len(reply.Keysyms); j++ {
			if reply.Keysyms[i*per+j] == keysymEscape {
				s.escapeCodes[setup.MinKeycode+xproto.Keycode(i)] = true
			}
		}
	}
	return nil
}

// Screen returns the root window geometry
func (s *X11Surface) Screen() image.Rectangle {
	return image.Rect(0, 0, int(s.screen.WidthInPixels), int(s.screen.HeightInPixels))
}

// AvailableArea reads _NET_WORKAREA for the current desktop, falling back
// to the whole screen.
func (s *X11Surface) AvailableArea() image.Rectangle {
	atom, err := s.getAtom("_NET_WORKAREA")
	if err != nil {
		return s.Screen()
	}

	reply, err := xproto.GetProperty(s.conn, false, s.screen.Root, atom, xproto.AtomCardinal, 0, 4).Reply()
	if err != nil || reply.Format != 32 || len(reply.Value) < 16 {
		return s.Screen()
	}

	x := int(int32(xgb.Get32(reply.Value[0:])))
	y := int(int32(xgb.Get32(reply.Value[4:])))
	w := int(xgb.Get32(reply.Value[8:]))
	h := int(xgb.Get32(reply.Value[12:]))

	area := image.Rect(x, y, x+w, y+h).Intersect(s.Screen())
	if area.Empty() {
		return s.Screen()
	}
	return area
}

// Configure moves and resizes the window and pins its size for the window
// manager
func (s *X11Surface) Configure(bounds image.Rectangle) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	size := bounds.Size()
	w, h := uint32(size.X), uint32(size.Y)

	hints := make([]uint32, 18)
	hints[0] = sizeHintUSPosition | sizeHintPMinSize | sizeHintPMaxSize
	hints[1], hints[2] = uint32(int32(bounds.Min.X)), uint32(int32(bounds.Min.Y))
	hints[3], hints[4] = w, h
	hints[5], hints[6] = w, h
	hints[7], hints[8] = w, h
	if err := s.changeProperty(xproto.AtomWmNormalHints, xproto.AtomWmSizeHints, 32, cardinals(hints...)); err != nil {
		s.log.Debug().Err(err).Msg("Failed to set size hints")
	}

	err := xproto.ConfigureWindowChecked(
		s.conn,
		s.win,
		xproto.ConfigWindowX|xproto.ConfigWindowY|xproto.ConfigWindowWidth|xproto.ConfigWindowHeight,
		[]uint32{uint32(int32(bounds.Min.X)), uint32(int32(bounds.Min.Y)), w, h},
	).Check()
	if err != nil {
		return fmt.Errorf("failed to configure window: %w", err)
	}

	s.bounds = bounds
	return nil
}

// Map shows the window
func (s *X11Surface) Map() error {
	if err := xproto.MapWindowChecked(s.conn, s.win).Check(); err != nil {
		return fmt.Errorf("failed to map window: %w", err)
	}
	s.conn.Sync()
	return nil
}

// Unmap hides the window
func (s *X11Surface) Unmap() error {
	if err := xproto.UnmapWindowChecked(s.conn, s.win).Check(); err != nil {
		return fmt.Errorf("failed to unmap window: %w", err)
	}
	s.conn.Sync()
	return nil
}

// Raise stacks the window above its siblings
func (s *X11Surface) Raise() error {
	err := xproto.ConfigureWindowChecked(
		s.conn,
		s.win,
		xproto.ConfigWindowStackMode,
		[]uint32{xproto.StackModeAbove},
	).Check()
	if err != nil {
		return fmt.Errorf("failed to raise window: %w", err)
	}
	return nil
}

// Focus gives the window keyboard focus so Escape reaches it
func (s *X11Surface) Focus() error {
	err := xproto.SetInputFocusChecked(s.conn, xproto.InputFocusParent, s.win, xproto.TimeCurrentTime).Check()
	if err != nil {
		return fmt.Errorf("failed to focus window: %w", err)
	}
	return nil
}

// Draw uploads img to the window, converting RGBA to the server's BGRx
// layout and splitting the upload to stay under the request size limit.
func (s *X11Surface) Draw(img *image.RGBA) error {
	b := img.Bounds()
	width, height := b.Dx(), b.Dy()
	if width <= 0 || height <= 0 {
		return nil
	}

	bytesPerPixel := s.bitsPerPixel / 8
	padBytes := s.scanlinePad / 8
	if padBytes <= 0 {
		padBytes = 1
	}
	stride := ((width*bytesPerPixel + padBytes - 1) / padBytes) * padBytes

	// 24 bytes of PutImage header
	rowsPerRequest := (s.maxRequest - 24) / stride
	if rowsPerRequest < 1 {
		return fmt.Errorf("image row of %d bytes exceeds X request limit", stride)
	}

	for top := 0; top < height; top += rowsPerRequest {
		rows := rowsPerRequest
		if top+rows > height {
			rows = height - top
		}

		data := make([]byte, stride*rows)
		for y := 0; y < rows; y++ {
			src := img.Pix[img.PixOffset(b.Min.X, b.Min.Y+top+y):]
			dst := data[y*stride:]
			for x := 0; x < width; x++ {
				si, di := x*4, x*bytesPerPixel
				dst[di] = src[si+2]
				dst[di+1] = src[si+1]
				dst[di+2] = src[si]
				if bytesPerPixel == 4 {
					dst[di+3] = src[si+3]
				}
			}
		}

		err := xproto.PutImageChecked(
			s.conn,
			xproto.ImageFormatZPixmap,
			xproto.Drawable(s.win),
			s.gc,
			uint16(width), uint16(rows),
			0, int16(top),
			0,
			s.screen.RootDepth,
			data,
		).Check()
		if err != nil {
			return fmt.Errorf("failed to put image rows %d-%d: %w", top, top+rows, err)
		}
	}

	s.conn.Sync()
	return nil
}

// Events returns the translated X events for this window
func (s *X11Surface) Events() <-chan Event {
	return s.events
}

// Close destroys the window and disconnects. Safe to call more than once.
func (s *X11Surface) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	close(s.stopChan)
	xproto.FreeGC(s.conn, s.gc)
	xproto.DestroyWindow(s.conn, s.win)
	s.conn.Sync()
	s.conn.Close()

	s.log.Info().Msg("Overlay window closed")
	return nil
}

func (s *X11Surface) eventLoop() {
	defer close(s.events)

	for {
		xev, err := s.conn.WaitForEvent()
		if xev == nil && err == nil {
			// connection closed
			return
		}
		if err != nil {
			s.log.Debug().Err(err).Msg("X11 error")
			continue
		}

		ev, ok := s.translate(xev)
		if !ok {
			continue
		}

		select {
		case s.events <- ev:
		case <-s.stopChan:
			return
		}
	}
}

func (s *X11Surface) translate(xev xgb.Event) (Event, bool) {
	switch e := xev.(type) {
	case xproto.ExposeEvent:
		if e.Count == 0 {
			return Event{Kind: EventExpose}, true
		}
	case xproto.KeyPressEvent:
		key := KeyOther
		if s.escapeCodes[e.Detail] {
			key = KeyEscape
		}
		return Event{Kind: EventKeyPress, Key: key}, true
	case xproto.ButtonPressEvent:
		if e.Detail == xproto.ButtonIndex1 {
			return Event{Kind: EventButtonPress, Pointer: image.Pt(int(e.RootX), int(e.RootY))}, true
		}
	case xproto.MotionNotifyEvent:
		return Event{Kind: EventMotion, Pointer: image.Pt(int(e.RootX), int(e.RootY))}, true
	case xproto.ButtonReleaseEvent:
		if e.Detail == xproto.ButtonIndex1 {
			return Event{Kind: EventButtonRelease, Pointer: image.Pt(int(e.RootX), int(e.RootY))}, true
		}
	case xproto.ClientMessageEvent:
		if e.Type == s.wmProtocols && e.Format == 32 && len(e.Data.Data32) > 0 &&
			xproto.Atom(e.Data.Data32[0]) == s.wmDelete {
			return Event{Kind: EventCloseRequest}, true
		}
	}
	return Event{}, false
}

func (s *X11Surface) getAtom(name string) (xproto.Atom, error) {
	reply, err := xproto.InternAtom(s.conn, false, uint16(len(name)), name).Reply()
	if err != nil {
		return 0, fmt.Errorf("failed to intern atom %s: %w", name, err)
	}
	return reply.Atom, nil
}

func (s *X11Surface) changeProperty(prop, typ xproto.Atom, format byte, data []byte) error {
	return xproto.ChangePropertyChecked(
		s.conn,
		xproto.PropModeReplace,
		s.win,
		prop,
		typ,
		format,
		uint32(len(data)*8/int(format)),
		data,
	).Check()
}

func (s *X11Surface) setString(prop, typ, value string) error {
	p, err := s.getAtom(prop)
	if err != nil {
		return err
	}
	t, err := s.getAtom(typ)
	if err != nil {
		return err
	}
	return s.changeProperty(p, t, 8, []byte(value))
}

func (s *X11Surface) setAtoms(prop string, values ...string) error {
	p, err := s.getAtom(prop)
	if err != nil {
		return err
	}

	atoms := make([]uint32, 0, len(values))
	for _, v := range values {
		a, err := s.getAtom(v)
		if err != nil {
			return err
		}
		atoms = append(atoms, uint32(a))
	}
	return s.changeProperty(p, xproto.AtomAtom, 32, cardinals(atoms...))
}

// cardinals encodes 32-bit property values in the client byte order xgb uses
func cardinals(values ...uint32) []byte {
	buf := make([]byte, 4*len(values))
	for i, v := range values {
		xgb.Put32(buf[i*4:], v)
	}
	return buf
}
