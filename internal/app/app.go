// Package app wires the attention monitor to the overlay and owns the UI
// event loop and shutdown sequence.
package app

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bryanchriswhite/focuspet/internal/capture"
	"github.com/bryanchriswhite/focuspet/internal/config"
	"github.com/bryanchriswhite/focuspet/internal/gaze"
	"github.com/bryanchriswhite/focuspet/internal/logger"
	"github.com/bryanchriswhite/focuspet/internal/monitor"
	"github.com/bryanchriswhite/focuspet/internal/notify"
	"github.com/bryanchriswhite/focuspet/internal/overlay"
	"github.com/rs/zerolog"
)

const notifyTimeout = 2 * time.Second

// Deps are the collaborators the app is built from
type Deps struct {
	Config     *config.Config
	Surface    overlay.Surface
	Animation  *overlay.Animation
	Source     capture.Source
	Classifier gaze.Classifier
	Notifier   notify.Notifier
}

// Stats counts handled attention changes
type Stats struct {
	Distracted uint64
	Focused    uint64
}

// App runs the pet. All overlay state is touched only from Run.
type App struct {
	cfg      *config.Config
	surface  overlay.Surface
	window   *overlay.Window
	monitor  *monitor.Monitor
	notifier notify.Notifier
	log      *zerolog.Logger

	started  atomic.Bool
	quit     chan struct{}
	quitOnce sync.Once

	distracted atomic.Uint64
	focused    atomic.Uint64
}

// New creates the overlay, shows it and prepares the monitor. The monitor
// starts with Run, after the pet is already on screen.
func New(deps Deps) (*App, error) {
	if deps.Config == nil {
		deps.Config = config.Defaults()
	}
	if deps.Notifier == nil {
		deps.Notifier = notify.Nop{}
	}

	a := &App{
		cfg:      deps.Config,
		surface:  deps.Surface,
		notifier: deps.Notifier,
		log:      logger.WithComponent("app"),
		quit:     make(chan struct{}),
	}

	window, err := overlay.NewWindow(deps.Surface, deps.Animation, deps.Config.Overlay)
	if err != nil {
		return nil, fmt.Errorf("failed to create overlay: %w", err)
	}
	a.window = window

	anim := window.Animation()
	a.log.Debug().
		Bool("valid", anim.Valid).
		Str("frame_rect", anim.FrameRect().String()).
		Int("frame_count", anim.FrameCount()).
		Msg("Pet animation")

	if err := window.Show(); err != nil {
		return nil, fmt.Errorf("failed to show overlay: %w", err)
	}

	a.log.Debug().
		Bool("visible", window.Visible()).
		Str("geometry", window.Bounds().String()).
		Msg("Pet shown")

	a.monitor = monitor.New(deps.Source, deps.Classifier, deps.Config.Monitor)
	return a, nil
}

// Run starts monitoring and processes attention changes, surface events and
// animation frames until ctx is done, Quit is called or the surface goes
// away. Shutdown has completed by the time Run returns.
func (a *App) Run(ctx context.Context) error {
	if err := a.monitor.Start(); err != nil {
		return fmt.Errorf("failed to start monitor: %w", err)
	}
	a.started.Store(true)
	defer a.Shutdown()

	changes := a.monitor.Changes()
	events := a.surface.Events()
	done := a.monitor.Done()

	frameTimer := time.NewTimer(a.window.Animation().Delay(0))
	defer frameTimer.Stop()

	for {
		select {
		case <-ctx.Done():
			a.log.Info().Err(context.Cause(ctx)).Msg("Interrupt received, quitting")
			return nil

		case <-a.quit:
			a.log.Info().Msg("Quit requested")
			return nil

		case distracted, ok := <-changes:
			if !ok {
				changes = nil
				continue
			}
			a.onAttentionChanged(ctx, distracted)

		case ev, ok := <-events:
			if !ok {
				return fmt.Errorf("overlay surface closed")
			}
			if err := a.window.HandleEvent(ev); err != nil {
				a.log.Warn().Err(err).Str("event", ev.Kind.String()).Msg("Failed to handle overlay event")
			}

		case <-done:
			done = nil
			if err := a.monitor.Err(); err != nil {
				a.log.Error().Err(err).Msg("Attention monitor stopped, pet stays as it is")
			}

		case <-frameTimer.C:
			frameTimer.Reset(a.window.Tick())
		}
	}
}

// onAttentionChanged only ever shows the pet. Focus is logged and
// otherwise ignored so the pet stays until the user closes it.
func (a *App) onAttentionChanged(ctx context.Context, distracted bool) {
	if !distracted {
		a.focused.Add(1)
		a.log.Info().Msg("FOCUSED")
		return
	}

	a.distracted.Add(1)
	a.log.Info().Msg("DISTRACTED, showing pet")
	if err := a.window.Show(); err != nil {
		a.log.Error().Err(err).Msg("Failed to show pet")
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
		defer cancel()
		if err := a.notifier.Notify(ctx, a.cfg.Overlay.Title, "Eyes back on the screen!"); err != nil {
			a.log.Debug().Err(err).Msg("Desktop notification failed")
		}
	}()
}

// Quit ends Run. Safe to call from any goroutine, any number of times.
func (a *App) Quit() {
	a.quitOnce.Do(func() { close(a.quit) })
}

// Shutdown stops the monitor and waits up to the configured timeout for it
// to exit. A monitor stuck in a camera read is abandoned. Calling Shutdown
// again after the monitor has exited returns immediately.
func (a *App) Shutdown() {
	a.monitor.Stop()
	if !a.started.Load() {
		return
	}

	timeout := a.cfg.Monitor.ShutdownTimeout
	if a.monitor.Wait(timeout) {
		a.log.Debug().Msg("Attention monitor joined")
		return
	}
	a.log.Warn().Dur("timeout", timeout).Msg("Attention monitor did not stop in time, exiting anyway")
}

// Window returns the overlay. Only safe to inspect when Run is not running.
func (a *App) Window() *overlay.Window { return a.window }

// Monitor returns the attention monitor
func (a *App) Monitor() *monitor.Monitor { return a.monitor }

// Stats returns how many attention changes have been handled
func (a *App) Stats() Stats {
	return Stats{
		Distracted: a.distracted.Load(),
		Focused:    a.focused.Load(),
	}
}
