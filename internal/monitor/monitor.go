// Package monitor runs the background attention sampling loop. It pulls
// frames from a capture source, classifies them and reports only the
// transitions between focused and distracted.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bryanchriswhite/focuspet/internal/capture"
	"github.com/bryanchriswhite/focuspet/internal/config"
	"github.com/bryanchriswhite/focuspet/internal/gaze"
	"github.com/bryanchriswhite/focuspet/internal/logger"
	"github.com/rs/zerolog"
)

// ErrAlreadyStarted is returned by a second call to Start
var ErrAlreadyStarted = errors.New("monitor already started")

const changesBuffer = 8

// Stats is a snapshot of the loop counters
type Stats struct {
	FramesAcquired uint64
	FramesAbsent   uint64
	Classified     uint64
	Notifications  uint64
}

// Monitor samples a capture source on its own goroutine.
//
// Changes carries a value on the first classification and on every
// transition after that. It is closed when the loop exits, whether because
// Stop was called, the source failed to open or the classifier failed.
type Monitor struct {
	source     capture.Source
	classifier gaze.Classifier
	cfg        config.MonitorConfig
	log        *zerolog.Logger

	running atomic.Bool
	started atomic.Bool

	ctx    context.Context
	cancel context.CancelFunc

	changes chan bool
	done    chan struct{}

	errMu sync.Mutex
	err   error

	acquired      atomic.Uint64
	absent        atomic.Uint64
	classified    atomic.Uint64
	notifications atomic.Uint64
}

// New creates a monitor. Nothing runs until Start.
func New(source capture.Source, classifier gaze.Classifier, cfg config.MonitorConfig) *Monitor {
	if cfg.SubTick <= 0 {
		cfg.SubTick = 100 * time.Millisecond
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = cfg.SubTick
	}

	ctx, cancel := context.WithCancel(context.Background())
	m := &Monitor{
		source:     source,
		classifier: classifier,
		cfg:        cfg,
		log:        logger.WithComponent("monitor"),
		ctx:        ctx,
		cancel:     cancel,
		changes:    make(chan bool, changesBuffer),
		done:       make(chan struct{}),
	}
	m.running.Store(true)
	return m
}

// Start launches the sampling goroutine and returns immediately
func (m *Monitor) Start() error {
	if !m.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}

	m.log.Info().
		Str("source", m.source.Name()).
		Dur("interval", m.cfg.Interval).
		Dur("sub_tick", m.cfg.SubTick).
		Msg("Starting attention monitor")

	go m.run()
	return nil
}

// Stop asks the loop to exit. It does not wait; use Wait or Done for that.
func (m *Monitor) Stop() {
	if m.running.Swap(false) {
		m.log.Debug().Msg("Stop requested")
	}
	m.cancel()
}

// Changes returns the transition notifications
func (m *Monitor) Changes() <-chan bool {
	return m.changes
}

// Done is closed when the sampling goroutine has exited
func (m *Monitor) Done() <-chan struct{} {
	return m.done
}

// Wait blocks until the loop exits or timeout elapses, and reports whether
// the loop exited.
func (m *Monitor) Wait(timeout time.Duration) bool {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-m.done:
		return true
	case <-timer.C:
		return false
	}
}

// Err returns the error that ended the loop, if any
func (m *Monitor) Err() error {
	m.errMu.Lock()
	defer m.errMu.Unlock()
	return m.err
}

// Stats returns the current counters
func (m *Monitor) Stats() Stats {
	return Stats{
		FramesAcquired: m.acquired.Load(),
		FramesAbsent:   m.absent.Load(),
		Classified:     m.classified.Load(),
		Notifications:  m.notifications.Load(),
	}
}

func (m *Monitor) setErr(err error) {
	m.errMu.Lock()
	m.err = err
	m.errMu.Unlock()
}

func (m *Monitor) run() {
	defer close(m.done)
	defer close(m.changes)

	if err := m.source.Open(); err != nil {
		m.setErr(fmt.Errorf("failed to open %s: %w", m.source.Name(), err))
		m.log.Error().Err(err).Str("source", m.source.Name()).Msg("Camera unavailable, monitor exiting")
		return
	}
	defer func() {
		if err := m.source.Close(); err != nil {
			m.log.Warn().Err(err).Msg("Failed to close frame source")
		}
		s := m.Stats()
		m.log.Info().
			Uint64("frames_acquired", s.FramesAcquired).
			Uint64("frames_absent", s.FramesAbsent).
			Uint64("classified", s.Classified).
			Uint64("notifications", s.Notifications).
			Msg("Attention monitor stopped")
	}()

	var (
		emitted bool
		last    bool
	)

	for m.running.Load() {
		frame := m.source.Acquire()
		if !frame.Valid() {
			m.absent.Add(1)
			m.sleep(m.cfg.RetryDelay)
			continue
		}
		m.acquired.Add(1)

		result, err := m.classifier.Classify(m.ctx, frame)
		if err != nil {
			if m.ctx.Err() != nil {
				return
			}
			m.setErr(fmt.Errorf("failed to classify frame %d: %w", frame.Seq, err))
			m.log.Error().Err(err).Uint64("seq", frame.Seq).Str("trace_id", frame.TraceID).Msg("Classifier failed, monitor exiting")
			return
		}
		m.classified.Add(1)

		distracted := gaze.Distracted(result)
		if !emitted || distracted != last {
			select {
			case m.changes <- distracted:
			case <-m.ctx.Done():
				return
			}
			emitted, last = true, distracted
			m.notifications.Add(1)

			m.log.Debug().
				Uint64("seq", frame.Seq).
				Str("trace_id", frame.TraceID).
				Bool("distracted", distracted).
				Msg("Attention changed")
		}

		m.sleep(m.cfg.Interval)
	}
}

// sleep waits for d in SubTick steps so a Stop lands within one step
func (m *Monitor) sleep(d time.Duration) {
	deadline := time.Now().Add(d)
	for m.running.Load() {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return
		}

		step := m.cfg.SubTick
		if remaining < step {
			step = remaining
		}

		select {
		case <-time.After(step):
		case <-m.ctx.Done():
			return
		}
	}
}
