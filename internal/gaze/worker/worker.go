// Package worker classifies frames by handing them to an external gaze
// tracking process over stdin/stdout.
package worker

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bryanchriswhite/focuspet/internal/capture"
	"github.com/bryanchriswhite/focuspet/internal/config"
	"github.com/bryanchriswhite/focuspet/internal/gaze"
	"github.com/bryanchriswhite/focuspet/internal/logger"
	"github.com/rs/zerolog"
)

var (
	// ErrNotStarted is returned by Classify before Start or after Stop
	ErrNotStarted = errors.New("gaze worker not started")

	// ErrBroken is returned once the request stream is out of sync,
	// after a timeout or a failed read/write.
	ErrBroken = errors.New("gaze worker stream broken")
)

const stopTimeout = 2 * time.Second

// Stats is a snapshot of worker counters
type Stats struct {
	Requests   uint64
	Failures   uint64
	AvgLatency time.Duration
	LastSeenAt time.Time
}

// Worker owns one gaze tracking process. Classify calls are serialized;
// the process sees exactly one request in flight at a time.
type Worker struct {
	cfg config.ClassifierConfig
	log *zerolog.Logger

	mu     sync.Mutex
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.ReadCloser
	exited chan struct{}
	cancel context.CancelFunc
	wg     sync.WaitGroup

	active atomic.Bool
	broken atomic.Bool

	requests     atomic.Uint64
	failures     atomic.Uint64
	totalLatency atomic.Int64
	lastSeenAt   atomic.Value // time.Time
}

// New validates cfg and returns an unstarted worker
func New(cfg config.ClassifierConfig) (*Worker, error) {
	if cfg.Command == "" {
		return nil, fmt.Errorf("classifier command is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}

	return &Worker{
		cfg: cfg,
		log: logger.WithComponent("gaze-worker"),
	}, nil
}

// Start spawns the worker process. Cancelling ctx kills it.
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.active.Load() {
		return fmt.Errorf("gaze worker already started")
	}

	ctx, cancel := context.WithCancel(ctx)
	cmd := exec.CommandContext(ctx, w.cfg.Command, w.cfg.Args...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		cancel()
		return fmt.Errorf("failed to create stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		cancel()
		return fmt.Errorf("failed to create stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		cancel()
		return fmt.Errorf("failed to start gaze worker %q: %w", w.cfg.Command, err)
	}

	w.cmd = cmd
	w.stdin = stdin
	w.stdout = stdout
	w.cancel = cancel
	w.exited = make(chan struct{})
	w.broken.Store(false)
	w.active.Store(true)

	w.wg.Add(2)
	go w.logStderr(stderr)
	go w.waitProcess(ctx, cmd, w.exited)

	w.log.Info().
		Str("command", w.cfg.Command).
		Strs("args", w.cfg.Args).
		Int("pid", cmd.Process.Pid).
		Msg("Gaze worker started")

	return nil
}

// Classify sends frame to the worker and waits for its answer, bounded by
// the configured timeout and ctx.
func (w *Worker) Classify(ctx context.Context, frame *capture.Frame) (gaze.Result, error) {
	if !frame.Valid() {
		return gaze.Result{}, fmt.Errorf("cannot classify an empty frame")
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.active.Load() {
		return gaze.Result{}, ErrNotStarted
	}
	if w.broken.Load() {
		return gaze.Result{}, ErrBroken
	}

	w.requests.Add(1)
	req, err := newRequest(frame, w.cfg.ScaleWidth)
	if err != nil {
		w.failures.Add(1)
		return gaze.Result{}, err
	}

	start := time.Now()

	type reply struct {
		resp response
		err  error
	}
	done := make(chan reply, 1)
	go func(stdin io.Writer, stdout io.Reader) {
		var r reply
		if r.err = writeMessage(stdin, req); r.err == nil {
			r.err = readMessage(stdout, &r.resp)
		}
		done <- r
	}(w.stdin, w.stdout)

	timer := time.NewTimer(w.cfg.Timeout)
	defer timer.Stop()

	var r reply
	select {
	case r = <-done:
	case <-timer.C:
		w.fail("timeout")
		return gaze.Result{}, fmt.Errorf("gaze worker did not answer frame %d within %s: %w", frame.Seq, w.cfg.Timeout, ErrBroken)
	case <-ctx.Done():
		w.fail("cancelled")
		return gaze.Result{}, ctx.Err()
	}

	if r.err != nil {
		w.fail("io error")
		return gaze.Result{}, fmt.Errorf("gaze worker exchange for frame %d failed: %w", frame.Seq, r.err)
	}
	if r.resp.Seq != req.Seq {
		w.fail("sequence mismatch")
		return gaze.Result{}, fmt.Errorf("gaze worker answered seq %d for frame %d: %w", r.resp.Seq, req.Seq, ErrBroken)
	}
	if r.resp.Error != "" {
		w.failures.Add(1)
		return gaze.Result{}, fmt.Errorf("gaze worker rejected frame %d: %s", frame.Seq, r.resp.Error)
	}

	latency := time.Since(start)
	w.totalLatency.Add(int64(latency))
	w.lastSeenAt.Store(time.Now())

	w.log.Debug().
		Uint64("seq", frame.Seq).
		Str("trace_id", frame.TraceID).
		Dur("latency", latency).
		Bool("gaze_left", r.resp.GazeLeft).
		Bool("gaze_right", r.resp.GazeRight).
		Bool("left_pupil", r.resp.LeftPupil != nil).
		Bool("right_pupil", r.resp.RightPupil != nil).
		Msg("Frame classified")

	return r.resp.result(), nil
}

// fail marks the stream unusable and kills the process. The request
// goroutine still blocked on the pipes returns once they close.
func (w *Worker) fail(reason string) {
	w.failures.Add(1)
	w.broken.Store(true)
	w.log.Error().Str("reason", reason).Msg("Gaze worker stream broken, killing process")
	if w.cmd != nil && w.cmd.Process != nil {
		if err := w.cmd.Process.Kill(); err != nil {
			w.log.Debug().Err(err).Msg("Kill after stream failure")
		}
	}
}

// Stop closes the worker's stdin and waits for it to exit, killing it
// after stopTimeout. Safe to call more than once.
func (w *Worker) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.active.CompareAndSwap(true, false) {
		return nil
	}

	w.log.Info().Msg("Stopping gaze worker")

	if err := w.stdin.Close(); err != nil {
		w.log.Debug().Err(err).Msg("Closing worker stdin")
	}

	select {
	case <-w.exited:
	case <-time.After(stopTimeout):
		w.log.Warn().Dur("timeout", stopTimeout).Msg("Gaze worker stop timeout, force killing process")
		if err := w.cmd.Process.Kill(); err != nil {
			w.log.Error().Err(err).Msg("Failed to kill gaze worker")
		}
	}

	w.cancel()
	w.wg.Wait()

	w.log.Info().
		Uint64("requests", w.requests.Load()).
		Uint64("failures", w.failures.Load()).
		Msg("Gaze worker stopped")

	return nil
}

// Stats returns the current counters
func (w *Worker) Stats() Stats {
	s := Stats{
		Requests: w.requests.Load(),
		Failures: w.failures.Load(),
	}
	if s.Requests > s.Failures {
		s.AvgLatency = time.Duration(w.totalLatency.Load() / int64(s.Requests-s.Failures))
	}
	if v := w.lastSeenAt.Load(); v != nil {
		s.LastSeenAt = v.(time.Time)
	}
	return s
}

func (w *Worker) logStderr(stderr io.Reader) {
	defer w.wg.Done()

	scanner := bufio.NewScanner(stderr)
	for scanner.Scan() {
		line := scanner.Text()

		switch {
		case strings.Contains(line, "[ERROR]"), strings.Contains(line, "[CRITICAL]"):
			w.log.Error().Str("log", line).Msg("Gaze worker error")
		case strings.Contains(line, "[WARN"):
			w.log.Warn().Str("log", line).Msg("Gaze worker warning")
		default:
			w.log.Debug().Str("log", line).Msg("Gaze worker log")
		}
	}
}

func (w *Worker) waitProcess(ctx context.Context, cmd *exec.Cmd, exited chan struct{}) {
	defer w.wg.Done()
	defer close(exited)

	err := cmd.Wait()
	switch {
	case err == nil:
		w.log.Info().Int("pid", cmd.Process.Pid).Msg("Gaze worker exited cleanly")
	case ctx.Err() != nil || !w.active.Load() || w.broken.Load():
		w.log.Debug().Int("pid", cmd.Process.Pid).Err(err).Msg("Gaze worker exited (shutdown)")
	default:
		w.log.Error().Int("pid", cmd.Process.Pid).Err(err).Msg("Gaze worker exited unexpectedly")
		w.broken.Store(true)
	}
}
