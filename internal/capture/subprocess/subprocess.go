// Package subprocess captures camera frames by running gst-launch-1.0 and
// reading raw RGBA frames from its stdout. It needs no CGO.
package subprocess

import (
	"bufio"
	"errors"
	"fmt"
	"image"
	"io"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/bryanchriswhite/focuspet/internal/capture"
	"github.com/bryanchriswhite/focuspet/internal/config"
	"github.com/bryanchriswhite/focuspet/internal/logger"
)

func init() {
	capture.Register(config.BackendSubprocess, func(cfg config.CameraConfig) (capture.Source, error) {
		return New(cfg), nil
	})
}

// restartDelay bounds how often a dead pipeline is respawned
const restartDelay = time.Second

// Source manages a gst-launch-1.0 pipeline via subprocess
type Source struct {
	width   int
	height  int
	command []string

	mu           sync.Mutex
	cmd          *exec.Cmd
	running      bool
	latestFrame  *image.RGBA
	latestSeq    uint64
	deliveredSeq uint64
	lastStart    time.Time
	readerDone   chan struct{}
}

// New builds the default v4l2 pipeline for cfg
func New(cfg config.CameraConfig) *Source {
	pipeline := fmt.Sprintf(
		"v4l2src device=%s ! "+
			"videoconvert ! "+
			"videoscale ! "+
			"video/x-raw,format=RGBA,width=%d,height=%d ! "+
			"fdsink fd=1 sync=false",
		cfg.Device, cfg.Width, cfg.Height,
	)
	// Use sh -c so the pipeline string keeps its ! separators
	return NewWithCommand(cfg.Width, cfg.Height, "sh", "-c", "gst-launch-1.0 -q "+pipeline)
}

// NewWithCommand runs an arbitrary command that writes packed width*height RGBA
// frames to stdout
func NewWithCommand(width, height int, name string, args ...string) *Source {
	return &Source{
		width:   width,
		height:  height,
		command: append([]string{name}, args...),
	}
}

// Name returns the source name
func (s *Source) Name() string {
	return "gst-launch subprocess"
}

// Open starts the subprocess
func (s *Source) Open() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("pipeline already running")
	}
	return s.startLocked()
}

func (s *Source) startLocked() error {
	log := logger.WithComponent("capture-subprocess")

	cmd := exec.Command(s.command[0], s.command[1:]...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to get stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("failed to get stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start %s: %w", s.command[0], err)
	}

	s.cmd = cmd
	s.running = true
	s.lastStart = time.Now()
	s.readerDone = make(chan struct{})

	go s.readFrames(stdout, s.readerDone)
	go logStderr(stderr)

	log.Info().
		Int("pid", cmd.Process.Pid).
		Int("width", s.width).
		Int("height", s.height).
		Msg("Capture subprocess started")
	return nil
}

// readFrames continuously reads raw RGBA frames from stdout
func (s *Source) readFrames(stdout io.Reader, done chan struct{}) {
	defer close(done)
	log := logger.WithComponent("capture-subprocess")

	frameSize := s.width * s.height * 4
	reader := bufio.NewReaderSize(stdout, frameSize*2)
	frameBuffer := make([]byte, frameSize)

	for {
		n, err := io.ReadFull(reader, frameBuffer)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				log.Debug().Int("bytes_read", n).Msg("EOF from capture subprocess")
			} else {
				log.Warn().Err(err).Msg("Capture subprocess read failed")
			}
			return
		}

		img := capture.RGBAFromPacked(frameBuffer, s.width, s.height)

		s.mu.Lock()
		s.latestFrame = img
		s.latestSeq++
		s.mu.Unlock()
	}
}

// logStderr logs any output from the subprocess
func logStderr(stderr io.Reader) {
	log := logger.WithComponent("capture-subprocess")
	scanner := bufio.NewScanner(stderr)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.Contains(line, "ERROR") || strings.Contains(line, "WARN") {
			log.Warn().Str("gst", line).Msg("GStreamer message")
		} else {
			log.Debug().Str("gst", line).Msg("GStreamer output")
		}
	}
}

// Acquire returns the newest frame not yet handed out, or nil. A pipeline that
// has exited is reaped and respawned, at most once per restartDelay.
func (s *Source) Acquire() *capture.Frame {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running && s.readerExitedLocked() {
		s.reapLocked()
	}
	if !s.running {
		if s.cmd == nil && s.lastStart.IsZero() {
			return nil
		}
		if time.Since(s.lastStart) >= restartDelay {
			if err := s.startLocked(); err != nil {
				logger.WithComponent("capture-subprocess").Warn().Err(err).Msg("Restart failed")
			}
		}
		return nil
	}

	if s.latestFrame == nil || s.latestSeq == s.deliveredSeq {
		return nil
	}
	s.deliveredSeq = s.latestSeq
	frame := capture.NewFrame(s.latestSeq, s.latestFrame)
	s.latestFrame = nil
	return frame
}

func (s *Source) readerExitedLocked() bool {
	select {
	case <-s.readerDone:
		return true
	default:
		return false
	}
}

func (s *Source) reapLocked() {
	if s.cmd != nil && s.cmd.Process != nil {
		s.cmd.Process.Kill()
		s.cmd.Wait()
	}
	s.running = false
	logger.WithComponent("capture-subprocess").Warn().Msg("Capture subprocess exited")
}

// Close stops the subprocess
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}

	if s.cmd != nil && s.cmd.Process != nil {
		logger.WithComponent("capture-subprocess").Debug().
			Int("pid", s.cmd.Process.Pid).
			Msg("Killing capture subprocess")
		s.cmd.Process.Kill()
		s.cmd.Wait()
	}
	s.running = false
	s.cmd = nil
	s.lastStart = time.Time{}
	return nil
}
