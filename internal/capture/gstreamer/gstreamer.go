// Package gstreamer captures camera frames in-process through a GStreamer
// v4l2src ! appsink pipeline.
package gstreamer

import (
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/bryanchriswhite/focuspet/internal/capture"
	"github.com/bryanchriswhite/focuspet/internal/config"
	"github.com/bryanchriswhite/focuspet/internal/logger"
	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"
)

func init() {
	capture.Register(config.BackendGStreamer, func(cfg config.CameraConfig) (capture.Source, error) {
		return New(cfg), nil
	})
}

// Source pulls samples from an appsink. Samples are pulled on demand from the
// caller's goroutine, so there are no CGO callbacks.
type Source struct {
	device      string
	width       int
	height      int
	pullTimeout time.Duration

	mu       sync.Mutex
	pipeline *gst.Pipeline
	appsink  *app.Sink
	seq      uint64
	failed   bool
}

// New creates a GStreamer camera source
func New(cfg config.CameraConfig) *Source {
	timeout := cfg.ReadTimeout
	if timeout <= 0 {
		timeout = 100 * time.Millisecond
	}
	return &Source{
		device:      cfg.Device,
		width:       cfg.Width,
		height:      cfg.Height,
		pullTimeout: timeout,
	}
}

// Name returns the source name
func (s *Source) Name() string {
	return "gstreamer"
}

// PipelineString returns the launch line used for this source
func (s *Source) PipelineString() string {
	return fmt.Sprintf(
		"v4l2src device=%s ! "+
			"videoconvert ! "+
			"videoscale ! "+
			"video/x-raw,format=RGBA,width=%d,height=%d ! "+
			"appsink name=sink emit-signals=false max-buffers=1 drop=true",
		s.device, s.width, s.height,
	)
}

// Open builds the pipeline and sets it playing
func (s *Source) Open() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pipeline != nil {
		return fmt.Errorf("pipeline already running")
	}

	gst.Init(nil)
	return s.startLocked()
}

func (s *Source) startLocked() error {
	log := logger.WithComponent("gstreamer")

	pipelineStr := s.PipelineString()
	log.Debug().Str("pipeline", pipelineStr).Msg("Creating GStreamer pipeline")

	pipeline, err := gst.NewPipelineFromString(pipelineStr)
	if err != nil {
		return fmt.Errorf("failed to create pipeline: %w", err)
	}

	sinkElement, err := pipeline.GetElementByName("sink")
	if err != nil {
		pipeline.Unref()
		return fmt.Errorf("failed to get appsink: %w", err)
	}

	if err := pipeline.SetState(gst.StatePlaying); err != nil {
		pipeline.Unref()
		return fmt.Errorf("failed to start pipeline: %w", err)
	}

	s.pipeline = pipeline
	s.appsink = app.SinkFromElement(sinkElement)
	s.failed = false

	log.Info().Str("device", s.device).Msg("GStreamer pipeline started")
	return nil
}

func (s *Source) stopLocked() {
	if s.pipeline != nil {
		s.pipeline.SetState(gst.StateNull)
		s.pipeline.Unref()
	}
	s.pipeline = nil
	s.appsink = nil
}

// Acquire pulls one sample, waiting at most the configured read timeout. A
// pipeline that posted an error or EOS is torn down and rebuilt on the next call.
func (s *Source) Acquire() *capture.Frame {
	s.mu.Lock()
	defer s.mu.Unlock()

	log := logger.WithComponent("gstreamer")

	if s.failed {
		s.stopLocked()
		if err := s.startLocked(); err != nil {
			log.Warn().Err(err).Msg("Pipeline restart failed")
			return nil
		}
	}
	if s.pipeline == nil || s.appsink == nil {
		return nil
	}

	if s.checkBusLocked() {
		s.failed = true
		return nil
	}

	sample := s.appsink.TryPullSample(s.pullTimeout)
	if sample == nil {
		return nil
	}

	img := s.processSample(sample)
	if img == nil {
		return nil
	}
	s.seq++
	return capture.NewFrame(s.seq, img)
}

// checkBusLocked drains pending bus messages and reports whether the pipeline died
func (s *Source) checkBusLocked() bool {
	bus := s.pipeline.GetPipelineBus()
	for {
		msg := bus.Pop()
		if msg == nil {
			return false
		}
		switch msg.Type() {
		case gst.MessageError:
			gerr := msg.ParseError()
			logger.WithComponent("gstreamer").Warn().
				Str("error", gerr.Error()).
				Str("debug", gerr.DebugString()).
				Msg("Pipeline error, will restart")
			return true
		case gst.MessageEOS:
			logger.WithComponent("gstreamer").Warn().Msg("Pipeline reached EOS, will restart")
			return true
		}
	}
}

// processSample copies the sample's pixels into a fresh RGBA image
func (s *Source) processSample(sample *gst.Sample) *image.RGBA {
	buffer := sample.GetBuffer()
	if buffer == nil {
		return nil
	}

	caps := sample.GetCaps()
	if caps == nil {
		return nil
	}
	structure := caps.GetStructureAt(0)
	if structure == nil {
		return nil
	}

	width, _ := structure.GetValue("width")
	height, _ := structure.GetValue("height")
	w, ok := width.(int)
	if !ok {
		return nil
	}
	h, ok := height.(int)
	if !ok {
		return nil
	}

	mapInfo := buffer.Map(gst.MapRead)
	if mapInfo == nil {
		return nil
	}
	defer buffer.Unmap()

	// GStreamer reuses the buffer, so copy out
	return capture.RGBAFromPacked(mapInfo.Bytes(), w, h)
}

// Close stops the pipeline
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pipeline == nil {
		return nil
	}
	s.stopLocked()
	logger.WithComponent("gstreamer").Info().Msg("GStreamer pipeline stopped")
	return nil
}
