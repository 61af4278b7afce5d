//go:build opencv

// Package opencv captures camera frames with OpenCV's VideoCapture. Build with
// -tags opencv; it needs the OpenCV development libraries.
package opencv

import (
	"fmt"
	"sync"

	"github.com/bryanchriswhite/focuspet/internal/capture"
	"github.com/bryanchriswhite/focuspet/internal/config"
	"github.com/bryanchriswhite/focuspet/internal/logger"
	"gocv.io/x/gocv"
)

func init() {
	capture.Register(config.BackendOpenCV, func(cfg config.CameraConfig) (capture.Source, error) {
		return New(cfg), nil
	})
}

// reopenAfter is the number of consecutive failed reads before the device is reopened
const reopenAfter = 50

// Source reads frames from a VideoCapture device
type Source struct {
	cfg config.CameraConfig

	mu       sync.Mutex
	opened   bool
	webcam   *gocv.VideoCapture
	bgr      gocv.Mat
	rgba     gocv.Mat
	seq      uint64
	failures int
}

// New creates an OpenCV camera source
func New(cfg config.CameraConfig) *Source {
	return &Source{cfg: cfg}
}

// Name returns the source name
func (s *Source) Name() string {
	return "opencv"
}

// Open opens the capture device. A device path wins over the numeric index.
func (s *Source) Open() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.opened {
		return fmt.Errorf("camera already open")
	}
	if err := s.openLocked(); err != nil {
		return err
	}
	s.bgr = gocv.NewMat()
	s.rgba = gocv.NewMat()
	s.opened = true
	return nil
}

func (s *Source) openLocked() error {
	var device interface{} = s.cfg.Index
	if s.cfg.Device != "" {
		device = s.cfg.Device
	}

	webcam, err := gocv.OpenVideoCapture(device)
	if err != nil {
		return fmt.Errorf("failed to open video capture %v: %w", device, err)
	}
	webcam.Set(gocv.VideoCaptureFrameWidth, float64(s.cfg.Width))
	webcam.Set(gocv.VideoCaptureFrameHeight, float64(s.cfg.Height))

	s.webcam = webcam
	s.failures = 0
	logger.WithComponent("opencv").Info().Interface("device", device).Msg("Camera opened")
	return nil
}

// Acquire reads one frame. Failed or empty reads return nil; after
// reopenAfter of them in a row the device is reopened.
func (s *Source) Acquire() *capture.Frame {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.opened {
		return nil
	}
	if s.webcam == nil {
		if err := s.openLocked(); err != nil {
			logger.WithComponent("opencv").Debug().Err(err).Msg("Camera still unavailable")
		}
		return nil
	}

	if ok := s.webcam.Read(&s.bgr); !ok || s.bgr.Empty() {
		s.failures++
		if s.failures >= reopenAfter {
			logger.WithComponent("opencv").Warn().Int("failures", s.failures).Msg("Reopening camera")
			s.webcam.Close()
			s.webcam = nil
			if err := s.openLocked(); err != nil {
				logger.WithComponent("opencv").Warn().Err(err).Msg("Reopen failed")
			}
		}
		return nil
	}
	s.failures = 0

	gocv.CvtColor(s.bgr, &s.rgba, gocv.ColorBGRToRGBA)
	img := capture.RGBAFromPacked(s.rgba.ToBytes(), s.rgba.Cols(), s.rgba.Rows())
	if img == nil {
		return nil
	}
	s.seq++
	return capture.NewFrame(s.seq, img)
}

// Close releases the device and the scratch matrices
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.opened {
		return nil
	}
	var err error
	if s.webcam != nil {
		err = s.webcam.Close()
		s.webcam = nil
	}
	s.bgr.Close()
	s.rgba.Close()
	s.opened = false
	return err
}
