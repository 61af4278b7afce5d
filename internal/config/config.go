package config

import (
	"fmt"
	"time"
)

// Camera backend names
const (
	BackendGStreamer  = "gstreamer"
	BackendSubprocess = "subprocess"
	BackendOpenCV     = "opencv"
)

// Config represents the application configuration
type Config struct {
	LogLevel      string              `json:"log_level" yaml:"log_level" mapstructure:"log_level"`
	LogPretty     bool                `json:"log_pretty" yaml:"log_pretty" mapstructure:"log_pretty"`
	Camera        CameraConfig        `json:"camera" yaml:"camera" mapstructure:"camera"`
	Monitor       MonitorConfig       `json:"monitor" yaml:"monitor" mapstructure:"monitor"`
	Classifier    ClassifierConfig    `json:"classifier" yaml:"classifier" mapstructure:"classifier"`
	Overlay       OverlayConfig       `json:"overlay" yaml:"overlay" mapstructure:"overlay"`
	Notifications NotificationsConfig `json:"notifications" yaml:"notifications" mapstructure:"notifications"`
}

// CameraConfig selects and parameterizes the frame source
type CameraConfig struct {
	Backend     string        `json:"backend" yaml:"backend" mapstructure:"backend"`
	Device      string        `json:"device" yaml:"device" mapstructure:"device"`
	Index       int           `json:"index" yaml:"index" mapstructure:"index"`
	Width       int           `json:"width" yaml:"width" mapstructure:"width"`
	Height      int           `json:"height" yaml:"height" mapstructure:"height"`
	ReadTimeout time.Duration `json:"read_timeout" yaml:"read_timeout" mapstructure:"read_timeout"`
}

// MonitorConfig holds the sampling loop timings
type MonitorConfig struct {
	Interval        time.Duration `json:"interval" yaml:"interval" mapstructure:"interval"`
	SubTick         time.Duration `json:"sub_tick" yaml:"sub_tick" mapstructure:"sub_tick"`
	RetryDelay      time.Duration `json:"retry_delay" yaml:"retry_delay" mapstructure:"retry_delay"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout" yaml:"shutdown_timeout" mapstructure:"shutdown_timeout"`
}

// ClassifierConfig describes the external gaze worker process
type ClassifierConfig struct {
	Command    string        `json:"command" yaml:"command" mapstructure:"command"`
	Args       []string      `json:"args" yaml:"args" mapstructure:"args"`
	ScaleWidth int           `json:"scale_width" yaml:"scale_width" mapstructure:"scale_width"`
	Timeout    time.Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout"`
}

// OverlayConfig represents overlay window configuration
type OverlayConfig struct {
	Asset        string `json:"asset" yaml:"asset" mapstructure:"asset"`
	FallbackSize int    `json:"fallback_size" yaml:"fallback_size" mapstructure:"fallback_size"`
	MarginRight  int    `json:"margin_right" yaml:"margin_right" mapstructure:"margin_right"`
	MarginBottom int    `json:"margin_bottom" yaml:"margin_bottom" mapstructure:"margin_bottom"`
	Title        string `json:"title" yaml:"title" mapstructure:"title"`
}

// NotificationsConfig toggles desktop notifications on distraction
type NotificationsConfig struct {
	Enabled bool `json:"enabled" yaml:"enabled" mapstructure:"enabled"`
}

// Defaults returns the built-in configuration
func Defaults() *Config {
	return &Config{
		LogLevel:  "info",
		LogPretty: true,
		Camera: CameraConfig{
			Backend:     BackendGStreamer,
			Device:      "/dev/video0",
			Index:       0,
			Width:       640,
			Height:      480,
			ReadTimeout: 100 * time.Millisecond,
		},
		Monitor: MonitorConfig{
			Interval:        2 * time.Second,
			SubTick:         100 * time.Millisecond,
			RetryDelay:      100 * time.Millisecond,
			ShutdownTimeout: 2 * time.Second,
		},
		Classifier: ClassifierConfig{
			Command:    "focuspet-gaze-worker",
			Args:       []string{},
			ScaleWidth: 640,
			Timeout:    5 * time.Second,
		},
		Overlay: OverlayConfig{
			Asset:        "pictures/cat.gif",
			FallbackSize: 200,
			MarginRight:  20,
			MarginBottom: 60,
			Title:        "focuspet",
		},
	}
}

// Validate checks the configuration for values the runtime cannot work with
func (c *Config) Validate() error {
	switch c.Camera.Backend {
	case BackendGStreamer, BackendSubprocess, BackendOpenCV:
	default:
		return fmt.Errorf("unknown camera backend %q (use %s, %s or %s)",
			c.Camera.Backend, BackendGStreamer, BackendSubprocess, BackendOpenCV)
	}
	if c.Camera.Width <= 0 || c.Camera.Height <= 0 {
		return fmt.Errorf("camera size must be positive, got %dx%d", c.Camera.Width, c.Camera.Height)
	}
	if c.Monitor.Interval <= 0 {
		return fmt.Errorf("monitor.interval must be positive, got %v", c.Monitor.Interval)
	}
	if c.Monitor.SubTick <= 0 {
		return fmt.Errorf("monitor.sub_tick must be positive, got %v", c.Monitor.SubTick)
	}
	if c.Monitor.SubTick > c.Monitor.Interval {
		return fmt.Errorf("monitor.sub_tick (%v) must not exceed monitor.interval (%v)",
			c.Monitor.SubTick, c.Monitor.Interval)
	}
	if c.Monitor.RetryDelay <= 0 {
		return fmt.Errorf("monitor.retry_delay must be positive, got %v", c.Monitor.RetryDelay)
	}
	if c.Monitor.ShutdownTimeout < 0 {
		return fmt.Errorf("monitor.shutdown_timeout must not be negative, got %v", c.Monitor.ShutdownTimeout)
	}
	if c.Classifier.Command == "" {
		return fmt.Errorf("classifier.command is required")
	}
	if c.Classifier.Timeout <= 0 {
		return fmt.Errorf("classifier.timeout must be positive, got %v", c.Classifier.Timeout)
	}
	if c.Overlay.FallbackSize <= 0 {
		return fmt.Errorf("overlay.fallback_size must be positive, got %d", c.Overlay.FallbackSize)
	}
	return nil
}
