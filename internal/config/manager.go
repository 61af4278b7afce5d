package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/bryanchriswhite/focuspet/internal/logger"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Manager handles configuration
type Manager struct {
	v          *viper.Viper
	configPath string
	config     *Config
	mu         sync.RWMutex
}

// DefaultPath returns $XDG_CONFIG_HOME/focuspet/config.yaml (or the ~/.config equivalent)
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to get config directory: %w", err)
	}
	return filepath.Join(dir, "focuspet", "config.yaml"), nil
}

// NewManager loads configuration from configFile, or from the default path when
// empty. A missing file is not an error: defaults and FOCUSPET_* env vars apply.
func NewManager(configFile string) (*Manager, error) {
	path := configFile
	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		path = p
	}

	v := viper.New()
	setDefaults(v, Defaults())
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("FOCUSPET")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	m := &Manager{
		v:          v,
		configPath: path,
	}

	log := logger.WithComponent("config")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		log.Debug().Str("path", path).Msg("Config file not found, using defaults")
	} else {
		log.Info().Str("path", path).Msg("Config loaded")
	}

	cfg, err := m.decode()
	if err != nil {
		return nil, err
	}
	m.config = cfg

	return m, nil
}

// setDefaults registers every key so env overrides and Unmarshal see them
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("log_pretty", d.LogPretty)

	v.SetDefault("camera.backend", d.Camera.Backend)
	v.SetDefault("camera.device", d.Camera.Device)
	v.SetDefault("camera.index", d.Camera.Index)
	v.SetDefault("camera.width", d.Camera.Width)
	v.SetDefault("camera.height", d.Camera.Height)
	v.SetDefault("camera.read_timeout", d.Camera.ReadTimeout)

	v.SetDefault("monitor.interval", d.Monitor.Interval)
	v.SetDefault("monitor.sub_tick", d.Monitor.SubTick)
	v.SetDefault("monitor.retry_delay", d.Monitor.RetryDelay)
	v.SetDefault("monitor.shutdown_timeout", d.Monitor.ShutdownTimeout)

	v.SetDefault("classifier.command", d.Classifier.Command)
	v.SetDefault("classifier.args", d.Classifier.Args)
	v.SetDefault("classifier.scale_width", d.Classifier.ScaleWidth)
	v.SetDefault("classifier.timeout", d.Classifier.Timeout)

	v.SetDefault("overlay.asset", d.Overlay.Asset)
	v.SetDefault("overlay.fallback_size", d.Overlay.FallbackSize)
	v.SetDefault("overlay.margin_right", d.Overlay.MarginRight)
	v.SetDefault("overlay.margin_bottom", d.Overlay.MarginBottom)
	v.SetDefault("overlay.title", d.Overlay.Title)

	v.SetDefault("notifications.enabled", d.Notifications.Enabled)
}

func (m *Manager) decode() (*Config, error) {
	var cfg Config
	if err := m.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// Get returns a copy of the current configuration
func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()

	cfg := *m.config
	if m.config.Classifier.Args != nil {
		cfg.Classifier.Args = make([]string, len(m.config.Classifier.Args))
		copy(cfg.Classifier.Args, m.config.Classifier.Args)
	}
	return &cfg
}

// Viper exposes the underlying viper instance (used for flag binding)
func (m *Manager) Viper() *viper.Viper {
	return m.v
}

// Set overrides a single key and re-decodes the configuration
func (m *Manager) Set(key string, value interface{}) error {
	m.v.Set(key, value)
	cfg, err := m.decode()
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.config = cfg
	m.mu.Unlock()
	return nil
}

// GetConfigPath returns the path of the config file (which may not exist)
func (m *Manager) GetConfigPath() string {
	return m.configPath
}

// Watch re-reads the file on change and calls onChange with the new config.
// Invalid edits are logged and ignored; the previous config stays active.
func (m *Manager) Watch(onChange func(*Config)) {
	if _, err := os.Stat(m.configPath); err != nil {
		logger.WithComponent("config").Debug().
			Str("path", m.configPath).
			Msg("Config file absent, not watching")
		return
	}

	m.v.OnConfigChange(func(e fsnotify.Event) {
		log := logger.WithComponent("config")
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		cfg, err := m.decode()
		if err != nil {
			log.Warn().Err(err).Str("path", e.Name).Msg("Ignoring invalid config change")
			return
		}
		m.mu.Lock()
		m.config = cfg
		m.mu.Unlock()

		log.Info().Str("path", e.Name).Msg("Config reloaded")
		if onChange != nil {
			onChange(m.Get())
		}
	})
	m.v.WatchConfig()
}
