package model

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// APIConfig holds settings for the REST API the client talks to.
type APIConfig struct {
	// BaseURL is the root of the REST API (e.g., http://localhost:5000/api).
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`

	// TimeoutSec bounds a single HTTP request.
	TimeoutSec int `mapstructure:"timeout_sec" yaml:"timeout_sec"`
}

// RealtimeConfig holds settings for the push-notification channel.
type RealtimeConfig struct {
	// URL is the WebSocket endpoint. Derived from the API base URL when empty.
	URL string `mapstructure:"url" yaml:"url"`

	MaxReconnectAttempts int `mapstructure:"max_reconnect_attempts" yaml:"max_reconnect_attempts"`
	ReconnectDelayMs     int `mapstructure:"reconnect_delay_ms" yaml:"reconnect_delay_ms"`
	ReconnectDelayMaxMs  int `mapstructure:"reconnect_delay_max_ms" yaml:"reconnect_delay_max_ms"`
	PingIntervalSec      int `mapstructure:"ping_interval_sec" yaml:"ping_interval_sec"`
}

// StorageConfig controls where client state shared between running
// instances is kept.
type StorageConfig struct {
	// Path is the SQLite file shared by every client process of the user.
	Path string `mapstructure:"path" yaml:"path"`

	// UseKeyring stores the refresh token in the system keyring instead
	// of the shared file.
	UseKeyring bool `mapstructure:"use_keyring" yaml:"use_keyring"`

	// WatchIntervalMs is how often the shared file is checked for changes
	// made by other processes.
	WatchIntervalMs int `mapstructure:"watch_interval_ms" yaml:"watch_interval_ms"`
}

// AttendanceConfig holds the checkout eligibility policy.
type AttendanceConfig struct {
	MinWorkHours float64 `mapstructure:"min_work_hours" yaml:"min_work_hours"`
}

// NotificationsConfig holds notification refresh settings.
type NotificationsConfig struct {
	// ReconcileIntervalSec enables a periodic unread-count refresh when
	// greater than zero.
	ReconcileIntervalSec int `mapstructure:"reconcile_interval_sec" yaml:"reconcile_interval_sec"`
}

// LogConfig controls the log sink.
type LogConfig struct {
	Path  string `mapstructure:"path" yaml:"path"`
	Level string `mapstructure:"level" yaml:"level"`
}

// AppConfig is the top-level application configuration.
type AppConfig struct {
	API           APIConfig           `mapstructure:"api" yaml:"api"`
	Realtime      RealtimeConfig      `mapstructure:"realtime" yaml:"realtime"`
	Storage       StorageConfig       `mapstructure:"storage" yaml:"storage"`
	Attendance    AttendanceConfig    `mapstructure:"attendance" yaml:"attendance"`
	Notifications NotificationsConfig `mapstructure:"notifications" yaml:"notifications"`
	Log           LogConfig           `mapstructure:"log" yaml:"log"`
}

// configDir returns ~/.config/workdesk, or the working directory when the
// home directory cannot be resolved.
func configDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "workdesk")
}

// DefaultConfigPath returns the default path for the configuration file,
// located at ~/.config/workdesk/config.yaml.
func DefaultConfigPath() string {
	return filepath.Join(configDir(), "config.yaml")
}

func setDefaults(v *viper.Viper) {
	dir := configDir()
	v.SetDefault("api.base_url", "http://localhost:5000/api")
	v.SetDefault("api.timeout_sec", 30)
	v.SetDefault("realtime.url", "")
	v.SetDefault("realtime.max_reconnect_attempts", 5)
	v.SetDefault("realtime.reconnect_delay_ms", 1000)
	v.SetDefault("realtime.reconnect_delay_max_ms", 5000)
	v.SetDefault("realtime.ping_interval_sec", 25)
	v.SetDefault("storage.path", filepath.Join(dir, "state.db"))
	v.SetDefault("storage.use_keyring", true)
	v.SetDefault("storage.watch_interval_ms", 500)
	v.SetDefault("attendance.min_work_hours", 4.0)
	v.SetDefault("notifications.reconcile_interval_sec", 0)
	v.SetDefault("log.path", filepath.Join(dir, "workdesk.log"))
	v.SetDefault("log.level", "info")
}

// LoadConfig reads configuration from the given YAML file path using Viper.
// A missing file yields the defaults. Every key can be overridden through
// WORKDESK_-prefixed environment variables (WORKDESK_API_BASE_URL, ...).
func LoadConfig(path string) (*AppConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("workdesk")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var pathErr *os.PathError
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &pathErr) && !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	cfg := &AppConfig{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	if cfg.Attendance.MinWorkHours <= 0 {
		cfg.Attendance.MinWorkHours = 4
	}
	if cfg.Realtime.MaxReconnectAttempts < 0 {
		cfg.Realtime.MaxReconnectAttempts = 0
	}

	return cfg, nil
}

// SaveConfig writes the given configuration to a YAML file at path,
// creating parent directories if needed.
func SaveConfig(path string, cfg *AppConfig) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory %s: %w", dir, err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.Set("api", cfg.API)
	v.Set("realtime", cfg.Realtime)
	v.Set("storage", cfg.Storage)
	v.Set("attendance", cfg.Attendance)
	v.Set("notifications", cfg.Notifications)
	v.Set("log", cfg.Log)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}

	return nil
}

// MinWorkDuration returns the checkout policy as a duration.
func (c *AppConfig) MinWorkDuration() time.Duration {
	return time.Duration(c.Attendance.MinWorkHours * float64(time.Hour))
}

// RealtimeURL returns the configured push endpoint, or derives one from
// the API base URL by switching to the ws scheme, dropping a trailing
// /api segment and appending /ws.
func (c *AppConfig) RealtimeURL() (string, error) {
	if c.Realtime.URL != "" {
		return c.Realtime.URL, nil
	}

	u, err := url.Parse(c.API.BaseURL)
	if err != nil {
		return "", fmt.Errorf("parsing api base url %q: %w", c.API.BaseURL, err)
	}

	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimSuffix(strings.TrimRight(u.Path, "/"), "/api") + "/ws"

	return u.String(), nil
}
