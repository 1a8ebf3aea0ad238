package config

import (
	"fmt"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"
)

// Valid enumerations, checked by validate.
var (
	SensorKinds   = []string{"auto", "iio", "trigger", "simulated"}
	ScreenSources = []string{"auto", "dbus", "manual"}
	Backends      = []string{"tinygo", "hci", "mock"}
	LogLevels     = []string{"debug", "info", "warn", "error"}
	LogFormats    = []string{"json", "text"}
	CallbackTypes = []string{"", "all", "first"}
	ResultTypes   = []string{"", "full", "abbreviated"}
)

// Load loads configuration from file and environment variables.
// An empty path means defaults plus environment only.
func Load(configPath string) (*Config, error) {
	v, err := newViper(configPath)
	if err != nil {
		return nil, err
	}
	return decode(v)
}

// Watch re-reads the configuration file whenever it changes and hands every
// valid result to onChange. Invalid edits are logged and ignored.
func Watch(configPath string, logger zerolog.Logger, onChange func(*Config)) error {
	if configPath == "" {
		return nil
	}
	v, err := newViper(configPath)
	if err != nil {
		return err
	}

	logger = logger.With().Str("component", "config").Logger()
	v.OnConfigChange(func(e fsnotify.Event) {
		cfg, err := decode(v)
		if err != nil {
			logger.Warn().Err(err).Str("file", e.Name).Msg("Ignoring invalid configuration change")
			return
		}
		logger.Info().Str("file", e.Name).Msg("Configuration reloaded")
		onChange(cfg)
	})
	v.WatchConfig()
	return nil
}

func newViper(configPath string) (*viper.Viper, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}
	return v, nil
}

func decode(v *viper.Viper) (*Config, error) {
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("motion.sensor", "auto")
	v.SetDefault("motion.threshold", DefaultMotionThreshold)
	v.SetDefault("motion.window", DefaultMotionWindow)
	v.SetDefault("motion.poll_interval", DefaultPollInterval)
	v.SetDefault("motion.iio_path", "")

	v.SetDefault("screen.source", "auto")
	v.SetDefault("screen.initial", "on")

	v.SetDefault("scan.backend", "tinygo")
	v.SetDefault("scan.adapter", "hci0")
	v.SetDefault("scan.idle_timeout", DefaultIdleTimeout)
	v.SetDefault("scan.sessions", []map[string]any{
		{"name": "all", "callback_type": "all"},
	})

	v.SetDefault("devices.cache_size", DefaultDeviceCacheSize)
	v.SetDefault("devices.ttl", DefaultDeviceTTL)

	v.SetDefault("api.listen", "127.0.0.1:9180")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.file", "")
}

func validate(c *Config) error {
	if c.Motion.Threshold <= 0 {
		return fmt.Errorf("motion.threshold must be positive, got %v", c.Motion.Threshold)
	}
	if c.Motion.Window <= 0 {
		return fmt.Errorf("motion.window must be positive, got %s", c.Motion.Window)
	}
	if c.Motion.PollInterval <= 0 {
		return fmt.Errorf("motion.poll_interval must be positive, got %s", c.Motion.PollInterval)
	}
	if c.Scan.IdleTimeout <= 0 {
		return fmt.Errorf("scan.idle_timeout must be positive, got %s", c.Scan.IdleTimeout)
	}
	if c.Devices.CacheSize <= 0 {
		return fmt.Errorf("devices.cache_size must be positive, got %d", c.Devices.CacheSize)
	}
	if c.Devices.TTL <= 0 {
		return fmt.Errorf("devices.ttl must be positive, got %s", c.Devices.TTL)
	}

	checks := []struct {
		field, value string
		allowed      []string
	}{
		{"motion.sensor", c.Motion.Sensor, SensorKinds},
		{"screen.source", c.Screen.Source, ScreenSources},
		{"screen.initial", c.Screen.Initial, []string{"on", "off"}},
		{"scan.backend", c.Scan.Backend, Backends},
		{"logging.level", c.Logging.Level, LogLevels},
		{"logging.format", c.Logging.Format, LogFormats},
	}
	for _, chk := range checks {
		if !oneOf(chk.value, chk.allowed) {
			return fmt.Errorf("%s: unsupported value %q (want one of %s)",
				chk.field, chk.value, strings.Join(chk.allowed, ", "))
		}
	}

	seen := make(map[string]bool, len(c.Scan.Sessions))
	for i, s := range c.Scan.Sessions {
		if err := s.Validate(); err != nil {
			return fmt.Errorf("scan.sessions[%d]: %w", i, err)
		}
		if seen[s.Name] {
			return fmt.Errorf("scan.sessions[%d]: duplicate name %q", i, s.Name)
		}
		seen[s.Name] = true
	}

	return nil
}

// Validate checks a single session definition. The HTTP API uses it for
// sessions created at runtime.
func (s SessionConfig) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if !oneOf(s.CallbackType, CallbackTypes) {
		return fmt.Errorf("unsupported callback_type %q", s.CallbackType)
	}
	if !oneOf(s.ResultType, ResultTypes) {
		return fmt.Errorf("unsupported result_type %q", s.ResultType)
	}
	if s.ReportDelay < 0 {
		return fmt.Errorf("report_delay must not be negative")
	}
	return nil
}

func oneOf(v string, allowed []string) bool {
	for _, a := range allowed {
		if v == a {
			return true
		}
	}
	return false
}
