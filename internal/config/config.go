package config

import "time"

const (
	// Motion debounce
	DefaultMotionThreshold = 92.0             // |Δ(x²+y²+z²)| in (m/s²)², ~0.4g around 1g
	DefaultMotionWindow    = 10 * time.Second // Retriggerable monostable length
	DefaultPollInterval    = 200 * time.Millisecond
	IIODevicesRoot         = "/sys/bus/iio/devices"

	// Scheduler
	DefaultIdleTimeout = 20 * time.Minute // Slow scan period after screen-off / stillness

	// Radio duty cycles (window / interval), mirroring the usual BLE stack presets
	LowPowerWindow      = 512 * time.Millisecond
	LowPowerInterval    = 5120 * time.Millisecond
	BalancedWindow      = 1024 * time.Millisecond
	BalancedInterval    = 4096 * time.Millisecond
	LowLatencyWindow    = 4096 * time.Millisecond
	LowLatencyInterval  = 4096 * time.Millisecond
	HCIScanUnit         = 625 * time.Microsecond // LE scan interval/window unit
	RadioRestartBackoff = 2 * time.Second

	// Device management
	DefaultDeviceCacheSize = 512
	DefaultDeviceTTL       = 30 * time.Second
	MeasuredPower          = -59.0 // RSSI at 1 meter (dBm)
	PathLossExp            = 2.5   // Path loss exponent (N)
	SmoothingAlpha         = 0.3   // EMA smoothing factor (30% new, 70% old)

	// Event loop
	EventQueueSize = 1024

	// Dashboard
	TargetFPS      = 10
	HistoryEntries = 8

	// App
	AppName    = "BLE-PACER"
	AppVersion = "1.0"
	EnvPrefix  = "BLEPACER"
)

// Config holds the complete application configuration.
type Config struct {
	Motion  MotionConfig  `mapstructure:"motion"`
	Screen  ScreenConfig  `mapstructure:"screen"`
	Scan    ScanConfig    `mapstructure:"scan"`
	Devices DevicesConfig `mapstructure:"devices"`
	API     APIConfig     `mapstructure:"api"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// MotionConfig selects the motion sensor and tunes the debounce detector.
type MotionConfig struct {
	Sensor       string        `mapstructure:"sensor"` // auto | iio | trigger | simulated
	Threshold    float64       `mapstructure:"threshold"`
	Window       time.Duration `mapstructure:"window"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	IIOPath      string        `mapstructure:"iio_path"` // empty = auto-detect
}

// ScreenConfig selects where screen on/off edges come from.
type ScreenConfig struct {
	Source  string `mapstructure:"source"` // auto | dbus | manual
	Initial string `mapstructure:"initial"`
}

// ScanConfig selects the radio backend and the sessions registered at startup.
type ScanConfig struct {
	Backend     string          `mapstructure:"backend"` // tinygo | hci | mock
	Adapter     string          `mapstructure:"adapter"`
	IdleTimeout time.Duration   `mapstructure:"idle_timeout"`
	Sessions    []SessionConfig `mapstructure:"sessions"`
}

// SessionConfig describes one scan session.
type SessionConfig struct {
	Name         string         `mapstructure:"name" json:"name"`
	CallbackType string         `mapstructure:"callback_type" json:"callback_type,omitempty"` // all | first
	ResultType   string         `mapstructure:"result_type" json:"result_type,omitempty"`     // full | abbreviated
	ReportDelay  time.Duration  `mapstructure:"report_delay" json:"report_delay,omitempty"`
	Filters      []FilterConfig `mapstructure:"filters" json:"filters,omitempty"`
}

// FilterConfig is one advertisement filter. Empty fields match anything.
type FilterConfig struct {
	Name           string  `mapstructure:"name" json:"name,omitempty"`
	Address        string  `mapstructure:"address" json:"address,omitempty"`
	ServiceUUID    string  `mapstructure:"service_uuid" json:"service_uuid,omitempty"`
	ManufacturerID *uint16 `mapstructure:"manufacturer_id" json:"manufacturer_id,omitempty"`
	Manufacturer   string  `mapstructure:"manufacturer" json:"manufacturer,omitempty"` // vendor name, resolved to an ID
	MinRSSI        int16   `mapstructure:"min_rssi" json:"min_rssi,omitempty"`
}

// DevicesConfig bounds the discovered-device cache.
type DevicesConfig struct {
	CacheSize int           `mapstructure:"cache_size"`
	TTL       time.Duration `mapstructure:"ttl"`
}

// APIConfig defines the status/control HTTP endpoint.
type APIConfig struct {
	Listen string `mapstructure:"listen"` // empty disables the server
}

// LoggingConfig defines logging behavior.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	File   string `mapstructure:"file"`
}
