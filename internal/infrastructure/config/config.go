package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for yysbot.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Logging   LoggingConfig   `yaml:"logging"`
	Database  DatabaseConfig  `yaml:"database"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	ADB       ADBConfig       `yaml:"adb"`
	Catalog   CatalogConfig   `yaml:"catalog"`
	Engine    EngineConfig    `yaml:"engine"`
	Session   SessionConfig   `yaml:"session"`
	Fleet     FleetConfig     `yaml:"fleet"`
	Debug     DebugConfig     `yaml:"debug"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level" env:"YYSBOT_LOG_LEVEL"`
	Format string `yaml:"format" env:"YYSBOT_LOG_FORMAT"`
	Output string `yaml:"output"`
}

// DatabaseConfig contains SQLite run-history settings.
type DatabaseConfig struct {
	Path        string `yaml:"path" env:"YYSBOT_DATABASE_PATH"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
// The broker is optional; sessions run without it.
type MQTTConfig struct {
	Enabled     bool                `yaml:"enabled" env:"YYSBOT_MQTT_ENABLED"`
	Broker      MQTTBrokerConfig    `yaml:"broker"`
	Auth        MQTTAuthConfig      `yaml:"auth"`
	QoS         int                 `yaml:"qos"`
	TopicPrefix string              `yaml:"topic_prefix"`
	Reconnect   MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host" env:"YYSBOT_MQTT_HOST"`
	Port     int    `yaml:"port" env:"YYSBOT_MQTT_PORT"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username" env:"YYSBOT_MQTT_USERNAME"`
	Password string `yaml:"password" env:"YYSBOT_MQTT_PASSWORD"`
}

// MQTTReconnectConfig contains MQTT reconnection settings (seconds).
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// InfluxDBConfig contains InfluxDB connection settings for tick and tap metrics.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled" env:"YYSBOT_INFLUXDB_ENABLED"`
	URL           string `yaml:"url" env:"YYSBOT_INFLUXDB_URL"`
	Token         string `yaml:"token" env:"YYSBOT_INFLUXDB_TOKEN"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// APIConfig contains the local control panel HTTP settings.
type APIConfig struct {
	Enabled  bool             `yaml:"enabled" env:"YYSBOT_API_ENABLED"`
	Host     string           `yaml:"host" env:"YYSBOT_API_HOST"`
	Port     int              `yaml:"port" env:"YYSBOT_API_PORT"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`

	// PanelDir serves the control page from disk instead of the embedded copy.
	PanelDir string `yaml:"panel_dir"`
}

// APITimeoutConfig contains HTTP timeout settings (seconds).
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// WebSocketConfig contains WebSocket status stream settings.
type WebSocketConfig struct {
	MaxMessageSize int `yaml:"max_message_size"`
	PingInterval   int `yaml:"ping_interval"`
	PongTimeout    int `yaml:"pong_timeout"`
}

// ADBConfig contains Android Debug Bridge settings.
type ADBConfig struct {
	// Path is the adb executable. Resolved through PATH when not absolute.
	Path string `yaml:"path" env:"YYSBOT_ADB_PATH"`

	// ManageServer runs "adb nodaemon server" under the process manager
	// instead of relying on an externally started server.
	ManageServer bool `yaml:"manage_server"`

	// ServerPort is the adb server port. Default: 5037
	ServerPort int `yaml:"server_port"`

	// CaptureFormat selects "png" (screencap -p) or "raw" framebuffer capture.
	CaptureFormat string `yaml:"capture_format"`

	// CommandTimeout bounds every adb invocation.
	CommandTimeout time.Duration `yaml:"command_timeout"`

	// ConnectHost is the host used when probing common emulator ports.
	ConnectHost string `yaml:"connect_host"`

	// CommonPorts are the emulator ports tried during discovery.
	CommonPorts []int `yaml:"common_ports"`
}

// CatalogConfig selects the control catalog.
type CatalogConfig struct {
	// Module names a builtin catalog ("yuhun", "baigui") used when File is empty.
	Module string `yaml:"module" env:"YYSBOT_MODULE"`

	// File is an optional catalog YAML file overriding the builtin module.
	File string `yaml:"file"`

	// LegacyFile is an optional button_config.json merged over the catalog.
	LegacyFile string `yaml:"legacy_file"`

	// TemplateDir holds <control>.png template images.
	TemplateDir string `yaml:"template_dir" env:"YYSBOT_TEMPLATE_DIR"`

	// AutoDiscover adds unlisted button*.png templates as normal controls.
	AutoDiscover bool `yaml:"auto_discover"`

	// MatchScale is the integer downscale factor used while matching (1 = full size).
	MatchScale int `yaml:"match_scale"`

	// MatchStep is the coarse search stride in downscaled pixels.
	MatchStep int `yaml:"match_step"`
}

// EngineConfig contains per-tick decision engine settings.
type EngineConfig struct {
	TickBudget            time.Duration `yaml:"tick_budget"`
	GatePoll              time.Duration `yaml:"gate_poll"`
	IdleSleep             time.Duration `yaml:"idle_sleep"`
	ExploreChance         float64       `yaml:"explore_chance"`
	ExploreRadius         int           `yaml:"explore_radius"`
	ExploreBudgetFraction float64       `yaml:"explore_budget_fraction"`
	MaxCaptureFailures    int           `yaml:"max_capture_failures"`
}

// SessionConfig contains per-device supervisor settings.
type SessionConfig struct {
	Duration     time.Duration `yaml:"duration" env:"YYSBOT_DURATION"`
	PauseSleep   time.Duration `yaml:"pause_sleep"`
	ErrorBackoff time.Duration `yaml:"error_backoff"`
	SlowTickWarn time.Duration `yaml:"slow_tick_warn"`
	Breaks       BreakConfig   `yaml:"breaks"`
}

// BreakConfig configures scheduled breaks.
// After a running interval drawn from [IntervalMin, IntervalMax] the session
// rests for a duration drawn from [DurationMin, DurationMax].
type BreakConfig struct {
	Enabled     bool          `yaml:"enabled"`
	IntervalMin time.Duration `yaml:"interval_min"`
	IntervalMax time.Duration `yaml:"interval_max"`
	DurationMin time.Duration `yaml:"duration_min"`
	DurationMax time.Duration `yaml:"duration_max"`
}

// FleetConfig contains coordinator settings.
type FleetConfig struct {
	// Devices are the adb serials to run. Empty means every discovered device.
	Devices []string `yaml:"devices" env:"YYSBOT_DEVICES"`

	// MaxSessions caps concurrent sessions. 0 runs one session per device;
	// otherwise devices are grouped and rotated round-robin.
	MaxSessions int `yaml:"max_sessions"`

	PollInterval   time.Duration `yaml:"poll_interval"`
	SwitchInterval time.Duration `yaml:"switch_interval"`
}

// DebugConfig contains operator debugging aids.
type DebugConfig struct {
	// KeepFrames retains the last captured frame per session (snappy-compressed)
	// for the control panel.
	KeepFrames bool `yaml:"keep_frames"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern YYSBOT_SECTION_KEY, for example
// YYSBOT_DATABASE_PATH or YYSBOT_MQTT_HOST.
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, fmt.Errorf("applying environment overrides: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Default returns a Config populated with defaults.
// The timing defaults mirror the behaviour operators tuned the bot for:
// a 5s tick budget, a 1s gate window polled every 100ms and a 1s error backoff.
func Default() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Database: DatabaseConfig{
			Path:        "./data/yysbot.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "yysbot",
			},
			QoS:         1,
			TopicPrefix: "yysbot",
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		InfluxDB: InfluxDBConfig{
			URL:           "http://localhost:8086",
			Org:           "yysbot",
			Bucket:        "yysbot",
			BatchSize:     100,
			FlushInterval: 10,
		},
		API: APIConfig{
			Host: "127.0.0.1",
			Port: 8765,
			Timeouts: APITimeoutConfig{
				Read:  15,
				Write: 15,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		ADB: ADBConfig{
			Path:           "adb",
			ServerPort:     5037,
			CaptureFormat:  "png",
			CommandTimeout: 10 * time.Second,
			ConnectHost:    "127.0.0.1",
			CommonPorts:    []int{5555, 5556, 5557, 5558, 7555, 62001, 62025, 62026, 16384, 16416},
		},
		Catalog: CatalogConfig{
			Module:      "yuhun",
			TemplateDir: "./templates",
			MatchScale:  2,
			MatchStep:   2,
		},
		Engine: EngineConfig{
			TickBudget:            5 * time.Second,
			GatePoll:              100 * time.Millisecond,
			IdleSleep:             200 * time.Millisecond,
			ExploreChance:         0.2,
			ExploreRadius:         100,
			ExploreBudgetFraction: 0.8,
			MaxCaptureFailures:    5,
		},
		Session: SessionConfig{
			Duration:     60 * time.Minute,
			PauseSleep:   time.Second,
			ErrorBackoff: time.Second,
			SlowTickWarn: 30 * time.Second,
			Breaks: BreakConfig{
				IntervalMin: 2 * time.Hour,
				IntervalMax: 3 * time.Hour,
				DurationMin: 10 * time.Minute,
				DurationMax: 30 * time.Minute,
			},
		},
		Fleet: FleetConfig{
			PollInterval:   100 * time.Millisecond,
			SwitchInterval: 30 * time.Second,
		},
	}
}

// applyEnvOverrides applies YYSBOT_* environment variables declared on the
// struct tags. Unset variables leave the file value untouched.
func applyEnvOverrides(cfg *Config) error {
	return env.Parse(cfg)
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of every validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.Enabled && c.MQTT.TopicPrefix == "" {
		errs = append(errs, "mqtt.topic_prefix is required when mqtt is enabled")
	}

	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required when influxdb is enabled")
	}

	if c.API.Enabled && (c.API.Port < 1 || c.API.Port > 65535) {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if c.ADB.Path == "" {
		errs = append(errs, "adb.path is required")
	}
	switch c.ADB.CaptureFormat {
	case "png", "raw":
	default:
		errs = append(errs, fmt.Sprintf("adb.capture_format %q must be png or raw", c.ADB.CaptureFormat))
	}

	if c.Catalog.File == "" && c.Catalog.Module == "" {
		errs = append(errs, "catalog.module or catalog.file is required")
	}
	if c.Catalog.MatchScale < 1 {
		errs = append(errs, "catalog.match_scale must be at least 1")
	}
	if c.Catalog.MatchStep < 1 {
		errs = append(errs, "catalog.match_step must be at least 1")
	}

	if c.Engine.TickBudget <= 0 {
		errs = append(errs, "engine.tick_budget must be positive")
	}
	if c.Engine.ExploreChance < 0 || c.Engine.ExploreChance > 1 {
		errs = append(errs, "engine.explore_chance must be within [0,1]")
	}
	if c.Engine.ExploreBudgetFraction < 0 || c.Engine.ExploreBudgetFraction > 1 {
		errs = append(errs, "engine.explore_budget_fraction must be within [0,1]")
	}
	if c.Engine.MaxCaptureFailures < 1 {
		errs = append(errs, "engine.max_capture_failures must be at least 1")
	}

	if c.Session.Duration <= 0 {
		errs = append(errs, "session.duration must be positive")
	}
	if b := c.Session.Breaks; b.Enabled {
		if b.IntervalMin <= 0 || b.IntervalMax < b.IntervalMin {
			errs = append(errs, "session.breaks interval window is invalid")
		}
		if b.DurationMin <= 0 || b.DurationMax < b.DurationMin {
			errs = append(errs, "session.breaks duration window is invalid")
		}
	}

	if c.Fleet.MaxSessions < 0 {
		errs = append(errs, "fleet.max_sessions must not be negative")
	}
	if c.Fleet.PollInterval <= 0 {
		errs = append(errs, "fleet.poll_interval must be positive")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}
