package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/nerrad567/gray-logic-starlink/internal/bridge"
)

// EnvPrefix is the prefix of every environment variable override.
const EnvPrefix = "STARLINK_BRIDGE_"

// Config is the root configuration structure for the Starlink bridge.
// It is loaded from YAML and can be overridden by environment variables and
// command-line flags.
type Config struct {
	Dish     DishConfig     `yaml:"dish"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	Bridge   BridgeConfig   `yaml:"bridge"`
	Logging  LoggingConfig  `yaml:"logging"`
	InfluxDB InfluxDBConfig `yaml:"influxdb"`
	Journal  JournalConfig  `yaml:"journal"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// DishConfig contains the dish gRPC endpoint settings.
type DishConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`

	// Protoset is a serialised FileDescriptorSet describing the dish API.
	Protoset string `yaml:"protoset"`

	// Timeout bounds each fetch and write, in seconds.
	Timeout int `yaml:"timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	TLS       MQTTTLSConfig       `yaml:"tls"`
	QoS       int                 `yaml:"qos"`
	KeepAlive int                 `yaml:"keepalive"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTTLSConfig enables TLS to the broker. CertFile and KeyFile select a
// client certificate and must be set together.
type MQTTTLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CAFile   string `yaml:"ca_file"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// MQTTReconnectConfig contains reconnection backoff settings in seconds.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// BridgeConfig controls what is published and which commands are accepted.
type BridgeConfig struct {
	TopicPrefix string `yaml:"topic_prefix"`

	// Interval is the poll cadence in seconds. Fractions are allowed.
	Interval float64 `yaml:"interval"`

	// Fields restricts publishing to these paths and their descendants.
	// Empty means everything.
	Fields []string `yaml:"fields"`

	Retain         bool   `yaml:"retain"`
	PublishJSON    bool   `yaml:"publish_json"`
	PublishMissing bool   `yaml:"publish_missing"`
	PublishMode    string `yaml:"publish_mode"`

	// FullRefreshCycles forces a full publish every N cycles in "changes"
	// mode. Zero disables the refresh.
	FullRefreshCycles int `yaml:"full_refresh_cycles"`

	Writable       []WritableField   `yaml:"writable"`
	CommandAliases map[string]string `yaml:"command_aliases"`
}

// WritableField declares a field that accepts commands.
type WritableField struct {
	Path   string   `yaml:"path"`
	Kind   string   `yaml:"kind"`
	Values []string `yaml:"values"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// InfluxDBConfig contains settings for the telemetry history sink.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	Measurement   string `yaml:"measurement"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// JournalConfig contains settings for the SQLite command journal.
type JournalConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Path          string `yaml:"path"`
	WALMode       bool   `yaml:"wal_mode"`
	BusyTimeout   int    `yaml:"busy_timeout"`
	RetentionDays int    `yaml:"retention_days"`
}

// MetricsConfig contains settings for the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
}

// Load reads configuration from a YAML file, applies environment variable
// overrides and validates the result.
//
// An empty path skips the file and starts from defaults.
func Load(path string) (*Config, error) {
	cfg, err := Read(path)
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Read is Load without validation. Callers that layer further overrides
// (command-line flags) on top must call Validate themselves.
func Read(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path) //nolint:gosec // path comes from the operator
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Default returns a Config with the bridge defaults.
func Default() *Config {
	return &Config{
		Dish: DishConfig{
			Host:     "192.168.100.1",
			Port:     9200,
			Protoset: "dish.protoset",
			Timeout:  10,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host: "localhost",
				Port: 1883,
			},
			QoS:       1,
			KeepAlive: 60,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     30,
			},
		},
		Bridge: BridgeConfig{
			TopicPrefix: "taphome/starlink",
			Interval:    10,
			Retain:      true,
			PublishMode: "always",
			Writable: []WritableField{
				{
					Path:   "dish_config.snow_melt_mode",
					Kind:   "enum",
					Values: []string{"on", "off", "auto"},
				},
			},
			CommandAliases: map[string]string{
				"heater": "dish_config.snow_melt_mode",
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		InfluxDB: InfluxDBConfig{
			Measurement:   "starlink",
			BatchSize:     100,
			FlushInterval: 10,
		},
		Journal: JournalConfig{
			Path:          "./data/starlink-bridge.db",
			WALMode:       true,
			BusyTimeout:   5,
			RetentionDays: 30,
		},
		Metrics: MetricsConfig{
			Listen: ":9817",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: STARLINK_BRIDGE_SECTION_KEY
func applyEnvOverrides(cfg *Config) error {
	var errs []error

	envString := func(name string, dst *string) {
		if v := os.Getenv(EnvPrefix + name); v != "" {
			*dst = v
		}
	}
	envInt := func(name string, dst *int) {
		v := os.Getenv(EnvPrefix + name)
		if v == "" {
			return
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s%s: %q is not an integer", EnvPrefix, name, v))
			return
		}
		*dst = n
	}

	// Dish
	envString("DISH_HOST", &cfg.Dish.Host)
	envInt("DISH_PORT", &cfg.Dish.Port)
	envString("DISH_PROTOSET", &cfg.Dish.Protoset)

	// MQTT
	envString("MQTT_HOST", &cfg.MQTT.Broker.Host)
	envInt("MQTT_PORT", &cfg.MQTT.Broker.Port)
	envString("MQTT_CLIENT_ID", &cfg.MQTT.Broker.ClientID)
	envString("MQTT_USERNAME", &cfg.MQTT.Auth.Username)
	envString("MQTT_PASSWORD", &cfg.MQTT.Auth.Password)

	// Bridge
	envString("TOPIC_PREFIX", &cfg.Bridge.TopicPrefix)
	if v := os.Getenv(EnvPrefix + "INTERVAL"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("%sINTERVAL: %q is not a number", EnvPrefix, v))
		} else {
			cfg.Bridge.Interval = f
		}
	}

	// Logging
	envString("LOG_LEVEL", &cfg.Logging.Level)

	// InfluxDB
	envString("INFLUXDB_TOKEN", &cfg.InfluxDB.Token)

	// Journal
	envString("JOURNAL_PATH", &cfg.Journal.Path)

	return errors.Join(errs...)
}

// Validate checks the configuration for errors.
//
// All problems are reported together in a single error.
func (c *Config) Validate() error {
	var errs []string

	// Dish validation
	if c.Dish.Host == "" {
		errs = append(errs, "dish.host is required")
	}
	if !validPort(c.Dish.Port) {
		errs = append(errs, "dish.port must be between 1 and 65535")
	}
	if c.Dish.Protoset == "" {
		errs = append(errs, "dish.protoset is required")
	}
	if c.Dish.Timeout <= 0 {
		errs = append(errs, "dish.timeout must be positive")
	}

	// MQTT validation
	if c.MQTT.Broker.Host == "" {
		errs = append(errs, "mqtt.broker.host is required")
	}
	if !validPort(c.MQTT.Broker.Port) {
		errs = append(errs, "mqtt.broker.port must be between 1 and 65535")
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.KeepAlive < 0 {
		errs = append(errs, "mqtt.keepalive must not be negative")
	}
	if c.MQTT.Reconnect.InitialDelay <= 0 {
		errs = append(errs, "mqtt.reconnect.initial_delay must be positive")
	}
	if c.MQTT.Reconnect.MaxDelay < c.MQTT.Reconnect.InitialDelay {
		errs = append(errs, "mqtt.reconnect.max_delay must not be less than initial_delay")
	}
	if (c.MQTT.TLS.CertFile == "") != (c.MQTT.TLS.KeyFile == "") {
		errs = append(errs, "mqtt.tls.cert_file and mqtt.tls.key_file must be set together")
	}

	// Bridge validation
	prefix := strings.TrimSpace(c.Bridge.TopicPrefix)
	switch {
	case prefix == "":
		errs = append(errs, "bridge.topic_prefix is required")
	case strings.ContainsAny(prefix, "+#"):
		errs = append(errs, "bridge.topic_prefix must not contain MQTT wildcards")
	}
	if c.Bridge.Interval <= 0 {
		errs = append(errs, "bridge.interval must be positive")
	}
	switch c.Bridge.PublishMode {
	case "always", "changes":
	default:
		errs = append(errs, fmt.Sprintf("bridge.publish_mode %q must be \"always\" or \"changes\"", c.Bridge.PublishMode))
	}
	if c.Bridge.FullRefreshCycles < 0 {
		errs = append(errs, "bridge.full_refresh_cycles must not be negative")
	}
	writable := make(map[string]bool, len(c.Bridge.Writable))
	for i, w := range c.Bridge.Writable {
		if err := bridge.ValidatePath(w.Path); err != nil {
			errs = append(errs, fmt.Sprintf("bridge.writable[%d].path: %v", i, err))
		} else if writable[w.Path] {
			errs = append(errs, fmt.Sprintf("bridge.writable[%d].path %q is listed twice", i, w.Path))
		}
		writable[w.Path] = true

		switch bridge.FieldKind(w.Kind) {
		case bridge.KindBool, bridge.KindInt, bridge.KindFloat, bridge.KindString:
		case bridge.KindEnum:
			if len(w.Values) == 0 {
				errs = append(errs, fmt.Sprintf("bridge.writable[%d].values is required for enum fields", i))
			}
		default:
			errs = append(errs, fmt.Sprintf("bridge.writable[%d].kind %q is not one of bool, int, float, enum, string", i, w.Kind))
		}
	}
	for _, alias := range sortedKeys(c.Bridge.CommandAliases) {
		target := c.Bridge.CommandAliases[alias]
		if err := bridge.ValidatePath(alias); err != nil {
			errs = append(errs, fmt.Sprintf("bridge.command_aliases key: %v", err))
		} else if writable[alias] {
			errs = append(errs, fmt.Sprintf("bridge.command_aliases[%s] shadows a writable field", alias))
		}
		switch {
		case target == "":
			errs = append(errs, fmt.Sprintf("bridge.command_aliases[%s] target is required", alias))
		case !writable[target]:
			errs = append(errs, fmt.Sprintf("bridge.command_aliases[%s] target %q is not in bridge.writable", alias, target))
		}
	}

	// Logging validation
	switch strings.ToLower(c.Logging.Format) {
	case "json", "text":
	default:
		errs = append(errs, "logging.format must be json or text")
	}

	// InfluxDB validation
	if c.InfluxDB.Enabled {
		if c.InfluxDB.URL == "" {
			errs = append(errs, "influxdb.url is required when influxdb is enabled")
		}
		if c.InfluxDB.Org == "" {
			errs = append(errs, "influxdb.org is required when influxdb is enabled")
		}
		if c.InfluxDB.Bucket == "" {
			errs = append(errs, "influxdb.bucket is required when influxdb is enabled")
		}
		if c.InfluxDB.Measurement == "" {
			errs = append(errs, "influxdb.measurement is required when influxdb is enabled")
		}
	}

	// Journal validation
	if c.Journal.Enabled {
		if c.Journal.Path == "" {
			errs = append(errs, "journal.path is required when the journal is enabled")
		}
		if c.Journal.RetentionDays < 0 {
			errs = append(errs, "journal.retention_days must not be negative")
		}
	}

	// Metrics validation
	if c.Metrics.Enabled && c.Metrics.Listen == "" {
		errs = append(errs, "metrics.listen is required when metrics are enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func validPort(p int) bool {
	return p >= 1 && p <= 65535
}

// GetInterval returns the poll interval as a Duration.
func (c *Config) GetInterval() time.Duration {
	return time.Duration(c.Bridge.Interval * float64(time.Second))
}

// GetDishTimeout returns the dish request timeout as a Duration.
func (c *Config) GetDishTimeout() time.Duration {
	return time.Duration(c.Dish.Timeout) * time.Second
}

// GetReconnectInitialDelay returns the first reconnect delay as a Duration.
func (c *Config) GetReconnectInitialDelay() time.Duration {
	return time.Duration(c.MQTT.Reconnect.InitialDelay) * time.Second
}

// GetReconnectMaxDelay returns the reconnect delay cap as a Duration.
func (c *Config) GetReconnectMaxDelay() time.Duration {
	return time.Duration(c.MQTT.Reconnect.MaxDelay) * time.Second
}

// GetJournalRetention returns how long journal entries are kept. Zero means
// entries are never pruned.
func (c *Config) GetJournalRetention() time.Duration {
	return time.Duration(c.Journal.RetentionDays) * 24 * time.Hour
}
