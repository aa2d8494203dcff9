package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/pflag"

	"github.com/nerrad567/gray-logic-starlink/internal/infrastructure/config"
)

// invocation is a validated configuration plus the flags that only make
// sense on the command line.
type invocation struct {
	cfg  *config.Config
	once bool

	// journal subcommand only
	limit      int
	migrations bool
}

// cliFlags holds every flag value. Flags override the file and environment
// only when they were set explicitly.
type cliFlags struct {
	configPath string
	once       bool

	interval       float64
	topicPrefix    string
	fields         []string
	publishJSON    bool
	retain         bool
	noRetain       bool
	publishMissing bool

	mqttHost     string
	mqttPort     int
	mqttUsername string
	mqttPassword string
	mqttClientID string
	mqttQoS      int
	mqttKeep     int
	mqttTLS      bool
	mqttCAFile   string
	mqttCertFile string
	mqttKeyFile  string

	dishHost string
	dishPort int
	protoset string

	logLevel string

	backoffMin int
	backoffMax int

	journalPath string
	limit       int
	migrations  bool
}

func newFlagSet(cmd string, stderr io.Writer) (*pflag.FlagSet, *cliFlags) {
	f := &cliFlags{}
	fs := pflag.NewFlagSet(programName+" "+cmd, pflag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.SortFlags = false

	fs.StringVarP(&f.configPath, "config", "c", "", "YAML config file (env "+envConfig+")")
	fs.BoolVar(&f.once, "once", false, "run a single poll cycle and exit")

	fs.Float64Var(&f.interval, "interval", 0, "poll interval in seconds")
	fs.StringVar(&f.topicPrefix, "topic-prefix", "", "MQTT topic prefix")
	fs.StringArrayVar(&f.fields, "field", nil, "publish only this field path and its descendants (repeatable)")
	fs.BoolVar(&f.publishJSON, "json", false, "also publish the full snapshot as JSON on {prefix}/all")
	fs.BoolVar(&f.retain, "retain", false, "retain telemetry messages")
	fs.BoolVar(&f.noRetain, "no-retain", false, "do not retain telemetry messages")
	fs.BoolVar(&f.publishMissing, "publish-missing", false, "publish an empty payload for fields without a value")

	fs.StringVar(&f.mqttHost, "mqtt-host", "", "MQTT broker host")
	fs.IntVar(&f.mqttPort, "mqtt-port", 0, "MQTT broker port")
	fs.StringVar(&f.mqttUsername, "mqtt-username", "", "MQTT username")
	fs.StringVar(&f.mqttPassword, "mqtt-password", "", "MQTT password")
	fs.StringVar(&f.mqttClientID, "mqtt-client-id", "", "MQTT client ID (default derived from host name and pid)")
	fs.IntVar(&f.mqttQoS, "mqtt-qos", 0, "MQTT QoS for every publish and subscription")
	fs.IntVar(&f.mqttKeep, "mqtt-keepalive", 0, "MQTT keepalive in seconds")
	fs.BoolVar(&f.mqttTLS, "mqtt-tls", false, "connect to the broker over TLS")
	fs.StringVar(&f.mqttCAFile, "mqtt-ca-file", "", "CA bundle for the broker certificate")
	fs.StringVar(&f.mqttCertFile, "mqtt-cert-file", "", "client certificate")
	fs.StringVar(&f.mqttKeyFile, "mqtt-key-file", "", "client certificate key")

	fs.StringVar(&f.dishHost, "dish-host", "", "dish gRPC host")
	fs.IntVar(&f.dishPort, "dish-port", 0, "dish gRPC port")
	fs.StringVar(&f.protoset, "protoset", "", "FileDescriptorSet describing the dish API")

	fs.StringVar(&f.logLevel, "log-level", "", "log level: debug, info, warn, error")

	fs.IntVar(&f.backoffMin, "backoff-min", 0, "initial reconnect delay in seconds")
	fs.IntVar(&f.backoffMax, "backoff-max", 0, "maximum reconnect delay in seconds")

	fs.StringVar(&f.journalPath, "journal-path", "", "SQLite command journal file")
	if cmd == "journal" {
		fs.IntVar(&f.limit, "limit", 20, "number of journal entries to print, newest first")
		fs.BoolVar(&f.migrations, "migrations", false, "print the journal schema migrations instead of entries")
	}

	return fs, f
}

// parseInvocation parses args for cmd, layers the flags over the file and
// environment and validates the result.
func parseInvocation(cmd string, args []string, stderr io.Writer) (*invocation, error) {
	fs, f := newFlagSet(cmd, stderr)
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}

	path := f.configPath
	if !fs.Changed("config") {
		path = os.Getenv(envConfig)
	}

	cfg, err := config.Read(path)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	if err := f.apply(fs, cfg); err != nil {
		return nil, err
	}
	if cfg.MQTT.Broker.ClientID == "" {
		cfg.MQTT.Broker.ClientID = defaultClientID()
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &invocation{cfg: cfg, once: f.once, limit: f.limit, migrations: f.migrations}, nil
}

func (f *cliFlags) apply(fs *pflag.FlagSet, cfg *config.Config) error {
	set := fs.Changed

	if set("retain") && set("no-retain") {
		return fmt.Errorf("--retain and --no-retain are mutually exclusive")
	}

	if set("interval") {
		cfg.Bridge.Interval = f.interval
	}
	if set("topic-prefix") {
		cfg.Bridge.TopicPrefix = f.topicPrefix
	}
	if set("field") {
		cfg.Bridge.Fields = f.fields
	}
	if set("json") {
		cfg.Bridge.PublishJSON = f.publishJSON
	}
	if set("retain") {
		cfg.Bridge.Retain = f.retain
	}
	if set("no-retain") {
		cfg.Bridge.Retain = !f.noRetain
	}
	if set("publish-missing") {
		cfg.Bridge.PublishMissing = f.publishMissing
	}

	if set("mqtt-host") {
		cfg.MQTT.Broker.Host = f.mqttHost
	}
	if set("mqtt-port") {
		cfg.MQTT.Broker.Port = f.mqttPort
	}
	if set("mqtt-username") {
		cfg.MQTT.Auth.Username = f.mqttUsername
	}
	if set("mqtt-password") {
		cfg.MQTT.Auth.Password = f.mqttPassword
	}
	if set("mqtt-client-id") {
		cfg.MQTT.Broker.ClientID = f.mqttClientID
	}
	if set("mqtt-qos") {
		cfg.MQTT.QoS = f.mqttQoS
	}
	if set("mqtt-keepalive") {
		cfg.MQTT.KeepAlive = f.mqttKeep
	}
	if set("mqtt-tls") {
		cfg.MQTT.TLS.Enabled = f.mqttTLS
	}
	if set("mqtt-ca-file") {
		cfg.MQTT.TLS.CAFile = f.mqttCAFile
	}
	if set("mqtt-cert-file") {
		cfg.MQTT.TLS.CertFile = f.mqttCertFile
	}
	if set("mqtt-key-file") {
		cfg.MQTT.TLS.KeyFile = f.mqttKeyFile
	}

	if set("dish-host") {
		cfg.Dish.Host = f.dishHost
	}
	if set("dish-port") {
		cfg.Dish.Port = f.dishPort
	}
	if set("protoset") {
		cfg.Dish.Protoset = f.protoset
	}

	if set("log-level") {
		cfg.Logging.Level = f.logLevel
	}

	if set("backoff-min") {
		cfg.MQTT.Reconnect.InitialDelay = f.backoffMin
	}
	if set("backoff-max") {
		cfg.MQTT.Reconnect.MaxDelay = f.backoffMax
	}

	if set("journal-path") {
		cfg.Journal.Path = f.journalPath
	}

	return nil
}
