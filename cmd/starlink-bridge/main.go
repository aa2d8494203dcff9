// Starlink Bridge - dish telemetry to MQTT.
//
// starlink-bridge polls a Starlink dish over its local gRPC API, publishes
// every selected telemetry field to its own MQTT topic and accepts commands
// for a small set of writable dish settings.
//
// Usage:
//
//	starlink-bridge [run] [flags]   poll and publish until interrupted
//	starlink-bridge topics [flags]  print every topic the bridge uses
//	starlink-bridge journal [flags] print recent commands from the journal
//	starlink-bridge version         print version information as JSON
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/pflag"

	"github.com/nerrad567/gray-logic-starlink/internal/bridge"
	"github.com/nerrad567/gray-logic-starlink/internal/dish"
	"github.com/nerrad567/gray-logic-starlink/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-starlink/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-starlink/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-starlink/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-starlink/internal/infrastructure/metrics"
	"github.com/nerrad567/gray-logic-starlink/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-starlink/internal/journal"
	"github.com/nerrad567/gray-logic-starlink/internal/telemetry"
	"github.com/nerrad567/gray-logic-starlink/migrations"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

const (
	programName = "starlink-bridge"
	envConfig   = config.EnvPrefix + "CONFIG"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	err := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	cancel()

	switch {
	case err == nil, errors.Is(err, pflag.ErrHelp):
	default:
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run dispatches the subcommand in args. It is separated from main so tests
// can drive it with their own context and writers.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	cmd := "run"
	if len(args) > 0 && len(args[0]) > 0 && args[0][0] != '-' {
		cmd, args = args[0], args[1:]
	}

	switch cmd {
	case "version":
		return printVersion(stdout)
	case "topics":
		inv, err := parseInvocation(cmd, args, stderr)
		if err != nil {
			return err
		}
		return printTopics(stdout, inv.cfg)
	case "journal":
		inv, err := parseInvocation(cmd, args, stderr)
		if err != nil {
			return err
		}
		return printJournal(ctx, stdout, inv)
	case "run":
		inv, err := parseInvocation(cmd, args, stderr)
		if err != nil {
			return err
		}
		return serve(ctx, inv, stdout, stderr)
	default:
		return fmt.Errorf("unknown command %q (want run, topics, journal or version)", cmd)
	}
}

func printVersion(w io.Writer) error {
	enc := json.NewEncoder(w)
	return enc.Encode(map[string]string{
		"version": version,
		"commit":  commit,
		"date":    date,
	})
}

func printTopics(w io.Writer, cfg *config.Config) error {
	topics := bridge.NewTopics(cfg.Bridge.TopicPrefix)
	for _, topic := range bridge.ListTopics(topics, telemetry.NewFilter(cfg.Bridge.Fields...), writableSpecs(cfg), cfg.Bridge.CommandAliases) {
		if _, err := fmt.Fprintln(w, topic); err != nil {
			return err
		}
	}
	return nil
}

// serve wires every component and runs the session until ctx is cancelled,
// or for a single cycle with --once.
func serve(ctx context.Context, inv *invocation, stdout, stderr io.Writer) error {
	cfg := inv.cfg
	log := logging.NewWithWriters(cfg.Logging, version, stdout, stderr)
	log.Info("starting starlink bridge",
		"version", version,
		"commit", commit,
		"build_date", date,
		"once", inv.once,
	)

	desc, err := dish.LoadDescriptors(cfg.Dish.Protoset)
	if err != nil {
		return fmt.Errorf("loading dish descriptors: %w", err)
	}
	source, err := dish.New(dish.Config{Host: cfg.Dish.Host, Port: cfg.Dish.Port}, desc, log.With("component", "dish"))
	if err != nil {
		return fmt.Errorf("creating dish client: %w", err)
	}
	defer func() {
		if closeErr := source.Close(); closeErr != nil {
			log.Error("error closing dish client", "error", closeErr)
		}
	}()

	transport, err := mqtt.NewClient(cfg.MQTT)
	if err != nil {
		return fmt.Errorf("creating MQTT client: %w", err)
	}
	transport.SetLogger(log.With("component", "mqtt"))

	var (
		observer bridge.Observer
		registry *metrics.Metrics
		checks   = map[string]metrics.Check{"mqtt": transport.HealthCheck}
	)
	if cfg.Metrics.Enabled {
		registry = metrics.New()
		observer = registry
	}

	topics := bridge.NewTopics(cfg.Bridge.TopicPrefix)

	var history bridge.HistorySink
	if cfg.InfluxDB.Enabled {
		influxClient, connErr := influxdb.Connect(ctx, cfg.InfluxDB, map[string]string{"prefix": topics.Prefix()})
		if connErr != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", connErr)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		history = influxClient
		checks["influxdb"] = influxClient.HealthCheck
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	}

	var cmdJournal bridge.CommandJournal
	if cfg.Journal.Enabled {
		db, openErr := database.Open(ctx, database.Config{
			Path:        cfg.Journal.Path,
			WALMode:     cfg.Journal.WALMode,
			BusyTimeout: cfg.Journal.BusyTimeout,
		})
		if openErr != nil {
			return fmt.Errorf("opening journal database: %w", openErr)
		}
		defer func() {
			log.Info("closing journal database")
			if closeErr := db.Close(); closeErr != nil {
				log.Error("error closing journal database", "error", closeErr)
			}
		}()
		applied, migrateErr := db.Migrate(ctx, migrations.FS)
		if migrateErr != nil {
			return fmt.Errorf("running journal migrations: %w", migrateErr)
		}
		cmdJournal = journal.NewSQLiteRepository(db.DB)
		checks["journal"] = db.HealthCheck
		log.Info("command journal ready", "path", db.Path(), "migrations_applied", applied)
	}

	reconciler, err := bridge.NewReconciler(bridge.ReconcilerOptions{
		Topics:            topics,
		Publisher:         transport,
		Filter:            telemetry.NewFilter(cfg.Bridge.Fields...),
		Retain:            cfg.Bridge.Retain,
		Aggregate:         cfg.Bridge.PublishJSON,
		PublishMissing:    cfg.Bridge.PublishMissing,
		Mode:              bridge.PublishMode(cfg.Bridge.PublishMode),
		FullRefreshCycles: cfg.Bridge.FullRefreshCycles,
		History:           history,
		Observer:          observer,
		Logger:            log.With("component", "reconciler"),
	})
	if err != nil {
		return fmt.Errorf("creating reconciler: %w", err)
	}

	commands, err := bridge.NewCommandBridge(bridge.CommandBridgeOptions{
		Topics:       topics,
		Source:       source,
		Publisher:    transport,
		Writable:     writableSpecs(cfg),
		Aliases:      cfg.Bridge.CommandAliases,
		WriteTimeout: cfg.GetDishTimeout(),
		Journal:      cmdJournal,
		Observer:     observer,
		Logger:       log.With("component", "commands"),
	})
	if err != nil {
		return fmt.Errorf("creating command bridge: %w", err)
	}

	session, err := bridge.NewSession(bridge.SessionOptions{
		Transport:        transport,
		Source:           source,
		Topics:           topics,
		Reconciler:       reconciler,
		Commands:         commands,
		Interval:         cfg.GetInterval(),
		FetchTimeout:     cfg.GetDishTimeout(),
		BackoffInitial:   cfg.GetReconnectInitialDelay(),
		BackoffMax:       cfg.GetReconnectMaxDelay(),
		Once:             inv.once,
		Journal:          cmdJournal,
		JournalRetention: cfg.GetJournalRetention(),
		Observer:         observer,
		Logger:           log.With("component", "session"),
	})
	if err != nil {
		return fmt.Errorf("creating session: %w", err)
	}

	checks["session"] = session.HealthCheck

	if registry != nil {
		srv, listenErr := metrics.Listen(cfg.Metrics.Listen, registry, checks)
		if listenErr != nil {
			return fmt.Errorf("starting metrics endpoint: %w", listenErr)
		}
		defer func() {
			log.Info("stopping metrics endpoint")
			if closeErr := srv.Close(); closeErr != nil {
				log.Error("error stopping metrics endpoint", "error", closeErr)
			}
		}()
		log.Info("metrics endpoint listening", "addr", srv.Addr())
	}

	log.Info("bridge configured",
		"dish", cfg.Dish.Host,
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
		"prefix", cfg.Bridge.TopicPrefix,
		"interval", cfg.GetInterval().String(),
	)

	if err := session.Run(ctx); err != nil {
		return fmt.Errorf("bridge session: %w", err)
	}

	log.Info("starlink bridge stopped")
	return nil
}

func writableSpecs(cfg *config.Config) []bridge.FieldSpec {
	specs := make([]bridge.FieldSpec, 0, len(cfg.Bridge.Writable))
	for _, w := range cfg.Bridge.Writable {
		specs = append(specs, bridge.FieldSpec{
			Path:   w.Path,
			Kind:   bridge.FieldKind(w.Kind),
			Values: w.Values,
		})
	}
	return specs
}

// defaultClientID derives a stable client ID from the host name and pid so
// two bridges on one host never share a session.
func defaultClientID() string {
	host, err := os.Hostname()
	if err != nil {
		host = "localhost"
	}
	id := uuid.NewSHA1(uuid.NameSpaceDNS, fmt.Appendf(nil, "%s-%d", host, os.Getpid()))
	return programName + "-" + id.String()[:8]
}
