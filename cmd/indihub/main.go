// indihub - INDI device-control message broker
//
// indihub accepts client connections on TCP port 7624, runs or connects to
// device drivers, and routes INDI XML elements between them. Drivers may be
// named on the command line, listed in the configuration file, or started
// and stopped at runtime through the control FIFO, the MQTT control topic
// or the HTTP API.
//
// Usage:
//
//	indihub [flags] [driver ...]
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	_ "github.com/nerrad567/indihub/migrations"

	"github.com/nerrad567/indihub/internal/api"
	"github.com/nerrad567/indihub/internal/audit"
	"github.com/nerrad567/indihub/internal/broker"
	"github.com/nerrad567/indihub/internal/control"
	"github.com/nerrad567/indihub/internal/discovery"
	"github.com/nerrad567/indihub/internal/events"
	"github.com/nerrad567/indihub/internal/infrastructure/config"
	"github.com/nerrad567/indihub/internal/infrastructure/database"
	"github.com/nerrad567/indihub/internal/infrastructure/influxdb"
	"github.com/nerrad567/indihub/internal/infrastructure/logging"
	"github.com/nerrad567/indihub/internal/infrastructure/mqtt"
	"github.com/nerrad567/indihub/internal/metrics"
	"github.com/nerrad567/indihub/internal/telemetry"
	"github.com/nerrad567/indihub/internal/transport"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// configEnv names the config file when -c is not given.
const configEnv = "INDIHUB_CONFIG"

// errUsage marks command-line mistakes; main prints usage for them.
var errUsage = errors.New("usage")

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:], os.Stderr); err != nil {
		if !errors.Is(err, pflag.ErrHelp) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

// options are the command-line settings. Zero values mean "not given";
// flags only override the file when fs.Changed reports them.
type options struct {
	configPath  string
	port        int
	maxQueue    int
	maxStream   int
	maxRestarts int
	fifo        string
	logDir      string
	verbose     int
	drivers     []string

	fs *pflag.FlagSet
}

// parseFlags reads args (without the program name).
func parseFlags(args []string, stderr io.Writer) (*options, error) {
	opts := &options{}
	fs := pflag.NewFlagSet("indihub", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.SortFlags = false
	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: indihub [flags] [driver ...]\n\n")
		fmt.Fprintf(stderr, "Drivers are local executables or remote specs of the form [device]@host[:port].\n\n")
		fs.PrintDefaults()
	}

	fs.StringVarP(&opts.configPath, "config", "c", "", "configuration file (default $"+configEnv+")")
	fs.IntVarP(&opts.port, "port", "p", broker.DefaultPort, "client listen port")
	fs.IntVarP(&opts.maxQueue, "maxqueue", "m", 128, "max client queue size in MB before disconnect")
	fs.IntVarP(&opts.maxStream, "maxstream", "d", 5, "max client queue size in MB before stream BLOBs are dropped, 0 to never drop")
	fs.IntVarP(&opts.maxRestarts, "maxrestarts", "r", 0, "max restarts per driver, 0 for unlimited")
	fs.StringVarP(&opts.fifo, "fifo", "f", "", "control FIFO for dynamic start/stop commands")
	fs.StringVarP(&opts.logDir, "logdir", "l", "", "directory for driver message logs")
	fs.CountVarP(&opts.verbose, "verbose", "v", "more log output (repeatable)")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	opts.drivers = fs.Args()
	opts.fs = fs
	return opts, nil
}

// apply overrides cfg with the flags that were given.
func (o *options) apply(cfg *config.Config) {
	if o.fs.Changed("port") {
		cfg.Server.Port = o.port
	}
	if o.fs.Changed("maxqueue") {
		cfg.Limits.MaxQueueMB = o.maxQueue
	}
	if o.fs.Changed("maxstream") {
		cfg.Limits.MaxStreamMB = o.maxStream
	}
	if o.fs.Changed("maxrestarts") {
		cfg.Limits.MaxRestarts = o.maxRestarts
	}
	if o.fs.Changed("fifo") {
		cfg.Control.FIFO = o.fifo
	}
	if o.fs.Changed("logdir") {
		cfg.DriverLog.Dir = o.logDir
	}
	cfg.Drivers = append(cfg.Drivers, o.drivers...)
	cfg.Logging.Level = logging.Verbosity(cfg.Logging.Level, o.verbose)
}

// loadConfig resolves the config path, loads it and applies flags.
func loadConfig(opts *options) (*config.Config, error) {
	path := opts.configPath
	if path == "" {
		path = os.Getenv(configEnv)
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	opts.apply(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// hasControl reports whether drivers can be started after startup.
func hasControl(cfg *config.Config) bool {
	return cfg.Control.FIFO != "" ||
		cfg.API.Enabled ||
		(cfg.MQTT.Enabled && cfg.MQTT.AcceptControl)
}

// run wires the broker and its integrations and blocks until ctx is
// cancelled or the broker has nothing left to serve.
func run(ctx context.Context, args []string, stderr io.Writer) error { //nolint:gocognit,gocyclo // linear startup sequence
	opts, err := parseFlags(args, stderr)
	if err != nil {
		return err
	}
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	if len(cfg.Drivers) == 0 && !hasControl(cfg) {
		opts.fs.Usage()
		return fmt.Errorf("%w: no drivers given and no control channel configured", errUsage)
	}

	log := logging.New(cfg.Logging, version)
	log.Info("starting indihub",
		"version", version,
		"commit", commit,
		"build_date", date,
		"drivers", len(cfg.Drivers),
	)

	fanout := &events.Fanout{}

	b := broker.New(broker.Config{
		MaxQueueBytes:  cfg.MaxQueueBytes(),
		MaxStreamBytes: cfg.MaxStreamBytes(),
		MaxRestarts:    cfg.Limits.MaxRestarts,
		RestartDelay:   cfg.RestartDelay(),
		TickInterval:   cfg.TickInterval(),
		ControlChannel: hasControl(cfg),
		DriverLogDir:   cfg.DriverLog.Dir,
		Drivers:        cfg.Drivers,
	}, &transport.Dialer{
		Mode:        transport.Mode(cfg.LocalDrivers.Mode),
		FIFODir:     cfg.LocalDrivers.FIFODir,
		DialTimeout: time.Duration(cfg.LocalDrivers.DialTimeout) * time.Second,
		StopTimeout: time.Duration(cfg.LocalDrivers.StopTimeout) * time.Second,
		Logger:      log.With("component", "driver"),
	})
	b.SetLogger(log.With("component", "broker"))
	b.SetEventSink(fanout)

	g, gctx := errgroup.WithContext(ctx)

	// Audit store (optional)
	var db *database.DB
	var eventStore api.EventStore
	if cfg.Database.Enabled {
		db, err = database.Open(ctx, database.Config{
			Path:        cfg.Database.Path,
			WALMode:     cfg.Database.WALMode,
			BusyTimeout: cfg.Database.BusyTimeout,
		})
		if err != nil {
			return fmt.Errorf("opening database: %w", err)
		}
		defer func() {
			log.Info("closing database")
			if closeErr := db.Close(); closeErr != nil {
				log.Error("error closing database", "error", closeErr)
			}
		}()
		if migrateErr := db.Migrate(ctx); migrateErr != nil {
			return fmt.Errorf("running migrations: %w", migrateErr)
		}
		log.Info("database ready", "path", cfg.Database.Path)

		repo := audit.NewSQLiteRepository(db.DB)
		recorder := audit.NewRecorder(repo, 0, time.Duration(cfg.Database.Retention)*24*time.Hour)
		recorder.SetLogger(log.With("component", "audit"))
		fanout.Add(recorder)
		g.Go(func() error { return recorder.Run(gctx) })
		eventStore = repo
	} else {
		log.Info("database disabled, broker events will not be stored")
	}

	m := metrics.New()
	fanout.Add(m)

	collector := telemetry.NewCollector(b, time.Duration(cfg.Telemetry.Interval)*time.Second)
	collector.SetLogger(log.With("component", "telemetry"))
	collector.Add(m)

	// MQTT (optional)
	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(cfg.MQTT)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		mqttClient.SetLogger(log.With("component", "mqtt"))
		mqttClient.SetOnConnect(func() {
			log.Info("MQTT reconnected")
		})
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)

		publisher := mqtt.NewEventPublisher(mqttClient, byte(cfg.MQTT.QoS), 0) //nolint:gosec // qos validated 0-2
		publisher.SetLogger(log.With("component", "mqtt"))
		fanout.Add(publisher)
		g.Go(func() error { return publisher.Run(gctx) })
		collector.Add(telemetry.StatsObserver(publisher, log))

		if cfg.MQTT.AcceptControl {
			if subErr := mqttClient.SubscribeControl(b.Submit); subErr != nil {
				return fmt.Errorf("subscribing to control topic: %w", subErr)
			}
			log.Info("accepting control commands over MQTT", "topic", mqtt.Topics{}.Control())
		}
	}

	// InfluxDB (optional)
	if cfg.InfluxDB.Enabled {
		influxClient, influxErr := influxdb.Connect(cfg.InfluxDB)
		if influxErr != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", influxErr)
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
		collector.Add(telemetry.InfluxObserver(influxClient))
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	}

	// mDNS advertisement (optional)
	if cfg.Discovery.Enabled {
		adv := discovery.NewAdvertiser(discovery.Config{
			Instance: cfg.Discovery.Instance,
			Domain:   cfg.Discovery.Domain,
			Port:     cfg.Server.Port,
		})
		if advErr := adv.Start(cfg.Drivers); advErr != nil {
			log.Warn("mDNS advertisement failed", "error", advErr)
		} else {
			defer adv.Stop()
			collector.Add(adv)
			log.Info("advertising over mDNS", "service", discovery.ServiceType)
		}
	}

	if cfg.Telemetry.Interval > 0 {
		g.Go(func() error { return collector.Run(gctx) })
	}

	// HTTP API (optional)
	if cfg.API.Enabled {
		deps := api.Deps{
			Config:  cfg.API,
			Logger:  log.With("component", "api"),
			Broker:  b,
			Events:  eventStore,
			Metrics: m.Handler(),
			Version: version,
		}
		if mqttClient != nil {
			deps.MQTT = mqttClient
		}
		if db != nil {
			deps.DB = db
		}
		srv, apiErr := api.New(deps)
		if apiErr != nil {
			return fmt.Errorf("creating API server: %w", apiErr)
		}
		fanout.Add(srv.Hub())
		if startErr := srv.Start(gctx); startErr != nil {
			return fmt.Errorf("starting API server: %w", startErr)
		}
		defer func() {
			if closeErr := srv.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
	}

	// Control FIFO (optional)
	if cfg.Control.FIFO != "" {
		fifo := control.NewFIFO(cfg.Control.FIFO)
		fifo.SetLogger(log.With("component", "control"))
		g.Go(func() error { return fifo.Run(gctx, b.Submit) })
		log.Info("control channel open", "fifo", cfg.Control.FIFO)
	}

	ln, err := net.Listen("tcp", cfg.ListenAddr())
	if err != nil {
		return fmt.Errorf("listening on %s: %w", cfg.ListenAddr(), err)
	}
	log.Info("listening for clients", "address", ln.Addr().String())

	g.Go(func() error { return b.Run(gctx, ln) })

	err = g.Wait()
	if errors.Is(err, broker.ErrNothingToServe) {
		log.Error("no drivers left to serve, exiting")
		return err
	}
	if err != nil {
		return err
	}
	log.Info("indihub stopped")
	return nil
}
