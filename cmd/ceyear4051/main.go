// Command ceyear4051 drives a Ceyear 4051 spectrum analyzer on the GPIB bus.
package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	"github.com/dex-sp/instruments"
	"github.com/dex-sp/instruments/internal/config"
	"github.com/dex-sp/instruments/internal/monitor"
	"github.com/dex-sp/instruments/internal/storage"
	"github.com/dex-sp/instruments/prologix"
)

var (
	Version   = "1.0.0"
	BuildTime = "unknown"
)

var commands = []Command{
	{
		Str:        "idn",
		Aliases:    []string{"info"},
		Desc:       "Show the instrument identification.",
		HandleFunc: idnHandle,
	},
	{
		Str:        "measure",
		Desc:       "Run single sweeps and print trace 1.",
		HandleFunc: measureHandle,
		Usage:      "[options]",
		Options: mergeOptions(sweepOptions, map[string]string{
			"--format":   "Output format: table or csv.",
			"--repeat":   "Number of sweeps, 0 runs until interrupted.",
			"--interval": "Pause between sweeps.",
		}),
		Example: "measure --center 2.4 --span 100 --format csv",
	},
	{
		Str:        "shot",
		Desc:       "Read marker 1 amplitude repeatedly at one frequency.",
		HandleFunc: shotHandle,
		Usage:      "[options]",
		Options: mergeOptions(sweepOptions, map[string]string{
			"--count": "Number of readings.",
			"--freq":  "Marker frequency in GHz, 0 uses the center frequency.",
		}),
		Example: "shot --count 10 --freq 2.412",
	},
	{
		Str:        "marker",
		Desc:       "Place a marker and read it.",
		HandleFunc: markerHandle,
		Usage:      "[options] number",
		Options: map[string]string{
			"--freq":  "Marker frequency in GHz, 0 uses the center frequency.",
			"--trace": "Trace the marker is attached to.",
		},
		Example: "marker --freq 2.45 2",
	},
	{
		Str:        "markers",
		Desc:       "Read markers that are already placed.",
		HandleFunc: markersHandle,
		Usage:      "number...",
		Example:    "markers 1 2 3",
	},
	{
		Str:        "save",
		Desc:       "Save a trace to a CSV file.",
		HandleFunc: saveHandle,
		Usage:      "[options] file",
		Options: map[string]string{
			"--trace":     "Trace number.",
			"--no-header": "Omit the # metadata lines.",
		},
		Example: "save --trace 2 trace.csv",
	},
	{
		Str:        "errors",
		Desc:       "Poll the instrument error queue.",
		HandleFunc: errorsHandle,
	},
	{
		Str:        "config",
		Desc:       "Print the effective configuration.",
		HandleFunc: configHandle,
		Offline:    true,
	},
	{
		Str:        "version",
		Desc:       "Print the application version.",
		HandleFunc: versionHandle,
		Offline:    true,
	},
	{
		Str:     "help",
		Desc:    "Print detailed help for a given command.",
		Offline: true,
		// Avoid initialization loop by invoking helpHandle in main
	},
}

var fOptions struct {
	ConfigPath string
	Driver     string
	Address    string
	SerialPort string
	LogLevel   string
	Metrics    bool
	Publish    bool
	Strict     bool
}

var (
	cfg      *config.Config
	log      *logrus.Logger
	analyzer *instruments.Ceyear4051

	metricsServer *http.Server
	queue         *storage.MessageQueue

	out io.Writer = os.Stdout
)

func optionsSet() *pflag.FlagSet {
	set := pflag.NewFlagSet("options", pflag.ExitOnError)

	set.StringVar(&fOptions.ConfigPath, "config", "", "Path to config file (YAML).")
	set.StringVar(&fOptions.Driver, "driver", "", "GPIB driver: visa or prologix.")
	set.StringVarP(&fOptions.Address, "address", "a", "", "Instrument address, e.g. GPIB0::18::INSTR.")
	set.StringVar(&fOptions.SerialPort, "serial-port", "", "Serial port of the Prologix controller.")
	set.StringVar(&fOptions.LogLevel, "log-level", "", "Log level (debug, info, warn, error).")
	set.BoolVar(&fOptions.Metrics, "metrics", false, "Serve Prometheus metrics while the command runs.")
	set.BoolVar(&fOptions.Publish, "publish", false, "Publish measurements to redis.")
	set.BoolVar(&fOptions.Strict, "strict", false, "Fail commands when the instrument error queue is not empty.")

	return set
}

func init() {
	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "%s controls a Ceyear 4051 spectrum analyzer over GPIB.\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Usage:\n  %s [options] command [arguments]\n", os.Args[0])

		fmt.Fprintln(os.Stderr, "\nCommands:")
		for _, cmd := range commands {
			fmt.Fprintf(os.Stderr, "  %-15s %s\n", cmd.Str, cmd.Desc)
		}

		fmt.Fprintln(os.Stderr, "\nOptions:")
		optionsSet().PrintDefaults()
		fmt.Fprint(os.Stderr, "\n")
	}
}

func main() {
	os.Exit(run())
}

func run() int {
	cmd, args := parseFlags(os.Args)
	if cmd.Str == "help" {
		helpHandle(args)
		return 0
	}

	var err error
	cfg, err = loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Unable to load config: %s\n", err)
		return 1
	}

	log = setupLogger(cfg.Log)

	if !cmd.Offline {
		defer cleanup()
		if err := connect(); err != nil {
			log.Errorf("Unable to open %s: %s", cfg.Instrument.Address, err)
			return 1
		}
	}

	if err := cmd.HandleFunc(args); err != nil {
		log.Error(err)
		return 1
	}
	return 0
}

// loadConfig layers the config file, the environment (and .env) and the
// command line options, in that order.
func loadConfig() (*config.Config, error) {
	c := config.GetDefaultConfig()
	if fOptions.ConfigPath != "" {
		var err error
		if c, err = config.LoadConfig(fOptions.ConfigPath); err != nil {
			return nil, err
		}
	}

	// .env is optional
	_ = godotenv.Load()
	if err := config.ApplyEnv(c); err != nil {
		return nil, err
	}

	if fOptions.Driver != "" {
		c.Transport.Driver = fOptions.Driver
	}
	if fOptions.Address != "" {
		c.Instrument.Address = fOptions.Address
	}
	if fOptions.SerialPort != "" {
		c.Transport.SerialPort = fOptions.SerialPort
	}
	if fOptions.LogLevel != "" {
		c.Log.Level = fOptions.LogLevel
	}
	if fOptions.Metrics {
		c.Monitor.Enabled = true
	}
	if fOptions.Publish {
		c.Redis.Enabled = true
	}
	if fOptions.Strict {
		c.Instrument.StrictErrors = true
	}

	return c, c.Validate()
}

func connect() error {
	var dialer instruments.Dialer
	switch cfg.Transport.Driver {
	case config.DriverVISA:
		var err error
		if dialer, err = openVISA(); err != nil {
			return err
		}
	case config.DriverPrologix:
		dialer = prologix.Dialer{SerialPort: cfg.Transport.SerialPort}
	}

	if cfg.Monitor.Enabled {
		mon := monitor.NewMonitor(log)
		metricsServer = mon.StartMetricsServer(cfg.Monitor.MetricsPort)
		dialer = mon.InstrumentDialer(dialer)
	}

	if cfg.Redis.Enabled {
		var err error
		r := cfg.Redis
		if queue, err = storage.NewMessageQueue(r.Addr, r.Password, r.Channel, r.DB, log); err != nil {
			log.Warnf("Publishing disabled: %s", err)
		}
	}

	opts := []instruments.Option{
		instruments.WithLogger(log),
		instruments.WithSettleDelay(cfg.Instrument.SettleDelay),
	}
	if cfg.Instrument.StrictErrors {
		opts = append(opts, instruments.WithStrictErrors())
	}

	var err error
	analyzer, err = instruments.OpenCeyear4051(dialer, cfg.Instrument.Address, opts...)
	if err != nil {
		return err
	}
	log.Infof("Connected to %s", analyzer)
	return nil
}

func cleanup() {
	if analyzer != nil {
		if err := analyzer.Close(); err != nil {
			log.Warnf("Close instrument: %s", err)
		}
	}
	closeVISA()
	if queue != nil {
		queue.Close()
	}
	if metricsServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		metricsServer.Shutdown(ctx)
	}
}

// interruptContext is cancelled on SIGINT.
func interruptContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt)
}

func setupLogger(cfg config.LogConfig) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(os.Stderr)

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)

	if cfg.Format == "json" {
		log.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: "2006-01-02 15:04:05",
		})
	} else {
		log.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02 15:04:05",
		})
	}

	// file output falls back to stderr
	if cfg.Output == "file" && cfg.FilePath != "" {
		file, err := os.OpenFile(cfg.FilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
		if err == nil {
			log.SetOutput(file)
		} else {
			log.Warnf("Unable to open log file: %v, using stderr", err)
		}
	}

	return log
}
