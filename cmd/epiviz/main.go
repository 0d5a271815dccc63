// Command epiviz loads pandemic datasets into a star-schema warehouse.
//
//	epiviz validate                 check the configuration
//	epiviz schema                   print CREATE TABLE statements
//	epiviz extract|transform|load   run one stage
//	epiviz run                      run all stages in order
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kingpin/v2"
	"go.uber.org/zap"

	"epiviz/internal/config"
	"epiviz/internal/logging"
	"epiviz/internal/metrics"
	"epiviz/internal/metrics/datadog"
	"epiviz/internal/metrics/prompush"
	"epiviz/internal/pipeline"
	"epiviz/internal/storage"

	// Register every backend; db.driver selects one at run time.
	_ "epiviz/internal/storage/all"
)

const (
	exitOK    = 0
	exitError = 1
	exitUsage = 2
)

var signalNotifyContext = signal.NotifyContext

func main() {
	ctx, stop := signalNotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr, os.Getenv)
	stop()
	os.Exit(code)
}

// run parses args, executes the selected command and returns the exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer, getenv func(string) string) int {
	app := kingpin.New("epiviz", "Pandemic data ETL into a star-schema warehouse")
	app.UsageWriter(stdout)
	app.ErrorWriter(stderr)
	app.Terminate(nil)

	configFile := app.Flag("config", "Path to YAML configuration file (defaults apply when empty)").Short('c').String()
	verbose := app.Flag("verbose", "Enable debug logs").Short('v').Bool()
	metricsBackend := app.Flag("metrics-backend", "Metrics backend").Default("none").Enum("none", "pushgateway", "datadog")
	pushgatewayURL := app.Flag("pushgateway-url", "Prometheus Pushgateway base URL").Default("http://localhost:9091").String()
	dogstatsdAddr := app.Flag("dogstatsd-addr", "DogStatsD address").Default("127.0.0.1:8125").String()

	validateCmd := app.Command("validate", "Validate the configuration and exit")
	schemaCmd := app.Command("schema", "Print CREATE TABLE statements for the configured driver")
	extractCmd := app.Command("extract", "Normalise raw files into intermediate files")
	transformCmd := app.Command("transform", "Build the star-schema table files")

	// Surrogate ids restart at 1 on every transform, so loading into a
	// populated warehouse needs --truncate. run rebuilds everything and
	// truncates unless told otherwise.
	loadCmd := app.Command("load", "Load the table files into the warehouse (use --truncate to replace an earlier load)")
	loadTruncate := loadCmd.Flag("truncate", "Empty every table before loading; required when the tables already hold a load").Bool()
	loadCreate := loadCmd.Flag("create-tables", "Create missing tables").Default("true").Bool()

	runCmd := app.Command("run", "Run extract, transform and load")
	runTruncate := runCmd.Flag("truncate", "Empty every table before loading (--no-truncate appends)").Default("true").Bool()
	runCreate := runCmd.Flag("create-tables", "Create missing tables").Default("true").Bool()

	cmd, err := app.Parse(args)
	if err != nil {
		fmt.Fprintf(stderr, "epiviz: %v\n", err)
		return exitUsage
	}

	cfg, err := config.Load(*configFile, getenv)
	if err != nil {
		fmt.Fprintf(stderr, "epiviz: %v\n", err)
		return exitError
	}

	issues := config.ValidateSettings(cfg)
	if cmd == validateCmd.FullCommand() {
		for _, is := range issues {
			fmt.Fprintln(stdout, is.Error())
		}
		if config.HasErrors(issues) {
			return exitError
		}
		fmt.Fprintln(stdout, "configuration is valid")
		return exitOK
	}
	if config.HasErrors(issues) {
		for _, is := range issues {
			fmt.Fprintln(stderr, is.Error())
		}
		fmt.Fprintln(stderr, "epiviz: configuration is invalid")
		return exitError
	}

	if cmd == schemaCmd.FullCommand() {
		if err := printSchema(stdout, cfg); err != nil {
			fmt.Fprintf(stderr, "epiviz: %v\n", err)
			return exitError
		}
		return exitOK
	}

	logger, err := logging.New(*verbose)
	if err != nil {
		fmt.Fprintf(stderr, "epiviz: %v\n", err)
		return exitError
	}
	defer func() { _ = logger.Sync() }()

	for _, is := range issues {
		logger.Warn("configuration", zap.String("path", is.Path), zap.String("issue", is.Message))
	}

	flush := setupMetrics(*metricsBackend, *pushgatewayURL, *dogstatsdAddr, cfg.Job, logger)
	defer flush()

	p, err := pipeline.New(cfg, logger)
	if err != nil {
		logger.Error("init pipeline", zap.Error(err))
		return exitError
	}

	switch cmd {
	case extractCmd.FullCommand():
		_, err = p.Extract(ctx)
	case transformCmd.FullCommand():
		_, err = p.Transform(ctx)
	case loadCmd.FullCommand():
		_, err = p.Load(ctx, pipeline.LoadOptions{CreateTables: *loadCreate, Truncate: *loadTruncate})
	case runCmd.FullCommand():
		err = p.Run(ctx, pipeline.LoadOptions{CreateTables: *runCreate, Truncate: *runTruncate})
	}
	if err != nil {
		logger.Error("command failed", zap.String("command", cmd), zap.Error(err))
		return exitError
	}
	return exitOK
}

// printSchema writes the DDL of every table in load order.
func printSchema(w io.Writer, cfg config.Settings) error {
	p, err := pipeline.New(cfg, nil)
	if err != nil {
		return err
	}
	tables, err := p.Star().LoadOrder()
	if err != nil {
		return err
	}
	for _, t := range tables {
		ddl, err := storage.BuildDDL(cfg.DB.Driver, t)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%s\n\n", ddl)
	}
	return nil
}

// setupMetrics installs the selected backend and returns its flush func.
// A backend that fails to initialise leaves metrics disabled.
func setupMetrics(backend, pushgatewayURL, dogstatsdAddr, job string, log *zap.Logger) func() {
	var (
		b   metrics.Backend
		err error
	)
	switch backend {
	case "pushgateway":
		b, err = prompush.NewBackend(job, pushgatewayURL)
	case "datadog":
		b, err = datadog.NewBackend(datadog.Config{
			Addr:       dogstatsdAddr,
			GlobalTags: []string{"service:epiviz", "job:" + job},
		})
	default:
		log.Debug("metrics disabled")
		return func() {}
	}
	if err != nil {
		log.Warn("metrics backend unavailable, metrics disabled", zap.String("backend", backend), zap.Error(err))
		return func() {}
	}
	log.Info("metrics enabled", zap.String("backend", backend))
	metrics.SetBackend(b)
	return func() {
		if err := metrics.Flush(); err != nil {
			log.Warn("metrics flush failed", zap.Error(err))
		}
	}
}
