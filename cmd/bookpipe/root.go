package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/aluiziolira/bookshelf-etl/config"
	"github.com/aluiziolira/bookshelf-etl/handoff"
	"github.com/aluiziolira/bookshelf-etl/pipeline"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

type options struct {
	configFile  string
	envFile     string
	verbose     bool
	metricsAddr string

	sourceURL  string
	maxItems   int
	timeout    time.Duration
	retries    int
	retryDelay time.Duration

	dbDriver string
	dbHost   string
	dbPort   int
	dbName   string
	dbUser   string
	dbTable  string

	handoffDir string
	runID      string
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	defaults := config.DefaultConfig()

	root := &cobra.Command{
		Use:           "bookpipe",
		Short:         "bookpipe fetches a book catalog page and loads the listings into a SQL table.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&opts.configFile, "config", "", "YAML config file")
	flags.StringVar(&opts.envFile, "env-file", ".env", "dotenv file loaded before reading BOOKPIPE_* variables")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "Enable verbose logging")
	flags.StringVar(&opts.metricsAddr, "metrics-addr", "", "Prometheus metrics listen address (e.g. :9090)")
	flags.StringVar(&opts.sourceURL, "source-url", defaults.SourceURL, "Catalog page to fetch")
	flags.IntVar(&opts.maxItems, "max-items", defaults.MaxItems, "Maximum listings to extract")
	flags.DurationVar(&opts.timeout, "timeout", defaults.Timeout, "Fetch timeout")
	flags.IntVar(&opts.retries, "retries", defaults.Retries, "Retries per stage")
	flags.DurationVar(&opts.retryDelay, "retry-delay", defaults.RetryDelay, "Delay before a stage retry")
	flags.StringVar(&opts.dbDriver, "db-driver", defaults.Store.Driver, "Store driver: pgx or sqlite")
	flags.StringVar(&opts.dbHost, "db-host", defaults.Store.Host, "Store host")
	flags.IntVar(&opts.dbPort, "db-port", defaults.Store.Port, "Store port")
	flags.StringVar(&opts.dbName, "db-name", defaults.Store.Database, "Store database (file path for sqlite)")
	flags.StringVar(&opts.dbUser, "db-user", defaults.Store.User, "Store user")
	flags.StringVar(&opts.dbTable, "db-table", defaults.Store.Table, "Destination table")
	flags.StringVar(&opts.handoffDir, "handoff-dir", "", "Directory for stage payloads; in-memory when empty")
	flags.StringVar(&opts.runID, "run-id", "", "Run identifier; generated when empty")

	root.AddCommand(newRunCmd(opts), newTaskCmd(opts), newSchemaCmd(opts))
	return root
}

// loadConfig loads .env, then layers the YAML file, BOOKPIPE_* variables and
// explicitly set flags over the defaults before validating.
func loadConfig(cmd *cobra.Command, opts *options) (*config.Config, error) {
	cfg := config.DefaultConfig()

	if err := config.LoadDotEnv(opts.envFile); err != nil {
		return nil, err
	}
	if opts.configFile != "" {
		if err := config.LoadFile(cfg, opts.configFile); err != nil {
			return nil, err
		}
	}
	if err := config.ApplyEnv(cfg); err != nil {
		return nil, err
	}

	changed := cmd.Flags().Changed
	if changed("verbose") {
		cfg.Verbose = opts.verbose
	}
	if changed("metrics-addr") {
		cfg.MetricsAddr = opts.metricsAddr
	}
	if changed("source-url") {
		cfg.SourceURL = opts.sourceURL
	}
	if changed("max-items") {
		cfg.MaxItems = opts.maxItems
	}
	if changed("timeout") {
		cfg.Timeout = opts.timeout
	}
	if changed("retries") {
		cfg.Retries = opts.retries
	}
	if changed("retry-delay") {
		cfg.RetryDelay = opts.retryDelay
	}
	if changed("db-driver") {
		cfg.Store.Driver = opts.dbDriver
	}
	if changed("db-host") {
		cfg.Store.Host = opts.dbHost
	}
	if changed("db-port") {
		cfg.Store.Port = opts.dbPort
	}
	if changed("db-name") {
		cfg.Store.Database = opts.dbName
	}
	if changed("db-user") {
		cfg.Store.User = opts.dbUser
	}
	if changed("db-table") {
		cfg.Store.Table = opts.dbTable
	}
	if changed("handoff-dir") {
		cfg.HandoffDir = opts.handoffDir
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	logger, level := newLogger(cfg.Verbose)
	slog.SetDefault(logger)
	slog.SetLogLoggerLevel(level.Level())
	return cfg, nil
}

func newHandoffStore(cfg *config.Config) (handoff.Store, error) {
	if cfg.HandoffDir != "" {
		return handoff.NewFileStore(cfg.HandoffDir), nil
	}
	return handoff.NewMemoryStore(handoff.DefaultMemoryRuns)
}

// serveMetrics exposes the registry until the returned stop function runs.
func serveMetrics(addr string, metrics *pipeline.Metrics) func() {
	if addr == "" || metrics == nil {
		return func() {}
	}

	server := &http.Server{
		Addr:    addr,
		Handler: promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}),
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server failed", slog.Any("error", err))
		}
	}()
	slog.Info("metrics server enabled", slog.String("addr", addr))

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("metrics server shutdown failed", slog.Any("error", err))
		}
	}
}

func newLogger(verbose bool) (*slog.Logger, *slog.LevelVar) {
	level := &slog.LevelVar{}
	if verbose {
		level.Set(slog.LevelDebug)
	} else {
		level.Set(slog.LevelInfo)
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if isTerminal(os.Stdout) {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler), level
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
