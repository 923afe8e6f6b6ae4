package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/pfrederiksen/race-alerts/internal/browser"
	"github.com/pfrederiksen/race-alerts/internal/config"
	"github.com/pfrederiksen/race-alerts/internal/email"
	"github.com/pfrederiksen/race-alerts/internal/enricher"
	"github.com/pfrederiksen/race-alerts/internal/logger"
	"github.com/pfrederiksen/race-alerts/internal/metrics"
	"github.com/pfrederiksen/race-alerts/internal/notifier"
	"github.com/pfrederiksen/race-alerts/internal/runner"
	"github.com/pfrederiksen/race-alerts/internal/scraper"
	"github.com/pfrederiksen/race-alerts/internal/storage"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"
)

const (
	ExitSuccess = 0
	ExitError   = 1
)

type options struct {
	configPath  string
	once        bool
	interval    time.Duration
	concurrency int
	dumpPath    string
	dryRun      bool
	dedup       bool
	dataDir     string
	logLevel    string
	sourceURL   string
	channel     string
	format      string
}

// environment holds the collaborators the command creates; tests replace them
type environment struct {
	launcher func(cfg config.Config) browser.Launcher
	fs       afero.Fs
}

func defaultEnvironment() environment {
	return environment{
		launcher: func(cfg config.Config) browser.Launcher {
			chrome := browser.NewChrome(cfg.ChromePath)
			chrome.Headless = cfg.Headless
			return chrome
		},
		fs: afero.NewOsFs(),
	}
}

// NewRootCmd creates the root command
func NewRootCmd() *cobra.Command {
	return newRootCmd(defaultEnvironment())
}

func newRootCmd(env environment) *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:   "race-alerts",
		Short: "Email a digest when race registrations open on a payment channel",
		Long: `A watcher that scrapes a race listing page, visits every registration link
with headless Chrome, and emails a digest when a registration on the watched
payment channel is available.

Delivery settings come from the environment:
  EMAIL_FROM       sender address
  RESEND_API_KEY   email API key
  EMAIL_TO         comma-separated recipients`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, opts, env)
		},
	}

	// Define flags
	cmd.Flags().StringVar(&opts.configPath, "config", "", "Path to a YAML config file")
	cmd.Flags().BoolVar(&opts.once, "once", false, "Run the pipeline once and exit")
	cmd.Flags().DurationVar(&opts.interval, "interval", config.DefaultInterval, "Time between runs")
	cmd.Flags().IntVar(&opts.concurrency, "concurrency", config.DefaultConcurrency, "Registration pages visited at once")
	cmd.Flags().StringVar(&opts.dumpPath, "dump", "", "Write the enriched events to this JSON file after each run")
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "Print the digest instead of emailing it")
	cmd.Flags().BoolVar(&opts.dedup, "dedup", false, "Skip matches a digest was already sent for")
	cmd.Flags().StringVar(&opts.dataDir, "data-dir", config.DefaultDataDir, "Data directory for the notified set")
	cmd.Flags().StringVar(&opts.logLevel, "log-level", "info", "Log level: debug, info, warn or error")
	cmd.Flags().StringVar(&opts.sourceURL, "source-url", "", "Race listing page URL")
	cmd.Flags().StringVar(&opts.channel, "channel", config.DefaultChannel, "Registration link label to watch")
	cmd.Flags().StringVar(&opts.format, "format", "text", "Output format for --once: text or json")

	return cmd
}

// buildConfig layers flags that were set explicitly over the loaded configuration
func buildConfig(cmd *cobra.Command, opts *options, fs afero.Fs) (config.Config, error) {
	cfg, err := config.Load(fs, opts.configPath)
	if err != nil {
		return config.Config{}, err
	}

	flags := cmd.Flags()
	if flags.Changed("interval") {
		cfg.Interval = opts.interval
	}
	if flags.Changed("concurrency") {
		cfg.Concurrency = opts.concurrency
	}
	if flags.Changed("dump") {
		cfg.DumpPath = opts.dumpPath
	}
	if flags.Changed("dedup") {
		cfg.Dedup = opts.dedup
	}
	if flags.Changed("data-dir") {
		cfg.DataDir = opts.dataDir
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = opts.logLevel
	}
	if flags.Changed("source-url") {
		cfg.SourceURL = opts.sourceURL
	}
	if flags.Changed("channel") {
		cfg.Channel = opts.channel
	}

	if err := cfg.Check(); err != nil {
		return config.Config{}, err
	}
	// Credentials are not needed when nothing is sent, and a dry run must not
	// mark matches as notified
	if opts.dryRun {
		cfg.Dedup = false
		return cfg, nil
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

// run is the main command logic
func run(cmd *cobra.Command, opts *options, env environment) error {
	format := OutputFormat(strings.ToLower(opts.format))
	if format != FormatText && format != FormatJSON {
		return fmt.Errorf("invalid format: %s (must be 'text' or 'json')", opts.format)
	}

	cfg, err := buildConfig(cmd, opts, env.fs)
	if err != nil {
		return err
	}

	level, err := logger.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	log := logger.New(level, cmd.ErrOrStderr())
	logger.SetDefault(log)

	m := metrics.New()
	launcher := env.launcher(cfg)

	var limiter *rate.Limiter
	if cfg.NavRatePerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.NavRatePerSecond), 1)
	}

	var n notifier.Notifier
	if opts.dryRun {
		n = notifier.NewDryRunNotifier(cmd.OutOrStdout())
	} else {
		client, err := email.NewClient(cfg.Email.APIKey,
			email.WithBaseURL(cfg.Email.BaseURL),
			email.WithHTTPClient(&http.Client{Timeout: cfg.Email.Timeout}),
		)
		if err != nil {
			return fmt.Errorf("initializing email client: %w", err)
		}
		n, err = notifier.NewEmailNotifier(client, cfg.Email.From, cfg.Email.To, log)
		if err != nil {
			return fmt.Errorf("initializing notifier: %w", err)
		}
	}

	pipeline := &runner.Pipeline{
		Source: scraper.New(launcher, scraper.Options{
			URL:            cfg.SourceURL,
			Selectors:      cfg.Listing,
			PageTimeout:    cfg.PageTimeout,
			ListingTimeout: cfg.ListingTimeout,
		}, log),
		Enricher: enricher.New(launcher, enricher.Options{
			Concurrency: cfg.Concurrency,
			NavTimeout:  cfg.PageTimeout,
			Selectors:   cfg.Registration,
			Literals:    cfg.Literals,
			Limiter:     limiter,
		}, log, m),
		Notifier:        n,
		Channel:         cfg.Channel,
		Subject:         cfg.Email.Subject,
		DumpPath:        cfg.DumpPath,
		Dedup:           cfg.Dedup,
		Metrics:         m,
		MetricsTextfile: cfg.MetricsTextfile,
		Log:             log,
	}

	if cfg.DumpPath != "" || cfg.Dedup {
		store, err := storage.New(env.fs, cfg.DataDir)
		if err != nil {
			return fmt.Errorf("initializing storage: %w", err)
		}
		pipeline.Store = store
		log.Debug("Storage ready", logger.Fields{"data_dir": store.DataDir(), "dump": cfg.DumpPath, "dedup": cfg.Dedup})
	}

	r := runner.New(pipeline, cfg.Interval, log, m)

	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if opts.once {
		res, err := r.RunOnce(ctx)
		if err != nil {
			return fmt.Errorf("running pipeline: %w", err)
		}
		if err := WriteOutput(cmd.OutOrStdout(), NewOutputResult(res, cfg.Channel), format); err != nil {
			return fmt.Errorf("writing output: %w", err)
		}
		return nil
	}

	return r.Start(ctx)
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// ExitCode maps a command error to the process exit code
func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	return ExitError
}

// Execute runs the CLI
func Execute() {
	err := NewRootCmd().Execute()
	if err != nil {
		var cfgErr *config.ConfigurationError
		if errors.As(err, &cfgErr) {
			fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		} else {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
	}
	os.Exit(ExitCode(err))
}
