package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/Alias1177/MerchantScope/internal/config"
	"github.com/Alias1177/MerchantScope/internal/metrics"
	"github.com/Alias1177/MerchantScope/internal/model"
	"github.com/Alias1177/MerchantScope/internal/notify"
	"github.com/Alias1177/MerchantScope/internal/report"
	"github.com/Alias1177/MerchantScope/internal/workflow"
)

// errRunFailed is returned when the report status is ERROR
var errRunFailed = errors.New("screening run finished with status ERROR")

type options struct {
	envFile      string
	format       string
	notify       bool
	source       string
	detailSource string
	fixture      string
	metricsAddr  string

	windowDays          int
	dispersionThreshold float64
	deviationThreshold  float64
	minSampleSize       int
	maxConcurrency      int
	maxRetries          int
	timeoutSeconds      int
	maxDetailed         int
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:   "analyzer",
		Short: "Screen merchants for skewed transaction amounts",
		Long: `Screen merchants for skewed transaction amounts.

Merchants whose median/average ratio exceeds the dispersion threshold are
drilled into, and their transactions are scored by z-score. The report is
written to stdout as JSON or text.

Options are read from the environment (and .env); flags override them.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, opts)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg, opts, cmd.OutOrStdout())
		},
	}

	f := cmd.PersistentFlags()
	f.StringVar(&opts.envFile, "env-file", "", "env file to load (default .env)")
	f.StringVar(&opts.source, "source", "", "statistics source: warehouse, sqlite, api or memory")
	f.StringVar(&opts.fixture, "fixture", "", "JSON records file for the memory source")

	rf := cmd.Flags()
	rf.StringVar(&opts.format, "format", "json", "report format: json or text")
	rf.BoolVar(&opts.notify, "notify", false, "send the summary to Telegram")
	rf.StringVar(&opts.detailSource, "detail-source", "", "detail source override: stripe")
	rf.StringVar(&opts.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	rf.IntVar(&opts.windowDays, "window-days", 0, "statistics window in days")
	rf.Float64Var(&opts.dispersionThreshold, "dispersion-threshold", 0, "median/average ratio above which a merchant is flagged")
	rf.Float64Var(&opts.deviationThreshold, "deviation-threshold", 0, "z-score above which a transaction is reported")
	rf.IntVar(&opts.minSampleSize, "min-sample-size", 0, "minimum transactions to score a merchant")
	rf.IntVar(&opts.maxConcurrency, "max-concurrency", 0, "parallel per-merchant work")
	rf.IntVar(&opts.maxRetries, "max-retries", 0, "retries after the first attempt for transient failures")
	rf.IntVar(&opts.timeoutSeconds, "timeout", 0, "run timeout in seconds")
	rf.IntVar(&opts.maxDetailed, "max-detailed", 0, "maximum flagged merchants to drill into")

	cmd.AddCommand(newSeedCmd(opts))
	return cmd
}

// loadConfig reads env configuration and applies the flags that were set
func loadConfig(cmd *cobra.Command, opts *options) (*config.Config, error) {
	var files []string
	if opts.envFile != "" {
		files = append(files, opts.envFile)
	}
	cfg, err := config.Load(files...)
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}

	changed := func(name string) bool {
		fl := cmd.Flags().Lookup(name)
		return fl != nil && fl.Changed
	}
	if changed("source") {
		cfg.Source = opts.source
	}
	if changed("fixture") {
		cfg.FixturePath = opts.fixture
	}
	if changed("detail-source") {
		cfg.DetailSource = opts.detailSource
	}
	if changed("metrics-addr") {
		cfg.MetricsAddr = opts.metricsAddr
	}
	if changed("window-days") {
		cfg.Run.WindowDays = opts.windowDays
	}
	if changed("dispersion-threshold") {
		cfg.Run.DispersionThreshold = opts.dispersionThreshold
	}
	if changed("deviation-threshold") {
		cfg.Run.DeviationThreshold = opts.deviationThreshold
	}
	if changed("min-sample-size") {
		cfg.Run.MinSampleSize = opts.minSampleSize
	}
	if changed("max-concurrency") {
		cfg.Run.MaxConcurrency = opts.maxConcurrency
	}
	if changed("max-retries") {
		cfg.Run.MaxRetries = opts.maxRetries
	}
	if changed("timeout") {
		cfg.Run.TimeoutSeconds = opts.timeoutSeconds
	}
	if changed("max-detailed") {
		cfg.Run.MaxDetailedEntities = opts.maxDetailed
	}

	setupLogging(cfg)
	return cfg, nil
}

// run executes one screening run and writes the report to out
func run(ctx context.Context, cfg *config.Config, opts *options, out io.Writer) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	printConfig(cfg)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	pipelineMetrics := metrics.New(reg)
	if cfg.MetricsAddr != "" {
		stop := serveMetrics(cfg.MetricsAddr, reg)
		defer stop()
	}

	src, err := buildSources(ctx, cfg)
	if err != nil {
		return err
	}
	defer src.Close()

	engine := workflow.NewEngine(src.stats, src.details, workflow.WithMetrics(pipelineMetrics))
	rep := engine.Run(ctx, cfg.Run)

	if err := writeReport(out, rep, opts.format); err != nil {
		return err
	}

	if opts.notify {
		if err := sendSummary(cfg, rep); err != nil {
			log.Error().Err(err).Msg("Failed to deliver report summary")
		}
	}

	if rep.Status == model.StatusError {
		return errRunFailed
	}
	return nil
}

func writeReport(out io.Writer, rep report.Report, format string) error {
	switch format {
	case "text":
		_, err := io.WriteString(out, report.Text(rep))
		return err
	case "json", "":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(rep)
	default:
		return fmt.Errorf("unknown report format %q", format)
	}
}

func sendSummary(cfg *config.Config, rep report.Report) error {
	if cfg.TelegramToken == "" {
		return fmt.Errorf("TELEGRAM_BOT_TOKEN not set")
	}
	n, err := notify.NewTelegram(cfg.TelegramToken, cfg.TelegramChatID)
	if err != nil {
		return err
	}

	// the run context may already be cancelled; delivery gets its own bound
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return n.Notify(ctx, rep)
}

func serveMetrics(addr string, reg *prometheus.Registry) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		log.Info().Str("addr", addr).Msg("Serving metrics")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("Metrics server failed")
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}

// setupLogging configures the logger
func setupLogging(cfg *config.Config) {
	var output io.Writer = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	if cfg.LogFormat == "json" {
		output = os.Stderr
	}

	if cfg.LogFile != "" {
		rotator := &lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    cfg.LogMaxSizeMB,
			MaxBackups: 5,
			MaxAge:     30,
			Compress:   true,
		}
		output = zerolog.MultiLevelWriter(output, rotator)
	}

	log.Logger = zerolog.New(output).With().Timestamp().Logger()

	// Set log level from config
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	log.Logger = log.Logger.Level(level)
}

// printConfig outputs the current configuration
func printConfig(cfg *config.Config) {
	log.Info().
		Str("Source", cfg.Source).
		Str("DetailSource", cfg.DetailSource).
		Int("WindowDays", cfg.Run.WindowDays).
		Int("DetailWindowDays", cfg.Run.EffectiveDetailWindowDays()).
		Float64("DispersionThreshold", cfg.Run.DispersionThreshold).
		Float64("DeviationThreshold", cfg.Run.DeviationThreshold).
		Int("MinSampleSize", cfg.Run.MinSampleSize).
		Int("MaxConcurrency", cfg.Run.MaxConcurrency).
		Int("MaxRetries", cfg.Run.MaxRetries).
		Int("TimeoutSeconds", cfg.Run.TimeoutSeconds).
		Bool("Cache", cfg.RedisAddr != "").
		Msg("Configuration loaded")
}
