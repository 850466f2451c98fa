package app

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"quote-drift-tracker/internal/alerting"
	"quote-drift-tracker/internal/analysis"
	"quote-drift-tracker/internal/config"
	"quote-drift-tracker/internal/export"
	"quote-drift-tracker/internal/fetcher"
	"quote-drift-tracker/internal/sample"
	"quote-drift-tracker/internal/tracker"
	"quote-drift-tracker/internal/worker"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

// newQuoteSource returns the configured venue and a release func.
func (a *App) newQuoteSource() (fetcher.QuoteSource, func()) {
	switch a.Config.Tracker.Source {
	case config.SourceDemo:
		return fetcher.NewSimulated(fetcher.SimulatedOptions{
			Seed:        a.Config.Demo.Seed,
			BaseOutput:  a.Config.Demo.BaseOutput,
			FailureRate: a.Config.Demo.FailureRate,
			SpikeRate:   a.Config.Demo.SpikeRate,
		}, a.Logger), func() {}
	case config.SourceVault:
		vault := fetcher.NewVault(fetcher.VaultOptions{
			RPCURL:  a.Config.Ethereum.RPCURL,
			Timeout: a.Config.Ethereum.RequestTimeout,
		}, a.Logger)
		return vault, vault.Close
	default:
		return fetcher.NewJupiter(fetcher.JupiterOptions{
			BaseURL:   a.Config.Jupiter.BaseURL,
			Timeout:   a.Config.Jupiter.RequestTimeout,
			UserAgent: a.Config.Jupiter.UserAgent,
		}, a.Logger), func() {}
	}
}

func (a *App) newNotifier() alerting.Notifier {
	if a.Config.Alerting.Enabled && a.Config.Alerting.Telegram.Enabled {
		cfg := a.Config.Alerting.Telegram
		return alerting.NewTelegramNotifier(alerting.TelegramOptions{
			BotToken:    cfg.BotToken,
			ChatID:      cfg.ChatID,
			BaseURL:     cfg.APIBase,
			Timeout:     10 * time.Second,
			MinInterval: cfg.MinInterval,
		}, a.Logger)
	}
	return nil
}

func (a *App) newExporter() export.Exporter {
	var targets export.Multi
	if a.Config.Export.CSVPath != "" {
		targets = append(targets, export.CSV{Path: a.Config.Export.CSVPath})
	}
	if a.Config.Export.PNGPath != "" {
		targets = append(targets, export.Chart{Path: a.Config.Export.PNGPath})
	}
	switch len(targets) {
	case 0:
		return nil
	case 1:
		return targets[0]
	default:
		return targets
	}
}

func (a *App) thresholds() analysis.Thresholds {
	return analysis.Thresholds{
		DriftPct: a.Config.Analysis.DriftThreshold,
		Timing:   a.Config.Analysis.TimingThreshold,
	}
}

func (a *App) newDetector() *analysis.Detector {
	ac := a.Config.Analysis
	return analysis.NewDetector(analysis.DetectorOptions{
		Thresholds:    a.thresholds(),
		Window:        ac.ScanWindow,
		MinSamples:    ac.ScanMinSamples,
		MinSuccessful: ac.ScanMinSuccessful,
		TradeAmount:   a.Config.Tracker.Amount,
		FlatCost:      decimal.NewFromFloat(ac.FlatCost),
	})
}

func (a *App) pairLabel() string {
	return config.TokenSymbol(a.Config.Tracker.InputMint) + "/" + config.TokenSymbol(a.Config.Tracker.OutputMint)
}

// Run samples quotes for the configured duration and emits the final report.
// SIGINT and SIGTERM stop sampling early; the final analysis and export still run.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := a.Config.Validate(); err != nil {
		return err
	}

	tc := a.Config.Tracker
	ac := a.Config.Analysis

	limiter, err := worker.NewRateLimiter(tc.Frequency, tc.Workers)
	if err != nil {
		return err
	}

	source, release := a.newQuoteSource()
	defer release()

	log := sample.NewLog(tc.RetentionCap)
	pool := worker.New(worker.Options{
		Workers:           tc.Workers,
		LatencyInjection:  tc.LatencyInjection,
		RateLimitCooldown: tc.RateLimitCooldown,
		FaultBackoff:      tc.FaultBackoff,
		Request: fetcher.QuoteRequest{
			InputMint:   tc.InputMint,
			OutputMint:  tc.OutputMint,
			Amount:      tc.Amount,
			SlippageBps: tc.SlippageBps,
		},
	}, source, log, limiter, a.Logger)

	tr := tracker.New(tracker.Options{
		Duration:        tc.Duration,
		StatsInterval:   ac.StatsInterval,
		ScanInterval:    ac.ScanInterval,
		ShutdownTimeout: tc.ShutdownTimeout,
		Dedupe:          ac.Dedupe,
		AnomalyZ:        ac.AnomalyZThreshold,
		ProfitCost:      ac.ProfitCost,
		Pair:            a.pairLabel(),
	}, pool, log, analysis.NewAnalyzer(a.thresholds()), a.newDetector(), a.newExporter(), a.newNotifier(), a.Logger)

	a.Logger.Info().
		Str("source", tc.Source).
		Str("pair", a.pairLabel()).
		Int64("amount", tc.Amount).
		Float64("frequency", tc.Frequency).
		Int("workers", tc.Workers).
		Dur("worker_interval", limiter.Interval()).
		Dur("duration", tc.Duration).
		Int("expected_requests", tc.ExpectedRequests()).
		Msg("starting quote drift tracker")

	report, err := tr.Run(ctx)
	a.logReport(report)

	if err != nil {
		var exportErr *export.ExportError
		if errors.As(err, &exportErr) {
			a.Logger.Error().Err(err).Str("target", exportErr.Target).Msg("run finished but export failed")
		}
		return err
	}

	a.Logger.Info().Msg("quote drift tracker stopped")
	return nil
}
