package tracker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/pool"

	"quote-drift-tracker/internal/alerting"
	"quote-drift-tracker/internal/analysis"
	"quote-drift-tracker/internal/export"
	"quote-drift-tracker/internal/sample"
	"quote-drift-tracker/internal/scheduler"
)

// ErrAlreadyStarted is returned by a second call to Run.
var ErrAlreadyStarted = errors.New("tracker already started")

const (
	defaultStatsInterval   = 10 * time.Second
	defaultScanInterval    = 5 * time.Second
	defaultShutdownTimeout = 5 * time.Second
	defaultAnomalyZ        = 2.0
	maxRecentOpportunities = 50
)

// State is the tracker lifecycle stage.
type State int32

const (
	Idle State = iota
	Running
	Stopping
	Terminated
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Stopping:
		return "stopping"
	case Terminated:
		return "terminated"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Runner is the sampling engine driven by the tracker.
type Runner interface {
	Run(ctx context.Context) error
}

// Options tune the tracker lifecycle and periodic tasks.
type Options struct {
	Duration        time.Duration
	StatsInterval   time.Duration
	ScanInterval    time.Duration
	ShutdownTimeout time.Duration
	Dedupe          bool
	AnomalyZ        float64
	ProfitCost      float64
	// Pair labels notifications, e.g. SOL/USDC.
	Pair string
}

// Report is the outcome of a completed run.
type Report struct {
	Result        analysis.Result
	HasResult     bool
	Anomalies     []analysis.Anomaly
	Profitability analysis.Profitability
	Opportunities int
	Counters      sample.Counters
	Exported      int
	Elapsed       time.Duration
	// TaskErrors joins task failures seen during shutdown. They do not fail the run.
	TaskErrors error
}

// Snapshot is a point-in-time view of a live tracker.
type Snapshot struct {
	State               State
	Counters            sample.Counters
	Latest              *analysis.Result
	RecentOpportunities []analysis.Opportunity
	TotalOpportunities  int
	Uptime              time.Duration
}

// Tracker orchestrates the worker pool, periodic analysis and the final export.
type Tracker struct {
	opts     Options
	runner   Runner
	log      *sample.Log
	analyzer *analysis.Analyzer
	detector *analysis.Detector
	exporter export.Exporter
	notifier alerting.Notifier
	logger   zerolog.Logger

	state    atomic.Int32
	stopOnce sync.Once
	stopCh   chan struct{}

	mu        sync.Mutex
	startedAt time.Time
	latest    *analysis.Result
	recent    []analysis.Opportunity
	total     int
	seen      map[string]struct{}
}

// New wires a tracker. exporter and notifier may be nil.
func New(opts Options, runner Runner, log *sample.Log, analyzer *analysis.Analyzer, detector *analysis.Detector, exporter export.Exporter, notifier alerting.Notifier, logger zerolog.Logger) *Tracker {
	if opts.StatsInterval <= 0 {
		opts.StatsInterval = defaultStatsInterval
	}
	if opts.ScanInterval <= 0 {
		opts.ScanInterval = defaultScanInterval
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = defaultShutdownTimeout
	}
	if opts.AnomalyZ <= 0 {
		opts.AnomalyZ = defaultAnomalyZ
	}
	return &Tracker{
		opts:     opts,
		runner:   runner,
		log:      log,
		analyzer: analyzer,
		detector: detector,
		exporter: exporter,
		notifier: notifier,
		logger:   logger.With().Str("component", "tracker").Logger(),
		stopCh:   make(chan struct{}),
		seen:     make(map[string]struct{}),
	}
}

// State reports the current lifecycle stage.
func (t *Tracker) State() State {
	return State(t.state.Load())
}

// Stop requests an early shutdown. It is safe to call more than once.
func (t *Tracker) Stop() {
	t.stopOnce.Do(func() { close(t.stopCh) })
}

// Run blocks for the configured duration, or until Stop or ctx cancellation, then
// performs the final analysis and export. An export failure is returned as
// *export.ExportError together with a complete report.
func (t *Tracker) Run(ctx context.Context) (Report, error) {
	if !t.state.CompareAndSwap(int32(Idle), int32(Running)) {
		return Report{}, ErrAlreadyStarted
	}

	start := time.Now()
	t.mu.Lock()
	t.startedAt = start
	t.mu.Unlock()

	t.logger.Info().
		Dur("duration", t.opts.Duration).
		Dur("stats_interval", t.opts.StatsInterval).
		Dur("scan_interval", t.opts.ScanInterval).
		Msg("tracker started")

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	tasks := pool.New().WithErrors()
	tasks.Go(func() error {
		return t.runner.Run(runCtx)
	})
	tasks.Go(func() error {
		s := scheduler.New(scheduler.Options{Name: "stats", Interval: t.opts.StatsInterval}, t.logger)
		return ignoreCancel(s.Run(runCtx, t.statsTick))
	})
	tasks.Go(func() error {
		s := scheduler.New(scheduler.Options{Name: "scan", Interval: t.opts.ScanInterval}, t.logger)
		return ignoreCancel(s.Run(runCtx, t.scanTick))
	})

	done := make(chan error, 1)
	go func() { done <- tasks.Wait() }()

	var (
		taskErr  error
		finished bool
	)
	var deadline <-chan time.Time
	if t.opts.Duration > 0 {
		timer := time.NewTimer(t.opts.Duration)
		defer timer.Stop()
		deadline = timer.C
	}

	select {
	case <-deadline:
		t.logger.Info().Msg("duration elapsed, stopping")
	case <-t.stopCh:
		t.logger.Info().Msg("stop requested")
	case <-ctx.Done():
		t.logger.Info().Msg("context cancelled, stopping")
	case taskErr = <-done:
		finished = true
		t.logger.Warn().Err(taskErr).Msg("tasks exited before stop")
	}

	t.state.Store(int32(Stopping))
	cancel()

	if !finished {
		shutdown := time.NewTimer(t.opts.ShutdownTimeout)
		select {
		case taskErr = <-done:
		case <-shutdown.C:
			t.logger.Warn().Dur("timeout", t.opts.ShutdownTimeout).Msg("shutdown timeout exceeded, abandoning tasks")
		}
		shutdown.Stop()
	}
	if taskErr != nil {
		t.logger.Error().Err(taskErr).Msg("tasks reported errors during run")
	}

	report, err := t.finish(context.WithoutCancel(ctx), start)
	report.TaskErrors = taskErr
	t.state.Store(int32(Terminated))
	return report, err
}

func (t *Tracker) finish(ctx context.Context, start time.Time) (Report, error) {
	snap := t.log.Snapshot()

	report := Report{
		Anomalies:     t.analyzer.DetectAnomalies(snap, t.opts.AnomalyZ),
		Profitability: t.analyzer.Profitability(snap, t.opts.ProfitCost),
		Counters:      t.log.Counters(),
		Elapsed:       time.Since(start),
	}
	report.Result, report.HasResult = t.analyzer.Analyze(snap)

	t.mu.Lock()
	report.Opportunities = t.total
	t.mu.Unlock()

	successful := sample.Successful(snap)
	if t.exporter == nil {
		return report, nil
	}
	if len(successful) == 0 {
		t.logger.Warn().Msg("no successful samples, skipping export")
		return report, nil
	}

	if err := t.exporter.Export(ctx, successful); err != nil {
		exportErr, ok := err.(*export.ExportError)
		if !ok {
			exportErr = &export.ExportError{Target: "export", Err: err}
		}
		t.logger.Error().Err(err).Msg("export failed")
		return report, exportErr
	}
	report.Exported = len(successful)
	t.logger.Info().Int("rows", report.Exported).Msg("export complete")
	return report, nil
}

func (t *Tracker) statsTick(_ context.Context, _ time.Time) error {
	res, ok := t.analyzer.Analyze(t.log.Snapshot())
	if !ok {
		t.logger.Debug().Msg("not enough samples for statistics yet")
		return nil
	}

	t.mu.Lock()
	t.latest = &res
	t.mu.Unlock()

	t.logger.Info().
		Int("total", res.TotalQuotes).
		Float64("success_rate", res.SuccessRate).
		Float64("latency_mean_ms", res.Latency.Mean*1000).
		Float64("drift_std", res.Drift.StdDev).
		Int("opportunities", res.FrontrunOpportunities).
		Float64("latency_price_corr", res.LatencyPriceCorrelation).
		Msg("stats snapshot")
	return nil
}

func (t *Tracker) scanTick(ctx context.Context, _ time.Time) error {
	found := t.detector.Scan(t.log.Snapshot())

	fresh := t.record(found)
	for _, opp := range fresh {
		t.logger.Info().
			Str("id", opp.ID).
			Float64("drift_pct", opp.PriceDrift).
			Dur("timing_advantage", opp.TimingAdvantage).
			Str("estimated_profit", opp.EstimatedProfit.StringFixed(2)).
			Str("samples", opp.PairKey()).
			Msg("opportunity detected")
		t.notify(ctx, opp)
	}
	return nil
}

// record keeps the bounded recent list. With dedupe on, a pair already reported by
// the previous scan is skipped; pairs leave the window for good once they scroll out,
// so only the latest scan's keys are remembered.
func (t *Tracker) record(found []analysis.Opportunity) []analysis.Opportunity {
	t.mu.Lock()
	defer t.mu.Unlock()

	fresh := found
	if t.opts.Dedupe {
		fresh = fresh[:0:0]
		next := make(map[string]struct{}, len(found))
		for _, opp := range found {
			key := opp.PairKey()
			next[key] = struct{}{}
			if _, dup := t.seen[key]; !dup {
				fresh = append(fresh, opp)
			}
		}
		t.seen = next
	}

	t.total += len(fresh)
	t.recent = append(t.recent, fresh...)
	if over := len(t.recent) - maxRecentOpportunities; over > 0 {
		t.recent = append(t.recent[:0:0], t.recent[over:]...)
	}
	return fresh
}

func (t *Tracker) notify(ctx context.Context, opp analysis.Opportunity) {
	if t.notifier == nil {
		return
	}
	note := alerting.FromOpportunity(opp, t.opts.Pair, t.analyzer.Thresholds().DriftPct)
	if err := t.notifier.Notify(ctx, note); err != nil {
		if errors.Is(err, alerting.ErrThrottled) {
			return
		}
		t.logger.Error().Err(err).Str("id", opp.ID).Msg("failed to dispatch alert")
	}
}

// Snapshot returns the live view without blocking the workers.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	snap := Snapshot{
		State:               t.State(),
		Counters:            t.log.Counters(),
		RecentOpportunities: append([]analysis.Opportunity(nil), t.recent...),
		TotalOpportunities:  t.total,
	}
	if t.latest != nil {
		latest := *t.latest
		snap.Latest = &latest
	}
	if !t.startedAt.IsZero() {
		snap.Uptime = time.Since(t.startedAt)
	}
	return snap
}

func ignoreCancel(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}
