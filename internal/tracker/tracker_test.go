package tracker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"quote-drift-tracker/internal/alerting"
	"quote-drift-tracker/internal/analysis"
	"quote-drift-tracker/internal/export"
	"quote-drift-tracker/internal/fetcher"
	"quote-drift-tracker/internal/sample"
	"quote-drift-tracker/internal/worker"
)

type constantSource struct {
	calls atomic.Int64
}

func (c *constantSource) Fetch(ctx context.Context, _ fetcher.QuoteRequest) (fetcher.Quote, error) {
	n := c.calls.Add(1)
	return fetcher.Quote{OutputAmount: 1_000_000 + n%3, RouteHops: 1}, nil
}

type captureExporter struct {
	mu      sync.Mutex
	samples []sample.Sample
	err     error
}

func (c *captureExporter) Export(_ context.Context, samples []sample.Sample) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.samples = append([]sample.Sample(nil), samples...)
	return c.err
}

type runnerFunc func(ctx context.Context) error

func (f runnerFunc) Run(ctx context.Context) error { return f(ctx) }

func idleRunner() Runner {
	return runnerFunc(func(ctx context.Context) error {
		<-ctx.Done()
		return nil
	})
}

func newTracker(opts Options, runner Runner, log *sample.Log, exp export.Exporter, notifier alerting.Notifier) *Tracker {
	return New(opts, runner, log,
		analysis.NewAnalyzer(analysis.Thresholds{}),
		analysis.NewDetector(analysis.DetectorOptions{TradeAmount: 1_000_000}),
		exp, notifier, zerolog.Nop())
}

func TestTrackerEndToEnd(t *testing.T) {
	if testing.Short() {
		t.Skip("runs for five seconds")
	}

	limiter, err := worker.NewRateLimiter(3, 3)
	if err != nil {
		t.Fatal(err)
	}
	log := sample.NewLog(sample.DefaultRetentionCap)
	src := &constantSource{}
	pool := worker.New(worker.Options{}, src, log, limiter, zerolog.Nop())
	exp := &captureExporter{}

	tr := newTracker(Options{Duration: 5 * time.Second, StatsInterval: time.Second, ScanInterval: time.Second}, pool, log, exp, nil)

	report, err := tr.Run(context.Background())
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if tr.State() != Terminated {
		t.Fatalf("state %s", tr.State())
	}

	total := report.Counters.Total
	if total < 12 || total > 18 {
		t.Fatalf("expected about 15 samples, got %d", total)
	}
	if !report.HasResult || report.Result.SuccessRate != 100 {
		t.Fatalf("expected full success, got %+v", report.Result)
	}
	if report.Exported != int(report.Counters.Succeeded) || len(exp.samples) != report.Exported {
		t.Fatalf("exported %d rows for %d successful samples", report.Exported, report.Counters.Succeeded)
	}

	records := export.BuildRecords(exp.samples)
	if !records[0].DriftPct.IsZero() {
		t.Fatalf("first exported drift should be zero, got %s", records[0].DriftPct)
	}
}

func TestTrackerStopEarly(t *testing.T) {
	tr := newTracker(Options{Duration: time.Hour, ShutdownTimeout: time.Second}, idleRunner(), sample.NewLog(0), nil, nil)

	go func() {
		time.Sleep(50 * time.Millisecond)
		tr.Stop()
		tr.Stop()
	}()

	start := time.Now()
	report, err := tr.Run(context.Background())
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if time.Since(start) > 2*time.Second {
		t.Fatalf("stop took %s", time.Since(start))
	}
	if report.HasResult {
		t.Fatal("an empty run has no result")
	}
	if tr.State() != Terminated {
		t.Fatalf("state %s", tr.State())
	}
}

func TestTrackerContextCancel(t *testing.T) {
	tr := newTracker(Options{Duration: time.Hour}, idleRunner(), sample.NewLog(0), nil, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if _, err := tr.Run(ctx); err != nil {
		t.Fatalf("cancellation is a normal stop, got %v", err)
	}
}

func TestTrackerRunTwice(t *testing.T) {
	tr := newTracker(Options{Duration: 10 * time.Millisecond}, idleRunner(), sample.NewLog(0), nil, nil)
	if _, err := tr.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if _, err := tr.Run(context.Background()); !errors.Is(err, ErrAlreadyStarted) {
		t.Fatalf("expected ErrAlreadyStarted, got %v", err)
	}
}

func TestTrackerShutdownTimeout(t *testing.T) {
	stuck := runnerFunc(func(context.Context) error {
		select {}
	})
	tr := newTracker(Options{Duration: 10 * time.Millisecond, ShutdownTimeout: 50 * time.Millisecond}, stuck, sample.NewLog(0), nil, nil)

	done := make(chan struct{})
	go func() {
		_, _ = tr.Run(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("shutdown should be bounded by the timeout")
	}
}

func TestTrackerTaskErrorsAreNotFatal(t *testing.T) {
	failing := runnerFunc(func(ctx context.Context) error {
		<-ctx.Done()
		return errors.New("pool exploded")
	})
	tr := newTracker(Options{Duration: 10 * time.Millisecond}, failing, sample.NewLog(0), nil, nil)

	report, err := tr.Run(context.Background())
	if err != nil {
		t.Fatalf("task errors must not fail the run: %v", err)
	}
	if report.TaskErrors == nil {
		t.Fatal("task errors should be reported")
	}
}

func seededLog() *sample.Log {
	log := sample.NewLog(0)
	base := time.Now()
	for i := 0; i < 4; i++ {
		at := base.Add(time.Duration(i) * time.Second)
		log.Append(sample.Succeeded(0, uint64(i+1), at, at.Add(10*time.Millisecond), sample.Quote{OutputAmount: 1_000_000 + int64(i)}))
	}
	return log
}

func TestTrackerExportError(t *testing.T) {
	exp := &captureExporter{err: errors.New("disk full")}
	tr := newTracker(Options{Duration: 10 * time.Millisecond}, idleRunner(), seededLog(), exp, nil)

	report, err := tr.Run(context.Background())
	var exportErr *export.ExportError
	if !errors.As(err, &exportErr) {
		t.Fatalf("expected ExportError, got %v", err)
	}
	if !report.HasResult || report.Counters.Total != 4 {
		t.Fatalf("report should be complete despite export failure: %+v", report)
	}
	if report.Exported != 0 {
		t.Fatalf("nothing was exported, got %d", report.Exported)
	}
}

func opp(prev, cur uint64) analysis.Opportunity {
	return analysis.Opportunity{
		ID:       "x",
		Previous: sample.Key{Worker: 0, Seq: prev},
		Current:  sample.Key{Worker: 1, Seq: cur},
	}
}

func TestTrackerDedupeAcrossScans(t *testing.T) {
	tr := newTracker(Options{Dedupe: true}, idleRunner(), sample.NewLog(0), nil, nil)

	if got := tr.record([]analysis.Opportunity{opp(1, 1), opp(1, 2)}); len(got) != 2 {
		t.Fatalf("first scan reports everything, got %d", len(got))
	}
	if got := tr.record([]analysis.Opportunity{opp(1, 2), opp(2, 3)}); len(got) != 1 || got[0].Current.Seq != 3 {
		t.Fatalf("overlapping scan should only report the new pair, got %+v", got)
	}
	if snap := tr.Snapshot(); snap.TotalOpportunities != 3 || len(snap.RecentOpportunities) != 3 {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
}

func TestTrackerWithoutDedupe(t *testing.T) {
	tr := newTracker(Options{}, idleRunner(), sample.NewLog(0), nil, nil)
	tr.record([]analysis.Opportunity{opp(1, 1)})
	if got := tr.record([]analysis.Opportunity{opp(1, 1)}); len(got) != 1 {
		t.Fatal("without dedupe every scan reports its window")
	}
}

func TestTrackerRecentBounded(t *testing.T) {
	tr := newTracker(Options{}, idleRunner(), sample.NewLog(0), nil, nil)
	for i := 0; i < 80; i++ {
		tr.record([]analysis.Opportunity{opp(uint64(i), uint64(i+1))})
	}
	snap := tr.Snapshot()
	if len(snap.RecentOpportunities) != maxRecentOpportunities || snap.TotalOpportunities != 80 {
		t.Fatalf("recent list should be bounded: %d / %d", len(snap.RecentOpportunities), snap.TotalOpportunities)
	}
	if snap.RecentOpportunities[0].Previous.Seq != 30 {
		t.Fatalf("oldest entries should be dropped first, got %d", snap.RecentOpportunities[0].Previous.Seq)
	}
	if snap.State != Idle {
		t.Fatalf("state %s", snap.State)
	}
}

type recordingNotifier struct {
	mu    sync.Mutex
	notes []alerting.Notification
}

func (r *recordingNotifier) Notify(_ context.Context, n alerting.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notes = append(r.notes, n)
	return nil
}

func TestTrackerScanNotifies(t *testing.T) {
	log := sample.NewLog(0)
	base := time.Now()
	amounts := []int64{1_000_000, 990_000, 990_000, 990_000, 990_000, 990_000, 990_000, 990_000, 990_000, 990_000}
	for i, amount := range amounts {
		at := base.Add(time.Duration(i) * time.Second)
		latency := 100 * time.Millisecond
		if i == 0 {
			latency = 300 * time.Millisecond
		}
		log.Append(sample.Succeeded(i%2, uint64(i+1), at, at.Add(latency), sample.Quote{OutputAmount: amount}))
	}

	notes := &recordingNotifier{}
	tr := newTracker(Options{Dedupe: true, Pair: "SOL/USDC"}, idleRunner(), log, nil, notes)

	if err := tr.scanTick(context.Background(), time.Now()); err != nil {
		t.Fatal(err)
	}
	if err := tr.scanTick(context.Background(), time.Now()); err != nil {
		t.Fatal(err)
	}

	if len(notes.notes) != 1 {
		t.Fatalf("expected one deduplicated notification, got %d", len(notes.notes))
	}
	n := notes.notes[0]
	if n.Pair != "SOL/USDC" || n.PriceDriftPct != -1.0 || n.TimingAdvantage != 200*time.Millisecond {
		t.Fatalf("unexpected notification %+v", n)
	}
}
