package analysis

import (
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"quote-drift-tracker/internal/sample"
)

const (
	DefaultDriftThresholdPct = 0.01
	DefaultTimingThreshold   = 50 * time.Millisecond

	DefaultScanWindow        = 20
	DefaultScanMinSamples    = 10
	DefaultScanMinSuccessful = 5
)

// Thresholds gate both the opportunity rule and the significant-drift count.
type Thresholds struct {
	DriftPct float64
	Timing   time.Duration
}

func (t Thresholds) withDefaults() Thresholds {
	if t.DriftPct <= 0 {
		t.DriftPct = DefaultDriftThresholdPct
	}
	if t.Timing <= 0 {
		t.Timing = DefaultTimingThreshold
	}
	return t
}

func (t Thresholds) exceeded(advantage time.Duration, driftPct float64) bool {
	return advantage > t.Timing && math.Abs(driftPct) > t.DriftPct
}

// Opportunity is a consecutive pair with both a timing and a drift advantage.
type Opportunity struct {
	ID              string
	TimingAdvantage time.Duration
	PriceDrift      float64
	EstimatedProfit decimal.Decimal
	At              time.Time
	Previous        sample.Key
	Current         sample.Key
}

// PairKey identifies the sample pair behind an opportunity.
func (o Opportunity) PairKey() string {
	return o.Previous.String() + ">" + o.Current.String()
}

// DetectorOptions tune the sliding window scan.
type DetectorOptions struct {
	Thresholds    Thresholds
	Window        int
	MinSamples    int
	MinSuccessful int
	TradeAmount   int64
	FlatCost      decimal.Decimal
}

// Detector scans a recent window for opportunities. It holds no state between scans.
type Detector struct {
	opts DetectorOptions
}

// NewDetector 构造机会检测器，未设置的参数使用默认值。
func NewDetector(opts DetectorOptions) *Detector {
	opts.Thresholds = opts.Thresholds.withDefaults()
	if opts.Window <= 0 {
		opts.Window = DefaultScanWindow
	}
	if opts.MinSamples <= 0 {
		opts.MinSamples = DefaultScanMinSamples
	}
	if opts.MinSuccessful <= 0 {
		opts.MinSuccessful = DefaultScanMinSuccessful
	}
	return &Detector{opts: opts}
}

// Window is the number of trailing samples a scan looks at.
func (d *Detector) Window() int {
	return d.opts.Window
}

// Scan evaluates the trailing window of snapshot. The same pair is reported at most
// once per scan; consecutive scans over an overlapping window may report it again.
func (d *Detector) Scan(snapshot []sample.Sample) []Opportunity {
	if len(snapshot) < d.opts.MinSamples {
		return nil
	}
	window := snapshot
	if len(window) > d.opts.Window {
		window = window[len(window)-d.opts.Window:]
	}

	recent := sample.Successful(window)
	if len(recent) < d.opts.MinSuccessful {
		return nil
	}

	var found []Opportunity
	for i := 1; i < len(recent); i++ {
		if opp, ok := d.Evaluate(recent[i-1], recent[i]); ok {
			found = append(found, opp)
		}
	}
	return found
}

// Evaluate applies the opportunity rule to one consecutive pair.
func (d *Detector) Evaluate(prev, cur sample.Sample) (Opportunity, bool) {
	if !prev.Success || !cur.Success {
		return Opportunity{}, false
	}
	drift, ok := sample.Drift(prev, cur)
	if !ok {
		return Opportunity{}, false
	}
	advantage := prev.Latency - cur.Latency
	if !d.opts.Thresholds.exceeded(advantage, drift) {
		return Opportunity{}, false
	}

	profit := decimal.NewFromFloat(math.Abs(drift)).
		Mul(decimal.NewFromInt(d.opts.TradeAmount)).
		Sub(d.opts.FlatCost)

	return Opportunity{
		ID:              uuid.NewString(),
		TimingAdvantage: advantage,
		PriceDrift:      drift,
		EstimatedProfit: profit,
		At:              cur.RequestedAt,
		Previous:        prev.Key(),
		Current:         cur.Key(),
	}, true
}
