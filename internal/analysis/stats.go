package analysis

import (
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"quote-drift-tracker/internal/sample"
)

// Levels are the percentiles reported for latency and drift.
var Levels = []float64{10, 25, 50, 75, 90, 95, 99}

// Percentiles maps a level (10, 25, ...) to its value.
type Percentiles map[float64]float64

// LatencyStats are reported in seconds except the percentiles, which are milliseconds.
type LatencyStats struct {
	Mean          float64
	Min           float64
	Max           float64
	StdDev        float64
	PercentilesMs Percentiles
}

// AmountStats summarise successful output amounts.
type AmountStats struct {
	Mean          float64
	Min           float64
	Max           float64
	StdDev        float64
	Variance      float64
	VolatilityPct float64
}

// DriftStats summarise the drift series (percent).
type DriftStats struct {
	Mean        float64
	Min         float64
	Max         float64
	StdDev      float64
	Variance    float64
	Percentiles Percentiles
	Positive    int
	Negative    int
	Significant int
}

// Result is a point-in-time analysis of a sample window.
type Result struct {
	TotalQuotes      int
	SuccessfulQuotes int
	FailedQuotes     int
	SuccessRate      float64

	Latency LatencyStats
	Amount  AmountStats
	Drift   DriftStats

	FrontrunOpportunities   int
	LatencyPriceCorrelation float64

	Duration           time.Duration
	AvgRequestInterval time.Duration
}

// Anomaly is a sample whose amount sits far from the window mean.
type Anomaly struct {
	At           time.Time
	OutputAmount int64
	ZScore       float64
	DeviationPct float64
	LatencyMs    float64
}

// Profitability is a naive per-pair profit estimate over the window.
type Profitability struct {
	ProfitableOpportunities int
	TotalPotentialProfit    float64
	AvgProfitPerOpportunity float64
	ProfitabilityRate       float64
}

// Analyzer computes statistics over sample windows.
type Analyzer struct {
	thresholds Thresholds
}

// NewAnalyzer builds an analyzer; zero thresholds fall back to defaults.
func NewAnalyzer(thresholds Thresholds) *Analyzer {
	return &Analyzer{thresholds: thresholds.withDefaults()}
}

// Thresholds returns the effective thresholds.
func (a *Analyzer) Thresholds() Thresholds {
	return a.thresholds
}

// Analyze summarises samples. ok is false when fewer than two successful samples
// exist or no drift could be derived from them.
func (a *Analyzer) Analyze(samples []sample.Sample) (Result, bool) {
	successful := sample.Successful(samples)
	if len(successful) < 2 {
		return Result{}, false
	}

	drifts := driftSeries(successful)
	if len(drifts) == 0 {
		return Result{}, false
	}

	latencies := make([]float64, len(successful))
	amounts := make([]float64, len(successful))
	for i, s := range successful {
		latencies[i] = s.Latency.Seconds()
		amounts[i] = float64(s.OutputAmount)
	}

	res := Result{
		TotalQuotes:      len(samples),
		SuccessfulQuotes: len(successful),
		FailedQuotes:     len(samples) - len(successful),
		SuccessRate:      float64(len(successful)) / float64(len(samples)) * 100,
	}

	latMean, latVar := stat.PopMeanVariance(latencies, nil)
	latMs := make([]float64, len(latencies))
	for i, l := range latencies {
		latMs[i] = l * 1000
	}
	res.Latency = LatencyStats{
		Mean:          latMean,
		Min:           floats.Min(latencies),
		Max:           floats.Max(latencies),
		StdDev:        math.Sqrt(latVar),
		PercentilesMs: percentileSet(latMs),
	}

	amtMean, amtVar := stat.PopMeanVariance(amounts, nil)
	res.Amount = AmountStats{
		Mean:     amtMean,
		Min:      floats.Min(amounts),
		Max:      floats.Max(amounts),
		StdDev:   math.Sqrt(amtVar),
		Variance: amtVar,
	}
	if amtMean != 0 {
		res.Amount.VolatilityPct = res.Amount.StdDev / amtMean * 100
	}

	values := make([]float64, len(drifts))
	for i, d := range drifts {
		values[i] = d.pct
	}
	driftMean, driftVar := stat.PopMeanVariance(values, nil)
	res.Drift = DriftStats{
		Mean:        driftMean,
		Min:         floats.Min(values),
		Max:         floats.Max(values),
		StdDev:      math.Sqrt(driftVar),
		Variance:    driftVar,
		Percentiles: percentileSet(values),
	}
	for _, v := range values {
		switch {
		case v > 0:
			res.Drift.Positive++
		case v < 0:
			res.Drift.Negative++
		}
		if math.Abs(v) > a.thresholds.DriftPct {
			res.Drift.Significant++
		}
	}

	res.FrontrunOpportunities = a.countOpportunities(drifts)
	res.LatencyPriceCorrelation = latencyPriceCorrelation(drifts)
	res.Duration, res.AvgRequestInterval = timing(successful)

	return res, true
}

// DetectAnomalies flags successful samples whose amount z-score exceeds z.
// Fewer than ten successful samples yield nothing.
func (a *Analyzer) DetectAnomalies(samples []sample.Sample, z float64) []Anomaly {
	successful := sample.Successful(samples)
	if len(successful) < 10 {
		return nil
	}

	amounts := make([]float64, len(successful))
	for i, s := range successful {
		amounts[i] = float64(s.OutputAmount)
	}
	mean, variance := stat.PopMeanVariance(amounts, nil)
	std := math.Sqrt(variance)
	if std == 0 || mean == 0 {
		return nil
	}

	var anomalies []Anomaly
	for i, s := range successful {
		score := math.Abs(amounts[i]-mean) / std
		if score <= z {
			continue
		}
		anomalies = append(anomalies, Anomaly{
			At:           s.RequestedAt,
			OutputAmount: s.OutputAmount,
			ZScore:       score,
			DeviationPct: (amounts[i] - mean) / mean * 100,
			LatencyMs:    s.Latency.Seconds() * 1000,
		})
	}
	return anomalies
}

// Profitability estimates |Δamount| − cost over consecutive successful pairs.
func (a *Analyzer) Profitability(samples []sample.Sample, cost float64) Profitability {
	successful := sample.Successful(samples)
	if len(successful) < 2 {
		return Profitability{}
	}

	var p Profitability
	for i := 1; i < len(successful); i++ {
		diff := math.Abs(float64(successful[i].OutputAmount - successful[i-1].OutputAmount))
		profit := diff - cost
		if profit > 0 {
			p.ProfitableOpportunities++
			p.TotalPotentialProfit += profit
		}
	}

	denom := p.ProfitableOpportunities
	if denom < 1 {
		denom = 1
	}
	p.AvgProfitPerOpportunity = p.TotalPotentialProfit / float64(denom)
	p.ProfitabilityRate = float64(p.ProfitableOpportunities) / float64(len(successful)) * 100
	return p
}

func (a *Analyzer) countOpportunities(drifts []pairDrift) int {
	count := 0
	for _, d := range drifts {
		if a.thresholds.exceeded(d.prev.Latency-d.cur.Latency, d.pct) {
			count++
		}
	}
	return count
}

type pairDrift struct {
	prev, cur sample.Sample
	pct       float64
}

// driftSeries expects the successful subsequence in log order.
func driftSeries(successful []sample.Sample) []pairDrift {
	out := make([]pairDrift, 0, len(successful))
	for i := 1; i < len(successful); i++ {
		pct, ok := sample.Drift(successful[i-1], successful[i])
		if !ok {
			continue
		}
		out = append(out, pairDrift{prev: successful[i-1], cur: successful[i], pct: pct})
	}
	return out
}

func latencyPriceCorrelation(drifts []pairDrift) float64 {
	if len(drifts) < 3 {
		return 0
	}
	latencies := make([]float64, len(drifts))
	changes := make([]float64, len(drifts))
	for i, d := range drifts {
		latencies[i] = d.cur.Latency.Seconds()
		changes[i] = math.Abs(d.pct)
	}
	return Correlation(latencies, changes)
}

// Correlation is the Pearson coefficient of x and y, or 0 when it is undefined.
func Correlation(x, y []float64) float64 {
	if len(x) < 3 || len(x) != len(y) {
		return 0
	}
	if stat.PopVariance(x, nil) == 0 || stat.PopVariance(y, nil) == 0 {
		return 0
	}
	r := stat.Correlation(x, y, nil)
	if math.IsNaN(r) || math.IsInf(r, 0) {
		return 0
	}
	return r
}

func timing(successful []sample.Sample) (time.Duration, time.Duration) {
	ordered := sample.SortByRequested(successful)
	if len(ordered) < 2 {
		return 0, 0
	}
	span := ordered[len(ordered)-1].RequestedAt.Sub(ordered[0].RequestedAt)
	return span, span / time.Duration(len(ordered)-1)
}

func percentileSet(values []float64) Percentiles {
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	out := make(Percentiles, len(Levels))
	for _, p := range Levels {
		out[p] = percentileSorted(sorted, p)
	}
	return out
}

// Percentile returns the p-th percentile (0..100) using linear interpolation
// between closest ranks. It returns NaN for an empty input.
func Percentile(values []float64, p float64) float64 {
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	return percentileSorted(sorted, p)
}

func percentileSorted(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return math.NaN()
	}
	if p <= 0 {
		return sorted[0]
	}
	if p >= 100 {
		return sorted[n-1]
	}
	rank := p / 100 * float64(n-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi {
		return sorted[lo]
	}
	frac := rank - float64(lo)
	return sorted[lo] + (sorted[hi]-sorted[lo])*frac
}
