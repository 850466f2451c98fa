package app

import (
	"fmt"

	"github.com/rs/zerolog"

	"quote-drift-tracker/internal/analysis"
	"quote-drift-tracker/internal/tracker"
)

const maxLoggedAnomalies = 5

// logReport emits the final run report as structured log events.
func (a *App) logReport(r tracker.Report) {
	c := r.Counters
	a.Logger.Info().
		Int64("total", c.Total).
		Int64("succeeded", c.Succeeded).
		Int64("failed", c.Failed).
		Int("opportunities", r.Opportunities).
		Int("exported", r.Exported).
		Dur("elapsed", r.Elapsed).
		Msg("final report")

	if !r.HasResult {
		a.Logger.Warn().Msg("not enough successful quotes for analysis")
		return
	}

	res := r.Result
	a.Logger.Info().
		Float64("success_rate", res.SuccessRate).
		Dur("span", res.Duration).
		Dur("avg_request_interval", res.AvgRequestInterval).
		Msg("request statistics")

	a.Logger.Info().
		Float64("mean_ms", res.Latency.Mean*1000).
		Float64("min_ms", res.Latency.Min*1000).
		Float64("max_ms", res.Latency.Max*1000).
		Float64("std_ms", res.Latency.StdDev*1000).
		Dict("percentiles_ms", percentileDict(res.Latency.PercentilesMs)).
		Msg("latency statistics")

	a.Logger.Info().
		Float64("mean", res.Amount.Mean).
		Float64("min", res.Amount.Min).
		Float64("max", res.Amount.Max).
		Float64("std", res.Amount.StdDev).
		Float64("volatility_pct", res.Amount.VolatilityPct).
		Msg("output amount statistics")

	a.Logger.Info().
		Float64("mean_pct", res.Drift.Mean).
		Float64("min_pct", res.Drift.Min).
		Float64("max_pct", res.Drift.Max).
		Float64("std_pct", res.Drift.StdDev).
		Int("positive", res.Drift.Positive).
		Int("negative", res.Drift.Negative).
		Int("significant", res.Drift.Significant).
		Dict("percentiles", percentileDict(res.Drift.Percentiles)).
		Msg("drift statistics")

	a.Logger.Info().
		Int("frontrun_opportunities", res.FrontrunOpportunities).
		Float64("latency_price_correlation", res.LatencyPriceCorrelation).
		Int("profitable", r.Profitability.ProfitableOpportunities).
		Float64("total_profit", r.Profitability.TotalPotentialProfit).
		Float64("avg_profit", r.Profitability.AvgProfitPerOpportunity).
		Float64("profitability_rate", r.Profitability.ProfitabilityRate).
		Msg("opportunity statistics")

	a.Logger.Info().Int("count", len(r.Anomalies)).Msg("price anomalies")
	for i, an := range r.Anomalies {
		if i == maxLoggedAnomalies {
			break
		}
		a.Logger.Info().
			Time("at", an.At).
			Int64("output_amount", an.OutputAmount).
			Float64("z_score", an.ZScore).
			Float64("deviation_pct", an.DeviationPct).
			Float64("latency_ms", an.LatencyMs).
			Msg("anomaly")
	}
}

func percentileDict(p analysis.Percentiles) *zerolog.Event {
	d := zerolog.Dict()
	for _, level := range analysis.Levels {
		if v, ok := p[level]; ok {
			d = d.Float64(fmt.Sprintf("p%.0f", level), v)
		}
	}
	return d
}
