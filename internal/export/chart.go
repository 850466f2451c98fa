package export

import (
	"context"
	"fmt"
	"os"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"

	"quote-drift-tracker/internal/sample"
)

// Chart renders latency and drift over time as a PNG.
type Chart struct {
	Path   string
	Width  int
	Height int
}

// Export renders the chart. At least two rows are needed to draw a series.
func (c Chart) Export(_ context.Context, samples []sample.Sample) error {
	records := BuildRecords(samples)
	if len(records) < 2 {
		return &ExportError{Target: c.Path, Err: fmt.Errorf("chart needs two rows: %w", ErrNoRecords)}
	}
	if err := c.render(records); err != nil {
		return &ExportError{Target: c.Path, Err: err}
	}
	return nil
}

func (c Chart) render(records []Record) error {
	if err := ensureDir(c.Path); err != nil {
		return err
	}

	x := make([]time.Time, len(records))
	latency := make([]float64, len(records))
	drift := make([]float64, len(records))
	for i, r := range records {
		x[i] = r.Time
		latency[i] = r.LatencyMs.InexactFloat64()
		drift[i] = r.DriftPct.InexactFloat64()
	}

	width, height := c.Width, c.Height
	if width <= 0 {
		width = 1280
	}
	if height <= 0 {
		height = 720
	}

	msFormatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "%.1f")
	}
	pctFormatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "%.4f")
	}
	graph := chart.Chart{
		Width:  width,
		Height: height,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatter,
		},
		YAxis: chart.YAxis{
			Name:           "Latency (ms)",
			ValueFormatter: msFormatter,
			Range:          paddedRange(latency),
		},
		YAxisSecondary: chart.YAxis{
			Name:           "Drift (%)",
			ValueFormatter: pctFormatter,
			Range:          paddedRange(drift),
		},
		Series: []chart.Series{
			chart.TimeSeries{
				Name:    "Latency ms",
				XValues: x,
				YValues: latency,
			},
			chart.TimeSeries{
				Name:    "Drift %",
				XValues: x,
				YValues: drift,
				YAxis:   chart.YAxisSecondary,
			},
		},
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	file, err := os.Create(c.Path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

// paddedRange widens a flat series so the axis never has a zero delta.
func paddedRange(values []float64) chart.Range {
	lo, hi := values[0], values[0]
	for _, v := range values[1:] {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	if hi > lo {
		return &chart.ContinuousRange{Min: lo, Max: hi}
	}
	return &chart.ContinuousRange{Min: lo - 1, Max: hi + 1}
}
