package export

import (
	"context"
	"encoding/csv"
	"os"
	"strconv"

	"quote-drift-tracker/internal/sample"
)

var csvHeader = []string{
	"datetime",
	"timestamp",
	"latency_ms",
	"output_amount",
	"price_usdc",
	"price_impact_pct",
	"drift_pct",
	"is_mev_opportunity",
}

// CSV writes one row per successful sample.
type CSV struct {
	Path string
}

// Export writes the CSV file, creating parent directories as needed.
func (c CSV) Export(_ context.Context, samples []sample.Sample) error {
	records := BuildRecords(samples)
	if len(records) == 0 {
		return &ExportError{Target: c.Path, Err: ErrNoRecords}
	}
	if err := writeCSV(c.Path, records); err != nil {
		return &ExportError{Target: c.Path, Err: err}
	}
	return nil
}

func writeCSV(path string, records []Record) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write(csvHeader); err != nil {
		return err
	}

	for _, r := range records {
		row := []string{
			r.Datetime(),
			r.Timestamp(),
			r.LatencyMs.StringFixed(2),
			strconv.FormatInt(r.OutputAmount, 10),
			r.PriceUSDC.StringFixed(6),
			r.PriceImpactPct.StringFixed(4),
			r.DriftPct.StringFixed(4),
			strconv.FormatBool(r.IsMEVOpportunity),
		}
		if err := writer.Write(row); err != nil {
			return err
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return err
	}
	return file.Close()
}
