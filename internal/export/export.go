package export

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"

	"quote-drift-tracker/internal/sample"
)

// OpportunityDriftPct marks an exported row as an opportunity when |drift| exceeds it.
const OpportunityDriftPct = 0.01

// ErrNoRecords is returned when there is nothing to export.
var ErrNoRecords = errors.New("no successful samples to export")

// Exporter writes the successful samples of a run somewhere.
type Exporter interface {
	Export(ctx context.Context, samples []sample.Sample) error
}

// ExportError wraps a failure of one export target.
type ExportError struct {
	Target string
	Err    error
}

func (e *ExportError) Error() string {
	return fmt.Sprintf("export %s: %v", e.Target, e.Err)
}

func (e *ExportError) Unwrap() error {
	return e.Err
}

// Record is one exported row.
type Record struct {
	Time             time.Time
	LatencyMs        decimal.Decimal
	OutputAmount     int64
	PriceUSDC        decimal.Decimal
	PriceImpactPct   decimal.Decimal
	DriftPct         decimal.Decimal
	IsMEVOpportunity bool
}

// Datetime renders the row time with millisecond precision.
func (r Record) Datetime() string {
	return r.Time.Format("2006-01-02 15:04:05.000")
}

// Timestamp renders the row time as unix seconds.
func (r Record) Timestamp() string {
	return decimal.New(r.Time.UnixMicro(), -6).StringFixed(6)
}

// BuildRecords 为每个成功样本生成一行；首行 drift 固定为 0。
func BuildRecords(samples []sample.Sample) []Record {
	ok := sample.Successful(samples)
	records := make([]Record, 0, len(ok))

	for i, s := range ok {
		drift := 0.0
		if i > 0 {
			if d, defined := sample.Drift(ok[i-1], s); defined {
				drift = d
			}
		}
		ms := float64(s.Latency) / float64(time.Millisecond)

		records = append(records, Record{
			Time:             s.RequestedAt,
			LatencyMs:        roundFloat(ms, 2),
			OutputAmount:     s.OutputAmount,
			PriceUSDC:        decimal.New(s.OutputAmount, -6),
			PriceImpactPct:   roundFloat(s.PriceImpactPct, 4),
			DriftPct:         roundFloat(drift, 4),
			IsMEVOpportunity: math.Abs(drift) > OpportunityDriftPct,
		})
	}
	return records
}

func roundFloat(v float64, places int32) decimal.Decimal {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return decimal.Zero
	}
	return decimal.NewFromFloat(v).Round(places)
}

// Multi fans an export out to several targets. Every target is attempted; failures are joined.
type Multi []Exporter

// Export runs each exporter in order.
func (m Multi) Export(ctx context.Context, samples []sample.Sample) error {
	var errs []error
	for _, e := range m {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := e.Export(ctx, samples); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
