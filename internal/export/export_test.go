package export

import (
	"context"
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"quote-drift-tracker/internal/sample"
)

var base = time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

func ok(seq uint64, amount int64, latency time.Duration) sample.Sample {
	at := base.Add(time.Duration(seq) * time.Second)
	return sample.Succeeded(0, seq, at, at.Add(latency), sample.Quote{OutputAmount: amount, PriceImpactPct: 0.00123456})
}

func failed(seq uint64) sample.Sample {
	at := base.Add(time.Duration(seq) * time.Second)
	return sample.Failed(0, seq, at, at.Add(time.Millisecond), "timeout")
}

func TestBuildRecordsFirstRowAndDrift(t *testing.T) {
	samples := []sample.Sample{
		ok(1, 1_000_000, 123456*time.Microsecond),
		failed(2),
		ok(3, 990_000, 100*time.Millisecond),
		ok(4, 990_000, 100*time.Millisecond),
	}

	records := BuildRecords(samples)
	if len(records) != 3 {
		t.Fatalf("failed samples must be skipped, got %d rows", len(records))
	}

	first := records[0]
	if !first.DriftPct.IsZero() || first.IsMEVOpportunity {
		t.Fatalf("首行 drift 应为 0: %+v", first)
	}
	if first.PriceUSDC.StringFixed(6) != "1.000000" {
		t.Fatalf("price_usdc %s", first.PriceUSDC.StringFixed(6))
	}
	if first.LatencyMs.StringFixed(2) != "123.46" {
		t.Fatalf("latency_ms %s", first.LatencyMs.StringFixed(2))
	}
	if first.PriceImpactPct.StringFixed(4) != "0.0012" {
		t.Fatalf("price_impact_pct %s", first.PriceImpactPct.StringFixed(4))
	}
	if first.Datetime() != "2025-01-02 03:04:06.000" {
		t.Fatalf("datetime %s", first.Datetime())
	}

	second := records[1]
	if second.DriftPct.StringFixed(4) != "-1.0000" || !second.IsMEVOpportunity {
		t.Fatalf("second row should be a -1%% opportunity: %+v", second)
	}
	if records[2].IsMEVOpportunity {
		t.Fatal("flat drift is not an opportunity")
	}
}

func TestCSVExport(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "out.csv")
	samples := []sample.Sample{ok(1, 1_000_000, 10*time.Millisecond), ok(2, 1_000_500, 20*time.Millisecond)}

	if err := (CSV{Path: path}).Export(context.Background(), samples); err != nil {
		t.Fatalf("export failed: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected header plus 2 rows, got %d", len(rows))
	}
	if rows[0][0] != "datetime" || rows[0][7] != "is_mev_opportunity" {
		t.Fatalf("unexpected header %v", rows[0])
	}
	want := []string{"2025-01-02 03:04:07.000", "1735787047.000000", "20.00", "1000500", "1.000500", "0.0012", "0.0500", "true"}
	for i, v := range want {
		if rows[2][i] != v {
			t.Fatalf("column %s: want %s, got %s", rows[0][i], v, rows[2][i])
		}
	}
}

func TestCSVExportNoRecords(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.csv")
	err := (CSV{Path: path}).Export(context.Background(), []sample.Sample{failed(1)})

	var exportErr *ExportError
	if !errors.As(err, &exportErr) || !errors.Is(err, ErrNoRecords) {
		t.Fatalf("expected ExportError wrapping ErrNoRecords, got %v", err)
	}
	if exportErr.Target != path {
		t.Fatalf("target %s", exportErr.Target)
	}
}

func TestChartExport(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chart.png")
	samples := []sample.Sample{
		ok(1, 1_000_000, 10*time.Millisecond),
		ok(2, 1_000_100, 30*time.Millisecond),
		ok(3, 999_900, 20*time.Millisecond),
	}
	if err := (Chart{Path: path}).Export(context.Background(), samples); err != nil {
		t.Fatalf("chart export failed: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil || info.Size() == 0 {
		t.Fatalf("chart file missing: %v", err)
	}
}

type stubExporter struct {
	calls int
	err   error
}

func (s *stubExporter) Export(context.Context, []sample.Sample) error {
	s.calls++
	return s.err
}

func TestMultiAttemptsEveryTarget(t *testing.T) {
	boom := &ExportError{Target: "a", Err: errors.New("disk full")}
	a := &stubExporter{err: boom}
	b := &stubExporter{}

	err := Multi{a, b}.Export(context.Background(), nil)
	if a.calls != 1 || b.calls != 1 {
		t.Fatalf("every exporter should run: %d %d", a.calls, b.calls)
	}
	var exportErr *ExportError
	if !errors.As(err, &exportErr) || exportErr.Target != "a" {
		t.Fatalf("joined error should expose the failure, got %v", err)
	}
}
