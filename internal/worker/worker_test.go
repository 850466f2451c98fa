package worker

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"quote-drift-tracker/internal/config"
	"quote-drift-tracker/internal/fetcher"
	"quote-drift-tracker/internal/sample"
)

type stubSource struct {
	calls atomic.Int64
	fn    func(call int64) (fetcher.Quote, error)
}

func (s *stubSource) Fetch(ctx context.Context, _ fetcher.QuoteRequest) (fetcher.Quote, error) {
	n := s.calls.Add(1)
	if s.fn == nil {
		return fetcher.Quote{OutputAmount: 1_000_000 + n, RouteHops: 1}, nil
	}
	return s.fn(n)
}

func runFor(t *testing.T, p *Pool, d time.Duration) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run returned error: %v", err)
		}
	case <-time.After(d + 2*time.Second):
		t.Fatal("pool did not stop")
	}
}

func TestRateLimiterInterval(t *testing.T) {
	rl, err := NewRateLimiter(5, 10)
	if err != nil {
		t.Fatal(err)
	}
	if rl.Interval() != 2*time.Second {
		t.Fatalf("期望 2s, 实际 %s", rl.Interval())
	}

	rl, err = NewRateLimiter(3, 3)
	if err != nil {
		t.Fatal(err)
	}
	if rl.Interval() != time.Second {
		t.Fatalf("期望 1s, 实际 %s", rl.Interval())
	}
}

func TestRateLimiterRejectsNonPositive(t *testing.T) {
	cases := []struct {
		freq    float64
		workers int
		field   string
	}{
		{0, 3, "tracker.frequency"},
		{-1, 3, "tracker.frequency"},
		{3, 0, "tracker.workers"},
	}
	for _, tc := range cases {
		_, err := NewRateLimiter(tc.freq, tc.workers)
		var cfgErr *config.ConfigError
		if !errors.As(err, &cfgErr) {
			t.Fatalf("(%v, %d): expected ConfigError, got %v", tc.freq, tc.workers, err)
		}
		if cfgErr.Field != tc.field {
			t.Fatalf("(%v, %d): field %s", tc.freq, tc.workers, cfgErr.Field)
		}
	}
}

func TestPoolRecordsSamplesPerWorkerInOrder(t *testing.T) {
	rl, _ := NewRateLimiter(100, 2)
	log := sample.NewLog(0)
	src := &stubSource{}
	p := New(Options{}, src, log, rl, zerolog.Nop())

	runFor(t, p, 300*time.Millisecond)

	snap := log.Snapshot()
	if len(snap) < 4 {
		t.Fatalf("expected several samples, got %d", len(snap))
	}
	last := map[int]uint64{}
	for _, s := range snap {
		if !s.Success {
			t.Fatalf("unexpected failure %+v", s)
		}
		if s.Worker < 0 || s.Worker > 1 {
			t.Fatalf("unexpected worker index %d", s.Worker)
		}
		if s.Seq <= last[s.Worker] {
			t.Fatalf("worker %d sequence not increasing", s.Worker)
		}
		last[s.Worker] = s.Seq
	}
}

func TestPoolFailuresKeepWorkerAlive(t *testing.T) {
	rl, _ := NewRateLimiter(100, 1)
	log := sample.NewLog(0)
	src := &stubSource{fn: func(n int64) (fetcher.Quote, error) {
		if n%2 == 1 {
			return fetcher.Quote{}, &fetcher.FetchError{StatusCode: http.StatusInternalServerError, Body: "boom"}
		}
		return fetcher.Quote{OutputAmount: 42}, nil
	}}
	p := New(Options{}, src, log, rl, zerolog.Nop())

	runFor(t, p, 200*time.Millisecond)

	c := log.Counters()
	if c.Failed == 0 || c.Succeeded == 0 {
		t.Fatalf("expected both outcomes, got %+v", c)
	}
	for _, s := range log.Snapshot() {
		if !s.Success && (s.ErrorDetail == nil || *s.ErrorDetail != "HTTP 500: boom") {
			t.Fatalf("unexpected failure detail %+v", s)
		}
	}
}

func TestPoolRateLimitCooldown(t *testing.T) {
	rl, _ := NewRateLimiter(100, 1)
	log := sample.NewLog(0)
	src := &stubSource{fn: func(int64) (fetcher.Quote, error) {
		return fetcher.Quote{}, &fetcher.FetchError{StatusCode: http.StatusTooManyRequests}
	}}
	p := New(Options{RateLimitCooldown: time.Second}, src, log, rl, zerolog.Nop())

	runFor(t, p, 300*time.Millisecond)

	if got := src.calls.Load(); got != 1 {
		t.Fatalf("cooldown should hold the worker back, got %d calls", got)
	}
	if log.Counters().Failed != 1 {
		t.Fatalf("rate limited request should be recorded as failure")
	}
}

func TestPoolRecoversFromPanic(t *testing.T) {
	rl, _ := NewRateLimiter(100, 1)
	log := sample.NewLog(0)
	src := &stubSource{fn: func(n int64) (fetcher.Quote, error) {
		if n == 1 {
			panic("venue exploded")
		}
		return fetcher.Quote{OutputAmount: 7}, nil
	}}
	p := New(Options{FaultBackoff: 10 * time.Millisecond}, src, log, rl, zerolog.Nop())

	runFor(t, p, 200*time.Millisecond)

	if log.Counters().Succeeded == 0 {
		t.Fatal("worker should resume after a panic")
	}
}

func TestPoolStopsPromptlyAndDropsAbortedFetch(t *testing.T) {
	rl, _ := NewRateLimiter(1, 1)
	log := sample.NewLog(0)
	blocking := fetcherFunc(func(ctx context.Context) (fetcher.Quote, error) {
		<-ctx.Done()
		return fetcher.Quote{}, ctx.Err()
	})
	p := New(Options{}, blocking, log, rl, zerolog.Nop())

	start := time.Now()
	runFor(t, p, 100*time.Millisecond)
	if time.Since(start) > time.Second {
		t.Fatalf("stop took %s", time.Since(start))
	}
	if log.Len() != 0 {
		t.Fatalf("aborted fetch should not be recorded, got %d samples", log.Len())
	}
}

type fetcherFunc func(ctx context.Context) (fetcher.Quote, error)

func (f fetcherFunc) Fetch(ctx context.Context, _ fetcher.QuoteRequest) (fetcher.Quote, error) {
	return f(ctx)
}
