package fetcher

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// SimulatedOptions shape the demo venue.
type SimulatedOptions struct {
	Seed        int64
	BaseOutput  int64
	FailureRate float64
	SpikeRate   float64
	MinLatency  time.Duration
	MaxLatency  time.Duration
}

// Simulated is an offline venue producing gaussian price drift with occasional
// amplified moves, 50-300ms latency and a small failure rate.
type Simulated struct {
	opts   SimulatedOptions
	logger zerolog.Logger

	mu  sync.Mutex
	rng *rand.Rand
}

// NewSimulated 构造模拟报价源；Seed 为 0 时使用当前时间。
func NewSimulated(opts SimulatedOptions, logger zerolog.Logger) *Simulated {
	if opts.BaseOutput <= 0 {
		opts.BaseOutput = 240_000_000
	}
	if opts.MinLatency <= 0 && opts.MaxLatency <= 0 {
		opts.MinLatency = 50 * time.Millisecond
		opts.MaxLatency = 300 * time.Millisecond
	}
	seed := opts.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Simulated{
		opts:   opts,
		logger: logger.With().Str("component", "simulated_fetcher").Logger(),
		rng:    rand.New(rand.NewSource(seed)),
	}
}

// Fetch waits a simulated network latency and returns a drifted quote.
func (s *Simulated) Fetch(ctx context.Context, q QuoteRequest) (Quote, error) {
	drift, latency, fail, impact := s.roll()

	if latency > 0 {
		timer := time.NewTimer(latency)
		select {
		case <-ctx.Done():
			timer.Stop()
			return Quote{}, ctx.Err()
		case <-timer.C:
		}
	}

	if fail {
		s.logger.Debug().Dur("latency", latency).Msg("simulated failure")
		return Quote{}, &FetchError{Body: "simulated network error"}
	}

	base := s.opts.BaseOutput
	if q.Amount > 0 && q.Amount != 1_000_000 {
		base = int64(float64(base) * float64(q.Amount) / 1_000_000)
	}

	return Quote{
		OutputAmount:   int64(float64(base) * (1 + drift)),
		PriceImpactPct: impact,
		RouteHops:      1,
	}, nil
}

func (s *Simulated) roll() (drift float64, latency time.Duration, fail bool, impact float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	drift = s.rng.NormFloat64() * 0.0005
	if s.rng.Float64() < s.opts.SpikeRate {
		drift *= 5
	}

	if s.opts.MaxLatency > 0 {
		span := float64(s.opts.MaxLatency - s.opts.MinLatency)
		base := float64(s.opts.MinLatency) + s.rng.Float64()*span
		jitter := s.rng.NormFloat64() * float64(20*time.Millisecond)
		latency = time.Duration(math.Max(float64(10*time.Millisecond), base+jitter))
	}

	fail = s.rng.Float64() < s.opts.FailureRate
	impact = 0.001 + s.rng.Float64()*0.004
	return drift, latency, fail, impact
}

var _ QuoteSource = (*Simulated)(nil)
