package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc"

	"quote-drift-tracker/internal/fetcher"
	"quote-drift-tracker/internal/sample"
	"quote-drift-tracker/internal/scheduler"
)

const (
	defaultCooldown = 2 * time.Second
	defaultBackoff  = time.Second
)

// Options tune the worker loops.
type Options struct {
	Workers           int
	LatencyInjection  time.Duration
	RateLimitCooldown time.Duration
	FaultBackoff      time.Duration
	Request           fetcher.QuoteRequest
}

// Pool runs the concurrent quote sampling loops.
type Pool struct {
	opts    Options
	source  fetcher.QuoteSource
	log     *sample.Log
	limiter *RateLimiter
	logger  zerolog.Logger
}

// New constructs a Pool. Workers defaults to the limiter's worker count.
func New(opts Options, source fetcher.QuoteSource, log *sample.Log, limiter *RateLimiter, logger zerolog.Logger) *Pool {
	if opts.Workers <= 0 {
		opts.Workers = limiter.Workers()
	}
	if opts.RateLimitCooldown <= 0 {
		opts.RateLimitCooldown = defaultCooldown
	}
	if opts.FaultBackoff <= 0 {
		opts.FaultBackoff = defaultBackoff
	}
	return &Pool{
		opts:    opts,
		source:  source,
		log:     log,
		limiter: limiter,
		logger:  logger.With().Str("component", "worker_pool").Logger(),
	}
}

// Run blocks until ctx is cancelled and every worker has returned.
func (p *Pool) Run(ctx context.Context) error {
	p.logger.Info().
		Int("workers", p.opts.Workers).
		Dur("interval", p.limiter.Interval()).
		Float64("frequency", p.limiter.Frequency()).
		Msg("starting workers")

	var wg conc.WaitGroup
	for i := 0; i < p.opts.Workers; i++ {
		id := i
		wg.Go(func() { p.work(ctx, id) })
	}
	wg.Wait()

	p.logger.Info().Msg("workers stopped")
	return nil
}

func (p *Pool) work(ctx context.Context, id int) {
	logger := p.logger.With().Int("worker", id).Logger()
	task := fmt.Sprintf("worker-%d", id)
	var seq uint64

	for ctx.Err() == nil {
		var cooldown time.Duration
		err := scheduler.Guard(task, func() error {
			var iterErr error
			cooldown, iterErr = p.iterate(ctx, id, &seq, logger)
			return iterErr
		})

		wait := p.limiter.Interval() + cooldown
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Error().Err(err).Dur("backoff", p.opts.FaultBackoff).Msg("worker iteration failed")
			wait = p.opts.FaultBackoff
		}

		if !scheduler.Sleep(ctx, wait) {
			return
		}
	}
}

// iterate performs one fetch and records its sample. The returned duration is an
// extra cooldown requested by the venue.
func (p *Pool) iterate(ctx context.Context, id int, seq *uint64, logger zerolog.Logger) (time.Duration, error) {
	if p.opts.LatencyInjection > 0 && !scheduler.Sleep(ctx, p.opts.LatencyInjection) {
		return 0, ctx.Err()
	}
	if err := p.limiter.Wait(ctx); err != nil {
		return 0, err
	}

	requestedAt := time.Now()
	quote, err := p.source.Fetch(ctx, p.opts.Request)
	respondedAt := time.Now()

	if err != nil {
		if ctx.Err() != nil {
			// 停止过程中被中断的请求不记录
			return 0, ctx.Err()
		}
		*seq++
		p.log.Append(sample.Failed(id, *seq, requestedAt, respondedAt, err.Error()))
		logger.Warn().Err(err).Uint64("seq", *seq).Msg("quote request failed")

		if fetcher.IsRateLimited(err) {
			logger.Warn().Dur("cooldown", p.opts.RateLimitCooldown).Msg("rate limited, cooling down")
			return p.opts.RateLimitCooldown, nil
		}
		return 0, nil
	}

	prev, hasPrev := p.log.LastSuccessful()
	*seq++
	s := sample.Succeeded(id, *seq, requestedAt, respondedAt, sample.Quote{
		OutputAmount:   quote.OutputAmount,
		PriceImpactPct: quote.PriceImpactPct,
		RouteHops:      quote.RouteHops,
	})
	p.log.Append(s)

	ev := logger.Debug().
		Uint64("seq", s.Seq).
		Int64("output_amount", s.OutputAmount).
		Dur("latency", s.Latency)
	if hasPrev {
		if drift, ok := sample.Drift(prev, s); ok {
			ev = ev.Float64("drift_pct", drift)
		}
	}
	ev.Msg("quote sampled")
	return 0, nil
}
