package sample

import (
	"fmt"
	"sort"
	"time"
)

// Sample is one recorded quote request. Values are never mutated after construction;
// the log only ever hands out copies.
type Sample struct {
	Worker int
	Seq    uint64

	RequestedAt time.Time
	RespondedAt time.Time
	Latency     time.Duration

	OutputAmount   int64
	PriceImpactPct float64
	RouteHops      int

	Success     bool
	ErrorDetail *string
}

// Key identifies a sample by producing worker and that worker's sequence number.
type Key struct {
	Worker int
	Seq    uint64
}

// String renders the key as worker:seq.
func (k Key) String() string {
	return fmt.Sprintf("%d:%d", k.Worker, k.Seq)
}

// Quote carries the venue fields of a successful fetch.
type Quote struct {
	OutputAmount   int64
	PriceImpactPct float64
	RouteHops      int
}

// Succeeded builds a successful sample.
func Succeeded(worker int, seq uint64, requestedAt, respondedAt time.Time, q Quote) Sample {
	return Sample{
		Worker:         worker,
		Seq:            seq,
		RequestedAt:    requestedAt,
		RespondedAt:    respondedAt,
		Latency:        latencyBetween(requestedAt, respondedAt),
		OutputAmount:   q.OutputAmount,
		PriceImpactPct: q.PriceImpactPct,
		RouteHops:      q.RouteHops,
		Success:        true,
	}
}

// Failed builds a failed sample. Amount and impact are zeroed.
func Failed(worker int, seq uint64, requestedAt, respondedAt time.Time, detail string) Sample {
	if detail == "" {
		detail = "unknown error"
	}
	return Sample{
		Worker:      worker,
		Seq:         seq,
		RequestedAt: requestedAt,
		RespondedAt: respondedAt,
		Latency:     latencyBetween(requestedAt, respondedAt),
		Success:     false,
		ErrorDetail: &detail,
	}
}

// Key returns the identity of the sample.
func (s Sample) Key() Key {
	return Key{Worker: s.Worker, Seq: s.Seq}
}

// Error returns the failure detail, or "" for a successful sample.
func (s Sample) Error() string {
	if s.ErrorDetail == nil {
		return ""
	}
	return *s.ErrorDetail
}

func latencyBetween(requestedAt, respondedAt time.Time) time.Duration {
	latency := respondedAt.Sub(requestedAt)
	if latency < 0 {
		return 0
	}
	return latency
}

// Drift returns the percentage change from prev to cur output amounts.
// ok is false when prev has no amount, in which case the drift is undefined.
func Drift(prev, cur Sample) (float64, bool) {
	return DriftAmount(prev.OutputAmount, cur.OutputAmount)
}

// DriftAmount is Drift over raw amounts.
func DriftAmount(prev, cur int64) (float64, bool) {
	if prev == 0 {
		return 0, false
	}
	return float64(cur-prev) / float64(prev) * 100, true
}

// Successful filters the successful subsequence, preserving order.
func Successful(samples []Sample) []Sample {
	out := make([]Sample, 0, len(samples))
	for _, s := range samples {
		if s.Success {
			out = append(out, s)
		}
	}
	return out
}

// SortByRequested returns a copy ordered by request time. Samples from different
// workers are only approximately ordered in the log.
func SortByRequested(samples []Sample) []Sample {
	out := make([]Sample, len(samples))
	copy(out, samples)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].RequestedAt.Before(out[j].RequestedAt)
	})
	return out
}
