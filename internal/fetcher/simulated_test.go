package fetcher

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestSimulatedDeterministic(t *testing.T) {
	opts := SimulatedOptions{Seed: 42, MinLatency: time.Millisecond, MaxLatency: time.Millisecond}
	a := NewSimulated(opts, noopLogger())
	b := NewSimulated(opts, noopLogger())

	for i := 0; i < 5; i++ {
		qa, errA := a.Fetch(context.Background(), testRequest())
		qb, errB := b.Fetch(context.Background(), testRequest())
		if (errA == nil) != (errB == nil) || qa != qb {
			t.Fatalf("same seed should give the same quotes: %+v vs %+v", qa, qb)
		}
		if errA == nil && (qa.OutputAmount < 200_000_000 || qa.OutputAmount > 280_000_000) {
			t.Fatalf("quote far from base output: %d", qa.OutputAmount)
		}
	}
}

func TestSimulatedFailures(t *testing.T) {
	s := NewSimulated(SimulatedOptions{Seed: 1, FailureRate: 1, MaxLatency: time.Millisecond}, noopLogger())
	_, err := s.Fetch(context.Background(), testRequest())
	var fe *FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("failure rate 1 should always fail, got %v", err)
	}
}

func TestSimulatedHonoursCancellation(t *testing.T) {
	s := NewSimulated(SimulatedOptions{Seed: 1, MinLatency: time.Hour, MaxLatency: time.Hour}, noopLogger())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := s.Fetch(ctx, testRequest()); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
}
