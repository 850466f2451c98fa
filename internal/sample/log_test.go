package sample

import (
	"sync"
	"testing"
	"time"
)

func okSample(seq uint64, amount int64) Sample {
	now := time.Now()
	return Succeeded(0, seq, now, now.Add(10*time.Millisecond), Quote{OutputAmount: amount})
}

func TestLogRetentionKeepsRecentHalf(t *testing.T) {
	log := NewLog(10)
	for i := 0; i < 10; i++ {
		log.Append(okSample(uint64(i), 100))
	}
	if log.Len() != 10 {
		t.Fatalf("达到上限前不应裁剪, got %d", log.Len())
	}

	log.Append(okSample(10, 100))
	snap := log.Snapshot()
	if len(snap) != 5 {
		t.Fatalf("expected 5 retained samples, got %d", len(snap))
	}
	for i, s := range snap {
		if want := uint64(6 + i); s.Seq != want {
			t.Fatalf("position %d: expected seq %d, got %d", i, want, s.Seq)
		}
	}

	c := log.Counters()
	if c.Total != 11 || c.Succeeded != 11 || c.Failed != 0 {
		t.Fatalf("lifetime counters should survive trimming: %+v", c)
	}
}

func TestLogNeverExceedsCap(t *testing.T) {
	log := NewLog(8)
	for i := 0; i < 100; i++ {
		log.Append(okSample(uint64(i), 1))
		if log.Len() > 8 {
			t.Fatalf("log length %d exceeds cap after append %d", log.Len(), i)
		}
	}
}

func TestLogUnbounded(t *testing.T) {
	log := NewLog(0)
	for i := 0; i < 2500; i++ {
		log.Append(okSample(uint64(i), 1))
	}
	if log.Len() != 2500 {
		t.Fatalf("cap 0 should disable retention, got %d", log.Len())
	}
}

func TestLogConcurrentAppend(t *testing.T) {
	log := NewLog(0)
	const workers, perWorker = 8, 200

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				now := time.Now()
				if i%4 == 0 {
					log.Append(Failed(w, uint64(i), now, now, "boom"))
					continue
				}
				log.Append(Succeeded(w, uint64(i), now, now, Quote{OutputAmount: 1}))
				_ = log.Snapshot()
			}
		}(w)
	}
	wg.Wait()

	if log.Len() != workers*perWorker {
		t.Fatalf("lost updates: got %d", log.Len())
	}

	lastSeq := make(map[int]int64)
	for _, s := range log.Snapshot() {
		prev, seen := lastSeq[s.Worker]
		if seen && int64(s.Seq) <= prev {
			t.Fatalf("worker %d out of local order: %d after %d", s.Worker, s.Seq, prev)
		}
		lastSeq[s.Worker] = int64(s.Seq)
	}

	c := log.Counters()
	if c.Failed != workers*perWorker/4 {
		t.Fatalf("unexpected failed count %d", c.Failed)
	}
}

func TestLogRecentAndLastSuccessful(t *testing.T) {
	log := NewLog(0)
	if _, ok := log.LastSuccessful(); ok {
		t.Fatal("empty log has no successful sample")
	}
	log.Append(okSample(1, 10))
	now := time.Now()
	log.Append(Failed(0, 2, now, now, "x"))

	last, ok := log.LastSuccessful()
	if !ok || last.Seq != 1 {
		t.Fatalf("expected seq 1, got %+v", last)
	}
	if got := log.Recent(5); len(got) != 2 {
		t.Fatalf("Recent should clamp to available samples, got %d", len(got))
	}
	if got := log.Recent(1); len(got) != 1 || got[0].Seq != 2 {
		t.Fatalf("Recent(1) should return the newest sample")
	}
}
