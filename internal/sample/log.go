package sample

import "sync"

// DefaultRetentionCap bounds the in-memory log for long runs.
const DefaultRetentionCap = 1000

// Counters are lifetime totals and survive retention trimming.
type Counters struct {
	Total     int64
	Succeeded int64
	Failed    int64
}

// Log is the append-only sample sequence shared by all workers.
type Log struct {
	mu       sync.RWMutex
	samples  []Sample
	cap      int
	counters Counters
}

// NewLog 构造样本日志；capacity <= 0 时不做裁剪。
func NewLog(capacity int) *Log {
	initial := capacity
	if initial <= 0 || initial > DefaultRetentionCap {
		initial = DefaultRetentionCap
	}
	return &Log{
		samples: make([]Sample, 0, initial),
		cap:     capacity,
	}
}

// Append records s. When the log grows past its cap it keeps the most recent half,
// within the same critical section, so readers never observe an over-cap log.
func (l *Log) Append(s Sample) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.samples = append(l.samples, s)
	l.counters.Total++
	if s.Success {
		l.counters.Succeeded++
	} else {
		l.counters.Failed++
	}

	if l.cap > 0 && len(l.samples) > l.cap {
		keep := l.cap / 2
		trimmed := make([]Sample, keep, l.cap)
		copy(trimmed, l.samples[len(l.samples)-keep:])
		l.samples = trimmed
	}
}

// Snapshot returns a copy of the current contents.
func (l *Log) Snapshot() []Sample {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]Sample, len(l.samples))
	copy(out, l.samples)
	return out
}

// Recent returns a copy of at most the last n samples.
func (l *Log) Recent(n int) []Sample {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if n <= 0 {
		return nil
	}
	start := len(l.samples) - n
	if start < 0 {
		start = 0
	}
	out := make([]Sample, len(l.samples)-start)
	copy(out, l.samples[start:])
	return out
}

// LastSuccessful returns the most recent successful sample still retained.
func (l *Log) LastSuccessful() (Sample, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	for i := len(l.samples) - 1; i >= 0; i-- {
		if l.samples[i].Success {
			return l.samples[i], true
		}
	}
	return Sample{}, false
}

// Len reports the number of retained samples.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.samples)
}

// Counters returns lifetime totals.
func (l *Log) Counters() Counters {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.counters
}
