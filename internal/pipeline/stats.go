package pipeline

import (
	"slices"
	"sync"
	"time"
)

type sample struct {
	at         time.Time
	durationMs int64
	failed     bool
}

// KindStats aggregates the recent runs of one task kind.
type KindStats struct {
	Count  int     `json:"count"`
	Failed int     `json:"failed"`
	MinMs  int64   `json:"min_ms"`
	MaxMs  int64   `json:"max_ms"`
	AvgMs  float64 `json:"avg_ms"`
	P50Ms  float64 `json:"p50_ms"`
	P95Ms  float64 `json:"p95_ms"`
	P99Ms  float64 `json:"p99_ms"`
}

// Stats tracks task latencies per kind within a rolling window.
type Stats struct {
	mu      sync.Mutex
	samples map[string][]sample
	maxAge  time.Duration
}

func NewStats(maxAge time.Duration) *Stats {
	if maxAge <= 0 {
		maxAge = time.Hour
	}
	return &Stats{samples: make(map[string][]sample), maxAge: maxAge}
}

// Record adds one finished run of kind.
func (s *Stats) Record(kind string, d time.Duration, failed bool) {
	ms := max(d.Milliseconds(), 0)
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.samples[kind] = append(prune(s.samples[kind], now.Add(-s.maxAge)), sample{at: now, durationMs: ms, failed: failed})
}

// Snapshot aggregates every kind with samples inside the window.
func (s *Stats) Snapshot() map[string]KindStats {
	cutoff := time.Now().Add(-s.maxAge)

	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]KindStats)
	for kind, list := range s.samples {
		list = prune(list, cutoff)
		s.samples[kind] = list
		if len(list) == 0 {
			continue
		}
		out[kind] = aggregate(list)
	}
	return out
}

func aggregate(list []sample) KindStats {
	values := make([]int64, 0, len(list))
	var sum int64
	failed := 0
	for _, sm := range list {
		values = append(values, sm.durationMs)
		sum += sm.durationMs
		if sm.failed {
			failed++
		}
	}
	slices.Sort(values)
	return KindStats{
		Count:  len(values),
		Failed: failed,
		MinMs:  values[0],
		MaxMs:  values[len(values)-1],
		AvgMs:  float64(sum) / float64(len(values)),
		P50Ms:  percentile(values, 50),
		P95Ms:  percentile(values, 95),
		P99Ms:  percentile(values, 99),
	}
}

// prune drops samples older than cutoff in place.
func prune(list []sample, cutoff time.Time) []sample {
	return slices.DeleteFunc(list, func(sm sample) bool { return sm.at.Before(cutoff) })
}

// percentile interpolates linearly between the closest ranks.
func percentile(sorted []int64, pct float64) float64 {
	switch {
	case len(sorted) == 0:
		return 0
	case pct <= 0:
		return float64(sorted[0])
	case pct >= 100:
		return float64(sorted[len(sorted)-1])
	}
	rank := float64(len(sorted)-1) * pct / 100
	lo := int(rank)
	if lo+1 >= len(sorted) {
		return float64(sorted[lo])
	}
	frac := rank - float64(lo)
	return float64(sorted[lo]) + frac*float64(sorted[lo+1]-sorted[lo])
}
