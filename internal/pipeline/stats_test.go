package pipeline

import (
	"testing"
	"time"
)

func TestStats_Percentiles(t *testing.T) {
	stats := NewStats(time.Hour)
	for _, ms := range []int64{100, 200, 300, 400, 500} {
		stats.Record("commit", time.Duration(ms)*time.Millisecond, false)
	}
	stats.Record("edit-text", 10*time.Millisecond, true)

	snap := stats.Snapshot()
	c := snap["commit"]
	if c.Count != 5 {
		t.Fatalf("expected count=5, got %d", c.Count)
	}
	if c.MinMs != 100 || c.MaxMs != 500 {
		t.Fatalf("expected min=100 max=500, got %d %d", c.MinMs, c.MaxMs)
	}
	if c.AvgMs != 300 {
		t.Fatalf("expected avg=300, got %f", c.AvgMs)
	}
	if c.P50Ms != 300 {
		t.Fatalf("expected p50=300, got %f", c.P50Ms)
	}
	if c.P95Ms != 480 {
		t.Fatalf("expected p95=480, got %f", c.P95Ms)
	}
	if c.P99Ms != 496 {
		t.Fatalf("expected p99=496, got %f", c.P99Ms)
	}
	if e := snap["edit-text"]; e.Count != 1 || e.Failed != 1 {
		t.Fatalf("expected one failed edit, got %+v", e)
	}
}

func TestStats_PrunesExpiredSamples(t *testing.T) {
	stats := NewStats(10 * time.Millisecond)
	stats.Record("commit", 100*time.Millisecond, false)
	time.Sleep(25 * time.Millisecond)

	if _, ok := stats.Snapshot()["commit"]; ok {
		t.Fatal("expected commit stats to be pruned")
	}

	stats.Record("commit", 200*time.Millisecond, false)
	c := stats.Snapshot()["commit"]
	if c.Count != 1 {
		t.Fatalf("expected count=1 for fresh sample, got %d", c.Count)
	}
	if c.MinMs != 200 || c.MaxMs != 200 {
		t.Fatalf("expected min=max=200, got min=%d max=%d", c.MinMs, c.MaxMs)
	}
}

func TestStats_ClampsNegativeDuration(t *testing.T) {
	stats := NewStats(time.Hour)
	stats.Record("commit", -time.Second, false)
	c := stats.Snapshot()["commit"]
	if c.Count != 1 {
		t.Fatalf("expected count=1, got %d", c.Count)
	}
	if c.MinMs != 0 || c.MaxMs != 0 {
		t.Fatalf("expected clamped duration=0, got min=%d max=%d", c.MinMs, c.MaxMs)
	}
}
