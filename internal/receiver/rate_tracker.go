package receiver

import (
	"sync"
	"time"
)

const maxWindow = 60 // seconds of history kept

// RateTracker tracks records received per second and periodically reports
// the rate over 1s, 10s and 60s windows.
type RateTracker struct {
	mu             sync.Mutex
	counts         map[int64]int64 // unix second -> records received in it
	startTime      time.Time
	total          int64
	lastReportTime time.Time
	reportInterval time.Duration
	report         func(format string, args ...interface{})
	now            func() time.Time
	lastBucket     int64
}

// NewRateTracker returns a tracker that calls report at most once per
// reportInterval, from inside Track. A nil report disables reporting.
func NewRateTracker(reportInterval time.Duration, report func(format string, args ...interface{})) *RateTracker {
	return newRateTracker(reportInterval, report, time.Now)
}

func newRateTracker(reportInterval time.Duration, report func(format string, args ...interface{}), now func() time.Time) *RateTracker {
	start := now()
	return &RateTracker{
		counts:         make(map[int64]int64),
		startTime:      start,
		lastReportTime: start,
		reportInterval: reportInterval,
		report:         report,
		now:            now,
		lastBucket:     start.Unix(),
	}
}

// Track adds n records to the current second.
func (t *RateTracker) Track(n int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	key := now.Unix()
	t.counts[key] += int64(n)
	t.total += int64(n)
	if key != t.lastBucket {
		t.pruneLocked(now)
		t.lastBucket = key
	}

	if t.report != nil && now.Sub(t.lastReportTime) >= t.reportInterval {
		t.report("Records per second: %.2f (1s) | %.2f (10s) | %.2f (60s) | Total: %d",
			t.rateLocked(1, now), t.rateLocked(10, now), t.rateLocked(60, now), t.total)
		t.lastReportTime = now
	}
}

// Rate returns the average records/second over the last n one-second
// buckets, the current one included.
func (t *RateTracker) Rate(seconds int) float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.rateLocked(seconds, t.now())
}

func (t *RateTracker) rateLocked(seconds int, now time.Time) float64 {
	cutoff := now.Unix() - int64(seconds)
	var total int64
	for ts, count := range t.counts {
		if ts > cutoff {
			total += count
		}
	}

	// divide by the buckets the window covers; with less history than that,
	// by the buckets that exist
	buckets := int64(seconds)
	if seen := now.Unix() - t.startTime.Unix() + 1; seen < buckets {
		buckets = seen
	}
	if buckets < 1 {
		buckets = 1
	}
	return float64(total) / float64(buckets)
}

func (t *RateTracker) pruneLocked(now time.Time) {
	cutoff := now.Unix() - maxWindow
	for ts := range t.counts {
		if ts <= cutoff {
			delete(t.counts, ts)
		}
	}
}

func (t *RateTracker) Total() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.total
}

// RateSummary is a snapshot of the tracker.
type RateSummary struct {
	Rate1s      float64
	Rate10s     float64
	Rate60s     float64
	Total       int64
	RunningTime time.Duration
	AverageRate float64
}

func (t *RateTracker) Summary() RateSummary {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	running := now.Sub(t.startTime)
	s := RateSummary{
		Rate1s:      t.rateLocked(1, now),
		Rate10s:     t.rateLocked(10, now),
		Rate60s:     t.rateLocked(60, now),
		Total:       t.total,
		RunningTime: running,
	}
	if running > 0 {
		s.AverageRate = float64(t.total) / running.Seconds()
	}
	return s
}
