// Package receiver holds the bookkeeping shared by the OTLP logs receivers
// in cmd/: counting what arrives and how fast.
package receiver

import (
	"sync"
	"time"

	cuckoo "github.com/panmari/cuckoofilter"
	collectorlogs "go.opentelemetry.io/proto/otlp/collector/logs/v1"
)

// LogCounter counts log records in OTLP export requests. Distinct bodies are
// tracked approximately with a cuckoo filter, which shows how much of the
// stream a deduplicating pipeline could collapse.
type LogCounter struct {
	mu       sync.Mutex
	bodies   *cuckoo.Filter
	records  int64
	distinct int64
	requests int64
	rates    *RateTracker
}

func NewLogCounter(capacity uint, reportInterval time.Duration, report func(format string, args ...interface{})) *LogCounter {
	return &LogCounter{
		bodies: cuckoo.NewFilter(capacity),
		rates:  NewRateTracker(reportInterval, report),
	}
}

// Process counts every record in req and returns how many there were.
func (c *LogCounter) Process(req *collectorlogs.ExportLogsServiceRequest) int {
	n := 0
	c.mu.Lock()
	for _, resource := range req.GetResourceLogs() {
		for _, scope := range resource.GetScopeLogs() {
			for _, rec := range scope.GetLogRecords() {
				n++
				body := []byte(rec.GetBody().GetStringValue())
				if !c.bodies.Lookup(body) && c.bodies.Insert(body) {
					c.distinct++
				}
			}
		}
	}
	c.records += int64(n)
	c.requests++
	c.mu.Unlock()

	c.rates.Track(n)
	return n
}

// Counts returns records received, distinct bodies seen, and export requests.
func (c *LogCounter) Counts() (records, distinct, requests int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.records, c.distinct, c.requests
}

func (c *LogCounter) Rates() *RateTracker {
	return c.rates
}
