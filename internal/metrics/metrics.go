// Package metrics holds the process-global performance counters of
// spec.md §6: ms spent waiting on throttling (Retry-After) and on
// exponential backoffs, plus counts of each. These are process-wide atomics
// initialized once, matching spec.md §9's "Global mutable state" design
// note (b): "use atomic adds for the ms/count fields; no lock."
package metrics

import "sync/atomic"

// Counters is a snapshot of the process-global performance counters.
type Counters struct {
	MsWaitThrottled int64
	MsWaitTimeouts  int64
	CountThrottled  int64
	CountTimeouts   int64
}

var (
	msWaitThrottled int64
	msWaitTimeouts  int64
	countThrottled  int64
	countTimeouts   int64
)

// RecordThrottled records time spent sleeping because of a Retry-After
// header (service-initiated throttling).
func RecordThrottled(ms int64) {
	atomic.AddInt64(&msWaitThrottled, ms)
	atomic.AddInt64(&countThrottled, 1)
}

// RecordTimeout records time spent sleeping in an exponential backoff,
// i.e. any retry sleep whose triggering outcome carried no Retry-After
// header (transport failures and retryable HTTP statuses alike).
func RecordTimeout(ms int64) {
	atomic.AddInt64(&msWaitTimeouts, ms)
	atomic.AddInt64(&countTimeouts, 1)
}

// Get snapshots the current counters.
func Get() Counters {
	return Counters{
		MsWaitThrottled: atomic.LoadInt64(&msWaitThrottled),
		MsWaitTimeouts:  atomic.LoadInt64(&msWaitTimeouts),
		CountThrottled:  atomic.LoadInt64(&countThrottled),
		CountTimeouts:   atomic.LoadInt64(&countTimeouts),
	}
}

// Reset zeroes every counter.
func Reset() {
	atomic.StoreInt64(&msWaitThrottled, 0)
	atomic.StoreInt64(&msWaitTimeouts, 0)
	atomic.StoreInt64(&countThrottled, 0)
	atomic.StoreInt64(&countTimeouts, 0)
}
