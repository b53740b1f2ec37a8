package retry

import (
	"time"

	"github.com/azstorex/azstorage/internal/metrics"
)

// RecordSleep attributes a single backoff sleep of duration d to the
// correct counter based on the Outcome that triggered it. Loop callers
// that want §6 observability call this alongside NextDelay.
func RecordSleep(o Outcome, d time.Duration) {
	ms := d.Milliseconds()
	if o.HasRetryAfter {
		metrics.RecordThrottled(ms)
		return
	}
	metrics.RecordTimeout(ms)
}
