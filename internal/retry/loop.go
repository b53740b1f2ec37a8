package retry

import (
	"context"
	"time"
)

// Attempt is performed once per retry iteration. It returns the Outcome
// observed and, if the outcome represents a hard failure independent of
// classification (e.g. a context cancellation), an error to short-circuit
// the loop immediately.
type Attempt func(ctx context.Context, tryNumber int) (Outcome, error)

// Sleeper abstracts time.Sleep so tests can run the loop without
// actually waiting out the exponential backoff.
type Sleeper func(ctx context.Context, d time.Duration)

// RealSleeper sleeps for real, honoring context cancellation.
func RealSleeper(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}

// Loop drives Attempt up to nRetries times (first try inclusive, per
// spec.md §4.1: "n_retries=10 means up to 10 HTTP requests"). It returns
// the last Outcome observed and its Verdict; once retries are exhausted on
// a retryable outcome that Verdict is VerdictRetry with a nil error. The
// error is non-nil only when Attempt itself returned one, in which case
// the Verdict is VerdictFatal.
func Loop(ctx context.Context, nRetries int, sleep Sleeper, attempt Attempt) (Outcome, Verdict, error) {
	if nRetries < 1 {
		nRetries = 1
	}
	if sleep == nil {
		sleep = RealSleeper
	}
	var (
		last    Outcome
		verdict Verdict
	)
	for try := 1; try <= nRetries; try++ {
		outcome, err := attempt(ctx, try)
		if err != nil {
			return outcome, VerdictFatal, err
		}
		last = outcome
		verdict = Classify(outcome)
		if verdict != VerdictRetry {
			return last, verdict, nil
		}
		if try == nRetries {
			break
		}
		delay := NextDelay(try, outcome)
		RecordSleep(outcome, delay)
		sleep(ctx, delay)
	}
	return last, verdict, nil
}
