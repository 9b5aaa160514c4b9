package inference

import "time"

// DefaultRetrySchedule is the escalating delay ladder applied to server
// errors and timeouts: entry n is the wait after the n-th failed attempt,
// and the ladder length caps how many retries a single call gets.
var DefaultRetrySchedule = []time.Duration{5 * time.Second, 15 * time.Second, 45 * time.Second}

// RetryDelay maps (failure kind, attempt number) to the wait before the
// next attempt. attempt is 1-based: the number of failed attempts so far
// on this call. ok=false means the schedule is exhausted and the call
// must fail with KindExhausted.
//
// Rate-limit rejections and bad keys never consume retry budget: the
// client fails over to another backend immediately, so their delay is
// always zero.
func RetryDelay(kind Kind, attempt int, schedule []time.Duration) (delay time.Duration, ok bool) {
	switch kind {
	case KindRateLimited, KindUnauthorized:
		return 0, true
	case KindServerError, KindTimeout, KindBadResponse:
		if attempt < 1 || attempt > len(schedule) {
			return 0, false
		}
		return schedule[attempt-1], true
	default:
		return 0, false
	}
}
