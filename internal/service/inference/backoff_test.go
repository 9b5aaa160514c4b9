package inference

import (
	"testing"
	"time"
)

func TestRetryDelaySchedule(t *testing.T) {
	schedule := []time.Duration{5 * time.Second, 15 * time.Second, 45 * time.Second}

	cases := []struct {
		name    string
		kind    Kind
		attempt int
		delay   time.Duration
		ok      bool
	}{
		{"server error first attempt", KindServerError, 1, 5 * time.Second, true},
		{"server error second attempt", KindServerError, 2, 15 * time.Second, true},
		{"server error third attempt", KindServerError, 3, 45 * time.Second, true},
		{"server error exhausted", KindServerError, 4, 0, false},
		{"timeout walks same ladder", KindTimeout, 2, 15 * time.Second, true},
		{"bad response walks same ladder", KindBadResponse, 1, 5 * time.Second, true},
		{"rate limit never delays", KindRateLimited, 7, 0, true},
		{"unauthorized never delays", KindUnauthorized, 1, 0, true},
		{"exhausted is terminal", KindExhausted, 1, 0, false},
		{"zero attempt rejected", KindServerError, 0, 0, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			delay, ok := RetryDelay(tc.kind, tc.attempt, schedule)
			if delay != tc.delay || ok != tc.ok {
				t.Fatalf("RetryDelay(%s, %d) = (%v, %v), want (%v, %v)",
					tc.kind, tc.attempt, delay, ok, tc.delay, tc.ok)
			}
		})
	}
}
