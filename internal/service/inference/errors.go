package inference

import (
	"errors"
	"fmt"
)

// Kind classifies an inference failure. Only Exhausted and NoProviders
// ever reach callers of the rotation client; the rest are recovered by
// failover, cooldown or backoff inside it.
type Kind string

const (
	KindRateLimited  Kind = "rate_limited"
	KindUnauthorized Kind = "unauthorized"
	KindServerError  Kind = "server_error"
	KindTimeout      Kind = "timeout"
	KindBadResponse  Kind = "bad_response"
	KindExhausted    Kind = "exhausted"
	KindNoProviders  Kind = "no_providers"
)

// Error carries the failure kind and the backend that produced it.
type Error struct {
	Kind     Kind
	Provider string
	Status   int
	Err      error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("inference %s [%s]: %v", e.Kind, e.Provider, e.Err)
	}
	if e.Status != 0 {
		return fmt.Sprintf("inference %s [%s]: HTTP %d", e.Kind, e.Provider, e.Status)
	}
	return fmt.Sprintf("inference %s [%s]", e.Kind, e.Provider)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf extracts the failure kind, or KindBadResponse for foreign errors.
func KindOf(err error) Kind {
	var ie *Error
	if errors.As(err, &ie) {
		return ie.Kind
	}
	return KindBadResponse
}

// IsExhausted reports whether the rotation client gave up on the call.
func IsExhausted(err error) bool {
	k := KindOf(err)
	return k == KindExhausted || k == KindNoProviders
}
