package biz

import (
	"errors"
	"fmt"
	"time"
)

// RateLimitExceededError reports a denied admission. It is a normal, expected
// outcome rather than an internal fault, and always carries retry guidance.
type RateLimitExceededError struct {
	Policy       string // policy name ("api", "auth")
	Limit        int64  // configured points budget
	Current      int64  // observed count including this consumption
	MsBeforeNext int64  // milliseconds until the caller may retry
}

// Error implements the error interface.
func (e *RateLimitExceededError) Error() string {
	return fmt.Sprintf("rate limit exceeded: policy=%s current=%d limit=%d retry_after=%dms",
		e.Policy, e.Current, e.Limit, e.MsBeforeNext)
}

// RetryAfter returns the wait hint as a duration.
func (e *RateLimitExceededError) RetryAfter() time.Duration {
	return time.Duration(e.MsBeforeNext) * time.Millisecond
}

// AsRateLimitExceeded extracts a RateLimitExceededError from err's chain.
func AsRateLimitExceeded(err error) (*RateLimitExceededError, bool) {
	var e *RateLimitExceededError
	ok := errors.As(err, &e)
	return e, ok
}

// RegionUnavailableError reports a cross-region call refused before any
// network attempt because the target is unknown or marked inactive.
type RegionUnavailableError struct {
	Region string
}

// Error implements the error interface.
func (e *RegionUnavailableError) Error() string {
	return fmt.Sprintf("region unavailable: %s", e.Region)
}

// AsRegionUnavailable extracts a RegionUnavailableError from err's chain.
func AsRegionUnavailable(err error) (*RegionUnavailableError, bool) {
	var e *RegionUnavailableError
	ok := errors.As(err, &e)
	return e, ok
}
