package domain

import (
	"fmt"
	"strings"
)

// FailureType selects which canned failure a blocked request receives.
// Exactly one failure type is active at a time; the zero value is NotFound.
type FailureType uint8

const (
	// NotFound substitutes an HTTP 404 response.
	NotFound FailureType = iota
	// ServiceUnavailable substitutes an HTTP 503 response.
	ServiceUnavailable
	// RateLimitBurst substitutes an HTTP 429 response with a short Retry-After,
	// imitating a burst rate limit window.
	RateLimitBurst
	// RateLimitSustained substitutes an HTTP 429 response with a long
	// Retry-After, imitating a sustained rate limit window.
	RateLimitSustained
)

// String returns a stable string representation of the failure type.
func (t FailureType) String() string {
	switch t {
	case NotFound:
		return "notfound"
	case ServiceUnavailable:
		return "serviceunavailable"
	case RateLimitBurst:
		return "ratelimitburst"
	case RateLimitSustained:
		return "ratelimitsustained"
	default:
		return fmt.Sprintf("FailureType(%d)", t)
	}
}

// ParseFailureType converts a string into a FailureType.
// Accepts: "notfound", "serviceunavailable", "ratelimitburst",
// "ratelimitsustained" (case-insensitive).
func ParseFailureType(s string) (FailureType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "notfound":
		return NotFound, nil
	case "serviceunavailable":
		return ServiceUnavailable, nil
	case "ratelimitburst":
		return RateLimitBurst, nil
	case "ratelimitsustained":
		return RateLimitSustained, nil
	default:
		return 0, fmt.Errorf("unsupported FailureType: %q", s)
	}
}

// Valid reports whether t is one of the four defined failure types.
func (t FailureType) Valid() bool {
	switch t {
	case NotFound, ServiceUnavailable, RateLimitBurst, RateLimitSustained:
		return true
	default:
		return false
	}
}
