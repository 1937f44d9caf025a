package provider

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

// Kind classifies an upstream provider failure. Callers branch on it to
// decide whether to degrade gracefully (rate limits) or fail the request.
type Kind string

const (
	// KindRateLimited marks 429 / quota-exhausted responses. Multi-agent
	// fan-outs continue with the remaining agents when one backend reports it.
	KindRateLimited Kind = "rate_limited"
	// KindTimeout marks deadline-exceeded failures.
	KindTimeout Kind = "timeout"
	// KindUnavailable marks connection-refused and 5xx upstream failures.
	KindUnavailable Kind = "unavailable"
	// KindUnknown is everything else.
	KindUnknown Kind = "unknown"
)

// Error wraps an upstream provider failure with its classification and the
// backend that produced it.
type Error struct {
	// Kind is the failure classification.
	Kind Kind
	// Backend names the provider that failed.
	Backend Backend
	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("provider %s: %s: %v", e.Backend, e.Kind, e.Err)
}

// Unwrap exposes the underlying error for errors.Is / errors.As.
func (e *Error) Unwrap() error { return e.Err }

// rateLimitMarkers are substrings observed in 429 / quota errors across the
// OpenAI, Azure, Ollama, and Gemini SDKs. String matching is the only common
// denominator since the SDKs do not share a typed error for this.
var rateLimitMarkers = []string{
	"429",
	"rate limit",
	"rate_limit",
	"ratelimit",
	"insufficient_quota",
	"quota exceeded",
	"resource_exhausted",
	"too many requests",
}

// unavailableMarkers are substrings observed in connectivity and 5xx errors.
var unavailableMarkers = []string{
	"connection refused",
	"no such host",
	"502",
	"503",
	"bad gateway",
	"service unavailable",
	"server overloaded",
	"eof",
}

// Classify wraps err in an *Error carrying its Kind. A nil err returns nil.
// Already-classified errors pass through unchanged.
func Classify(backend Backend, err error) error {
	if err == nil {
		return nil
	}
	var pe *Error
	if errors.As(err, &pe) {
		return err
	}
	return &Error{Kind: kindOf(err), Backend: backend, Err: err}
}

// kindOf inspects err and picks the closest Kind.
func kindOf(err error) Kind {
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTimeout
	}

	msg := strings.ToLower(err.Error())
	for _, marker := range rateLimitMarkers {
		if strings.Contains(msg, marker) {
			return KindRateLimited
		}
	}
	for _, marker := range unavailableMarkers {
		if strings.Contains(msg, marker) {
			return KindUnavailable
		}
	}
	if strings.Contains(msg, "timeout") || strings.Contains(msg, "timed out") {
		return KindTimeout
	}
	return KindUnknown
}

// KindOf returns the classification of err, or KindUnknown for unclassified
// errors. Nil errors have no kind; callers must check for nil first.
func KindOf(err error) Kind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return kindOf(err)
}

// IsRateLimited reports whether err classifies as a rate-limit failure.
func IsRateLimited(err error) bool {
	return err != nil && KindOf(err) == KindRateLimited
}
