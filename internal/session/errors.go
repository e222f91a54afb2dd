package session

import (
	"context"
	"errors"
	"net"
	"strings"
	"time"
)

// RetryHinter is implemented by provider errors that carry an explicit
// retry-after delay, typically from a 429 response header.
type RetryHinter interface {
	RetryAfter() time.Duration
}

// retryAfterHint extracts an explicit retry delay from err, if any.
func retryAfterHint(err error) (time.Duration, bool) {
	var h RetryHinter
	if errors.As(err, &h) {
		if d := h.RetryAfter(); d > 0 {
			return d, true
		}
	}
	return 0, false
}

// isRetryable classifies a provider failure. Rate limits, overload and
// transient network errors are retried; everything else, in particular
// auth failures and cancellation, aborts the turn.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	msg := strings.ToLower(err.Error())
	if isAuthError(err) {
		return false
	}

	for _, marker := range []string{
		"rate limit",
		"rate_limit",
		"too many requests",
		"429",
		"overloaded",
		"overloaded_error",
		"internal server error",
		"bad gateway",
		"service unavailable",
		"gateway timeout",
		"500", "502", "503", "504",
		"connection reset",
		"connection refused",
		"timeout",
		"temporarily",
	} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// isAuthError reports whether the failure is a credential problem, which
// no amount of retrying fixes.
func isAuthError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{
		"401",
		"403",
		"unauthorized",
		"forbidden",
		"invalid api key",
		"invalid x-api-key",
		"authentication",
		"permission_error",
	} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
