package trackerclient

import (
	"errors"
	"fmt"
	"time"
)

// Kind classifies a tracker call failure into the closed set the Cache
// Engine and Tool-Loop Runtime switch on.
type Kind string

const (
	KindUnreachable  Kind = "unreachable"
	KindUnauthorized Kind = "unauthorized"
	KindForbidden    Kind = "forbidden"
	KindNotFound     Kind = "not_found"
	KindRateLimited  Kind = "rate_limited"
	KindMalformed    Kind = "malformed"
)

// Error is a typed tracker failure. RetryAfter is only meaningful when
// Kind == KindRateLimited.
type Error struct {
	Kind       Kind
	Op         string
	StatusCode int
	RetryAfter time.Duration
	Err        error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("tracker %s: %s (%s): %v", e.Op, e.Kind, httpStatus(e.StatusCode), e.Err)
	}
	return fmt.Sprintf("tracker %s: %s (%s)", e.Op, e.Kind, httpStatus(e.StatusCode))
}

func (e *Error) Unwrap() error { return e.Err }

func httpStatus(code int) string {
	if code == 0 {
		return "no response"
	}
	return fmt.Sprintf("HTTP %d", code)
}

// Retryable reports whether the failure is one the client's own retry
// policy handles (unreachable, rate limited). forbidden/not_found are
// never retried; they are surfaced as partial-data markers instead.
func (e *Error) Retryable() bool {
	return e.Kind == KindUnreachable || e.Kind == KindRateLimited
}

// IsKind reports whether err is a *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	var te *Error
	if errors.As(err, &te) {
		return te.Kind == kind
	}
	return false
}

func classifyStatus(op string, statusCode int, retryAfter time.Duration, body []byte) *Error {
	switch {
	case statusCode == 401:
		return &Error{Kind: KindUnauthorized, Op: op, StatusCode: statusCode, Err: fmt.Errorf("%s", string(body))}
	case statusCode == 403:
		return &Error{Kind: KindForbidden, Op: op, StatusCode: statusCode, Err: fmt.Errorf("%s", string(body))}
	case statusCode == 404:
		return &Error{Kind: KindNotFound, Op: op, StatusCode: statusCode, Err: fmt.Errorf("%s", string(body))}
	case statusCode == 429:
		return &Error{Kind: KindRateLimited, Op: op, StatusCode: statusCode, RetryAfter: retryAfter, Err: fmt.Errorf("%s", string(body))}
	case statusCode >= 500:
		return &Error{Kind: KindUnreachable, Op: op, StatusCode: statusCode, Err: fmt.Errorf("%s", string(body))}
	default:
		return &Error{Kind: KindMalformed, Op: op, StatusCode: statusCode, Err: fmt.Errorf("%s", string(body))}
	}
}
