package rest

import (
	"errors"
	"fmt"

	"github.com/kbukum/httpkit/httpclient"
)

// StatusKind classifies a non-2xx response.
type StatusKind int

const (
	KindAuth StatusKind = iota
	KindNotFound
	KindRateLimit
	KindClient
	KindServer
)

// String returns the kind name.
func (k StatusKind) String() string {
	switch k {
	case KindAuth:
		return "auth"
	case KindNotFound:
		return "not_found"
	case KindRateLimit:
		return "rate_limit"
	case KindClient:
		return "client"
	case KindServer:
		return "server"
	default:
		return "unknown"
	}
}

// StatusError is returned for responses outside 2xx. The exchange itself
// succeeded; Body holds the raw response body.
type StatusError struct {
	StatusCode int
	Status     string
	Kind       StatusKind
	Retryable  bool
	Body       []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("rest: %s (HTTP %d)", e.Kind, e.StatusCode)
}

// ClassifyStatusCode converts a status code into a StatusError. It returns
// nil for 2xx.
func ClassifyStatusCode(statusCode int, body []byte) *StatusError {
	e := &StatusError{StatusCode: statusCode, Body: body}
	switch {
	case statusCode >= 200 && statusCode < 300:
		return nil
	case statusCode == 401 || statusCode == 403:
		e.Kind = KindAuth
	case statusCode == 404:
		e.Kind = KindNotFound
	case statusCode == 429:
		e.Kind, e.Retryable = KindRateLimit, true
	case statusCode >= 400 && statusCode < 500:
		e.Kind = KindClient
	default:
		e.Kind = KindServer
		e.Retryable = statusCode == 502 || statusCode == 503 || statusCode == 504
	}
	return e
}

func statusKind(err error) (StatusKind, bool) {
	var e *StatusError
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}

// IsNotFound reports a 404 response.
func IsNotFound(err error) bool { k, ok := statusKind(err); return ok && k == KindNotFound }

// IsAuth reports a 401 or 403 response.
func IsAuth(err error) bool { k, ok := statusKind(err); return ok && k == KindAuth }

// IsRateLimit reports a 429 response.
func IsRateLimit(err error) bool { k, ok := statusKind(err); return ok && k == KindRateLimit }

// IsServerError reports a 5xx response.
func IsServerError(err error) bool { k, ok := statusKind(err); return ok && k == KindServer }

// IsTimeout reports an idle or wait timeout from the engine.
func IsTimeout(err error) bool {
	return httpclient.IsAllTimeout(err) || httpclient.IsWaitTimeout(err)
}

// IsRetryable reports whether repeating the request may succeed: retryable
// status codes plus transport-level failures that happen before or during
// the exchange.
func IsRetryable(err error) bool {
	var e *StatusError
	if errors.As(err, &e) {
		return e.Retryable
	}
	return httpclient.IsConnect(err) ||
		httpclient.IsUnexpectedClose(err) ||
		httpclient.IsAllTimeout(err) ||
		httpclient.IsRejected(err)
}
