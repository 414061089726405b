package httpclient

import (
	"errors"
	"fmt"
)

// ErrorCode classifies engine failures.
type ErrorCode int

const (
	// ErrCodeConnect indicates the connection could not be negotiated. See Phase.
	ErrCodeConnect ErrorCode = iota
	// ErrCodeAllTimeout indicates the idle guard fired: no bytes moved for IdleTimeout.
	ErrCodeAllTimeout
	// ErrCodeWaitTimeout indicates the caller stopped waiting. The request may still complete.
	ErrCodeWaitTimeout
	// ErrCodeUnexpectedClose indicates the peer closed before a full response arrived.
	ErrCodeUnexpectedClose
	// ErrCodeDecode indicates the ContentHandler rejected the response body.
	ErrCodeDecode
	// ErrCodeEncode indicates the ContentHolder could not produce the request body.
	ErrCodeEncode
	// ErrCodeClosed indicates the client or its cache was closed.
	ErrCodeClosed
	// ErrCodeValidation indicates a malformed request or configuration.
	ErrCodeValidation
	// ErrCodeProtocol indicates the peer spoke malformed HTTP/1.x.
	ErrCodeProtocol
	// ErrCodeContentTooLarge indicates the response body exceeded MaxContentLength.
	ErrCodeContentTooLarge
	// ErrCodeRejected indicates a resilience gate (circuit breaker, rate limiter) refused the request.
	ErrCodeRejected
)

// String returns the error code name.
func (c ErrorCode) String() string {
	switch c {
	case ErrCodeConnect:
		return "connect"
	case ErrCodeAllTimeout:
		return "all_timeout"
	case ErrCodeWaitTimeout:
		return "wait_timeout"
	case ErrCodeUnexpectedClose:
		return "unexpected_close"
	case ErrCodeDecode:
		return "decode"
	case ErrCodeEncode:
		return "encode"
	case ErrCodeClosed:
		return "closed"
	case ErrCodeValidation:
		return "validation"
	case ErrCodeProtocol:
		return "protocol"
	case ErrCodeContentTooLarge:
		return "content_too_large"
	case ErrCodeRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Phase names the negotiation step a connect failure happened in.
type Phase string

const (
	PhaseNone      Phase = ""
	PhaseTransport Phase = "transport"
	PhaseProxy     Phase = "proxy"
	PhaseTLS       Phase = "tls"
)

// Error is a classified engine failure.
type Error struct {
	// Code classifies the error.
	Code ErrorCode
	// Phase is set for ErrCodeConnect.
	Phase Phase
	// Authority is the target the request was bound to, if known.
	Authority string
	// Message describes the error.
	Message string
	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	code := e.Code.String()
	if e.Phase != PhaseNone {
		code += "(" + string(e.Phase) + ")"
	}
	if e.Authority != "" {
		return fmt.Sprintf("httpclient: %s %s: %s", code, e.Authority, msg)
	}
	return fmt.Sprintf("httpclient: %s: %s", code, msg)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// sentinelError is a shared failure value with no per-occurrence state.
// Its fields cannot be changed from outside the package; errors.As into
// *Error yields a private copy.
type sentinelError struct {
	code ErrorCode
	msg  string
}

func (s *sentinelError) Error() string {
	return s.asError().Error()
}

func (s *sentinelError) asError() *Error {
	return &Error{Code: s.code, Message: s.msg}
}

// As lets errors.As and the IsX helpers classify the sentinel like any
// other *Error.
func (s *sentinelError) As(target any) bool {
	if t, ok := target.(**Error); ok {
		*t = s.asError()
		return true
	}
	return false
}

var (
	errAllTimeout   error = &sentinelError{code: ErrCodeAllTimeout, msg: "connection idle timeout"}
	errCacheClosed  error = &sentinelError{code: ErrCodeClosed, msg: "connection cache closed"}
	errClientClosed error = &sentinelError{code: ErrCodeClosed, msg: "client closed"}
)

// Shared failure values, returned as-is for every occurrence: compare with
// errors.Is. Each classifies as an *Error through errors.As.
var (
	ErrAllTimeout   = errAllTimeout
	ErrCacheClosed  = errCacheClosed
	ErrClientClosed = errClientClosed
)

func newConnectError(phase Phase, authority Authority, err error) *Error {
	return &Error{
		Code:      ErrCodeConnect,
		Phase:     phase,
		Authority: authority.String(),
		Message:   err.Error(),
		Err:       err,
	}
}

func newError(code ErrorCode, authority Authority, err error) *Error {
	e := &Error{Code: code, Authority: authority.String(), Err: err}
	if err != nil {
		e.Message = err.Error()
	}
	return e
}

func newErrorf(code ErrorCode, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

func hasCode(err error, code ErrorCode) bool {
	var e *Error
	return errors.As(err, &e) && e.Code == code
}

// IsConnect reports whether err is a connect failure.
func IsConnect(err error) bool { return hasCode(err, ErrCodeConnect) }

// ConnectPhase returns the failed negotiation phase, or PhaseNone when err
// is not a connect failure.
func ConnectPhase(err error) Phase {
	var e *Error
	if errors.As(err, &e) && e.Code == ErrCodeConnect {
		return e.Phase
	}
	return PhaseNone
}

// IsAllTimeout reports whether the idle guard fired.
func IsAllTimeout(err error) bool { return hasCode(err, ErrCodeAllTimeout) }

// IsWaitTimeout reports whether the caller's wait expired.
func IsWaitTimeout(err error) bool { return hasCode(err, ErrCodeWaitTimeout) }

// IsUnexpectedClose reports whether the peer closed mid-response.
func IsUnexpectedClose(err error) bool { return hasCode(err, ErrCodeUnexpectedClose) }

// IsDecode reports whether the ContentHandler failed.
func IsDecode(err error) bool { return hasCode(err, ErrCodeDecode) }

// IsEncode reports whether the ContentHolder failed.
func IsEncode(err error) bool { return hasCode(err, ErrCodeEncode) }

// IsClosed reports whether the client or cache was closed.
func IsClosed(err error) bool { return hasCode(err, ErrCodeClosed) }

// IsValidation reports whether the request or configuration was rejected as malformed.
func IsValidation(err error) bool { return hasCode(err, ErrCodeValidation) }

// IsProtocol reports whether the peer sent malformed HTTP.
func IsProtocol(err error) bool { return hasCode(err, ErrCodeProtocol) }

// IsContentTooLarge reports whether the response exceeded MaxContentLength.
func IsContentTooLarge(err error) bool { return hasCode(err, ErrCodeContentTooLarge) }

// IsRejected reports whether a resilience gate refused the request.
func IsRejected(err error) bool { return hasCode(err, ErrCodeRejected) }

// Outcome returns the metric label for err: "ok" for nil, else the code name.
func Outcome(err error) string {
	if err == nil {
		return "ok"
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code.String()
	}
	return "unknown"
}
