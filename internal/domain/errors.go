package domain

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrAlreadyExists     = errors.New("already exists")
	ErrInvalidInput      = errors.New("invalid input")
	ErrNoCredential      = errors.New("no credential available")
	ErrUnsupportedOp     = errors.New("operation not supported by provider")
	ErrFormatConversion  = errors.New("format conversion error")
	ErrStreamIdleTimeout = errors.New("stream idle timeout")
)

// ProxyError is a client-visible failure with an HTTP status.
type ProxyError struct {
	Status  int
	Message string
	Err     error
}

func (e *ProxyError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ProxyError) Unwrap() error { return e.Err }

func NewProxyError(status int, message string) *ProxyError {
	return &ProxyError{Status: status, Message: message}
}

func BadRequest(format string, args ...any) *ProxyError {
	return &ProxyError{Status: http.StatusBadRequest, Message: fmt.Sprintf(format, args...)}
}

func NotFound(message string) *ProxyError {
	return &ProxyError{Status: http.StatusNotFound, Message: message}
}

func MethodNotAllowed(format string, args ...any) *ProxyError {
	return &ProxyError{Status: http.StatusMethodNotAllowed, Message: fmt.Sprintf(format, args...)}
}

func Unauthorized(message string) *ProxyError {
	return &ProxyError{Status: http.StatusUnauthorized, Message: message}
}

func Internal(message string, err error) *ProxyError {
	return &ProxyError{Status: http.StatusInternalServerError, Message: message, Err: err}
}

// UpstreamPassthroughError is an upstream failure relayed verbatim so SDK
// clients keep seeing the vendor error schema.
type UpstreamPassthroughError struct {
	Status  int
	Headers http.Header
	Body    []byte
}

func (e *UpstreamPassthroughError) Error() string {
	return fmt.Sprintf("upstream error %d: %s", e.Status, truncate(string(e.Body), 200))
}

func PassthroughFromStatus(status int, message string) *UpstreamPassthroughError {
	body := fmt.Sprintf(`{"error":{"message":%q,"type":"proxy_error"}}`, message)
	headers := http.Header{}
	headers.Set("Content-Type", "application/json")
	return &UpstreamPassthroughError{Status: status, Headers: headers, Body: []byte(body)}
}

func ServiceUnavailable(message string) *UpstreamPassthroughError {
	return PassthroughFromStatus(http.StatusServiceUnavailable, message)
}

// AttemptFailure is what a failed upstream attempt hands back to the pool:
// the error to relay plus an optional mark against the credential. A nil
// Mark halts the selection loop (not retriable on another credential).
type AttemptFailure struct {
	Passthrough *UpstreamPassthroughError
	Mark        *DisallowMark
}

func (f *AttemptFailure) Error() string {
	if f.Passthrough != nil {
		return f.Passthrough.Error()
	}
	return "upstream attempt failed"
}

// TransportErrorKind classifies outbound transport failures.
type TransportErrorKind string

var (
	TransportTimeout     TransportErrorKind = "timeout"
	TransportReadTimeout TransportErrorKind = "read_timeout"
	TransportConnect     TransportErrorKind = "connect"
	TransportDNS         TransportErrorKind = "dns"
	TransportTLS         TransportErrorKind = "tls"
	TransportOther       TransportErrorKind = "other"
)

// TransportError is a network-level failure before any HTTP status exists.
type TransportError struct {
	Kind    TransportErrorKind
	Message string
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s: %s", e.Kind, e.Message)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
