package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind classifies LLM errors.
type ErrorKind int

const (
	ErrConfig           ErrorKind = iota // misconfiguration
	ErrAdapter                           // marshal/unmarshal failure or unusable response
	ErrAuthentication                    // 401/403
	ErrNotFound                          // 404
	ErrInvalidRequest                    // 400
	ErrRateLimit                         // 429
	ErrServer                            // 500+ and transport failures
	ErrContextLength                     // input too large
	ErrContentFilter                     // blocked by safety filters
	ErrUnsupportedInput                  // e.g. image sent to a text-only model
	ErrCanceled                          // context canceled or deadline exceeded
)

var errorKindNames = [...]string{
	ErrConfig:           "config",
	ErrAdapter:          "adapter",
	ErrAuthentication:   "authentication",
	ErrNotFound:         "not_found",
	ErrInvalidRequest:   "invalid_request",
	ErrRateLimit:        "rate_limit",
	ErrServer:           "server",
	ErrContextLength:    "context_length",
	ErrContentFilter:    "content_filter",
	ErrUnsupportedInput: "unsupported_input",
	ErrCanceled:         "canceled",
}

func (k ErrorKind) String() string {
	if int(k) < len(errorKindNames) {
		return errorKindNames[k]
	}
	return fmt.Sprintf("unknown(%d)", k)
}

// Error is the library's error type.
type Error struct {
	Kind     ErrorKind
	Provider string
	Message  string
	Cause    error  // underlying error
	Raw      []byte // raw response body if available
}

func (e *Error) Error() string {
	if e.Provider != "" {
		return fmt.Sprintf("llm [%s] %s: %s", e.Kind, e.Provider, e.Message)
	}
	return fmt.Sprintf("llm [%s]: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) (ErrorKind, bool) {
	var llmErr *Error
	if errors.As(err, &llmErr) {
		return llmErr.Kind, true
	}
	return 0, false
}

// IsKind reports whether err's chain contains an *Error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}

// kindForStatus maps an HTTP status code to an ErrorKind.
func kindForStatus(status int) ErrorKind {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return ErrAuthentication
	case status == http.StatusNotFound:
		return ErrNotFound
	case status == http.StatusTooManyRequests:
		return ErrRateLimit
	case status == http.StatusRequestEntityTooLarge:
		return ErrContextLength
	case status == http.StatusUnsupportedMediaType:
		return ErrUnsupportedInput
	case status >= 400 && status < 500:
		return ErrInvalidRequest
	default:
		return ErrServer
	}
}

// transportError wraps a failure that happened before any response arrived.
func transportError(provider string, err error) error {
	kind := ErrServer
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		kind = ErrCanceled
	}
	return &Error{Kind: kind, Provider: provider, Message: err.Error(), Cause: err}
}
