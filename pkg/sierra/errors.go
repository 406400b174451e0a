package sierra

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"syscall"
)

// Kind classifies an Error.
type Kind int

const (
	// KindConfig reports invalid constructor or call arguments. Always
	// returned before any network I/O.
	KindConfig Kind = iota + 1

	// KindValidation reports a malformed record identifier or filter.
	KindValidation

	// KindAuth reports a failed token exchange.
	KindAuth

	// KindRequest reports a failed resource call.
	KindRequest
)

func (k Kind) String() string {
	switch k {
	case KindConfig:
		return "config"
	case KindValidation:
		return "validation"
	case KindAuth:
		return "auth"
	case KindRequest:
		return "request"
	default:
		return "unknown"
	}
}

// Sentinels for errors.Is matching against an *Error of the same Kind.
var (
	ErrConfig     = errors.New("sierra: configuration error")
	ErrValidation = errors.New("sierra: validation error")
	ErrAuth       = errors.New("sierra: authentication error")
	ErrRequest    = errors.New("sierra: request error")
)

var (
	// ErrNotImplemented is returned by catalogued endpoints the client does
	// not support yet.
	ErrNotImplemented = errors.New("sierra: not implemented")

	// ErrInvalidPreparedRequest is returned when the executor is handed a
	// nil prepared request.
	ErrInvalidPreparedRequest = errors.New("sierra: invalid prepared request")
)

const (
	msgMissingAuthArgument  = "Missing Sierra authentication argument."
	msgInvalidAuthorization = "Invalid authorization. Argument must be an instance of `Token` object."
	msgMissingAccessToken   = "Missing access_token parameter in the authenticating server's response."
	msgMissingExpiresIn     = "Missing expires_in parameter in the server's response."
	msgInvalidSierraNumber  = "Invalid Sierra number passed."
	msgInvalidLocation      = "Invalid location code passed."
	msgInvalidBodyType      = "Invalid type of the data argument; must be a str or dict."
)

// Error is the single error type surfaced by this package.
//
// Request errors caused by an HTTP status carry StatusCode and Body. Errors
// caused by the transport wrap the underlying error.
type Error struct {
	Kind    Kind
	Message string

	// StatusCode and Body are set when the server answered with an error
	// status.
	StatusCode int
	Body       []byte

	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the Kind sentinels (ErrConfig, ErrAuth...).
func (e *Error) Is(target error) bool {
	switch target {
	case ErrConfig:
		return e.Kind == KindConfig
	case ErrValidation:
		return e.Kind == KindValidation
	case ErrAuth:
		return e.Kind == KindAuth
	case ErrRequest:
		return e.Kind == KindRequest
	}
	return false
}

func configError(msg string, err error) *Error {
	return &Error{Kind: KindConfig, Message: msg, Err: err}
}

func validationError(msg string) *Error {
	return &Error{Kind: KindValidation, Message: msg}
}

// ============================================================================
// Transport failure classification
// ============================================================================

const (
	failureTimeout    = "timeout"
	failureRefused    = "connection refused"
	failureConnection = "connection error"
)

// classifyTransportError names the category of a transport failure. The
// boolean is true for the specific timeout and connection classes, false
// when the category is only the Go type of the root cause.
//
// Timeouts are checked before connection errors: a dial timeout is both.
func classifyTransportError(err error) (string, bool) {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return failureTimeout, true
	}

	if errors.Is(err, syscall.ECONNREFUSED) {
		return failureRefused, true
	}

	var opErr *net.OpError
	var dnsErr *net.DNSError
	if errors.As(err, &opErr) ||
		errors.As(err, &dnsErr) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, io.ErrUnexpectedEOF) {
		return failureConnection, true
	}

	return rootType(err), false
}

// rootType returns the Go type of the innermost wrapped error.
func rootType(err error) string {
	for {
		next := errors.Unwrap(err)
		if next == nil {
			return fmt.Sprintf("%T", err)
		}
		err = next
	}
}

// authFailure maps a token exchange failure onto an authentication error.
func authFailure(err error) *Error {
	category, specific := classifyTransportError(err)
	if specific {
		return &Error{Kind: KindAuth, Message: "Trouble connecting: " + category, Err: err}
	}
	return &Error{Kind: KindAuth, Message: "Unexpected error occurred: " + category, Err: err}
}

// requestFailure maps a resource call failure onto a request error.
func requestFailure(err error) *Error {
	category, specific := classifyTransportError(err)
	if specific {
		return &Error{Kind: KindRequest, Message: "Connection Error: " + category, Err: err}
	}
	return &Error{Kind: KindRequest, Message: "Unexpected request error: " + category, Err: err}
}
