package sierra

import (
	"context"
	"net"
	"net/http"
	"time"
)

// Doer sends one HTTP request. *http.Client satisfies it; tests substitute
// their own.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Timeout bounds how long a call may wait on the server. Connect limits
// connection setup and Read limits waiting for the response. The zero
// value waits forever.
type Timeout struct {
	Connect time.Duration
	Read    time.Duration
}

// DefaultTimeout is used by tokens and sessions unless overridden.
var DefaultTimeout = Timeout{Connect: 3 * time.Second, Read: 3 * time.Second}

// UniformTimeout uses d for both the connect and the read phase.
func UniformTimeout(d time.Duration) Timeout {
	return Timeout{Connect: d, Read: d}
}

// IsZero reports whether t disables timeouts.
func (t Timeout) IsZero() bool {
	return t.Connect <= 0 && t.Read <= 0
}

// Total is the overall deadline applied to a single call.
func (t Timeout) Total() time.Duration {
	return t.Connect + t.Read
}

// apply derives a context carrying the call deadline. Transports that do
// not know about phases still honour the overall bound this way.
func (t Timeout) apply(ctx context.Context) (context.Context, context.CancelFunc) {
	if t.IsZero() {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, t.Total())
}

// NewHTTPClient returns an *http.Client whose dialer and response header
// wait are bounded by t.
func NewHTTPClient(t Timeout) *http.Client {
	tr := http.DefaultTransport.(*http.Transport).Clone()
	tr.DialContext = (&net.Dialer{
		Timeout:   t.Connect,
		KeepAlive: 30 * time.Second,
	}).DialContext
	tr.ResponseHeaderTimeout = t.Read

	return &http.Client{Transport: tr}
}
