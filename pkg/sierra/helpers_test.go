package sierra

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/sierra/internal/sierratest"
)

// doerFunc adapts a function to the Doer interface.
type doerFunc func(*http.Request) (*http.Response, error)

func (f doerFunc) Do(r *http.Request) (*http.Response, error) { return f(r) }

// countingDoer counts calls and answers each with the given function.
type countingDoer struct {
	calls  atomic.Int32
	closed atomic.Int32
	fn     func(*http.Request) (*http.Response, error)
}

func (d *countingDoer) Do(r *http.Request) (*http.Response, error) {
	d.calls.Add(1)
	return d.fn(r)
}

func (d *countingDoer) CloseIdleConnections() { d.closed.Add(1) }

func newResponse(r *http.Request, status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Status:     fmt.Sprintf("%d %s", status, http.StatusText(status)),
		Header:     http.Header{"Content-Type": {"application/json"}},
		Body:       io.NopCloser(strings.NewReader(body)),
		Request:    r,
	}
}

func tokenDoer(body string) *countingDoer {
	return &countingDoer{fn: func(r *http.Request) (*http.Response, error) {
		return newResponse(r, http.StatusOK, body), nil
	}}
}

// fixedClock returns a clock stuck at t.
func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

// newServerToken exchanges the default credentials against srv.
func newServerToken(t *testing.T, srv *sierratest.Server, opts ...TokenOption) *Token {
	t.Helper()

	opts = append([]TokenOption{
		WithAPIVersion(srv.APIVersion()),
		WithHTTPClient(srv.Client()),
	}, opts...)

	token, err := NewToken(context.Background(), srv.ClientID(), sierratest.DefaultClientSecret, srv.URL(), opts...)
	require.NoError(t, err)
	return token
}

// newServerSession returns a session against a fresh fake server.
func newServerSession(t *testing.T, srvOpts []sierratest.Option, opts ...SessionOption) (*Session, *sierratest.Server) {
	t.Helper()

	srv := sierratest.New(t, srvOpts...)
	s, err := NewSession(newServerToken(t, srv), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s, srv
}

func requireKind(t *testing.T, err error, sentinel error, message string) *Error {
	t.Helper()

	require.Error(t, err)
	require.ErrorIs(t, err, sentinel)

	var serr *Error
	require.ErrorAs(t, err, &serr)
	if message != "" {
		require.Equal(t, message, serr.Message)
	}
	return serr
}
