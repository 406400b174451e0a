package sierra

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"syscall"
	"testing"

	"github.com/stretchr/testify/require"
)

// timeoutErr is a net.Error that reports a timeout.
type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestErrorKinds(t *testing.T) {
	t.Parallel()

	sentinels := map[Kind]error{
		KindConfig:     ErrConfig,
		KindValidation: ErrValidation,
		KindAuth:       ErrAuth,
		KindRequest:    ErrRequest,
	}

	for kind, sentinel := range sentinels {
		err := fmt.Errorf("wrapped: %w", &Error{Kind: kind, Message: "x"})
		for other, otherSentinel := range sentinels {
			require.Equal(t, kind == other, errors.Is(err, otherSentinel), "%s vs %s", kind, other)
		}
		require.ErrorIs(t, err, sentinel)
	}

	require.Equal(t, "config", KindConfig.String())
	require.Equal(t, "unknown", Kind(0).String())
}

func TestErrorUnwrap(t *testing.T) {
	t.Parallel()

	cause := io.ErrUnexpectedEOF
	err := requestFailure(cause)
	require.Equal(t, "Connection Error: connection error", err.Error())
	require.ErrorIs(t, err, cause)
	require.ErrorIs(t, err, ErrRequest)
}

func TestClassifyTransportError(t *testing.T) {
	t.Parallel()

	dialTimeout := &net.OpError{Op: "dial", Net: "tcp", Err: timeoutErr{}}
	refused := &net.OpError{Op: "dial", Net: "tcp", Err: os.NewSyscallError("connect", syscall.ECONNREFUSED)}

	cases := []struct {
		name     string
		err      error
		want     string
		specific bool
	}{
		{"deadline", context.DeadlineExceeded, "timeout", true},
		{"wrapped deadline", fmt.Errorf("send: %w", context.DeadlineExceeded), "timeout", true},
		{"dial timeout is a timeout first", dialTimeout, "timeout", true},
		{"refused", refused, "connection refused", true},
		{"reset", syscall.ECONNRESET, "connection error", true},
		{"dns", &net.DNSError{Err: "no such host", Name: "sierra.invalid"}, "connection error", true},
		{"truncated", fmt.Errorf("read: %w", io.ErrUnexpectedEOF), "connection error", true},
		{"other", fmt.Errorf("decode: %w", errors.New("bad")), "*errors.errorString", false},
		{"canceled", context.Canceled, "*errors.errorString", false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, specific := classifyTransportError(tc.err)
			require.Equal(t, tc.want, got)
			require.Equal(t, tc.specific, specific)
		})
	}
}

func TestFailureMessages(t *testing.T) {
	t.Parallel()

	require.Equal(t, "Trouble connecting: timeout", authFailure(context.DeadlineExceeded).Message)
	require.Equal(t, "Unexpected error occurred: *errors.errorString", authFailure(errors.New("x")).Message)
	require.Equal(t, "Connection Error: timeout", requestFailure(context.DeadlineExceeded).Message)
	require.Equal(t, "Unexpected request error: *errors.errorString", requestFailure(errors.New("x")).Message)
	require.Equal(t, KindAuth, authFailure(errors.New("x")).Kind)
}
