package slogx

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/aussiebroadwan/sierra/pkg/idx"
)

// RequestIDHeader carries the correlation id of an outbound request.
const RequestIDHeader = "X-Request-ID"

// Transport wraps base so every outbound request is logged once it
// completes. A request id is generated when the request has none.
//
// Only the method, host and path are logged; query strings and headers may
// carry credentials.
func Transport(base http.RoundTripper, logger *slog.Logger) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &loggingTransport{base: base, logger: logger}
}

type loggingTransport struct {
	base   http.RoundTripper
	logger *slog.Logger
}

func (t *loggingTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	start := time.Now()

	reqID := r.Header.Get(RequestIDHeader)
	if reqID == "" {
		reqID = idx.New().String()
		// RoundTrippers must not modify the caller's request
		r = r.Clone(r.Context())
		r.Header.Set(RequestIDHeader, reqID)
	}

	logger := t.logger.With(
		"req_id", reqID,
		"method", r.Method,
		"host", r.URL.Host,
		"path", r.URL.Path,
	)

	resp, err := t.base.RoundTrip(r)
	duration := time.Since(start).Milliseconds()
	if err != nil {
		logger.Warn("http_request_failed",
			"duration_ms", duration,
			"error", err,
		)
		return nil, err
	}

	logger.Debug("http_request",
		"status", resp.StatusCode,
		"duration_ms", duration,
	)
	return resp, nil
}
