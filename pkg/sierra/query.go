package sierra

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/aussiebroadwan/sierra/pkg/idx"
	"github.com/aussiebroadwan/sierra/pkg/slogx"
)

// PreparedRequest is a fully resolved outbound request. It is immutable:
// accessors return copies, and the executor builds a fresh *http.Request
// from it for every send.
type PreparedRequest struct {
	method string
	url    string
	header http.Header
	body   []byte
}

// Method returns the HTTP method.
func (p *PreparedRequest) Method() string { return p.method }

// URL returns the resolved URL, query string included.
func (p *PreparedRequest) URL() string { return p.url }

// Header returns a copy of the headers the request was prepared with.
// Authorization is replaced with the session's current value at send time.
func (p *PreparedRequest) Header() http.Header { return p.header.Clone() }

// Body returns a copy of the encoded body, or nil.
func (p *PreparedRequest) Body() []byte { return bytes.Clone(p.body) }

func (p *PreparedRequest) httpRequest(ctx context.Context) (*http.Request, error) {
	var body io.Reader
	if p.body != nil {
		body = bytes.NewReader(p.body)
	}

	req, err := http.NewRequestWithContext(ctx, p.method, p.url, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header = p.header.Clone()
	return req, nil
}

// Response is what the server answered, with the body fully read so the
// connection is released before the call returns.
type Response struct {
	StatusCode int
	Status     string
	Header     http.Header
	Body       []byte
	URL        string
}

// JSON decodes the body into v.
func (r *Response) JSON(v any) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// Send executes a request built with Prepare, refreshing the token first if
// it went stale.
func (s *Session) Send(ctx context.Context, req *PreparedRequest) (*Response, error) {
	return s.query(ctx, req, s.timeout)
}

// query executes exactly one prepared request: stale tokens are refreshed
// first, the configured delay is observed, and every failure is mapped onto
// an *Error. Nothing is retried.
func (s *Session) query(ctx context.Context, req *PreparedRequest, timeout Timeout) (*Response, error) {
	if req == nil {
		return nil, ErrInvalidPreparedRequest
	}

	reqID := idx.New().String()
	ctx = slogx.WithRequestID(slogx.WithContext(ctx, s.log(ctx)), reqID)
	logger := slogx.FromContext(ctx)

	if s.authorization.IsExpired() {
		logger.Info("sierra token expired, fetching a new one")
		if err := s.FetchNewToken(ctx); err != nil {
			return nil, err
		}
	}

	if s.delay > 0 {
		if err := sleep(ctx, s.delay); err != nil {
			return nil, requestFailure(err)
		}
	}

	ctx, cancel := timeout.apply(ctx)
	defer cancel()

	httpReq, err := req.httpRequest(ctx)
	if err != nil {
		return nil, requestFailure(err)
	}
	// The prepared headers may predate a refresh.
	httpReq.Header.Set("Authorization", s.authorizationHeader())
	httpReq.Header.Set(slogx.RequestIDHeader, reqID)

	logger.Debug("sending sierra request", "method", req.method, "path", httpReq.URL.Path)

	start := time.Now()
	resp, err := s.transport.Do(httpReq)
	if err != nil {
		logger.Warn("sierra request failed", "error", err)
		return nil, requestFailure(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		logger.Warn("failed to read sierra response", "error", err)
		return nil, requestFailure(err)
	}

	out := &Response{
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		Header:     resp.Header,
		Body:       body,
		URL:        req.url,
	}
	if resp.Request != nil && resp.Request.URL != nil {
		out.URL = resp.Request.URL.String()
	}

	logger.Debug("sierra response received",
		"status", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	if resp.StatusCode >= http.StatusBadRequest {
		logger.Warn("sierra request rejected", "status", resp.StatusCode)
		return nil, statusError(out)
	}

	return out, nil
}

// statusError reports an error status with both the HTTP error text and
// the body the server sent.
func statusError(resp *Response) *Error {
	side := "Client"
	if resp.StatusCode >= http.StatusInternalServerError {
		side = "Server"
	}

	httpErr := fmt.Sprintf("%d %s Error: %s for url: %s",
		resp.StatusCode, side, reasonPhrase(resp), resp.URL)

	return &Error{
		Kind: KindRequest,
		Message: fmt.Sprintf("%s. Server response: %s",
			httpErr, strings.ToValidUTF8(string(resp.Body), "\uFFFD")),
		StatusCode: resp.StatusCode,
		Body:       resp.Body,
	}
}

// reasonPhrase prefers the phrase the server sent over the canonical one.
func reasonPhrase(resp *Response) string {
	code := strconv.Itoa(resp.StatusCode)
	if reason, ok := strings.CutPrefix(resp.Status, code+" "); ok && reason != "" {
		return reason
	}
	return http.StatusText(resp.StatusCode)
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
