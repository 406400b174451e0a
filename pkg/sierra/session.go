package sierra

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/aussiebroadwan/sierra/pkg/slogx"
)

// Session binds one Token to the Sierra resource endpoints.
//
// Endpoint paths are derived from the token's base URL when the session is
// created; later changes to the token's host or version do not move them.
// The token is shared, not owned: FetchNewToken refreshes it in place.
//
// A Session should be closed when done with, see WithSession.
type Session struct {
	authorization *Token
	transport     Doer
	timeout       Timeout
	delay         time.Duration
	logger        *slog.Logger

	bibsEndpoint  string
	itemsEndpoint string

	mu      sync.RWMutex
	headers http.Header
}

// SessionOption configures NewSession.
type SessionOption func(*Session)

// WithSessionTimeout bounds every resource call. Defaults to 3s/3s.
func WithSessionTimeout(timeout Timeout) SessionOption {
	return func(s *Session) { s.timeout = timeout }
}

// WithDelay pauses for d before every request is sent.
func WithDelay(d time.Duration) SessionOption {
	return func(s *Session) { s.delay = d }
}

// WithTransport replaces the transport resource calls are sent through.
// Defaults to the token's injected client, or to a client bounded by the
// session timeout when the token built its own.
func WithTransport(transport Doer) SessionOption {
	return func(s *Session) { s.transport = transport }
}

// WithSessionLogger sets the logger used when the call context carries none.
func WithSessionLogger(logger *slog.Logger) SessionOption {
	return func(s *Session) { s.logger = logger }
}

// NewSession creates a session authorized by token.
func NewSession(token *Token, opts ...SessionOption) (*Session, error) {
	if token == nil {
		return nil, configError(msgInvalidAuthorization, nil)
	}

	s := &Session{
		authorization: token,
		timeout:       DefaultTimeout,
		logger:        token.logger,
		bibsEndpoint:  token.BaseURL() + "/bibs/",
		itemsEndpoint: token.BaseURL() + "/items/",
		headers: http.Header{
			"User-Agent": {token.Agent()},
			"Accept":     {"application/json"},
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.transport == nil {
		// The token's own client is bounded by the token's timeout.
		if token.ownClient {
			s.transport = NewHTTPClient(s.timeout)
		} else {
			s.transport = token.client
		}
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}

	s.updateAuthorization()
	return s, nil
}

// WithSession runs fn with a new session and closes it afterwards, whether
// fn succeeds or not.
func WithSession(ctx context.Context, token *Token, fn func(context.Context, *Session) error, opts ...SessionOption) error {
	s, err := NewSession(token, opts...)
	if err != nil {
		return err
	}
	defer s.Close()

	return fn(ctx, s)
}

// Close releases idle connections held by the transport.
func (s *Session) Close() error {
	if c, ok := s.transport.(interface{ CloseIdleConnections() }); ok {
		c.CloseIdleConnections()
	}
	return nil
}

// Authorization returns the token the session authenticates with.
func (s *Session) Authorization() *Token { return s.authorization }

// Timeout returns the default bound applied to resource calls.
func (s *Session) Timeout() Timeout { return s.timeout }

// Delay returns the pause observed before each request.
func (s *Session) Delay() time.Duration { return s.delay }

// Headers returns a copy of the headers sent with every request.
func (s *Session) Headers() http.Header {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.headers.Clone()
}

// FetchNewToken refreshes the token and the session's Authorization
// header. Authentication errors are returned unchanged.
func (s *Session) FetchNewToken(ctx context.Context) error {
	if err := s.authorization.Refresh(ctx); err != nil {
		return err
	}
	s.updateAuthorization()
	return nil
}

func (s *Session) updateAuthorization() {
	tok := s.authorization.OAuth2()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.headers.Set("Authorization", tok.Type()+" "+tok.AccessToken)
}

func (s *Session) authorizationHeader() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.headers.Get("Authorization")
}

// Prepare resolves a request against the session defaults. query and header
// may be nil; header values replace the defaults of the same name.
func (s *Session) Prepare(
	method, endpoint string,
	query url.Values,
	header http.Header,
	body []byte,
) (*PreparedRequest, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, configError("Invalid request URL.", err)
	}

	if len(query) > 0 {
		q := u.Query()
		for key, values := range query {
			q[key] = values
		}
		u.RawQuery = q.Encode()
	}

	h := s.Headers()
	for key, values := range header {
		h[http.CanonicalHeaderKey(key)] = append([]string(nil), values...)
	}

	return &PreparedRequest{
		method: method,
		url:    u.String(),
		header: h,
		body:   bytes.Clone(body),
	}, nil
}

// do prepares and sends in one step, the path every resource method takes.
func (s *Session) do(
	ctx context.Context,
	method, endpoint string,
	query url.Values,
	header http.Header,
	body []byte,
) (*Response, error) {
	req, err := s.Prepare(method, endpoint, query, header, body)
	if err != nil {
		return nil, err
	}
	return s.query(ctx, req, s.timeout)
}

func (s *Session) log(ctx context.Context) *slog.Logger {
	if slogx.HasLogger(ctx) {
		return slogx.FromContext(ctx)
	}
	return s.logger
}
