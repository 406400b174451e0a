// Package sierratest runs an in-process Sierra API for tests.
//
// The server implements the token exchange and the bib and item endpoints
// the client supports, stores records in memory, and records every request
// it receives so tests can assert on what was sent.
package sierratest

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/mux"
)

const (
	DefaultClientID     = "sierratest-client"
	DefaultClientSecret = "sierratest-secret"
	DefaultAPIVersion   = "v6"
	DefaultExpiresIn    = 3600
)

// RecordedRequest is a request as the server received it.
type RecordedRequest struct {
	Method string
	Path   string
	Query  url.Values
	Header http.Header
	Body   []byte
}

// Server is a fake Sierra API listening on a loopback address.
type Server struct {
	srv    *httptest.Server
	signer *bearerSigner
	logger *slog.Logger
	now    func() time.Time

	clientID   string
	secretHash string
	apiVersion string

	mu            sync.Mutex
	expiresIn     any
	tokenOverride *cannedResponse
	failNext      *cannedResponse
	tokenRequests int
	issued        []string
	requests      []RecordedRequest
	bibs          map[string]map[string]any
	marc          map[string]map[string]any
	items         map[string]map[string]any
}

// Option configures New.
type Option func(*Server)

// WithExpiresIn sets the expires_in value returned by the token endpoint.
// It is sent as given, so a float or a string can be used to exercise
// response parsing.
func WithExpiresIn(v any) Option {
	return func(s *Server) { s.expiresIn = v }
}

// WithAPIVersion sets the single API version the server answers on.
func WithAPIVersion(version string) Option {
	return func(s *Server) { s.apiVersion = version }
}

// WithCredentials replaces the client id and secret the server accepts.
func WithCredentials(clientID, secret string) Option {
	return func(s *Server) {
		s.clientID = clientID
		s.secretHash = secret
	}
}

// WithClock replaces the server clock used for issued bearer tokens.
func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

// New starts a server and registers its shutdown with t.Cleanup.
func New(t testing.TB, opts ...Option) *Server {
	t.Helper()

	s := &Server{
		signer:     newBearerSigner(),
		logger:     slog.Default(),
		now:        time.Now,
		clientID:   DefaultClientID,
		secretHash: DefaultClientSecret,
		apiVersion: DefaultAPIVersion,
		expiresIn:  DefaultExpiresIn,
		bibs:       make(map[string]map[string]any),
		marc:       make(map[string]map[string]any),
		items:      make(map[string]map[string]any),
	}
	for _, opt := range opts {
		opt(s)
	}

	// The secret is only kept hashed, the way a real authorization server
	// stores client credentials.
	hash, err := hashSecret(s.secretHash)
	if err != nil {
		t.Fatalf("sierratest: hash client secret: %v", err)
	}
	s.secretHash = hash

	s.srv = httptest.NewServer(s.routes())
	t.Cleanup(s.srv.Close)
	return s
}

func (s *Server) routes() http.Handler {
	r := mux.NewRouter()
	r.Use(s.record)
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		errRecordNotFound.write(w)
	})

	api := r.PathPrefix("/iii/sierra-api/{version}").Subrouter()
	api.Use(s.requireVersion)
	api.HandleFunc("/token", s.handleToken).Methods(http.MethodPost)

	resources := api.NewRoute().Subrouter()
	resources.Use(s.requireBearer, s.injectFailure)

	resources.HandleFunc("/bibs/{id:[0-9]+}", s.handleGetBib).Methods(http.MethodGet)
	resources.HandleFunc("/bibs/{id:[0-9]+}", s.handlePutBib).Methods(http.MethodPut)
	resources.HandleFunc("/bibs/{id:[0-9]+}/marc", s.handleGetBibMARC).Methods(http.MethodGet)

	resources.HandleFunc("/items/", s.handleListItems).Methods(http.MethodGet)
	resources.HandleFunc("/items/{id:[0-9]+}", s.handleGetItem).Methods(http.MethodGet)
	resources.HandleFunc("/items/{id:[0-9]+}", s.handlePutItem).Methods(http.MethodPut)

	return r
}

// URL is the host URL to hand to sierra.NewToken.
func (s *Server) URL() string { return s.srv.URL }

// Client returns an HTTP client wired to the server.
func (s *Server) Client() *http.Client { return s.srv.Client() }

func (s *Server) ClientID() string { return s.clientID }

func (s *Server) APIVersion() string { return s.apiVersion }

// Close shuts the server down. New already registers this with t.Cleanup;
// calling it earlier lets a test observe connection failures.
func (s *Server) Close() { s.srv.Close() }

// TokenRequests is the number of token exchanges the server has answered.
func (s *Server) TokenRequests() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tokenRequests
}

// IssuedTokens lists the bearer tokens issued so far, oldest first.
func (s *Server) IssuedTokens() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.issued...)
}

// Requests returns every request received so far, oldest first.
func (s *Server) Requests() []RecordedRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]RecordedRequest(nil), s.requests...)
}

// LastRequest returns the most recent request. ok is false when none has
// been received.
func (s *Server) LastRequest() (req RecordedRequest, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.requests) == 0 {
		return RecordedRequest{}, false
	}
	return s.requests[len(s.requests)-1], true
}

// SetTokenResponse makes the token endpoint answer every exchange with
// status and body. A zero status restores normal behaviour.
func (s *Server) SetTokenResponse(status int, body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if status == 0 {
		s.tokenOverride = nil
		return
	}
	s.tokenOverride = &cannedResponse{status: status, body: body}
}

// FailNext makes the next authorized resource call answer with status and
// body instead of being handled.
func (s *Server) FailNext(status int, body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNext = &cannedResponse{status: status, body: body}
}

// AddBib stores a bib record. id must be the eight digit record number.
func (s *Server) AddBib(id string, fields map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bibs[id] = withID(id, fields)
}

// AddMARC stores the MARC rendition of a bib.
func (s *Server) AddMARC(id string, marc map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.marc[id] = marc
}

// AddItem stores an item record. id must be the eight digit record number.
func (s *Server) AddItem(id string, fields map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[id] = withID(id, fields)
}

// Bib returns a copy of a stored bib record.
func (s *Server) Bib(id string) (map[string]any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.bibs[id]
	return cloneRecord(rec), ok
}

// Item returns a copy of a stored item record.
func (s *Server) Item(id string) (map[string]any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.items[id]
	return cloneRecord(rec), ok
}

// ============================================================================
// Middleware
// ============================================================================

func (s *Server) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body []byte
		if r.Body != nil {
			body, _ = io.ReadAll(r.Body)
			_ = r.Body.Close()
			r.Body = io.NopCloser(bytes.NewReader(body))
		}

		s.mu.Lock()
		s.requests = append(s.requests, RecordedRequest{
			Method: r.Method,
			Path:   r.URL.Path,
			Query:  r.URL.Query(),
			Header: r.Header.Clone(),
			Body:   body,
		})
		s.mu.Unlock()

		s.logger.Debug("sierratest request",
			"method", r.Method,
			"path", r.URL.Path,
			"req_id", r.Header.Get("X-Request-ID"),
		)
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requireVersion(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if mux.Vars(r)["version"] != s.apiVersion {
			errRecordNotFound.withDescription("unsupported API version").write(w)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requireBearer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, ok := bearerToken(r)
		if !ok {
			errUnauthorized.withDescription("missing bearer token").write(w)
			return
		}
		if _, err := s.signer.verify(raw); err != nil {
			s.logger.Debug("sierratest bearer rejected", "error", err)
			errUnauthorized.withDescription("invalid_grant").write(w)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) injectFailure(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		fail := s.failNext
		s.failNext = nil
		s.mu.Unlock()

		if fail != nil {
			fail.write(w)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func bearerToken(r *http.Request) (string, bool) {
	const prefix = "Bearer "
	authz := r.Header.Get("Authorization")
	if len(authz) <= len(prefix) || authz[:len(prefix)] != prefix {
		return "", false
	}
	return authz[len(prefix):], true
}

func withID(id string, fields map[string]any) map[string]any {
	rec := cloneRecord(fields)
	if rec == nil {
		rec = make(map[string]any)
	}
	rec["id"] = id
	return rec
}

func cloneRecord(rec map[string]any) map[string]any {
	if rec == nil {
		return nil
	}
	out := make(map[string]any, len(rec))
	for k, v := range rec {
		out[k] = v
	}
	return out
}
