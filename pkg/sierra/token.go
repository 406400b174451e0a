package sierra

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/oauth2"

	"github.com/aussiebroadwan/sierra/pkg/slogx"
)

const (
	// Title and Version identify this client in the default User-Agent.
	Title   = "sierra-go"
	Version = "0.1.0"

	// DefaultAPIVersion is the Sierra API version used unless overridden.
	DefaultAPIVersion = "v6"

	apiPath = "iii/sierra-api"
)

// DefaultAgent is the User-Agent sent unless WithAgent overrides it.
const DefaultAgent = Title + "/" + Version

var validate = validator.New()

// tokenParams are the values a token cannot be built without.
type tokenParams struct {
	ClientID     string `validate:"required"`
	ClientSecret string `validate:"required"`
	HostURL      string `validate:"required"`
	APIVersion   string `validate:"required"`
}

// Token authenticates against the Sierra API using the OAuth2 client
// credentials grant and tracks the resulting bearer token.
//
// A Token only exists in an authenticated state: NewToken performs the
// first exchange and fails if it fails. Refresh overwrites the token in
// place, so every holder of the pointer observes the new value.
type Token struct {
	clientID     string
	clientSecret string
	hostURL      string
	apiVersion   string
	agent        string
	timeout      Timeout
	client       Doer
	ownClient    bool // client was built from timeout, not injected
	logger       *slog.Logger
	now          func() time.Time

	mu             sync.RWMutex
	accessToken    string
	expiresOn      time.Time
	serverResponse []byte
}

// TokenOption configures NewToken.
type TokenOption func(*Token)

// WithAPIVersion selects the API version, e.g. "v5". Defaults to "v6".
func WithAPIVersion(version string) TokenOption {
	return func(t *Token) { t.apiVersion = version }
}

// WithAgent sets the User-Agent sent with every request.
func WithAgent(agent string) TokenOption {
	return func(t *Token) { t.agent = agent }
}

// WithTimeout bounds the token exchange.
func WithTimeout(timeout Timeout) TokenOption {
	return func(t *Token) { t.timeout = timeout }
}

// WithHTTPClient replaces the transport used for the token exchange.
func WithHTTPClient(client Doer) TokenOption {
	return func(t *Token) { t.client = client }
}

// WithLogger sets the logger used when the call context carries none.
func WithLogger(logger *slog.Logger) TokenOption {
	return func(t *Token) { t.logger = logger }
}

// WithClock replaces the clock expiry is computed and checked against.
func WithClock(now func() time.Time) TokenOption {
	return func(t *Token) { t.now = now }
}

// NewToken validates the credentials and performs the first token exchange.
//
// Missing credentials are reported as a configuration error before any
// request is made. Exchange failures are reported as authentication errors.
func NewToken(
	ctx context.Context,
	clientID, clientSecret, hostURL string,
	opts ...TokenOption,
) (*Token, error) {
	t := &Token{
		clientID:     clientID,
		clientSecret: clientSecret,
		hostURL:      strings.TrimSuffix(hostURL, "/"),
		apiVersion:   DefaultAPIVersion,
		agent:        DefaultAgent,
		timeout:      DefaultTimeout,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}

	params := tokenParams{
		ClientID:     t.clientID,
		ClientSecret: t.clientSecret,
		HostURL:      t.hostURL,
		APIVersion:   t.apiVersion,
	}
	if err := validate.Struct(params); err != nil {
		return nil, configError(msgMissingAuthArgument, err)
	}

	if t.agent == "" {
		t.agent = DefaultAgent
	}
	if t.client == nil {
		t.client = NewHTTPClient(t.timeout)
		t.ownClient = true
	}
	if t.logger == nil {
		t.logger = slog.Default()
	}

	if err := t.Refresh(ctx); err != nil {
		return nil, err
	}

	return t, nil
}

// BaseURL is the root every Sierra endpoint hangs off.
func (t *Token) BaseURL() string {
	return fmt.Sprintf("%s/%s/%s", t.hostURL, apiPath, t.apiVersion)
}

func (t *Token) tokenURL() string {
	return t.BaseURL() + "/token"
}

// Refresh exchanges the client credentials for a new access token and
// stores it, replacing the previous one.
func (t *Token) Refresh(ctx context.Context) error {
	logger := t.log(ctx)

	ctx, cancel := t.timeout.apply(ctx)
	defer cancel()

	data := url.Values{"grant_type": {"client_credentials"}}
	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		t.tokenURL(),
		strings.NewReader(data.Encode()),
	)
	if err != nil {
		return authFailure(fmt.Errorf("failed to create token request: %w", err))
	}
	req.SetBasicAuth(t.clientID, t.clientSecret)
	req.Header.Set("User-Agent", t.agent)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		logger.Warn("sierra token request failed", "error", err)
		return authFailure(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return authFailure(err)
	}

	if resp.StatusCode != http.StatusOK {
		logger.Warn("sierra token request rejected", "status", resp.StatusCode)
		return &Error{
			Kind:       KindAuth,
			Message:    fmt.Sprintf("Invalid request. Oauth server returned error: %s", body),
			StatusCode: resp.StatusCode,
			Body:       body,
		}
	}

	accessToken, lifetime, err := parseTokenResponse(body)
	if err != nil {
		return err
	}

	// One second short of the declared lifetime so the token is renewed
	// before the server starts rejecting it.
	expiresOn := t.now().UTC().Add(lifetime - time.Second)

	t.mu.Lock()
	t.accessToken = accessToken
	t.expiresOn = expiresOn
	t.serverResponse = body
	t.mu.Unlock()

	logger.Info("sierra token acquired",
		"base_url", t.BaseURL(),
		"expires_on", expiresOn.Format(time.RFC3339),
	)
	return nil
}

// parseTokenResponse extracts access_token and expires_in.
func parseTokenResponse(body []byte) (string, time.Duration, error) {
	var decoded any
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&decoded); err != nil {
		return "", 0, authFailure(fmt.Errorf("failed to decode token response: %w", err))
	}

	fields, _ := decoded.(map[string]any)

	accessToken, ok := fields["access_token"].(string)
	if !ok || accessToken == "" {
		return "", 0, &Error{Kind: KindAuth, Message: msgMissingAccessToken, Body: body}
	}

	expiresIn, ok := fields["expires_in"].(json.Number)
	if !ok {
		return "", 0, &Error{Kind: KindAuth, Message: msgMissingExpiresIn, Body: body}
	}

	if seconds, err := expiresIn.Int64(); err == nil {
		return accessToken, time.Duration(seconds) * time.Second, nil
	}
	seconds, err := expiresIn.Float64()
	if err != nil {
		return "", 0, &Error{Kind: KindAuth, Message: msgMissingExpiresIn, Body: body, Err: err}
	}
	return accessToken, time.Duration(seconds * float64(time.Second)), nil
}

// IsExpired reports whether the expiry instant has passed.
func (t *Token) IsExpired() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.expiresOn.Before(t.now().UTC())
}

// AccessToken returns the current bearer token string.
func (t *Token) AccessToken() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.accessToken
}

// ExpiresOn returns the instant (UTC) after which the token is stale.
func (t *Token) ExpiresOn() time.Time {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.expiresOn
}

// ServerResponse returns a copy of the raw body of the last successful
// token response.
func (t *Token) ServerResponse() []byte {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return bytes.Clone(t.serverResponse)
}

// HostURL returns the catalog host without a trailing slash.
func (t *Token) HostURL() string { return t.hostURL }

// APIVersion returns the API version the token was issued for, e.g. "v6".
func (t *Token) APIVersion() string { return t.apiVersion }

// Agent returns the User-Agent sent with the exchange.
func (t *Token) Agent() string { return t.agent }

// Timeout returns the timeout applied to the exchange.
func (t *Token) Timeout() Timeout { return t.timeout }

// OAuth2 returns the current token as an *oauth2.Token.
func (t *Token) OAuth2() *oauth2.Token {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return &oauth2.Token{
		AccessToken: t.accessToken,
		TokenType:   "Bearer",
		Expiry:      t.expiresOn,
	}
}

func (t *Token) String() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return fmt.Sprintf(
		"<token: %s, expires_on: %s, server_response: %s>",
		t.accessToken,
		t.expiresOn.Format("2006-01-02 15:04:05"),
		t.serverResponse,
	)
}

// log prefers the logger carried by ctx.
func (t *Token) log(ctx context.Context) *slog.Logger {
	if slogx.HasLogger(ctx) || t.logger == nil {
		return slogx.FromContext(ctx)
	}
	return t.logger
}
