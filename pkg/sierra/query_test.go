package sierra

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/sierra/internal/sierratest"
	"github.com/aussiebroadwan/sierra/pkg/idx"
	"github.com/aussiebroadwan/sierra/pkg/slogx"
)

func TestSendNilRequest(t *testing.T) {
	t.Parallel()

	s, srv := newServerSession(t, nil)
	before := len(srv.Requests())

	resp, err := s.Send(context.Background(), nil)
	require.Nil(t, resp)
	require.ErrorIs(t, err, ErrInvalidPreparedRequest)
	require.Len(t, srv.Requests(), before)
}

func TestPrepare(t *testing.T) {
	t.Parallel()

	s, srv := newServerSession(t, nil)

	req, err := s.Prepare(http.MethodGet, s.bibEndpoint("12345678"),
		url.Values{"fields": {"id,title"}},
		http.Header{"accept": {"application/marc-json"}},
		nil,
	)
	require.NoError(t, err)

	require.Equal(t, http.MethodGet, req.Method())
	require.Equal(t, srv.URL()+"/iii/sierra-api/v6/bibs/12345678?fields=id%2Ctitle", req.URL())
	require.Equal(t, "application/marc-json", req.Header().Get("Accept"))
	require.Equal(t, s.Headers().Get("Authorization"), req.Header().Get("Authorization"))
	require.Nil(t, req.Body())

	t.Run("accessors return copies", func(t *testing.T) {
		h := req.Header()
		h.Set("Accept", "text/plain")
		require.Equal(t, "application/marc-json", req.Header().Get("Accept"))
	})

	t.Run("invalid url", func(t *testing.T) {
		_, err := s.Prepare(http.MethodGet, "://nope", nil, nil, nil)
		require.ErrorIs(t, err, ErrConfig)
	})
}

func TestQueryRefreshesStaleTokenOnce(t *testing.T) {
	t.Parallel()

	s, srv := newServerSession(t, []sierratest.Option{sierratest.WithExpiresIn(0)})
	srv.AddBib("12345678", map[string]any{"normTitle": "dune"})
	require.True(t, s.Authorization().IsExpired())
	require.Equal(t, 1, srv.TokenRequests())

	resp, err := s.GetBib(context.Background(), "b12345678")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, 2, srv.TokenRequests())

	// The request carries the refreshed bearer, not the one it was prepared with.
	last, ok := srv.LastRequest()
	require.True(t, ok)
	require.Equal(t, "Bearer "+srv.IssuedTokens()[1], last.Header.Get("Authorization"))
}

func TestQueryRefreshLeavesTokenFresh(t *testing.T) {
	t.Parallel()

	srv := sierratest.New(t)
	srv.AddBib("12345678", map[string]any{"normTitle": "dune"})

	now := time.Now()
	token := newServerToken(t, srv, WithClock(func() time.Time { return now }))
	s, err := NewSession(token)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	now = now.Add(2 * time.Hour)
	require.True(t, token.IsExpired())

	resp, err := s.GetBib(context.Background(), "12345678")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, 2, srv.TokenRequests())
	require.False(t, s.Authorization().IsExpired())
	require.True(t, token.ExpiresOn().Equal(now.Add((sierratest.DefaultExpiresIn-1)*time.Second)))
}

func TestQuerySessionTimeoutOutlivesTokenTimeout(t *testing.T) {
	t.Parallel()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/token") {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"access_token":"tok","token_type":"bearer","expires_in":3600}`))
			return
		}
		time.Sleep(400 * time.Millisecond)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"12345678"}`))
	}))
	t.Cleanup(ts.Close)

	token, err := NewToken(context.Background(), "id", "secret", ts.URL,
		WithTimeout(UniformTimeout(200*time.Millisecond)),
	)
	require.NoError(t, err)

	t.Run("session timeout governs resource calls", func(t *testing.T) {
		s, err := NewSession(token, WithSessionTimeout(UniformTimeout(2*time.Second)))
		require.NoError(t, err)
		defer s.Close()

		resp, err := s.GetBib(context.Background(), "12345678")
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("shorter session timeout still applies", func(t *testing.T) {
		s, err := NewSession(token, WithSessionTimeout(UniformTimeout(100*time.Millisecond)))
		require.NoError(t, err)
		defer s.Close()

		_, err = s.GetBib(context.Background(), "12345678")
		require.ErrorIs(t, err, ErrRequest)
	})
}

func TestQueryPrecomputedRequestGetsFreshBearer(t *testing.T) {
	t.Parallel()

	s, srv := newServerSession(t, nil)
	srv.AddBib("12345678", nil)

	req, err := s.Prepare(http.MethodGet, s.bibEndpoint("12345678"), nil, nil, nil)
	require.NoError(t, err)
	require.NoError(t, s.FetchNewToken(context.Background()))

	_, err = s.Send(context.Background(), req)
	require.NoError(t, err)

	last, _ := srv.LastRequest()
	require.Equal(t, "Bearer "+srv.IssuedTokens()[1], last.Header.Get("Authorization"))
}

func TestQueryRefreshFailureAborts(t *testing.T) {
	t.Parallel()

	s, srv := newServerSession(t, []sierratest.Option{sierratest.WithExpiresIn(0)})
	srv.SetTokenResponse(http.StatusServiceUnavailable, `{"error":"temporarily_unavailable"}`)
	before := len(srv.Requests())

	_, err := s.GetBib(context.Background(), "12345678")
	requireKind(t, err, ErrAuth, `Invalid request. Oauth server returned error: {"error":"temporarily_unavailable"}`)

	// Only the failed token exchange reached the server.
	require.Len(t, srv.Requests(), before+1)
}

func TestQueryErrorStatus(t *testing.T) {
	t.Parallel()

	t.Run("server error", func(t *testing.T) {
		s, srv := newServerSession(t, nil)
		srv.FailNext(http.StatusInternalServerError, `{"code":109,"name":"Internal server error"}`)

		_, err := s.GetBib(context.Background(), "12345678")
		serr := requireKind(t, err, ErrRequest, "")
		require.Equal(t, http.StatusInternalServerError, serr.StatusCode)
		require.Contains(t, serr.Message, "500 Server Error: Internal Server Error for url: "+srv.URL()+"/iii/sierra-api/v6/bibs/12345678")
		require.True(t, strings.HasSuffix(serr.Message, `. Server response: {"code":109,"name":"Internal server error"}`))
		require.JSONEq(t, `{"code":109,"name":"Internal server error"}`, string(serr.Body))
	})

	t.Run("record not found", func(t *testing.T) {
		s, _ := newServerSession(t, nil)

		_, err := s.GetItem(context.Background(), "i10000001", nil)
		serr := requireKind(t, err, ErrRequest, "")
		require.Equal(t, http.StatusNotFound, serr.StatusCode)
		require.Contains(t, serr.Message, "404 Client Error: Not Found for url: ")
		require.Contains(t, serr.Message, "Server response: ")
		require.Contains(t, serr.Message, "Record not found")
	})

	t.Run("invalid utf8 body", func(t *testing.T) {
		doer := doerFunc(func(r *http.Request) (*http.Response, error) {
			return newResponse(r, http.StatusBadRequest, "bad \xff byte"), nil
		})
		s, _ := newServerSession(t, nil, WithTransport(doer))

		_, err := s.GetBib(context.Background(), "12345678")
		serr := requireKind(t, err, ErrRequest, "")
		require.True(t, strings.HasSuffix(serr.Message, "Server response: bad \uFFFD byte"))
		require.Equal(t, []byte("bad \xff byte"), serr.Body)
	})

	t.Run("success below 400", func(t *testing.T) {
		doer := doerFunc(func(r *http.Request) (*http.Response, error) {
			return newResponse(r, http.StatusNotModified, ""), nil
		})
		s, _ := newServerSession(t, nil, WithTransport(doer))

		resp, err := s.GetBib(context.Background(), "12345678")
		require.NoError(t, err)
		require.Equal(t, http.StatusNotModified, resp.StatusCode)
	})
}

func TestQueryTransportErrors(t *testing.T) {
	t.Parallel()

	t.Run("timeout", func(t *testing.T) {
		doer := doerFunc(func(r *http.Request) (*http.Response, error) {
			<-r.Context().Done()
			return nil, &url.Error{Op: "Get", URL: r.URL.String(), Err: r.Context().Err()}
		})
		s, _ := newServerSession(t, nil,
			WithTransport(doer),
			WithSessionTimeout(UniformTimeout(10*time.Millisecond)),
		)

		_, err := s.GetBib(context.Background(), "12345678")
		requireKind(t, err, ErrRequest, "Connection Error: timeout")
	})

	t.Run("connection refused", func(t *testing.T) {
		s, srv := newServerSession(t, nil)
		require.NoError(t, s.Close())
		srv.Close()

		_, err := s.GetBib(context.Background(), "12345678")
		requireKind(t, err, ErrRequest, "Connection Error: connection refused")
	})

	t.Run("unexpected", func(t *testing.T) {
		boom := errors.New("boom")
		doer := doerFunc(func(*http.Request) (*http.Response, error) { return nil, boom })
		s, _ := newServerSession(t, nil, WithTransport(doer))

		_, err := s.GetBib(context.Background(), "12345678")
		serr := requireKind(t, err, ErrRequest, "Unexpected request error: *errors.errorString")
		require.ErrorIs(t, serr, boom)
	})
}

func TestQueryDelay(t *testing.T) {
	t.Parallel()

	t.Run("waits before sending", func(t *testing.T) {
		s, srv := newServerSession(t, nil, WithDelay(50*time.Millisecond))
		srv.AddBib("12345678", nil)

		start := time.Now()
		_, err := s.GetBib(context.Background(), "12345678")
		require.NoError(t, err)
		require.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
	})

	t.Run("honours cancellation", func(t *testing.T) {
		s, srv := newServerSession(t, nil, WithDelay(time.Hour))
		before := len(srv.Requests())

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()

		_, err := s.GetBib(ctx, "12345678")
		requireKind(t, err, ErrRequest, "Connection Error: timeout")
		require.Len(t, srv.Requests(), before)
	})
}

func TestQueryRequestID(t *testing.T) {
	t.Parallel()

	s, srv := newServerSession(t, nil)
	srv.AddBib("12345678", nil)

	_, err := s.GetBib(slogx.WithContext(context.Background(), s.logger), "12345678")
	require.NoError(t, err)

	last, _ := srv.LastRequest()
	_, err = idx.Parse(last.Header.Get(slogx.RequestIDHeader))
	require.NoError(t, err)
}
