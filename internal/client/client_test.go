package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeServer simulates the auth surface: it hands out numbered token pairs
// and enforces single-use refresh tokens, so a non-coalesced concurrent
// refresh burst would kill the session just like the real server.
type fakeServer struct {
	mu           sync.Mutex
	accessSeq    int
	validAccess  map[string]bool
	validRefresh map[string]bool
	refreshCalls int32
	issueCalls   int32
}

func newFakeServer() *fakeServer {
	return &fakeServer{
		validAccess:  map[string]bool{},
		validRefresh: map[string]bool{},
	}
}

func (s *fakeServer) issuePair() (access, refresh string) {
	s.accessSeq++
	access = fmt.Sprintf("access-%d", s.accessSeq)
	refresh = fmt.Sprintf("refresh-%d", s.accessSeq)
	s.validAccess[access] = true
	s.validRefresh[refresh] = true
	return access, refresh
}

func (s *fakeServer) expireAccessTokens() {
	s.mu.Lock()
	s.validAccess = map[string]bool{}
	s.mu.Unlock()
}

func (s *fakeServer) handler() http.Handler {
	mux := http.NewServeMux()

	writePair := func(w http.ResponseWriter, status int, access, refresh string) {
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"success": true,
			"data": map[string]interface{}{
				"user":    map[string]interface{}{"id": 1, "email": "a@b.c"},
				"access":  map[string]interface{}{"token": access},
				"refresh": map[string]interface{}{"token": refresh},
			},
		})
	}
	unauthorized := func(w http.ResponseWriter) {
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"success": false, "error": "invalid or expired token",
		})
	}

	mux.HandleFunc("/v1/auth/login", func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		access, refresh := s.issuePair()
		s.mu.Unlock()
		writePair(w, http.StatusOK, access, refresh)
	})

	mux.HandleFunc("/v1/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&s.refreshCalls, 1)
		var body struct {
			RefreshToken string `json:"refresh_token"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)

		s.mu.Lock()
		if !s.validRefresh[body.RefreshToken] {
			s.mu.Unlock()
			unauthorized(w)
			return
		}
		delete(s.validRefresh, body.RefreshToken) // single use
		access, refresh := s.issuePair()
		s.mu.Unlock()
		writePair(w, http.StatusOK, access, refresh)
	})

	mux.HandleFunc("/v1/issues", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&s.issueCalls, 1)
		s.mu.Lock()
		ok := s.validAccess[tokenFrom(r)]
		s.mu.Unlock()
		if !ok {
			unauthorized(w)
			return
		}
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"success": true,
			"data":    map[string]interface{}{"issues": []interface{}{}},
		})
	})

	return mux
}

func tokenFrom(r *http.Request) string {
	const p = "Bearer "
	auth := r.Header.Get("Authorization")
	if len(auth) > len(p) && auth[:len(p)] == p {
		return auth[len(p):]
	}
	return ""
}

func newTestClient(t *testing.T, srv *fakeServer) (*Client, *httptest.Server) {
	t.Helper()
	ts := httptest.NewServer(srv.handler())
	t.Cleanup(ts.Close)
	c, err := New(ts.URL, ts.Client())
	require.NoError(t, err)
	return c, ts
}

func TestTransparentRefreshAndRetry(t *testing.T) {
	srv := newFakeServer()
	c, _ := newTestClient(t, srv)
	ctx := context.Background()

	_, err := c.Login(ctx, "a@b.c", "pw")
	require.NoError(t, err)
	before := c.Tokens()

	srv.expireAccessTokens()

	_, err = c.ListIssues(ctx, IssueFilters{})
	require.NoError(t, err)

	after := c.Tokens()
	assert.NotEqual(t, before.AccessToken, after.AccessToken)
	assert.NotEqual(t, before.RefreshToken, after.RefreshToken)
	assert.EqualValues(t, 1, atomic.LoadInt32(&srv.refreshCalls))
	// Original attempt plus one replay.
	assert.EqualValues(t, 2, atomic.LoadInt32(&srv.issueCalls))
}

func TestConcurrentRequestsShareOneRefresh(t *testing.T) {
	srv := newFakeServer()
	c, _ := newTestClient(t, srv)
	ctx := context.Background()

	_, err := c.Login(ctx, "a@b.c", "pw")
	require.NoError(t, err)
	srv.expireAccessTokens()

	// The refresh token is single use on the server.  If the burst were
	// not coalesced, racing refreshes would present the same consumed
	// token and those requests would fail.
	const workers = 10
	errs := make([]error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = c.ListIssues(ctx, IssueFilters{})
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		assert.NoError(t, err, "request %d", i)
	}
}

func TestRetryHappensExactlyOnce(t *testing.T) {
	var calls int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v1/auth/refresh" {
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"success": true,
				"data": map[string]interface{}{
					"access":  map[string]interface{}{"token": "still-rejected"},
					"refresh": map[string]interface{}{"token": "refresh-2"},
				},
			})
			return
		}
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"success": false, "error": "invalid or expired token"})
	}))
	defer ts.Close()

	c, err := New(ts.URL, ts.Client())
	require.NoError(t, err)
	c.SetTokens(TokenPair{AccessToken: "expired", RefreshToken: "refresh-1"})

	_, err = c.ListIssues(context.Background(), IssueFilters{})

	// The refresh "succeeded" but the replay was rejected again; the
	// client must not loop.
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)
	assert.EqualValues(t, 2, atomic.LoadInt32(&calls))
}

func TestFailedRefreshSurfacesOriginal401AndClearsTokens(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"success": false, "error": "invalid or expired token"})
	}))
	defer ts.Close()

	c, err := New(ts.URL, ts.Client())
	require.NoError(t, err)
	c.SetTokens(TokenPair{AccessToken: "dead", RefreshToken: "dead-too"})

	_, err = c.ListIssues(context.Background(), IssueFilters{})

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)
	// Dead session is dropped so later calls fail fast locally.
	assert.Empty(t, c.Tokens().AccessToken)
	assert.Empty(t, c.Tokens().RefreshToken)
}

func TestWithoutRefreshOptOut(t *testing.T) {
	var refreshCalls int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v1/auth/refresh" {
			atomic.AddInt32(&refreshCalls, 1)
		}
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"success": false, "error": "nope"})
	}))
	defer ts.Close()

	c, err := New(ts.URL, ts.Client())
	require.NoError(t, err)
	c.SetTokens(TokenPair{AccessToken: "t", RefreshToken: "r"})

	err = c.do(context.Background(), http.MethodGet, "/v1/issues", nil, nil, WithoutRefresh())

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)
	assert.Zero(t, atomic.LoadInt32(&refreshCalls))
}

func TestRefreshWithoutSession(t *testing.T) {
	srv := newFakeServer()
	c, _ := newTestClient(t, srv)

	// No tokens stored at all: a 401 cannot be repaired, the client must
	// not even attempt a refresh call.
	_, err := c.ListIssues(context.Background(), IssueFilters{})
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)
	assert.Zero(t, atomic.LoadInt32(&srv.refreshCalls))
}
