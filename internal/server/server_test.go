package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/venturemind/mentord/internal/metrics"
	"github.com/venturemind/mentord/internal/provider"
	"github.com/venturemind/mentord/internal/session"
)

// stubSession records turns and answers with canned replies.
type stubSession struct {
	provider *stubProvider
	mu       sync.Mutex
	turns    []string
}

func (s *stubSession) SendMessage(ctx context.Context, message string) (string, error) {
	if d := s.provider.sendDelay.Load(); d > 0 {
		time.Sleep(time.Duration(d))
	}
	if err := s.provider.sendErr.Load(); err != nil {
		return "", *err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns = append(s.turns, message)
	return fmt.Sprintf("  canned reply %d  ", len(s.turns)), nil
}

// stubProvider counts session creations and lets tests inject failures.
type stubProvider struct {
	created   atomic.Int64
	newErr    atomic.Pointer[error]
	sendErr   atomic.Pointer[error]
	sendDelay atomic.Int64

	mu       sync.Mutex
	sessions []*stubSession
}

func (p *stubProvider) NewSession(_ context.Context, _ string) (provider.ChatSession, error) {
	if err := p.newErr.Load(); err != nil {
		return nil, *err
	}
	p.created.Add(1)

	s := &stubSession{provider: p}
	p.mu.Lock()
	p.sessions = append(p.sessions, s)
	p.mu.Unlock()
	return s, nil
}

func (p *stubProvider) Name() string { return "stub" }

func (p *stubProvider) failSends(err error) { p.sendErr.Store(&err) }

func (p *stubProvider) lastSession() *stubSession {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.sessions) == 0 {
		return nil
	}
	return p.sessions[len(p.sessions)-1]
}

func newTestServer(t *testing.T, p provider.Provider, opts Options) *Server {
	t.Helper()

	logger := zerolog.Nop()
	registry := session.NewRegistry(p, logger)

	s, err := New(opts, registry, metrics.New(), logger)
	require.NoError(t, err)
	return s
}

func postChat(t *testing.T, s *Server, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/chat", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeJSON[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestNewServerDefaults(t *testing.T) {
	s := newTestServer(t, &stubProvider{}, Options{})
	assert.Equal(t, 8000, s.options.Port)
	assert.Equal(t, "0.0.0.0", s.options.Host)
	assert.Equal(t, 30*time.Second, s.options.RequestTimeout)
}

func TestNewServerRequiredDependencies(t *testing.T) {
	logger := zerolog.Nop()

	_, err := New(Options{}, nil, metrics.New(), logger)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "registry is required")

	registry := session.NewRegistry(&stubProvider{}, logger)
	_, err = New(Options{}, registry, nil, logger)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "metrics are required")
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, &stubProvider{}, Options{})

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeJSON[HealthResponse](t, rec)
	assert.Equal(t, "OK", resp.Status)
	assert.NotEmpty(t, resp.Timestamp)
}

func TestChatSuccess(t *testing.T) {
	p := &stubProvider{}
	s := newTestServer(t, p, Options{})

	rec := postChat(t, s, `{"message": "How do I start?", "userType": "aspiring", "sessionId": "s1"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decodeJSON[ChatResponse](t, rec)
	assert.Equal(t, "canned reply 1", resp.Reply, "reply is trimmed")
	assert.Equal(t, "aspiring", resp.UserType)
	assert.Equal(t, "s1", resp.SessionID)
	assert.True(t, resp.Success)
	assert.NotEmpty(t, resp.Timestamp)
}

func TestChatDefaultsSessionID(t *testing.T) {
	s := newTestServer(t, &stubProvider{}, Options{})

	rec := postChat(t, s, `{"message": "hello"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decodeJSON[ChatResponse](t, rec)
	assert.Equal(t, "default", resp.SessionID)
	assert.Equal(t, "general", resp.UserType)
}

func TestChatUnknownUserTypeNormalized(t *testing.T) {
	s := newTestServer(t, &stubProvider{}, Options{})

	rec := postChat(t, s, `{"message": "hello", "userType": "bogus", "sessionId": "s1"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decodeJSON[ChatResponse](t, rec)
	assert.Equal(t, "general", resp.UserType)
}

func TestChatValidation(t *testing.T) {
	s := newTestServer(t, &stubProvider{}, Options{})

	t.Run("empty message", func(t *testing.T) {
		rec := postChat(t, s, `{"message": ""}`)
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		resp := decodeJSON[ErrorResponse](t, rec)
		assert.False(t, resp.Success)
		assert.Contains(t, resp.Error, "empty")
	})

	t.Run("whitespace-only message", func(t *testing.T) {
		rec := postChat(t, s, `{"message": "   \n\t  "}`)
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	})

	t.Run("message over limit", func(t *testing.T) {
		long := strings.Repeat("a", maxMessageLength+1)
		rec := postChat(t, s, fmt.Sprintf(`{"message": %q}`, long))
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	})

	t.Run("message exactly at limit", func(t *testing.T) {
		exact := strings.Repeat("a", maxMessageLength)
		rec := postChat(t, s, fmt.Sprintf(`{"message": %q}`, exact))
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("malformed body", func(t *testing.T) {
		rec := postChat(t, s, `{not json`)
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	})
}

func TestChatSessionReuse(t *testing.T) {
	p := &stubProvider{}
	s := newTestServer(t, p, Options{})

	rec := postChat(t, s, `{"message": "first", "userType": "existing", "sessionId": "abc"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = postChat(t, s, `{"message": "second", "userType": "existing", "sessionId": "abc"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, int64(1), p.created.Load(), "same key reuses the provider session")

	// A different key gets its own session.
	rec = postChat(t, s, `{"message": "third", "userType": "existing", "sessionId": "xyz"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(2), p.created.Load())
}

func TestChatThreeTurnConversation(t *testing.T) {
	p := &stubProvider{}
	s := newTestServer(t, p, Options{})

	messages := []string{"How do I start?", "What about funding?", "Legal requirements?"}
	replies := make([]string, 0, len(messages))

	for _, msg := range messages {
		rec := postChat(t, s, fmt.Sprintf(`{"message": %q, "userType": "aspiring", "sessionId": "s1"}`, msg))
		require.Equal(t, http.StatusOK, rec.Code)
		replies = append(replies, decodeJSON[ChatResponse](t, rec).Reply)
	}

	assert.Equal(t, int64(1), p.created.Load())
	assert.Equal(t, []string{"canned reply 1", "canned reply 2", "canned reply 3"}, replies)
	assert.Equal(t, messages, p.lastSession().turns, "all turns flow through one handle")
}

func TestChatProviderInitFailure(t *testing.T) {
	p := &stubProvider{}
	initErr := error(&provider.InitError{Backend: "stub", Err: fmt.Errorf("model down")})
	p.newErr.Store(&initErr)
	s := newTestServer(t, p, Options{})

	rec := postChat(t, s, `{"message": "hello"}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	resp := decodeJSON[ErrorResponse](t, rec)
	assert.Contains(t, resp.Error, "initialize")
}

func TestChatProviderErrorClassification(t *testing.T) {
	cases := []struct {
		name   string
		errMsg string
		status int
	}{
		{"quota exceeded", "Quota exceeded for this project", http.StatusTooManyRequests},
		{"bad api key", "400: API key not valid", http.StatusUnauthorized},
		{"anything else", "connection reset by peer", http.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := &stubProvider{}
			s := newTestServer(t, p, Options{})

			// First request establishes the session, then sends start failing.
			rec := postChat(t, s, `{"message": "hello", "sessionId": "s"}`)
			require.Equal(t, http.StatusOK, rec.Code)

			p.failSends(provider.Classify(fmt.Errorf("%s", tc.errMsg)))
			rec = postChat(t, s, `{"message": "hello again", "sessionId": "s"}`)
			assert.Equal(t, tc.status, rec.Code)

			resp := decodeJSON[ErrorResponse](t, rec)
			assert.False(t, resp.Success)
			assert.NotEmpty(t, resp.Timestamp)
		})
	}
}

func TestChatTimeout(t *testing.T) {
	p := &stubProvider{}
	s := newTestServer(t, p, Options{RequestTimeout: 50 * time.Millisecond})

	p.sendDelay.Store(int64(200 * time.Millisecond))
	rec := postChat(t, s, `{"message": "slow one", "sessionId": "slow"}`)
	assert.Equal(t, http.StatusRequestTimeout, rec.Code)

	resp := decodeJSON[ErrorResponse](t, rec)
	assert.Contains(t, resp.Error, "timed out")

	// The session stays usable once the provider recovers.
	p.sendDelay.Store(0)
	time.Sleep(250 * time.Millisecond) // let the abandoned call drain
	rec = postChat(t, s, `{"message": "fast one", "sessionId": "slow"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(1), p.created.Load(), "timeout does not recreate the session")
}

func TestDeleteSession(t *testing.T) {
	p := &stubProvider{}
	s := newTestServer(t, p, Options{})

	// Deleting a session that never existed still succeeds.
	req := httptest.NewRequest(http.MethodDelete, "/api/chat/never?userType=general", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeJSON[DeleteResponse](t, rec)
	assert.Equal(t, "never", resp.SessionID)

	// Create, delete, then recreate: the new request gets a fresh handle.
	postChat(t, s, `{"message": "hi", "userType": "general", "sessionId": "gone"}`)
	require.Equal(t, int64(1), p.created.Load())

	req = httptest.NewRequest(http.MethodDelete, "/api/chat/gone?userType=general", nil)
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	postChat(t, s, `{"message": "hi again", "userType": "general", "sessionId": "gone"}`)
	assert.Equal(t, int64(2), p.created.Load(), "deleted key creates a brand-new handle")
	assert.Equal(t, []string{"hi again"}, p.lastSession().turns, "fresh history")
}

func TestDeleteSessionDefaultUserType(t *testing.T) {
	p := &stubProvider{}
	s := newTestServer(t, p, Options{})

	postChat(t, s, `{"message": "hi", "userType": "aspiring", "sessionId": "d1"}`)
	require.Equal(t, 1, s.registry.Count())

	// No userType query parameter defaults to aspiring.
	req := httptest.NewRequest(http.MethodDelete, "/api/chat/d1", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0, s.registry.Count())
}

func TestListSessions(t *testing.T) {
	s := newTestServer(t, &stubProvider{}, Options{})

	postChat(t, s, `{"message": "hi", "userType": "aspiring", "sessionId": "s1"}`)
	postChat(t, s, `{"message": "hi", "userType": "general", "sessionId": "s2"}`)

	req := httptest.NewRequest(http.MethodGet, "/api/sessions", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeJSON[SessionsResponse](t, rec)
	assert.Equal(t, 2, resp.ActiveSessions)
	assert.ElementsMatch(t, []string{"aspiring_s1", "general_s2"}, resp.Sessions)
}

func TestCORS(t *testing.T) {
	s := newTestServer(t, &stubProvider{}, Options{
		AllowedOrigins: []string{"http://localhost:5173"},
	})

	t.Run("allowed origin", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
		req.Header.Set("Origin", "http://localhost:5173")
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, req)

		assert.Equal(t, "http://localhost:5173", rec.Header().Get("Access-Control-Allow-Origin"))
		assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))
	})

	t.Run("disallowed origin", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
		req.Header.Set("Origin", "http://evil.example.com")
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, req)

		assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("preflight", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodOptions, "/api/chat", nil)
		req.Header.Set("Origin", "http://localhost:5173")
		req.Header.Set("Access-Control-Request-Method", http.MethodPost)
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, req)

		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), "DELETE")
		assert.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), "Authorization")
	})
}

func TestChatRateLimit(t *testing.T) {
	s := newTestServer(t, &stubProvider{}, Options{RateLimitPerMinute: 2})

	rec := postChat(t, s, `{"message": "one"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = postChat(t, s, `{"message": "two"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = postChat(t, s, `{"message": "three"}`)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t, &stubProvider{}, Options{})

	postChat(t, s, `{"message": "hi"}`)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "chat_requests_total")
}

func TestShutdownRejectsNewRequests(t *testing.T) {
	s := newTestServer(t, &stubProvider{}, Options{})

	postChat(t, s, `{"message": "hi"}`)
	require.Equal(t, 1, s.registry.Count())

	require.NoError(t, s.Stop())

	rec := postChat(t, s, `{"message": "too late"}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, 0, s.registry.Count(), "shutdown clears the registry")
}
