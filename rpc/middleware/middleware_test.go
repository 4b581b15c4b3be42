package middleware

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func testAccount(b byte) [20]byte {
	var out [20]byte
	out[0] = 0xAB
	out[19] = b
	return out
}

func callerEcho(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := CallerFromContext(r.Context()); ok {
			w.WriteHeader(http.StatusAccepted)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
}

func TestAuthenticatorResolvesCaller(t *testing.T) {
	auth := NewAuthenticator(AuthConfig{Secret: "s3cret", Issuer: "lstake"}, nil)
	token, err := IssueToken("s3cret", "lstake", testAccount(1), time.Minute)
	require.NoError(t, err)

	caller, err := auth.Verify(token)
	require.NoError(t, err)
	require.Equal(t, testAccount(1), caller)

	req := httptest.NewRequest(http.MethodPost, "/rpc", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	res := httptest.NewRecorder()
	auth.Middleware(callerEcho(t)).ServeHTTP(res, req)
	require.Equal(t, http.StatusAccepted, res.Code)
}

func TestAuthenticatorAnonymousPassesThrough(t *testing.T) {
	auth := NewAuthenticator(AuthConfig{Secret: "s3cret"}, nil)
	res := httptest.NewRecorder()
	auth.Middleware(callerEcho(t)).ServeHTTP(res, httptest.NewRequest(http.MethodPost, "/rpc", nil))
	require.Equal(t, http.StatusOK, res.Code)
}

func TestAuthenticatorRejectsBadTokens(t *testing.T) {
	auth := NewAuthenticator(AuthConfig{Secret: "s3cret", Issuer: "lstake"}, nil)
	wrongSecret, err := IssueToken("other", "lstake", testAccount(1), time.Minute)
	require.NoError(t, err)
	wrongIssuer, err := IssueToken("s3cret", "elsewhere", testAccount(1), time.Minute)
	require.NoError(t, err)
	expired, err := IssueToken("s3cret", "lstake", testAccount(1), -time.Hour)
	require.NoError(t, err)

	cases := map[string]string{
		"wrong secret": "Bearer " + wrongSecret,
		"wrong issuer": "Bearer " + wrongIssuer,
		"expired":      "Bearer " + expired,
		"basic scheme": "Basic dXNlcjpwYXNz",
		"garbage":      "Bearer not-a-jwt",
	}
	for name, header := range cases {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/rpc", nil)
			req.Header.Set("Authorization", header)
			res := httptest.NewRecorder()
			auth.Middleware(callerEcho(t)).ServeHTTP(res, req)
			require.Equal(t, http.StatusUnauthorized, res.Code)
		})
	}
}

func TestAuthenticatorLogsOnlyTokenHint(t *testing.T) {
	var buf bytes.Buffer
	auth := NewAuthenticator(AuthConfig{Secret: "s3cret"}, slog.New(slog.NewJSONHandler(&buf, nil)))
	forged, err := IssueToken("other", "", testAccount(1), time.Minute)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/rpc", nil)
	req.Header.Set("Authorization", "Bearer "+forged)
	auth.Middleware(callerEcho(t)).ServeHTTP(httptest.NewRecorder(), req)

	require.Contains(t, buf.String(), "token validation failed")
	require.Contains(t, buf.String(), "..."+forged[len(forged)-4:])
	require.NotContains(t, buf.String(), forged)
}

func TestAuthenticatorWithoutSecret(t *testing.T) {
	auth := NewAuthenticator(AuthConfig{}, nil)
	_, err := auth.Verify("anything")
	require.ErrorIs(t, err, ErrSecretNotConfigured)
	_, err = IssueToken(" ", "", testAccount(1), 0)
	require.ErrorIs(t, err, ErrSecretNotConfigured)
}

func TestRateLimiterBlocksAfterBurst(t *testing.T) {
	limiter := NewRateLimiter(RateLimit{RatePerSecond: 1, Burst: 1}, nil)
	now := time.Unix(1_700_000_000, 0)
	limiter.clockNow = func() time.Time { return now }
	handler := limiter.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/rpc", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	require.Equal(t, http.StatusOK, res.Code)

	res = httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	require.Equal(t, http.StatusTooManyRequests, res.Code)

	other := httptest.NewRequest(http.MethodPost, "/rpc", nil)
	other.Header.Set("X-Forwarded-For", "10.0.0.9, 10.0.0.1")
	res = httptest.NewRecorder()
	handler.ServeHTTP(res, other)
	require.Equal(t, http.StatusOK, res.Code, "clients are limited independently")

	now = now.Add(2 * time.Second)
	res = httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	require.Equal(t, http.StatusOK, res.Code, "bucket refills over time")
}

func TestRateLimiterEvictsIdleVisitors(t *testing.T) {
	limiter := NewRateLimiter(RateLimit{RatePerSecond: 1, Burst: 1}, nil)
	now := time.Unix(1_700_000_000, 0)
	limiter.clockNow = func() time.Time { return now }
	require.True(t, limiter.allow("a"))
	now = now.Add(visitorTTL + time.Second)
	require.True(t, limiter.allow("b"))
	limiter.mu.Lock()
	defer limiter.mu.Unlock()
	require.NotContains(t, limiter.visitors, "a")
}

func TestRateLimiterDisabled(t *testing.T) {
	limiter := NewRateLimiter(RateLimit{}, nil)
	handler := limiter.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	for i := 0; i < 5; i++ {
		res := httptest.NewRecorder()
		handler.ServeHTTP(res, httptest.NewRequest(http.MethodPost, "/rpc", nil))
		require.Equal(t, http.StatusOK, res.Code)
	}
}
