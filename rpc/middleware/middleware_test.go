package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRateLimiterBlocksAfterBurst(t *testing.T) {
	limiter := NewRateLimiter(RateLimit{RequestsPerSecond: 1, Burst: 1}, nil)
	handler := limiter.Middleware(okHandler())

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusOK {
		t.Fatalf("expected first request to succeed, got %d", res.Code)
	}
	res = httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusTooManyRequests {
		t.Fatalf("expected second request to be rate limited, got %d", res.Code)
	}

	other := httptest.NewRequest(http.MethodPost, "/", nil)
	other.Header.Set("X-Forwarded-For", "10.0.0.9, 10.0.0.1")
	res = httptest.NewRecorder()
	handler.ServeHTTP(res, other)
	if res.Code != http.StatusOK {
		t.Fatalf("expected separate bucket per client, got %d", res.Code)
	}
}

func TestRateLimiterEvictsIdleVisitors(t *testing.T) {
	limiter := NewRateLimiter(RateLimit{RequestsPerSecond: 1, Burst: 1}, nil)
	now := time.Unix(1_700_000_000, 0)
	limiter.clockNow = func() time.Time { return now }
	limiter.obtainLimiter("a")
	now = now.Add(2 * visitorIdleTTL)
	limiter.obtainLimiter("b")
	if _, ok := limiter.visitors["a"]; ok {
		t.Fatalf("idle visitor not evicted")
	}
}

func TestRateLimiterDisabled(t *testing.T) {
	handler := NewRateLimiter(RateLimit{}, nil).Middleware(okHandler())
	for i := 0; i < 5; i++ {
		res := httptest.NewRecorder()
		handler.ServeHTTP(res, httptest.NewRequest(http.MethodPost, "/", nil))
		if res.Code != http.StatusOK {
			t.Fatalf("request %d limited while disabled", i)
		}
	}
}

func signToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func TestAuthenticator(t *testing.T) {
	auth := NewAuthenticator(AuthConfig{HMACSecret: "s3cret", Issuer: "ecomledger"}, nil)
	var subject string
	handler := auth.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		subject = SubjectFromContext(r.Context())
	}))

	cases := []struct {
		name   string
		header string
		want   int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"wrong secret", "Bearer " + signToken(t, "other", jwt.MapClaims{"iss": "ecomledger", "exp": time.Now().Add(time.Hour).Unix()}), http.StatusUnauthorized},
		{"wrong issuer", "Bearer " + signToken(t, "s3cret", jwt.MapClaims{"iss": "other", "exp": time.Now().Add(time.Hour).Unix()}), http.StatusUnauthorized},
		{"no expiry", "Bearer " + signToken(t, "s3cret", jwt.MapClaims{"iss": "ecomledger"}), http.StatusUnauthorized},
		{"valid", "Bearer " + signToken(t, "s3cret", jwt.MapClaims{"iss": "ecomledger", "sub": "ops", "exp": time.Now().Add(time.Hour).Unix()}), http.StatusOK},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		if tc.header != "" {
			req.Header.Set("Authorization", tc.header)
		}
		res := httptest.NewRecorder()
		handler.ServeHTTP(res, req)
		if res.Code != tc.want {
			t.Fatalf("%s: expected %d, got %d", tc.name, tc.want, res.Code)
		}
	}
	if subject != "ops" {
		t.Fatalf("expected subject in context, got %q", subject)
	}

	open := NewAuthenticator(AuthConfig{}, nil)
	if open.Enabled() {
		t.Fatalf("authenticator without secret must be disabled")
	}
}

func TestRequestID(t *testing.T) {
	var seen string
	handler := RequestID(AccessLog(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
	})))

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodPost, "/", nil))
	if _, err := uuid.Parse(seen); err != nil {
		t.Fatalf("expected generated uuid, got %q", seen)
	}
	if res.Header().Get(RequestIDHeader) != seen {
		t.Fatalf("response header must echo request id")
	}

	inbound := uuid.NewString()
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set(RequestIDHeader, inbound)
	handler.ServeHTTP(httptest.NewRecorder(), req)
	if seen != inbound {
		t.Fatalf("expected inbound id to be reused")
	}
}
