package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
)

func newTestVerifier(t *testing.T, opts Options) *Verifier {
	t.Helper()
	if opts.Secret == nil {
		opts.Secret = []byte("test-secret")
	}
	v, err := NewVerifier(opts)
	if err != nil {
		t.Fatalf("NewVerifier: %v", err)
	}
	return v
}

func TestNewVerifier_EmptySecret(t *testing.T) {
	if _, err := NewVerifier(Options{}); err == nil {
		t.Error("expected error for empty secret")
	}
}

func TestIssueVerify_RoundTrip(t *testing.T) {
	v := newTestVerifier(t, Options{Issuer: "reportbrief", Audience: "api", CacheSize: 10, CacheTTL: time.Minute})

	token, err := v.Issue("user-42", time.Hour)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	for i := 0; i < 2; i++ { // second pass hits the cache
		userID, err := v.Verify(token)
		if err != nil {
			t.Fatalf("Verify: %v", err)
		}
		if userID != "user-42" {
			t.Errorf("userID: got %q, want user-42", userID)
		}
	}
}

func TestVerify_Rejections(t *testing.T) {
	v := newTestVerifier(t, Options{Issuer: "reportbrief"})
	other := newTestVerifier(t, Options{Secret: []byte("other-secret"), Issuer: "reportbrief"})
	wrongIssuer := newTestVerifier(t, Options{Issuer: "someone-else"})

	forged, _ := other.Issue("user-1", time.Hour)
	foreign, _ := wrongIssuer.Issue("user-1", time.Hour)
	noSubject, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Issuer:    "reportbrief",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString([]byte("test-secret"))
	noExpiry, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Issuer:  "reportbrief",
		Subject: "user-1",
	}).SignedString([]byte("test-secret"))
	noneAlg, _ := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{
		Subject:   "user-1",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)

	tests := []struct {
		name  string
		token string
		want  error
	}{
		{"empty", "", ErrMissingToken},
		{"garbage", "not.a.jwt", ErrInvalidToken},
		{"wrong secret", forged, ErrInvalidToken},
		{"wrong issuer", foreign, ErrInvalidToken},
		{"no subject", noSubject, ErrInvalidToken},
		{"no expiry", noExpiry, ErrInvalidToken},
		{"alg none", noneAlg, ErrInvalidToken},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := v.Verify(tt.token); !errors.Is(err, tt.want) {
				t.Errorf("Verify: got %v, want %v", err, tt.want)
			}
		})
	}
}

func TestVerify_Expired(t *testing.T) {
	v := newTestVerifier(t, Options{})
	token, _ := v.Issue("user-1", -time.Minute)
	if _, err := v.Verify(token); !errors.Is(err, ErrExpiredToken) {
		t.Errorf("got %v, want ErrExpiredToken", err)
	}
}

func TestVerify_CachedTokenExpires(t *testing.T) {
	v := newTestVerifier(t, Options{CacheSize: 10, CacheTTL: time.Hour})
	token, _ := v.Issue("user-1", time.Minute)

	if _, err := v.Verify(token); err != nil {
		t.Fatalf("Verify: %v", err)
	}

	v.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	if _, err := v.Verify(token); err == nil {
		t.Error("a cached token past its expiry must be rejected")
	}
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header string
		want   string
		ok     bool
	}{
		{"Bearer abc", "abc", true},
		{"bearer abc", "abc", true},
		{"Bearer   abc  ", "abc", true},
		{"Bearer ", "", false},
		{"Basic abc", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, err := BearerToken(tt.header)
		if (err == nil) != tt.ok || got != tt.want {
			t.Errorf("BearerToken(%q) = %q, %v", tt.header, got, err)
		}
	}
}

func TestUserID_Context(t *testing.T) {
	if _, ok := UserID(context.Background()); ok {
		t.Error("empty context should carry no user")
	}
	ctx := WithUserID(context.Background(), "u1")
	if id, ok := UserID(ctx); !ok || id != "u1" {
		t.Errorf("UserID: got %q, %v", id, ok)
	}
}

func TestMiddleware(t *testing.T) {
	v := newTestVerifier(t, Options{})
	token, _ := v.Issue("user-7", time.Hour)

	var seen string
	h := Middleware(v, zerolog.Nop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = UserID(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	tests := []struct {
		name   string
		header string
		status int
	}{
		{"valid", "Bearer " + token, http.StatusNoContent},
		{"missing", "", http.StatusUnauthorized},
		{"invalid", "Bearer nope", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen = ""
			req := httptest.NewRequest(http.MethodGet, "/usage", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if rec.Code != tt.status {
				t.Fatalf("status: got %d, want %d", rec.Code, tt.status)
			}
			if tt.status == http.StatusUnauthorized {
				if body := rec.Body.String(); body != "{\"error\":\"Unauthorised\",\"kind\":\"auth\"}\n" {
					t.Errorf("body: got %q", body)
				}
				if seen != "" {
					t.Error("handler must not run for rejected requests")
				}
			} else if seen != "user-7" {
				t.Errorf("user in context: got %q", seen)
			}
		})
	}
}
