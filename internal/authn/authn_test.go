package authn

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-test-secret-test-secret"

func signToken(t *testing.T, secret string, claims TokenClaims) string {
	t.Helper()
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return raw
}

func accessClaims(userID string, ttl time.Duration) TokenClaims {
	return TokenClaims{
		UserID:    userID,
		TokenType: "access",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
		},
	}
}

func TestResolve(t *testing.T) {
	a := New(testSecret, false)

	tests := []struct {
		name    string
		setup   func(r *http.Request)
		wantID  string
		wantErr error
	}{
		{
			name: "bearer token",
			setup: func(r *http.Request) {
				r.Header.Set("Authorization", "Bearer "+signToken(t, testSecret, accessClaims("u1", time.Hour)))
			},
			wantID: "u1",
		},
		{
			name: "query token",
			setup: func(r *http.Request) {
				q := r.URL.Query()
				q.Set("token", signToken(t, testSecret, accessClaims("u2", time.Hour)))
				r.URL.RawQuery = q.Encode()
			},
			wantID: "u2",
		},
		{
			name: "expired token",
			setup: func(r *http.Request) {
				r.Header.Set("Authorization", "Bearer "+signToken(t, testSecret, accessClaims("u1", -time.Hour)))
			},
			wantErr: ErrInvalidToken,
		},
		{
			name: "refresh token rejected",
			setup: func(r *http.Request) {
				c := accessClaims("u1", time.Hour)
				c.TokenType = "refresh"
				r.Header.Set("Authorization", "Bearer "+signToken(t, testSecret, c))
			},
			wantErr: ErrInvalidToken,
		},
		{
			name: "wrong secret",
			setup: func(r *http.Request) {
				r.Header.Set("Authorization", "Bearer "+signToken(t, "other-secret", accessClaims("u1", time.Hour)))
			},
			wantErr: ErrInvalidToken,
		},
		{
			name: "malformed header",
			setup: func(r *http.Request) {
				r.Header.Set("Authorization", "Token abc")
			},
			wantErr: ErrInvalidToken,
		},
		{
			name: "gateway header ignored when untrusted",
			setup: func(r *http.Request) {
				r.Header.Set("X-User-Id", "u9")
			},
			wantErr: ErrNoCredentials,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/ws", nil)
			tt.setup(r)
			id, err := a.Resolve(r)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantID, id)
		})
	}
}

func TestResolve_TrustedGateway(t *testing.T) {
	a := New(testSecret, true)
	r := httptest.NewRequest(http.MethodGet, "/events", nil)
	r.Header.Set("X-User-Id", "u9")

	id, err := a.Resolve(r)
	require.NoError(t, err)
	assert.Equal(t, "u9", id)
}

func TestMiddleware(t *testing.T) {
	a := New(testSecret, true)
	var seen string
	h := a.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = UserID(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	t.Run("authenticated", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/events", nil)
		r.Header.Set("X-User-Id", "u3")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, r)
		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Equal(t, "u3", seen)
	})

	t.Run("anonymous", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/events", nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.JSONEq(t, `{"error":"missing credentials"}`, rec.Body.String())
	})
}
