// Package authn resolves the acting user of a request. Access tokens are
// issued by the auth service; this package only verifies them.
package authn

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"

	"musicroom/internal/apperr"
)

// TokenClaims mirrors the claims written by the auth service.
type TokenClaims struct {
	UserID        string `json:"uid"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"emailVerified"`
	TokenType     string `json:"typ"`
	jwt.RegisteredClaims
}

var (
	ErrNoCredentials = errors.New("missing credentials")
	ErrInvalidToken  = errors.New("invalid token")
)

type ctxUserKey struct{}

// Authenticator verifies HS256 access tokens. When TrustGateway is set a
// request without a token may instead carry X-User-Id, stamped by the
// API gateway after it verified the token itself.
type Authenticator struct {
	secret       []byte
	trustGateway bool
}

func New(secret string, trustGateway bool) *Authenticator {
	return &Authenticator{secret: []byte(secret), trustGateway: trustGateway}
}

// Parse validates raw and returns its claims. Only access tokens pass.
func (a *Authenticator) Parse(raw string) (*TokenClaims, error) {
	claims := &TokenClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return a.secret, nil
	})
	if err != nil || !token.Valid || claims.TokenType != "access" || claims.UserID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// Resolve finds the user id for r. The token may come from the
// Authorization header or, for websocket handshakes, the token query
// parameter.
func (a *Authenticator) Resolve(r *http.Request) (string, error) {
	raw := ""
	if h := r.Header.Get("Authorization"); h != "" {
		parts := strings.SplitN(h, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			return "", ErrInvalidToken
		}
		raw = parts[1]
	} else if q := r.URL.Query().Get("token"); q != "" {
		raw = q
	}

	if raw != "" {
		claims, err := a.Parse(raw)
		if err != nil {
			return "", err
		}
		return claims.UserID, nil
	}
	if a.trustGateway {
		if id := strings.TrimSpace(r.Header.Get("X-User-Id")); id != "" {
			return id, nil
		}
	}
	return "", ErrNoCredentials
}

// Middleware rejects unauthenticated requests with 401 and stores the
// user id in the request context.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, err := a.Resolve(r)
		if err != nil {
			log.Debug().Err(err).Str("path", r.URL.Path).Msg("unauthenticated request")
			apperr.WriteError(w, http.StatusUnauthorized, err.Error())
			return
		}
		next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), userID)))
	})
}

func WithUser(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, ctxUserKey{}, userID)
}

// UserID returns the authenticated user, or "" outside Middleware.
func UserID(ctx context.Context) string {
	id, _ := ctx.Value(ctxUserKey{}).(string)
	return id
}
