// Package auth issues and checks the bearer tokens that identify callers
// of the REST and websocket surfaces.
//
// Tokens are HS256 JWTs whose subject is the user id. Registration hands
// one out; there is no password step.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"cipherlink/internal/domain"
)

// DefaultTTL is the lifetime of an issued token.
const DefaultTTL = 24 * time.Hour

const issuer = "cipherlink-kdc"

// ErrUnauthorized is returned for a missing, malformed or expired token.
var ErrUnauthorized = errors.New("unauthorized")

// Tokens issues and verifies bearer tokens with one shared secret.
type Tokens struct {
	secret []byte
	ttl    time.Duration
	now    domain.Clock
}

// NewTokens returns a token authority.
func NewTokens(secret string, ttl time.Duration, clock domain.Clock) (*Tokens, error) {
	if len(secret) < 16 {
		return nil, errors.New("auth: token secret must be at least 16 bytes")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if clock == nil {
		clock = time.Now
	}
	return &Tokens{secret: []byte(secret), ttl: ttl, now: clock}, nil
}

// Issue returns a signed token for user.
func (t *Tokens) Issue(user domain.UserID) (string, error) {
	now := t.now()
	claims := jwt.RegisteredClaims{
		Issuer:    issuer,
		Subject:   user.String(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
}

// Verify checks token and returns the user it was issued to.
func (t *Tokens) Verify(token string) (domain.UserID, error) {
	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (interface{}, error) {
		return t.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrUnauthorized, err)
	}
	if claims.Subject == "" {
		return "", fmt.Errorf("%w: token has no subject", ErrUnauthorized)
	}
	return domain.UserID(claims.Subject), nil
}

type ctxKey struct{}

// WithUser returns ctx carrying the authenticated user.
func WithUser(ctx context.Context, u domain.UserID) context.Context {
	return context.WithValue(ctx, ctxKey{}, u)
}

// UserFrom returns the authenticated user of ctx.
func UserFrom(ctx context.Context) (domain.UserID, bool) {
	u, ok := ctx.Value(ctxKey{}).(domain.UserID)
	return u, ok && u != ""
}

// BearerToken extracts the token of an "Authorization: Bearer" header.
func BearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(h) <= len(prefix) || !strings.EqualFold(h[:len(prefix)], prefix) {
		return "", false
	}
	return strings.TrimSpace(h[len(prefix):]), true
}

// Middleware rejects requests without a valid token and puts the caller
// into the request context. onFail writes the rejection.
func (t *Tokens) Middleware(onFail func(http.ResponseWriter, *http.Request, error)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tok, ok := BearerToken(r)
			if !ok {
				onFail(w, r, fmt.Errorf("%w: missing bearer token", ErrUnauthorized))
				return
			}
			user, err := t.Verify(tok)
			if err != nil {
				onFail(w, r, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
		})
	}
}
