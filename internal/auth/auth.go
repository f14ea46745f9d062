// Package auth identifies the caller of an HTTP request from an HS256
// bearer token whose subject is the caller's account address.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMissingToken = errors.New("auth: authorization header missing")
	ErrInvalidToken = errors.New("auth: invalid token")
)

type ctxKey struct{}

// Claims are the token claims. Subject holds the account address.
type Claims struct {
	jwt.RegisteredClaims
}

// Issuer signs and verifies caller tokens.
type Issuer struct {
	key []byte
	ttl time.Duration
	now func() time.Time
}

func NewIssuer(secret string, ttl time.Duration) *Issuer {
	return &Issuer{key: []byte(secret), ttl: ttl, now: time.Now}
}

// Issue returns a signed token for account and its expiry.
func (i *Issuer) Issue(account common.Address) (string, time.Time, error) {
	now := i.now()
	expires := now.Add(i.ttl)
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   account.Hex(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.key)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expires, nil
}

// Parse verifies token and returns the account it was issued for.
func (i *Issuer) Parse(token string) (common.Address, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return i.key, nil
	}, jwt.WithTimeFunc(i.now))
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if !parsed.Valid || !common.IsHexAddress(claims.Subject) {
		return common.Address{}, fmt.Errorf("%w: subject %q", ErrInvalidToken, claims.Subject)
	}
	return common.HexToAddress(claims.Subject), nil
}

// Middleware rejects requests without a valid bearer token and stores the
// caller in the request context.
func (i *Issuer) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" {
			unauthorized(w, ErrMissingToken)
			return
		}
		scheme, token, ok := strings.Cut(header, " ")
		if !ok || scheme != "Bearer" {
			unauthorized(w, fmt.Errorf("%w: expected Bearer scheme", ErrInvalidToken))
			return
		}
		caller, err := i.Parse(token)
		if err != nil {
			unauthorized(w, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithCaller(r.Context(), caller)))
	})
}

func WithCaller(ctx context.Context, caller common.Address) context.Context {
	return context.WithValue(ctx, ctxKey{}, caller)
}

// Caller returns the authenticated caller of a request context.
func Caller(ctx context.Context) (common.Address, bool) {
	caller, ok := ctx.Value(ctxKey{}).(common.Address)
	return caller, ok
}

func unauthorized(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
