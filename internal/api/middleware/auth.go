package middleware

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/cloo-solutions/kbase/internal/api"
)

type contextKey string

const CallerKey contextKey = "caller"

// callerHeader carries the authenticated caller back to outer middleware,
// which share the request's header map but not its context.
const callerHeader = "X-Kbase-Caller"

// TokenValidator resolves a bearer token to a caller name.
type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) (string, error)
}

// StaticTokens accepts a fixed set of tokens, keyed by token with the caller
// name as value.
type StaticTokens map[string]string

// ValidateToken implements TokenValidator.
func (s StaticTokens) ValidateToken(_ context.Context, token string) (string, error) {
	for t, caller := range s {
		if subtle.ConstantTimeCompare([]byte(t), []byte(token)) == 1 {
			return caller, nil
		}
	}
	return "", errInvalidToken
}

type authError string

func (e authError) Error() string { return string(e) }

const errInvalidToken = authError("invalid token")

// BearerAuth rejects requests without a valid bearer token.
func BearerAuth(validator TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.Header.Del(callerHeader)
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				api.Error(w, http.StatusUnauthorized, "missing authorization header")
				return
			}

			if !strings.HasPrefix(authHeader, "Bearer ") {
				api.Error(w, http.StatusUnauthorized, "invalid authorization format")
				return
			}

			token := strings.TrimPrefix(authHeader, "Bearer ")

			caller, err := validator.ValidateToken(r.Context(), token)
			if err != nil {
				api.Error(w, http.StatusUnauthorized, "invalid token")
				return
			}

			r.Header.Set(callerHeader, caller)
			ctx := context.WithValue(r.Context(), CallerKey, caller)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// requestCaller returns the caller recorded for r by BearerAuth.
func requestCaller(r *http.Request) string {
	if caller := GetCaller(r.Context()); caller != "" {
		return caller
	}
	return r.Header.Get(callerHeader)
}

func GetCaller(ctx context.Context) string {
	caller, _ := ctx.Value(CallerKey).(string)
	return caller
}
