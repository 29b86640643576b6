package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/rookgm/paywatch/internal/models"
)

type contextKey int

const (
	contextKeyAuthPayload contextKey = iota
)

// TokenVerifier checks API token and returns its payload
type TokenVerifier interface {
	VerifyToken(tokenString string) (*models.TokenPayload, error)
}

// Auth gets bearer token from Authorization header and passes its payload to the context
func Auth(tv TokenVerifier) func(handler http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			payload, err := tv.VerifyToken(token)
			if err != nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithAuthPayload(r.Context(), payload)))
		})
	}
}

// WithAuthPayload returns context carrying token payload
func WithAuthPayload(ctx context.Context, payload *models.TokenPayload) context.Context {
	return context.WithValue(ctx, contextKeyAuthPayload, payload)
}

// AuthPayload extracts token payload from context
func AuthPayload(ctx context.Context) (*models.TokenPayload, bool) {
	payload, ok := ctx.Value(contextKeyAuthPayload).(*models.TokenPayload)
	return payload, ok && payload != nil
}

func bearerToken(r *http.Request) (string, bool) {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
