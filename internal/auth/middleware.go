package auth

import (
	"context"
	"net/http"
	"strings"
)

// contextKey is an unexported type used for context keys in this package, so
// no other package can read or shadow the user ID.
type contextKey string

const userIDKey contextKey = "userID"

// AccessVerifier is the part of TokenIssuer the middleware needs.
type AccessVerifier interface {
	VerifyAccess(token string) (string, error)
}

// RequireAuth enforces a valid bearer access token.
//
// It reads "Authorization: Bearer <jwt>", verifies it as an ACCESS token and
// stores the userID in the request context. Missing or invalid tokens get a
// 401 JSON body and the chain stops.
//
// Refresh tokens never reach this middleware: they live in an HttpOnly cookie
// that only PATCH /token/refresh reads, and VerifyAccess rejects them anyway.
func RequireAuth(tokens AccessVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, err := extractUserID(r, tokens)
			if err != nil {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				w.Write([]byte(`{"error":"unauthorized","message":"valid authentication required"}`))
				return
			}

			ctx := context.WithValue(r.Context(), userIDKey, userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// OptionalAuth extracts the user identity if a valid token is present but
// never blocks the request.
//
// Used on GET /projects: anonymous visitors can browse, signed-in users also
// get isVoted / isBookmarked flags.
func OptionalAuth(tokens AccessVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if userID, err := extractUserID(r, tokens); err == nil && userID != "" {
				r = r.WithContext(context.WithValue(r.Context(), userIDKey, userID))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// UserIDFromContext returns ("", false) for anonymous requests.
func UserIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(userIDKey).(string)
	return id, ok && id != ""
}

// WithUserID returns a context carrying userID, as RequireAuth would set it.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

func extractUserID(r *http.Request, tokens AccessVerifier) (string, error) {
	header := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" {
		return "", ErrInvalidToken
	}
	return tokens.VerifyAccess(strings.TrimSpace(token))
}
