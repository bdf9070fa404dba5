package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"gorm.io/gorm"
)

// ContextKey is a custom type for context keys to avoid collisions.
type ContextKey string

const (
	// AuthContextKey is the key for storing AuthContext in request context.
	AuthContextKey ContextKey = "authContext"
)

// Middleware creates an HTTP middleware that extracts and injects the
// operator's authentication context. If any step fails (missing token,
// invalid token, unknown operator), the request proceeds without auth
// context; handlers decide whether that is acceptable. This allows public
// endpoints, protected endpoints, and optional-auth endpoints to share one
// middleware.
func Middleware(authService *AuthService, tokenExtractor *TokenExtractor) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				slog.Debug("no authorization header provided")
				next.ServeHTTP(w, r)
				return
			}

			operatorID, err := tokenExtractor.ExtractOperatorIDFromHeader(authHeader)
			if err != nil {
				slog.Warn("failed to extract operator ID from token", "error", err)
				next.ServeHTTP(w, r)
				return
			}

			operatorCtx, err := authService.GetOperatorContext(operatorID)
			if err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					slog.Info("unknown operator, continuing unauthenticated",
						"operator_id", operatorID,
					)
				} else {
					slog.Warn("failed to get operator context from database",
						"operator_id", operatorID,
						"error", err,
					)
				}
				next.ServeHTTP(w, r)
				return
			}

			ctx := context.WithValue(r.Context(), AuthContextKey, &AuthContext{
				OperatorContext: operatorCtx,
			})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetAuthContext extracts the AuthContext from a request context. Returns
// nil if no auth context is available.
func GetAuthContext(ctx context.Context) *AuthContext {
	authCtx, ok := ctx.Value(AuthContextKey).(*AuthContext)
	if !ok {
		return nil
	}
	return authCtx
}

// RequireAuth returns a middleware that rejects unauthenticated requests
// with 401.
func RequireAuth(authService *AuthService, tokenExtractor *TokenExtractor) func(http.Handler) http.Handler {
	authMiddleware := Middleware(authService, tokenExtractor)

	return func(next http.Handler) http.Handler {
		return authMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if GetAuthContext(r.Context()) == nil {
				slog.Warn("authentication required but not provided",
					"method", r.Method,
					"path", r.URL.Path,
				)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"error":"unauthorized","message":"authentication required"}`))
				return
			}
			next.ServeHTTP(w, r)
		}))
	}
}

// RequireSupervisor returns a middleware that rejects requests from anyone
// but an authenticated supervisor with 403. Applied to the reverification
// and hold-release endpoints.
func RequireSupervisor(authService *AuthService, tokenExtractor *TokenExtractor) func(http.Handler) http.Handler {
	authMiddleware := Middleware(authService, tokenExtractor)

	return func(next http.Handler) http.Handler {
		return authMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authCtx := GetAuthContext(r.Context())
			if authCtx == nil {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"error":"unauthorized","message":"authentication required"}`))
				return
			}
			if !authCtx.IsSupervisor() {
				slog.Warn("supervisor role required",
					"operator_id", authCtx.OperatorID,
					"role", authCtx.Role,
					"path", r.URL.Path,
				)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusForbidden)
				_, _ = w.Write([]byte(`{"error":"forbidden","message":"supervisor role required"}`))
				return
			}
			next.ServeHTTP(w, r)
		}))
	}
}
