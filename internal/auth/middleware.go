package auth

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/BradenHooton/tollgate/internal/models"
	pkghttp "github.com/BradenHooton/tollgate/pkg/http"
)

// contextKey is a custom type for context keys
type contextKey string

const (
	// UserContextKey is the key for storing user claims in context
	UserContextKey contextKey = "user"
)

// DenialRecorder receives audit events for refused admin access
type DenialRecorder interface {
	Record(ctx context.Context, ev *models.AuditEvent) error
}

// OptionalAuth validates a bearer token when one is present and injects its
// claims into the context. Requests without a valid token pass through
// anonymously and are identified by IP.
func OptionalAuth(tm *TokenManager) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString, ok := bearerToken(r)
			if !ok {
				next.ServeHTTP(w, r)
				return
			}

			claims, err := tm.ValidateToken(tokenString)
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}

			ctx := context.WithValue(r.Context(), UserContextKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAuth rejects requests without validated claims. Must run after OptionalAuth.
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if GetUserFromContext(r) == nil {
			pkghttp.WriteUnauthorized(w, "missing or invalid bearer token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireRole enforces that the principal holds role. Refusals are audited.
func RequireRole(role models.Role, recorder DenialRecorder, resolver *IdentityResolver, logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := GetUserFromContext(r)
			if claims == nil {
				pkghttp.WriteUnauthorized(w, "missing or invalid bearer token")
				return
			}

			if claims.Role != role {
				fp := resolver.Fingerprint(r)
				metadata := fp.Metadata()
				metadata["method"] = r.Method
				metadata["required_role"] = string(role)
				metadata["role"] = string(claims.Role)

				err := recorder.Record(r.Context(), &models.AuditEvent{
					ActorUserID: models.StrPtr(claims.UserID),
					ActorIP:     models.StrPtr(fp.IP),
					EventName:   models.AuditEventAdminAccessDenied,
					TargetType:  models.AuditTargetRoute,
					TargetID:    models.StrPtr(r.URL.Path),
					Severity:    models.SeverityMedium,
					Metadata:    metadata,
				})
				if err != nil {
					logger.ErrorContext(r.Context(), "failed to audit access denial", slog.Any("error", err))
				}

				pkghttp.WriteForbidden(w, "insufficient permissions")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// GetUserFromContext extracts user claims from request context
func GetUserFromContext(r *http.Request) *models.TokenClaims {
	claims, ok := r.Context().Value(UserContextKey).(*models.TokenClaims)
	if !ok {
		return nil
	}
	return claims
}

// WithClaims returns a context carrying claims
func WithClaims(ctx context.Context, claims *models.TokenClaims) context.Context {
	return context.WithValue(ctx, UserContextKey, claims)
}

func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", false
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return "", false
	}

	return parts[1], true
}
