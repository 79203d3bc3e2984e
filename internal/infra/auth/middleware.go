package auth

import (
	"context"
	"net/http"

	"github.com/lishushu94/provider-console/internal/domain"
	"go.uber.org/zap"
)

// TokenValidator is implemented by anything that can verify console tokens.
type TokenValidator interface {
	VerifyToken(tokenStr string) (*domain.CustomClaims, error)
}

// Typed context key avoids collisions with other middleware.
type ctxKey string

const viewerKey ctxKey = "viewer"

// NewMiddleware verifies the Bearer token and threads a read-only Viewer
// through the request context.
func NewMiddleware(v TokenValidator, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			claims, err := v.VerifyToken(authHeader)
			if err != nil {
				logger.Warn("auth failure", zap.Error(err))
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			viewer := domain.Viewer{
				UserID: claims.UserID,
				Role:   claims.Role,
				Scopes: claims.Scopes,
			}
			ctx := context.WithValue(r.Context(), viewerKey, viewer)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ViewerFromContext returns the authenticated viewer, or the zero Viewer for
// unauthenticated contexts (which carries no capabilities).
func ViewerFromContext(ctx context.Context) domain.Viewer {
	if v, ok := ctx.Value(viewerKey).(domain.Viewer); ok {
		return v
	}
	return domain.Viewer{}
}

// WithViewer is used by tests to build authenticated contexts directly.
func WithViewer(ctx context.Context, v domain.Viewer) context.Context {
	return context.WithValue(ctx, viewerKey, v)
}
