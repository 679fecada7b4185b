package http

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sagarc03/strongbox"
	"github.com/sagarc03/strongbox/metrics"
)

// Authenticator turns a bearer token into the calling identity.
type Authenticator interface {
	Authenticate(token string) (strongbox.Identity, error)
}

type identityKey struct{}

// WithIdentity returns a copy of ctx carrying the caller.
func WithIdentity(ctx context.Context, id strongbox.Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFromContext returns the caller stored by IdentityMiddleware.
func IdentityFromContext(ctx context.Context) (strongbox.Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(strongbox.Identity)
	return id, ok
}

// mustIdentity is only used behind IdentityMiddleware.
func mustIdentity(r *http.Request) strongbox.Identity {
	id, _ := IdentityFromContext(r.Context())
	return id
}

// IdentityMiddleware requires an "Authorization: Bearer <token>" header and
// stores the authenticated caller in the request context. A nil
// authenticator rejects every request.
func IdentityMiddleware(auth Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok || auth == nil {
				WriteError(w, http.StatusUnauthorized, "unauthorized", "Authentication required")
				return
			}

			id, err := auth.Authenticate(token)
			if err != nil || id.Username == "" {
				WriteError(w, http.StatusUnauthorized, "unauthorized", "Authentication required")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// MetricsMiddleware records request count and latency labelled by the chi
// route pattern, so object keys never become label values.
func MetricsMiddleware(m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			route := ""
			if rctx := chi.RouteContext(r.Context()); rctx != nil {
				route = rctx.RoutePattern()
			}
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			m.ObserveRequest(r.Method, route, status, time.Since(start))
		})
	}
}
