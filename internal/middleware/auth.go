package middleware

import (
	"context"
	"net/http"

	"github.com/aiserve/inference-gateway/internal/auth"
	"github.com/aiserve/inference-gateway/internal/gatewayerr"
)

type contextKey string

const principalContextKey contextKey = "principal"

// publicRoutes bypass authentication entirely per §4.5 step 1, regardless
// of the RequireAuth setting.
var publicRoutes = map[string]bool{
	"/":          true,
	"/health":    true,
	"/v1/models": true,
	"/metrics":   true,
}

// RequireAuth authenticates every request against the Authenticator and
// attaches the resulting Principal to the request context. Public routes
// bypass the check; everything else is rejected with the status implied
// by the failure's gatewayerr.Kind.
func RequireAuth(authenticator *auth.Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if publicRoutes[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			principal, err := authenticator.Authenticate(r.Context(), r.Header.Get("Authorization"))
			if err != nil {
				respondJSON(w, gatewayerr.StatusCode(err), map[string]string{
					"error":      err.Error(),
					"request_id": GetRequestID(r.Context()),
				})
				return
			}

			ctx := context.WithValue(r.Context(), principalContextKey, principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// PrincipalFromContext returns the Principal attached by RequireAuth.
func PrincipalFromContext(ctx context.Context) (auth.Principal, bool) {
	p, ok := ctx.Value(principalContextKey).(auth.Principal)
	return p, ok
}

// RequireModelScope rejects a request whose Principal isn't authorized
// for the given model name, per §4.5 step 7. Handlers call this once the
// model name is known (path param or request body).
func RequireModelScope(ctx context.Context, model string) error {
	principal, ok := PrincipalFromContext(ctx)
	if !ok {
		return gatewayerr.New(gatewayerr.AuthMissing, "no authenticated principal in context")
	}
	if !principal.AllowsModel(model) {
		return gatewayerr.New(gatewayerr.ScopeDenied, "API key is not authorized for this model").WithModel(model)
	}
	return nil
}
