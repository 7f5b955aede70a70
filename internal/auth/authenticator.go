package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/aiserve/inference-gateway/internal/config"
	"github.com/aiserve/inference-gateway/internal/gatewayerr"
)

// Principal is what a successful authentication attaches to the request
// context: the scope (model name or "*") and the key's type/owner.
type Principal struct {
	ModelID string
	Type    string
	UserID  string
}

// AllowsModel implements §4.5 step 7's scope check.
func (p Principal) AllowsModel(name string) bool {
	return p.ModelID == "*" || p.ModelID == name
}

// unauthenticatedPrincipal is attached when auth is globally disabled
// (local-dev), per §4.5 step 2.
var unauthenticatedPrincipal = Principal{ModelID: "*", Type: "unauthenticated"}

// Authenticator runs the bearer-token pipeline of §4.5 steps 2-5.
type Authenticator struct {
	store        Store
	cache        *lru.LRU[string, *KeyRecord]
	baseModelKey string
	jwtSecret    string
	requireAuth  bool
}

// New builds an Authenticator from the gateway's auth configuration.
func New(cfg config.AuthConfig, store Store) *Authenticator {
	return &Authenticator{
		store:        store,
		cache:        newKeyCache(cfg.KeyCacheSize, cfg.KeyCacheTTL),
		baseModelKey: cfg.BaseModelAPIKey,
		jwtSecret:    cfg.JWTSecret,
		requireAuth:  cfg.RequireAuth,
	}
}

// Authenticate resolves an Authorization header into a Principal, or a
// *gatewayerr.Error whose Kind maps to the right HTTP status.
func (a *Authenticator) Authenticate(ctx context.Context, authHeader string) (Principal, error) {
	if !a.requireAuth {
		return unauthenticatedPrincipal, nil
	}

	if authHeader == "" {
		return Principal{}, gatewayerr.New(gatewayerr.AuthMissing, "missing Authorization header")
	}

	token, ok := ParseBearer(authHeader)
	if !ok {
		// Not an sk_/ak_ key - an operator JWT is the other accepted
		// bearer scheme. Its principal has scope "*", so it also passes
		// the model-scope check on the chat/completion routes.
		if raw := strings.TrimPrefix(authHeader, "Bearer "); looksLikeJWT(raw) && a.jwtSecret != "" {
			subject, err := validateAdminToken(raw, a.jwtSecret)
			if err != nil {
				return Principal{}, gatewayerr.New(gatewayerr.AuthInvalid, "invalid admin token")
			}
			return Principal{ModelID: "*", Type: "admin-jwt", UserID: subject}, nil
		}
		return Principal{}, gatewayerr.New(gatewayerr.AuthMalformed, "Authorization header must be a Bearer token with sk_ or ak_ prefix, or an operator JWT")
	}

	if a.baseModelKey != "" && token == a.baseModelKey {
		return Principal{ModelID: "*", Type: "base"}, nil
	}

	hash := HashToken(token)

	rec, cached := a.cache.Get(hash)
	if !cached {
		var err error
		rec, err = a.store.Lookup(ctx, hash)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return Principal{}, gatewayerr.New(gatewayerr.AuthInvalid, "unknown API key")
			}
			return Principal{}, gatewayerr.Wrap(gatewayerr.Internal, "key store lookup failed", err)
		}
		a.cache.Add(hash, rec)
	}

	if !rec.IsActive {
		return Principal{}, gatewayerr.New(gatewayerr.AuthInvalid, "API key is revoked")
	}
	if rec.ExpiresAt != nil && rec.ExpiresAt.Before(time.Now()) {
		return Principal{}, gatewayerr.New(gatewayerr.AuthExpired, "API key has expired")
	}

	return Principal{ModelID: rec.ModelName, Type: rec.Type, UserID: rec.UserID}, nil
}
