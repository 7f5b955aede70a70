// Package router wires the gateway's HTTP surface: the OpenAI-compatible
// chat/completions endpoints (model-in-body and model-in-path variants),
// the admin operational endpoints, and the public info/health/models
// routes, per §6 of the inference gateway's external interface.
package router

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/aiserve/inference-gateway/internal/auth"
	gwcache "github.com/aiserve/inference-gateway/internal/cache"
	"github.com/aiserve/inference-gateway/internal/inference"
	"github.com/aiserve/inference-gateway/internal/metadata"
	"github.com/aiserve/inference-gateway/internal/metrics"
	mw "github.com/aiserve/inference-gateway/internal/middleware"
	"github.com/aiserve/inference-gateway/internal/modelcache"
)

// New builds the fully wired gorilla/mux router: CORS, request-ID,
// recovery, logging, and bearer-token auth apply to every route; public
// routes (/, /health, /v1/models, /metrics) bypass auth per §4.5 step 1.
// listCache may be nil, in which case GET /v1/models always renders fresh.
func New(engine *inference.Engine, cache *modelcache.CacheState, versionCache *metadata.Resolver, authenticator *auth.Authenticator, m *metrics.Metrics, listCache *gwcache.ModelListCache) *mux.Router {
	h := &handlers{engine: engine, cache: cache, versionCache: versionCache, listCache: listCache}
	stream := newAdminStream(cache)

	r := mux.NewRouter()
	r.Use(mw.Recovery)
	r.Use(mw.RequestID)
	r.Use(mw.CORS)
	r.Use(mw.Logger)
	r.Use(mw.RequireAuth(authenticator))

	r.HandleFunc("/", h.serviceInfo).Methods(http.MethodGet)
	r.HandleFunc("/health", h.health).Methods(http.MethodGet)
	r.HandleFunc("/v1/models", h.listModels).Methods(http.MethodGet)
	r.Handle("/metrics", m.Handler()).Methods(http.MethodGet)

	r.HandleFunc("/v1/chat/completions", h.chatCompletions).Methods(http.MethodPost)
	r.HandleFunc("/v1/completions", h.completions).Methods(http.MethodPost)
	r.HandleFunc("/v1/{name}/chat/completions", h.chatCompletions).Methods(http.MethodPost)
	r.HandleFunc("/v1/{name}/completions", h.completions).Methods(http.MethodPost)

	r.HandleFunc("/admin/unload/{id:.+}", h.unload).Methods(http.MethodPost)
	r.HandleFunc("/admin/stats", h.stats).Methods(http.MethodGet)
	r.HandleFunc("/admin/invalidate-cache/{name:.+}", h.invalidateCache).Methods(http.MethodPost)
	r.HandleFunc("/admin/clear-all-version-cache", h.clearAllVersionCache).Methods(http.MethodPost)
	r.HandleFunc("/admin/version-cache-stats", h.versionCacheStats).Methods(http.MethodGet)
	r.HandleFunc("/admin/prewarm", h.prewarm).Methods(http.MethodPost)
	r.HandleFunc("/admin/stream", stream.handle).Methods(http.MethodGet)

	return r
}
