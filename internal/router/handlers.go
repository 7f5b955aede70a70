package router

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	gwcache "github.com/aiserve/inference-gateway/internal/cache"
	"github.com/aiserve/inference-gateway/internal/gatewayerr"
	"github.com/aiserve/inference-gateway/internal/inference"
	mw "github.com/aiserve/inference-gateway/internal/middleware"
	"github.com/aiserve/inference-gateway/internal/metadata"
	"github.com/aiserve/inference-gateway/internal/modelcache"
)

type handlers struct {
	engine       *inference.Engine
	cache        *modelcache.CacheState
	versionCache *metadata.Resolver
	listCache    *gwcache.ModelListCache
}

func (h *handlers) serviceInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"service": "inference-gateway",
		"status":  "ok",
	})
}

func (h *handlers) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (h *handlers) listModels(w http.ResponseWriter, r *http.Request) {
	if h.listCache != nil {
		if body, ok := h.listCache.Get(); ok {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			w.Write(body)
			return
		}
	}

	names := h.cache.List()
	data := make([]map[string]interface{}, 0, len(names))
	for _, n := range names {
		data = append(data, map[string]interface{}{
			"id":     n,
			"object": "model",
		})
	}

	body, err := json.Marshal(map[string]interface{}{"object": "list", "data": data})
	if err != nil {
		writeError(w, r, gatewayerr.New(gatewayerr.Internal, "failed to render model list"))
		return
	}
	if h.listCache != nil {
		h.listCache.Set(body)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}

// pathModel returns the {name} path variable, or "" when the route has
// none — model-in-path always overrides model-in-body per §6's table.
func pathModel(r *http.Request) string {
	return mux.Vars(r)["name"]
}

func (h *handlers) chatCompletions(w http.ResponseWriter, r *http.Request) {
	var req inference.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, gatewayerr.New(gatewayerr.BadRequest, "invalid JSON body"))
		return
	}
	if name := pathModel(r); name != "" {
		req.Model = name
	}
	if err := mw.RequireModelScope(r.Context(), req.Model); err != nil {
		writeError(w, r, err)
		return
	}

	if req.Stream {
		events, err := h.engine.ChatStream(r.Context(), req)
		if err != nil {
			writeError(w, r, err)
			return
		}
		streamChatSSE(w, r, req.Model, events)
		return
	}

	result, err := h.engine.Chat(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, chatCompletionBody(req.Model, result))
}

func (h *handlers) completions(w http.ResponseWriter, r *http.Request) {
	var req inference.CompletionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, gatewayerr.New(gatewayerr.BadRequest, "invalid JSON body"))
		return
	}
	if name := pathModel(r); name != "" {
		req.Model = name
	}
	if err := mw.RequireModelScope(r.Context(), req.Model); err != nil {
		writeError(w, r, err)
		return
	}

	if req.Stream {
		events, err := h.engine.CompleteStream(r.Context(), req)
		if err != nil {
			writeError(w, r, err)
			return
		}
		streamCompletionSSE(w, r, req.Model, events)
		return
	}

	result, err := h.engine.Complete(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, completionBody(req.Model, result))
}

func (h *handlers) unload(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	wasResident := h.cache.Unload(id)
	if h.listCache != nil {
		h.listCache.Invalidate()
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"model":        id,
		"was_resident": wasResident,
	})
}

func (h *handlers) stats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"resident": h.cache.Stats()})
}

func (h *handlers) invalidateCache(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	versionCacheDropped, modelUnloaded := h.cache.InvalidateCache(name)
	if h.listCache != nil {
		h.listCache.Invalidate()
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"model":                 name,
		"version_cache_dropped": versionCacheDropped,
		"model_unloaded":        modelUnloaded,
	})
}

func (h *handlers) clearAllVersionCache(w http.ResponseWriter, r *http.Request) {
	n := h.versionCache.ClearAll()
	if h.listCache != nil {
		h.listCache.Invalidate()
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"entries_cleared": n})
}

func (h *handlers) versionCacheStats(w http.ResponseWriter, r *http.Request) {
	entries, ttlSeconds := h.versionCache.Stats()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"entries":     entries,
		"ttl_seconds": ttlSeconds,
	})
}

type prewarmRequest struct {
	ModelIDs []string `json:"model_ids"`
	Parallel bool     `json:"parallel"`
}

func (h *handlers) prewarm(w http.ResponseWriter, r *http.Request) {
	var req prewarmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, gatewayerr.New(gatewayerr.BadRequest, "invalid JSON body"))
		return
	}

	results := h.cache.Prewarm(r.Context(), req.ModelIDs, req.Parallel, false)
	out := make(map[string]string, len(results))
	for name, err := range results {
		if err != nil {
			out[name] = err.Error()
		} else {
			out[name] = "ok"
		}
	}
	if h.listCache != nil {
		h.listCache.Invalidate()
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"results": out})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	writeJSON(w, gatewayerr.StatusCode(err), map[string]interface{}{
		"error": map[string]string{
			"message": err.Error(),
			"type":    string(gatewayerr.KindOf(err)),
		},
		"request_id": mw.GetRequestID(r.Context()),
	})
}

func chatCompletionBody(model string, result *inference.Result) map[string]interface{} {
	return map[string]interface{}{
		"id":      fmt.Sprintf("chatcmpl-%d", time.Now().UnixNano()),
		"object":  "chat.completion",
		"created": time.Now().Unix(),
		"model":   model,
		"choices": []map[string]interface{}{
			{
				"index": 0,
				"message": map[string]string{
					"role":    "assistant",
					"content": result.Text,
				},
				"finish_reason": result.FinishReason,
			},
		},
		"usage": usageBody(result.Usage),
	}
}

func completionBody(model string, result *inference.Result) map[string]interface{} {
	return map[string]interface{}{
		"id":      fmt.Sprintf("cmpl-%d", time.Now().UnixNano()),
		"object":  "text_completion",
		"created": time.Now().Unix(),
		"model":   model,
		"choices": []map[string]interface{}{
			{
				"index":         0,
				"text":          result.Text,
				"finish_reason": result.FinishReason,
			},
		},
		"usage": usageBody(result.Usage),
	}
}

func usageBody(u inference.Usage) map[string]int {
	return map[string]int{
		"prompt_tokens":     u.PromptTokens,
		"completion_tokens": u.CompletionTokens,
		"total_tokens":      u.TotalTokens,
	}
}
