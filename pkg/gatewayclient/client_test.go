package gatewayclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStats_DecodesResidentEntries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/admin/stats", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"resident": []map[string]interface{}{
				{"name": "acme/support-v3", "kind": "adapted", "device": "cuda:0", "memory_gb": 4.2},
			},
		})
	}))
	defer srv.Close()

	c := NewClient(&Config{BaseURL: srv.URL, APIKey: "test-key"})
	stats, err := c.Stats(context.Background())
	require.NoError(t, err)
	require.Len(t, stats.Resident, 1)
	assert.Equal(t, "acme/support-v3", stats.Resident[0].Name)
	assert.Equal(t, "adapted", stats.Resident[0].Kind)
}

func TestUnload_PathEscapesModelName(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/admin/unload/acme%2Fsupport-v3", r.URL.EscapedPath())
		json.NewEncoder(w).Encode(map[string]interface{}{"model": "acme/support-v3", "was_resident": true})
	}))
	defer srv.Close()

	c := NewClient(&Config{BaseURL: srv.URL})
	resp, err := c.Unload(context.Background(), "acme/support-v3")
	require.NoError(t, err)
	assert.True(t, resp.WasResident)
}

func TestRequest_NonOKStatusReturnsAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"error":      map[string]string{"message": "API key is not authorized for this model", "type": "scope_denied"},
			"request_id": "req-42",
		})
	}))
	defer srv.Close()

	c := NewClient(&Config{BaseURL: srv.URL})
	_, err := c.Unload(context.Background(), "acme/support-v3")
	require.Error(t, err)

	apiErr, ok := err.(*APIError)
	require.True(t, ok)
	assert.Equal(t, http.StatusForbidden, apiErr.StatusCode)
	assert.Equal(t, "scope_denied", apiErr.Type)
	assert.Equal(t, "req-42", apiErr.RequestID)
}

func TestPrewarm_SendsModelIDsAndParallelFlag(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body PrewarmRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, []string{"acme/support-v3", "acme/support-v4"}, body.ModelIDs)
		assert.True(t, body.Parallel)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"results": map[string]string{"acme/support-v3": "ok", "acme/support-v4": "ok"},
		})
	}))
	defer srv.Close()

	c := NewClient(&Config{BaseURL: srv.URL})
	resp, err := c.Prewarm(context.Background(), []string{"acme/support-v3", "acme/support-v4"}, true)
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Results["acme/support-v3"])
}
