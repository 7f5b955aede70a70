package router

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aiserve/inference-gateway/internal/gatewayerr"
	"github.com/aiserve/inference-gateway/internal/inference"
	"github.com/aiserve/inference-gateway/internal/logging"
)

func TestPathModel_ReadsMuxVar(t *testing.T) {
	req := httptest.NewRequest("POST", "/v1/my-model/chat/completions", nil)
	req = mux.SetURLVars(req, map[string]string{"name": "my-model"})
	assert.Equal(t, "my-model", pathModel(req))
}

func TestPathModel_EmptyWhenNoRouteVar(t *testing.T) {
	req := httptest.NewRequest("POST", "/v1/chat/completions", nil)
	assert.Equal(t, "", pathModel(req))
}

func TestWriteError_MapsKindToStatusAndBody(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/v1/chat/completions", nil)
	ctx := context.WithValue(req.Context(), logging.RequestIDKey, "req-123")
	req = req.WithContext(ctx)

	writeError(rec, req, gatewayerr.New(gatewayerr.AuthMissing, "missing Authorization header"))

	assert.Equal(t, 401, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "req-123", body["request_id"])
	errBody := body["error"].(map[string]interface{})
	assert.Equal(t, "auth_missing", errBody["type"])
}

func TestChatCompletionBody_ShapesOpenAIEnvelope(t *testing.T) {
	result := &inference.Result{
		Text:         "hi there",
		FinishReason: "stop",
		Usage:        inference.Usage{PromptTokens: 2, CompletionTokens: 3, TotalTokens: 5},
	}
	body := chatCompletionBody("test-model", result)

	assert.Equal(t, "chat.completion", body["object"])
	assert.Equal(t, "test-model", body["model"])
	choices := body["choices"].([]map[string]interface{})
	require.Len(t, choices, 1)
	msg := choices[0]["message"].(map[string]string)
	assert.Equal(t, "hi there", msg["content"])
	assert.Equal(t, "assistant", msg["role"])
}

func TestCompletionBody_ShapesOpenAIEnvelope(t *testing.T) {
	result := &inference.Result{Text: "once upon a time", FinishReason: "length"}
	body := completionBody("test-model", result)

	assert.Equal(t, "text_completion", body["object"])
	choices := body["choices"].([]map[string]interface{})
	require.Len(t, choices, 1)
	assert.Equal(t, "once upon a time", choices[0]["text"])
	assert.Equal(t, "length", choices[0]["finish_reason"])
}
