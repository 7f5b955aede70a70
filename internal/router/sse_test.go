package router

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/aiserve/inference-gateway/internal/inference"
)

func TestStreamChatSSE_EmitsRoleThenDeltasThenDone(t *testing.T) {
	events := make(chan inference.StreamEvent, 4)
	events <- inference.StreamEvent{Role: "assistant"}
	events <- inference.StreamEvent{Delta: "hello"}
	usage := &inference.Usage{PromptTokens: 3, CompletionTokens: 1, TotalTokens: 4}
	events <- inference.StreamEvent{FinishReason: "stop", Usage: usage, Done: true}
	close(events)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/v1/chat/completions", nil)
	streamChatSSE(rec, req, "test-model", events)

	body := rec.Body.String()
	assert.Contains(t, body, `"role":"assistant"`)
	assert.Contains(t, body, `"content":"hello"`)
	assert.Contains(t, body, `"finish_reason":"stop"`)
	assert.Contains(t, body, `"total_tokens":4`)
	assert.True(t, strings.HasSuffix(body, "data: [DONE]\n\n"))
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
}

func TestStreamChatSSE_StopsOnError(t *testing.T) {
	events := make(chan inference.StreamEvent, 2)
	events <- inference.StreamEvent{Delta: "partial"}
	events <- inference.StreamEvent{Err: assertError{}, Done: true}
	close(events)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/v1/chat/completions", nil)
	streamChatSSE(rec, req, "test-model", events)

	body := rec.Body.String()
	assert.Contains(t, body, `"content":"partial"`)
	assert.NotContains(t, body, "[DONE]", "an error frame aborts the stream before the terminal DONE marker")
}

func TestStreamCompletionSSE_EmitsTextDeltas(t *testing.T) {
	events := make(chan inference.StreamEvent, 2)
	events <- inference.StreamEvent{Delta: "once upon a time"}
	events <- inference.StreamEvent{FinishReason: "length", Done: true}
	close(events)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/v1/completions", nil)
	streamCompletionSSE(rec, req, "test-model", events)

	body := rec.Body.String()
	assert.Contains(t, body, `"text":"once upon a time"`)
	assert.Contains(t, body, `"finish_reason":"length"`)
	assert.True(t, strings.HasSuffix(body, "data: [DONE]\n\n"))
}

type assertError struct{}

func (assertError) Error() string { return "boom" }
