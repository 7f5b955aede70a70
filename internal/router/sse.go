package router

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/aiserve/inference-gateway/internal/inference"
)

// sseWriter wraps the http.Flusher dance every streamed frame needs, per
// §6: "data: <json>\n\n", flushed immediately so the client sees tokens
// as they're produced rather than buffered until the handler returns.
type sseWriter struct {
	w http.ResponseWriter
	f http.Flusher
}

func newSSEWriter(w http.ResponseWriter) (*sseWriter, bool) {
	f, ok := w.(http.Flusher)
	if !ok {
		return nil, false
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	return &sseWriter{w: w, f: f}, true
}

func (s *sseWriter) writeJSON(v interface{}) {
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	fmt.Fprintf(s.w, "data: %s\n\n", b)
	s.f.Flush()
}

func (s *sseWriter) done() {
	fmt.Fprint(s.w, "data: [DONE]\n\n")
	s.f.Flush()
}

func streamChatSSE(w http.ResponseWriter, r *http.Request, model string, events <-chan inference.StreamEvent) {
	sse, ok := newSSEWriter(w)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	id := fmt.Sprintf("chatcmpl-%d", time.Now().UnixNano())
	created := time.Now().Unix()

	for ev := range events {
		if ev.Err != nil {
			return
		}

		delta := map[string]interface{}{}
		if ev.Role != "" {
			delta["role"] = ev.Role
		}
		if ev.Delta != "" {
			delta["content"] = ev.Delta
		}

		choice := map[string]interface{}{
			"index": 0,
			"delta": delta,
		}
		if ev.FinishReason != "" {
			choice["finish_reason"] = ev.FinishReason
		} else {
			choice["finish_reason"] = nil
		}

		frame := map[string]interface{}{
			"id":      id,
			"object":  "chat.completion.chunk",
			"created": created,
			"model":   model,
			"choices": []map[string]interface{}{choice},
		}
		if ev.Usage != nil {
			frame["usage"] = usageBody(*ev.Usage)
		}
		sse.writeJSON(frame)

		if ev.Done {
			break
		}
	}
	sse.done()
}

func streamCompletionSSE(w http.ResponseWriter, r *http.Request, model string, events <-chan inference.StreamEvent) {
	sse, ok := newSSEWriter(w)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	id := fmt.Sprintf("cmpl-%d", time.Now().UnixNano())
	created := time.Now().Unix()

	for ev := range events {
		if ev.Err != nil {
			return
		}

		choice := map[string]interface{}{
			"index": 0,
			"text":  ev.Delta,
		}
		if ev.FinishReason != "" {
			choice["finish_reason"] = ev.FinishReason
		} else {
			choice["finish_reason"] = nil
		}

		frame := map[string]interface{}{
			"id":      id,
			"object":  "text_completion",
			"created": created,
			"model":   model,
			"choices": []map[string]interface{}{choice},
		}
		if ev.Usage != nil {
			frame["usage"] = usageBody(*ev.Usage)
		}
		sse.writeJSON(frame)

		if ev.Done {
			break
		}
	}
	sse.done()
}
