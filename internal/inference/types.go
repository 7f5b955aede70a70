// Package inference implements the chat/completion orchestration of
// spec §4.4: prompt construction, the process-global concurrency
// semaphore, the generation loop bridge, and stop-string text splicing
// for streamed output.
package inference

import (
	"encoding/json"
	"errors"
)

// errPromptArrayTooLong is returned by CompletionRequest's UnmarshalJSON
// when the request's prompt array carries more than one element; the
// router surfaces any decode failure as BadRequest, which is also the
// kind §7 assigns to "n>1 prompts".
var errPromptArrayTooLong = errors.New("prompt array must contain at most one element")

// ChatMessage is one turn of a chat request.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is the OpenAI-compatible chat/completions request body.
type ChatRequest struct {
	Model       string        `json:"model"`
	Messages    []ChatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	TopP        float64       `json:"top_p"`
	MaxTokens   int           `json:"max_tokens"`
	Stream      bool          `json:"stream"`
	Stop        []string      `json:"stop"`
}

// CompletionRequest is the OpenAI-compatible text completions request body.
// Prompt accepts either a bare JSON string or a single-element JSON array
// of strings on the wire; UnmarshalJSON resolves either form down to the
// one prompt string generation actually runs over.
type CompletionRequest struct {
	Model       string   `json:"model"`
	Prompt      string   `json:"-"`
	Temperature float64  `json:"temperature"`
	TopP        float64  `json:"top_p"`
	MaxTokens   int      `json:"max_tokens"`
	Stream      bool     `json:"stream"`
	Stop        []string `json:"stop"`
}

// UnmarshalJSON implements the Union[str, List[str]] prompt shape the
// reference service accepts: a bare string, or a list with at most one
// element (n>1 prompts is the only array form §7 rejects as BadRequest).
func (c *CompletionRequest) UnmarshalJSON(data []byte) error {
	type alias CompletionRequest
	aux := struct {
		Prompt json.RawMessage `json:"prompt"`
		*alias
	}{alias: (*alias)(c)}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	prompt, err := decodePrompt(aux.Prompt)
	if err != nil {
		return err
	}
	c.Prompt = prompt
	return nil
}

func decodePrompt(raw json.RawMessage) (string, error) {
	if len(raw) == 0 {
		return "", nil
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}

	var arr []string
	if err := json.Unmarshal(raw, &arr); err != nil {
		return "", errors.New("prompt must be a string or an array of strings")
	}
	switch len(arr) {
	case 0:
		return "", nil
	case 1:
		return arr[0], nil
	default:
		return "", errPromptArrayTooLong
	}
}

// Usage is the token accounting attached to every non-streaming result
// and the final streamed chunk.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Result is a completed (non-streaming) generation: the decoded tail
// with stop strings and anything after the first one stripped.
type Result struct {
	Text         string
	FinishReason string
	Usage        Usage
}

// StreamEvent is one server-sent-event frame's payload, built by the
// router into the OpenAI chunk envelope.
type StreamEvent struct {
	Role         string
	Delta        string
	FinishReason string
	Usage        *Usage
	Done         bool
	Err          error
}
