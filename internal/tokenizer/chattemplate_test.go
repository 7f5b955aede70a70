package tokenizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRenderPrompt_FallbackAppendsAssistantCue(t *testing.T) {
	p := Profile{}
	out := p.RenderPrompt([]Message{
		{Role: "user", Content: "hi"},
	}, true)

	assert.Equal(t, "user: hi\nAssistant:", out)
}

func TestRenderPrompt_NoGenerationPromptOmitsCue(t *testing.T) {
	p := Profile{}
	out := p.RenderPrompt([]Message{
		{Role: "system", Content: "be terse"},
		{Role: "user", Content: "hi"},
	}, false)

	assert.Equal(t, "system: be terse\nuser: hi\n", out)
}

func TestRenderPrompt_UnusableTemplateFallsBack(t *testing.T) {
	p := Profile{HasChatTemplate: true, ChatTemplate: "{{ unsupported jinja }}"}
	out := p.RenderPrompt([]Message{{Role: "user", Content: "hi"}}, true)

	assert.Equal(t, "user: hi\nAssistant:", out)
}
