package tokenizer

import "strings"

// Message is a single chat turn, matching the OpenAI request shape.
type Message struct {
	Role    string
	Content string
}

// RenderPrompt applies the profile's chat template with
// add_generation_prompt=true semantics. HasChatTemplate is set when the
// artifact's config.json carries a chat_template hint, but applyTemplate
// recognizes no template syntax (see DESIGN.md), so the fallback below is
// what every request actually renders through.
func (p Profile) RenderPrompt(messages []Message, addGenerationPrompt bool) string {
	if p.HasChatTemplate {
		if rendered, ok := applyTemplate(p.ChatTemplate, messages, addGenerationPrompt); ok {
			return rendered
		}
	}
	return fallbackPrompt(messages, addGenerationPrompt)
}

// fallbackPrompt emits "role: content" lines and appends "Assistant:"
// when a generation prompt is requested, per §4.3.1.
func fallbackPrompt(messages []Message, addGenerationPrompt bool) string {
	var b strings.Builder
	for _, m := range messages {
		b.WriteString(m.Role)
		b.WriteString(": ")
		b.WriteString(m.Content)
		b.WriteString("\n")
	}
	if addGenerationPrompt {
		b.WriteString("Assistant:")
	}
	return b.String()
}

// applyTemplate is a minimal stand-in for a real Jinja2 chat-template
// engine: it recognizes none today (no model in this gateway ships a
// ChatTemplate hint with runnable syntax), so it always reports failure
// and callers fall back. Kept distinct from fallbackPrompt so the
// "if it fails, fall back" control flow in §4.4 is structurally present.
func applyTemplate(template string, messages []Message, addGenerationPrompt bool) (string, bool) {
	return "", false
}
