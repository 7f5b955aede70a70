package modelcache

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/aiserve/inference-gateway/internal/tokenizer"
)

// readModelHints opportunistically reads a chat_template / special-tokens
// hint out of the artifact's config.json. Most artifacts in this gateway
// carry none, in which case BuildProfile falls through to the name-based
// rules of §4.3.1.
func readModelHints(name, artifactRoot string) tokenizer.ModelHints {
	hints := tokenizer.ModelHints{Name: name}

	data, err := os.ReadFile(filepath.Join(artifactRoot, "config.json"))
	if err != nil {
		return hints
	}

	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return hints
	}

	if template, ok := raw["chat_template"].(string); ok {
		hints.ChatTemplate = template
	}
	if tokens, ok := raw["special_tokens"].([]interface{}); ok {
		for _, t := range tokens {
			if s, ok := t.(string); ok {
				hints.SpecialTokens = append(hints.SpecialTokens, s)
			}
		}
	}
	return hints
}
