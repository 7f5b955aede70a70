package tokenizer

import "strings"

// eosTokenText is cl100k_base's reserved end-of-text special token. Every
// loaded model shares it as both EOS and, absent a model-specific pad
// token, pad.
const eosTokenText = "<|endoftext|>"

// Profile is the per-model configuration layered on top of the shared
// Tokenizer codec: pad/EOS token IDs, whether a real chat template is
// available, and the effective stop-sequence list. It is built once on
// first load and stored alongside the tokenizer inside CachedBase,
// never mutating the Tokenizer itself.
type Profile struct {
	PadTokenID      int
	EOSTokenID      int
	HasChatTemplate bool
	ChatTemplate    string
	StopSequences   []string
}

// ModelHints carries the name and any config-derived template hints used
// to select a stop-sequence list for a model family the gateway has
// never seen a real tokenizer config for.
type ModelHints struct {
	Name          string
	ChatTemplate  string
	SpecialTokens []string
}

var fallbackStops = []string{"User:", "\nUser:", "\n\nUser:", "user:", "\nuser:"}

// BuildProfile implements §4.3.1's tokenizer-configuration algorithm.
func BuildProfile(tok *Tokenizer, hints ModelHints) Profile {
	eos := tok.EncodeSpecial(eosTokenText, eosTokenText)
	eosID := 0
	if len(eos) > 0 {
		eosID = eos[len(eos)-1]
	}

	p := Profile{
		PadTokenID:      eosID,
		EOSTokenID:      eosID,
		HasChatTemplate: hints.ChatTemplate != "",
		ChatTemplate:    hints.ChatTemplate,
	}

	stops := selectStopSequences(hints)
	p.StopSequences = dropUnencodable(tok, stops)
	if len(p.StopSequences) == 0 {
		p.StopSequences = []string{"\n\n", "\n"}
	}

	return p
}

// selectStopSequences applies the first-match-wins rules of §4.3.1.
func selectStopSequences(hints ModelHints) []string {
	var special []string
	for _, t := range hints.SpecialTokens {
		if strings.Contains(t, "im_end") || strings.Contains(t, "end_of_turn") || strings.Contains(t, "</s>") {
			special = append(special, t)
		}
	}
	if len(special) > 0 {
		return special
	}

	haystack := strings.ToLower(hints.Name + " " + hints.ChatTemplate)

	if strings.Contains(haystack, "im_start") || strings.Contains(haystack, "qwen") {
		return []string{"<|im_end|>"}
	}
	if strings.Contains(haystack, "gemma") {
		return []string{"<start_of_turn>", "<end_of_turn>"}
	}
	if strings.Contains(haystack, "llama") || strings.Contains(hints.ChatTemplate, "[INST]") {
		return []string{"[/INST]"}
	}
	if strings.Contains(hints.ChatTemplate, "<|user|>") && strings.Contains(hints.ChatTemplate, "<|assistant|>") {
		return []string{"<|user|>", "<|assistant|>"}
	}

	return append([]string(nil), fallbackStops...)
}

func dropUnencodable(tok *Tokenizer, stops []string) []string {
	out := make([]string, 0, len(stops))
	for _, s := range stops {
		if tok.CanEncode(s) {
			out = append(out, s)
		}
	}
	return out
}
