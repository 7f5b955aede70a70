// Package tokenizer wraps a BPE tokenizer with the model-agnostic profile
// (pad token, chat template, stop sequences) described in spec §4.3.1.
package tokenizer

import (
	"fmt"
	"sync"

	"github.com/pkoukk/tiktoken-go"
	tiktokenloader "github.com/pkoukk/tiktoken-go-loader"
)

const encodingName = "cl100k_base"

var loaderOnce sync.Once

func ensureLoader() {
	loaderOnce.Do(func() {
		tiktoken.SetBpeLoader(tiktokenloader.NewOfflineLoader())
	})
}

// Tokenizer is the resident encode/decode handle a CachedBase owns. Real
// per-model vocabularies are out of reach in Go without binding a
// tokenizer C library per model family, so every loaded model shares one
// cl100k_base BPE codec; model-specific behavior (stop sequences, pad/EOS,
// chat template) lives entirely in the attached Profile instead of in the
// codec, matching the "never mutate the upstream tokenizer object" rule.
type Tokenizer struct {
	enc *tiktoken.Tiktoken
}

// Load builds the shared BPE codec. The modelName argument is accepted
// for symmetry with a per-model tokenizer loader and is not otherwise
// used by the codec itself.
func Load(modelName string) (*Tokenizer, error) {
	ensureLoader()
	enc, err := tiktoken.GetEncoding(encodingName)
	if err != nil {
		return nil, fmt.Errorf("failed to load tokenizer for %s: %w", modelName, err)
	}
	return &Tokenizer{enc: enc}, nil
}

// Encode returns the token IDs for text. Ordinary text never fails to
// encode under a byte-level BPE codec.
func (t *Tokenizer) Encode(text string) []int {
	return t.enc.Encode(text, nil, nil)
}

// EncodeSpecial encodes text while allowing it to contain the given
// special tokens verbatim rather than splitting them into byte pieces.
func (t *Tokenizer) EncodeSpecial(text string, special ...string) []int {
	return t.enc.Encode(text, special, nil)
}

// Decode renders token IDs back to text.
func (t *Tokenizer) Decode(tokens []int) string {
	return t.enc.Decode(tokens)
}

// CanEncode reports whether s encodes to a non-empty token sequence,
// the test §4.3.1 uses to drop unusable stop strings.
func (t *Tokenizer) CanEncode(s string) bool {
	if s == "" {
		return false
	}
	return len(t.Encode(s)) > 0
}
