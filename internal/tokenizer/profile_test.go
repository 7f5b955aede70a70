package tokenizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildProfile_QwenNameSelectsImEnd(t *testing.T) {
	tok, err := Load("Qwen/Qwen2.5-7B-Instruct")
	require.NoError(t, err)

	p := BuildProfile(tok, ModelHints{Name: "Qwen/Qwen2.5-7B-Instruct"})
	assert.Equal(t, []string{"<|im_end|>"}, p.StopSequences)
}

func TestBuildProfile_GemmaNameSelectsTurnMarkers(t *testing.T) {
	tok, err := Load("google/gemma-2-9b-it")
	require.NoError(t, err)

	p := BuildProfile(tok, ModelHints{Name: "google/gemma-2-9b-it"})
	assert.Equal(t, []string{"<start_of_turn>", "<end_of_turn>"}, p.StopSequences)
}

func TestBuildProfile_LlamaTemplateSelectsInstClose(t *testing.T) {
	tok, err := Load("meta-llama/Llama-3.1-8B")
	require.NoError(t, err)

	p := BuildProfile(tok, ModelHints{Name: "meta-llama/Llama-3.1-8B", ChatTemplate: "[INST] {content} [/INST]"})
	assert.Equal(t, []string{"[/INST]"}, p.StopSequences)
}

func TestBuildProfile_SpecialTokensWinOverNameHints(t *testing.T) {
	tok, err := Load("qwen-custom")
	require.NoError(t, err)

	p := BuildProfile(tok, ModelHints{Name: "qwen-custom", SpecialTokens: []string{"</s>"}})
	assert.Equal(t, []string{"</s>"}, p.StopSequences)
}

func TestBuildProfile_UnknownNameFallsBackToUserMarkers(t *testing.T) {
	tok, err := Load("assistant-v1")
	require.NoError(t, err)

	p := BuildProfile(tok, ModelHints{Name: "assistant-v1"})
	assert.Equal(t, fallbackStops, p.StopSequences)
}

func TestDropUnencodable_DropsEmptyString(t *testing.T) {
	tok, err := Load("assistant-v1")
	require.NoError(t, err)

	stops := dropUnencodable(tok, []string{""})
	assert.Empty(t, stops)
}

func TestBuildProfile_PadDefaultsToEOS(t *testing.T) {
	tok, err := Load("assistant-v1")
	require.NoError(t, err)

	p := BuildProfile(tok, ModelHints{Name: "assistant-v1"})
	assert.Equal(t, p.EOSTokenID, p.PadTokenID)
	assert.NotZero(t, p.EOSTokenID)
}
