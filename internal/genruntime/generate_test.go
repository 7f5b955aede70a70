package genruntime

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSelectParams_ZeroTemperatureIsGreedy(t *testing.T) {
	p := SelectParams(0, 0.9, 128)
	assert.False(t, p.DoSample)
	assert.Equal(t, repetitionPenaltyGreedy, p.RepetitionPenalty)
}

func TestSelectParams_PositiveTemperatureSamples(t *testing.T) {
	p := SelectParams(0.7, 0.9, 128)
	assert.True(t, p.DoSample)
	assert.Equal(t, defaultTopK, p.TopK)
	assert.Equal(t, repetitionPenaltySampling, p.RepetitionPenalty)
}

func TestSelectParams_ClampsTemperatureFloor(t *testing.T) {
	p := SelectParams(0.01, 0.9, 128)
	assert.True(t, p.DoSample)
	assert.Equal(t, minSamplingTemperature, p.Temperature)
}

func TestSelectParams_DefaultsMaxTokens(t *testing.T) {
	p := SelectParams(0, 0.9, 0)
	assert.Equal(t, defaultMaxNewTokens, p.MaxNewTokens)
}

func TestSelectParams_DefaultsTopPWhenUnset(t *testing.T) {
	p := SelectParams(0.5, 0, 128)
	assert.Equal(t, 1.0, p.TopP)
}

func TestApplyRepetitionPenalty_PenalizesSeenTokensOnly(t *testing.T) {
	logits := []float32{2.0, 2.0, 2.0}
	applyRepetitionPenalty(logits, []int{0}, 1.15)
	assert.InDelta(t, 2.0/1.15, logits[0], 1e-6)
	assert.Equal(t, float32(2.0), logits[1])
}

func TestArgmax_PicksHighestLogit(t *testing.T) {
	assert.Equal(t, 2, argmax([]float32{0.1, 0.2, 0.9, 0.3}))
}

func TestIsGPUFault_MatchesCaseInsensitively(t *testing.T) {
	assert.True(t, isGPUFault(errString("CUDA out of memory")))
	assert.True(t, isGPUFault(errString("cuda error: device-side assert")))
	assert.False(t, isGPUFault(errString("disk full")))
}

type errString string

func (e errString) Error() string { return string(e) }
