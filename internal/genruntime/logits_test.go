package genruntime

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeLogits_ReplacesNaN(t *testing.T) {
	logits := []float32{1, float32(math.NaN()), 3}
	SanitizeLogits(logits)
	assert.Equal(t, float32(sentinelLogit), logits[1])
}

func TestSanitizeLogits_ClampsInf(t *testing.T) {
	logits := []float32{float32(math.Inf(1)), float32(math.Inf(-1))}
	SanitizeLogits(logits)
	assert.Equal(t, float32(math.MaxFloat32), logits[0])
	assert.Equal(t, float32(-math.MaxFloat32), logits[1])
}

func TestSanitizeLogits_LeavesFiniteValuesAlone(t *testing.T) {
	logits := []float32{1.5, -2.25, 0}
	want := append([]float32(nil), logits...)
	SanitizeLogits(logits)
	assert.Equal(t, want, logits)
}
