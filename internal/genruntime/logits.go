package genruntime

import "math"

// sentinelLogit stands in for a NaN logit: large enough negative that the
// token it belongs to never wins argmax or softmax sampling, without
// propagating a NaN into downstream arithmetic.
const sentinelLogit = -1e9

// SanitizeLogits repairs NaN/Inf values a numerically unstable forward
// pass can produce (observed in fp16 CPU fallback paths in particular).
// It is a no-op over an already-finite vector.
func SanitizeLogits(logits []float32) {
	for i, v := range logits {
		f := float64(v)
		switch {
		case math.IsNaN(f):
			logits[i] = sentinelLogit
		case math.IsInf(f, 1):
			logits[i] = math.MaxFloat32
		case math.IsInf(f, -1):
			logits[i] = -math.MaxFloat32
		}
	}
}
