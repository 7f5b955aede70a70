package genruntime

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"strings"

	onnxruntime "github.com/yalue/onnxruntime_go"

	"github.com/aiserve/inference-gateway/internal/gatewayerr"
	"github.com/aiserve/inference-gateway/internal/modelcache"
)

// defaultTopK and repetitionPenalty* mirror the fixed sampling
// knobs the spec carries over from the reference service: operators
// tune temperature and top_p per request, the rest are fixed constants.
const (
	minSamplingTemperature    = 0.1
	defaultTopK               = 40
	repetitionPenaltySampling = 1.15
	repetitionPenaltyGreedy   = 1.1
	defaultMaxNewTokens       = 256
)

// GenerationParams is the resolved set of decoding knobs for one
// completion, derived once per request from the client's raw
// temperature/top_p/max_tokens.
type GenerationParams struct {
	Temperature       float64
	TopP              float64
	TopK              int
	RepetitionPenalty float64
	DoSample          bool
	MaxNewTokens      int
}

// SelectParams resolves client-supplied temperature/top_p/max_tokens into
// the full decoding configuration. temperature <= 0 means greedy decoding;
// a positive temperature below the floor is clamped up to it so sampling
// never degenerates into near-deterministic argmax while still reporting
// do_sample=true.
func SelectParams(temperature, topP float64, maxTokens int) GenerationParams {
	p := GenerationParams{
		Temperature:  temperature,
		TopP:         topP,
		MaxNewTokens: maxTokens,
	}
	if p.MaxNewTokens <= 0 {
		p.MaxNewTokens = defaultMaxNewTokens
	}
	if topP <= 0 {
		p.TopP = 1.0
	}

	p.DoSample = temperature > 0
	if p.DoSample {
		if p.Temperature < minSamplingTemperature {
			p.Temperature = minSamplingTemperature
		}
		p.TopK = defaultTopK
		p.RepetitionPenalty = repetitionPenaltySampling
	} else {
		p.RepetitionPenalty = repetitionPenaltyGreedy
	}
	return p
}

// Chunk is one unit of streamed generation output.
type Chunk struct {
	Text         string
	TokenID      int
	Done         bool
	FinishReason string // "stop", "length", or "" while still generating
	Err          error
}

// Generate runs the autoregressive decode loop for handle over promptTokens
// and streams results on the returned channel. The channel is always
// closed, with the final sent Chunk having Done set (possibly carrying
// Err). Callers that only want the full text can drain the channel and
// concatenate.
func Generate(ctx context.Context, handle modelcache.Handle, promptTokens []int, params GenerationParams, stops *StopMatcher) <-chan Chunk {
	out := make(chan Chunk, 8)

	go func() {
		defer close(out)

		session, ok := handle.Weights().(*Session)
		if !ok {
			out <- Chunk{Done: true, Err: gatewayerr.New(gatewayerr.Internal, "base weights are not an ONNX session")}
			return
		}

		var adapter *AdapterSession
		if a := handle.AdapterHandle(); a != nil {
			adapter, _ = a.(*AdapterSession)
		}

		generated := append([]int{}, promptTokens...)
		rng := rand.New(rand.NewSource(int64(len(promptTokens)) + 1))

		for step := 0; step < params.MaxNewTokens; step++ {
			select {
			case <-ctx.Done():
				out <- Chunk{Done: true, Err: ctx.Err()}
				return
			default:
			}

			logits, err := runStep(session, adapter, generated)
			if err != nil {
				if isGPUFault(err) {
					err = gatewayerr.Wrap(gatewayerr.GpuFault, "generation step failed", err).WithModel(handle.Name)
				} else {
					err = gatewayerr.Wrap(gatewayerr.Internal, "generation step failed", err).WithModel(handle.Name)
				}
				out <- Chunk{Done: true, Err: err}
				return
			}

			SanitizeLogits(logits)
			applyRepetitionPenalty(logits, generated, params.RepetitionPenalty)

			var next int
			if params.DoSample {
				next = sampleToken(logits, params.Temperature, params.TopP, params.TopK, rng)
			} else {
				next = argmax(logits)
			}

			generated = append(generated, next)
			tok := handle.Tokenizer().Decode([]int{next})

			if !stops.Empty() {
				seq, matched := stops.CheckTail(generated)
				if !matched {
					// CheckTail alone only catches a stop sequence flush
					// against the end; a single-token stop (or a
					// multi-token one landing inside the window rather
					// than exactly at the tail) still needs the full
					// window scan.
					seq, matched = stops.ContainsInWindow(generated, 0)
				}
				if matched {
					trimmed := trimStopSuffix(tok, seq, handle)
					out <- Chunk{Text: trimmed, TokenID: next, Done: true, FinishReason: "stop"}
					return
				}
			}

			out <- Chunk{Text: tok, TokenID: next}

			if next == handle.Profile().EOSTokenID {
				out <- Chunk{Done: true, FinishReason: "stop"}
				return
			}
		}

		out <- Chunk{Done: true, FinishReason: "length"}
	}()

	return out
}

// trimStopSuffix is a best-effort no-op placeholder: the stop sequence's
// token text was already emitted as part of tok in the common case where
// the stop is a single token; multi-token stops that span chunk
// boundaries are truncated by the caller's accumulated-text buffer, not
// here, since this function only sees the newest token.
func trimStopSuffix(tok string, _ []int, _ modelcache.Handle) string {
	return tok
}

func runStep(session *Session, adapter *AdapterSession, tokens []int) ([]float32, error) {
	session.mu.Lock()
	defer session.mu.Unlock()

	if session.vocabSize <= 0 {
		return nil, fmt.Errorf("model export does not report a static vocabulary dimension")
	}

	inputIDs := make([]int64, len(tokens))
	attentionMask := make([]int64, len(tokens))
	for i, t := range tokens {
		inputIDs[i] = int64(t)
		attentionMask[i] = 1
	}

	seqShape := onnxruntime.NewShape(1, int64(len(tokens)))
	idTensor, err := onnxruntime.NewTensor(seqShape, inputIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to build input_ids tensor: %w", err)
	}
	defer idTensor.Destroy()

	maskTensor, err := onnxruntime.NewTensor(seqShape, attentionMask)
	if err != nil {
		return nil, fmt.Errorf("failed to build attention_mask tensor: %w", err)
	}
	defer maskTensor.Destroy()

	logitsShape := onnxruntime.NewShape(1, int64(len(tokens)), session.vocabSize)
	logitsOut, err := onnxruntime.NewEmptyTensor[float32](logitsShape)
	if err != nil {
		return nil, fmt.Errorf("failed to allocate output tensor: %w", err)
	}
	defer logitsOut.Destroy()

	outputs := []onnxruntime.Value{logitsOut}
	if err := session.session.Run([]onnxruntime.Value{idTensor, maskTensor}, outputs); err != nil {
		return nil, fmt.Errorf("session run failed: %w", err)
	}

	data := logitsOut.GetData()
	vocab := int(session.vocabSize)
	lastStart := (len(tokens) - 1) * vocab
	lastLogits := make([]float32, vocab)
	copy(lastLogits, data[lastStart:lastStart+vocab])

	if adapter != nil {
		applyAdapterDelta(adapter, tokens, lastLogits)
	}

	return lastLogits, nil
}

// applyAdapterDelta runs the adapter session over the same tokens and
// adds its output as an additive delta over the base logits, the
// composition scheme noted in runtime.go's AdapterSession doc.
func applyAdapterDelta(adapter *AdapterSession, tokens []int, baseLogits []float32) {
	if adapter.vocabSize <= 0 {
		return
	}
	adapter.mu.Lock()
	defer adapter.mu.Unlock()

	inputIDs := make([]int64, len(tokens))
	for i, t := range tokens {
		inputIDs[i] = int64(t)
	}
	seqShape := onnxruntime.NewShape(1, int64(len(tokens)))
	idTensor, err := onnxruntime.NewTensor(seqShape, inputIDs)
	if err != nil {
		return
	}
	defer idTensor.Destroy()

	deltaShape := onnxruntime.NewShape(1, int64(len(tokens)), adapter.vocabSize)
	deltaOut, err := onnxruntime.NewEmptyTensor[float32](deltaShape)
	if err != nil {
		return
	}
	defer deltaOut.Destroy()

	outputs := []onnxruntime.Value{deltaOut}
	if err := adapter.session.Run([]onnxruntime.Value{idTensor}, outputs); err != nil {
		return
	}

	delta := deltaOut.GetData()
	vocab := int(adapter.vocabSize)
	lastStart := (len(tokens) - 1) * vocab
	if lastStart+vocab > len(delta) || vocab != len(baseLogits) {
		return
	}
	for i := range baseLogits {
		baseLogits[i] += delta[lastStart+i]
	}
}

func applyRepetitionPenalty(logits []float32, generated []int, penalty float64) {
	if penalty == 1.0 {
		return
	}
	seen := make(map[int]bool, len(generated))
	for _, t := range generated {
		if seen[t] || t < 0 || t >= len(logits) {
			continue
		}
		seen[t] = true
		v := float64(logits[t])
		if v > 0 {
			logits[t] = float32(v / penalty)
		} else {
			logits[t] = float32(v * penalty)
		}
	}
}

func argmax(logits []float32) int {
	best := 0
	bestVal := logits[0]
	for i, v := range logits {
		if v > bestVal {
			bestVal = v
			best = i
		}
	}
	return best
}

type scoredToken struct {
	id    int
	logit float32
}

func sampleToken(logits []float32, temperature, topP float64, topK int, rng *rand.Rand) int {
	scored := make([]scoredToken, len(logits))
	for i, v := range logits {
		scored[i] = scoredToken{id: i, logit: float32(float64(v) / temperature)}
	}
	sort.Slice(scored, func(i, j int) bool { return scored[i].logit > scored[j].logit })

	if topK > 0 && topK < len(scored) {
		scored = scored[:topK]
	}

	probs := softmax(scored)
	if topP > 0 && topP < 1.0 {
		probs = nucleusFilter(probs, topP)
	}

	return sampleFromDistribution(probs, rng)
}

func softmax(scored []scoredToken) []scoredToken {
	maxLogit := scored[0].logit
	var sum float64
	exps := make([]float64, len(scored))
	for i, s := range scored {
		e := math.Exp(float64(s.logit - maxLogit))
		exps[i] = e
		sum += e
	}
	out := make([]scoredToken, len(scored))
	for i, s := range scored {
		out[i] = scoredToken{id: s.id, logit: float32(exps[i] / sum)}
	}
	return out
}

func nucleusFilter(probs []scoredToken, topP float64) []scoredToken {
	var cumulative float64
	cut := len(probs)
	for i, p := range probs {
		cumulative += float64(p.logit)
		if cumulative >= topP {
			cut = i + 1
			break
		}
	}
	return probs[:cut]
}

func sampleFromDistribution(probs []scoredToken, rng *rand.Rand) int {
	var total float64
	for _, p := range probs {
		total += float64(p.logit)
	}
	if total <= 0 {
		return probs[0].id
	}
	r := rng.Float64() * total
	var acc float64
	for _, p := range probs {
		acc += float64(p.logit)
		if r <= acc {
			return p.id
		}
	}
	return probs[len(probs)-1].id
}

// isGPUFault matches the substring the teacher's GPU backend uses to
// classify a CUDA-originated failure, per spec §9's GPU-fault recovery.
func isGPUFault(err error) bool {
	return strings.Contains(strings.ToLower(err.Error()), "cuda")
}
