package inference

import (
	"context"
	"strings"
	"time"

	"github.com/aiserve/inference-gateway/internal/gatewayerr"
	"github.com/aiserve/inference-gateway/internal/genruntime"
	"github.com/aiserve/inference-gateway/internal/logging"
	"github.com/aiserve/inference-gateway/internal/modelcache"
	"github.com/aiserve/inference-gateway/internal/tokenizer"
)

// joinTimeout is the handler's wait budget for one step of the worker
// iterator, per §5's "joins the worker with a 5-second timeout".
const joinTimeout = 5 * time.Second

// ModelProvider is the subset of *modelcache.CacheState the engine needs.
type ModelProvider interface {
	GetModel(ctx context.Context, name string) (modelcache.Handle, error)
	Unload(name string) bool
}

// Engine runs chat/completion requests against a ModelProvider, bounded
// by a process-global concurrency semaphore.
type Engine struct {
	models ModelProvider
	sem    chan struct{}
}

// New builds an Engine whose semaphore holds maxConcurrent permits (1
// forces effectively-serial generation in local-dev mode).
func New(models ModelProvider, maxConcurrent int) *Engine {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &Engine{models: models, sem: make(chan struct{}, maxConcurrent)}
}

func (e *Engine) acquire(ctx context.Context) error {
	select {
	case e.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Engine) release() { <-e.sem }

// Chat runs a non-streaming chat completion.
func (e *Engine) Chat(ctx context.Context, req ChatRequest) (*Result, error) {
	if err := e.acquire(ctx); err != nil {
		return nil, err
	}
	defer e.release()

	handle, promptTokens, params, stops, stopStrs, err := e.prepareChat(ctx, req)
	if err != nil {
		return nil, err
	}
	return e.drain(ctx, handle, promptTokens, params, stops, stopStrs)
}

// ChatStream runs a streaming chat completion, returning a channel of
// frames; the caller must drain it to completion (the semaphore permit
// is held until the channel closes).
func (e *Engine) ChatStream(ctx context.Context, req ChatRequest) (<-chan StreamEvent, error) {
	if err := e.acquire(ctx); err != nil {
		return nil, err
	}

	handle, promptTokens, params, stops, stopStrs, err := e.prepareChat(ctx, req)
	if err != nil {
		e.release()
		return nil, err
	}
	return e.stream(ctx, handle, promptTokens, params, stops, stopStrs), nil
}

// Complete runs a non-streaming text completion.
func (e *Engine) Complete(ctx context.Context, req CompletionRequest) (*Result, error) {
	if err := e.acquire(ctx); err != nil {
		return nil, err
	}
	defer e.release()

	handle, promptTokens, params, stops, stopStrs, err := e.prepareCompletion(ctx, req)
	if err != nil {
		return nil, err
	}
	return e.drain(ctx, handle, promptTokens, params, stops, stopStrs)
}

// CompleteStream runs a streaming text completion.
func (e *Engine) CompleteStream(ctx context.Context, req CompletionRequest) (<-chan StreamEvent, error) {
	if err := e.acquire(ctx); err != nil {
		return nil, err
	}

	handle, promptTokens, params, stops, stopStrs, err := e.prepareCompletion(ctx, req)
	if err != nil {
		e.release()
		return nil, err
	}
	return e.stream(ctx, handle, promptTokens, params, stops, stopStrs), nil
}

func (e *Engine) prepareChat(ctx context.Context, req ChatRequest) (modelcache.Handle, []int, genruntime.GenerationParams, *genruntime.StopMatcher, []string, error) {
	handle, err := e.models.GetModel(ctx, req.Model)
	if err != nil {
		return modelcache.Handle{}, nil, genruntime.GenerationParams{}, nil, nil, err
	}

	msgs := make([]tokenizer.Message, len(req.Messages))
	for i, m := range req.Messages {
		msgs[i] = tokenizer.Message{Role: m.Role, Content: m.Content}
	}
	prompt := handle.Profile().RenderPrompt(msgs, true)
	promptTokens := handle.Tokenizer().Encode(prompt)

	params := genruntime.SelectParams(req.Temperature, req.TopP, req.MaxTokens)
	stopStrs, stops := effectiveStops(handle, req.Stop)
	return handle, promptTokens, params, stops, stopStrs, nil
}

func (e *Engine) prepareCompletion(ctx context.Context, req CompletionRequest) (modelcache.Handle, []int, genruntime.GenerationParams, *genruntime.StopMatcher, []string, error) {
	handle, err := e.models.GetModel(ctx, req.Model)
	if err != nil {
		return modelcache.Handle{}, nil, genruntime.GenerationParams{}, nil, nil, err
	}

	promptTokens := handle.Tokenizer().Encode(req.Prompt)
	params := genruntime.SelectParams(req.Temperature, req.TopP, req.MaxTokens)
	stopStrs, stops := effectiveStops(handle, req.Stop)
	return handle, promptTokens, params, stops, stopStrs, nil
}

// effectiveStops implements §4.4: request-provided stops win; else the
// tokenizer profile's configured defaults. Returns the resolved string
// list alongside the token-level matcher built from it, so the caller can
// build a text-level splicer over the same effective stop set rather than
// re-deriving (and potentially disagreeing with) it from the profile
// defaults directly.
func effectiveStops(handle modelcache.Handle, requested []string) ([]string, *genruntime.StopMatcher) {
	strs := requested
	if len(strs) == 0 {
		strs = handle.Profile().StopSequences
	}
	tok := handle.Tokenizer()
	encoded := make([][]int, 0, len(strs))
	for _, s := range strs {
		encoded = append(encoded, tok.Encode(s))
	}
	return strs, genruntime.NewStopMatcher(encoded)
}

// drain runs generation to completion and assembles a single Result,
// applying the text-level stop-string trim to the final decoded text.
func (e *Engine) drain(ctx context.Context, handle modelcache.Handle, promptTokens []int, params genruntime.GenerationParams, stops *genruntime.StopMatcher, stopStrs []string) (*Result, error) {
	gen := genruntime.Generate(ctx, handle, promptTokens, params, stops)
	splicer := NewStopSplicer(stopStrs)

	var out strings.Builder
	finish := "length"
	completionTokens := 0

	for {
		chunk, ok, err := e.nextChunk(gen)
		if err != nil {
			e.handleGPUFault(handle, err)
			return nil, err
		}
		if !ok {
			break
		}
		if chunk.Text != "" {
			emit, done := splicer.Feed(chunk.Text)
			out.WriteString(emit)
			completionTokens++
			if done {
				finish = "stop"
				break
			}
		}
		if chunk.Done {
			if chunk.FinishReason != "" {
				finish = chunk.FinishReason
			}
			out.WriteString(splicer.Flush())
			break
		}
	}

	return &Result{
		Text:         out.String(),
		FinishReason: finish,
		Usage: Usage{
			PromptTokens:     len(promptTokens),
			CompletionTokens: completionTokens,
			TotalTokens:      len(promptTokens) + completionTokens,
		},
	}, nil
}

// stream runs generation and yields StreamEvent frames, releasing the
// semaphore permit when the channel closes.
func (e *Engine) stream(ctx context.Context, handle modelcache.Handle, promptTokens []int, params genruntime.GenerationParams, stops *genruntime.StopMatcher, stopStrs []string) <-chan StreamEvent {
	out := make(chan StreamEvent, 8)

	go func() {
		defer e.release()
		defer close(out)

		gen := genruntime.Generate(ctx, handle, promptTokens, params, stops)
		splicer := NewStopSplicer(stopStrs)

		first := true
		completionTokens := 0

		for {
			chunk, ok, err := e.nextChunk(gen)
			if err != nil {
				e.handleGPUFault(handle, err)
				out <- StreamEvent{Err: err, Done: true}
				return
			}
			if !ok {
				break
			}

			if first && chunk.Text != "" {
				out <- StreamEvent{Role: "assistant"}
				first = false
			}

			if chunk.Text != "" {
				emit, done := splicer.Feed(chunk.Text)
				completionTokens++
				if emit != "" {
					out <- StreamEvent{Delta: emit}
				}
				if done {
					usage := &Usage{PromptTokens: len(promptTokens), CompletionTokens: completionTokens, TotalTokens: len(promptTokens) + completionTokens}
					out <- StreamEvent{FinishReason: "stop", Usage: usage, Done: true}
					return
				}
			}

			if chunk.Done {
				if tail := splicer.Flush(); tail != "" {
					out <- StreamEvent{Delta: tail}
				}
				finish := chunk.FinishReason
				if finish == "" {
					finish = "length"
				}
				usage := &Usage{PromptTokens: len(promptTokens), CompletionTokens: completionTokens, TotalTokens: len(promptTokens) + completionTokens}
				out <- StreamEvent{FinishReason: finish, Usage: usage, Done: true}
				return
			}
		}
	}()

	return out
}

// nextChunk awaits the next generation chunk with the §5 join timeout.
func (e *Engine) nextChunk(gen <-chan genruntime.Chunk) (genruntime.Chunk, bool, error) {
	select {
	case chunk, ok := <-gen:
		if !ok {
			return genruntime.Chunk{}, false, nil
		}
		if chunk.Err != nil {
			return genruntime.Chunk{}, false, chunk.Err
		}
		return chunk, true, nil
	case <-time.After(joinTimeout):
		return genruntime.Chunk{}, false, gatewayerr.New(gatewayerr.GenerationTimeout, "generation worker did not produce a token within the join timeout")
	}
}

// handleGPUFault implements §4.4's GPU-fault recovery: clear the
// device cache and schedule the model's unload, then let the caller
// re-raise. The process keeps serving other models.
func (e *Engine) handleGPUFault(handle modelcache.Handle, err error) {
	if !gatewayerr.Is(err, gatewayerr.GpuFault) {
		return
	}
	logging.Warn("gpu fault during generation, scheduling model unload", map[string]interface{}{
		"model": handle.Name,
		"error": err.Error(),
	})
	go e.models.Unload(handle.Name)
}
