// Package engine defines the text-generation collaborator used by every other
// component of textgrad, together with the decorators that give it a retry
// policy and a response cache.
//
// The package provides:
//   - Engine interface: synchronous text-in/text-out generation
//   - Chat: OpenAI-compatible chat completion engine (OpenAI, Groq)
//   - Retrying: randomized exponential backoff on transient failures
//   - Cached: response cache keyed on the literal system prompt + prompt
//   - Scripted: deterministic in-process engine for tests and examples
//
// Example usage:
//
//	chat, err := engine.NewChat(engine.ChatConfig{Provider: engine.ProviderGroq, Model: "llama3-8b-8192"})
//	if err != nil {
//	    log.Fatal(err) // missing GROQ_API_KEY surfaces here, not on first call
//	}
//	eng := engine.Cached(engine.Retrying(chat, engine.DefaultRetryPolicy()), engine.NewMemoryCache())
//	text, err := eng.Generate(ctx, "Say hi", engine.GenerateOptions{})
package engine

import (
	"context"
	"errors"
	"fmt"
)

// DefaultSystemPrompt is used when neither the call nor the engine supplies one.
const DefaultSystemPrompt = "You are a helpful, creative, and smart assistant."

var (
	// ErrConfig marks unrecoverable configuration or authentication failures.
	// It is never retried.
	ErrConfig = errors.New("engine: configuration error")

	// ErrTransient marks failures worth retrying (rate limits, network faults).
	ErrTransient = errors.New("engine: transient error")

	// ErrExhausted is returned once a retry budget is spent.
	ErrExhausted = errors.New("engine: retry attempts exhausted")

	// ErrEmptyResponse is returned when the provider answers without content.
	ErrEmptyResponse = errors.New("engine: empty response")
)

// Engine generates text for a prompt.
//
// Implementations must be safe for concurrent use: the backward pass may
// dispatch sibling nodes in parallel.
type Engine interface {
	// Generate returns the completion for prompt. It blocks until the
	// provider answers, ctx is canceled, or an error occurs.
	Generate(ctx context.Context, prompt string, opts GenerateOptions) (string, error)
}

// Func adapts an ordinary function to the Engine interface.
type Func func(ctx context.Context, prompt string, opts GenerateOptions) (string, error)

// Generate calls f.
func (f Func) Generate(ctx context.Context, prompt string, opts GenerateOptions) (string, error) {
	return f(ctx, prompt, opts)
}

// GenerateOptions configures a single generation call.
// Nil pointer fields mean "use the engine default".
type GenerateOptions struct {
	// SystemPrompt overrides the engine's default system prompt.
	SystemPrompt string

	// Temperature controls randomness. 0 = greedy.
	Temperature *float32

	// MaxTokens caps the completion length.
	MaxTokens *int

	// TopP is the nucleus sampling mass. 1.0 = disabled.
	TopP *float32
}

// Float32 returns a pointer to v, for GenerateOptions literals.
func Float32(v float32) *float32 { return &v }

// Int returns a pointer to v, for GenerateOptions literals.
func Int(v int) *int { return &v }

// configError wraps err so that errors.Is(err, ErrConfig) holds.
func configError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConfig, fmt.Sprintf(format, args...))
}

// transientError marks err as retryable while keeping it in the chain.
func transientError(err error) error {
	return fmt.Errorf("%w: %w", ErrTransient, err)
}

// IsRetryable reports whether err should trigger another attempt.
//
// Configuration errors and context cancellation are never retryable.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrConfig) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return errors.Is(err, ErrTransient)
}
