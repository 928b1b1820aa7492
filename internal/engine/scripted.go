package engine

import (
	"context"
	"sync"
)

// Verify that Scripted implements Engine.
var _ Engine = (*Scripted)(nil)

// Call records one Generate invocation.
type Call struct {
	Prompt       string
	SystemPrompt string
}

// Scripted is a deterministic in-process Engine.
//
// Every call is recorded; the response comes from the supplied function.
// It is meant for tests and offline examples.
type Scripted struct {
	mu      sync.Mutex
	respond func(prompt string, opts GenerateOptions) (string, error)
	calls   []Call
}

// NewScripted creates a Scripted engine. A nil respond echoes the prompt.
func NewScripted(respond func(prompt string, opts GenerateOptions) (string, error)) *Scripted {
	if respond == nil {
		respond = func(prompt string, _ GenerateOptions) (string, error) {
			return prompt, nil
		}
	}
	return &Scripted{respond: respond}
}

// Generate implements Engine.
func (s *Scripted) Generate(ctx context.Context, prompt string, opts GenerateOptions) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.Lock()
	s.calls = append(s.calls, Call{Prompt: prompt, SystemPrompt: opts.SystemPrompt})
	s.mu.Unlock()
	return s.respond(prompt, opts)
}

// Calls returns a copy of the recorded calls in arrival order.
func (s *Scripted) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Call, len(s.calls))
	copy(out, s.calls)
	return out
}

// CallCount returns the number of recorded calls.
func (s *Scripted) CallCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

// Reset forgets recorded calls.
func (s *Scripted) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = nil
}
