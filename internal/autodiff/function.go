package autodiff

import (
	"context"

	"github.com/born-ml/textgrad/internal/engine"
	"github.com/born-ml/textgrad/internal/prompts"
)

// Kind enumerates the closed set of Functions.
type Kind uint8

// Function kinds.
const (
	KindLLMCall Kind = iota + 1
	KindTextLoss
	KindSum
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindLLMCall:
		return "LLMCall"
	case KindTextLoss:
		return "TextLoss"
	case KindSum:
		return "Sum"
	default:
		return "Unknown"
	}
}

// Function is a differentiable text operation.
//
// Each Function's Forward creates a new Variable and records the inputs as its
// predecessors. During Backward, the function's gradient rule turns the
// output's accumulated gradients into gradients for each predecessor.
//
// The set is closed: the gradient rule is unexported, so only the kinds
// declared in this package (LLMCall, TextLoss, Sum) implement it.
type Function interface {
	// Kind identifies the operation.
	Kind() Kind

	// backward returns the gradients out's predecessors should receive.
	// It runs once per node per pass, after every successor has contributed.
	backward(ctx context.Context, p *pass, out *Variable) ([]contribution, error)
}

// contribution is one gradient destined for one variable.
type contribution struct {
	target   *Variable
	gradient string
}

// pass is the state of one Backward call shared with gradient rules.
// Its fields are read-only once the first layer starts.
type pass struct {
	sess  *Session
	id    string
	needs map[*Variable]bool
}

// needsGrad reports whether v should receive gradients: v is trainable, or
// gradients must flow through it to a trainable ancestor.
func (p *pass) needsGrad(v *Variable) bool {
	return p.needs[v]
}

// generate asks the backward engine for one gradient.
func (p *pass) generate(ctx context.Context, prompt string) (string, error) {
	text, err := p.sess.backward.Generate(ctx, prompt, engine.GenerateOptions{
		SystemPrompt: prompts.BackwardSystemPrompt,
	})
	if p.sess.ins.GradientCalls != nil {
		p.sess.ins.GradientCalls.Add(ctx, 1)
	}
	if err != nil {
		return "", err
	}
	return text, nil
}

// computeNeeds evaluates needsGrad for every node in nodes.
func computeNeeds(nodes []*Variable) map[*Variable]bool {
	needs := make(map[*Variable]bool, len(nodes))
	done := make(map[*Variable]bool, len(nodes))
	var eval func(*Variable) bool
	eval = func(v *Variable) bool {
		if done[v] {
			return needs[v]
		}
		done[v] = true
		n := v.RequiresGrad()
		for _, p := range v.Predecessors() {
			if eval(p) {
				n = true
			}
		}
		needs[v] = n
		return n
	}
	for _, v := range nodes {
		eval(v)
	}
	return needs
}
