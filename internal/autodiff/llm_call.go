package autodiff

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/born-ml/textgrad/internal/engine"
	"github.com/born-ml/textgrad/internal/prompts"
)

// DefaultResponseRole is the role given to LLMCall outputs.
const DefaultResponseRole = "response from the language model"

// LLMCall is the generative step: output = engine(input), optionally under a
// system prompt that is itself a Variable (and therefore trainable).
type LLMCall struct {
	sess   *Session
	engine engine.Engine
	system *Variable
	opts   engine.GenerateOptions
}

// LLMCallOption configures an LLMCall.
type LLMCallOption func(*LLMCall)

// WithSystemPrompt makes system the call's system prompt and a predecessor of
// every output, so feedback can flow into it.
func WithSystemPrompt(system *Variable) LLMCallOption {
	return func(c *LLMCall) {
		c.system = system
	}
}

// WithGenerateOptions sets the forward generation options.
// Their SystemPrompt is ignored in favour of WithSystemPrompt.
func WithGenerateOptions(opts engine.GenerateOptions) LLMCallOption {
	return func(c *LLMCall) {
		c.opts = opts
	}
}

// NewLLMCall creates a generative step. A nil eng uses the session's engine.
func NewLLMCall(sess *Session, eng engine.Engine, opts ...LLMCallOption) *LLMCall {
	if eng == nil {
		eng = sess.Engine()
	}
	c := &LLMCall{sess: sess, engine: eng}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Kind implements Function.
func (c *LLMCall) Kind() Kind {
	return KindLLMCall
}

// SystemPrompt returns the system prompt variable, or nil.
func (c *LLMCall) SystemPrompt() *Variable {
	return c.system
}

// ForwardOption configures the output of a Forward call.
type ForwardOption func(*forwardOptions)

type forwardOptions struct {
	role         string
	requiresGrad bool
}

// WithRole sets the output's role description.
func WithRole(role string) ForwardOption {
	return func(o *forwardOptions) {
		o.role = role
	}
}

// WithRequiresGrad sets whether the output is trainable. Default: true.
func WithRequiresGrad(requiresGrad bool) ForwardOption {
	return func(o *forwardOptions) {
		o.requiresGrad = requiresGrad
	}
}

// Forward generates a response to input.
//
// The output's predecessors are [input] or [input, system prompt].
func (c *LLMCall) Forward(ctx context.Context, input *Variable, opts ...ForwardOption) (*Variable, error) {
	if input == nil {
		return nil, ErrNilVariable
	}
	fo := forwardOptions{role: DefaultResponseRole, requiresGrad: true}
	for _, opt := range opts {
		opt(&fo)
	}

	genOpts := c.opts
	genOpts.SystemPrompt = ""
	inputs := []*Variable{input}
	if c.system != nil {
		genOpts.SystemPrompt = c.system.Value()
		inputs = append(inputs, c.system)
	}

	text, err := c.engine.Generate(ctx, input.Value(), genOpts)
	if err != nil {
		return nil, fmt.Errorf("llm call forward: %w", err)
	}

	out := NewVariable(text, fo.role, fo.requiresGrad)
	if err := link(out, c, inputs...); err != nil {
		return nil, err
	}
	c.sess.logger.Debug("llm call forward",
		slog.String("input", input.ID()),
		slog.String("output", out.ID()),
	)
	return out, nil
}

// backward implements Function. One engine call per predecessor that needs
// a gradient; each sees the full exchange and the output's feedback.
func (c *LLMCall) backward(ctx context.Context, p *pass, out *Variable) ([]contribution, error) {
	preds := out.Predecessors()
	if len(preds) == 0 {
		return nil, nil
	}
	input := preds[0]

	exchange := prompts.Exchange{
		Input:      input.Value(),
		InputRole:  input.Role(),
		Output:     out.Value(),
		OutputRole: out.Role(),
		Feedback:   out.GradientText(),
	}
	if c.system != nil {
		exchange.SystemPrompt = c.system.Value()
	}

	var contribs []contribution
	for _, target := range preds {
		if !p.needsGrad(target) {
			continue
		}
		exchange.TargetRole = target.Role()
		gradient, err := p.generate(ctx, prompts.LLMCallGradient(exchange))
		if err != nil {
			return contribs, err
		}
		contribs = append(contribs, contribution{target: target, gradient: gradient})
	}
	return contribs, nil
}
