package autodiff

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/born-ml/textgrad/internal/engine"
	"github.com/born-ml/textgrad/internal/prompts"
)

// DefaultInstructionRole is the role of a TextLoss evaluation instruction.
const DefaultInstructionRole = "system prompt for the evaluation"

// TextLoss is the evaluation step: a natural-language loss that critiques a
// candidate under a fixed instruction.
//
// Example:
//
//	loss, err := autodiff.NewTextLoss(sess, eng, "Evaluate the answer, be very critical.").Forward(ctx, answer)
type TextLoss struct {
	sess        *Session
	engine      engine.Engine
	instruction *Variable
	opts        engine.GenerateOptions
}

// NewTextLoss creates an evaluation step. A nil eng uses the session's engine.
// The instruction is a non-trainable variable.
func NewTextLoss(sess *Session, eng engine.Engine, instruction string) *TextLoss {
	if eng == nil {
		eng = sess.Engine()
	}
	return &TextLoss{
		sess:        sess,
		engine:      eng,
		instruction: NewVariable(instruction, DefaultInstructionRole, false),
	}
}

// Kind implements Function.
func (l *TextLoss) Kind() Kind {
	return KindTextLoss
}

// Instruction returns the evaluation instruction variable.
func (l *TextLoss) Instruction() *Variable {
	return l.instruction
}

// Forward evaluates candidate. The loss does not require grad and has the
// candidate as its only predecessor.
func (l *TextLoss) Forward(ctx context.Context, candidate *Variable) (*Variable, error) {
	if candidate == nil {
		return nil, ErrNilVariable
	}
	opts := l.opts
	opts.SystemPrompt = l.instruction.Value()

	text, err := l.engine.Generate(ctx, candidate.Value(), opts)
	if err != nil {
		return nil, fmt.Errorf("text loss forward: %w", err)
	}

	loss := NewVariable(text, "evaluation of the "+candidate.Role(), false)
	if err := link(loss, l, candidate); err != nil {
		return nil, err
	}
	l.sess.logger.Debug("text loss forward",
		slog.String("candidate", candidate.ID()),
		slog.String("loss", loss.ID()),
	)
	return loss, nil
}

// backward implements Function.
func (l *TextLoss) backward(ctx context.Context, p *pass, out *Variable) ([]contribution, error) {
	var contribs []contribution
	for _, candidate := range out.Predecessors() {
		if !p.needsGrad(candidate) {
			continue
		}
		prompt := prompts.TextLossGradient(prompts.Evaluation{
			Instruction:     l.instruction.Value(),
			InstructionRole: l.instruction.Role(),
			Candidate:       candidate.Value(),
			CandidateRole:   candidate.Role(),
			Critique:        out.Value(),
			Feedback:        out.GradientText(),
		})
		gradient, err := p.generate(ctx, prompt)
		if err != nil {
			return contribs, err
		}
		contribs = append(contribs, contribution{target: candidate, gradient: gradient})
	}
	return contribs, nil
}
