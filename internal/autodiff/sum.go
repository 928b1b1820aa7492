package autodiff

import (
	"context"
	"errors"
	"log/slog"
	"strings"
)

// Sum concatenates the values of its inputs. Its gradient rule passes the
// output's gradients to every input verbatim and makes no engine call.
type Sum struct {
	sess *Session
}

// NewSum creates a concatenation step.
func NewSum(sess *Session) *Sum {
	return &Sum{sess: sess}
}

// Kind implements Function.
func (s *Sum) Kind() Kind {
	return KindSum
}

// Forward joins the inputs' values with newlines. The output requires grad
// when any input does.
func (s *Sum) Forward(_ context.Context, inputs ...*Variable) (*Variable, error) {
	if len(inputs) == 0 {
		return nil, errors.New("autodiff: sum of no variables")
	}
	values := make([]string, 0, len(inputs))
	roles := make([]string, 0, len(inputs))
	requiresGrad := false
	for _, in := range inputs {
		if in == nil {
			return nil, ErrNilVariable
		}
		values = append(values, in.Value())
		roles = append(roles, in.Role())
		requiresGrad = requiresGrad || in.RequiresGrad()
	}

	out := NewVariable(strings.Join(values, "\n"),
		"a combination of the following: "+strings.Join(roles, ", "), requiresGrad)
	if err := link(out, s, inputs...); err != nil {
		return nil, err
	}
	s.sess.logger.Debug("sum forward", slog.String("output", out.ID()), slog.Int("inputs", len(inputs)))
	return out, nil
}

// backward implements Function.
func (s *Sum) backward(_ context.Context, p *pass, out *Variable) ([]contribution, error) {
	gradients := out.Gradients()
	var contribs []contribution
	for _, target := range out.Predecessors() {
		if !p.needsGrad(target) {
			continue
		}
		for _, g := range gradients {
			contribs = append(contribs, contribution{target: target, gradient: g})
		}
	}
	return contribs, nil
}
