// Package optim implements optimizers for text variables.
//
// This package provides:
//   - Optimizer interface: Base interface for all optimizers
//   - TGD: Textual Gradient Descent with an optional momentum window
//
// Design inspired by PyTorch's torch.optim: an optimizer owns an explicit,
// ordered list of parameters and rewrites them from their accumulated
// gradients.
//
// Example usage:
//
//	optimizer, err := optim.NewTGD([]*autodiff.Variable{answer}, optim.TGDConfig{
//	    Engine: eng,
//	})
//
//	for range iterations {
//	    loss, _ := lossFn.Forward(ctx, answer)
//	    if err := sess.Backward(ctx, loss); err != nil { ... }
//	    if err := optimizer.Step(ctx); err != nil { ... }
//	    autodiff.ZeroGrad(loss)
//	}
package optim

import (
	"context"
	"errors"

	"github.com/born-ml/textgrad/internal/autodiff"
)

// ErrNoEngine is returned when an optimizer is built without an engine.
var ErrNoEngine = errors.New("optim: engine is required")

// Optimizer is the base interface for all optimization algorithms.
type Optimizer interface {
	// Step rewrites every trainable parameter that holds gradients, then
	// clears the gradients of all parameters.
	//
	// A second Step without a new backward pass makes no engine call.
	Step(ctx context.Context) error

	// ZeroGrad clears all parameter gradients.
	ZeroGrad()

	// Parameters returns the parameters in the order given at construction.
	Parameters() []*autodiff.Variable
}

// Config is the base configuration for all optimizers.
type Config struct {
	// Constraints are natural-language rules every update must follow.
	Constraints []string
}

// trainable reports whether param should be rewritten by a step.
func trainable(param *autodiff.Variable) bool {
	return param != nil && param.RequiresGrad() && len(param.Gradients()) > 0
}
