// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package optim provides optimizers that rewrite text variables from their
// textual gradients.
//
// # Overview
//
// This package contains:
//   - TGD: Textual Gradient Descent with optional momentum and constraints
//   - Optimizer interface for custom optimizers
//
// # Basic Usage
//
//	import (
//	    "github.com/born-ml/textgrad/autodiff"
//	    "github.com/born-ml/textgrad/engine"
//	    "github.com/born-ml/textgrad/optim"
//	)
//
//	func main() {
//	    eng, _ := engine.New(engine.Config{Model: "gpt-4o"})
//	    sess := autodiff.NewSession(eng)
//
//	    answer, _ := autodiff.NewLLMCall(sess, eng).Forward(ctx, question)
//	    optimizer, _ := optim.NewTGD([]*autodiff.Variable{answer}, optim.TGDConfig{Engine: eng})
//
//	    for range 3 {
//	        loss, _ := autodiff.NewTextLoss(sess, eng, "Evaluate the answer.").Forward(ctx, answer)
//	        _ = sess.Backward(ctx, loss)
//	        _ = optimizer.Step(ctx)
//	        autodiff.ZeroGrad(loss)
//	    }
//	}
//
// # Optimizers
//
// TGD (Textual Gradient Descent):
//
//	optimizer, err := optim.NewTGD(
//	    params,
//	    optim.TGDConfig{
//	        Config:         optim.Config{Constraints: []string{"The answer must be one sentence."}},
//	        Engine:         eng,
//	        MomentumWindow: 2,
//	    },
//	)
//
// Step skips parameters that are not trainable or hold no gradients. After a
// successful step, gradients of every parameter are cleared.
package optim
