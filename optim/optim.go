// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package optim

import (
	"github.com/born-ml/textgrad/internal/autodiff"
	"github.com/born-ml/textgrad/internal/optim"
)

// Optimizer interface defines the common interface for all optimizers.
type Optimizer = optim.Optimizer

// Config represents the base configuration for optimizers.
type Config = optim.Config

// ErrNoEngine is returned when an optimizer is built without an engine.
var ErrNoEngine = optim.ErrNoEngine

// TGD (Textual Gradient Descent)

// TGD rewrites each parameter from its accumulated feedback.
type TGD = optim.TGD

// TGDConfig contains configuration for the TGD optimizer.
type TGDConfig = optim.TGDConfig

// NewTGD creates a new TGD optimizer.
//
// Example:
//
//	optimizer, err := optim.NewTGD(
//	    []*autodiff.Variable{systemPrompt},
//	    optim.TGDConfig{Engine: eng, MomentumWindow: 3},
//	)
func NewTGD(params []*autodiff.Variable, config TGDConfig) (*TGD, error) {
	return optim.NewTGD(params, config)
}
