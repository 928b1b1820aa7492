// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package autodiff provides automatic differentiation over text.
//
// Variables hold text; Functions (LLMCall, TextLoss, Sum) build a graph of
// them during the forward pass. Backward walks the graph in reverse and asks
// a language model for natural-language feedback, the textual gradient, for
// every variable that can still be improved.
//
// Example:
//
//	import (
//	    "github.com/born-ml/textgrad/autodiff"
//	    "github.com/born-ml/textgrad/engine"
//	)
//
//	func main() {
//	    ctx := context.Background()
//	    eng, _ := engine.New(engine.Config{Model: "llama3"})
//	    defer eng.Close()
//
//	    sess := autodiff.NewSession(eng)
//	    defer sess.Close()
//
//	    question := autodiff.NewVariable("How many r's are in strawberry?", "question to the LLM", false)
//	    answer, _ := autodiff.NewLLMCall(sess, eng).Forward(ctx, question)
//	    loss, _ := autodiff.NewTextLoss(sess, eng, "Evaluate the answer, be critical.").Forward(ctx, answer)
//
//	    // Feedback lands on answer.Gradients()
//	    _ = sess.Backward(ctx, loss)
//	}
package autodiff

import (
	"github.com/born-ml/textgrad/internal/autodiff"
	"github.com/born-ml/textgrad/internal/engine"
)

// Variable is a node of the text graph.
type Variable = autodiff.Variable

// Session owns the backward engine and settings of an optimization run.
type Session = autodiff.Session

// SessionOption configures a Session.
type SessionOption = autodiff.SessionOption

// Function is an operation with a textual gradient rule.
type Function = autodiff.Function

// Kind identifies a Function.
type Kind = autodiff.Kind

// Function kinds.
const (
	KindLLMCall  = autodiff.KindLLMCall
	KindTextLoss = autodiff.KindTextLoss
	KindSum      = autodiff.KindSum
)

// LLMCall is the generative step.
type LLMCall = autodiff.LLMCall

// LLMCallOption configures an LLMCall.
type LLMCallOption = autodiff.LLMCallOption

// ForwardOption configures an LLMCall output.
type ForwardOption = autodiff.ForwardOption

// TextLoss is the evaluation step.
type TextLoss = autodiff.TextLoss

// Sum concatenates variables.
type Sum = autodiff.Sum

// Errors.
var (
	ErrCycle          = autodiff.ErrCycle
	ErrStaleGradients = autodiff.ErrStaleGradients
	ErrSessionClosed  = autodiff.ErrSessionClosed
	ErrNilVariable    = autodiff.ErrNilVariable
	ErrNilSession     = autodiff.ErrNilSession
)

// DefaultSeed is the gradient given to the root of a backward pass.
const DefaultSeed = autodiff.DefaultSeed

// NewVariable creates a leaf variable.
func NewVariable(value, role string, requiresGrad bool) *Variable {
	return autodiff.NewVariable(value, role, requiresGrad)
}

// ZeroGrad clears the gradients of every variable reachable from root.
func ZeroGrad(root *Variable) {
	autodiff.ZeroGrad(root)
}

// NewSession creates a session whose gradients are synthesized by backward.
func NewSession(backward engine.Engine, opts ...SessionOption) *Session {
	return autodiff.NewSession(backward, opts...)
}

// Session options.
var (
	WithLogger         = autodiff.WithLogger
	WithSeed           = autodiff.WithSeed
	WithParallel       = autodiff.WithParallel
	WithTracerProvider = autodiff.WithTracerProvider
	WithMeterProvider  = autodiff.WithMeterProvider
)

// NewLLMCall creates a generative step. A nil eng uses the session's engine.
func NewLLMCall(sess *Session, eng engine.Engine, opts ...LLMCallOption) *LLMCall {
	return autodiff.NewLLMCall(sess, eng, opts...)
}

// LLMCall options.
var (
	WithSystemPrompt    = autodiff.WithSystemPrompt
	WithGenerateOptions = autodiff.WithGenerateOptions
	WithRole            = autodiff.WithRole
	WithRequiresGrad    = autodiff.WithRequiresGrad
)

// NewTextLoss creates an evaluation step. A nil eng uses the session's engine.
func NewTextLoss(sess *Session, eng engine.Engine, instruction string) *TextLoss {
	return autodiff.NewTextLoss(sess, eng, instruction)
}

// NewSum creates a concatenation step.
func NewSum(sess *Session) *Sum {
	return autodiff.NewSum(sess)
}
