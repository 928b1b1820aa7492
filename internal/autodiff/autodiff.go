// Package autodiff implements automatic differentiation over text.
//
// A Variable holds a string value and a role description. Functions (LLMCall,
// TextLoss, Sum) create new Variables and record their inputs as
// predecessors, building a DAG during the forward pass. Backward walks that
// DAG in reverse and, instead of numeric derivatives, asks a backward engine
// for natural-language feedback ("textual gradients") for every variable
// upstream of the root.
//
// Architecture:
//   - Session: owns the backward engine, logger and concurrency settings
//   - Function: closed set of operations, each with a gradient rule
//   - Backward: reverse-topological, layer by layer, each node visited once
//   - Gradients: append-only per Variable, cleared with ZeroGrad
//
// Usage:
//
//	sess := autodiff.NewSession(backwardEngine)
//	defer sess.Close()
//
//	question := autodiff.NewVariable("How many r's are in strawberry?", "question to the LLM", false)
//	answer, _ := autodiff.NewLLMCall(sess, forwardEngine).Forward(ctx, question)
//	loss, _ := autodiff.NewTextLoss(sess, nil, "Evaluate the answer, be critical.").Forward(ctx, answer)
//
//	if err := sess.Backward(ctx, loss); err != nil { ... }
//	fmt.Println(answer.GradientText())
//
// Variables are safe for concurrent use. Graph edges are created only by
// Function.Forward on fresh outputs and are checked for cycles.
package autodiff
