package autodiff

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
)

var (
	// ErrCycle is returned when an edge would make a variable its own
	// transitive predecessor.
	ErrCycle = errors.New("autodiff: edge would create a cycle")

	// ErrStaleGradients is returned by Backward when the graph still holds
	// gradients from a previous pass. Call ZeroGrad first.
	ErrStaleGradients = errors.New("autodiff: graph holds gradients from a previous backward pass")

	// ErrSessionClosed is returned when a closed session is used.
	ErrSessionClosed = errors.New("autodiff: session closed")

	// ErrNilVariable is returned when a nil variable is passed where a node is required.
	ErrNilVariable = errors.New("autodiff: nil variable")

	// ErrNilSession is returned when Backward is called without a session.
	ErrNilSession = errors.New("autodiff: nil session")
)

// Variable is a node in the text computation graph.
//
// A Variable holds a text value, a role description used to compose prompts,
// a trainability flag, and the textual gradients accumulated during one
// backward pass. Edges to predecessors are created only by applying a
// Function; they are never edited directly.
//
// Example:
//
//	question := autodiff.NewVariable("How long do 30 shirts take to dry?", "question to the LLM", false)
//	answer, err := llm.Forward(ctx, question)
//	answer.SetRole("concise and accurate answer to the question")
type Variable struct {
	id           string
	requiresGrad bool

	mu           sync.RWMutex
	value        string
	role         string
	predecessors []*Variable // Inputs of creator, in application order, deduplicated
	creator      Function    // Function that produced this variable; nil for leaves
	gradients    []string    // Textual gradients, in accumulation order
}

// NewVariable creates a leaf variable.
//
// Parameters:
//   - value: the text payload
//   - role: what the text is for, e.g. "system prompt to the language model"
//   - requiresGrad: whether the optimizer may rewrite the value
func NewVariable(value, role string, requiresGrad bool) *Variable {
	return &Variable{
		id:           uuid.NewString(),
		requiresGrad: requiresGrad,
		value:        value,
		role:         role,
	}
}

// ID returns the variable's unique identity.
func (v *Variable) ID() string {
	return v.id
}

// Value returns the current text.
func (v *Variable) Value() string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.value
}

// Role returns the role description.
func (v *Variable) Role() string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.role
}

// SetRole replaces the role description.
func (v *Variable) SetRole(role string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.role = role
}

// RequiresGrad reports whether the variable is trainable.
func (v *Variable) RequiresGrad() bool {
	return v.requiresGrad
}

// Predecessors returns a copy of the variable's inputs.
func (v *Variable) Predecessors() []*Variable {
	v.mu.RLock()
	defer v.mu.RUnlock()
	out := make([]*Variable, len(v.predecessors))
	copy(out, v.predecessors)
	return out
}

// Creator returns the Function that produced v, or nil for a leaf.
func (v *Variable) Creator() Function {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.creator
}

// IsLeaf reports whether v has no predecessors.
func (v *Variable) IsLeaf() bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.predecessors) == 0
}

// Gradients returns a copy of the accumulated gradients.
func (v *Variable) Gradients() []string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	out := make([]string, len(v.gradients))
	copy(out, v.gradients)
	return out
}

// GradientText joins the accumulated gradients with blank lines.
func (v *Variable) GradientText() string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return strings.Join(v.gradients, "\n\n")
}

// ZeroGrad clears the accumulated gradients of v only.
func (v *Variable) ZeroGrad() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.gradients = nil
}

// Backward runs the backward pass rooted at v. See Session.Backward.
func (v *Variable) Backward(ctx context.Context, sess *Session) error {
	return sess.Backward(ctx, v)
}

// String returns a short description for logs.
func (v *Variable) String() string {
	value := v.Value()
	if len(value) > 60 {
		value = value[:57] + "..."
	}
	return fmt.Sprintf("Variable(role=%q, value=%q, requires_grad=%t)", v.Role(), value, v.requiresGrad)
}

// appendGradient records one gradient.
func (v *Variable) appendGradient(g string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.gradients = append(v.gradients, g)
}

// SetValue replaces the value in one step. Optimizers call it after an
// update; gradients and edges are left untouched.
func (v *Variable) SetValue(value string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.value = value
}

// hasGradients reports whether any gradient is recorded.
func (v *Variable) hasGradients() bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.gradients) > 0
}

// link registers fn as the creator of out and inputs as its predecessors.
//
// An input equal to out, or one that already has out among its transitive
// predecessors, would close a cycle and is rejected before any edge is added.
// Repeated inputs are kept once.
func link(out *Variable, fn Function, inputs ...*Variable) error {
	if out == nil {
		return ErrNilVariable
	}
	preds := make([]*Variable, 0, len(inputs))
	seen := make(map[*Variable]bool, len(inputs))
	for _, in := range inputs {
		if in == nil {
			return ErrNilVariable
		}
		if seen[in] {
			continue
		}
		if in == out || reaches(in, out) {
			return fmt.Errorf("%w: %s -> %s", ErrCycle, out.ID(), in.ID())
		}
		seen[in] = true
		preds = append(preds, in)
	}

	out.mu.Lock()
	defer out.mu.Unlock()
	out.predecessors = append(out.predecessors, preds...)
	out.creator = fn
	return nil
}

// reaches reports whether target is a transitive predecessor of from.
func reaches(from, target *Variable) bool {
	visited := make(map[*Variable]bool)
	stack := []*Variable{from}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if visited[n] {
			continue
		}
		visited[n] = true
		for _, p := range n.Predecessors() {
			if p == target {
				return true
			}
			stack = append(stack, p)
		}
	}
	return false
}

// collect returns every variable reachable from root through predecessor
// edges, root first, in depth-first discovery order.
func collect(root *Variable) []*Variable {
	var order []*Variable
	visited := make(map[*Variable]bool)
	var visit func(*Variable)
	visit = func(n *Variable) {
		if visited[n] {
			return
		}
		visited[n] = true
		order = append(order, n)
		for _, p := range n.Predecessors() {
			visit(p)
		}
	}
	visit(root)
	return order
}

// ZeroGrad clears the gradients of every variable reachable from root.
//
// Call it between iterations; Backward refuses to run on a graph that still
// holds gradients.
func ZeroGrad(root *Variable) {
	if root == nil {
		return
	}
	for _, n := range collect(root) {
		n.ZeroGrad()
	}
}
