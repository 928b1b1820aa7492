package autodiff

import (
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestLink_RejectsCycles tests the DAG check at edge creation.
func TestLink_RejectsCycles(t *testing.T) {
	a := NewVariable("a", "first", true)
	b := NewVariable("b", "second", true)
	c := NewVariable("c", "third", true)

	require.NoError(t, link(b, &Sum{}, a))
	require.NoError(t, link(c, &Sum{}, b))

	tests := []struct {
		name   string
		out    *Variable
		inputs []*Variable
	}{
		{"self loop", a, []*Variable{a}},
		{"direct back edge", a, []*Variable{b}},
		{"transitive back edge", a, []*Variable{c}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := link(tt.out, &Sum{}, tt.inputs...)
			require.ErrorIs(t, err, ErrCycle)
			assert.True(t, tt.out.IsLeaf(), "no edge added on rejection")
		})
	}
}

// TestLink_DeduplicatesInputs tests that a repeated input becomes one edge.
func TestLink_DeduplicatesInputs(t *testing.T) {
	a := NewVariable("a", "first", true)
	b := NewVariable("b", "second", true)
	out := NewVariable("out", "sum", true)

	require.NoError(t, link(out, &Sum{}, a, b, a))
	assert.Equal(t, []*Variable{a, b}, out.Predecessors())
	assert.Equal(t, KindSum, out.Creator().Kind())

	assert.ErrorIs(t, link(out, &Sum{}, nil), ErrNilVariable)
	assert.ErrorIs(t, link(nil, &Sum{}, a), ErrNilVariable)
}

// TestCollect tests reachability order and shared-node handling.
func TestCollect(t *testing.T) {
	q := NewVariable("q", "q", false)
	x := NewVariable("x", "x", true)
	y := NewVariable("y", "y", true)
	z := NewVariable("z", "z", true)
	require.NoError(t, link(x, &Sum{}, q))
	require.NoError(t, link(y, &Sum{}, q))
	require.NoError(t, link(z, &Sum{}, x, y))

	nodes := collect(z)
	assert.Equal(t, []*Variable{z, x, q, y}, nodes)
	assert.Equal(t, map[*Variable]int{x: 1, y: 1, q: 2}, successorCounts(nodes))
}

// TestComputeNeeds tests gradient necessity through non-trainable nodes.
func TestComputeNeeds(t *testing.T) {
	q := NewVariable("q", "question", false)
	p := NewVariable("p", "prompt", true)
	frozen := NewVariable("f", "frozen answer", false)
	mixed := NewVariable("m", "mixed answer", false)
	root := NewVariable("r", "root", false)
	require.NoError(t, link(frozen, &Sum{}, q))
	require.NoError(t, link(mixed, &Sum{}, q, p))
	require.NoError(t, link(root, &Sum{}, frozen, mixed))

	needs := computeNeeds(collect(root))
	assert.False(t, needs[q])
	assert.False(t, needs[frozen])
	assert.True(t, needs[p])
	assert.True(t, needs[mixed])
	assert.True(t, needs[root])
}

// TestVariable_Accessors tests the read side of Variable.
func TestVariable_Accessors(t *testing.T) {
	v := NewVariable("value", "role", true)
	w := NewVariable("value", "role", true)

	assert.NotEmpty(t, v.ID())
	assert.NotEqual(t, v.ID(), w.ID(), "identity is not the value")
	assert.True(t, v.IsLeaf())
	assert.Nil(t, v.Creator())

	v.SetRole("new role")
	assert.Equal(t, "new role", v.Role())

	v.SetValue("updated")
	assert.Equal(t, "updated", v.Value())

	v.appendGradient("one")
	v.appendGradient("two")
	assert.Equal(t, "one\n\ntwo", v.GradientText())

	grads := v.Gradients()
	grads[0] = "mutated"
	assert.Equal(t, []string{"one", "two"}, v.Gradients(), "Gradients returns a copy")

	v.ZeroGrad()
	assert.Empty(t, v.Gradients())
	assert.False(t, v.hasGradients())
}

// TestVariable_String tests truncation of long values.
func TestVariable_String(t *testing.T) {
	v := NewVariable(strings.Repeat("x", 100), "long", false)
	s := v.String()
	assert.Contains(t, s, "...")
	assert.Contains(t, s, `role="long"`)
	assert.Contains(t, s, "requires_grad=false")
}

// TestVariable_ConcurrentAppend tests that gradient appends are safe.
func TestVariable_ConcurrentAppend(t *testing.T) {
	v := NewVariable("v", "target", true)
	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v.appendGradient("g")
		}()
	}
	wg.Wait()
	assert.Len(t, v.Gradients(), 50)
}

// TestKind_String tests kind names.
func TestKind_String(t *testing.T) {
	tests := []struct {
		kind Kind
		want string
	}{
		{KindLLMCall, "LLMCall"},
		{KindTextLoss, "TextLoss"},
		{KindSum, "Sum"},
		{Kind(0), "Unknown"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.kind.String())
	}
}
