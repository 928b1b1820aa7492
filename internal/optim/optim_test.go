package optim_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/textgrad/internal/autodiff"
	"github.com/born-ml/textgrad/internal/engine"
	"github.com/born-ml/textgrad/internal/optim"
	"github.com/born-ml/textgrad/internal/parallel"
	"github.com/born-ml/textgrad/internal/prompts"
)

var errUpdate = errors.New("update failed")

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fixture wires a session whose gradient engine always answers "be concise".
type fixture struct {
	sess    *autodiff.Session
	forward *engine.Scripted
	grads   *engine.Scripted
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		forward: engine.NewScripted(func(prompt string, _ engine.GenerateOptions) (string, error) {
			return "response to " + prompt, nil
		}),
		grads: engine.NewScripted(func(string, engine.GenerateOptions) (string, error) {
			return "be concise", nil
		}),
	}
	f.sess = autodiff.NewSession(f.grads,
		autodiff.WithLogger(quietLogger()),
		autodiff.WithParallel(parallel.Sequential()),
	)
	t.Cleanup(func() { _ = f.sess.Close() })
	return f
}

// backprop runs in through a generative step and back, so in receives one gradient.
func (f *fixture) backprop(t *testing.T, in *autodiff.Variable) *autodiff.Variable {
	t.Helper()
	ctx := context.Background()
	out, err := autodiff.NewLLMCall(f.sess, f.forward).Forward(ctx, in)
	require.NoError(t, err)
	require.NoError(t, f.sess.Backward(ctx, out))
	return out
}

func improving(prefix string) *engine.Scripted {
	return engine.NewScripted(func(string, engine.GenerateOptions) (string, error) {
		return "noise " + prompts.ImprovedOpenTag + prefix + prompts.ImprovedCloseTag + " trailing", nil
	})
}

// TestNewTGD_Validation tests construction errors.
func TestNewTGD_Validation(t *testing.T) {
	tests := []struct {
		name    string
		config  optim.TGDConfig
		wantErr error
	}{
		{
			name:    "missing engine",
			config:  optim.TGDConfig{},
			wantErr: optim.ErrNoEngine,
		},
		{
			name:   "negative momentum window",
			config: optim.TGDConfig{Engine: engine.NewScripted(nil), MomentumWindow: -1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opt, err := optim.NewTGD(nil, tt.config)
			require.Error(t, err)
			assert.Nil(t, opt)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

// TestTGD_Step_RewritesParameter tests a single update.
func TestTGD_Step_RewritesParameter(t *testing.T) {
	f := newFixture(t)
	draft := autodiff.NewVariable("draft answer", "answer to the question", true)
	f.backprop(t, draft)
	require.Len(t, draft.Gradients(), 1)

	eng := improving("final answer")
	opt, err := optim.NewTGD([]*autodiff.Variable{draft}, optim.TGDConfig{
		Engine: eng,
		Logger: quietLogger(),
	})
	require.NoError(t, err)

	require.NoError(t, opt.Step(context.Background()))

	assert.Equal(t, "final answer", draft.Value())
	assert.Empty(t, draft.Gradients(), "step clears gradients")

	calls := eng.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, prompts.OptimizerSystemPrompt, calls[0].SystemPrompt)
	assert.Contains(t, calls[0].Prompt, "draft answer")
	assert.Contains(t, calls[0].Prompt, "answer to the question")
	assert.Contains(t, calls[0].Prompt, "be concise")
}

// TestTGD_Step_SkipsUntrainable tests that only trainable parameters holding
// gradients are rewritten.
func TestTGD_Step_SkipsUntrainable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	x := autodiff.NewVariable("x", "trainable leaf", true)
	y, err := autodiff.NewLLMCall(f.sess, f.forward).Forward(ctx, x, autodiff.WithRequiresGrad(false))
	require.NoError(t, err)
	z, err := autodiff.NewLLMCall(f.sess, f.forward).Forward(ctx, y)
	require.NoError(t, err)
	require.NoError(t, f.sess.Backward(ctx, z))

	require.NotEmpty(t, y.Gradients(), "gradients flow through non-trainable nodes")
	require.NotEmpty(t, x.Gradients())

	idle := autodiff.NewVariable("idle", "unused parameter", true)
	yBefore := y.Value()

	eng := improving("x improved")
	opt, err := optim.NewTGD([]*autodiff.Variable{y, x, idle}, optim.TGDConfig{
		Engine: eng,
		Logger: quietLogger(),
	})
	require.NoError(t, err)
	require.NoError(t, opt.Step(ctx))

	assert.Equal(t, 1, eng.CallCount())
	assert.Equal(t, "x improved", x.Value())
	assert.Equal(t, yBefore, y.Value())
	assert.Equal(t, "idle", idle.Value())
	assert.Empty(t, y.Gradients())
	assert.Empty(t, x.Gradients())
}

// TestTGD_Step_SecondStepIsNoop tests that a step without a new backward
// pass makes no engine call.
func TestTGD_Step_SecondStepIsNoop(t *testing.T) {
	f := newFixture(t)
	draft := autodiff.NewVariable("draft", "answer", true)
	f.backprop(t, draft)

	eng := improving("v1")
	opt, err := optim.NewTGD([]*autodiff.Variable{draft}, optim.TGDConfig{Engine: eng, Logger: quietLogger()})
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, opt.Step(ctx))
	require.NoError(t, opt.Step(ctx))

	assert.Equal(t, 1, eng.CallCount())
	assert.Equal(t, "v1", draft.Value())
}

// TestTGD_Step_ConcatenatesGradientsInOrder tests that every accumulated
// gradient reaches the update prompt, duplicates included.
func TestTGD_Step_ConcatenatesGradientsInOrder(t *testing.T) {
	f := newFixture(t)
	draft := autodiff.NewVariable("draft", "answer", true)

	ctx := context.Background()
	a, err := autodiff.NewLLMCall(f.sess, f.forward).Forward(ctx, draft)
	require.NoError(t, err)
	b, err := autodiff.NewLLMCall(f.sess, f.forward).Forward(ctx, draft)
	require.NoError(t, err)
	sum, err := autodiff.NewSum(f.sess).Forward(ctx, a, b)
	require.NoError(t, err)
	require.NoError(t, f.sess.Backward(ctx, sum))
	require.Len(t, draft.Gradients(), 2)

	eng := improving("merged")
	opt, err := optim.NewTGD([]*autodiff.Variable{draft}, optim.TGDConfig{Engine: eng, Logger: quietLogger()})
	require.NoError(t, err)
	require.NoError(t, opt.Step(ctx))

	prompt := eng.Calls()[0].Prompt
	first := strings.Index(prompt, `<GRADIENT index="1">be concise</GRADIENT>`)
	second := strings.Index(prompt, `<GRADIENT index="2">be concise</GRADIENT>`)
	assert.GreaterOrEqual(t, first, 0)
	assert.Greater(t, second, first)
}

// TestTGD_MomentumWindow tests that past values are remembered and shown.
func TestTGD_MomentumWindow(t *testing.T) {
	f := newFixture(t)
	draft := autodiff.NewVariable("v0", "answer", true)

	version := 0
	eng := engine.NewScripted(func(string, engine.GenerateOptions) (string, error) {
		version++
		return prompts.ImprovedOpenTag + "v" + string(rune('0'+version)) + prompts.ImprovedCloseTag, nil
	})
	opt, err := optim.NewTGD([]*autodiff.Variable{draft}, optim.TGDConfig{
		Engine:         eng,
		MomentumWindow: 2,
		Logger:         quietLogger(),
	})
	require.NoError(t, err)

	ctx := context.Background()
	for range 3 {
		f.backprop(t, draft)
		require.NoError(t, opt.Step(ctx))
	}

	assert.Equal(t, "v3", draft.Value())
	assert.Equal(t, []string{"v1", "v2"}, opt.Momentum(draft))

	calls := eng.Calls()
	require.Len(t, calls, 3)
	assert.NotContains(t, calls[0].Prompt, "<PAST_VALUE")
	assert.Contains(t, calls[2].Prompt, `<PAST_VALUE index="1">v0</PAST_VALUE>`)
	assert.Contains(t, calls[2].Prompt, `<PAST_VALUE index="2">v1</PAST_VALUE>`)
}

// TestTGD_Constraints tests that constraints reach the update prompt.
func TestTGD_Constraints(t *testing.T) {
	f := newFixture(t)
	draft := autodiff.NewVariable("draft", "answer", true)
	f.backprop(t, draft)

	eng := improving("42")
	opt, err := optim.NewTGD([]*autodiff.Variable{draft}, optim.TGDConfig{
		Config: optim.Config{Constraints: []string{"End with a number."}},
		Engine: eng,
		Logger: quietLogger(),
	})
	require.NoError(t, err)
	opt.AddConstraint("Be brief.")

	require.NoError(t, opt.Step(context.Background()))

	prompt := eng.Calls()[0].Prompt
	assert.Contains(t, prompt, "Constraint 1: End with a number.")
	assert.Contains(t, prompt, "Constraint 2: Be brief.")
}

// TestTGD_Step_UntaggedResponse tests the fallback when the engine omits tags.
func TestTGD_Step_UntaggedResponse(t *testing.T) {
	f := newFixture(t)
	draft := autodiff.NewVariable("draft", "answer", true)
	f.backprop(t, draft)

	eng := engine.NewScripted(func(string, engine.GenerateOptions) (string, error) {
		return "  plain rewrite \n", nil
	})
	opt, err := optim.NewTGD([]*autodiff.Variable{draft}, optim.TGDConfig{Engine: eng, Logger: quietLogger()})
	require.NoError(t, err)
	require.NoError(t, opt.Step(context.Background()))

	assert.Equal(t, "plain rewrite", draft.Value())
}

// TestTGD_Step_EngineError tests that a failed update keeps value and gradients.
func TestTGD_Step_EngineError(t *testing.T) {
	f := newFixture(t)
	draft := autodiff.NewVariable("draft", "answer", true)
	f.backprop(t, draft)

	eng := engine.NewScripted(func(string, engine.GenerateOptions) (string, error) {
		return "", errUpdate
	})
	opt, err := optim.NewTGD([]*autodiff.Variable{draft}, optim.TGDConfig{Engine: eng, Logger: quietLogger()})
	require.NoError(t, err)

	err = opt.Step(context.Background())
	assert.Equal(t, errUpdate, err, "engine error is returned unmodified")
	assert.Equal(t, "draft", draft.Value())
	assert.Len(t, draft.Gradients(), 1)
}

// TestTGD_ZeroGradAndParameters tests the explicit reset and parameter order.
func TestTGD_ZeroGradAndParameters(t *testing.T) {
	f := newFixture(t)
	a := autodiff.NewVariable("a", "first", true)
	b := autodiff.NewVariable("b", "second", true)
	f.backprop(t, a)

	opt, err := optim.NewTGD([]*autodiff.Variable{a, b}, optim.TGDConfig{Engine: engine.NewScripted(nil)})
	require.NoError(t, err)

	assert.Equal(t, []*autodiff.Variable{a, b}, opt.Parameters())

	opt.ZeroGrad()
	assert.Empty(t, a.Gradients())
}

// Verify that TGD implements Optimizer.
var _ optim.Optimizer = (*optim.TGD)(nil)
