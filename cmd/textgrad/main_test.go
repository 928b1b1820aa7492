package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/textgrad/internal/config"
	"github.com/born-ml/textgrad/internal/engine"
	"github.com/born-ml/textgrad/internal/parallel"
	"github.com/born-ml/textgrad/internal/prompts"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestVersionCmd(t *testing.T) {
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetArgs([]string{"version"})

	require.NoError(t, root.Execute())
	assert.Equal(t, "textgrad "+version+"\n", out.String())
}

func TestSolveCmd_RequiresQuestion(t *testing.T) {
	root := newRootCmd()
	root.SetOut(io.Discard)
	root.SetErr(io.Discard)
	root.SetArgs([]string{"solve"})

	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--question")
}

func TestSolveCmd_UnknownModel(t *testing.T) {
	t.Setenv("TEXTGRAD_MODEL", "")

	root := newRootCmd()
	root.SetOut(io.Discard)
	root.SetErr(io.Discard)
	root.SetArgs([]string{"solve", "--question", "2+2?", "--model", "not-a-model"})

	err := root.Execute()
	require.ErrorIs(t, err, config.ErrInvalid)
	require.ErrorIs(t, err, engine.ErrConfig)
}

func TestRunSolve(t *testing.T) {
	forward := engine.NewScripted(func(prompt string, opts engine.GenerateOptions) (string, error) {
		if opts.SystemPrompt == "Judge it." {
			return "The answer lacks units.", nil
		}
		return "1 hour", nil
	})
	backward := engine.NewScripted(func(prompt string, opts engine.GenerateOptions) (string, error) {
		if opts.SystemPrompt == prompts.OptimizerSystemPrompt {
			return prompts.ImprovedOpenTag + "1 hour, since shirts dry in parallel" + prompts.ImprovedCloseTag, nil
		}
		return "State the reasoning.", nil
	})

	var out bytes.Buffer
	err := runSolve(context.Background(), solveOptions{
		Question:   "If 25 shirts take 1 hour to dry, how long do 30 take?",
		Eval:       "Judge it.",
		Role:       "concise and accurate answer to the question",
		Iterations: 2,
		Parallel:   parallel.Sequential(),
	}, forward, backward, &out, quietLogger())
	require.NoError(t, err)

	text := out.String()
	assert.Contains(t, text, "Initial answer:\n1 hour")
	assert.Contains(t, text, "Feedback (iteration 1):\nState the reasoning.")
	assert.Contains(t, text, "Answer after iteration 2:\n1 hour, since shirts dry in parallel")

	// Per iteration: one gradient call (the loss rule) and one update call.
	assert.Equal(t, 4, backward.CallCount())
	// One answer plus one evaluation per iteration.
	assert.Equal(t, 3, forward.CallCount())

	evalCalls := 0
	for _, c := range forward.Calls() {
		if c.SystemPrompt == "Judge it." {
			evalCalls++
			assert.True(t, strings.HasPrefix(c.Prompt, "1 hour"))
		}
	}
	assert.Equal(t, 2, evalCalls)
}

func TestRunSolve_ZeroIterations(t *testing.T) {
	forward := engine.NewScripted(func(string, engine.GenerateOptions) (string, error) { return "4", nil })
	backward := engine.NewScripted(nil)

	var out bytes.Buffer
	err := runSolve(context.Background(), solveOptions{Question: "2+2?", Eval: "check"}, forward, backward, &out, quietLogger())
	require.NoError(t, err)
	assert.Equal(t, "Initial answer:\n4\n", out.String())
	assert.Zero(t, backward.CallCount())

	err = runSolve(context.Background(), solveOptions{Question: "2+2?", Iterations: -1}, forward, backward, &out, quietLogger())
	assert.Error(t, err)
}

func TestRunSolve_DefaultEvalIncludesQuestion(t *testing.T) {
	const question = "If 25 shirts take 1 hour to dry, how long do 30 take?"
	forward := engine.NewScripted(func(prompt string, opts engine.GenerateOptions) (string, error) {
		if strings.Contains(opts.SystemPrompt, "Evaluate any given answer") {
			return "Explain why.", nil
		}
		return "1 hour", nil
	})
	backward := engine.NewScripted(func(prompt string, opts engine.GenerateOptions) (string, error) {
		if opts.SystemPrompt == prompts.OptimizerSystemPrompt {
			return prompts.ImprovedOpenTag + "1 hour" + prompts.ImprovedCloseTag, nil
		}
		return "Give the reasoning.", nil
	})

	err := runSolve(context.Background(), solveOptions{
		Question:   question,
		Iterations: 1,
		Parallel:   parallel.Sequential(),
	}, forward, backward, io.Discard, quietLogger())
	require.NoError(t, err)

	calls := forward.Calls()
	require.Len(t, calls, 2)
	eval := calls[1]
	assert.Contains(t, eval.SystemPrompt, "Here's a question: "+question+".")
	assert.Equal(t, "1 hour", eval.Prompt)
}

func TestSameModel(t *testing.T) {
	tests := []struct {
		a, b string
		want bool
	}{
		{"llama3", "llama3", true},
		{"llama3", "llama3-8b", true},
		{"llama3", "groq-llama3-8b-8192", true},
		{"llama3", "gpt-4o", false},
		{"gpt-4o", "not-a-model", false},
	}
	for _, tt := range tests {
		t.Run(tt.a+"/"+tt.b, func(t *testing.T) {
			assert.Equal(t, tt.want, sameModel(tt.a, tt.b))
		})
	}
}
