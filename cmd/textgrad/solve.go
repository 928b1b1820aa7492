package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/born-ml/textgrad/internal/autodiff"
	"github.com/born-ml/textgrad/internal/config"
	"github.com/born-ml/textgrad/internal/engine"
	"github.com/born-ml/textgrad/internal/optim"
	"github.com/born-ml/textgrad/internal/parallel"
	"github.com/born-ml/textgrad/internal/tokenizer"
)

// defaultEvalInstruction is used when --eval is not given. The question is
// formatted in so the evaluator knows what was asked.
const defaultEvalInstruction = "Here's a question: %s. Evaluate any given answer to this question, " +
	"be smart, logical, and very critical. Just provide concise feedback."

// solveOptions are the inputs of one solve run.
type solveOptions struct {
	Question    string
	Eval        string
	Role        string
	Iterations  int
	Constraints []string
	Window      int
	Seed        string
	Parallel    parallel.Config
}

func newSolveCmd() *cobra.Command {
	var (
		configPath    string
		model         string
		backwardModel string
		logLevel      string
		opts          solveOptions
	)

	cmd := &cobra.Command{
		Use:   "solve",
		Short: "Answer a question, then refine the answer with textual gradients",
		Example: `  textgrad solve --question "If it takes 1 hour to dry 25 shirts under the sun, how long will it take to dry 30 shirts?"
  textgrad solve --model gpt-4o --iterations 3 --question "..." --eval "Check the arithmetic."`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if opts.Question == "" {
				return errors.New("--question is required")
			}

			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if model != "" {
				cfg.Engine.Model = model
			}
			if backwardModel != "" {
				cfg.Engine.BackwardModel = backwardModel
			}
			if logLevel != "" {
				cfg.Log.Level = logLevel
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			logger := cfg.Logger(cmd.ErrOrStderr())
			opts.Constraints = append(cfg.Optimizer.Constraints, opts.Constraints...)
			opts.Window = cfg.Optimizer.MomentumWindow
			opts.Seed = cfg.Backward.Seed
			opts.Parallel = cfg.Parallel()

			forwardCfg, backwardCfg := cfg.ForwardEngine(logger), cfg.BackwardEngine(logger)
			forward, err := openEngine(forwardCfg, logger)
			if err != nil {
				return fmt.Errorf("forward engine: %w", err)
			}
			defer func() { _ = forward.Close() }()

			backward := forward
			if !sameModel(forwardCfg.Model, backwardCfg.Model) {
				backward, err = openEngine(backwardCfg, logger)
				if err != nil {
					return fmt.Errorf("backward engine: %w", err)
				}
				defer func() { _ = backward.Close() }()
			}

			return runSolve(cmd.Context(), opts, forward, backward, cmd.OutOrStdout(), logger)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&configPath, "config", "c", "", "path to a YAML config file")
	flags.StringVarP(&model, "model", "m", "", "forward engine, e.g. llama3 or gpt-4o (env "+config.EnvModel+")")
	flags.StringVar(&backwardModel, "backward-model", "", "engine for gradients and updates (default: --model)")
	flags.StringVar(&logLevel, "log-level", "", "debug, info, warn or error")
	flags.StringVarP(&opts.Question, "question", "q", "", "question to answer")
	flags.StringVarP(&opts.Eval, "eval", "e", "", "evaluation instruction for the loss (default: critique the answer to --question)")
	flags.StringVar(&opts.Role, "role", "concise and accurate answer to the question", "role description of the answer")
	flags.IntVarP(&opts.Iterations, "iterations", "n", 1, "optimization steps")
	flags.StringArrayVar(&opts.Constraints, "constraint", nil, "constraint every rewrite must follow (repeatable)")

	return cmd
}

// sameModel reports whether two engine identities name the same provider model.
func sameModel(a, b string) bool {
	pa, ma, errA := engine.Resolve(a)
	pb, mb, errB := engine.Resolve(b)
	return errA == nil && errB == nil && pa == pb && ma == mb
}

// openEngine builds an engine client with a tiktoken counter for its model.
func openEngine(cfg engine.Config, logger *slog.Logger) (*engine.Client, error) {
	_, name, err := engine.Resolve(cfg.Model)
	if err != nil {
		return nil, err
	}
	tok, err := tokenizer.NewTikTokenForModel(name)
	if err != nil {
		logger.Warn("tiktoken unavailable, using approximate token counts",
			slog.String("model", name),
			slog.String("error", err.Error()),
		)
	} else {
		cfg.Tokenizer = tok
	}
	return engine.New(cfg)
}

// runSolve answers the question, then runs Iterations rounds of
// evaluate -> backward -> step, printing the answer after each round.
func runSolve(ctx context.Context, opts solveOptions, forward, backward engine.Engine, out io.Writer, logger *slog.Logger) error {
	if opts.Iterations < 0 {
		return fmt.Errorf("iterations must be >= 0, got %d", opts.Iterations)
	}
	if opts.Eval == "" {
		opts.Eval = fmt.Sprintf(defaultEvalInstruction, opts.Question)
	}

	sessOpts := []autodiff.SessionOption{
		autodiff.WithLogger(logger),
		autodiff.WithParallel(opts.Parallel),
	}
	if opts.Seed != "" {
		sessOpts = append(sessOpts, autodiff.WithSeed(opts.Seed))
	}
	sess := autodiff.NewSession(backward, sessOpts...)
	defer func() { _ = sess.Close() }()

	question := autodiff.NewVariable(opts.Question, "question to the LLM", false)
	answer, err := autodiff.NewLLMCall(sess, forward).Forward(ctx, question)
	if err != nil {
		return err
	}
	answer.SetRole(opts.Role)
	fmt.Fprintf(out, "Initial answer:\n%s\n", answer.Value())

	optimizer, err := optim.NewTGD([]*autodiff.Variable{answer}, optim.TGDConfig{
		Config:         optim.Config{Constraints: opts.Constraints},
		Engine:         backward,
		MomentumWindow: opts.Window,
		Logger:         logger,
	})
	if err != nil {
		return err
	}

	lossFn := autodiff.NewTextLoss(sess, forward, opts.Eval)
	for i := range opts.Iterations {
		loss, err := lossFn.Forward(ctx, answer)
		if err != nil {
			return fmt.Errorf("iteration %d: %w", i+1, err)
		}
		if err := sess.Backward(ctx, loss); err != nil {
			return fmt.Errorf("iteration %d: %w", i+1, err)
		}
		fmt.Fprintf(out, "\nFeedback (iteration %d):\n%s\n", i+1, answer.GradientText())

		if err := optimizer.Step(ctx); err != nil {
			return fmt.Errorf("iteration %d: %w", i+1, err)
		}
		autodiff.ZeroGrad(loss)
		fmt.Fprintf(out, "\nAnswer after iteration %d:\n%s\n", i+1, answer.Value())
	}
	return nil
}
