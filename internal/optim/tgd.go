package optim

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/born-ml/textgrad/internal/autodiff"
	"github.com/born-ml/textgrad/internal/engine"
	"github.com/born-ml/textgrad/internal/prompts"
	"github.com/born-ml/textgrad/internal/telemetry"
)

// TGD implements Textual Gradient Descent.
//
// Update rule:
//
//	param = engine(update prompt(param, role, gradients, constraints))
//
// With a momentum window, the last MomentumWindow values of each parameter
// are shown to the engine so it can avoid oscillating between them, the
// textual counterpart of SGD's velocity.
//
// Example:
//
//	optimizer, err := optim.NewTGD(params, optim.TGDConfig{
//	    Engine:         eng,
//	    Constraints:    []string{"The answer must end with a number."},
//	    MomentumWindow: 3,
//	})
type TGD struct {
	params      []*autodiff.Variable
	engine      engine.Engine
	constraints []string
	window      int
	opts        engine.GenerateOptions
	history     map[*autodiff.Variable][]string
	logger      *slog.Logger
	ins         *telemetry.Instruments
}

// TGDConfig holds configuration for the TGD optimizer.
type TGDConfig struct {
	Config

	// Engine performs the rewrites. Required.
	Engine engine.Engine

	// MomentumWindow is how many past values per parameter are kept
	// (default: 0, disabled).
	MomentumWindow int

	// GenerateOptions are passed to every update call. Their SystemPrompt
	// is replaced by the optimizer system prompt.
	GenerateOptions engine.GenerateOptions

	Logger         *slog.Logger
	TracerProvider trace.TracerProvider
	MeterProvider  metric.MeterProvider
}

// NewTGD creates a new TGD optimizer over params, in order.
//
// Returns ErrNoEngine if config.Engine is nil.
func NewTGD(params []*autodiff.Variable, config TGDConfig) (*TGD, error) {
	if config.Engine == nil {
		return nil, ErrNoEngine
	}
	if config.MomentumWindow < 0 {
		return nil, fmt.Errorf("optim: momentum window must be >= 0, got %d", config.MomentumWindow)
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	ordered := make([]*autodiff.Variable, len(params))
	copy(ordered, params)

	return &TGD{
		params:      ordered,
		engine:      config.Engine,
		constraints: append([]string(nil), config.Constraints...),
		window:      config.MomentumWindow,
		opts:        config.GenerateOptions,
		history:     make(map[*autodiff.Variable][]string),
		logger:      config.Logger,
		ins:         telemetry.New(config.TracerProvider, config.MeterProvider, config.Logger),
	}, nil
}

// Step performs a single optimization step.
//
// One engine call is made per parameter that requires grad and holds
// gradients, in parameter order. Parameters without gradients are skipped.
// On success the gradients of every parameter are cleared. On error the
// engine's error is returned as is; parameters already rewritten keep their
// new value and all gradients are kept, so the step can be retried.
func (o *TGD) Step(ctx context.Context) error {
	ctx, span := o.ins.Tracer.Start(ctx, "textgrad.Step",
		trace.WithAttributes(attribute.Int("textgrad.parameters", len(o.params))),
	)
	defer span.End()

	updated := 0
	for i, param := range o.params {
		if !trainable(param) {
			continue
		}
		if err := o.update(ctx, param); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			o.logger.Error("parameter update failed",
				slog.Int("parameter", i),
				slog.String("role", param.Role()),
				slog.String("error", err.Error()),
			)
			return err
		}
		updated++
	}

	o.ZeroGrad()
	span.SetAttributes(attribute.Int("textgrad.updated", updated))
	span.SetStatus(codes.Ok, "")
	o.logger.Info("optimizer step", slog.Int("updated", updated), slog.Int("parameters", len(o.params)))
	return nil
}

// update rewrites one parameter.
func (o *TGD) update(ctx context.Context, param *autodiff.Variable) error {
	prompt := prompts.UpdatePrompt(prompts.Update{
		Role:        param.Role(),
		Value:       param.Value(),
		Gradients:   param.Gradients(),
		Constraints: o.constraints,
		PastValues:  o.history[param],
	})

	opts := o.opts
	opts.SystemPrompt = prompts.OptimizerSystemPrompt
	response, err := o.engine.Generate(ctx, prompt, opts)
	if err != nil {
		return err
	}

	previous := param.Value()
	param.SetValue(prompts.ExtractImproved(response))
	o.remember(param, previous)

	if o.ins.Updates != nil {
		o.ins.Updates.Add(ctx, 1)
	}
	o.logger.Debug("parameter updated",
		slog.String("variable", param.ID()),
		slog.String("role", param.Role()),
	)
	return nil
}

// remember pushes value into param's momentum window.
func (o *TGD) remember(param *autodiff.Variable, value string) {
	if o.window == 0 {
		return
	}
	past := append(o.history[param], value)
	if len(past) > o.window {
		past = past[len(past)-o.window:]
	}
	o.history[param] = past
}

// ZeroGrad clears gradients for all parameters.
func (o *TGD) ZeroGrad() {
	for _, param := range o.params {
		if param != nil {
			param.ZeroGrad()
		}
	}
}

// Parameters returns the optimized parameters in order.
func (o *TGD) Parameters() []*autodiff.Variable {
	out := make([]*autodiff.Variable, len(o.params))
	copy(out, o.params)
	return out
}

// Momentum returns the remembered past values of param, oldest first.
func (o *TGD) Momentum(param *autodiff.Variable) []string {
	return append([]string(nil), o.history[param]...)
}

// AddConstraint appends a constraint used by subsequent steps.
func (o *TGD) AddConstraint(constraint string) {
	o.constraints = append(o.constraints, constraint)
}
