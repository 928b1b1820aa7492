// Package telemetry holds the OpenTelemetry instruments shared by the
// backward pass and the optimizer.
package telemetry

import (
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// ScopeName is the instrumentation scope for every textgrad span and metric.
const ScopeName = "github.com/born-ml/textgrad"

// Instruments bundles the tracer and metric instruments.
//
// Instruments that fail to initialize are left nil; recording helpers
// skip nil instruments so observability degrades without breaking training.
type Instruments struct {
	Tracer trace.Tracer

	// GradientCalls counts backward-engine calls made by gradient rules.
	GradientCalls metric.Int64Counter

	// NodesVisited counts nodes whose gradient rule ran.
	NodesVisited metric.Int64Counter

	// LayerDuration records wall time per backward layer.
	LayerDuration metric.Float64Histogram

	// Updates counts parameters rewritten by an optimizer step.
	Updates metric.Int64Counter
}

// New creates instruments from the given providers. Nil providers fall back
// to the global ones.
func New(tp trace.TracerProvider, mp metric.MeterProvider, logger *slog.Logger) *Instruments {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	if logger == nil {
		logger = slog.Default()
	}

	meter := mp.Meter(ScopeName)
	ins := &Instruments{Tracer: tp.Tracer(ScopeName)}

	var initErrors []string
	var err error

	ins.GradientCalls, err = meter.Int64Counter("textgrad_gradient_calls_total",
		metric.WithDescription("Backward engine calls made to synthesize textual gradients"),
	)
	if err != nil {
		initErrors = append(initErrors, "gradient_calls: "+err.Error())
	}

	ins.NodesVisited, err = meter.Int64Counter("textgrad_nodes_visited_total",
		metric.WithDescription("Nodes whose gradient rule ran during backward"),
	)
	if err != nil {
		initErrors = append(initErrors, "nodes_visited: "+err.Error())
	}

	ins.LayerDuration, err = meter.Float64Histogram("textgrad_backward_layer_duration_seconds",
		metric.WithDescription("Time spent on one backward layer"),
		metric.WithUnit("s"),
	)
	if err != nil {
		initErrors = append(initErrors, "layer_duration: "+err.Error())
	}

	ins.Updates, err = meter.Int64Counter("textgrad_parameter_updates_total",
		metric.WithDescription("Parameters rewritten by optimizer steps"),
	)
	if err != nil {
		initErrors = append(initErrors, "updates: "+err.Error())
	}

	if len(initErrors) > 0 {
		logger.Error("failed to initialize some textgrad metrics (observability degraded)",
			slog.Int("failed_count", len(initErrors)),
			slog.Any("errors", initErrors),
		)
	}

	return ins
}
