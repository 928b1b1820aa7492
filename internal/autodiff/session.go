package autodiff

import (
	"log/slog"
	"sync/atomic"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/born-ml/textgrad/internal/engine"
	"github.com/born-ml/textgrad/internal/parallel"
	"github.com/born-ml/textgrad/internal/telemetry"
)

// DefaultSeed is the gradient given to the root of a backward pass, in place
// of the unit seed of numeric autodiff.
const DefaultSeed = "Improve this output so that it better serves its role."

// Session scopes one optimization run: it owns the backward engine used to
// synthesize gradients, the logger, and the concurrency settings.
//
// A Session replaces any process-wide "current backward engine"; pass it to
// Function constructors and to Backward.
//
// Example:
//
//	sess := autodiff.NewSession(backwardEngine, autodiff.WithLogger(logger))
//	defer sess.Close()
//
//	llm := autodiff.NewLLMCall(sess, forwardEngine)
//	answer, _ := llm.Forward(ctx, question)
//	loss, _ := autodiff.NewTextLoss(sess, evalEngine, instruction).Forward(ctx, answer)
//	if err := sess.Backward(ctx, loss); err != nil { ... }
type Session struct {
	backward engine.Engine
	logger   *slog.Logger
	seed     string
	parallel parallel.Config
	ins      *telemetry.Instruments
	closed   atomic.Bool
}

// SessionOption configures a Session.
type SessionOption func(*sessionOptions)

type sessionOptions struct {
	logger         *slog.Logger
	seed           string
	parallel       parallel.Config
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
}

// WithLogger sets the session logger. Default: slog.Default().
func WithLogger(l *slog.Logger) SessionOption {
	return func(o *sessionOptions) {
		o.logger = l
	}
}

// WithSeed overrides DefaultSeed.
func WithSeed(seed string) SessionOption {
	return func(o *sessionOptions) {
		o.seed = seed
	}
}

// WithParallel sets how sibling nodes of a backward layer are dispatched.
// Default: parallel.DefaultConfig().
func WithParallel(cfg parallel.Config) SessionOption {
	return func(o *sessionOptions) {
		o.parallel = cfg
	}
}

// WithTracerProvider sets the tracer provider. Default: the global provider.
func WithTracerProvider(tp trace.TracerProvider) SessionOption {
	return func(o *sessionOptions) {
		o.tracerProvider = tp
	}
}

// WithMeterProvider sets the meter provider. Default: the global provider.
func WithMeterProvider(mp metric.MeterProvider) SessionOption {
	return func(o *sessionOptions) {
		o.meterProvider = mp
	}
}

// NewSession creates a session whose gradients are synthesized by backward.
func NewSession(backward engine.Engine, opts ...SessionOption) *Session {
	options := &sessionOptions{
		logger:   slog.Default(),
		seed:     DefaultSeed,
		parallel: parallel.DefaultConfig(),
	}
	for _, opt := range opts {
		opt(options)
	}

	return &Session{
		backward: backward,
		logger:   options.logger,
		seed:     options.seed,
		parallel: options.parallel,
		ins:      telemetry.New(options.tracerProvider, options.meterProvider, options.logger),
	}
}

// NewVariable creates a leaf variable. It is equivalent to the package-level
// NewVariable and exists so graph construction can be written against the session.
func (s *Session) NewVariable(value, role string, requiresGrad bool) *Variable {
	return NewVariable(value, role, requiresGrad)
}

// Engine returns the backward engine.
func (s *Session) Engine() engine.Engine {
	return s.backward
}

// Logger returns the session logger.
func (s *Session) Logger() *slog.Logger {
	return s.logger
}

// Instruments returns the session's telemetry instruments.
func (s *Session) Instruments() *telemetry.Instruments {
	return s.ins
}

// Seed returns the root seed gradient.
func (s *Session) Seed() string {
	return s.seed
}

// Close ends the session. Backward on a closed session fails with
// ErrSessionClosed. Close is idempotent.
func (s *Session) Close() error {
	if s.closed.CompareAndSwap(false, true) {
		s.logger.Debug("session closed")
	}
	return nil
}

// Closed reports whether Close was called.
func (s *Session) Closed() bool {
	return s.closed.Load()
}
