package autodiff

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/born-ml/textgrad/internal/parallel"
)

// Backward propagates textual gradients from root to every predecessor that
// needs them.
//
// Algorithm:
//  1. Collect the subgraph reachable from root and count, for every node, its
//     successors inside that subgraph.
//  2. Seed root with the session's seed gradient.
//  3. Process layers: a layer holds the nodes whose successors have all run.
//     Nodes of one layer run their gradient rule concurrently (per the
//     session's parallel config) and are joined before the next layer.
//  4. After a layer joins, its contributions are appended in layer order, so
//     each node has its full fan-in before its own rule runs.
//
// Each node's rule runs exactly once. Non-trainable nodes still propagate;
// only the optimizer is gated on RequiresGrad.
//
// Backward on a leaf is a no-op. A graph that still holds gradients is
// rejected with ErrStaleGradients before any engine call. The first engine
// error cancels the remaining siblings and is returned unmodified; gradients
// already accumulated are kept.
func (s *Session) Backward(ctx context.Context, root *Variable) error {
	if s == nil {
		return ErrNilSession
	}
	if s.Closed() {
		return ErrSessionClosed
	}
	if root == nil {
		return ErrNilVariable
	}
	if root.IsLeaf() {
		s.logger.Debug("backward on leaf variable is a no-op", slog.String("variable", root.ID()))
		return nil
	}

	nodes := collect(root)
	for _, n := range nodes {
		if n.hasGradients() {
			return ErrStaleGradients
		}
	}

	p := &pass{
		sess:  s,
		id:    uuid.NewString()[:12],
		needs: computeNeeds(nodes),
	}

	ctx, span := s.ins.Tracer.Start(ctx, "textgrad.Backward",
		trace.WithAttributes(
			attribute.String("textgrad.pass_id", p.id),
			attribute.Int("textgrad.node_count", len(nodes)),
		),
	)
	defer span.End()

	start := time.Now()
	s.logger.Info("backward started",
		slog.String("pass_id", p.id),
		slog.String("root", root.ID()),
		slog.Int("nodes", len(nodes)),
	)

	pending := successorCounts(nodes)
	root.appendGradient(s.seed)

	layer := []*Variable{root}
	depth := 0
	visited := 0
	for len(layer) > 0 {
		if err := s.runLayer(ctx, p, layer, depth); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			s.logger.Error("backward failed",
				slog.String("pass_id", p.id),
				slog.Int("layer", depth),
				slog.String("error", err.Error()),
			)
			return err
		}
		visited += len(layer)

		var next []*Variable
		for _, n := range layer {
			for _, pred := range n.Predecessors() {
				pending[pred]--
				if pending[pred] == 0 {
					next = append(next, pred)
				}
			}
		}
		layer = next
		depth++
	}

	span.SetStatus(codes.Ok, "")
	s.logger.Info("backward completed",
		slog.String("pass_id", p.id),
		slog.Int("layers", depth),
		slog.Int("nodes_visited", visited),
		slog.Duration("duration", time.Since(start)),
	)
	return nil
}

// runLayer runs the gradient rule of every node in layer and appends the
// resulting contributions in layer order. Contributions of nodes that
// finished are applied even when a sibling failed.
func (s *Session) runLayer(ctx context.Context, p *pass, layer []*Variable, depth int) error {
	start := time.Now()
	results := make([][]contribution, len(layer))

	err := parallel.Run(ctx, len(layer), func(ctx context.Context, i int) error {
		contribs, err := s.visit(ctx, p, layer[i])
		results[i] = contribs
		return err
	}, s.parallel)

	for _, contribs := range results {
		for _, c := range contribs {
			c.target.appendGradient(c.gradient)
		}
	}

	if s.ins.LayerDuration != nil {
		s.ins.LayerDuration.Record(ctx, time.Since(start).Seconds(),
			metric.WithAttributes(attribute.Int("textgrad.layer", depth)),
		)
	}
	return err
}

// visit runs n's gradient rule if it has one and anything upstream needs it.
func (s *Session) visit(ctx context.Context, p *pass, n *Variable) ([]contribution, error) {
	fn := n.Creator()
	if fn == nil || n.IsLeaf() || !p.needsGrad(n) {
		return nil, nil
	}

	ctx, span := s.ins.Tracer.Start(ctx, "textgrad.Node."+fn.Kind().String(),
		trace.WithAttributes(
			attribute.String("textgrad.variable", n.ID()),
			attribute.String("textgrad.role", n.Role()),
		),
	)
	defer span.End()

	contribs, err := fn.backward(ctx, p, n)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return contribs, err
	}
	if s.ins.NodesVisited != nil {
		s.ins.NodesVisited.Add(ctx, 1, metric.WithAttributes(attribute.String("textgrad.kind", fn.Kind().String())))
	}
	s.logger.Debug("node visited",
		slog.String("pass_id", p.id),
		slog.String("variable", n.ID()),
		slog.String("kind", fn.Kind().String()),
		slog.Int("gradients_out", len(contribs)),
	)
	return contribs, nil
}

// successorCounts returns, for every node, how many nodes in the subgraph
// list it as a predecessor.
func successorCounts(nodes []*Variable) map[*Variable]int {
	counts := make(map[*Variable]int, len(nodes))
	for _, n := range nodes {
		for _, p := range n.Predecessors() {
			counts[p]++
		}
	}
	return counts
}
