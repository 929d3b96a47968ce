package interp

import (
	"context"

	"hive/interp-go/pkg/runtime"
)

// Evaluate runs script in n through the tree's evaluator, tracking the
// evaluation depth the cancellation controller and watchdog rely on.
func (n *Node) Evaluate(ctx context.Context, script string) runtime.Result {
	if n.isDead() {
		return runtime.Fail(notFound(n.Path()))
	}
	eval := n.tree.evaluator
	if eval == nil {
		return runtime.Fail(runtime.NewError(runtime.KindInternal, "no evaluator configured"))
	}
	if ctx == nil {
		ctx = n.ctx
	}
	n.cancel.BeginEvaluation()
	defer n.cancel.EndEvaluation()
	res := eval.Evaluate(ctx, n, script)
	if limit := n.cancel.Limits().ResultLimit; limit > 0 && res.Code == runtime.Ok && len(res.Value) > limit {
		return runtime.Fail(runtime.NewError(runtime.KindInvalidArgument, "result of %d bytes exceeds limit of %d", len(res.Value), limit))
	}
	return res
}
