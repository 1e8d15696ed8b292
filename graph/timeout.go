package graph

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// nodeTimeout picks the per-node timeout, falling back to the engine
// default. Zero means unbounded.
func nodeTimeout(policy *NodePolicy, def time.Duration) time.Duration {
	switch {
	case policy != nil && policy.Timeout > 0:
		return policy.Timeout
	case def > 0:
		return def
	}
	return 0
}

// runNode executes node on state. Run cancellation is only observed between
// steps, so the node sees ctx's values but not its cancellation. A node that
// fails after its own timeout has fired is reported as NODE_TIMEOUT.
func runNode[S any](ctx context.Context, node Node[S], nodeID string, state S, timeout time.Duration) (NodeResult[S], error) {
	ctx = context.WithoutCancel(ctx)
	if timeout <= 0 {
		return node.Run(ctx, state), nil
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	res := node.Run(ctx, state)
	if res.Err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return res, &EngineError{
			Message: fmt.Sprintf("node %s did not finish within %v", nodeID, timeout),
			Code:    "NODE_TIMEOUT",
			Cause:   res.Err,
		}
	}
	return res, nil
}
