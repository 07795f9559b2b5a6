package graph

import (
	"context"
	"errors"
	"fmt"
	"time"
)

func nodeTimeout(policy *NodePolicy, defaultTimeout time.Duration) time.Duration {
	if policy != nil && policy.Timeout > 0 {
		return policy.Timeout
	}
	if defaultTimeout > 0 {
		return defaultTimeout
	}
	return 0
}

// runWithTimeout executes node under its effective timeout. A node that
// overruns its deadline yields a NODE_TIMEOUT EngineError in place of its own
// error, even if it returned a result.
func runWithTimeout[S any](ctx context.Context, node Node[S], nodeID string, state S, timeout time.Duration) NodeResult[S] {
	if timeout <= 0 {
		return node.Run(ctx, state)
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	result := node.Run(timeoutCtx, state)
	if errors.Is(timeoutCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		result.Err = &EngineError{
			Message: fmt.Sprintf("node %s exceeded timeout of %v", nodeID, timeout),
			Code:    "NODE_TIMEOUT",
			Cause:   context.DeadlineExceeded,
		}
	}
	return result
}
