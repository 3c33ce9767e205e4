package engine

import "fmt"

// DefaultMaxDepth is the default maximum cascade depth per chain.
// Root events are depth 0.
const DefaultMaxDepth = 16

// depthLimit enforces the maximum cascade depth.
//
// The settled-write tracker catches a chain that keeps rewriting the same
// triples; the depth limit is what guarantees termination regardless of
// how the rules interact.
type depthLimit struct {
	max int
}

// Check validates that an event at depth may be produced.
func (l depthLimit) Check(chain, ruleID string, depth int) error {
	if depth <= l.max {
		return nil
	}
	return &RuntimeError{
		Code:    ErrCodeCascadeLimit,
		Message: fmt.Sprintf("cascade depth %d exceeds limit %d", depth, l.max),
		Chain:   chain,
		RuleID:  ruleID,
		Depth:   depth - 1,
		Details: map[string]string{
			"depth":     fmt.Sprintf("%d", depth),
			"max_depth": fmt.Sprintf("%d", l.max),
		},
	}
}
