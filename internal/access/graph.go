package access

import (
	"context"
	"fmt"

	"github.com/roach88/ruleweave/internal/ir"
)

// Ancestors walks parent links breadth-first from rec and returns up to
// depth levels, nearest first. Records already visited are skipped, so a
// reference cycle cannot loop. depth <= 0 returns nil.
func Ancestors(ctx context.Context, da DataAccess, rec ir.Record, depth int) ([]ir.Record, error) {
	return walk(ctx, da, rec, ir.ScopeParent, depth)
}

// Descendants walks child links breadth-first from rec, up to depth levels.
func Descendants(ctx context.Context, da DataAccess, rec ir.Record, depth int) ([]ir.Record, error) {
	return walk(ctx, da, rec, ir.ScopeChild, depth)
}

func walk(ctx context.Context, da DataAccess, rec ir.Record, scope ir.Scope, depth int) ([]ir.Record, error) {
	if depth <= 0 {
		return nil, nil
	}
	seen := map[string]bool{rec.ID: true}
	var out []ir.Record
	level := []ir.Record{rec}
	for d := 0; d < depth && len(level) > 0; d++ {
		var next []ir.Record
		for _, r := range level {
			related, err := da.FetchRelated(ctx, r, scope)
			if err != nil {
				return nil, fmt.Errorf("%s of %s/%s: %w", scope, r.Schema, r.ID, err)
			}
			for _, x := range related {
				if seen[x.ID] {
					continue
				}
				seen[x.ID] = true
				next = append(next, x)
			}
		}
		out = append(out, next...)
		level = next
	}
	return out, nil
}

// ResolveDepth turns a registry depth requirement into a walk depth.
// -1 (unbounded) becomes limit; anything else is capped at limit.
func ResolveDepth(need, limit int) int {
	if need < 0 || need > limit {
		return limit
	}
	return need
}
