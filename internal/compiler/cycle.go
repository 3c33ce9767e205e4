package compiler

import (
	"fmt"
	"strings"

	"github.com/roach88/ruleweave/internal/ir"
	"github.com/roach88/ruleweave/internal/registry"
)

// CycleWarning represents a potential cycle in reaction rules.
//
// Cycles are warnings, not errors, because they may be intentional:
// conditions usually stop the loop after one round, and the cascade depth
// limit bounds it at runtime either way.
type CycleWarning struct {
	Path    []string `json:"path"`    // Cycle path: ["rule-a", "rule-b", "rule-a"]
	Message string   `json:"message"` // Human-readable description
	Level   string   `json:"level"`   // "warning" or "info"
}

// AnalyzeCycles performs static cycle analysis on the reaction rules of a
// registry.
//
// The algorithm:
//  1. Build rule → rule dependency graph: a rule's writes modify records of
//     its scope schemas, which can trigger that schema's modified rules
//  2. Use Tarjan's algorithm to find strongly connected components
//  3. Report each SCC with size > 1 or self-loops as a potential cycle warning
//
// A DAG (no cycles) returns an empty warning list.
func AnalyzeCycles(reg *registry.Registry) []CycleWarning {
	rules := reg.AllReactions()
	if len(rules) == 0 {
		return []CycleWarning{}
	}

	graph, order := buildDependencyGraph(reg, rules)
	sccs := tarjanSCC(graph, order)

	var warnings []CycleWarning
	for _, scc := range sccs {
		if len(scc) > 1 || (len(scc) == 1 && hasSelfLoop(scc[0], graph)) {
			warnings = append(warnings, cycleSCCToWarning(scc, graph))
		}
	}
	return warnings
}

// dependencyGraph maps rule_id → list of rule_ids that could be triggered.
type dependencyGraph map[string][]string

// buildDependencyGraph constructs the reaction rule dependency graph and
// returns the node order (registration order).
//
// For each rule:
//   - Find the schemas its action writes to (its scope)
//   - Keep those that declare a set target field (custom actions may
//     write anything)
//   - Add edges: this_rule → modified rules of each written schema
func buildDependencyGraph(reg *registry.Registry, rules []*registry.Reaction) (dependencyGraph, []string) {
	graph := make(dependencyGraph)
	order := make([]string, 0, len(rules))

	for _, rx := range rules {
		rule := rx.Rule
		order = append(order, rule.ID)
		if graph[rule.ID] == nil {
			graph[rule.ID] = []string{}
		}
		for _, target := range writtenSchemas(reg, rule) {
			for _, next := range reg.Reactions(target, ir.EventModified) {
				graph[rule.ID] = append(graph[rule.ID], next.Rule.ID)
			}
		}
	}
	return graph, order
}

// writtenSchemas lists the schemas rule's action may write to.
func writtenSchemas(reg *registry.Registry, rule ir.ReactionRule) []string {
	var candidates []string
	switch rule.Scope {
	case ir.ScopeParent:
		for _, rel := range reg.Parents(rule.Schema) {
			candidates = append(candidates, rel.Parent)
		}
	case ir.ScopeChild:
		for _, rel := range reg.Children(rule.Schema) {
			candidates = append(candidates, rel.Child)
		}
	default:
		candidates = []string{rule.Schema}
	}

	if rule.Action.Kind != ir.ActionSet {
		return dedupe(candidates)
	}
	var out []string
	for _, id := range candidates {
		s, ok := reg.Schema(id)
		if !ok {
			continue
		}
		for field := range rule.Action.Set {
			if s.HasField(field) {
				out = append(out, id)
				break
			}
		}
	}
	return dedupe(out)
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := ids[:0]
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}

// hasSelfLoop checks if a node has an edge to itself.
func hasSelfLoop(node string, graph dependencyGraph) bool {
	for _, neighbor := range graph[node] {
		if neighbor == node {
			return true
		}
	}
	return false
}

// tarjanSCC finds strongly connected components using Tarjan's algorithm.
//
// Returns a list of SCCs, where each SCC is a list of rule IDs.
// Single-node SCCs without self-loops are NOT cycles.
func tarjanSCC(graph dependencyGraph, order []string) [][]string {
	var (
		index   = 0
		stack   []string
		indices = make(map[string]int)
		lowlink = make(map[string]int)
		onStack = make(map[string]bool)
		sccs    [][]string
	)

	var strongConnect func(string)
	strongConnect = func(v string) {
		// Set the depth index for v
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		// Consider successors of v
		for _, w := range graph[v] {
			if _, visited := indices[w]; !visited {
				// Successor w has not yet been visited; recurse on it
				strongConnect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				// Successor w is on stack and hence in the current SCC
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

		// If v is a root node, pop the stack and create an SCC
		if lowlink[v] == indices[v] {
			var scc []string
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				scc = append(scc, w)
				if w == v {
					break
				}
			}
			sccs = append(sccs, scc)
		}
	}

	// Visit all nodes in a stable order
	for _, node := range order {
		if _, visited := indices[node]; !visited {
			strongConnect(node)
		}
	}

	return sccs
}

// cycleSCCToWarning converts an SCC to a CycleWarning.
//
// The path shows the cycle sequence by reconstructing a path through the SCC.
// For self-loops, the path is [rule-id, rule-id].
// For multi-node cycles, the path shows a cycle traversal.
func cycleSCCToWarning(scc []string, graph dependencyGraph) CycleWarning {
	if len(scc) == 1 {
		// Self-loop
		ruleID := scc[0]
		return CycleWarning{
			Path:    []string{ruleID, ruleID},
			Message: fmt.Sprintf("Self-triggering reaction rule detected: %s → %s", ruleID, ruleID),
			Level:   "warning",
		}
	}

	// Multi-node cycle - reconstruct a cycle path
	path := reconstructCyclePath(scc, graph)

	pathStr := strings.Join(path, " → ")
	return CycleWarning{
		Path:    path,
		Message: fmt.Sprintf("Potential cycle detected: %s", pathStr),
		Level:   "warning",
	}
}

// reconstructCyclePath builds a cycle path from an SCC.
//
// Strategy: Start at first node in SCC, follow edges to other SCC members,
// continue until we return to start node.
func reconstructCyclePath(scc []string, graph dependencyGraph) []string {
	if len(scc) == 0 {
		return []string{}
	}

	// Build set of SCC members for fast lookup
	sccSet := make(map[string]bool)
	for _, node := range scc {
		sccSet[node] = true
	}

	// Start at first node
	start := scc[0]
	current := start
	path := []string{current}
	visited := make(map[string]bool)

	// Follow edges within SCC until we return to start
	for {
		visited[current] = true

		// Find next SCC member reachable from current
		var next string
		for _, neighbor := range graph[current] {
			if sccSet[neighbor] && (!visited[neighbor] || neighbor == start) {
				next = neighbor
				break
			}
		}

		if next == "" {
			// No more unvisited neighbors in SCC
			break
		}

		path = append(path, next)

		if next == start {
			// Completed the cycle
			break
		}

		current = next
	}

	return path
}
