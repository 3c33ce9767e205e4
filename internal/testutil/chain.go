// Package testutil holds deterministic generators and Order/OrderItem
// fixtures shared by package tests and the scenario harness.
package testutil

import (
	"fmt"
	"sync"
)

// FixedChainGenerator issues chain tokens "<prefix>-1", "<prefix>-2", ...
//
// The same scenario run with a fresh generator produces byte-identical
// event logs and golden traces. Reset restarts the numbering for reuse.
//
// Thread-safety: safe for concurrent use via internal mutex.
type FixedChainGenerator struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewFixedChainGenerator creates a generator. An empty prefix becomes "chain".
func NewFixedChainGenerator(prefix string) *FixedChainGenerator {
	if prefix == "" {
		prefix = "chain"
	}
	return &FixedChainGenerator{prefix: prefix}
}

// Generate returns the next token. Implements idgen.Generator.
func (g *FixedChainGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s-%d", g.prefix, g.n)
}

// Reset restarts numbering at 1.
func (g *FixedChainGenerator) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n = 0
}
