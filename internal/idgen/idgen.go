// Package idgen produces record ids and cascade chain tokens.
//
// Production code uses UUIDv7Generator: time-ordered, globally unique.
// Tests and golden scenarios use Sequence or Fixed for reproducible output.
package idgen

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Generator returns a new unique string on each call.
// Implementations must be safe for concurrent use.
type Generator interface {
	Generate() string
}

// UUIDv7Generator generates UUID v7 strings.
type UUIDv7Generator struct{}

// Generate returns a new UUIDv7 string.
// Panics if the system random source fails, which is unrecoverable.
func (UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// Fixed returns predetermined values in order. It panics once exhausted.
type Fixed struct {
	mu     sync.Mutex
	values []string
	idx    int
}

// NewFixed creates a Fixed generator.
func NewFixed(values ...string) *Fixed {
	return &Fixed{values: values}
}

// Generate returns the next predetermined value.
func (g *Fixed) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.idx >= len(g.values) {
		panic("idgen.Fixed: all values exhausted")
	}
	v := g.values[g.idx]
	g.idx++
	return v
}

// Sequence generates prefix-1, prefix-2, ...
type Sequence struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewSequence creates a Sequence generator.
func NewSequence(prefix string) *Sequence {
	return &Sequence{prefix: prefix}
}

// Generate returns the next value in the sequence.
func (g *Sequence) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.n++
	return fmt.Sprintf("%s-%d", g.prefix, g.n)
}
