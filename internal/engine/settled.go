package engine

import (
	"sort"
	"sync"

	"github.com/roach88/ruleweave/internal/ir"
)

// triple identifies one field of one record.
type triple struct {
	schema string
	id     string
	field  string
}

func (t triple) String() string {
	return t.schema + "/" + t.id + "." + t.field
}

// settledTracker records the values written to each triple within a chain.
//
// A triple that is written back to a value it already held earlier in the
// same chain is oscillating. The tracker never blocks a write; it only
// reports oscillating triples when the chain is aborted by the depth limit.
type settledTracker struct {
	mu      sync.Mutex
	history map[string]map[triple][]string // map[chain]map[triple]value keys
	flagged map[string]map[triple]bool
}

func newSettledTracker() *settledTracker {
	return &settledTracker{
		history: make(map[string]map[triple][]string),
		flagged: make(map[string]map[triple]bool),
	}
}

// Record notes that value was written to t in chain. It returns true when
// the value was already written to t earlier in the chain.
func (s *settledTracker) Record(chain string, t triple, value ir.Value) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.history[chain] == nil {
		s.history[chain] = make(map[triple][]string)
	}
	key := ir.Key(value)
	prev := s.history[chain][t]
	s.history[chain][t] = append(prev, key)
	for _, k := range prev {
		if k == key {
			if s.flagged[chain] == nil {
				s.flagged[chain] = make(map[triple]bool)
			}
			s.flagged[chain][t] = true
			return true
		}
	}
	return false
}

// Settled reports whether the last value written to t in chain is value.
func (s *settledTracker) Settled(chain string, t triple, value ir.Value) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.history[chain][t]
	return len(prev) > 0 && prev[len(prev)-1] == ir.Key(value)
}

// Oscillating returns the flagged triples of chain, sorted.
func (s *settledTracker) Oscillating(chain string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]string, 0, len(s.flagged[chain]))
	for t := range s.flagged[chain] {
		out = append(out, t.String())
	}
	sort.Strings(out)
	return out
}

// Clear removes all history for chain.
func (s *settledTracker) Clear(chain string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.history, chain)
	delete(s.flagged, chain)
}

// Size returns the number of chains with tracked history.
func (s *settledTracker) Size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.history)
}
