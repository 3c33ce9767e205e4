package engine

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/roach88/ruleweave/internal/access"
	"github.com/roach88/ruleweave/internal/ir"
)

// CustomCall is what a custom action receives.
type CustomCall struct {
	Rule  ir.ReactionRule
	Event ir.Event
	// Targets are the records resolved from the rule's scope.
	Targets []ir.Record
	// Data is the data access of the running chain. Reads go through it so
	// they see the chain's uncommitted writes.
	Data access.DataAccess
}

// CustomFunc is a named custom action. It does not write directly: it
// returns write intents and the engine applies them, so every write is
// subject to the depth limit, the no-op rule and the write guard.
type CustomFunc func(ctx context.Context, call CustomCall) ([]ir.Write, error)

// Actions is the process-wide custom action registry.
// Registration happens before dispatch; lookups are safe concurrently.
type Actions struct {
	mu    sync.RWMutex
	funcs map[string]CustomFunc
}

// NewActions returns an empty registry.
func NewActions() *Actions {
	return &Actions{funcs: make(map[string]CustomFunc)}
}

// Register adds fn under name. Registering a name twice is an error.
func (a *Actions) Register(name string, fn CustomFunc) error {
	if name == "" || fn == nil {
		return fmt.Errorf("register action: name and func are required")
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, dup := a.funcs[name]; dup {
		return fmt.Errorf("register action: %q already registered", name)
	}
	a.funcs[name] = fn
	return nil
}

// Lookup returns the action registered under name.
func (a *Actions) Lookup(name string) (CustomFunc, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	fn, ok := a.funcs[name]
	return fn, ok
}

// Has reports whether name is registered. It is the hasAction argument
// for registry.Seal.
func (a *Actions) Has(name string) bool {
	_, ok := a.Lookup(name)
	return ok
}

// Names returns the registered names, sorted.
func (a *Actions) Names() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]string, 0, len(a.funcs))
	for name := range a.funcs {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Invoke runs the named action.
func (a *Actions) Invoke(ctx context.Context, name string, call CustomCall) ([]ir.Write, error) {
	fn, ok := a.Lookup(name)
	if !ok {
		return nil, &RuntimeError{
			Code:    ErrCodeMissingAction,
			Message: fmt.Sprintf("custom action %q is not registered", name),
			RuleID:  call.Rule.ID,
			Depth:   call.Event.Depth,
		}
	}
	return fn(ctx, call)
}
