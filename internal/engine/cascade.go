package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/ruleweave/internal/access"
	"github.com/roach88/ruleweave/internal/cond"
	"github.com/roach88/ruleweave/internal/ir"
	"github.com/roach88/ruleweave/internal/pathexpr"
	"github.com/roach88/ruleweave/internal/registry"
)

// chain is the state of one Dispatch call.
type chain struct {
	engine *Engine
	da     access.DataAccess
	token  string
	queue  *eventQueue
	result *Result
}

func (c *chain) run(ctx context.Context) error {
	for {
		ev, ok := c.queue.TryDequeue()
		if !ok {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := c.dispatch(ctx, ev); err != nil {
			return err
		}
	}
}

// graph lazily loads the related records of one event. Each direction is
// fetched at most once per event.
type graph struct {
	ev          ir.Event
	ancestors   []ir.Record
	ancDepth    int
	descendants []ir.Record
	descDepth   int
}

func (c *chain) dispatch(ctx context.Context, ev ir.Event) error {
	e := c.engine
	ev.Seq = e.clock.Next()
	if ev.Depth > c.result.Depth {
		c.result.Depth = ev.Depth
	}

	if log, ok := c.da.(access.EventLog); ok {
		if err := log.AppendEvent(ctx, ev); err != nil {
			return c.fail(ErrCodeWriteFailed, ev, "", err, "append event")
		}
	}
	e.metrics.EventDispatched(ev.Schema, string(ev.Kind), ev.Depth)

	// Phase 1: index lookup.
	candidates := e.reg.Reactions(ev.Schema, ev.Kind)
	e.metrics.RulesMatched("index", len(candidates))
	if len(candidates) == 0 {
		c.record(ev)
		return nil
	}

	g := &graph{ev: ev}
	if ev.Parent != nil {
		g.ancestors = []ir.Record{*ev.Parent}
		g.ancDepth = 1
	}

	// Phase 2a: conditions on the event alone. Related records are never
	// loaded for a rule that fails here.
	pctx := g.context()
	var survivors []*registry.Reaction
	needAnc, needDesc := 0, 0
	for _, rx := range candidates {
		if !cond.All(rx.Local, pctx) {
			continue
		}
		survivors = append(survivors, rx)
		needAnc = deeper(needAnc, rx.AncestorDepth)
		needDesc = deeper(needDesc, rx.DescendantDepth)
	}

	if err := c.load(ctx, g, needAnc, needDesc); err != nil {
		return c.fail(ErrCodeWriteFailed, ev, "", err, "load related records")
	}
	if len(g.ancestors) > 0 && ev.Parent == nil {
		parent := g.ancestors[0]
		ev.Parent = &parent
	}
	c.record(ev)

	// Phase 2b: relational conditions.
	pctx = g.context()
	var matched []*registry.Reaction
	for _, rx := range survivors {
		if cond.All(rx.Relational, pctx) {
			e.logger.Debug().
				Str("chain", c.token).
				Str("rule", rx.Rule.ID).
				Str("record", ev.Object.ID).
				Msg("rule matched")
			matched = append(matched, rx)
		}
	}
	e.metrics.RulesMatched("conditions", len(matched))

	// Phase 3: resolve scope and act.
	for _, rx := range matched {
		if err := c.act(ctx, g, rx); err != nil {
			return err
		}
	}
	return nil
}

func (c *chain) record(ev ir.Event) {
	c.result.Events = append(c.result.Events, ev)
}

// load extends the graph to at least the requested depths.
func (c *chain) load(ctx context.Context, g *graph, anc, desc int) error {
	e := c.engine
	if want := access.ResolveDepth(anc, e.ancestorLimit); want > g.ancDepth {
		recs, err := access.Ancestors(ctx, c.da, g.ev.Object, want)
		if err != nil {
			return err
		}
		g.ancestors, g.ancDepth = recs, want
	}
	if want := access.ResolveDepth(desc, e.descendantLimit); want > g.descDepth {
		recs, err := access.Descendants(ctx, c.da, g.ev.Object, want)
		if err != nil {
			return err
		}
		g.descendants, g.descDepth = recs, want
	}
	return nil
}

func (g *graph) context() *pathexpr.Context {
	return &pathexpr.Context{
		Object:      g.ev.Object,
		Modified:    g.ev.Modified,
		Ancestors:   g.ancestors,
		Descendants: g.descendants,
	}
}

func (c *chain) act(ctx context.Context, g *graph, rx *registry.Reaction) error {
	ev := g.ev
	rule := rx.Rule

	targets, err := c.targets(ctx, ev, rule.Scope)
	if err != nil {
		return c.fail(ErrCodeWriteFailed, ev, rule.ID, err, "resolve %s scope", rule.Scope)
	}

	switch rule.Action.Kind {
	case ir.ActionSet:
		if rx.ValueAncestorDepth != 0 || rx.ValueDescendantDepth != 0 {
			if err := c.load(ctx, g, rx.ValueAncestorDepth, rx.ValueDescendantDepth); err != nil {
				return c.fail(ErrCodeWriteFailed, ev, rule.ID, err, "load related records")
			}
		}
		fields := c.setValues(g, rx)
		if len(fields) == 0 {
			return nil
		}
		for _, target := range targets {
			own := c.declared(target.Schema, fields)
			if len(own) == 0 {
				continue
			}
			if err := c.apply(ctx, ev, rule.ID, ir.Write{Target: target, Fields: own}); err != nil {
				return err
			}
		}
		return nil

	case ir.ActionCustom:
		writes, err := c.engine.actions.Invoke(ctx, rule.Action.Custom, CustomCall{
			Rule:    rule,
			Event:   ev,
			Targets: targets,
			Data:    c.da,
		})
		if err != nil {
			var re *RuntimeError
			if errors.As(err, &re) {
				re.Chain = c.token
				return re
			}
			return c.fail(ErrCodeCustomAction, ev, rule.ID, err, "custom action %q failed", rule.Action.Custom)
		}
		for _, w := range writes {
			if err := c.apply(ctx, ev, rule.ID, w); err != nil {
				return err
			}
		}
		return nil
	}
	return fmt.Errorf("rule %s: unknown action kind %q", rule.ID, rule.Action.Kind)
}

// targets resolves the records a rule's action applies to.
func (c *chain) targets(ctx context.Context, ev ir.Event, scope ir.Scope) ([]ir.Record, error) {
	switch scope {
	case ir.ScopeParent:
		return c.da.FetchRelated(ctx, ev.Object, ir.ScopeParent)
	case ir.ScopeChild:
		return c.da.FetchRelated(ctx, ev.Object, ir.ScopeChild)
	default:
		rec, err := c.da.Get(ctx, ev.Object.Schema, ev.Object.ID)
		if errors.Is(err, access.ErrNotFound) {
			// A deleted record has no self to write to.
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		return []ir.Record{rec}, nil
	}
}

// declared restricts fields to those the target schema declares. A parent
// scope may span several parent schemas.
func (c *chain) declared(schema string, fields ir.Object) ir.Object {
	s, ok := c.engine.reg.Schema(schema)
	if !ok {
		return nil
	}
	out := make(ir.Object, len(fields))
	for name, v := range fields {
		if s.HasField(name) {
			out[name] = v
		}
	}
	return out
}

// setValues resolves a set action's values. Path values that do not
// resolve are skipped.
func (c *chain) setValues(g *graph, rx *registry.Reaction) ir.Object {
	pctx := g.context()
	out := make(ir.Object, len(rx.Rule.Action.Set))
	for field, lit := range rx.Rule.Action.Set {
		expr, isPath := rx.SetExprs[field]
		if !isPath {
			out[field] = lit
			continue
		}
		v, ok := expr.Resolve(pctx)
		if !ok {
			c.engine.logger.Debug().
				Str("rule", rx.Rule.ID).
				Str("field", field).
				Str("path", expr.Source).
				Msg("set value not found, skipping field")
			continue
		}
		out[field] = v
	}
	return out
}

// apply writes the changed part of w and enqueues the resulting event.
func (c *chain) apply(ctx context.Context, ev ir.Event, ruleID string, w ir.Write) error {
	e := c.engine
	current, err := c.da.Get(ctx, w.Target.Schema, w.Target.ID)
	if err != nil {
		return c.fail(ErrCodeWriteFailed, ev, ruleID, err, "load %s/%s", w.Target.Schema, w.Target.ID)
	}

	changed := make(ir.Object, len(w.Fields))
	for _, field := range w.Fields.SortedKeys() {
		v := w.Fields[field]
		t := triple{current.Schema, current.ID, field}
		old, has := current.Fields[field]
		if (has && ir.Equal(old, v)) || (!has && ir.IsNull(v)) {
			continue
		}
		if e.settled.Settled(c.token, t, v) {
			continue
		}
		changed[field] = v
	}
	if len(changed) == 0 {
		c.result.NoOps++
		e.metrics.WriteSkipped(current.Schema)
		e.logger.Debug().
			Str("chain", c.token).
			Str("rule", ruleID).
			Str("target", current.Schema+"/"+current.ID).
			Msg("write unchanged, skipping")
		return nil
	}

	if err := e.limit.Check(c.token, ruleID, ev.Depth+1); err != nil {
		return err
	}

	if e.guard != nil {
		if err := e.guard.CheckWrite(ctx, c.da, current, changed); err != nil {
			return c.fail(ErrCodeWriteRejected, ev, ruleID, err, "write to %s/%s rejected", current.Schema, current.ID)
		}
	}

	updated, err := c.da.Write(ctx, current, changed)
	if err != nil {
		return c.fail(ErrCodeWriteFailed, ev, ruleID, err, "write %s/%s", current.Schema, current.ID)
	}

	modified := changed.SortedKeys()
	for _, field := range modified {
		e.settled.Record(c.token, triple{current.Schema, current.ID, field}, changed[field])
	}

	c.result.Writes = append(c.result.Writes, ir.Write{Target: updated, Fields: changed})
	e.metrics.WriteApplied(current.Schema)
	e.logger.Info().
		Str("chain", c.token).
		Str("rule", ruleID).
		Str("target", updated.Schema+"/"+updated.ID).
		Strs("fields", modified).
		Int("depth", ev.Depth+1).
		Msg("write applied")

	c.queue.Enqueue(ir.Event{
		Schema:   updated.Schema,
		Kind:     ir.EventModified,
		Object:   updated,
		Modified: modified,
		Chain:    c.token,
		Depth:    ev.Depth + 1,
	})
	return nil
}

func (c *chain) fail(code RuntimeErrorCode, ev ir.Event, ruleID string, err error, format string, args ...any) error {
	return &RuntimeError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Chain:   c.token,
		RuleID:  ruleID,
		Depth:   ev.Depth,
		Err:     err,
	}
}

// deeper combines two hop requirements; -1 means unbounded.
func deeper(a, b int) int {
	if a < 0 || b < 0 {
		return -1
	}
	if b > a {
		return b
	}
	return a
}
