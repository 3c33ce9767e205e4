// Package registry is the process-wide rule index.
//
// A Registry is built in a single-writer phase: schemas first, then
// reaction, state and augmentation rules. Every rule is validated and its
// path expressions parsed as it is added. Seal ends the registration phase;
// after that the registry is read-only and safe for concurrent readers
// without locking.
//
// Lookups used on the dispatch path are map hits:
//   - Reactions(schema, kind) in registration order
//   - States(schema) in registration order
//   - Augmentation(schema, target, context)
package registry

import (
	"fmt"
	"sort"

	"github.com/roach88/ruleweave/internal/cond"
	"github.com/roach88/ruleweave/internal/ir"
	"github.com/roach88/ruleweave/internal/pathexpr"
)

type reactionKey struct {
	schema string
	kind   ir.EventKind
}

type augmentKey struct {
	schema  string
	target  ir.Target
	context ir.Context
}

// Reaction is a registered reaction rule with its conditions compiled.
type Reaction struct {
	Rule       ir.ReactionRule
	Conditions []cond.Compiled
	// Local and Relational partition Conditions. Local conditions read only
	// the event; Relational ones need ancestors or descendants loaded.
	Local      []cond.Compiled
	Relational []cond.Compiled
	// SetExprs holds parsed value expressions for set targets whose value
	// is a "$" path. Other targets are literals taken from Rule.Action.Set.
	SetExprs map[string]pathexpr.Expr
	// AncestorDepth is the deepest $parent hop used by the conditions
	// (-1 when a schema-restricted hop needs the whole chain).
	AncestorDepth int
	// DescendantDepth is the same for $child hops.
	DescendantDepth int
	// ValueAncestorDepth and ValueDescendantDepth are the same for set
	// value expressions.
	ValueAncestorDepth   int
	ValueDescendantDepth int
}

// UsesParent reports whether evaluating the conditions needs ancestors.
func (r *Reaction) UsesParent() bool {
	return r.AncestorDepth != 0
}

// UsesChildren reports whether evaluating the conditions needs descendants.
func (r *Reaction) UsesChildren() bool {
	return r.DescendantDepth != 0
}

// State is a registered state rule with its conditions compiled.
type State struct {
	Rule       ir.StateRule
	Conditions []cond.Compiled
}

// Registry indexes schemas and rules.
type Registry struct {
	schemas     map[string]*ir.Schema
	schemaOrder []string
	children    map[string][]ir.Relation

	reactions   map[reactionKey][]*Reaction
	reactionIDs map[string]bool
	states      map[string][]*State
	stateIDs    map[string]bool
	augments    map[augmentKey]ir.AugmentationRule

	ancestorDepth   map[string]int
	descendantDepth map[string]int

	sealed bool
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{
		schemas:         make(map[string]*ir.Schema),
		children:        make(map[string][]ir.Relation),
		reactions:       make(map[reactionKey][]*Reaction),
		reactionIDs:     make(map[string]bool),
		states:          make(map[string][]*State),
		stateIDs:        make(map[string]bool),
		augments:        make(map[augmentKey]ir.AugmentationRule),
		ancestorDepth:   make(map[string]int),
		descendantDepth: make(map[string]int),
	}
}

func (r *Registry) writable(subject string) error {
	if r.sealed {
		return configErr(ErrCodeSealed, subject, "registry is sealed")
	}
	return nil
}

// RegisterSchema adds a schema. Referenced parent schemas may be registered
// later; references are resolved by Seal.
func (r *Registry) RegisterSchema(s ir.Schema) error {
	if err := r.writable(s.ID); err != nil {
		return err
	}
	if s.ID == "" {
		return configErr(ErrCodeInvalidSchema, "<schema>", "schema id is required")
	}
	if _, dup := r.schemas[s.ID]; dup {
		return configErr(ErrCodeDuplicateSchema, s.ID, "schema already registered")
	}
	seen := make(map[string]bool, len(s.Fields))
	for _, f := range s.Fields {
		if f.Name == "" {
			return configErr(ErrCodeInvalidSchema, s.ID, "field with empty name")
		}
		if seen[f.Name] {
			return configErr(ErrCodeInvalidSchema, s.ID, "duplicate field %q", f.Name)
		}
		seen[f.Name] = true
		if err := checkFieldSpec(s.ID, f); err != nil {
			return err
		}
	}

	cp := s
	cp.Fields = append([]ir.Field(nil), s.Fields...)
	r.schemas[s.ID] = &cp
	r.schemaOrder = append(r.schemaOrder, s.ID)
	for _, rel := range cp.Relations() {
		r.children[rel.Parent] = append(r.children[rel.Parent], rel)
	}
	return nil
}

func checkFieldSpec(schema string, f ir.Field) error {
	subject := schema + "." + f.Name
	if !ir.ValidTypes[f.Type] {
		return configErr(ErrCodeInvalidSchema, subject, "unknown type %q", f.Type)
	}
	if len(f.Enum) > 0 && f.Type != ir.TypeString {
		return configErr(ErrCodeInvalidSchema, subject, "enum requires type string")
	}
	if (f.Min != nil || f.Max != nil) && f.Type != ir.TypeInt && f.Type != ir.TypeString && f.Type != ir.TypeList {
		return configErr(ErrCodeInvalidSchema, subject, "min/max not supported for type %s", f.Type)
	}
	if f.Min != nil && f.Max != nil && *f.Min > *f.Max {
		return configErr(ErrCodeInvalidSchema, subject, "min %d exceeds max %d", *f.Min, *f.Max)
	}
	if (f.Type == ir.TypeRef) != (f.Refer != nil) {
		return configErr(ErrCodeInvalidSchema, subject, "type ref and refer must be declared together")
	}
	return nil
}

// Schema returns a registered schema.
func (r *Registry) Schema(id string) (*ir.Schema, bool) {
	s, ok := r.schemas[id]
	return s, ok
}

// Schemas returns every schema in registration order.
func (r *Registry) Schemas() []*ir.Schema {
	out := make([]*ir.Schema, len(r.schemaOrder))
	for i, id := range r.schemaOrder {
		out[i] = r.schemas[id]
	}
	return out
}

// Children returns the relations whose parent is schema, in registration order.
func (r *Registry) Children(schema string) []ir.Relation {
	return r.children[schema]
}

// Parents returns the relations whose child is schema.
func (r *Registry) Parents(schema string) []ir.Relation {
	s, ok := r.schemas[schema]
	if !ok {
		return nil
	}
	return s.Relations()
}

// Reactions returns the reaction rules for (schema, kind) in registration order.
func (r *Registry) Reactions(schema string, kind ir.EventKind) []*Reaction {
	return r.reactions[reactionKey{schema, kind}]
}

// AllReactions returns every reaction rule, grouped by schema and kind.
func (r *Registry) AllReactions() []*Reaction {
	var out []*Reaction
	for _, id := range r.schemaOrder {
		for _, kind := range []ir.EventKind{ir.EventCreated, ir.EventModified, ir.EventDeleted} {
			out = append(out, r.reactions[reactionKey{id, kind}]...)
		}
	}
	return out
}

// States returns the state rules for schema in registration order.
func (r *Registry) States(schema string) []*State {
	return r.states[schema]
}

// Augmentation returns the rule registered for (schema, target, context).
func (r *Registry) Augmentation(schema string, target ir.Target, ctx ir.Context) (ir.AugmentationRule, bool) {
	a, ok := r.augments[augmentKey{schema, target, ctx}]
	return a, ok
}

// Augmentations returns every augmentation rule sorted by (schema, target, context).
func (r *Registry) Augmentations() []ir.AugmentationRule {
	out := make([]ir.AugmentationRule, 0, len(r.augments))
	for _, a := range r.augments {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Schema != out[j].Schema {
			return out[i].Schema < out[j].Schema
		}
		if out[i].Target != out[j].Target {
			return out[i].Target < out[j].Target
		}
		return out[i].Context < out[j].Context
	})
	return out
}

// AncestorDepth is the deepest $parent hop any state rule on schema uses.
// -1 means the full ancestor chain may be needed.
func (r *Registry) AncestorDepth(schema string) int {
	return r.ancestorDepth[schema]
}

// DescendantDepth mirrors AncestorDepth for $child hops.
func (r *Registry) DescendantDepth(schema string) int {
	return r.descendantDepth[schema]
}

// Sealed reports whether the registration phase has ended.
func (r *Registry) Sealed() bool {
	return r.sealed
}

// Seal resolves schema references, checks that every custom action name
// is known to hasAction, and makes the registry read-only.
// A nil hasAction skips the custom action check.
func (r *Registry) Seal(hasAction func(name string) bool) error {
	if r.sealed {
		return nil
	}
	for _, id := range r.schemaOrder {
		for _, f := range r.schemas[id].ParentRefs() {
			if _, ok := r.schemas[f.Refer.Schema]; !ok {
				return configErr(ErrCodeUnknownSchema, id+"."+f.Name, "refers to unknown schema %q", f.Refer.Schema)
			}
		}
	}
	if hasAction != nil {
		for _, rx := range r.AllReactions() {
			if rx.Rule.Action.Kind == ir.ActionCustom && !hasAction(rx.Rule.Action.Custom) {
				return configErr(ErrCodeUnknownAction, rx.Rule.ID, "custom action %q is not registered", rx.Rule.Action.Custom)
			}
		}
	}
	r.sealed = true
	return nil
}

// CheckDepthLimits rejects fixed $parent(n)/$child(n) hops deeper than
// the related-record limits the runtime loads with. Such a hop could never
// resolve. Schema-restricted hops walk up to the limit and are accepted.
func (r *Registry) CheckDepthLimits(ancestorLimit, descendantLimit int) error {
	check := func(subject string, e pathexpr.Expr) error {
		if d := e.AncestorDepth(); d > ancestorLimit {
			return configErr(ErrCodeDepthLimit, subject, "path %q needs %d ancestor levels, limit is %d", e.Source, d, ancestorLimit)
		}
		if d := e.DescendantDepth(); d > descendantLimit {
			return configErr(ErrCodeDepthLimit, subject, "path %q needs %d descendant levels, limit is %d", e.Source, d, descendantLimit)
		}
		return nil
	}
	for _, rx := range r.AllReactions() {
		for _, c := range rx.Conditions {
			if err := check(rx.Rule.ID, c.Path); err != nil {
				return err
			}
		}
		for _, field := range rx.Rule.Action.Set.SortedKeys() {
			if e, ok := rx.SetExprs[field]; ok {
				if err := check(rx.Rule.ID, e); err != nil {
					return err
				}
			}
		}
	}
	for _, id := range r.schemaOrder {
		for _, st := range r.states[id] {
			for _, c := range st.Conditions {
				if err := check(st.Rule.ID, c.Path); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func (r *Registry) requireSchema(subject, id string) (*ir.Schema, error) {
	s, ok := r.schemas[id]
	if !ok {
		return nil, configErr(ErrCodeUnknownSchema, subject, "unknown schema %q", id)
	}
	return s, nil
}

// compileConditions compiles cs and checks schema names used in hops.
func (r *Registry) compileConditions(subject string, cs []ir.Condition) ([]cond.Compiled, error) {
	compiled, err := cond.CompileAll(cs)
	if err != nil {
		return nil, configErr(ErrCodeInvalidPath, subject, "%v", err)
	}
	for _, c := range compiled {
		if err := r.checkExpr(subject, c.Path); err != nil {
			return nil, err
		}
	}
	return compiled, nil
}

func (r *Registry) checkExpr(subject string, e pathexpr.Expr) error {
	if e.Schema == "" {
		return nil
	}
	if _, ok := r.schemas[e.Schema]; !ok {
		return configErr(ErrCodeUnknownSchema, subject, "path %q names unknown schema %q", e.Source, e.Schema)
	}
	return nil
}

func defaultID(id, schema, kind string, n int) string {
	if id != "" {
		return id
	}
	return fmt.Sprintf("%s.%s.%d", schema, kind, n)
}
