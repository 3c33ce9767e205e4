package registry

import (
	"sort"
	"strings"

	"github.com/roach88/ruleweave/internal/cond"
	"github.com/roach88/ruleweave/internal/ir"
	"github.com/roach88/ruleweave/internal/pathexpr"
)

// AddReaction validates and indexes a reaction rule. A missing scope
// defaults to self; a missing id is generated from the schema and position.
func (r *Registry) AddReaction(rule ir.ReactionRule) error {
	rule.ID = defaultID(rule.ID, rule.Schema, "reaction", len(r.reactionIDs)+1)
	if err := r.writable(rule.ID); err != nil {
		return err
	}
	if r.reactionIDs[rule.ID] {
		return configErr(ErrCodeDuplicateRule, rule.ID, "reaction rule already registered")
	}
	schema, err := r.requireSchema(rule.ID, rule.Schema)
	if err != nil {
		return err
	}
	if !ir.ValidEventKinds[rule.Event] {
		return configErr(ErrCodeInvalidRule, rule.ID, "unknown event kind %q", rule.Event)
	}
	if rule.Scope == "" {
		rule.Scope = ir.ScopeSelf
	}
	if !ir.ValidScopes[rule.Scope] {
		return configErr(ErrCodeInvalidRule, rule.ID, "unknown scope %q", rule.Scope)
	}

	conds, err := r.compileConditions(rule.ID, rule.Conditions)
	if err != nil {
		return err
	}

	local, relational := cond.Split(conds)
	rx := &Reaction{
		Rule:            rule,
		Conditions:      conds,
		Local:           local,
		Relational:      relational,
		AncestorDepth:   cond.MaxAncestorDepth(relational),
		DescendantDepth: cond.MaxDescendantDepth(relational),
	}

	switch rule.Action.Kind {
	case ir.ActionSet:
		if len(rule.Action.Set) == 0 {
			return configErr(ErrCodeInvalidRule, rule.ID, "set action has no target fields")
		}
		targets := r.scopeSchemas(schema, rule.Scope)
		if len(targets) == 0 {
			return configErr(ErrCodeInvalidRule, rule.ID, "scope %s has no related schema", rule.Scope)
		}
		rx.SetExprs = make(map[string]pathexpr.Expr)
		for _, field := range rule.Action.Set.SortedKeys() {
			if !anyHasField(targets, field) {
				return configErr(ErrCodeUnknownField, rule.ID, "set target %q not declared on %s scope", field, rule.Scope)
			}
			s, ok := rule.Action.Set[field].(ir.String)
			if !ok || !pathexpr.IsExpression(string(s)) {
				continue
			}
			e, err := pathexpr.Parse(string(s))
			if err != nil {
				return configErr(ErrCodeInvalidPath, rule.ID, "%v", err)
			}
			if err := r.checkExpr(rule.ID, e); err != nil {
				return err
			}
			rx.SetExprs[field] = e
			rx.ValueAncestorDepth = deeper(rx.ValueAncestorDepth, e.AncestorDepth())
			rx.ValueDescendantDepth = deeper(rx.ValueDescendantDepth, e.DescendantDepth())
		}
	case ir.ActionCustom:
		if strings.TrimSpace(rule.Action.Custom) == "" {
			return configErr(ErrCodeInvalidRule, rule.ID, "custom action name is required")
		}
	default:
		return configErr(ErrCodeInvalidRule, rule.ID, "unknown action kind %q", rule.Action.Kind)
	}

	key := reactionKey{rule.Schema, rule.Event}
	r.reactions[key] = append(r.reactions[key], rx)
	r.reactionIDs[rule.ID] = true
	return nil
}

func (r *Registry) scopeSchemas(s *ir.Schema, scope ir.Scope) []*ir.Schema {
	switch scope {
	case ir.ScopeSelf:
		return []*ir.Schema{s}
	case ir.ScopeParent:
		var out []*ir.Schema
		for _, rel := range s.Relations() {
			if p, ok := r.schemas[rel.Parent]; ok {
				out = append(out, p)
			}
		}
		return out
	case ir.ScopeChild:
		var out []*ir.Schema
		for _, rel := range r.children[s.ID] {
			out = append(out, r.schemas[rel.Child])
		}
		return out
	}
	return nil
}

func anyHasField(schemas []*ir.Schema, field string) bool {
	for _, s := range schemas {
		if s.HasField(field) {
			return true
		}
	}
	return false
}

// AddState validates and indexes a state rule.
func (r *Registry) AddState(rule ir.StateRule) error {
	rule.ID = defaultID(rule.ID, rule.Schema, "state", len(r.stateIDs)+1)
	if err := r.writable(rule.ID); err != nil {
		return err
	}
	if r.stateIDs[rule.ID] {
		return configErr(ErrCodeDuplicateRule, rule.ID, "state rule already registered")
	}
	schema, err := r.requireSchema(rule.ID, rule.Schema)
	if err != nil {
		return err
	}

	eff := rule.Effect
	if len(eff.OnFields) == 0 {
		return configErr(ErrCodeInvalidRule, rule.ID, "onFields is required")
	}
	if eff.Required && eff.Hidden {
		return configErr(ErrCodeContradictoryFlags, rule.ID, "a field cannot be both required and hidden")
	}
	wildcard := false
	for _, f := range eff.OnFields {
		if f == ir.AllFields {
			wildcard = true
			continue
		}
		if !schema.HasField(f) {
			return configErr(ErrCodeUnknownField, rule.ID, "onFields names unknown field %q", f)
		}
	}
	if eff.EnumSubset != nil {
		if wildcard {
			return configErr(ErrCodeInvalidEnumSubset, rule.ID, "enumSubset requires explicit onFields")
		}
		for _, name := range eff.OnFields {
			if err := checkEnumSubset(rule.ID, schema, name, eff.EnumSubset); err != nil {
				return err
			}
		}
	}

	conds, err := r.compileConditions(rule.ID, rule.Conditions)
	if err != nil {
		return err
	}

	r.states[rule.Schema] = append(r.states[rule.Schema], &State{Rule: rule, Conditions: conds})
	r.stateIDs[rule.ID] = true
	r.ancestorDepth[rule.Schema] = deeper(r.ancestorDepth[rule.Schema], cond.MaxAncestorDepth(conds))
	r.descendantDepth[rule.Schema] = deeper(r.descendantDepth[rule.Schema], cond.MaxDescendantDepth(conds))
	return nil
}

// deeper combines two depth requirements where -1 means unbounded.
func deeper(a, b int) int {
	if a < 0 || b < 0 {
		return -1
	}
	if b > a {
		return b
	}
	return a
}

func checkEnumSubset(subject string, s *ir.Schema, field string, subset []string) error {
	f, _ := s.Field(field)
	if f.Type != ir.TypeString {
		return configErr(ErrCodeInvalidEnumSubset, subject, "enumSubset on non-string field %q", field)
	}
	if len(f.Enum) == 0 {
		return nil
	}
	allowed := make(map[string]bool, len(f.Enum))
	for _, v := range f.Enum {
		allowed[v] = true
	}
	for _, v := range subset {
		if !allowed[v] {
			return configErr(ErrCodeInvalidEnumSubset, subject, "value %q is not in the enum of %q", v, field)
		}
	}
	return nil
}

// AddAugmentation validates and indexes an augmentation rule. Registering a
// second rule for the same (schema, target, context) fails.
func (r *Registry) AddAugmentation(rule ir.AugmentationRule) error {
	if rule.Context == "" {
		rule.Context = ir.ContextSelf
	}
	rule.ID = defaultID(rule.ID, rule.Schema, string(rule.Target)+"."+string(rule.Context), 1)
	if err := r.writable(rule.ID); err != nil {
		return err
	}
	schema, err := r.requireSchema(rule.ID, rule.Schema)
	if err != nil {
		return err
	}
	if !ir.ValidTargets[rule.Target] {
		return configErr(ErrCodeInvalidRule, rule.ID, "unknown target %q", rule.Target)
	}
	if !ir.ValidContexts[rule.Context] {
		return configErr(ErrCodeInvalidRule, rule.ID, "unknown context %q", rule.Context)
	}
	key := augmentKey{rule.Schema, rule.Target, rule.Context}
	if existing, dup := r.augments[key]; dup {
		return configErr(ErrCodeDuplicateAugment, rule.ID,
			"%s(%s) on %s already defined by %s", rule.Target, rule.Context, rule.Schema, existing.ID)
	}
	if len(rule.Select) == 0 {
		rule.Select = []string{ir.AllFields}
	}
	if err := checkSelect(rule.ID, schema, rule.Select); err != nil {
		return err
	}

	aliases := make(map[string]bool, len(rule.Refers))
	refers := make([]ir.ChildRequirement, len(rule.Refers))
	for i, ref := range rule.Refers {
		child, err := r.requireSchema(rule.ID, ref.Schema)
		if err != nil {
			return err
		}
		refField, ok := child.RefTo(rule.Schema)
		if !ok {
			return configErr(ErrCodeInvalidRule, rule.ID, "schema %q does not refer to %q", ref.Schema, rule.Schema)
		}
		if ref.Alias == "" {
			ref.Alias = ref.Schema
		}
		if aliases[ref.Alias] || schema.HasField(ref.Alias) {
			return configErr(ErrCodeInvalidRule, rule.ID, "alias %q collides with another alias or field", ref.Alias)
		}
		aliases[ref.Alias] = true
		if ref.Cardinality == "" {
			ref.Cardinality = ir.CardinalityMany
			if refField.Unique {
				ref.Cardinality = ir.CardinalityOne
			}
		}
		if ref.MinItems < 0 || ref.MaxItems < 0 || (ref.MaxItems > 0 && ref.MinItems > ref.MaxItems) {
			return configErr(ErrCodeInvalidRule, rule.ID, "invalid minItems/maxItems for %q", ref.Alias)
		}
		if ref.Cardinality == ir.CardinalityOne && (ref.MinItems > 1 || ref.MaxItems > 1) {
			return configErr(ErrCodeInvalidRule, rule.ID, "cardinality one allows at most one %q", ref.Alias)
		}
		for _, f := range ref.RequiredFields {
			if !child.HasField(f) {
				return configErr(ErrCodeUnknownField, rule.ID, "requiredFields names unknown field %q on %s", f, ref.Schema)
			}
		}
		refers[i] = ref
	}
	rule.Refers = refers

	r.augments[key] = rule
	return nil
}

// checkSelect accepts "*", a list of "!field" exclusions, or a list of fields.
func checkSelect(subject string, s *ir.Schema, sel []string) error {
	if len(sel) == 1 && sel[0] == ir.AllFields {
		return nil
	}
	excl := strings.HasPrefix(sel[0], "!")
	for _, item := range sel {
		if item == ir.AllFields {
			return configErr(ErrCodeInvalidAugmentSelect, subject, "'*' cannot be combined with other entries")
		}
		if strings.HasPrefix(item, "!") != excl {
			return configErr(ErrCodeInvalidAugmentSelect, subject, "cannot mix exclusions and explicit fields")
		}
		name := strings.TrimPrefix(item, "!")
		if !s.HasField(name) {
			return configErr(ErrCodeUnknownField, subject, "select names unknown field %q", name)
		}
	}
	return nil
}

// SelectFields expands a select list against s, in declaration order.
func SelectFields(s *ir.Schema, sel []string) []string {
	if len(sel) == 0 || (len(sel) == 1 && sel[0] == ir.AllFields) {
		return s.FieldNames()
	}
	if strings.HasPrefix(sel[0], "!") {
		excluded := make(map[string]bool, len(sel))
		for _, item := range sel {
			excluded[strings.TrimPrefix(item, "!")] = true
		}
		var out []string
		for _, name := range s.FieldNames() {
			if !excluded[name] {
				out = append(out, name)
			}
		}
		return out
	}
	picked := make(map[string]bool, len(sel))
	for _, item := range sel {
		picked[item] = true
	}
	var out []string
	for _, name := range s.FieldNames() {
		if picked[name] {
			out = append(out, name)
		}
	}
	return out
}

// SortedSchemaIDs returns registered schema ids sorted lexicographically.
func (r *Registry) SortedSchemaIDs() []string {
	ids := append([]string(nil), r.schemaOrder...)
	sort.Strings(ids)
	return ids
}
