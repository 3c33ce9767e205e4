package compiler

import (
	"cuelang.org/go/cue"

	"github.com/roach88/ruleweave/internal/ir"
)

// CompileReaction parses a CUE value into a ReactionRule.
// The rule id is the value's label.
//
// Expected CUE structure:
//
//	reaction: "item-done": {
//		schema: "OrderItem"
//		event:  "modified"
//		scope:  "parent"
//		when: [{path: "status", op: "eq", value: "completed"}]
//		custom: "rollupStatus"   // or set: {status: "$eventObject.status"}
//	}
func CompileReaction(v cue.Value) (*ir.ReactionRule, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	id := label(v)
	subject := "reaction." + id

	schema, err := reqString(v, "schema", subject)
	if err != nil {
		return nil, err
	}
	event, err := reqString(v, "event", subject)
	if err != nil {
		return nil, err
	}
	if !ir.ValidEventKinds[ir.EventKind(event)] {
		return nil, compileErr(subject+".event", field(v, "event").Pos(),
			"unknown event %q (must be created, modified or deleted)", event)
	}
	scope, _, err := optString(v, "scope")
	if err != nil {
		return nil, err
	}
	if scope != "" && !ir.ValidScopes[ir.Scope(scope)] {
		return nil, compileErr(subject+".scope", field(v, "scope").Pos(),
			"unknown scope %q (must be self, parent or child)", scope)
	}

	conds, err := compileConditions(subject, v)
	if err != nil {
		return nil, err
	}
	action, err := compileAction(subject, v)
	if err != nil {
		return nil, err
	}

	return &ir.ReactionRule{
		ID:         id,
		Schema:     schema,
		Scope:      ir.Scope(scope),
		Event:      ir.EventKind(event),
		Conditions: conds,
		Action:     action,
	}, nil
}

func compileAction(subject string, v cue.Value) (ir.Action, error) {
	set := field(v, "set")
	custom, hasCustom, err := optString(v, "custom")
	if err != nil {
		return ir.Action{}, err
	}
	switch {
	case set.Exists() && hasCustom:
		return ir.Action{}, compileErr(subject, v.Pos(), "set and custom are mutually exclusive")
	case hasCustom:
		return ir.CustomAction(custom), nil
	case set.Exists():
		val, err := Value(set)
		if err != nil {
			return ir.Action{}, err
		}
		obj, ok := val.(ir.Object)
		if !ok {
			return ir.Action{}, compileErr(subject+".set", set.Pos(), "set must be a struct")
		}
		return ir.SetAction(obj), nil
	default:
		return ir.Action{}, compileErr(subject, v.Pos(), "one of set or custom is required")
	}
}

func compileConditions(subject string, v cue.Value) ([]ir.Condition, error) {
	when := field(v, "when")
	if !when.Exists() {
		return nil, nil
	}
	iter, err := when.List()
	if err != nil {
		return nil, compileErr(subject+".when", when.Pos(), "when must be a list of conditions")
	}
	var out []ir.Condition
	for iter.Next() {
		c := iter.Value()
		path, err := reqString(c, "path", subject+".when")
		if err != nil {
			return nil, err
		}
		op, _, err := optString(c, "op")
		if err != nil {
			return nil, err
		}
		if op == "" {
			op = string(ir.OpEq)
		}
		if !ir.ValidOperators[ir.Operator(op)] {
			return nil, compileErr(subject+".when", c.Pos(), "unknown operator %q", op)
		}
		cond := ir.Condition{Path: path, Op: ir.Operator(op), Value: ir.Null{}}
		if raw := field(c, "value"); raw.Exists() {
			if cond.Value, err = Value(raw); err != nil {
				return nil, err
			}
		}
		out = append(out, cond)
	}
	return out, nil
}

// CompileState parses a CUE value into a StateRule.
//
//	state: "lock-completed": {
//		schema:   "Order"
//		when:     [{path: "status", value: "completed"}]
//		onFields: "*"
//		immutable: true
//	}
func CompileState(v cue.Value) (*ir.StateRule, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	id := label(v)
	subject := "state." + id

	schema, err := reqString(v, "schema", subject)
	if err != nil {
		return nil, err
	}
	conds, err := compileConditions(subject, v)
	if err != nil {
		return nil, err
	}
	onFields, err := optStrings(v, "onFields")
	if err != nil {
		return nil, err
	}
	if len(onFields) == 0 {
		return nil, compileErr(subject+".onFields", v.Pos(), "onFields is required")
	}

	rule := &ir.StateRule{ID: id, Schema: schema, Conditions: conds}
	rule.Effect.OnFields = onFields
	if rule.Effect.Immutable, err = optBool(v, "immutable"); err != nil {
		return nil, err
	}
	if rule.Effect.Required, err = optBool(v, "required"); err != nil {
		return nil, err
	}
	if rule.Effect.Hidden, err = optBool(v, "hidden"); err != nil {
		return nil, err
	}
	if rule.Effect.EnumSubset, err = optStrings(v, "enumSubset"); err != nil {
		return nil, err
	}
	return rule, nil
}

// CompileAugment parses a CUE value into an AugmentationRule.
//
//	augment: "order-create": {
//		schema:  "Order"
//		target:  "toCreate"
//		context: "slf"
//		select:  ["!status"]
//		refers: [{schema: "OrderItem", alias: "items", minItems: 1}]
//	}
func CompileAugment(v cue.Value) (*ir.AugmentationRule, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	id := label(v)
	subject := "augment." + id

	schema, err := reqString(v, "schema", subject)
	if err != nil {
		return nil, err
	}
	target, err := reqString(v, "target", subject)
	if err != nil {
		return nil, err
	}
	if !ir.ValidTargets[ir.Target(target)] {
		return nil, compileErr(subject+".target", field(v, "target").Pos(),
			"unknown target %q (must be toCreate, toView or toEdit)", target)
	}
	context, _, err := optString(v, "context")
	if err != nil {
		return nil, err
	}
	if context == "" {
		context = string(ir.ContextSelf)
	}
	if !ir.ValidContexts[ir.Context(context)] {
		return nil, compileErr(subject+".context", field(v, "context").Pos(),
			"unknown context %q (must be slf or nested)", context)
	}
	sel, err := optStrings(v, "select")
	if err != nil {
		return nil, err
	}
	if sel == nil {
		sel = []string{ir.AllFields}
	}

	rule := &ir.AugmentationRule{
		ID:      id,
		Schema:  schema,
		Target:  ir.Target(target),
		Context: ir.Context(context),
		Select:  sel,
	}

	refers := field(v, "refers")
	if !refers.Exists() {
		return rule, nil
	}
	iter, err := refers.List()
	if err != nil {
		return nil, compileErr(subject+".refers", refers.Pos(), "refers must be a list")
	}
	for iter.Next() {
		ch, err := compileChild(subject+".refers", iter.Value())
		if err != nil {
			return nil, err
		}
		rule.Refers = append(rule.Refers, ch)
	}
	return rule, nil
}

func compileChild(subject string, v cue.Value) (ir.ChildRequirement, error) {
	var ch ir.ChildRequirement
	var err error
	if ch.Schema, err = reqString(v, "schema", subject); err != nil {
		return ch, err
	}
	if ch.Alias, err = reqString(v, "alias", subject); err != nil {
		return ch, err
	}
	card, _, err := optString(v, "cardinality")
	if err != nil {
		return ch, err
	}
	switch ir.Cardinality(card) {
	case "":
		ch.Cardinality = ir.CardinalityMany
	case ir.CardinalityMany, ir.CardinalityOne:
		ch.Cardinality = ir.Cardinality(card)
	default:
		return ch, compileErr(subject+".cardinality", field(v, "cardinality").Pos(),
			"unknown cardinality %q (must be many or one)", card)
	}
	if ch.Required, err = optBool(v, "required"); err != nil {
		return ch, err
	}
	if ch.RequiredFields, err = optStrings(v, "requiredFields"); err != nil {
		return ch, err
	}
	minItems, err := optInt(v, "minItems")
	if err != nil {
		return ch, err
	}
	maxItems, err := optInt(v, "maxItems")
	if err != nil {
		return ch, err
	}
	if minItems != nil {
		ch.MinItems = int(*minItems)
	}
	if maxItems != nil {
		ch.MaxItems = int(*maxItems)
	}
	if ch.MinItems < 0 || ch.MaxItems < 0 {
		return ch, compileErr(subject+"."+ch.Alias, v.Pos(), "item bounds must not be negative")
	}
	if ch.MaxItems > 0 && ch.MinItems > ch.MaxItems {
		return ch, compileErr(subject+"."+ch.Alias, v.Pos(), "minItems %d exceeds maxItems %d", ch.MinItems, ch.MaxItems)
	}
	return ch, nil
}
