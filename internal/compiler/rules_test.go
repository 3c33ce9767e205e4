package compiler

import (
	"testing"

	"cuelang.org/go/cue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ruleweave/internal/ir"
)

func TestCompileReactionBasic(t *testing.T) {
	v := compile(t, orderDefs)
	rule, err := CompileReaction(v.LookupPath(cue.ParsePath(`reaction."item-rollup"`)))
	require.NoError(t, err)

	assert.Equal(t, "item-rollup", rule.ID)
	assert.Equal(t, "OrderItem", rule.Schema)
	assert.Equal(t, ir.EventModified, rule.Event)
	assert.Equal(t, ir.ScopeParent, rule.Scope)
	assert.Equal(t, []ir.Condition{{Path: "status", Op: ir.OpEq, Value: ir.String("completed")}}, rule.Conditions)
	assert.Equal(t, ir.CustomAction("rollupStatus"), rule.Action)
}

func TestCompileReactionSetAction(t *testing.T) {
	v := compile(t, `reaction: copy: {
		schema: "OrderItem"
		event:  "created"
		when: [{path: "$parent.status", op: "in", value: ["pending", "in_process"]}]
		set: {status: "$parent.status", quantity: 1}
	}`)
	rule, err := CompileReaction(v.LookupPath(cue.ParsePath("reaction.copy")))
	require.NoError(t, err)

	assert.Empty(t, rule.Scope, "scope defaults at registration")
	assert.Equal(t, ir.OpIn, rule.Conditions[0].Op)
	assert.Equal(t, ir.Strings("pending", "in_process"), rule.Conditions[0].Value)
	assert.Equal(t, ir.SetAction(ir.Object{
		"status":   ir.String("$parent.status"),
		"quantity": ir.Int(1),
	}), rule.Action)
}

func TestCompileReactionConditionDefaults(t *testing.T) {
	v := compile(t, `reaction: r: {
		schema: "Order"
		event:  "modified"
		when: [{path: "note"}]
		custom: "x"
	}`)
	rule, err := CompileReaction(v.LookupPath(cue.ParsePath("reaction.r")))
	require.NoError(t, err)
	assert.Equal(t, ir.Condition{Path: "note", Op: ir.OpEq, Value: ir.Null{}}, rule.Conditions[0])
}

func TestCompileReactionErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"missing schema", `reaction: r: {event: "created", custom: "x"}`, "schema is required"},
		{"missing event", `reaction: r: {schema: "Order", custom: "x"}`, "event is required"},
		{"bad event", `reaction: r: {schema: "Order", event: "touched", custom: "x"}`, `unknown event "touched"`},
		{"bad scope", `reaction: r: {schema: "Order", event: "created", scope: "sibling", custom: "x"}`, `unknown scope "sibling"`},
		{"bad op", `reaction: r: {schema: "Order", event: "created", when: [{path: "a", op: "like"}], custom: "x"}`, `unknown operator "like"`},
		{"when not list", `reaction: r: {schema: "Order", event: "created", when: {path: "a"}, custom: "x"}`, "when must be a list"},
		{"no action", `reaction: r: {schema: "Order", event: "created"}`, "one of set or custom is required"},
		{"both actions", `reaction: r: {schema: "Order", event: "created", custom: "x", set: {a: 1}}`, "mutually exclusive"},
		{"set not struct", `reaction: r: {schema: "Order", event: "created", set: [1]}`, "set must be a struct"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := compile(t, tt.src)
			_, err := CompileReaction(v.LookupPath(cue.ParsePath("reaction.r")))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestCompileStateBasic(t *testing.T) {
	v := compile(t, orderDefs)
	rule, err := CompileState(v.LookupPath(cue.ParsePath(`state."lock-completed"`)))
	require.NoError(t, err)

	assert.Equal(t, "lock-completed", rule.ID)
	assert.Equal(t, "Order", rule.Schema)
	assert.Equal(t, []string{ir.AllFields}, rule.Effect.OnFields)
	assert.True(t, rule.Effect.Immutable)
	assert.False(t, rule.Effect.Hidden)
	assert.Nil(t, rule.Effect.EnumSubset)
}

func TestCompileStateFlags(t *testing.T) {
	v := compile(t, `state: s: {
		schema: "Order"
		onFields: ["status", "note"]
		required: true
		hidden: false
		enumSubset: ["pending"]
	}`)
	rule, err := CompileState(v.LookupPath(cue.ParsePath("state.s")))
	require.NoError(t, err)

	assert.Empty(t, rule.Conditions)
	assert.Equal(t, []string{"status", "note"}, rule.Effect.OnFields)
	assert.True(t, rule.Effect.Required)
	assert.False(t, rule.Effect.Hidden)
	assert.Equal(t, []string{"pending"}, rule.Effect.EnumSubset)
}

func TestCompileStateMissingOnFields(t *testing.T) {
	v := compile(t, `state: s: {schema: "Order", immutable: true}`)
	_, err := CompileState(v.LookupPath(cue.ParsePath("state.s")))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "onFields is required")
}

func TestCompileAugmentBasic(t *testing.T) {
	v := compile(t, orderDefs)
	rule, err := CompileAugment(v.LookupPath(cue.ParsePath(`augment."order-create"`)))
	require.NoError(t, err)

	assert.Equal(t, "order-create", rule.ID)
	assert.Equal(t, ir.TargetCreate, rule.Target)
	assert.Equal(t, ir.ContextSelf, rule.Context)
	assert.Equal(t, []string{"!status"}, rule.Select)
	assert.Equal(t, []ir.ChildRequirement{{
		Schema:      "OrderItem",
		Alias:       "items",
		Cardinality: ir.CardinalityMany,
		MinItems:    1,
	}}, rule.Refers)
}

func TestCompileAugmentDefaults(t *testing.T) {
	v := compile(t, `augment: a: {schema: "OrderItem", target: "toView", context: "nested"}`)
	rule, err := CompileAugment(v.LookupPath(cue.ParsePath("augment.a")))
	require.NoError(t, err)

	assert.Equal(t, ir.ContextNested, rule.Context)
	assert.Equal(t, []string{ir.AllFields}, rule.Select)
	assert.Empty(t, rule.Refers)
}

func TestCompileAugmentErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"bad target", `augment: a: {schema: "Order", target: "toDelete"}`, `unknown target "toDelete"`},
		{"bad context", `augment: a: {schema: "Order", target: "toView", context: "deep"}`, `unknown context "deep"`},
		{"missing alias", `augment: a: {schema: "Order", target: "toView", refers: [{schema: "OrderItem"}]}`, "alias is required"},
		{"bad cardinality", `augment: a: {schema: "Order", target: "toView", refers: [{schema: "OrderItem", alias: "i", cardinality: "few"}]}`, `unknown cardinality "few"`},
		{"inverted bounds", `augment: a: {schema: "Order", target: "toView", refers: [{schema: "OrderItem", alias: "i", minItems: 3, maxItems: 2}]}`, "minItems 3 exceeds maxItems 2"},
		{"refers not list", `augment: a: {schema: "Order", target: "toView", refers: {schema: "OrderItem"}}`, "refers must be a list"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := compile(t, tt.src)
			_, err := CompileAugment(v.LookupPath(cue.ParsePath("augment.a")))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
