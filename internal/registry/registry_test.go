package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ruleweave/internal/ir"
)

func int64p(v int64) *int64 { return &v }

func orderSchemas() []ir.Schema {
	return []ir.Schema{
		{ID: "Order", Fields: []ir.Field{
			{Name: "status", FieldSpec: ir.FieldSpec{Type: ir.TypeString, Enum: []string{"pending", "in_process", "completed"}}},
			{Name: "note", FieldSpec: ir.FieldSpec{Type: ir.TypeString}},
		}},
		{ID: "OrderItem", Fields: []ir.Field{
			{Name: "order", FieldSpec: ir.FieldSpec{Type: ir.TypeRef, Required: true, Refer: &ir.Refer{Schema: "Order"}}},
			{Name: "status", FieldSpec: ir.FieldSpec{Type: ir.TypeString, Enum: []string{"pending", "in_process", "completed"}}},
			{Name: "quantity", FieldSpec: ir.FieldSpec{Type: ir.TypeInt, Min: int64p(1)}},
		}},
	}
}

func newRegistry(t *testing.T) *Registry {
	t.Helper()
	r := New()
	for _, s := range orderSchemas() {
		require.NoError(t, r.RegisterSchema(s))
	}
	return r
}

func TestRegisterSchema(t *testing.T) {
	r := newRegistry(t)

	s, ok := r.Schema("OrderItem")
	require.True(t, ok)
	assert.Equal(t, []string{"order", "status", "quantity"}, s.FieldNames())

	rels := r.Children("Order")
	require.Len(t, rels, 1)
	assert.Equal(t, ir.Relation{Child: "OrderItem", Parent: "Order", Field: "order", Cardinality: ir.CardinalityMany}, rels[0])

	err := r.RegisterSchema(ir.Schema{ID: "Order"})
	assert.True(t, IsConfigError(err, ErrCodeDuplicateSchema))
}

func TestRegisterSchema_InvalidFieldSpec(t *testing.T) {
	r := New()
	tests := []ir.Schema{
		{ID: "A", Fields: []ir.Field{{Name: "x", FieldSpec: ir.FieldSpec{Type: "float"}}}},
		{ID: "B", Fields: []ir.Field{{Name: "x", FieldSpec: ir.FieldSpec{Type: ir.TypeInt, Enum: []string{"a"}}}}},
		{ID: "C", Fields: []ir.Field{{Name: "x", FieldSpec: ir.FieldSpec{Type: ir.TypeInt, Min: int64p(3), Max: int64p(1)}}}},
		{ID: "D", Fields: []ir.Field{{Name: "x", FieldSpec: ir.FieldSpec{Type: ir.TypeRef}}}},
		{ID: "E", Fields: []ir.Field{{Name: "x", FieldSpec: ir.FieldSpec{Type: ir.TypeInt}}, {Name: "x", FieldSpec: ir.FieldSpec{Type: ir.TypeInt}}}},
	}
	for _, s := range tests {
		err := r.RegisterSchema(s)
		assert.True(t, IsConfigError(err, ErrCodeInvalidSchema), s.ID)
	}
}

func TestSeal_UnknownReferTarget(t *testing.T) {
	r := New()
	require.NoError(t, r.RegisterSchema(ir.Schema{ID: "Item", Fields: []ir.Field{
		{Name: "owner", FieldSpec: ir.FieldSpec{Type: ir.TypeRef, Refer: &ir.Refer{Schema: "Ghost"}}},
	}}))
	assert.True(t, IsConfigError(r.Seal(nil), ErrCodeUnknownSchema))
}

func TestAddReaction_IndexedInRegistrationOrder(t *testing.T) {
	r := newRegistry(t)
	require.NoError(t, r.AddReaction(ir.ReactionRule{
		ID: "first", Schema: "OrderItem", Event: ir.EventModified,
		Conditions: []ir.Condition{{Path: "$modifiedFields", Op: ir.OpIn, Value: ir.Strings("status")}},
		Action:     ir.CustomAction("rollupStatus"),
	}))
	require.NoError(t, r.AddReaction(ir.ReactionRule{
		ID: "second", Schema: "OrderItem", Event: ir.EventModified, Scope: ir.ScopeParent,
		Conditions: []ir.Condition{{Path: "$parent.status", Op: ir.OpEq, Value: ir.String("pending")}},
		Action:     ir.SetAction(ir.Object{"status": ir.String("in_process")}),
	}))

	got := r.Reactions("OrderItem", ir.EventModified)
	require.Len(t, got, 2)
	assert.Equal(t, "first", got[0].Rule.ID)
	assert.Equal(t, ir.ScopeSelf, got[0].Rule.Scope)
	assert.False(t, got[0].UsesParent())
	assert.Equal(t, "second", got[1].Rule.ID)
	assert.True(t, got[1].UsesParent())

	assert.Empty(t, r.Reactions("OrderItem", ir.EventCreated))
	assert.Empty(t, r.Reactions("Order", ir.EventModified))
}

func TestAddReaction_SetExpressions(t *testing.T) {
	r := newRegistry(t)
	require.NoError(t, r.AddReaction(ir.ReactionRule{
		ID: "copy", Schema: "OrderItem", Event: ir.EventModified, Scope: ir.ScopeParent,
		Action: ir.SetAction(ir.Object{"status": ir.String("$eventObject.status"), "note": ir.String("touched")}),
	}))
	rx := r.Reactions("OrderItem", ir.EventModified)[0]
	require.Contains(t, rx.SetExprs, "status")
	assert.Equal(t, "status", rx.SetExprs["status"].Field)
	assert.NotContains(t, rx.SetExprs, "note")
}

func TestAddReaction_LocalAndRelationalConditions(t *testing.T) {
	r := newRegistry(t)
	require.NoError(t, r.AddReaction(ir.ReactionRule{
		ID: "mixed", Schema: "OrderItem", Event: ir.EventModified,
		Conditions: []ir.Condition{
			{Path: "$parent.status", Op: ir.OpEq, Value: ir.String("completed")},
			{Path: "status", Op: ir.OpEq, Value: ir.String("completed")},
		},
		Action: ir.SetAction(ir.Object{"status": ir.String("in_process")}),
	}))
	require.NoError(t, r.AddReaction(ir.ReactionRule{
		ID: "from-child", Schema: "Order", Event: ir.EventModified,
		Conditions: []ir.Condition{{Path: "status", Op: ir.OpEq, Value: ir.String("completed")}},
		Action:     ir.SetAction(ir.Object{"note": ir.String("$child(2).status")}),
	}))

	mixed := r.Reactions("OrderItem", ir.EventModified)[0]
	require.Len(t, mixed.Local, 1)
	assert.Equal(t, "status", mixed.Local[0].Source.Path)
	require.Len(t, mixed.Relational, 1)
	assert.Equal(t, 1, mixed.AncestorDepth)

	fromChild := r.Reactions("Order", ir.EventModified)[0]
	assert.Len(t, fromChild.Local, 1)
	assert.Empty(t, fromChild.Relational)
	assert.Zero(t, fromChild.DescendantDepth)
	assert.Equal(t, 2, fromChild.ValueDescendantDepth)
	assert.False(t, fromChild.UsesChildren())
}

func TestCheckDepthLimits(t *testing.T) {
	r := newRegistry(t)
	require.NoError(t, r.AddReaction(ir.ReactionRule{
		ID: "deep-child", Schema: "Order", Event: ir.EventModified,
		Conditions: []ir.Condition{{Path: "$child(3).status", Op: ir.OpEq, Value: ir.String("completed")}},
		Action:     ir.SetAction(ir.Object{"note": ir.String("x")}),
	}))
	require.NoError(t, r.AddReaction(ir.ReactionRule{
		ID: "any-order", Schema: "OrderItem", Event: ir.EventModified,
		Conditions: []ir.Condition{{Path: "$parent('Order').status", Op: ir.OpEq, Value: ir.String("completed")}},
		Action:     ir.SetAction(ir.Object{"status": ir.String("completed")}),
	}))

	err := r.CheckDepthLimits(8, 2)
	require.Error(t, err)
	assert.True(t, IsConfigError(err, ErrCodeDepthLimit))
	assert.Contains(t, err.Error(), "deep-child")
	assert.Contains(t, err.Error(), "$child(3).status")

	// Schema-restricted hops walk as far as the limit allows.
	assert.NoError(t, r.CheckDepthLimits(1, 3))
}

func TestCheckDepthLimits_SetValues(t *testing.T) {
	r := newRegistry(t)
	require.NoError(t, r.AddReaction(ir.ReactionRule{
		ID: "grandparent-note", Schema: "OrderItem", Event: ir.EventModified, Scope: ir.ScopeParent,
		Action: ir.SetAction(ir.Object{"note": ir.String("$parent(2).note")}),
	}))
	assert.True(t, IsConfigError(r.CheckDepthLimits(1, 2), ErrCodeDepthLimit))
	assert.NoError(t, r.CheckDepthLimits(2, 2))
}

func TestAddReaction_Errors(t *testing.T) {
	tests := []struct {
		name string
		rule ir.ReactionRule
		code ConfigErrorCode
	}{
		{"unknown schema", ir.ReactionRule{Schema: "Ghost", Event: ir.EventCreated, Action: ir.CustomAction("x")}, ErrCodeUnknownSchema},
		{"bad event", ir.ReactionRule{Schema: "Order", Event: "touched", Action: ir.CustomAction("x")}, ErrCodeInvalidRule},
		{"bad path", ir.ReactionRule{Schema: "Order", Event: ir.EventCreated,
			Conditions: []ir.Condition{{Path: "$nope", Op: ir.OpEq, Value: ir.Int(1)}}, Action: ir.CustomAction("x")}, ErrCodeInvalidPath},
		{"unknown hop schema", ir.ReactionRule{Schema: "OrderItem", Event: ir.EventCreated,
			Conditions: []ir.Condition{{Path: "$parent('Ghost').x", Op: ir.OpEq, Value: ir.Int(1)}}, Action: ir.CustomAction("x")}, ErrCodeUnknownSchema},
		{"unknown set target", ir.ReactionRule{Schema: "Order", Event: ir.EventCreated,
			Action: ir.SetAction(ir.Object{"ghost": ir.Int(1)})}, ErrCodeUnknownField},
		{"parent scope without parent", ir.ReactionRule{Schema: "Order", Event: ir.EventCreated, Scope: ir.ScopeParent,
			Action: ir.SetAction(ir.Object{"status": ir.String("x")})}, ErrCodeInvalidRule},
		{"empty custom", ir.ReactionRule{Schema: "Order", Event: ir.EventCreated, Action: ir.CustomAction(" ")}, ErrCodeInvalidRule},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newRegistry(t)
			assert.True(t, IsConfigError(r.AddReaction(tt.rule), tt.code), "want %s", tt.code)
		})
	}
}

func TestSeal_UnknownCustomAction(t *testing.T) {
	r := newRegistry(t)
	require.NoError(t, r.AddReaction(ir.ReactionRule{
		ID: "rollup", Schema: "OrderItem", Event: ir.EventModified, Action: ir.CustomAction("rollupStatus"),
	}))
	known := func(name string) bool { return name == "cascadeStatus" }
	assert.True(t, IsConfigError(r.Seal(known), ErrCodeUnknownAction))
	assert.False(t, r.Sealed())

	require.NoError(t, r.Seal(func(string) bool { return true }))
	assert.True(t, r.Sealed())

	err := r.AddState(ir.StateRule{Schema: "Order", Effect: ir.StateEffect{OnFields: []string{"note"}, StateFlags: ir.StateFlags{Hidden: true}}})
	assert.True(t, IsConfigError(err, ErrCodeSealed))
}

func TestAddState(t *testing.T) {
	r := newRegistry(t)
	require.NoError(t, r.AddState(ir.StateRule{
		ID: "lock-quantity", Schema: "OrderItem",
		Conditions: []ir.Condition{{Path: "status", Op: ir.OpIn, Value: ir.Strings("in_process", "completed")}},
		Effect:     ir.StateEffect{OnFields: []string{"quantity"}, StateFlags: ir.StateFlags{Immutable: true}},
	}))
	require.NoError(t, r.AddState(ir.StateRule{
		ID: "parent-completed", Schema: "OrderItem",
		Conditions: []ir.Condition{{Path: "$parent.status", Op: ir.OpEq, Value: ir.String("completed")}},
		Effect:     ir.StateEffect{OnFields: []string{ir.AllFields}, StateFlags: ir.StateFlags{Immutable: true}},
	}))

	assert.Len(t, r.States("OrderItem"), 2)
	assert.Equal(t, 1, r.AncestorDepth("OrderItem"))
	assert.Equal(t, 0, r.DescendantDepth("OrderItem"))
	assert.Equal(t, 0, r.AncestorDepth("Order"))
}

func TestAddState_Errors(t *testing.T) {
	tests := []struct {
		name string
		rule ir.StateRule
		code ConfigErrorCode
	}{
		{"no fields", ir.StateRule{Schema: "Order", Effect: ir.StateEffect{StateFlags: ir.StateFlags{Hidden: true}}}, ErrCodeInvalidRule},
		{"unknown field", ir.StateRule{Schema: "Order", Effect: ir.StateEffect{OnFields: []string{"ghost"}}}, ErrCodeUnknownField},
		{"required and hidden", ir.StateRule{Schema: "Order", Effect: ir.StateEffect{OnFields: []string{"note"},
			StateFlags: ir.StateFlags{Required: true, Hidden: true}}}, ErrCodeContradictoryFlags},
		{"enum subset outside enum", ir.StateRule{Schema: "Order", Effect: ir.StateEffect{OnFields: []string{"status"},
			StateFlags: ir.StateFlags{EnumSubset: []string{"shipped"}}}}, ErrCodeInvalidEnumSubset},
		{"enum subset wildcard", ir.StateRule{Schema: "Order", Effect: ir.StateEffect{OnFields: []string{"*"},
			StateFlags: ir.StateFlags{EnumSubset: []string{"pending"}}}}, ErrCodeInvalidEnumSubset},
		{"enum subset on int", ir.StateRule{Schema: "OrderItem", Effect: ir.StateEffect{OnFields: []string{"quantity"},
			StateFlags: ir.StateFlags{EnumSubset: []string{"1"}}}}, ErrCodeInvalidEnumSubset},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newRegistry(t)
			assert.True(t, IsConfigError(r.AddState(tt.rule), tt.code), "want %s", tt.code)
		})
	}
}

func TestAddAugmentation(t *testing.T) {
	r := newRegistry(t)
	require.NoError(t, r.AddAugmentation(ir.AugmentationRule{
		Schema: "Order", Target: ir.TargetCreate,
		Select: []string{"!note"},
		Refers: []ir.ChildRequirement{{Schema: "OrderItem", Alias: "items", MinItems: 1}},
	}))

	a, ok := r.Augmentation("Order", ir.TargetCreate, ir.ContextSelf)
	require.True(t, ok)
	assert.Equal(t, ir.CardinalityMany, a.Refers[0].Cardinality)
	_, ok = r.Augmentation("Order", ir.TargetCreate, ir.ContextNested)
	assert.False(t, ok)

	err := r.AddAugmentation(ir.AugmentationRule{Schema: "Order", Target: ir.TargetCreate, Context: ir.ContextSelf})
	assert.True(t, IsConfigError(err, ErrCodeDuplicateAugment))

	require.NoError(t, r.AddAugmentation(ir.AugmentationRule{Schema: "Order", Target: ir.TargetCreate, Context: ir.ContextNested}))
}

func TestAddAugmentation_Errors(t *testing.T) {
	tests := []struct {
		name string
		rule ir.AugmentationRule
		code ConfigErrorCode
	}{
		{"mixed select", ir.AugmentationRule{Schema: "Order", Target: ir.TargetView, Select: []string{"!note", "status"}}, ErrCodeInvalidAugmentSelect},
		{"unknown select field", ir.AugmentationRule{Schema: "Order", Target: ir.TargetView, Select: []string{"ghost"}}, ErrCodeUnknownField},
		{"child does not refer", ir.AugmentationRule{Schema: "OrderItem", Target: ir.TargetCreate,
			Refers: []ir.ChildRequirement{{Schema: "Order"}}}, ErrCodeInvalidRule},
		{"min over max", ir.AugmentationRule{Schema: "Order", Target: ir.TargetCreate,
			Refers: []ir.ChildRequirement{{Schema: "OrderItem", MinItems: 3, MaxItems: 2}}}, ErrCodeInvalidRule},
		{"alias collides with field", ir.AugmentationRule{Schema: "Order", Target: ir.TargetCreate,
			Refers: []ir.ChildRequirement{{Schema: "OrderItem", Alias: "note"}}}, ErrCodeInvalidRule},
		{"bad target", ir.AugmentationRule{Schema: "Order", Target: "toDelete"}, ErrCodeInvalidRule},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newRegistry(t)
			assert.True(t, IsConfigError(r.AddAugmentation(tt.rule), tt.code), "want %s", tt.code)
		})
	}
}

func TestSelectFields(t *testing.T) {
	s, _ := newRegistry(t).Schema("OrderItem")
	assert.Equal(t, []string{"order", "status", "quantity"}, SelectFields(s, []string{"*"}))
	assert.Equal(t, []string{"order", "quantity"}, SelectFields(s, []string{"!status"}))
	assert.Equal(t, []string{"status", "quantity"}, SelectFields(s, []string{"quantity", "status"}))
}
