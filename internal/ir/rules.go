package ir

// Operator is a condition comparison operator.
type Operator string

const (
	OpEq    Operator = "eq"
	OpNeq   Operator = "neq"
	OpIn    Operator = "in"
	OpNotIn Operator = "notIn"
	OpLt    Operator = "lt"
	OpLte   Operator = "lte"
	OpGt    Operator = "gt"
	OpGte   Operator = "gte"
)

// ValidOperators lists accepted operators.
var ValidOperators = map[Operator]bool{
	OpEq: true, OpNeq: true, OpIn: true, OpNotIn: true,
	OpLt: true, OpLte: true, OpGt: true, OpGte: true,
}

// Condition tests the value at Path against Value.
type Condition struct {
	Path  string   `json:"path"`
	Op    Operator `json:"op"`
	Value Value    `json:"value"`
}

// Scope selects the record(s) a reaction's action targets,
// relative to the record that triggered it.
type Scope string

const (
	ScopeSelf   Scope = "self"
	ScopeParent Scope = "parent"
	ScopeChild  Scope = "child"
)

// ValidScopes lists accepted scopes.
var ValidScopes = map[Scope]bool{
	ScopeSelf:   true,
	ScopeParent: true,
	ScopeChild:  true,
}

// ActionKind tags the Action variant.
type ActionKind string

const (
	ActionSet    ActionKind = "set"
	ActionCustom ActionKind = "custom"
)

// Action is a tagged variant. For ActionSet, Set maps target field to a
// value expression: a String starting with "$" is a path expression,
// anything else is a literal. For ActionCustom, Custom names a function in
// the custom-action registry.
type Action struct {
	Kind   ActionKind `json:"kind"`
	Set    Object     `json:"set,omitempty"`
	Custom string     `json:"custom,omitempty"`
}

// SetAction builds a set action.
func SetAction(fields Object) Action {
	return Action{Kind: ActionSet, Set: fields}
}

// CustomAction builds a custom action.
func CustomAction(name string) Action {
	return Action{Kind: ActionCustom, Custom: name}
}

// ReactionRule fires an action when a mutation of Schema with kind Event
// satisfies every condition.
type ReactionRule struct {
	ID         string      `json:"id"`
	Schema     string      `json:"schema"`
	Scope      Scope       `json:"scope"`
	Event      EventKind   `json:"event"`
	Conditions []Condition `json:"conditions,omitempty"`
	Action     Action      `json:"action"`
}

// StateFlags are the per-field flags a state rule can assert.
// A false flag and a nil EnumSubset mean "no opinion".
type StateFlags struct {
	Immutable  bool     `json:"immutable,omitempty"`
	Required   bool     `json:"required,omitempty"`
	Hidden     bool     `json:"hidden,omitempty"`
	EnumSubset []string `json:"enumSubset,omitempty"`
}

// AllFields is the onFields wildcard.
const AllFields = "*"

// StateEffect applies Flags to OnFields (field names or "*").
type StateEffect struct {
	OnFields []string `json:"onFields"`
	StateFlags
}

// StateRule applies its effect when all conditions hold.
type StateRule struct {
	ID         string      `json:"id"`
	Schema     string      `json:"schema"`
	Conditions []Condition `json:"conditions,omitempty"`
	Effect     StateEffect `json:"effect"`
}

// Target is the operation an augmentation rule shapes.
type Target string

const (
	TargetCreate Target = "toCreate"
	TargetView   Target = "toView"
	TargetEdit   Target = "toEdit"
)

// ValidTargets lists accepted targets.
var ValidTargets = map[Target]bool{
	TargetCreate: true,
	TargetView:   true,
	TargetEdit:   true,
}

// Context distinguishes a direct operation from one nested inside a
// parent's augmentation.
type Context string

const (
	ContextSelf   Context = "slf"
	ContextNested Context = "nested"
)

// ValidContexts lists accepted contexts.
var ValidContexts = map[Context]bool{
	ContextSelf:   true,
	ContextNested: true,
}

// ChildRequirement is one referenced schema an augmentation composes in.
type ChildRequirement struct {
	Schema         string      `json:"schema"`
	Alias          string      `json:"alias"`
	Cardinality    Cardinality `json:"cardinality"`
	MinItems       int         `json:"minItems,omitempty"`
	MaxItems       int         `json:"maxItems,omitempty"` // 0 = unbounded
	Required       bool        `json:"required,omitempty"`
	RequiredFields []string    `json:"requiredFields,omitempty"`
}

// AugmentationRule shapes one (schema, target, context) operation.
// Select is "*", a list of "!field" exclusions, or an explicit field list.
type AugmentationRule struct {
	ID      string             `json:"id"`
	Schema  string             `json:"schema"`
	Target  Target             `json:"target"`
	Context Context            `json:"context"`
	Select  []string           `json:"select"`
	Refers  []ChildRequirement `json:"refers,omitempty"`
}

// Contract is the combined shape of an operation: the own fields it
// accepts or returns plus the child payloads it requires.
type Contract struct {
	Schema   string             `json:"schema"`
	Target   Target             `json:"target"`
	Context  Context            `json:"context"`
	Fields   []string           `json:"fields"`
	Children []ChildRequirement `json:"children,omitempty"`
}

// HasField reports whether name is in the contract's own selection.
func (c Contract) HasField(name string) bool {
	for _, f := range c.Fields {
		if f == name {
			return true
		}
	}
	return false
}

// Child returns the requirement registered under alias.
func (c Contract) Child(alias string) (ChildRequirement, bool) {
	for _, ch := range c.Children {
		if ch.Alias == alias {
			return ch, true
		}
	}
	return ChildRequirement{}, false
}
