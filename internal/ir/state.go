package ir

// FieldState is the merged runtime state of one field.
// A nil EnumSubset means the schema's full enum applies.
type FieldState struct {
	Immutable  bool     `json:"immutable,omitempty"`
	Required   bool     `json:"required,omitempty"`
	Hidden     bool     `json:"hidden,omitempty"`
	EnumSubset []string `json:"enumSubset,omitempty"`
}

// IsDefault reports whether the state carries no flags.
func (s FieldState) IsDefault() bool {
	return !s.Immutable && !s.Required && !s.Hidden && s.EnumSubset == nil
}

// CompiledState is the $state of one record. It is recomputed on every
// read or write and never persisted.
type CompiledState struct {
	Fields map[string]FieldState `json:"fields"`
}

// NewCompiledState returns an empty state.
func NewCompiledState() CompiledState {
	return CompiledState{Fields: make(map[string]FieldState)}
}

// Field returns the state of name (the zero FieldState when absent).
func (c CompiledState) Field(name string) FieldState {
	return c.Fields[name]
}

// Empty reports whether no field carries a flag.
func (c CompiledState) Empty() bool {
	return len(c.Fields) == 0
}
