package ir

// FieldType names the value kind a field accepts.
type FieldType string

const (
	TypeString FieldType = "string"
	TypeInt    FieldType = "int"
	TypeBool   FieldType = "bool"
	TypeList   FieldType = "list"
	TypeObject FieldType = "object"
	// TypeRef holds the id of a record in the referred schema.
	TypeRef FieldType = "ref"
)

// ValidTypes lists accepted field types.
var ValidTypes = map[FieldType]bool{
	TypeString: true,
	TypeInt:    true,
	TypeBool:   true,
	TypeList:   true,
	TypeObject: true,
	TypeRef:    true,
}

// Cardinality of a relation seen from the parent side.
type Cardinality string

const (
	CardinalityMany Cardinality = "many"
	CardinalityOne  Cardinality = "one"
)

// Refer marks a field as a reference to a parent record.
type Refer struct {
	Schema string `json:"schema"`
}

// FieldSpec constrains a single field.
type FieldSpec struct {
	Type     FieldType `json:"type"`
	Required bool      `json:"required,omitempty"`
	Default  Value     `json:"default,omitempty"`
	Enum     []string  `json:"enum,omitempty"`
	Min      *int64    `json:"min,omitempty"`
	Max      *int64    `json:"max,omitempty"`
	Refer    *Refer    `json:"refer,omitempty"`
	Unique   bool      `json:"unique,omitempty"`
}

// Field is a named FieldSpec. Schemas keep fields in declaration order.
type Field struct {
	Name string `json:"name"`
	FieldSpec
}

// Schema is a registered record shape.
type Schema struct {
	ID     string  `json:"id"`
	Fields []Field `json:"fields"`
}

// Field looks up a field by name.
func (s *Schema) Field(name string) (Field, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// HasField reports whether the schema declares name.
func (s *Schema) HasField(name string) bool {
	_, ok := s.Field(name)
	return ok
}

// FieldNames returns field names in declaration order.
func (s *Schema) FieldNames() []string {
	names := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		names[i] = f.Name
	}
	return names
}

// ParentRefs returns the referring fields in declaration order.
// Each one is a child→parent edge.
func (s *Schema) ParentRefs() []Field {
	var refs []Field
	for _, f := range s.Fields {
		if f.Refer != nil {
			refs = append(refs, f)
		}
	}
	return refs
}

// RefTo returns the first field referring to parent.
func (s *Schema) RefTo(parent string) (Field, bool) {
	for _, f := range s.Fields {
		if f.Refer != nil && f.Refer.Schema == parent {
			return f, true
		}
	}
	return Field{}, false
}

// Relation is the derived edge from a referring field.
type Relation struct {
	Child       string      `json:"child"`
	Parent      string      `json:"parent"`
	Field       string      `json:"field"`
	Cardinality Cardinality `json:"cardinality"`
}

// Relations derives the child→parent relations declared by s.
// A unique referring field yields cardinality one; otherwise many.
func (s *Schema) Relations() []Relation {
	var rels []Relation
	for _, f := range s.ParentRefs() {
		card := CardinalityMany
		if f.Unique {
			card = CardinalityOne
		}
		rels = append(rels, Relation{
			Child:       s.ID,
			Parent:      f.Refer.Schema,
			Field:       f.Name,
			Cardinality: card,
		})
	}
	return rels
}
