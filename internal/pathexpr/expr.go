package pathexpr

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Selector is the leading part of an expression.
type Selector int

const (
	SelectEventObject Selector = iota + 1
	SelectModified
	SelectParent
	SelectChild
)

func (s Selector) String() string {
	switch s {
	case SelectEventObject:
		return "$eventObject"
	case SelectModified:
		return "$modifiedFields"
	case SelectParent:
		return "$parent"
	case SelectChild:
		return "$child"
	default:
		return fmt.Sprintf("Selector(%d)", int(s))
	}
}

// Expr is a parsed path expression.
type Expr struct {
	Source   string
	Selector Selector
	// Schema restricts a $parent/$child hop to records of that schema.
	Schema string
	// N is the 1-based hop index for $parent/$child.
	N int
	// Field is the dotted field path; empty means the whole record.
	Field string
}

var (
	hopPattern   = regexp.MustCompile(`^\$(parent|child)(?:\(\s*(?:'([^']+)'\s*(?:,\s*(\d+)\s*)?|(\d+)\s*)\))?(?:\.(.+))?$`)
	fieldPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(?:\.[A-Za-z_][A-Za-z0-9_]*)*$`)
)

// SyntaxError reports an unparseable expression.
type SyntaxError struct {
	Expr    string
	Message string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("path %q: %s", e.Expr, e.Message)
}

// Parse turns an expression string into an Expr.
func Parse(src string) (Expr, error) {
	s := strings.TrimSpace(src)
	if s == "" {
		return Expr{}, &SyntaxError{Expr: src, Message: "empty expression"}
	}

	if !strings.HasPrefix(s, "$") {
		if !fieldPattern.MatchString(s) {
			return Expr{}, &SyntaxError{Expr: src, Message: "invalid field path"}
		}
		return Expr{Source: src, Selector: SelectEventObject, Field: s}, nil
	}

	switch {
	case s == "$modifiedFields":
		return Expr{Source: src, Selector: SelectModified}, nil
	case strings.HasPrefix(s, "$modifiedFields"):
		return Expr{}, &SyntaxError{Expr: src, Message: "$modifiedFields takes no field suffix"}
	case s == "$eventObject":
		return Expr{Source: src, Selector: SelectEventObject}, nil
	case strings.HasPrefix(s, "$eventObject."):
		field := strings.TrimPrefix(s, "$eventObject.")
		if !fieldPattern.MatchString(field) {
			return Expr{}, &SyntaxError{Expr: src, Message: "invalid field path"}
		}
		return Expr{Source: src, Selector: SelectEventObject, Field: field}, nil
	}

	m := hopPattern.FindStringSubmatch(s)
	if m == nil {
		return Expr{}, &SyntaxError{Expr: src, Message: "unknown selector"}
	}

	e := Expr{Source: src, Selector: SelectParent, N: 1, Schema: m[2]}
	if m[1] == "child" {
		e.Selector = SelectChild
	}
	idx := m[3]
	if idx == "" {
		idx = m[4]
	}
	if idx != "" {
		n, err := strconv.Atoi(idx)
		if err != nil || n < 1 {
			return Expr{}, &SyntaxError{Expr: src, Message: "hop index must be a positive integer"}
		}
		e.N = n
	}
	if m[5] != "" {
		if !fieldPattern.MatchString(m[5]) {
			return Expr{}, &SyntaxError{Expr: src, Message: "invalid field path"}
		}
		e.Field = m[5]
	}
	return e, nil
}

// MustParse is Parse that panics on error. For tests and static tables.
func MustParse(src string) Expr {
	e, err := Parse(src)
	if err != nil {
		panic(err)
	}
	return e
}

// IsExpression reports whether a set-action value should be parsed as a
// path rather than used as a literal.
func IsExpression(s string) bool {
	return strings.HasPrefix(s, "$")
}

// String renders the expression in canonical form.
func (e Expr) String() string {
	var b strings.Builder
	b.WriteString(e.Selector.String())
	if e.Selector == SelectParent || e.Selector == SelectChild {
		switch {
		case e.Schema != "":
			fmt.Fprintf(&b, "('%s', %d)", e.Schema, e.N)
		case e.N != 1:
			fmt.Fprintf(&b, "(%d)", e.N)
		}
	}
	if e.Field != "" {
		b.WriteByte('.')
		b.WriteString(e.Field)
	}
	return b.String()
}

// RootField returns the first segment of the field path.
func (e Expr) RootField() string {
	root, _, _ := strings.Cut(e.Field, ".")
	return root
}

// AncestorDepth is the number of ancestor levels resolution may need.
// Schema-restricted hops cannot be bounded statically and report -1.
func (e Expr) AncestorDepth() int {
	if e.Selector != SelectParent {
		return 0
	}
	if e.Schema != "" {
		return -1
	}
	return e.N
}

// DescendantDepth mirrors AncestorDepth for $child hops.
func (e Expr) DescendantDepth() int {
	if e.Selector != SelectChild {
		return 0
	}
	if e.Schema != "" {
		return -1
	}
	return e.N
}
