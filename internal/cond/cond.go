// Package cond compiles and evaluates rule conditions.
//
// A condition is a (path, operator, value) triple. Conditions are compiled
// once at registration time so that path syntax errors surface early and
// evaluation never re-parses. Evaluation is pure: it reads only the
// pathexpr.Context it is given.
//
// Semantics:
//   - A path that does not resolve makes the condition false, whatever the
//     operator (including neq and notIn).
//   - eq/neq compare by canonical value equality.
//   - in/notIn take a list operand. When the resolved value is itself a
//     list, in holds if the two lists intersect and notIn holds if they
//     are disjoint.
//   - lt/lte/gt/gte order Int against Int or String against String.
//     Any other combination is false.
package cond

import (
	"fmt"

	"github.com/roach88/ruleweave/internal/ir"
	"github.com/roach88/ruleweave/internal/pathexpr"
)

// Compiled is a condition ready for evaluation.
type Compiled struct {
	Source ir.Condition
	Path   pathexpr.Expr
	list   []string // canonical keys of the operand for in/notIn
}

// Error reports a condition that cannot be compiled.
type Error struct {
	Path    string
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("condition on %q: %s", e.Path, e.Message)
}

// Compile parses the condition's path and checks the operator and operand.
func Compile(c ir.Condition) (Compiled, error) {
	if !ir.ValidOperators[c.Op] {
		return Compiled{}, &Error{Path: c.Path, Message: fmt.Sprintf("unknown operator %q", c.Op)}
	}
	expr, err := pathexpr.Parse(c.Path)
	if err != nil {
		return Compiled{}, &Error{Path: c.Path, Message: err.Error()}
	}
	if c.Value == nil {
		return Compiled{}, &Error{Path: c.Path, Message: "missing value"}
	}

	out := Compiled{Source: c, Path: expr}
	switch c.Op {
	case ir.OpIn, ir.OpNotIn:
		list, ok := c.Value.(ir.List)
		if !ok {
			return Compiled{}, &Error{Path: c.Path, Message: fmt.Sprintf("%s requires a list value", c.Op)}
		}
		out.list = make([]string, len(list))
		for i, v := range list {
			out.list[i] = ir.Key(v)
		}
	case ir.OpLt, ir.OpLte, ir.OpGt, ir.OpGte:
		switch c.Value.(type) {
		case ir.Int, ir.String:
		default:
			return Compiled{}, &Error{Path: c.Path, Message: fmt.Sprintf("%s requires an int or string value", c.Op)}
		}
	}
	return out, nil
}

// CompileAll compiles every condition, stopping at the first error.
func CompileAll(cs []ir.Condition) ([]Compiled, error) {
	out := make([]Compiled, 0, len(cs))
	for _, c := range cs {
		cc, err := Compile(c)
		if err != nil {
			return nil, err
		}
		out = append(out, cc)
	}
	return out, nil
}

// Eval evaluates the condition against ctx.
func (c Compiled) Eval(ctx *pathexpr.Context) bool {
	got, ok := c.Path.Resolve(ctx)
	if !ok {
		return false
	}

	switch c.Source.Op {
	case ir.OpEq:
		return ir.Equal(got, c.Source.Value)
	case ir.OpNeq:
		return !ir.Equal(got, c.Source.Value)
	case ir.OpIn:
		return c.intersects(got)
	case ir.OpNotIn:
		return !c.intersects(got)
	case ir.OpLt, ir.OpLte, ir.OpGt, ir.OpGte:
		n, ok := ir.Compare(got, c.Source.Value)
		if !ok {
			return false
		}
		switch c.Source.Op {
		case ir.OpLt:
			return n < 0
		case ir.OpLte:
			return n <= 0
		case ir.OpGt:
			return n > 0
		default:
			return n >= 0
		}
	}
	return false
}

func (c Compiled) intersects(got ir.Value) bool {
	if l, ok := got.(ir.List); ok {
		for _, v := range l {
			if c.contains(ir.Key(v)) {
				return true
			}
		}
		return false
	}
	return c.contains(ir.Key(got))
}

func (c Compiled) contains(key string) bool {
	for _, k := range c.list {
		if k == key {
			return true
		}
	}
	return false
}

// All reports whether every condition holds. An empty list holds.
func All(cs []Compiled, ctx *pathexpr.Context) bool {
	for _, c := range cs {
		if !c.Eval(ctx) {
			return false
		}
	}
	return true
}

// Relational reports whether the condition reads $parent or $child
// records, which must be loaded before it can be evaluated.
func (c Compiled) Relational() bool {
	return c.Path.AncestorDepth() != 0 || c.Path.DescendantDepth() != 0
}

// Split partitions cs into conditions over the event alone and relational
// ones, keeping their order.
func Split(cs []Compiled) (local, relational []Compiled) {
	for _, c := range cs {
		if c.Relational() {
			relational = append(relational, c)
		} else {
			local = append(local, c)
		}
	}
	return local, relational
}

// MaxAncestorDepth returns the deepest $parent hop used by cs.
// -1 means a schema-restricted hop needs the full ancestor chain.
func MaxAncestorDepth(cs []Compiled) int {
	deepest := 0
	for _, c := range cs {
		d := c.Path.AncestorDepth()
		if d < 0 {
			return -1
		}
		if d > deepest {
			deepest = d
		}
	}
	return deepest
}

// MaxDescendantDepth mirrors MaxAncestorDepth for $child hops.
func MaxDescendantDepth(cs []Compiled) int {
	deepest := 0
	for _, c := range cs {
		d := c.Path.DescendantDepth()
		if d < 0 {
			return -1
		}
		if d > deepest {
			deepest = d
		}
	}
	return deepest
}
