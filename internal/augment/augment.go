// Package augment composes the combined contract of a create, view or edit
// operation and validates payloads against it.
//
// A payload is an ir.Object holding the schema's own fields plus one key
// per child requirement alias. A child of cardinality many is a List of
// Objects; a child of cardinality one is an Object.
//
// Validation has two layers and both must pass:
//
//   - combined: the payload's shape against the contract, i.e. selected
//     fields only, child counts within minItems/maxItems, child
//     requiredFields present. Children are checked against their own
//     nested contract.
//   - schema: each record in the payload (parent and every child) against
//     its own FieldSpecs.
//
// The combined layer runs over the whole tree first; per-schema validation
// only runs when it passed.
package augment

import (
	"errors"
	"fmt"

	"github.com/roach88/ruleweave/internal/ir"
	"github.com/roach88/ruleweave/internal/registry"
	"github.com/roach88/ruleweave/internal/validation"
)

// Layer names the validation layer that failed.
type Layer string

const (
	LayerCombined Layer = "combined"
	LayerSchema   Layer = "schema"
)

// ValidationError reports every violation found by one layer.
type ValidationError struct {
	Layer  Layer
	Schema string
	Errors ir.ValidationErrors
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s validation of %s failed: %s", e.Layer, e.Schema, e.Errors.Error())
}

// IsValidation reports whether err is a ValidationError of layer.
// An empty layer matches either.
func IsValidation(err error, layer Layer) bool {
	var ve *ValidationError
	if !errors.As(err, &ve) {
		return false
	}
	return layer == "" || ve.Layer == layer
}

// Composer resolves augmentation rules from a sealed registry.
type Composer struct {
	reg       *registry.Registry
	validator *validation.Validator
}

// NewComposer returns a Composer for reg.
func NewComposer(reg *registry.Registry) *Composer {
	return &Composer{reg: reg, validator: validation.New(reg)}
}

// Compose returns the combined contract for (schemaID, target, ctx).
//
// A nested context falls back to the slf rule when no nested rule is
// registered, and with no rule at all the contract is every own field
// and no child requirements.
func (c *Composer) Compose(schemaID string, target ir.Target, ctx ir.Context) (ir.Contract, error) {
	s, ok := c.reg.Schema(schemaID)
	if !ok {
		return ir.Contract{}, fmt.Errorf("compose: unknown schema %q", schemaID)
	}
	if !ir.ValidTargets[target] {
		return ir.Contract{}, fmt.Errorf("compose: unknown target %q", target)
	}
	if ctx == "" {
		ctx = ir.ContextSelf
	}
	if !ir.ValidContexts[ctx] {
		return ir.Contract{}, fmt.Errorf("compose: unknown context %q", ctx)
	}

	contract := ir.Contract{Schema: schemaID, Target: target, Context: ctx}
	rule, ok := c.reg.Augmentation(schemaID, target, ctx)
	if !ok && ctx == ir.ContextNested {
		rule, ok = c.reg.Augmentation(schemaID, target, ir.ContextSelf)
	}
	if !ok {
		contract.Fields = s.FieldNames()
		return contract, nil
	}
	contract.Fields = registry.SelectFields(s, rule.Select)
	contract.Children = append([]ir.ChildRequirement(nil), rule.Refers...)
	return contract, nil
}

// Split separates a payload into own fields and child payloads keyed by
// alias. Child payloads of cardinality one become a single-element slice.
// Split assumes the payload passed the combined layer.
func Split(contract ir.Contract, payload ir.Object) (ir.Object, map[string][]ir.Object) {
	own := make(ir.Object, len(payload))
	children := make(map[string][]ir.Object)
	for key, v := range payload {
		if _, isChild := contract.Child(key); !isChild {
			own[key] = v
			continue
		}
		children[key] = childItems(v)
	}
	return own, children
}

func childItems(v ir.Value) []ir.Object {
	switch val := v.(type) {
	case ir.Object:
		return []ir.Object{val}
	case ir.List:
		out := make([]ir.Object, 0, len(val))
		for _, item := range val {
			if obj, ok := item.(ir.Object); ok {
				out = append(out, obj)
			}
		}
		return out
	}
	return nil
}
