package augment

import (
	"fmt"

	"github.com/roach88/ruleweave/internal/ir"
)

// Validate checks payload for (schemaID, target, ctx) with both layers.
// toCreate validates records as creates; toEdit validates a partial payload
// as an update, where absent children are not required.
func (c *Composer) Validate(schemaID string, target ir.Target, ctx ir.Context, payload ir.Object) error {
	contract, err := c.Compose(schemaID, target, ctx)
	if err != nil {
		return err
	}

	var combined ir.ValidationErrors
	if err := c.combined(contract, payload, "", &combined); err != nil {
		return err
	}
	if len(combined) > 0 {
		return &ValidationError{Layer: LayerCombined, Schema: schemaID, Errors: combined}
	}

	var perSchema ir.ValidationErrors
	if err := c.perSchema(contract, payload, "", "", &perSchema); err != nil {
		return err
	}
	if len(perSchema) > 0 {
		return &ValidationError{Layer: LayerSchema, Schema: schemaID, Errors: perSchema}
	}
	return nil
}

// combined checks the payload shape against contract. prefix locates
// nested payloads in error field names ("items[0].sku").
func (c *Composer) combined(contract ir.Contract, payload ir.Object, prefix string, errs *ir.ValidationErrors) error {
	s, _ := c.reg.Schema(contract.Schema)
	partial := contract.Target == ir.TargetEdit

	for _, key := range payload.SortedKeys() {
		if contract.HasField(key) {
			continue
		}
		if _, isChild := contract.Child(key); isChild {
			continue
		}
		if s.HasField(key) {
			errs.Add(prefix+key, ir.CodeNotSelected, "field is not selected for %s(%s)", contract.Target, contract.Context)
		} else {
			errs.Add(prefix+key, ir.CodeUnknownField, "unknown field '%s' - not defined in schema %s", key, contract.Schema)
		}
	}

	for _, req := range contract.Children {
		name := prefix + req.Alias
		raw, present := payload[req.Alias]
		if !present || ir.IsNull(raw) {
			if partial {
				continue
			}
			if req.MinItems > 0 {
				errs.Add(name, ir.CodeMinItems, "at least %d %s required, got 0", req.MinItems, req.Schema)
			} else if req.Required {
				errs.Add(name, ir.CodeRequired, "%s is required", req.Schema)
			}
			continue
		}

		items, ok := shapeItems(req, raw)
		if !ok {
			if req.Cardinality == ir.CardinalityOne {
				errs.Add(name, ir.CodeCardinality, "must be a single %s object", req.Schema)
			} else {
				errs.Add(name, ir.CodeType, "must be a list of %s objects", req.Schema)
			}
			continue
		}
		if len(items) < req.MinItems {
			errs.Add(name, ir.CodeMinItems, "at least %d %s required, got %d", req.MinItems, req.Schema, len(items))
		}
		if req.MaxItems > 0 && len(items) > req.MaxItems {
			errs.Add(name, ir.CodeMaxItems, "at most %d %s allowed, got %d", req.MaxItems, req.Schema, len(items))
		}

		nested, err := c.Compose(req.Schema, contract.Target, ir.ContextNested)
		if err != nil {
			return err
		}
		child, _ := c.reg.Schema(req.Schema)
		refField, _ := child.RefTo(contract.Schema)
		for i, item := range items {
			itemPrefix := itemName(name, req, i)
			for _, f := range req.RequiredFields {
				if v, has := item[f]; !has || ir.IsNull(v) {
					errs.Add(itemPrefix+"."+f, ir.CodeRequired, "field is required by %s", contract.Schema)
				}
			}
			// The reference to the parent is filled in on persist.
			if _, has := item[refField.Name]; has && !nested.HasField(refField.Name) {
				errs.Add(itemPrefix+"."+refField.Name, ir.CodeNotSelected, "reference to %s is set by the parent", contract.Schema)
			}
			scrubbed := item.Clone()
			delete(scrubbed, refField.Name)
			if err := c.combined(nested, scrubbed, itemPrefix+".", errs); err != nil {
				return err
			}
		}
	}
	return nil
}

// perSchema validates every record in the payload against its FieldSpecs.
// parentRef names the child field that will reference the parent on
// persist; it gets a placeholder so the required check passes.
func (c *Composer) perSchema(contract ir.Contract, payload ir.Object, prefix, parentRef string, errs *ir.ValidationErrors) error {
	own, children := Split(contract, payload)
	if parentRef != "" {
		if _, has := own[parentRef]; !has {
			own[parentRef] = ir.String("<parent>")
		}
	}

	var found ir.ValidationErrors
	if contract.Target == ir.TargetEdit {
		found = c.validator.ValidateUpdate(contract.Schema, own)
	} else {
		found = c.validator.ValidateCreate(contract.Schema, own)
	}
	for _, e := range found {
		e.Field = prefix + e.Field
		*errs = append(*errs, e)
	}

	for _, req := range contract.Children {
		items := children[req.Alias]
		if len(items) == 0 {
			continue
		}
		nested, err := c.Compose(req.Schema, contract.Target, ir.ContextNested)
		if err != nil {
			return err
		}
		child, _ := c.reg.Schema(req.Schema)
		refField, _ := child.RefTo(contract.Schema)
		for i, item := range items {
			if err := c.perSchema(nested, item, itemName(prefix+req.Alias, req, i)+".", refField.Name, errs); err != nil {
				return err
			}
		}
	}
	return nil
}

func shapeItems(req ir.ChildRequirement, raw ir.Value) ([]ir.Object, bool) {
	switch val := raw.(type) {
	case ir.Object:
		if req.Cardinality != ir.CardinalityOne {
			return nil, false
		}
		return []ir.Object{val}, true
	case ir.List:
		if req.Cardinality == ir.CardinalityOne {
			return nil, false
		}
		out := make([]ir.Object, len(val))
		for i, item := range val {
			obj, ok := item.(ir.Object)
			if !ok {
				return nil, false
			}
			out[i] = obj
		}
		return out, true
	}
	return nil, false
}

func itemName(name string, req ir.ChildRequirement, i int) string {
	if req.Cardinality == ir.CardinalityOne {
		return name
	}
	return fmt.Sprintf("%s[%d]", name, i)
}
