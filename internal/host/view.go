package host

import (
	"context"

	"github.com/roach88/ruleweave/internal/access"
	"github.com/roach88/ruleweave/internal/ir"
	"github.com/roach88/ruleweave/internal/state"
)

// View is a record as returned to a reader: the toView selection without
// hidden fields, plus the record's compiled state.
type View struct {
	ID       string            `json:"id"`
	Schema   string            `json:"schema"`
	Fields   ir.Object         `json:"fields"`
	State    ir.CompiledState  `json:"$state"`
	Children map[string][]View `json:"children,omitempty"`
}

// View loads a record and shapes it by its toView contract. Child
// requirements of the contract are loaded and shaped by their nested
// toView contract.
func (h *Host) View(ctx context.Context, schemaID, id string) (*View, error) {
	rec, err := h.store.Get(ctx, schemaID, id)
	if err != nil {
		return nil, err
	}
	contract, err := h.composer.Compose(schemaID, ir.TargetView, ir.ContextSelf)
	if err != nil {
		return nil, err
	}
	v, err := h.view(ctx, h.store, contract, rec)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func (h *Host) view(ctx context.Context, da access.DataAccess, contract ir.Contract, rec ir.Record) (View, error) {
	st, err := h.compile(ctx, da, rec)
	if err != nil {
		return View{}, err
	}
	selected := make(ir.Object, len(contract.Fields))
	for _, name := range contract.Fields {
		if v, ok := rec.Fields[name]; ok {
			selected[name] = v
		}
	}
	out := View{ID: rec.ID, Schema: rec.Schema, Fields: state.Visible(st, selected), State: st}
	if len(contract.Children) == 0 {
		return out, nil
	}

	related, err := da.FetchRelated(ctx, rec, ir.ScopeChild)
	if err != nil {
		return View{}, err
	}
	out.Children = make(map[string][]View, len(contract.Children))
	for _, req := range contract.Children {
		nested, err := h.composer.Compose(req.Schema, ir.TargetView, ir.ContextNested)
		if err != nil {
			return View{}, err
		}
		child, _ := h.reg.Schema(req.Schema)
		ref, _ := child.RefTo(contract.Schema)
		items := []View{}
		for _, kid := range related {
			if kid.Schema != req.Schema || !ir.Equal(kid.Fields[ref.Name], ir.String(rec.ID)) {
				continue
			}
			kv, err := h.view(ctx, da, nested, kid)
			if err != nil {
				return View{}, err
			}
			items = append(items, kv)
		}
		out.Children[req.Alias] = items
	}
	return out, nil
}
