package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ruleweave/internal/ir"
	"github.com/roach88/ruleweave/internal/testutil"
)

func newValidator(t *testing.T) *Validator {
	t.Helper()
	return New(testutil.OrderRegistry(t))
}

func codes(errs ir.ValidationErrors) map[string]string {
	out := make(map[string]string, len(errs))
	for _, e := range errs {
		out[e.Field] = e.Code
	}
	return out
}

func TestValidateCreate_Valid(t *testing.T) {
	v := newValidator(t)
	errs := v.ValidateCreate("OrderItem", testutil.Item("o1", "pending", 2))
	assert.Empty(t, errs)
}

func TestValidateCreate_RequiredAndDefaults(t *testing.T) {
	v := newValidator(t)

	// status has a default, customer does not.
	errs := v.ValidateCreate("Order", ir.Object{})
	assert.Equal(t, map[string]string{"customer": ir.CodeRequired}, codes(errs))

	errs = v.ValidateCreate("Order", ir.Object{"customer": ir.Null{}})
	assert.Equal(t, map[string]string{"customer": ir.CodeRequired}, codes(errs))
}

func TestValidateCreate_CollectsAllViolations(t *testing.T) {
	v := newValidator(t)
	errs := v.ValidateCreate("OrderItem", ir.Object{
		"order":    ir.String(" "),
		"status":   ir.String("shipped"),
		"quantity": ir.Int(-1),
		"color":    ir.String("red"),
	})
	assert.Equal(t, map[string]string{
		"color":    ir.CodeUnknownField,
		"order":    ir.CodeType,
		"status":   ir.CodeEnum,
		"quantity": ir.CodeMin,
		"sku":      ir.CodeRequired,
	}, codes(errs))
}

func TestValidateCreate_TypeMismatch(t *testing.T) {
	v := newValidator(t)
	errs := v.ValidateCreate("OrderItem", ir.Object{
		"order":    ir.String("o1"),
		"sku":      ir.Int(7),
		"quantity": ir.String("two"),
	})
	assert.Equal(t, map[string]string{"sku": ir.CodeType, "quantity": ir.CodeType}, codes(errs))
}

func TestValidateCreate_UnknownSchema(t *testing.T) {
	v := newValidator(t)
	errs := v.ValidateCreate("Nope", ir.Object{})
	require.Len(t, errs, 1)
	assert.Equal(t, "_schema", errs[0].Field)
}

func TestValidateUpdate(t *testing.T) {
	v := newValidator(t)

	assert.Empty(t, v.ValidateUpdate("OrderItem", ir.Object{"quantity": ir.Int(3)}))
	assert.Empty(t, v.ValidateUpdate("Order", ir.Object{"note": ir.Null{}}))

	errs := v.ValidateUpdate("OrderItem", ir.Object{"sku": ir.Null{}, "quantity": ir.Int(0)})
	assert.Equal(t, map[string]string{"sku": ir.CodeRequired, "quantity": ir.CodeMin}, codes(errs))
}

func TestField_StringAndListRanges(t *testing.T) {
	name := ir.Field{Name: "name", FieldSpec: ir.FieldSpec{Type: ir.TypeString, Min: testutil.Int64(2), Max: testutil.Int64(3)}}
	assert.Empty(t, Field(name, ir.String("né")))
	assert.Equal(t, ir.CodeMin, Field(name, ir.String("a"))[0].Code)
	assert.Equal(t, ir.CodeMax, Field(name, ir.String("abcd"))[0].Code)

	tags := ir.Field{Name: "tags", FieldSpec: ir.FieldSpec{Type: ir.TypeList, Max: testutil.Int64(1)}}
	assert.Equal(t, ir.CodeMax, Field(tags, ir.Strings("a", "b"))[0].Code)
}

func TestApplyDefaults(t *testing.T) {
	reg := testutil.OrderRegistry(t)
	s, _ := reg.Schema("Order")

	got := ApplyDefaults(s, ir.Object{"customer": ir.String("acme")})
	assert.Equal(t, ir.String("pending"), got["status"])

	got = ApplyDefaults(s, ir.Object{"status": ir.String("completed")})
	assert.Equal(t, ir.String("completed"), got["status"])
}
