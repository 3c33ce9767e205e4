package compiler

import (
	"errors"
	"fmt"

	"github.com/roach88/ruleweave/internal/registry"
)

// Validation error codes (E100-E199)
const (
	// Compile errors (E100-E109)
	ErrCodeInvalidField     = "E101" // bad field spec or type
	ErrCodeInvalidRule      = "E102" // malformed rule block
	ErrCodeInvalidRuleKind  = "E103" // unknown event, scope, target or context
	ErrCodeInvalidCondition = "E104" // malformed when clause
	ErrCodeInvalidAction    = "E105" // missing or conflicting set/custom
	ErrCodeInvalidRefers    = "E106" // malformed child requirement

	// Registration errors (E110-E129)
	ErrCodeDuplicateSchema   = "E110"
	ErrCodeUnknownSchema     = "E111"
	ErrCodeUnknownField      = "E112"
	ErrCodeInvalidPath       = "E113"
	ErrCodeDuplicateRule     = "E114"
	ErrCodeDuplicateAugment  = "E115"
	ErrCodeContradictory     = "E116"
	ErrCodeUnknownAction     = "E117"
	ErrCodeInvalidEnumSubset = "E118"
	ErrCodeInvalidSelect     = "E119"
	ErrCodeRegistration      = "E120" // any other registration failure
)

var configCodes = map[registry.ConfigErrorCode]string{
	registry.ErrCodeDuplicateSchema:      ErrCodeDuplicateSchema,
	registry.ErrCodeUnknownSchema:        ErrCodeUnknownSchema,
	registry.ErrCodeUnknownField:         ErrCodeUnknownField,
	registry.ErrCodeInvalidSchema:        ErrCodeInvalidField,
	registry.ErrCodeInvalidRule:          ErrCodeInvalidRule,
	registry.ErrCodeInvalidPath:          ErrCodeInvalidPath,
	registry.ErrCodeDuplicateRule:        ErrCodeDuplicateRule,
	registry.ErrCodeDuplicateAugment:     ErrCodeDuplicateAugment,
	registry.ErrCodeContradictoryFlags:   ErrCodeContradictory,
	registry.ErrCodeUnknownAction:        ErrCodeUnknownAction,
	registry.ErrCodeInvalidEnumSubset:    ErrCodeInvalidEnumSubset,
	registry.ErrCodeInvalidAugmentSelect: ErrCodeInvalidSelect,
}

// ValidationError represents a schema or rule that failed registration.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// toValidationError maps a registry error onto a coded ValidationError.
func toValidationError(subject string, err error) ValidationError {
	var ce *registry.ConfigError
	if errors.As(err, &ce) {
		code, ok := configCodes[ce.Code]
		if !ok {
			code = ErrCodeRegistration
		}
		return ValidationError{Field: ce.Subject, Message: ce.Message, Code: code}
	}
	return ValidationError{Field: subject, Message: err.Error(), Code: ErrCodeRegistration}
}

// Build registers every schema and rule of spec in a new registry and
// seals it. hasAction resolves custom action names; nil skips that check.
// Returns all errors found (does not fail-fast) and a nil registry when
// any occurred.
func Build(spec *Spec, hasAction func(name string) bool) (*registry.Registry, []ValidationError) {
	reg, errs := Register(spec)
	if len(errs) > 0 {
		return nil, errs
	}
	if err := Seal(reg, hasAction); err != nil {
		return nil, []ValidationError{*err}
	}
	return reg, nil
}

// Register adds every schema and rule of spec to a new, unsealed
// registry. Schemas go first so rules may refer to any of them.
func Register(spec *Spec) (*registry.Registry, []ValidationError) {
	reg := registry.New()
	var errs []ValidationError

	for _, s := range spec.Schemas {
		if err := reg.RegisterSchema(s); err != nil {
			errs = append(errs, toValidationError("schema."+s.ID, err))
		}
	}
	for _, r := range spec.Reactions {
		if err := reg.AddReaction(r); err != nil {
			errs = append(errs, toValidationError("reaction."+r.ID, err))
		}
	}
	for _, r := range spec.States {
		if err := reg.AddState(r); err != nil {
			errs = append(errs, toValidationError("state."+r.ID, err))
		}
	}
	for _, r := range spec.Augments {
		if err := reg.AddAugmentation(r); err != nil {
			errs = append(errs, toValidationError("augment."+r.ID, err))
		}
	}
	return reg, errs
}

// Seal ends registration on reg, resolving schema references and custom
// action names.
func Seal(reg *registry.Registry, hasAction func(name string) bool) *ValidationError {
	if err := reg.Seal(hasAction); err != nil {
		verr := toValidationError("seal", err)
		return &verr
	}
	return nil
}
