package compiler

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"

	"github.com/roach88/ruleweave/internal/ir"
)

// LoadMode controls how errors are handled during loading.
type LoadMode int

const (
	// LoadModeFailFast stops on the first error encountered.
	LoadModeFailFast LoadMode = iota
	// LoadModeCollectAll collects all errors before returning.
	LoadModeCollectAll
)

// Load error codes (E001-E099). Compile and registration codes live in
// validate.go.
const (
	ErrCodeGeneric     = "E001" // Generic/unknown error
	ErrCodeScanError   = "E002" // Directory scan error
	ErrCodeNoFiles     = "E003" // No CUE files found
	ErrCodeLoadFailed  = "E004" // CUE load failed
	ErrCodeNotFound    = "E005" // Path not found
	ErrCodeBuildFailed = "E006" // CUE build failed
	ErrCodeEmpty       = "E007" // No schemas defined
)

// Spec is everything compiled from one definitions directory, in
// declaration order.
type Spec struct {
	Schemas   []ir.Schema
	Reactions []ir.ReactionRule
	States    []ir.StateRule
	Augments  []ir.AugmentationRule
	FileCount int
}

// RuleCount is the number of rules of every kind.
func (s *Spec) RuleCount() int {
	return len(s.Reactions) + len(s.States) + len(s.Augments)
}

// LoadError represents an error that occurred during loading.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos // CUE position if available
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// LoadDir loads and compiles the CUE definitions in dir.
// If mode is LoadModeFailFast, returns on first error.
// If mode is LoadModeCollectAll, collects all errors.
func LoadDir(dir string, mode LoadMode) (*Spec, []error) {
	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("definitions directory not found: %s", dir)}}
	}
	if err != nil {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("error accessing definitions directory: %v", err)}}
	}
	if !info.IsDir() {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("not a directory: %s", dir)}}
	}

	cueFiles, err := FindCUEFiles(dir)
	if err != nil {
		return nil, []error{&LoadError{Code: ErrCodeScanError, Message: fmt.Sprintf("error scanning directory: %v", err)}}
	}
	if len(cueFiles) == 0 {
		return nil, []error{&LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("no CUE files found in %s", dir)}}
	}

	ctx := cuecontext.New()
	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, []error{&LoadError{Code: ErrCodeLoadFailed, Message: "no CUE instances loaded"}}
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, []error{&LoadError{Code: ErrCodeLoadFailed, Message: fmt.Sprintf("loading CUE files: %v", inst.Err)}}
	}

	value := ctx.BuildInstance(inst)
	if err := value.Err(); err != nil {
		return nil, []error{&LoadError{Code: ErrCodeBuildFailed, Message: fmt.Sprintf("building CUE value: %v", err)}}
	}

	spec, errs := CompileValue(value, mode)
	if spec != nil {
		spec.FileCount = len(cueFiles)
	}
	return spec, errs
}

// CompileValue compiles the schema, reaction, state and augment blocks of v.
func CompileValue(v cue.Value, mode LoadMode) (*Spec, []error) {
	spec := &Spec{}
	var errs []error

	// each walks one top-level block, stopping early in fail-fast mode.
	each := func(block string, fn func(cue.Value) error) bool {
		bv := v.LookupPath(cue.ParsePath(block))
		if !bv.Exists() {
			return true
		}
		iter, err := bv.Fields()
		if err != nil {
			errs = append(errs, &LoadError{Code: ErrCodeGeneric, Message: fmt.Sprintf("iterating %s: %v", block, err), Pos: bv.Pos()})
			return mode != LoadModeFailFast
		}
		for iter.Next() {
			if err := fn(iter.Value()); err != nil {
				errs = append(errs, convertCompileError(err, block+"."+iter.Label()))
				if mode == LoadModeFailFast {
					return false
				}
			}
		}
		return true
	}

	ok := each("schema", func(v cue.Value) error {
		s, err := CompileSchema(v)
		if err == nil {
			spec.Schemas = append(spec.Schemas, *s)
		}
		return err
	}) && each("reaction", func(v cue.Value) error {
		r, err := CompileReaction(v)
		if err == nil {
			spec.Reactions = append(spec.Reactions, *r)
		}
		return err
	}) && each("state", func(v cue.Value) error {
		r, err := CompileState(v)
		if err == nil {
			spec.States = append(spec.States, *r)
		}
		return err
	}) && each("augment", func(v cue.Value) error {
		r, err := CompileAugment(v)
		if err == nil {
			spec.Augments = append(spec.Augments, *r)
		}
		return err
	})
	if !ok {
		return spec, errs
	}

	if len(spec.Schemas) == 0 && len(errs) == 0 {
		errs = append(errs, &LoadError{Code: ErrCodeEmpty, Message: "no schemas found in definitions"})
	}
	return spec, errs
}

// FindCUEFiles walks the directory and returns all .cue file paths, sorted.
func FindCUEFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && filepath.Ext(path) == ".cue" {
			files = append(files, path)
		}
		return nil
	})
	sort.Strings(files)
	return files, err
}

// convertCompileError converts a compiler error to a LoadError with position info.
func convertCompileError(err error, subject string) *LoadError {
	var compileErr *CompileError
	if errors.As(err, &compileErr) {
		return &LoadError{
			Code:    mapFieldToErrorCode(compileErr.Field),
			Message: fmt.Sprintf("%s: %s", compileErr.Field, compileErr.Message),
			Pos:     compileErr.Pos,
		}
	}
	return &LoadError{
		Code:    ErrCodeGeneric,
		Message: fmt.Sprintf("%s: %v", subject, err),
	}
}

// mapFieldToErrorCode maps the trailing segment of a compile error field
// to an error code.
func mapFieldToErrorCode(field string) string {
	last := field
	if i := strings.LastIndex(field, "."); i >= 0 {
		last = field[i+1:]
	}
	switch {
	case strings.HasPrefix(field, "schema."):
		return ErrCodeInvalidField
	case last == "when":
		return ErrCodeInvalidCondition
	case last == "set" || last == "custom":
		return ErrCodeInvalidAction
	case last == "event" || last == "scope" || last == "target" || last == "context":
		return ErrCodeInvalidRuleKind
	case last == "refers" || last == "cardinality":
		return ErrCodeInvalidRefers
	case strings.HasPrefix(field, "reaction.") || strings.HasPrefix(field, "state.") || strings.HasPrefix(field, "augment."):
		return ErrCodeInvalidRule
	default:
		return ErrCodeGeneric
	}
}
