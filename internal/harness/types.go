package harness

import (
	"errors"
	"strings"

	"github.com/roach88/ruleweave/internal/access"
	"github.com/roach88/ruleweave/internal/augment"
	"github.com/roach88/ruleweave/internal/engine"
	"github.com/roach88/ruleweave/internal/ir"
	"github.com/roach88/ruleweave/internal/state"
)

// TraceEvent is one dispatched mutation event, root or cascade.
type TraceEvent struct {
	Step     int      `json:"step"`
	Seq      int64    `json:"seq"`
	Chain    string   `json:"chain"`
	Depth    int      `json:"depth"`
	Schema   string   `json:"schema"`
	Kind     string   `json:"kind"`
	Record   string   `json:"record"`
	Modified []string `json:"modified,omitempty"`
}

// Name is the "Schema.kind" form used by trace assertions.
func (e TraceEvent) Name() string {
	return e.Schema + "." + e.Kind
}

// StepOutcome records how one step ended.
type StepOutcome struct {
	Step   int    `json:"step"`
	Op     string `json:"op"`
	Schema string `json:"schema"`
	Record string `json:"record,omitempty"`
	// Error is the ErrorKind of a failed step, empty on success.
	Error string `json:"error,omitempty"`
}

// Result is the outcome of a test scenario execution.
type Result struct {
	// Pass indicates overall test success.
	// True if every step met its expectation and all assertions hold.
	Pass bool `json:"pass"`

	// Trace contains every dispatched event in seq order.
	Trace []TraceEvent `json:"trace"`

	// Steps has one outcome per setup and flow step.
	Steps []StepOutcome `json:"steps"`

	// Errors contains failure messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Refs maps "as" names to record ids.
	Refs map[string]string `json:"refs,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Steps:  []StepOutcome{},
		Errors: []string{},
		Refs:   make(map[string]string),
	}
}

// AddError adds a failure message and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddEvents appends the events of one step to the trace.
func (r *Result) AddEvents(step int, evs []ir.Event) {
	for _, ev := range evs {
		r.Trace = append(r.Trace, TraceEvent{
			Step:     step,
			Seq:      ev.Seq,
			Chain:    ev.Chain,
			Depth:    ev.Depth,
			Schema:   ev.Schema,
			Kind:     string(ev.Kind),
			Record:   ev.Object.ID,
			Modified: ev.Modified,
		})
	}
}

// Error kinds reported by ErrorKind.
const (
	KindValidation    = "validation"
	KindImmutable     = "immutable"
	KindContradiction = "contradiction"
	KindNotFound      = "not_found"
	KindError         = "error"
)

// ErrorKind classifies a host or engine error for scenario expectations
// and CLI output. Engine runtime errors report their lower-cased code
// (for example "write_rejected" or "cascade_limit_exceeded").
func ErrorKind(err error) string {
	if err == nil {
		return ""
	}
	if code := engine.ErrorCode(err); code != "" {
		return strings.ToLower(string(code))
	}
	var verrs ir.ValidationErrors
	switch {
	case state.IsImmutableField(err):
		return KindImmutable
	case state.IsContradiction(err):
		return KindContradiction
	case augment.IsValidation(err, ""), errors.As(err, &verrs):
		return KindValidation
	case errors.Is(err, access.ErrNotFound):
		return KindNotFound
	default:
		return KindError
	}
}
