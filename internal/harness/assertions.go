package harness

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/roach88/ruleweave/internal/access"
	"github.com/roach88/ruleweave/internal/host"
	"github.com/roach88/ruleweave/internal/ir"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, ev := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s %s depth=%d", ev.Seq, ev.Name(), ev.Record, ev.Depth)
			if len(ev.Modified) > 0 {
				fmt.Fprintf(&buf, " modified=%v", ev.Modified)
			}
			buf.WriteByte('\n')
		}
	}
	return buf.String()
}

// assertTraceContains checks if the trace contains an event matching
// Event, and Record and Modified when given (subset match on Modified).
func assertTraceContains(trace []TraceEvent, a Assertion, refs *Runner) error {
	record, err := refs.Resolve(a.Record)
	if err != nil {
		return err
	}
	for _, ev := range trace {
		if ev.Name() != a.Event {
			continue
		}
		if record != "" && ev.Record != record {
			continue
		}
		if containsAll(ev.Modified, a.Modified) {
			return nil
		}
	}

	expected := a.Event
	if record != "" {
		expected += " on " + record
	}
	if len(a.Modified) > 0 {
		expected += fmt.Sprintf(" modifying %v", a.Modified)
	}
	return &AssertionError{
		Type:     AssertTraceContains,
		Expected: expected,
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

// assertTraceOrder checks if events appear in the specified order.
// Events don't need to be consecutive (intervening events are allowed).
func assertTraceOrder(trace []TraceEvent, a Assertion) error {
	next := 0
	for _, ev := range trace {
		if next < len(a.Events) && ev.Name() == a.Events[next] {
			next++
		}
	}
	if next == len(a.Events) {
		return nil
	}
	return &AssertionError{
		Type:     AssertTraceOrder,
		Expected: fmt.Sprintf("events in order: %v", a.Events),
		Actual:   fmt.Sprintf("matched %d of %d, missing %s", next, len(a.Events), a.Events[next]),
		Trace:    trace,
	}
}

// assertTraceCount checks if the event appears exactly the specified number of times.
func assertTraceCount(trace []TraceEvent, a Assertion) error {
	count := 0
	for _, ev := range trace {
		if ev.Name() == a.Event {
			count++
		}
	}
	if count != a.Count {
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("%d occurrences of %s", a.Count, a.Event),
			Actual:   fmt.Sprintf("%d occurrences", count),
			Trace:    trace,
		}
	}
	return nil
}

// assertFinalState loads the record and validates expected values using
// subset semantics.
func assertFinalState(actx *AssertionContext, a Assertion) error {
	id, err := actx.Refs.Resolve(a.ID)
	if err != nil {
		return err
	}
	rec, err := actx.Data.Get(actx.Ctx, a.Schema, id)
	if errors.Is(err, access.ErrNotFound) {
		if a.Absent {
			return nil
		}
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("%s %s to exist", a.Schema, id),
			Actual:   "record not found",
		}
	}
	if err != nil {
		return fmt.Errorf("final_state: load %s %s: %w", a.Schema, id, err)
	}
	if a.Absent {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("%s %s to be absent", a.Schema, id),
			Actual:   "record exists",
		}
	}

	expect, err := actx.Refs.payload(a.Expect)
	if err != nil {
		return fmt.Errorf("final_state: %w", err)
	}
	for _, key := range expect.SortedKeys() {
		want := expect[key]
		got, ok := rec.Get(key)
		if !ok {
			got = ir.Null{}
		}
		if !ir.Equal(want, got) {
			return &AssertionError{
				Type:     AssertFinalState,
				Expected: fmt.Sprintf("%s %s field %q = %v", a.Schema, id, key, ir.ToAny(want)),
				Actual:   fmt.Sprintf("field %q = %v", key, ir.ToAny(got)),
			}
		}
	}
	return nil
}

// assertFieldState compiles $state for the record and checks the flags
// that are set on the assertion.
func assertFieldState(actx *AssertionContext, a Assertion) error {
	id, err := actx.Refs.Resolve(a.ID)
	if err != nil {
		return err
	}
	st, err := actx.Host.State(actx.Ctx, a.Schema, id)
	if err != nil {
		return fmt.Errorf("field_state: %s %s: %w", a.Schema, id, err)
	}
	fs := st.Field(a.Field)

	var mismatches []string
	check := func(name string, want *bool, got bool) {
		if want != nil && *want != got {
			mismatches = append(mismatches, fmt.Sprintf("%s=%t", name, got))
		}
	}
	check("immutable", a.Flags.Immutable, fs.Immutable)
	check("required", a.Flags.Required, fs.Required)
	check("hidden", a.Flags.Hidden, fs.Hidden)
	if a.Flags.EnumSubset != nil && strings.Join(a.Flags.EnumSubset, ",") != strings.Join(fs.EnumSubset, ",") {
		mismatches = append(mismatches, fmt.Sprintf("enum_subset=%v", fs.EnumSubset))
	}
	if len(mismatches) == 0 {
		return nil
	}
	return &AssertionError{
		Type:     AssertFieldState,
		Expected: fmt.Sprintf("%s %s field %q flags %s", a.Schema, id, a.Field, describeFlags(a.Flags)),
		Actual:   strings.Join(mismatches, " "),
	}
}

func describeFlags(f *FlagCheck) string {
	var parts []string
	add := func(name string, v *bool) {
		if v != nil {
			parts = append(parts, fmt.Sprintf("%s=%t", name, *v))
		}
	}
	add("immutable", f.Immutable)
	add("required", f.Required)
	add("hidden", f.Hidden)
	if f.EnumSubset != nil {
		parts = append(parts, fmt.Sprintf("enum_subset=%v", f.EnumSubset))
	}
	return strings.Join(parts, " ")
}

// containsAll reports whether every entry of want is in got.
func containsAll(got, want []string) bool {
	if len(want) == 0 {
		return true
	}
	sorted := append([]string(nil), got...)
	sort.Strings(sorted)
	for _, w := range want {
		i := sort.SearchStrings(sorted, w)
		if i == len(sorted) || sorted[i] != w {
			return false
		}
	}
	return true
}

// AssertionContext provides context for evaluating assertions.
type AssertionContext struct {
	Ctx  context.Context
	Data access.DataAccess
	Host *host.Host
	Refs *Runner
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
// The actx parameter provides record access for final_state and
// field_state assertions.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errs []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertTraceContains:
			err = assertTraceContains(result.Trace, assertion, actx.Refs)
		case AssertTraceOrder:
			err = assertTraceOrder(result.Trace, assertion)
		case AssertTraceCount:
			err = assertTraceCount(result.Trace, assertion)
		case AssertFinalState:
			if actx.Data == nil {
				err = fmt.Errorf("assertion[%d]: final_state requires data access", i)
			} else {
				err = assertFinalState(actx, assertion)
			}
		case AssertFieldState:
			if actx.Host == nil {
				err = fmt.Errorf("assertion[%d]: field_state requires a host", i)
			} else {
				err = assertFieldState(actx, assertion)
			}
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errs = append(errs, err.Error())
		}
	}

	return errs
}
