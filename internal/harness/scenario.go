package harness

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Scenario defines a conformance test scenario: a sequence of host
// mutations run against compiled definitions, plus assertions on the
// resulting event trace and final records.
type Scenario struct {
	// Name uniquely identifies this scenario (and its golden file).
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Definitions is the CUE definitions directory.
	// Relative paths resolve against the scenario file location.
	Definitions string `yaml:"definitions"`

	// ChainToken is an optional prefix for deterministic chain tokens.
	// Defaults to "chain".
	ChainToken string `yaml:"chain_token,omitempty"`

	// Setup steps establish initial records. They must succeed and their
	// events are not traced.
	Setup []Step `yaml:"setup,omitempty"`

	// Flow contains the steps under test.
	Flow []Step `yaml:"flow"`

	// Assertions validate the final trace and state.
	// Supported types: trace_contains, trace_order, trace_count,
	// final_state, field_state
	Assertions []Assertion `yaml:"assertions"`
}

// Step is one host mutation. Exactly one of Create, Update and Delete
// names the schema.
//
// IDs and string payload values of the form "@name" resolve to the record
// bound by an earlier step's As. A create binds its root record to As and
// each nested record, in insertion order, to "As.1", "As.2", ...
type Step struct {
	Create string `yaml:"create,omitempty"`
	Update string `yaml:"update,omitempty"`
	Delete string `yaml:"delete,omitempty"`

	// ID is the target record for update and delete.
	ID string `yaml:"id,omitempty"`

	// As binds the created record id to a name.
	As string `yaml:"as,omitempty"`

	// Payload is the create payload or the update field set.
	Payload map[string]any `yaml:"payload,omitempty"`

	// Expect specifies the expected outcome. Nil expects success.
	Expect *Expect `yaml:"expect,omitempty"`
}

// Step operations.
const (
	OpCreate = "create"
	OpUpdate = "update"
	OpDelete = "delete"
)

// Op returns the step's operation and schema.
func (s Step) Op() (op, schema string) {
	switch {
	case s.Create != "":
		return OpCreate, s.Create
	case s.Update != "":
		return OpUpdate, s.Update
	case s.Delete != "":
		return OpDelete, s.Delete
	}
	return "", ""
}

// Expect specifies the expected step outcome.
type Expect struct {
	// Error is the expected ErrorKind; empty expects success.
	Error string `yaml:"error,omitempty"`

	// Events is the exact "Schema.kind" sequence the step dispatches.
	Events []string `yaml:"events,omitempty"`
}

// Assertion validates trace or final state.
type Assertion struct {
	// Type specifies the assertion type:
	// - "trace_contains": an event with Event (and Record/Modified) was dispatched
	// - "trace_order": Events appear in order
	// - "trace_count": Event appears exactly Count times
	// - "final_state": the record Schema/ID holds Expect (or is Absent)
	// - "field_state": $state of Field on Schema/ID matches Flags
	Type string `yaml:"type"`

	// Event is "Schema.kind" (trace_contains, trace_count).
	Event string `yaml:"event,omitempty"`

	// Record restricts trace_contains to one record ("@name" or id).
	Record string `yaml:"record,omitempty"`

	// Modified must be a subset of the event's changed fields (trace_contains).
	Modified []string `yaml:"modified,omitempty"`

	// Events is the expected order (trace_order).
	Events []string `yaml:"events,omitempty"`

	// Count is the expected number of occurrences (trace_count).
	Count int `yaml:"count,omitempty"`

	// Schema and ID locate a record (final_state, field_state).
	Schema string `yaml:"schema,omitempty"`
	ID     string `yaml:"id,omitempty"`

	// Expect contains expected field values (final_state).
	// Subset match - only specified fields are validated.
	Expect map[string]any `yaml:"expect,omitempty"`

	// Absent expects the record to be gone (final_state).
	Absent bool `yaml:"absent,omitempty"`

	// Field and Flags check one field's compiled state (field_state).
	Field string     `yaml:"field,omitempty"`
	Flags *FlagCheck `yaml:"flags,omitempty"`
}

// FlagCheck lists expected state flags; nil entries are not checked.
type FlagCheck struct {
	Immutable  *bool    `yaml:"immutable,omitempty"`
	Required   *bool    `yaml:"required,omitempty"`
	Hidden     *bool    `yaml:"hidden,omitempty"`
	EnumSubset []string `yaml:"enum_subset,omitempty"`
}

// Assertion type constants.
const (
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
	AssertFinalState    = "final_state"
	AssertFieldState    = "field_state"
)

// LoadScenario reads and parses a scenario YAML file, resolving the
// definitions directory relative to the file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	defer f.Close()
	return ParseScenario(f, filepath.Dir(path))
}

// ParseScenario decodes a scenario. basePath anchors a relative
// definitions directory; empty leaves it as written.
func ParseScenario(r io.Reader, basePath string) (*Scenario, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario: %w", err)
	}

	// Parse YAML with strict field validation (catches typos like "assertion:" vs "assertions:")
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if scenario.Definitions != "" && !filepath.IsAbs(scenario.Definitions) && basePath != "" {
		scenario.Definitions = filepath.Join(basePath, scenario.Definitions)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Definitions == "" {
		return fmt.Errorf("definitions is required")
	}
	if _, err := os.Stat(s.Definitions); os.IsNotExist(err) {
		return fmt.Errorf("definitions directory not found: %s", s.Definitions)
	}
	if len(s.Flow) == 0 {
		return fmt.Errorf("flow list is required and must be non-empty")
	}

	for i, step := range s.Setup {
		if err := ValidateStep(step); err != nil {
			return fmt.Errorf("setup[%d]: %w", i, err)
		}
		if step.Expect != nil {
			return fmt.Errorf("setup[%d]: setup steps cannot carry expect", i)
		}
	}
	for i, step := range s.Flow {
		if err := ValidateStep(step); err != nil {
			return fmt.Errorf("flow[%d]: %w", i, err)
		}
	}
	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}
	return nil
}

// ValidateStep checks that exactly one operation is set and its required
// fields are present.
func ValidateStep(step Step) error {
	n := 0
	for _, s := range []string{step.Create, step.Update, step.Delete} {
		if s != "" {
			n++
		}
	}
	if n != 1 {
		return fmt.Errorf("exactly one of create, update or delete is required")
	}
	op, _ := step.Op()
	switch op {
	case OpCreate:
		if step.ID != "" {
			return fmt.Errorf("create takes no id")
		}
	case OpUpdate:
		if step.ID == "" {
			return fmt.Errorf("update requires id")
		}
		if len(step.Payload) == 0 {
			return fmt.Errorf("update requires payload")
		}
	case OpDelete:
		if step.ID == "" {
			return fmt.Errorf("delete requires id")
		}
	}
	if step.As != "" && op != OpCreate {
		return fmt.Errorf("as is only valid on create")
	}
	if strings.Contains(step.As, ".") {
		return fmt.Errorf("as %q must not contain '.'", step.As)
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertTraceContains:
		if a.Event == "" {
			return fmt.Errorf("assertions[%d]: event is required for trace_contains", index)
		}
	case AssertTraceOrder:
		if len(a.Events) == 0 {
			return fmt.Errorf("assertions[%d]: events list is required for trace_order", index)
		}
	case AssertTraceCount:
		if a.Event == "" {
			return fmt.Errorf("assertions[%d]: event is required for trace_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	case AssertFinalState:
		if a.Schema == "" || a.ID == "" {
			return fmt.Errorf("assertions[%d]: schema and id are required for final_state", index)
		}
		if len(a.Expect) == 0 && !a.Absent {
			return fmt.Errorf("assertions[%d]: expect or absent is required for final_state", index)
		}
	case AssertFieldState:
		if a.Schema == "" || a.ID == "" || a.Field == "" {
			return fmt.Errorf("assertions[%d]: schema, id and field are required for field_state", index)
		}
		if a.Flags == nil {
			return fmt.Errorf("assertions[%d]: flags is required for field_state", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
