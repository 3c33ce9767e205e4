package cli

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/roach88/ruleweave/internal/harness"
)

// ApplyOptions holds flags for the apply command.
type ApplyOptions struct {
	*RootOptions
	Database string
}

// MutationFile is a YAML list of host mutations. Steps use the scenario
// step syntax, including "as" bindings and "@name" references.
type MutationFile struct {
	Steps []harness.Step `yaml:"steps"`
}

// AppliedStep reports one applied mutation.
type AppliedStep struct {
	Step    int      `json:"step"`
	Op      string   `json:"op"`
	Schema  string   `json:"schema"`
	Record  string   `json:"record,omitempty"`
	Chain   string   `json:"chain,omitempty"`
	Events  []string `json:"events,omitempty"`
	Error   string   `json:"error,omitempty"`
	Message string   `json:"message,omitempty"`
}

// ApplyResult holds the outcome of a mutation file.
type ApplyResult struct {
	Steps []AppliedStep     `json:"steps"`
	Refs  map[string]string `json:"refs,omitempty"`
}

// NewApplyCommand creates the apply command.
func NewApplyCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ApplyOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "apply <definitions-dir> <mutations.yaml>",
		Short: "Apply create/update/delete mutations to a database",
		Long: `Apply a YAML file of mutations through the host: each step is
validated against its contract and state, written, and its cascade
dispatched in one transaction. Processing stops at the first rejected
step; earlier steps stay committed.

File format:
  steps:
    - create: Order
      as: order
      payload: { customer: acme, items: [{ sku: a, quantity: 1 }] }
    - update: OrderItem
      id: "@order.1"
      payload: { status: completed }

Examples:
  ruleweave apply ./defs orders.yaml --db ./ruleweave.db
  ruleweave apply ./defs orders.yaml --db ./ruleweave.db --format json`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runApply(opts, args[0], args[1], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (default from config)")

	return cmd
}

// LoadMutationFile reads and validates a mutation file.
func LoadMutationFile(path string) (*MutationFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read mutation file: %w", err)
	}
	var mf MutationFile
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&mf); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if len(mf.Steps) == 0 {
		return nil, fmt.Errorf("steps list is required and must be non-empty")
	}
	for i, step := range mf.Steps {
		if err := harness.ValidateStep(step); err != nil {
			return nil, fmt.Errorf("steps[%d]: %w", i, err)
		}
		if step.Expect != nil {
			return nil, fmt.Errorf("steps[%d]: expect is only valid in scenarios", i)
		}
	}
	return &mf, nil
}

func runApply(opts *ApplyOptions, dir, file string, cmd *cobra.Command) error {
	ctx := context.Background()
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	mf, err := LoadMutationFile(file)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid mutation file", err)
	}
	rt, err := openRuntime(ctx, opts.RootOptions, formatter, dir, opts.Database)
	if err != nil {
		return err
	}
	defer closeRuntime(formatter, rt)

	runner := harness.NewRunner(rt.Host)
	result := ApplyResult{Steps: make([]AppliedStep, 0, len(mf.Steps))}
	var failed *AppliedStep

	for i, step := range mf.Steps {
		op, schema := step.Op()
		applied := AppliedStep{Step: i, Op: op, Schema: schema}

		m, err := runner.Apply(ctx, step)
		if m != nil {
			applied.Record = m.Record().ID
			if m.Cascade != nil {
				applied.Chain = m.Cascade.Chain
				for _, ev := range m.Cascade.Events {
					applied.Events = append(applied.Events, ev.Schema+"."+string(ev.Kind))
				}
			}
		}
		if err != nil {
			applied.Error = harness.ErrorKind(err)
			applied.Message = err.Error()
		}
		result.Steps = append(result.Steps, applied)
		formatter.VerboseLog("step %d: %s %s %s", i, op, schema, applied.Record)

		if err != nil {
			failed = &result.Steps[len(result.Steps)-1]
			break
		}
	}
	result.Refs = runner.Refs()

	if formatter.Format == "json" {
		resp := CLIResponse{Status: "ok", Data: result}
		if failed != nil {
			resp.Status = "error"
			resp.Error = &CLIError{Code: failed.Error, Message: failed.Message}
		}
		if err := formatter.JSON(resp); err != nil {
			return err
		}
	} else {
		writeApplyText(formatter, result)
	}

	if failed != nil {
		return NewExitError(ExitFailure, fmt.Sprintf("step %d rejected: %s", failed.Step, failed.Error))
	}
	return nil
}

func writeApplyText(f *OutputFormatter, result ApplyResult) {
	w := f.Writer
	for _, s := range result.Steps {
		if s.Error != "" {
			fmt.Fprintf(w, "✗ [%d] %s %s: %s\n", s.Step, s.Op, s.Schema, s.Error)
			fmt.Fprintf(w, "    %s\n", s.Message)
			continue
		}
		fmt.Fprintf(w, "✓ [%d] %s %s %s\n", s.Step, s.Op, s.Schema, s.Record)
		if len(s.Events) > 0 {
			fmt.Fprintf(w, "    chain %s: %s\n", s.Chain, strings.Join(s.Events, ", "))
		}
	}
}
