package cli

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/ruleweave/internal/harness"
	"github.com/roach88/ruleweave/internal/host"
	"github.com/roach88/ruleweave/internal/ir"
)

// StateOptions holds flags for the state command.
type StateOptions struct {
	*RootOptions
	Database string
	Schema   string
	ID       string
}

// NewStateCommand creates the state command.
func NewStateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &StateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "state <definitions-dir>",
		Short: "Show a record's view and compiled $state",
		Long: `Load one record and print it as a reader sees it: the toView
selection without hidden fields, the compiled $state of every flagged
field, and the nested children of the view contract.

Examples:
  ruleweave state ./defs --db ./ruleweave.db --schema Order --id 0190...
  ruleweave state ./defs --db ./ruleweave.db --schema Order --id 0190... --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runState(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.Schema, "schema", "", "schema id (required)")
	_ = cmd.MarkFlagRequired("schema")
	cmd.Flags().StringVar(&opts.ID, "id", "", "record id (required)")
	_ = cmd.MarkFlagRequired("id")

	return cmd
}

func runState(opts *StateOptions, dir string, cmd *cobra.Command) error {
	ctx := context.Background()
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	if err := requireFile(opts.Database, "database"); err != nil {
		return err
	}
	rt, err := openRuntime(ctx, opts.RootOptions, formatter, dir, opts.Database)
	if err != nil {
		return err
	}
	defer closeRuntime(formatter, rt)

	view, err := rt.Host.View(ctx, opts.Schema, opts.ID)
	if err != nil {
		kind := harness.ErrorKind(err)
		_ = formatter.Error(kind, err.Error(), nil)
		if kind == harness.KindNotFound {
			return WrapExitError(ExitFailure, "record not found", err)
		}
		return WrapExitError(ExitCommandError, "failed to load record", err)
	}

	if formatter.Format == "json" {
		return formatter.Success(view)
	}
	writeView(formatter, *view, "")
	return nil
}

func writeView(f *OutputFormatter, v host.View, indent string) {
	w := f.Writer
	fmt.Fprintf(w, "%s%s %s\n", indent, v.Schema, v.ID)
	for _, k := range v.Fields.SortedKeys() {
		fmt.Fprintf(w, "%s  %s = %v\n", indent, k, ir.ToAny(v.Fields[k]))
	}

	names := make([]string, 0, len(v.State.Fields))
	for name, fs := range v.State.Fields {
		if !fs.IsDefault() {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	if len(names) > 0 {
		fmt.Fprintf(w, "%s  $state:\n", indent)
		for _, name := range names {
			fmt.Fprintf(w, "%s    %s: %s\n", indent, name, describeFieldState(v.State.Fields[name]))
		}
	}

	aliases := make([]string, 0, len(v.Children))
	for alias := range v.Children {
		aliases = append(aliases, alias)
	}
	sort.Strings(aliases)
	for _, alias := range aliases {
		fmt.Fprintf(w, "%s  %s:\n", indent, alias)
		for _, child := range v.Children[alias] {
			writeView(f, child, indent+"    ")
		}
	}
}

func describeFieldState(fs ir.FieldState) string {
	var parts []string
	if fs.Immutable {
		parts = append(parts, "immutable")
	}
	if fs.Required {
		parts = append(parts, "required")
	}
	if fs.Hidden {
		parts = append(parts, "hidden")
	}
	if fs.EnumSubset != nil {
		parts = append(parts, "enum["+strings.Join(fs.EnumSubset, "|")+"]")
	}
	return strings.Join(parts, " ")
}
