package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/ruleweave/internal/augment"
	"github.com/roach88/ruleweave/internal/ir"
)

// ComposeOptions holds flags for the compose command.
type ComposeOptions struct {
	*RootOptions
	Schema  string
	Target  string
	Context string
}

// NewComposeCommand creates the compose command.
func NewComposeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ComposeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compose <definitions-dir>",
		Short: "Print the combined contract of an operation",
		Long: `Resolve the augmentation rules of one (schema, target, context)
operation into its combined contract: the selected own fields and the
child requirements.

Examples:
  ruleweave compose ./defs --schema Order --target toCreate
  ruleweave compose ./defs --schema OrderItem --target toCreate --context nested
  ruleweave compose ./defs --schema Order --target toView --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompose(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Schema, "schema", "", "schema id (required)")
	_ = cmd.MarkFlagRequired("schema")
	cmd.Flags().StringVar(&opts.Target, "target", string(ir.TargetCreate), "toCreate | toEdit | toView")
	cmd.Flags().StringVar(&opts.Context, "context", string(ir.ContextSelf), "slf | nested")

	return cmd
}

func runCompose(opts *ComposeOptions, dir string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	target, ctx := ir.Target(opts.Target), ir.Context(opts.Context)
	if !ir.ValidTargets[target] {
		return NewExitError(ExitCommandError, fmt.Sprintf("invalid target %q", opts.Target))
	}
	if !ir.ValidContexts[ctx] {
		return NewExitError(ExitCommandError, fmt.Sprintf("invalid context %q", opts.Context))
	}

	defs, err := loadDefinitions(formatter, dir)
	if err != nil {
		return err
	}
	contract, err := augment.NewComposer(defs.Registry).Compose(opts.Schema, target, ctx)
	if err != nil {
		_ = formatter.Error("E001", err.Error(), nil)
		return WrapExitError(ExitCommandError, "compose failed", err)
	}

	if formatter.Format == "json" {
		return formatter.Success(contract)
	}
	writeContract(formatter, contract, "")
	return nil
}

func writeContract(f *OutputFormatter, c ir.Contract, indent string) {
	w := f.Writer
	fmt.Fprintf(w, "%s%s %s (%s)\n", indent, c.Schema, c.Target, c.Context)
	fmt.Fprintf(w, "%s  fields: %s\n", indent, strings.Join(c.Fields, ", "))
	for _, child := range c.Children {
		fmt.Fprintf(w, "%s  %s -> %s %s%s\n", indent, child.Alias, child.Schema, child.Cardinality, describeBounds(child))
		if len(child.RequiredFields) > 0 {
			fmt.Fprintf(w, "%s    required fields: %s\n", indent, strings.Join(child.RequiredFields, ", "))
		}
	}
}

func describeBounds(c ir.ChildRequirement) string {
	var parts []string
	if c.Required {
		parts = append(parts, "required")
	}
	if c.MinItems > 0 || c.MaxItems > 0 {
		upper := "*"
		if c.MaxItems > 0 {
			upper = fmt.Sprint(c.MaxItems)
		}
		parts = append(parts, fmt.Sprintf("[%d..%s]", c.MinItems, upper))
	}
	if len(parts) == 0 {
		return ""
	}
	return " " + strings.Join(parts, " ")
}
