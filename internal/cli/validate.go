package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/ruleweave/internal/bootstrap"
	"github.com/roach88/ruleweave/internal/compiler"
)

// Issue is one load, compile or registration error in CLI output.
type Issue struct {
	Code    string `json:"code"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
	File    string `json:"file,omitempty"`
	Line    int    `json:"line,omitempty"`
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid    bool                    `json:"valid"`
	Schemas  int                     `json:"schemas"`
	Rules    int                     `json:"rules"`
	Errors   []Issue                 `json:"errors,omitempty"`
	Warnings []compiler.CycleWarning `json:"warnings,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <definitions-dir>",
		Short: "Compile, register and seal definitions",
		Long: `Validate CUE schemas and rules without touching a database.

Compiles every schema, reaction, state and augment block, registers them
(unknown fields, selectors and references, contradictory flags, duplicate
augmentations) and seals the registry (custom action names). Reaction
rules that can re-trigger each other are reported as warnings.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, dir string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd.OutOrStdout(), cmd.ErrOrStderr())

	defs, err := bootstrap.LoadDefinitions(dir)
	if err != nil {
		issues := issuesFromError(err)
		if isCommandError(issues) {
			_ = formatter.Error(issues[0].Code, issues[0].Message, nil)
			return NewExitError(ExitCommandError, fmt.Sprintf("%s: %s", issues[0].Code, issues[0].Message))
		}
		return outputValidationErrors(formatter, issues)
	}

	formatter.VerboseLog("Found %d CUE file(s) in %s", defs.Spec.FileCount, dir)
	result := ValidationResult{
		Valid:    true,
		Schemas:  len(defs.Spec.Schemas),
		Rules:    defs.Spec.RuleCount(),
		Warnings: defs.Cycles,
	}

	if formatter.Format == "json" {
		return formatter.Success(result)
	}

	w := formatter.Writer
	fmt.Fprintf(w, "✓ Definitions valid (%d schema(s), %d rule(s))\n", result.Schemas, result.Rules)
	for _, warn := range result.Warnings {
		fmt.Fprintf(w, "⚠ %s\n", warn.Message)
	}
	return nil
}

// issuesFromError flattens a definitions load failure.
func issuesFromError(err error) []Issue {
	var le *bootstrap.LoadError
	if !errors.As(err, &le) {
		return []Issue{toIssue(err)}
	}
	issues := make([]Issue, 0, len(le.Errors))
	for _, e := range le.Errors {
		issues = append(issues, toIssue(e))
	}
	return issues
}

func toIssue(err error) Issue {
	var loadErr *compiler.LoadError
	if errors.As(err, &loadErr) {
		issue := Issue{Code: loadErr.Code, Message: loadErr.Message}
		if loadErr.Pos.IsValid() {
			issue.File = loadErr.Pos.Filename()
			issue.Line = loadErr.Pos.Line()
		}
		return issue
	}
	var verr compiler.ValidationError
	if errors.As(err, &verr) {
		return Issue{Code: verr.Code, Field: verr.Field, Message: verr.Message}
	}
	return Issue{Code: compiler.ErrCodeGeneric, Message: err.Error()}
}

// isCommandError reports whether the definitions directory itself is
// unusable, as opposed to containing invalid definitions.
func isCommandError(issues []Issue) bool {
	if len(issues) != 1 {
		return false
	}
	switch issues[0].Code {
	case compiler.ErrCodeNotFound, compiler.ErrCodeScanError, compiler.ErrCodeNoFiles:
		return true
	}
	return false
}

// outputValidationErrors outputs multiple validation errors.
func outputValidationErrors(formatter *OutputFormatter, issues []Issue) error {
	exitErr := NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(issues)))

	if formatter.Format == "json" {
		if err := formatter.JSON(CLIResponse{
			Status: "error",
			Data:   ValidationResult{Valid: false, Errors: issues},
			Error: &CLIError{
				Code:    issues[0].Code,
				Message: issues[0].Message,
			},
		}); err != nil {
			return err
		}
		return exitErr
	}

	w := formatter.Writer
	fmt.Fprintln(w, "✗ Validation failed")
	fmt.Fprintln(w)
	for _, issue := range issues {
		if issue.Line > 0 {
			fmt.Fprintf(w, "%s:%d\n", issue.File, issue.Line)
		}
		if issue.Field != "" {
			fmt.Fprintf(w, "  %s %s: %s\n\n", issue.Code, issue.Field, issue.Message)
			continue
		}
		fmt.Fprintf(w, "  %s: %s\n\n", issue.Code, issue.Message)
	}
	return exitErr
}
