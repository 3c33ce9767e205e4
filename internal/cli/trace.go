package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/ruleweave/internal/ir"
	"github.com/roach88/ruleweave/internal/store"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Database string
	Chain    string
	Record   string // optional - history of one record instead of a chain
}

// TraceEvent represents a single event in the trace timeline.
type TraceEvent struct {
	Seq      int64          `json:"seq"`
	Chain    string         `json:"chain"`
	Depth    int            `json:"depth"`
	Event    string         `json:"event"` // "Schema.kind"
	Record   string         `json:"record"`
	Modified []string       `json:"modified,omitempty"`
	Object   map[string]any `json:"object,omitempty"`
}

// TraceResult holds the complete trace output.
type TraceResult struct {
	Chain    string       `json:"chain,omitempty"`
	Record   string       `json:"record,omitempty"`
	Timeline []TraceEvent `json:"timeline"`
	Stats    TraceStats   `json:"stats"`
}

// TraceStats holds summary statistics for the trace.
type TraceStats struct {
	TotalEvents int `json:"total_events"`
	RootEvents  int `json:"root_events"`
	MaxDepth    int `json:"max_depth"`
	Records     int `json:"records"`
}

// ChainList is the output when no chain or record is requested.
type ChainList struct {
	Chains []string `json:"chains"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Query the mutation event log",
		Long: `Print the logged events of one cascade chain, or the history of
one record. Without --chain or --record, list every chain token.

The output includes:
- Timeline: events in dispatch (seq) order with their cascade depth
- Stats: summary statistics for the chain

Examples:
  ruleweave trace --db ./ruleweave.db
  ruleweave trace --db ./ruleweave.db --chain 0190...
  ruleweave trace --db ./ruleweave.db --record 0190... --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.Chain, "chain", "", "chain token to trace")
	cmd.Flags().StringVar(&opts.Record, "record", "", "record id whose history to print")
	cmd.MarkFlagsMutuallyExclusive("chain", "record")

	return cmd
}

func runTrace(opts *TraceOptions, cmd *cobra.Command) error {
	ctx := context.Background()
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	if err := requireFile(opts.Database, "database"); err != nil {
		return err
	}
	// Reading the event log needs no schemas.
	st, err := store.Open(opts.Database, nil)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	if opts.Chain == "" && opts.Record == "" {
		return listChains(ctx, formatter, st)
	}

	var events []ir.Event
	if opts.Chain != "" {
		events, err = st.ReadChain(ctx, opts.Chain)
	} else {
		events, err = st.ReadRecordHistory(ctx, opts.Record)
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read event log", err)
	}

	result := TraceResult{
		Chain:    opts.Chain,
		Record:   opts.Record,
		Timeline: buildTimeline(events, opts.Verbose),
		Stats:    buildStats(events),
	}

	if opts.Format == "json" {
		return formatter.Success(result)
	}
	if len(events) == 0 {
		if opts.Chain != "" {
			fmt.Fprintf(formatter.Writer, "No events found for chain: %s\n", opts.Chain)
		} else {
			fmt.Fprintf(formatter.Writer, "No events found for record: %s\n", opts.Record)
		}
		return nil
	}
	return outputTraceText(formatter.Writer, result, opts.Verbose)
}

func listChains(ctx context.Context, f *OutputFormatter, st *store.Store) error {
	chains, err := st.Chains(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to list chains", err)
	}
	if f.Format == "json" {
		return f.Success(ChainList{Chains: chains})
	}
	if len(chains) == 0 {
		fmt.Fprintln(f.Writer, "No chains recorded.")
		return nil
	}
	for _, c := range chains {
		fmt.Fprintln(f.Writer, c)
	}
	return nil
}

// buildTimeline converts logged events to timeline entries. Record
// snapshots are included only when verbose.
func buildTimeline(events []ir.Event, verbose bool) []TraceEvent {
	timeline := make([]TraceEvent, 0, len(events))
	for _, ev := range events {
		te := TraceEvent{
			Seq:      ev.Seq,
			Chain:    ev.Chain,
			Depth:    ev.Depth,
			Event:    ev.Schema + "." + string(ev.Kind),
			Record:   ev.Object.ID,
			Modified: ev.Modified,
		}
		if verbose {
			te.Object, _ = ir.ToAny(ev.Object.Fields).(map[string]any)
		}
		timeline = append(timeline, te)
	}
	return timeline
}

func buildStats(events []ir.Event) TraceStats {
	stats := TraceStats{TotalEvents: len(events)}
	records := make(map[string]bool)
	for _, ev := range events {
		if ev.Depth == 0 {
			stats.RootEvents++
		}
		if ev.Depth > stats.MaxDepth {
			stats.MaxDepth = ev.Depth
		}
		records[ev.Object.ID] = true
	}
	stats.Records = len(records)
	return stats
}

// outputTraceText outputs the trace result as text.
func outputTraceText(w io.Writer, result TraceResult, verbose bool) error {
	if result.Chain != "" {
		fmt.Fprintf(w, "Trace for Chain: %s\n", result.Chain)
	} else {
		fmt.Fprintf(w, "History of Record: %s\n", result.Record)
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Timeline ===")
	for _, ev := range result.Timeline {
		fmt.Fprintf(w, "  [%d] %s%s %s", ev.Seq, strings.Repeat("  ", ev.Depth), ev.Event, truncateID(ev.Record))
		if len(ev.Modified) > 0 {
			fmt.Fprintf(w, " (%s)", strings.Join(ev.Modified, ", "))
		}
		if result.Chain == "" {
			fmt.Fprintf(w, " chain=%s", truncateID(ev.Chain))
		}
		fmt.Fprintln(w)
		if verbose && len(ev.Object) > 0 {
			fmt.Fprintf(w, "       Object: %s\n", formatArgs(ev.Object))
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Stats ===")
	fmt.Fprintf(w, "  Total Events: %d\n", result.Stats.TotalEvents)
	fmt.Fprintf(w, "  Root Events:  %d\n", result.Stats.RootEvents)
	fmt.Fprintf(w, "  Max Depth:    %d\n", result.Stats.MaxDepth)
	fmt.Fprintf(w, "  Records:      %d\n", result.Stats.Records)
	return nil
}

// formatArgs formats a map for display with sorted keys.
func formatArgs(args map[string]any) string {
	if len(args) == 0 {
		return "{}"
	}
	obj, err := ir.ObjectFromAny(args)
	if err != nil {
		return fmt.Sprint(args)
	}
	parts := make([]string, 0, len(obj))
	for _, k := range obj.SortedKeys() {
		parts = append(parts, fmt.Sprintf("%s=%s", k, formatValue(ir.ToAny(obj[k]))))
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// formatValue formats a single value for display, handling nested structures deterministically.
func formatValue(v any) string {
	switch val := v.(type) {
	case map[string]any:
		return formatArgs(val)
	case []any:
		parts := make([]string, len(val))
		for i, elem := range val {
			parts[i] = formatValue(elem)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case string:
		return val
	case nil:
		return "null"
	default:
		return fmt.Sprintf("%v", v)
	}
}

// truncateID truncates a long ID for display.
func truncateID(id string) string {
	if len(id) <= 16 {
		return id
	}
	return id[:8] + "..." + id[len(id)-8:]
}
