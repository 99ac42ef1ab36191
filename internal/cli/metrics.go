package cli

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"
	tfmcp "github.com/valter-silva-au/taskflow/internal/mcp"
)

var (
	metricsJSON  bool
	metricsSince string
)

var metricsCmd = &cobra.Command{
	Use:   "metrics",
	Short: "Display workflow metrics",
	Long: `Display aggregated metrics derived from the event log.

Metrics include batches run, tags processed, failed and skipped, personas
set, to-do entries added and how often each prompt was triggered.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if MetricsCalc == nil {
			return fmt.Errorf("metrics calculator not initialized (event log may be unavailable)")
		}

		sinceTime, err := parseSinceDuration(metricsSince)
		if err != nil {
			return fmt.Errorf("parsing --since: %w", err)
		}

		metrics, err := MetricsCalc.Calculate(sinceTime)
		if err != nil {
			return fmt.Errorf("calculating metrics: %w", err)
		}

		out := cmd.OutOrStdout()
		if metricsJSON {
			return writeJSON(out, metrics)
		}

		fmt.Fprintf(out, "Metrics (since %s)\n\n", sinceTime.Format("2006-01-02"))
		fmt.Fprintf(out, "  %-24s %d\n", "Events recorded:", metrics.EventCount)
		fmt.Fprintf(out, "  %-24s %d\n", "Batches run:", metrics.BatchesRun)
		fmt.Fprintf(out, "  %-24s %d\n", "Batches failed:", metrics.BatchesFailed)
		fmt.Fprintf(out, "  %-24s %d\n", "Dry runs:", metrics.DryRuns)
		fmt.Fprintf(out, "  %-24s %d\n", "Tasks processed:", metrics.TasksProcessed)
		fmt.Fprintf(out, "  %-24s %d\n", "Tags processed:", metrics.TagsProcessed)
		fmt.Fprintf(out, "  %-24s %d\n", "Tags failed:", metrics.TagsFailed)
		fmt.Fprintf(out, "  %-24s %d\n", "Tags skipped:", metrics.TagsSkipped)
		fmt.Fprintf(out, "  %-24s %d\n", "Personas set:", metrics.PersonasSet)
		fmt.Fprintf(out, "  %-24s %d\n", "To-do entries added:", metrics.TodosAdded)

		if len(metrics.PromptsTriggered) > 0 {
			fmt.Fprintln(out, "\n  Prompts triggered:")
			names := make([]string, 0, len(metrics.PromptsTriggered))
			for name := range metrics.PromptsTriggered {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				fmt.Fprintf(out, "    %-24s %d\n", name+":", metrics.PromptsTriggered[name])
			}
		}

		if metrics.LastBatchAt != nil {
			fmt.Fprintf(out, "\n  %-24s %s\n", "Last batch:", metrics.LastBatchAt.Format(time.RFC3339))
		}
		if metrics.OldestEvent != nil {
			fmt.Fprintf(out, "  %-24s %s\n", "Oldest event:", metrics.OldestEvent.Format(time.RFC3339))
		}
		if metrics.NewestEvent != nil {
			fmt.Fprintf(out, "  %-24s %s\n", "Newest event:", metrics.NewestEvent.Format(time.RFC3339))
		}

		return nil
	},
}

// parseSinceDuration parses a human-friendly duration string like "7d", "30d",
// or "24h" and returns the corresponding time in the past. Empty means 7d.
func parseSinceDuration(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		s = "7d"
	}
	return tfmcp.ParseSince(s, time.Now().UTC())
}

func init() {
	metricsCmd.Flags().BoolVar(&metricsJSON, "json", false, "Output metrics as JSON")
	metricsCmd.Flags().StringVar(&metricsSince, "since", "7d", "Time window for metrics (e.g. 7d, 30d, 24h)")
	rootCmd.AddCommand(metricsCmd)
}
