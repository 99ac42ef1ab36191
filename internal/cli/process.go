package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"github.com/valter-silva-au/taskflow/internal/core"
	"github.com/valter-silva-au/taskflow/pkg/models"
)

var (
	processLimit  int
	processDryRun bool
	processTag    string
	processStatus string
	processJSON   bool
)

var processCmd = &cobra.Command{
	Use:   "process",
	Short: "Process workflow tags on tagged tasks",
	Long: `Run one batch of the tag workflow.

Tagged tasks are read highest priority first. On each task the tags are
handled in priority order: persona tags set the persona for later tags,
analysis tags trigger the matching prompt, "to-do" adds the task to the
to-do list and "code" unlocks implementation. Handled tags are removed
from the task. Unrecognized tags are reported and left in place.

Use --dry-run to see what would happen without changing any task.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt)
		defer stop()

		report, err := runBatch(ctx, core.BatchOptions{
			Limit:     processLimit,
			DryRun:    processDryRun,
			TagFilter: processTag,
			Status:    models.TaskStatus(processStatus),
		})
		if report != nil {
			if processJSON {
				if werr := writeJSON(cmd.OutOrStdout(), report); werr != nil {
					return werr
				}
			} else {
				renderBatchReport(cmd.OutOrStdout(), report)
			}
		}
		if err != nil {
			return fmt.Errorf("processing tasks: %w", err)
		}
		return nil
	},
}

func init() {
	processCmd.Flags().IntVar(&processLimit, "limit", core.DefaultBatchLimit, "Maximum number of tasks to read")
	processCmd.Flags().BoolVar(&processDryRun, "dry-run", false, "Report actions without changing any task")
	processCmd.Flags().StringVar(&processTag, "tag", "", "Only handle this action tag, e.g. rewrite")
	processCmd.Flags().StringVar(&processStatus, "status", "", "Only read tasks in this status (Ready, In Progress, Done)")
	processCmd.Flags().BoolVar(&processJSON, "json", false, "Output the report as JSON")
	rootCmd.AddCommand(processCmd)
}

func writeJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("formatting JSON: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

var (
	resultSuccess = lipgloss.NewStyle().Foreground(lipgloss.Color("46"))
	resultError   = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	resultSkipped = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	dimStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

func styleForResult(status models.ResultStatus) lipgloss.Style {
	switch status {
	case models.ResultSuccess:
		return resultSuccess
	case models.ResultError:
		return resultError
	default:
		return resultSkipped
	}
}

// renderBatchReport prints a human-readable summary of report.
func renderBatchReport(w io.Writer, report *models.BatchReport) {
	mode := "live"
	if report.DryRun {
		mode = "dry run"
	}
	fmt.Fprintln(w, headerStyle.Render(fmt.Sprintf("Batch %s (%s)", report.RunID, mode)))

	if report.Empty() {
		fmt.Fprintf(w, "  %s\n", report.Message)
		return
	}

	var ok, failed, skipped int
	for _, tr := range report.Results {
		fmt.Fprintf(w, "\n  %s %s\n", tr.Title, dimStyle.Render(tr.TaskID))
		for _, r := range tr.ProcessedTags {
			label := styleForResult(r.Status).Render(fmt.Sprintf("%-8s", r.Status))
			fmt.Fprintf(w, "    %s %-24s %s\n", label, r.Tag, describeResult(r))
		}
		s, f, k := tr.Counts()
		ok += s
		failed += f
		skipped += k
	}

	fmt.Fprintf(w, "\n  Tasks: %d  Succeeded: %d  Failed: %d  Skipped: %d\n",
		report.TasksProcessed, ok, failed, skipped)
}

func describeResult(r models.ProcessingResult) string {
	var parts []string
	switch {
	case r.Error != "":
		parts = append(parts, r.Error)
	case r.Prompt != "":
		parts = append(parts, "prompt "+r.Prompt)
	case r.Action != "":
		parts = append(parts, string(r.Action))
	}
	if r.Note != "" && r.Error == "" {
		parts = append(parts, r.Note)
	}
	if r.Persona != "" {
		parts = append(parts, "as "+r.Persona)
	}
	if r.WritesCode && r.Error == "" {
		parts = append(parts, "code changes allowed")
	}
	return strings.Join(parts, " | ")
}

// runBatch runs one batch with the configured engine.
func runBatch(ctx context.Context, opts core.BatchOptions) (*models.BatchReport, error) {
	if err := requireStore(); err != nil {
		return nil, err
	}
	return Engine.ProcessBatch(ctx, opts)
}
