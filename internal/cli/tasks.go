package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"github.com/valter-silva-au/taskflow/internal/core"
	"github.com/valter-silva-au/taskflow/pkg/models"
)

// tasksListLimit matches the cap of the query_tasks tool.
const tasksListLimit = 100

var (
	tasksStatus string
	tasksAll    bool
	tasksJSON   bool
	taskJSON    bool
)

var tasksCmd = &cobra.Command{
	Use:   "tasks",
	Short: "List tasks",
	Long: `List tasks from the task database.

Without flags, lists tasks that carry at least one workflow tag. Use --status
to list the tasks in one status, and --all to include untagged tasks.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireStore(); err != nil {
			return err
		}
		ctx := commandContext(cmd)

		var (
			tasks []*models.Task
			err   error
		)
		status := models.TaskStatus(tasksStatus)
		switch {
		case status != "" && !status.IsValid():
			return fmt.Errorf("invalid status %q: must be one of Ready, In Progress, Done", tasksStatus)
		case status != "":
			tasks, err = Store.ListTasksByStatus(ctx, status, !tasksAll)
		case tasksAll:
			return fmt.Errorf("--all requires --status")
		default:
			tasks, err = Store.ListTaggedTasks(ctx, tasksListLimit, "")
		}
		if err != nil {
			return fmt.Errorf("listing tasks: %w", err)
		}

		if tasksJSON {
			if tasks == nil {
				tasks = []*models.Task{}
			}
			return writeJSON(cmd.OutOrStdout(), tasks)
		}
		renderTaskList(cmd.OutOrStdout(), tasks)
		return nil
	},
}

var taskCmd = &cobra.Command{
	Use:   "task <id>",
	Short: "Show a task with its content",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireStore(); err != nil {
			return err
		}

		task, err := Store.GetTask(commandContext(cmd), args[0])
		if err != nil {
			return fmt.Errorf("getting task %s: %w", args[0], err)
		}

		if taskJSON {
			return writeJSON(cmd.OutOrStdout(), task)
		}
		renderTask(cmd.OutOrStdout(), task)
		return nil
	},
}

func init() {
	tasksCmd.Flags().StringVar(&tasksStatus, "status", "", "Only list tasks in this status (Ready, In Progress, Done)")
	tasksCmd.Flags().BoolVar(&tasksAll, "all", false, "Include tasks without workflow tags (requires --status)")
	tasksCmd.Flags().BoolVar(&tasksJSON, "json", false, "Output tasks as JSON")
	taskCmd.Flags().BoolVar(&taskJSON, "json", false, "Output the task as JSON")
	rootCmd.AddCommand(tasksCmd)
	rootCmd.AddCommand(taskCmd)
}

func styleForStatus(status models.TaskStatus) lipgloss.Style {
	switch status {
	case models.StatusReady:
		return statusReady
	case models.StatusInProgress:
		return statusInProgress
	case models.StatusDone:
		return statusDone
	default:
		return statusOther
	}
}

func renderTaskList(w io.Writer, tasks []*models.Task) {
	if len(tasks) == 0 {
		fmt.Fprintln(w, "No tasks found.")
		return
	}
	for _, t := range tasks {
		status := styleForStatus(t.Status).Render(fmt.Sprintf("%-12s", t.Status))
		fmt.Fprintf(w, "%s %-6s %s %s\n", status, t.Priority, t.Title, dimStyle.Render(t.ID))
		if len(t.Tags) > 0 {
			fmt.Fprintf(w, "%s tags: %s\n", strings.Repeat(" ", 19), strings.Join(core.SortByPriority(t.Tags), ", "))
		}
	}
	fmt.Fprintf(w, "\n%d task(s)\n", len(tasks))
}

func renderTask(w io.Writer, t *models.Task) {
	fmt.Fprintln(w, headerStyle.Render(t.Title))
	fmt.Fprintf(w, "  %-10s %s\n", "ID:", t.ID)
	fmt.Fprintf(w, "  %-10s %s\n", "Status:", styleForStatus(t.Status).Render(string(t.Status)))
	fmt.Fprintf(w, "  %-10s %s\n", "Priority:", t.Priority)
	if len(t.Tags) > 0 {
		fmt.Fprintf(w, "  %-10s %s\n", "Tags:", strings.Join(t.Tags, ", "))
	}
	if t.URL != "" {
		fmt.Fprintf(w, "  %-10s %s\n", "URL:", t.URL)
	}
	if t.Description != "" {
		fmt.Fprintf(w, "\n%s\n", t.Description)
	}
	content := t.Content
	if content == "" && len(t.Blocks) > 0 {
		content = core.RenderBlocks(t.Blocks)
	}
	if content != "" {
		fmt.Fprintf(w, "\n%s\n%s\n", dimStyle.Render("Content"), content)
	}
}
