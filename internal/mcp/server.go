// Package mcp provides an MCP (Model Context Protocol) server that exposes
// the tag workflow, the task store and the workflow prompts to AI coding
// assistants.
package mcp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	gomcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/valter-silva-au/taskflow/internal/core"
	"github.com/valter-silva-au/taskflow/internal/logging"
	"github.com/valter-silva-au/taskflow/internal/observability"
	"github.com/valter-silva-au/taskflow/pkg/models"
)

// queryLimit caps query_tasks and the tagged-tasks resource.
const queryLimit = 100

// BatchProcessor runs the tag workflow. *core.Engine satisfies it.
type BatchProcessor interface {
	ProcessBatch(ctx context.Context, opts core.BatchOptions) (*models.BatchReport, error)
}

// Deps are the services the server exposes. Images, Metrics and Alerts may
// be nil; the tools that need them then report that they are unavailable.
type Deps struct {
	Store   core.TaskStore
	Engine  BatchProcessor
	Images  core.ImageFetcher
	Metrics observability.MetricsCalculator
	Alerts  observability.AlertEngine
	Logger  *logging.Logger
}

// Server wraps taskflow services and exposes them as MCP tools, resources
// and prompts.
type Server struct {
	server      *gomcp.Server
	store       core.TaskStore
	engine      BatchProcessor
	images      core.ImageFetcher
	metricsCalc observability.MetricsCalculator
	alertEngine observability.AlertEngine
	log         *logging.Logger
}

// NewServer creates a new MCP server over deps.
func NewServer(deps Deps, version string) *Server {
	if version == "" {
		version = "dev"
	}

	s := &Server{
		store:       deps.Store,
		engine:      deps.Engine,
		images:      deps.Images,
		metricsCalc: deps.Metrics,
		alertEngine: deps.Alerts,
		log:         logging.Nop(),
	}
	if deps.Logger != nil {
		s.log = deps.Logger.WithComponent("mcp")
	}

	s.server = gomcp.NewServer(
		&gomcp.Implementation{Name: "taskflow-mcp", Version: version},
		nil,
	)

	s.registerTools()
	s.registerResources()
	s.registerPrompts()

	return s
}

// Run starts the MCP server on stdio, blocking until the client disconnects
// or the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx, &gomcp.StdioTransport{})
}

// MCPServer returns the underlying mcp.Server for testing purposes.
func (s *Server) MCPServer() *gomcp.Server {
	return s.server
}

// --- Tool input/output types ---

type processTasksInput struct {
	Limit       int    `json:"limit,omitempty" jsonschema:"maximum number of tasks to process (default 10)"`
	DryRun      bool   `json:"dryRun,omitempty" jsonschema:"preview what would be processed without removing any tags"`
	SpecificTag string `json:"specificTag,omitempty" jsonschema:"process only this tag across all tasks: interrogate, expand, estimate, critique, user stories, rewrite, to-do, code or confirm"`
}

type resultOutput struct {
	Tag        string `json:"tag"`
	Status     string `json:"status"`
	Action     string `json:"action,omitempty"`
	Prompt     string `json:"prompt,omitempty"`
	WritesCode bool   `json:"writesCode,omitempty"`
	Note       string `json:"note,omitempty"`
	Persona    string `json:"persona,omitempty"`
	Error      string `json:"error,omitempty"`
}

type taskReportOutput struct {
	TaskID        string         `json:"taskId"`
	Title         string         `json:"title"`
	URL           string         `json:"url"`
	ProcessedTags []resultOutput `json:"processedTags"`
}

type batchReportOutput struct {
	RunID          string             `json:"runId"`
	Success        bool               `json:"success"`
	DryRun         bool               `json:"dryRun"`
	Message        string             `json:"message,omitempty"`
	TasksProcessed int                `json:"tasksProcessed"`
	Results        []taskReportOutput `json:"results"`
	StartedAt      string             `json:"startedAt"`
	FinishedAt     string             `json:"finishedAt"`
}

type queryTasksInput struct {
	Status     string `json:"status,omitempty" jsonschema:"filter by task status: Ready, In Progress or Done"`
	HasMcpTags *bool  `json:"hasMcpTags,omitempty" jsonschema:"only return tasks with MCP tags (default true)"`
}

type taskOutput struct {
	ID             string   `json:"id"`
	Title          string   `json:"title"`
	URL            string   `json:"url"`
	Status         string   `json:"status"`
	Priority       string   `json:"priority"`
	Description    string   `json:"description"`
	McpTags        []string `json:"mcpTags"`
	FullContent    string   `json:"fullContent,omitempty"`
	CreatedTime    string   `json:"createdTime,omitempty"`
	LastEditedTime string   `json:"lastEditedTime,omitempty"`
}

type queryTasksOutput struct {
	Tasks []taskOutput `json:"tasks"`
	Count int          `json:"count"`
}

type getTaskInput struct {
	TaskID string `json:"taskId" jsonschema:"the Notion page ID of the task"`
}

type addCommentInput struct {
	TaskID  string `json:"taskId" jsonschema:"the Notion page ID of the task"`
	Comment string `json:"comment" jsonschema:"comment text (markdown supported)"`
}

type updateTaskInput struct {
	TaskID            string   `json:"taskId" jsonschema:"the Notion page ID of the task"`
	Description       string   `json:"description,omitempty" jsonschema:"new task description, replacing the current one"`
	AppendDescription string   `json:"appendDescription,omitempty" jsonschema:"text to append to the current description after a separator"`
	Status            string   `json:"status,omitempty" jsonschema:"new task status: Ready, In Progress or Done"`
	RemoveTags        []string `json:"removeTags,omitempty" jsonschema:"MCP tag names to remove"`
}

type messageOutput struct {
	Message string `json:"message"`
}

type getMetricsInput struct {
	Since string `json:"since,omitempty" jsonschema:"time window for metrics (e.g. 7d, 30d, 24h). Defaults to 7d."`
}

type metricsOutput struct {
	BatchesRun       int            `json:"batches_run"`
	BatchesFailed    int            `json:"batches_failed"`
	DryRuns          int            `json:"dry_runs"`
	TasksProcessed   int            `json:"tasks_processed"`
	TagsProcessed    int            `json:"tags_processed"`
	TagsFailed       int            `json:"tags_failed"`
	TagsSkipped      int            `json:"tags_skipped"`
	PersonasSet      int            `json:"personas_set"`
	TodosAdded       int            `json:"todos_added"`
	PromptsTriggered map[string]int `json:"prompts_triggered"`
	EventCount       int            `json:"event_count"`
	LastBatchAt      string         `json:"last_batch_at,omitempty"`
	OldestEvent      string         `json:"oldest_event,omitempty"`
	NewestEvent      string         `json:"newest_event,omitempty"`
}

type getAlertsInput struct{}

type alertOutput struct {
	ID          string `json:"id"`
	Condition   string `json:"condition"`
	Severity    string `json:"severity"`
	Message     string `json:"message"`
	TriggeredAt string `json:"triggered_at"`
}

type getAlertsOutput struct {
	Alerts []alertOutput `json:"alerts"`
	Count  int           `json:"count"`
}

// --- Tool registration ---

func (s *Server) registerTools() {
	gomcp.AddTool(s.server, &gomcp.Tool{
		Name: "process_tasks",
		Description: "Process all tasks with MCP tags. Tags are handled in priority order: think like, interrogate, rewrite, estimate, expand, critique, user stories, to-do, code, confirm. " +
			"Interrogate, expand, critique, estimate and confirm trigger prompts that add comments; rewrite replaces the description; user stories appends to it; " +
			"to-do only adds the task to the todo list; code is the ONLY tag that writes code. Each handled tag is removed from the task after processing.",
	}, s.handleProcessTasks)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "query_tasks",
		Description: "Query tasks from the task database, optionally by status.",
	}, s.handleQueryTasks)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "get_task",
		Description: "Get one task by its page ID, including the rendered page content.",
	}, s.handleGetTask)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "add_comment",
		Description: "Add a comment to a task.",
	}, s.handleAddComment)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "update_task",
		Description: "Update task properties: replace or append to the description, change the status, or remove tags.",
	}, s.handleUpdateTask)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "get_metrics",
		Description: "Get aggregated workflow metrics from the event log: batches run, tags processed, failed and skipped, prompts triggered and personas set.",
	}, s.handleGetMetrics)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "get_alerts",
		Description: "Evaluate and return active alerts (repeatedly failing tags, unrecognized tags left on tasks, failed last batch).",
	}, s.handleGetAlerts)
}

// --- Tool handlers ---

func (s *Server) handleProcessTasks(ctx context.Context, _ *gomcp.CallToolRequest, input processTasksInput) (*gomcp.CallToolResult, batchReportOutput, error) {
	opts := core.BatchOptions{
		Limit:     input.Limit,
		DryRun:    input.DryRun,
		TagFilter: input.SpecificTag,
	}

	report, err := s.engine.ProcessBatch(ctx, opts)
	if err != nil {
		if report != nil {
			// Interrupted: the partial report still goes back to the caller.
			return errorResult(fmt.Sprintf("processing tasks: %s", err)), reportToOutput(report), nil
		}
		return errorResult(fmt.Sprintf("processing tasks: %s", err)), batchReportOutput{}, nil
	}

	return nil, reportToOutput(report), nil
}

func (s *Server) handleQueryTasks(ctx context.Context, _ *gomcp.CallToolRequest, input queryTasksInput) (*gomcp.CallToolResult, queryTasksOutput, error) {
	var tasks []*models.Task
	var err error

	if input.Status != "" {
		status := models.TaskStatus(input.Status)
		if !status.IsValid() {
			return errorResult(invalidStatusMessage(input.Status)), queryTasksOutput{}, nil
		}
		tagged := input.HasMcpTags == nil || *input.HasMcpTags
		tasks, err = s.store.ListTasksByStatus(ctx, status, tagged)
	} else {
		tasks, err = s.store.ListTaggedTasks(ctx, queryLimit, "")
	}

	if err != nil {
		return errorResult(fmt.Sprintf("querying tasks: %s", err)), queryTasksOutput{}, nil
	}

	out := queryTasksOutput{
		Tasks: make([]taskOutput, len(tasks)),
		Count: len(tasks),
	}
	for i, t := range tasks {
		out.Tasks[i] = taskToOutput(t)
	}

	return nil, out, nil
}

func (s *Server) handleGetTask(ctx context.Context, _ *gomcp.CallToolRequest, input getTaskInput) (*gomcp.CallToolResult, taskOutput, error) {
	if input.TaskID == "" {
		return errorResult("taskId is required"), taskOutput{}, nil
	}

	task, err := s.store.GetTask(ctx, input.TaskID)
	if err != nil {
		return errorResult(fmt.Sprintf("getting task %s: %s", input.TaskID, err)), taskOutput{}, nil
	}

	return nil, taskToOutput(task), nil
}

func (s *Server) handleAddComment(ctx context.Context, _ *gomcp.CallToolRequest, input addCommentInput) (*gomcp.CallToolResult, messageOutput, error) {
	if input.TaskID == "" {
		return errorResult("taskId is required"), messageOutput{}, nil
	}
	if strings.TrimSpace(input.Comment) == "" {
		return errorResult("comment is required"), messageOutput{}, nil
	}

	if err := s.store.AddComment(ctx, input.TaskID, input.Comment); err != nil {
		return errorResult(fmt.Sprintf("adding comment to task %s: %s", input.TaskID, err)), messageOutput{}, nil
	}

	s.log.Info().Str("task_id", input.TaskID).Int("chars", len(input.Comment)).Msg("comment added")
	return nil, messageOutput{Message: "Comment added successfully"}, nil
}

func (s *Server) handleUpdateTask(ctx context.Context, _ *gomcp.CallToolRequest, input updateTaskInput) (*gomcp.CallToolResult, messageOutput, error) {
	if input.TaskID == "" {
		return errorResult("taskId is required"), messageOutput{}, nil
	}
	if input.Description != "" && input.AppendDescription != "" {
		return errorResult("description and appendDescription cannot be used together"), messageOutput{}, nil
	}
	status := models.TaskStatus(input.Status)
	if input.Status != "" && !status.IsValid() {
		return errorResult(invalidStatusMessage(input.Status)), messageOutput{}, nil
	}

	var applied []string

	if input.Description != "" {
		if err := s.store.SetDescription(ctx, input.TaskID, input.Description); err != nil {
			return errorResult(fmt.Sprintf("updating description of task %s: %s", input.TaskID, err)), messageOutput{}, nil
		}
		applied = append(applied, "description")
	}

	if input.AppendDescription != "" {
		task, err := s.store.GetTask(ctx, input.TaskID)
		if err != nil {
			return errorResult(fmt.Sprintf("getting task %s: %s", input.TaskID, err)), messageOutput{}, nil
		}
		text := input.AppendDescription
		if strings.TrimSpace(task.Description) != "" {
			text = task.Description + core.AppendSeparator + input.AppendDescription
		}
		if err := s.store.AppendDescription(ctx, input.TaskID, text); err != nil {
			return errorResult(fmt.Sprintf("appending to description of task %s: %s", input.TaskID, err)), messageOutput{}, nil
		}
		applied = append(applied, "description appended")
	}

	if input.Status != "" {
		if err := s.store.SetStatus(ctx, input.TaskID, status); err != nil {
			return errorResult(fmt.Sprintf("updating status of task %s: %s", input.TaskID, err)), messageOutput{}, nil
		}
		applied = append(applied, "status")
	}

	for _, tag := range input.RemoveTags {
		if err := s.store.RemoveTag(ctx, input.TaskID, tag); err != nil {
			return errorResult(fmt.Sprintf("removing tag %q from task %s: %s", tag, input.TaskID, err)), messageOutput{}, nil
		}
	}
	if len(input.RemoveTags) > 0 {
		applied = append(applied, "tags removed")
	}

	s.log.Info().Str("task_id", input.TaskID).Strs("applied", applied).Msg("task updated")
	return nil, messageOutput{Message: "Task updated successfully"}, nil
}

func (s *Server) handleGetMetrics(_ context.Context, _ *gomcp.CallToolRequest, input getMetricsInput) (*gomcp.CallToolResult, metricsOutput, error) {
	if s.metricsCalc == nil {
		return errorResult("metrics calculator not available (event log may be disabled)"), emptyMetricsOutput(), nil
	}

	sinceStr := input.Since
	if sinceStr == "" {
		sinceStr = "7d"
	}

	sinceTime, err := ParseSince(sinceStr, time.Now().UTC())
	if err != nil {
		return errorResult(fmt.Sprintf("parsing since duration: %s", err)), emptyMetricsOutput(), nil
	}

	metrics, err := s.metricsCalc.Calculate(sinceTime)
	if err != nil {
		return errorResult(fmt.Sprintf("calculating metrics: %s", err)), emptyMetricsOutput(), nil
	}

	out := metricsOutput{
		BatchesRun:       metrics.BatchesRun,
		BatchesFailed:    metrics.BatchesFailed,
		DryRuns:          metrics.DryRuns,
		TasksProcessed:   metrics.TasksProcessed,
		TagsProcessed:    metrics.TagsProcessed,
		TagsFailed:       metrics.TagsFailed,
		TagsSkipped:      metrics.TagsSkipped,
		PersonasSet:      metrics.PersonasSet,
		TodosAdded:       metrics.TodosAdded,
		PromptsTriggered: metrics.PromptsTriggered,
		EventCount:       metrics.EventCount,
		LastBatchAt:      formatTimePtr(metrics.LastBatchAt),
		OldestEvent:      formatTimePtr(metrics.OldestEvent),
		NewestEvent:      formatTimePtr(metrics.NewestEvent),
	}
	if out.PromptsTriggered == nil {
		out.PromptsTriggered = map[string]int{}
	}

	return nil, out, nil
}

func (s *Server) handleGetAlerts(_ context.Context, _ *gomcp.CallToolRequest, _ getAlertsInput) (*gomcp.CallToolResult, getAlertsOutput, error) {
	if s.alertEngine == nil {
		return errorResult("alert engine not available (event log may be disabled)"), getAlertsOutput{}, nil
	}

	alerts, err := s.alertEngine.Evaluate()
	if err != nil {
		return errorResult(fmt.Sprintf("evaluating alerts: %s", err)), getAlertsOutput{}, nil
	}

	out := getAlertsOutput{
		Alerts: make([]alertOutput, len(alerts)),
		Count:  len(alerts),
	}
	for i, a := range alerts {
		out.Alerts[i] = alertOutput{
			ID:          a.ID,
			Condition:   a.Condition,
			Severity:    string(a.Severity),
			Message:     a.Message,
			TriggeredAt: a.TriggeredAt.Format(time.RFC3339),
		}
	}

	return nil, out, nil
}

// --- Helpers ---

func reportToOutput(r *models.BatchReport) batchReportOutput {
	out := batchReportOutput{
		RunID:          r.RunID,
		Success:        r.Success,
		DryRun:         r.DryRun,
		Message:        r.Message,
		TasksProcessed: r.TasksProcessed,
		Results:        make([]taskReportOutput, len(r.Results)),
		StartedAt:      r.StartedAt.Format(time.RFC3339),
		FinishedAt:     r.FinishedAt.Format(time.RFC3339),
	}
	for i, tr := range r.Results {
		tags := make([]resultOutput, len(tr.ProcessedTags))
		for j, p := range tr.ProcessedTags {
			tags[j] = resultOutput{
				Tag:        p.Tag,
				Status:     string(p.Status),
				Action:     string(p.Action),
				Prompt:     p.Prompt,
				WritesCode: p.WritesCode,
				Note:       p.Note,
				Persona:    p.Persona,
				Error:      p.Error,
			}
		}
		out.Results[i] = taskReportOutput{
			TaskID:        tr.TaskID,
			Title:         tr.Title,
			URL:           tr.URL,
			ProcessedTags: tags,
		}
	}
	return out
}

func taskToOutput(t *models.Task) taskOutput {
	tags := t.Tags
	if tags == nil {
		tags = []string{}
	}
	return taskOutput{
		ID:             t.ID,
		Title:          t.Title,
		URL:            t.URL,
		Status:         string(t.Status),
		Priority:       string(t.Priority),
		Description:    t.Description,
		McpTags:        tags,
		FullContent:    t.Content,
		CreatedTime:    formatTime(t.CreatedTime),
		LastEditedTime: formatTime(t.LastEditedTime),
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return formatTime(*t)
}

func emptyMetricsOutput() metricsOutput {
	return metricsOutput{PromptsTriggered: make(map[string]int)}
}

func invalidStatusMessage(status string) string {
	names := make([]string, len(models.ValidStatuses))
	for i, v := range models.ValidStatuses {
		names[i] = string(v)
	}
	return fmt.Sprintf("invalid status %q: must be one of %s", status, strings.Join(names, ", "))
}

func errorResult(msg string) *gomcp.CallToolResult {
	return &gomcp.CallToolResult{
		Content: []gomcp.Content{&gomcp.TextContent{Text: msg}},
		IsError: true,
	}
}

// ParseSince parses a human-friendly duration string like "7d", "30d", or
// "24h" into the corresponding time before now.
func ParseSince(s string, now time.Time) (time.Time, error) {
	if len(s) < 2 {
		return time.Time{}, fmt.Errorf("invalid duration %q", s)
	}

	suffix := s[len(s)-1]
	numStr := s[:len(s)-1]
	var num int
	if _, err := fmt.Sscanf(numStr, "%d", &num); err != nil {
		return time.Time{}, fmt.Errorf("invalid duration %q: %w", s, err)
	}
	if num < 0 {
		return time.Time{}, fmt.Errorf("invalid duration %q: must not be negative", s)
	}

	switch suffix {
	case 'd':
		return now.AddDate(0, 0, -num), nil
	case 'h':
		return now.Add(-time.Duration(num) * time.Hour), nil
	default:
		return time.Time{}, fmt.Errorf("unsupported duration suffix %q (use d or h)", string(suffix))
	}
}

// isNotFound reports whether err means the task does not exist.
func isNotFound(err error) bool {
	return errors.Is(err, core.ErrNotFound)
}
