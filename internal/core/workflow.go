package core

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/valter-silva-au/taskflow/internal/logging"
	"github.com/valter-silva-au/taskflow/pkg/models"
)

// DefaultBatchLimit is the number of tasks a batch reads when no limit is given.
const DefaultBatchLimit = 10

// Result notes, shared with the CLI renderer and tests.
const (
	NotePromptPreview  = "Would trigger prompt"
	NotePromptLive     = "Prompt triggered - see MCP prompts"
	NoteTodoPreview    = "Would add to todo list"
	NoteTodoLive       = "Add to todo list only - no implementation"
	NotePersonaPreview = "Would set persona and remove tag"
	NoteUnrecognized   = "Not a recognized MCP tag"
)

// BatchOptions controls one ProcessBatch call.
type BatchOptions struct {
	// Limit caps the number of tasks read; 0 means DefaultBatchLimit.
	Limit int
	// DryRun computes and reports actions without touching the store.
	DryRun bool
	// TagFilter restricts processing to one action tag, e.g. "rewrite".
	TagFilter string
	// Status restricts the batch to tasks in one status; empty means any.
	Status models.TaskStatus
}

// Validate checks the options and fills in defaults.
func (o *BatchOptions) Validate() error {
	if o.Limit < 0 {
		return NewStoreError(KindValidation, "validating batch options",
			fmt.Errorf("limit must be a positive integer, got %d", o.Limit))
	}
	if o.Limit == 0 {
		o.Limit = DefaultBatchLimit
	}
	if o.TagFilter != "" {
		if _, ok := ParseActionTag(o.TagFilter); !ok {
			return NewStoreError(KindValidation, "validating batch options",
				fmt.Errorf("unknown tag filter %q", o.TagFilter))
		}
	}
	if o.Status != "" && !o.Status.IsValid() {
		return NewStoreError(KindValidation, "validating batch options",
			fmt.Errorf("unknown status %q", o.Status))
	}
	return nil
}

// Engine walks the tags of tagged tasks in priority order and applies the
// workflow: persona tags set context for the rest of the task, action tags
// resolve to prompt triggers or list appends, and handled tags are removed.
//
// Tasks and tags are processed strictly one at a time. Store mutations are
// applied as each tag is handled, so an interrupted batch leaves the store
// reflecting exactly the work the partial report describes.
type Engine struct {
	store  TaskStore
	events EventLogger
	log    *logging.Logger
	now    func() time.Time
	newID  func() string
}

// EngineOption customizes an Engine.
type EngineOption func(*Engine)

// WithEventLogger records workflow events to events.
func WithEventLogger(events EventLogger) EngineOption {
	return func(e *Engine) {
		if events != nil {
			e.events = events
		}
	}
}

// WithLogger sets the engine's logger.
func WithLogger(log *logging.Logger) EngineOption {
	return func(e *Engine) {
		if log != nil {
			e.log = log.WithComponent("engine")
		}
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) {
		e.now = now
	}
}

// WithRunIDs replaces the run id generator, for tests.
func WithRunIDs(newID func() string) EngineOption {
	return func(e *Engine) {
		e.newID = newID
	}
}

// NewEngine creates an Engine over store.
func NewEngine(store TaskStore, opts ...EngineOption) *Engine {
	e := &Engine{
		store:  store,
		events: nopEventLogger{},
		log:    logging.Nop(),
		now:    func() time.Time { return time.Now().UTC() },
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ProcessBatch reads up to opts.Limit tagged tasks and processes their tags.
//
// A failure to list tasks is returned as an error with no report. Failures
// on individual tags are recorded in the report and never stop the batch.
// If ctx is cancelled between tasks, the partial report is returned together
// with the cancellation error.
func (e *Engine) ProcessBatch(ctx context.Context, opts BatchOptions) (*models.BatchReport, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	report := &models.BatchReport{
		RunID:     e.newID(),
		DryRun:    opts.DryRun,
		StartedAt: e.now(),
		Results:   []models.TaskReport{},
	}
	e.logEvent(EventBatchStarted, map[string]any{
		"run_id":     report.RunID,
		"dry_run":    opts.DryRun,
		"limit":      opts.Limit,
		"tag_filter": opts.TagFilter,
		"status":     string(opts.Status),
	})

	tasks, err := e.store.ListTaggedTasks(ctx, opts.Limit, opts.Status)
	if err != nil {
		e.logEvent(EventBatchFailed, map[string]any{
			"run_id": report.RunID,
			"error":  err.Error(),
		})
		e.log.Err(err).Str("run_id", report.RunID).Msg("listing tagged tasks failed")
		return nil, fmt.Errorf("listing tagged tasks: %w", err)
	}

	if len(tasks) == 0 {
		report.Success = true
		report.Message = models.NoTasksMessage
		report.FinishedAt = e.now()
		e.completeBatch(report)
		return report, nil
	}

	for _, task := range tasks {
		if err := ctx.Err(); err != nil {
			report.FinishedAt = e.now()
			report.TasksProcessed = len(report.Results)
			report.Message = fmt.Sprintf("batch interrupted after %d task(s)", report.TasksProcessed)
			e.logEvent(EventBatchFailed, map[string]any{
				"run_id": report.RunID,
				"error":  err.Error(),
			})
			return report, fmt.Errorf("processing batch: %w", err)
		}

		taskReport, ok := e.ProcessTask(ctx, task, opts)
		if !ok {
			continue
		}
		report.Results = append(report.Results, taskReport)
	}

	report.Success = true
	report.TasksProcessed = len(report.Results)
	report.FinishedAt = e.now()
	e.completeBatch(report)
	return report, nil
}

// ProcessTask handles the tags of a single task. ok is false when the task
// has no tags left after applying opts.TagFilter; such tasks get no report.
func (e *Engine) ProcessTask(ctx context.Context, task *models.Task, opts BatchOptions) (report models.TaskReport, ok bool) {
	tags := FilterTags(task.Tags, opts.TagFilter)
	if len(tags) == 0 {
		return models.TaskReport{}, false
	}

	report = models.TaskReport{
		TaskID:        task.ID,
		Title:         task.Title,
		URL:           task.URL,
		ProcessedTags: make([]models.ProcessingResult, 0, len(tags)),
	}

	// The persona is threaded through the fold and dies with it, so it can
	// never carry over to the next task.
	var persona personaContext
	for _, raw := range SortByPriority(tags) {
		var result models.ProcessingResult
		result, persona = e.processTag(ctx, task, ParseTag(raw), persona, opts.DryRun)
		report.ProcessedTags = append(report.ProcessedTags, result)
	}

	return report, true
}

// personaContext is the viewpoint set by the latest persona tag of a task.
type personaContext struct {
	persona string
}

func (p personaContext) with(persona string) personaContext {
	return personaContext{persona: persona}
}

func (e *Engine) processTag(ctx context.Context, task *models.Task, tag Tag, pc personaContext, dryRun bool) (models.ProcessingResult, personaContext) {
	if tag.Kind == KindPersona {
		next := pc.with(tag.Persona)
		result := models.ProcessingResult{
			Tag:     tag.Raw,
			Status:  models.ResultSuccess,
			Action:  models.ActionPersonaSet,
			Persona: tag.Persona,
		}
		if dryRun {
			result.Note = NotePersonaPreview
		} else if err := e.store.RemoveTag(ctx, task.ID, tag.Raw); err != nil {
			return e.failed(task, result, err), next
		}
		e.logEvent(EventPersonaSet, map[string]any{
			"task_id": task.ID,
			"tag":     tag.Raw,
			"persona": tag.Persona,
			"dry_run": dryRun,
		})
		return result, next
	}

	spec := Resolve(tag.Kind)
	result := models.ProcessingResult{
		Tag:     tag.Raw,
		Persona: pc.persona,
	}

	switch spec.Kind {
	case ActionPromptTrigger:
		result.Status = models.ResultSuccess
		result.Action = models.ActionPromptTriggered
		result.Prompt = string(spec.Prompt)
		result.WritesCode = spec.Prompt.WritesCode()
		result.Note = NotePromptLive
		if dryRun {
			result.Note = NotePromptPreview
		}
	case ActionListAppend:
		result.Status = models.ResultSuccess
		result.Action = models.ActionAddedToTodo
		result.Note = NoteTodoLive
		if dryRun {
			result.Note = NoteTodoPreview
		}
	case ActionUnrecognized:
		result.Status = models.ResultSkipped
		result.Note = NoteUnrecognized
		e.logEvent(EventTagSkipped, map[string]any{
			"task_id": task.ID,
			"tag":     tag.Raw,
		})
		return result, pc
	}

	if !dryRun && spec.Removable() {
		if err := e.store.RemoveTag(ctx, task.ID, tag.Raw); err != nil {
			return e.failed(task, result, err), pc
		}
	}

	e.logEvent(EventTagProcessed, map[string]any{
		"task_id":     task.ID,
		"tag":         tag.Raw,
		"kind":        tag.Kind.String(),
		"action":      string(result.Action),
		"prompt":      result.Prompt,
		"persona":     result.Persona,
		"writes_code": result.WritesCode,
		"dry_run":     dryRun,
	})
	e.log.Debug().
		Str("task_id", task.ID).
		Str("tag", tag.Raw).
		Str("action", string(result.Action)).
		Bool("dry_run", dryRun).
		Msg("tag processed")
	return result, pc
}

// failed turns a result into an error result, keeping what was resolved so
// the report still shows which action was attempted.
func (e *Engine) failed(task *models.Task, result models.ProcessingResult, err error) models.ProcessingResult {
	result.Status = models.ResultError
	result.Note = ""
	result.Error = err.Error()

	e.logEvent(EventTagFailed, map[string]any{
		"task_id": task.ID,
		"tag":     result.Tag,
		"error":   err.Error(),
	})
	e.log.Warn().
		Err(err).
		Str("task_id", task.ID).
		Str("tag", result.Tag).
		Msg("tag processing failed")
	return result
}

func (e *Engine) completeBatch(report *models.BatchReport) {
	var success, failed, skipped int
	for _, r := range report.Results {
		s, f, k := r.Counts()
		success += s
		failed += f
		skipped += k
	}
	e.logEvent(EventBatchCompleted, map[string]any{
		"run_id":          report.RunID,
		"dry_run":         report.DryRun,
		"tasks_processed": report.TasksProcessed,
		"tags_succeeded":  success,
		"tags_failed":     failed,
		"tags_skipped":    skipped,
	})
	e.log.Info().
		Str("run_id", report.RunID).
		Bool("dry_run", report.DryRun).
		Int("tasks", report.TasksProcessed).
		Int("succeeded", success).
		Int("failed", failed).
		Int("skipped", skipped).
		Msg("batch completed")
}

func (e *Engine) logEvent(eventType string, data map[string]any) {
	if err := e.events.LogEvent(eventType, data); err != nil {
		e.log.Debug().Err(err).Str("event", eventType).Msg("writing event failed")
	}
}

// FilterTags returns the tags equal to filter, compared case-insensitively
// after trimming. An empty filter returns tags unchanged.
func FilterTags(tags []string, filter string) []string {
	if filter == "" {
		return tags
	}
	want := NormalizeTag(filter)
	var kept []string
	for _, t := range tags {
		if NormalizeTag(t) == want {
			kept = append(kept, t)
		}
	}
	return kept
}
