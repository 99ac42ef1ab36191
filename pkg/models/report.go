package models

import "time"

// ResultStatus is the outcome of handling one tag.
type ResultStatus string

const (
	ResultSuccess ResultStatus = "success"
	ResultError   ResultStatus = "error"
	ResultSkipped ResultStatus = "skipped"
)

// ResultAction names what the engine did (or would do) for a tag.
type ResultAction string

const (
	ActionPersonaSet      ResultAction = "persona_set"
	ActionPromptTriggered ResultAction = "prompt_triggered"
	ActionAddedToTodo     ResultAction = "added_to_todo"
)

// ProcessingResult records the handling of a single tag on a single task.
type ProcessingResult struct {
	Tag     string       `json:"tag"`
	Status  ResultStatus `json:"status"`
	Action  ResultAction `json:"action,omitempty"`
	Prompt  string       `json:"prompt,omitempty"`
	Note    string       `json:"note,omitempty"`
	Persona string       `json:"persona,omitempty"`
	Error   string       `json:"error,omitempty"`
	// WritesCode is set on the one prompt that unlocks code changes.
	WritesCode bool `json:"writesCode,omitempty"`
}

// TaskReport groups the per-tag results of one task.
type TaskReport struct {
	TaskID        string             `json:"taskId"`
	Title         string             `json:"title"`
	URL           string             `json:"url"`
	ProcessedTags []ProcessingResult `json:"processedTags"`
}

// Counts tallies the results of the report by status.
func (r TaskReport) Counts() (success, failed, skipped int) {
	for _, p := range r.ProcessedTags {
		switch p.Status {
		case ResultSuccess:
			success++
		case ResultError:
			failed++
		case ResultSkipped:
			skipped++
		}
	}
	return success, failed, skipped
}

// BatchReport is returned by one batch run over the tagged tasks.
// Message is only set when the store returned no tasks at all.
type BatchReport struct {
	RunID          string       `json:"runId"`
	Success        bool         `json:"success"`
	DryRun         bool         `json:"dryRun"`
	Message        string       `json:"message,omitempty"`
	TasksProcessed int          `json:"tasksProcessed"`
	Results        []TaskReport `json:"results"`
	StartedAt      time.Time    `json:"startedAt"`
	FinishedAt     time.Time    `json:"finishedAt"`
}

// NoTasksMessage is the message of a report for a batch that found nothing to do.
const NoTasksMessage = "No tasks with MCP tags found"

// Empty reports whether the batch found no tagged tasks at all.
func (b *BatchReport) Empty() bool {
	return b.Message == NoTasksMessage
}
