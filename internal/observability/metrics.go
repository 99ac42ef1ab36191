package observability

import (
	"fmt"
	"time"

	"github.com/valter-silva-au/taskflow/internal/core"
	"github.com/valter-silva-au/taskflow/pkg/models"
)

// Metrics holds calculated metrics derived from the event log.
type Metrics struct {
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
	LastBatchAt      *time.Time     `json:"last_batch_at,omitempty"`
	OldestEvent      *time.Time     `json:"oldest_event,omitempty"`
	NewestEvent      *time.Time     `json:"newest_event,omitempty"`
}

// MetricsCalculator derives metrics from the event log.
type MetricsCalculator interface {
	Calculate(since time.Time) (*Metrics, error)
}

// metricsCalculator implements MetricsCalculator by reading from an EventLog.
type metricsCalculator struct {
	eventLog EventLog
}

// NewMetricsCalculator creates a new MetricsCalculator that reads from the given EventLog.
func NewMetricsCalculator(eventLog EventLog) MetricsCalculator {
	return &metricsCalculator{eventLog: eventLog}
}

// Calculate reads all events since the given time and aggregates them into metrics.
func (mc *metricsCalculator) Calculate(since time.Time) (*Metrics, error) {
	events, err := mc.eventLog.Read(EventFilter{Since: &since})
	if err != nil {
		return nil, fmt.Errorf("reading events for metrics: %w", err)
	}

	m := &Metrics{
		PromptsTriggered: make(map[string]int),
	}

	m.EventCount = len(events)

	for i, event := range events {
		if i == 0 {
			t := event.Time
			m.OldestEvent = &t
		}
		t := event.Time
		m.NewestEvent = &t

		switch event.Type {
		case core.EventBatchCompleted:
			m.BatchesRun++
			m.LastBatchAt = &t
			if dry, _ := event.Data["dry_run"].(bool); dry {
				m.DryRuns++
			}
			m.TasksProcessed += intField(event.Data, "tasks_processed")
		case core.EventBatchFailed:
			m.BatchesRun++
			m.BatchesFailed++
			m.LastBatchAt = &t
		case core.EventTagProcessed:
			m.TagsProcessed++
			if prompt, _ := event.Data["prompt"].(string); prompt != "" {
				m.PromptsTriggered[prompt]++
			}
			if action, _ := event.Data["action"].(string); action == string(models.ActionAddedToTodo) {
				m.TodosAdded++
			}
		case core.EventPersonaSet:
			m.TagsProcessed++
			m.PersonasSet++
		case core.EventTagFailed:
			m.TagsFailed++
		case core.EventTagSkipped:
			m.TagsSkipped++
		}
	}

	return m, nil
}

// intField reads a number from event data. Values that went through JSON
// come back as float64.
func intField(data map[string]any, key string) int {
	switch v := data[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	default:
		return 0
	}
}
