package core

// Workflow event types written to the event log.
const (
	EventBatchStarted   = "batch.started"
	EventBatchCompleted = "batch.completed"
	EventBatchFailed    = "batch.failed"
	EventPersonaSet     = "persona.set"
	EventTagProcessed   = "tag.processed"
	EventTagFailed      = "tag.failed"
	EventTagSkipped     = "tag.skipped"
)

// EventLogger is the subset of the observability event log that core
// services need. Defining it here avoids importing the observability package.
type EventLogger interface {
	LogEvent(eventType string, data map[string]any) error
}

type nopEventLogger struct{}

func (nopEventLogger) LogEvent(string, map[string]any) error { return nil }
