package observability

import (
	"fmt"
	"sort"
	"time"

	"github.com/valter-silva-au/taskflow/internal/core"
	"github.com/valter-silva-au/taskflow/pkg/models"
)

// AlertSeverity represents the urgency of an alert.
type AlertSeverity string

const (
	SeverityHigh   AlertSeverity = "high"
	SeverityMedium AlertSeverity = "medium"
	SeverityLow    AlertSeverity = "low"
)

// Alert conditions.
const (
	ConditionRepeatedTagFailure = "repeated_tag_failure"
	ConditionUnrecognizedTag    = "unrecognized_tag_lingering"
	ConditionLastBatchFailed    = "last_batch_failed"
)

// Alert represents a triggered alert condition.
type Alert struct {
	ID          string        `json:"id"`
	Condition   string        `json:"condition"`
	Severity    AlertSeverity `json:"severity"`
	Message     string        `json:"message"`
	TriggeredAt time.Time     `json:"triggered_at"`
}

// AlertThresholds configures when alerts should fire.
type AlertThresholds struct {
	FailedTagCount      int `yaml:"failed_tag_threshold" json:"failed_tag_threshold"`
	UnrecognizedTagDays int `yaml:"unrecognized_tag_days" json:"unrecognized_tag_days"`
}

// DefaultAlertThresholds returns sensible defaults for alert thresholds.
func DefaultAlertThresholds() AlertThresholds {
	return AlertThresholds{
		FailedTagCount:      3,
		UnrecognizedTagDays: 7,
	}
}

// AlertThresholdsFromConfig converts the configured thresholds, falling back
// to the defaults for unset values.
func AlertThresholdsFromConfig(cfg models.AlertConfig) AlertThresholds {
	th := DefaultAlertThresholds()
	if cfg.FailedTagThreshold > 0 {
		th.FailedTagCount = cfg.FailedTagThreshold
	}
	if cfg.UnrecognizedTagDays > 0 {
		th.UnrecognizedTagDays = cfg.UnrecognizedTagDays
	}
	return th
}

// AlertEngine evaluates alert conditions against the event log.
type AlertEngine interface {
	Evaluate() ([]Alert, error)
}

// alertEngine implements AlertEngine by reading events and checking thresholds.
type alertEngine struct {
	eventLog   EventLog
	thresholds AlertThresholds
	now        func() time.Time
}

// NewAlertEngine creates a new AlertEngine with the given EventLog and thresholds.
func NewAlertEngine(eventLog EventLog, thresholds AlertThresholds) AlertEngine {
	return &alertEngine{
		eventLog:   eventLog,
		thresholds: thresholds,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Evaluate reads events and checks all alert conditions, returning any
// triggered alerts ordered by severity and then id.
func (ae *alertEngine) Evaluate() ([]Alert, error) {
	now := ae.now()
	events, err := ae.eventLog.Read(EventFilter{})
	if err != nil {
		return nil, fmt.Errorf("reading events for alerts: %w", err)
	}

	var alerts []Alert
	alerts = append(alerts, ae.checkRepeatedFailures(events, now)...)
	alerts = append(alerts, ae.checkUnrecognizedTags(events, now)...)
	alerts = append(alerts, ae.checkLastBatch(events, now)...)

	sort.SliceStable(alerts, func(i, j int) bool {
		if ri, rj := severityRank(alerts[i].Severity), severityRank(alerts[j].Severity); ri != rj {
			return ri < rj
		}
		return alerts[i].ID < alerts[j].ID
	})
	return alerts, nil
}

type taskTag struct {
	taskID string
	tag    string
}

func taskTagOf(event Event) (taskTag, bool) {
	taskID, _ := event.Data["task_id"].(string)
	tag, _ := event.Data["tag"].(string)
	return taskTag{taskID: taskID, tag: tag}, taskID != "" && tag != ""
}

// checkRepeatedFailures looks for a tag whose removal has failed at least the
// threshold number of times in a row on the same task.
func (ae *alertEngine) checkRepeatedFailures(events []Event, now time.Time) []Alert {
	streak := make(map[taskTag]int)
	for _, event := range events {
		key, ok := taskTagOf(event)
		if !ok {
			continue
		}
		switch event.Type {
		case core.EventTagFailed:
			streak[key]++
		case core.EventTagProcessed, core.EventPersonaSet:
			if dry, _ := event.Data["dry_run"].(bool); !dry {
				delete(streak, key)
			}
		}
	}

	var alerts []Alert
	for key, n := range streak {
		if n < ae.thresholds.FailedTagCount {
			continue
		}
		alerts = append(alerts, Alert{
			ID:          fmt.Sprintf("failing-%s-%s", key.taskID, key.tag),
			Condition:   ConditionRepeatedTagFailure,
			Severity:    SeverityHigh,
			Message:     fmt.Sprintf("tag %q on task %s has failed %d times in a row", key.tag, key.taskID, n),
			TriggeredAt: now,
		})
	}
	return alerts
}

// checkUnrecognizedTags looks for unrecognized tags that have been seen on a
// task for longer than the threshold and were still there in the latest batch
// that looked at the task. A tag not seen during the latest completed
// unfiltered batch is considered gone: that batch no longer listed the task.
func (ae *alertEngine) checkUnrecognizedTags(events []Event, now time.Time) []Alert {
	type seen struct {
		first, last time.Time
	}
	skipped := make(map[taskTag]*seen)
	lastVisit := make(map[string]time.Time)
	fullStarts := make(map[string]time.Time)
	var lastFullBatch time.Time

	for _, event := range events {
		switch event.Type {
		case core.EventBatchStarted:
			filter, _ := event.Data["tag_filter"].(string)
			status, _ := event.Data["status"].(string)
			if runID, _ := event.Data["run_id"].(string); runID != "" && filter == "" && status == "" {
				fullStarts[runID] = event.Time
			}
			continue
		case core.EventBatchCompleted:
			runID, _ := event.Data["run_id"].(string)
			if start, ok := fullStarts[runID]; ok {
				lastFullBatch = start
			}
			continue
		}

		key, ok := taskTagOf(event)
		if !ok {
			continue
		}
		if event.Time.After(lastVisit[key.taskID]) {
			lastVisit[key.taskID] = event.Time
		}
		if event.Type != core.EventTagSkipped {
			continue
		}
		if s, exists := skipped[key]; exists {
			s.last = event.Time
		} else {
			skipped[key] = &seen{first: event.Time, last: event.Time}
		}
	}

	threshold := time.Duration(ae.thresholds.UnrecognizedTagDays) * 24 * time.Hour
	var alerts []Alert
	for key, s := range skipped {
		if s.last.Before(lastVisit[key.taskID]) || s.last.Before(lastFullBatch) || s.last.Sub(s.first) < threshold {
			continue
		}
		alerts = append(alerts, Alert{
			ID:          fmt.Sprintf("unrecognized-%s-%s", key.taskID, key.tag),
			Condition:   ConditionUnrecognizedTag,
			Severity:    SeverityLow,
			Message:     fmt.Sprintf("unrecognized tag %q has been on task %s for more than %d days", key.tag, key.taskID, ae.thresholds.UnrecognizedTagDays),
			TriggeredAt: now,
		})
	}
	return alerts
}

// checkLastBatch alerts when the most recent batch ended in failure.
func (ae *alertEngine) checkLastBatch(events []Event, now time.Time) []Alert {
	var last *Event
	for i := range events {
		switch events[i].Type {
		case core.EventBatchCompleted, core.EventBatchFailed:
			last = &events[i]
		}
	}
	if last == nil || last.Type != core.EventBatchFailed {
		return nil
	}

	reason, _ := last.Data["error"].(string)
	runID, _ := last.Data["run_id"].(string)
	return []Alert{{
		ID:          "last-batch-failed",
		Condition:   ConditionLastBatchFailed,
		Severity:    SeverityMedium,
		Message:     fmt.Sprintf("batch %s failed at %s: %s", runID, last.Time.Format(time.RFC3339), reason),
		TriggeredAt: now,
	}}
}

func severityRank(s AlertSeverity) int {
	switch s {
	case SeverityHigh:
		return 0
	case SeverityMedium:
		return 1
	default:
		return 2
	}
}
