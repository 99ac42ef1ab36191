package observability

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/valter-silva-au/taskflow/internal/core"
	"github.com/valter-silva-au/taskflow/pkg/models"
)

func newTestLog(t *testing.T) EventLog {
	t.Helper()
	log, err := NewJSONLEventLog(filepath.Join(t.TempDir(), "events.jsonl"))
	if err != nil {
		t.Fatalf("creating event log: %v", err)
	}
	t.Cleanup(func() { _ = log.Close() })
	return log
}

func writeEvents(t *testing.T, log EventLog, events ...Event) {
	t.Helper()
	for _, e := range events {
		if err := log.Write(e); err != nil {
			t.Fatalf("writing event: %v", err)
		}
	}
}

func TestEventLog_WriteAndRead(t *testing.T) {
	log := newTestLog(t)

	now := time.Now().UTC().Truncate(time.Millisecond)
	writeEvents(t, log,
		Event{Time: now, Level: "INFO", Type: core.EventBatchStarted, Message: "batch started",
			Data: map[string]any{"run_id": "run-1"}},
		Event{Time: now.Add(time.Second), Level: "ERROR", Type: core.EventTagFailed, Message: "tag failed",
			Data: map[string]any{"task_id": "page-1", "tag": "code"}},
	)

	result, err := log.Read(EventFilter{})
	if err != nil {
		t.Fatalf("reading events: %v", err)
	}
	if len(result) != 2 {
		t.Fatalf("expected 2 events, got %d", len(result))
	}
	if result[0].Type != core.EventBatchStarted || result[0].Message != "batch started" {
		t.Errorf("unexpected first event: %+v", result[0])
	}
	if result[1].Level != "ERROR" || result[1].Data["tag"] != "code" {
		t.Errorf("unexpected second event: %+v", result[1])
	}
	if !result[0].Time.Equal(now) {
		t.Errorf("time = %v, want %v", result[0].Time, now)
	}
}

func TestEventLog_CreatesParentDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".taskflow", "nested", "events.jsonl")
	log, err := NewJSONLEventLog(path)
	if err != nil {
		t.Fatalf("creating event log: %v", err)
	}
	defer log.Close()

	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected log file to exist: %v", err)
	}
}

func TestEventLog_Filters(t *testing.T) {
	log := newTestLog(t)

	base := time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)
	writeEvents(t, log,
		Event{Time: base, Level: "INFO", Type: core.EventBatchStarted, Message: "first"},
		Event{Time: base.Add(time.Hour), Level: "WARN", Type: core.EventTagSkipped, Message: "second"},
		Event{Time: base.Add(2 * time.Hour), Level: "INFO", Type: core.EventTagProcessed, Message: "third"},
		Event{Time: base.Add(3 * time.Hour), Level: "WARN", Type: core.EventTagSkipped, Message: "fourth"},
	)

	since := base.Add(30 * time.Minute)
	until := base.Add(2*time.Hour + 30*time.Minute)

	tests := []struct {
		name   string
		filter EventFilter
		want   []string
	}{
		{"all", EventFilter{}, []string{"first", "second", "third", "fourth"}},
		{"type", EventFilter{Type: core.EventTagSkipped}, []string{"second", "fourth"}},
		{"level", EventFilter{Level: "INFO"}, []string{"first", "third"}},
		{"time range", EventFilter{Since: &since, Until: &until}, []string{"second", "third"}},
		{"combined", EventFilter{Since: &since, Type: core.EventTagSkipped}, []string{"second", "fourth"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := log.Read(tt.filter)
			if err != nil {
				t.Fatalf("reading events: %v", err)
			}
			if len(result) != len(tt.want) {
				t.Fatalf("got %d events, want %d", len(result), len(tt.want))
			}
			for i, e := range result {
				if e.Message != tt.want[i] {
					t.Errorf("event %d = %q, want %q", i, e.Message, tt.want[i])
				}
			}
		})
	}
}

func TestEventLog_EmptyLog(t *testing.T) {
	result, err := newTestLog(t).Read(EventFilter{})
	if err != nil {
		t.Fatalf("reading empty log: %v", err)
	}
	if len(result) != 0 {
		t.Errorf("expected 0 events from empty log, got %d", len(result))
	}
}

func TestEventLog_SkipsMalformedLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")
	content := `{"time":"2026-01-15T10:00:00Z","level":"INFO","type":"batch.started","msg":"ok"}
not json at all
{"time":"2026-01-15T10:01:00Z","level":"INFO","type":"batch.completed","msg":"ok"}
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	log, err := NewJSONLEventLog(path)
	if err != nil {
		t.Fatalf("creating event log: %v", err)
	}
	defer log.Close()

	result, err := log.Read(EventFilter{})
	if err != nil {
		t.Fatalf("reading events: %v", err)
	}
	if len(result) != 2 {
		t.Fatalf("expected 2 valid events, got %d", len(result))
	}
}

func TestEventLog_ConcurrentWrites(t *testing.T) {
	log := newTestLog(t)

	const writers, perWriter = 8, 25
	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				err := log.Write(Event{
					Time:    time.Now().UTC(),
					Level:   "INFO",
					Type:    core.EventTagProcessed,
					Message: "tag processed",
					Data:    map[string]any{"task_id": fmt.Sprintf("page-%d-%d", w, i)},
				})
				if err != nil {
					t.Errorf("writing event: %v", err)
				}
			}
		}(w)
	}
	wg.Wait()

	result, err := log.Read(EventFilter{})
	if err != nil {
		t.Fatalf("reading events: %v", err)
	}
	if len(result) != writers*perWriter {
		t.Errorf("expected %d events, got %d", writers*perWriter, len(result))
	}
}

func TestRecorder_LevelsAndMessages(t *testing.T) {
	log := newTestLog(t)
	rec := NewRecorder(log)
	fixed := time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)
	rec.now = func() time.Time { return fixed }

	types := []struct {
		eventType string
		level     string
		message   string
	}{
		{core.EventBatchStarted, "INFO", "batch started"},
		{core.EventTagProcessed, "INFO", "tag processed"},
		{core.EventPersonaSet, "INFO", "persona set"},
		{core.EventTagSkipped, "WARN", "unrecognized tag skipped"},
		{core.EventTagFailed, "ERROR", "tag failed"},
		{core.EventBatchFailed, "ERROR", "batch failed"},
		{core.EventBatchCompleted, "INFO", "batch completed"},
	}
	for _, tt := range types {
		if err := rec.LogEvent(tt.eventType, map[string]any{"task_id": "page-1"}); err != nil {
			t.Fatalf("LogEvent(%s): %v", tt.eventType, err)
		}
	}

	result, err := log.Read(EventFilter{})
	if err != nil {
		t.Fatalf("reading events: %v", err)
	}
	if len(result) != len(types) {
		t.Fatalf("got %d events, want %d", len(result), len(types))
	}
	for i, tt := range types {
		e := result[i]
		if e.Type != tt.eventType || e.Level != tt.level || e.Message != tt.message {
			t.Errorf("event %d = {%s %s %q}, want {%s %s %q}", i, e.Type, e.Level, e.Message, tt.eventType, tt.level, tt.message)
		}
		if !e.Time.Equal(fixed) {
			t.Errorf("event %d time = %v, want %v", i, e.Time, fixed)
		}
	}
}

func TestRecorder_WithEngine(t *testing.T) {
	log := newTestLog(t)
	engine := core.NewEngine(emptyStore{}, core.WithEventLogger(NewRecorder(log)))

	if _, err := engine.ProcessBatch(t.Context(), core.BatchOptions{}); err != nil {
		t.Fatalf("ProcessBatch: %v", err)
	}

	result, err := log.Read(EventFilter{})
	if err != nil {
		t.Fatalf("reading events: %v", err)
	}
	if len(result) != 2 || result[0].Type != core.EventBatchStarted || result[1].Type != core.EventBatchCompleted {
		t.Fatalf("unexpected events: %+v", result)
	}
}

// emptyStore is a TaskStore with nothing tagged. Only ListTaggedTasks is
// reachable from an empty batch.
type emptyStore struct {
	core.TaskStore
}

func (emptyStore) ListTaggedTasks(context.Context, int, models.TaskStatus) ([]*models.Task, error) {
	return nil, nil
}
