package observability

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/valter-silva-au/taskflow/internal/core"
	"pgregory.net/rapid"
)

// Feature: taskflow, Property 6: Metrics Match Recorded Events
// For any sequence of workflow events written through the Recorder, the
// MetricsCalculator SHALL report one processed, failed or skipped tag per
// corresponding event and one triggered prompt per prompt-carrying event.
func TestProperty_MetricsMatchRecordedEvents(t *testing.T) {
	eventTypes := []string{
		core.EventTagProcessed,
		core.EventTagFailed,
		core.EventTagSkipped,
		core.EventPersonaSet,
	}
	prompts := []string{"", "code-task", "critique-task", "estimate-task"}

	rapid.Check(t, func(rt *rapid.T) {
		log, err := NewJSONLEventLog(filepath.Join(t.TempDir(), "events.jsonl"))
		if err != nil {
			rt.Fatalf("creating event log: %v", err)
		}
		defer log.Close()
		rec := NewRecorder(log)

		n := rapid.IntRange(0, 30).Draw(rt, "numEvents")
		var processed, failed, skipped int
		promptCounts := map[string]int{}
		for i := 0; i < n; i++ {
			typ := rapid.SampledFrom(eventTypes).Draw(rt, fmt.Sprintf("type%d", i))
			data := map[string]any{"task_id": fmt.Sprintf("p%d", i%3), "tag": "code"}
			switch typ {
			case core.EventTagProcessed:
				processed++
				if p := rapid.SampledFrom(prompts).Draw(rt, fmt.Sprintf("prompt%d", i)); p != "" {
					data["prompt"] = p
					promptCounts[p]++
				}
			case core.EventPersonaSet:
				processed++
			case core.EventTagFailed:
				failed++
			case core.EventTagSkipped:
				skipped++
			}
			if err := rec.LogEvent(typ, data); err != nil {
				rt.Fatalf("LogEvent: %v", err)
			}
		}

		m, err := NewMetricsCalculator(log).Calculate(time.Time{})
		if err != nil {
			rt.Fatalf("Calculate: %v", err)
		}
		if m.EventCount != n {
			rt.Fatalf("EventCount = %d, want %d", m.EventCount, n)
		}
		if m.TagsProcessed != processed || m.TagsFailed != failed || m.TagsSkipped != skipped {
			rt.Fatalf("got processed=%d failed=%d skipped=%d, want %d %d %d",
				m.TagsProcessed, m.TagsFailed, m.TagsSkipped, processed, failed, skipped)
		}
		for p, want := range promptCounts {
			if got := m.PromptsTriggered[p]; got != want {
				rt.Fatalf("PromptsTriggered[%s] = %d, want %d", p, got, want)
			}
		}
	})
}
