package core

import (
	"context"
	"fmt"
	"testing"

	"github.com/valter-silva-au/taskflow/pkg/models"
	"pgregory.net/rapid"
)

func tasksGenerator() *rapid.Generator[[]*models.Task] {
	return rapid.Custom(func(t *rapid.T) []*models.Task {
		n := rapid.IntRange(0, 6).Draw(t, "numTasks")
		tasks := make([]*models.Task, n)
		for i := range tasks {
			tags := rapid.SliceOfN(tagGenerator(), 0, 6).Draw(t, fmt.Sprintf("tags%d", i))
			tasks[i] = newTask(fmt.Sprintf("t%d", i), tags...)
		}
		return tasks
	})
}

// Feature: taskflow, Property 3: Preview Never Mutates
// For any set of tasks and tags, a dry-run batch SHALL issue no removals and
// SHALL report one result per tag of every tagged task.
func TestProperty_DryRunNeverMutates(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		tasks := tasksGenerator().Draw(rt, "tasks")
		store := newFakeStore(tasks...)
		engine := NewEngine(store)

		report, err := engine.ProcessBatch(context.Background(), BatchOptions{DryRun: true, Limit: 100})
		if err != nil {
			rt.Fatalf("ProcessBatch: %v", err)
		}
		if removed := store.removedTags(); len(removed) != 0 {
			rt.Fatalf("dry run removed %v", removed)
		}

		byID := map[string]*models.Task{}
		for _, task := range tasks {
			byID[task.ID] = task
		}
		for _, r := range report.Results {
			if got, want := len(r.ProcessedTags), len(byID[r.TaskID].Tags); got != want {
				rt.Fatalf("task %s: %d results, want %d", r.TaskID, got, want)
			}
		}
	})
}

// Feature: taskflow, Property 4: Unknown Tags Survive
// For any live batch, every tag outside the vocabulary SHALL be reported as
// skipped and SHALL still be on its task afterwards, while every handled tag
// SHALL be gone.
func TestProperty_UnknownTagsSurviveLiveRuns(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		tasks := tasksGenerator().Draw(rt, "tasks")
		store := newFakeStore(tasks...)
		engine := NewEngine(store)

		report, err := engine.ProcessBatch(context.Background(), BatchOptions{Limit: 100})
		if err != nil {
			rt.Fatalf("ProcessBatch: %v", err)
		}

		for _, r := range report.Results {
			for _, p := range r.ProcessedTags {
				unknown := ParseTag(p.Tag).Kind == KindUnknown
				if unknown != (p.Status == models.ResultSkipped) {
					rt.Fatalf("tag %q: status %s, unknown=%v", p.Tag, p.Status, unknown)
				}
			}
		}

		for _, task := range tasks {
			for _, tag := range task.Tags {
				if ParseTag(tag).Kind != KindUnknown {
					rt.Fatalf("task %s still carries handled tag %q", task.ID, tag)
				}
			}
		}
	})
}

// Feature: taskflow, Property 5: Persona Threading
// For any task, each non-persona result SHALL carry the persona of the last
// persona tag processed before it on the same task, or none.
func TestProperty_PersonaThreading(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		tasks := tasksGenerator().Draw(rt, "tasks")
		engine := NewEngine(newFakeStore(tasks...))

		report, err := engine.ProcessBatch(context.Background(), BatchOptions{DryRun: true, Limit: 100})
		if err != nil {
			rt.Fatalf("ProcessBatch: %v", err)
		}

		for _, r := range report.Results {
			current := ""
			for _, p := range r.ProcessedTags {
				if p.Action == models.ActionPersonaSet {
					current = p.Persona
					continue
				}
				if p.Status == models.ResultSkipped {
					continue
				}
				if p.Persona != current {
					rt.Fatalf("task %s tag %q: persona %q, want %q", r.TaskID, p.Tag, p.Persona, current)
				}
			}
		}
	})
}
