package core

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/valter-silva-au/taskflow/pkg/models"
)

// fakeStore is an in-memory TaskStore that records mutations.
type fakeStore struct {
	mu sync.Mutex

	tasks   []*models.Task
	listErr error
	// removeErrs fails RemoveTag for the given tag name.
	removeErrs map[string]error

	removed  []string // "taskID/tag"
	comments map[string][]string
	listed   struct {
		limit  int
		status models.TaskStatus
	}
}

func newFakeStore(tasks ...*models.Task) *fakeStore {
	return &fakeStore{
		tasks:      tasks,
		removeErrs: map[string]error{},
		comments:   map[string][]string{},
	}
}

func (s *fakeStore) find(id string) (*models.Task, error) {
	for _, t := range s.tasks {
		if t.ID == id {
			return t, nil
		}
	}
	return nil, NewStoreError(KindNotFound, "get task "+id, fmt.Errorf("no task %s", id))
}

func (s *fakeStore) ListTaggedTasks(_ context.Context, limit int, status models.TaskStatus) ([]*models.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listed.limit = limit
	s.listed.status = status
	if s.listErr != nil {
		return nil, s.listErr
	}
	var out []*models.Task
	for _, t := range s.tasks {
		if !t.HasTags() || (status != "" && t.Status != status) {
			continue
		}
		cp := *t
		cp.Tags = append([]string(nil), t.Tags...)
		out = append(out, &cp)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *fakeStore) ListTasksByStatus(_ context.Context, status models.TaskStatus, taggedOnly bool) ([]*models.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Task
	for _, t := range s.tasks {
		if t.Status == status && (!taggedOnly || t.HasTags()) {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *fakeStore) GetTask(_ context.Context, id string) (*models.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.find(id)
}

func (s *fakeStore) RemoveTag(_ context.Context, id, tag string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err, ok := s.removeErrs[tag]; ok {
		return err
	}
	t, err := s.find(id)
	if err != nil {
		return err
	}
	kept := t.Tags[:0]
	for _, existing := range t.Tags {
		if existing != tag {
			kept = append(kept, existing)
		}
	}
	t.Tags = kept
	s.removed = append(s.removed, id+"/"+tag)
	return nil
}

func (s *fakeStore) SetDescription(_ context.Context, id, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, err := s.find(id)
	if err != nil {
		return err
	}
	t.Description = text
	return nil
}

func (s *fakeStore) AppendDescription(ctx context.Context, id, text string) error {
	return s.SetDescription(ctx, id, text)
}

func (s *fakeStore) SetStatus(_ context.Context, id string, status models.TaskStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, err := s.find(id)
	if err != nil {
		return err
	}
	t.Status = status
	return nil
}

func (s *fakeStore) AddComment(_ context.Context, id, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.find(id); err != nil {
		return err
	}
	s.comments[id] = append(s.comments[id], text)
	return nil
}

func (s *fakeStore) AppendBody(_ context.Context, id, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, err := s.find(id)
	if err != nil {
		return err
	}
	t.Content = strings.TrimPrefix(t.Content+"\n"+text, "\n")
	return nil
}

func (s *fakeStore) removedTags() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.removed...)
}

// recordingEvents captures logged event types.
type recordingEvents struct {
	mu     sync.Mutex
	events []string
	data   []map[string]any
}

func (r *recordingEvents) LogEvent(eventType string, data map[string]any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, eventType)
	r.data = append(r.data, data)
	return nil
}

func (r *recordingEvents) count(eventType string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e == eventType {
			n++
		}
	}
	return n
}

func newTask(id string, tags ...string) *models.Task {
	return &models.Task{
		ID:       id,
		URL:      "https://example.test/" + id,
		Title:    "Task " + id,
		Status:   models.StatusReady,
		Priority: models.PriorityMedium,
		Tags:     tags,
	}
}
