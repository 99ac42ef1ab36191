// Package storage provides a YAML file-backed task store for offline use.
package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/valter-silva-au/taskflow/internal/core"
	"github.com/valter-silva-au/taskflow/pkg/models"
	"gopkg.in/yaml.v3"
)

// Comment is a note left on a task by AddComment.
type Comment struct {
	Text    string    `yaml:"text"`
	Created time.Time `yaml:"created"`
}

// TaskEntry is one task as stored in the file.
type TaskEntry struct {
	models.Task `yaml:",inline"`
	Comments    []Comment `yaml:"comments,omitempty"`
}

// TaskFile is the top-level structure of the task file.
type TaskFile struct {
	Version string               `yaml:"version"`
	Tasks   map[string]TaskEntry `yaml:"tasks"`
}

// FileTaskStore implements core.TaskStore over a single YAML file. The file
// is read on every call so edits made while the server runs are picked up.
type FileTaskStore struct {
	path string
	now  func() time.Time
	mu   sync.Mutex
}

var _ core.TaskStore = (*FileTaskStore)(nil)

// NewFileTaskStore creates a store backed by the YAML file at path. The file
// is created on the first write.
func NewFileTaskStore(path string) *FileTaskStore {
	return &FileTaskStore{
		path: path,
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// Path returns the task file location.
func (s *FileTaskStore) Path() string {
	return s.path
}

func (s *FileTaskStore) load() (*TaskFile, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return &TaskFile{Version: "1.0", Tasks: make(map[string]TaskEntry)}, nil
		}
		return nil, core.NewStoreError(core.KindTransient, "loading task file", err)
	}

	var tf TaskFile
	if err := yaml.Unmarshal(data, &tf); err != nil {
		return nil, core.NewStoreError(core.KindConfiguration, "loading task file",
			fmt.Errorf("parsing %s: %w", s.path, err))
	}
	if tf.Tasks == nil {
		tf.Tasks = make(map[string]TaskEntry)
	}
	for id, entry := range tf.Tasks {
		if entry.ID == "" {
			entry.ID = id
		}
		tf.Tasks[id] = entry
	}
	return &tf, nil
}

func (s *FileTaskStore) save(tf *TaskFile) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o750); err != nil {
		return core.NewStoreError(core.KindTransient, "saving task file", fmt.Errorf("creating directory: %w", err))
	}
	data, err := yaml.Marshal(tf)
	if err != nil {
		return core.NewStoreError(core.KindValidation, "saving task file", fmt.Errorf("marshaling YAML: %w", err))
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return core.NewStoreError(core.KindTransient, "saving task file", fmt.Errorf("writing file: %w", err))
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return core.NewStoreError(core.KindTransient, "saving task file", fmt.Errorf("replacing file: %w", err))
	}
	return nil
}

// toTask returns a copy of the entry's task with rendered content.
func (s *FileTaskStore) toTask(entry TaskEntry) *models.Task {
	t := entry.Task
	t.Tags = append([]string{}, entry.Tags...)
	t.Blocks = append([]models.Block(nil), entry.Blocks...)
	if t.Title == "" {
		t.Title = "Untitled"
	}
	if t.Status == "" {
		t.Status = models.StatusUnknown
	}
	if t.Priority == "" {
		t.Priority = models.PriorityMedium
	}
	if t.URL == "" {
		t.URL = "file://" + filepath.ToSlash(s.path) + "#" + t.ID
	}
	if len(t.Blocks) > 0 {
		t.Content = core.RenderBlocks(t.Blocks)
	}
	return &t
}

func priorityRank(p models.Priority) int {
	switch p {
	case models.PriorityHigh:
		return 3
	case models.PriorityMedium:
		return 2
	case models.PriorityLow:
		return 1
	default:
		return 0
	}
}

// sorted returns the tasks highest priority first, then by status and id.
func (s *FileTaskStore) sorted(tf *TaskFile, keep func(*models.Task) bool) []*models.Task {
	var out []*models.Task
	for _, entry := range tf.Tasks {
		t := s.toTask(entry)
		if keep(t) {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		pi, pj := priorityRank(out[i].Priority), priorityRank(out[j].Priority)
		if pi != pj {
			return pi > pj
		}
		if out[i].Status != out[j].Status {
			return out[i].Status < out[j].Status
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// ListTaggedTasks returns up to limit tagged tasks, optionally in one status.
func (s *FileTaskStore) ListTaggedTasks(_ context.Context, limit int, status models.TaskStatus) ([]*models.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tf, err := s.load()
	if err != nil {
		return nil, err
	}
	tasks := s.sorted(tf, func(t *models.Task) bool {
		return t.HasTags() && (status == "" || t.Status == status)
	})
	if limit > 0 && len(tasks) > limit {
		tasks = tasks[:limit]
	}
	return tasks, nil
}

// ListTasksByStatus returns every task in status.
func (s *FileTaskStore) ListTasksByStatus(_ context.Context, status models.TaskStatus, taggedOnly bool) ([]*models.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tf, err := s.load()
	if err != nil {
		return nil, err
	}
	return s.sorted(tf, func(t *models.Task) bool {
		return t.Status == status && (!taggedOnly || t.HasTags())
	}), nil
}

// GetTask returns the task with id.
func (s *FileTaskStore) GetTask(_ context.Context, id string) (*models.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tf, err := s.load()
	if err != nil {
		return nil, err
	}
	entry, ok := tf.Tasks[id]
	if !ok {
		return nil, notFound("get task", id)
	}
	return s.toTask(entry), nil
}

// Comments returns the comments left on a task, oldest first.
func (s *FileTaskStore) Comments(_ context.Context, id string) ([]Comment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tf, err := s.load()
	if err != nil {
		return nil, err
	}
	entry, ok := tf.Tasks[id]
	if !ok {
		return nil, notFound("list comments", id)
	}
	return append([]Comment(nil), entry.Comments...), nil
}

// update loads the file, applies fn to the entry with id and saves it. The
// whole cycle holds the lock file so other processes cannot interleave.
func (s *FileTaskStore) update(op, id string, fn func(*TaskEntry) (changed bool)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	unlock, err := lockFile(s.path + ".lock")
	if err != nil {
		return core.NewStoreError(core.KindTransient, op, err)
	}
	defer func() { _ = unlock() }()

	tf, err := s.load()
	if err != nil {
		return err
	}
	entry, ok := tf.Tasks[id]
	if !ok {
		return notFound(op, id)
	}
	if !fn(&entry) {
		return nil
	}
	entry.LastEditedTime = s.now()
	tf.Tasks[id] = entry
	return s.save(tf)
}

// RemoveTag removes every tag named exactly tag.
func (s *FileTaskStore) RemoveTag(_ context.Context, id, tag string) error {
	return s.update("remove tag", id, func(e *TaskEntry) bool {
		kept := make([]string, 0, len(e.Tags))
		for _, t := range e.Tags {
			if t != tag {
				kept = append(kept, t)
			}
		}
		if len(kept) == len(e.Tags) {
			return false
		}
		e.Tags = kept
		return true
	})
}

// SetDescription replaces the description.
func (s *FileTaskStore) SetDescription(_ context.Context, id, text string) error {
	return s.update("set description", id, func(e *TaskEntry) bool {
		e.Description = text
		return true
	})
}

// AppendDescription writes the caller-joined description.
func (s *FileTaskStore) AppendDescription(ctx context.Context, id, text string) error {
	return s.SetDescription(ctx, id, text)
}

// SetStatus updates the status.
func (s *FileTaskStore) SetStatus(_ context.Context, id string, status models.TaskStatus) error {
	return s.update("set status", id, func(e *TaskEntry) bool {
		e.Status = status
		return true
	})
}

// AddComment records a comment on the task.
func (s *FileTaskStore) AddComment(_ context.Context, id, text string) error {
	return s.update("add comment", id, func(e *TaskEntry) bool {
		e.Comments = append(e.Comments, Comment{Text: text, Created: s.now()})
		return true
	})
}

// AppendBody adds one paragraph block per blank-line separated chunk.
func (s *FileTaskStore) AppendBody(_ context.Context, id, text string) error {
	return s.update("append body", id, func(e *TaskEntry) bool {
		changed := false
		for _, para := range strings.Split(text, "\n\n") {
			if strings.TrimSpace(para) == "" {
				continue
			}
			e.Blocks = append(e.Blocks, models.Block{
				ID:   fmt.Sprintf("%s-b%d", e.ID, len(e.Blocks)+1),
				Type: models.BlockParagraph,
				Text: para,
			})
			changed = true
		}
		return changed
	})
}

func notFound(op, id string) error {
	return core.NewStoreError(core.KindNotFound, op, fmt.Errorf("task %s not found", id))
}
