package core

import (
	"context"

	"github.com/valter-silva-au/taskflow/pkg/models"
)

// TaskStore is the task database as the workflow engine and MCP server see
// it. Adapters live in the notion and storage packages; this interface is
// defined here so core does not import them.
//
// Errors should be *StoreError values so callers can tell not-found,
// validation and transient failures apart. Adapters retry transient failures
// themselves.
type TaskStore interface {
	// ListTaggedTasks returns up to limit tasks that carry at least one tag,
	// highest priority first. An empty status matches every status.
	ListTaggedTasks(ctx context.Context, limit int, status models.TaskStatus) ([]*models.Task, error)
	// ListTasksByStatus returns every task in status, optionally only tagged ones.
	ListTasksByStatus(ctx context.Context, status models.TaskStatus, taggedOnly bool) ([]*models.Task, error)
	GetTask(ctx context.Context, id string) (*models.Task, error)
	// RemoveTag removes exactly the tag named tag. Removing an absent tag is a no-op.
	RemoveTag(ctx context.Context, id, tag string) error
	SetDescription(ctx context.Context, id, text string) error
	// AppendDescription sets the description to text, which the caller has
	// already built from the current description plus a separator.
	AppendDescription(ctx context.Context, id, text string) error
	SetStatus(ctx context.Context, id string, status models.TaskStatus) error
	AddComment(ctx context.Context, id, text string) error
	// AppendBody adds text to the end of the page body as new paragraphs.
	AppendBody(ctx context.Context, id, text string) error
}

// ImageFetcher downloads the images embedded in a task page and returns the
// local file paths. Failures are logged by the implementation and yield an
// empty slice.
type ImageFetcher interface {
	FetchTaskImages(ctx context.Context, task *models.Task) []string
}
