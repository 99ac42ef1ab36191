package notion

import (
	"context"
	"fmt"
	"strings"

	"github.com/jomei/notionapi"

	"github.com/valter-silva-au/taskflow/internal/core"
	"github.com/valter-silva-au/taskflow/pkg/models"
)

var _ core.TaskStore = (*Client)(nil)

// ListTaggedTasks queries the database for pages with a non-empty tag
// property, highest priority first, and loads each page's blocks.
func (c *Client) ListTaggedTasks(ctx context.Context, limit int, status models.TaskStatus) ([]*models.Task, error) {
	filter := notionapi.AndCompoundFilter{
		notionapi.PropertyFilter{
			Property:    c.props.Tags,
			MultiSelect: &notionapi.MultiSelectFilterCondition{IsNotEmpty: true},
		},
	}
	if status != "" {
		filter = append(filter, c.statusFilter(status))
	}
	sorts := []notionapi.SortObject{
		{Property: c.props.Priority, Direction: notionapi.SortOrderDESC},
		{Property: c.props.Status, Direction: notionapi.SortOrderASC},
	}
	return c.queryTasks(ctx, "query tagged tasks", filter, sorts, limit)
}

// ListTasksByStatus returns every task in status. With taggedOnly it is
// ListTaggedTasks with a full page of results.
func (c *Client) ListTasksByStatus(ctx context.Context, status models.TaskStatus, taggedOnly bool) ([]*models.Task, error) {
	if taggedOnly {
		return c.ListTaggedTasks(ctx, maxPageSize, status)
	}
	sorts := []notionapi.SortObject{
		{Property: c.props.Priority, Direction: notionapi.SortOrderDESC},
	}
	return c.queryTasks(ctx, "query tasks by status", c.statusFilter(status), sorts, 0)
}

func (c *Client) statusFilter(status models.TaskStatus) notionapi.PropertyFilter {
	return notionapi.PropertyFilter{
		Property: c.props.Status,
		Status:   &notionapi.StatusFilterCondition{Equals: string(status)},
	}
}

// queryTasks pages through the database query. limit <= 0 means all results.
func (c *Client) queryTasks(ctx context.Context, op string, filter notionapi.Filter, sorts []notionapi.SortObject, limit int) ([]*models.Task, error) {
	var pages []notionapi.Page
	err := c.call(ctx, op, func(ctx context.Context) error {
		pages = pages[:0]
		var cursor notionapi.Cursor
		for {
			size := maxPageSize
			if limit > 0 {
				size = min(limit-len(pages), maxPageSize)
			}
			resp, err := c.api.Database.Query(ctx, c.databaseID, &notionapi.DatabaseQueryRequest{
				Filter:      filter,
				Sorts:       sorts,
				PageSize:    size,
				StartCursor: cursor,
			})
			if err != nil {
				return err
			}
			pages = append(pages, resp.Results...)

			if !resp.HasMore || resp.NextCursor == "" || (limit > 0 && len(pages) >= limit) {
				return nil
			}
			cursor = notionapi.Cursor(resp.NextCursor)
		}
	})
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(pages) > limit {
		pages = pages[:limit]
	}

	tasks := make([]*models.Task, 0, len(pages))
	for i := range pages {
		t := toTask(&pages[i], c.props)
		if err := c.loadBlocks(ctx, t); err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	c.log.Debug().Str("op", op).Int("tasks", len(tasks)).Msg("query complete")
	return tasks, nil
}

// GetTask retrieves one page and its blocks.
func (c *Client) GetTask(ctx context.Context, id string) (*models.Task, error) {
	const op = "get task"
	if strings.TrimSpace(id) == "" {
		return nil, core.NewStoreError(core.KindValidation, op, fmt.Errorf("task id is required"))
	}
	var p *notionapi.Page
	err := c.call(ctx, op, func(ctx context.Context) error {
		var err error
		p, err = c.api.Page.Get(ctx, notionapi.PageID(id))
		return err
	})
	if err != nil {
		return nil, err
	}
	t := toTask(p, c.props)
	if err := c.loadBlocks(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

// loadBlocks fetches the top-level blocks of the task page and renders them.
func (c *Client) loadBlocks(ctx context.Context, t *models.Task) error {
	var raw []notionapi.Block
	err := c.call(ctx, "list blocks", func(ctx context.Context) error {
		raw = raw[:0]
		cursor := ""
		for {
			resp, err := c.api.Block.GetChildren(ctx, notionapi.BlockID(t.ID), &notionapi.Pagination{
				StartCursor: notionapi.Cursor(cursor),
				PageSize:    maxPageSize,
			})
			if err != nil {
				return err
			}
			raw = append(raw, resp.Results...)
			if !resp.HasMore || resp.NextCursor == "" {
				return nil
			}
			cursor = string(resp.NextCursor)
		}
	})
	if err != nil {
		return err
	}

	t.Blocks = make([]models.Block, len(raw))
	for i, b := range raw {
		t.Blocks[i] = toBlock(b)
	}
	t.Content = core.RenderBlocks(t.Blocks)
	return nil
}

// RemoveTag re-reads the page and writes back its tags without tag. Names
// are matched exactly.
func (c *Client) RemoveTag(ctx context.Context, id, tag string) error {
	return c.call(ctx, "remove tag", func(ctx context.Context) error {
		p, err := c.api.Page.Get(ctx, notionapi.PageID(id))
		if err != nil {
			return err
		}
		current := tagNames(p, c.props)
		kept := make([]notionapi.Option, 0, len(current))
		for _, name := range current {
			if name != tag {
				kept = append(kept, notionapi.Option{Name: name})
			}
		}
		if len(kept) == len(current) {
			return nil
		}
		return c.updateProperties(ctx, id, notionapi.Properties{
			c.props.Tags: notionapi.MultiSelectProperty{
				Type:        notionapi.PropertyTypeMultiSelect,
				MultiSelect: kept,
			},
		})
	})
}

// SetDescription replaces the description property of the task.
func (c *Client) SetDescription(ctx context.Context, id, text string) error {
	const op = "set description"
	return c.call(ctx, op, func(ctx context.Context) error {
		p, err := c.api.Page.Get(ctx, notionapi.PageID(id))
		if err != nil {
			return err
		}
		name, ok := descriptionPropertyName(p, c.props)
		if !ok {
			return core.NewStoreError(core.KindValidation, op,
				fmt.Errorf("page has no rich text property %q or %q", c.props.Description, descriptionFallback))
		}
		return c.updateProperties(ctx, id, notionapi.Properties{
			name: notionapi.RichTextProperty{
				Type:     notionapi.PropertyTypeRichText,
				RichText: textObjects(text),
			},
		})
	})
}

// AppendDescription writes text, already joined with the old description by
// the caller, to the description property.
func (c *Client) AppendDescription(ctx context.Context, id, text string) error {
	return c.SetDescription(ctx, id, text)
}

// SetStatus updates the status property.
func (c *Client) SetStatus(ctx context.Context, id string, status models.TaskStatus) error {
	return c.call(ctx, "set status", func(ctx context.Context) error {
		return c.updateProperties(ctx, id, notionapi.Properties{
			c.props.Status: notionapi.StatusProperty{
				Type:   notionapi.PropertyTypeStatus,
				Status: notionapi.Status{Name: string(status)},
			},
		})
	})
}

// AddComment posts a comment on the task page.
func (c *Client) AddComment(ctx context.Context, id, text string) error {
	req := &notionapi.CommentCreateRequest{
		Parent: notionapi.Parent{
			Type:   notionapi.ParentTypePageID,
			PageID: notionapi.PageID(id),
		},
		RichText: textObjects(text),
	}
	return c.call(ctx, "add comment", func(ctx context.Context) error {
		_, err := c.api.Comment.Create(ctx, req)
		return err
	})
}

// AppendBody appends text to the page body, one paragraph block per
// blank-line separated chunk.
func (c *Client) AppendBody(ctx context.Context, id, text string) error {
	var children []notionapi.Block
	for _, para := range strings.Split(text, "\n\n") {
		if strings.TrimSpace(para) == "" {
			continue
		}
		children = append(children, paragraph(para))
	}

	for start := 0; start < len(children); start += maxPageSize {
		chunk := children[start:min(start+maxPageSize, len(children))]
		err := c.call(ctx, "append body", func(ctx context.Context) error {
			_, err := c.api.Block.AppendChildren(ctx, notionapi.BlockID(id),
				&notionapi.AppendBlockChildrenRequest{Children: chunk})
			return err
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (c *Client) updateProperties(ctx context.Context, id string, props notionapi.Properties) error {
	_, err := c.api.Page.Update(ctx, notionapi.PageID(id), &notionapi.PageUpdateRequest{Properties: props})
	return err
}
