package models

import "time"

// TaskStatus is the workflow column a task sits in. Values match the Notion
// status option names.
type TaskStatus string

const (
	StatusReady      TaskStatus = "Ready"
	StatusInProgress TaskStatus = "In Progress"
	StatusDone       TaskStatus = "Done"
	StatusUnknown    TaskStatus = "Unknown"
)

// ValidStatuses lists the statuses a caller may set or filter by, in board order.
var ValidStatuses = []TaskStatus{StatusReady, StatusInProgress, StatusDone}

// IsValid reports whether s is one of ValidStatuses.
func (s TaskStatus) IsValid() bool {
	for _, v := range ValidStatuses {
		if s == v {
			return true
		}
	}
	return false
}

// Priority represents the urgency level of a task.
type Priority string

const (
	PriorityLow    Priority = "Low"
	PriorityMedium Priority = "Medium"
	PriorityHigh   Priority = "High"
)

// Task is a single page in the task database, read fresh for every call.
// Tags keep the order the store returned them in and may contain duplicates.
type Task struct {
	ID             string     `json:"id" yaml:"id"`
	URL            string     `json:"url" yaml:"url"`
	Title          string     `json:"title" yaml:"title"`
	Description    string     `json:"description" yaml:"description"`
	Status         TaskStatus `json:"status" yaml:"status"`
	Priority       Priority   `json:"priority" yaml:"priority"`
	Tags           []string   `json:"mcpTags" yaml:"tags"`
	Blocks         []Block    `json:"blocks,omitempty" yaml:"blocks,omitempty"`
	Content        string     `json:"fullContent,omitempty" yaml:"content,omitempty"`
	CreatedTime    time.Time  `json:"createdTime" yaml:"created"`
	LastEditedTime time.Time  `json:"lastEditedTime" yaml:"updated"`
}

// HasTags reports whether the task carries at least one tag.
func (t *Task) HasTags() bool {
	return len(t.Tags) > 0
}

// BlockType identifies the kind of a page content block.
type BlockType string

const (
	BlockParagraph        BlockType = "paragraph"
	BlockHeading1         BlockType = "heading_1"
	BlockHeading2         BlockType = "heading_2"
	BlockHeading3         BlockType = "heading_3"
	BlockBulletedListItem BlockType = "bulleted_list_item"
	BlockNumberedListItem BlockType = "numbered_list_item"
	BlockToDo             BlockType = "to_do"
	BlockCode             BlockType = "code"
	BlockQuote            BlockType = "quote"
	BlockCallout          BlockType = "callout"
	BlockImage            BlockType = "image"
)

// Block is one content block of a task page, flattened to the fields the
// renderer and image cache need.
type Block struct {
	ID          string    `json:"id" yaml:"id"`
	Type        BlockType `json:"type" yaml:"type"`
	HasChildren bool      `json:"hasChildren" yaml:"has_children,omitempty"`
	Text        string    `json:"text,omitempty" yaml:"text,omitempty"`
	Checked     bool      `json:"checked,omitempty" yaml:"checked,omitempty"`
	Language    string    `json:"language,omitempty" yaml:"language,omitempty"`
	URL         string    `json:"url,omitempty" yaml:"url,omitempty"`
	Caption     string    `json:"caption,omitempty" yaml:"caption,omitempty"`
}
