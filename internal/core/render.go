package core

import (
	"fmt"
	"strings"

	"github.com/valter-silva-au/taskflow/pkg/models"
)

// RenderBlocks renders page blocks as markdown-flavoured text, one block per
// line group. Empty paragraphs render as empty strings but still take part
// in the join, so paragraph spacing in the page survives.
func RenderBlocks(blocks []models.Block) string {
	if len(blocks) == 0 {
		return ""
	}
	parts := make([]string, len(blocks))
	for i, b := range blocks {
		parts[i] = RenderBlock(b)
	}
	return strings.Join(parts, "\n")
}

// RenderBlock renders a single block.
func RenderBlock(b models.Block) string {
	switch b.Type {
	case models.BlockHeading1:
		return "# " + b.Text + "\n"
	case models.BlockHeading2:
		return "## " + b.Text + "\n"
	case models.BlockHeading3:
		return "### " + b.Text + "\n"
	case models.BlockBulletedListItem:
		return "- " + b.Text
	case models.BlockNumberedListItem:
		return b.Text
	case models.BlockToDo:
		if b.Checked {
			return "- [x] " + b.Text
		}
		return "- [ ] " + b.Text
	case models.BlockCode:
		return fmt.Sprintf("```%s\n%s\n```\n", b.Language, b.Text)
	case models.BlockQuote:
		return "> " + b.Text + "\n"
	case models.BlockCallout:
		return "**" + b.Text + "**\n"
	case models.BlockImage:
		return fmt.Sprintf("![%s](%s)\n", b.Caption, b.URL)
	default:
		if b.Text == "" {
			return ""
		}
		return b.Text + "\n"
	}
}

// UnsupportedBlockText is the text given to blocks of a type taskflow does not read.
func UnsupportedBlockText(blockType string) string {
	return "[" + blockType + " block]"
}
