package core

import (
	"testing"

	"github.com/valter-silva-au/taskflow/pkg/models"
)

func TestRenderBlock(t *testing.T) {
	tests := []struct {
		name  string
		block models.Block
		want  string
	}{
		{"h1", models.Block{Type: models.BlockHeading1, Text: "Goal"}, "# Goal\n"},
		{"h2", models.Block{Type: models.BlockHeading2, Text: "Steps"}, "## Steps\n"},
		{"h3", models.Block{Type: models.BlockHeading3, Text: "Notes"}, "### Notes\n"},
		{"bullet", models.Block{Type: models.BlockBulletedListItem, Text: "one"}, "- one"},
		{"numbered", models.Block{Type: models.BlockNumberedListItem, Text: "first"}, "first"},
		{"todo open", models.Block{Type: models.BlockToDo, Text: "write tests"}, "- [ ] write tests"},
		{"todo done", models.Block{Type: models.BlockToDo, Text: "ship", Checked: true}, "- [x] ship"},
		{"code", models.Block{Type: models.BlockCode, Text: "go test ./...", Language: "bash"}, "```bash\ngo test ./...\n```\n"},
		{"quote", models.Block{Type: models.BlockQuote, Text: "be brief"}, "> be brief\n"},
		{"callout", models.Block{Type: models.BlockCallout, Text: "Heads up"}, "**Heads up**\n"},
		{"image", models.Block{Type: models.BlockImage, URL: "https://img/x.png", Caption: "mock"}, "![mock](https://img/x.png)\n"},
		{"paragraph", models.Block{Type: models.BlockParagraph, Text: "hello"}, "hello\n"},
		{"empty paragraph", models.Block{Type: models.BlockParagraph}, ""},
		{"unsupported", models.Block{Type: "table", Text: UnsupportedBlockText("table")}, "[table block]\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RenderBlock(tt.block); got != tt.want {
				t.Errorf("RenderBlock = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRenderBlocks_JoinsWithNewline(t *testing.T) {
	blocks := []models.Block{
		{Type: models.BlockHeading1, Text: "Goal"},
		{Type: models.BlockParagraph, Text: "Make it fast."},
		{Type: models.BlockBulletedListItem, Text: "cache"},
	}
	want := "# Goal\n\nMake it fast.\n\n- cache"
	if got := RenderBlocks(blocks); got != want {
		t.Errorf("RenderBlocks = %q, want %q", got, want)
	}
	if RenderBlocks(nil) != "" {
		t.Error("RenderBlocks(nil) should be empty")
	}
}
