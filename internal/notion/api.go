package notion

import (
	"strings"

	"github.com/jomei/notionapi"

	"github.com/valter-silva-au/taskflow/internal/core"
	"github.com/valter-silva-au/taskflow/pkg/models"
)

// maxTextLength is the longest content Notion accepts in one rich text object.
const maxTextLength = 2000

// maxPageSize is the largest page_size the query and list endpoints accept.
const maxPageSize = 100

// descriptionFallback is tried when the configured description property is absent.
const descriptionFallback = "Content"

func plainText(parts []notionapi.RichText) string {
	var b strings.Builder
	for _, p := range parts {
		b.WriteString(p.PlainText)
	}
	return b.String()
}

// textObjects splits content into rich text objects no longer than
// maxTextLength runes each.
func textObjects(content string) []notionapi.RichText {
	runes := []rune(content)
	if len(runes) == 0 {
		return []notionapi.RichText{textObject("")}
	}
	var out []notionapi.RichText
	for len(runes) > 0 {
		n := min(len(runes), maxTextLength)
		out = append(out, textObject(string(runes[:n])))
		runes = runes[n:]
	}
	return out
}

func textObject(content string) notionapi.RichText {
	return notionapi.RichText{
		Type: notionapi.ObjectTypeText,
		Text: &notionapi.Text{Content: content},
	}
}

// paragraph builds a paragraph block for appending to a page body.
func paragraph(text string) notionapi.Block {
	return &notionapi.ParagraphBlock{
		BasicBlock: notionapi.BasicBlock{
			Object: notionapi.ObjectTypeBlock,
			Type:   notionapi.BlockTypeParagraph,
		},
		Paragraph: notionapi.Paragraph{RichText: textObjects(text)},
	}
}

// toBlock flattens a Notion block. Types outside models' block set get the
// placeholder text "[type block]".
func toBlock(b notionapi.Block) models.Block {
	out := models.Block{
		ID:   string(b.GetID()),
		Type: models.BlockType(b.GetType()),
	}
	if hc, ok := b.(interface{ GetHasChildren() bool }); ok {
		out.HasChildren = hc.GetHasChildren()
	}

	switch v := b.(type) {
	case *notionapi.ParagraphBlock:
		out.Text = plainText(v.Paragraph.RichText)
	case *notionapi.Heading1Block:
		out.Text = plainText(v.Heading1.RichText)
	case *notionapi.Heading2Block:
		out.Text = plainText(v.Heading2.RichText)
	case *notionapi.Heading3Block:
		out.Text = plainText(v.Heading3.RichText)
	case *notionapi.BulletedListItemBlock:
		out.Text = plainText(v.BulletedListItem.RichText)
	case *notionapi.NumberedListItemBlock:
		out.Text = plainText(v.NumberedListItem.RichText)
	case *notionapi.ToDoBlock:
		out.Text = plainText(v.ToDo.RichText)
		out.Checked = v.ToDo.Checked
	case *notionapi.CodeBlock:
		out.Text = plainText(v.Code.RichText)
		out.Language = v.Code.Language
	case *notionapi.QuoteBlock:
		out.Text = plainText(v.Quote.RichText)
	case *notionapi.CalloutBlock:
		out.Text = plainText(v.Callout.RichText)
	case *notionapi.ImageBlock:
		out.URL = imageURL(v.Image)
		out.Caption = plainText(v.Image.Caption)
	default:
		out.Text = core.UnsupportedBlockText(string(b.GetType()))
	}
	return out
}

// imageURL prefers the source named by the image's type.
func imageURL(img notionapi.Image) string {
	if string(img.Type) == "external" && img.External != nil {
		return img.External.URL
	}
	if img.File != nil {
		return img.File.URL
	}
	if img.External != nil {
		return img.External.URL
	}
	return ""
}

// toTask converts a page using the configured property names.
func toTask(p *notionapi.Page, props models.NotionPropertyConf) *models.Task {
	t := &models.Task{
		ID:             string(p.ID),
		URL:            p.URL,
		Title:          "Untitled",
		Status:         models.StatusUnknown,
		Priority:       models.PriorityMedium,
		Tags:           tagNames(p, props),
		CreatedTime:    p.CreatedTime,
		LastEditedTime: p.LastEditedTime,
	}

	for _, prop := range p.Properties {
		if title, ok := titleText(prop); ok && title != "" {
			t.Title = title
			break
		}
	}

	if name, ok := descriptionPropertyName(p, props); ok {
		t.Description, _ = richText(p.Properties[name])
	}
	if name := statusName(p.Properties[props.Status]); name != "" {
		t.Status = models.TaskStatus(name)
	}
	if name := selectName(p.Properties[props.Priority]); name != "" {
		t.Priority = models.Priority(name)
	}
	return t
}

func tagNames(p *notionapi.Page, props models.NotionPropertyConf) []string {
	tags := []string{}
	var opts []notionapi.Option
	switch v := p.Properties[props.Tags].(type) {
	case *notionapi.MultiSelectProperty:
		opts = v.MultiSelect
	case notionapi.MultiSelectProperty:
		opts = v.MultiSelect
	}
	for _, opt := range opts {
		tags = append(tags, opt.Name)
	}
	return tags
}

func descriptionPropertyName(p *notionapi.Page, props models.NotionPropertyConf) (string, bool) {
	for _, name := range []string{props.Description, descriptionFallback} {
		if _, ok := richText(p.Properties[name]); ok {
			return name, true
		}
	}
	return "", false
}

// The property readers accept both the pointer and value forms of notionapi
// property types.

func titleText(prop notionapi.Property) (string, bool) {
	switch v := prop.(type) {
	case *notionapi.TitleProperty:
		return plainText(v.Title), true
	case notionapi.TitleProperty:
		return plainText(v.Title), true
	}
	return "", false
}

func richText(prop notionapi.Property) (string, bool) {
	switch v := prop.(type) {
	case *notionapi.RichTextProperty:
		return plainText(v.RichText), true
	case notionapi.RichTextProperty:
		return plainText(v.RichText), true
	}
	return "", false
}

func statusName(prop notionapi.Property) string {
	switch v := prop.(type) {
	case *notionapi.StatusProperty:
		return v.Status.Name
	case notionapi.StatusProperty:
		return v.Status.Name
	}
	return ""
}

func selectName(prop notionapi.Property) string {
	switch v := prop.(type) {
	case *notionapi.SelectProperty:
		return v.Select.Name
	case notionapi.SelectProperty:
		return v.Select.Name
	}
	return ""
}
