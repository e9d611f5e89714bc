package content

import (
	"fmt"

	"sdoc/markdown"
	"sdoc/utils/debug"
)

// String returns a readable tree of the assembled document. It exists solely
// for manual inspection during debugging.
func (c *Content) String() string {
	if c == nil {
		return "<nil Content>"
	}

	tw := debug.NewTreeWriter()

	tw.Line(0, "Document %q (%s)", c.Info.Title, c.Info.DocumentID)
	tw.Line(1, "type=%q standard=%q version=%q", c.Info.Type, c.Info.Standard, c.Info.Version)
	tw.Line(1, "owner=%q approver=%q", c.Info.Owner.Name, c.Info.Approver.Name)

	tw.Line(0, "Sources: %d", len(c.Files))
	for _, f := range c.Files {
		tw.Line(1, "File[%q] number[%s] title[%q]", f.RelPath, f.Number.String(), f.Title)
	}

	tw.Line(0, "Sections: %d", len(c.Sections))
	for _, s := range c.Sections {
		tw.Line(1, "Section[%s] level[%d] heading[%q] from %s:%d",
			s.Number.String(), s.HeadingLevel, s.Heading, s.SourceFile, s.Line)
		if s.Meta != nil && s.Meta.HasTraceability() {
			tw.Line(2, "id=%q traces=%v", s.Meta.SectionID, s.Meta.TracedIDs)
		}
		markdown.WalkBlocks(s.Blocks, func(b markdown.Block) bool {
			tw.Line(2, "%s", describeBlock(b))
			return true
		})
	}

	return tw.String()
}

func describeBlock(b markdown.Block) string {
	switch t := b.(type) {
	case markdown.Heading:
		return fmt.Sprintf("Heading level[%d] %q", t.Level, markdown.PlainText(t.Runs))
	case markdown.Paragraph:
		return fmt.Sprintf("Paragraph runs[%d]", len(t.Runs))
	case markdown.Image:
		return fmt.Sprintf("Image[%q] format[%q] exists[%t]", t.Path, t.Format, t.Exists)
	case markdown.CodeBlock:
		return fmt.Sprintf("CodeBlock lang[%q] bytes[%d]", t.Language, len(t.Code))
	case markdown.BlockQuote:
		return fmt.Sprintf("BlockQuote blocks[%d]", len(t.Blocks))
	case markdown.List:
		if t.Start != nil {
			return fmt.Sprintf("List ordered start[%d] items[%d]", *t.Start, len(t.Items))
		}
		return fmt.Sprintf("List items[%d]", len(t.Items))
	case markdown.InlineTable:
		return fmt.Sprintf("InlineTable cols[%d] rows[%d]", len(t.Headers), len(t.Rows))
	case markdown.CsvTable:
		return fmt.Sprintf("CsvTable[%q] exists[%t] rows[%d]", t.Path, t.Exists, len(t.Rows))
	case markdown.Rule:
		return "Rule"
	case markdown.HTML:
		return fmt.Sprintf("HTML bytes[%d]", len(t.Raw))
	case markdown.IncludedCode:
		return fmt.Sprintf("IncludedCode[%q] lang[%q] exists[%t]", t.Path, t.Language, t.Exists)
	default:
		return fmt.Sprintf("%T", b)
	}
}
