package docx

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"sdoc/content"
	"sdoc/markdown"
)

const (
	emusPerInch = 914400
	screenDPI   = 96

	// display geometry limits in inches
	maxImageWidth  = 6.5
	fallbackWidth  = 6.0
	fallbackHeight = 4.0

	// twips
	indentStep    = 720
	hangingIndent = 360

	codeFont = "Consolas"
)

var xmlEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&apos;",
)

func escapeXML(s string) string {
	return xmlEscaper.Replace(s)
}

// bodyBuilder accumulates OOXML paragraphs spliced into the template body.
// Drawing object ids come from the threaded allocator, never from globals.
type bodyBuilder struct {
	sb   strings.Builder
	imgs map[string]*imageRef
	ids  *idAllocator
	log  *zap.Logger
}

func buildBody(c *content.Content, imgs map[string]*imageRef, ids *idAllocator, log *zap.Logger) string {
	b := &bodyBuilder{imgs: imgs, ids: ids, log: log}
	for _, s := range c.Sections {
		b.section(s)
	}
	return b.sb.String()
}

func (b *bodyBuilder) section(s markdown.Section) {
	if s.Heading != "" {
		level := min(max(s.HeadingLevel, 1), 9)
		b.sb.WriteString(fmt.Sprintf(`<w:p><w:pPr><w:pStyle w:val="Heading%d"/></w:pPr>`, level))
		b.text(s.Number.String()+" "+s.Heading, "")
		b.sb.WriteString("</w:p>")
	}
	for _, blk := range s.Blocks {
		b.block(blk, 0)
	}
}

func (b *bodyBuilder) block(blk markdown.Block, indent int) {
	switch t := blk.(type) {
	case markdown.Paragraph:
		b.paragraph(t.Runs, indent, "")
	case markdown.Heading:
		// headings inside quotes and list items render as emphasized text
		runs := make([]markdown.Run, len(t.Runs))
		copy(runs, t.Runs)
		for i := range runs {
			runs[i].Bold = true
		}
		b.paragraph(runs, indent, "")
	case markdown.Image:
		b.image(t)
	case markdown.CodeBlock:
		b.code(t.Code, indent)
	case markdown.IncludedCode:
		b.includedCode(t, indent)
	case markdown.BlockQuote:
		for _, inner := range t.Blocks {
			b.block(inner, indent+1)
		}
	case markdown.List:
		b.list(t, indent)
	case markdown.InlineTable:
		b.table(t.Alignments, t.Headers, t.Rows)
	case markdown.CsvTable:
		b.csvTable(t)
	case markdown.Rule:
		b.sb.WriteString(`<w:p><w:pPr><w:pBdr><w:bottom w:val="single" w:sz="6" w:space="1" w:color="auto"/></w:pBdr></w:pPr></w:p>`)
	case markdown.HTML:
		b.placeholder("[embedded html omitted]", indent)
	default:
		b.log.Warn("Skipping block of unsupported kind", zap.String("kind", fmt.Sprintf("%T", blk)))
	}
}

func (b *bodyBuilder) paragraph(runs []markdown.Run, indent int, marker string) {
	b.sb.WriteString("<w:p>")
	b.paragraphProps(indent, marker != "", "")
	if marker != "" {
		b.sb.WriteString(`<w:r><w:t xml:space="preserve">` + escapeXML(marker) + `</w:t></w:r><w:r><w:tab/></w:r>`)
	}
	for _, r := range runs {
		b.run(r)
	}
	b.sb.WriteString("</w:p>")
}

func (b *bodyBuilder) paragraphProps(indent int, hanging bool, jc string) {
	if indent <= 0 && !hanging && jc == "" {
		return
	}
	b.sb.WriteString("<w:pPr>")
	if indent > 0 || hanging {
		left := indent * indentStep
		if hanging {
			left += hangingIndent
			b.sb.WriteString(fmt.Sprintf(`<w:ind w:left="%d" w:hanging="%d"/>`, left, hangingIndent))
		} else {
			b.sb.WriteString(fmt.Sprintf(`<w:ind w:left="%d"/>`, left))
		}
	}
	if jc != "" {
		b.sb.WriteString(`<w:jc w:val="` + jc + `"/>`)
	}
	b.sb.WriteString("</w:pPr>")
}

func (b *bodyBuilder) run(r markdown.Run) {
	if r.Text == "" {
		return
	}

	var props strings.Builder
	if r.Code {
		props.WriteString(fmt.Sprintf(`<w:rFonts w:ascii="%[1]s" w:hAnsi="%[1]s" w:cs="%[1]s"/>`, codeFont))
	}
	if r.Bold {
		props.WriteString("<w:b/>")
	}
	if r.Italic {
		props.WriteString("<w:i/>")
	}
	if r.Strike {
		props.WriteString("<w:strike/>")
	}
	if r.Superscript {
		props.WriteString(`<w:vertAlign w:val="superscript"/>`)
	} else if r.Subscript {
		props.WriteString(`<w:vertAlign w:val="subscript"/>`)
	}
	if r.LinkURL != "" {
		props.WriteString(`<w:color w:val="0563C1"/><w:u w:val="single"/>`)
	}

	b.sb.WriteString("<w:r>")
	if props.Len() > 0 {
		b.sb.WriteString("<w:rPr>" + props.String() + "</w:rPr>")
	}
	for i, seg := range strings.Split(r.Text, "\n") {
		if i > 0 {
			b.sb.WriteString("<w:br/>")
		}
		if seg != "" {
			b.sb.WriteString(`<w:t xml:space="preserve">` + escapeXML(seg) + "</w:t>")
		}
	}
	b.sb.WriteString("</w:r>")

	// links stay styled text, the target rides along in parentheses
	if r.LinkURL != "" && r.LinkURL != r.Text {
		b.text(" ("+r.LinkURL+")", "")
	}
}

// text emits a single plain run, props is raw rPr content.
func (b *bodyBuilder) text(s, props string) {
	b.sb.WriteString("<w:r>")
	if props != "" {
		b.sb.WriteString("<w:rPr>" + props + "</w:rPr>")
	}
	b.sb.WriteString(`<w:t xml:space="preserve">` + escapeXML(s) + "</w:t></w:r>")
}

func (b *bodyBuilder) placeholder(msg string, indent int) {
	b.sb.WriteString("<w:p>")
	b.paragraphProps(indent, false, "")
	b.text(msg, "<w:i/>")
	b.sb.WriteString("</w:p>")
}

func (b *bodyBuilder) list(l markdown.List, indent int) {
	n := 1
	if l.Start != nil {
		n = *l.Start
	}
	for _, item := range l.Items {
		marker := "•"
		if l.Start != nil {
			marker = fmt.Sprintf("%d.", n)
			n++
		}
		if item.Task != nil {
			if *item.Task {
				marker = "☑"
			} else {
				marker = "☐"
			}
		}

		first := true
		for _, inner := range item.Blocks {
			if p, ok := inner.(markdown.Paragraph); ok && first {
				// marker rides on the item's first paragraph
				b.paragraph(p.Runs, indent+1, marker)
				first = false
				continue
			}
			b.block(inner, indent+1)
			first = false
		}
		if first {
			b.paragraph(nil, indent+1, marker)
		}
	}
}

func (b *bodyBuilder) code(code string, indent int) {
	lines := strings.Split(strings.TrimRight(code, "\n"), "\n")

	b.sb.WriteString("<w:p>")
	b.paragraphProps(indent, false, "")
	b.sb.WriteString("<w:r><w:rPr>")
	b.sb.WriteString(fmt.Sprintf(`<w:rFonts w:ascii="%[1]s" w:hAnsi="%[1]s" w:cs="%[1]s"/>`, codeFont))
	b.sb.WriteString("</w:rPr>")
	for i, line := range lines {
		if i > 0 {
			b.sb.WriteString("<w:br/>")
		}
		if line != "" {
			b.sb.WriteString(`<w:t xml:space="preserve">` + escapeXML(line) + "</w:t>")
		}
	}
	b.sb.WriteString("</w:r></w:p>")
}

func (b *bodyBuilder) includedCode(inc markdown.IncludedCode, indent int) {
	if !inc.Exists {
		b.placeholder("[missing include: "+inc.Path+"]", indent)
		return
	}
	b.placeholder(inc.Path, indent)
	b.code(inc.Content, indent)
}

func (b *bodyBuilder) image(img markdown.Image) {
	ref, ok := b.imgs[img.Path]
	if !ok || !img.Exists {
		b.placeholder("[missing image: "+img.Path+"]", 0)
		return
	}

	cx, cy := displayEMU(ref)

	id := b.ids.next()
	name := escapeXML(img.Path)

	b.sb.WriteString(`<w:p><w:pPr><w:jc w:val="center"/></w:pPr><w:r><w:drawing>`)
	b.sb.WriteString(`<wp:inline distT="0" distB="0" distL="0" distR="0" xmlns:wp="http://schemas.openxmlformats.org/drawingml/2006/wordprocessingDrawing">`)
	b.sb.WriteString(fmt.Sprintf(`<wp:extent cx="%d" cy="%d"/>`, cx, cy))
	b.sb.WriteString(fmt.Sprintf(`<wp:docPr id="%d" name="%s"/>`, id, name))
	b.sb.WriteString(`<a:graphic xmlns:a="http://schemas.openxmlformats.org/drawingml/2006/main">`)
	b.sb.WriteString(`<a:graphicData uri="http://schemas.openxmlformats.org/drawingml/2006/picture">`)
	b.sb.WriteString(`<pic:pic xmlns:pic="http://schemas.openxmlformats.org/drawingml/2006/picture">`)
	b.sb.WriteString(fmt.Sprintf(`<pic:nvPicPr><pic:cNvPr id="%d" name="%s"/><pic:cNvPicPr/></pic:nvPicPr>`, id, name))
	b.sb.WriteString(fmt.Sprintf(`<pic:blipFill><a:blip r:embed="%s" xmlns:r="http://schemas.openxmlformats.org/officeDocument/2006/relationships"/><a:stretch><a:fillRect/></a:stretch></pic:blipFill>`, ref.relID))
	b.sb.WriteString(fmt.Sprintf(`<pic:spPr><a:xfrm><a:off x="0" y="0"/><a:ext cx="%d" cy="%d"/></a:xfrm><a:prstGeom prst="rect"><a:avLst/></a:prstGeom></pic:spPr>`, cx, cy))
	b.sb.WriteString(`</pic:pic></a:graphicData></a:graphic></wp:inline></w:drawing></w:r></w:p>`)

	if img.Title != "" {
		b.sb.WriteString(`<w:p><w:pPr><w:pStyle w:val="Caption"/><w:jc w:val="center"/></w:pPr>`)
		b.text(img.Title, "")
		b.sb.WriteString("</w:p>")
	}
}

// displayEMU computes the inline display size: natural size at screen DPI,
// width capped, aspect preserved. Unknown geometry falls back to a fixed box.
func displayEMU(ref *imageRef) (cx, cy int64) {
	if ref.prep.Dim.IsZero() {
		return int64(fallbackWidth * emusPerInch), int64(fallbackHeight * emusPerInch)
	}
	wIn := float64(ref.prep.Dim.Width) / screenDPI
	hIn := float64(ref.prep.Dim.Height) / screenDPI
	if wIn > maxImageWidth {
		hIn = hIn * maxImageWidth / wIn
		wIn = maxImageWidth
	}
	return int64(wIn * emusPerInch), int64(hIn * emusPerInch)
}

func (b *bodyBuilder) csvTable(t markdown.CsvTable) {
	if !t.Exists {
		b.placeholder("[missing table: "+t.Path+"]", 0)
		return
	}
	headers := make([][]markdown.Run, 0, len(t.Headers))
	for _, h := range t.Headers {
		headers = append(headers, []markdown.Run{{Text: h}})
	}
	rows := make([][][]markdown.Run, 0, len(t.Rows))
	for _, row := range t.Rows {
		cells := make([][]markdown.Run, 0, len(row))
		for _, cell := range row {
			cells = append(cells, []markdown.Run{{Text: cell}})
		}
		rows = append(rows, cells)
	}
	b.table(nil, headers, rows)
}

func (b *bodyBuilder) table(alignments []markdown.Alignment, headers [][]markdown.Run, rows [][][]markdown.Run) {
	b.sb.WriteString(`<w:tbl><w:tblPr><w:tblW w:w="0" w:type="auto"/><w:tblBorders>`)
	for _, side := range []string{"top", "left", "bottom", "right", "insideH", "insideV"} {
		b.sb.WriteString(fmt.Sprintf(`<w:%s w:val="single" w:sz="4" w:space="0" w:color="auto"/>`, side))
	}
	b.sb.WriteString(`</w:tblBorders></w:tblPr>`)

	if len(headers) > 0 {
		b.tableRow(alignments, headers, true)
	}
	for _, row := range rows {
		b.tableRow(alignments, row, false)
	}
	b.sb.WriteString("</w:tbl>")
}

func (b *bodyBuilder) tableRow(alignments []markdown.Alignment, cells [][]markdown.Run, header bool) {
	b.sb.WriteString("<w:tr>")
	for i, cell := range cells {
		b.sb.WriteString(`<w:tc><w:tcPr><w:tcW w:w="0" w:type="auto"/></w:tcPr><w:p>`)
		if jc := cellAlignment(alignments, i); jc != "" {
			b.sb.WriteString(`<w:pPr><w:jc w:val="` + jc + `"/></w:pPr>`)
		}
		for _, r := range cell {
			if header {
				r.Bold = true
			}
			b.run(r)
		}
		b.sb.WriteString("</w:p></w:tc>")
	}
	b.sb.WriteString("</w:tr>")
}

func cellAlignment(alignments []markdown.Alignment, col int) string {
	if col >= len(alignments) {
		return ""
	}
	switch alignments[col] {
	case markdown.AlignCenter:
		return "center"
	case markdown.AlignRight:
		return "right"
	case markdown.AlignLeft:
		return "left"
	default:
		return ""
	}
}
