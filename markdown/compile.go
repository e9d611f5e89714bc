package markdown

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	east "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Options control how a single source file is compiled.
type Options struct {
	// Root is the absolute path of the document source tree. Relative asset
	// references (images, tables, includes) resolve against it.
	Root string
	// TableExtension marks links that should be loaded as external tables.
	TableExtension string
}

func (o Options) tableExt() string {
	if o.TableExtension == "" {
		return ".csv"
	}
	return o.TableExtension
}

var engine = goldmark.New(goldmark.WithExtensions(
	extension.Table,
	extension.Strikethrough,
	extension.TaskList,
))

// Compile reduces one Markdown file to a list of numbered sections. Malformed
// Markdown never fails - the parser always produces a tree and a file without
// headings yields a single level one section with empty heading text. The
// only reported failures are malformed metadata blocks, and even then all
// sections are still returned.
func Compile(src []byte, sourceFile string, fileNumber SectionNumber, opts Options, log *zap.Logger) ([]Section, error) {
	r := &reducer{
		src:        src,
		sourceFile: sourceFile,
		fileNumber: fileNumber.StripParentMarker(),
		opts:       opts,
		log:        log,
		lineIndex:  buildLineIndex(src),
	}

	doc := engine.Parser().Parse(text.NewReader(src))
	if err := ast.Walk(doc, r.visit); err != nil {
		// the walker itself never returns errors
		return nil, err
	}
	return r.finalize(), multierr.Combine(r.metaErrs...)
}

// formatting mirrors Run flags and is toggled by enter and exit of inline
// nodes.
type formatting struct {
	bold, italic, code, strike, superscript, subscript bool

	linkURL, linkTitle string
}

type listCtx struct {
	start *int
	items []ListItem
	item  []Block // nil when no item is open
	open  bool
	task  *bool
}

// frame is one open container on the nesting stack, either a block quote
// accumulating blocks or a list. Keeping both kinds on a single stack
// preserves the true nesting order, a quote opened inside a list item
// collects blocks before the item does.
type frame struct {
	quote []Block
	list  *listCtx
}

type tableCtx struct {
	alignments []Alignment
	headers    [][]Run
	rows       [][][]Run
	row        [][]Run
	inHeader   bool
}

type sectionBuilder struct {
	level   int
	heading string
	blocks  []Block
	meta    *SectionMeta
	line    int
}

type reducer struct {
	src        []byte
	sourceFile string
	fileNumber SectionNumber
	opts       Options
	log        *zap.Logger
	lineIndex  []int

	fmtState formatting
	runs     []Run

	sections []Section
	current  *sectionBuilder
	prelude  []Block
	// metadata seen before the first heading, attached to the synthesized
	// prelude section
	preludeMeta *SectionMeta

	frames     []*frame
	tableStack []*tableCtx

	// counters[i] tracks headings of level i+1 seen so far, h1 never counts
	counters [MaxSectionDepth]int

	headingAsBlock bool
	curLine        int

	metaErrs []error
}

func buildLineIndex(src []byte) []int {
	idx := []int{0}
	for i, b := range src {
		if b == '\n' {
			idx = append(idx, i+1)
		}
	}
	return idx
}

func (r *reducer) lineOf(offset int) int {
	return sort.SearchInts(r.lineIndex, offset+1)
}

func (r *reducer) visit(n ast.Node, entering bool) (ast.WalkStatus, error) {
	switch node := n.(type) {
	case *ast.Document:
		return ast.WalkContinue, nil

	case *ast.Heading:
		return r.visitHeading(node, entering), nil

	case *ast.Paragraph, *ast.TextBlock:
		if entering {
			r.runs = r.runs[:0]
		} else {
			r.finishParagraph()
		}

	case *ast.Text:
		if entering {
			r.appendText(string(node.Segment.Value(r.src)))
			if node.HardLineBreak() {
				r.runs = append(r.runs, Run{Text: "\n"})
			} else if node.SoftLineBreak() {
				r.runs = append(r.runs, Run{Text: " "})
			}
		}

	case *ast.String:
		if entering {
			r.appendText(string(node.Value))
		}

	case *ast.CodeSpan:
		r.fmtState.code = entering

	case *ast.Emphasis:
		if node.Level >= 2 {
			r.fmtState.bold = entering
		} else {
			r.fmtState.italic = entering
		}

	case *east.Strikethrough:
		r.fmtState.strike = entering

	case *ast.Link:
		return r.visitLink(node, entering), nil

	case *ast.AutoLink:
		if entering {
			url := string(node.URL(r.src))
			r.runs = append(r.runs, Run{Text: string(node.Label(r.src)), LinkURL: url})
		}

	case *ast.Image:
		if entering {
			r.emitImage(node)
			return ast.WalkSkipChildren, nil
		}

	case *ast.FencedCodeBlock:
		if entering {
			r.emitCodeBlock(string(node.Language(r.src)), r.blockLines(node), true, node)
			return ast.WalkSkipChildren, nil
		}

	case *ast.CodeBlock:
		if entering {
			r.emitCodeBlock("", r.blockLines(node), false, node)
			return ast.WalkSkipChildren, nil
		}

	case *ast.Blockquote:
		if entering {
			r.frames = append(r.frames, &frame{})
		} else {
			f := r.frames[len(r.frames)-1]
			r.frames = r.frames[:len(r.frames)-1]
			r.route(BlockQuote{Blocks: f.quote})
		}

	case *ast.List:
		if entering {
			lc := &listCtx{}
			if node.IsOrdered() {
				start := node.Start
				lc.start = &start
			}
			r.frames = append(r.frames, &frame{list: lc})
		} else {
			lc := r.frames[len(r.frames)-1].list
			r.frames = r.frames[:len(r.frames)-1]
			r.route(List{Start: lc.start, Items: lc.items})
		}

	case *ast.ListItem:
		if entering {
			lc := r.frames[len(r.frames)-1].list
			lc.item = nil
			lc.open = true
			lc.task = nil
			r.runs = r.runs[:0]
		} else {
			r.finishListItem()
		}

	case *east.TaskCheckBox:
		if entering {
			if lc := r.topList(); lc != nil {
				checked := node.IsChecked
				lc.task = &checked
			}
		}

	case *east.Table:
		if entering {
			tc := &tableCtx{alignments: make([]Alignment, 0, len(node.Alignments))}
			for _, a := range node.Alignments {
				tc.alignments = append(tc.alignments, convertAlignment(a))
			}
			r.tableStack = append(r.tableStack, tc)
		} else {
			tc := r.tableStack[len(r.tableStack)-1]
			r.tableStack = r.tableStack[:len(r.tableStack)-1]
			r.route(InlineTable{Alignments: tc.alignments, Headers: tc.headers, Rows: tc.rows})
		}

	case *east.TableHeader:
		if tc := r.topTable(); tc != nil {
			if entering {
				tc.inHeader = true
				tc.row = nil
			} else {
				tc.headers = tc.row
				tc.row = nil
				tc.inHeader = false
			}
		}

	case *east.TableRow:
		if tc := r.topTable(); tc != nil {
			if entering {
				tc.row = nil
			} else {
				tc.rows = append(tc.rows, tc.row)
				tc.row = nil
			}
		}

	case *east.TableCell:
		if tc := r.topTable(); tc != nil {
			if entering {
				r.runs = r.runs[:0]
			} else {
				cell := mergeRuns(r.runs)
				r.runs = nil
				tc.row = append(tc.row, cell)
			}
		}

	case *ast.ThematicBreak:
		if entering {
			r.route(Rule{})
		}

	case *ast.HTMLBlock:
		if entering {
			var sb strings.Builder
			sb.WriteString(r.blockLines(node))
			if node.HasClosure() {
				sb.Write(node.ClosureLine.Value(r.src))
			}
			r.route(HTML{Raw: sb.String()})
			return ast.WalkSkipChildren, nil
		}

	case *ast.RawHTML:
		if entering {
			var sb strings.Builder
			for i := 0; i < node.Segments.Len(); i++ {
				seg := node.Segments.At(i)
				sb.Write(seg.Value(r.src))
			}
			r.handleInlineHTML(sb.String())
			return ast.WalkSkipChildren, nil
		}
	}

	return ast.WalkContinue, nil
}

func (r *reducer) topTable() *tableCtx {
	if len(r.tableStack) == 0 {
		return nil
	}
	return r.tableStack[len(r.tableStack)-1]
}

func (r *reducer) topList() *listCtx {
	if len(r.frames) == 0 {
		return nil
	}
	return r.frames[len(r.frames)-1].list
}

func convertAlignment(a east.Alignment) Alignment {
	switch a {
	case east.AlignLeft:
		return AlignLeft
	case east.AlignCenter:
		return AlignCenter
	case east.AlignRight:
		return AlignRight
	default:
		return AlignNone
	}
}

func (r *reducer) appendText(s string) {
	if s == "" {
		return
	}
	f := r.fmtState
	r.runs = append(r.runs, Run{
		Text:        s,
		Bold:        f.bold,
		Italic:      f.italic,
		Code:        f.code,
		Strike:      f.strike,
		Superscript: f.superscript,
		Subscript:   f.subscript,
		LinkURL:     f.linkURL,
		LinkTitle:   f.linkTitle,
	})
}

// handleInlineHTML recognizes superscript and subscript markers, anything
// else joins the block stream as raw HTML the way block level HTML does.
func (r *reducer) handleInlineHTML(raw string) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "<sup>":
		r.fmtState.superscript = true
	case "</sup>":
		r.fmtState.superscript = false
	case "<sub>":
		r.fmtState.subscript = true
	case "</sub>":
		r.fmtState.subscript = false
	default:
		r.route(HTML{Raw: raw})
	}
}

func (r *reducer) visitHeading(node *ast.Heading, entering bool) ast.WalkStatus {
	if entering {
		r.headingAsBlock = len(r.frames) > 0
		if !r.headingAsBlock {
			r.flushSection()
			line := r.curLine
			if node.Lines().Len() > 0 {
				line = r.lineOf(node.Lines().At(0).Start)
			}
			r.current = &sectionBuilder{level: node.Level, line: line}
		}
		r.runs = r.runs[:0]
		return ast.WalkContinue
	}

	runs := mergeRuns(r.runs)
	r.runs = nil
	if r.headingAsBlock {
		r.route(Heading{Level: node.Level, Runs: runs})
	} else if r.current != nil {
		r.current.heading = PlainText(runs)
	}
	return ast.WalkContinue
}

func (r *reducer) visitLink(node *ast.Link, entering bool) ast.WalkStatus {
	url := string(node.Destination)
	if strings.HasSuffix(url, r.opts.tableExt()) {
		if entering {
			r.emitCsvTable(url)
			return ast.WalkSkipChildren
		}
		return ast.WalkContinue
	}
	if entering {
		r.fmtState.linkURL = url
		r.fmtState.linkTitle = string(node.Title)
	} else {
		r.fmtState.linkURL = ""
		r.fmtState.linkTitle = ""
	}
	return ast.WalkContinue
}

func (r *reducer) finishParagraph() {
	if len(r.runs) == 0 {
		return
	}
	runs := mergeRuns(r.runs)
	r.runs = nil
	r.route(Paragraph{Runs: runs})
}

func (r *reducer) finishListItem() {
	if len(r.runs) > 0 {
		// tight list items carry bare text blocks
		r.finishParagraph()
	}
	lc := r.frames[len(r.frames)-1].list
	if !lc.open {
		return
	}
	lc.items = append(lc.items, ListItem{Task: lc.task, Blocks: lc.item})
	lc.item = nil
	lc.open = false
	lc.task = nil
}

// route adds a finished block to the innermost open context, walking the
// nesting stack from the top, then the current section, finally the prelude
// buffer.
func (r *reducer) route(b Block) {
	for i := len(r.frames) - 1; i >= 0; i-- {
		f := r.frames[i]
		if f.list != nil {
			if f.list.open {
				f.list.item = append(f.list.item, b)
				return
			}
			continue
		}
		f.quote = append(f.quote, b)
		return
	}
	if r.current != nil {
		r.current.blocks = append(r.current.blocks, b)
		return
	}
	r.prelude = append(r.prelude, b)
}

func (r *reducer) blockLines(n ast.Node) string {
	var sb strings.Builder
	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		sb.Write(seg.Value(r.src))
	}
	return sb.String()
}

func (r *reducer) emitCodeBlock(language, code string, fenced bool, node ast.Node) {
	if node.Lines().Len() > 0 {
		r.curLine = r.lineOf(node.Lines().At(0).Start)
	}
	if fenced && isMetaLanguage(language) {
		r.applyMetadata(code)
		return
	}
	r.route(CodeBlock{Language: language, Code: code, Fenced: fenced})
}

func isMetaLanguage(lang string) bool {
	return lang == MetaLanguage || strings.Contains(lang, "{"+MetaLanguage+"}")
}

func (r *reducer) applyMetadata(content string) {
	meta, err := ParseSectionMeta([]byte(content))
	if err != nil {
		r.metaErrs = append(r.metaErrs,
			fmt.Errorf("%s:%d: %w", r.sourceFile, r.curLine, err))
		return
	}
	if r.current != nil {
		r.current.meta = meta
		return
	}
	r.preludeMeta = meta
}

func (r *reducer) emitImage(node *ast.Image) {
	alt := r.collectInline(node)

	rel := string(node.Destination)
	abs := filepath.Join(r.opts.Root, filepath.FromSlash(rel))
	_, err := os.Stat(abs)
	exists := err == nil

	format := strings.ToLower(strings.TrimPrefix(filepath.Ext(rel), "."))

	r.route(Image{
		Path:    rel,
		AbsPath: abs,
		Alt:     alt,
		Title:   string(node.Title),
		Format:  format,
		Exists:  exists,
	})
}

// collectInline walks node children into a fresh run buffer without touching
// the main accumulator.
func (r *reducer) collectInline(node ast.Node) []Run {
	saved, savedFmt := r.runs, r.fmtState
	r.runs = nil
	for c := node.FirstChild(); c != nil; c = c.NextSibling() {
		_ = ast.Walk(c, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
			switch t := n.(type) {
			case *ast.Text:
				if entering {
					r.appendText(string(t.Segment.Value(r.src)))
				}
			case *ast.String:
				if entering {
					r.appendText(string(t.Value))
				}
			case *ast.CodeSpan:
				r.fmtState.code = entering
			case *ast.Emphasis:
				if t.Level >= 2 {
					r.fmtState.bold = entering
				} else {
					r.fmtState.italic = entering
				}
			case *east.Strikethrough:
				r.fmtState.strike = entering
			}
			return ast.WalkContinue, nil
		})
	}
	out := mergeRuns(r.runs)
	r.runs, r.fmtState = saved, savedFmt
	return out
}

func (r *reducer) emitCsvTable(rel string) {
	abs := filepath.Join(r.opts.Root, filepath.FromSlash(rel))
	block := CsvTable{Path: rel, AbsPath: abs}

	if headers, rows, err := loadCsv(abs); err == nil {
		block.Exists = true
		block.Headers = headers
		block.Rows = rows
	} else if !os.IsNotExist(err) {
		r.log.Warn("Unable to load table data", zap.String("file", abs), zap.Error(err))
	}

	r.route(block)
}

func loadCsv(path string) (headers []string, rows [][]string, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, err
	}
	cr := csv.NewReader(bytes.NewReader(data))
	cr.FieldsPerRecord = -1
	records, err := cr.ReadAll()
	if err != nil {
		return nil, nil, err
	}
	if len(records) == 0 {
		return nil, nil, nil
	}
	return records[0], records[1:], nil
}

// flushSection finalizes the current section builder assigning its number.
func (r *reducer) flushSection() {
	if r.current == nil {
		return
	}
	sec := r.current
	r.current = nil

	number := r.fileNumber
	if sec.level > 1 {
		levelIdx := min(sec.level-1, MaxSectionDepth-1)
		r.counters[levelIdx]++
		for i := levelIdx + 1; i < MaxSectionDepth; i++ {
			r.counters[i] = 0
		}
		for i := 1; i <= levelIdx; i++ {
			var ok bool
			if number, ok = number.Append(r.counters[i]); !ok {
				r.log.Warn("Section number depth exceeded, using fallback",
					zap.String("heading", sec.heading), zap.String("file", r.sourceFile))
				number = r.fileNumber
				break
			}
		}
	}

	blocks := sec.blocks
	if sec.meta != nil && sec.meta.IncludeFile != "" {
		blocks = append(blocks, r.includedCode(sec.meta.IncludeFile))
	}

	r.sections = append(r.sections, Section{
		HeadingLevel: sec.level,
		Heading:      sec.heading,
		Number:       number,
		Line:         sec.line,
		SourceFile:   r.sourceFile,
		Blocks:       blocks,
		Meta:         sec.meta,
	})
}

func (r *reducer) includedCode(rel string) IncludedCode {
	abs := filepath.Join(r.opts.Root, filepath.FromSlash(rel))

	block := IncludedCode{
		Path:     rel,
		AbsPath:  abs,
		Language: strings.ToLower(strings.TrimPrefix(filepath.Ext(rel), ".")),
	}
	if data, err := os.ReadFile(abs); err == nil {
		block.Exists = true
		block.Content = string(data)
	}
	return block
}

// finalize closes the last open section and deals with content that appeared
// before any heading. A file without headings still produces exactly one
// section so every source file contributes to the document.
func (r *reducer) finalize() []Section {
	r.flushSection()

	if len(r.prelude) > 0 || r.preludeMeta != nil || len(r.sections) == 0 {
		lead := Section{
			HeadingLevel: 1,
			Number:       r.fileNumber,
			Line:         1,
			SourceFile:   r.sourceFile,
			Blocks:       r.prelude,
			Meta:         r.preludeMeta,
		}
		if r.preludeMeta != nil && r.preludeMeta.IncludeFile != "" {
			lead.Blocks = append(lead.Blocks, r.includedCode(r.preludeMeta.IncludeFile))
		}
		r.sections = append([]Section{lead}, r.sections...)
	}
	return r.sections
}
