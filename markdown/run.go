// Package markdown compiles Markdown sources into a typed block model
// suitable for document generation.
package markdown

import "strings"

// Run is a contiguous piece of text with uniform formatting. Formatting
// flags are independent of each other, runs are never mutated after creation.
type Run struct {
	Text        string
	Bold        bool
	Italic      bool
	Code        bool
	Strike      bool
	Superscript bool
	Subscript   bool
	LinkURL     string
	LinkTitle   string
}

// PlainText concatenates run texts dropping all formatting.
func PlainText(runs []Run) string {
	var sb strings.Builder
	for _, r := range runs {
		sb.WriteString(r.Text)
	}
	return sb.String()
}

// sameFormat reports whether two runs can be merged into one.
func sameFormat(a, b Run) bool {
	return a.Bold == b.Bold && a.Italic == b.Italic && a.Code == b.Code &&
		a.Strike == b.Strike && a.Superscript == b.Superscript && a.Subscript == b.Subscript &&
		a.LinkURL == b.LinkURL && a.LinkTitle == b.LinkTitle
}

// mergeRuns joins adjacent runs with identical formatting, it keeps generated
// output compact without changing rendered result.
func mergeRuns(runs []Run) []Run {
	if len(runs) < 2 {
		return runs
	}
	out := runs[:1]
	for _, r := range runs[1:] {
		last := &out[len(out)-1]
		if sameFormat(*last, r) {
			last.Text += r.Text
			continue
		}
		out = append(out, r)
	}
	return out
}
