package content

import (
	"sort"
	"strings"

	"go.uber.org/zap"

	"sdoc/markdown"
)

// GenerateTraceability appends requested traceability tables to their
// requesting sections. The forward table maps every section id to the ids it
// traces to, the reverse table is its inversion. Rows are sorted by the key
// column, cell lists are comma joined in sorted order. Runs after validation
// so section ids are known to be unique.
func GenerateTraceability(c *Content, log *zap.Logger) {
	forward := make(map[string][]string)
	for _, s := range c.Sections {
		if s.Meta == nil || s.Meta.SectionID == "" {
			continue
		}
		forward[s.Meta.SectionID] = dedupSorted(s.Meta.TracedIDs)
	}

	reverse := make(map[string][]string)
	for id, traced := range forward {
		for _, t := range traced {
			reverse[t] = append(reverse[t], id)
		}
	}
	for t := range reverse {
		reverse[t] = dedupSorted(reverse[t])
	}

	for i := range c.Sections {
		s := &c.Sections[i]
		if s.Meta == nil {
			continue
		}
		if s.Meta.ForwardTable.Enabled {
			log.Debug("Generating forward traceability table",
				zap.String("file", s.SourceFile), zap.Stringer("section", s.Number))
			s.Blocks = append(s.Blocks, traceTable(s.Meta.ForwardTable.Headers, forward))
		}
		if s.Meta.ReverseTable.Enabled {
			log.Debug("Generating reverse traceability table",
				zap.String("file", s.SourceFile), zap.Stringer("section", s.Number))
			s.Blocks = append(s.Blocks, traceTable(s.Meta.ReverseTable.Headers, reverse))
		}
	}
}

func traceTable(headers [2]string, data map[string][]string) markdown.InlineTable {
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	rows := make([][][]markdown.Run, 0, len(keys))
	for _, k := range keys {
		rows = append(rows, [][]markdown.Run{
			{{Text: k}},
			{{Text: strings.Join(data[k], ", ")}},
		})
	}

	return markdown.InlineTable{
		Alignments: []markdown.Alignment{markdown.AlignLeft, markdown.AlignLeft},
		Headers: [][]markdown.Run{
			{{Text: headers[0], Bold: true}},
			{{Text: headers[1], Bold: true}},
		},
		Rows: rows,
	}
}

func dedupSorted(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	sort.Strings(out)
	j := 0
	for i := 1; i < len(out); i++ {
		if out[i] != out[j] {
			j++
			out[j] = out[i]
		}
	}
	return out[:j+1]
}
