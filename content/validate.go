package content

import (
	"fmt"
	"sort"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"sdoc/markdown"
)

// Validate checks referential integrity of the assembled document. Four
// independent scans run to completion so one broken reference never hides
// another: missing images, missing tables, missing includes, duplicate
// section ids. All findings are merged into one error.
func Validate(c *Content, log *zap.Logger) error {
	err := multierr.Combine(
		c.scanImages(),
		c.scanTables(),
		c.scanIncludes(),
		c.scanSectionIDs(),
	)
	if n := len(multierr.Errors(err)); n > 0 {
		log.Debug("Validation failed", zap.Int("findings", n))
	}
	return err
}

func (c *Content) scanImages() error {
	var err error
	for _, s := range c.Sections {
		markdown.WalkBlocks(s.Blocks, func(b markdown.Block) bool {
			if img, ok := b.(markdown.Image); ok && !img.Exists {
				err = multierr.Append(err,
					fmt.Errorf("%s: section %s references missing image %q", s.SourceFile, s.Number, img.Path))
			}
			return true
		})
	}
	return err
}

func (c *Content) scanTables() error {
	var err error
	for _, s := range c.Sections {
		markdown.WalkBlocks(s.Blocks, func(b markdown.Block) bool {
			if tbl, ok := b.(markdown.CsvTable); ok && !tbl.Exists {
				err = multierr.Append(err,
					fmt.Errorf("%s: section %s references missing table %q", s.SourceFile, s.Number, tbl.Path))
			}
			return true
		})
	}
	return err
}

func (c *Content) scanIncludes() error {
	var err error
	for _, s := range c.Sections {
		markdown.WalkBlocks(s.Blocks, func(b markdown.Block) bool {
			if inc, ok := b.(markdown.IncludedCode); ok && !inc.Exists {
				err = multierr.Append(err,
					fmt.Errorf("%s: section %s includes missing file %q", s.SourceFile, s.Number, inc.Path))
			}
			return true
		})
	}
	return err
}

// scanSectionIDs reports one finding per repeated occurrence of an id, the
// first sighting in discovery order keeps ownership.
func (c *Content) scanSectionIDs() error {
	fileOrder := make(map[string]int, len(c.Files))
	for i, f := range c.Files {
		fileOrder[f.RelPath] = i
	}

	candidates := make([]markdown.Section, 0, len(c.Sections))
	for _, s := range c.Sections {
		if s.Meta != nil && s.Meta.SectionID != "" {
			candidates = append(candidates, s)
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.SourceFile != b.SourceFile {
			return fileOrder[a.SourceFile] < fileOrder[b.SourceFile]
		}
		return a.Line < b.Line
	})

	type sighting struct {
		file string
		line int
	}
	seen := make(map[string]sighting)

	var err error
	for _, s := range candidates {
		id := s.Meta.SectionID
		if first, ok := seen[id]; ok {
			err = multierr.Append(err,
				fmt.Errorf("%s:%d: duplicate section id %q, first defined at %s:%d",
					s.SourceFile, s.Line, id, first.file, first.line))
			continue
		}
		seen[id] = sighting{file: s.SourceFile, line: s.Line}
	}
	return err
}
