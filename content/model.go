// Package content builds the unified in-memory document from discovered
// Markdown sources: discovery, concurrent compilation, validation,
// traceability generation.
package content

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"sort"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"sdoc/document"
	"sdoc/markdown"
	"sdoc/state"
)

// Content is the unified document: every section from every source in final
// order plus the document descriptor. Built once by Prepare, read-only
// afterwards except for table blocks appended by GenerateTraceability.
type Content struct {
	Root     string
	Info     *document.Info
	Files    []SourceFile
	Sections []markdown.Section
}

// Prepare discovers sources under root, compiles them concurrently and
// assembles the unified document sorted by section number.
func Prepare(ctx context.Context, root string, log *zap.Logger) (*Content, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	env := state.EnvFromContext(ctx)

	info, err := document.Load(root)
	if err != nil {
		return nil, err
	}

	files, err := DiscoverSources(root, log)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no document sources found under %s", root)
	}

	opts := markdown.Options{
		Root:           root,
		TableExtension: env.Cfg.Document.TableExtension,
	}

	// Compilation of a file depends only on its content, so files are
	// processed on a bounded pool and results are collected by index to keep
	// discovery order for the aggregation step.
	type result struct {
		sections []markdown.Section
		err      error
	}
	results := make([]result, len(files))

	var wg sync.WaitGroup
	sem := make(chan struct{}, runtime.GOMAXPROCS(0))
	for i := range files {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			if err := ctx.Err(); err != nil {
				results[i].err = err
				return
			}
			results[i].sections, results[i].err = compileFile(files[i], opts, log)
		}()
	}
	wg.Wait()

	var errs error
	sections := make([]markdown.Section, 0, len(files))
	for i, res := range results {
		if res.err != nil {
			errs = multierr.Append(errs, res.err)
			continue
		}
		sections = append(sections, withFallbackTitle(res.sections, files[i])...)
	}
	if errs != nil {
		return nil, errs
	}

	sort.SliceStable(sections, func(i, j int) bool {
		return sections[i].Number.Less(sections[j].Number)
	})

	c := &Content{
		Root:     root,
		Info:     info,
		Files:    files,
		Sections: sections,
	}

	log.Debug("Prepared document",
		zap.Int("files", len(files)),
		zap.Int("sections", len(sections)),
		zap.Int("images", len(c.Images())),
		zap.Int("tables", len(c.Tables())))

	// Save assembled document to report for debugging
	if env.Rpt != nil {
		env.Rpt.StoreData("content.txt", []byte(c.String()))
	}
	return c, nil
}

func compileFile(f SourceFile, opts markdown.Options, log *zap.Logger) ([]markdown.Section, error) {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return nil, fmt.Errorf("unable to read source %s: %w", f.RelPath, err)
	}
	return markdown.Compile(data, f.RelPath, f.Number, opts, log.Named("compile"))
}

// withFallbackTitle fills heading text of synthesized sections from the
// source file name.
func withFallbackTitle(sections []markdown.Section, f SourceFile) []markdown.Section {
	for i := range sections {
		if sections[i].HeadingLevel == 1 && sections[i].Heading == "" {
			sections[i].Heading = f.Title
		}
	}
	return sections
}

// Images returns every image reference in final document order.
func (c *Content) Images() []markdown.Image {
	var out []markdown.Image
	for _, s := range c.Sections {
		markdown.WalkBlocks(s.Blocks, func(b markdown.Block) bool {
			if img, ok := b.(markdown.Image); ok {
				out = append(out, img)
			}
			return true
		})
	}
	return out
}

// Tables returns every external table reference in final document order.
func (c *Content) Tables() []markdown.CsvTable {
	var out []markdown.CsvTable
	for _, s := range c.Sections {
		markdown.WalkBlocks(s.Blocks, func(b markdown.Block) bool {
			if tbl, ok := b.(markdown.CsvTable); ok {
				out = append(out, tbl)
			}
			return true
		})
	}
	return out
}
