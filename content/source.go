package content

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/maruel/natural"
	"go.uber.org/zap"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"sdoc/markdown"
)

// source file names carry the section number before the first underscore:
// "3_design.md", "3.1_details.md", "3.0_overview.md" (parent marker)
var sourceNameRe = regexp.MustCompile(`^(\d+(?:\.\d+)*)_(.+)\.md$`)

// SourceFile is one discovered Markdown source.
type SourceFile struct {
	// Path is absolute, RelPath is relative to the source root with forward
	// slashes
	Path    string
	RelPath string
	Number  markdown.SectionNumber
	Slug    string
	// Title derived from the slug, used when the file carries no heading text
	Title string
}

var titleCaser = cases.Title(language.English)

// titleFromSlug turns "system-design_notes" into "System Design Notes".
func titleFromSlug(slug string) string {
	s := strings.NewReplacer("-", " ", "_", " ").Replace(slug)
	return titleCaser.String(s)
}

// DiscoverSources walks the root collecting files that follow the naming
// convention, in natural order of their relative paths. Symbolic links are
// not followed. Files with non-conforming names are skipped with a debug
// message so a typo in a source name is discoverable.
func DiscoverSources(root string, log *zap.Logger) ([]SourceFile, error) {
	var files []SourceFile

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		name := d.Name()
		if !strings.HasSuffix(name, ".md") {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}

		m := sourceNameRe.FindStringSubmatch(name)
		if m == nil {
			log.Debug("Skipping file with non-conforming name", zap.String("file", rel))
			return nil
		}

		number, err := markdown.ParseSectionNumber(m[1])
		if err != nil {
			log.Debug("Skipping file with invalid section number", zap.String("file", rel), zap.Error(err))
			return nil
		}

		files = append(files, SourceFile{
			Path:    path,
			RelPath: filepath.ToSlash(rel),
			Number:  number,
			Slug:    m[2],
			Title:   titleFromSlug(m[2]),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("unable to scan source directory %s: %w", root, err)
	}

	sort.SliceStable(files, func(i, j int) bool {
		return natural.Less(files[i].RelPath, files[j].RelPath)
	})
	return files, nil
}
