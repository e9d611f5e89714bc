package content

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/multierr"
	"go.uber.org/zap/zaptest"

	"sdoc/config"
	"sdoc/markdown"
	"sdoc/state"
)

const testDescriptor = `
document_id: "SDD-001"
title: "Design Description"
type: "SDD"
standard: "IEEE 1016"
owner:
  name: "Jordan Blake"
  email: "jordan@example.com"
approver:
  name: "Casey Roe"
  email: "casey@example.com"
`

func testContext(t *testing.T) context.Context {
	t.Helper()
	cfg, err := config.LoadConfiguration("")
	if err != nil {
		t.Fatalf("unable to load default configuration: %v", err)
	}
	ctx := state.ContextWithEnv(context.Background())
	state.EnvFromContext(ctx).Cfg = cfg
	return ctx
}

func writeSource(t *testing.T, root, name, content string) {
	t.Helper()
	path := filepath.Join(root, name)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func newRoot(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	writeSource(t, root, "sdoc.yaml", testDescriptor)
	return root
}

func TestDiscoverSources(t *testing.T) {
	root := newRoot(t)
	writeSource(t, root, "10_appendix.md", "# A\n")
	writeSource(t, root, "2_system-design.md", "# B\n")
	writeSource(t, root, "2.1_details.md", "# C\n")
	writeSource(t, root, "notes.md", "not a source\n")
	writeSource(t, root, "x_bad-number.md", "not a source\n")

	files, err := DiscoverSources(root, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("DiscoverSources() error = %v", err)
	}

	got := make([]string, 0, len(files))
	for _, f := range files {
		got = append(got, f.RelPath)
	}
	want := []string{"2.1_details.md", "2_system-design.md", "10_appendix.md"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("discovered %v, want %v", got, want)
	}

	if files[1].Title != "System Design" {
		t.Errorf("fallback title = %q, want %q", files[1].Title, "System Design")
	}
	if files[1].Number.String() != "2" {
		t.Errorf("number = %q, want 2", files[1].Number.String())
	}
}

func TestPrepare(t *testing.T) {
	root := newRoot(t)
	writeSource(t, root, "2_later.md", "# Later\n\ntext\n")
	writeSource(t, root, "1_first.md", "# First\n\n## Sub\n\ntext\n")
	writeSource(t, root, "3_untitled.md", "no heading here\n")

	c, err := Prepare(testContext(t), root, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}

	if c.Info.DocumentID != "SDD-001" {
		t.Errorf("Info.DocumentID = %q", c.Info.DocumentID)
	}

	var numbers []string
	for _, s := range c.Sections {
		numbers = append(numbers, s.Number.String())
	}
	if strings.Join(numbers, ",") != "1,1.1,2,3" {
		t.Errorf("section order = %v", numbers)
	}

	// file without a heading gets its title from the file name
	last := c.Sections[len(c.Sections)-1]
	if last.Heading != "Untitled" {
		t.Errorf("fallback heading = %q, want Untitled", last.Heading)
	}
}

func TestPrepare_NoSources(t *testing.T) {
	root := newRoot(t)
	if _, err := Prepare(testContext(t), root, zaptest.NewLogger(t)); err == nil {
		t.Error("expected error for directory without sources")
	}
}

func TestPrepare_MetadataError(t *testing.T) {
	root := newRoot(t)
	writeSource(t, root, "1_bad.md", "# T\n\n```"+markdown.MetaLanguage+"\ngenerate_section_id_to_traced_ids_table: true\n```\n")

	_, err := Prepare(testContext(t), root, zaptest.NewLogger(t))
	if err == nil {
		t.Fatal("expected metadata error")
	}
	if !strings.Contains(err.Error(), "1_bad.md") {
		t.Errorf("error should name the file: %v", err)
	}
}

func TestValidate_Clean(t *testing.T) {
	root := newRoot(t)
	writeSource(t, root, "img/ok.png", "fake")
	writeSource(t, root, "1_first.md", "# T\n\n![ok](img/ok.png)\n")

	c, err := Prepare(testContext(t), root, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}
	if err := Validate(c, zaptest.NewLogger(t)); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestValidate_Findings(t *testing.T) {
	root := newRoot(t)
	writeSource(t, root, "1_first.md", `# T

![gone](img/missing.png)

[gone](data/missing.csv)

`+"```"+markdown.MetaLanguage+"\nsection_id: \"REQ-1\"\ninclude_file: \"src/missing.go\"\n```\n")
	writeSource(t, root, "2_second.md", "# U\n\n```"+markdown.MetaLanguage+"\nsection_id: \"REQ-1\"\n```\n")
	writeSource(t, root, "3_third.md", "# V\n\n```"+markdown.MetaLanguage+"\nsection_id: \"REQ-1\"\n```\n")

	c, err := Prepare(testContext(t), root, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}

	err = Validate(c, zaptest.NewLogger(t))
	if err == nil {
		t.Fatal("expected findings")
	}
	findings := multierr.Errors(err)

	// missing image, missing table, missing include, two duplicate repeats
	if len(findings) != 5 {
		t.Errorf("got %d findings, want 5: %v", len(findings), findings)
	}

	var dupes int
	for _, f := range findings {
		if strings.Contains(f.Error(), "duplicate section id") {
			dupes++
			if !strings.Contains(f.Error(), "first defined at 1_first.md") {
				t.Errorf("duplicate finding should point at first sighting: %v", f)
			}
		}
	}
	if dupes != 2 {
		t.Errorf("got %d duplicate findings, want one per repeat (2)", dupes)
	}
}

func TestGenerateTraceability(t *testing.T) {
	root := newRoot(t)
	writeSource(t, root, "1_reqs.md", "# Reqs\n\n```"+markdown.MetaLanguage+`
section_id: "SDD-1"
traced_ids: ["REQ-2", "REQ-1", "REQ-2"]
`+"```\n")
	writeSource(t, root, "2_more.md", "# More\n\n```"+markdown.MetaLanguage+`
section_id: "SDD-2"
traced_ids: ["REQ-1"]
`+"```\n")
	writeSource(t, root, "3_matrix.md", "# Matrix\n\n```"+markdown.MetaLanguage+`
generate_section_id_to_traced_ids_table: ["Section", "Traces"]
generate_traced_ids_to_section_ids_table: ["Requirement", "Sections"]
`+"```\n")

	c, err := Prepare(testContext(t), root, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}
	GenerateTraceability(c, zaptest.NewLogger(t))

	matrix := c.Sections[len(c.Sections)-1]
	if len(matrix.Blocks) != 2 {
		t.Fatalf("matrix section has %d blocks, want 2 tables", len(matrix.Blocks))
	}

	fwd, ok := matrix.Blocks[0].(markdown.InlineTable)
	if !ok {
		t.Fatalf("block 0 is %T, want InlineTable", matrix.Blocks[0])
	}
	if markdown.PlainText(fwd.Headers[0]) != "Section" || markdown.PlainText(fwd.Headers[1]) != "Traces" {
		t.Errorf("forward headers = %v", fwd.Headers)
	}
	if len(fwd.Rows) != 2 {
		t.Fatalf("forward rows = %d, want 2", len(fwd.Rows))
	}
	if markdown.PlainText(fwd.Rows[0][0]) != "SDD-1" || markdown.PlainText(fwd.Rows[0][1]) != "REQ-1, REQ-2" {
		t.Errorf("forward row 0 = %v", fwd.Rows[0])
	}

	rev, ok := matrix.Blocks[1].(markdown.InlineTable)
	if !ok {
		t.Fatalf("block 1 is %T, want InlineTable", matrix.Blocks[1])
	}
	if len(rev.Rows) != 2 {
		t.Fatalf("reverse rows = %d, want 2", len(rev.Rows))
	}
	if markdown.PlainText(rev.Rows[0][0]) != "REQ-1" || markdown.PlainText(rev.Rows[0][1]) != "SDD-1, SDD-2" {
		t.Errorf("reverse row 0 = %v", rev.Rows[0])
	}
	if markdown.PlainText(rev.Rows[1][1]) != "SDD-1" {
		t.Errorf("reverse row 1 = %v", rev.Rows[1])
	}

	// sections that did not ask for tables are untouched
	for _, s := range c.Sections[:len(c.Sections)-1] {
		for _, b := range s.Blocks {
			if _, ok := b.(markdown.InlineTable); ok {
				t.Errorf("unexpected table in section %s", s.Number.String())
			}
		}
	}
}

func TestContent_Inventories(t *testing.T) {
	root := newRoot(t)
	writeSource(t, root, "img/a.png", "fake")
	writeSource(t, root, "data/t.csv", "H\nv\n")
	writeSource(t, root, "1_first.md", "# T\n\n![a](img/a.png)\n\n[t](data/t.csv)\n\n![b](img/b.png)\n")

	c, err := Prepare(testContext(t), root, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}

	if imgs := c.Images(); len(imgs) != 2 {
		t.Errorf("Images() = %d, want 2", len(imgs))
	}
	if tbls := c.Tables(); len(tbls) != 1 || !tbls[0].Exists {
		t.Errorf("Tables() = %v", tbls)
	}

	if s := c.String(); !strings.Contains(s, "SDD-001") || !strings.Contains(s, "img/a.png") {
		t.Errorf("String() missing expected details:\n%s", s)
	}
}
