package convert

import (
	"archive/zip"
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	cli "github.com/urfave/cli/v3"
	"go.uber.org/zap/zaptest"

	"sdoc/config"
	"sdoc/state"
)

const testDescriptor = `document_id: SDD-001
system_id: SYS-9
title: System Design
type: SDD
standard: IEC 62304
owner:
  name: Alex Author
  email: alex@example.com
approver:
  name: Pat Approver
  email: pat@example.com
version: "1.0"
template: template.docx
`

func testEnvContext(t *testing.T) context.Context {
	t.Helper()
	cfg, err := config.LoadConfiguration("")
	if err != nil {
		t.Fatalf("unable to load default configuration: %v", err)
	}
	ctx := state.ContextWithEnv(context.Background())
	env := state.EnvFromContext(ctx)
	env.Cfg = cfg
	env.Log = zaptest.NewLogger(t)
	return ctx
}

func writeTemplateDocx(t *testing.T, path string) {
	t.Helper()

	parts := map[string]string{
		"[Content_Types].xml": `<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types">` +
			`<Default Extension="rels" ContentType="application/vnd.openxmlformats-package.relationships+xml"/>` +
			`<Default Extension="xml" ContentType="application/xml"/>` +
			`<Override PartName="/word/document.xml" ContentType="application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"/>` +
			`</Types>`,
		"_rels/.rels": `<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">` +
			`<Relationship Id="rId1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/officeDocument" Target="word/document.xml"/>` +
			`</Relationships>`,
		"word/document.xml": `<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">` +
			`<w:body><w:p><w:r><w:t>intro</w:t></w:r></w:p></w:body></w:document>`,
		"word/_rels/document.xml.rels": `<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships"></Relationships>`,
		"word/styles.xml": `<w:styles xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"></w:styles>`,
	}

	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	zw := zip.NewWriter(f)
	for name, data := range parts {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := w.Write([]byte(data)); err != nil {
			t.Fatal(err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
}

func writeProject(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	files := map[string]string{
		"sdoc.yaml":          testDescriptor,
		"1_overview.md":      "# Overview\n\nIntroductory text.\n",
		"2_system-design.md": "# Design\n\nDesign text.\n\n## Details\n\nMore text.\n",
	}
	for name, data := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(data), 0644); err != nil {
			t.Fatal(err)
		}
	}
	writeTemplateDocx(t, filepath.Join(dir, "template.docx"))
	return dir
}

func readOutputPart(t *testing.T, path, name string) string {
	t.Helper()
	r, err := zip.OpenReader(path)
	if err != nil {
		t.Fatalf("unable to open %s: %v", path, err)
	}
	defer r.Close()
	for _, f := range r.File {
		if f.FileHeader.Name != name {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			t.Fatal(err)
		}
		defer rc.Close()
		data, err := io.ReadAll(rc)
		if err != nil {
			t.Fatal(err)
		}
		return string(data)
	}
	t.Fatalf("part %s not found in %s", name, path)
	return ""
}

func TestBuildDocument(t *testing.T) {
	ctx := testEnvContext(t)
	src := writeProject(t)
	dst := t.TempDir()

	if err := buildDocument(ctx, src, dst, zaptest.NewLogger(t)); err != nil {
		t.Fatalf("buildDocument() error = %v", err)
	}

	// default name template is "{{.DocumentID}}_{{slugify .Title}}"
	out := filepath.Join(dst, "SDD-001_system-design.docx")
	if _, err := os.Stat(out); err != nil {
		t.Fatalf("expected output at %s: %v", out, err)
	}

	doc := readOutputPart(t, out, "word/document.xml")
	for _, want := range []string{"intro", "1 Overview", "2 Design", "2.1 Details", "Design text."} {
		if !strings.Contains(doc, want) {
			t.Errorf("output body missing %q", want)
		}
	}
}

func TestBuildDocument_ExistingOutput(t *testing.T) {
	ctx := testEnvContext(t)
	env := state.EnvFromContext(ctx)
	src := writeProject(t)
	dst := t.TempDir()

	out := filepath.Join(dst, "SDD-001_system-design.docx")
	if err := os.WriteFile(out, []byte("old"), 0644); err != nil {
		t.Fatal(err)
	}

	err := buildDocument(ctx, src, dst, zaptest.NewLogger(t))
	if err == nil || !strings.Contains(err.Error(), "already exists") {
		t.Fatalf("expected overwrite refusal, got %v", err)
	}

	env.Overwrite = true
	if err := buildDocument(ctx, src, dst, zaptest.NewLogger(t)); err != nil {
		t.Fatalf("buildDocument() with overwrite error = %v", err)
	}
	if fi, err := os.Stat(out); err != nil || fi.Size() <= 3 {
		t.Error("existing file was not replaced with generated output")
	}
}

func TestBuildDocument_NoTemplate(t *testing.T) {
	ctx := testEnvContext(t)
	src := writeProject(t)

	desc := strings.ReplaceAll(testDescriptor, "template: template.docx\n", "")
	if err := os.WriteFile(filepath.Join(src, "sdoc.yaml"), []byte(desc), 0644); err != nil {
		t.Fatal(err)
	}

	err := buildDocument(ctx, src, t.TempDir(), zaptest.NewLogger(t))
	if err == nil || !strings.Contains(err.Error(), "no template") {
		t.Errorf("expected template error, got %v", err)
	}
}

func TestBuildDocument_TemplateOverride(t *testing.T) {
	ctx := testEnvContext(t)
	env := state.EnvFromContext(ctx)
	src := writeProject(t)

	override := filepath.Join(t.TempDir(), "corporate.docx")
	writeTemplateDocx(t, override)
	if err := os.Remove(filepath.Join(src, "template.docx")); err != nil {
		t.Fatal(err)
	}
	env.TemplateOverride = override

	if err := buildDocument(ctx, src, t.TempDir(), zaptest.NewLogger(t)); err != nil {
		t.Fatalf("buildDocument() with override error = %v", err)
	}
}

func TestBuildDocument_ValidationFailure(t *testing.T) {
	ctx := testEnvContext(t)
	src := writeProject(t)

	bad := "# Broken\n\n![diagram](missing/diagram.png)\n"
	if err := os.WriteFile(filepath.Join(src, "3_broken.md"), []byte(bad), 0644); err != nil {
		t.Fatal(err)
	}

	err := buildDocument(ctx, src, t.TempDir(), zaptest.NewLogger(t))
	if err == nil || !strings.Contains(err.Error(), "missing image") {
		t.Errorf("expected validation failure, got %v", err)
	}
}

func validateCommand(out *bytes.Buffer) *cli.Command {
	return &cli.Command{
		Name:   "validate",
		Writer: out,
		Action: Validate,
	}
}

func TestValidate_Clean(t *testing.T) {
	ctx := testEnvContext(t)
	src := writeProject(t)

	var out bytes.Buffer
	if err := validateCommand(&out).Run(ctx, []string{"validate", src}); err != nil {
		t.Fatalf("validate error = %v", err)
	}
	if out.Len() != 0 {
		t.Errorf("clean source should print nothing, got %q", out.String())
	}
}

func TestValidate_Findings(t *testing.T) {
	ctx := testEnvContext(t)
	src := writeProject(t)

	bad := "# Broken\n\n![a](missing/a.png)\n\n![b](missing/b.png)\n"
	if err := os.WriteFile(filepath.Join(src, "3_broken.md"), []byte(bad), 0644); err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	err := validateCommand(&out).Run(ctx, []string{"validate", src})
	if err == nil || !strings.Contains(err.Error(), "2 finding(s)") {
		t.Fatalf("expected 2 findings, got %v", err)
	}
	lines := strings.Split(strings.TrimRight(out.String(), "\n"), "\n")
	if len(lines) != 2 {
		t.Errorf("expected one line per finding, got %q", out.String())
	}
	for _, l := range lines {
		if !strings.Contains(l, "missing image") {
			t.Errorf("unexpected finding line %q", l)
		}
	}
}

func TestValidate_NotADirectory(t *testing.T) {
	ctx := testEnvContext(t)
	file := filepath.Join(t.TempDir(), "plain.md")
	if err := os.WriteFile(file, []byte("# x\n"), 0644); err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	err := validateCommand(&out).Run(ctx, []string{"validate", file})
	if err == nil || !strings.Contains(err.Error(), "not a directory") {
		t.Errorf("expected directory error, got %v", err)
	}
}
