package document

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const goodDescriptor = `
system_id: "SYS-42"
document_id: "SDD-001"
title: "Software Design Description"
subtitle: "Flight Software"
type: "SDD"
standard: "IEEE 1016"
owner:
  name: "Jordan Blake"
  email: "jordan@example.com"
approver:
  name: "Casey Roe"
  email: "casey@example.com"
version: "1.4"
created: "2026-01-15"
template: "assets/template.docx"
`

func writeDescriptor(t *testing.T, content string) string {
	t.Helper()
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, FileName), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return root
}

func TestLoad(t *testing.T) {
	root := writeDescriptor(t, goodDescriptor)

	info, err := Load(root)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if info.DocumentID != "SDD-001" {
		t.Errorf("DocumentID = %q", info.DocumentID)
	}
	if info.Title != "Software Design Description" {
		t.Errorf("Title = %q", info.Title)
	}
	if info.Owner.Email != "jordan@example.com" {
		t.Errorf("Owner.Email = %q", info.Owner.Email)
	}
	if info.Approver.Name != "Casey Roe" {
		t.Errorf("Approver.Name = %q", info.Approver.Name)
	}

	want := filepath.Join(root, "assets", "template.docx")
	if got := info.TemplatePath(root); got != want {
		t.Errorf("TemplatePath() = %q, want %q", got, want)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(t.TempDir()); err == nil {
		t.Error("expected error for missing descriptor")
	}
}

func TestLoad_MissingRequired(t *testing.T) {
	root := writeDescriptor(t, `
document_id: "SDD-001"
type: "SDD"
owner:
  name: "Jordan Blake"
`)

	_, err := Load(root)
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, field := range []string{"title", "standard", "owner.email", "approver.name", "approver.email"} {
		if !strings.Contains(err.Error(), field) {
			t.Errorf("error should name %q, got: %v", field, err)
		}
	}
	if strings.Contains(err.Error(), `"document_id"`) {
		t.Errorf("document_id is present, error should not name it: %v", err)
	}
}

func TestLoad_UnknownField(t *testing.T) {
	root := writeDescriptor(t, goodDescriptor+"\nextra_field: boom\n")
	if _, err := Load(root); err == nil {
		t.Error("expected error for unknown field")
	}
}

func TestInfo_Keywords(t *testing.T) {
	info := &Info{SystemID: "SYS-42", DocumentID: "SDD-001", Type: "SDD", Standard: "IEEE 1016"}
	got := strings.Join(info.Keywords(), ",")
	if got != "SYS-42,SDD-001,SDD,IEEE 1016" {
		t.Errorf("Keywords() = %q", got)
	}

	partial := &Info{DocumentID: "SDD-001", Type: "SDD"}
	if len(partial.Keywords()) != 2 {
		t.Errorf("Keywords() = %v, want 2 entries", partial.Keywords())
	}
}

func TestInfo_Times(t *testing.T) {
	info := &Info{Created: "2026-01-15", Modified: "2026-02-01T10:30:00Z"}

	if got := info.CreatedTime(); got.Year() != 2026 || got.Month() != time.January || got.Day() != 15 {
		t.Errorf("CreatedTime() = %v", got)
	}
	if got := info.ModifiedTime(); !got.Equal(time.Date(2026, 2, 1, 10, 30, 0, 0, time.UTC)) {
		t.Errorf("ModifiedTime() = %v", got)
	}

	// absent dates fall back to the current time
	empty := &Info{}
	if time.Since(empty.CreatedTime()) > time.Minute {
		t.Error("empty created should be near now")
	}
}

func TestInfo_TemplatePath(t *testing.T) {
	if got := (&Info{}).TemplatePath("/root"); got != "" {
		t.Errorf("empty template path = %q, want empty", got)
	}
	abs := &Info{Template: "/opt/templates/base.docx"}
	if got := abs.TemplatePath("/root"); got != filepath.Clean("/opt/templates/base.docx") {
		t.Errorf("absolute template path = %q", got)
	}
}
