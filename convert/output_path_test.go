package convert

import (
	"path/filepath"
	"testing"

	"sdoc/content"
	"sdoc/state"
)

func TestBuildOutputPath(t *testing.T) {
	ctx := testEnvContext(t)
	env := state.EnvFromContext(ctx)
	c := &content.Content{Info: templateInfo()}

	tests := []struct {
		name     string
		template string
		expected string
	}{
		{"default scheme", "", filepath.Join("out", "SDD-001.docx")},
		{"flat template", "{{.DocumentID}}", filepath.Join("out", "SDD-001.docx")},
		{"slugified", "{{.DocumentID}}_{{slugify .Title}}", filepath.Join("out", "SDD-001_system-design-description.docx")},
		{"subdirectories", "{{.SystemID}}/{{.Type}}/{{.DocumentID}}", filepath.Join("out", "SYS-9", "SDD", "SDD-001.docx")},
		{"broken template falls back", "{{.NoSuchField}}", filepath.Join("out", "SDD-001.docx")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env.Cfg.Document.OutputNameTemplate = tt.template
			if got := buildOutputPath(c, "out", env); got != tt.expected {
				t.Errorf("buildOutputPath() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestSplitAndCleanPath(t *testing.T) {
	tests := []struct {
		name     string
		path     string
		expected []string
	}{
		{"single", "name", []string{"name"}},
		{"nested", filepath.Join("a", "b", "c"), []string{"a", "b", "c"}},
		{"trailing separator", "a" + string(filepath.Separator), []string{"a"}},
		{"empty", "", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := splitAndCleanPath(tt.path)
			if len(got) != len(tt.expected) {
				t.Fatalf("splitAndCleanPath() = %v, want %v", got, tt.expected)
			}
			for i := range got {
				if got[i] != tt.expected[i] {
					t.Errorf("segment %d = %q, want %q", i, got[i], tt.expected[i])
				}
			}
		})
	}
}
