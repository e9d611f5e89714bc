// Package document loads the per-document descriptor that accompanies the
// Markdown sources.
package document

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/multierr"
	yaml "gopkg.in/yaml.v3"
)

// FileName of the descriptor, always at the source root.
const FileName = "sdoc.yaml"

// Person identifies a responsible party recorded in document properties.
type Person struct {
	Name  string `yaml:"name"`
	Email string `yaml:"email"`
}

// Info describes the document being built: identity, classification and the
// people responsible. It feeds docProps generation and output naming.
type Info struct {
	SystemID    string `yaml:"system_id"`
	DocumentID  string `yaml:"document_id"`
	Title       string `yaml:"title"`
	Subtitle    string `yaml:"subtitle"`
	Description string `yaml:"description"`
	Type        string `yaml:"type"`
	Standard    string `yaml:"standard"`
	Owner       Person `yaml:"owner"`
	Approver    Person `yaml:"approver"`
	Version     string `yaml:"version"`
	Created     string `yaml:"created"`
	Modified    string `yaml:"modified"`
	// Template is the path of the .docx template, relative to the source root.
	Template string `yaml:"template"`
}

// Load reads and validates the descriptor found at the source root.
func Load(root string) (*Info, error) {
	path := filepath.Join(root, FileName)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("unable to read document descriptor: %w", err)
	}

	var info Info
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&info); err != nil {
		return nil, fmt.Errorf("unable to parse document descriptor %s: %w", path, err)
	}

	if err := info.validate(); err != nil {
		return nil, fmt.Errorf("invalid document descriptor %s: %w", path, err)
	}
	return &info, nil
}

func (i *Info) validate() error {
	var err error
	required := []struct {
		field, value string
	}{
		{"document_id", i.DocumentID},
		{"title", i.Title},
		{"type", i.Type},
		{"standard", i.Standard},
		{"owner.name", i.Owner.Name},
		{"owner.email", i.Owner.Email},
		{"approver.name", i.Approver.Name},
		{"approver.email", i.Approver.Email},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			err = multierr.Append(err, fmt.Errorf("missing required field %q", r.field))
		}
	}
	return err
}

// TemplatePath resolves the template reference against the source root,
// empty when the descriptor does not name one.
func (i *Info) TemplatePath(root string) string {
	if i.Template == "" {
		return ""
	}
	if filepath.IsAbs(i.Template) {
		return filepath.Clean(i.Template)
	}
	return filepath.Join(root, filepath.FromSlash(i.Template))
}

// Keywords joins the identity fields for the core properties keyword list.
func (i *Info) Keywords() []string {
	parts := make([]string, 0, 4)
	for _, p := range []string{i.SystemID, i.DocumentID, i.Type, i.Standard} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return parts
}

// CreatedTime interprets the created field, now when absent or unparsable.
func (i *Info) CreatedTime() time.Time {
	return parseWhen(i.Created)
}

// ModifiedTime interprets the modified field, now when absent or unparsable.
func (i *Info) ModifiedTime() time.Time {
	return parseWhen(i.Modified)
}

func parseWhen(s string) time.Time {
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Now()
}
