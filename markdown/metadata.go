package markdown

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	yaml "gopkg.in/yaml.v3"
)

// MetaLanguage is the fenced code block language tag carrying section
// metadata.
const MetaLanguage = "sdoc"

// TableGeneration is either disabled (YAML false, the default) or enabled
// with exactly two custom column headers (YAML two-element sequence). A bare
// "true" is rejected with a corrective message because generated tables have
// no sensible default headers.
type TableGeneration struct {
	Enabled bool
	Headers [2]string
}

func (t *TableGeneration) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		var b bool
		if err := value.Decode(&b); err != nil {
			return fmt.Errorf("line %d: table generation must be false or a list of two headers", value.Line)
		}
		if b {
			return fmt.Errorf(`line %d: table generation requires custom headers: use ["Header1", "Header2"] instead of true`, value.Line)
		}
		*t = TableGeneration{}
		return nil
	case yaml.SequenceNode:
		var headers []string
		if err := value.Decode(&headers); err != nil {
			return fmt.Errorf("line %d: table generation headers must be strings: %w", value.Line, err)
		}
		if len(headers) != 2 {
			return fmt.Errorf("line %d: table generation requires exactly two headers, got %d", value.Line, len(headers))
		}
		t.Enabled = true
		t.Headers[0], t.Headers[1] = headers[0], headers[1]
		return nil
	default:
		return fmt.Errorf("line %d: table generation must be false or a list of two headers", value.Line)
	}
}

func (t TableGeneration) MarshalYAML() (any, error) {
	if !t.Enabled {
		return false, nil
	}
	return []string{t.Headers[0], t.Headers[1]}, nil
}

// SectionMeta is parsed from a fenced code block tagged with MetaLanguage.
type SectionMeta struct {
	// Unique identifier of the section ("REQ-001", "SDD-3.2.1")
	SectionID string `yaml:"section_id"`
	// Identifiers this section traces to
	TracedIDs []string `yaml:"traced_ids"`
	// Source file to append to the section as a code block, relative to
	// the document root
	IncludeFile string `yaml:"include_file"`
	// Request for the forward table: section id -> comma joined traced ids
	ForwardTable TableGeneration `yaml:"generate_section_id_to_traced_ids_table"`
	// Request for the reverse table: traced id -> comma joined section ids
	ReverseTable TableGeneration `yaml:"generate_traced_ids_to_section_ids_table"`
}

// ParseSectionMeta decodes metadata strictly - unknown keys are errors so
// typos do not silently disable traceability.
func ParseSectionMeta(data []byte) (*SectionMeta, error) {
	meta := &SectionMeta{}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(meta); err != nil {
		if errors.Is(err, io.EOF) {
			// empty metadata fence
			return meta, nil
		}
		return nil, fmt.Errorf("failed to decode section metadata: %w", err)
	}
	return meta, nil
}

// HasTraceability reports whether the section participates in traceability.
func (m *SectionMeta) HasTraceability() bool {
	if m == nil {
		return false
	}
	return m.SectionID != "" || len(m.TracedIDs) > 0
}
