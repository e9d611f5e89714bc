package markdown

import (
	"fmt"
	"strconv"
	"strings"
)

// MaxSectionDepth limits how many components a section number can carry.
// Word heading styles go to nine levels but six is as deep as the numbering
// scheme is allowed to get.
const MaxSectionDepth = 6

// SectionNumber is a fixed capacity hierarchical ordinal ("3", "3.1",
// "3.1.2"). The zero value is invalid, live length is always at least one.
type SectionNumber struct {
	parts [MaxSectionDepth]int
	depth int
}

// NewSectionNumber builds a number from the given components.
// It panics when called with no components or too many - callers construct
// numbers from already validated input.
func NewSectionNumber(parts ...int) SectionNumber {
	if len(parts) == 0 || len(parts) > MaxSectionDepth {
		panic(fmt.Sprintf("section number must have 1 to %d components, got %d", MaxSectionDepth, len(parts)))
	}
	var n SectionNumber
	n.depth = copy(n.parts[:], parts)
	return n
}

// ParseSectionNumber parses dotted decimal form, rejecting empty input,
// non-numeric components and numbers deeper than MaxSectionDepth.
func ParseSectionNumber(s string) (SectionNumber, error) {
	var n SectionNumber
	if s == "" {
		return n, fmt.Errorf("empty section number")
	}
	fields := strings.Split(s, ".")
	if len(fields) > MaxSectionDepth {
		return n, fmt.Errorf("section number %q has %d components, maximum is %d", s, len(fields), MaxSectionDepth)
	}
	for i, f := range fields {
		v, err := strconv.Atoi(f)
		if err != nil || v < 0 {
			return n, fmt.Errorf("section number %q has invalid component %q", s, f)
		}
		n.parts[i] = v
	}
	n.depth = len(fields)
	return n, nil
}

// IsZero reports whether the number was never assigned.
func (n SectionNumber) IsZero() bool {
	return n.depth == 0
}

// Depth returns the number of live components.
func (n SectionNumber) Depth() int {
	return n.depth
}

// Components returns a copy of the live components.
func (n SectionNumber) Components() []int {
	out := make([]int, n.depth)
	copy(out, n.parts[:n.depth])
	return out
}

func (n SectionNumber) String() string {
	if n.depth == 0 {
		return ""
	}
	var sb strings.Builder
	for i := range n.depth {
		if i > 0 {
			sb.WriteByte('.')
		}
		sb.WriteString(strconv.Itoa(n.parts[i]))
	}
	return sb.String()
}

// StripParentMarker removes a single trailing zero component. A trailing
// zero marks the file as the parent of a sub-tree ("3.0_design.md" owns
// section 3), it never appears in the rendered number.
func (n SectionNumber) StripParentMarker() SectionNumber {
	if n.depth > 1 && n.parts[n.depth-1] == 0 {
		n.parts[n.depth-1] = 0
		n.depth--
	}
	return n
}

// Append returns the number extended with one more component. The second
// return value is false when the number is already at capacity.
func (n SectionNumber) Append(c int) (SectionNumber, bool) {
	if n.depth >= MaxSectionDepth {
		return n, false
	}
	n.parts[n.depth] = c
	n.depth++
	return n, true
}

// Compare orders numbers lexicographically over live components, a strict
// prefix sorts before its extensions.
func (n SectionNumber) Compare(other SectionNumber) int {
	for i := 0; i < n.depth && i < other.depth; i++ {
		if n.parts[i] != other.parts[i] {
			if n.parts[i] < other.parts[i] {
				return -1
			}
			return 1
		}
	}
	switch {
	case n.depth < other.depth:
		return -1
	case n.depth > other.depth:
		return 1
	}
	return 0
}

// Less is a convenience wrapper over Compare for sorting.
func (n SectionNumber) Less(other SectionNumber) bool {
	return n.Compare(other) < 0
}
