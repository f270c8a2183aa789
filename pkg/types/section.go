package types

import (
	"fmt"
	"strings"
)

// NoParent marks a SectionSpec that sits at the root of its document.
const NoParent = -1

// SectionSpec is a section produced by the chunker before it is persisted.
// A document's specs form an arena: Parent is the index of the parent spec
// in the same slice, never a pointer.
type SectionSpec struct {
	Parent   int     // Index of the parent spec, or NoParent
	Heading  *string // Nil for the document root
	Level    int     // 0 for the root, 1..6 for headings
	Markup   string  // Heading markup exactly as it appeared in the source
	Content  string  // Text owned by this section, excluding descendants
	Position int     // Pre-order sequence number within the document
	Tokens   int     // Weight of Content
}

// HeadingText returns the heading or "" for a heading-less section.
func (s SectionSpec) HeadingText() string {
	if s.Heading == nil {
		return ""
	}
	return *s.Heading
}

// HeadingMarkup returns the stored markup, falling back to RenderHeading.
func (s SectionSpec) HeadingMarkup() string {
	return HeadingMarkup(s.Heading, s.Level, s.Markup)
}

// RenderHeading renders a heading as a single ATX line. It is the fixed
// rendering rule used whenever no markup was stored.
func RenderHeading(level int, heading string) string {
	if level < 1 {
		level = 1
	}
	if level > 6 {
		level = 6
	}
	return strings.Repeat("#", level) + " " + heading + "\n"
}

// HeadingMarkup resolves the markup to emit in front of a section's content.
func HeadingMarkup(heading *string, level int, markup string) string {
	if heading == nil {
		return ""
	}
	if markup != "" {
		return markup
	}
	return RenderHeading(level, *heading)
}

// Reconstruct concatenates specs in position order. Specs produced by the
// chunker are already in position order.
func Reconstruct(specs []SectionSpec) string {
	var b strings.Builder
	for _, s := range specs {
		b.WriteString(s.HeadingMarkup())
		b.WriteString(s.Content)
	}
	return b.String()
}

// ValidateTree checks the arena invariants: positions strictly increase with
// slice order and every parent precedes its children.
func ValidateTree(specs []SectionSpec) error {
	for i, s := range specs {
		if i > 0 && s.Position <= specs[i-1].Position {
			return fmt.Errorf("section %d: position %d does not follow %d", i, s.Position, specs[i-1].Position)
		}
		if s.Parent == NoParent {
			continue
		}
		if s.Parent < 0 || s.Parent >= i {
			return fmt.Errorf("section %d: parent %d must precede it", i, s.Parent)
		}
		if s.Level <= specs[s.Parent].Level {
			return fmt.Errorf("section %d: level %d not deeper than parent level %d", i, s.Level, specs[s.Parent].Level)
		}
	}
	return nil
}

// Children returns the indexes of the direct children of specs[parent], in
// position order. Pass NoParent for the roots.
func Children(specs []SectionSpec, parent int) []int {
	var out []int
	for i, s := range specs {
		if s.Parent == parent {
			out = append(out, i)
		}
	}
	return out
}

// Breadcrumb returns the non-empty headings from the root down to specs[i].
func Breadcrumb(specs []SectionSpec, i int) []string {
	var rev []string
	for i != NoParent {
		if h := specs[i].Heading; h != nil {
			rev = append(rev, *h)
		}
		i = specs[i].Parent
	}
	out := make([]string, 0, len(rev))
	for j := len(rev) - 1; j >= 0; j-- {
		out = append(out, rev[j])
	}
	return out
}
