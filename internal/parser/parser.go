package parser

import (
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// atxLine matches the opening of an ATX heading line.
var atxLine = regexp.MustCompile(`^ {0,3}#{1,6}(?:[ \t\r\n]|$)`)

// Heading is one split point found by Split.
type Heading struct {
	Text   string // Plain heading text with inline markup removed
	Level  int
	Markup string // Heading line(s) exactly as they appear in the source
	Body   string // Text after Markup up to the next split point
}

// Split is the result of splitting a span at its shallowest headings.
type Split struct {
	Intro    string // Text before the first split point
	Headings []Heading
}

// Parser splits markdown spans at heading boundaries using a CommonMark AST
type Parser struct {
	md goldmark.Markdown
}

// New creates a new Parser instance
func New() *Parser {
	return &Parser{
		md: goldmark.New(),
	}
}

// headingSpan locates a heading inside the parsed source.
type headingSpan struct {
	text      string
	level     int
	start     int // Offset of the first byte of the heading line
	markupEnd int // Offset just past the heading's last line
}

// Split returns the intro and the headings of src at the shallowest level
// deeper than scope. Deeper headings stay inside the bodies. Only headings
// that are direct children of the document count, so headings inside block
// quotes, lists and code blocks are never split points. Concatenating
// Intro and each heading's Markup and Body reproduces src exactly.
func (p *Parser) Split(src string, scope int) Split {
	source := []byte(src)
	doc := p.md.Parser().Parse(text.NewReader(source))

	var spans []headingSpan
	top := 0
	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		h, ok := n.(*ast.Heading)
		if !ok || h.Level <= scope {
			continue
		}
		span, ok := locateHeading(source, h)
		if !ok {
			continue
		}
		spans = append(spans, span)
		if top == 0 || span.level < top {
			top = span.level
		}
	}

	result := Split{Intro: src}
	var tops []headingSpan
	for _, span := range spans {
		if span.level == top {
			tops = append(tops, span)
		}
	}
	if len(tops) == 0 {
		return result
	}

	result.Intro = src[:tops[0].start]
	result.Headings = make([]Heading, 0, len(tops))
	for i, span := range tops {
		end := len(src)
		if i+1 < len(tops) {
			end = tops[i+1].start
		}
		result.Headings = append(result.Headings, Heading{
			Text:   span.text,
			Level:  span.level,
			Markup: src[span.start:span.markupEnd],
			Body:   src[span.markupEnd:end],
		})
	}
	return result
}

// locateHeading maps a heading node back to byte offsets in source.
func locateHeading(source []byte, h *ast.Heading) (headingSpan, bool) {
	lines := h.Lines()
	if lines == nil || lines.Len() == 0 {
		return headingSpan{}, false
	}

	first := lines.At(0)
	last := lines.At(lines.Len() - 1)
	start := lineStart(source, first.Start)
	end := lineEnd(source, last.Start)

	// A setext heading is followed by its underline
	if !atxLine.Match(source[start:end]) {
		end = lineEnd(source, end)
	}

	return headingSpan{
		text:      headingText(h, source),
		level:     h.Level,
		start:     start,
		markupEnd: end,
	}, true
}

// lineStart returns the offset of the first byte of the line containing i.
func lineStart(source []byte, i int) int {
	for i > 0 && source[i-1] != '\n' {
		i--
	}
	return i
}

// lineEnd returns the offset just past the newline ending the line
// containing i, or len(source) on the last line.
func lineEnd(source []byte, i int) int {
	for i < len(source) {
		if source[i] == '\n' {
			return i + 1
		}
		i++
	}
	return len(source)
}

// headingText extracts plain text from a heading's inline children.
func headingText(h *ast.Heading, source []byte) string {
	var b strings.Builder
	_ = ast.Walk(h, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch t := n.(type) {
		case *ast.Text:
			b.Write(t.Segment.Value(source))
			if t.SoftLineBreak() || t.HardLineBreak() {
				b.WriteByte(' ')
			}
		case *ast.String:
			b.Write(t.Value)
		}
		return ast.WalkContinue, nil
	})
	return strings.TrimSpace(b.String())
}
