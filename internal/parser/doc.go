// Package parser finds heading boundaries and links in markdown documents.
//
// Headings are detected from a goldmark CommonMark AST, so both ATX
// (`## Title`) and setext (`Title` underlined with `---`) headings are
// recognized, while lines that only look like headings inside fenced code,
// lists or block quotes are not.
//
// # Splitting
//
// Split cuts a span at the shallowest heading level present below a scope:
//
//	p := parser.New()
//	split := p.Split(body, 2) // only headings of level 3 and deeper count
//	for _, h := range split.Headings {
//	    fmt.Println(h.Level, h.Text)
//	}
//
// The pieces are byte slices of the input: Intro followed by every
// heading's Markup and Body reproduces the span exactly. Deeper headings
// are left inside the bodies for the next pass.
//
// # Links
//
// ExtractLinks collects the absolute http(s) links of an llms.txt style
// index so a crawler can follow them.
package parser
