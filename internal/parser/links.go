package parser

import (
	"net/url"
	"strings"

	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// ExtractLinks returns the absolute http(s) URLs linked from src, resolved
// against base, with fragments removed. Inline links, reference links and
// autolinks are included; fragment-only links, images and mailto links are
// not. Order of first appearance is preserved and duplicates are dropped.
func (p *Parser) ExtractLinks(src string, base *url.URL) []string {
	source := []byte(src)
	doc := p.md.Parser().Parse(text.NewReader(source))

	seen := make(map[string]bool)
	links := make([]string, 0)
	add := func(dest string) {
		resolved, ok := resolveLink(base, dest)
		if !ok || seen[resolved] {
			return
		}
		seen[resolved] = true
		links = append(links, resolved)
	}

	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch l := n.(type) {
		case *ast.Link:
			add(string(l.Destination))
		case *ast.AutoLink:
			if l.AutoLinkType == ast.AutoLinkURL {
				add(string(l.URL(source)))
			}
		}
		return ast.WalkContinue, nil
	})

	return links
}

func resolveLink(base *url.URL, dest string) (string, bool) {
	dest = strings.TrimSpace(dest)
	if dest == "" || strings.HasPrefix(dest, "#") {
		return "", false
	}

	ref, err := url.Parse(dest)
	if err != nil {
		return "", false
	}
	if base != nil {
		ref = base.ResolveReference(ref)
	}
	if ref.Scheme != "http" && ref.Scheme != "https" {
		return "", false
	}
	ref.Fragment = ""
	ref.RawFragment = ""
	return ref.String(), true
}
