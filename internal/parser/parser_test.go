package parser

import (
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func join(s Split) string {
	var b strings.Builder
	b.WriteString(s.Intro)
	for _, h := range s.Headings {
		b.WriteString(h.Markup)
		b.WriteString(h.Body)
	}
	return b.String()
}

func TestNew(t *testing.T) {
	p := New()
	assert.NotNil(t, p)
	assert.NotNil(t, p.md)
}

func TestSplit_NoHeadings(t *testing.T) {
	src := "just some text\n\nwith two paragraphs\n"
	split := New().Split(src, 0)
	assert.Equal(t, src, split.Intro)
	assert.Empty(t, split.Headings)
}

func TestSplit_ShallowestLevelOnly(t *testing.T) {
	src := "intro\n\n## A\na body\n### A1\nx\n## B\nb\n"
	split := New().Split(src, 0)

	require.Len(t, split.Headings, 2)
	assert.Equal(t, "intro\n\n", split.Intro)

	assert.Equal(t, "A", split.Headings[0].Text)
	assert.Equal(t, 2, split.Headings[0].Level)
	assert.Equal(t, "## A\n", split.Headings[0].Markup)
	assert.Equal(t, "a body\n### A1\nx\n", split.Headings[0].Body)

	assert.Equal(t, "B", split.Headings[1].Text)
	assert.Equal(t, "b\n", split.Headings[1].Body)
	assert.Equal(t, src, join(split))
}

func TestSplit_ScopeExcludesShallowerLevels(t *testing.T) {
	body := "a body\n### A1\nx\n"
	split := New().Split(body, 2)

	require.Len(t, split.Headings, 1)
	assert.Equal(t, "a body\n", split.Intro)
	assert.Equal(t, "A1", split.Headings[0].Text)
	assert.Equal(t, 3, split.Headings[0].Level)

	none := New().Split(body, 3)
	assert.Empty(t, none.Headings)
	assert.Equal(t, body, none.Intro)
}

func TestSplit_Setext(t *testing.T) {
	src := "Title\n=====\n\ntext\n\nSub\n---\nmore\n"
	p := New()

	split := p.Split(src, 0)
	require.Len(t, split.Headings, 1)
	assert.Equal(t, "", split.Intro)
	assert.Equal(t, "Title", split.Headings[0].Text)
	assert.Equal(t, 1, split.Headings[0].Level)
	assert.Equal(t, "Title\n=====\n", split.Headings[0].Markup)
	assert.Equal(t, src, join(split))

	inner := p.Split(split.Headings[0].Body, 1)
	require.Len(t, inner.Headings, 1)
	assert.Equal(t, "\ntext\n\n", inner.Intro)
	assert.Equal(t, "Sub", inner.Headings[0].Text)
	assert.Equal(t, 2, inner.Headings[0].Level)
	assert.Equal(t, "Sub\n---\n", inner.Headings[0].Markup)
	assert.Equal(t, "more\n", inner.Headings[0].Body)
}

func TestSplit_IgnoresNonDocumentHeadings(t *testing.T) {
	src := "```\n# not a heading\n```\n\n> # quoted\n\n# Real\nx\n"
	split := New().Split(src, 0)

	require.Len(t, split.Headings, 1)
	assert.Equal(t, "Real", split.Headings[0].Text)
	assert.Equal(t, "```\n# not a heading\n```\n\n> # quoted\n\n", split.Intro)
}

func TestSplit_InlineMarkupInHeading(t *testing.T) {
	split := New().Split("## Using `client.Get` and *more*\nbody\n", 0)
	require.Len(t, split.Headings, 1)
	assert.Equal(t, "Using client.Get and more", split.Headings[0].Text)
	assert.Equal(t, "## Using `client.Get` and *more*\n", split.Headings[0].Markup)
}

func TestSplit_NoTrailingNewline(t *testing.T) {
	p := New()

	split := p.Split("# A\ntext", 0)
	require.Len(t, split.Headings, 1)
	assert.Equal(t, "# A\n", split.Headings[0].Markup)
	assert.Equal(t, "text", split.Headings[0].Body)

	only := p.Split("# Only", 0)
	require.Len(t, only.Headings, 1)
	assert.Equal(t, "# Only", only.Headings[0].Markup)
	assert.Equal(t, "", only.Headings[0].Body)
}

func TestSplit_RoundTrip(t *testing.T) {
	inputs := []string{
		"",
		"plain\n",
		"# A\n\n\n## B\ntext\n\n# C\n",
		"pre\n\nH\n===\n\n  ## Indented ATX ##\nbody\n\n### Deep\n",
		"# A\r\nwindows\r\n# B\r\n",
	}
	p := New()
	for _, src := range inputs {
		for scope := 0; scope <= 3; scope++ {
			assert.Equal(t, src, join(p.Split(src, scope)), "scope %d input %q", scope, src)
		}
	}
}

func TestExtractLinks(t *testing.T) {
	src := strings.Join([]string{
		"# Docs",
		"",
		"- [Guide](/guide.md)",
		"- [API](https://example.com/api.md#section)",
		"- [Ext](https://other.org/x)",
		"- [Anchor](#top)",
		"- [Mail](mailto:a@b.c)",
		"- [Ref][r]",
		"",
		"<https://example.com/auto.md>",
		"",
		"![img](/logo.png)",
		"",
		"[Guide again](guide.md)",
		"",
		"[r]: /ref.md",
		"",
	}, "\n")

	base, err := url.Parse("https://example.com/llms.txt")
	require.NoError(t, err)

	links := New().ExtractLinks(src, base)
	assert.Equal(t, []string{
		"https://example.com/guide.md",
		"https://example.com/api.md",
		"https://other.org/x",
		"https://example.com/ref.md",
		"https://example.com/auto.md",
	}, links)
}

func TestExtractLinks_Empty(t *testing.T) {
	links := New().ExtractLinks("no links here\n", nil)
	assert.Empty(t, links)
}
