package storage

import (
	"context"
	"fmt"
	"strings"
	"unicode"
)

const (
	// snippetTokens bounds the excerpt returned for each match
	snippetTokens = 32

	// Column weights for bm25: heading, content
	headingWeight = 2.0
	contentWeight = 1.0
)

// SearchText runs a full-text query over each section's own heading and
// content, scoped to a domain and optionally to path prefixes. Results are
// ordered by BM25, best first. A query with no searchable terms matches
// nothing.
func (s *SQLiteStorage) SearchText(ctx context.Context, q TextQuery) ([]TextResult, error) {
	match := BuildMatchQuery(q.Query)
	if match == "" {
		return []TextResult{}, nil
	}
	if q.Limit <= 0 {
		q.Limit = 10
	}

	query := fmt.Sprintf(`
		SELECT s.id, s.document_id, s.heading, s.level, d.url, d.path,
		       snippet(sections_fts, 1, '**', '**', '...', %d),
		       bm25(sections_fts, %.1f, %.1f) AS score
		FROM sections_fts
		JOIN sections s ON s.id = sections_fts.rowid
		JOIN documents d ON d.id = s.document_id
		WHERE sections_fts MATCH ? AND d.domain = ?`, snippetTokens, headingWeight, contentWeight)
	args := []interface{}{match, q.Domain}

	query, args = applyPathFilters(query, args, q.Paths)
	query += " ORDER BY score, s.position LIMIT ?"
	args = append(args, q.Limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search sections: %w", err)
	}
	defer func() { _ = rows.Close() }()

	results := make([]TextResult, 0)
	for rows.Next() {
		var r TextResult
		var heading *string
		var bm25 float64
		if err := rows.Scan(&r.SectionID, &r.DocumentID, &heading, &r.Level, &r.URL, &r.Path, &r.Snippet, &bm25); err != nil {
			return nil, err
		}
		r.Heading = heading
		r.Score = -bm25
		results = append(results, r)
	}
	return results, rows.Err()
}

// applyPathFilters restricts a query to documents under any of the given
// path prefixes
func applyPathFilters(query string, args []interface{}, paths []string) (string, []interface{}) {
	clauses := make([]string, 0, len(paths))
	for _, p := range paths {
		if p == "" {
			continue
		}
		clauses = append(clauses, "d.path GLOB ?")
		args = append(args, escapeGlob(p)+"*")
	}
	if len(clauses) > 0 {
		query += " AND (" + strings.Join(clauses, " OR ") + ")"
	}
	return query, args
}

// escapeGlob makes GLOB metacharacters match literally
func escapeGlob(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[':
			b.WriteByte('[')
			b.WriteRune(r)
			b.WriteByte(']')
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// queryToken is one unit of a web-search style query
type queryToken struct {
	text   string
	phrase bool
	negate bool
}

// tokenizeQuery splits input into words and "quoted phrases"; a leading '-'
// marks an exclusion. An unterminated quote runs to the end of input.
func tokenizeQuery(input string) []queryToken {
	var tokens []queryToken
	runes := []rune(input)
	for i := 0; i < len(runes); {
		if unicode.IsSpace(runes[i]) {
			i++
			continue
		}

		var tok queryToken
		if runes[i] == '-' && i+1 < len(runes) && !unicode.IsSpace(runes[i+1]) {
			tok.negate = true
			i++
		}

		if runes[i] == '"' {
			end := i + 1
			for end < len(runes) && runes[end] != '"' {
				end++
			}
			tok.text = string(runes[i+1 : end])
			tok.phrase = true
			i = end + 1
		} else {
			end := i
			for end < len(runes) && !unicode.IsSpace(runes[end]) && runes[end] != '"' {
				end++
			}
			tok.text = string(runes[i:end])
			i = end
		}
		tokens = append(tokens, tok)
	}
	return tokens
}

// quoteTerm renders text as an FTS5 string, or "" if it has nothing the
// tokenizer would index
func quoteTerm(text string) string {
	searchable := strings.IndexFunc(text, func(r rune) bool {
		return unicode.IsLetter(r) || unicode.IsDigit(r)
	}) >= 0
	if !searchable {
		return ""
	}
	return `"` + strings.ReplaceAll(text, `"`, `""`) + `"`
}

// BuildMatchQuery translates a web-search style query into an FTS5 MATCH
// expression. Words and "phrases" are ANDed, the word "or" separates
// alternatives, and -word or -"phrase" excludes. Every term is quoted, so
// FTS5 operators typed by the user are matched as text. Exclusions alone
// produce an empty expression.
func BuildMatchQuery(input string) string {
	var groups [][]string
	var current, excluded []string
	pendingOr := false

	for _, tok := range tokenizeQuery(input) {
		if !tok.phrase && !tok.negate && strings.EqualFold(tok.text, "or") {
			pendingOr = len(current) > 0
			continue
		}
		term := quoteTerm(tok.text)
		if term == "" {
			continue
		}
		if tok.negate {
			excluded = append(excluded, term)
			continue
		}
		if pendingOr {
			groups = append(groups, current)
			current = nil
			pendingOr = false
		}
		current = append(current, term)
	}
	if len(current) > 0 {
		groups = append(groups, current)
	}
	if len(groups) == 0 {
		return ""
	}

	parts := make([]string, len(groups))
	for i, group := range groups {
		part := strings.Join(group, " ")
		if len(group) > 1 && len(groups) > 1 {
			part = "(" + part + ")"
		}
		parts[i] = part
	}
	expr := strings.Join(parts, " OR ")

	if len(excluded) > 0 {
		expr = "(" + expr + ")"
		for _, term := range excluded {
			expr += " NOT " + term
		}
	}
	return expr
}
