package types

// SearchResult is one ranked section matching a full-text query.
type SearchResult struct {
	SectionID  int64
	DocumentID int64
	Rank       int // Position in result set (1-based)
	Score      float64

	Heading    string   // "" for a document intro
	Breadcrumb []string // Headings from root to the section, inclusive
	Snippet    string   // Excerpt of the section's own content
	URL        string
	Path       string
}

// TOCEntry is one node of a document's heading tree.
type TOCEntry struct {
	SectionID int64       `json:"id"`
	Heading   string      `json:"heading"`
	Level     int         `json:"level"`
	Children  []*TOCEntry `json:"children,omitempty"`
}

// Validate checks if the search result is usable
func (sr *SearchResult) Validate() error {
	if sr.SectionID == 0 {
		return ErrInvalidSectionID
	}
	if sr.Rank < 1 {
		return ErrInvalidRank
	}
	if sr.Path == "" {
		return ErrMissingPath
	}
	return nil
}
