package storage

import (
	"context"
	"time"

	"github.com/dshills/tome/pkg/types"
)

// Storage defines the interface for persisting and querying section trees.
// There is no per-section write operation: a document's sections change only
// through ReplaceTree or by deleting the document.
type Storage interface {
	// Document operations
	GetDocument(ctx context.Context, domain, path string) (*Document, error)
	GetDocumentByID(ctx context.Context, documentID int64) (*Document, error)
	CreateOrGetDocument(ctx context.Context, domain, path, url string) (*Document, error)
	ListDocuments(ctx context.Context, domain string) ([]*Document, error)
	ListDomains(ctx context.Context) ([]string, error)
	DeleteDocument(ctx context.Context, documentID int64) error
	DeleteDocumentsByDomain(ctx context.Context, domain string) (deletedCount int, err error)
	PruneDomain(ctx context.Context, domain string, keepPaths []string) (deletedCount int, err error)

	// Tree operations
	ReplaceTree(ctx context.Context, doc *Document, specs []types.SectionSpec) error
	ListSections(ctx context.Context, documentID int64) ([]*Section, error)
	GetSection(ctx context.Context, sectionID int64) (*Section, error)
	ListSubtree(ctx context.Context, documentID int64, heading string) ([]*Section, error)
	ListAncestors(ctx context.Context, sectionID int64) ([]*Section, error)

	// Search operations
	SearchText(ctx context.Context, query TextQuery) ([]TextResult, error)

	// Status operations
	GetStatus(ctx context.Context, domain string) (*DomainStatus, error)
	RecordIngestRun(ctx context.Context, run *IngestRun) error
	LatestIngestRun(ctx context.Context, domain string) (*IngestRun, error)

	// Database operations
	Close() error
}

// Document is the container and change-detection anchor for one ingested
// source. It holds no content itself.
type Document struct {
	ID          int64
	Domain      string
	URL         string
	Path        string
	ContentHash [32]byte // Zero until a tree has been stored
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Section is a stored node of a document's section tree
type Section struct {
	ID         int64
	DocumentID int64
	ParentID   *int64  // Nullable - nil for the root
	Heading    *string // Nullable - nil for the root
	Level      int
	Markup     string
	Content    string
	Position   int
	TokenCount int
	CreatedAt  time.Time
}

// HeadingText returns the heading or "" for the root
func (s *Section) HeadingText() string {
	if s.Heading == nil {
		return ""
	}
	return *s.Heading
}

// Text returns the section's heading markup followed by its own content
func (s *Section) Text() string {
	return types.HeadingMarkup(s.Heading, s.Level, s.Markup) + s.Content
}

// TextQuery is a domain-scoped full-text query
type TextQuery struct {
	Domain string
	Query  string   // Web-search style: words, "phrases", or, -exclusions
	Paths  []string // Path prefixes to restrict to; empty means all
	Limit  int
}

// TextResult represents a result from full-text search
type TextResult struct {
	SectionID  int64
	DocumentID int64
	Heading    *string
	Level      int
	URL        string
	Path       string
	Snippet    string
	Score      float64 // Negated BM25, higher is better
}

// DomainStatus contains statistics about stored documents
type DomainStatus struct {
	Domain        string // "" when reporting on every domain
	Documents     int
	Sections      int
	Tokens        int
	IndexSizeMB   float64
	LastUpdatedAt time.Time
	LastRun       *IngestRun // Nil when no crawl has completed
}

// IngestRun records the outcome of one domain ingestion
type IngestRun struct {
	ID         int64
	Domain     string
	Inserted   int
	Updated    int
	Skipped    int
	Failed     int
	Pruned     int
	Error      *string // Nullable
	StartedAt  time.Time
	FinishedAt time.Time
}
