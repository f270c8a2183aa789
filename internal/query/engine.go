package query

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/dshills/tome/internal/storage"
	"github.com/dshills/tome/pkg/types"
)

const (
	DefaultCacheSize = 1000
	DefaultCacheTTL  = time.Hour
	DefaultLimit     = 10
	MaxLimit         = 50
)

// Engine answers read queries against committed section trees. Reads never
// take locks beyond the search cache's, so any number may run concurrently.
type Engine struct {
	storage storage.Storage
	logger  *slog.Logger

	cache     *lru.Cache[[32]byte, *cacheEntry]
	cacheMu   sync.RWMutex
	cacheSize int
	cacheTTL  time.Duration
	// Bumped per domain by InvalidateCache
	generations map[string]uint64

	defaultLimit int
	maxLimit     int
}

// Option configures an Engine
type Option func(*Engine)

// WithCacheSize sets the maximum number of cached search responses
func WithCacheSize(size int) Option {
	return func(e *Engine) {
		if size > 0 {
			e.cacheSize = size
		}
	}
}

// WithCacheTTL sets how long a cached search response stays valid
func WithCacheTTL(ttl time.Duration) Option {
	return func(e *Engine) {
		if ttl > 0 {
			e.cacheTTL = ttl
		}
	}
}

// WithLimits sets the default and maximum search result counts
func WithLimits(defaultLimit, maxLimit int) Option {
	return func(e *Engine) {
		if maxLimit > 0 {
			e.maxLimit = maxLimit
		}
		if defaultLimit > 0 {
			e.defaultLimit = defaultLimit
		}
		if e.defaultLimit > e.maxLimit {
			e.defaultLimit = e.maxLimit
		}
	}
}

// WithLogger sets the engine's logger
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// New creates an Engine over the given store
func New(store storage.Storage, opts ...Option) *Engine {
	e := &Engine{
		storage:      store,
		logger:       slog.Default(),
		cacheSize:    DefaultCacheSize,
		cacheTTL:     DefaultCacheTTL,
		generations:  make(map[string]uint64),
		defaultLimit: DefaultLimit,
		maxLimit:     MaxLimit,
	}
	for _, opt := range opts {
		opt(e)
	}

	cache, err := lru.New[[32]byte, *cacheEntry](e.cacheSize)
	if err != nil {
		// Only reachable with a non-positive size, which the option rejects
		panic(fmt.Sprintf("failed to create LRU cache: %v", err))
	}
	e.cache = cache

	return e
}

// Document resolves a domain and path to a stored document. The path is
// normalized, so "" and "INDEX" name /llms.txt and "FULL" names
// /llms-full.txt.
func (e *Engine) Document(ctx context.Context, domain, path string) (*storage.Document, error) {
	path = types.NormalizePath(path)
	doc, err := e.storage.GetDocument(ctx, domain, path)
	if err != nil {
		return nil, fmt.Errorf("document %s%s: %w", domain, path, err)
	}
	return doc, nil
}

// Get returns the full text of a stored document
func (e *Engine) Get(ctx context.Context, domain, path string) (string, error) {
	doc, err := e.Document(ctx, domain, path)
	if err != nil {
		return "", err
	}
	return e.Reconstruct(ctx, doc)
}

// Reconstruct concatenates a document's sections in position order, which
// reproduces the ingested text exactly
func (e *Engine) Reconstruct(ctx context.Context, doc *storage.Document) (string, error) {
	sections, err := e.storage.ListSections(ctx, doc.ID)
	if err != nil {
		return "", err
	}
	return joinSections(sections), nil
}

// Subtree returns the text of every section headed by heading, each with
// all of its descendants, in document order
func (e *Engine) Subtree(ctx context.Context, domain, path, heading string) (string, error) {
	heading = normalizeHeading(heading)
	if heading == "" {
		return e.Get(ctx, domain, path)
	}

	doc, err := e.Document(ctx, domain, path)
	if err != nil {
		return "", err
	}

	sections, err := e.storage.ListSubtree(ctx, doc.ID, heading)
	if err != nil {
		return "", err
	}
	if len(sections) == 0 {
		return "", fmt.Errorf("heading %q in %s%s: %w", heading, domain, doc.Path, storage.ErrNotFound)
	}
	return joinSections(sections), nil
}

// Breadcrumb returns the headings from the root down to the section,
// inclusive. Sections without a heading contribute nothing.
func (e *Engine) Breadcrumb(ctx context.Context, sectionID int64) ([]string, error) {
	chain, err := e.storage.ListAncestors(ctx, sectionID)
	if err != nil {
		return nil, fmt.Errorf("section %d: %w", sectionID, err)
	}
	return headingsOf(chain), nil
}

// TOC returns the heading tree of a document. Sections without a heading
// are omitted and their headed children are attached to the nearest headed
// ancestor, or listed at the top level.
func (e *Engine) TOC(ctx context.Context, domain, path string) ([]*types.TOCEntry, error) {
	doc, err := e.Document(ctx, domain, path)
	if err != nil {
		return nil, err
	}
	sections, err := e.storage.ListSections(ctx, doc.ID)
	if err != nil {
		return nil, err
	}
	return buildTOC(sections), nil
}

func buildTOC(sections []*storage.Section) []*types.TOCEntry {
	byID := make(map[int64]*storage.Section, len(sections))
	entries := make(map[int64]*types.TOCEntry)
	roots := make([]*types.TOCEntry, 0)

	// Position order guarantees every ancestor is visited first
	for _, s := range sections {
		byID[s.ID] = s
		if s.Heading == nil {
			continue
		}

		entry := &types.TOCEntry{SectionID: s.ID, Heading: *s.Heading, Level: s.Level}
		entries[s.ID] = entry

		var parent *types.TOCEntry
		for pid := s.ParentID; pid != nil; {
			if p, ok := entries[*pid]; ok {
				parent = p
				break
			}
			ps, ok := byID[*pid]
			if !ok {
				break
			}
			pid = ps.ParentID
		}

		if parent == nil {
			roots = append(roots, entry)
		} else {
			parent.Children = append(parent.Children, entry)
		}
	}
	return roots
}

func joinSections(sections []*storage.Section) string {
	var b strings.Builder
	for _, s := range sections {
		b.WriteString(s.Text())
	}
	return b.String()
}

func headingsOf(chain []*storage.Section) []string {
	headings := make([]string, 0, len(chain))
	for _, s := range chain {
		if s.Heading != nil {
			headings = append(headings, *s.Heading)
		}
	}
	return headings
}

// normalizeHeading accepts a heading with or without its ATX markers
func normalizeHeading(heading string) string {
	heading = strings.TrimSpace(heading)
	heading = strings.TrimLeft(heading, "#")
	return strings.TrimSpace(heading)
}
