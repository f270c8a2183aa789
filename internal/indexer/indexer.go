package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"strings"
	"sync"

	"github.com/dshills/tome/internal/chunker"
	"github.com/dshills/tome/internal/fetcher"
	"github.com/dshills/tome/internal/parser"
	"github.com/dshills/tome/internal/storage"
	"github.com/dshills/tome/pkg/types"
)

// ErrIngestInProgress is returned when a domain is already being crawled
var ErrIngestInProgress = errors.New("ingestion already in progress")

// Status describes what an ingestion did to a document
type Status string

const (
	StatusInserted Status = "inserted"
	StatusUpdated  Status = "updated"
	StatusSkipped  Status = "skipped" // Content hash unchanged
)

// IngestRequest is one document's raw text to be stored
type IngestRequest struct {
	Domain  string
	Path    string
	URL     string // Defaults to https://<domain><path>
	Content string
}

// IngestResult reports the outcome of a single document ingestion
type IngestResult struct {
	Status     Status
	DocumentID int64
	Sections   int // Sections written; 0 when skipped
	Tokens     int
}

// DocumentFetcher retrieves raw documentation text
type DocumentFetcher interface {
	Fetch(ctx context.Context, url string) (*fetcher.Document, error)
}

// CacheInvalidator drops cached reads for a domain after its trees change
type CacheInvalidator interface {
	InvalidateCache(domain string) int
}

// Indexer coordinates the ingestion pipeline: hash check -> chunk -> store
type Indexer struct {
	parser      *parser.Parser
	chunker     *chunker.Chunker
	storage     storage.Storage
	fetcher     DocumentFetcher
	invalidator CacheInvalidator
	logger      *slog.Logger

	// Worker pool configuration
	workers int

	docLocks *keyedMutex

	domainMu    sync.Mutex
	domainLocks map[string]*IndexLock

	origin func(domain string) string
}

// Option configures an Indexer
type Option func(*Indexer)

// WithChunker replaces the default chunker
func WithChunker(c *chunker.Chunker) Option {
	return func(idx *Indexer) {
		if c != nil {
			idx.chunker = c
		}
	}
}

// WithFetcher sets the fetcher used by IngestDomain
func WithFetcher(f DocumentFetcher) Option {
	return func(idx *Indexer) {
		idx.fetcher = f
	}
}

// WithInvalidator sets the cache notified after each write
func WithInvalidator(inv CacheInvalidator) Option {
	return func(idx *Indexer) {
		idx.invalidator = inv
	}
}

// WithLogger sets the indexer's logger
func WithLogger(logger *slog.Logger) Option {
	return func(idx *Indexer) {
		if logger != nil {
			idx.logger = logger
		}
	}
}

// WithWorkers bounds the number of concurrent fetches during a crawl
func WithWorkers(n int) Option {
	return func(idx *Indexer) {
		if n > 0 {
			idx.workers = n
		}
	}
}

// WithOrigin overrides how a domain maps to the origin its llms.txt is
// fetched from. The default is https://<domain>.
func WithOrigin(origin func(domain string) string) Option {
	return func(idx *Indexer) {
		if origin != nil {
			idx.origin = origin
		}
	}
}

// New creates a new Indexer instance
func New(store storage.Storage, opts ...Option) *Indexer {
	idx := &Indexer{
		parser:      parser.New(),
		chunker:     chunker.New(),
		storage:     store,
		logger:      slog.Default(),
		workers:     runtime.NumCPU(),
		docLocks:    newKeyedMutex(),
		domainLocks: make(map[string]*IndexLock),
		origin: func(domain string) string {
			return "https://" + domain
		},
	}
	for _, opt := range opts {
		opt(idx)
	}
	return idx
}

// Ingest stores one document's text. Identical content is a no-op. The text
// is fully chunked before anything is written, so a chunking failure leaves
// any previously stored tree untouched. Ingestions of the same document are
// serialized; different documents proceed in parallel.
func (idx *Indexer) Ingest(ctx context.Context, req IngestRequest) (*IngestResult, error) {
	req.Domain = strings.TrimSpace(req.Domain)
	if req.Domain == "" {
		return nil, fmt.Errorf("domain is required")
	}
	req.Path = types.NormalizePath(req.Path)
	if req.URL == "" {
		req.URL = "https://" + req.Domain + req.Path
	}

	unlock := idx.docLocks.Lock(req.Domain + "\x00" + req.Path)
	defer unlock()

	hash := chunker.ComputeContentHash(req.Content)

	existing, err := idx.storage.GetDocument(ctx, req.Domain, req.Path)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		existing = nil
	case err != nil:
		return nil, fmt.Errorf("failed to look up document: %w", err)
	case existing.ContentHash == hash:
		idx.logger.Debug("document unchanged", "domain", req.Domain, "path", req.Path)
		return &IngestResult{Status: StatusSkipped, DocumentID: existing.ID}, nil
	}

	specs, err := idx.chunker.Chunk(req.Content)
	if err != nil {
		return nil, fmt.Errorf("failed to chunk %s%s: %w", req.Domain, req.Path, err)
	}

	doc := &storage.Document{
		Domain:      req.Domain,
		Path:        req.Path,
		URL:         req.URL,
		ContentHash: hash,
	}
	if err := idx.storage.ReplaceTree(ctx, doc, specs); err != nil {
		return nil, fmt.Errorf("failed to store %s%s: %w", req.Domain, req.Path, err)
	}

	if idx.invalidator != nil {
		idx.invalidator.InvalidateCache(req.Domain)
	}

	result := &IngestResult{
		Status:     StatusInserted,
		DocumentID: doc.ID,
		Sections:   len(specs),
	}
	if existing != nil {
		result.Status = StatusUpdated
	}
	for _, s := range specs {
		result.Tokens += s.Tokens
	}

	idx.logger.Info("document ingested",
		"domain", req.Domain,
		"path", req.Path,
		"status", result.Status,
		"sections", result.Sections)

	return result, nil
}

// domainLock returns the crawl lock for a domain
func (idx *Indexer) domainLock(domain string) *IndexLock {
	idx.domainMu.Lock()
	defer idx.domainMu.Unlock()

	lock, ok := idx.domainLocks[domain]
	if !ok {
		lock = &IndexLock{}
		idx.domainLocks[domain] = lock
	}
	return lock
}
