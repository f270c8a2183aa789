package indexer

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dshills/tome/internal/fetcher"
	"github.com/dshills/tome/internal/storage"
	"github.com/dshills/tome/pkg/types"
)

const (
	DefaultMaxDepth = 3
	MaxDepth        = 5

	// MaxDocumentsPerCrawl bounds how many URLs one crawl will fetch
	MaxDocumentsPerCrawl = 1000
)

// Statistics contains statistics about a domain ingestion
type Statistics struct {
	Domain        string
	Inserted      int
	Updated       int
	Skipped       int
	Failed        int
	Ignored       int // Dead links and non-markdown responses
	Pruned        int
	Sections      int
	Duration      time.Duration
	ErrorMessages []string
}

// crawl holds the shared state of one IngestDomain call
type crawl struct {
	domain   string
	origin   string
	maxDepth int

	mu      sync.Mutex
	stats   *Statistics
	visited map[string]bool
	paths   map[string]bool
}

func (c *crawl) recordResult(path string, res *IngestResult) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.paths[path] = true
	switch res.Status {
	case StatusInserted:
		c.stats.Inserted++
	case StatusUpdated:
		c.stats.Updated++
	case StatusSkipped:
		c.stats.Skipped++
	}
	c.stats.Sections += res.Sections
}

func (c *crawl) recordError(rawURL string, err error, ignored bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ignored {
		c.stats.Ignored++
	} else {
		c.stats.Failed++
	}
	c.stats.ErrorMessages = append(c.stats.ErrorMessages, fmt.Sprintf("%s: %v", rawURL, err))
}

// claim marks links as visited and returns the ones not seen before
func (c *crawl) claim(links []string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	fresh := make([]string, 0, len(links))
	for _, link := range links {
		if c.visited[link] || len(c.visited) >= MaxDocumentsPerCrawl {
			continue
		}
		c.visited[link] = true
		fresh = append(fresh, link)
	}
	return fresh
}

// IngestDomain crawls a domain starting from its /llms.txt, following
// same-domain links breadth-first up to maxDepth (0 fetches only llms.txt),
// plus /llms-full.txt when the domain serves one. Documents the crawl did
// not reach are pruned, but only when every fetched document succeeded.
func (idx *Indexer) IngestDomain(ctx context.Context, domain string, maxDepth int) (*Statistics, error) {
	if idx.fetcher == nil {
		return nil, fmt.Errorf("no fetcher configured")
	}
	if maxDepth < 0 || maxDepth > MaxDepth {
		return nil, fmt.Errorf("max depth must be between 0 and %d, got %d", MaxDepth, maxDepth)
	}

	domain, err := fetcher.NormalizeDomain(domain)
	if err != nil {
		return nil, err
	}

	lock := idx.domainLock(domain)
	if !lock.TryAcquire() {
		return nil, fmt.Errorf("%s: %w", domain, ErrIngestInProgress)
	}
	defer lock.Release()

	startTime := time.Now()
	c := &crawl{
		domain:   domain,
		origin:   idx.origin(domain),
		maxDepth: maxDepth,
		stats:    &Statistics{Domain: domain, ErrorMessages: make([]string, 0)},
		visited:  make(map[string]bool),
		paths:    make(map[string]bool),
	}

	idx.logger.Info("starting crawl", "domain", domain, "max_depth", maxDepth)

	err = idx.runCrawl(ctx, c)
	c.stats.Duration = time.Since(startTime)

	if err == nil && c.stats.Failed == 0 {
		keep := make([]string, 0, len(c.paths))
		for p := range c.paths {
			keep = append(keep, p)
		}
		sort.Strings(keep)

		pruned, pruneErr := idx.storage.PruneDomain(ctx, domain, keep)
		if pruneErr != nil {
			err = fmt.Errorf("failed to prune %s: %w", domain, pruneErr)
		} else {
			c.stats.Pruned = pruned
			if pruned > 0 && idx.invalidator != nil {
				idx.invalidator.InvalidateCache(domain)
			}
		}
	}

	idx.recordRun(c.stats, startTime, err)

	if err != nil {
		return c.stats, err
	}

	idx.logger.Info("crawl complete",
		"domain", domain,
		"inserted", c.stats.Inserted,
		"updated", c.stats.Updated,
		"skipped", c.stats.Skipped,
		"failed", c.stats.Failed,
		"pruned", c.stats.Pruned,
		"duration", c.stats.Duration)

	return c.stats, nil
}

func (idx *Indexer) runCrawl(ctx context.Context, c *crawl) error {
	indexURL := c.origin + types.IndexPath
	fullURL := c.origin + types.FullPath
	c.claim([]string{indexURL, fullURL})

	// The index is the entry point; without it there is nothing to crawl
	links, err := idx.crawlDocument(ctx, c, indexURL, 0)
	if err != nil {
		return fmt.Errorf("failed to ingest %s: %w", indexURL, err)
	}

	// llms-full.txt is optional and its links are not followed
	if _, err := idx.crawlDocument(ctx, c, fullURL, c.maxDepth); err != nil {
		c.recordError(fullURL, err, isIgnorable(err))
	}

	frontier := c.claim(links)
	for depth := 1; len(frontier) > 0; depth++ {
		var mu sync.Mutex
		next := make([]string, 0)

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(idx.workers)

		for _, link := range frontier {
			g.Go(func() error {
				found, err := idx.crawlDocument(gctx, c, link, depth)
				if err != nil {
					if gctx.Err() != nil {
						return gctx.Err()
					}
					c.recordError(link, err, isIgnorable(err))
					return nil
				}
				mu.Lock()
				next = append(next, found...)
				mu.Unlock()
				return nil
			})
		}

		if err := g.Wait(); err != nil {
			return err
		}
		frontier = c.claim(next)
	}

	return ctx.Err()
}

// crawlDocument fetches and ingests one URL, returning the same-domain links
// to follow from it
func (idx *Indexer) crawlDocument(ctx context.Context, c *crawl, rawURL string, depth int) ([]string, error) {
	doc, err := idx.fetcher.Fetch(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	if !fetcher.SameDomain(doc.URL, c.origin) {
		return nil, fmt.Errorf("redirected off domain to %s: %w", doc.URL, fetcher.ErrNotFound)
	}

	path := fetcher.ExtractPath(doc.URL)
	res, err := idx.Ingest(ctx, IngestRequest{
		Domain:  c.domain,
		Path:    path,
		URL:     doc.URL,
		Content: doc.Content,
	})
	if err != nil {
		return nil, err
	}
	c.recordResult(path, res)

	if depth >= c.maxDepth {
		return nil, nil
	}

	base, err := url.Parse(doc.URL)
	if err != nil {
		return nil, nil
	}

	links := make([]string, 0)
	for _, link := range idx.parser.ExtractLinks(doc.Content, base) {
		if fetcher.SameDomain(link, c.origin) {
			links = append(links, link)
		}
	}
	return links, nil
}

// isIgnorable reports whether a linked document's failure is a dead or
// non-markdown link rather than an ingestion failure
func isIgnorable(err error) bool {
	return errors.Is(err, fetcher.ErrNotFound) || errors.Is(err, fetcher.ErrUnsupportedContentType)
}

func (idx *Indexer) recordRun(stats *Statistics, startTime time.Time, crawlErr error) {
	run := &storage.IngestRun{
		Domain:     stats.Domain,
		Inserted:   stats.Inserted,
		Updated:    stats.Updated,
		Skipped:    stats.Skipped,
		Failed:     stats.Failed,
		Pruned:     stats.Pruned,
		StartedAt:  startTime,
		FinishedAt: time.Now(),
	}
	if crawlErr != nil {
		msg := crawlErr.Error()
		run.Error = &msg
	}

	// A cancelled crawl still gets its run recorded
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := idx.storage.RecordIngestRun(ctx, run); err != nil {
		idx.logger.Warn("failed to record ingest run", "domain", stats.Domain, "error", err)
	}
}
