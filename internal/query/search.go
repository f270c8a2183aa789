package query

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dshills/tome/internal/storage"
	"github.com/dshills/tome/pkg/types"
)

// SearchRequest contains parameters for a search operation
type SearchRequest struct {
	Domain   string
	Query    string
	Paths    []string // Path prefixes; empty searches the whole domain
	Limit    int
	UseCache bool
}

// SearchResponse contains search results and metadata
type SearchResponse struct {
	Results      []types.SearchResult
	TotalResults int
	Duration     time.Duration
	CacheHit     bool
}

// cacheEntry represents a cached search response with expiration time
type cacheEntry struct {
	domain    string
	response  *SearchResponse
	expiresAt time.Time
}

// Search runs a ranked full-text query over one domain. A query that
// matches nothing yields an empty response, not an error.
func (e *Engine) Search(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	startTime := time.Now()

	if err := e.validateRequest(&req); err != nil {
		return nil, err
	}

	if req.UseCache {
		if cached := e.checkCache(req); cached != nil {
			cached.CacheHit = true
			cached.Duration = time.Since(startTime)
			return cached, nil
		}
	}

	gen := e.generation(req.Domain)

	textResults, err := e.storage.SearchText(ctx, storage.TextQuery{
		Domain: req.Domain,
		Query:  req.Query,
		Paths:  req.Paths,
		Limit:  req.Limit,
	})
	if err != nil {
		return nil, err
	}

	results := make([]types.SearchResult, 0, len(textResults))
	for _, tr := range textResults {
		chain, err := e.storage.ListAncestors(ctx, tr.SectionID)
		if errors.Is(err, storage.ErrNotFound) {
			// Replaced between the match and the lookup
			continue
		}
		if err != nil {
			return nil, err
		}

		result := types.SearchResult{
			SectionID:  tr.SectionID,
			DocumentID: tr.DocumentID,
			Rank:       len(results) + 1,
			Score:      tr.Score,
			Breadcrumb: headingsOf(chain),
			Snippet:    tr.Snippet,
			URL:        tr.URL,
			Path:       tr.Path,
		}
		if tr.Heading != nil {
			result.Heading = *tr.Heading
		}
		if err := result.Validate(); err != nil {
			e.logger.Warn("dropping search result",
				"domain", req.Domain,
				"section_id", tr.SectionID,
				"error", err)
			continue
		}
		results = append(results, result)
	}

	response := &SearchResponse{
		Results:      results,
		TotalResults: len(results),
		Duration:     time.Since(startTime),
	}

	e.logger.Debug("search completed",
		"domain", req.Domain,
		"query", req.Query,
		"results", len(results),
		"duration", response.Duration)

	if req.UseCache && len(results) > 0 {
		e.storeInCache(req, response, gen)
	}

	return response, nil
}

// validateRequest applies defaults and rejects queries with no text
func (e *Engine) validateRequest(req *SearchRequest) error {
	req.Query = strings.TrimSpace(req.Query)
	if req.Query == "" {
		return types.ErrEmptyQuery
	}
	if req.Domain == "" {
		return fmt.Errorf("invalid search request: domain is required")
	}

	if req.Limit <= 0 {
		req.Limit = e.defaultLimit
	}
	if req.Limit > e.maxLimit {
		req.Limit = e.maxLimit
	}

	paths := make([]string, 0, len(req.Paths))
	for _, p := range req.Paths {
		if p = strings.TrimSpace(p); p != "" {
			paths = append(paths, p)
		}
	}
	req.Paths = paths

	return nil
}

// checkCache returns a copy of a live cached response, or nil
func (e *Engine) checkCache(req SearchRequest) *SearchResponse {
	hash := computeQueryHash(req)
	now := time.Now()

	e.cacheMu.RLock()
	entry, found := e.cache.Get(hash)
	if !found {
		e.cacheMu.RUnlock()
		return nil
	}

	if now.After(entry.expiresAt) {
		e.cacheMu.RUnlock()

		e.cacheMu.Lock()
		e.cache.Remove(hash)
		e.cacheMu.Unlock()
		return nil
	}

	response := copySearchResponse(entry.response)
	e.cacheMu.RUnlock()

	return response
}

// storeInCache caches response unless the domain was invalidated since
// gen was read.
func (e *Engine) storeInCache(req SearchRequest, response *SearchResponse, gen uint64) {
	entry := &cacheEntry{
		domain:    req.Domain,
		response:  copySearchResponse(response),
		expiresAt: time.Now().Add(e.cacheTTL),
	}

	e.cacheMu.Lock()
	defer e.cacheMu.Unlock()
	if e.generations[req.Domain] != gen {
		return
	}
	e.cache.Add(computeQueryHash(req), entry)
}

func (e *Engine) generation(domain string) uint64 {
	e.cacheMu.RLock()
	defer e.cacheMu.RUnlock()
	return e.generations[domain]
}

// InvalidateCache drops every cached response for a domain and stops
// searches already in flight from caching their results.
func (e *Engine) InvalidateCache(domain string) int {
	e.cacheMu.Lock()
	defer e.cacheMu.Unlock()

	e.generations[domain]++
	removed := 0
	for _, key := range e.cache.Keys() {
		entry, ok := e.cache.Peek(key)
		if ok && entry.domain == domain {
			e.cache.Remove(key)
			removed++
		}
	}
	return removed
}

// CacheLen reports the number of cached responses
func (e *Engine) CacheLen() int {
	e.cacheMu.RLock()
	defer e.cacheMu.RUnlock()
	return e.cache.Len()
}

// copySearchResponse creates a deep copy of a SearchResponse
func copySearchResponse(src *SearchResponse) *SearchResponse {
	if src == nil {
		return nil
	}

	dst := &SearchResponse{
		TotalResults: src.TotalResults,
		Duration:     src.Duration,
		CacheHit:     src.CacheHit,
		Results:      make([]types.SearchResult, len(src.Results)),
	}
	for i, result := range src.Results {
		dst.Results[i] = result
		dst.Results[i].Breadcrumb = append([]string(nil), result.Breadcrumb...)
	}
	return dst
}

// computeQueryHash computes a unique hash for a search request
func computeQueryHash(req SearchRequest) [32]byte {
	var data strings.Builder
	data.WriteString(req.Domain)
	data.WriteString("|")
	data.WriteString(req.Query)
	data.WriteString("|")
	data.WriteString(strings.Join(req.Paths, ","))
	data.WriteString("|")
	data.WriteString(fmt.Sprintf("%d", req.Limit))

	return sha256.Sum256([]byte(data.String()))
}
