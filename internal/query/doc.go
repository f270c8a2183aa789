// Package query answers reads against stored section trees: full document
// reconstruction, heading subtrees, breadcrumbs, tables of contents and
// ranked full-text search.
//
// # Basic Usage
//
//	engine := query.New(store, query.WithCacheTTL(time.Hour))
//
//	text, err := engine.Subtree(ctx, "example.com", "FULL", "Server")
//	if errors.Is(err, storage.ErrNotFound) {
//	    // no such document or heading
//	}
//
//	resp, err := engine.Search(ctx, query.SearchRequest{
//	    Domain:   "example.com",
//	    Query:    "middleware -deprecated",
//	    Limit:    10,
//	    UseCache: true,
//	})
//	for _, r := range resp.Results {
//	    fmt.Printf("[%d] %s (%s)\n", r.Rank, strings.Join(r.Breadcrumb, " > "), r.URL)
//	}
//
// # Caching
//
// Search responses are kept in an LRU cache keyed by a hash of the request
// and expire after a TTL. The ingestion side calls InvalidateCache after
// replacing any tree in a domain.
package query
