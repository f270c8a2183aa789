// Package storage provides SQLite-based persistence for documents and their
// section trees.
//
// The storage layer manages:
//   - Documents (one per domain and path, with the hash of the last input)
//   - Sections (the bounded-size tree produced by the chunker)
//   - A full-text index over each section's own heading and content
//   - A log of domain ingestion runs
//
// # Database Schema
//
// Tables:
//   - documents: domain, url, path, content_hash; unique on (domain, path)
//   - sections: parent_id, heading, level, markup, content, position,
//     token_count; unique on (document_id, position)
//   - sections_fts: FTS5 external-content index over sections
//   - ingest_runs: per-domain ingestion outcomes
//
// # Whole-Tree Replacement
//
// Sections are never edited in place. ReplaceTree upserts the document,
// deletes its sections and inserts the new tree in one transaction:
//
//	doc := &storage.Document{
//	    Domain:      "example.com",
//	    Path:        "/llms-full.txt",
//	    URL:         "https://example.com/llms-full.txt",
//	    ContentHash: sha256.Sum256(raw),
//	}
//	if err := db.ReplaceTree(ctx, doc, specs); err != nil {
//	    return err // the previous tree is untouched
//	}
//
// Parents are referenced by index in the SectionSpec slice and translated to row
// IDs as the sections are inserted in position order, so a parent row
// always exists before its children.
//
// # Tree Queries
//
// Reconstruction orders by position. Subtrees and breadcrumbs walk
// parent_id with recursive CTEs:
//
//	sections, _ := db.ListSubtree(ctx, doc.ID, "Server")
//	chain, _ := db.ListAncestors(ctx, sectionID) // root first
//
// # Full-Text Search
//
// SearchText accepts web-search style queries (words, "phrases", or,
// -exclusions), ranks with BM25 weighting headings above body text, and
// returns a highlighted snippet of the matching section only:
//
//	results, err := db.SearchText(ctx, storage.TextQuery{
//	    Domain: "example.com",
//	    Query:  `"rate limit" -deprecated`,
//	    Paths:  []string{"/docs/api"},
//	    Limit:  10,
//	})
//
// # Build Tags
//
// Pure Go Build (default):
//
//   - Uses modernc.org/sqlite, which includes FTS5
//
//     CGO_ENABLED=0 go build ./...
//
// CGO Build (sqlite_cgo tag):
//
//   - Uses github.com/mattn/go-sqlite3; FTS5 needs the sqlite_fts5 tag
//
//     CGO_ENABLED=1 go build -tags "sqlite_cgo,sqlite_fts5" ./...
package storage
