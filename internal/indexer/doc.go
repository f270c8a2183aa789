// Package indexer turns raw documentation text into stored section trees.
//
// # Single Documents
//
// Ingest hashes the text, skips it when the stored document already has
// that hash, and otherwise chunks it and replaces the stored tree in one
// transaction:
//
//	idx := indexer.New(store, indexer.WithInvalidator(engine))
//
//	res, err := idx.Ingest(ctx, indexer.IngestRequest{
//	    Domain:  "example.com",
//	    Path:    "/llms-full.txt",
//	    Content: text,
//	})
//	// res.Status is inserted, updated or skipped
//
// Chunking happens before any write. An *types.UnsplittableError aborts the
// ingestion and the previous tree stays as it was.
//
// # Domains
//
// IngestDomain fetches https://<domain>/llms.txt, follows same-domain links
// breadth-first up to a depth limit with a bounded worker pool, and also
// ingests /llms-full.txt when present:
//
//	idx := indexer.New(store, indexer.WithFetcher(fetcher.New(cfg, logger)))
//	stats, err := idx.IngestDomain(ctx, "example.com", 3)
//
// Dead links and non-markdown responses are counted as ignored. Any other
// failure is counted as failed and disables pruning, so a partial crawl
// never deletes documents it merely failed to reach.
//
// # Concurrency
//
// Writes to the same document are serialized with a per-document lock;
// different documents are ingested in parallel. Only one crawl per domain
// runs at a time; a second caller gets ErrIngestInProgress immediately.
package indexer
