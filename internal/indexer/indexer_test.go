package indexer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/tome/internal/chunker"
	"github.com/dshills/tome/internal/storage"
	"github.com/dshills/tome/pkg/types"
)

const sampleDoc = "Overview of the library.\n" +
	"\n" +
	"# Install\n" +
	"Run the installer and check the version.\n" +
	"\n" +
	"# Usage\n" +
	"Call the client from your code.\n" +
	"\n" +
	"## Options\n" +
	"Options control retries and timeouts for every request.\n" +
	"\n" +
	"## Errors\n" +
	"Errors are wrapped with context before they are returned.\n"

// countingInvalidator records cache invalidations per domain
type countingInvalidator struct {
	mu    sync.Mutex
	calls map[string]int
}

func (c *countingInvalidator) InvalidateCache(domain string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.calls == nil {
		c.calls = make(map[string]int)
	}
	c.calls[domain]++
	return 0
}

func (c *countingInvalidator) count(domain string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[domain]
}

func newTestStore(t *testing.T) *storage.SQLiteStorage {
	t.Helper()
	store, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func reconstruct(t *testing.T, store storage.Storage, docID int64) string {
	t.Helper()
	sections, err := store.ListSections(context.Background(), docID)
	require.NoError(t, err)
	var b strings.Builder
	for _, s := range sections {
		b.WriteString(s.Text())
	}
	return b.String()
}

func sectionIDs(t *testing.T, store storage.Storage, docID int64) []int64 {
	t.Helper()
	sections, err := store.ListSections(context.Background(), docID)
	require.NoError(t, err)
	ids := make([]int64, len(sections))
	for i, s := range sections {
		ids[i] = s.ID
	}
	return ids
}

func TestIngest_InsertSkipUpdate(t *testing.T) {
	store := newTestStore(t)
	inv := &countingInvalidator{}
	idx := New(store, WithChunker(chunker.New(chunker.WithBudget(12))), WithInvalidator(inv))
	ctx := context.Background()

	req := IngestRequest{Domain: "example.com", Path: "/guide.md", Content: sampleDoc}

	first, err := idx.Ingest(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, StatusInserted, first.Status)
	assert.Greater(t, first.Sections, 1)
	assert.Greater(t, first.Tokens, 0)
	assert.Equal(t, 1, inv.count("example.com"))

	doc, err := store.GetDocument(ctx, "example.com", "/guide.md")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/guide.md", doc.URL)
	assert.Equal(t, chunker.ComputeContentHash(sampleDoc), doc.ContentHash)
	ids := sectionIDs(t, store, doc.ID)

	second, err := idx.Ingest(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, StatusSkipped, second.Status)
	assert.Equal(t, first.DocumentID, second.DocumentID)
	assert.Equal(t, 0, second.Sections)
	assert.Equal(t, 1, inv.count("example.com"), "a skip does not invalidate")

	unchanged, err := store.GetDocument(ctx, "example.com", "/guide.md")
	require.NoError(t, err)
	assert.Equal(t, doc.UpdatedAt, unchanged.UpdatedAt)
	assert.Equal(t, ids, sectionIDs(t, store, doc.ID))

	req.Content = sampleDoc + "\n## Logging\nLogs go to stderr.\n"
	third, err := idx.Ingest(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, StatusUpdated, third.Status)
	assert.Equal(t, first.DocumentID, third.DocumentID)
	assert.Equal(t, req.Content, reconstruct(t, store, doc.ID))
	assert.Equal(t, 2, inv.count("example.com"))
}

func TestIngest_RoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for _, budget := range []int{12, 20, 50, chunker.DefaultBudget} {
		idx := New(store, WithChunker(chunker.New(chunker.WithBudget(budget))))
		path := fmt.Sprintf("/budget-%d.md", budget)

		res, err := idx.Ingest(ctx, IngestRequest{Domain: "example.com", Path: path, Content: sampleDoc})
		require.NoError(t, err, "budget %d", budget)
		assert.Equal(t, sampleDoc, reconstruct(t, store, res.DocumentID), "budget %d", budget)

		sections, err := store.ListSections(ctx, res.DocumentID)
		require.NoError(t, err)
		for _, s := range sections {
			assert.LessOrEqual(t, s.TokenCount, budget)
		}
	}
}

func TestIngest_NormalizesPath(t *testing.T) {
	store := newTestStore(t)
	idx := New(store)
	ctx := context.Background()

	_, err := idx.Ingest(ctx, IngestRequest{Domain: "example.com", Path: "FULL", Content: "all docs\n"})
	require.NoError(t, err)

	doc, err := store.GetDocument(ctx, "example.com", types.FullPath)
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/llms-full.txt", doc.URL)

	_, err = idx.Ingest(ctx, IngestRequest{Domain: "  ", Path: "/x.md", Content: "x"})
	assert.Error(t, err)
}

func TestIngest_UnsplittableKeepsPriorTree(t *testing.T) {
	store := newTestStore(t)
	inv := &countingInvalidator{}
	idx := New(store, WithChunker(chunker.New(chunker.WithBudget(12))), WithInvalidator(inv))
	ctx := context.Background()

	first, err := idx.Ingest(ctx, IngestRequest{Domain: "example.com", Path: "/guide.md", Content: sampleDoc})
	require.NoError(t, err)
	ids := sectionIDs(t, store, first.DocumentID)

	oversized := strings.Repeat("word ", 40) + "\n"
	_, err = idx.Ingest(ctx, IngestRequest{Domain: "example.com", Path: "/guide.md", Content: oversized})
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrUnsplittable))

	var unsplittable *types.UnsplittableError
	require.True(t, errors.As(err, &unsplittable))
	assert.Equal(t, 12, unsplittable.Budget)

	doc, err := store.GetDocument(ctx, "example.com", "/guide.md")
	require.NoError(t, err)
	assert.Equal(t, chunker.ComputeContentHash(sampleDoc), doc.ContentHash)
	assert.Equal(t, ids, sectionIDs(t, store, doc.ID))
	assert.Equal(t, sampleDoc, reconstruct(t, store, doc.ID))
	assert.Equal(t, 1, inv.count("example.com"))

	// A new document that cannot be chunked is never created
	_, err = idx.Ingest(ctx, IngestRequest{Domain: "example.com", Path: "/big.md", Content: oversized})
	require.Error(t, err)
	_, err = store.GetDocument(ctx, "example.com", "/big.md")
	assert.True(t, errors.Is(err, storage.ErrNotFound))
}

func TestIngest_ConcurrentSameDocument(t *testing.T) {
	store := newTestStore(t)
	idx := New(store, WithChunker(chunker.New(chunker.WithBudget(12))))
	ctx := context.Background()

	versions := make([]string, 8)
	for i := range versions {
		versions[i] = fmt.Sprintf("%s\n## Version\nRelease %d notes.\n", sampleDoc, i)
	}

	var wg sync.WaitGroup
	var failures atomic.Int32
	for _, content := range versions {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := idx.Ingest(ctx, IngestRequest{Domain: "example.com", Path: "/guide.md", Content: content}); err != nil {
				failures.Add(1)
			}
		}()
	}
	wg.Wait()
	require.Equal(t, int32(0), failures.Load())

	doc, err := store.GetDocument(ctx, "example.com", "/guide.md")
	require.NoError(t, err)

	// Whichever write landed last, the tree matches its hash exactly
	text := reconstruct(t, store, doc.ID)
	assert.Contains(t, versions, text)
	assert.Equal(t, chunker.ComputeContentHash(text), doc.ContentHash)
	assert.Equal(t, 0, idx.docLocks.size())
}

func TestIngest_ConcurrentDifferentDocuments(t *testing.T) {
	store := newTestStore(t)
	idx := New(store, WithChunker(chunker.New(chunker.WithBudget(12))))
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := idx.Ingest(ctx, IngestRequest{
				Domain:  "example.com",
				Path:    fmt.Sprintf("/doc-%d.md", i),
				Content: sampleDoc,
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	docs, err := store.ListDocuments(ctx, "example.com")
	require.NoError(t, err)
	require.Len(t, docs, 6)
	for _, d := range docs {
		assert.Equal(t, sampleDoc, reconstruct(t, store, d.ID))
	}
}

func TestIndexLock(t *testing.T) {
	var lock IndexLock
	assert.True(t, lock.TryAcquire())
	assert.False(t, lock.TryAcquire())
	lock.Release()
	assert.True(t, lock.TryAcquire())
}

func TestKeyedMutex(t *testing.T) {
	km := newKeyedMutex()

	unlockA := km.Lock("a")
	unlockB := km.Lock("b")
	assert.Equal(t, 2, km.size())

	acquired := make(chan struct{})
	go func() {
		unlock := km.Lock("a")
		close(acquired)
		unlock()
	}()

	select {
	case <-acquired:
		t.Fatal("second holder acquired a locked key")
	default:
	}

	unlockA()
	<-acquired
	unlockB()
	assert.Equal(t, 0, km.size())
}
