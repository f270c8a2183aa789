package storage

import (
	"context"
	"crypto/sha256"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/tome/pkg/types"
)

func setupTestDB(t *testing.T) *SQLiteStorage {
	// Use in-memory database for testing
	storage, err := NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	require.NotNil(t, storage)
	return storage
}

func strPtr(s string) *string { return &s }

// sampleSpecs is a small tree:
//
//	(root) -> Install
//	       -> Configure -> Environment
func sampleSpecs() []types.SectionSpec {
	return []types.SectionSpec{
		{Parent: types.NoParent, Level: 0, Content: "Welcome to the docs.\n\n", Position: 0, Tokens: 4},
		{Parent: 0, Heading: strPtr("Install"), Level: 1, Markup: "# Install\n",
			Content: "Run go install to get the binary.\n\n", Position: 1, Tokens: 7},
		{Parent: 0, Heading: strPtr("Configure"), Level: 1, Markup: "# Configure\n",
			Content: "Configuration lives in a YAML file.\n\n", Position: 2, Tokens: 6},
		{Parent: 2, Heading: strPtr("Environment"), Level: 2, Markup: "## Environment\n",
			Content: "Environment variables override the file.\n", Position: 3, Tokens: 5},
	}
}

func storeSample(t *testing.T, s *SQLiteStorage, domain, path string, specs []types.SectionSpec) *Document {
	t.Helper()
	doc := &Document{
		Domain:      domain,
		Path:        path,
		URL:         "https://" + domain + path,
		ContentHash: sha256.Sum256([]byte(types.Reconstruct(specs))),
	}
	require.NoError(t, s.ReplaceTree(context.Background(), doc, specs))
	return doc
}

func TestNewSQLiteStorage(t *testing.T) {
	storage := setupTestDB(t)
	defer storage.Close()

	assert.NotNil(t, storage)
	assert.NotNil(t, storage.db)
}

func TestNewSQLiteStorage_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tome.db")

	first, err := NewSQLiteStorage(path)
	require.NoError(t, err)
	storeSample(t, first, "example.com", "/llms.txt", sampleSpecs())
	require.NoError(t, first.Close())

	// Reopening applies no migrations twice and keeps the data
	second, err := NewSQLiteStorage(path)
	require.NoError(t, err)
	defer second.Close()

	doc, err := second.GetDocument(context.Background(), "example.com", "/llms.txt")
	require.NoError(t, err)
	sections, err := second.ListSections(context.Background(), doc.ID)
	require.NoError(t, err)
	assert.Len(t, sections, 4)
}

func TestClose(t *testing.T) {
	storage := setupTestDB(t)
	err := storage.Close()
	assert.NoError(t, err)
}

func TestMigrations(t *testing.T) {
	storage := setupTestDB(t)
	defer storage.Close()
	ctx := context.Background()

	// Re-applying is a no-op
	require.NoError(t, ApplyMigrations(ctx, storage.db))

	v, err := currentVersion(ctx, storage.db)
	require.NoError(t, err)
	assert.Equal(t, CurrentSchemaVersion, v.String())

	require.NoError(t, RollbackMigration(ctx, storage.db))
	v, err = currentVersion(ctx, storage.db)
	require.NoError(t, err)
	assert.Equal(t, "1.0.0", v.String())

	var name string
	err = storage.db.QueryRowContext(ctx,
		"SELECT name FROM sqlite_master WHERE type='table' AND name='ingest_runs'").Scan(&name)
	assert.Error(t, err)

	require.NoError(t, ApplyMigrations(ctx, storage.db))
	v, err = currentVersion(ctx, storage.db)
	require.NoError(t, err)
	assert.Equal(t, CurrentSchemaVersion, v.String())
}

func TestCreateOrGetDocument(t *testing.T) {
	storage := setupTestDB(t)
	defer storage.Close()
	ctx := context.Background()

	doc, err := storage.CreateOrGetDocument(ctx, "example.com", "/llms.txt", "https://example.com/llms.txt")
	require.NoError(t, err)
	assert.Greater(t, doc.ID, int64(0))
	assert.Equal(t, [32]byte{}, doc.ContentHash)
	assert.False(t, doc.CreatedAt.IsZero())

	again, err := storage.CreateOrGetDocument(ctx, "example.com", "/llms.txt", "https://mirror.example.com/llms.txt")
	require.NoError(t, err)
	assert.Equal(t, doc.ID, again.ID)
	assert.Equal(t, "https://example.com/llms.txt", again.URL)

	byID, err := storage.GetDocumentByID(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, doc.Path, byID.Path)
}

func TestGetDocument_NotFound(t *testing.T) {
	storage := setupTestDB(t)
	defer storage.Close()
	ctx := context.Background()

	_, err := storage.GetDocument(ctx, "example.com", "/missing.md")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = storage.GetDocumentByID(ctx, 42)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = storage.GetSection(ctx, 42)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = storage.ListAncestors(ctx, 42)
	assert.ErrorIs(t, err, ErrNotFound)

	assert.ErrorIs(t, storage.DeleteDocument(ctx, 42), ErrNotFound)
}

func TestReplaceTree(t *testing.T) {
	storage := setupTestDB(t)
	defer storage.Close()
	ctx := context.Background()

	specs := sampleSpecs()
	doc := storeSample(t, storage, "example.com", "/llms-full.txt", specs)
	assert.Greater(t, doc.ID, int64(0))
	assert.Equal(t, sha256.Sum256([]byte(types.Reconstruct(specs))), doc.ContentHash)
	assert.False(t, doc.UpdatedAt.IsZero())

	sections, err := storage.ListSections(ctx, doc.ID)
	require.NoError(t, err)
	require.Len(t, sections, 4)

	assert.Nil(t, sections[0].ParentID)
	assert.Nil(t, sections[0].Heading)
	assert.Equal(t, sections[0].ID, *sections[1].ParentID)
	assert.Equal(t, sections[0].ID, *sections[2].ParentID)
	assert.Equal(t, sections[2].ID, *sections[3].ParentID)
	assert.Equal(t, "Environment", sections[3].HeadingText())
	assert.Equal(t, 5, sections[3].TokenCount)

	var text string
	for i, s := range sections {
		assert.Equal(t, i, s.Position)
		assert.Equal(t, doc.ID, s.DocumentID)
		text += s.Text()
	}
	assert.Equal(t, types.Reconstruct(specs), text)
}

func TestReplaceTree_ReplacesWholeTree(t *testing.T) {
	storage := setupTestDB(t)
	defer storage.Close()
	ctx := context.Background()

	first := storeSample(t, storage, "example.com", "/llms.txt", sampleSpecs())

	replacement := []types.SectionSpec{
		{Parent: types.NoParent, Level: 0, Content: "Completely rewritten handbook.\n", Position: 0, Tokens: 3},
	}
	second := storeSample(t, storage, "example.com", "/llms.txt", replacement)
	assert.Equal(t, first.ID, second.ID)
	assert.True(t, first.CreatedAt.Equal(second.CreatedAt))

	sections, err := storage.ListSections(ctx, second.ID)
	require.NoError(t, err)
	require.Len(t, sections, 1)
	assert.Equal(t, "Completely rewritten handbook.\n", sections[0].Content)

	// The search index follows the replacement
	stale, err := storage.SearchText(ctx, TextQuery{Domain: "example.com", Query: "yaml"})
	require.NoError(t, err)
	assert.Empty(t, stale)

	fresh, err := storage.SearchText(ctx, TextQuery{Domain: "example.com", Query: "handbook"})
	require.NoError(t, err)
	assert.Len(t, fresh, 1)
}

func TestReplaceTree_InvalidTreeLeavesPriorTree(t *testing.T) {
	storage := setupTestDB(t)
	defer storage.Close()
	ctx := context.Background()

	doc := storeSample(t, storage, "example.com", "/llms.txt", sampleSpecs())

	bad := sampleSpecs()
	bad[1].Parent = 3
	err := storage.ReplaceTree(ctx, &Document{Domain: "example.com", Path: "/llms.txt", URL: doc.URL}, bad)
	assert.ErrorIs(t, err, ErrInvalidTree)

	sections, err := storage.ListSections(ctx, doc.ID)
	require.NoError(t, err)
	assert.Len(t, sections, 4)

	stored, err := storage.GetDocument(ctx, "example.com", "/llms.txt")
	require.NoError(t, err)
	assert.Equal(t, doc.ContentHash, stored.ContentHash)
}

func TestListSubtree(t *testing.T) {
	storage := setupTestDB(t)
	defer storage.Close()
	ctx := context.Background()

	doc := storeSample(t, storage, "example.com", "/llms.txt", sampleSpecs())

	subtree, err := storage.ListSubtree(ctx, doc.ID, "Configure")
	require.NoError(t, err)
	require.Len(t, subtree, 2)
	assert.Equal(t, "Configure", subtree[0].HeadingText())
	assert.Equal(t, "Environment", subtree[1].HeadingText())

	leaf, err := storage.ListSubtree(ctx, doc.ID, "Install")
	require.NoError(t, err)
	assert.Len(t, leaf, 1)

	none, err := storage.ListSubtree(ctx, doc.ID, "Missing")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestListAncestors(t *testing.T) {
	storage := setupTestDB(t)
	defer storage.Close()
	ctx := context.Background()

	doc := storeSample(t, storage, "example.com", "/llms.txt", sampleSpecs())
	sections, err := storage.ListSections(ctx, doc.ID)
	require.NoError(t, err)

	chain, err := storage.ListAncestors(ctx, sections[3].ID)
	require.NoError(t, err)
	require.Len(t, chain, 3)
	assert.Equal(t, sections[0].ID, chain[0].ID)
	assert.Equal(t, sections[2].ID, chain[1].ID)
	assert.Equal(t, sections[3].ID, chain[2].ID)

	root, err := storage.ListAncestors(ctx, sections[0].ID)
	require.NoError(t, err)
	assert.Len(t, root, 1)
}

func TestSearchText(t *testing.T) {
	storage := setupTestDB(t)
	defer storage.Close()
	ctx := context.Background()

	storeSample(t, storage, "example.com", "/llms.txt", sampleSpecs())
	storeSample(t, storage, "other.org", "/llms.txt", sampleSpecs())

	results, err := storage.SearchText(ctx, TextQuery{Domain: "example.com", Query: "yaml"})
	require.NoError(t, err)
	require.Len(t, results, 1)

	r := results[0]
	assert.Equal(t, "Configure", *r.Heading)
	assert.Equal(t, 1, r.Level)
	assert.Equal(t, "/llms.txt", r.Path)
	assert.Equal(t, "https://example.com/llms.txt", r.URL)
	assert.Contains(t, r.Snippet, "**YAML**")
	assert.Greater(t, r.Score, 0.0)
}

func TestSearchText_RankingAndLimit(t *testing.T) {
	storage := setupTestDB(t)
	defer storage.Close()
	ctx := context.Background()

	storeSample(t, storage, "example.com", "/llms.txt", sampleSpecs())

	results, err := storage.SearchText(ctx, TextQuery{Domain: "example.com", Query: "file"})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.GreaterOrEqual(t, results[0].Score, results[1].Score)

	limited, err := storage.SearchText(ctx, TextQuery{Domain: "example.com", Query: "file", Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	excluded, err := storage.SearchText(ctx, TextQuery{Domain: "example.com", Query: "file -yaml"})
	require.NoError(t, err)
	require.Len(t, excluded, 1)
	assert.Equal(t, "Environment", *excluded[0].Heading)
}

func TestSearchText_PathFilter(t *testing.T) {
	storage := setupTestDB(t)
	defer storage.Close()
	ctx := context.Background()

	storeSample(t, storage, "example.com", "/llms.txt", sampleSpecs())
	storeSample(t, storage, "example.com", "/guides/setup.md", sampleSpecs())

	all, err := storage.SearchText(ctx, TextQuery{Domain: "example.com", Query: "yaml"})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	guides, err := storage.SearchText(ctx, TextQuery{Domain: "example.com", Query: "yaml", Paths: []string{"/guides"}})
	require.NoError(t, err)
	require.Len(t, guides, 1)
	assert.Equal(t, "/guides/setup.md", guides[0].Path)

	both, err := storage.SearchText(ctx, TextQuery{
		Domain: "example.com", Query: "yaml", Paths: []string{"/guides", "/llms.txt"},
	})
	require.NoError(t, err)
	assert.Len(t, both, 2)
}

func TestSearchText_NoSearchableTerms(t *testing.T) {
	storage := setupTestDB(t)
	defer storage.Close()

	results, err := storage.SearchText(context.Background(), TextQuery{Domain: "example.com", Query: "-yaml ***"})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestBuildMatchQuery(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"hello world", `"hello" "world"`},
		{`"exact phrase" word`, `"exact phrase" "word"`},
		{"cats or dogs", `"cats" OR "dogs"`},
		{"a b or c", `("a" "b") OR "c"`},
		{"router -middleware", `("router") NOT "middleware"`},
		{`-"bad phrase" good`, `("good") NOT "bad phrase"`},
		{"NEAR(a b) AND *", `"NEAR(a" "b)" "AND"`},
		{`say "hi`, `"say" "hi"`},
		{`a"b`, `"a" "b"`},
		{"or foo", `"foo"`},
		{"-only", ""},
		{"   ", ""},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, BuildMatchQuery(tt.input))
		})
	}
}

func TestDeleteAndPrune(t *testing.T) {
	storage := setupTestDB(t)
	defer storage.Close()
	ctx := context.Background()

	index := storeSample(t, storage, "example.com", "/llms.txt", sampleSpecs())
	storeSample(t, storage, "example.com", "/a.md", sampleSpecs())
	storeSample(t, storage, "example.com", "/b.md", sampleSpecs())
	storeSample(t, storage, "other.org", "/llms.txt", sampleSpecs())

	domains, err := storage.ListDomains(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"example.com", "other.org"}, domains)

	pruned, err := storage.PruneDomain(ctx, "example.com", []string{"/llms.txt", "/a.md"})
	require.NoError(t, err)
	assert.Equal(t, 1, pruned)

	docs, err := storage.ListDocuments(ctx, "example.com")
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "/a.md", docs[0].Path)
	assert.Equal(t, "/llms.txt", docs[1].Path)

	require.NoError(t, storage.DeleteDocument(ctx, index.ID))
	sections, err := storage.ListSections(ctx, index.ID)
	require.NoError(t, err)
	assert.Empty(t, sections)

	deleted, err := storage.DeleteDocumentsByDomain(ctx, "example.com")
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)

	// Cascaded deletes also leave the search index
	results, err := storage.SearchText(ctx, TextQuery{Domain: "example.com", Query: "yaml"})
	require.NoError(t, err)
	assert.Empty(t, results)

	other, err := storage.SearchText(ctx, TextQuery{Domain: "other.org", Query: "yaml"})
	require.NoError(t, err)
	assert.Len(t, other, 1)
}

func TestGetStatus(t *testing.T) {
	storage := setupTestDB(t)
	defer storage.Close()
	ctx := context.Background()

	storeSample(t, storage, "example.com", "/llms.txt", sampleSpecs())
	storeSample(t, storage, "other.org", "/llms.txt", sampleSpecs())

	status, err := storage.GetStatus(ctx, "example.com")
	require.NoError(t, err)
	assert.Equal(t, "example.com", status.Domain)
	assert.Equal(t, 1, status.Documents)
	assert.Equal(t, 4, status.Sections)
	assert.Equal(t, 22, status.Tokens)
	assert.False(t, status.LastUpdatedAt.IsZero())
	assert.Greater(t, status.IndexSizeMB, 0.0)
	assert.Nil(t, status.LastRun)

	all, err := storage.GetStatus(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 2, all.Documents)
	assert.Equal(t, 8, all.Sections)

	empty, err := storage.GetStatus(ctx, "nobody.dev")
	require.NoError(t, err)
	assert.Equal(t, 0, empty.Documents)
	assert.True(t, empty.LastUpdatedAt.IsZero())
}

func TestIngestRuns(t *testing.T) {
	storage := setupTestDB(t)
	defer storage.Close()
	ctx := context.Background()

	_, err := storage.LatestIngestRun(ctx, "example.com")
	assert.ErrorIs(t, err, ErrNotFound)

	start := time.Now().Add(-time.Minute)
	first := &IngestRun{Domain: "example.com", Inserted: 3, StartedAt: start, FinishedAt: start.Add(time.Second)}
	require.NoError(t, storage.RecordIngestRun(ctx, first))
	assert.Greater(t, first.ID, int64(0))

	msg := "fetch failed"
	second := &IngestRun{Domain: "example.com", Skipped: 3, Failed: 1, Error: &msg,
		StartedAt: start.Add(10 * time.Second), FinishedAt: start.Add(20 * time.Second)}
	require.NoError(t, storage.RecordIngestRun(ctx, second))

	latest, err := storage.LatestIngestRun(ctx, "example.com")
	require.NoError(t, err)
	assert.Equal(t, second.ID, latest.ID)
	assert.Equal(t, 1, latest.Failed)
	require.NotNil(t, latest.Error)
	assert.Equal(t, msg, *latest.Error)

	status, err := storage.GetStatus(ctx, "example.com")
	require.NoError(t, err)
	require.NotNil(t, status.LastRun)
	assert.Equal(t, second.ID, status.LastRun.ID)
}
