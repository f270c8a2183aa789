package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dshills/tome/pkg/types"
)

var (
	// ErrNotFound is returned when a requested entity doesn't exist
	ErrNotFound = errors.New("not found")
	// ErrInvalidTree is returned when ReplaceTree is given a malformed tree
	ErrInvalidTree = errors.New("invalid section tree")
)

// maxOpenConns bounds the pool for file databases. Readers run in parallel
// under WAL; writers queue on SQLite's lock with a busy timeout.
const maxOpenConns = 8

// SQLiteStorage implements the Storage interface using SQLite
type SQLiteStorage struct {
	db *sql.DB
}

// openDatabase opens a SQLite database with appropriate settings
func openDatabase(dbPath string) (*sql.DB, error) {
	db, err := sql.Open(DriverName, connectionString(dbPath))
	if err != nil {
		return nil, err
	}

	if dbPath == ":memory:" {
		// Every connection to :memory: is a separate database
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	} else {
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
		db.SetMaxOpenConns(maxOpenConns)
		db.SetMaxIdleConns(maxOpenConns)
	}
	db.SetConnMaxLifetime(0)

	var fk int
	if err := db.QueryRow("PRAGMA foreign_keys").Scan(&fk); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to read foreign_keys pragma: %w", err)
	}
	if fk != 1 {
		_ = db.Close()
		return nil, errors.New("failed to enable foreign keys")
	}

	return db, nil
}

// NewSQLiteStorage creates a new SQLite storage instance
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	db, err := openDatabase(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := ApplyMigrations(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

// Close closes the database connection
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// querier is an interface that both *sql.DB and *sql.Tx implement
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// scanner is implemented by *sql.Row and *sql.Rows
type scanner interface {
	Scan(dest ...interface{}) error
}

// Document operations

const documentColumns = `id, domain, url, path, content_hash, created_at, updated_at`

func scanDocument(row scanner) (*Document, error) {
	var doc Document
	var hash []byte
	err := row.Scan(&doc.ID, &doc.Domain, &doc.URL, &doc.Path, &hash, &doc.CreatedAt, &doc.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	copy(doc.ContentHash[:], hash)
	return &doc, nil
}

// hashValue stores a zero hash as NULL
func hashValue(hash [32]byte) interface{} {
	if hash == ([32]byte{}) {
		return nil
	}
	return hash[:]
}

func (s *SQLiteStorage) getDocumentWithQuerier(ctx context.Context, q querier, domain, path string) (*Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents WHERE domain = ? AND path = ?`
	return scanDocument(q.QueryRowContext(ctx, query, domain, path))
}

func (s *SQLiteStorage) GetDocument(ctx context.Context, domain, path string) (*Document, error) {
	return s.getDocumentWithQuerier(ctx, s.db, domain, path)
}

func (s *SQLiteStorage) getDocumentByIDWithQuerier(ctx context.Context, q querier, documentID int64) (*Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents WHERE id = ?`
	return scanDocument(q.QueryRowContext(ctx, query, documentID))
}

func (s *SQLiteStorage) GetDocumentByID(ctx context.Context, documentID int64) (*Document, error) {
	return s.getDocumentByIDWithQuerier(ctx, s.db, documentID)
}

// CreateOrGetDocument returns the document for (domain, path), creating an
// empty one if needed. An existing document is returned unchanged.
func (s *SQLiteStorage) CreateOrGetDocument(ctx context.Context, domain, path, url string) (*Document, error) {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO documents (domain, url, path, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(domain, path) DO NOTHING
	`, domain, url, path, now, now)
	if err != nil {
		return nil, fmt.Errorf("failed to create document: %w", err)
	}
	return s.GetDocument(ctx, domain, path)
}

func (s *SQLiteStorage) ListDocuments(ctx context.Context, domain string) ([]*Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents WHERE domain = ? ORDER BY path`
	rows, err := s.db.QueryContext(ctx, query, domain)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer func() { _ = rows.Close() }()

	docs := make([]*Document, 0)
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

func (s *SQLiteStorage) ListDomains(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT domain FROM documents ORDER BY domain`)
	if err != nil {
		return nil, fmt.Errorf("failed to list domains: %w", err)
	}
	defer func() { _ = rows.Close() }()

	domains := make([]string, 0)
	for rows.Next() {
		var domain string
		if err := rows.Scan(&domain); err != nil {
			return nil, err
		}
		domains = append(domains, domain)
	}
	return domains, rows.Err()
}

func (s *SQLiteStorage) DeleteDocument(ctx context.Context, documentID int64) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, documentID)
	if err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStorage) DeleteDocumentsByDomain(ctx context.Context, domain string) (int, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE domain = ?`, domain)
	if err != nil {
		return 0, fmt.Errorf("failed to delete documents: %w", err)
	}
	n, err := result.RowsAffected()
	return int(n), err
}

// PruneDomain deletes every document of domain whose path is not in keepPaths
func (s *SQLiteStorage) PruneDomain(ctx context.Context, domain string, keepPaths []string) (int, error) {
	query := `DELETE FROM documents WHERE domain = ?`
	args := []interface{}{domain}
	if len(keepPaths) > 0 {
		placeholders := make([]string, len(keepPaths))
		for i, p := range keepPaths {
			placeholders[i] = "?"
			args = append(args, p)
		}
		query += ` AND path NOT IN (` + strings.Join(placeholders, ", ") + `)`
	}

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to prune documents: %w", err)
	}
	n, err := result.RowsAffected()
	return int(n), err
}

// Tree operations

// ReplaceTree stores specs as the complete section tree of doc, creating the
// document if needed. Old sections are deleted and the new ones inserted in
// position order inside one transaction, together with the document's new
// hash and URL; readers see either the old tree or the new one. On success
// doc is refreshed from the database.
func (s *SQLiteStorage) ReplaceTree(ctx context.Context, doc *Document, specs []types.SectionSpec) error {
	if err := types.ValidateTree(specs); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidTree, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()
	var documentID int64
	err = tx.QueryRowContext(ctx, `
		INSERT INTO documents (domain, url, path, content_hash, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(domain, path) DO UPDATE SET
			url = excluded.url,
			content_hash = excluded.content_hash,
			updated_at = excluded.updated_at
		RETURNING id
	`, doc.Domain, doc.URL, doc.Path, hashValue(doc.ContentHash), now, now).Scan(&documentID)
	if err != nil {
		return fmt.Errorf("failed to upsert document: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM sections WHERE document_id = ?`, documentID); err != nil {
		return fmt.Errorf("failed to delete sections: %w", err)
	}

	if err := insertSections(ctx, tx, documentID, specs, now); err != nil {
		return err
	}

	stored, err := s.getDocumentByIDWithQuerier(ctx, tx, documentID)
	if err != nil {
		return fmt.Errorf("failed to reload document: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	*doc = *stored
	return nil
}

// insertSections inserts specs in slice order, translating parent indexes
// into the row IDs assigned to earlier inserts.
func insertSections(ctx context.Context, tx *sql.Tx, documentID int64, specs []types.SectionSpec, now time.Time) error {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO sections (document_id, parent_id, heading, level, markup, content, position, token_count, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare section insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	ids := make([]int64, len(specs))
	for i, spec := range specs {
		var parentID sql.NullInt64
		if spec.Parent != types.NoParent {
			parentID = sql.NullInt64{Int64: ids[spec.Parent], Valid: true}
		}
		var heading sql.NullString
		if spec.Heading != nil {
			heading = sql.NullString{String: *spec.Heading, Valid: true}
		}

		result, err := stmt.ExecContext(ctx, documentID, parentID, heading, spec.Level,
			spec.Markup, spec.Content, spec.Position, spec.Tokens, now)
		if err != nil {
			return fmt.Errorf("failed to insert section %d: %w", spec.Position, err)
		}
		if ids[i], err = result.LastInsertId(); err != nil {
			return err
		}
	}
	return nil
}

const sectionColumns = `s.id, s.document_id, s.parent_id, s.heading, s.level, s.markup,
	s.content, s.position, s.token_count, s.created_at`

func scanSection(row scanner) (*Section, error) {
	var section Section
	var parentID sql.NullInt64
	var heading sql.NullString
	err := row.Scan(&section.ID, &section.DocumentID, &parentID, &heading, &section.Level,
		&section.Markup, &section.Content, &section.Position, &section.TokenCount, &section.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if parentID.Valid {
		section.ParentID = &parentID.Int64
	}
	if heading.Valid {
		section.Heading = &heading.String
	}
	return &section, nil
}

func collectSections(rows *sql.Rows) ([]*Section, error) {
	defer func() { _ = rows.Close() }()

	sections := make([]*Section, 0)
	for rows.Next() {
		section, err := scanSection(rows)
		if err != nil {
			return nil, err
		}
		sections = append(sections, section)
	}
	return sections, rows.Err()
}

// ListSections returns a document's sections in position order
func (s *SQLiteStorage) ListSections(ctx context.Context, documentID int64) ([]*Section, error) {
	query := `SELECT ` + sectionColumns + ` FROM sections s WHERE s.document_id = ? ORDER BY s.position`
	rows, err := s.db.QueryContext(ctx, query, documentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list sections: %w", err)
	}
	return collectSections(rows)
}

func (s *SQLiteStorage) GetSection(ctx context.Context, sectionID int64) (*Section, error) {
	query := `SELECT ` + sectionColumns + ` FROM sections s WHERE s.id = ?`
	return scanSection(s.db.QueryRowContext(ctx, query, sectionID))
}

// ListSubtree returns every section headed exactly by heading together with
// all of its descendants, in position order. Nested matches are returned
// once.
func (s *SQLiteStorage) ListSubtree(ctx context.Context, documentID int64, heading string) ([]*Section, error) {
	query := `
		WITH RECURSIVE subtree(id) AS (
			SELECT id FROM sections WHERE document_id = ? AND heading = ?
			UNION
			SELECT c.id FROM sections c JOIN subtree t ON c.parent_id = t.id
		)
		SELECT ` + sectionColumns + `
		FROM sections s
		WHERE s.id IN (SELECT id FROM subtree)
		ORDER BY s.position
	`
	rows, err := s.db.QueryContext(ctx, query, documentID, heading)
	if err != nil {
		return nil, fmt.Errorf("failed to list subtree: %w", err)
	}
	return collectSections(rows)
}

// ListAncestors returns the chain from the root down to the section,
// inclusive
func (s *SQLiteStorage) ListAncestors(ctx context.Context, sectionID int64) ([]*Section, error) {
	query := `
		WITH RECURSIVE chain(id, parent_id, depth) AS (
			SELECT id, parent_id, 0 FROM sections WHERE id = ?
			UNION ALL
			SELECT p.id, p.parent_id, c.depth + 1 FROM sections p JOIN chain c ON p.id = c.parent_id
		)
		SELECT ` + sectionColumns + `
		FROM sections s
		JOIN chain ON chain.id = s.id
		ORDER BY chain.depth DESC
	`
	rows, err := s.db.QueryContext(ctx, query, sectionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list ancestors: %w", err)
	}
	sections, err := collectSections(rows)
	if err != nil {
		return nil, err
	}
	if len(sections) == 0 {
		return nil, ErrNotFound
	}
	return sections, nil
}

// Status operations

// GetStatus reports counts for one domain, or for every domain when domain
// is empty
func (s *SQLiteStorage) GetStatus(ctx context.Context, domain string) (*DomainStatus, error) {
	status := &DomainStatus{Domain: domain}

	where := ``
	args := []interface{}{}
	if domain != "" {
		where = ` WHERE d.domain = ?`
		args = append(args, domain)
	}

	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents d`+where, args...).Scan(&status.Documents)
	if err != nil {
		return nil, fmt.Errorf("failed to count documents: %w", err)
	}

	err = s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(s.token_count), 0)
		FROM sections s JOIN documents d ON d.id = s.document_id`+where, args...,
	).Scan(&status.Sections, &status.Tokens)
	if err != nil {
		return nil, fmt.Errorf("failed to count sections: %w", err)
	}

	var updatedAt time.Time
	err = s.db.QueryRowContext(ctx,
		`SELECT d.updated_at FROM documents d`+where+` ORDER BY d.updated_at DESC LIMIT 1`, args...,
	).Scan(&updatedAt)
	switch {
	case err == nil:
		status.LastUpdatedAt = updatedAt
	case err != sql.ErrNoRows:
		return nil, fmt.Errorf("failed to read last update: %w", err)
	}

	// Calculate database size
	var pageCount, pageSize int
	if err := s.db.QueryRowContext(ctx, "PRAGMA page_count").Scan(&pageCount); err == nil {
		_ = s.db.QueryRowContext(ctx, "PRAGMA page_size").Scan(&pageSize)
		status.IndexSizeMB = float64(pageCount*pageSize) / (1024 * 1024)
	}

	if domain != "" {
		run, err := s.LatestIngestRun(ctx, domain)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return nil, err
		}
		status.LastRun = run
	}

	return status, nil
}

// RecordIngestRun appends a completed domain ingestion to the log
func (s *SQLiteStorage) RecordIngestRun(ctx context.Context, run *IngestRun) error {
	var runErr sql.NullString
	if run.Error != nil {
		runErr = sql.NullString{String: *run.Error, Valid: true}
	}
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO ingest_runs (domain, documents_inserted, documents_updated, documents_skipped,
			documents_failed, documents_pruned, error, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, run.Domain, run.Inserted, run.Updated, run.Skipped, run.Failed, run.Pruned, runErr,
		run.StartedAt.UTC(), run.FinishedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to record ingest run: %w", err)
	}
	run.ID, err = result.LastInsertId()
	return err
}

// LatestIngestRun returns the most recently finished run for domain
func (s *SQLiteStorage) LatestIngestRun(ctx context.Context, domain string) (*IngestRun, error) {
	var run IngestRun
	var runErr sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT id, domain, documents_inserted, documents_updated, documents_skipped,
		       documents_failed, documents_pruned, error, started_at, finished_at
		FROM ingest_runs
		WHERE domain = ?
		ORDER BY id DESC
		LIMIT 1
	`, domain).Scan(&run.ID, &run.Domain, &run.Inserted, &run.Updated, &run.Skipped,
		&run.Failed, &run.Pruned, &runErr, &run.StartedAt, &run.FinishedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read ingest run: %w", err)
	}
	if runErr.Valid {
		run.Error = &runErr.String
	}
	return &run, nil
}
