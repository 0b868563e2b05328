package storage

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("not found")

// Store wraps the SQLite database holding the policy index.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) a SQLite database in dataDir and runs pending migrations.
// Pass ":memory:" as dataDir for an in-memory database (used by tests).
func Open(dataDir string) (*Store, error) {
	var dsn string
	if dataDir == ":memory:" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		dsn = filepath.Join(dataDir, "claimcheck.db")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	// A single connection keeps ":memory:" databases shared and avoids
	// "database is locked" errors.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting journal mode: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// DB exposes the underlying handle for the vector index.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		version, err := parseMigrationVersion(entry.Name())
		if err != nil {
			return err
		}

		var exists int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM schema_version WHERE version = ?", version).Scan(&exists); err != nil {
			return fmt.Errorf("checking migration %d: %w", version, err)
		}
		if exists > 0 {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", entry.Name(), err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("beginning transaction for migration %d: %w", version, err)
		}
		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("applying migration %d: %w", version, err)
		}
		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %d: %w", version, err)
		}
	}

	return nil
}

func parseMigrationVersion(filename string) (int, error) {
	var version int
	if _, err := fmt.Sscanf(filename, "%d_", &version); err != nil {
		return 0, fmt.Errorf("parsing migration version from %q: %w", filename, err)
	}
	return version, nil
}

// AppliedMigrations returns applied migration versions in ascending order.
func (s *Store) AppliedMigrations() ([]int, error) {
	rows, err := s.db.Query("SELECT version FROM schema_version ORDER BY version ASC")
	if err != nil {
		return nil, fmt.Errorf("querying schema_version: %w", err)
	}
	defer rows.Close()

	var versions []int
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scanning version: %w", err)
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

// SaveDocument inserts or replaces the document row for (namespace, path).
func (s *Store) SaveDocument(doc PolicyDocument) error {
	indexedAt := doc.IndexedAt
	if indexedAt.IsZero() {
		indexedAt = time.Now().UTC()
	}
	_, err := s.db.Exec(`
		INSERT INTO policy_documents (id, namespace, path, content_hash, chunks, indexed_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(namespace, path) DO UPDATE SET
			id = excluded.id,
			content_hash = excluded.content_hash,
			chunks = excluded.chunks,
			indexed_at = excluded.indexed_at`,
		doc.ID, doc.Namespace, doc.Path, doc.ContentHash, doc.Chunks, indexedAt.Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("saving document %s: %w", doc.Path, err)
	}
	return nil
}

// GetDocument returns the document indexed from path in namespace.
func (s *Store) GetDocument(namespace, path string) (PolicyDocument, error) {
	row := s.db.QueryRow(`
		SELECT id, namespace, path, content_hash, chunks, indexed_at
		FROM policy_documents WHERE namespace = ? AND path = ?`, namespace, path)
	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return PolicyDocument{}, ErrNotFound
	}
	return doc, err
}

// ListDocuments returns the documents of a namespace ordered by path.
func (s *Store) ListDocuments(namespace string) ([]PolicyDocument, error) {
	rows, err := s.db.Query(`
		SELECT id, namespace, path, content_hash, chunks, indexed_at
		FROM policy_documents WHERE namespace = ? ORDER BY path ASC`, namespace)
	if err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}
	defer rows.Close()

	var docs []PolicyDocument
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// DeleteDocument removes a document row and every passage indexed from it.
func (s *Store) DeleteDocument(id string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning delete transaction: %w", err)
	}
	if _, err := tx.Exec("DELETE FROM policy_passages WHERE document_id = ?", id); err != nil {
		tx.Rollback()
		return fmt.Errorf("deleting passages of %s: %w", id, err)
	}
	res, err := tx.Exec("DELETE FROM policy_documents WHERE id = ?", id)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("deleting document %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		tx.Rollback()
		return ErrNotFound
	}
	return tx.Commit()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(r rowScanner) (PolicyDocument, error) {
	var doc PolicyDocument
	var indexedAt string
	if err := r.Scan(&doc.ID, &doc.Namespace, &doc.Path, &doc.ContentHash, &doc.Chunks, &indexedAt); err != nil {
		return PolicyDocument{}, err
	}
	t, err := time.Parse(time.RFC3339, indexedAt)
	if err != nil {
		return PolicyDocument{}, fmt.Errorf("parsing indexed_at for %s: %w", doc.ID, err)
	}
	doc.IndexedAt = t
	return doc, nil
}
