package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/NguyenDuy1910/chatbot/internal/errors"
)

// CurrentSchemaVersion is the document store schema version.
const CurrentSchemaVersion = 1

const schemaSQL = `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER PRIMARY KEY
);

CREATE TABLE IF NOT EXISTS documents (
	id         TEXT PRIMARY KEY,
	text       TEXT NOT NULL,
	metadata   TEXT NOT NULL DEFAULT '{}',
	embedding  BLOB,
	version    INTEGER NOT NULL,
	deleted    INTEGER NOT NULL DEFAULT 0,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_documents_deleted ON documents(deleted);

CREATE TABLE IF NOT EXISTS state (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);

INSERT OR IGNORE INTO schema_version (version) VALUES (1);
INSERT OR IGNORE INTO state (key, value) VALUES ('generation', '1');
`

const documentColumns = `id, text, metadata, embedding, version, deleted, created_at, updated_at`

const upsertSQL = `
INSERT INTO documents (id, text, metadata, embedding, version, deleted, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, 0, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	text       = excluded.text,
	metadata   = excluded.metadata,
	embedding  = excluded.embedding,
	version    = excluded.version,
	created_at = CASE WHEN documents.deleted = 1 THEN excluded.created_at ELSE documents.created_at END,
	deleted    = 0,
	updated_at = excluded.updated_at`

// getManyChunk bounds the number of bound parameters per IN clause.
const getManyChunk = 500

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// SQLiteStore implements DocumentStore on a single SQLite file.
// All writes go through one connection, so each Put or Delete is a
// serializable read-check-write transaction.
type SQLiteStore struct {
	mu     sync.RWMutex
	db     *sql.DB
	path   string
	closed bool
	now    func() time.Time
}

var _ DocumentStore = (*SQLiteStore)(nil)

// NewSQLiteStore opens or creates the document store at path.
// An empty path opens a private in-memory database.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	dsn := ":memory:"
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, errors.New(errors.ErrCodeStorageUnavailable, "failed to create data directory", err).
				WithDetail("path", path)
		}
		dsn = path
	}

	db, err := openDatabase(dsn)
	if err != nil {
		return nil, errors.New(errors.ErrCodeStorageUnavailable, fmt.Sprintf("failed to open document store: %v", err), err).
			WithDetail("path", path)
	}

	s := &SQLiteStore{db: db, path: path, now: time.Now}
	if err := s.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, errors.New(errors.ErrCodeStorageUnavailable, fmt.Sprintf("failed to initialize schema: %v", err), err).
			WithDetail("path", path)
	}

	slog.Debug("document_store_opened",
		slog.String("path", path),
		slog.String("driver", DriverName),
		slog.String("build_mode", BuildMode))
	return s, nil
}

func openDatabase(dsn string) (*sql.DB, error) {
	db, err := sql.Open(DriverName, dsn)
	if err != nil {
		return nil, err
	}

	// Single connection: one writer, and in-memory databases stay shared.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA temp_store = MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to set pragma %q: %w", pragma, err)
		}
	}

	var check string
	if err := db.QueryRow("PRAGMA quick_check").Scan(&check); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("integrity check failed: %w", err)
	}
	if check != "ok" {
		_ = db.Close()
		return nil, fmt.Errorf("database corrupted: %s", check)
	}
	return db, nil
}

func (s *SQLiteStore) initSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, schemaSQL)
	return err
}

// Path returns the database file path, empty for in-memory stores.
func (s *SQLiteStore) Path() string {
	return s.path
}

// Put implements DocumentStore.
func (s *SQLiteStore) Put(ctx context.Context, req PutRequest) (int64, error) {
	if err := ValidateID(req.ID); err != nil {
		return 0, err
	}
	if len(req.Embedding) == 0 {
		return 0, errors.ValidationError("embedding is required", nil).WithDetail("id", req.ID)
	}
	meta, err := encodeMetadata(req.Metadata)
	if err != nil {
		return 0, errors.ValidationError(fmt.Sprintf("metadata is not JSON serializable: %v", err), err).
			WithDetail("id", req.ID)
	}

	var version int64
	err = s.withTx(ctx, "put", func(tx *sql.Tx) error {
		cur, _, err := currentVersion(ctx, tx, req.ID)
		if err != nil {
			return err
		}
		if req.ExpectedVersion != AnyVersion && cur != req.ExpectedVersion {
			return errors.StaleVersion(req.ID, req.ExpectedVersion, cur)
		}
		if err := checkDimensions(ctx, tx, len(req.Embedding)); err != nil {
			return err.WithDetail("id", req.ID)
		}

		version = cur + 1
		now := s.now().UnixNano()
		_, err = tx.ExecContext(ctx, upsertSQL,
			req.ID, req.Text, meta, encodeEmbedding(req.Embedding), version, now, now)
		return err
	})
	if err != nil {
		return 0, err
	}
	return version, nil
}

// Get implements DocumentStore.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*Document, error) {
	doc, err := s.Lookup(ctx, id)
	if err != nil {
		return nil, err
	}
	if doc == nil || doc.Deleted {
		return nil, errors.NotFound(id)
	}
	return doc, nil
}

// Lookup implements DocumentStore.
func (s *SQLiteStore) Lookup(ctx context.Context, id string) (*Document, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	row := s.db.QueryRowContext(ctx, `SELECT `+documentColumns+` FROM documents WHERE id = ?`, id)
	doc, err := scanDocument(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, storageError("lookup", err)
	}
	return doc, nil
}

// GetMany implements DocumentStore.
func (s *SQLiteStore) GetMany(ctx context.Context, ids []string) (map[string]*Document, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	out := make(map[string]*Document, len(ids))

	for start := 0; start < len(ids); start += getManyChunk {
		end := min(start+getManyChunk, len(ids))
		chunk := ids[start:end]

		args := make([]any, len(chunk))
		for i, id := range chunk {
			args[i] = id
		}
		query := `SELECT ` + documentColumns + ` FROM documents WHERE deleted = 0 AND id IN (` +
			placeholders(len(chunk)) + `)`

		if err := s.scanInto(ctx, query, args, func(d *Document) { out[d.ID] = d }); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Delete implements DocumentStore.
func (s *SQLiteStore) Delete(ctx context.Context, id string) (int64, error) {
	var version int64
	err := s.withTx(ctx, "delete", func(tx *sql.Tx) error {
		cur, deleted, err := currentVersion(ctx, tx, id)
		if err != nil {
			return err
		}
		if cur == 0 || deleted {
			return errors.NotFound(id)
		}
		version = cur + 1
		_, err = tx.ExecContext(ctx,
			`UPDATE documents SET deleted = 1, version = ?, updated_at = ? WHERE id = ?`,
			version, s.now().UnixNano(), id)
		return err
	})
	if err != nil {
		return 0, err
	}
	return version, nil
}

// Exists implements DocumentStore.
func (s *SQLiteStore) Exists(ctx context.Context, id string) (bool, error) {
	if err := s.checkOpen(); err != nil {
		return false, err
	}
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM documents WHERE id = ? AND deleted = 0`, id).Scan(&n)
	if err != nil {
		return false, storageError("exists", err)
	}
	return n > 0, nil
}

// Restore implements DocumentStore.
func (s *SQLiteStore) Restore(ctx context.Context, id string, prior *Document) error {
	return s.withTx(ctx, "restore", func(tx *sql.Tx) error {
		if prior == nil {
			_, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id)
			return err
		}
		meta, err := encodeMetadata(prior.Metadata)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO documents (`+documentColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			id, prior.Text, meta, encodeEmbedding(prior.Embedding), prior.Version,
			boolToInt(prior.Deleted), prior.CreatedAt.UnixNano(), prior.UpdatedAt.UnixNano())
		return err
	})
}

// Purge implements DocumentStore.
func (s *SQLiteStore) Purge(ctx context.Context, id string, version int64) (bool, error) {
	if err := s.checkOpen(); err != nil {
		return false, err
	}
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM documents WHERE id = ? AND deleted = 1 AND version = ?`, id, version)
	if err != nil {
		return false, storageError("purge", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, storageError("purge", err)
	}
	return n > 0, nil
}

// LiveIDs implements DocumentStore.
func (s *SQLiteStore) LiveIDs(ctx context.Context) ([]string, error) {
	return s.ids(ctx, `SELECT id FROM documents WHERE deleted = 0 ORDER BY id`)
}

// TombstonedIDs implements DocumentStore.
func (s *SQLiteStore) TombstonedIDs(ctx context.Context) ([]string, error) {
	return s.ids(ctx, `SELECT id FROM documents WHERE deleted = 1 ORDER BY id`)
}

// Counts implements DocumentStore.
func (s *SQLiteStore) Counts(ctx context.Context) (Counts, error) {
	if err := s.checkOpen(); err != nil {
		return Counts{}, err
	}
	var c Counts
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(CASE WHEN deleted = 0 THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN deleted = 1 THEN 1 ELSE 0 END), 0)
		FROM documents`).Scan(&c.Live, &c.Tombstoned)
	if err != nil {
		return Counts{}, storageError("counts", err)
	}
	return c, nil
}

// Query implements DocumentStore.
func (s *SQLiteStore) Query(ctx context.Context, q Query) ([]*Document, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	query, args, err := buildQuery(q)
	if err != nil {
		return nil, err
	}

	var out []*Document
	if err := s.scanInto(ctx, query, args, func(d *Document) { out = append(out, d) }); err != nil {
		return nil, err
	}
	return out, nil
}

// Reset implements DocumentStore.
func (s *SQLiteStore) Reset(ctx context.Context) error {
	return s.withTx(ctx, "reset", func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM documents`); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM state WHERE key IN (?, ?)`,
			StateKeyDimensions, StateKeyModel); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx,
			`UPDATE state SET value = CAST(CAST(value AS INTEGER) + 1 AS TEXT) WHERE key = ?`,
			StateKeyGeneration)
		return err
	})
}

// Dimensions implements DocumentStore. Zero means the generation has no
// embeddings yet.
func (s *SQLiteStore) Dimensions(ctx context.Context) (int, error) {
	v, err := s.GetState(ctx, StateKeyDimensions)
	if err != nil || v == "" {
		return 0, err
	}
	return strconv.Atoi(v)
}

// SetDimensions implements DocumentStore.
func (s *SQLiteStore) SetDimensions(ctx context.Context, dims int) error {
	return s.SetState(ctx, StateKeyDimensions, strconv.Itoa(dims))
}

// Generation implements DocumentStore.
func (s *SQLiteStore) Generation(ctx context.Context) (int64, error) {
	v, err := s.GetState(ctx, StateKeyGeneration)
	if err != nil || v == "" {
		return 0, err
	}
	return strconv.ParseInt(v, 10, 64)
}

// GetState implements DocumentStore. Missing keys read as "".
func (s *SQLiteStore) GetState(ctx context.Context, key string) (string, error) {
	if err := s.checkOpen(); err != nil {
		return "", err
	}
	var v string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM state WHERE key = ?`, key).Scan(&v)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", storageError("get state", err)
	}
	return v, nil
}

// SetState implements DocumentStore.
func (s *SQLiteStore) SetState(ctx context.Context, key, value string) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO state (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value)
	if err != nil {
		return storageError("set state", err)
	}
	return nil
}

// Close implements DocumentStore.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

func (s *SQLiteStore) checkOpen() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return errors.New(errors.ErrCodeStorageUnavailable, "document store is closed", nil)
	}
	return nil
}

// withTx runs fn in a transaction. Errors fn returns as *errors.ChatbotError
// pass through unchanged; anything else is reported as a storage failure.
func (s *SQLiteStore) withTx(ctx context.Context, op string, fn func(tx *sql.Tx) error) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storageError(op, err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return storageError(op, err)
	}
	if err := tx.Commit(); err != nil {
		return storageError(op, err)
	}
	return nil
}

func (s *SQLiteStore) ids(ctx context.Context, query string) ([]string, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, storageError("list ids", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, storageError("list ids", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, storageError("list ids", err)
	}
	return ids, nil
}

func (s *SQLiteStore) scanInto(ctx context.Context, query string, args []any, emit func(*Document)) error {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return storageError("query", err)
	}
	defer rows.Close()

	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return storageError("scan", err)
		}
		emit(d)
	}
	if err := rows.Err(); err != nil {
		return storageError("query", err)
	}
	return nil
}

// currentVersion returns the row version of id (0 when absent) and its
// tombstone flag.
func currentVersion(ctx context.Context, q querier, id string) (int64, bool, error) {
	var version, deleted int64
	err := q.QueryRowContext(ctx, `SELECT version, deleted FROM documents WHERE id = ?`, id).
		Scan(&version, &deleted)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return version, deleted == 1, nil
}

// checkDimensions pins the generation's dimension on its first embedding
// and rejects any other dimension afterwards.
func checkDimensions(ctx context.Context, q querier, dims int) *errors.ChatbotError {
	var v string
	err := q.QueryRowContext(ctx, `SELECT value FROM state WHERE key = ?`, StateKeyDimensions).Scan(&v)
	switch {
	case err == sql.ErrNoRows:
		if _, err := q.ExecContext(ctx, `INSERT INTO state (key, value) VALUES (?, ?)`,
			StateKeyDimensions, strconv.Itoa(dims)); err != nil {
			return errors.New(errors.ErrCodeStorageUnavailable, "failed to record dimensions", err)
		}
		return nil
	case err != nil:
		return errors.New(errors.ErrCodeStorageUnavailable, "failed to read dimensions", err)
	}

	want, _ := strconv.Atoi(v)
	if want != 0 && want != dims {
		return DimensionMismatch(want, dims)
	}
	return nil
}

// DimensionMismatch reports an embedding of the wrong size for the current
// generation.
func DimensionMismatch(expected, got int) *errors.ChatbotError {
	return errors.New(errors.ErrCodeDimensionMismatch, "embedding dimension mismatch", nil).
		WithDetail("expected", strconv.Itoa(expected)).
		WithDetail("got", strconv.Itoa(got)).
		WithSuggestion("reset the index before switching embedding models")
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(r rowScanner) (*Document, error) {
	var (
		d                Document
		meta             string
		blob             []byte
		deleted          int64
		created, updated int64
	)
	if err := r.Scan(&d.ID, &d.Text, &meta, &blob, &d.Version, &deleted, &created, &updated); err != nil {
		return nil, err
	}
	var err error
	if d.Embedding, err = decodeEmbedding(blob); err != nil {
		return nil, err
	}
	if d.Metadata, err = decodeMetadata(meta); err != nil {
		return nil, err
	}
	d.Deleted = deleted == 1
	d.CreatedAt = time.Unix(0, created).UTC()
	d.UpdatedAt = time.Unix(0, updated).UTC()
	return &d, nil
}

func encodeMetadata(m map[string]any) (string, error) {
	if len(m) == 0 {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decodeMetadata(s string) (map[string]any, error) {
	if s == "" || s == "{}" {
		return nil, nil
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		return nil, fmt.Errorf("invalid metadata JSON: %w", err)
	}
	return m, nil
}

func storageError(op string, err error) error {
	if _, ok := errors.As(err); ok {
		return err
	}
	return errors.New(errors.ErrCodeStorageUnavailable, fmt.Sprintf("document store %s failed: %v", op, err), err)
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
