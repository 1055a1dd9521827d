// Package sqlite is the persistent on-disk index: one SQLite database per
// index directory, vectors stored as little-endian float32 blobs and searched
// by brute-force cosine similarity.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite" // SQLite driver

	"ragchat/internal/domain"
	"ragchat/internal/vectorstore"
)

var (
	_ vectorstore.Storage = (*Storage)(nil)
	_ vectorstore.Binder  = (*Storage)(nil)
)

// FileName is the database file created inside the index directory.
const FileName = "index.db"

// existsBatch bounds the number of bind parameters per IN query.
const existsBatch = 500

const schema = `
CREATE TABLE IF NOT EXISTS chunks (
	id             TEXT PRIMARY KEY,
	content        TEXT NOT NULL,
	source         TEXT NOT NULL DEFAULT '',
	page           INTEGER NOT NULL DEFAULT 0,
	display_source TEXT NOT NULL DEFAULT '',
	dimension      INTEGER NOT NULL,
	embedding      BLOB NOT NULL,
	created_at     DATETIME DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_chunks_source ON chunks(source, page);

CREATE TABLE IF NOT EXISTS index_meta (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`

// Storage implements vectorstore.Storage on SQLite.
type Storage struct {
	db     *sql.DB
	path   string
	logger *slog.Logger
}

// Open opens (creating if needed) the index stored under dir.
func Open(dir string, logger *slog.Logger) (*Storage, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create index directory %s: %w", dir, err)
	}
	path := filepath.Join(dir, FileName)

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open index %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate index %s: %w", path, err)
	}
	logger.Debug("index opened", "path", path)
	return &Storage{db: db, path: path, logger: logger}, nil
}

// Path returns the database file path.
func (s *Storage) Path() string { return s.path }

func (s *Storage) Close() error { return s.db.Close() }

func (s *Storage) Bind(ctx context.Context, embedder string) error {
	var stored string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM index_meta WHERE key = 'embedder'`).Scan(&stored)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		_, err = s.db.ExecContext(ctx, `INSERT INTO index_meta (key, value) VALUES ('embedder', ?)`, embedder)
		if err != nil {
			return fmt.Errorf("record embedder: %w", err)
		}
		return nil
	case err != nil:
		return fmt.Errorf("read embedder: %w", err)
	case stored != embedder:
		return &vectorstore.ErrEmbedderMismatch{Stored: stored, Requested: embedder}
	}
	return nil
}

func (s *Storage) IDs(ctx context.Context) (map[string]struct{}, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM chunks`)
	if err != nil {
		return nil, fmt.Errorf("list ids: %w", err)
	}
	defer rows.Close()
	out := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan id: %w", err)
		}
		out[id] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ids: %w", err)
	}
	return out, nil
}

func (s *Storage) Exists(ctx context.Context, ids []string) (map[string]struct{}, error) {
	out := make(map[string]struct{})
	for start := 0; start < len(ids); start += existsBatch {
		end := start + existsBatch
		if end > len(ids) {
			end = len(ids)
		}
		batch := ids[start:end]
		args := make([]any, len(batch))
		for i, id := range batch {
			args[i] = id
		}
		q := `SELECT id FROM chunks WHERE id IN (?` + strings.Repeat(",?", len(batch)-1) + `)`
		rows, err := s.db.QueryContext(ctx, q, args...)
		if err != nil {
			return nil, fmt.Errorf("check ids: %w", err)
		}
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return nil, fmt.Errorf("scan id: %w", err)
			}
			out[id] = struct{}{}
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, fmt.Errorf("iterate ids: %w", err)
		}
	}
	return out, nil
}

// Upsert writes the batch in one transaction; any failure rolls back all of it.
func (s *Storage) Upsert(ctx context.Context, entries []vectorstore.Entry) error {
	if len(entries) == 0 {
		return nil
	}
	dim, err := s.dimension(ctx)
	if err != nil {
		return err
	}
	if _, err := vectorstore.Validate(entries, dim); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin upsert: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO chunks (id, content, source, page, display_source, dimension, embedding)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
  content = excluded.content,
  source = excluded.source,
  page = excluded.page,
  display_source = excluded.display_source,
  dimension = excluded.dimension,
  embedding = excluded.embedding`)
	if err != nil {
		return fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, e := range entries {
		m := e.Chunk.Metadata
		if _, err := stmt.ExecContext(ctx, m.HashID, e.Chunk.Text, m.Source, m.Page, m.Display, len(e.Vector), encodeVector(e.Vector)); err != nil {
			return fmt.Errorf("upsert chunk %s: %w", m.HashID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit upsert: %w", err)
	}
	s.logger.Debug("chunks upserted", "count", len(entries), "path", s.path)
	return nil
}

// dimension returns the vector size already in the index, 0 when empty.
func (s *Storage) dimension(ctx context.Context) (int, error) {
	var dim sql.NullInt64
	if err := s.db.QueryRowContext(ctx, `SELECT dimension FROM chunks LIMIT 1`).Scan(&dim); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("read dimension: %w", err)
	}
	return int(dim.Int64), nil
}

func (s *Storage) Search(ctx context.Context, vector []float32, topK int) ([]domain.SearchResult, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, content, source, page, display_source, embedding FROM chunks`)
	if err != nil {
		return nil, fmt.Errorf("query chunks: %w", err)
	}
	defer rows.Close()

	var results []domain.SearchResult
	for rows.Next() {
		var (
			c    domain.Chunk
			blob []byte
		)
		if err := rows.Scan(&c.Metadata.HashID, &c.Text, &c.Metadata.Source, &c.Metadata.Page, &c.Metadata.Display, &blob); err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		vec := decodeVector(blob)
		if len(vec) != len(vector) {
			return nil, fmt.Errorf("%w: query has %d, index has %d", domain.ErrDimensionMismatch, len(vector), len(vec))
		}
		results = append(results, domain.SearchResult{Chunk: c, Score: vectorstore.Cosine(vec, vector)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chunks: %w", err)
	}
	return vectorstore.Rank(results, topK), nil
}

func (s *Storage) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count chunks: %w", err)
	}
	return n, nil
}

// Reset drops every chunk and the embedder binding.
func (s *Storage) Reset(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin reset: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()
	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks`); err != nil {
		return fmt.Errorf("clear chunks: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM index_meta`); err != nil {
		return fmt.Errorf("clear index meta: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit reset: %w", err)
	}
	s.logger.Info("index cleared", "path", s.path)
	return nil
}

func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, x := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(x))
	}
	return buf
}

func decodeVector(b []byte) []float32 {
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v
}
