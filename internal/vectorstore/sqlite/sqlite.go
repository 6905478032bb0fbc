// Package sqlite persists the vector index in a single SQLite file and
// answers searches with a brute-force cosine scan.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"

	_ "modernc.org/sqlite" // SQLite driver

	"ragchat/internal/domain"
	"ragchat/internal/vectorstore"
)

const schema = `
CREATE TABLE IF NOT EXISTS meta (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS chunks (
	seq         INTEGER PRIMARY KEY AUTOINCREMENT,
	chunk_id    TEXT NOT NULL UNIQUE,
	document_id TEXT NOT NULL,
	idx         INTEGER NOT NULL,
	text        TEXT NOT NULL,
	source      TEXT NOT NULL,
	source_type TEXT NOT NULL,
	page        INTEGER NOT NULL DEFAULT 0,
	vector      BLOB NOT NULL
);
`

// Storage is a vectorstore.Storage backed by SQLite.
type Storage struct {
	db        *sql.DB
	path      string
	dimension int
}

var _ vectorstore.Storage = (*Storage)(nil)

// Open creates or opens the index database at path.
func Open(path string) (*Storage, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating index directory: %w", err)
	}
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening index: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating index schema: %w", err)
	}
	s := &Storage{db: db, path: path}
	dim, err := s.storedDimension(context.Background())
	if err != nil {
		db.Close()
		return nil, err
	}
	s.dimension = dim
	return s, nil
}

// Path returns the database file path.
func (s *Storage) Path() string { return s.path }

// Dimension returns the vector dimension recorded in the database, 0 if none.
func (s *Storage) Dimension() int { return s.dimension }

func (s *Storage) Init(ctx context.Context, dimension int) error {
	if dimension <= 0 {
		return errors.New("invalid dimension")
	}
	if s.dimension == dimension {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks`); err != nil {
		return fmt.Errorf("dropping stale vectors: %w", err)
	}
	if err := setDimension(ctx, tx, dimension); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	s.dimension = dimension
	return nil
}

func (s *Storage) Upsert(ctx context.Context, chunks []domain.Chunk, vectors [][]float64) error {
	if err := validate(s.dimension, chunks, vectors); err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := insertChunks(ctx, tx, chunks, vectors); err != nil {
		return err
	}
	return tx.Commit()
}

// Replace rewrites the table and the recorded dimension in one transaction.
func (s *Storage) Replace(ctx context.Context, dimension int, chunks []domain.Chunk, vectors [][]float64) error {
	if dimension <= 0 {
		return errors.New("invalid dimension")
	}
	if err := validate(dimension, chunks, vectors); err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks`); err != nil {
		return fmt.Errorf("clearing chunks: %w", err)
	}
	if err := setDimension(ctx, tx, dimension); err != nil {
		return err
	}
	if err := insertChunks(ctx, tx, chunks, vectors); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	s.dimension = dimension
	return nil
}

func (s *Storage) DeleteSource(ctx context.Context, source string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM chunks WHERE source = ?`, source)
	return err
}

func (s *Storage) Search(ctx context.Context, vector []float64, topK int) ([]domain.SearchResult, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT chunk_id, document_id, idx, text, source, source_type, page, vector
		FROM chunks ORDER BY seq`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chunks []domain.Chunk
	var scores []float64
	for rows.Next() {
		var ch domain.Chunk
		var kind string
		var blob []byte
		if err := rows.Scan(&ch.ChunkID, &ch.DocumentID, &ch.Index, &ch.Text, &ch.Source, &kind, &ch.Page, &blob); err != nil {
			return nil, err
		}
		ch.SourceType = domain.SourceKind(kind)
		chunks = append(chunks, ch)
		scores = append(scores, vectorstore.Cosine(decodeVector(blob), vector))
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	idxs := vectorstore.TopK(scores, topK)
	out := make([]domain.SearchResult, 0, len(idxs))
	for _, j := range idxs {
		out = append(out, domain.SearchResult{Chunk: chunks[j], Score: scores[j]})
	}
	return out, nil
}

func (s *Storage) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks`).Scan(&n)
	return n, err
}

func (s *Storage) Chunks(ctx context.Context) ([]domain.Chunk, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT chunk_id, document_id, idx, text, source, source_type, page
		FROM chunks ORDER BY seq`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.Chunk
	for rows.Next() {
		var ch domain.Chunk
		var kind string
		if err := rows.Scan(&ch.ChunkID, &ch.DocumentID, &ch.Index, &ch.Text, &ch.Source, &kind, &ch.Page); err != nil {
			return nil, err
		}
		ch.SourceType = domain.SourceKind(kind)
		out = append(out, ch)
	}
	return out, rows.Err()
}

// Close closes the database connection.
func (s *Storage) Close() error {
	return s.db.Close()
}

func (s *Storage) storedDimension(ctx context.Context) (int, error) {
	var v string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = 'dimension'`).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("reading dimension: %w", err)
	}
	return strconv.Atoi(v)
}

func setDimension(ctx context.Context, tx *sql.Tx, dimension int) error {
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO meta(key, value) VALUES('dimension', ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`, strconv.Itoa(dimension)); err != nil {
		return fmt.Errorf("recording dimension: %w", err)
	}
	return nil
}

func validate(dimension int, chunks []domain.Chunk, vectors [][]float64) error {
	if len(chunks) != len(vectors) {
		return errors.New("chunks and vectors length mismatch")
	}
	for _, v := range vectors {
		if len(v) != dimension {
			return errors.New("vector dimension mismatch")
		}
	}
	return nil
}

func insertChunks(ctx context.Context, tx *sql.Tx, chunks []domain.Chunk, vectors [][]float64) error {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chunks(chunk_id, document_id, idx, text, source, source_type, page, vector)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(chunk_id) DO UPDATE SET
			document_id = excluded.document_id,
			idx = excluded.idx,
			text = excluded.text,
			source = excluded.source,
			source_type = excluded.source_type,
			page = excluded.page,
			vector = excluded.vector`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for i, ch := range chunks {
		if _, err := stmt.ExecContext(ctx, ch.ChunkID, ch.DocumentID, ch.Index, ch.Text,
			ch.Source, string(ch.SourceType), ch.Page, encodeVector(vectors[i])); err != nil {
			return fmt.Errorf("upserting chunk %s: %w", ch.ChunkID, err)
		}
	}
	return nil
}

// Vectors are stored as little-endian float32 to halve the file size.
func encodeVector(v []float64) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(float32(f)))
	}
	return buf
}

func decodeVector(data []byte) []float64 {
	out := make([]float64, len(data)/4)
	for i := range out {
		out[i] = float64(math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:])))
	}
	return out
}
