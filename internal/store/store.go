// Package store persists embedding rows in a relational table. The caller
// owns the database connection; this package never opens its own.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Object types indexed by the search subsystem.
const (
	ObjectTypeEntity = "entity"
	ObjectTypeEvent  = "event"
)

var (
	// ErrNilDB indicates a missing database connection.
	ErrNilDB = errors.New("database connection is nil")

	// ErrDimensionInvariant indicates a record whose vector length does
	// not equal its declared dimension.
	ErrDimensionInvariant = errors.New("vector length does not match vector_dim")
)

// Record is one embedding row: one indexed object under one model. Rows are
// superseded, never mutated; writing a record for an existing
// (object_type, object_id, model) key replaces the old row.
type Record struct {
	ID          string
	ObjectType  string
	ObjectID    string
	WorldID     string
	Vector      []float32
	VectorDim   int
	Model       string
	Metadata    map[string]string
	ContentHash string
	CreatedAt   time.Time
}

// Validate enforces the row invariant len(Vector) == VectorDim.
func (r Record) Validate() error {
	if len(r.Vector) != r.VectorDim {
		return fmt.Errorf("%w: %d != %d", ErrDimensionInvariant, len(r.Vector), r.VectorDim)
	}
	if r.ObjectType == "" || r.ObjectID == "" || r.Model == "" {
		return fmt.Errorf("object_type, object_id and model are required")
	}
	return nil
}

// Filter narrows reads, counts and deletes. Zero fields match everything.
type Filter struct {
	Model      string
	ObjectType string
	WorldID    string
}

const schema = `
CREATE TABLE IF NOT EXISTS embeddings (
	id           TEXT PRIMARY KEY,
	object_type  TEXT NOT NULL,
	object_id    TEXT NOT NULL,
	world_id     TEXT NOT NULL DEFAULT '',
	vector       BLOB NOT NULL,
	vector_dim   INTEGER NOT NULL,
	model        TEXT NOT NULL,
	metadata     TEXT NOT NULL DEFAULT '{}',
	content_hash TEXT NOT NULL,
	created_at   TIMESTAMP NOT NULL,
	UNIQUE(object_type, object_id, model)
);
CREATE INDEX IF NOT EXISTS idx_embeddings_model ON embeddings(model, object_type);
`

// Store wraps the embeddings table on a caller-supplied *sql.DB.
type Store struct {
	db *sql.DB
}

// New creates a Store and ensures the schema exists.
func New(db *sql.DB) (*Store, error) {
	if db == nil {
		return nil, ErrNilDB
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("ensuring schema: %w", err)
	}
	return &Store{db: db}, nil
}

// ReplaceBatch writes a batch of records in one transaction so concurrent
// readers observe all rows of the batch or none. Existing rows for the same
// (object_type, object_id, model) key are superseded.
func (s *Store) ReplaceBatch(ctx context.Context, recs []Record) error {
	if len(recs) == 0 {
		return nil
	}
	for _, r := range recs {
		if err := r.Validate(); err != nil {
			return fmt.Errorf("record %s/%s: %w", r.ObjectType, r.ObjectID, err)
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO embeddings
			(id, object_type, object_id, world_id, vector, vector_dim, model, metadata, content_hash, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range recs {
		meta, err := json.Marshal(r.Metadata)
		if err != nil {
			return fmt.Errorf("marshaling metadata for %s: %w", r.ObjectID, err)
		}
		createdAt := r.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now().UTC()
		}
		if _, err := stmt.ExecContext(ctx,
			r.ID, r.ObjectType, r.ObjectID, r.WorldID,
			EncodeVector(r.Vector), r.VectorDim, r.Model,
			string(meta), r.ContentHash, createdAt,
		); err != nil {
			return fmt.Errorf("inserting %s/%s: %w", r.ObjectType, r.ObjectID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing batch: %w", err)
	}
	return nil
}

// whereClause builds the WHERE fragment and args for a filter.
func whereClause(f Filter) (string, []any) {
	var conds []string
	var args []any
	if f.Model != "" {
		conds = append(conds, "model = ?")
		args = append(args, f.Model)
	}
	if f.ObjectType != "" {
		conds = append(conds, "object_type = ?")
		args = append(args, f.ObjectType)
	}
	if f.WorldID != "" {
		conds = append(conds, "world_id = ?")
		args = append(args, f.WorldID)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// List returns matching rows in insertion order. Insertion order is the
// stable tie-break for equal similarity scores downstream.
func (s *Store) List(ctx context.Context, f Filter) ([]Record, error) {
	where, args := whereClause(f)
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, object_type, object_id, world_id, vector, vector_dim, model, metadata, content_hash, created_at
		FROM embeddings`+where+` ORDER BY rowid`, args...)
	if err != nil {
		return nil, fmt.Errorf("querying embeddings: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var r Record
		var blob []byte
		var meta string
		if err := rows.Scan(&r.ID, &r.ObjectType, &r.ObjectID, &r.WorldID,
			&blob, &r.VectorDim, &r.Model, &meta, &r.ContentHash, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		if r.Vector, err = DecodeVector(blob); err != nil {
			return nil, fmt.Errorf("decoding vector for %s: %w", r.ID, err)
		}
		if err := json.Unmarshal([]byte(meta), &r.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshaling metadata for %s: %w", r.ID, err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating rows: %w", err)
	}
	return out, nil
}

// Count returns the number of matching rows.
func (s *Store) Count(ctx context.Context, f Filter) (int, error) {
	where, args := whereClause(f)
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM embeddings`+where, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting embeddings: %w", err)
	}
	return n, nil
}

// Delete removes matching rows immediately. There is no soft delete; a full
// index rebuild is the recovery path.
func (s *Store) Delete(ctx context.Context, f Filter) (int64, error) {
	where, args := whereClause(f)
	res, err := s.db.ExecContext(ctx, `DELETE FROM embeddings`+where, args...)
	if err != nil {
		return 0, fmt.Errorf("deleting embeddings: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("reading affected rows: %w", err)
	}
	return n, nil
}

// DeleteObject removes all rows for one domain object across models, used
// when the owning object is deleted.
func (s *Store) DeleteObject(ctx context.Context, objectType, objectID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM embeddings WHERE object_type = ? AND object_id = ?`, objectType, objectID)
	if err != nil {
		return fmt.Errorf("deleting object %s/%s: %w", objectType, objectID, err)
	}
	return nil
}

// ContentHashes returns object_id -> content_hash for matching rows, letting
// a rebuild skip unchanged objects without loading vectors.
func (s *Store) ContentHashes(ctx context.Context, f Filter) (map[string]string, error) {
	where, args := whereClause(f)
	rows, err := s.db.QueryContext(ctx,
		`SELECT object_id, content_hash FROM embeddings`+where, args...)
	if err != nil {
		return nil, fmt.Errorf("querying content hashes: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var id, hash string
		if err := rows.Scan(&id, &hash); err != nil {
			return nil, fmt.Errorf("scanning hash row: %w", err)
		}
		out[id] = hash
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating hash rows: %w", err)
	}
	return out, nil
}
