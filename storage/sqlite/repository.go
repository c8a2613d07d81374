// Package sqlite implements storage.RecordRepository on a single SQLite table.
//
// The layout matches the knowledge table used by earlier deployments of the
// assistant, so existing databases can be opened directly:
//
//	CREATE TABLE knowledge (id TEXT PRIMARY KEY, content TEXT, metadata TEXT)
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/jmoiron/sqlx"
	"github.com/poiesic/askit/core"
	"github.com/poiesic/askit/storage"
	_ "modernc.org/sqlite" // register pure-Go SQLite driver
)

const schema = `
CREATE TABLE IF NOT EXISTS knowledge (
	id TEXT PRIMARY KEY,
	content TEXT,
	metadata TEXT
);`

// row is the scan target for the knowledge table.
type row struct {
	Id       string         `db:"id"`
	Content  sql.NullString `db:"content"`
	Metadata sql.NullString `db:"metadata"`
}

func (r row) toRecord() *core.Record {
	return &core.Record{
		Id:       r.Id,
		Content:  r.Content.String,
		Metadata: r.Metadata.String,
	}
}

// RecordRepository implements storage.RecordRepository for SQLite.
type RecordRepository struct {
	db     *sqlx.DB
	logger *slog.Logger
	closed atomic.Bool
}

var _ storage.RecordRepository = (*RecordRepository)(nil)

// NewRepository opens (or creates) the SQLite database at path.
// Use ":memory:" for a throwaway database.
func NewRepository(path string) (storage.RecordRepository, error) {
	return Open(path, nil)
}

// Open opens the database at path with the given logger. A nil logger uses
// slog.Default().
func Open(path string, logger *slog.Logger) (*RecordRepository, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sqlx.Connect("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// A single connection keeps ":memory:" databases shared across calls
	// and serializes writers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	return &RecordRepository{
		db:     db,
		logger: logger.With("component", "sqlite"),
	}, nil
}

// Close closes the database.
func (r *RecordRepository) Close() error {
	if r.closed.Swap(true) {
		return nil
	}
	return r.db.Close()
}

// AddRecords inserts records, ignoring ids that already exist.
func (r *RecordRepository) AddRecords(ctx context.Context, records ...*core.Record) (int, error) {
	if r.closed.Load() {
		return 0, storage.ErrStorageClosed
	}
	for _, record := range records {
		if err := core.ValidateRecord(record); err != nil {
			return 0, err
		}
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	stmt, err := tx.PreparexContext(ctx, `INSERT OR IGNORE INTO knowledge (id, content, metadata) VALUES (?, ?, ?)`)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	inserted := 0
	for _, record := range records {
		res, err := stmt.ExecContext(ctx, record.Id, record.Content, record.Metadata)
		if err != nil {
			return 0, fmt.Errorf("insert %s: %w", record.Id, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, err
		}
		inserted += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit records: %w", err)
	}
	r.logger.Debug("records added", "requested", len(records), "inserted", inserted)
	return inserted, nil
}

// GetRecord retrieves a single record by id.
func (r *RecordRepository) GetRecord(ctx context.Context, id string) (*core.Record, error) {
	if r.closed.Load() {
		return nil, storage.ErrStorageClosed
	}
	var result row
	err := r.db.GetContext(ctx, &result, `SELECT id, content, metadata FROM knowledge WHERE id = ?`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, err
	}
	return result.toRecord(), nil
}

// GetRecords retrieves the existing records among ids, in the order requested.
func (r *RecordRepository) GetRecords(ctx context.Context, ids ...string) ([]*core.Record, error) {
	if r.closed.Load() {
		return nil, storage.ErrStorageClosed
	}
	if len(ids) == 0 {
		return nil, nil
	}

	query, args, err := sqlx.In(`SELECT id, content, metadata FROM knowledge WHERE id IN (?)`, ids)
	if err != nil {
		return nil, err
	}

	var rows []row
	if err := r.db.SelectContext(ctx, &rows, r.db.Rebind(query), args...); err != nil {
		return nil, err
	}

	byID := make(map[string]*core.Record, len(rows))
	for _, found := range rows {
		byID[found.Id] = found.toRecord()
	}

	var result []*core.Record
	for _, id := range ids {
		if record, ok := byID[id]; ok {
			result = append(result, record)
		}
	}
	return result, nil
}

// GetAllRecords retrieves every record ordered by id.
func (r *RecordRepository) GetAllRecords(ctx context.Context) ([]*core.Record, error) {
	if r.closed.Load() {
		return nil, storage.ErrStorageClosed
	}
	var rows []row
	if err := r.db.SelectContext(ctx, &rows, `SELECT id, content, metadata FROM knowledge ORDER BY id`); err != nil {
		return nil, err
	}
	result := make([]*core.Record, len(rows))
	for i, found := range rows {
		result[i] = found.toRecord()
	}
	return result, nil
}

// CountRecords returns the number of rows in the knowledge table.
func (r *RecordRepository) CountRecords(ctx context.Context) (int, error) {
	if r.closed.Load() {
		return 0, storage.ErrStorageClosed
	}
	var count int
	if err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM knowledge`); err != nil {
		return 0, err
	}
	return count, nil
}
