package storage

import (
	"context"

	"github.com/poiesic/askit/core"
)

// RecordRepository provides operations for managing knowledge base records.
// Implementations must be thread-safe and support concurrent access.
type RecordRepository interface {
	// AddRecords stores one or more records. Records whose id already exists
	// are ignored, the stored copy is never replaced.
	// Returns the number of records actually inserted. On error it is the
	// number persisted before the failure.
	AddRecords(ctx context.Context, records ...*core.Record) (int, error)

	// GetRecord retrieves a single record by id.
	// Returns ErrNotFound if the record doesn't exist.
	GetRecord(ctx context.Context, id string) (*core.Record, error)

	// GetRecords retrieves multiple records by their ids, in the order requested.
	// Returns only the records that exist (no error for missing records).
	GetRecords(ctx context.Context, ids ...string) ([]*core.Record, error)

	// GetAllRecords retrieves every record, ordered by id.
	GetAllRecords(ctx context.Context) ([]*core.Record, error)

	// CountRecords returns the number of stored records.
	CountRecords(ctx context.Context) (int, error)

	// Close closes the storage backend and releases resources.
	Close() error
}
