package badger

import (
	"context"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/askit/core"
	"github.com/poiesic/askit/storage"
)

// ErrBackendRequired is returned when a repository is created without a backend.
var ErrBackendRequired = errors.New("backend is required")

// RecordRepository implements storage.RecordRepository for BadgerDB.
type RecordRepository struct {
	backend     *Backend
	ownsBackend bool
}

var _ storage.RecordRepository = (*RecordRepository)(nil)

// NewRecordRepository creates a RecordRepository on a shared backend.
// Closing the repository leaves the backend open.
func NewRecordRepository(backend *Backend) (*RecordRepository, error) {
	if backend == nil {
		return nil, ErrBackendRequired
	}
	return &RecordRepository{backend: backend}, nil
}

// NewRepository opens a BadgerDB database at path and returns a repository
// that owns it.
func NewRepository(path string) (storage.RecordRepository, error) {
	backend, err := OpenBackend(path, false, nil)
	if err != nil {
		return nil, err
	}
	return &RecordRepository{backend: backend, ownsBackend: true}, nil
}

// Close closes the backend if this repository opened it.
func (r *RecordRepository) Close() error {
	if r.ownsBackend {
		return r.backend.Close()
	}
	return nil
}

// AddRecords stores records that don't exist yet.
func (r *RecordRepository) AddRecords(ctx context.Context, records ...*core.Record) (int, error) {
	if r.backend.IsClosed() {
		return 0, storage.ErrStorageClosed
	}
	for _, record := range records {
		if err := core.ValidateRecord(record); err != nil {
			return 0, err
		}
	}

	// committed counts records already durable; pending are in the open transaction
	committed, pending := 0, 0
	tx := r.backend.db.NewTransaction(true)
	defer func() { tx.Discard() }()

	for _, record := range records {
		if err := ctx.Err(); err != nil {
			return committed, err
		}

		key := makeRecordKey(record.Id)
		_, err := tx.Get(key)
		if err == nil {
			continue
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return committed, err
		}

		value := storage.MarshalRecord(record)
		err = tx.Set(key, value)
		if errors.Is(err, badger.ErrTxnTooBig) {
			// Flush what we have and continue in a fresh transaction
			if err := tx.Commit(); err != nil {
				return committed, fmt.Errorf("failed to commit records: %w", err)
			}
			committed += pending
			pending = 0
			tx = r.backend.db.NewTransaction(true)
			err = tx.Set(key, value)
		}
		if err != nil {
			return committed, err
		}
		pending++
	}

	if err := tx.Commit(); err != nil {
		return committed, fmt.Errorf("failed to commit records: %w", err)
	}
	inserted := committed + pending
	r.backend.logger.Debug("records added", "requested", len(records), "inserted", inserted)
	return inserted, nil
}

// GetRecord retrieves a single record by id.
func (r *RecordRepository) GetRecord(ctx context.Context, id string) (*core.Record, error) {
	if r.backend.IsClosed() {
		return nil, storage.ErrStorageClosed
	}
	var result *core.Record
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		result, err = readRecord(tx, makeRecordKey(id))
		if err != nil {
			return err
		}
		if result == nil {
			return storage.ErrNotFound
		}
		return nil
	}, false)
	return result, err
}

// GetRecords retrieves multiple records by their ids.
func (r *RecordRepository) GetRecords(ctx context.Context, ids ...string) ([]*core.Record, error) {
	if r.backend.IsClosed() {
		return nil, storage.ErrStorageClosed
	}
	var result []*core.Record
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		for _, id := range ids {
			record, err := readRecord(tx, makeRecordKey(id))
			if err != nil {
				return err
			}
			if record != nil {
				result = append(result, record)
			}
		}
		return nil
	}, false)
	return result, err
}

// GetAllRecords retrieves every record in key order.
func (r *RecordRepository) GetAllRecords(ctx context.Context) ([]*core.Record, error) {
	if r.backend.IsClosed() {
		return nil, storage.ErrStorageClosed
	}
	var results []*core.Record
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(recordPrefix)
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var record *core.Record
			err := iter.Item().Value(func(val []byte) error {
				var err error
				record, err = storage.UnmarshalRecord(val)
				return err
			})
			if err != nil {
				return err
			}
			results = append(results, record)
		}
		return nil
	}, false)
	return results, err
}

// CountRecords counts record keys without reading values.
func (r *RecordRepository) CountRecords(ctx context.Context) (int, error) {
	if r.backend.IsClosed() {
		return 0, storage.ErrStorageClosed
	}
	count := 0
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(recordPrefix)
		opts.PrefetchValues = false
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			count++
		}
		return nil
	}, false)
	return count, err
}

// readRecord reads a record from the transaction.
// Returns nil if the record doesn't exist.
func readRecord(tx *badger.Txn, key []byte) (*core.Record, error) {
	item, err := tx.Get(key)
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, nil
		}
		return nil, err
	}

	var record *core.Record
	err = item.Value(func(val []byte) error {
		var err error
		record, err = storage.UnmarshalRecord(val)
		if err != nil {
			return fmt.Errorf("record %s: %w", recordIDFromKey(key), err)
		}
		return nil
	})
	return record, err
}
