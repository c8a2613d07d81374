package ingestion

import "errors"

var (
	// ErrRecordRepositoryRequired is returned when a record repository is not provided.
	ErrRecordRepositoryRequired = errors.New("record repository required")

	// ErrNotADirectory is returned when the data path exists but is not a directory.
	ErrNotADirectory = errors.New("data path is not a directory")
)
