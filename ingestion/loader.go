package ingestion

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"

	"github.com/poiesic/askit/core"
	"github.com/poiesic/askit/storage"
	"golang.org/x/sync/errgroup"
)

// Loader reads JSON documents from a directory and stores them as records.
type Loader struct {
	repository storage.RecordRepository
	workers    int
	contentIDs bool
	logger     *slog.Logger
}

// Option configures a Loader.
type Option func(*Loader) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(l *Loader) error {
		if logger == nil {
			logger = slog.Default()
		}
		l.logger = logger
		return nil
	}
}

// WithWorkers sets how many files are decoded concurrently.
// Default is runtime.NumCPU(), with a minimum of 1.
func WithWorkers(n int) Option {
	return func(l *Loader) error {
		l.workers = max(n, 1)
		return nil
	}
}

// WithContentIDs derives the id of documents without an "id" field from a
// hash of their content instead of their position in the load. Reloading the
// same data then never duplicates records.
func WithContentIDs() Option {
	return func(l *Loader) error {
		l.contentIDs = true
		return nil
	}
}

// NewLoader creates a loader that stores records in repository.
func NewLoader(repository storage.RecordRepository, opts ...Option) (*Loader, error) {
	if repository == nil {
		return nil, ErrRecordRepositoryRequired
	}

	l := &Loader{
		repository: repository,
		workers:    max(runtime.NumCPU(), 1),
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(l); err != nil {
			return nil, err
		}
	}
	l.logger = l.logger.With("component", "loader")
	return l, nil
}

// LoadDir stores every document found in dir and returns how many records
// were newly added. Records whose id already exists are left untouched.
func (l *Loader) LoadDir(ctx context.Context, dir string) (int, error) {
	docs, err := l.ReadDir(ctx, dir)
	if err != nil {
		return 0, err
	}
	records := l.Records(docs)
	if len(records) == 0 {
		l.logger.Warn("no data to load", "dir", dir)
		return 0, nil
	}

	added, err := l.repository.AddRecords(ctx, records...)
	if err != nil {
		l.logger.Error("error storing records", "err", err)
		return 0, err
	}
	l.logger.Info("records loaded", "dir", dir, "documents", len(docs), "added", added)
	return added, nil
}

// ReadDir decodes the *.json files of dir in name order. A missing directory
// is created and yields no documents. Files that cannot be decoded are
// logged and skipped.
func (l *Loader) ReadDir(ctx context.Context, dir string) ([]core.Metadata, error) {
	info, err := os.Stat(dir)
	if errors.Is(err, fs.ErrNotExist) {
		l.logger.Warn("data directory not found, creating it", "dir", dir)
		return nil, os.MkdirAll(dir, 0755)
	}
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrNotADirectory, dir)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".json") {
			files = append(files, filepath.Join(dir, entry.Name()))
		}
	}
	slices.Sort(files)
	if len(files) == 0 {
		l.logger.Warn("no JSON files found", "dir", dir)
		return nil, nil
	}

	perFile := make([][]core.Metadata, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.workers)
	for i, path := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			docs, err := readFile(path)
			if err != nil {
				l.logger.Error("error loading file", "file", path, "err", err)
				return nil
			}
			l.logger.Debug("file loaded", "file", path, "documents", len(docs))
			perFile[i] = docs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var docs []core.Metadata
	for _, fileDocs := range perFile {
		docs = append(docs, fileDocs...)
	}
	return docs, nil
}

// Records converts documents into records. The n-th document (counting
// from zero across all files) without an "id" becomes record_<n>.
// Documents without searchable content are skipped.
func (l *Loader) Records(docs []core.Metadata) []*core.Record {
	records := make([]*core.Record, 0, len(docs))
	for n, doc := range docs {
		content := PrepareContent(doc)
		if content == "" {
			l.logger.Debug("skipping document without content", "position", n)
			continue
		}

		id := doc.Text("id")
		if id == "" {
			if l.contentIDs {
				id = core.IDFromContent(content)
			} else {
				id = fmt.Sprintf("record_%d", n)
			}
		}

		metadata, err := json.Marshal(map[string]any(doc))
		if err != nil {
			l.logger.Warn("document metadata not encodable", "id", id, "err", err)
			metadata = []byte("{}")
		}
		records = append(records, &core.Record{
			Id:       id,
			Content:  content,
			Metadata: string(metadata),
		})
	}
	return records
}

// readFile decodes one file into its documents. Elements of a list that are
// not objects are dropped.
func readFile(path string) ([]core.Metadata, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var decoded any
	if err := json.Unmarshal(data, &decoded); err != nil {
		return nil, err
	}

	if obj, ok := decoded.(map[string]any); ok {
		if list, ok := obj["data"].([]any); ok {
			decoded = list
		}
	}

	switch v := decoded.(type) {
	case map[string]any:
		return []core.Metadata{v}, nil
	case []any:
		docs := make([]core.Metadata, 0, len(v))
		for _, item := range v {
			if obj, ok := item.(map[string]any); ok {
				docs = append(docs, obj)
			}
		}
		return docs, nil
	default:
		return nil, fmt.Errorf("unsupported JSON document of type %T", decoded)
	}
}
