// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package askit

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/poiesic/askit/ai"
	"github.com/poiesic/askit/ai/openai"
	"github.com/poiesic/askit/answer"
	"github.com/poiesic/askit/index"
	"github.com/poiesic/askit/ingestion"
	"github.com/poiesic/askit/search"
	"github.com/poiesic/askit/storage"
	"github.com/poiesic/askit/storage/badger"
	"github.com/poiesic/askit/storage/sqlite"
)

// Backend names a record store implementation.
type Backend string

const (
	BackendBadger Backend = "badger"
	BackendSQLite Backend = "sqlite"
)

// Database ties a record store, an embedding provider and the vector index
// persisted next to the store.
type Database struct {
	backend     *badger.Backend // nil unless the badger store is used
	repository  storage.RecordRepository
	provider    ai.AIProvider
	index       *index.Index
	indexDir    string
	buildConfig *index.BuildConfig
	kind        Backend
	logger      *slog.Logger
}

// Status summarizes what the database holds.
type Status struct {
	Backend        Backend
	Records        int
	IndexReady     bool
	IndexedRecords int
	Dimension      int
}

// DatabaseOption configures a Database.
type DatabaseOption func(*databaseOptions)

type databaseOptions struct {
	aiConfig    *ai.Config
	provider    ai.AIProvider
	backend     Backend
	indexDir    string
	buildConfig *index.BuildConfig
	logger      *slog.Logger
}

// WithAIConfig sets the embedding service configuration.
// Default is ai.DefaultConfig().
func WithAIConfig(config *ai.Config) DatabaseOption {
	return func(o *databaseOptions) {
		o.aiConfig = config
	}
}

// WithProvider uses an existing provider instead of creating one from the
// AI configuration. The database closes it on Close.
func WithProvider(provider ai.AIProvider) DatabaseOption {
	return func(o *databaseOptions) {
		o.provider = provider
	}
}

// WithBackend selects the record store.
// Default is BackendBadger.
func WithBackend(backend Backend) DatabaseOption {
	return func(o *databaseOptions) {
		o.backend = backend
	}
}

// WithIndexDir sets where the vector index is persisted.
// Default is the database path with an ".index" suffix.
func WithIndexDir(dir string) DatabaseOption {
	return func(o *databaseOptions) {
		o.indexDir = dir
	}
}

// WithBuildConfig sets how the index is built from the store.
// Default is index.DefaultBuildConfig().
func WithBuildConfig(config *index.BuildConfig) DatabaseOption {
	return func(o *databaseOptions) {
		o.buildConfig = config
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) DatabaseOption {
	return func(o *databaseOptions) {
		o.logger = logger
	}
}

// NewDatabase opens the record store at filePath. The index starts empty;
// call OpenIndex or BuildIndex before asking questions.
func NewDatabase(filePath string, opts ...DatabaseOption) (*Database, error) {
	// Apply options
	options := &databaseOptions{
		aiConfig: ai.DefaultConfig(), // Default if not provided
		backend:  BackendBadger,
		indexDir: filePath + ".index",
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(options)
	}
	if options.logger == nil {
		options.logger = slog.Default()
	}

	db := &Database{
		indexDir:    options.indexDir,
		buildConfig: options.buildConfig,
		kind:        options.backend,
		logger:      options.logger.With("component", "database"),
	}

	// Open record store
	switch options.backend {
	case BackendBadger:
		backend, err := badger.OpenBackend(filePath, false, options.logger)
		if err != nil {
			return nil, err
		}
		repo, err := badger.NewRecordRepository(backend)
		if err != nil {
			backend.Close()
			return nil, err
		}
		db.backend, db.repository = backend, repo
	case BackendSQLite:
		repo, err := sqlite.Open(filePath, options.logger)
		if err != nil {
			return nil, err
		}
		db.repository = repo
	default:
		return nil, fmt.Errorf("%w: %q", storage.ErrUnknownBackend, options.backend)
	}

	// Create AI provider with configured settings
	provider := options.provider
	if provider == nil {
		var err error
		provider, err = openai.NewProvider(options.aiConfig)
		if err != nil {
			db.closeStore()
			return nil, err
		}
	}
	db.provider = provider

	idx, err := index.New(provider.Embedder(), index.WithLogger(options.logger))
	if err != nil {
		provider.Close()
		db.closeStore()
		return nil, err
	}
	db.index = idx

	return db, nil
}

func (db *Database) closeStore() error {
	if err := db.repository.Close(); err != nil {
		db.logger.Error("error closing record repository", "err", err)
		return err
	}
	if db.backend != nil {
		if err := db.backend.Close(); err != nil {
			db.logger.Error("error closing backend storage", "err", err)
			return err
		}
	}
	return nil
}

func (db *Database) Close() error {
	// Close AI provider first
	if err := db.provider.Close(); err != nil {
		db.logger.Error("error closing AI provider", "err", err)
	}
	return db.closeStore()
}

func (db *Database) Repository() storage.RecordRepository {
	return db.repository
}

func (db *Database) Provider() ai.AIProvider {
	return db.provider
}

func (db *Database) Index() *index.Index {
	return db.index
}

func (db *Database) IndexDir() string {
	return db.indexDir
}

func (db *Database) NewLoader(opts ...ingestion.Option) (*ingestion.Loader, error) {
	return ingestion.NewLoader(db.repository, append([]ingestion.Option{ingestion.WithLogger(db.logger)}, opts...)...)
}

// BuildIndex embeds every stored record, replaces the index and saves it.
// Progress lines go to progress when it is not nil.
func (db *Database) BuildIndex(ctx context.Context, progress io.Writer) (int, error) {
	builder, err := index.NewBuilder(db.repository, db.provider.Embedder(), db.buildConfig,
		index.WithProgress(progress), index.WithBuilderLogger(db.logger))
	if err != nil {
		return 0, err
	}
	count, err := builder.Run(ctx, db.index)
	if err != nil {
		return 0, err
	}
	if err := db.index.Save(db.indexDir); err != nil {
		return 0, err
	}
	return count, nil
}

// OpenIndex loads the persisted index, building and saving it from the
// store when there is none or it cannot be read.
func (db *Database) OpenIndex(ctx context.Context, progress io.Writer) error {
	err := db.index.Load(db.indexDir)
	switch {
	case err == nil:
		db.logger.Info("index loaded", "dir", db.indexDir, "vectors", db.index.Len())
		return nil
	case errors.Is(err, index.ErrIndexNotFound):
		db.logger.Info("no saved index, building", "dir", db.indexDir)
	case errors.Is(err, index.ErrIndexCorrupt):
		db.logger.Warn("saved index unreadable, rebuilding", "dir", db.indexDir, "err", err)
	default:
		return err
	}
	_, err = db.BuildIndex(ctx, progress)
	return err
}

func (db *Database) NewSearcher(ctx context.Context, opts ...search.Option) (*search.Searcher, error) {
	return search.NewSearcher(ctx, db.repository, db.index, append([]search.Option{search.WithLogger(db.logger)}, opts...)...)
}

func (db *Database) NewPipeline(ctx context.Context, opts ...answer.Option) (*answer.Pipeline, error) {
	searcher, err := db.NewSearcher(ctx)
	if err != nil {
		return nil, err
	}
	return answer.NewPipeline(searcher, append([]answer.Option{answer.WithLogger(db.logger)}, opts...)...)
}

// Status reports the record count and the state of the index.
func (db *Database) Status(ctx context.Context) (*Status, error) {
	count, err := db.repository.CountRecords(ctx)
	if err != nil {
		return nil, err
	}
	return &Status{
		Backend:        db.kind,
		Records:        count,
		IndexReady:     db.index.Ready(),
		IndexedRecords: db.index.Len(),
		Dimension:      db.index.Dimension(),
	}, nil
}
