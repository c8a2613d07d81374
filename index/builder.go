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


package index

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/askit/ai"
	"github.com/poiesic/askit/storage"
)

const (
	// DefaultBatchSize is the default number of records embedded per request.
	DefaultBatchSize = 64
)

// BuildConfig holds configuration for building an index from the store.
type BuildConfig struct {
	// BatchSize is the number of records to embed in each request
	BatchSize int

	// ReportInterval is how often to report progress (number of records)
	ReportInterval int

	// MaxRetries is the maximum number of attempts per batch
	MaxRetries int

	// RetryDelay is the base delay for exponential backoff
	RetryDelay time.Duration

	// PoolSize is the number of batches embedded concurrently
	PoolSize int
}

// DefaultBuildConfig returns a BuildConfig with sensible defaults.
func DefaultBuildConfig() *BuildConfig {
	return &BuildConfig{
		BatchSize:      DefaultBatchSize,
		ReportInterval: 100,
		MaxRetries:     3,
		RetryDelay:     1 * time.Second,
		PoolSize:       max(runtime.NumCPU()/2, 1),
	}
}

// Builder embeds every stored record and builds an Index from the result.
type Builder struct {
	repo      storage.RecordRepository
	config    *BuildConfig
	progress  io.Writer
	processor *BatchProcessor
	iterator  *RecordIterator
	logger    *slog.Logger
}

// BuilderOption configures a Builder.
type BuilderOption func(*Builder) error

// WithProgress sets the writer that receives progress output.
// Default discards progress.
func WithProgress(w io.Writer) BuilderOption {
	return func(b *Builder) error {
		if w == nil {
			w = io.Discard
		}
		b.progress = w
		return nil
	}
}

// WithBuilderLogger sets a custom logger.
// Default is slog.Default().
func WithBuilderLogger(logger *slog.Logger) BuilderOption {
	return func(b *Builder) error {
		if logger == nil {
			logger = slog.Default()
		}
		b.logger = logger
		return nil
	}
}

// NewBuilder creates a Builder. A nil config uses DefaultBuildConfig.
func NewBuilder(repo storage.RecordRepository, embedder ai.Embedder, config *BuildConfig, opts ...BuilderOption) (*Builder, error) {
	if repo == nil {
		return nil, ErrRecordRepositoryRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}
	if config == nil {
		config = DefaultBuildConfig()
	}
	cfg := *config
	config = &cfg
	if config.PoolSize < 1 {
		config.PoolSize = 1
	}
	if config.MaxRetries < 1 {
		config.MaxRetries = 1
	}

	b := &Builder{
		repo:      repo,
		config:    config,
		progress:  io.Discard,
		processor: NewBatchProcessor(embedder, config.MaxRetries, config.RetryDelay),
		iterator:  NewRecordIterator(repo, config.BatchSize),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(b); err != nil {
			return nil, err
		}
	}
	b.logger = b.logger.With("component", "index-builder")
	return b, nil
}

// Run embeds all records and replaces the contents of idx. Slots follow
// store order regardless of the order batches finish in. Returns the number
// of indexed records.
func (b *Builder) Run(ctx context.Context, idx *Index) (int, error) {
	batches, err := b.iterator.Batches(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to query records: %w", err)
	}

	total := 0
	for _, batch := range batches {
		total += len(batch)
	}
	if total == 0 {
		fmt.Fprintf(b.progress, "No records found in database (0 records)\n")
		return 0, idx.Build(nil, nil)
	}

	fmt.Fprintf(b.progress, "Embedding %d records (batch size: %d, workers: %d)\n",
		total, b.iterator.batchSize, b.config.PoolSize)

	pool, err := ants.NewPool(b.config.PoolSize)
	if err != nil {
		return 0, err
	}
	defer pool.Release()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	tracker := NewProgressTracker(b.progress, total, b.config.ReportInterval)
	tracker.Start()

	ids := make([]string, total)
	vectors := make([][]float32, total)

	var (
		wg       sync.WaitGroup
		errOnce  sync.Once
		firstErr error
	)
	fail := func(err error) {
		errOnce.Do(func() {
			firstErr = err
			cancel()
		})
	}

	offset := 0
	for _, batch := range batches {
		start := offset
		offset += len(batch)
		for i, record := range batch {
			ids[start+i] = record.Id
		}

		wg.Add(1)
		err := pool.Submit(func() {
			defer wg.Done()
			embeddings, err := b.processor.Process(ctx, batch)
			if err != nil {
				b.logger.Error("batch failed", "first", batch[0].Id, "size", len(batch), "err", err)
				fail(err)
				return
			}
			copy(vectors[start:], embeddings)
			tracker.Increment(len(batch))
		})
		if err != nil {
			wg.Done()
			fail(err)
			break
		}
	}
	wg.Wait()

	if firstErr != nil {
		return 0, firstErr
	}

	tracker.Finish()
	if err := idx.Build(ids, vectors); err != nil {
		return 0, err
	}

	elapsed := tracker.Elapsed()
	fmt.Fprintf(b.progress, "Indexing complete. Embedded %d records in %v (%.1f records/sec)\n",
		total, elapsed.Round(time.Millisecond), float64(total)/elapsed.Seconds())
	b.logger.Info("index build finished", "records", total, "elapsed", elapsed)
	return total, nil
}
