package index

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/poiesic/askit/ai/mock"
	"github.com/poiesic/askit/core"
	"github.com/poiesic/askit/storage"
	"github.com/poiesic/askit/storage/badger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedRepo(t *testing.T, n int) storage.RecordRepository {
	t.Helper()
	repo, err := badger.NewMemoryRepository()
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	records := make([]*core.Record, n)
	for i := range records {
		records[i] = &core.Record{
			Id:      fmt.Sprintf("r%03d", i),
			Content: fmt.Sprintf("record number %d about topic %d", i, i%7),
		}
	}
	if n > 0 {
		_, err = repo.AddRecords(context.Background(), records...)
		require.NoError(t, err)
	}
	return repo
}

func fastConfig() *BuildConfig {
	return &BuildConfig{
		BatchSize:      8,
		ReportInterval: 10,
		MaxRetries:     3,
		RetryDelay:     time.Millisecond,
		PoolSize:       4,
	}
}

func TestNewBuilder(t *testing.T) {
	repo := seedRepo(t, 0)

	_, err := NewBuilder(nil, mock.NewMockEmbedder(), nil)
	assert.ErrorIs(t, err, ErrRecordRepositoryRequired)

	_, err = NewBuilder(repo, nil, nil)
	assert.ErrorIs(t, err, ErrEmbedderRequired)

	b, err := NewBuilder(repo, mock.NewMockEmbedder(), nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultBatchSize, b.iterator.batchSize)
}

func TestDefaultBuildConfig(t *testing.T) {
	cfg := DefaultBuildConfig()
	assert.Equal(t, DefaultBatchSize, cfg.BatchSize)
	assert.Equal(t, 100, cfg.ReportInterval)
	assert.Equal(t, 3, cfg.MaxRetries)
	assert.Equal(t, time.Second, cfg.RetryDelay)
	assert.GreaterOrEqual(t, cfg.PoolSize, 1)
}

func TestBuilderRun(t *testing.T) {
	ctx := context.Background()
	repo := seedRepo(t, 50)
	embedder := mock.NewMockEmbedder()
	var progress bytes.Buffer

	b, err := NewBuilder(repo, embedder, fastConfig(), WithProgress(&progress))
	require.NoError(t, err)

	idx, err := New(embedder)
	require.NoError(t, err)

	n, err := b.Run(ctx, idx)
	require.NoError(t, err)
	assert.Equal(t, 50, n)
	assert.True(t, idx.Ready())
	assert.Equal(t, 50, idx.Len())
	assert.Equal(t, mock.DefaultDimension, idx.Dimension())

	// Slots follow store order
	ids := idx.IDs()
	for i, id := range ids {
		assert.Equal(t, fmt.Sprintf("r%03d", i), id)
	}

	// 50 records in batches of 8
	assert.Equal(t, 7, embedder.CallCount())

	matches, err := idx.Search(ctx, "record number 17 about topic 3", 3)
	require.NoError(t, err)
	require.Len(t, matches, 3)
	found := false
	for _, match := range matches {
		if match.RecordId == "r017" {
			found = true
			assert.InDelta(t, 1.0, match.Score, 1e-5)
		}
	}
	assert.True(t, found, "identical content should be among the top hits")

	output := progress.String()
	assert.Contains(t, output, "Embedding 50 records")
	assert.Contains(t, output, "50/50")
	assert.Contains(t, output, "Indexing complete")
}

func TestBuilderRun_EmptyStore(t *testing.T) {
	embedder := mock.NewMockEmbedder()
	var progress bytes.Buffer
	b, err := NewBuilder(seedRepo(t, 0), embedder, fastConfig(), WithProgress(&progress))
	require.NoError(t, err)

	idx, err := New(embedder)
	require.NoError(t, err)

	n, err := b.Run(context.Background(), idx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.True(t, idx.Ready())
	assert.Equal(t, 0, idx.Len())
	assert.Contains(t, progress.String(), "No records found")
}

func TestBuilderRun_RetriesTransientFailures(t *testing.T) {
	embedder := mock.NewMockEmbedder()
	var calls atomic.Int32
	embedder.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		if calls.Add(1) == 1 {
			return nil, errors.New("temporary error")
		}
		out := make([][]float32, len(texts))
		for i, text := range texts {
			out[i] = mock.Vector(text, 16)
		}
		return out, nil
	}

	cfg := fastConfig()
	cfg.PoolSize = 1
	b, err := NewBuilder(seedRepo(t, 20), embedder, cfg)
	require.NoError(t, err)

	idx, err := New(embedder)
	require.NoError(t, err)

	n, err := b.Run(context.Background(), idx)
	require.NoError(t, err)
	assert.Equal(t, 20, n)
	assert.Equal(t, int32(4), calls.Load(), "3 batches plus one retry")
}

func TestBuilderRun_PersistentFailure(t *testing.T) {
	embedder := mock.NewMockEmbedder()
	failure := errors.New("embedding service down")
	embedder.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		return nil, failure
	}

	b, err := NewBuilder(seedRepo(t, 20), embedder, fastConfig())
	require.NoError(t, err)

	idx, err := New(embedder)
	require.NoError(t, err)

	_, err = b.Run(context.Background(), idx)
	assert.ErrorIs(t, err, failure)
	assert.False(t, idx.Ready(), "failed build must not replace the index")
}

func TestBuilderRun_CountMismatch(t *testing.T) {
	embedder := mock.NewMockEmbedder()
	embedder.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		return [][]float32{{1, 0}}, nil
	}

	cfg := fastConfig()
	cfg.MaxRetries = 1
	b, err := NewBuilder(seedRepo(t, 5), embedder, cfg)
	require.NoError(t, err)

	idx, err := New(embedder)
	require.NoError(t, err)

	_, err = b.Run(context.Background(), idx)
	assert.ErrorContains(t, err, "embedding count mismatch")
}

func TestRecordIterator(t *testing.T) {
	repo := seedRepo(t, 10)

	batches, err := NewRecordIterator(repo, 4).Batches(context.Background())
	require.NoError(t, err)
	require.Len(t, batches, 3)
	assert.Len(t, batches[0], 4)
	assert.Len(t, batches[1], 4)
	assert.Len(t, batches[2], 2)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = NewRecordIterator(repo, 4).Batches(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
