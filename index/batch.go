package index

import (
	"context"
	"fmt"
	"time"

	"github.com/poiesic/askit/ai"
	"github.com/poiesic/askit/core"
)

// BatchProcessor embeds the content of a batch of records with retries.
type BatchProcessor struct {
	embedder       ai.Embedder
	maxRetries     int
	retryBaseDelay time.Duration
}

// NewBatchProcessor creates a processor that tries each batch up to maxRetries times.
func NewBatchProcessor(embedder ai.Embedder, maxRetries int, retryBaseDelay time.Duration) *BatchProcessor {
	return &BatchProcessor{
		embedder:       embedder,
		maxRetries:     maxRetries,
		retryBaseDelay: retryBaseDelay,
	}
}

// Process returns one embedding per record, in record order.
func (bp *BatchProcessor) Process(ctx context.Context, records []*core.Record) ([][]float32, error) {
	if len(records) == 0 {
		return nil, nil
	}

	texts := make([]string, len(records))
	for i, record := range records {
		texts[i] = record.Content
	}

	var embeddings [][]float32
	err := RetryWithBackoff(ctx, func() error {
		var err error
		embeddings, err = bp.embedder.EmbedTexts(ctx, texts)
		return err
	}, bp.maxRetries, bp.retryBaseDelay)
	if err != nil {
		return nil, fmt.Errorf("failed to generate embeddings after %d attempts: %w", bp.maxRetries, err)
	}

	if len(embeddings) != len(records) {
		return nil, fmt.Errorf("embedding count mismatch: expected %d, got %d", len(records), len(embeddings))
	}
	return embeddings, nil
}
