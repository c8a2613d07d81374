package index

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/poiesic/askit/ai"
	"github.com/poiesic/askit/core"
	"github.com/viant/vec/search"
)

// Index is an exact inner-product index over unit-normalized embeddings.
// Slot i holds the vector of record ids[i]. The contents are replaced as a
// whole by Build or Load; there are no incremental adds.
type Index struct {
	mu       sync.RWMutex
	embedder ai.Embedder
	logger   *slog.Logger
	ids      []string
	vectors  [][]float32
	dim      int
	ready    bool
}

// Option configures an Index.
type Option func(*Index) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(x *Index) error {
		if logger == nil {
			logger = slog.Default()
		}
		x.logger = logger
		return nil
	}
}

// New creates an empty, not yet ready index that embeds queries with embedder.
func New(embedder ai.Embedder, opts ...Option) (*Index, error) {
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}

	x := &Index{
		embedder: embedder,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(x); err != nil {
			return nil, err
		}
	}
	x.logger = x.logger.With("component", "index")
	return x, nil
}

// Build replaces the index contents with one vector per id. Vectors are
// normalized into private copies; zero vectors are kept as-is.
func (x *Index) Build(ids []string, vectors [][]float32) error {
	if len(ids) != len(vectors) {
		return fmt.Errorf("%w: %d ids, %d vectors", ErrLengthMismatch, len(ids), len(vectors))
	}

	dim := 0
	if len(vectors) > 0 {
		dim = len(vectors[0])
	}
	normalized := make([][]float32, len(vectors))
	for i, v := range vectors {
		if len(v) != dim {
			return fmt.Errorf("%w: vector %d (%s) has %d components, expected %d",
				ErrDimensionMismatch, i, ids[i], len(v), dim)
		}
		normalized[i] = normalize(v)
	}

	x.mu.Lock()
	defer x.mu.Unlock()
	x.ids = slices.Clone(ids)
	x.vectors = normalized
	x.dim = dim
	x.ready = true
	x.logger.Info("index built", "vectors", len(normalized), "dimension", dim)
	return nil
}

// Search embeds text and returns up to k matches by descending score.
// Equal scores keep slot order.
func (x *Index) Search(ctx context.Context, text string, k int) ([]core.SimilarityMatch, error) {
	x.mu.RLock()
	ready, size := x.ready, len(x.vectors)
	x.mu.RUnlock()

	if !ready {
		return nil, ErrIndexNotReady
	}
	if size == 0 || k <= 0 {
		return nil, nil
	}

	query, err := x.embedder.EmbedText(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	return x.SearchVector(query, k)
}

// SearchVector returns up to k matches for an already embedded query.
func (x *Index) SearchVector(query []float32, k int) ([]core.SimilarityMatch, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()

	if !x.ready {
		return nil, ErrIndexNotReady
	}
	if len(x.vectors) == 0 || k <= 0 {
		return nil, nil
	}
	if len(query) != x.dim {
		return nil, fmt.Errorf("%w: query has %d components, index has %d", ErrDimensionMismatch, len(query), x.dim)
	}

	q := normalize(query)
	matches := make([]core.SimilarityMatch, 0, len(x.vectors))
	for slot, v := range x.vectors {
		if slot >= len(x.ids) {
			continue
		}
		matches = append(matches, core.SimilarityMatch{
			RecordId: x.ids[slot],
			Score:    dotProduct(q, v),
		})
	}

	slices.SortStableFunc(matches, func(a, b core.SimilarityMatch) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		default:
			return 0
		}
	})

	if len(matches) > k {
		matches = matches[:k]
	}
	return matches, nil
}

// Ready reports whether the index has been built or loaded.
func (x *Index) Ready() bool {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.ready
}

// Len returns the number of indexed vectors.
func (x *Index) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.vectors)
}

// Dimension returns the vector dimension, 0 for an empty index.
func (x *Index) Dimension() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.dim
}

// IDs returns a copy of the id mapping in slot order.
func (x *Index) IDs() []string {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return slices.Clone(x.ids)
}

// normalize returns a unit-length copy of v. Zero vectors are copied unchanged.
func normalize(v []float32) []float32 {
	out := make([]float32, len(v))
	copy(out, v)
	magnitude := search.Float32s(v).Magnitude()
	if magnitude == 0 {
		return out
	}
	for i := range out {
		out[i] /= magnitude
	}
	return out
}

// dotProduct calculates the dot product of two vectors.
func dotProduct(a, b []float32) float32 {
	var sum float32
	minLen := min(len(a), len(b))
	for i := 0; i < minLen; i++ {
		sum += a[i] * b[i]
	}
	return sum
}
