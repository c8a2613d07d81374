package answer

import (
	"context"
	"log/slog"

	"github.com/poiesic/askit/core"
	"github.com/poiesic/askit/search"
)

const (
	// DefaultTopK is how many candidates are retrieved per question.
	DefaultTopK = 5

	// DefaultMaxSources is how many candidates are returned as sources.
	DefaultMaxSources = 3
)

// Retriever finds candidates for a question. *search.Searcher implements it.
type Retriever interface {
	Retrieve(ctx context.Context, session *search.Session, question string, topK int) ([]*core.CandidateResult, error)
}

// Pipeline answers questions by retrieving candidates and synthesizing text
// from them.
type Pipeline struct {
	retriever   Retriever
	synthesizer *Synthesizer
	topK        int
	maxSources  int
	logger      *slog.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) error {
		if logger == nil {
			logger = slog.Default()
		}
		p.logger = logger
		return nil
	}
}

// WithTopK sets how many candidates are retrieved.
// Default is DefaultTopK.
func WithTopK(k int) Option {
	return func(p *Pipeline) error {
		if k <= 0 {
			return ErrInvalidTopK
		}
		p.topK = k
		return nil
	}
}

// WithMaxSources caps the sources attached to an answer.
// Default is DefaultMaxSources.
func WithMaxSources(n int) Option {
	return func(p *Pipeline) error {
		p.maxSources = max(n, 0)
		return nil
	}
}

// NewPipeline creates a question answering pipeline over retriever.
func NewPipeline(retriever Retriever, opts ...Option) (*Pipeline, error) {
	if retriever == nil {
		return nil, ErrRetrieverRequired
	}

	p := &Pipeline{
		retriever:  retriever,
		topK:       DefaultTopK,
		maxSources: DefaultMaxSources,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(p); err != nil {
			return nil, err
		}
	}
	p.synthesizer = NewSynthesizer(p.logger)
	p.logger = p.logger.With("component", "pipeline")
	return p, nil
}

// Answer retrieves candidates for question within session and synthesizes
// an answer. Finding nothing is not an error.
func (p *Pipeline) Answer(ctx context.Context, session *search.Session, question string) (*core.Answer, error) {
	results, err := p.retriever.Retrieve(ctx, session, question, p.topK)
	if err != nil {
		p.logger.Error("error retrieving candidates", "question", question, "err", err)
		return nil, err
	}

	answer := &core.Answer{
		Text:    p.synthesizer.Synthesize(question, results),
		Sources: make([]core.Source, 0, min(len(results), p.maxSources)),
	}
	for _, r := range results[:min(len(results), p.maxSources)] {
		answer.Sources = append(answer.Sources, core.Source{
			Id:       r.Id,
			Score:    r.Score,
			Metadata: r.Metadata,
		})
	}
	p.logger.Debug("question answered", "candidates", len(results), "sources", len(answer.Sources))
	return answer, nil
}
