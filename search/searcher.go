package search

import (
	"context"
	"log/slog"

	"github.com/poiesic/askit/core"
	"github.com/poiesic/askit/storage"
)

// DefaultTopK is the number of candidates returned when the caller asks for none.
const DefaultTopK = 3

// VectorSearcher ranks record ids by similarity to a text query.
// *index.Index implements it.
type VectorSearcher interface {
	Search(ctx context.Context, text string, k int) ([]core.SimilarityMatch, error)
}

// Searcher combines vector similarity with conversational context and name
// mentions to retrieve knowledge records for a question.
type Searcher struct {
	repository storage.RecordRepository
	index      VectorSearcher
	catalog    Catalog
	loaded     bool
	threshold  int
	pronouns   PronounResolver
	matcher    *FuzzyMatcher
	logger     *slog.Logger
}

// Option configures a Searcher.
type Option func(*Searcher) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Searcher) error {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger
		return nil
	}
}

// WithCatalog uses catalog instead of loading names from the repository.
func WithCatalog(catalog Catalog) Option {
	return func(s *Searcher) error {
		s.catalog = catalog
		s.loaded = true
		return nil
	}
}

// WithThreshold sets the score a name mention must exceed.
// Default is DefaultThreshold.
func WithThreshold(threshold int) Option {
	return func(s *Searcher) error {
		if threshold < 0 || threshold > 100 {
			return ErrInvalidThreshold
		}
		s.threshold = threshold
		return nil
	}
}

// WithPronouns replaces the words that refer back to the conversation's entity.
func WithPronouns(pronouns ...string) Option {
	return func(s *Searcher) error {
		s.pronouns = NewPronounResolver(pronouns...)
		return nil
	}
}

// NewSearcher creates a new searcher. Unless WithCatalog is given, the name
// catalog is read from repository once, here.
func NewSearcher(
	ctx context.Context,
	repository storage.RecordRepository,
	index VectorSearcher,
	opts ...Option,
) (*Searcher, error) {
	if repository == nil {
		return nil, ErrRecordRepositoryRequired
	}
	if index == nil {
		return nil, ErrIndexRequired
	}

	s := &Searcher{
		repository: repository,
		index:      index,
		threshold:  DefaultThreshold,
		logger:     slog.Default(),
	}

	// Apply options
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	s.logger = s.logger.With("component", "searcher")

	if !s.loaded {
		catalog, err := LoadCatalog(ctx, repository, s.logger)
		if err != nil {
			s.logger.Error("error loading name catalog", "err", err)
			return nil, err
		}
		s.catalog = catalog
	}
	matcher, err := NewFuzzyMatcher(s.catalog, s.threshold)
	if err != nil {
		return nil, err
	}
	s.matcher = matcher
	s.logger.Debug("searcher ready", "names", len(s.catalog))
	return s, nil
}

// Catalog returns the names the searcher recognizes.
func (s *Searcher) Catalog() Catalog {
	return s.catalog
}

// Retrieve returns up to topK records relevant to question, most relevant
// first, and updates the session's entity from the top result.
// A nil session behaves like a fresh one that is discarded afterwards.
func (s *Searcher) Retrieve(ctx context.Context, session *Session, question string, topK int) ([]*core.CandidateResult, error) {
	return s.RetrieveWithMonitor(ctx, session, question, topK, nil)
}

// RetrieveWithMonitor is Retrieve with callbacks at each stage.
func (s *Searcher) RetrieveWithMonitor(ctx context.Context, session *Session, question string, topK int, monitor SearchMonitor) ([]*core.CandidateResult, error) {
	if monitor == nil {
		monitor = &noopMonitor{}
	}
	if session == nil {
		session = NewSession()
	}
	if topK <= 0 {
		topK = DefaultTopK
	}

	monitor.Start(question)

	expanded := ExpandQuery(question)
	monitor.AfterExpansion(expanded)

	session.mu.Lock()
	defer session.mu.Unlock()

	entity := session.entity

	// 1. Conversation context
	var forcedId string
	hasPronoun := s.pronouns.HasPronoun(expanded)
	if hasPronoun {
		monitor.PronounDetected(entity)
		if id, ok := s.pronouns.Resolve(expanded, entity); ok {
			forcedId = id
		}
	}

	// 2. An explicit name mention takes precedence over context
	mentioned := false
	if known, score, ok := s.matcher.Match(question); ok {
		forcedId = known.RecordId
		mentioned = true
		monitor.FuzzyMatched(known, score)
		s.logger.Debug("name mentioned", "name", known.Name, "id", known.RecordId, "score", score)
	}

	// 3. Vector search, steered toward the entity when the question only refers to it
	query := expanded
	if hasPronoun && !entity.IsEmpty() && !mentioned {
		query = expanded + " " + entity.Name
	}
	matches, err := s.index.Search(ctx, query, topK)
	if err != nil {
		s.logger.Error("error querying index", "query", query, "err", err)
		return nil, err
	}
	monitor.AfterVectorSearch(query, matches)

	// 4. Merge, forced candidate first
	ids := make([]string, 0, topK)
	scores := make(map[string]float32, topK)
	if forcedId != "" {
		ids = append(ids, forcedId)
		scores[forcedId] = core.ForcedScore
	}
	for _, match := range matches {
		if _, seen := scores[match.RecordId]; seen {
			continue
		}
		ids = append(ids, match.RecordId)
		scores[match.RecordId] = match.Score
	}
	if len(ids) > topK {
		ids = ids[:topK]
	}
	monitor.AfterMerge(ids)

	// 5. Fetch records; ids no longer in the store are dropped
	records, err := s.repository.GetRecords(ctx, ids...)
	if err != nil {
		s.logger.Error("error retrieving records", "err", err)
		return nil, err
	}
	results := make([]*core.CandidateResult, 0, len(records))
	for _, record := range records {
		md, err := record.ParsedMetadata()
		if err != nil {
			s.logger.Debug("record metadata unreadable", "id", record.Id, "err", err)
		}
		results = append(results, &core.CandidateResult{
			Id:       record.Id,
			Content:  record.Content,
			Score:    scores[record.Id],
			Metadata: md,
		})
	}
	if len(results) < len(ids) {
		s.logger.Debug("dropped ids missing from store", "requested", len(ids), "found", len(results))
	}

	// 6. A named top result becomes the conversation's entity
	var name string
	if len(results) > 0 {
		name = results[0].Metadata.First("name", "title")
	}
	if name != "" {
		next := core.EntityContext{Id: results[0].Id, Name: name}
		session.refresh(next)
		monitor.ContextUpdated(entity, next)
	} else {
		session.age()
	}

	monitor.Finish(results)
	return results, nil
}
