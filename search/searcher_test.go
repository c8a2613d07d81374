package search

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/poiesic/askit/ai/mock"
	"github.com/poiesic/askit/core"
	"github.com/poiesic/askit/index"
	"github.com/poiesic/askit/storage"
	"github.com/poiesic/askit/storage/badger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var knowledge = []*core.Record{
	{
		Id:       "p1",
		Content:  "Python programming language created by Guido van Rossum",
		Metadata: `{"name": "Python", "explanation": "Python is a high-level programming language."}`,
	},
	{
		Id:       "s1",
		Content:  "Sundar Pichai chief executive of Google",
		Metadata: `{"name": "Sundar Pichai", "education": "Stanford University", "role": "CEO", "company": "Google"}`,
	},
	{
		Id:       "a1",
		Content:  "Ada Lovelace mathematician who wrote the first algorithm",
		Metadata: `{"name": "Ada Lovelace", "education": "private tutoring in mathematics"}`,
	},
	{
		Id:       "g1",
		Content:  "Guide to Go concurrency with goroutines and channels",
		Metadata: `{"title": "Guide to Go"}`,
	},
	{
		Id:       "x1",
		Content:  "miscellaneous notes without structured metadata",
		Metadata: `not json`,
	},
}

func seedRepo(t *testing.T) storage.RecordRepository {
	t.Helper()
	repo, err := badger.NewMemoryRepository()
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	_, err = repo.AddRecords(context.Background(), knowledge...)
	require.NoError(t, err)
	return repo
}

// stubIndex returns canned matches and records the queries it receives.
type stubIndex struct {
	mu      sync.Mutex
	matches []core.SimilarityMatch
	err     error
	queries []string
}

func (s *stubIndex) Search(_ context.Context, text string, k int) ([]core.SimilarityMatch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queries = append(s.queries, text)
	if s.err != nil {
		return nil, s.err
	}
	if len(s.matches) > k {
		return s.matches[:k], nil
	}
	return s.matches, nil
}

func (s *stubIndex) lastQuery() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queries) == 0 {
		return ""
	}
	return s.queries[len(s.queries)-1]
}

func resultIDs(results []*core.CandidateResult) []string {
	ids := make([]string, len(results))
	for i, r := range results {
		ids[i] = r.Id
	}
	return ids
}

func TestNewSearcher(t *testing.T) {
	ctx := context.Background()
	repo := seedRepo(t)
	stub := &stubIndex{}

	_, err := NewSearcher(ctx, nil, stub)
	assert.ErrorIs(t, err, ErrRecordRepositoryRequired)

	_, err = NewSearcher(ctx, repo, nil)
	assert.ErrorIs(t, err, ErrIndexRequired)

	_, err = NewSearcher(ctx, repo, stub, WithThreshold(120))
	assert.ErrorIs(t, err, ErrInvalidThreshold)

	s, err := NewSearcher(ctx, repo, stub, WithLogger(nil))
	require.NoError(t, err)
	assert.ElementsMatch(t,
		[]string{"Python", "Sundar Pichai", "Ada Lovelace", "Guide to Go"},
		s.Catalog().Names())

	s, err = NewSearcher(ctx, repo, stub, WithCatalog(nil))
	require.NoError(t, err)
	assert.Empty(t, s.Catalog())
}

func TestNewSearcher_ClosedRepository(t *testing.T) {
	repo, err := badger.NewMemoryRepository()
	require.NoError(t, err)
	require.NoError(t, repo.Close())

	_, err = NewSearcher(context.Background(), repo, &stubIndex{})
	assert.ErrorIs(t, err, storage.ErrStorageClosed)
}

func TestRetrieve(t *testing.T) {
	ctx := context.Background()
	repo := seedRepo(t)

	t.Run("vector hits only", func(t *testing.T) {
		stub := &stubIndex{matches: []core.SimilarityMatch{
			{RecordId: "p1", Score: 0.9},
			{RecordId: "g1", Score: 0.4},
		}}
		s, err := NewSearcher(ctx, repo, stub)
		require.NoError(t, err)
		session := NewSession()

		results, err := s.Retrieve(ctx, session, "programming language", 3)
		require.NoError(t, err)

		assert.Equal(t, []string{"p1", "g1"}, resultIDs(results))
		assert.InDelta(t, 0.9, results[0].Score, 1e-6)
		assert.Equal(t, "Python", results[0].Metadata["name"])
		assert.Equal(t, core.EntityContext{Id: "p1", Name: "Python"}, session.Context())
	})

	t.Run("name mention forces record first", func(t *testing.T) {
		stub := &stubIndex{matches: []core.SimilarityMatch{
			{RecordId: "p1", Score: 0.8},
			{RecordId: "a1", Score: 0.7},
			{RecordId: "g1", Score: 0.1},
		}}
		s, err := NewSearcher(ctx, repo, stub)
		require.NoError(t, err)

		results, err := s.Retrieve(ctx, NewSession(), "where did Ada Lovelace study", 3)
		require.NoError(t, err)

		assert.Equal(t, []string{"a1", "p1", "g1"}, resultIDs(results))
		assert.Equal(t, core.ForcedScore, results[0].Score)
		assert.True(t, results[0].Forced())
		assert.Equal(t, "where did Ada Lovelace study", stub.lastQuery())
	})

	t.Run("pronoun carries context into next question", func(t *testing.T) {
		stub := &stubIndex{matches: []core.SimilarityMatch{{RecordId: "p1", Score: 0.3}}}
		s, err := NewSearcher(ctx, repo, stub)
		require.NoError(t, err)
		session := NewSession()

		_, err = s.Retrieve(ctx, session, "who is Sundar Pichai", 3)
		require.NoError(t, err)
		require.Equal(t, core.EntityContext{Id: "s1", Name: "Sundar Pichai"}, session.Context())

		results, err := s.Retrieve(ctx, session, "what is his education", 3)
		require.NoError(t, err)

		require.NotEmpty(t, results)
		assert.Equal(t, "s1", results[0].Id)
		assert.Equal(t, core.ForcedScore, results[0].Score)
		assert.Equal(t, "what is his education Sundar Pichai", stub.lastQuery())
		assert.Equal(t, "s1", session.Context().Id)
	})

	t.Run("pronoun without context", func(t *testing.T) {
		stub := &stubIndex{matches: []core.SimilarityMatch{{RecordId: "g1", Score: 0.5}}}
		s, err := NewSearcher(ctx, repo, stub)
		require.NoError(t, err)

		results, err := s.Retrieve(ctx, NewSession(), "what is it", 3)
		require.NoError(t, err)

		assert.Equal(t, []string{"g1"}, resultIDs(results))
		assert.Equal(t, "what is it", stub.lastQuery())
	})

	t.Run("name mention overrides context without augmenting query", func(t *testing.T) {
		stub := &stubIndex{}
		s, err := NewSearcher(ctx, repo, stub)
		require.NoError(t, err)
		session := NewSession()
		session.refresh(core.EntityContext{Id: "s1", Name: "Sundar Pichai"})

		results, err := s.Retrieve(ctx, session, "did he read about Ada Lovelace", 3)
		require.NoError(t, err)

		assert.Equal(t, []string{"a1"}, resultIDs(results))
		assert.Equal(t, "did he read about Ada Lovelace", stub.lastQuery())
		assert.Equal(t, core.EntityContext{Id: "a1", Name: "Ada Lovelace"}, session.Context())
	})

	t.Run("abbreviations are expanded before vector search", func(t *testing.T) {
		stub := &stubIndex{}
		s, err := NewSearcher(ctx, repo, stub)
		require.NoError(t, err)

		_, err = s.Retrieve(ctx, NewSession(), "intro info please", 3)
		require.NoError(t, err)
		assert.Equal(t, "introduction information please", stub.lastQuery())
	})

	t.Run("ghost ids are dropped", func(t *testing.T) {
		stub := &stubIndex{matches: []core.SimilarityMatch{
			{RecordId: "gone", Score: 0.9},
			{RecordId: "g1", Score: 0.5},
		}}
		s, err := NewSearcher(ctx, repo, stub)
		require.NoError(t, err)
		session := NewSession()

		results, err := s.Retrieve(ctx, session, "concurrency", 3)
		require.NoError(t, err)

		assert.Equal(t, []string{"g1"}, resultIDs(results))
		assert.Equal(t, core.EntityContext{Id: "g1", Name: "Guide to Go"}, session.Context())
	})

	t.Run("unreadable metadata is empty", func(t *testing.T) {
		stub := &stubIndex{matches: []core.SimilarityMatch{{RecordId: "x1", Score: 0.6}}}
		s, err := NewSearcher(ctx, repo, stub)
		require.NoError(t, err)

		results, err := s.Retrieve(ctx, NewSession(), "notes", 3)
		require.NoError(t, err)

		require.Len(t, results, 1)
		assert.NotNil(t, results[0].Metadata)
		assert.Empty(t, results[0].Metadata)
		assert.Equal(t, "miscellaneous notes without structured metadata", results[0].Content)
	})

	t.Run("no results leaves context unchanged", func(t *testing.T) {
		stub := &stubIndex{}
		s, err := NewSearcher(ctx, repo, stub)
		require.NoError(t, err)
		session := NewSession()
		session.refresh(core.EntityContext{Id: "p1", Name: "Python"})

		results, err := s.Retrieve(ctx, session, "zebra", 3)
		require.NoError(t, err)

		assert.Empty(t, results)
		assert.Equal(t, core.EntityContext{Id: "p1", Name: "Python"}, session.Context())
	})

	t.Run("nameless top result leaves context unchanged", func(t *testing.T) {
		stub := &stubIndex{matches: []core.SimilarityMatch{{RecordId: "x1", Score: 0.6}}}
		s, err := NewSearcher(ctx, repo, stub)
		require.NoError(t, err)
		session := NewSession()
		session.refresh(core.EntityContext{Id: "p1", Name: "Python"})

		results, err := s.Retrieve(ctx, session, "zebra notes", 3)
		require.NoError(t, err)
		assert.Equal(t, []string{"x1"}, resultIDs(results))
		assert.Equal(t, core.EntityContext{Id: "p1", Name: "Python"}, session.Context())

		stub.matches = nil
		results, err = s.Retrieve(ctx, session, "what is it used for", 3)
		require.NoError(t, err)
		assert.Equal(t, "what is it used for Python", stub.lastQuery())
		assert.Equal(t, []string{"p1"}, resultIDs(results))
	})

	t.Run("nameless top results count toward ttl", func(t *testing.T) {
		stub := &stubIndex{matches: []core.SimilarityMatch{{RecordId: "x1", Score: 0.6}}}
		s, err := NewSearcher(ctx, repo, stub)
		require.NoError(t, err)
		session := NewSession(WithContextTTL(1))
		session.refresh(core.EntityContext{Id: "p1", Name: "Python"})

		_, err = s.Retrieve(ctx, session, "zebra notes", 3)
		require.NoError(t, err)
		assert.True(t, session.Context().IsEmpty())
	})

	t.Run("context expires after ttl empty retrievals", func(t *testing.T) {
		stub := &stubIndex{}
		s, err := NewSearcher(ctx, repo, stub)
		require.NoError(t, err)
		session := NewSession(WithContextTTL(2))
		session.refresh(core.EntityContext{Id: "p1", Name: "Python"})

		_, err = s.Retrieve(ctx, session, "zebra", 3)
		require.NoError(t, err)
		assert.False(t, session.Context().IsEmpty())

		_, err = s.Retrieve(ctx, session, "zebra again", 3)
		require.NoError(t, err)
		assert.True(t, session.Context().IsEmpty())
	})

	t.Run("default and truncated topK", func(t *testing.T) {
		stub := &stubIndex{matches: []core.SimilarityMatch{
			{RecordId: "p1", Score: 0.9},
			{RecordId: "g1", Score: 0.8},
			{RecordId: "x1", Score: 0.7},
			{RecordId: "s1", Score: 0.6},
		}}
		s, err := NewSearcher(ctx, repo, stub)
		require.NoError(t, err)

		results, err := s.Retrieve(ctx, NewSession(), "anything", 0)
		require.NoError(t, err)
		assert.Len(t, results, DefaultTopK)

		results, err = s.Retrieve(ctx, NewSession(), "tell me about Ada Lovelace", 2)
		require.NoError(t, err)
		assert.Equal(t, []string{"a1", "p1"}, resultIDs(results))
	})

	t.Run("forced id is not duplicated", func(t *testing.T) {
		stub := &stubIndex{matches: []core.SimilarityMatch{
			{RecordId: "a1", Score: 0.95},
			{RecordId: "p1", Score: 0.2},
		}}
		s, err := NewSearcher(ctx, repo, stub)
		require.NoError(t, err)

		results, err := s.Retrieve(ctx, nil, "Ada Lovelace", 3)
		require.NoError(t, err)

		assert.Equal(t, []string{"a1", "p1"}, resultIDs(results))
		assert.Equal(t, core.ForcedScore, results[0].Score)
	})

	t.Run("index errors are returned", func(t *testing.T) {
		stub := &stubIndex{err: errors.New("embedding host down")}
		s, err := NewSearcher(ctx, repo, stub)
		require.NoError(t, err)
		session := NewSession()

		_, err = s.Retrieve(ctx, session, "Python", 3)
		assert.EqualError(t, err, "embedding host down")
		assert.True(t, session.Context().IsEmpty())
	})
}

// recordingMonitor captures the stages a retrieval goes through.
type recordingMonitor struct {
	noopMonitor
	stages   []string
	expanded string
	merged   []string
	previous core.EntityContext
	current  core.EntityContext
}

func (m *recordingMonitor) Start(_ string) { m.stages = append(m.stages, "start") }
func (m *recordingMonitor) AfterExpansion(expanded string) {
	m.stages = append(m.stages, "expand")
	m.expanded = expanded
}
func (m *recordingMonitor) PronounDetected(_ core.EntityContext) {
	m.stages = append(m.stages, "pronoun")
}
func (m *recordingMonitor) FuzzyMatched(_ core.KnownName, _ int) {
	m.stages = append(m.stages, "fuzzy")
}
func (m *recordingMonitor) AfterVectorSearch(_ string, _ []core.SimilarityMatch) {
	m.stages = append(m.stages, "vector")
}
func (m *recordingMonitor) AfterMerge(ids []string) {
	m.stages = append(m.stages, "merge")
	m.merged = ids
}
func (m *recordingMonitor) ContextUpdated(previous, current core.EntityContext) {
	m.stages = append(m.stages, "context")
	m.previous, m.current = previous, current
}
func (m *recordingMonitor) Finish(_ []*core.CandidateResult) { m.stages = append(m.stages, "finish") }

func TestRetrieveWithMonitor(t *testing.T) {
	ctx := context.Background()
	repo := seedRepo(t)
	stub := &stubIndex{matches: []core.SimilarityMatch{{RecordId: "p1", Score: 0.5}}}
	s, err := NewSearcher(ctx, repo, stub)
	require.NoError(t, err)

	session := NewSession()
	session.refresh(core.EntityContext{Id: "p1", Name: "Python"})
	monitor := &recordingMonitor{}

	_, err = s.RetrieveWithMonitor(ctx, session, "is it related to Ada Lovelace info", 3, monitor)
	require.NoError(t, err)

	assert.Equal(t,
		[]string{"start", "expand", "pronoun", "fuzzy", "vector", "merge", "context", "finish"},
		monitor.stages)
	assert.Equal(t, "is it related to Ada Lovelace information", monitor.expanded)
	assert.Equal(t, []string{"a1", "p1"}, monitor.merged)
	assert.Equal(t, "p1", monitor.previous.Id)
	assert.Equal(t, "a1", monitor.current.Id)
}

// newIndexedSearcher wires a real index over the knowledge records.
func newIndexedSearcher(t *testing.T) (*Searcher, *index.Index) {
	t.Helper()
	ctx := context.Background()
	repo := seedRepo(t)

	idx, err := index.New(mock.NewMockEmbedder())
	require.NoError(t, err)

	ids := make([]string, len(knowledge))
	vectors := make([][]float32, len(knowledge))
	for i, r := range knowledge {
		ids[i] = r.Id
		vectors[i] = mock.Vector(r.Content, mock.DefaultDimension)
	}
	require.NoError(t, idx.Build(ids, vectors))

	s, err := NewSearcher(ctx, repo, idx)
	require.NoError(t, err)
	return s, idx
}

func TestRetrieve_WithIndex(t *testing.T) {
	ctx := context.Background()

	t.Run("index not ready", func(t *testing.T) {
		idx, err := index.New(mock.NewMockEmbedder())
		require.NoError(t, err)
		s, err := NewSearcher(ctx, seedRepo(t), idx)
		require.NoError(t, err)

		_, err = s.Retrieve(ctx, NewSession(), "Python", 3)
		assert.ErrorIs(t, err, index.ErrIndexNotReady)
	})

	t.Run("ranking properties", func(t *testing.T) {
		s, _ := newIndexedSearcher(t)
		questions := []string{
			"programming language",
			"where did Ada Lovelace study",
			"goroutines and channels",
			"what is his education",
			"chief executive of Google",
			"tell me about Python",
			"zebra",
		}

		session := NewSession()
		for _, question := range questions {
			results, err := s.Retrieve(ctx, session, question, 3)
			require.NoError(t, err, question)
			if len(results) == 0 {
				continue
			}
			assert.LessOrEqual(t, len(results), 3, question)

			seen := make(map[string]bool)
			for _, r := range results {
				assert.False(t, seen[r.Id], "duplicate %s for %q", r.Id, question)
				seen[r.Id] = true
			}

			if results[0].Score != core.ForcedScore {
				for _, r := range results[1:] {
					assert.GreaterOrEqual(t, results[0].Score, r.Score, question)
				}
			}
			for _, r := range results[1:] {
				assert.NotEqual(t, core.ForcedScore, r.Score, question)
			}
		}
	})

	t.Run("independent sessions run concurrently", func(t *testing.T) {
		s, _ := newIndexedSearcher(t)

		var wg sync.WaitGroup
		sessions := make([]*Session, 8)
		for i := range sessions {
			sessions[i] = NewSession()
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				name := []string{"Python", "Ada Lovelace"}[i%2]
				_, err := s.Retrieve(ctx, sessions[i], fmt.Sprintf("tell me about %s", name), 3)
				assert.NoError(t, err)
			}(i)
		}
		wg.Wait()

		for i, session := range sessions {
			expected := []string{"p1", "a1"}[i%2]
			assert.Equal(t, expected, session.Context().Id)
		}
	})
}
