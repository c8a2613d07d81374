package answer

import (
	"context"
	"errors"
	"testing"

	"github.com/poiesic/askit/ai/mock"
	"github.com/poiesic/askit/core"
	"github.com/poiesic/askit/index"
	"github.com/poiesic/askit/search"
	"github.com/poiesic/askit/storage/badger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubRetriever struct {
	results []*core.CandidateResult
	err     error
	topK    int
}

func (s *stubRetriever) Retrieve(_ context.Context, _ *search.Session, _ string, topK int) ([]*core.CandidateResult, error) {
	s.topK = topK
	return s.results, s.err
}

func TestNewPipeline(t *testing.T) {
	_, err := NewPipeline(nil)
	assert.ErrorIs(t, err, ErrRetrieverRequired)

	_, err = NewPipeline(&stubRetriever{}, WithTopK(0))
	assert.ErrorIs(t, err, ErrInvalidTopK)

	p, err := NewPipeline(&stubRetriever{}, WithLogger(nil))
	require.NoError(t, err)
	assert.Equal(t, DefaultTopK, p.topK)
	assert.Equal(t, DefaultMaxSources, p.maxSources)
}

func TestPipelineAnswer(t *testing.T) {
	ctx := context.Background()

	t.Run("attaches the first sources", func(t *testing.T) {
		stub := &stubRetriever{results: []*core.CandidateResult{
			{Id: "a", Score: core.ForcedScore, Metadata: core.Metadata{"explanation": "A."}},
			{Id: "b", Score: 0.7, Metadata: core.Metadata{}},
			{Id: "c", Score: 0.6, Metadata: core.Metadata{}},
			{Id: "d", Score: 0.5, Metadata: core.Metadata{}},
			{Id: "e", Score: 0.4, Metadata: core.Metadata{}},
		}}
		p, err := NewPipeline(stub)
		require.NoError(t, err)

		answer, err := p.Answer(ctx, search.NewSession(), "what is a")
		require.NoError(t, err)

		assert.Equal(t, DefaultTopK, stub.topK)
		assert.Equal(t, "A.", answer.Text)
		require.Len(t, answer.Sources, 3)
		assert.Equal(t, core.Source{Id: "a", Score: core.ForcedScore, Metadata: core.Metadata{"explanation": "A."}}, answer.Sources[0])
		assert.Equal(t, "c", answer.Sources[2].Id)
	})

	t.Run("custom depth and source count", func(t *testing.T) {
		stub := &stubRetriever{results: []*core.CandidateResult{
			{Id: "a", Score: 0.9, Metadata: core.Metadata{"content": "A."}},
			{Id: "b", Score: 0.8, Metadata: core.Metadata{}},
		}}
		p, err := NewPipeline(stub, WithTopK(10), WithMaxSources(1))
		require.NoError(t, err)

		answer, err := p.Answer(ctx, nil, "anything")
		require.NoError(t, err)
		assert.Equal(t, 10, stub.topK)
		assert.Len(t, answer.Sources, 1)
	})

	t.Run("nothing found is an answer", func(t *testing.T) {
		p, err := NewPipeline(&stubRetriever{})
		require.NoError(t, err)

		answer, err := p.Answer(ctx, nil, "anything")
		require.NoError(t, err)
		assert.Equal(t, NoResultsMessage, answer.Text)
		assert.NotNil(t, answer.Sources)
		assert.Empty(t, answer.Sources)
	})

	t.Run("retrieval errors are returned", func(t *testing.T) {
		boom := errors.New("boom")
		p, err := NewPipeline(&stubRetriever{err: boom})
		require.NoError(t, err)

		_, err = p.Answer(ctx, nil, "anything")
		assert.ErrorIs(t, err, boom)
	})
}

var people = []*core.Record{
	{
		Id:       "python",
		Content:  "Python programming language",
		Metadata: `{"name": "Python", "explanation": "Python is a high-level, general-purpose programming language."}`,
	},
	{
		Id:       "ada",
		Content:  "Ada Lovelace mathematician first computer program",
		Metadata: `{"name": "Ada Lovelace", "education": "private tutoring in mathematics and science", "contribution": "the first published algorithm"}`,
	},
	{
		Id:       "sundar",
		Content:  "Sundar Pichai chief executive officer of Google and Alphabet",
		Metadata: `{"name": "Sundar Pichai", "summary": "Sundar Pichai is the CEO of Google.", "education": "IIT Kharagpur, Stanford University and Wharton", "role": "CEO", "company": "Google"}`,
	},
}

func newPeoplePipeline(t *testing.T, records []*core.Record) *Pipeline {
	t.Helper()
	ctx := context.Background()

	repo, err := badger.NewMemoryRepository()
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	if len(records) > 0 {
		_, err = repo.AddRecords(ctx, records...)
		require.NoError(t, err)
	}

	idx, err := index.New(mock.NewMockEmbedder())
	require.NoError(t, err)
	ids := make([]string, len(records))
	vectors := make([][]float32, len(records))
	for i, r := range records {
		ids[i] = r.Id
		vectors[i] = mock.Vector(r.Content, mock.DefaultDimension)
	}
	require.NoError(t, idx.Build(ids, vectors))

	searcher, err := search.NewSearcher(ctx, repo, idx)
	require.NoError(t, err)
	p, err := NewPipeline(searcher)
	require.NoError(t, err)
	return p
}

func TestPipelineAnswer_Scenarios(t *testing.T) {
	ctx := context.Background()

	t.Run("concept question answered with its explanation", func(t *testing.T) {
		p := newPeoplePipeline(t, people)

		answer, err := p.Answer(ctx, search.NewSession(), "what is python")
		require.NoError(t, err)

		assert.Equal(t, "Python is a high-level, general-purpose programming language.", answer.Text)
		require.NotEmpty(t, answer.Sources)
		assert.Equal(t, "python", answer.Sources[0].Id)
		assert.Equal(t, core.ForcedScore, answer.Sources[0].Score)
	})

	t.Run("education question names the school", func(t *testing.T) {
		p := newPeoplePipeline(t, people)

		answer, err := p.Answer(ctx, search.NewSession(), "where did Ada Lovelace study")
		require.NoError(t, err)

		assert.Equal(t, "Ada Lovelace studied at private tutoring in mathematics and science.", answer.Text)
	})

	t.Run("follow-up question resolves his", func(t *testing.T) {
		p := newPeoplePipeline(t, people)
		session := search.NewSession()

		first, err := p.Answer(ctx, session, "who is Sundar Pichai")
		require.NoError(t, err)
		assert.Equal(t,
			"Sundar Pichai is the CEO of Google.\n\nEducation: IIT Kharagpur, Stanford University and Wharton\n\nRole: CEO at Google",
			first.Text)

		second, err := p.Answer(ctx, session, "what is his education")
		require.NoError(t, err)
		assert.Equal(t, "Sundar Pichai studied at IIT Kharagpur, Stanford University and Wharton.", second.Text)
		assert.Equal(t, "sundar", second.Sources[0].Id)
	})

	t.Run("empty knowledge base", func(t *testing.T) {
		p := newPeoplePipeline(t, nil)

		answer, err := p.Answer(ctx, search.NewSession(), "who is anyone")
		require.NoError(t, err)
		assert.Equal(t, NoResultsMessage, answer.Text)
		assert.Empty(t, answer.Sources)
	})
}
