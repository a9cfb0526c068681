package answer

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bull/kb-server/internal/storage"
)

type fakeEmbedder struct {
	vector []float32
}

func (f *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = f.vector
	}
	return out, nil
}

func (f *fakeEmbedder) Model() string { return "fake" }

type fakeGenerator struct {
	calls  int
	prompt string
	answer string
	err    error
}

func (f *fakeGenerator) Generate(_ context.Context, prompt string, _ float32) (string, error) {
	f.calls++
	f.prompt = prompt
	if f.err != nil {
		return "", f.err
	}
	return f.answer, nil
}

func (f *fakeGenerator) Model() string { return "fake-llm" }

func seedStore(t *testing.T) storage.Store {
	t.Helper()
	store := storage.NewMemory()
	manifest := storage.Manifest{EmbeddingModel: "fake", Dimension: 3}
	points := []*storage.Point{
		{ID: "1", Text: "Employees receive 25 vacation days.", Source: "doc1.pdf", Page: 1, Vector: []float32{0.2, 0.9, 0}},
		{ID: "2", Text: "Remote work requires manager approval.", Source: "doc1.pdf", Page: 2, Vector: []float32{1, 0, 0}},
		{ID: "3", Text: "Expenses are filed monthly.", Source: "doc2.pdf", Page: 1, Vector: []float32{0, 0.1, 1}},
	}
	require.NoError(t, store.Replace(context.Background(), "kb", manifest, points))
	return store
}

func TestRetrieve_RanksBySimilarityDescending(t *testing.T) {
	store := seedStore(t)
	retriever := NewRetriever(&fakeEmbedder{vector: []float32{1, 0.1, 0}}, store, "kb")

	results, err := retriever.Retrieve(context.Background(), "who approves remote work?", 2)
	require.NoError(t, err)

	require.Len(t, results, 2)
	assert.Equal(t, "2", results[0].Point.ID, "best match first")
	assert.GreaterOrEqual(t, results[0].Score, results[1].Score)
}

func TestRetrieve_TopKBound(t *testing.T) {
	store := seedStore(t)
	retriever := NewRetriever(&fakeEmbedder{vector: []float32{1, 1, 1}}, store, "kb")

	results, err := retriever.Retrieve(context.Background(), "anything", 10)
	require.NoError(t, err)
	assert.Len(t, results, 3, "never more than stored")
}

func TestRetrieve_AbsentIndexIsEmptyNotError(t *testing.T) {
	retriever := NewRetriever(&fakeEmbedder{vector: []float32{1, 0, 0}}, storage.NewMemory(), "missing")

	results, err := retriever.Retrieve(context.Background(), "anything", 4)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestBuildPrompt_Contract(t *testing.T) {
	results := []*storage.ScoredPoint{
		{Point: &storage.Point{Text: "First passage.", Source: "a.pdf"}, Score: 0.9},
		{Point: &storage.Point{Text: "Second passage.", Source: "b.pdf"}, Score: 0.5},
	}

	prompt := BuildPrompt("What is the policy?", results)

	assert.True(t, strings.HasPrefix(prompt, SystemInstruction), "system instruction first")
	assert.Contains(t, prompt, "[a.pdf]\nFirst passage.")
	assert.Contains(t, prompt, "[b.pdf]\nSecond passage.")
	assert.Contains(t, prompt, "\n\n---\n\n", "passages separated by delimiter")
	assert.Contains(t, prompt, "QUESTION:\nWhat is the policy?")
	assert.True(t, strings.HasSuffix(prompt, "Answer briefly. At the end, list sources used."))

	// Ranked order preserved.
	assert.Less(t, strings.Index(prompt, "[a.pdf]"), strings.Index(prompt, "[b.pdf]"))
	// Context comes after the instruction and before the question.
	assert.Less(t, strings.Index(prompt, "CONTEXT:"), strings.Index(prompt, "QUESTION:"))
}

func TestBuildPrompt_MissingSourceGetsPlaceholder(t *testing.T) {
	results := []*storage.ScoredPoint{
		{Point: &storage.Point{Text: "Orphan passage."}, Score: 0.9},
	}
	prompt := BuildPrompt("q", results)
	assert.Contains(t, prompt, "[doc1]\nOrphan passage.")
}

func TestAnswer_EmptyContextShortCircuits(t *testing.T) {
	generator := &fakeGenerator{answer: "should never appear"}
	retriever := NewRetriever(&fakeEmbedder{vector: []float32{1, 0, 0}}, storage.NewMemory(), "missing")
	service := NewService(retriever, generator, 4, nil)

	got, err := service.Answer(context.Background(), "anything?", Options{})
	require.NoError(t, err)

	assert.Equal(t, NoContextAnswer, got)
	assert.Zero(t, generator.calls, "generator must not be invoked on empty context")
}

func TestAnswer_GroundedAnswer(t *testing.T) {
	store := seedStore(t)
	generator := &fakeGenerator{answer: "25 days. Sources: doc1.pdf"}
	retriever := NewRetriever(&fakeEmbedder{vector: []float32{0.2, 0.9, 0}}, store, "kb")
	service := NewService(retriever, generator, 4, nil)

	got, err := service.Answer(context.Background(), "How many vacation days?", Options{TopK: 2})
	require.NoError(t, err)

	assert.Equal(t, "25 days. Sources: doc1.pdf", got, "generator output returned unmodified")
	assert.Equal(t, 1, generator.calls)
	assert.Contains(t, generator.prompt, "[doc1.pdf]")
	assert.Contains(t, generator.prompt, "How many vacation days?")
}

func TestAnswer_GenerationFailure(t *testing.T) {
	store := seedStore(t)
	generator := &fakeGenerator{err: errors.New("model timeout")}
	retriever := NewRetriever(&fakeEmbedder{vector: []float32{1, 0, 0}}, store, "kb")
	service := NewService(retriever, generator, 4, nil)

	_, err := service.Answer(context.Background(), "anything?", Options{})
	assert.ErrorIs(t, err, ErrGeneration)
}

func TestAnswer_EndToEndBestMatchFirst(t *testing.T) {
	// Three chunks from one document; the query vector points at chunk 2.
	store := storage.NewMemory()
	manifest := storage.Manifest{EmbeddingModel: "fake", Dimension: 3}
	points := []*storage.Point{
		{ID: "c1", Text: "Intro section.", Source: "doc1.pdf", Page: 1, Vector: []float32{1, 0, 0}},
		{ID: "c2", Text: "Sick leave rules.", Source: "doc1.pdf", Page: 2, Vector: []float32{0, 1, 0}},
		{ID: "c3", Text: "Appendix.", Source: "doc1.pdf", Page: 3, Vector: []float32{0, 0, 1}},
	}
	require.NoError(t, store.Replace(context.Background(), "kb", manifest, points))

	retriever := NewRetriever(&fakeEmbedder{vector: []float32{0.1, 1, 0.1}}, store, "kb")
	results, err := retriever.Retrieve(context.Background(), "what are the sick leave rules?", 3)
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, "c2", results[0].Point.ID)

	prompt := BuildPrompt("what are the sick leave rules?", results)
	assert.Contains(t, prompt, "[doc1.pdf]\nSick leave rules.")
}
