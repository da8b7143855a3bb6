package retrieval

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/planora-ai/planora/internal/models"
)

type fakeEmbedder struct {
	failOn map[string]bool
}

func (f *fakeEmbedder) EmbedTexts(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		if f.failOn[t] {
			return nil, errors.New("embedding backend unavailable")
		}
		out[i] = []float32{float32(len(t)), 1, 0}
	}
	return out, nil
}

type fakeSearcher struct {
	chunks  []models.ScoredChunk
	failAll bool
	calls   int
}

func (f *fakeSearcher) SearchChunks(_ context.Context, _ models.SearchScope, _ []float32, _ string, _ int) ([]models.ScoredChunk, error) {
	f.calls++
	if f.failAll {
		return nil, errors.New("db down")
	}
	return f.chunks, nil
}

func scored(seq int, sim float64) models.ScoredChunk {
	return models.ScoredChunk{
		Chunk:      models.Chunk{ID: string(rune('a' + seq)), SequenceIndex: seq, SectionTitle: "S"},
		Similarity: sim,
	}
}

func newService(searcher *fakeSearcher, failOn map[string]bool) *Service {
	return NewService(searcher, &fakeEmbedder{failOn: failOn}, "text-embedding-004")
}

func TestSearchReturnsPerQueryResults(t *testing.T) {
	searcher := &fakeSearcher{chunks: []models.ScoredChunk{scored(0, 0.9), scored(1, 0.8)}}
	svc := newService(searcher, nil)

	res, err := svc.Search(context.Background(),
		[]string{"housing need", "flood risk"},
		models.SearchScope{CollectionID: "c1"},
		Options{TopK: 5})
	require.NoError(t, err)
	require.Len(t, res, 2)
	assert.Equal(t, "housing need", res[0].Query)
	assert.Len(t, res[0].Chunks, 2)
	assert.Empty(t, res[0].Err)
}

func TestSearchPartialFailureIsolation(t *testing.T) {
	searcher := &fakeSearcher{chunks: []models.ScoredChunk{scored(0, 0.9)}}
	svc := newService(searcher, map[string]bool{"q2": true})

	res, err := svc.Search(context.Background(),
		[]string{"q1", "q2", "q3"},
		models.SearchScope{CollectionID: "c1"},
		Options{TopK: 3})
	require.NoError(t, err)
	require.Len(t, res, 3)

	assert.NotEmpty(t, res[0].Chunks)
	assert.Empty(t, res[0].Err)

	assert.Empty(t, res[1].Chunks)
	assert.Contains(t, res[1].Err, "embed query")

	assert.NotEmpty(t, res[2].Chunks)
	assert.Empty(t, res[2].Err)
}

func TestSearchStoreFailureRecordedPerQuery(t *testing.T) {
	searcher := &fakeSearcher{failAll: true}
	svc := newService(searcher, nil)

	res, err := svc.Search(context.Background(), []string{"q"},
		models.SearchScope{CollectionID: "c1"}, Options{})
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Contains(t, res[0].Err, "search chunks")
}

func TestSearchThresholdAndTieBreak(t *testing.T) {
	searcher := &fakeSearcher{chunks: []models.ScoredChunk{
		scored(5, 0.80),
		scored(2, 0.80), // equal score, lower sequence: must rank first
		scored(9, 0.95),
		scored(1, 0.10), // below threshold
	}}
	svc := newService(searcher, nil)

	res, err := svc.Search(context.Background(), []string{"q"},
		models.SearchScope{CollectionID: "c1"},
		Options{TopK: 10, SimilarityThreshold: 0.5})
	require.NoError(t, err)
	chunks := res[0].Chunks
	require.Len(t, chunks, 3)
	assert.Equal(t, 9, chunks[0].SequenceIndex)
	assert.Equal(t, 2, chunks[1].SequenceIndex)
	assert.Equal(t, 5, chunks[2].SequenceIndex)
}

func TestSearchTopKApplied(t *testing.T) {
	searcher := &fakeSearcher{chunks: []models.ScoredChunk{
		scored(0, 0.9), scored(1, 0.8), scored(2, 0.7),
	}}
	svc := newService(searcher, nil)

	res, err := svc.Search(context.Background(), []string{"q"},
		models.SearchScope{CollectionID: "c1"}, Options{TopK: 2})
	require.NoError(t, err)
	assert.Len(t, res[0].Chunks, 2)
}

func TestSearchRequiresCollection(t *testing.T) {
	svc := newService(&fakeSearcher{}, nil)
	_, err := svc.Search(context.Background(), []string{"q"}, models.SearchScope{}, Options{})
	require.Error(t, err)
}
