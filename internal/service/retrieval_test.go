package service

import (
	"context"
	"errors"
	"testing"

	"github.com/BestAchadirect/Project-WebChat-sub001/internal/apperr"
	"github.com/BestAchadirect/Project-WebChat-sub001/internal/domain"
	"github.com/BestAchadirect/Project-WebChat-sub001/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeIndex returns canned hits and records what it was asked.
// With truncate set it honours the limit like a real index.
type fakeIndex struct {
	hits      []repository.SearchResult
	err       error
	truncate  bool
	limits    []int
	lastLimit int
	upserted  []repository.ChunkPoint
	deleted   []string
}

func (f *fakeIndex) UpsertChunks(_ context.Context, chunks []repository.ChunkPoint) error {
	f.upserted = append(f.upserted, chunks...)
	return f.err
}

func (f *fakeIndex) Search(_ context.Context, _ []float32, limit int, _ string) ([]repository.SearchResult, error) {
	f.lastLimit = limit
	f.limits = append(f.limits, limit)
	if f.truncate && len(f.hits) > limit {
		return f.hits[:limit], f.err
	}
	return f.hits, f.err
}

func (f *fakeIndex) DeleteChunks(_ context.Context, ids []string) error {
	f.deleted = append(f.deleted, ids...)
	return nil
}

func (f *fakeIndex) DeleteByDocument(_ context.Context, documentID string) error {
	f.deleted = append(f.deleted, "doc:"+documentID)
	return nil
}

func seedRetrieval(t *testing.T) *repository.ChunkRepository {
	t.Helper()
	ctx := context.Background()
	db := repository.OpenTestDB(t)
	docs := repository.NewDocumentRepository(db)
	chunks := repository.NewChunkRepository(db)

	for _, d := range []struct {
		id     string
		status domain.DocumentStatus
	}{
		{"doc-a", domain.DocumentStatusCompleted},
		{"doc-b", domain.DocumentStatusCompleted},
		{"doc-c", domain.DocumentStatusProcessing},
	} {
		require.NoError(t, docs.Create(ctx, &domain.Document{
			ID: d.id, Filename: d.id + ".txt", ContentType: "text/plain",
			StoragePath: "documents/" + d.id, ContentHash: "h", Status: d.status,
		}))
	}

	require.NoError(t, chunks.CreateBatch(ctx, []domain.Chunk{
		{ID: "a0", DocumentID: "doc-a", SequenceIndex: 0, Text: "exact", Vector: domain.Vector{1, 0}},
		{ID: "a1", DocumentID: "doc-a", SequenceIndex: 1, Text: "diagonal", Vector: domain.Vector{1, 1}},
		{ID: "a2", DocumentID: "doc-a", SequenceIndex: 2, Text: "orthogonal", Vector: domain.Vector{0, 1}},
		{ID: "b0", DocumentID: "doc-b", SequenceIndex: 0, Text: "tie", Vector: domain.Vector{2, 0}},
		{ID: "b1", DocumentID: "doc-b", SequenceIndex: 1, Text: "wrong dims", Vector: domain.Vector{1, 0, 0}},
		{ID: "c0", DocumentID: "doc-c", SequenceIndex: 0, Text: "unfinished", Vector: domain.Vector{1, 0}},
	}))
	return chunks
}

func chunkIDs(results []ScoredChunk) []string {
	ids := make([]string, len(results))
	for i, r := range results {
		ids[i] = r.Chunk.ID
	}
	return ids
}

func TestRetrievalScanRanksDeterministically(t *testing.T) {
	svc := NewRetrievalService(seedRetrieval(t), nil, 1)

	results, err := svc.Search(context.Background(), []float32{1, 0}, 10, nil)
	require.NoError(t, err)

	// a0 and b0 tie at 1.0; sequence index then document ID breaks the tie.
	assert.Equal(t, []string{"a0", "b0", "a1", "a2"}, chunkIDs(results))
	assert.InDelta(t, 1.0, results[0].Score, 1e-6)
	assert.InDelta(t, 0.7071, results[2].Score, 1e-3)
	assert.InDelta(t, 0.0, results[3].Score, 1e-6)

	again, err := svc.Search(context.Background(), []float32{1, 0}, 10, nil)
	require.NoError(t, err)
	assert.Equal(t, results, again)
}

func TestRetrievalTopKAndThreshold(t *testing.T) {
	svc := NewRetrievalService(seedRetrieval(t), nil, 1)
	svc.scanBatch = 2

	results, err := svc.Search(context.Background(), []float32{1, 0}, 2, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"a0", "b0"}, chunkIDs(results))

	threshold := float32(0.5)
	results, err = svc.Search(context.Background(), []float32{1, 0}, 10, &threshold)
	require.NoError(t, err)
	assert.Equal(t, []string{"a0", "b0", "a1"}, chunkIDs(results))

	threshold = 0.99
	results, err = svc.Search(context.Background(), []float32{0, -1}, 10, &threshold)
	require.NoError(t, err)
	assert.NotNil(t, results)
	assert.Empty(t, results)
}

func TestRetrievalUsesIndexCandidates(t *testing.T) {
	index := &fakeIndex{hits: []repository.SearchResult{
		{ChunkID: "a2", Score: 0.9},
		{ChunkID: "c0", Score: 0.8},
		{ChunkID: "a1", Score: 0.1},
	}}
	svc := NewRetrievalService(seedRetrieval(t), index, 4)

	results, err := svc.Search(context.Background(), []float32{1, 0}, 5, nil)
	require.NoError(t, err)
	assert.Equal(t, 20, index.lastLimit)
	// Scores are recomputed locally and chunks of unfinished documents are dropped.
	assert.Equal(t, []string{"a1", "a2"}, chunkIDs(results))
}

func TestRetrievalWidensPastUnfinishedIndexHits(t *testing.T) {
	index := &fakeIndex{truncate: true, hits: []repository.SearchResult{
		{ChunkID: "c0", Score: 1.0},
		{ChunkID: "a0", Score: 1.0},
		{ChunkID: "b0", Score: 0.9},
	}}
	svc := NewRetrievalService(seedRetrieval(t), index, 1)

	results, err := svc.Search(context.Background(), []float32{1, 0}, 1, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"a0"}, chunkIDs(results))
	assert.Equal(t, []int{1, 2}, index.limits)
}

func TestRetrievalStopsWhenIndexIsExhausted(t *testing.T) {
	index := &fakeIndex{truncate: true, hits: []repository.SearchResult{
		{ChunkID: "c0", Score: 1.0},
		{ChunkID: "a2", Score: 0.5},
	}}
	svc := NewRetrievalService(seedRetrieval(t), index, 1)

	results, err := svc.Search(context.Background(), []float32{1, 0}, 3, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"a2"}, chunkIDs(results))
	// 3 requested, 2 returned: nothing more to fetch.
	assert.Equal(t, []int{3}, index.limits)
}

func TestRetrievalErrors(t *testing.T) {
	chunks := seedRetrieval(t)
	svc := NewRetrievalService(chunks, nil, 1)

	_, err := svc.Search(context.Background(), []float32{1, 0}, 0, nil)
	assert.True(t, errors.Is(err, apperr.ErrInvalidArgument))

	_, err = svc.Search(context.Background(), nil, 3, nil)
	assert.True(t, errors.Is(err, apperr.ErrInvalidArgument))

	failing := NewRetrievalService(chunks, &fakeIndex{err: errors.New("qdrant down")}, 1)
	_, err = failing.Search(context.Background(), []float32{1, 0}, 3, nil)
	assert.EqualError(t, err, "qdrant down")
}

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, CosineSimilarity([]float32{3, 4}, []float32{6, 8}), 1e-6)
	assert.InDelta(t, -1.0, CosineSimilarity([]float32{1, 0}, []float32{-1, 0}), 1e-6)
	assert.Equal(t, float32(0), CosineSimilarity([]float32{0, 0}, []float32{1, 0}))
}
