package service

import (
	"context"
	"math"
	"sort"

	"github.com/BestAchadirect/Project-WebChat-sub001/internal/apperr"
	"github.com/BestAchadirect/Project-WebChat-sub001/internal/domain"
	"github.com/BestAchadirect/Project-WebChat-sub001/internal/logger"
	"github.com/BestAchadirect/Project-WebChat-sub001/internal/repository"
)

const defaultScanBatch = 500

// VectorIndex is an approximate nearest neighbour index over chunk vectors.
// QdrantRepository implements it.
type VectorIndex interface {
	UpsertChunks(ctx context.Context, chunks []repository.ChunkPoint) error
	Search(ctx context.Context, vector []float32, limit int, documentID string) ([]repository.SearchResult, error)
	DeleteChunks(ctx context.Context, chunkIDs []string) error
	DeleteByDocument(ctx context.Context, documentID string) error
}

// ScoredChunk is a retrieval hit.
type ScoredChunk struct {
	Chunk domain.Chunk `json:"chunk"`
	Score float32      `json:"score"`
}

// RetrievalService ranks chunks of completed documents by cosine similarity.
//
// Candidates come from the vector index when one is configured, otherwise from a
// scan of the chunk table. Either way rows are re-read from SQL filtered on
// document status and scored locally, so the ranking is identical on both paths.
type RetrievalService struct {
	chunks     *repository.ChunkRepository
	index      VectorIndex
	oversample int
	scanBatch  int
}

// NewRetrievalService creates a retrieval engine. index may be nil.
func NewRetrievalService(chunks *repository.ChunkRepository, index VectorIndex, oversample int) *RetrievalService {
	if oversample < 1 {
		oversample = 1
	}
	return &RetrievalService{
		chunks:     chunks,
		index:      index,
		oversample: oversample,
		scanBatch:  defaultScanBatch,
	}
}

// Search returns at most topK chunks ordered by score descending, then sequence
// index and document ID ascending. When threshold is set, chunks scoring below it
// are dropped before truncation.
func (s *RetrievalService) Search(ctx context.Context, vector []float32, topK int, threshold *float32) ([]ScoredChunk, error) {
	if topK < 1 {
		return nil, apperr.New(apperr.ErrInvalidArgument, "top_k must be at least 1, got %d", topK)
	}
	if len(vector) == 0 {
		return nil, apperr.New(apperr.ErrInvalidArgument, "query vector is empty")
	}

	if s.index != nil {
		return s.searchIndex(ctx, vector, topK, threshold)
	}

	ranked := &topKCollector{k: topK, vector: vector, threshold: threshold}
	err := s.chunks.ScanCompleted(ctx, s.scanBatch, func(page []domain.Chunk) error {
		ranked.add(ctx, page)
		return ctx.Err()
	})
	if err != nil {
		return nil, err
	}
	return ranked.result(), nil
}

// searchIndex asks the index for topK*oversample candidates. Points of documents
// that are not completed yet occupy candidate slots, so when fewer than topK
// candidates survive the status filter the request is doubled until enough do or
// the index has nothing more to return.
func (s *RetrievalService) searchIndex(ctx context.Context, vector []float32, topK int, threshold *float32) ([]ScoredChunk, error) {
	limit := topK * s.oversample
	for {
		hits, err := s.index.Search(ctx, vector, limit, "")
		if err != nil {
			return nil, err
		}
		ids := make([]string, len(hits))
		for i, h := range hits {
			ids[i] = h.ChunkID
		}
		chunks, err := s.chunks.GetCompletedByIDs(ctx, ids)
		if err != nil {
			return nil, err
		}

		if len(chunks) >= topK || len(hits) < limit {
			ranked := &topKCollector{k: topK, vector: vector, threshold: threshold}
			ranked.add(ctx, chunks)
			return ranked.result(), nil
		}

		logger.With(logger.Fields{logger.FieldCount: len(chunks), "limit": limit}).
			Debug(ctx, "Index candidates mostly unfinished, widening search")
		limit *= 2
	}
}

// topKCollector keeps the best k scored chunks seen so far.
type topKCollector struct {
	k         int
	vector    []float32
	threshold *float32
	items     []ScoredChunk
}

func (c *topKCollector) add(ctx context.Context, chunks []domain.Chunk) {
	for _, ch := range chunks {
		if len(ch.Vector) != len(c.vector) {
			logger.CtxWarn(ctx, "Skipping chunk %s: vector has %d dimensions, query has %d",
				ch.ID, len(ch.Vector), len(c.vector))
			continue
		}
		score := CosineSimilarity(c.vector, ch.Vector)
		if c.threshold != nil && score < *c.threshold {
			continue
		}
		c.items = append(c.items, ScoredChunk{Chunk: ch, Score: score})
	}
	if len(c.items) > 2*c.k {
		c.trim()
	}
}

func (c *topKCollector) trim() {
	sortScored(c.items)
	if len(c.items) > c.k {
		c.items = c.items[:c.k]
	}
}

func (c *topKCollector) result() []ScoredChunk {
	c.trim()
	if c.items == nil {
		return []ScoredChunk{}
	}
	return c.items
}

// sortScored orders by score desc, sequence index asc, document ID asc, chunk ID asc.
func sortScored(items []ScoredChunk) {
	sort.Slice(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Chunk.SequenceIndex != b.Chunk.SequenceIndex {
			return a.Chunk.SequenceIndex < b.Chunk.SequenceIndex
		}
		if a.Chunk.DocumentID != b.Chunk.DocumentID {
			return a.Chunk.DocumentID < b.Chunk.DocumentID
		}
		return a.Chunk.ID < b.Chunk.ID
	})
}

// CosineSimilarity returns the cosine of the angle between a and b, or 0 when
// either has zero length. a and b must have the same length.
func CosineSimilarity(a, b []float32) float32 {
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}
