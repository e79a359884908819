package handler

import (
	"net/http"
	"strings"

	"github.com/BestAchadirect/Project-WebChat-sub001/internal/apperr"
	"github.com/BestAchadirect/Project-WebChat-sub001/internal/service"
	"github.com/gin-gonic/gin"
)

// SearchHandler handles knowledge base search for the admin dashboard.
type SearchHandler struct {
	embedder  service.Embedder
	retriever service.Retriever
	topK      int
	threshold *float32
}

// NewSearchHandler creates a new search handler.
// Parameters:
//   - embedder: query embedder.
//   - retriever: vector retrieval engine.
//   - topK: default number of results.
//   - threshold: default minimum score, nil for none.
// Returns:
//   - *SearchHandler: initialized handler.
func NewSearchHandler(embedder service.Embedder, retriever service.Retriever, topK int, threshold *float32) *SearchHandler {
	return &SearchHandler{embedder: embedder, retriever: retriever, topK: topK, threshold: threshold}
}

// SearchRequest is the body of POST /api/v1/search.
type SearchRequest struct {
	Query          string   `json:"query" binding:"required"`
	TopK           int      `json:"top_k" binding:"omitempty,min=1,max=100"`
	ScoreThreshold *float32 `json:"score_threshold" binding:"omitempty,min=-1,max=1"`
}

// SearchResult is one ranked chunk.
type SearchResult struct {
	ChunkID       string  `json:"chunk_id"`
	DocumentID    string  `json:"document_id"`
	SequenceIndex int     `json:"sequence_index"`
	Text          string  `json:"text"`
	Score         float32 `json:"score"`
}

// SearchResponse lists results best first.
type SearchResponse struct {
	Query   string         `json:"query"`
	Results []SearchResult `json:"results"`
	Total   int            `json:"total"`
}

// Search handles POST /api/v1/search.
func (h *SearchHandler) Search(c *gin.Context) {
	var req SearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request: "+err.Error())
		return
	}
	query := strings.TrimSpace(req.Query)
	if query == "" {
		badRequest(c, "query is required")
		return
	}

	topK := req.TopK
	if topK == 0 {
		topK = h.topK
	}
	threshold := h.threshold
	if req.ScoreThreshold != nil {
		threshold = req.ScoreThreshold
	}

	ctx := c.Request.Context()
	vector, err := h.embedder.EmbedQuery(ctx, query)
	if err != nil {
		respondError(c, apperr.Wrap(apperr.ErrEmbeddingUnavailable, err, "failed to embed query"))
		return
	}

	hits, err := h.retriever.Search(ctx, vector, topK, threshold)
	if err != nil {
		respondError(c, err)
		return
	}

	results := make([]SearchResult, len(hits))
	for i, hit := range hits {
		results[i] = SearchResult{
			ChunkID:       hit.Chunk.ID,
			DocumentID:    hit.Chunk.DocumentID,
			SequenceIndex: hit.Chunk.SequenceIndex,
			Text:          hit.Chunk.Text,
			Score:         hit.Score,
		}
	}

	c.JSON(http.StatusOK, SearchResponse{Query: query, Results: results, Total: len(results)})
}
