package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/BestAchadirect/Project-WebChat-sub001/internal/apperr"
	"github.com/BestAchadirect/Project-WebChat-sub001/internal/logger"
	"github.com/BestAchadirect/Project-WebChat-sub001/internal/product"
	"github.com/google/uuid"
)

// DefaultFallbackMessage is shown to end users when the language model fails.
const DefaultFallbackMessage = "Sorry, I can't answer right now. Please try again in a moment or contact our support team."

const contextSeparator = "\n\n"

// Retriever finds the chunks most similar to a query vector.
type Retriever interface {
	Search(ctx context.Context, vector []float32, topK int, threshold *float32) ([]ScoredChunk, error)
}

// QueryCache stores query embeddings. *cache.RedisEmbeddingCache implements it.
type QueryCache interface {
	Get(ctx context.Context, model, query string) ([]float32, bool, error)
	Set(ctx context.Context, model, query string, vec []float32) error
}

// ChatConfig holds configuration for the chat service.
type ChatConfig struct {
	TopK            int
	ScoreThreshold  *float32
	MaxContextChars int
	FallbackMessage string
	ProductLimit    int
}

// TenantContext identifies the store a chat request belongs to.
type TenantContext struct {
	TenantID string `json:"tenant_id,omitempty"`
}

// ChatRequest is a single end-user question.
type ChatRequest struct {
	Query           string        `json:"query"`
	TopK            int           `json:"top_k,omitempty"`
	IncludeProducts bool          `json:"include_products,omitempty"`
	Tenant          TenantContext `json:"tenant"`
}

// ChatMetadata describes how an answer was produced.
type ChatMetadata struct {
	RetrievedCount int    `json:"retrieved_count"`
	Model          string `json:"model"`
	DurationMs     int64  `json:"duration_ms"`
}

// ChatResponse is the answer plus the chunk IDs it was grounded on.
type ChatResponse struct {
	ID       string            `json:"id"`
	Answer   string            `json:"answer"`
	Sources  []string          `json:"sources"`
	Products []product.Product `json:"products"`
	Grounded bool              `json:"grounded"`
	Fallback bool              `json:"fallback"`
	Metadata ChatMetadata      `json:"metadata"`
}

// ChatOption customizes a ChatService.
type ChatOption func(*ChatService)

// WithQueryCache caches query embeddings.
func WithQueryCache(c QueryCache) ChatOption {
	return func(s *ChatService) { s.cache = c }
}

// WithProductSource enables product recommendations.
func WithProductSource(p product.Source) ChatOption {
	return func(s *ChatService) { s.products = p }
}

// ChatService answers questions from the knowledge base:
// embed the query, retrieve chunks, add products, build a bounded context, ask the LLM.
type ChatService struct {
	embedder  Embedder
	retriever Retriever
	llm       LLM
	cache     QueryCache
	products  product.Source
	cfg       ChatConfig
}

// NewChatService creates a new chat service.
func NewChatService(embedder Embedder, retriever Retriever, llm LLM, cfg ChatConfig, opts ...ChatOption) *ChatService {
	if cfg.TopK <= 0 {
		cfg.TopK = 5
	}
	if cfg.ProductLimit <= 0 {
		cfg.ProductLimit = 3
	}
	if strings.TrimSpace(cfg.FallbackMessage) == "" {
		cfg.FallbackMessage = DefaultFallbackMessage
	}
	s := &ChatService{
		embedder:  embedder,
		retriever: retriever,
		llm:       llm,
		cfg:       cfg,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Answer runs the chat pipeline for one question.
// Only an empty query or an embedding failure produce an error; retrieval and
// product failures degrade the answer and an LLM failure yields the fallback message.
func (s *ChatService) Answer(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	start := time.Now()
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, apperr.New(apperr.ErrValidation, "query is required")
	}

	resp := &ChatResponse{ID: uuid.NewString(), Sources: []string{}, Products: []product.Product{}}
	ctx = logger.WithFields(ctx, logger.Fields{
		logger.FieldChatID:   resp.ID,
		logger.FieldTenantID: req.Tenant.TenantID,
	})

	vector, err := s.embedQuery(ctx, query)
	if err != nil {
		return nil, err
	}

	topK := req.TopK
	if topK <= 0 {
		topK = s.cfg.TopK
	}
	chunks, err := s.retriever.Search(ctx, vector, topK, s.cfg.ScoreThreshold)
	if err != nil {
		logger.FromContext(ctx).WithError(err).Warn("Retrieval failed, answering without context")
		chunks = nil
	}

	var products []product.Product
	if req.IncludeProducts && s.products != nil {
		products, err = s.products.Search(ctx, query, s.cfg.ProductLimit)
		if err != nil {
			logger.FromContext(ctx).WithError(err).Warn("Product search failed")
			products = nil
		}
	}

	knowledge, sources, used := assembleContext(chunks, products, s.cfg.MaxContextChars)
	resp.Sources = sources
	resp.Products = used

	answer, err := s.llm.Complete(ctx, query, knowledge)
	if err != nil {
		logger.FromContext(ctx).WithError(err).Error("LLM completion failed, returning fallback")
		resp.Answer = s.cfg.FallbackMessage
		resp.Fallback = true
	} else {
		resp.Answer = answer
		resp.Grounded = len(sources) > 0
	}

	resp.Metadata = ChatMetadata{
		RetrievedCount: len(chunks),
		Model:          s.llm.Model(),
		DurationMs:     time.Since(start).Milliseconds(),
	}

	logger.With(logger.Fields{
		logger.FieldCount: len(chunks),
		"grounded":        resp.Grounded,
		"fallback":        resp.Fallback,
	}).WithDuration(start).Info(ctx, "Chat answered")
	return resp, nil
}

// embedQuery consults the cache before calling the embedder.
func (s *ChatService) embedQuery(ctx context.Context, query string) ([]float32, error) {
	model := s.embedder.Model()
	if s.cache != nil {
		vec, ok, err := s.cache.Get(ctx, model, query)
		if err != nil {
			logger.FromContext(ctx).WithError(err).Warn("Query embedding cache read failed")
		} else if ok {
			return vec, nil
		}
	}

	vec, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrEmbeddingUnavailable, err, "failed to embed query")
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, model, query, vec); err != nil {
			logger.FromContext(ctx).WithError(err).Warn("Query embedding cache write failed")
		}
	}
	return vec, nil
}

// assembleContext renders chunks by rank, then products, into at most budget
// characters. Items that do not fit are dropped from the lowest rank up; when even
// the first item is too long it is truncated. A non-positive budget means no limit.
// Returns the context text, the chunk IDs included and the products included.
func assembleContext(chunks []ScoredChunk, products []product.Product, budget int) (string, []string, []product.Product) {
	var (
		b        strings.Builder
		used     int
		sources  = []string{}
		included = []product.Product{}
	)

	add := func(text string) bool {
		n := len([]rune(text))
		if used > 0 {
			n += len(contextSeparator)
		}
		if budget > 0 && used+n > budget {
			if used > 0 {
				return false
			}
			text = string([]rune(text)[:budget])
			n = budget
		}
		if used > 0 {
			b.WriteString(contextSeparator)
		}
		b.WriteString(text)
		used += n
		return true
	}

	for i, c := range chunks {
		if !add(fmt.Sprintf("[%d] %s", i+1, strings.TrimSpace(c.Chunk.Text))) {
			return b.String(), sources, included
		}
		sources = append(sources, c.Chunk.ID)
	}
	for _, p := range products {
		if !add(formatProduct(p)) {
			break
		}
		included = append(included, p)
	}
	return b.String(), sources, included
}

func formatProduct(p product.Product) string {
	line := fmt.Sprintf("Product: %s (SKU %s), price %.2f", p.Name, p.SKU, p.Price)
	if p.URL != "" {
		line += ", " + p.URL
	}
	if p.Description != "" {
		line += "\n" + p.Description
	}
	return line
}
