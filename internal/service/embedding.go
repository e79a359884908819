package service

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/BestAchadirect/Project-WebChat-sub001/internal/apperr"
	"github.com/BestAchadirect/Project-WebChat-sub001/internal/config"
	"github.com/go-resty/resty/v2"
)

const (
	jinaEndpoint = "https://api.jina.ai/v1/embeddings"
)

// Embedder turns text into vectors.
type Embedder interface {
	// EmbedBatch embeds document passages, one vector per input, in input order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	// EmbedQuery embeds a search query.
	EmbedQuery(ctx context.Context, query string) ([]float32, error)
	Model() string
	Dimensions() int
}

// EmbeddingService calls a Jina or OpenAI-compatible embeddings endpoint.
// Failures are classified as apperr transient (429, 5xx, network) or permanent (other 4xx,
// malformed responses) so callers can decide whether to retry.
type EmbeddingService struct {
	client     *resty.Client
	provider   string
	endpoint   string
	model      string
	dimensions int
}

// NewEmbeddingService creates a new embedding service
// Parameters:
//   - cfg: provider, model, credentials and dimensions.
// Returns:
//   - *EmbeddingService: client ready to embed.
func NewEmbeddingService(cfg *config.EmbeddingConfig) *EmbeddingService {
	client := resty.New()
	client.SetHeader("Authorization", "Bearer "+cfg.APIKey)
	client.SetHeader("Content-Type", "application/json")
	if cfg.Timeout > 0 {
		client.SetTimeout(cfg.Timeout)
	}

	endpoint := jinaEndpoint
	if cfg.BaseURL != "" {
		endpoint = strings.TrimSuffix(cfg.BaseURL, "/") + "/embeddings"
	}

	return &EmbeddingService{
		client:     client,
		provider:   cfg.Provider,
		endpoint:   endpoint,
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
	}
}

// Model returns the model name being used
func (s *EmbeddingService) Model() string {
	return s.model
}

// Dimensions returns the configured vector size.
func (s *EmbeddingService) Dimensions() int {
	return s.dimensions
}

// embeddingRequest is accepted by both Jina and OpenAI-compatible endpoints;
// OpenAI ignores the Jina-only fields when they are omitted.
type embeddingRequest struct {
	Model         string   `json:"model"`
	Task          string   `json:"task,omitempty"`
	Dimensions    int      `json:"dimensions,omitempty"`
	Input         []string `json:"input"`
	EmbeddingType string   `json:"embedding_type,omitempty"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Detail string `json:"detail,omitempty"`
	Error  *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (r *embeddingResponse) message() string {
	if r.Detail != "" {
		return r.Detail
	}
	if r.Error != nil {
		return r.Error.Message
	}
	return ""
}

// EmbedBatch generates embeddings for multiple texts
func (s *EmbeddingService) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	return s.embed(ctx, texts, "retrieval.passage")
}

// EmbedQuery generates an embedding optimized for query/search
func (s *EmbeddingService) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	vectors, err := s.embed(ctx, []string{query}, "retrieval.query")
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (s *EmbeddingService) embed(ctx context.Context, texts []string, task string) ([][]float32, error) {
	req := embeddingRequest{
		Model:      s.model,
		Dimensions: s.dimensions,
		Input:      texts,
	}
	if s.provider == "jina" {
		req.Task = task
		req.EmbeddingType = "float"
	}

	var resp embeddingResponse
	httpResp, err := s.client.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&resp).
		SetError(&resp).
		Post(s.endpoint)
	if err != nil {
		return nil, classifyTransportError(ctx, err, "embedding request failed")
	}

	if httpResp.StatusCode() != http.StatusOK {
		return nil, classifyStatus(httpResp.StatusCode(), resp.message(), "embedding API")
	}

	if len(resp.Data) != len(texts) {
		return nil, apperr.New(apperr.ErrInvalidInput,
			"unexpected number of embeddings: got %d, expected %d", len(resp.Data), len(texts))
	}

	embeddings := make([][]float32, len(texts))
	for _, item := range resp.Data {
		if item.Index < 0 || item.Index >= len(embeddings) {
			return nil, apperr.New(apperr.ErrInvalidInput, "embedding index %d out of range", item.Index)
		}
		if s.dimensions > 0 && len(item.Embedding) != s.dimensions {
			return nil, apperr.New(apperr.ErrInvalidInput,
				"embedding has %d dimensions, expected %d", len(item.Embedding), s.dimensions)
		}
		embeddings[item.Index] = item.Embedding
	}
	for i, e := range embeddings {
		if e == nil {
			return nil, apperr.New(apperr.ErrInvalidInput, "missing embedding for input %d", i)
		}
	}

	return embeddings, nil
}

// classifyStatus maps an HTTP status from an external API to an apperr kind.
func classifyStatus(status int, detail, api string) error {
	msg := fmt.Sprintf("%s error: status %d", api, status)
	if detail != "" {
		msg = fmt.Sprintf("%s error: status %d: %s", api, status, detail)
	}

	switch {
	case status == http.StatusTooManyRequests:
		return apperr.New(apperr.ErrRateLimited, "%s", msg)
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return apperr.New(apperr.ErrTimeout, "%s", msg)
	case status >= 500:
		return apperr.New(apperr.ErrTransientExternal, "%s", msg)
	default:
		return apperr.New(apperr.ErrInvalidInput, "%s", msg)
	}
}

// classifyTransportError maps a failed round trip to an apperr kind.
// Cancellation by the caller is returned as is so retries stop.
func classifyTransportError(ctx context.Context, err error, msg string) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return apperr.Wrap(apperr.ErrTimeout, err, "%s", msg)
	}
	return apperr.Wrap(apperr.ErrTransientExternal, err, "%s", msg)
}

// RetryingEmbedder retries transient failures of the wrapped Embedder.
type RetryingEmbedder struct {
	Embedder
	policy RetryPolicy
}

// NewRetryingEmbedder wraps inner with the given policy.
func NewRetryingEmbedder(inner Embedder, policy RetryPolicy) *RetryingEmbedder {
	return &RetryingEmbedder{Embedder: inner, policy: policy}
}

// EmbedBatch embeds texts, retrying transient failures.
func (e *RetryingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	var out [][]float32
	err := RetryWithBackoff(ctx, e.policy, func(ctx context.Context) error {
		var err error
		out, err = e.Embedder.EmbedBatch(ctx, texts)
		return err
	})
	return out, err
}

// EmbedQuery embeds a query, retrying transient failures.
func (e *RetryingEmbedder) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	var out []float32
	err := RetryWithBackoff(ctx, e.policy, func(ctx context.Context) error {
		var err error
		out, err = e.Embedder.EmbedQuery(ctx, query)
		return err
	})
	return out, err
}
