package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/BestAchadirect/Project-WebChat-sub001/internal/apperr"
	"github.com/BestAchadirect/Project-WebChat-sub001/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEmbeddingService(t *testing.T, handler http.HandlerFunc) *EmbeddingService {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewEmbeddingService(&config.EmbeddingConfig{
		Provider:   "openai-compatible",
		Model:      "test-model",
		APIKey:     "k",
		BaseURL:    srv.URL,
		Dimensions: 2,
	})
}

func TestEmbeddingServiceReordersByIndex(t *testing.T) {
	svc := newTestEmbeddingService(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer k", r.Header.Get("Authorization"))

		var req embeddingRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, []string{"a", "b"}, req.Input)
		assert.Empty(t, req.Task)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":[{"index":1,"embedding":[0,1]},{"index":0,"embedding":[1,0]}]}`))
	})

	vectors, err := svc.EmbedBatch(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{1, 0}, {0, 1}}, vectors)
}

func TestEmbeddingServiceClassifiesFailures(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   *apperr.Error
	}{
		{"rate limited", http.StatusTooManyRequests, `{"detail":"slow down"}`, apperr.ErrRateLimited},
		{"server error", http.StatusBadGateway, `{}`, apperr.ErrTransientExternal},
		{"bad request", http.StatusBadRequest, `{"error":{"message":"too long"}}`, apperr.ErrInvalidInput},
		{"wrong dimensions", http.StatusOK, `{"data":[{"index":0,"embedding":[1,2,3]}]}`, apperr.ErrInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newTestEmbeddingService(t, func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})
			_, err := svc.EmbedQuery(context.Background(), "q")
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestRetryingEmbedderRetriesTransientOnly(t *testing.T) {
	var calls int32
	svc := newTestEmbeddingService(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{}`))
			return
		}
		_, _ = w.Write([]byte(`{"data":[{"index":0,"embedding":[1,0]}]}`))
	})

	embedder := NewRetryingEmbedder(svc, fastPolicy(3))
	v, err := embedder.EmbedQuery(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 0}, v)
	assert.EqualValues(t, 3, atomic.LoadInt32(&calls))
	assert.Equal(t, "test-model", embedder.Model())
}
