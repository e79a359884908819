package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/BestAchadirect/Project-WebChat-sub001/internal/api/middleware"
	"github.com/BestAchadirect/Project-WebChat-sub001/internal/apperr"
	"github.com/BestAchadirect/Project-WebChat-sub001/internal/domain"
	"github.com/BestAchadirect/Project-WebChat-sub001/internal/repository"
	"github.com/BestAchadirect/Project-WebChat-sub001/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDocuments struct {
	lastIngest service.IngestRequest
	lastFilter repository.DocumentFilter
	ingestErr  error
	docs       map[string]*domain.Document
}

func (f *fakeDocuments) Ingest(_ context.Context, req service.IngestRequest) (*domain.Document, error) {
	f.lastIngest = req
	if f.ingestErr != nil {
		return nil, f.ingestErr
	}
	return &domain.Document{ID: "doc-1", Filename: req.Filename, Status: domain.DocumentStatusPending, TaskID: "task-1"}, nil
}

func (f *fakeDocuments) GetDocument(_ context.Context, id string) (*domain.Document, error) {
	if d, ok := f.docs[id]; ok {
		return d, nil
	}
	return nil, apperr.New(apperr.ErrNotFound, "document %s not found", id)
}

func (f *fakeDocuments) ListDocuments(_ context.Context, filter repository.DocumentFilter) ([]domain.Document, int64, error) {
	f.lastFilter = filter
	return nil, 0, nil
}

func (f *fakeDocuments) DeleteDocument(_ context.Context, id string) error {
	if _, ok := f.docs[id]; !ok {
		return apperr.New(apperr.ErrNotFound, "document %s not found", id)
	}
	delete(f.docs, id)
	return nil
}

type fakeTasks struct {
	status domain.TaskStatus
}

func (f *fakeTasks) Get(_ context.Context, id string) (*domain.Task, error) {
	return &domain.Task{ID: id, Status: f.status}, nil
}

func (f *fakeTasks) List(_ context.Context, filter repository.TaskFilter) ([]domain.Task, int64, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, 0, apperr.New(apperr.ErrInvalidArgument, "unknown task status %q", filter.Status)
	}
	return []domain.Task{{ID: "t1"}}, 1, nil
}

func (f *fakeTasks) Cancel(_ context.Context, id string) (*domain.Task, error) {
	if f.status.IsTerminal() {
		return nil, apperr.New(apperr.ErrInvalidTransition, "cannot cancel task %s in status %s", id, f.status)
	}
	f.status = domain.TaskStatusCancelled
	return &domain.Task{ID: id, Status: f.status}, nil
}

type fakeChat struct {
	last service.ChatRequest
	err  error
}

func (f *fakeChat) Answer(_ context.Context, req service.ChatRequest) (*service.ChatResponse, error) {
	f.last = req
	if f.err != nil {
		return nil, f.err
	}
	return &service.ChatResponse{Answer: "hi", Sources: []string{"c1"}, Grounded: true}, nil
}

type fakeEmbedder struct{ err error }

func (f fakeEmbedder) EmbedBatch(context.Context, []string) ([][]float32, error) { return nil, f.err }
func (f fakeEmbedder) EmbedQuery(context.Context, string) ([]float32, error)     { return []float32{1, 0}, f.err }
func (f fakeEmbedder) Model() string                                             { return "fake" }
func (f fakeEmbedder) Dimensions() int                                           { return 2 }

type fakeRetriever struct{ lastTopK int }

func (f *fakeRetriever) Search(_ context.Context, _ []float32, topK int, _ *float32) ([]service.ScoredChunk, error) {
	f.lastTopK = topK
	return []service.ScoredChunk{{Chunk: domain.Chunk{ID: "c1", DocumentID: "d1", Text: "returns"}, Score: 0.9}}, nil
}

func newTestEngine() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(middleware.Tenant())
	return r
}

func doJSON(r http.Handler, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) apperr.ErrorResponse {
	t.Helper()
	var resp apperr.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestDocumentUpload(t *testing.T) {
	docs := &fakeDocuments{}
	r := newTestEngine()
	r.POST("/documents", NewDocumentHandler(docs, 1024).Upload)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", "faq.txt")
	require.NoError(t, err)
	_, _ = part.Write([]byte("Shipping takes 3 days."))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/documents", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set(middleware.TenantHeader, "acme")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusAccepted, w.Code)
	var resp UploadResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "task-1", resp.TaskID)
	assert.Equal(t, "faq.txt", docs.lastIngest.Filename)
	assert.Equal(t, "acme", docs.lastIngest.TenantID)
	assert.Equal(t, "Shipping takes 3 days.", string(docs.lastIngest.Data))
}

func TestDocumentUploadErrors(t *testing.T) {
	docs := &fakeDocuments{ingestErr: apperr.New(apperr.ErrUnsupportedType, "content type \"image/png\" is not allowed")}
	r := newTestEngine()
	r.POST("/documents", NewDocumentHandler(docs, 8).Upload)

	w := doJSON(r, http.MethodPost, "/documents", "{}", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	upload := func(name, content string) *httptest.ResponseRecorder {
		var body bytes.Buffer
		mw := multipart.NewWriter(&body)
		part, _ := mw.CreateFormFile("file", name)
		_, _ = part.Write([]byte(content))
		_ = mw.Close()
		req := httptest.NewRequest(http.MethodPost, "/documents", &body)
		req.Header.Set("Content-Type", mw.FormDataContentType())
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	w = upload("big.txt", "more than eight bytes")
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.Equal(t, "PAYLOAD_TOO_LARGE", decodeError(t, w).Error)

	w = upload("a.png", "png")
	assert.Equal(t, http.StatusUnsupportedMediaType, w.Code)
	assert.Equal(t, "UNSUPPORTED_TYPE", decodeError(t, w).Error)
}

func TestDocumentGetListDelete(t *testing.T) {
	docs := &fakeDocuments{docs: map[string]*domain.Document{"d1": {ID: "d1", Filename: "a.txt"}}}
	h := NewDocumentHandler(docs, 0)
	r := newTestEngine()
	r.GET("/documents", h.List)
	r.GET("/documents/:id", h.Get)
	r.DELETE("/documents/:id", h.Delete)

	w := doJSON(r, http.MethodGet, "/documents/d1", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"filename":"a.txt"`)

	w = doJSON(r, http.MethodGet, "/documents?page=2&page_size=500&status=completed", "", map[string]string{middleware.TenantHeader: "acme"})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"items":[],"total":0,"page":2,"page_size":100}`, w.Body.String())
	assert.Equal(t, repository.DocumentFilter{Status: "completed", TenantID: "acme", Limit: 100, Offset: 100}, docs.lastFilter)

	w = doJSON(r, http.MethodGet, "/documents?page=0", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(r, http.MethodDelete, "/documents/d1", "", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = doJSON(r, http.MethodDelete, "/documents/d1", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "NOT_FOUND", decodeError(t, w).Error)
}

func TestTaskEndpoints(t *testing.T) {
	tasks := &fakeTasks{status: domain.TaskStatusRunning}
	h := NewTaskHandler(tasks)
	r := newTestEngine()
	r.GET("/tasks", h.List)
	r.GET("/tasks/:id", h.Get)
	r.POST("/tasks/:id/cancel", h.Cancel)

	w := doJSON(r, http.MethodGet, "/tasks", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"total":1`)

	w = doJSON(r, http.MethodGet, "/tasks?status=bogus", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_ARGUMENT", decodeError(t, w).Error)

	w = doJSON(r, http.MethodPost, "/tasks/t1/cancel", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"cancelled"`)

	w = doJSON(r, http.MethodPost, "/tasks/t1/cancel", "", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "INVALID_TRANSITION", decodeError(t, w).Error)
}

func TestChatEndpoint(t *testing.T) {
	chat := &fakeChat{}
	r := newTestEngine()
	r.POST("/chat", NewChatHandler(chat).Chat)

	w := doJSON(r, http.MethodPost, "/chat", `{"query":"return policy?","include_products":true}`,
		map[string]string{middleware.TenantHeader: "acme"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "acme", chat.last.Tenant.TenantID)
	assert.True(t, chat.last.IncludeProducts)
	assert.Contains(t, w.Body.String(), `"grounded":true`)

	w = doJSON(r, http.MethodPost, "/chat", `{}`, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	chat.err = apperr.Wrap(apperr.ErrEmbeddingUnavailable, errors.New("dial tcp: refused"), "failed to embed query")
	w = doJSON(r, http.MethodPost, "/chat", `{"query":"hi"}`, nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	resp := decodeError(t, w)
	assert.Equal(t, "EMBEDDING_UNAVAILABLE", resp.Error)
	assert.NotContains(t, resp.Message, "dial tcp")

	chat.err = errors.New("boom")
	w = doJSON(r, http.MethodPost, "/chat", `{"query":"hi"}`, nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "boom")
}

func TestSearchEndpoint(t *testing.T) {
	retriever := &fakeRetriever{}
	r := newTestEngine()
	r.POST("/search", NewSearchHandler(fakeEmbedder{}, retriever, 5, nil).Search)

	w := doJSON(r, http.MethodPost, "/search", `{"query":"returns"}`, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 5, retriever.lastTopK)
	var resp SearchResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "c1", resp.Results[0].ChunkID)

	w = doJSON(r, http.MethodPost, "/search", `{"query":"returns","top_k":500}`, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	r2 := newTestEngine()
	r2.POST("/search", NewSearchHandler(fakeEmbedder{err: errors.New("down")}, retriever, 5, nil).Search)
	w = doJSON(r2, http.MethodPost, "/search", `{"query":"returns"}`, nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

type fakePinger struct{ err error }

func (p fakePinger) PingContext(context.Context) error { return p.err }

func TestHealth(t *testing.T) {
	r := newTestEngine()
	r.GET("/ok", NewHealthHandler(fakePinger{}).Health)
	r.GET("/down", NewHealthHandler(fakePinger{err: errors.New("connection refused")}).Health)

	assert.Equal(t, http.StatusOK, doJSON(r, http.MethodGet, "/ok", "", nil).Code)
	assert.Equal(t, http.StatusServiceUnavailable, doJSON(r, http.MethodGet, "/down", "", nil).Code)
}
