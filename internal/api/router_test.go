package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/BestAchadirect/Project-WebChat-sub001/internal/api/handler"
	"github.com/BestAchadirect/Project-WebChat-sub001/internal/api/middleware"
	"github.com/BestAchadirect/Project-WebChat-sub001/internal/logger"
	"github.com/stretchr/testify/assert"
)

func TestSetupRouterRegistersRoutes(t *testing.T) {
	r := SetupRouter(Handlers{
		Health:    handler.NewHealthHandler(nil),
		Documents: handler.NewDocumentHandler(nil, 0),
		Tasks:     handler.NewTaskHandler(nil),
		Search:    handler.NewSearchHandler(nil, nil, 5, nil),
		Chat:      handler.NewChatHandler(nil),
	}, "test", middleware.CORSConfig{}, logger.GetDefault())

	routes := map[string]bool{}
	for _, route := range r.Routes() {
		routes[route.Method+" "+route.Path] = true
	}
	for _, want := range []string{
		"GET /health",
		"POST /api/v1/documents",
		"GET /api/v1/documents",
		"GET /api/v1/documents/:id",
		"DELETE /api/v1/documents/:id",
		"GET /api/v1/tasks",
		"GET /api/v1/tasks/:id",
		"POST /api/v1/tasks/:id/cancel",
		"POST /api/v1/search",
		"POST /api/v1/chat",
	} {
		assert.True(t, routes[want], want)
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get(middleware.RequestIDHeader))
}
