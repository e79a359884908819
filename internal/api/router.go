package api

import (
	"github.com/BestAchadirect/Project-WebChat-sub001/internal/api/handler"
	"github.com/BestAchadirect/Project-WebChat-sub001/internal/api/middleware"
	"github.com/BestAchadirect/Project-WebChat-sub001/internal/logger"
	"github.com/gin-gonic/gin"
)

// Handlers groups the endpoint handlers mounted by SetupRouter.
type Handlers struct {
	Health    *handler.HealthHandler
	Documents *handler.DocumentHandler
	Tasks     *handler.TaskHandler
	Search    *handler.SearchHandler
	Chat      *handler.ChatHandler
}

// SetupRouter configures the Gin router with all routes
func SetupRouter(h Handlers, mode string, cors middleware.CORSConfig, log *logger.Logger) *gin.Engine {
	// Set Gin mode
	switch mode {
	case "release":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.DebugMode)
	}

	r := gin.New()

	// Add middleware
	r.Use(gin.Recovery())
	r.Use(middleware.LoggerMiddleware(log))
	r.Use(middleware.CORS(cors))
	r.Use(middleware.Tenant())

	// Health check
	r.GET("/health", h.Health.Health)

	// API v1 routes
	v1 := r.Group("/api/v1")
	{
		// Knowledge base
		v1.POST("/documents", h.Documents.Upload)
		v1.GET("/documents", h.Documents.List)
		v1.GET("/documents/:id", h.Documents.Get)
		v1.DELETE("/documents/:id", h.Documents.Delete)

		// Background tasks
		v1.GET("/tasks", h.Tasks.List)
		v1.GET("/tasks/:id", h.Tasks.Get)
		v1.POST("/tasks/:id/cancel", h.Tasks.Cancel)

		// Retrieval and chat
		v1.POST("/search", h.Search.Search)
		v1.POST("/chat", h.Chat.Chat)
	}

	return r
}
