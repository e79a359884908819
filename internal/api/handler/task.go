package handler

import (
	"context"
	"net/http"

	"github.com/BestAchadirect/Project-WebChat-sub001/internal/domain"
	"github.com/BestAchadirect/Project-WebChat-sub001/internal/repository"
	"github.com/gin-gonic/gin"
)

// TaskService is the task tracker surface used by TaskHandler.
type TaskService interface {
	Get(ctx context.Context, id string) (*domain.Task, error)
	List(ctx context.Context, filter repository.TaskFilter) ([]domain.Task, int64, error)
	Cancel(ctx context.Context, id string) (*domain.Task, error)
}

// TaskHandler exposes background task status.
type TaskHandler struct {
	tasks TaskService
}

// NewTaskHandler creates a new task handler.
func NewTaskHandler(tasks TaskService) *TaskHandler {
	return &TaskHandler{tasks: tasks}
}

// List handles GET /api/v1/tasks, filtered by optional status and type.
func (h *TaskHandler) List(c *gin.Context) {
	page, size, offset, ok := pagination(c)
	if !ok {
		return
	}

	tasks, total, err := h.tasks.List(c.Request.Context(), repository.TaskFilter{
		Status: domain.TaskStatus(c.Query("status")),
		Type:   domain.TaskType(c.Query("type")),
		Limit:  size,
		Offset: offset,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	if tasks == nil {
		tasks = []domain.Task{}
	}

	c.JSON(http.StatusOK, ListResponse{Items: tasks, Total: total, Page: page, PageSize: size})
}

// Get handles GET /api/v1/tasks/:id.
func (h *TaskHandler) Get(c *gin.Context) {
	task, err := h.tasks.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, task)
}

// Cancel handles POST /api/v1/tasks/:id/cancel.
// Finished tasks answer 409 and are left unchanged.
func (h *TaskHandler) Cancel(c *gin.Context) {
	task, err := h.tasks.Cancel(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, task)
}
