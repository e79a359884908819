package handler

import (
	"context"
	"net/http"

	"github.com/BestAchadirect/Project-WebChat-sub001/internal/api/middleware"
	"github.com/BestAchadirect/Project-WebChat-sub001/internal/service"
	"github.com/gin-gonic/gin"
)

// ChatService answers end-user questions.
type ChatService interface {
	Answer(ctx context.Context, req service.ChatRequest) (*service.ChatResponse, error)
}

// ChatHandler handles the chat endpoint used by the storefront widget.
type ChatHandler struct {
	chat ChatService
}

// NewChatHandler creates a new chat handler.
func NewChatHandler(chat ChatService) *ChatHandler {
	return &ChatHandler{chat: chat}
}

// ChatRequest is the body of POST /api/v1/chat.
type ChatRequest struct {
	Query           string `json:"query" binding:"required"`
	TopK            int    `json:"top_k" binding:"omitempty,min=1,max=50"`
	IncludeProducts bool   `json:"include_products"`
}

// Chat handles POST /api/v1/chat.
func (h *ChatHandler) Chat(c *gin.Context) {
	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request: "+err.Error())
		return
	}

	resp, err := h.chat.Answer(c.Request.Context(), service.ChatRequest{
		Query:           req.Query,
		TopK:            req.TopK,
		IncludeProducts: req.IncludeProducts,
		Tenant:          service.TenantContext{TenantID: middleware.TenantID(c)},
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}
