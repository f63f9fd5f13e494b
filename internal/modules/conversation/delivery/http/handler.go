package handler

import (
	"net/http"

	"anoa.com/friendline/internal/entity"
	conversation "anoa.com/friendline/internal/modules/conversation/service"
	"anoa.com/friendline/pkg/response"
	"github.com/gin-gonic/gin"
)

type ConversationHandler struct {
	conversationService conversation.ConversationService
}

func NewConversationHandler(conversationService conversation.ConversationService) *ConversationHandler {
	return &ConversationHandler{conversationService: conversationService}
}

func (h *ConversationHandler) List(c *gin.Context) {
	userID, err := response.GetUserID(c)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	list, err := h.conversationService.LoadConversations(c.Request.Context(), userID)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": list})
}

func (h *ConversationHandler) ResolveByUsername(c *gin.Context) {
	userID, err := response.GetUserID(c)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	summary, err := h.conversationService.ResolveByUsername(c.Request.Context(), userID, c.Param("username"))
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusOK, summary)
}

func (h *ConversationHandler) MarkRead(c *gin.Context) {
	userID, err := response.GetUserID(c)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	ref, err := entity.ParseConversationRef(c.Param("ref"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid conversation id"})
		return
	}

	summary, err := h.conversationService.Resolve(c.Request.Context(), userID, ref)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	if err := h.conversationService.MarkRead(c.Request.Context(), summary, userID); err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusOK, summary)
}
