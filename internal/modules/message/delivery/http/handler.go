package handler

import (
	"net/http"

	"anoa.com/friendline/internal/entity"
	msgDto "anoa.com/friendline/internal/modules/message/dto"
	message "anoa.com/friendline/internal/modules/message/service"
	commonDto "anoa.com/friendline/pkg/dto"
	"anoa.com/friendline/pkg/response"
	"anoa.com/friendline/pkg/validator"
	"github.com/gin-gonic/gin"
)

type MessageHandler struct {
	messageService message.MessageService
}

func NewMessageHandler(messageService message.MessageService) *MessageHandler {
	return &MessageHandler{messageService: messageService}
}

func (h *MessageHandler) History(c *gin.Context) {
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

	messages, err := h.messageService.LoadHistory(c.Request.Context(), userID, ref)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusOK, msgDto.HistoryResponse{Conversation: ref, Messages: messages})
}

func (h *MessageHandler) Send(c *gin.Context) {
	userID, err := response.GetUserID(c)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	var req msgDto.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": validator.FormatValidationError(err)})
		return
	}

	ref, err := entity.ParseConversationRef(req.ConversationID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid conversation id"})
		return
	}

	res, err := h.messageService.Send(c.Request.Context(), ref, userID, req.Body, req.MediaURL)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusCreated, res)
}

func (h *MessageHandler) UploadMedia(c *gin.Context) {
	userID, err := response.GetUserID(c)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read file"})
		return
	}
	defer file.Close()

	url, err := h.messageService.UploadMedia(c.Request.Context(), userID, &commonDto.MediaFile{
		Reader:   file,
		FileName: fileHeader.Filename,
	})
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusCreated, msgDto.MediaUploadResponse{URL: url})
}
