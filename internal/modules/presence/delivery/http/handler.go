package handler

import (
	"net/http"

	presence "anoa.com/friendline/internal/modules/presence/service"
	"anoa.com/friendline/pkg/dto"
	"anoa.com/friendline/pkg/response"
	"github.com/gin-gonic/gin"
)

type PresenceHandler struct {
	presenceService presence.PresenceService
}

func NewPresenceHandler(presenceService presence.PresenceService) *PresenceHandler {
	return &PresenceHandler{presenceService: presenceService}
}

// Heartbeat serves clients that poll instead of holding a realtime session.
func (h *PresenceHandler) Heartbeat(c *gin.Context) {
	userID, err := response.GetUserID(c)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	at, err := h.presenceService.Heartbeat(c.Request.Context(), userID)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.TimestampResponse{At: at})
}
