package handler

import (
	"net/http"

	searchDto "anoa.com/friendline/internal/modules/search/dto"
	search "anoa.com/friendline/internal/modules/search/service"
	"anoa.com/friendline/pkg/apperror"
	"anoa.com/friendline/pkg/response"
	"anoa.com/friendline/pkg/validator"
	"github.com/gin-gonic/gin"
)

type SearchHandler struct {
	searchService search.SearchService
}

func NewSearchHandler(searchService search.SearchService) *SearchHandler {
	return &SearchHandler{searchService: searchService}
}

func (h *SearchHandler) SearchProfiles(c *gin.Context) {
	var q searchDto.SearchQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": validator.FormatValidationError(err)})
		return
	}

	hits, err := h.searchService.SearchProfiles(q.Q, q.Limit)
	if err != nil {
		response.ResponseError(c, apperror.Wrap(apperror.ErrNetwork, "search is unavailable"))
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": hits})
}
