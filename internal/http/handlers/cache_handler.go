// Cache HTTP handlers.
//
//   - POST /cache/invalidate   (drop every cached view carrying one of the tags)
package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-travel-register/internal/services"
)

// InvalidateCacheRequest lists the tags to invalidate.
type InvalidateCacheRequest struct {
	Tags []string `json:"tags" example:"register"`
}

// InvalidateCacheResponse reports how many cached views were dropped.
type InvalidateCacheResponse struct {
	Deleted int64 `json:"deleted" example:"3"`
}

// InvalidateCache godoc
// @ID          invalidateCache
// @Summary     Invalidate cached views by tag
// @Tags        Cache
// @Accept      json
// @Produce     json
// @Param       body  body  handlers.InvalidateCacheRequest  true  "Tags"
// @Success     200  {object}  handlers.InvalidateCacheResponse
// @Failure     400  {object}  handlers.ErrorResponse "No tags"
// @Failure     500  {object}  handlers.ErrorResponse "Internal error"
// @Router      /cache/invalidate [post]
func (h *Handlers) InvalidateCache(c *gin.Context) {
	var req InvalidateCacheRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	tags := req.Tags[:0]
	for _, t := range req.Tags {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}
	if len(tags) == 0 {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, services.ErrNoTags.Error())
		return
	}
	if h.cache == nil {
		ok(c, http.StatusOK, InvalidateCacheResponse{})
		return
	}

	n, err := h.cache.Invalidate(c.Request.Context(), tags...)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeCacheFailed, err.Error())
		return
	}
	ok(c, http.StatusOK, InvalidateCacheResponse{Deleted: n})
}
