package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/plotwise/plotwise-backend/internal/domain"
	"github.com/plotwise/plotwise-backend/internal/http/response"
	"github.com/plotwise/plotwise-backend/internal/platform/ctxutil"
	"github.com/plotwise/plotwise-backend/internal/platform/logger"
	"github.com/plotwise/plotwise-backend/internal/search/pipeline"
)

type SearchHandler struct {
	log      *logger.Logger
	pipeline *pipeline.Pipeline
}

func NewSearchHandler(log *logger.Logger, p *pipeline.Pipeline) *SearchHandler {
	return &SearchHandler{log: log.With("Handler", "SearchHandler"), pipeline: p}
}

// Search runs the full ranked retrieval and returns the free disclosure
// view: count, teasers, and the ranked id page.
func (h *SearchHandler) Search(c *gin.Context) {
	var raw domain.RawPreference
	if err := c.ShouldBindJSON(&raw); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_preference", err)
		return
	}
	applyCallerContext(c, &raw)

	resp, err := h.pipeline.Search(c.Request.Context(), raw)
	if err != nil {
		response.RespondTaxonomy(c, err)
		return
	}
	response.RespondOK(c, resp)
}

// Count is the count-only mode, used by the agent for too-narrow/too-broad
// feedback before committing to a full search.
func (h *SearchHandler) Count(c *gin.Context) {
	var raw domain.RawPreference
	if err := c.ShouldBindJSON(&raw); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_preference", err)
		return
	}
	applyCallerContext(c, &raw)

	total, breakdown, err := h.pipeline.Count(c.Request.Context(), raw)
	if err != nil {
		response.RespondTaxonomy(c, err)
		return
	}
	response.RespondOK(c, gin.H{
		"total_count":     total,
		"scope_breakdown": breakdown,
	})
}

// applyCallerContext makes the authenticated identity authoritative over
// whatever the request body claims.
func applyCallerContext(c *gin.Context, raw *domain.RawPreference) {
	if cd := ctxutil.GetCallerData(c.Request.Context()); cd != nil {
		if cd.CallerID != "" {
			raw.CallerID = cd.CallerID
		}
		if cd.SessionID != "" {
			raw.SessionID = cd.SessionID
		}
	}
}
