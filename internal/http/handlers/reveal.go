package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/plotwise/plotwise-backend/internal/http/response"
	pkgerrors "github.com/plotwise/plotwise-backend/internal/pkg/errors"
	"github.com/plotwise/plotwise-backend/internal/platform/ctxutil"
	"github.com/plotwise/plotwise-backend/internal/platform/logger"
	"github.com/plotwise/plotwise-backend/internal/search/pipeline"
)

type RevealHandler struct {
	log      *logger.Logger
	pipeline *pipeline.Pipeline
}

func NewRevealHandler(log *logger.Logger, p *pipeline.Pipeline) *RevealHandler {
	return &RevealHandler{log: log.With("Handler", "RevealHandler"), pipeline: p}
}

type revealRequest struct {
	ParcelID  string `json:"parcel_id"`
	CallerID  string `json:"caller_id,omitempty"`
	SessionID string `json:"session_id,omitempty"`
}

// Reveal unlocks full detail for one parcel, charging one credit. An
// exhausted balance returns 402 with the payment prompt in the error
// details instead of partial data.
func (h *RevealHandler) Reveal(c *gin.Context) {
	var req revealRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_preference", err)
		return
	}

	callerID, sessionID := req.CallerID, req.SessionID
	if cd := ctxutil.GetCallerData(c.Request.Context()); cd != nil {
		if cd.CallerID != "" {
			callerID = cd.CallerID
		}
		if cd.SessionID != "" {
			sessionID = cd.SessionID
		}
	}
	if strings.TrimSpace(callerID) == "" {
		response.RespondError(c, http.StatusBadRequest, "invalid_preference",
			errors.New("caller identity is required"))
		return
	}

	reveal, prompt, err := h.pipeline.Reveal(c.Request.Context(), callerID, sessionID, req.ParcelID)
	if err != nil {
		if errors.Is(err, pkgerrors.ErrInsufficientCredits) {
			response.RespondErrorDetails(c, http.StatusPaymentRequired, "insufficient_credits", err, prompt)
			return
		}
		response.RespondTaxonomy(c, err)
		return
	}
	response.RespondOK(c, reveal)
}
