package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/plotwise/plotwise-backend/internal/http/response"
	"github.com/plotwise/plotwise-backend/internal/platform/logger"
	"github.com/plotwise/plotwise-backend/internal/snapshot"
)

type SnapshotHandler struct {
	log       *logger.Logger
	snapshots *snapshot.Provider
}

func NewSnapshotHandler(log *logger.Logger, p *snapshot.Provider) *SnapshotHandler {
	return &SnapshotHandler{log: log.With("Handler", "SnapshotHandler"), snapshots: p}
}

type reloadRequest struct {
	GenerationID string `json:"generation_id"`
}

// Reload is the hook the ETL collaborator invokes after publishing a new
// batch. The swap is atomic; in-flight requests finish on the prior
// generation.
func (h *SnapshotHandler) Reload(c *gin.Context) {
	var req reloadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	if strings.TrimSpace(req.GenerationID) == "" {
		response.RespondError(c, http.StatusBadRequest, "invalid_request",
			errors.New("generation_id is required"))
		return
	}

	snap, err := h.snapshots.Reload(c.Request.Context(), req.GenerationID)
	if err != nil {
		response.RespondError(c, http.StatusBadGateway, "reload_failed", err)
		return
	}
	response.RespondOK(c, gin.H{
		"generation": snap.Generation,
		"loaded_at":  snap.LoadedAt,
	})
}

// Status reports the serving generation, for deploy checks.
func (h *SnapshotHandler) Status(c *gin.Context) {
	snap := h.snapshots.Current()
	if snap == nil {
		response.RespondError(c, http.StatusServiceUnavailable, "no_generation",
			errors.New("no snapshot generation loaded"))
		return
	}
	response.RespondOK(c, gin.H{
		"generation": snap.Generation,
		"loaded_at":  snap.LoadedAt,
	})
}
