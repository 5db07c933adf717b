package handlers

import (
	"encoding/json"
	"io"
	"net/http"

	"go-pos-sync/internal/models"

	"github.com/gin-gonic/gin"
)

// PushSync - POST /api/sync
// Applies an ordered batch. Individual failures are reported in the
// results but the call itself succeeds so the peer can clear its queue.
func (h *Handler) PushSync(c *gin.Context) {
	var ops []models.SyncOperation
	if err := c.ShouldBindJSON(&ops); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Body must be an array of operations"})
		return
	}

	results := h.Proc.Apply(c.Request.Context(), ops)
	c.JSON(http.StatusOK, models.BatchResponse{Success: true, Results: results})
}

// GetSync - GET /api/sync
func (h *Handler) GetSync(c *gin.Context) {
	snap, err := h.Proc.Snapshot(c.Request.Context())
	if err != nil {
		h.log().Error("snapshot failed", "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load snapshot"})
		return
	}
	c.JSON(http.StatusOK, snap)
}

// FullSync - POST /api/sync/full
func (h *Handler) FullSync(c *gin.Context) {
	var bundle models.FullSyncBundle
	if err := c.ShouldBindJSON(&bundle); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid full sync bundle"})
		return
	}

	results, err := h.Proc.ApplyFull(c.Request.Context(), &bundle)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, models.BatchResponse{Success: true, Results: results})
}

// PostTransaction - POST /api/transaction
// Shortcut for a single new-transaction operation. Unlike the batch
// endpoint a rejected transaction is answered with 400.
func (h *Handler) PostTransaction(c *gin.Context) {
	raw, err := io.ReadAll(c.Request.Body)
	if err != nil || !json.Valid(raw) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid transaction"})
		return
	}

	op := models.SyncOperation{Type: models.OpNewTransaction, Data: raw}
	res := h.Proc.Apply(c.Request.Context(), []models.SyncOperation{op})[0]
	if res.Status != models.ResultOK {
		c.JSON(http.StatusBadRequest, gin.H{"error": res.Error})
		return
	}
	c.JSON(http.StatusOK, res)
}
