package delivery

import (
	"errors"
	"net/http"

	contactdomain "github.com/staal2333/crmsync-extension-sub001/internal/contact/domain"
	syncdto "github.com/staal2333/crmsync-extension-sub001/internal/sync/dto"
	"github.com/staal2333/crmsync-extension-sub001/internal/sync/usecase"

	"github.com/gin-gonic/gin"
)

type SyncHandler struct {
	syncUsecase usecase.SyncUsecase
}

func NewSyncHandler(syncUsecase usecase.SyncUsecase) *SyncHandler {
	return &SyncHandler{
		syncUsecase: syncUsecase,
	}
}

func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, contactdomain.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, contactdomain.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, contactdomain.ErrInvariant):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

func (h *SyncHandler) FullSync(c *gin.Context) {
	accountID := c.GetString("accountID")

	var req syncdto.FullSyncRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	resp, err := h.syncUsecase.FullSync(accountID, &req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *SyncHandler) IncrementalSync(c *gin.Context) {
	accountID := c.GetString("accountID")

	var req syncdto.IncrementalSyncRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	resp, err := h.syncUsecase.IncrementalSync(accountID, &req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Acknowledge commits a received cursor. The stored cursor only moves here,
// never when a sync response is produced.
func (h *SyncHandler) Acknowledge(c *gin.Context) {
	accountID := c.GetString("accountID")

	var req syncdto.AckRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.syncUsecase.Acknowledge(accountID, req.Cursor); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "cursor acknowledged"})
}
