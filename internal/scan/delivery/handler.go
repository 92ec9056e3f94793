package delivery

import (
	"errors"
	"net/http"
	"strconv"

	contactdomain "github.com/staal2333/crmsync-extension-sub001/internal/contact/domain"
	contactusecase "github.com/staal2333/crmsync-extension-sub001/internal/contact/usecase"
	scandomain "github.com/staal2333/crmsync-extension-sub001/internal/scan/domain"
	scandto "github.com/staal2333/crmsync-extension-sub001/internal/scan/dto"
	"github.com/staal2333/crmsync-extension-sub001/internal/scan/usecase"

	"github.com/gin-gonic/gin"
)

type ScanHandler struct {
	scanUsecase usecase.ScanUsecase
	settings    contactusecase.SettingsProvider
}

func NewScanHandler(scanUsecase usecase.ScanUsecase, settings contactusecase.SettingsProvider) *ScanHandler {
	return &ScanHandler{
		scanUsecase: scanUsecase,
		settings:    settings,
	}
}

func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, contactdomain.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, contactdomain.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

func (h *ScanHandler) StartScan(c *gin.Context) {
	accountID := c.GetString("accountID")

	var req scandto.StartScanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	options := scandomain.ScanOptions{
		MaxEmails:  req.MaxEmails,
		Connectors: req.Connectors,
	}

	switch req.DateRange {
	case "", "all":
		options.DateRangeDays = 0
	default:
		days, err := strconv.Atoi(req.DateRange)
		if err != nil || days < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "date_range must be a day count or \"all\""})
			return
		}
		options.DateRangeDays = days
	}

	// Unset flags fall back to the account's stored scan policy.
	settings, err := h.settings.GetSettings(accountID)
	if err != nil {
		respondError(c, err)
		return
	}
	options.UpdateExisting = settings.UpdateExisting
	options.CreateNew = settings.CreateNew
	if options.MaxEmails <= 0 {
		options.MaxEmails = settings.ScanMaxEmails
	}
	if req.UpdateExisting != nil {
		options.UpdateExisting = *req.UpdateExisting
	}
	if req.CreateNew != nil {
		options.CreateNew = *req.CreateNew
	}

	sessionID, err := h.scanUsecase.StartScan(accountID, options)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, scandto.StartScanResponse{SessionID: sessionID})
}

func (h *ScanHandler) GetSession(c *gin.Context) {
	accountID := c.GetString("accountID")
	id := c.Param("id")

	snapshot, err := h.scanUsecase.GetSession(accountID, id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, snapshot)
}

func (h *ScanHandler) ListSessions(c *gin.Context) {
	accountID := c.GetString("accountID")
	sessions := h.scanUsecase.ListSessions(accountID)
	c.JSON(http.StatusOK, scandto.SessionsResponse{Sessions: sessions})
}

func (h *ScanHandler) CancelSession(c *gin.Context) {
	accountID := c.GetString("accountID")
	id := c.Param("id")

	if err := h.scanUsecase.CancelSession(accountID, id); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "cancellation requested"})
}

func (h *ScanHandler) GetHistory(c *gin.Context) {
	accountID := c.GetString("accountID")

	limit := 50
	if limitStr := c.Query("limit"); limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	scans, err := h.scanUsecase.GetHistory(accountID, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, scandto.HistoryResponse{Scans: scans})
}
