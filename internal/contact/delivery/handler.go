package delivery

import (
	"errors"
	"net/http"

	contactdomain "github.com/staal2333/crmsync-extension-sub001/internal/contact/domain"
	contactdto "github.com/staal2333/crmsync-extension-sub001/internal/contact/dto"
	"github.com/staal2333/crmsync-extension-sub001/internal/contact/repository"
	"github.com/staal2333/crmsync-extension-sub001/internal/contact/usecase"

	"github.com/gin-gonic/gin"
)

type ContactHandler struct {
	contactUsecase usecase.ContactUsecase
}

func NewContactHandler(contactUsecase usecase.ContactUsecase) *ContactHandler {
	return &ContactHandler{
		contactUsecase: contactUsecase,
	}
}

// respondError maps domain errors onto HTTP statuses.
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

func (h *ContactHandler) UpsertContact(c *gin.Context) {
	accountID := c.GetString("accountID")

	var req contactdto.UpsertContactRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	contact, err := h.contactUsecase.UpsertContact(accountID, req.ToDomain())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, contact)
}

func (h *ContactHandler) GetContact(c *gin.Context) {
	accountID := c.GetString("accountID")
	email := c.Param("email")

	contact, err := h.contactUsecase.GetContact(accountID, email)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, contact)
}

func (h *ContactHandler) GetContacts(c *gin.Context) {
	accountID := c.GetString("accountID")

	filter := repository.ContactFilter{
		Status:         contactdomain.LifecycleStatus(c.Query("status")),
		Tag:            c.Query("tag"),
		IncludeDeleted: c.Query("include_deleted") == "true",
	}

	contacts, err := h.contactUsecase.GetContacts(accountID, filter)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, contactdto.ContactsResponse{
		Contacts: contacts,
		Total:    len(contacts),
	})
}

func (h *ContactHandler) DeleteContact(c *gin.Context) {
	accountID := c.GetString("accountID")
	email := c.Param("email")

	if err := h.contactUsecase.DeleteContact(accountID, email); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "contact deleted"})
}

func (h *ContactHandler) MergeInboundSignal(c *gin.Context) {
	accountID := c.GetString("accountID")

	var req contactdto.InboundSignalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	err := h.contactUsecase.MergeInboundSignal(accountID, usecase.InboundSignal{
		Email:      req.Email,
		Name:       req.Name,
		Company:    req.Company,
		Title:      req.Title,
		Phone:      req.Phone,
		Subject:    req.Subject,
		ReceivedAt: req.ReceivedAt,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "signal merged"})
}

func (h *ContactHandler) RecordOutboundSignal(c *gin.Context) {
	accountID := c.GetString("accountID")

	var req contactdto.OutboundSignalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	err := h.contactUsecase.RecordOutboundSignal(accountID, usecase.OutboundSignal{
		Recipients: req.Recipients,
		Subject:    req.Subject,
		SentAt:     req.SentAt,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "signal recorded"})
}

func (h *ContactHandler) GetFollowUpQueue(c *gin.Context) {
	accountID := c.GetString("accountID")

	entries, err := h.contactUsecase.GetFollowUpQueue(accountID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, contactdto.FollowUpQueueResponse{Entries: entries})
}

func (h *ContactHandler) DetectDuplicates(c *gin.Context) {
	accountID := c.GetString("accountID")

	groups, err := h.contactUsecase.DetectDuplicates(accountID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, contactdto.DuplicatesResponse{Groups: groups})
}

func (h *ContactHandler) MergeContacts(c *gin.Context) {
	accountID := c.GetString("accountID")

	var req contactdto.MergeContactsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	merged, err := h.contactUsecase.MergeContacts(accountID, req.Emails)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, merged)
}
