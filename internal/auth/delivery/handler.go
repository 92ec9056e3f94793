package delivery

import (
	"fmt"
	"net/http"

	authdomain "github.com/staal2333/crmsync-extension-sub001/internal/auth/domain"
	"github.com/staal2333/crmsync-extension-sub001/internal/auth/repository"
	"github.com/staal2333/crmsync-extension-sub001/internal/auth/usecase"
	scandomain "github.com/staal2333/crmsync-extension-sub001/internal/scan/domain"
	"github.com/staal2333/crmsync-extension-sub001/pkg/config"
	"github.com/staal2333/crmsync-extension-sub001/pkg/crypto"
	"github.com/staal2333/crmsync-extension-sub001/pkg/gmail"

	"github.com/gin-gonic/gin"
)

type AuthHandler struct {
	authUsecase  usecase.AuthUsecase
	tokenRepo    repository.DeviceTokenRepository
	accountRepo  repository.AccountRepository
	gmailService *gmail.Service
	cfg          *config.Config
}

func NewAuthHandler(authUsecase usecase.AuthUsecase, tokenRepo repository.DeviceTokenRepository, accountRepo repository.AccountRepository, gmailService *gmail.Service, cfg *config.Config) *AuthHandler {
	return &AuthHandler{
		authUsecase:  authUsecase,
		tokenRepo:    tokenRepo,
		accountRepo:  accountRepo,
		gmailService: gmailService,
		cfg:          cfg,
	}
}

// ProvisionRequest registers a mailbox with this service. Tokens come from
// the external OAuth flow; IMAP credentials are stored encrypted.
type ProvisionRequest struct {
	Email        string `json:"email" binding:"required"`
	Name         string `json:"name"`
	Provider     string `json:"provider"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ImapServer   string `json:"imap_server"`
	ImapPort     int    `json:"imap_port"`
	ImapPassword string `json:"imap_password"`
}

func (h *AuthHandler) Provision(c *gin.Context) {
	var req ProvisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	provider := req.Provider
	if provider == "" {
		provider = "google"
	}

	account := &authdomain.Account{
		Email:        req.Email,
		Name:         req.Name,
		Provider:     provider,
		AccessToken:  req.AccessToken,
		RefreshToken: req.RefreshToken,
		ImapServer:   req.ImapServer,
		ImapPort:     req.ImapPort,
	}

	if provider == "imap" {
		if req.ImapPassword == "" || req.ImapServer == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "imap accounts require server and password"})
			return
		}
		encrypted, err := crypto.Encrypt(req.ImapPassword, h.cfg.EncryptionKey)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("failed to store credentials: %v", err)})
			return
		}
		account.ImapPassword = encrypted
	}

	provisioned, err := h.authUsecase.ProvisionAccount(account)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, provisioned)
}

func (h *AuthHandler) Me(c *gin.Context) {
	account, ok := c.Get("account")
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
		return
	}
	c.JSON(http.StatusOK, account)
}

func (h *AuthHandler) GetSettings(c *gin.Context) {
	accountID := c.GetString("accountID")

	settings, err := h.authUsecase.GetSettings(accountID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, settings)
}

func (h *AuthHandler) UpdateSettings(c *gin.Context) {
	accountID := c.GetString("accountID")

	var settings authdomain.AccountSettings
	if err := c.ShouldBindJSON(&settings); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	settings.AccountID = accountID

	if err := h.authUsecase.UpdateSettings(&settings); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, settings)
}

type RegisterDeviceTokenRequest struct {
	Token string `json:"token" binding:"required"`
}

func (h *AuthHandler) RegisterDeviceToken(c *gin.Context) {
	accountID := c.GetString("accountID")

	var req RegisterDeviceTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.tokenRepo.Register(accountID, req.Token); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "device token registered"})
}

func (h *AuthHandler) UnregisterDeviceToken(c *gin.Context) {
	token := c.Param("token")

	if err := h.tokenRepo.DeleteToken(token); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "device token removed"})
}

// WatchMailbox registers Gmail push notifications for the account, feeding
// inbound signals through pub/sub between scans.
func (h *AuthHandler) WatchMailbox(c *gin.Context) {
	accountID := c.GetString("accountID")

	account, err := h.accountRepo.FindByID(accountID)
	if err != nil || account == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "account lookup failed"})
		return
	}
	if account.Provider != "google" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "mailbox watch requires a google account"})
		return
	}
	if h.cfg.GoogleProjectID == "" {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "push notifications are not configured"})
		return
	}

	creds := &scandomain.MailCredentials{
		Email:        account.Email,
		AccessToken:  account.AccessToken,
		RefreshToken: account.RefreshToken,
		OnTokenRefresh: func(accessToken, refreshToken string) error {
			account.AccessToken = accessToken
			if refreshToken != "" {
				account.RefreshToken = refreshToken
			}
			return h.accountRepo.Update(account)
		},
	}

	topicName := fmt.Sprintf("projects/%s/topics/%s", h.cfg.GoogleProjectID, h.cfg.GooglePubSubTopic)
	if err := h.gmailService.Watch(c.Request.Context(), creds, topicName); err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "mailbox watch registered"})
}
