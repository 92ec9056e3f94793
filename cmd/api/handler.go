package api

import (
	authDelivery "github.com/staal2333/crmsync-extension-sub001/internal/auth/delivery"
	authUsecase "github.com/staal2333/crmsync-extension-sub001/internal/auth/usecase"
	contactDelivery "github.com/staal2333/crmsync-extension-sub001/internal/contact/delivery"
	contactUsecasePkg "github.com/staal2333/crmsync-extension-sub001/internal/contact/usecase"
	scanDelivery "github.com/staal2333/crmsync-extension-sub001/internal/scan/delivery"
	scanUsecasePkg "github.com/staal2333/crmsync-extension-sub001/internal/scan/usecase"
	syncDelivery "github.com/staal2333/crmsync-extension-sub001/internal/sync/delivery"
	syncUsecasePkg "github.com/staal2333/crmsync-extension-sub001/internal/sync/usecase"
	"github.com/staal2333/crmsync-extension-sub001/pkg/config"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	authUsecase    authUsecase.AuthUsecase
	authHandler    *authDelivery.AuthHandler
	contactHandler *contactDelivery.ContactHandler
	syncHandler    *syncDelivery.SyncHandler
	scanHandler    *scanDelivery.ScanHandler
	config         *config.Config
}

func NewHandler(
	authUc authUsecase.AuthUsecase,
	authHandler *authDelivery.AuthHandler,
	contactUc contactUsecasePkg.ContactUsecase,
	syncUc syncUsecasePkg.SyncUsecase,
	scanUc scanUsecasePkg.ScanUsecase,
	cfg *config.Config,
) *Handler {
	return &Handler{
		authUsecase:    authUc,
		authHandler:    authHandler,
		contactHandler: contactDelivery.NewContactHandler(contactUc),
		syncHandler:    syncDelivery.NewSyncHandler(syncUc),
		scanHandler:    scanDelivery.NewScanHandler(scanUc, authUc),
		config:         cfg,
	}
}

func (h *Handler) Start(addr string) error {
	r := gin.Default()
	gin.SetMode(gin.ReleaseMode)

	// CORS middleware
	r.Use(func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin != "" {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
		} else {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		}

		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE, PATCH")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	SetupRoutes(r, h.authUsecase, h.authHandler, h.contactHandler, h.syncHandler, h.scanHandler)

	return r.Run(addr)
}
