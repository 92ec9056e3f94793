package api

import (
	"net/http"

	authDelivery "github.com/staal2333/crmsync-extension-sub001/internal/auth/delivery"
	authUsecase "github.com/staal2333/crmsync-extension-sub001/internal/auth/usecase"
	contactDelivery "github.com/staal2333/crmsync-extension-sub001/internal/contact/delivery"
	scanDelivery "github.com/staal2333/crmsync-extension-sub001/internal/scan/delivery"
	syncDelivery "github.com/staal2333/crmsync-extension-sub001/internal/sync/delivery"

	"github.com/gin-gonic/gin"
)

func SetupRoutes(
	r *gin.Engine,
	authUc authUsecase.AuthUsecase,
	authHandler *authDelivery.AuthHandler,
	contactHandler *contactDelivery.ContactHandler,
	syncHandler *syncDelivery.SyncHandler,
	scanHandler *scanDelivery.ScanHandler,
) {
	api := r.Group("/api")
	{
		// Health check (no auth required)
		api.GET("/health", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
		})

		// Account provisioning (called by the external auth flow)
		api.POST("/accounts", authHandler.Provision)

		// Account routes (protected)
		account := api.Group("")
		account.Use(authDelivery.AuthMiddleware(authUc))
		{
			account.GET("/me", authHandler.Me)
			account.GET("/settings", authHandler.GetSettings)
			account.PUT("/settings", authHandler.UpdateSettings)
			account.POST("/device-tokens", authHandler.RegisterDeviceToken)
			account.DELETE("/device-tokens/:token", authHandler.UnregisterDeviceToken)
			account.POST("/mailbox/watch", authHandler.WatchMailbox)
		}

		// Contact routes (protected)
		contacts := api.Group("/contacts")
		contacts.Use(authDelivery.AuthMiddleware(authUc))
		{
			contacts.POST("", contactHandler.UpsertContact)
			contacts.GET("", contactHandler.GetContacts)
			contacts.GET("/duplicates", contactHandler.DetectDuplicates)
			contacts.POST("/merge", contactHandler.MergeContacts)
			contacts.GET("/followups", contactHandler.GetFollowUpQueue)
			contacts.GET("/:email", contactHandler.GetContact)
			contacts.DELETE("/:email", contactHandler.DeleteContact)
		}

		// Signal routes (protected)
		signals := api.Group("/signals")
		signals.Use(authDelivery.AuthMiddleware(authUc))
		{
			signals.POST("/inbound", contactHandler.MergeInboundSignal)
			signals.POST("/outbound", contactHandler.RecordOutboundSignal)
		}

		// Sync routes (protected)
		sync := api.Group("/sync")
		sync.Use(authDelivery.AuthMiddleware(authUc))
		{
			sync.POST("/full", syncHandler.FullSync)
			sync.POST("/incremental", syncHandler.IncrementalSync)
			sync.POST("/ack", syncHandler.Acknowledge)
		}

		// Scan routes (protected)
		scan := api.Group("/scan")
		scan.Use(authDelivery.AuthMiddleware(authUc))
		{
			scan.POST("", scanHandler.StartScan)
			scan.GET("", scanHandler.ListSessions)
			scan.GET("/history", scanHandler.GetHistory)
			scan.GET("/:id", scanHandler.GetSession)
			scan.DELETE("/:id", scanHandler.CancelSession)
		}
	}
}
