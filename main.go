package main

import (
	"context"
	"log"
	"strings"

	api "github.com/staal2333/crmsync-extension-sub001/cmd/api"
	authDelivery "github.com/staal2333/crmsync-extension-sub001/internal/auth/delivery"
	authdomain "github.com/staal2333/crmsync-extension-sub001/internal/auth/domain"
	authRepo "github.com/staal2333/crmsync-extension-sub001/internal/auth/repository"
	authUsecase "github.com/staal2333/crmsync-extension-sub001/internal/auth/usecase"
	contactdomain "github.com/staal2333/crmsync-extension-sub001/internal/contact/domain"
	contactRepo "github.com/staal2333/crmsync-extension-sub001/internal/contact/repository"
	"github.com/staal2333/crmsync-extension-sub001/internal/contact/scheduler"
	contactUsecase "github.com/staal2333/crmsync-extension-sub001/internal/contact/usecase"
	"github.com/staal2333/crmsync-extension-sub001/internal/notification"
	scandomain "github.com/staal2333/crmsync-extension-sub001/internal/scan/domain"
	scanRepo "github.com/staal2333/crmsync-extension-sub001/internal/scan/repository"
	scanUsecase "github.com/staal2333/crmsync-extension-sub001/internal/scan/usecase"
	syncdomain "github.com/staal2333/crmsync-extension-sub001/internal/sync/domain"
	syncRepo "github.com/staal2333/crmsync-extension-sub001/internal/sync/repository"
	syncUsecase "github.com/staal2333/crmsync-extension-sub001/internal/sync/usecase"
	"github.com/staal2333/crmsync-extension-sub001/pkg/config"
	"github.com/staal2333/crmsync-extension-sub001/pkg/crm"
	"github.com/staal2333/crmsync-extension-sub001/pkg/database"
	"github.com/staal2333/crmsync-extension-sub001/pkg/fcm"
	"github.com/staal2333/crmsync-extension-sub001/pkg/gmail"
	"github.com/staal2333/crmsync-extension-sub001/pkg/imap"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize database
	db, err := database.NewPostgresConnection(cfg)
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}

	// Auto-migrate database schemas
	if err := db.AutoMigrate(
		&authdomain.Account{},
		&authdomain.AccountSettings{},
		&authdomain.DeviceToken{},
		&contactdomain.Contact{},
		&contactdomain.ContactMessage{},
		&syncdomain.SyncCursor{},
		&scandomain.ScanHistory{},
	); err != nil {
		log.Fatal("Failed to migrate database:", err)
	}

	// Initialize repositories (dependency injection)
	accountRepository := authRepo.NewAccountRepository(db)
	deviceTokenRepository := authRepo.NewDeviceTokenRepository(db)
	contactRepository := contactRepo.NewContactRepository(db)
	cursorRepository := syncRepo.NewCursorRepository(db)
	historyRepository := scanRepo.NewHistoryRepository(db)

	// Initialize mail providers
	gmailService := gmail.NewService(cfg.GoogleClientID, cfg.GoogleClientSecret, cfg.ScanPageSize)
	imapService := imap.NewService()

	// Initialize use cases (dependency injection)
	authUsecaseInstance := authUsecase.NewAuthUsecase(accountRepository, cfg)
	contactUsecaseInstance := contactUsecase.NewContactUsecase(contactRepository, authUsecaseInstance)
	syncUsecaseInstance := syncUsecase.NewSyncUsecase(contactRepository, cursorRepository, accountRepository)

	// New accounts get a zero sync cursor at provisioning
	authUsecaseInstance.OnProvision(syncUsecaseInstance.ProvisionCursor)

	// CRM connector registry
	registry := crm.NewRegistry()
	for _, connectorCfg := range cfg.CRMConnectors {
		registry.Register(crm.NewRESTConnector(connectorCfg.Name, connectorCfg.BaseURL, connectorCfg.APIKey))
		log.Printf("Registered CRM connector: %s", connectorCfg.Name)
	}

	sessionStore := scanUsecase.NewMemorySessionStore()
	providers := map[string]scandomain.MailProvider{
		"google": gmailService,
		"imap":   imapService,
	}
	scanUsecaseInstance := scanUsecase.NewScanUsecase(
		sessionStore, historyRepository, accountRepository,
		contactUsecaseInstance, providers, registry, cfg,
	)

	// Initialize FCM client (optional, follow-up reminders disabled without it)
	var fcmClient *fcm.Client
	if cfg.FirebaseCredentials != "" {
		fcmClient, err = fcm.NewClient(cfg.FirebaseCredentials)
		if err != nil {
			log.Printf("[WARN] Failed to initialize FCM client (push reminders disabled): %v", err)
		}
	}

	// Follow-up reminder scheduler
	followUpScheduler := scheduler.NewFollowUpScheduler(contactUsecaseInstance, accountRepository, deviceTokenRepository, fcmClient)
	followUpScheduler.Start()

	// Initialize notification service (Pub/Sub Gmail watch events)
	if cfg.GoogleProjectID != "" {
		topicName := cfg.GooglePubSubTopic
		if parts := strings.Split(topicName, "/"); len(parts) > 1 {
			topicName = parts[len(parts)-1]
		}

		notifService, err := notification.NewService(cfg.GoogleProjectID, topicName, cfg.GoogleCredentials, accountRepository, gmailService, contactUsecaseInstance)
		if err != nil {
			log.Printf("[ERROR] Failed to initialize notification service: %v", err)
		} else {
			go notifService.Start(context.Background())
		}
	} else {
		log.Printf("[WARN] GoogleProjectID not configured, notification service disabled")
	}

	authHandler := authDelivery.NewAuthHandler(authUsecaseInstance, deviceTokenRepository, accountRepository, gmailService, cfg)

	// Initialize HTTP handler
	handler := api.NewHandler(authUsecaseInstance, authHandler, contactUsecaseInstance, syncUsecaseInstance, scanUsecaseInstance, cfg)

	// Start server
	log.Printf("Server starting on port %s", cfg.Port)
	if err := handler.Start(":" + cfg.Port); err != nil {
		log.Fatal("Failed to start server:", err)
	}
}
