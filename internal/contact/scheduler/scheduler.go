package scheduler

import (
	"context"
	"fmt"
	"log"
	"time"

	authrepo "github.com/staal2333/crmsync-extension-sub001/internal/auth/repository"
	"github.com/staal2333/crmsync-extension-sub001/internal/contact/usecase"
	"github.com/staal2333/crmsync-extension-sub001/pkg/fcm"
)

// FollowUpScheduler periodically recomputes the follow-up queue and pushes a
// reminder for contacts that have newly become due.
type FollowUpScheduler struct {
	contactUsecase usecase.ContactUsecase
	accountRepo    authrepo.AccountRepository
	tokenRepo      authrepo.DeviceTokenRepository
	fcmClient      *fcm.Client
	interval       time.Duration
	stopChan       chan struct{}

	// last notified day-count per (account, email); avoids re-sending every tick
	notified map[string]int
}

// NewFollowUpScheduler creates a new scheduler
func NewFollowUpScheduler(
	contactUsecase usecase.ContactUsecase,
	accountRepo authrepo.AccountRepository,
	tokenRepo authrepo.DeviceTokenRepository,
	fcmClient *fcm.Client,
) *FollowUpScheduler {
	return &FollowUpScheduler{
		contactUsecase: contactUsecase,
		accountRepo:    accountRepo,
		tokenRepo:      tokenRepo,
		fcmClient:      fcmClient,
		interval:       time.Hour,
		stopChan:       make(chan struct{}),
		notified:       make(map[string]int),
	}
}

// Start begins the scheduler loop
func (s *FollowUpScheduler) Start() {
	if s.fcmClient == nil {
		log.Println("[FollowUpScheduler] FCM client not available, scheduler disabled")
		return
	}

	log.Printf("[FollowUpScheduler] Starting follow-up scheduler (interval: %s)", s.interval)

	go func() {
		s.checkAndNotify()

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				s.checkAndNotify()
			case <-s.stopChan:
				log.Println("[FollowUpScheduler] Scheduler stopped")
				return
			}
		}
	}()
}

// Stop gracefully stops the scheduler
func (s *FollowUpScheduler) Stop() {
	close(s.stopChan)
}

func (s *FollowUpScheduler) checkAndNotify() {
	accounts, err := s.accountRepo.ListAccounts()
	if err != nil {
		log.Printf("[FollowUpScheduler] Error listing accounts: %v", err)
		return
	}

	for _, account := range accounts {
		queue, err := s.contactUsecase.GetFollowUpQueue(account.ID)
		if err != nil {
			log.Printf("[FollowUpScheduler] Error computing queue for account %s: %v", account.ID, err)
			continue
		}
		if len(queue) == 0 {
			continue
		}

		tokens, err := s.tokenRepo.GetTokensByAccountID(account.ID)
		if err != nil || len(tokens) == 0 {
			continue
		}
		var tokenStrings []string
		for _, t := range tokens {
			tokenStrings = append(tokenStrings, t.Token)
		}

		for _, entry := range queue {
			key := account.ID + "/" + entry.Contact.Email
			if s.notified[key] == entry.DaysSinceLastOutbound {
				continue
			}
			s.notified[key] = entry.DaysSinceLastOutbound

			name := entry.Contact.FullName()
			if name == "" {
				name = entry.Contact.Email
			}
			notification := fcm.NotificationData{
				Title: "Follow up with " + name,
				Body:  fmt.Sprintf("No reply for %d days", entry.DaysSinceLastOutbound),
				Data: map[string]string{
					"type":  "follow_up",
					"email": entry.Contact.Email,
				},
			}

			failedTokens, err := s.fcmClient.SendToDevices(context.Background(), tokenStrings, notification)
			if err != nil {
				log.Printf("[FollowUpScheduler] Error sending reminder for %s: %v", entry.Contact.Email, err)
				continue
			}
			for _, token := range failedTokens {
				s.tokenRepo.DeleteToken(token)
			}
		}
	}
}
