package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	authrepo "github.com/staal2333/crmsync-extension-sub001/internal/auth/repository"
	contactusecase "github.com/staal2333/crmsync-extension-sub001/internal/contact/usecase"
	scandomain "github.com/staal2333/crmsync-extension-sub001/internal/scan/domain"
	"github.com/staal2333/crmsync-extension-sub001/pkg/gmail"

	"cloud.google.com/go/pubsub"
	"google.golang.org/api/option"
)

// GmailNotification is the payload Gmail publishes on mailbox changes.
type GmailNotification struct {
	EmailAddress string `json:"emailAddress"`
	HistoryID    uint64 `json:"historyId"`
}

// Service listens for Gmail watch notifications and routes new inbound
// messages into the contact store as inbound signals, so contact signal
// capture works in near real time between scans.
type Service struct {
	pubsubClient   *pubsub.Client
	accountRepo    authrepo.AccountRepository
	gmailService   *gmail.Service
	contactUsecase contactusecase.ContactUsecase
	topicName      string
	subName        string

	// Track last historyId per account to drop duplicate notifications.
	mu            sync.Mutex
	lastHistoryID map[string]uint64
}

func NewService(projectID, topicName, credentialsFile string, accountRepo authrepo.AccountRepository, gmailService *gmail.Service, contactUsecase contactusecase.ContactUsecase) (*Service, error) {
	ctx := context.Background()

	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	client, err := pubsub.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create pubsub client: %v", err)
	}

	return &Service{
		pubsubClient:   client,
		accountRepo:    accountRepo,
		gmailService:   gmailService,
		contactUsecase: contactUsecase,
		topicName:      topicName,
		subName:        topicName + "-sub",
		lastHistoryID:  make(map[string]uint64),
	}, nil
}

func (s *Service) Start(ctx context.Context) {
	log.Printf("[PubSub] Starting notification service with topic: %s, subscription: %s", s.topicName, s.subName)

	sub := s.pubsubClient.Subscription(s.subName)
	exists, err := sub.Exists(ctx)
	if err != nil {
		log.Printf("[PubSub] Error checking subscription existence: %v", err)
		return
	}

	if !exists {
		topic := s.pubsubClient.Topic(s.topicName)
		topicExists, err := topic.Exists(ctx)
		if err != nil {
			log.Printf("[PubSub] Error checking topic existence: %v", err)
			return
		}
		if !topicExists {
			log.Printf("[PubSub] Topic does not exist, cannot create subscription")
			return
		}

		sub, err = s.pubsubClient.CreateSubscription(ctx, s.subName, pubsub.SubscriptionConfig{
			Topic:       topic,
			AckDeadline: 10 * time.Second,
		})
		if err != nil {
			log.Printf("[PubSub] Failed to create subscription: %v", err)
			return
		}
		log.Printf("[PubSub] Created subscription: %s", s.subName)
	}

	log.Printf("[PubSub] Listening for messages on subscription: %s", s.subName)
	err = sub.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		s.handleMessage(ctx, msg)
		msg.Ack()
	})
	if err != nil {
		log.Printf("[PubSub] Error receiving messages: %v", err)
	}
}

func (s *Service) handleMessage(ctx context.Context, msg *pubsub.Message) {
	var notification GmailNotification
	if err := json.Unmarshal(msg.Data, &notification); err != nil {
		log.Printf("[PubSub] Failed to unmarshal notification: %v", err)
		return
	}

	account, err := s.accountRepo.FindByEmail(notification.EmailAddress)
	if err != nil {
		log.Printf("[PubSub] Error finding account for %s: %v", notification.EmailAddress, err)
		return
	}
	if account == nil {
		log.Printf("[PubSub] No account for email: %s", notification.EmailAddress)
		return
	}

	if s.isDuplicate(account.ID, notification.HistoryID) {
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
			return s.accountRepo.Update(account)
		},
	}

	// The watch payload carries no message content; fetch the newest inbox
	// message to build the signal.
	ids, err := s.gmailService.ListMessageIDs(ctx, creds, 1, 1)
	if err != nil || len(ids) == 0 {
		log.Printf("[PubSub] Could not list latest message for %s: %v", account.Email, err)
		return
	}
	fetched, err := s.gmailService.FetchMessage(ctx, creds, ids[0])
	if err != nil {
		log.Printf("[PubSub] Could not fetch message %s: %v", ids[0], err)
		return
	}
	if len(fetched.From) == 0 {
		return
	}

	sender := fetched.From[0]
	if sender.Email == account.Email {
		return
	}

	signal := contactusecase.InboundSignal{
		Email:      sender.Email,
		Name:       sender.Name,
		Subject:    fetched.Subject,
		ReceivedAt: fetched.Date,
	}
	if signal.ReceivedAt.IsZero() {
		signal.ReceivedAt = time.Now()
	}

	if err := s.contactUsecase.MergeInboundSignal(account.ID, signal); err != nil {
		log.Printf("[PubSub] Failed to merge inbound signal from %s: %v", sender.Email, err)
		return
	}
	log.Printf("[PubSub] Merged inbound signal from %s for account %s", sender.Email, account.ID)
}

func (s *Service) isDuplicate(accountID string, historyID uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if last, ok := s.lastHistoryID[accountID]; ok && historyID <= last {
		return true
	}
	s.lastHistoryID[accountID] = historyID
	return false
}
