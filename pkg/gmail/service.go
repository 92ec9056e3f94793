package gmail

import (
	"context"
	"fmt"
	"log"
	"net/mail"
	"strings"
	"time"

	scandomain "github.com/staal2333/crmsync-extension-sub001/internal/scan/domain"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

// Service is the Gmail mail provider.
type Service struct {
	clientID     string
	clientSecret string
	pageSize     int
}

// notifyTokenSource wraps an oauth2 token source to detect refreshes and
// persist the rotated token.
type notifyTokenSource struct {
	src      oauth2.TokenSource
	current  *oauth2.Token
	callback func(accessToken, refreshToken string) error
}

func (s *notifyTokenSource) Token() (*oauth2.Token, error) {
	t, err := s.src.Token()
	if err != nil {
		return nil, err
	}
	if s.callback != nil && s.current.AccessToken != t.AccessToken {
		s.current = t
		if err := s.callback(t.AccessToken, t.RefreshToken); err != nil {
			log.Printf("[Gmail] Failed to persist refreshed token: %v", err)
		}
	}
	return t, nil
}

// NewService creates a new instance of Service
func NewService(clientID, clientSecret string, pageSize int) *Service {
	if pageSize <= 0 || pageSize > 500 {
		pageSize = 100
	}
	return &Service{
		clientID:     clientID,
		clientSecret: clientSecret,
		pageSize:     pageSize,
	}
}

func (s *Service) gmailService(ctx context.Context, creds *scandomain.MailCredentials) (*gmail.Service, error) {
	token := &oauth2.Token{
		AccessToken:  creds.AccessToken,
		RefreshToken: creds.RefreshToken,
		TokenType:    "Bearer",
	}

	// Only force refresh when we have a refresh token
	if creds.RefreshToken != "" {
		token.Expiry = time.Now()
	}

	config := &oauth2.Config{
		ClientID:     s.clientID,
		ClientSecret: s.clientSecret,
		Endpoint:     google.Endpoint,
	}

	wrappedSource := &notifyTokenSource{
		src:      config.TokenSource(ctx, token),
		current:  token,
		callback: creds.OnTokenRefresh,
	}

	client := oauth2.NewClient(ctx, wrappedSource)

	srv, err := gmail.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, fmt.Errorf("unable to create Gmail service: %v", err)
	}
	return srv, nil
}

// ListMessageIDs pages through the mailbox with pageToken until either pages
// are exhausted or max ids are collected.
func (s *Service) ListMessageIDs(ctx context.Context, creds *scandomain.MailCredentials, sinceDays, max int) ([]string, error) {
	srv, err := s.gmailService(ctx, creds)
	if err != nil {
		return nil, err
	}

	user := "me"
	q := ""
	if sinceDays > 0 {
		q = fmt.Sprintf("newer_than:%dd", sinceDays)
	}

	var ids []string
	pageToken := ""
	for {
		remaining := max - len(ids)
		if remaining <= 0 {
			break
		}
		toFetch := int64(s.pageSize)
		if int64(remaining) < toFetch {
			toFetch = int64(remaining)
		}

		listQuery := srv.Users.Messages.List(user).MaxResults(toFetch)
		if q != "" {
			listQuery = listQuery.Q(q)
		}
		if pageToken != "" {
			listQuery = listQuery.PageToken(pageToken)
		}

		resp, err := listQuery.Do()
		if err != nil {
			return nil, fmt.Errorf("unable to list messages: %v", err)
		}
		for _, msg := range resp.Messages {
			ids = append(ids, msg.Id)
		}
		pageToken = resp.NextPageToken
		if pageToken == "" {
			break
		}
	}
	return ids, nil
}

// FetchMessage retrieves the address and subject headers of one message.
func (s *Service) FetchMessage(ctx context.Context, creds *scandomain.MailCredentials, id string) (*scandomain.FetchedMessage, error) {
	srv, err := s.gmailService(ctx, creds)
	if err != nil {
		return nil, err
	}

	msg, err := srv.Users.Messages.Get("me", id).
		Format("metadata").
		MetadataHeaders("From", "To", "Cc", "Subject", "Date").
		Do()
	if err != nil {
		return nil, fmt.Errorf("unable to retrieve message %s: %v", id, err)
	}

	fetched := &scandomain.FetchedMessage{
		ID:      msg.Id,
		Subject: getHeader(msg.Payload.Headers, "Subject"),
		From:    parseAddresses(getHeader(msg.Payload.Headers, "From")),
		To:      parseAddresses(getHeader(msg.Payload.Headers, "To")),
		Cc:      parseAddresses(getHeader(msg.Payload.Headers, "Cc")),
		Date:    time.Unix(msg.InternalDate/1000, 0),
	}
	return fetched, nil
}

// Watch sets up push notifications for the user's mailbox.
func (s *Service) Watch(ctx context.Context, creds *scandomain.MailCredentials, topicName string) error {
	srv, err := s.gmailService(ctx, creds)
	if err != nil {
		return err
	}

	// Gmail allows only one push client per user; clear any existing watch.
	_ = srv.Users.Stop("me").Do()

	req := &gmail.WatchRequest{
		TopicName: topicName,
		LabelIds:  []string{"INBOX"},
	}
	resp, err := srv.Users.Watch("me", req).Do()
	if err != nil {
		return fmt.Errorf("unable to watch mailbox: %v", err)
	}
	log.Printf("[Gmail] Watch started for %s. Expiration: %d, HistoryId: %d", creds.Email, resp.Expiration, resp.HistoryId)
	return nil
}

// Stop stops push notifications for the user's mailbox.
func (s *Service) Stop(ctx context.Context, creds *scandomain.MailCredentials) error {
	srv, err := s.gmailService(ctx, creds)
	if err != nil {
		return err
	}
	if err := srv.Users.Stop("me").Do(); err != nil {
		return fmt.Errorf("unable to stop mailbox watch: %v", err)
	}
	return nil
}

func getHeader(headers []*gmail.MessagePartHeader, name string) string {
	for _, header := range headers {
		if header.Name == name {
			return header.Value
		}
	}
	return ""
}

// parseAddresses tolerates malformed lists; a header that fails strict
// parsing falls back to a bare comma split so one bad participant does not
// drop the rest.
func parseAddresses(header string) []scandomain.Address {
	if strings.TrimSpace(header) == "" {
		return nil
	}

	parsed, err := mail.ParseAddressList(header)
	if err == nil {
		out := make([]scandomain.Address, 0, len(parsed))
		for _, a := range parsed {
			out = append(out, scandomain.Address{Name: a.Name, Email: a.Address})
		}
		return out
	}

	var out []scandomain.Address
	for _, part := range strings.Split(header, ",") {
		addr, err := mail.ParseAddress(strings.TrimSpace(part))
		if err != nil {
			continue
		}
		out = append(out, scandomain.Address{Name: addr.Name, Email: addr.Address})
	}
	return out
}
