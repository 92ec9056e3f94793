package domain

import (
	"context"
	"time"
)

// Address is one parsed mailbox participant.
type Address struct {
	Name  string
	Email string
}

// FetchedMessage carries the header fields contact extraction needs. Bodies
// are never fetched.
type FetchedMessage struct {
	ID      string
	From    []Address
	To      []Address
	Cc      []Address
	Subject string
	Date    time.Time
}

// MailCredentials is the resolved credential set for one mailbox, produced
// during the fetching_token phase. OnTokenRefresh persists rotated OAuth
// tokens; ImapPassword is already decrypted.
type MailCredentials struct {
	Email          string
	AccessToken    string
	RefreshToken   string
	OnTokenRefresh func(accessToken, refreshToken string) error

	ImapServer   string
	ImapPort     int
	ImapPassword string
}

// MailProvider abstracts the mailbox API a scan paginates. Implementations
// exist for Gmail and plain IMAP.
type MailProvider interface {
	// ListMessageIDs pages through the mailbox until ids are exhausted or
	// max is reached. sinceDays of zero means no date bound.
	ListMessageIDs(ctx context.Context, creds *MailCredentials, sinceDays, max int) ([]string, error)
	FetchMessage(ctx context.Context, creds *MailCredentials, id string) (*FetchedMessage, error)
}
