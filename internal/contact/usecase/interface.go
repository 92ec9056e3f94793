package usecase

import (
	"time"

	authdomain "github.com/staal2333/crmsync-extension-sub001/internal/auth/domain"
	contactdomain "github.com/staal2333/crmsync-extension-sub001/internal/contact/domain"
	"github.com/staal2333/crmsync-extension-sub001/internal/contact/repository"
)

// InboundSignal is one observed inbound touchpoint for a contact.
type InboundSignal struct {
	Email      string
	Name       string
	Company    string
	Title      string
	Phone      string
	Subject    string
	ReceivedAt time.Time
}

// OutboundSignal is one observed outbound send.
type OutboundSignal struct {
	Recipients []string
	Subject    string
	SentAt     time.Time
}

// FollowUpEntry is one contact due for a nudge.
type FollowUpEntry struct {
	Contact               *contactdomain.Contact        `json:"contact"`
	DaysSinceLastOutbound int                           `json:"days_since_last_outbound"`
	LastOutboundMessage   *contactdomain.ContactMessage `json:"last_outbound_message,omitempty"`
}

// DuplicateGroup is a set of records that likely represent the same person.
// Detection never auto-merges; merging is a separate explicit operation.
type DuplicateGroup struct {
	Reason  string                   `json:"reason"`
	Members []*contactdomain.Contact `json:"members"`
}

// SettingsProvider resolves per-account policy (gating, follow-up thresholds).
type SettingsProvider interface {
	GetSettings(accountID string) (*authdomain.AccountSettings, error)
}

// ContactUsecase defines the contact store operations
type ContactUsecase interface {
	UpsertContact(accountID string, partial *contactdomain.Contact) (*contactdomain.Contact, error)
	GetContact(accountID, email string) (*contactdomain.Contact, error)
	GetContacts(accountID string, filter repository.ContactFilter) ([]*contactdomain.Contact, error)
	DeleteContact(accountID, email string) error

	MergeInboundSignal(accountID string, signal InboundSignal) error
	RecordOutboundSignal(accountID string, signal OutboundSignal) error

	GetFollowUpQueue(accountID string) ([]FollowUpEntry, error)
	DetectDuplicates(accountID string) ([]DuplicateGroup, error)
	MergeContacts(accountID string, emails []string) (*contactdomain.Contact, error)
}
