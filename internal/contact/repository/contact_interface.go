package repository

import (
	"time"

	contactdomain "github.com/staal2333/crmsync-extension-sub001/internal/contact/domain"
)

// ContactFilter narrows List results.
type ContactFilter struct {
	Status         contactdomain.LifecycleStatus
	Tag            string
	IncludeDeleted bool
}

// ContactRepository defines the persistence contract for contact records and
// their append-only message history. Lookups return (nil, nil) when absent.
type ContactRepository interface {
	GetByEmail(accountID, email string) (*contactdomain.Contact, error)
	Create(contact *contactdomain.Contact) error
	Save(contact *contactdomain.Contact) error
	// SoftDelete stamps the tombstone; the row is retained for sync.
	SoftDelete(accountID, email string, at time.Time) error
	List(accountID string, filter ContactFilter) ([]*contactdomain.Contact, error)

	// AppendMessage inserts a history entry, suppressing exact duplicates on
	// (contact, direction, timestamp, subject). Returns true when inserted.
	AppendMessage(msg *contactdomain.ContactMessage) (bool, error)

	// Changed-since queries backing the sync protocol.
	ChangedSince(accountID string, since time.Time) ([]*contactdomain.Contact, error)
	MessagesSince(accountID string, since time.Time) ([]*contactdomain.ContactMessage, error)
	DeletedSince(accountID string, since time.Time) ([]string, error)

	// Transaction runs fn against a repository bound to one atomic
	// transaction; any error rolls back every write made inside it.
	Transaction(fn func(ContactRepository) error) error
}
