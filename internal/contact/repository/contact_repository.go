package repository

import (
	"time"

	contactdomain "github.com/staal2333/crmsync-extension-sub001/internal/contact/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// contactRepository implements ContactRepository with GORM
type contactRepository struct {
	db *gorm.DB
}

// NewContactRepository creates a new instance of contactRepository
func NewContactRepository(db *gorm.DB) ContactRepository {
	return &contactRepository{db: db}
}

func (r *contactRepository) GetByEmail(accountID, email string) (*contactdomain.Contact, error) {
	var contact contactdomain.Contact
	err := r.db.Preload("Messages", func(db *gorm.DB) *gorm.DB {
		return db.Order("sent_at ASC")
	}).Where("account_id = ? AND email = ?", accountID, email).First(&contact).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &contact, nil
}

func (r *contactRepository) Create(contact *contactdomain.Contact) error {
	if contact.ID == "" {
		contact.ID = uuid.New().String()
	}
	now := time.Now()
	contact.CreatedAt = now
	contact.UpdatedAt = now
	return r.db.Create(contact).Error
}

func (r *contactRepository) Save(contact *contactdomain.Contact) error {
	contact.UpdatedAt = time.Now()
	// Messages are written through AppendMessage only; saving them here would
	// bypass duplicate suppression.
	return r.db.Omit("Messages").Save(contact).Error
}

func (r *contactRepository) SoftDelete(accountID, email string, at time.Time) error {
	result := r.db.Model(&contactdomain.Contact{}).
		Where("account_id = ? AND email = ? AND deleted_at IS NULL", accountID, email).
		Updates(map[string]interface{}{
			"deleted_at": at,
			"updated_at": at,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *contactRepository) List(accountID string, filter ContactFilter) ([]*contactdomain.Contact, error) {
	var contacts []*contactdomain.Contact

	query := r.db.Preload("Messages", func(db *gorm.DB) *gorm.DB {
		return db.Order("sent_at ASC")
	}).Where("account_id = ?", accountID)

	if !filter.IncludeDeleted {
		query = query.Where("deleted_at IS NULL")
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.Tag != "" {
		query = query.Where("tags LIKE ?", "%\""+filter.Tag+"\"%")
	}

	err := query.Order("updated_at DESC").Find(&contacts).Error
	return contacts, err
}

func (r *contactRepository) AppendMessage(msg *contactdomain.ContactMessage) (bool, error) {
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	msg.CreatedAt = time.Now()

	// FirstOrCreate on the dedup key: replays of the same sync delta or scan
	// never double-insert history entries.
	var existing contactdomain.ContactMessage
	result := r.db.Where(
		"contact_id = ? AND direction = ? AND sent_at = ? AND subject = ?",
		msg.ContactID, msg.Direction, msg.SentAt, msg.Subject,
	).FirstOrCreate(&existing, msg)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *contactRepository) ChangedSince(accountID string, since time.Time) ([]*contactdomain.Contact, error) {
	var contacts []*contactdomain.Contact
	err := r.db.Preload("Messages", func(db *gorm.DB) *gorm.DB {
		return db.Order("sent_at ASC")
	}).Where("account_id = ? AND updated_at > ? AND deleted_at IS NULL", accountID, since).
		Order("updated_at ASC").Find(&contacts).Error
	return contacts, err
}

func (r *contactRepository) MessagesSince(accountID string, since time.Time) ([]*contactdomain.ContactMessage, error) {
	var messages []*contactdomain.ContactMessage
	err := r.db.Where("account_id = ? AND created_at > ?", accountID, since).
		Order("sent_at ASC").Find(&messages).Error
	return messages, err
}

func (r *contactRepository) DeletedSince(accountID string, since time.Time) ([]string, error) {
	var emails []string
	err := r.db.Model(&contactdomain.Contact{}).
		Where("account_id = ? AND deleted_at IS NOT NULL AND deleted_at > ?", accountID, since).
		Pluck("email", &emails).Error
	return emails, err
}

func (r *contactRepository) Transaction(fn func(ContactRepository) error) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		return fn(&contactRepository{db: tx})
	})
}
