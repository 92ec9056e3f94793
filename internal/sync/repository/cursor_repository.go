package repository

import (
	"time"

	syncdomain "github.com/staal2333/crmsync-extension-sub001/internal/sync/domain"

	"gorm.io/gorm"
)

// CursorRepository defines the interface for sync cursor persistence
type CursorRepository interface {
	Get(accountID string) (*syncdomain.SyncCursor, error)
	// Advance moves the cursor forward; older values are ignored so a late
	// or replayed ack can never rewind it.
	Advance(accountID string, cursor time.Time) error
	// Provision creates the cursor row at account creation, or resets it on
	// explicit re-provisioning.
	Provision(accountID string) error
}

type cursorRepository struct {
	db *gorm.DB
}

// NewCursorRepository creates a new instance of cursorRepository
func NewCursorRepository(db *gorm.DB) CursorRepository {
	return &cursorRepository{db: db}
}

func (r *cursorRepository) Get(accountID string) (*syncdomain.SyncCursor, error) {
	var cursor syncdomain.SyncCursor
	err := r.db.Where("account_id = ?", accountID).First(&cursor).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &cursor, nil
}

func (r *cursorRepository) Advance(accountID string, cursor time.Time) error {
	existing, err := r.Get(accountID)
	if err != nil {
		return err
	}
	if existing == nil {
		return r.db.Create(&syncdomain.SyncCursor{
			AccountID: accountID,
			Cursor:    cursor,
			UpdatedAt: time.Now(),
		}).Error
	}
	if !cursor.After(existing.Cursor) {
		return nil
	}
	existing.Cursor = cursor
	existing.UpdatedAt = time.Now()
	return r.db.Save(existing).Error
}

func (r *cursorRepository) Provision(accountID string) error {
	return r.db.Save(&syncdomain.SyncCursor{
		AccountID: accountID,
		Cursor:    time.Time{},
		UpdatedAt: time.Now(),
	}).Error
}
