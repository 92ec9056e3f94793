package repository

import (
	scandomain "github.com/staal2333/crmsync-extension-sub001/internal/scan/domain"

	"gorm.io/gorm"
)

// HistoryRepository defines the interface for scan history persistence.
// Only terminal snapshots are written.
type HistoryRepository interface {
	Save(history *scandomain.ScanHistory) error
	ListByAccountID(accountID string, limit int) ([]*scandomain.ScanHistory, error)
	GetByID(accountID, id string) (*scandomain.ScanHistory, error)
}

type historyRepository struct {
	db *gorm.DB
}

// NewHistoryRepository creates a new instance of historyRepository
func NewHistoryRepository(db *gorm.DB) HistoryRepository {
	return &historyRepository{db: db}
}

func (r *historyRepository) Save(history *scandomain.ScanHistory) error {
	return r.db.Save(history).Error
}

func (r *historyRepository) ListByAccountID(accountID string, limit int) ([]*scandomain.ScanHistory, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []*scandomain.ScanHistory
	err := r.db.Where("account_id = ?", accountID).
		Order("started_at DESC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

func (r *historyRepository) GetByID(accountID, id string) (*scandomain.ScanHistory, error) {
	var row scandomain.ScanHistory
	err := r.db.Where("account_id = ? AND id = ?", accountID, id).First(&row).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}
