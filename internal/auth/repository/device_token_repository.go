package repository

import (
	"time"

	authdomain "github.com/staal2333/crmsync-extension-sub001/internal/auth/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// DeviceTokenRepository defines the interface for push token persistence
type DeviceTokenRepository interface {
	Register(accountID, token string) error
	GetTokensByAccountID(accountID string) ([]*authdomain.DeviceToken, error)
	DeleteToken(token string) error
}

type deviceTokenRepository struct {
	db *gorm.DB
}

// NewDeviceTokenRepository creates a new instance of deviceTokenRepository
func NewDeviceTokenRepository(db *gorm.DB) DeviceTokenRepository {
	return &deviceTokenRepository{db: db}
}

func (r *deviceTokenRepository) Register(accountID, token string) error {
	var existing authdomain.DeviceToken
	err := r.db.Where("token = ?", token).First(&existing).Error
	if err == gorm.ErrRecordNotFound {
		now := time.Now()
		return r.db.Create(&authdomain.DeviceToken{
			ID:        uuid.New().String(),
			AccountID: accountID,
			Token:     token,
			CreatedAt: now,
			UpdatedAt: now,
		}).Error
	} else if err != nil {
		return err
	}

	existing.AccountID = accountID
	existing.UpdatedAt = time.Now()
	return r.db.Save(&existing).Error
}

func (r *deviceTokenRepository) GetTokensByAccountID(accountID string) ([]*authdomain.DeviceToken, error) {
	var tokens []*authdomain.DeviceToken
	err := r.db.Where("account_id = ?", accountID).Find(&tokens).Error
	return tokens, err
}

func (r *deviceTokenRepository) DeleteToken(token string) error {
	return r.db.Where("token = ?", token).Delete(&authdomain.DeviceToken{}).Error
}
