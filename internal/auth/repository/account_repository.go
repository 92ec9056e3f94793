package repository

import (
	"time"

	authdomain "github.com/staal2333/crmsync-extension-sub001/internal/auth/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AccountRepository defines the interface for account persistence
type AccountRepository interface {
	FindByID(id string) (*authdomain.Account, error)
	FindByEmail(email string) (*authdomain.Account, error)
	ListAccounts() ([]*authdomain.Account, error)
	Create(account *authdomain.Account) error
	Update(account *authdomain.Account) error
	GetSettings(accountID string) (*authdomain.AccountSettings, error)
	SaveSettings(settings *authdomain.AccountSettings) error
}

// accountRepository implements AccountRepository with GORM
type accountRepository struct {
	db *gorm.DB
}

// NewAccountRepository creates a new instance of accountRepository
func NewAccountRepository(db *gorm.DB) AccountRepository {
	return &accountRepository{db: db}
}

func (r *accountRepository) FindByID(id string) (*authdomain.Account, error) {
	var account authdomain.Account
	err := r.db.Where("id = ?", id).First(&account).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &account, nil
}

func (r *accountRepository) FindByEmail(email string) (*authdomain.Account, error) {
	var account authdomain.Account
	err := r.db.Where("email = ?", email).First(&account).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &account, nil
}

func (r *accountRepository) ListAccounts() ([]*authdomain.Account, error) {
	var accounts []*authdomain.Account
	err := r.db.Find(&accounts).Error
	return accounts, err
}

func (r *accountRepository) Create(account *authdomain.Account) error {
	if account.ID == "" {
		account.ID = uuid.New().String()
	}
	now := time.Now()
	account.CreatedAt = now
	account.UpdatedAt = now
	return r.db.Create(account).Error
}

func (r *accountRepository) Update(account *authdomain.Account) error {
	account.UpdatedAt = time.Now()
	return r.db.Save(account).Error
}

func (r *accountRepository) GetSettings(accountID string) (*authdomain.AccountSettings, error) {
	var settings authdomain.AccountSettings
	err := r.db.Where("account_id = ?", accountID).First(&settings).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &settings, nil
}

func (r *accountRepository) SaveSettings(settings *authdomain.AccountSettings) error {
	settings.UpdatedAt = time.Now()
	return r.db.Save(settings).Error
}
