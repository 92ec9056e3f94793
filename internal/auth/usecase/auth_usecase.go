package usecase

import (
	"fmt"
	"time"

	authdomain "github.com/staal2333/crmsync-extension-sub001/internal/auth/domain"
	"github.com/staal2333/crmsync-extension-sub001/internal/auth/repository"
	"github.com/staal2333/crmsync-extension-sub001/pkg/config"

	"github.com/golang-jwt/jwt/v5"
)

// AuthUsecase validates API tokens and provisions accounts. Token issuance
// lives in the external auth flow; this side only verifies.
type AuthUsecase interface {
	ValidateToken(tokenString string) (*authdomain.Account, error)
	ProvisionAccount(account *authdomain.Account) (*authdomain.Account, error)
	GetSettings(accountID string) (*authdomain.AccountSettings, error)
	UpdateSettings(settings *authdomain.AccountSettings) error
}

type authUsecase struct {
	accountRepo repository.AccountRepository
	config      *config.Config
	provisioned []func(accountID string) error
}

// NewAuthUsecase creates a new instance of authUsecase
func NewAuthUsecase(accountRepo repository.AccountRepository, cfg *config.Config) *authUsecase {
	return &authUsecase{
		accountRepo: accountRepo,
		config:      cfg,
	}
}

// OnProvision registers a hook run after a new account is created (cursor
// creation, default settings).
func (u *authUsecase) OnProvision(fn func(accountID string) error) {
	u.provisioned = append(u.provisioned, fn)
}

func (u *authUsecase) ValidateToken(tokenString string) (*authdomain.Account, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(u.config.JWTSecret), nil
	})
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}

	accountID, _ := claims["sub"].(string)
	if accountID == "" {
		return nil, fmt.Errorf("token missing subject")
	}

	account, err := u.accountRepo.FindByID(accountID)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, fmt.Errorf("account not found")
	}
	return account, nil
}

func (u *authUsecase) ProvisionAccount(account *authdomain.Account) (*authdomain.Account, error) {
	existing, err := u.accountRepo.FindByEmail(account.Email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	if err := u.accountRepo.Create(account); err != nil {
		return nil, err
	}

	settings := &authdomain.AccountSettings{
		AccountID:        account.ID,
		NoReplyAfterDays: authdomain.IntArray(u.config.NoReplyAfterDays),
		ScanMaxEmails:    u.config.ScanDefaultMaxEmails,
		UpdateExisting:   true,
		CreateNew:        true,
		RequireReview:    u.config.RequireReview,
	}
	if err := u.accountRepo.SaveSettings(settings); err != nil {
		return nil, err
	}

	for _, fn := range u.provisioned {
		if err := fn(account.ID); err != nil {
			return nil, err
		}
	}
	return account, nil
}

func (u *authUsecase) GetSettings(accountID string) (*authdomain.AccountSettings, error) {
	settings, err := u.accountRepo.GetSettings(accountID)
	if err != nil {
		return nil, err
	}
	if settings == nil {
		// Accounts provisioned before settings existed get defaults lazily.
		settings = &authdomain.AccountSettings{
			AccountID:        accountID,
			NoReplyAfterDays: authdomain.IntArray(u.config.NoReplyAfterDays),
			ScanMaxEmails:    u.config.ScanDefaultMaxEmails,
			UpdateExisting:   true,
			CreateNew:        true,
			RequireReview:    u.config.RequireReview,
			UpdatedAt:        time.Now(),
		}
	}
	return settings, nil
}

func (u *authUsecase) UpdateSettings(settings *authdomain.AccountSettings) error {
	return u.accountRepo.SaveSettings(settings)
}
