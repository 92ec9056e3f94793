package domain

import (
	"database/sql/driver"
	"encoding/json"
	"time"
)

// IntArray is a custom type to handle JSON int arrays in GORM
type IntArray []int

// Value implements driver.Valuer
func (a IntArray) Value() (driver.Value, error) {
	if len(a) == 0 {
		return "[]", nil
	}
	return json.Marshal(a)
}

// Scan implements sql.Scanner
func (a *IntArray) Scan(value interface{}) error {
	if value == nil {
		*a = []int{}
		return nil
	}
	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return nil
	}
	if len(bytes) == 0 {
		*a = []int{}
		return nil
	}
	return json.Unmarshal(bytes, a)
}

// Account is one mailbox owner. Tokens are managed by an external OAuth
// flow; this service only reads and refreshes them.
type Account struct {
	ID       string `json:"id" gorm:"primaryKey"`
	Email    string `json:"email" gorm:"uniqueIndex;not null"`
	Name     string `json:"name"`
	Provider string `json:"provider" gorm:"default:google"` // google | imap

	AccessToken  string    `json:"-"`
	RefreshToken string    `json:"-"`
	TokenExpiry  time.Time `json:"-"`

	ImapServer   string `json:"imap_server,omitempty"`
	ImapPort     int    `json:"imap_port,omitempty"`
	ImapPassword string `json:"-"` // encrypted at rest

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// AccountSettings holds per-account sync and follow-up policy. Returned to
// devices in full-sync responses.
type AccountSettings struct {
	AccountID        string   `json:"account_id" gorm:"primaryKey"`
	NoReplyAfterDays IntArray `json:"no_reply_after_days" gorm:"type:text"`
	ScanMaxEmails    int      `json:"scan_max_emails" gorm:"default:1000"`
	UpdateExisting   bool     `json:"update_existing" gorm:"default:true"`
	CreateNew        bool     `json:"create_new" gorm:"default:true"`
	RequireReview    bool     `json:"require_review" gorm:"default:false"`

	UpdatedAt time.Time `json:"updated_at"`
}
