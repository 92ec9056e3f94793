package domain

import (
	"database/sql/driver"
	"encoding/json"
	"time"
)

// StringArray is a custom type to handle JSON array in GORM
type StringArray []string

// Value implements driver.Valuer
func (a StringArray) Value() (driver.Value, error) {
	if len(a) == 0 {
		return "[]", nil
	}
	return json.Marshal(a)
}

// Scan implements sql.Scanner
func (a *StringArray) Scan(value interface{}) error {
	if value == nil {
		*a = []string{}
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
		*a = []string{}
		return nil
	}
	return json.Unmarshal(bytes, a)
}

// LifecycleStatus is the review state of a contact record
type LifecycleStatus string

const (
	StatusPending  LifecycleStatus = "pending"
	StatusApproved LifecycleStatus = "approved"
	StatusArchived LifecycleStatus = "archived"
	StatusLost     LifecycleStatus = "lost"
)

// ThreadStatus is the derived conversation state
type ThreadStatus string

const (
	ThreadNoReply ThreadStatus = "no_reply"
	ThreadReplied ThreadStatus = "replied"
	ThreadBounced ThreadStatus = "bounced"
	ThreadNone    ThreadStatus = ""
)

// ReplyCategory is the derived intent classification of a contact's replies
type ReplyCategory string

const (
	ReplyPositive      ReplyCategory = "positive"
	ReplyObjection     ReplyCategory = "objection"
	ReplyMeetingBooked ReplyCategory = "meeting_booked"
	ReplyNotInterested ReplyCategory = "not_interested"
	ReplyBounce        ReplyCategory = "bounce"
	ReplyNone          ReplyCategory = ""
)

// Direction of a message relative to the account owner
type Direction string

const (
	DirectionOutbound Direction = "outbound"
	DirectionInbound  Direction = "inbound"
)

// Contact is the canonical record for one email-address-identified person.
// The email key is immutable once the record exists; merges only change
// content. Counts mirror the message history and history is append-only.
type Contact struct {
	ID        string `json:"id" gorm:"primaryKey"`
	AccountID string `json:"account_id" gorm:"index:idx_account_email,unique;not null"`
	Email     string `json:"email" gorm:"index:idx_account_email,unique;not null"`

	GivenName   string `json:"given_name"`
	FamilyName  string `json:"family_name"`
	Company     string `json:"company"`
	Title       string `json:"title"`
	Phone       string `json:"phone"`
	LinkedinURL string `json:"linkedin_url"`

	FirstContactAt *time.Time `json:"first_contact_at,omitempty"`
	LastContactAt  *time.Time `json:"last_contact_at,omitempty"`
	OutboundCount  int        `json:"outbound_count" gorm:"default:0"`
	InboundCount   int        `json:"inbound_count" gorm:"default:0"`

	Status         LifecycleStatus `json:"status" gorm:"default:approved;index"`
	Tags           StringArray     `json:"tags,omitempty" gorm:"type:text"`
	FollowUpDueAt  *time.Time      `json:"follow_up_due_at,omitempty"`
	LastReviewedAt *time.Time      `json:"last_reviewed_at,omitempty"`

	// Soft-delete tombstone. Set once, never cleared inside the sync engine.
	DeletedAt *time.Time `json:"deleted_at,omitempty" gorm:"index"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at" gorm:"index"`

	Messages []ContactMessage `json:"messages,omitempty" gorm:"foreignKey:ContactID"`

	// Derived on read, never persisted
	ThreadStatus  ThreadStatus  `json:"thread_status,omitempty" gorm:"-"`
	ReplyCategory ReplyCategory `json:"reply_category,omitempty" gorm:"-"`
}

// ContactMessage is one entry in a contact's append-only message history.
// The composite unique index suppresses exact duplicates on sync replay.
type ContactMessage struct {
	ID        string    `json:"id" gorm:"primaryKey"`
	ContactID string    `json:"contact_id" gorm:"index;uniqueIndex:idx_msg_dedup;not null"`
	AccountID string    `json:"account_id" gorm:"index;not null"`
	Direction Direction `json:"direction" gorm:"uniqueIndex:idx_msg_dedup;not null"`
	Subject   string    `json:"subject" gorm:"uniqueIndex:idx_msg_dedup"`
	SentAt    time.Time `json:"sent_at" gorm:"uniqueIndex:idx_msg_dedup;not null"`
	CreatedAt time.Time `json:"created_at"`
}

// Deleted reports whether this record is a tombstone.
func (c *Contact) Deleted() bool {
	return c.DeletedAt != nil
}

// NonEmptyFieldCount ranks record completeness for duplicate merges.
func (c *Contact) NonEmptyFieldCount() int {
	n := 0
	for _, v := range []string{c.GivenName, c.FamilyName, c.Company, c.Title, c.Phone, c.LinkedinURL} {
		if v != "" {
			n++
		}
	}
	return n
}

// FullName joins given and family name for display and duplicate matching.
func (c *Contact) FullName() string {
	switch {
	case c.GivenName != "" && c.FamilyName != "":
		return c.GivenName + " " + c.FamilyName
	case c.GivenName != "":
		return c.GivenName
	default:
		return c.FamilyName
	}
}

// ClampContactWindow widens first/last contact timestamps so that every
// message timestamp falls inside [FirstContactAt, LastContactAt].
func (c *Contact) ClampContactWindow(at time.Time) {
	if c.FirstContactAt == nil || at.Before(*c.FirstContactAt) {
		t := at
		c.FirstContactAt = &t
	}
	if c.LastContactAt == nil || at.After(*c.LastContactAt) {
		t := at
		c.LastContactAt = &t
	}
}

// Derive refreshes the computed thread status and reply category from the
// loaded message history.
func (c *Contact) Derive() {
	c.ThreadStatus = DeriveThreadStatus(c.Messages, c.OutboundCount, c.InboundCount)
	c.ReplyCategory = DeriveReplyCategory(c.Messages, c.ThreadStatus)
}
