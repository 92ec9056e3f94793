package dto

import (
	"time"

	authdomain "github.com/staal2333/crmsync-extension-sub001/internal/auth/domain"
	contactdomain "github.com/staal2333/crmsync-extension-sub001/internal/contact/domain"
)

// Cursors travel as opaque strings; only the server interprets them.
const cursorLayout = time.RFC3339Nano

// ParseCursor decodes an opaque cursor. Empty means "from the beginning".
func ParseCursor(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(cursorLayout, s)
}

// FormatCursor encodes a cursor for the wire.
func FormatCursor(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(cursorLayout)
}

// MessageDelta is one history entry keyed by contact email, since client and
// server record IDs differ across devices.
type MessageDelta struct {
	ContactEmail string                  `json:"contact_email" binding:"required"`
	Direction    contactdomain.Direction `json:"direction" binding:"required"`
	Subject      string                  `json:"subject"`
	SentAt       time.Time               `json:"sent_at" binding:"required"`
}

// ContactDeltas is the incremental change set a device sends or receives.
type ContactDeltas struct {
	Added    []*contactdomain.Contact    `json:"added,omitempty"`
	Updated  []*contactdomain.Contact    `json:"updated,omitempty"`
	Deleted  []string                    `json:"deleted,omitempty"`
	Messages []MessageDelta              `json:"messages,omitempty"`
	Settings *authdomain.AccountSettings `json:"settings,omitempty"`
}

// MergeConflict is an informational record of a field conflict the resolver
// settled. Never surfaced as an error.
type MergeConflict struct {
	Email    string `json:"email"`
	Field    string `json:"field"`
	Kept     string `json:"kept"`
	Rejected string `json:"rejected"`
}

type FullSyncRequest struct {
	Cursor   string                      `json:"cursor"`
	Changes  []*contactdomain.Contact    `json:"changes,omitempty"`
	Messages []MessageDelta              `json:"messages,omitempty"`
	Settings *authdomain.AccountSettings `json:"settings,omitempty"`
}

type FullSyncResponse struct {
	Contacts  []*contactdomain.Contact        `json:"contacts"`
	Messages  []*contactdomain.ContactMessage `json:"messages"`
	Deleted   []string                        `json:"deleted"`
	Settings  *authdomain.AccountSettings     `json:"settings,omitempty"`
	NewCursor string                          `json:"new_cursor"`
}

type IncrementalSyncRequest struct {
	Cursor string        `json:"cursor"`
	Deltas ContactDeltas `json:"deltas"`
}

type IncrementalSyncResponse struct {
	Deltas    ContactDeltas   `json:"deltas"`
	Conflicts []MergeConflict `json:"conflicts"`
	NewCursor string          `json:"new_cursor"`
}

type AckRequest struct {
	Cursor string `json:"cursor" binding:"required"`
}
