package domain

import "time"

// SyncCursor is the per-account watermark of the last successfully
// reconciled sync. It advances only after the client acknowledges a
// committed response (advance-on-ack) and is never rewound except by
// re-provisioning.
type SyncCursor struct {
	AccountID string    `json:"account_id" gorm:"primaryKey"`
	Cursor    time.Time `json:"cursor"`
	UpdatedAt time.Time `json:"updated_at"`
}
