package dto

import (
	scandomain "github.com/staal2333/crmsync-extension-sub001/internal/scan/domain"
)

// StartScanRequest mirrors the session options. DateRange accepts a day
// count or "all" for the whole mailbox.
type StartScanRequest struct {
	DateRange      string   `json:"date_range"`
	MaxEmails      int      `json:"max_emails"`
	UpdateExisting *bool    `json:"update_existing"`
	CreateNew      *bool    `json:"create_new"`
	Connectors     []string `json:"connectors"`
}

type StartScanResponse struct {
	SessionID string `json:"session_id"`
}

type SessionsResponse struct {
	Sessions []scandomain.Snapshot `json:"sessions"`
}

type HistoryResponse struct {
	Scans []*scandomain.ScanHistory `json:"scans"`
}
