package domain

import (
	"sync"
	"time"

	contactdomain "github.com/staal2333/crmsync-extension-sub001/internal/contact/domain"
)

// ScanPhase is the current step of a scan session. Transitions are
// one-directional; no phase is revisited.
type ScanPhase string

const (
	PhaseInitializing       ScanPhase = "initializing"
	PhaseFetchingToken      ScanPhase = "fetching_token"
	PhaseFetchingMessageIDs ScanPhase = "fetching_message_ids"
	PhaseFetchingEmails     ScanPhase = "fetching_emails"
	PhaseExtractingContacts ScanPhase = "extracting_contacts"
	PhaseSyncingToCRM       ScanPhase = "syncing_to_crm"
	PhaseCompleted          ScanPhase = "completed"
)

type ScanStatus string

const (
	StatusRunning   ScanStatus = "running"
	StatusCompleted ScanStatus = "completed"
	StatusFailed    ScanStatus = "failed"
	StatusCancelled ScanStatus = "cancelled"
)

// ScanOptions configures one scan run. DateRangeDays of zero means the whole
// mailbox. Connectors names the CRM targets for the syncing phase; empty
// means store-only.
type ScanOptions struct {
	DateRangeDays  int      `json:"date_range_days"`
	MaxEmails      int      `json:"max_emails"`
	UpdateExisting bool     `json:"update_existing"`
	CreateNew      bool     `json:"create_new"`
	Connectors     []string `json:"connectors"`
}

// ScanSession is the live state of one scan run. Only the owning
// orchestration goroutine mutates it; observers read point-in-time
// snapshots. Once a terminal status is set the session is frozen.
type ScanSession struct {
	mu sync.RWMutex

	ID        string
	AccountID string
	Options   ScanOptions

	status ScanStatus
	phase  ScanPhase

	emailsScanned   int
	emailsTotal     int
	contactsFound   int
	contactsCreated int
	contactsUpdated int
	invalidEmails   int

	errorMessage string
	errors       []string

	startedAt  time.Time
	finishedAt time.Time

	cancelled bool
}

// Snapshot is a read-only copy of session state for observers.
type Snapshot struct {
	ID              string      `json:"id"`
	AccountID       string      `json:"account_id"`
	Status          ScanStatus  `json:"status"`
	Phase           ScanPhase   `json:"phase"`
	EmailsScanned   int         `json:"emails_scanned"`
	EmailsTotal     int         `json:"emails_total"`
	ContactsFound   int         `json:"contacts_found"`
	ContactsCreated int         `json:"contacts_created"`
	ContactsUpdated int         `json:"contacts_updated"`
	InvalidEmails   int         `json:"invalid_emails"`
	ErrorMessage    string      `json:"error_message,omitempty"`
	Errors          []string    `json:"errors,omitempty"`
	StartedAt       time.Time   `json:"started_at"`
	FinishedAt      *time.Time  `json:"finished_at,omitempty"`
	Options         ScanOptions `json:"options"`
}

func NewScanSession(id, accountID string, options ScanOptions) *ScanSession {
	return &ScanSession{
		ID:        id,
		AccountID: accountID,
		Options:   options,
		status:    StatusRunning,
		phase:     PhaseInitializing,
		startedAt: time.Now(),
	}
}

// SetPhase advances the session to the next phase. Ignored once the session
// is terminal, so a racing cancellation always wins.
func (s *ScanSession) SetPhase(phase ScanPhase) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != StatusRunning {
		return
	}
	s.phase = phase
}

// Cancel flips the cancellation flag. The orchestrator checks it between
// batches and before each phase; in-flight work is allowed to finish.
// Returns false when the session is already terminal.
func (s *ScanSession) Cancel() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != StatusRunning {
		return false
	}
	s.cancelled = true
	return true
}

func (s *ScanSession) CancelRequested() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cancelled
}

// MarkCancelled freezes the session with its partial counters retained.
func (s *ScanSession) MarkCancelled() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != StatusRunning {
		return
	}
	s.status = StatusCancelled
	s.finishedAt = time.Now()
}

func (s *ScanSession) MarkCompleted() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != StatusRunning {
		return
	}
	s.status = StatusCompleted
	s.phase = PhaseCompleted
	s.finishedAt = time.Now()
}

// MarkFailed freezes the session with the fatal reason.
func (s *ScanSession) MarkFailed(message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != StatusRunning {
		return
	}
	s.status = StatusFailed
	s.errorMessage = message
	s.finishedAt = time.Now()
}

// AddError records a per-item failure that did not abort the session.
func (s *ScanSession) AddError(message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errors = append(s.errors, message)
}

func (s *ScanSession) SetEmailsTotal(total int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.emailsTotal = total
}

func (s *ScanSession) AddEmailsScanned(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.emailsScanned += n
}

func (s *ScanSession) SetContactsFound(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.contactsFound = n
}

func (s *ScanSession) AddContactCreated() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.contactsCreated++
}

func (s *ScanSession) AddContactUpdated() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.contactsUpdated++
}

func (s *ScanSession) AddInvalidEmail() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.invalidEmails++
}

func (s *ScanSession) Terminal() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status != StatusRunning
}

func (s *ScanSession) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := Snapshot{
		ID:              s.ID,
		AccountID:       s.AccountID,
		Status:          s.status,
		Phase:           s.phase,
		EmailsScanned:   s.emailsScanned,
		EmailsTotal:     s.emailsTotal,
		ContactsFound:   s.contactsFound,
		ContactsCreated: s.contactsCreated,
		ContactsUpdated: s.contactsUpdated,
		InvalidEmails:   s.invalidEmails,
		ErrorMessage:    s.errorMessage,
		Errors:          append([]string(nil), s.errors...),
		StartedAt:       s.startedAt,
		Options:         s.Options,
	}
	if !s.finishedAt.IsZero() {
		t := s.finishedAt
		snap.FinishedAt = &t
	}
	return snap
}

// ScanHistory is the persisted terminal snapshot of one session, one row per
// completed, failed or cancelled scan.
type ScanHistory struct {
	ID              string                    `json:"id" gorm:"primaryKey"`
	AccountID       string                    `json:"account_id" gorm:"index;not null"`
	Status          ScanStatus                `json:"status"`
	Phase           ScanPhase                 `json:"phase"`
	EmailsScanned   int                       `json:"emails_scanned"`
	EmailsTotal     int                       `json:"emails_total"`
	ContactsFound   int                       `json:"contacts_found"`
	ContactsCreated int                       `json:"contacts_created"`
	ContactsUpdated int                       `json:"contacts_updated"`
	InvalidEmails   int                       `json:"invalid_emails"`
	ErrorMessage    string                    `json:"error_message,omitempty"`
	Errors          contactdomain.StringArray `json:"errors" gorm:"type:text"`
	StartedAt       time.Time                 `json:"started_at"`
	FinishedAt      time.Time                 `json:"finished_at"`
}

// HistoryFromSnapshot converts a terminal snapshot to its persisted form.
func HistoryFromSnapshot(snap Snapshot) *ScanHistory {
	h := &ScanHistory{
		ID:              snap.ID,
		AccountID:       snap.AccountID,
		Status:          snap.Status,
		Phase:           snap.Phase,
		EmailsScanned:   snap.EmailsScanned,
		EmailsTotal:     snap.EmailsTotal,
		ContactsFound:   snap.ContactsFound,
		ContactsCreated: snap.ContactsCreated,
		ContactsUpdated: snap.ContactsUpdated,
		InvalidEmails:   snap.InvalidEmails,
		ErrorMessage:    snap.ErrorMessage,
		Errors:          contactdomain.StringArray(snap.Errors),
		StartedAt:       snap.StartedAt,
	}
	if snap.FinishedAt != nil {
		h.FinishedAt = *snap.FinishedAt
	}
	return h
}
