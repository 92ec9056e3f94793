package usecase

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	authdomain "github.com/staal2333/crmsync-extension-sub001/internal/auth/domain"
	authrepo "github.com/staal2333/crmsync-extension-sub001/internal/auth/repository"
	contactdomain "github.com/staal2333/crmsync-extension-sub001/internal/contact/domain"
	contactusecase "github.com/staal2333/crmsync-extension-sub001/internal/contact/usecase"
	scandomain "github.com/staal2333/crmsync-extension-sub001/internal/scan/domain"
	scanrepo "github.com/staal2333/crmsync-extension-sub001/internal/scan/repository"
	"github.com/staal2333/crmsync-extension-sub001/pkg/config"
	"github.com/staal2333/crmsync-extension-sub001/pkg/crm"
	"github.com/staal2333/crmsync-extension-sub001/pkg/crypto"

	"github.com/google/uuid"
)

// ScanUsecase runs and observes inbox scan sessions
type ScanUsecase interface {
	StartScan(accountID string, options scandomain.ScanOptions) (string, error)
	GetSession(accountID, id string) (*scandomain.Snapshot, error)
	ListSessions(accountID string) []scandomain.Snapshot
	CancelSession(accountID, id string) error
	GetHistory(accountID string, limit int) ([]*scandomain.ScanHistory, error)
}

type scanUsecase struct {
	sessions       SessionStore
	historyRepo    scanrepo.HistoryRepository
	accountRepo    authrepo.AccountRepository
	contactUsecase contactusecase.ContactUsecase
	providers      map[string]scandomain.MailProvider
	registry       *crm.Registry
	cfg            *config.Config
}

// NewScanUsecase creates a new instance of scanUsecase. providers is keyed
// by account provider name ("google", "imap").
func NewScanUsecase(
	sessions SessionStore,
	historyRepo scanrepo.HistoryRepository,
	accountRepo authrepo.AccountRepository,
	contactUsecase contactusecase.ContactUsecase,
	providers map[string]scandomain.MailProvider,
	registry *crm.Registry,
	cfg *config.Config,
) ScanUsecase {
	return &scanUsecase{
		sessions:       sessions,
		historyRepo:    historyRepo,
		accountRepo:    accountRepo,
		contactUsecase: contactUsecase,
		providers:      providers,
		registry:       registry,
		cfg:            cfg,
	}
}

func (u *scanUsecase) StartScan(accountID string, options scandomain.ScanOptions) (string, error) {
	if options.MaxEmails <= 0 {
		options.MaxEmails = u.cfg.ScanDefaultMaxEmails
	}
	if options.DateRangeDays < 0 {
		return "", fmt.Errorf("%w: negative date range", contactdomain.ErrValidation)
	}

	session := scandomain.NewScanSession(uuid.New().String(), accountID, options)
	u.sessions.Put(session)

	go u.run(session)

	log.Printf("[Scan] Started session %s for account %s (max %d emails)", session.ID, accountID, options.MaxEmails)
	return session.ID, nil
}

func (u *scanUsecase) GetSession(accountID, id string) (*scandomain.Snapshot, error) {
	session, ok := u.sessions.Get(id)
	if ok && session.AccountID == accountID {
		snap := session.Snapshot()
		return &snap, nil
	}

	// Fall back to the history table for sessions evicted from memory.
	row, err := u.historyRepo.GetByID(accountID, id)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, contactdomain.ErrNotFound
	}
	finished := row.FinishedAt
	return &scandomain.Snapshot{
		ID:              row.ID,
		AccountID:       row.AccountID,
		Status:          row.Status,
		Phase:           row.Phase,
		EmailsScanned:   row.EmailsScanned,
		EmailsTotal:     row.EmailsTotal,
		ContactsFound:   row.ContactsFound,
		ContactsCreated: row.ContactsCreated,
		ContactsUpdated: row.ContactsUpdated,
		InvalidEmails:   row.InvalidEmails,
		ErrorMessage:    row.ErrorMessage,
		Errors:          row.Errors,
		StartedAt:       row.StartedAt,
		FinishedAt:      &finished,
	}, nil
}

func (u *scanUsecase) CancelSession(accountID, id string) error {
	session, ok := u.sessions.Get(id)
	if ok && session.AccountID == accountID {
		if !u.sessions.Cancel(id) {
			return fmt.Errorf("%w: session %s already finished", contactdomain.ErrValidation, id)
		}
		log.Printf("[Scan] Cancellation requested for session %s", id)
		return nil
	}

	// Terminal sessions are evicted to the history table; cancelling one is
	// a validation error, not a missing session.
	row, err := u.historyRepo.GetByID(accountID, id)
	if err != nil {
		return err
	}
	if row == nil {
		return contactdomain.ErrNotFound
	}
	return fmt.Errorf("%w: session %s already finished", contactdomain.ErrValidation, id)
}

func (u *scanUsecase) GetHistory(accountID string, limit int) ([]*scandomain.ScanHistory, error) {
	return u.historyRepo.ListByAccountID(accountID, limit)
}

// ListSessions returns point-in-time snapshots of the account's live
// sessions, newest first. Terminal sessions are served by GetHistory.
func (u *scanUsecase) ListSessions(accountID string) []scandomain.Snapshot {
	sessions := u.sessions.ListByAccountID(accountID)
	out := make([]scandomain.Snapshot, 0, len(sessions))
	for _, session := range sessions {
		out = append(out, session.Snapshot())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	return out
}

// run drives one session through its phases. It is the only goroutine that
// mutates the session; cancellation is checked between batches and before
// each phase, never mid-flight.
func (u *scanUsecase) run(session *scandomain.ScanSession) {
	ctx := context.Background()

	defer u.persistTerminal(session)

	cancelled := func() bool {
		if session.CancelRequested() {
			session.MarkCancelled()
			log.Printf("[Scan] Session %s cancelled in phase %s", session.ID, session.Snapshot().Phase)
			return true
		}
		return false
	}

	session.SetPhase(scandomain.PhaseFetchingToken)
	creds, provider, err := u.resolveCredentials(session.AccountID)
	if err != nil {
		session.MarkFailed(fmt.Sprintf("credential resolution failed: %v", err))
		return
	}

	if cancelled() {
		return
	}

	// A failure while listing ids is fatal: scanning a partial id set would
	// silently miss contacts.
	session.SetPhase(scandomain.PhaseFetchingMessageIDs)
	ids, err := provider.ListMessageIDs(ctx, creds, session.Options.DateRangeDays, session.Options.MaxEmails)
	if err != nil {
		session.MarkFailed(fmt.Sprintf("message id listing failed: %v", err))
		return
	}
	session.SetEmailsTotal(len(ids))

	if cancelled() {
		return
	}

	session.SetPhase(scandomain.PhaseFetchingEmails)
	fetched := make([]*scandomain.FetchedMessage, 0, len(ids))
	batchSize := u.cfg.ScanBatchSize
	if batchSize <= 0 {
		batchSize = 20
	}
	for start := 0; start < len(ids); start += batchSize {
		if cancelled() {
			return
		}
		end := start + batchSize
		if end > len(ids) {
			end = len(ids)
		}
		fetched = append(fetched, u.fetchBatch(ctx, provider, creds, session, ids[start:end])...)
		session.AddEmailsScanned(end - start)

		if end < len(ids) && u.cfg.ScanBatchDelay > 0 {
			time.Sleep(u.cfg.ScanBatchDelay)
		}
	}

	if cancelled() {
		return
	}

	session.SetPhase(scandomain.PhaseExtractingContacts)
	extracted := extractContacts(fetched, creds.Email)
	session.SetContactsFound(len(extracted))
	stored := u.storeContacts(session, extracted)

	if cancelled() {
		return
	}

	session.SetPhase(scandomain.PhaseSyncingToCRM)
	u.syncToCRM(ctx, session, stored)

	if cancelled() {
		return
	}

	session.MarkCompleted()
	snap := session.Snapshot()
	log.Printf("[Scan] Session %s completed: %d scanned, %d contacts (%d created, %d updated, %d invalid)",
		session.ID, snap.EmailsScanned, snap.ContactsFound, snap.ContactsCreated, snap.ContactsUpdated, snap.InvalidEmails)
}

// fetchBatch fetches one batch's messages with bounded parallelism. Fetch
// failures are logged and skipped; the batch is a barrier, all workers
// finish before it returns.
func (u *scanUsecase) fetchBatch(ctx context.Context, provider scandomain.MailProvider, creds *scandomain.MailCredentials, session *scandomain.ScanSession, ids []string) []*scandomain.FetchedMessage {
	concurrency := u.cfg.ScanMaxConcurrency
	if concurrency <= 0 {
		concurrency = 10
	}
	semaphore := make(chan struct{}, concurrency)

	var mu sync.Mutex
	var out []*scandomain.FetchedMessage
	var wg sync.WaitGroup

	for _, id := range ids {
		wg.Add(1)
		go func(msgID string) {
			defer wg.Done()
			semaphore <- struct{}{}
			defer func() { <-semaphore }()

			msg, err := provider.FetchMessage(ctx, creds, msgID)
			if err != nil {
				log.Printf("[Scan] Session %s: skipping message %s: %v", session.ID, msgID, err)
				return
			}
			mu.Lock()
			out = append(out, msg)
			mu.Unlock()
		}(id)
	}
	wg.Wait()
	return out
}

// extractedContact is one deduplicated mailbox participant.
type extractedContact struct {
	Email       string
	DisplayName string
	LastSeen    time.Time
}

// extractContacts dedupes from/to/cc participants by lower-cased email,
// keeping the most recent message date and the longest display name. The
// mailbox owner's own address is skipped.
func extractContacts(messages []*scandomain.FetchedMessage, ownEmail string) []*extractedContact {
	own := strings.ToLower(strings.TrimSpace(ownEmail))
	byEmail := make(map[string]*extractedContact)
	var order []string

	for _, msg := range messages {
		participants := make([]scandomain.Address, 0, len(msg.From)+len(msg.To)+len(msg.Cc))
		participants = append(participants, msg.From...)
		participants = append(participants, msg.To...)
		participants = append(participants, msg.Cc...)

		for _, addr := range participants {
			email := strings.ToLower(strings.TrimSpace(addr.Email))
			if email == "" || email == own {
				continue
			}
			existing, ok := byEmail[email]
			if !ok {
				byEmail[email] = &extractedContact{
					Email:       email,
					DisplayName: addr.Name,
					LastSeen:    msg.Date,
				}
				order = append(order, email)
				continue
			}
			if len(addr.Name) > len(existing.DisplayName) {
				existing.DisplayName = addr.Name
			}
			if msg.Date.After(existing.LastSeen) {
				existing.LastSeen = msg.Date
			}
		}
	}

	out := make([]*extractedContact, 0, len(order))
	for _, email := range order {
		out = append(out, byEmail[email])
	}
	return out
}

// storeContacts upserts extracted contacts into the record store. Invalid
// addresses are counted separately from failures; store failures go to the
// session error list without aborting the scan.
func (u *scanUsecase) storeContacts(session *scandomain.ScanSession, extracted []*extractedContact) []*contactdomain.Contact {
	var stored []*contactdomain.Contact
	for _, ec := range extracted {
		email, err := contactusecase.NormalizeEmail(ec.Email)
		if err != nil {
			session.AddInvalidEmail()
			continue
		}

		existing, err := u.contactUsecase.GetContact(session.AccountID, email)
		if err != nil && err != contactdomain.ErrNotFound {
			session.AddError(fmt.Sprintf("store lookup %s: %v", email, err))
			continue
		}

		partial := &contactdomain.Contact{Email: email}
		if ec.DisplayName != "" {
			partial.GivenName, partial.FamilyName = splitDisplayName(ec.DisplayName)
		}
		if !ec.LastSeen.IsZero() {
			t := ec.LastSeen
			partial.LastContactAt = &t
		}

		contact, err := u.contactUsecase.UpsertContact(session.AccountID, partial)
		if err != nil {
			session.AddError(fmt.Sprintf("store upsert %s: %v", email, err))
			continue
		}
		if existing == nil {
			session.AddContactCreated()
		} else {
			session.AddContactUpdated()
		}
		stored = append(stored, contact)
	}
	return stored
}

func splitDisplayName(name string) (string, string) {
	fields := strings.Fields(name)
	if len(fields) == 0 {
		return "", ""
	}
	if len(fields) == 1 {
		return fields[0], ""
	}
	return fields[0], strings.Join(fields[1:], " ")
}

// syncToCRM pushes stored contacts to each requested connector. Per-item
// failures land in the session error list and never abort the session.
func (u *scanUsecase) syncToCRM(ctx context.Context, session *scandomain.ScanSession, contacts []*contactdomain.Contact) {
	connectors, missing := u.registry.Resolve(session.Options.Connectors)
	for _, name := range missing {
		session.AddError(fmt.Sprintf("unknown connector %q", name))
	}
	if len(connectors) == 0 {
		return
	}

	for _, contact := range contacts {
		if session.CancelRequested() {
			return
		}
		// Pending records stay out of exports until approved.
		if contact.Status == contactdomain.StatusPending {
			continue
		}
		record := &crm.Record{
			Email:      contact.Email,
			GivenName:  contact.GivenName,
			FamilyName: contact.FamilyName,
			Company:    contact.Company,
			Title:      contact.Title,
			Phone:      contact.Phone,
		}
		for _, connector := range connectors {
			existing, err := connector.FindByEmail(ctx, contact.Email)
			if err != nil {
				session.AddError(fmt.Sprintf("%s lookup %s: %v", connector.Name(), contact.Email, err))
				continue
			}
			switch {
			case existing != nil && session.Options.UpdateExisting:
				if err := connector.Update(ctx, record); err != nil {
					session.AddError(fmt.Sprintf("%s update %s: %v", connector.Name(), contact.Email, err))
				}
			case existing == nil && session.Options.CreateNew:
				if err := connector.Create(ctx, record); err != nil {
					session.AddError(fmt.Sprintf("%s create %s: %v", connector.Name(), contact.Email, err))
				}
			}
		}
	}
}

// resolveCredentials loads the account and builds provider credentials.
// Any failure here is fatal to the session.
func (u *scanUsecase) resolveCredentials(accountID string) (*scandomain.MailCredentials, scandomain.MailProvider, error) {
	account, err := u.accountRepo.FindByID(accountID)
	if err != nil {
		return nil, nil, err
	}
	if account == nil {
		return nil, nil, fmt.Errorf("account %s not found", accountID)
	}

	provider, ok := u.providers[account.Provider]
	if !ok {
		return nil, nil, fmt.Errorf("no mail provider for %q", account.Provider)
	}

	creds := &scandomain.MailCredentials{
		Email:        account.Email,
		AccessToken:  account.AccessToken,
		RefreshToken: account.RefreshToken,
		ImapServer:   account.ImapServer,
		ImapPort:     account.ImapPort,
	}

	switch account.Provider {
	case "imap":
		if account.ImapPassword == "" {
			return nil, nil, fmt.Errorf("account %s has no stored IMAP password", accountID)
		}
		password, err := crypto.Decrypt(account.ImapPassword, u.cfg.EncryptionKey)
		if err != nil {
			return nil, nil, fmt.Errorf("decrypting IMAP password: %v", err)
		}
		creds.ImapPassword = password
	default:
		if account.AccessToken == "" && account.RefreshToken == "" {
			return nil, nil, fmt.Errorf("account %s has no mailbox tokens", accountID)
		}
		creds.OnTokenRefresh = u.tokenRefreshCallback(account)
	}

	return creds, provider, nil
}

func (u *scanUsecase) tokenRefreshCallback(account *authdomain.Account) func(accessToken, refreshToken string) error {
	return func(accessToken, refreshToken string) error {
		account.AccessToken = accessToken
		if refreshToken != "" {
			account.RefreshToken = refreshToken
		}
		return u.accountRepo.Update(account)
	}
}

func (u *scanUsecase) persistTerminal(session *scandomain.ScanSession) {
	snap := session.Snapshot()
	if snap.Status == scandomain.StatusRunning {
		// A panic mid-run would leave the session dangling; freeze it.
		session.MarkFailed("scan aborted unexpectedly")
		snap = session.Snapshot()
	}
	if err := u.historyRepo.Save(scandomain.HistoryFromSnapshot(snap)); err != nil {
		// Keep the session in memory so it stays observable.
		log.Printf("[Scan] Failed to persist history for session %s: %v", snap.ID, err)
		return
	}
	u.sessions.Delete(snap.ID)
}
