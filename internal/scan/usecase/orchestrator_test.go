package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	authdomain "github.com/staal2333/crmsync-extension-sub001/internal/auth/domain"
	contactdomain "github.com/staal2333/crmsync-extension-sub001/internal/contact/domain"
	contactrepo "github.com/staal2333/crmsync-extension-sub001/internal/contact/repository"
	contactusecase "github.com/staal2333/crmsync-extension-sub001/internal/contact/usecase"
	scandomain "github.com/staal2333/crmsync-extension-sub001/internal/scan/domain"
	"github.com/staal2333/crmsync-extension-sub001/pkg/config"
	"github.com/staal2333/crmsync-extension-sub001/pkg/crm"
)

// fakeProvider serves scripted message ids and messages. fetchStarted, when
// non-nil, is closed on the first FetchMessage call; gate, when non-nil,
// blocks every fetch until closed.
type fakeProvider struct {
	ids      []string
	listErr  error
	messages map[string]*scandomain.FetchedMessage

	fetchStarted chan struct{}
	gate         chan struct{}
	startOnce    sync.Once
}

func (p *fakeProvider) ListMessageIDs(ctx context.Context, creds *scandomain.MailCredentials, sinceDays, max int) ([]string, error) {
	if p.listErr != nil {
		return nil, p.listErr
	}
	return p.ids, nil
}

func (p *fakeProvider) FetchMessage(ctx context.Context, creds *scandomain.MailCredentials, id string) (*scandomain.FetchedMessage, error) {
	if p.fetchStarted != nil {
		p.startOnce.Do(func() { close(p.fetchStarted) })
	}
	if p.gate != nil {
		<-p.gate
	}
	msg, ok := p.messages[id]
	if !ok {
		return nil, fmt.Errorf("no message %s", id)
	}
	return msg, nil
}

// fakeConnector records every CRM call.
type fakeConnector struct {
	mu       sync.Mutex
	name     string
	existing map[string]bool
	created  []string
	updated  []string
}

func (c *fakeConnector) Name() string { return c.name }

func (c *fakeConnector) FindByEmail(ctx context.Context, email string) (*crm.Record, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.existing[email] {
		return &crm.Record{Email: email}, nil
	}
	return nil, nil
}

func (c *fakeConnector) Create(ctx context.Context, record *crm.Record) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.created = append(c.created, record.Email)
	return nil
}

func (c *fakeConnector) Update(ctx context.Context, record *crm.Record) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.updated = append(c.updated, record.Email)
	return nil
}

type fakeHistoryRepo struct {
	mu   sync.Mutex
	rows map[string]*scandomain.ScanHistory
}

func newFakeHistoryRepo() *fakeHistoryRepo {
	return &fakeHistoryRepo{rows: make(map[string]*scandomain.ScanHistory)}
}

func (r *fakeHistoryRepo) Save(history *scandomain.ScanHistory) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *history
	r.rows[history.ID] = &cp
	return nil
}

func (r *fakeHistoryRepo) ListByAccountID(accountID string, limit int) ([]*scandomain.ScanHistory, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*scandomain.ScanHistory
	for _, row := range r.rows {
		if row.AccountID == accountID {
			cp := *row
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *fakeHistoryRepo) GetByID(accountID, id string) (*scandomain.ScanHistory, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[id]
	if !ok || row.AccountID != accountID {
		return nil, nil
	}
	cp := *row
	return &cp, nil
}

type fakeScanAccountRepo struct {
	account *authdomain.Account
}

func (r *fakeScanAccountRepo) FindByID(id string) (*authdomain.Account, error) {
	if r.account != nil && r.account.ID == id {
		return r.account, nil
	}
	return nil, nil
}

func (r *fakeScanAccountRepo) FindByEmail(email string) (*authdomain.Account, error) { return nil, nil }
func (r *fakeScanAccountRepo) ListAccounts() ([]*authdomain.Account, error)          { return nil, nil }
func (r *fakeScanAccountRepo) Create(account *authdomain.Account) error              { return nil }
func (r *fakeScanAccountRepo) Update(account *authdomain.Account) error              { return nil }
func (r *fakeScanAccountRepo) GetSettings(accountID string) (*authdomain.AccountSettings, error) {
	return nil, nil
}
func (r *fakeScanAccountRepo) SaveSettings(settings *authdomain.AccountSettings) error { return nil }

// fakeContactStore is a minimal ContactUsecase backed by a map. Upserts on an
// existing record keep its lifecycle status, so review gating is observable.
type fakeContactStore struct {
	mu       sync.Mutex
	contacts map[string]*contactdomain.Contact
}

func newFakeContactStore() *fakeContactStore {
	return &fakeContactStore{contacts: make(map[string]*contactdomain.Contact)}
}

func (s *fakeContactStore) UpsertContact(accountID string, partial *contactdomain.Contact) (*contactdomain.Contact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.contacts[partial.Email]
	if !ok {
		c := *partial
		c.AccountID = accountID
		if c.Status == "" {
			c.Status = contactdomain.StatusApproved
		}
		s.contacts[partial.Email] = &c
		cp := c
		return &cp, nil
	}
	if partial.GivenName != "" {
		existing.GivenName = partial.GivenName
	}
	if partial.FamilyName != "" {
		existing.FamilyName = partial.FamilyName
	}
	if partial.LastContactAt != nil {
		existing.LastContactAt = partial.LastContactAt
	}
	cp := *existing
	return &cp, nil
}

func (s *fakeContactStore) GetContact(accountID, email string) (*contactdomain.Contact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.contacts[email]
	if !ok {
		return nil, contactdomain.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (s *fakeContactStore) GetContacts(accountID string, filter contactrepo.ContactFilter) ([]*contactdomain.Contact, error) {
	return nil, nil
}
func (s *fakeContactStore) DeleteContact(accountID, email string) error { return nil }
func (s *fakeContactStore) MergeInboundSignal(accountID string, signal contactusecase.InboundSignal) error {
	return nil
}
func (s *fakeContactStore) RecordOutboundSignal(accountID string, signal contactusecase.OutboundSignal) error {
	return nil
}
func (s *fakeContactStore) GetFollowUpQueue(accountID string) ([]contactusecase.FollowUpEntry, error) {
	return nil, nil
}
func (s *fakeContactStore) DetectDuplicates(accountID string) ([]contactusecase.DuplicateGroup, error) {
	return nil, nil
}
func (s *fakeContactStore) MergeContacts(accountID string, emails []string) (*contactdomain.Contact, error) {
	return nil, nil
}

type scanFixture struct {
	uc        ScanUsecase
	store     SessionStore
	provider  *fakeProvider
	connector *fakeConnector
	history   *fakeHistoryRepo
	contacts  *fakeContactStore
	account   *authdomain.Account
}

func newScanFixture() *scanFixture {
	provider := &fakeProvider{messages: make(map[string]*scandomain.FetchedMessage)}
	connector := &fakeConnector{name: "crm", existing: make(map[string]bool)}
	history := newFakeHistoryRepo()
	contacts := newFakeContactStore()
	account := &authdomain.Account{ID: "acc1", Email: "me@corp.com", Provider: "google", AccessToken: "token"}

	registry := crm.NewRegistry()
	registry.Register(connector)

	cfg := &config.Config{
		ScanDefaultMaxEmails: 100,
		ScanBatchSize:        2,
		ScanMaxConcurrency:   2,
	}

	store := NewMemorySessionStore()
	uc := NewScanUsecase(
		store,
		history,
		&fakeScanAccountRepo{account: account},
		contacts,
		map[string]scandomain.MailProvider{"google": provider},
		registry,
		cfg,
	)
	return &scanFixture{uc: uc, store: store, provider: provider, connector: connector, history: history, contacts: contacts, account: account}
}

func waitTerminal(t *testing.T, uc ScanUsecase, accountID, id string) scandomain.Snapshot {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		snap, err := uc.GetSession(accountID, id)
		if err == nil && snap.Status != scandomain.StatusRunning {
			return *snap
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("session did not reach a terminal state")
	return scandomain.Snapshot{}
}

// waitHistoryRow polls for the persisted terminal snapshot, which lands just
// after the terminal status becomes visible.
func waitHistoryRow(t *testing.T, repo *fakeHistoryRepo, accountID, id string) *scandomain.ScanHistory {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		row, _ := repo.GetByID(accountID, id)
		if row != nil {
			return row
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("history row was not persisted")
	return nil
}

func TestScanCompletes(t *testing.T) {
	f := newScanFixture()

	d1 := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	d2 := time.Date(2025, 6, 5, 10, 0, 0, 0, time.UTC)
	f.provider.ids = []string{"m1", "m2", "m3"}
	f.provider.messages["m1"] = &scandomain.FetchedMessage{
		ID:   "m1",
		From: []scandomain.Address{{Name: "Alice Smith", Email: "alice@ext.com"}},
		To:   []scandomain.Address{{Email: "me@corp.com"}},
		Date: d1,
	}
	f.provider.messages["m2"] = &scandomain.FetchedMessage{
		ID:   "m2",
		From: []scandomain.Address{{Name: "Alice Renee Smith", Email: "ALICE@ext.com"}},
		Cc:   []scandomain.Address{{Name: "Bob", Email: "bob@ext.com"}},
		Date: d2,
	}
	f.provider.messages["m3"] = &scandomain.FetchedMessage{
		ID:   "m3",
		From: []scandomain.Address{{Email: "bogus"}},
		To:   []scandomain.Address{{Name: "Carol", Email: "carol@ext.com"}},
		Date: d1,
	}

	id, err := f.uc.StartScan("acc1", scandomain.ScanOptions{
		CreateNew:  true,
		Connectors: []string{"crm", "ghost"},
	})
	if err != nil {
		t.Fatalf("StartScan() error = %v", err)
	}
	snap := waitTerminal(t, f.uc, "acc1", id)

	if snap.Status != scandomain.StatusCompleted || snap.Phase != scandomain.PhaseCompleted {
		t.Fatalf("session ended (%s, %s), want (completed, completed): %q", snap.Status, snap.Phase, snap.ErrorMessage)
	}
	if snap.EmailsTotal != 3 || snap.EmailsScanned != 3 {
		t.Errorf("emails = %d/%d, want 3/3", snap.EmailsScanned, snap.EmailsTotal)
	}
	if snap.ContactsFound != 4 {
		t.Errorf("contacts found = %d, want 4 (alice, bob, bogus, carol)", snap.ContactsFound)
	}
	if snap.ContactsCreated != 3 || snap.ContactsUpdated != 0 {
		t.Errorf("contacts created/updated = %d/%d, want 3/0", snap.ContactsCreated, snap.ContactsUpdated)
	}
	if snap.InvalidEmails != 1 {
		t.Errorf("invalid emails = %d, want 1", snap.InvalidEmails)
	}

	foundGhost := false
	for _, e := range snap.Errors {
		if strings.Contains(e, `unknown connector "ghost"`) {
			foundGhost = true
		}
	}
	if !foundGhost {
		t.Errorf("errors = %v, want an unknown-connector entry for ghost", snap.Errors)
	}

	alice, err := f.contacts.GetContact("acc1", "alice@ext.com")
	if err != nil {
		t.Fatalf("alice not stored: %v", err)
	}
	if alice.GivenName != "Alice" || alice.FamilyName != "Renee Smith" {
		t.Errorf("alice name = (%q, %q), want the longest display name split", alice.GivenName, alice.FamilyName)
	}
	if alice.LastContactAt == nil || !alice.LastContactAt.Equal(d2) {
		t.Errorf("alice last contact = %v, want the most recent message date %v", alice.LastContactAt, d2)
	}

	if len(f.connector.created) != 3 {
		t.Errorf("CRM created %v, want 3 records", f.connector.created)
	}
	row := waitHistoryRow(t, f.history, "acc1", id)
	if row.Status != scandomain.StatusCompleted {
		t.Errorf("history row = %+v, want a persisted completed snapshot", row)
	}
}

func TestScanCancellationBetweenBatches(t *testing.T) {
	f := newScanFixture()

	d := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	f.provider.ids = []string{"m1", "m2", "m3", "m4"}
	for _, id := range f.provider.ids {
		f.provider.messages[id] = &scandomain.FetchedMessage{
			ID:   id,
			From: []scandomain.Address{{Email: id + "@ext.com"}},
			Date: d,
		}
	}
	f.provider.fetchStarted = make(chan struct{})
	f.provider.gate = make(chan struct{})

	id, err := f.uc.StartScan("acc1", scandomain.ScanOptions{CreateNew: true, Connectors: []string{"crm"}})
	if err != nil {
		t.Fatalf("StartScan() error = %v", err)
	}

	// First batch is in flight and blocked on the gate; request cancellation,
	// then let the batch finish. The check before the second batch must win.
	<-f.provider.fetchStarted
	if err := f.uc.CancelSession("acc1", id); err != nil {
		t.Fatalf("CancelSession() error = %v", err)
	}
	close(f.provider.gate)

	snap := waitTerminal(t, f.uc, "acc1", id)
	if snap.Status != scandomain.StatusCancelled {
		t.Fatalf("status = %s, want cancelled", snap.Status)
	}
	if snap.Phase != scandomain.PhaseFetchingEmails {
		t.Errorf("phase = %s, want frozen at fetching_emails", snap.Phase)
	}
	if snap.EmailsScanned != 2 {
		t.Errorf("emails scanned = %d, want the first batch's 2 retained", snap.EmailsScanned)
	}
	if snap.ContactsFound != 0 || len(f.connector.created) != 0 {
		t.Errorf("cancelled session must not extract or export contacts, got %d found, %v created", snap.ContactsFound, f.connector.created)
	}

	row := waitHistoryRow(t, f.history, "acc1", id)
	if row.Status != scandomain.StatusCancelled {
		t.Errorf("history row = %+v, want a persisted cancelled snapshot", row)
	}
	if err := f.uc.CancelSession("acc1", id); !errors.Is(err, contactdomain.ErrValidation) {
		t.Errorf("second cancel error = %v, want ErrValidation once finished", err)
	}
}

func TestScanListFailureIsFatal(t *testing.T) {
	f := newScanFixture()
	f.provider.listErr = errors.New("mailbox unavailable")

	id, err := f.uc.StartScan("acc1", scandomain.ScanOptions{})
	if err != nil {
		t.Fatalf("StartScan() error = %v", err)
	}
	snap := waitTerminal(t, f.uc, "acc1", id)

	if snap.Status != scandomain.StatusFailed {
		t.Fatalf("status = %s, want failed", snap.Status)
	}
	if !strings.Contains(snap.ErrorMessage, "message id listing failed") {
		t.Errorf("error message = %q, want the listing failure reason", snap.ErrorMessage)
	}
	row := waitHistoryRow(t, f.history, "acc1", id)
	if row.Status != scandomain.StatusFailed {
		t.Errorf("history row = %+v, want a persisted failed snapshot", row)
	}
}

func TestScanUnknownProviderIsFatal(t *testing.T) {
	f := newScanFixture()
	f.account.Provider = "yahoo"

	id, err := f.uc.StartScan("acc1", scandomain.ScanOptions{})
	if err != nil {
		t.Fatalf("StartScan() error = %v", err)
	}
	snap := waitTerminal(t, f.uc, "acc1", id)

	if snap.Status != scandomain.StatusFailed {
		t.Fatalf("status = %s, want failed", snap.Status)
	}
	if !strings.Contains(snap.ErrorMessage, "credential resolution failed") {
		t.Errorf("error message = %q, want a credential resolution failure", snap.ErrorMessage)
	}
}

func TestScanSkipsPendingContactsInCRMSync(t *testing.T) {
	f := newScanFixture()

	// bob already exists in the record store, unapproved.
	f.contacts.contacts["bob@ext.com"] = &contactdomain.Contact{
		AccountID: "acc1", Email: "bob@ext.com", Status: contactdomain.StatusPending,
	}
	f.connector.existing["alice@ext.com"] = true

	d := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	f.provider.ids = []string{"m1"}
	f.provider.messages["m1"] = &scandomain.FetchedMessage{
		ID: "m1",
		From: []scandomain.Address{
			{Name: "Alice", Email: "alice@ext.com"},
		},
		To:   []scandomain.Address{{Name: "Bob", Email: "bob@ext.com"}},
		Date: d,
	}

	id, err := f.uc.StartScan("acc1", scandomain.ScanOptions{
		CreateNew:      true,
		UpdateExisting: true,
		Connectors:     []string{"crm"},
	})
	if err != nil {
		t.Fatalf("StartScan() error = %v", err)
	}
	snap := waitTerminal(t, f.uc, "acc1", id)

	if snap.Status != scandomain.StatusCompleted {
		t.Fatalf("status = %s, want completed: %q", snap.Status, snap.ErrorMessage)
	}
	if snap.ContactsCreated != 1 || snap.ContactsUpdated != 1 {
		t.Errorf("contacts created/updated = %d/%d, want 1/1", snap.ContactsCreated, snap.ContactsUpdated)
	}
	if len(f.connector.updated) != 1 || f.connector.updated[0] != "alice@ext.com" {
		t.Errorf("CRM updated %v, want only alice", f.connector.updated)
	}
	if len(f.connector.created) != 0 {
		t.Errorf("CRM created %v, pending records must stay out of exports", f.connector.created)
	}
}

func TestScanEvictsTerminalSessions(t *testing.T) {
	f := newScanFixture()

	d := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	f.provider.ids = []string{"m1"}
	f.provider.messages["m1"] = &scandomain.FetchedMessage{
		ID:   "m1",
		From: []scandomain.Address{{Name: "Alice", Email: "alice@ext.com"}},
		Date: d,
	}

	id, err := f.uc.StartScan("acc1", scandomain.ScanOptions{CreateNew: true})
	if err != nil {
		t.Fatalf("StartScan() error = %v", err)
	}
	snap := waitTerminal(t, f.uc, "acc1", id)
	if snap.Status != scandomain.StatusCompleted {
		t.Fatalf("status = %s, want completed: %q", snap.Status, snap.ErrorMessage)
	}

	// Eviction lands right after the history row is written; the terminal
	// status can be visible a moment earlier.
	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, ok := f.store.Get(id); !ok {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("terminal session still held in the memory store")
		}
		time.Sleep(5 * time.Millisecond)
	}

	// Reads fall back to the persisted history row.
	got, err := f.uc.GetSession("acc1", id)
	if err != nil {
		t.Fatalf("GetSession() after eviction error = %v", err)
	}
	if got.Status != scandomain.StatusCompleted || got.EmailsScanned != 1 {
		t.Errorf("snapshot after eviction = %+v, want the persisted terminal state", got)
	}

	// Cancelling an evicted, finished session is a validation error.
	if err := f.uc.CancelSession("acc1", id); !errors.Is(err, contactdomain.ErrValidation) {
		t.Errorf("CancelSession() after eviction error = %v, want ErrValidation", err)
	}
}

func TestListSessions(t *testing.T) {
	f := newScanFixture()

	d := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	f.provider.ids = []string{"m1", "m2"}
	for _, id := range f.provider.ids {
		f.provider.messages[id] = &scandomain.FetchedMessage{
			ID:   id,
			From: []scandomain.Address{{Email: id + "@ext.com"}},
			Date: d,
		}
	}
	f.provider.fetchStarted = make(chan struct{})
	f.provider.gate = make(chan struct{})

	id, err := f.uc.StartScan("acc1", scandomain.ScanOptions{CreateNew: true})
	if err != nil {
		t.Fatalf("StartScan() error = %v", err)
	}

	<-f.provider.fetchStarted
	live := f.uc.ListSessions("acc1")
	if len(live) != 1 || live[0].ID != id || live[0].Status != scandomain.StatusRunning {
		t.Fatalf("live sessions = %+v, want the one running session", live)
	}
	if other := f.uc.ListSessions("other-account"); len(other) != 0 {
		t.Errorf("cross-account listing = %+v, want empty", other)
	}

	close(f.provider.gate)
	waitTerminal(t, f.uc, "acc1", id)

	deadline := time.Now().Add(2 * time.Second)
	for {
		if len(f.uc.ListSessions("acc1")) == 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("finished session still listed as live")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestStartScanRejectsNegativeDateRange(t *testing.T) {
	f := newScanFixture()
	if _, err := f.uc.StartScan("acc1", scandomain.ScanOptions{DateRangeDays: -1}); !errors.Is(err, contactdomain.ErrValidation) {
		t.Errorf("StartScan() error = %v, want ErrValidation", err)
	}
}

func TestGetSessionFallsBackToHistory(t *testing.T) {
	f := newScanFixture()

	if err := f.history.Save(&scandomain.ScanHistory{
		ID: "old-session", AccountID: "acc1",
		Status: scandomain.StatusCompleted, Phase: scandomain.PhaseCompleted,
		EmailsScanned: 12, EmailsTotal: 12, ContactsFound: 4,
	}); err != nil {
		t.Fatal(err)
	}

	snap, err := f.uc.GetSession("acc1", "old-session")
	if err != nil {
		t.Fatalf("GetSession() error = %v", err)
	}
	if snap.Status != scandomain.StatusCompleted || snap.EmailsScanned != 12 {
		t.Errorf("snapshot = %+v, want the persisted history row", snap)
	}

	if _, err := f.uc.GetSession("acc1", "never-existed"); !errors.Is(err, contactdomain.ErrNotFound) {
		t.Errorf("GetSession() error = %v, want ErrNotFound", err)
	}
	if _, err := f.uc.GetSession("other-account", "old-session"); !errors.Is(err, contactdomain.ErrNotFound) {
		t.Errorf("cross-account GetSession() error = %v, want ErrNotFound", err)
	}
}

func TestExtractContacts(t *testing.T) {
	d1 := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	d2 := time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)

	messages := []*scandomain.FetchedMessage{
		{
			From: []scandomain.Address{{Name: "Alice", Email: "Alice@Ext.com"}},
			To:   []scandomain.Address{{Email: "me@corp.com"}, {Name: "Bob", Email: "bob@ext.com"}},
			Date: d1,
		},
		{
			From: []scandomain.Address{{Name: "Alice Renee Smith", Email: "alice@ext.com"}},
			Date: d2,
		},
	}

	out := extractContacts(messages, "ME@corp.com")
	if len(out) != 2 {
		t.Fatalf("extracted %d contacts, want 2 (owner skipped, alice deduped)", len(out))
	}
	if out[0].Email != "alice@ext.com" || out[1].Email != "bob@ext.com" {
		t.Errorf("order = [%s, %s], want first-seen order", out[0].Email, out[1].Email)
	}
	alice := out[0]
	if alice.DisplayName != "Alice Renee Smith" {
		t.Errorf("display name = %q, want the longest variant", alice.DisplayName)
	}
	if !alice.LastSeen.Equal(d2) {
		t.Errorf("last seen = %v, want the later date %v", alice.LastSeen, d2)
	}
}
