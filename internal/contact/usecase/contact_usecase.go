package usecase

import (
	"fmt"
	"log"
	"net/mail"
	"sort"
	"strings"
	"sync"
	"time"

	contactdomain "github.com/staal2333/crmsync-extension-sub001/internal/contact/domain"
	"github.com/staal2333/crmsync-extension-sub001/internal/contact/repository"
	"github.com/staal2333/crmsync-extension-sub001/pkg/match"
	"github.com/staal2333/crmsync-extension-sub001/pkg/mergefield"
)

// contactUsecase implements ContactUsecase
type contactUsecase struct {
	contactRepo repository.ContactRepository
	settings    SettingsProvider

	// Single-writer-per-key discipline: concurrent upserts to the same
	// (account, email) serialize, different keys proceed independently.
	keyLocks   map[string]*sync.Mutex
	keyLocksMu sync.Mutex
}

// NewContactUsecase creates a new instance of contactUsecase
func NewContactUsecase(contactRepo repository.ContactRepository, settings SettingsProvider) ContactUsecase {
	return &contactUsecase{
		contactRepo: contactRepo,
		settings:    settings,
		keyLocks:    make(map[string]*sync.Mutex),
	}
}

func (u *contactUsecase) lockKey(accountID, email string) func() {
	u.keyLocksMu.Lock()
	key := accountID + "/" + email
	mu, ok := u.keyLocks[key]
	if !ok {
		mu = &sync.Mutex{}
		u.keyLocks[key] = mu
	}
	u.keyLocksMu.Unlock()

	mu.Lock()
	return mu.Unlock
}

// NormalizeEmail lower-cases and validates an email address.
func NormalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return "", fmt.Errorf("%w: empty email", contactdomain.ErrValidation)
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return "", fmt.Errorf("%w: malformed email %q", contactdomain.ErrValidation, email)
	}
	return email, nil
}

func (u *contactUsecase) defaultStatus(accountID string) contactdomain.LifecycleStatus {
	settings, err := u.settings.GetSettings(accountID)
	if err != nil || settings == nil {
		return contactdomain.StatusApproved
	}
	if settings.RequireReview {
		return contactdomain.StatusPending
	}
	return contactdomain.StatusApproved
}

func (u *contactUsecase) UpsertContact(accountID string, partial *contactdomain.Contact) (*contactdomain.Contact, error) {
	email, err := NormalizeEmail(partial.Email)
	if err != nil {
		return nil, err
	}
	if partial.OutboundCount < 0 || partial.InboundCount < 0 {
		return nil, fmt.Errorf("%w: negative message counts", contactdomain.ErrInvariant)
	}

	unlock := u.lockKey(accountID, email)
	defer unlock()

	existing, err := u.contactRepo.GetByEmail(accountID, email)
	if err != nil {
		return nil, err
	}

	if existing == nil {
		contact := &contactdomain.Contact{
			AccountID:      accountID,
			Email:          email,
			GivenName:      partial.GivenName,
			FamilyName:     partial.FamilyName,
			Company:        partial.Company,
			Title:          partial.Title,
			Phone:          partial.Phone,
			LinkedinURL:    partial.LinkedinURL,
			FirstContactAt: partial.FirstContactAt,
			LastContactAt:  partial.LastContactAt,
			Status:         partial.Status,
			Tags:           partial.Tags,
			FollowUpDueAt:  partial.FollowUpDueAt,
			LastReviewedAt: partial.LastReviewedAt,
		}
		if contact.Status == "" {
			contact.Status = u.defaultStatus(accountID)
		}
		if err := u.contactRepo.Create(contact); err != nil {
			return nil, err
		}
		contact.Derive()
		return contact, nil
	}

	u.mergeInto(existing, partial)
	if err := u.contactRepo.Save(existing); err != nil {
		return nil, err
	}
	existing.Derive()
	return existing, nil
}

// mergeInto applies a field-level merge of partial into existing. Identity
// (email) never changes; monotonic fields combine by max/union.
func (u *contactUsecase) mergeInto(existing, partial *contactdomain.Contact) {
	existing.GivenName = mergefield.Resolve(existing.GivenName, partial.GivenName, mergefield.KindName)
	existing.FamilyName = mergefield.Resolve(existing.FamilyName, partial.FamilyName, mergefield.KindName)
	existing.Company = mergefield.Resolve(existing.Company, partial.Company, mergefield.KindCompany)
	existing.Title = mergefield.Resolve(existing.Title, partial.Title, mergefield.KindTitle)
	existing.Phone = mergefield.Resolve(existing.Phone, partial.Phone, mergefield.KindPhone)
	if existing.LinkedinURL == "" {
		existing.LinkedinURL = partial.LinkedinURL
	}

	if partial.Status != "" {
		existing.Status = partial.Status
	}
	existing.Tags = unionTags(existing.Tags, partial.Tags)

	if partial.FirstContactAt != nil {
		existing.ClampContactWindow(*partial.FirstContactAt)
	}
	if partial.LastContactAt != nil {
		existing.ClampContactWindow(*partial.LastContactAt)
	}
	if partial.FollowUpDueAt != nil {
		existing.FollowUpDueAt = partial.FollowUpDueAt
	}
	if partial.LastReviewedAt != nil {
		if existing.LastReviewedAt == nil || partial.LastReviewedAt.After(*existing.LastReviewedAt) {
			existing.LastReviewedAt = partial.LastReviewedAt
		}
	}

	// An explicit upsert on a tombstoned record revives it.
	if existing.DeletedAt != nil {
		existing.DeletedAt = nil
	}
}

func unionTags(a, b contactdomain.StringArray) contactdomain.StringArray {
	if len(b) == 0 {
		return a
	}
	seen := make(map[string]bool, len(a))
	out := append(contactdomain.StringArray{}, a...)
	for _, t := range a {
		seen[t] = true
	}
	for _, t := range b {
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	return out
}

func (u *contactUsecase) GetContact(accountID, email string) (*contactdomain.Contact, error) {
	email, err := NormalizeEmail(email)
	if err != nil {
		return nil, err
	}
	contact, err := u.contactRepo.GetByEmail(accountID, email)
	if err != nil {
		return nil, err
	}
	if contact == nil {
		return nil, contactdomain.ErrNotFound
	}
	contact.Derive()
	return contact, nil
}

func (u *contactUsecase) GetContacts(accountID string, filter repository.ContactFilter) ([]*contactdomain.Contact, error) {
	contacts, err := u.contactRepo.List(accountID, filter)
	if err != nil {
		return nil, err
	}
	for _, c := range contacts {
		c.Derive()
	}
	return contacts, nil
}

func (u *contactUsecase) DeleteContact(accountID, email string) error {
	email, err := NormalizeEmail(email)
	if err != nil {
		return err
	}
	unlock := u.lockKey(accountID, email)
	defer unlock()

	if err := u.contactRepo.SoftDelete(accountID, email, time.Now()); err != nil {
		return fmt.Errorf("%w: contact %s", contactdomain.ErrNotFound, email)
	}
	return nil
}

func (u *contactUsecase) MergeInboundSignal(accountID string, signal InboundSignal) error {
	email, err := NormalizeEmail(signal.Email)
	if err != nil {
		return err
	}

	unlock := u.lockKey(accountID, email)
	defer unlock()

	contact, err := u.contactRepo.GetByEmail(accountID, email)
	if err != nil {
		return err
	}
	created := false
	if contact == nil {
		contact = &contactdomain.Contact{
			AccountID: accountID,
			Email:     email,
			Status:    u.defaultStatus(accountID),
		}
		if err := u.contactRepo.Create(contact); err != nil {
			return err
		}
		created = true
	}

	if signal.Name != "" {
		given, family := match.SplitFullName(signal.Name)
		contact.GivenName = mergefield.ResolveNameFromSplit(contact.GivenName, given)
		contact.FamilyName = mergefield.ResolveNameFromSplit(contact.FamilyName, family)
	}
	contact.Company = mergefield.Resolve(contact.Company, signal.Company, mergefield.KindCompany)
	contact.Title = mergefield.Resolve(contact.Title, signal.Title, mergefield.KindTitle)
	contact.Phone = mergefield.Resolve(contact.Phone, signal.Phone, mergefield.KindPhone)

	inserted, err := u.contactRepo.AppendMessage(&contactdomain.ContactMessage{
		ContactID: contact.ID,
		AccountID: accountID,
		Direction: contactdomain.DirectionInbound,
		Subject:   signal.Subject,
		SentAt:    signal.ReceivedAt,
	})
	if err != nil {
		return err
	}
	if inserted {
		contact.InboundCount++
		contact.ClampContactWindow(signal.ReceivedAt)
	}

	if err := u.contactRepo.Save(contact); err != nil {
		return err
	}
	if created {
		log.Printf("[Contacts] Created contact %s from inbound signal", email)
	}
	return nil
}

func (u *contactUsecase) RecordOutboundSignal(accountID string, signal OutboundSignal) error {
	settings, _ := u.settings.GetSettings(accountID)

	for _, recipient := range signal.Recipients {
		email, err := NormalizeEmail(recipient)
		if err != nil {
			log.Printf("[Contacts] Skipping invalid recipient %q: %v", recipient, err)
			continue
		}

		unlock := u.lockKey(accountID, email)

		contact, err := u.contactRepo.GetByEmail(accountID, email)
		if err != nil {
			unlock()
			return err
		}
		if contact == nil {
			contact = &contactdomain.Contact{
				AccountID: accountID,
				Email:     email,
				Status:    u.defaultStatus(accountID),
			}
			if err := u.contactRepo.Create(contact); err != nil {
				unlock()
				return err
			}
		}

		inserted, err := u.contactRepo.AppendMessage(&contactdomain.ContactMessage{
			ContactID: contact.ID,
			AccountID: accountID,
			Direction: contactdomain.DirectionOutbound,
			Subject:   signal.Subject,
			SentAt:    signal.SentAt,
		})
		if err != nil {
			unlock()
			return err
		}
		if inserted {
			contact.OutboundCount++
			contact.ClampContactWindow(signal.SentAt)
			if settings != nil && len(settings.NoReplyAfterDays) > 0 {
				due := signal.SentAt.AddDate(0, 0, settings.NoReplyAfterDays[0])
				contact.FollowUpDueAt = &due
			}
		}

		if err := u.contactRepo.Save(contact); err != nil {
			unlock()
			return err
		}
		unlock()
	}
	return nil
}

func (u *contactUsecase) GetFollowUpQueue(accountID string) ([]FollowUpEntry, error) {
	settings, err := u.settings.GetSettings(accountID)
	if err != nil {
		return nil, err
	}
	thresholds := []int{3, 7, 14}
	if settings != nil && len(settings.NoReplyAfterDays) > 0 {
		thresholds = settings.NoReplyAfterDays
	}

	// Pending records stay out of follow-up queues until approved.
	contacts, err := u.contactRepo.List(accountID, repository.ContactFilter{Status: contactdomain.StatusApproved})
	if err != nil {
		return nil, err
	}

	now := time.Now()
	var queue []FollowUpEntry
	for _, c := range contacts {
		c.Derive()
		if c.ThreadStatus != contactdomain.ThreadNoReply {
			continue
		}

		var lastOutbound *contactdomain.ContactMessage
		for i := range c.Messages {
			m := &c.Messages[i]
			if m.Direction != contactdomain.DirectionOutbound {
				continue
			}
			if lastOutbound == nil || m.SentAt.After(lastOutbound.SentAt) {
				lastOutbound = m
			}
		}
		if lastOutbound == nil {
			continue
		}

		days := int(now.Sub(lastOutbound.SentAt).Hours() / 24)
		if days < thresholds[0] {
			continue
		}
		queue = append(queue, FollowUpEntry{
			Contact:               c,
			DaysSinceLastOutbound: days,
			LastOutboundMessage:   lastOutbound,
		})
	}

	sort.Slice(queue, func(i, j int) bool {
		return queue[i].DaysSinceLastOutbound > queue[j].DaysSinceLastOutbound
	})
	return queue, nil
}
