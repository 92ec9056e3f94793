package usecase

import (
	"fmt"
	"log"
	"time"

	authrepo "github.com/staal2333/crmsync-extension-sub001/internal/auth/repository"
	contactdomain "github.com/staal2333/crmsync-extension-sub001/internal/contact/domain"
	contactrepo "github.com/staal2333/crmsync-extension-sub001/internal/contact/repository"
	contactusecase "github.com/staal2333/crmsync-extension-sub001/internal/contact/usecase"
	"github.com/staal2333/crmsync-extension-sub001/internal/sync/dto"
	syncrepo "github.com/staal2333/crmsync-extension-sub001/internal/sync/repository"
	"github.com/staal2333/crmsync-extension-sub001/pkg/mergefield"
)

// SyncUsecase reconciles a device's contact set with the server store.
// Both modes are idempotent and safe to retry: applies go through the
// field-merge resolver and the message dedup gate, and the stored cursor
// only moves on explicit acknowledgement.
type SyncUsecase interface {
	FullSync(accountID string, req *dto.FullSyncRequest) (*dto.FullSyncResponse, error)
	IncrementalSync(accountID string, req *dto.IncrementalSyncRequest) (*dto.IncrementalSyncResponse, error)
	Acknowledge(accountID string, cursor string) error
	ProvisionCursor(accountID string) error
}

type syncUsecase struct {
	contactRepo contactrepo.ContactRepository
	cursorRepo  syncrepo.CursorRepository
	accountRepo authrepo.AccountRepository
}

// NewSyncUsecase creates a new instance of syncUsecase
func NewSyncUsecase(contactRepo contactrepo.ContactRepository, cursorRepo syncrepo.CursorRepository, accountRepo authrepo.AccountRepository) SyncUsecase {
	return &syncUsecase{
		contactRepo: contactRepo,
		cursorRepo:  cursorRepo,
		accountRepo: accountRepo,
	}
}

func (u *syncUsecase) FullSync(accountID string, req *dto.FullSyncRequest) (*dto.FullSyncResponse, error) {
	since, err := dto.ParseCursor(req.Cursor)
	if err != nil {
		return nil, fmt.Errorf("%w: bad cursor %q", contactdomain.ErrValidation, req.Cursor)
	}

	resp := &dto.FullSyncResponse{}

	// Apply the client change set and compute the response inside one
	// transaction, so the response reflects a fully reconciled state and a
	// mid-way failure leaves nothing applied.
	err = u.contactRepo.Transaction(func(tx contactrepo.ContactRepository) error {
		for _, change := range req.Changes {
			if _, err := u.applyContact(tx, accountID, change, nil); err != nil {
				return err
			}
		}
		for _, msg := range req.Messages {
			if err := u.applyMessage(tx, accountID, msg); err != nil {
				return err
			}
		}
		if req.Settings != nil {
			req.Settings.AccountID = accountID
			if err := u.accountRepo.SaveSettings(req.Settings); err != nil {
				return err
			}
		}

		contacts, err := tx.ChangedSince(accountID, since)
		if err != nil {
			return err
		}
		for _, c := range contacts {
			c.Derive()
		}
		messages, err := tx.MessagesSince(accountID, since)
		if err != nil {
			return err
		}
		deleted, err := tx.DeletedSince(accountID, since)
		if err != nil {
			return err
		}

		settings, err := u.accountRepo.GetSettings(accountID)
		if err != nil {
			return err
		}

		resp.Contacts = contacts
		resp.Messages = messages
		resp.Deleted = deleted
		resp.Settings = settings
		resp.NewCursor = dto.FormatCursor(time.Now())
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func (u *syncUsecase) IncrementalSync(accountID string, req *dto.IncrementalSyncRequest) (*dto.IncrementalSyncResponse, error) {
	since, err := dto.ParseCursor(req.Cursor)
	if err != nil {
		return nil, fmt.Errorf("%w: bad cursor %q", contactdomain.ErrValidation, req.Cursor)
	}

	resp := &dto.IncrementalSyncResponse{}

	err = u.contactRepo.Transaction(func(tx contactrepo.ContactRepository) error {
		var conflicts []dto.MergeConflict

		for _, change := range append(req.Deltas.Added, req.Deltas.Updated...) {
			if _, err := u.applyContact(tx, accountID, change, &conflicts); err != nil {
				return err
			}
		}
		for _, email := range req.Deltas.Deleted {
			normalized, err := contactusecase.NormalizeEmail(email)
			if err != nil {
				return err
			}
			if err := tx.SoftDelete(accountID, normalized, time.Now()); err != nil {
				// Deleting a record this server never saw is a no-op.
				log.Printf("[Sync] Ignoring delete of unknown contact %s", normalized)
			}
		}
		for _, msg := range req.Deltas.Messages {
			if err := u.applyMessage(tx, accountID, msg); err != nil {
				return err
			}
		}
		if req.Deltas.Settings != nil {
			req.Deltas.Settings.AccountID = accountID
			if err := u.accountRepo.SaveSettings(req.Deltas.Settings); err != nil {
				return err
			}
		}

		changed, err := tx.ChangedSince(accountID, since)
		if err != nil {
			return err
		}
		for _, c := range changed {
			c.Derive()
		}
		deleted, err := tx.DeletedSince(accountID, since)
		if err != nil {
			return err
		}

		serverMessages, err := tx.MessagesSince(accountID, since)
		if err != nil {
			return err
		}
		byContactID := make(map[string]string)
		for _, c := range changed {
			byContactID[c.ID] = c.Email
		}
		var messageDeltas []dto.MessageDelta
		for _, m := range serverMessages {
			email, ok := byContactID[m.ContactID]
			if !ok {
				// Unreachable in practice: every message insert also
				// saves its contact, so the contact is always in the
				// changed set.
				continue
			}
			messageDeltas = append(messageDeltas, dto.MessageDelta{
				ContactEmail: email,
				Direction:    m.Direction,
				Subject:      m.Subject,
				SentAt:       m.SentAt,
			})
		}

		resp.Deltas = dto.ContactDeltas{
			Updated:  changed,
			Deleted:  deleted,
			Messages: messageDeltas,
		}
		resp.Conflicts = conflicts
		resp.NewCursor = dto.FormatCursor(time.Now())
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// applyContact upserts one incoming contact through the merge resolver,
// never a blind overwrite. When conflicts is non-nil, resolutions that kept
// the existing value over a differing incoming one are recorded.
func (u *syncUsecase) applyContact(tx contactrepo.ContactRepository, accountID string, incoming *contactdomain.Contact, conflicts *[]dto.MergeConflict) (*contactdomain.Contact, error) {
	email, err := contactusecase.NormalizeEmail(incoming.Email)
	if err != nil {
		return nil, err
	}
	if incoming.OutboundCount < 0 || incoming.InboundCount < 0 {
		return nil, fmt.Errorf("%w: negative message counts for %s", contactdomain.ErrInvariant, email)
	}

	existing, err := tx.GetByEmail(accountID, email)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		contact := &contactdomain.Contact{
			AccountID:      accountID,
			Email:          email,
			GivenName:      incoming.GivenName,
			FamilyName:     incoming.FamilyName,
			Company:        incoming.Company,
			Title:          incoming.Title,
			Phone:          incoming.Phone,
			LinkedinURL:    incoming.LinkedinURL,
			FirstContactAt: incoming.FirstContactAt,
			LastContactAt:  incoming.LastContactAt,
			Status:         incoming.Status,
			Tags:           incoming.Tags,
			FollowUpDueAt:  incoming.FollowUpDueAt,
			LastReviewedAt: incoming.LastReviewedAt,
		}
		if contact.Status == "" {
			contact.Status = contactdomain.StatusApproved
		}
		if err := tx.Create(contact); err != nil {
			return nil, err
		}
		return contact, nil
	}

	resolve := func(field, existingVal, incomingVal string, kind mergefield.Kind) string {
		winner := mergefield.Resolve(existingVal, incomingVal, kind)
		if conflicts != nil && incomingVal != "" && existingVal != "" && winner == existingVal && incomingVal != existingVal {
			*conflicts = append(*conflicts, dto.MergeConflict{
				Email:    email,
				Field:    field,
				Kept:     existingVal,
				Rejected: incomingVal,
			})
		}
		return winner
	}

	existing.GivenName = resolve("given_name", existing.GivenName, incoming.GivenName, mergefield.KindName)
	existing.FamilyName = resolve("family_name", existing.FamilyName, incoming.FamilyName, mergefield.KindName)
	existing.Company = resolve("company", existing.Company, incoming.Company, mergefield.KindCompany)
	existing.Title = resolve("title", existing.Title, incoming.Title, mergefield.KindTitle)
	existing.Phone = resolve("phone", existing.Phone, incoming.Phone, mergefield.KindPhone)
	if existing.LinkedinURL == "" {
		existing.LinkedinURL = incoming.LinkedinURL
	}
	if incoming.Status != "" {
		existing.Status = incoming.Status
	}
	if len(incoming.Tags) > 0 {
		existing.Tags = unionTags(existing.Tags, incoming.Tags)
	}
	if incoming.FirstContactAt != nil {
		existing.ClampContactWindow(*incoming.FirstContactAt)
	}
	if incoming.LastContactAt != nil {
		existing.ClampContactWindow(*incoming.LastContactAt)
	}
	if incoming.FollowUpDueAt != nil {
		existing.FollowUpDueAt = incoming.FollowUpDueAt
	}
	if incoming.LastReviewedAt != nil {
		if existing.LastReviewedAt == nil || incoming.LastReviewedAt.After(*existing.LastReviewedAt) {
			existing.LastReviewedAt = incoming.LastReviewedAt
		}
	}

	if err := tx.Save(existing); err != nil {
		return nil, err
	}
	return existing, nil
}

// applyMessage unions one history entry into the store. Exact duplicates
// (same direction, timestamp, subject) are suppressed and counts only move
// when a row actually lands.
func (u *syncUsecase) applyMessage(tx contactrepo.ContactRepository, accountID string, msg dto.MessageDelta) error {
	email, err := contactusecase.NormalizeEmail(msg.ContactEmail)
	if err != nil {
		return err
	}

	contact, err := tx.GetByEmail(accountID, email)
	if err != nil {
		return err
	}
	if contact == nil {
		contact = &contactdomain.Contact{
			AccountID: accountID,
			Email:     email,
			Status:    contactdomain.StatusApproved,
		}
		if err := tx.Create(contact); err != nil {
			return err
		}
	}

	inserted, err := tx.AppendMessage(&contactdomain.ContactMessage{
		ContactID: contact.ID,
		AccountID: accountID,
		Direction: msg.Direction,
		Subject:   msg.Subject,
		SentAt:    msg.SentAt,
	})
	if err != nil {
		return err
	}
	if !inserted {
		return nil
	}

	if msg.Direction == contactdomain.DirectionOutbound {
		contact.OutboundCount++
	} else {
		contact.InboundCount++
	}
	contact.ClampContactWindow(msg.SentAt)
	return tx.Save(contact)
}

func unionTags(a, b contactdomain.StringArray) contactdomain.StringArray {
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

func (u *syncUsecase) Acknowledge(accountID string, cursor string) error {
	t, err := dto.ParseCursor(cursor)
	if err != nil {
		return fmt.Errorf("%w: bad cursor %q", contactdomain.ErrValidation, cursor)
	}
	if t.IsZero() {
		return fmt.Errorf("%w: empty cursor", contactdomain.ErrValidation)
	}
	return u.cursorRepo.Advance(accountID, t)
}

func (u *syncUsecase) ProvisionCursor(accountID string) error {
	return u.cursorRepo.Provision(accountID)
}
