package usecase

import (
	"fmt"
	"sort"
	"strings"
	"time"

	contactdomain "github.com/staal2333/crmsync-extension-sub001/internal/contact/domain"
	"github.com/staal2333/crmsync-extension-sub001/internal/contact/repository"
	"github.com/staal2333/crmsync-extension-sub001/pkg/match"
	"github.com/staal2333/crmsync-extension-sub001/pkg/mergefield"
)

const (
	reasonIdenticalEmail     = "Identical email"
	reasonSimilarNameCompany = "Similar name, same company"
)

// DetectDuplicates groups records that likely represent the same person.
// This is a heuristic with known false-positive risk (common names at the
// same company); it proposes, the user disposes via MergeContacts.
func (u *contactUsecase) DetectDuplicates(accountID string) ([]DuplicateGroup, error) {
	contacts, err := u.contactRepo.List(accountID, repository.ContactFilter{})
	if err != nil {
		return nil, err
	}

	var groups []DuplicateGroup
	grouped := make(map[string]bool)

	// (a) identical emails case-insensitively. The key invariant should make
	// this impossible, but imports can slip records past it.
	byEmail := make(map[string][]*contactdomain.Contact)
	for _, c := range contacts {
		byEmail[strings.ToLower(c.Email)] = append(byEmail[strings.ToLower(c.Email)], c)
	}
	for _, members := range byEmail {
		if len(members) > 1 {
			groups = append(groups, DuplicateGroup{Reason: reasonIdenticalEmail, Members: members})
			for _, m := range members {
				grouped[m.ID] = true
			}
		}
	}

	// (b) same company, first/last name pair matching in either order.
	for i := 0; i < len(contacts); i++ {
		a := contacts[i]
		if grouped[a.ID] || a.Company == "" {
			continue
		}
		members := []*contactdomain.Contact{a}
		for j := i + 1; j < len(contacts); j++ {
			b := contacts[j]
			if grouped[b.ID] || b.Company == "" {
				continue
			}
			if match.EqualFold(a.Company, b.Company) && match.NamesSwapped(a.FullName(), b.FullName()) {
				members = append(members, b)
			}
		}
		if len(members) > 1 {
			groups = append(groups, DuplicateGroup{Reason: reasonSimilarNameCompany, Members: members})
			for _, m := range members {
				grouped[m.ID] = true
			}
		}
	}

	return groups, nil
}

// MergeContacts folds all-but-one record into the most complete one (ranked
// by non-empty-field count, first-listed wins ties) and tombstones the rest.
func (u *contactUsecase) MergeContacts(accountID string, emails []string) (*contactdomain.Contact, error) {
	if len(emails) < 2 {
		return nil, fmt.Errorf("%w: merge needs at least two contacts", contactdomain.ErrValidation)
	}

	normalized := make([]string, 0, len(emails))
	for _, e := range emails {
		n, err := NormalizeEmail(e)
		if err != nil {
			return nil, err
		}
		normalized = append(normalized, n)
	}

	var keeper *contactdomain.Contact
	err := u.contactRepo.Transaction(func(tx repository.ContactRepository) error {
		records := make([]*contactdomain.Contact, 0, len(normalized))
		for _, e := range normalized {
			c, err := tx.GetByEmail(accountID, e)
			if err != nil {
				return err
			}
			if c == nil {
				return fmt.Errorf("%w: invalid merge target %s", contactdomain.ErrValidation, e)
			}
			records = append(records, c)
		}

		// Stable rank: completeness desc, original order on ties.
		sort.SliceStable(records, func(i, j int) bool {
			return records[i].NonEmptyFieldCount() > records[j].NonEmptyFieldCount()
		})
		keeper = records[0]

		now := time.Now()
		for _, other := range records[1:] {
			keeper.GivenName = mergefield.Resolve(keeper.GivenName, other.GivenName, mergefield.KindName)
			keeper.FamilyName = mergefield.Resolve(keeper.FamilyName, other.FamilyName, mergefield.KindName)
			keeper.Company = mergefield.Resolve(keeper.Company, other.Company, mergefield.KindCompany)
			keeper.Title = mergefield.Resolve(keeper.Title, other.Title, mergefield.KindTitle)
			keeper.Phone = mergefield.Resolve(keeper.Phone, other.Phone, mergefield.KindPhone)
			if keeper.LinkedinURL == "" {
				keeper.LinkedinURL = other.LinkedinURL
			}
			keeper.Tags = unionTags(keeper.Tags, other.Tags)

			// Fold history through the dedup gate so counts stay equal to
			// the message rows that actually land on the keeper.
			for _, m := range other.Messages {
				inserted, err := tx.AppendMessage(&contactdomain.ContactMessage{
					ContactID: keeper.ID,
					AccountID: accountID,
					Direction: m.Direction,
					Subject:   m.Subject,
					SentAt:    m.SentAt,
				})
				if err != nil {
					return err
				}
				if inserted {
					if m.Direction == contactdomain.DirectionOutbound {
						keeper.OutboundCount++
					} else {
						keeper.InboundCount++
					}
					keeper.ClampContactWindow(m.SentAt)
				}
			}

			if err := tx.SoftDelete(accountID, other.Email, now); err != nil {
				return err
			}
		}

		return tx.Save(keeper)
	})
	if err != nil {
		return nil, err
	}

	keeper.Derive()
	return keeper, nil
}
