package dto

import (
	"time"

	contactdomain "github.com/staal2333/crmsync-extension-sub001/internal/contact/domain"
	"github.com/staal2333/crmsync-extension-sub001/internal/contact/usecase"
)

// UpsertContactRequest is the caller-supplied partial record. Email is the
// identity key and the only required field.
type UpsertContactRequest struct {
	Email          string                         `json:"email" binding:"required"`
	GivenName      string                         `json:"given_name"`
	FamilyName     string                         `json:"family_name"`
	Company        string                         `json:"company"`
	Title          string                         `json:"title"`
	Phone          string                         `json:"phone"`
	LinkedinURL    string                         `json:"linkedin_url"`
	Status         contactdomain.LifecycleStatus  `json:"status"`
	Tags           []string                       `json:"tags"`
	FirstContactAt *time.Time                     `json:"first_contact_at"`
	LastContactAt  *time.Time                     `json:"last_contact_at"`
	FollowUpDueAt  *time.Time                     `json:"follow_up_due_at"`
	LastReviewedAt *time.Time                     `json:"last_reviewed_at"`
}

// ToDomain converts the request to a partial contact record.
func (r *UpsertContactRequest) ToDomain() *contactdomain.Contact {
	return &contactdomain.Contact{
		Email:          r.Email,
		GivenName:      r.GivenName,
		FamilyName:     r.FamilyName,
		Company:        r.Company,
		Title:          r.Title,
		Phone:          r.Phone,
		LinkedinURL:    r.LinkedinURL,
		Status:         r.Status,
		Tags:           contactdomain.StringArray(r.Tags),
		FirstContactAt: r.FirstContactAt,
		LastContactAt:  r.LastContactAt,
		FollowUpDueAt:  r.FollowUpDueAt,
		LastReviewedAt: r.LastReviewedAt,
	}
}

type InboundSignalRequest struct {
	Email      string    `json:"email" binding:"required"`
	Name       string    `json:"name"`
	Company    string    `json:"company"`
	Title      string    `json:"title"`
	Phone      string    `json:"phone"`
	Subject    string    `json:"subject"`
	ReceivedAt time.Time `json:"received_at" binding:"required"`
}

type OutboundSignalRequest struct {
	Recipients []string  `json:"recipients" binding:"required"`
	Subject    string    `json:"subject"`
	SentAt     time.Time `json:"sent_at" binding:"required"`
}

type MergeContactsRequest struct {
	Emails []string `json:"emails" binding:"required"`
}

type ContactsResponse struct {
	Contacts []*contactdomain.Contact `json:"contacts"`
	Total    int                      `json:"total"`
}

type FollowUpQueueResponse struct {
	Entries []usecase.FollowUpEntry `json:"entries"`
}

type DuplicatesResponse struct {
	Groups []usecase.DuplicateGroup `json:"groups"`
}
