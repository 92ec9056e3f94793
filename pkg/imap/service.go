package imap

import (
	"context"
	"fmt"
	"strconv"
	"time"

	scandomain "github.com/staal2333/crmsync-extension-sub001/internal/scan/domain"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/emersion/go-message/mail"
)

// Service is the IMAP mail provider, used for accounts without Gmail OAuth.
// Connections are per call; IMAP servers drop idle sessions aggressively and
// scans run minutes apart from each other.
type Service struct{}

// NewService creates a new instance of Service
func NewService() *Service {
	return &Service{}
}

func (s *Service) connect(creds *scandomain.MailCredentials) (*client.Client, error) {
	addr := fmt.Sprintf("%s:%d", creds.ImapServer, creds.ImapPort)
	c, err := client.DialTLS(addr, nil)
	if err != nil {
		return nil, fmt.Errorf("connecting to IMAP %s: %v", addr, err)
	}
	if err := c.Login(creds.Email, creds.ImapPassword); err != nil {
		_ = c.Logout()
		return nil, fmt.Errorf("IMAP login failed for %s: %v", creds.Email, err)
	}
	return c, nil
}

// ListMessageIDs searches INBOX and returns message UIDs, most recent last,
// capped at max.
func (s *Service) ListMessageIDs(ctx context.Context, creds *scandomain.MailCredentials, sinceDays, max int) ([]string, error) {
	c, err := s.connect(creds)
	if err != nil {
		return nil, err
	}
	defer c.Logout()

	if _, err := c.Select("INBOX", true); err != nil {
		return nil, fmt.Errorf("selecting INBOX: %v", err)
	}

	criteria := imap.NewSearchCriteria()
	if sinceDays > 0 {
		criteria.Since = time.Now().AddDate(0, 0, -sinceDays)
	}

	uids, err := c.UidSearch(criteria)
	if err != nil {
		return nil, fmt.Errorf("searching messages: %v", err)
	}

	// Keep the most recent when over the cap; UIDs ascend with delivery.
	if max > 0 && len(uids) > max {
		uids = uids[len(uids)-max:]
	}

	ids := make([]string, 0, len(uids))
	for _, uid := range uids {
		ids = append(ids, strconv.FormatUint(uint64(uid), 10))
	}
	return ids, nil
}

// FetchMessage retrieves one message's headers and parses the participant
// addresses.
func (s *Service) FetchMessage(ctx context.Context, creds *scandomain.MailCredentials, id string) (*scandomain.FetchedMessage, error) {
	uid, err := strconv.ParseUint(id, 10, 32)
	if err != nil {
		return nil, fmt.Errorf("bad message id %q: %v", id, err)
	}

	c, err := s.connect(creds)
	if err != nil {
		return nil, err
	}
	defer c.Logout()

	if _, err := c.Select("INBOX", true); err != nil {
		return nil, fmt.Errorf("selecting INBOX: %v", err)
	}

	seqset := new(imap.SeqSet)
	seqset.AddNum(uint32(uid))

	section := &imap.BodySectionName{
		BodyPartName: imap.BodyPartName{Specifier: imap.HeaderSpecifier},
		Peek:         true,
	}
	items := []imap.FetchItem{section.FetchItem(), imap.FetchUid}

	messages := make(chan *imap.Message, 1)
	done := make(chan error, 1)
	go func() {
		done <- c.UidFetch(seqset, items, messages)
	}()

	var fetched *scandomain.FetchedMessage
	for msg := range messages {
		body := msg.GetBody(section)
		if body == nil {
			continue
		}
		mr, err := mail.CreateReader(body)
		if err != nil {
			continue
		}
		fetched = &scandomain.FetchedMessage{
			ID:      id,
			Subject: headerSubject(&mr.Header),
			From:    headerAddresses(&mr.Header, "From"),
			To:      headerAddresses(&mr.Header, "To"),
			Cc:      headerAddresses(&mr.Header, "Cc"),
			Date:    headerDate(&mr.Header),
		}
	}
	if err := <-done; err != nil {
		return nil, fmt.Errorf("fetching message %s: %v", id, err)
	}
	if fetched == nil {
		return nil, fmt.Errorf("message %s not found", id)
	}
	return fetched, nil
}

func headerSubject(h *mail.Header) string {
	subject, err := h.Subject()
	if err != nil {
		return ""
	}
	return subject
}

func headerDate(h *mail.Header) time.Time {
	date, err := h.Date()
	if err != nil {
		return time.Time{}
	}
	return date
}

func headerAddresses(h *mail.Header, field string) []scandomain.Address {
	list, err := h.AddressList(field)
	if err != nil {
		return nil
	}
	out := make([]scandomain.Address, 0, len(list))
	for _, a := range list {
		out = append(out, scandomain.Address{Name: a.Name, Email: a.Address})
	}
	return out
}
