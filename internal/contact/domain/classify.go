package domain

import "strings"

var bounceMarkers = []string{
	"undeliverable",
	"delivery failure",
	"mail delivery failed",
	"bounce",
	"returned mail",
}

// ReplyRule maps an ordered keyword family to a reply category. Rules are
// checked in table order; the first family with a hit wins.
type ReplyRule struct {
	Category ReplyCategory
	Markers  []string
}

// ReplyRules is the ordered classification table for inbound subjects.
var ReplyRules = []ReplyRule{
	{ReplyMeetingBooked, []string{"calendar", "meeting", "call", "zoom", "calendly", "schedule", "book", "appointment", "time slot"}},
	{ReplyPositive, []string{"interested", "yes", "let's", "sounds good", "love to", "would like", "definitely", "absolutely"}},
	{ReplyNotInterested, []string{"no thanks", "unsubscribe", "remove", "not interested", "not a fit", "pass", "decline"}},
	{ReplyObjection, []string{"not right now", "budget", "timing", "later", "maybe", "consider", "think about"}},
}

// DeriveThreadStatus computes the conversation state from message history.
// A bounce marker in any subject is terminal and overrides the count rules.
func DeriveThreadStatus(messages []ContactMessage, outbound, inbound int) ThreadStatus {
	for _, m := range messages {
		subject := strings.ToLower(m.Subject)
		for _, marker := range bounceMarkers {
			if strings.Contains(subject, marker) {
				return ThreadBounced
			}
		}
	}

	switch {
	case outbound > 0 && inbound == 0:
		return ThreadNoReply
	case inbound > 0:
		return ThreadReplied
	default:
		return ThreadNone
	}
}

// DeriveReplyCategory classifies the intent of a contact's replies. Only
// meaningful once an inbound message exists; a bounced thread short-circuits
// to ReplyBounce regardless of keywords. Engagement with no matching family
// defaults to positive.
func DeriveReplyCategory(messages []ContactMessage, status ThreadStatus) ReplyCategory {
	if status == ThreadBounced {
		return ReplyBounce
	}

	var sb strings.Builder
	inbound := 0
	for _, m := range messages {
		if m.Direction == DirectionInbound {
			inbound++
			sb.WriteString(strings.ToLower(m.Subject))
			sb.WriteString(" ")
		}
	}
	if inbound == 0 {
		return ReplyNone
	}

	haystack := sb.String()
	for _, rule := range ReplyRules {
		for _, marker := range rule.Markers {
			if strings.Contains(haystack, marker) {
				return rule.Category
			}
		}
	}
	return ReplyPositive
}
