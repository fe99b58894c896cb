package domain

import (
	"encoding/json"
	"time"
)

// Event is a normalized provider event handed to the materializer once the
// webhook layer has verified it and resolved its workspace. It is not
// persisted as such.
//
// Outbound events are produced by the dispatcher after a successful send;
// Author and CountsAsReply decide whether they stop the response SLA clock.
type Event struct {
	EventID           string          `json:"eventId"`
	WorkspaceID       string          `json:"workspaceId"`
	ContactIdentity   string          `json:"contactIdentity"`
	ContactName       string          `json:"contactName,omitempty"`
	Direction         string          `json:"direction"`
	MsgType           string          `json:"msgType"`
	Payload           json.RawMessage `json:"payload,omitempty"`
	Timestamp         time.Time       `json:"timestamp"`
	ProviderMessageID string          `json:"providerMessageId,omitempty"`
	Author            string          `json:"author,omitempty"`
	CountsAsReply     bool            `json:"countsAsReply,omitempty"`
}

// StopsResponseClock reports whether an outbound message authored this way
// counts as a reply to the customer. Agents always count, automation only
// when explicitly flagged, campaigns never.
func StopsResponseClock(author string, countsAsReply bool) bool {
	switch author {
	case AuthorAgent:
		return true
	case AuthorAutomation:
		return countsAsReply
	}
	return false
}
