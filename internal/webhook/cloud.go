// Package webhook turns WhatsApp Cloud API webhook deliveries into the
// normalized events consumed by the materializer, and validates normalized
// events submitted directly by trusted collaborators.
package webhook

import (
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/tbourn/go-wa-inbox/internal/domain"
)

// ErrMalformed is returned for bodies that are not a Cloud API webhook.
var ErrMalformed = errors.New("malformed webhook payload")

type payload struct {
	Object string  `json:"object"`
	Entry  []entry `json:"entry"`
}

type entry struct {
	ID      string   `json:"id"`
	Changes []change `json:"changes"`
}

type change struct {
	Field string `json:"field"`
	Value value  `json:"value"`
}

type value struct {
	Metadata struct {
		PhoneNumberID string `json:"phone_number_id"`
	} `json:"metadata"`
	Contacts []struct {
		WaID    string `json:"wa_id"`
		Profile struct {
			Name string `json:"name"`
		} `json:"profile"`
	} `json:"contacts"`
	Messages []map[string]json.RawMessage `json:"messages"`
	Statuses []struct {
		ID           string `json:"id"`
		Status       string `json:"status"`
		Timestamp    string `json:"timestamp"`
		CallbackData string `json:"biz_opaque_callback_data"`
	} `json:"statuses"`
}

// StatusUpdate is a delivery receipt for an outbound message. OutboxID is
// the callback data the dispatcher attached to the send, if any.
type StatusUpdate struct {
	ProviderMessageID string
	OutboxID          string
	Status            string
	Timestamp         time.Time
}

// Batch groups what one delivery carried for one business phone number.
// Events have no WorkspaceID yet; the caller resolves it from PhoneNumberID.
type Batch struct {
	PhoneNumberID string
	Events        []domain.Event
	Statuses      []StatusUpdate
}

// Parse decodes a Cloud API webhook body. Changes for fields other than
// "messages" are ignored; individual messages without an id or sender are
// skipped.
func Parse(body []byte) ([]Batch, error) {
	var p payload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, ErrMalformed
	}
	if p.Object != "whatsapp_business_account" {
		return nil, ErrMalformed
	}

	var out []Batch
	for _, e := range p.Entry {
		for _, ch := range e.Changes {
			if ch.Field != "messages" {
				continue
			}
			v := ch.Value
			b := Batch{PhoneNumberID: v.Metadata.PhoneNumberID}

			names := make(map[string]string, len(v.Contacts))
			for _, c := range v.Contacts {
				names[c.WaID] = c.Profile.Name
			}
			for _, raw := range v.Messages {
				ev, ok := toEvent(raw, names)
				if ok {
					b.Events = append(b.Events, ev)
				}
			}
			for _, s := range v.Statuses {
				if s.ID == "" || s.Status == "" {
					continue
				}
				b.Statuses = append(b.Statuses, StatusUpdate{
					ProviderMessageID: s.ID,
					OutboxID:          strings.TrimSpace(s.CallbackData),
					Status:            strings.ToLower(s.Status),
					Timestamp:         unixString(s.Timestamp),
				})
			}
			if len(b.Events) > 0 || len(b.Statuses) > 0 {
				out = append(out, b)
			}
		}
	}
	return out, nil
}

func toEvent(raw map[string]json.RawMessage, names map[string]string) (domain.Event, bool) {
	str := func(k string) string {
		var s string
		_ = json.Unmarshal(raw[k], &s)
		return s
	}
	id, from, typ := str("id"), str("from"), str("type")
	if id == "" || from == "" {
		return domain.Event{}, false
	}
	if typ == "" {
		typ = "unknown"
	}
	body := raw[typ]
	if len(body) == 0 {
		body = json.RawMessage("{}")
	}
	return domain.Event{
		EventID:           id,
		ContactIdentity:   from,
		ContactName:       names[from],
		Direction:         domain.DirectionIn,
		MsgType:           typ,
		Payload:           body,
		Timestamp:         unixString(str("timestamp")),
		ProviderMessageID: id,
	}, true
}

// unixString parses the provider's decimal epoch-seconds strings. Invalid
// values yield the zero time, which callers treat as "now".
func unixString(s string) time.Time {
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || n <= 0 {
		return time.Time{}
	}
	return time.Unix(n, 0).UTC()
}
