package webhook

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/tbourn/go-wa-inbox/internal/domain"
)

// ErrInvalidEvent wraps schema violations of a normalized event.
var ErrInvalidEvent = errors.New("invalid normalized event")

const eventSchemaURL = "mem://schemas/event.json"

var printer = message.NewPrinter(language.English)

const eventSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["eventId", "workspaceId", "contactIdentity", "direction", "msgType"],
  "properties": {
    "eventId":           {"type": "string", "minLength": 1, "maxLength": 256},
    "workspaceId":       {"type": "string", "minLength": 1, "maxLength": 64},
    "contactIdentity":   {"type": "string", "minLength": 1, "maxLength": 32},
    "contactName":       {"type": "string", "maxLength": 255},
    "direction":         {"enum": ["in", "out"]},
    "msgType":           {"type": "string", "minLength": 1, "maxLength": 32},
    "payload":           {"type": "object"},
    "timestamp":         {"type": "string", "format": "date-time"},
    "providerMessageId": {"type": "string", "maxLength": 128},
    "author":            {"enum": ["customer", "agent", "automation", "campaign"]},
    "countsAsReply":     {"type": "boolean"}
  },
  "additionalProperties": false
}`

// Validator checks normalized events against the event schema.
type Validator struct {
	schema *jsonschema.Schema
}

// NewValidator compiles the event schema.
func NewValidator() (*Validator, error) {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(eventSchema))
	if err != nil {
		return nil, err
	}
	c := jsonschema.NewCompiler()
	c.AssertFormat()
	if err := c.AddResource(eventSchemaURL, doc); err != nil {
		return nil, err
	}
	s, err := c.Compile(eventSchemaURL)
	if err != nil {
		return nil, err
	}
	return &Validator{schema: s}, nil
}

// Decode validates body and decodes it into an Event.
func (v *Validator) Decode(body []byte) (domain.Event, error) {
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(body))
	if err != nil {
		return domain.Event{}, fmt.Errorf("%w: not JSON", ErrInvalidEvent)
	}
	if err := v.schema.Validate(inst); err != nil {
		var ve *jsonschema.ValidationError
		if errors.As(err, &ve) {
			return domain.Event{}, fmt.Errorf("%w: %s", ErrInvalidEvent, firstCause(ve))
		}
		return domain.Event{}, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}
	var ev domain.Event
	if err := json.Unmarshal(body, &ev); err != nil {
		return domain.Event{}, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}
	return ev, nil
}

// firstCause reports the innermost violation with its instance location.
func firstCause(ve *jsonschema.ValidationError) string {
	for len(ve.Causes) > 0 {
		ve = ve.Causes[0]
	}
	loc := "/" + strings.Join(ve.InstanceLocation, "/")
	return loc + ": " + ve.ErrorKind.LocalizedString(printer)
}
