// Package provider implements the outbound collaborator of the delivery
// engine: a WhatsApp Cloud API client that sends one message and returns the
// provider message id. Retries, backoff and attempt accounting belong to the
// dispatcher; the client performs exactly one HTTP call per Send.
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// SendRequest is one outbound message.
type SendRequest struct {
	PhoneNumberID string
	AccessToken   string
	ToPhone       string
	MessageType   string
	// Payload is the type-specific object, e.g. {"body":"hi"} for "text" or
	// {"name":"promo","language":{"code":"en"}} for "template".
	Payload json.RawMessage
	// CallbackData is echoed back by the provider on every status webhook
	// for this message.
	CallbackData string
}

// ErrMissingCredentials is returned when the workspace has no phone-number
// id or access token configured.
var ErrMissingCredentials = errors.New("provider credentials not configured")

// Error is a non-2xx answer from the provider. Message never includes the
// access token.
type Error struct {
	Status  int
	Code    int
	Message string
}

func (e *Error) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("whatsapp send failed: status=%d code=%d message=%s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("whatsapp send failed: status=%d message=%s", e.Status, e.Message)
}

// Options configures a Client.
type Options struct {
	BaseURL    string
	APIVersion string
	HTTPClient *http.Client
	UserAgent  string
}

// Client talks to the WhatsApp Cloud API Graph endpoint.
type Client struct {
	baseURL    string
	apiVersion string
	httpClient *http.Client
	userAgent  string
}

// NewClient builds a Client, filling in Graph API defaults.
func NewClient(opts Options) *Client {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = "https://graph.facebook.com"
	}
	version := strings.Trim(strings.TrimSpace(opts.APIVersion), "/")
	if version == "" {
		version = "v19.0"
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		baseURL:    baseURL,
		apiVersion: version,
		httpClient: hc,
		userAgent:  strings.TrimSpace(opts.UserAgent),
	}
}

type sendResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
	Error *struct {
		Message string `json:"message"`
		Code    int    `json:"code"`
	} `json:"error"`
}

// Send posts req to /{version}/{phone_number_id}/messages and returns the
// provider message id. The caller bounds the call through ctx.
func (c *Client) Send(ctx context.Context, req SendRequest) (string, error) {
	if strings.TrimSpace(req.PhoneNumberID) == "" || strings.TrimSpace(req.AccessToken) == "" {
		return "", ErrMissingCredentials
	}
	body, err := buildBody(req)
	if err != nil {
		return "", err
	}
	url := fmt.Sprintf("%s/%s/%s/messages", c.baseURL, c.apiVersion, req.PhoneNumberID)

	hreq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	hreq.Header.Set("Authorization", "Bearer "+req.AccessToken)
	hreq.Header.Set("Content-Type", "application/json")
	if c.userAgent != "" {
		hreq.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.httpClient.Do(hreq)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", err
	}

	var parsed sendResponse
	_ = json.Unmarshal(raw, &parsed)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		e := &Error{Status: resp.StatusCode, Message: strings.TrimSpace(string(raw))}
		if parsed.Error != nil {
			e.Code = parsed.Error.Code
			e.Message = parsed.Error.Message
		}
		if len(e.Message) > 512 {
			e.Message = e.Message[:512]
		}
		return "", e
	}
	if len(parsed.Messages) == 0 || parsed.Messages[0].ID == "" {
		return "", &Error{Status: resp.StatusCode, Message: "response carried no message id"}
	}
	return parsed.Messages[0].ID, nil
}

func buildBody(req SendRequest) ([]byte, error) {
	typ := strings.TrimSpace(req.MessageType)
	if typ == "" {
		return nil, errors.New("message type is required")
	}
	payload := req.Payload
	if len(payload) == 0 {
		payload = json.RawMessage("{}")
	}
	if !json.Valid(payload) {
		return nil, errors.New("payload is not valid JSON")
	}
	body := map[string]any{
		"messaging_product": "whatsapp",
		"recipient_type":    "individual",
		"to":                req.ToPhone,
		"type":              typ,
		typ:                 payload,
	}
	if req.CallbackData != "" {
		body["biz_opaque_callback_data"] = req.CallbackData
	}
	return json.Marshal(body)
}
