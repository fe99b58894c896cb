package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/tbourn/go-wa-inbox/internal/services"
	"github.com/tbourn/go-wa-inbox/internal/webhook"
)

func TestMapError(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"wrapped not found", fmt.Errorf("get: %w", services.ErrConversationNotFound), http.StatusNotFound, ErrCodeConversationNotFound},
		{"schema", fmt.Errorf("%w: missing eventId", webhook.ErrInvalidEvent), http.StatusUnprocessableEntity, ErrCodeInvalidEvent},
		{"malformed webhook", webhook.ErrMalformed, http.StatusBadRequest, ErrCodeBadRequest},
		{"date before segment", services.ErrInvalidDate, http.StatusBadRequest, ErrCodeInvalidDate},
		{"segment", services.ErrInvalidSegmentFilter, http.StatusBadRequest, ErrCodeInvalidSegmentFilter},
		{"partial insert", &services.PartialInsertError{CampaignID: "c1", Committed: 500, Err: errors.New("disk full")}, http.StatusInternalServerError, ErrCodeCampaignInsertFailed},
		{"provider", fmt.Errorf("%w: status=503", services.ErrProviderSendFailed), http.StatusBadGateway, ErrCodeProviderSendFailed},
		{"takeover", services.ErrAlreadyTakenOver, http.StatusConflict, ErrCodeAlreadyTakenOver},
		{"role", services.ErrForbiddenRole, http.StatusForbidden, ErrCodeForbiddenRole},
		{"unmapped", errors.New("sql: connection refused"), http.StatusInternalServerError, ErrCodeInternal},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status, code, _ := mapError(tc.err)
			if status != tc.status || code != tc.code {
				t.Fatalf("mapError = (%d, %s); want (%d, %s)", status, code, tc.status, tc.code)
			}
		})
	}
}

func TestMapError_Messages(t *testing.T) {
	_, _, msg := mapError(fmt.Errorf("%w: missing eventId", webhook.ErrInvalidEvent))
	if msg != "invalid normalized event: missing eventId" {
		t.Fatalf("validation detail lost: %q", msg)
	}
	_, _, msg = mapError(fmt.Errorf("lookup c9: %w", services.ErrConversationNotFound))
	if msg != "conversation not found" {
		t.Fatalf("sentinel text expected, got %q", msg)
	}
	_, _, msg = mapError(errors.New("pq: password authentication failed"))
	if msg != "internal server error" {
		t.Fatalf("internal detail leaked: %q", msg)
	}
}
