// Package handlers defines HTTP-layer error codes used across all API endpoints.
//
// Codes are lowercase snake_case and stable; clients branch on them. Generic
// codes mirror HTTP semantics, domain codes name the service error kind.
// mapError is the only place a service error becomes a status and code, and
// anything it does not recognise is reported as internal_error with a
// generic message so storage details never reach clients.
//
// Example response:
//
//	{
//	  "request_id": "e1b9be03-4999-4289-9f03-999b042d65d6",
//	  "code": "already_taken_over",
//	  "message": "conversation already taken over"
//	}
package handlers

import (
	"errors"
	"net/http"

	"github.com/tbourn/go-wa-inbox/internal/services"
	"github.com/tbourn/go-wa-inbox/internal/webhook"
)

const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeUnauthorized     = "unauthorized"
	ErrCodeForbidden        = "forbidden"
	ErrCodeNotFound         = "not_found"
	ErrCodeConflict         = "conflict"
	ErrCodeRateLimited      = "too_many_requests"
	ErrCodeInternal         = "internal_error"
	ErrCodeMethodNotAllowed = "method_not_allowed"

	// Intake
	ErrCodeInvalidEvent     = "invalid_event"
	ErrCodeUnknownWorkspace = "unknown_workspace"

	// Routing
	ErrCodeConversationNotFound = "conversation_not_found"
	ErrCodeTeamNotFound         = "team_not_found"
	ErrCodeCategoryNotFound     = "category_not_found"
	ErrCodeNoActiveMember       = "no_active_member"
	ErrCodeAlreadyTakenOver     = "already_taken_over"
	ErrCodeNotTakenOver         = "not_taken_over"
	ErrCodeNotTeamMember        = "not_team_member"
	ErrCodeForbiddenRole        = "forbidden_role"
	ErrCodeFeatureDisabled      = "feature_disabled"
	ErrCodeConcurrentUpdate     = "concurrent_update"

	// Outbox
	ErrCodeOutboxNotFound      = "outbox_not_found"
	ErrCodeInvalidOutbox       = "invalid_outbox_message"
	ErrCodeSendingNotAllowed   = "sending_not_allowed"
	ErrCodeAlreadyClaimed      = "already_claimed"
	ErrCodeOutboxNotFailed     = "outbox_not_failed"
	ErrCodeProviderSendFailed  = "provider_send_failed"
	ErrCodeMaxAttemptsExceeded = "max_attempts_exceeded"

	// Campaigns
	ErrCodeCampaignNotFound      = "campaign_not_found"
	ErrCodeTemplateNotApproved   = "template_not_approved"
	ErrCodeInvalidLanguage       = "invalid_language"
	ErrCodeInvalidDate           = "invalid_date"
	ErrCodeInvalidSegmentFilter  = "invalid_segment_filter"
	ErrCodeCampaignInsertFailed  = "campaign_insert_failed"
	ErrCodeCampaignNotLaunchable = "campaign_not_launchable"
)

type errMapping struct {
	err    error
	status int
	code   string
}

// errTable is ordered: more specific errors (ErrInvalidDate wraps
// ErrInvalidSegmentFilter) must come first.
var errTable = []errMapping{
	{services.ErrInvalidEvent, http.StatusUnprocessableEntity, ErrCodeInvalidEvent},
	{webhook.ErrInvalidEvent, http.StatusUnprocessableEntity, ErrCodeInvalidEvent},
	{webhook.ErrMalformed, http.StatusBadRequest, ErrCodeBadRequest},
	{services.ErrUnknownWorkspace, http.StatusNotFound, ErrCodeUnknownWorkspace},

	{services.ErrConversationNotFound, http.StatusNotFound, ErrCodeConversationNotFound},
	{services.ErrTeamNotFound, http.StatusNotFound, ErrCodeTeamNotFound},
	{services.ErrCategoryNotFound, http.StatusNotFound, ErrCodeCategoryNotFound},
	{services.ErrNoActiveMember, http.StatusConflict, ErrCodeNoActiveMember},
	{services.ErrAlreadyTakenOver, http.StatusConflict, ErrCodeAlreadyTakenOver},
	{services.ErrNotTakenOver, http.StatusConflict, ErrCodeNotTakenOver},
	{services.ErrNotTeamMember, http.StatusForbidden, ErrCodeNotTeamMember},
	{services.ErrForbiddenRole, http.StatusForbidden, ErrCodeForbiddenRole},
	{services.ErrFeatureDisabled, http.StatusForbidden, ErrCodeFeatureDisabled},
	{services.ErrConcurrentUpdate, http.StatusConflict, ErrCodeConcurrentUpdate},

	{services.ErrOutboxNotFound, http.StatusNotFound, ErrCodeOutboxNotFound},
	{services.ErrInvalidOutbox, http.StatusBadRequest, ErrCodeInvalidOutbox},
	{services.ErrSendingNotAllowed, http.StatusForbidden, ErrCodeSendingNotAllowed},
	{services.ErrAlreadyClaimed, http.StatusConflict, ErrCodeAlreadyClaimed},
	{services.ErrOutboxNotFailed, http.StatusConflict, ErrCodeOutboxNotFailed},
	{services.ErrMaxAttemptsExceeded, http.StatusConflict, ErrCodeMaxAttemptsExceeded},
	{services.ErrProviderSendFailed, http.StatusBadGateway, ErrCodeProviderSendFailed},

	{services.ErrCampaignNotFound, http.StatusNotFound, ErrCodeCampaignNotFound},
	{services.ErrTemplateNotApproved, http.StatusUnprocessableEntity, ErrCodeTemplateNotApproved},
	{services.ErrInvalidLanguage, http.StatusBadRequest, ErrCodeInvalidLanguage},
	{services.ErrInvalidDate, http.StatusBadRequest, ErrCodeInvalidDate},
	{services.ErrInvalidSegmentFilter, http.StatusBadRequest, ErrCodeInvalidSegmentFilter},
	{services.ErrCampaignInsertFailed, http.StatusInternalServerError, ErrCodeCampaignInsertFailed},
	{services.ErrCampaignNotLaunchable, http.StatusConflict, ErrCodeCampaignNotLaunchable},
}

// mapError translates a service error into (status, code, message). The
// message is the sentinel's own text, or the full error for validation
// errors whose detail is meant for the caller.
func mapError(err error) (int, string, string) {
	for _, m := range errTable {
		if !errors.Is(err, m.err) {
			continue
		}
		msg := m.err.Error()
		switch m.code {
		case ErrCodeInvalidEvent, ErrCodeInvalidOutbox, ErrCodeProviderSendFailed,
			ErrCodeMaxAttemptsExceeded, ErrCodeCampaignInsertFailed, ErrCodeBadRequest:
			msg = err.Error()
		}
		return m.status, m.code, msg
	}
	return http.StatusInternalServerError, ErrCodeInternal, "internal server error"
}
