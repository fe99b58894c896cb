// Package services holds the conversation routing and delivery core: inbound
// materialization, the routing engine, the outbound dispatcher and campaign
// fan-out. This file centralizes service-level error values so that they can
// be consistently returned by service methods and checked by callers with
// errors.Is.
//
// Translation into stable error codes and HTTP statuses is performed at the
// handler layer; none of these messages carry storage details.
package services

import (
	"errors"
	"fmt"
)

// Ingestion errors.
var (
	// ErrDuplicateEvent reports a dedup hit. Callers treat it as a successful
	// no-op; Materialize never returns it.
	ErrDuplicateEvent = errors.New("event already processed")

	// ErrInvalidEvent is returned for a normalized event missing required fields.
	ErrInvalidEvent = errors.New("invalid event")

	// ErrUnknownWorkspace is returned when a webhook targets a phone number
	// no workspace owns.
	ErrUnknownWorkspace = errors.New("unknown workspace")
)

// Routing errors.
var (
	ErrConversationNotFound = errors.New("conversation not found")
	ErrTeamNotFound         = errors.New("team not found")
	ErrCategoryNotFound     = errors.New("category not found")

	// ErrNoActiveMember is returned when a team has no member eligible for
	// assignment. The conversation is left unchanged.
	ErrNoActiveMember = errors.New("no active member")

	// ErrAlreadyTakenOver is returned by a second takeover attempt.
	ErrAlreadyTakenOver = errors.New("conversation already taken over")

	// ErrNotTakenOver is returned when releasing a conversation that has no
	// active takeover.
	ErrNotTakenOver = errors.New("conversation not taken over")

	// ErrNotTeamMember is returned when the actor (or target member) is not an
	// active member of the relevant team.
	ErrNotTeamMember = errors.New("not an active team member")

	// ErrForbiddenRole is returned when the actor's role does not permit the
	// operation.
	ErrForbiddenRole = errors.New("role not permitted")

	// ErrFeatureDisabled is returned when a workspace feature flag gates the
	// operation off.
	ErrFeatureDisabled = errors.New("feature disabled")

	// ErrConcurrentUpdate is returned when a conversation kept changing under
	// a routing operation and the retry budget ran out.
	ErrConcurrentUpdate = errors.New("conversation modified concurrently")
)

// Outbox errors.
var (
	ErrOutboxNotFound = errors.New("outbox message not found")

	// ErrInvalidOutbox is returned by Enqueue for a request missing a
	// recipient or message type.
	ErrInvalidOutbox = errors.New("invalid outbox message")

	// ErrSendingNotAllowed is returned when the workspace may not send.
	ErrSendingNotAllowed = errors.New("workspace not allowed to send")

	// ErrAlreadyClaimed is returned by DrainOne when the row is not queued
	// (another worker holds it, or it is terminal).
	ErrAlreadyClaimed = errors.New("outbox message not claimable")

	// ErrOutboxNotFailed is returned when requeueing a row that is not in
	// the failed state.
	ErrOutboxNotFailed = errors.New("outbox message not failed")

	// ErrProviderSendFailed wraps a retryable provider failure.
	ErrProviderSendFailed = errors.New("provider send failed")

	// ErrMaxAttemptsExceeded is returned once a row has used its attempt
	// budget and was left failed.
	ErrMaxAttemptsExceeded = errors.New("max attempts exceeded")
)

// Campaign errors.
var (
	ErrCampaignNotFound = errors.New("campaign not found")

	// ErrTemplateNotApproved is returned when the template does not exist
	// for the workspace or its provider status is not APPROVED.
	ErrTemplateNotApproved = errors.New("template not approved")

	ErrInvalidLanguage = errors.New("invalid language tag")

	// ErrInvalidSegmentFilter is returned for a segment the store cannot
	// evaluate.
	ErrInvalidSegmentFilter = errors.New("invalid segment filter")

	// ErrInvalidDate is returned for an unparseable createdAfter. It wraps
	// ErrInvalidSegmentFilter.
	ErrInvalidDate = fmt.Errorf("%w: invalid date", ErrInvalidSegmentFilter)

	// ErrPhoneNormalizationFailed is recorded per contact and never surfaced
	// as a request failure.
	ErrPhoneNormalizationFailed = errors.New("phone normalization failed")

	ErrCampaignInsertFailed = errors.New("campaign recipient insert failed")

	// ErrCampaignNotLaunchable is returned when launching a campaign that is
	// not queued or running.
	ErrCampaignNotLaunchable = errors.New("campaign not launchable")
)

// PartialInsertError reports a campaign whose recipient insertion stopped
// part way. Committed rows stay in place.
type PartialInsertError struct {
	CampaignID string
	Committed  int
	Err        error
}

func (e *PartialInsertError) Error() string {
	return fmt.Sprintf("campaign %s: %d recipients committed before failure", e.CampaignID, e.Committed)
}

// Unwrap makes errors.Is(err, ErrCampaignInsertFailed) hold.
func (e *PartialInsertError) Unwrap() []error {
	return []error{ErrCampaignInsertFailed, e.Err}
}
