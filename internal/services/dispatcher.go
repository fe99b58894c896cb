// Package services – Dispatcher
//
// This file implements the Outbound Dispatcher. Enqueue durably writes an
// outbox row before anything else happens; DrainOne claims a row with a
// conditional queued -> processing update, calls the provider with a bounded
// timeout and no transaction open, and finalizes the row as sent, queued
// (with exponential backoff) or failed once the attempt budget is spent.
//
// Finalization runs on a context detached from the caller's cancellation so
// a cancelled or timed-out attempt is still recorded and the row never stays
// in processing.
package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
	"gorm.io/gorm"

	"github.com/tbourn/go-wa-inbox/internal/domain"
	"github.com/tbourn/go-wa-inbox/internal/phone"
	"github.com/tbourn/go-wa-inbox/internal/provider"
	"github.com/tbourn/go-wa-inbox/internal/queue"
	"github.com/tbourn/go-wa-inbox/internal/repo"
	"github.com/tbourn/go-wa-inbox/internal/utils"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Sender is the provider send collaborator.
type Sender interface {
	Send(ctx context.Context, req provider.SendRequest) (providerMessageID string, err error)
}

// Notifier publishes "row ready" hints to drain workers.
type Notifier interface {
	Publish(ctx context.Context, j queue.Job) error
}

const maxLastErrorLen = 500

// Dispatcher drives outbox rows through their state machine.
type Dispatcher struct {
	DB           *gorm.DB
	Sender       Sender
	Notifier     Notifier      // optional
	Materializer *Materializer // optional; records sent messages in their thread
	Limiter      *rate.Limiter // optional; throttles provider calls

	ProviderTimeout time.Duration
	BackoffBase     time.Duration
	BackoffMax      time.Duration

	Now func() time.Time
}

// NewDispatcher constructs a Dispatcher with default timing.
func NewDispatcher(db *gorm.DB, sender Sender, notifier Notifier, m *Materializer) *Dispatcher {
	return &Dispatcher{
		DB:              db,
		Sender:          sender,
		Notifier:        notifier,
		Materializer:    m,
		ProviderTimeout: 10 * time.Second,
		BackoffBase:     30 * time.Second,
		BackoffMax:      time.Hour,
		Now:             func() time.Time { return time.Now().UTC() },
	}
}

func (s *Dispatcher) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

// EnqueueInput is an outbound send request.
type EnqueueInput struct {
	ToPhone       string          `json:"to_phone"`
	MessageType   string          `json:"message_type"`
	Payload       json.RawMessage `json:"payload,omitempty"`
	Author        string          `json:"author,omitempty"`
	CountsAsReply bool            `json:"counts_as_reply,omitempty"`

	CampaignRecipientID *string `json:"-"`
}

// Backoff returns the delay before retry number attempts (1-based):
// BackoffBase doubled per earlier attempt, capped at BackoffMax.
func (s *Dispatcher) Backoff(attempts int) time.Duration {
	base, max := s.BackoffBase, s.BackoffMax
	if base <= 0 {
		base = 30 * time.Second
	}
	if max <= 0 {
		max = time.Hour
	}
	d := base
	for i := 1; i < attempts; i++ {
		d *= 2
		if d >= max || d <= 0 {
			return max
		}
	}
	if d > max {
		return max
	}
	return d
}

// Enqueue durably records an outbound message. The returned row is queued
// and due immediately; a drain worker is notified on a best-effort basis.
func (s *Dispatcher) Enqueue(ctx context.Context, workspaceID string, in EnqueueInput) (*domain.OutboxMessage, error) {
	tr := otel.Tracer("services/Dispatcher")
	ctx, span := tr.Start(ctx, "Enqueue",
		trace.WithAttributes(
			attribute.String("workspace.id", workspaceID),
			attribute.String("message.type", in.MessageType),
		),
	)
	defer span.End()

	msisdn, err := phone.Normalize(in.ToPhone)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidOutbox, ErrPhoneNormalizationFailed)
	}
	in.MessageType = strings.TrimSpace(in.MessageType)
	if in.MessageType == "" {
		return nil, ErrInvalidOutbox
	}
	payload := "{}"
	if len(in.Payload) > 0 {
		if !json.Valid(in.Payload) {
			return nil, ErrInvalidOutbox
		}
		payload = string(in.Payload)
	}
	author := in.Author
	switch author {
	case "":
		author = domain.AuthorAgent
	case domain.AuthorAgent, domain.AuthorAutomation, domain.AuthorCampaign:
	default:
		return nil, ErrInvalidOutbox
	}

	ws, err := repo.GetSettings(ctx, s.DB, workspaceID)
	if err != nil {
		return nil, err
	}
	if !ws.SendingAllowed {
		return nil, ErrSendingNotAllowed
	}

	m := &domain.OutboxMessage{
		WorkspaceID:   workspaceID,
		ToPhone:       msisdn,
		MessageType:   in.MessageType,
		PayloadJSON:   payload,
		Author:        author,
		CountsAsReply: in.CountsAsReply,
		NextAttemptAt: s.now(),

		CampaignRecipientID: in.CampaignRecipientID,
	}
	if err := repo.CreateOutbox(ctx, s.DB, m); err != nil {
		return nil, err
	}
	s.notify(ctx, m)
	return m, nil
}

func (s *Dispatcher) notify(ctx context.Context, m *domain.OutboxMessage) {
	if s.Notifier == nil {
		return
	}
	if err := s.Notifier.Publish(ctx, queue.Job{WorkspaceID: m.WorkspaceID, OutboxID: m.ID}); err != nil {
		log.Ctx(ctx).Warn().Err(err).
			Str("workspace_id", m.WorkspaceID).
			Str("outbox_id", m.ID).
			Msg("outbox notify failed; row left for sweep")
	}
}

// DrainOne performs one delivery attempt for a queued row.
//
// It returns the finalized row. A failed attempt that will be retried
// yields ErrProviderSendFailed, one that exhausted the budget yields
// ErrMaxAttemptsExceeded; the row is returned in both cases. A row that is
// not queued yields ErrAlreadyClaimed and no provider call is made.
func (s *Dispatcher) DrainOne(ctx context.Context, workspaceID, outboxID string) (*domain.OutboxMessage, error) {
	tr := otel.Tracer("services/Dispatcher")
	ctx, span := tr.Start(ctx, "DrainOne",
		trace.WithAttributes(
			attribute.String("workspace.id", workspaceID),
			attribute.String("outbox.id", outboxID),
		),
	)
	defer span.End()

	ws, err := repo.GetSettings(ctx, s.DB, workspaceID)
	if err != nil {
		return nil, err
	}

	if err := repo.ClaimOutbox(ctx, s.DB, workspaceID, outboxID, s.now()); err != nil {
		if errors.Is(err, repo.ErrConflict) {
			if _, gerr := repo.GetOutbox(ctx, s.DB, workspaceID, outboxID); errors.Is(gerr, repo.ErrNotFound) {
				return nil, ErrOutboxNotFound
			}
			return nil, ErrAlreadyClaimed
		}
		return nil, err
	}

	// From here on the row is ours and must leave processing.
	fctx := context.WithoutCancel(ctx)

	m, err := repo.GetOutbox(fctx, s.DB, workspaceID, outboxID)
	if err != nil {
		return nil, err
	}

	providerID, sendErr := s.send(ctx, ws, m)
	if sendErr == nil {
		return s.finalizeSent(fctx, m, providerID)
	}
	span.RecordError(sendErr)
	return s.finalizeFailure(fctx, ws, m, sendErr)
}

func (s *Dispatcher) send(ctx context.Context, ws domain.WorkspaceSettings, m *domain.OutboxMessage) (string, error) {
	if !ws.SendingAllowed {
		return "", ErrSendingNotAllowed
	}
	if s.Sender == nil {
		return "", errors.New("no sender configured")
	}
	timeout := s.ProviderTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	sctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if s.Limiter != nil {
		if err := s.Limiter.Wait(sctx); err != nil {
			return "", err
		}
	}
	start := time.Now()
	id, err := s.Sender.Send(sctx, provider.SendRequest{
		PhoneNumberID: ws.PhoneNumberID,
		AccessToken:   ws.AccessToken,
		ToPhone:       m.ToPhone,
		MessageType:   m.MessageType,
		Payload:       json.RawMessage(m.PayloadJSON),
		CallbackData:  m.ID,
	})
	providerLatency.Observe(time.Since(start).Seconds())
	return id, err
}

func (s *Dispatcher) finalizeSent(ctx context.Context, m *domain.OutboxMessage, providerID string) (*domain.OutboxMessage, error) {
	now := s.now()
	if err := repo.MarkOutboxSent(ctx, s.DB, m.WorkspaceID, m.ID, providerID, now); err != nil {
		return nil, err
	}
	outboxOutcomes.WithLabelValues("sent").Inc()
	log.Ctx(ctx).Info().
		Str("workspace_id", m.WorkspaceID).
		Str("outbox_id", m.ID).
		Str("provider_message_id", providerID).
		Int("attempt", m.Attempts+1).
		Msg("outbox message sent")

	if s.Materializer != nil {
		_, err := s.Materializer.Materialize(ctx, domain.Event{
			EventID:           "outbox:" + m.ID,
			WorkspaceID:       m.WorkspaceID,
			ContactIdentity:   m.ToPhone,
			Direction:         domain.DirectionOut,
			MsgType:           m.MessageType,
			Payload:           json.RawMessage(m.PayloadJSON),
			Timestamp:         now,
			ProviderMessageID: providerID,
			Author:            m.Author,
			CountsAsReply:     m.CountsAsReply,
		})
		if err != nil {
			log.Ctx(ctx).Error().Err(err).
				Str("workspace_id", m.WorkspaceID).
				Str("outbox_id", m.ID).
				Msg("recording sent message in thread failed")
		}
	}
	if m.CampaignRecipientID != nil {
		s.finishRecipient(ctx, m.WorkspaceID, *m.CampaignRecipientID, domain.StatusSent, nil, now)
	}
	return repo.GetOutbox(ctx, s.DB, m.WorkspaceID, m.ID)
}

func (s *Dispatcher) finalizeFailure(ctx context.Context, ws domain.WorkspaceSettings, m *domain.OutboxMessage, sendErr error) (*domain.OutboxMessage, error) {
	now := s.now()
	attempts := m.Attempts + 1
	maxAttempts := ws.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = domain.DefaultWorkspaceSettings(ws.WorkspaceID).MaxAttempts
	}
	status := domain.StatusQueued
	if attempts >= maxAttempts {
		status = domain.StatusFailed
	}
	next := now.Add(s.Backoff(attempts))
	msg := failureMessage(sendErr)

	if err := repo.MarkOutboxFailure(ctx, s.DB, m.WorkspaceID, m.ID, attempts, status, msg, next, now); err != nil {
		return nil, err
	}

	out, err := repo.GetOutbox(ctx, s.DB, m.WorkspaceID, m.ID)
	if err != nil {
		return nil, err
	}
	if status == domain.StatusFailed {
		outboxOutcomes.WithLabelValues("failed").Inc()
		log.Ctx(ctx).Error().
			Str("workspace_id", m.WorkspaceID).
			Str("outbox_id", m.ID).
			Int("attempts", attempts).
			Str("last_error", msg).
			Msg("outbox message failed permanently")
		if m.CampaignRecipientID != nil {
			s.finishRecipient(ctx, m.WorkspaceID, *m.CampaignRecipientID, domain.StatusFailed, &msg, now)
		}
		return out, fmt.Errorf("%w: %s", ErrMaxAttemptsExceeded, msg)
	}
	outboxOutcomes.WithLabelValues("retry").Inc()
	log.Ctx(ctx).Warn().
		Str("workspace_id", m.WorkspaceID).
		Str("outbox_id", m.ID).
		Int("attempts", attempts).
		Time("next_attempt_at", next).
		Str("last_error", msg).
		Msg("outbox send failed, will retry")
	return out, fmt.Errorf("%w: %s", ErrProviderSendFailed, msg)
}

// finishRecipient mirrors a campaign row's terminal outcome onto its
// recipient and completes the campaign once nothing is left in flight.
// Failures are logged; the outbox row is already final.
func (s *Dispatcher) finishRecipient(ctx context.Context, workspaceID, recipientID, status string, reason *string, now time.Time) {
	l := log.Ctx(ctx).With().Str("workspace_id", workspaceID).Str("recipient_id", recipientID).Logger()
	if err := repo.FinishRecipient(ctx, s.DB, recipientID, status, reason, now); err != nil {
		l.Error().Err(err).Msg("updating campaign recipient failed")
		return
	}
	r, err := repo.GetRecipient(ctx, s.DB, recipientID)
	if err != nil {
		l.Error().Err(err).Msg("loading campaign recipient failed")
		return
	}
	if err := completeCampaignIfDone(ctx, s.DB, workspaceID, r.CampaignID, now); err != nil {
		l.Error().Err(err).Str("campaign_id", r.CampaignID).Msg("completing campaign failed")
	}
}

// DrainStats summarises a DrainDue pass.
type DrainStats struct {
	Due     int `json:"due"`
	Sent    int `json:"sent"`
	Retried int `json:"retried"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`
}

// DrainDue drains up to limit rows whose next attempt is due, across all
// workspaces. Rows claimed by another worker in the meantime are skipped.
func (s *Dispatcher) DrainDue(ctx context.Context, limit int) (DrainStats, error) {
	var st DrainStats
	if limit <= 0 {
		limit = 50
	}
	due, err := repo.ListDueOutbox(ctx, s.DB, s.now(), limit)
	if err != nil {
		return st, err
	}
	st.Due = len(due)
	for _, d := range due {
		if err := ctx.Err(); err != nil {
			return st, err
		}
		_, err := s.DrainOne(ctx, d.WorkspaceID, d.ID)
		switch {
		case err == nil:
			st.Sent++
		case errors.Is(err, ErrProviderSendFailed):
			st.Retried++
		case errors.Is(err, ErrMaxAttemptsExceeded):
			st.Failed++
		case errors.Is(err, ErrAlreadyClaimed), errors.Is(err, ErrOutboxNotFound):
			st.Skipped++
		default:
			return st, err
		}
	}
	return st, nil
}

// errAttemptInterrupted is recorded on rows whose worker died mid-send.
var errAttemptInterrupted = errors.New("attempt interrupted")

const reclaimBatch = 100

// ReclaimStale finalizes rows left in processing for longer than olderThan as
// failed attempts, so they get backoff and respect the attempt ceiling like
// any other failure. It returns the number of rows reclaimed.
func (s *Dispatcher) ReclaimStale(ctx context.Context, olderThan time.Duration) (int64, error) {
	stale, err := repo.ListStaleOutbox(ctx, s.DB, s.now().Add(-olderThan), reclaimBatch)
	if err != nil {
		return 0, err
	}
	var n int64
	for _, r := range stale {
		ws, err := repo.GetSettings(ctx, s.DB, r.WorkspaceID)
		if err != nil {
			return n, err
		}
		m, err := repo.GetOutbox(ctx, s.DB, r.WorkspaceID, r.ID)
		if err != nil {
			return n, err
		}
		_, err = s.finalizeFailure(ctx, ws, m, errAttemptInterrupted)
		switch {
		case errors.Is(err, repo.ErrConflict):
			// the original worker finished it after all
			continue
		case err != nil && !errors.Is(err, ErrProviderSendFailed) && !errors.Is(err, ErrMaxAttemptsExceeded):
			return n, err
		}
		n++
	}
	if n > 0 {
		log.Ctx(ctx).Warn().Int64("rows", n).Msg("reclaimed stale outbox rows")
	}
	return n, nil
}

// Requeue moves a failed row back to queued. It is allowed only while the
// row has fewer attempts than the workspace's current ceiling.
func (s *Dispatcher) Requeue(ctx context.Context, workspaceID, outboxID string) (*domain.OutboxMessage, error) {
	ws, err := repo.GetSettings(ctx, s.DB, workspaceID)
	if err != nil {
		return nil, err
	}
	err = repo.RequeueOutbox(ctx, s.DB, workspaceID, outboxID, ws.MaxAttempts, s.now())
	if errors.Is(err, repo.ErrConflict) {
		m, gerr := repo.GetOutbox(ctx, s.DB, workspaceID, outboxID)
		switch {
		case errors.Is(gerr, repo.ErrNotFound):
			return nil, ErrOutboxNotFound
		case gerr != nil:
			return nil, gerr
		case m.Status != domain.StatusFailed:
			return nil, ErrOutboxNotFailed
		default:
			return nil, ErrMaxAttemptsExceeded
		}
	}
	if err != nil {
		return nil, err
	}
	m, err := repo.GetOutbox(ctx, s.DB, workspaceID, outboxID)
	if err != nil {
		return nil, err
	}
	s.notify(ctx, m)
	return m, nil
}

// Get returns one outbox row.
func (s *Dispatcher) Get(ctx context.Context, workspaceID, outboxID string) (*domain.OutboxMessage, error) {
	m, err := repo.GetOutbox(ctx, s.DB, workspaceID, outboxID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrOutboxNotFound
	}
	return m, err
}

// List returns a page of a workspace's outbox, optionally filtered by status.
func (s *Dispatcher) List(ctx context.Context, workspaceID, status string, page, pageSize int) ([]domain.OutboxMessage, int64, error) {
	_, size, offset := utils.Page(page, pageSize, defaultPageSize, maxPageSize)
	total, err := repo.CountOutbox(ctx, s.DB, workspaceID, status)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.OutboxMessage{}, 0, nil
	}
	items, err := repo.ListOutboxPage(ctx, s.DB, workspaceID, status, offset, size)
	return items, total, err
}

// failureMessage renders a send error for last_error: provider errors keep
// their message, timeouts and cancellations are named, and the text is
// bounded.
func failureMessage(err error) string {
	var msg string
	var pe *provider.Error
	switch {
	case errors.As(err, &pe):
		msg = pe.Error()
	case errors.Is(err, context.DeadlineExceeded):
		msg = "provider timeout"
	case errors.Is(err, context.Canceled):
		msg = "attempt cancelled"
	default:
		msg = err.Error()
	}
	if len(msg) > maxLastErrorLen {
		msg = msg[:maxLastErrorLen]
	}
	return msg
}
