// Package services – Materializer
//
// This file implements the Event Deduplicator and the Thread/Message
// Materializer. Materialize turns one normalized provider event into a
// Contact, Conversation and Message, updating thread metadata, inside a
// single transaction whose first write claims the (workspace, event id)
// dedup key. A duplicate delivery therefore performs no writes at all.
//
// Thread counters and clocks are updated with SQL expressions
// (unread_count + 1, COALESCE for SLA deadlines, CASE for "latest of") so
// concurrent deliveries to the same thread never overwrite each other.
package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/tbourn/go-wa-inbox/internal/domain"
	"github.com/tbourn/go-wa-inbox/internal/phone"
	"github.com/tbourn/go-wa-inbox/internal/repo"
	"github.com/tbourn/go-wa-inbox/internal/sla"
	"github.com/tbourn/go-wa-inbox/internal/webhook"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// MaterializeResult identifies the thread and message an event landed in.
// Duplicate is set (and both ids empty) when the event was already processed.
type MaterializeResult struct {
	ThreadID  string `json:"thread_id,omitempty"`
	MessageID string `json:"message_id,omitempty"`
	Duplicate bool   `json:"duplicate"`
}

// Materializer persists inbound and outbound events into thread state.
type Materializer struct {
	DB  *gorm.DB
	Now func() time.Time
}

// NewMaterializer constructs a Materializer using the wall clock.
func NewMaterializer(db *gorm.DB) *Materializer {
	return &Materializer{DB: db, Now: func() time.Time { return time.Now().UTC() }}
}

func (s *Materializer) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

// Accept claims the dedup key for (workspaceID, providerEventID) on its own.
// isNew is false for an already-processed event. A storage failure is
// returned as an error so the provider retries the delivery.
func (s *Materializer) Accept(ctx context.Context, workspaceID, providerEventID string) (isNew bool, err error) {
	err = repo.RecordWebhookEvent(ctx, s.DB, workspaceID, providerEventID, "")
	if errors.Is(err, repo.ErrDuplicate) {
		webhookEvents.WithLabelValues("duplicate").Inc()
		return false, nil
	}
	if err != nil {
		return false, err
	}
	webhookEvents.WithLabelValues("new").Inc()
	return true, nil
}

// Materialize applies ev to its thread. Replaying the same event id is a
// successful no-op reported through MaterializeResult.Duplicate.
func (s *Materializer) Materialize(ctx context.Context, ev domain.Event) (*MaterializeResult, error) {
	tr := otel.Tracer("services/Materializer")
	ctx, span := tr.Start(ctx, "Materialize",
		trace.WithAttributes(
			attribute.String("workspace.id", ev.WorkspaceID),
			attribute.String("event.id", ev.EventID),
			attribute.String("event.direction", ev.Direction),
		),
	)
	defer span.End()

	if err := validateEvent(&ev); err != nil {
		return nil, err
	}
	msisdn, err := phone.Normalize(ev.ContactIdentity)
	if err != nil {
		return nil, ErrInvalidEvent
	}

	now := s.now()
	ts := ev.Timestamp.UTC()
	if ev.Timestamp.IsZero() {
		ts = now
	}

	out := &MaterializeResult{}
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ws, err := repo.GetSettings(ctx, tx, ev.WorkspaceID)
		if err != nil {
			return err
		}
		policy := sla.PolicyFrom(ws)

		msgID := uuid.NewString()
		if err := repo.RecordWebhookEvent(ctx, tx, ev.WorkspaceID, ev.EventID, msgID); err != nil {
			if errors.Is(err, repo.ErrDuplicate) {
				return ErrDuplicateEvent
			}
			return err
		}

		contact, err := repo.GetOrCreateContact(ctx, tx, ev.WorkspaceID, msisdn, ev.ContactName)
		if err != nil {
			return err
		}
		conv, _, err := repo.GetOrCreateConversation(ctx, tx, ev.WorkspaceID, contact.ID, now)
		if err != nil {
			return err
		}

		msg := &domain.Message{
			ID:          msgID,
			WorkspaceID: ev.WorkspaceID,
			ThreadID:    conv.ID,
			Direction:   ev.Direction,
			MsgType:     ev.MsgType,
			PayloadJSON: string(ev.Payload),
			CreatedAt:   now,
		}
		if !ev.Timestamp.IsZero() {
			msg.WATimestamp = &ts
		}
		if ev.ProviderMessageID != "" {
			pid := ev.ProviderMessageID
			msg.ProviderMessageID = &pid
		}
		updates := map[string]any{
			"last_message_at": latestOf("last_message_at", ts),
			"updated_at":      now,
		}
		if ev.Direction == domain.DirectionIn {
			msg.Author = domain.AuthorCustomer
			msg.Status = "received"
			updates["unread_count"] = gorm.Expr("unread_count + 1")
			updates["last_customer_message_at"] = latestOf("last_customer_message_at", ts)
			// The response clock only starts on customer input that is not
			// already waiting for a reply.
			if due := policy.ResponseDue(ts); due != nil {
				updates["next_response_due_at"] = gorm.Expr("COALESCE(next_response_due_at, ?)", *due)
			}
			if due := policy.ResolutionDue(ts); due != nil {
				updates["resolution_due_at"] = gorm.Expr("COALESCE(resolution_due_at, ?)", *due)
			}
		} else {
			msg.Author = ev.Author
			msg.Status = domain.StatusSent
			msg.SentAt = &ts
			if domain.StopsResponseClock(ev.Author, ev.CountsAsReply) {
				updates["last_agent_reply_at"] = latestOf("last_agent_reply_at", ts)
				updates["next_response_due_at"] = nil
			}
		}

		if err := repo.AppendMessage(ctx, tx, msg); err != nil {
			return err
		}
		if err := repo.UpdateConversation(ctx, tx, ev.WorkspaceID, conv.ID, updates); err != nil {
			return err
		}

		fresh, err := repo.GetConversation(ctx, tx, ev.WorkspaceID, conv.ID)
		if err != nil {
			return err
		}
		if st := sla.Evaluate(fresh, policy, now).Status; string(st) != fresh.SLAStatus {
			if err := repo.UpdateConversation(ctx, tx, ev.WorkspaceID, conv.ID, map[string]any{"sla_status": string(st)}); err != nil {
				return err
			}
		}

		out.ThreadID = conv.ID
		out.MessageID = msg.ID
		return nil
	})
	if errors.Is(err, ErrDuplicateEvent) {
		webhookEvents.WithLabelValues("duplicate").Inc()
		log.Ctx(ctx).Debug().
			Str("workspace_id", ev.WorkspaceID).
			Str("event_id", ev.EventID).
			Msg("duplicate event skipped")
		return &MaterializeResult{Duplicate: true}, nil
	}
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	webhookEvents.WithLabelValues("new").Inc()
	log.Ctx(ctx).Debug().
		Str("workspace_id", ev.WorkspaceID).
		Str("thread_id", out.ThreadID).
		Str("message_id", out.MessageID).
		Str("direction", ev.Direction).
		Msg("event materialized")
	return out, nil
}

// ApplyDeliveryStatus is the delivery-receipt hook: it advances the outbound
// Message status and, when the receipt carries the outbox id the dispatcher
// attached as callback data, marks that Outbox row sent if its attempt was
// recorded as failed. Unknown ids are ignored.
func (s *Materializer) ApplyDeliveryStatus(ctx context.Context, workspaceID string, r webhook.StatusUpdate) error {
	status := strings.ToLower(strings.TrimSpace(r.Status))
	if _, err := repo.ApplyDeliveryStatus(ctx, s.DB, workspaceID, r.ProviderMessageID, status); err != nil {
		return err
	}
	if r.OutboxID == "" {
		return nil
	}
	switch status {
	case "sent", "delivered", "read":
	default:
		return nil
	}
	ok, err := repo.ReconcileOutboxSent(ctx, s.DB, workspaceID, r.OutboxID, r.ProviderMessageID, s.now())
	if err != nil {
		return err
	}
	if ok {
		outboxOutcomes.WithLabelValues("reconciled").Inc()
		log.Ctx(ctx).Info().
			Str("workspace_id", workspaceID).
			Str("outbox_id", r.OutboxID).
			Str("provider_message_id", r.ProviderMessageID).
			Msg("outbox row reconciled from delivery receipt")
	}
	return nil
}

// ResolveWorkspace maps a provider phone-number id to its workspace.
func (s *Materializer) ResolveWorkspace(ctx context.Context, phoneNumberID string) (string, error) {
	ws, err := repo.FindWorkspaceByPhoneNumberID(ctx, s.DB, phoneNumberID)
	if errors.Is(err, repo.ErrNotFound) {
		return "", ErrUnknownWorkspace
	}
	return ws, err
}

// IntakeStats counts what one webhook batch produced.
type IntakeStats struct {
	New       int `json:"new"`
	Duplicate int `json:"duplicate"`
	Rejected  int `json:"rejected"`
	Receipts  int `json:"receipts"`
}

// IngestBatch resolves the batch's workspace, then materializes each event
// and applies each delivery receipt. Invalid events are counted and skipped;
// any other failure stops the batch so the provider redelivers it, which
// the dedup key makes safe.
func (s *Materializer) IngestBatch(ctx context.Context, b webhook.Batch) (IntakeStats, error) {
	var st IntakeStats
	ws, err := s.ResolveWorkspace(ctx, b.PhoneNumberID)
	if err != nil {
		return st, err
	}
	for _, ev := range b.Events {
		ev.WorkspaceID = ws
		res, err := s.Materialize(ctx, ev)
		switch {
		case errors.Is(err, ErrInvalidEvent):
			st.Rejected++
			log.Ctx(ctx).Warn().Str("workspace_id", ws).Str("event_id", ev.EventID).Msg("webhook event rejected")
		case err != nil:
			return st, err
		case res.Duplicate:
			st.Duplicate++
		default:
			st.New++
		}
	}
	for _, r := range b.Statuses {
		if err := s.ApplyDeliveryStatus(ctx, ws, r); err != nil {
			return st, err
		}
		st.Receipts++
	}
	return st, nil
}

func validateEvent(ev *domain.Event) error {
	ev.EventID = strings.TrimSpace(ev.EventID)
	ev.WorkspaceID = strings.TrimSpace(ev.WorkspaceID)
	ev.MsgType = strings.TrimSpace(ev.MsgType)
	if ev.EventID == "" || ev.WorkspaceID == "" || ev.MsgType == "" {
		return ErrInvalidEvent
	}
	switch ev.Direction {
	case domain.DirectionIn:
	case domain.DirectionOut:
		if ev.Author == "" {
			ev.Author = domain.AuthorAgent
		}
	default:
		return ErrInvalidEvent
	}
	if len(ev.Payload) == 0 {
		ev.Payload = []byte("{}")
	}
	return nil
}

// latestOf keeps col at the later of its current value and ts, so an
// out-of-order delivery never moves a timestamp backwards.
func latestOf(col string, ts time.Time) any {
	return gorm.Expr("CASE WHEN "+col+" IS NULL OR "+col+" < ? THEN ? ELSE "+col+" END", ts, ts)
}
