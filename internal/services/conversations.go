// Package services – Inbox
//
// This file implements the read side of the inbox: paginated conversation
// listing with the SLA state computed at read time, thread messages, the
// routing audit log, and marking a thread read.
package services

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-wa-inbox/internal/domain"
	"github.com/tbourn/go-wa-inbox/internal/repo"
	"github.com/tbourn/go-wa-inbox/internal/sla"
	"github.com/tbourn/go-wa-inbox/internal/utils"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// ConversationView is a conversation with its SLA state at read time.
type ConversationView struct {
	domain.Conversation
	SLA sla.Result `json:"sla"`
}

// Inbox serves conversation reads.
type Inbox struct {
	DB  *gorm.DB
	Now func() time.Time
}

// NewInbox constructs an Inbox using the wall clock.
func NewInbox(db *gorm.DB) *Inbox {
	return &Inbox{DB: db, Now: func() time.Time { return time.Now().UTC() }}
}

func (s *Inbox) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

// ListConversations returns a page of conversations matching f.
func (s *Inbox) ListConversations(ctx context.Context, workspaceID string, f repo.ConversationFilter, page, pageSize int) ([]ConversationView, int64, error) {
	tr := otel.Tracer("services/Inbox")
	ctx, span := tr.Start(ctx, "ListConversations",
		trace.WithAttributes(
			attribute.String("workspace.id", workspaceID),
			attribute.Int("page", page),
			attribute.Int("page_size", pageSize),
		),
	)
	defer span.End()

	_, size, offset := utils.Page(page, pageSize, defaultPageSize, maxPageSize)

	total, err := repo.CountConversations(ctx, s.DB, workspaceID, f)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []ConversationView{}, 0, nil
	}
	ws, err := repo.GetSettings(ctx, s.DB, workspaceID)
	if err != nil {
		return nil, 0, err
	}
	items, err := repo.ListConversationsPage(ctx, s.DB, workspaceID, f, offset, size)
	if err != nil {
		return nil, 0, err
	}

	policy := sla.PolicyFrom(ws)
	now := s.now()
	out := make([]ConversationView, 0, len(items))
	for i := range items {
		out = append(out, ConversationView{
			Conversation: items[i],
			SLA:          sla.Evaluate(&items[i], policy, now),
		})
	}
	return out, total, nil
}

// ListMessages returns a page of a thread's messages in thread order.
func (s *Inbox) ListMessages(ctx context.Context, workspaceID, conversationID string, page, pageSize int) ([]domain.Message, int64, error) {
	tr := otel.Tracer("services/Inbox")
	ctx, span := tr.Start(ctx, "ListMessages",
		trace.WithAttributes(
			attribute.String("workspace.id", workspaceID),
			attribute.String("conversation.id", conversationID),
		),
	)
	defer span.End()

	if _, err := s.get(ctx, workspaceID, conversationID); err != nil {
		return nil, 0, err
	}
	_, size, offset := utils.Page(page, pageSize, defaultPageSize, maxPageSize)
	total, err := repo.CountMessages(ctx, s.DB, workspaceID, conversationID)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.Message{}, 0, nil
	}
	items, err := repo.ListMessagesPage(ctx, s.DB, workspaceID, conversationID, offset, size)
	return items, total, err
}

// ListEvents returns the full routing audit log of a conversation.
func (s *Inbox) ListEvents(ctx context.Context, workspaceID, conversationID string) ([]domain.ConversationEvent, error) {
	if _, err := s.get(ctx, workspaceID, conversationID); err != nil {
		return nil, err
	}
	return repo.ListEvents(ctx, s.DB, workspaceID, conversationID, 0, 0)
}

// MarkRead clears a thread's unread counter.
func (s *Inbox) MarkRead(ctx context.Context, workspaceID, conversationID string) error {
	now := s.now()
	err := repo.UpdateConversation(ctx, s.DB, workspaceID, conversationID, map[string]any{
		"unread_count": 0,
		"last_read_at": now,
		"updated_at":   now,
	})
	if errors.Is(err, repo.ErrNotFound) {
		return ErrConversationNotFound
	}
	return err
}

func (s *Inbox) get(ctx context.Context, workspaceID, id string) (*domain.Conversation, error) {
	c, err := repo.GetConversation(ctx, s.DB, workspaceID, id)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrConversationNotFound
	}
	return c, err
}
