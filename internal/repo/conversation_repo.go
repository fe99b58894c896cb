// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for Conversation
// rows and their audit events.
//
// Conversations are a contended resource: routing mutations go through
// UpdateConversationCAS, which only applies when the caller still holds the
// assign_version it read, and reports ErrConflict otherwise. Counter-style
// updates from the materializer use SQL expressions so they never depend on a
// value read earlier by the application.
package repo

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-wa-inbox/internal/domain"
)

// GetConversation fetches a conversation scoped to its workspace.
func GetConversation(ctx context.Context, db *gorm.DB, workspaceID, id string) (*domain.Conversation, error) {
	var c domain.Conversation
	if err := db.WithContext(ctx).Where("id = ? AND workspace_id = ?", id, workspaceID).First(&c).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

// GetOrCreateConversation resolves the thread for a contact, creating it on
// first contact. created reports whether this call inserted the row.
func GetOrCreateConversation(ctx context.Context, db *gorm.DB, workspaceID, contactID string, now time.Time) (conv *domain.Conversation, created bool, err error) {
	var c domain.Conversation
	err = db.WithContext(ctx).Where("workspace_id = ? AND contact_id = ?", workspaceID, contactID).First(&c).Error
	if err == nil {
		return &c, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, err
	}

	c = domain.Conversation{
		ID:           uuid.NewString(),
		WorkspaceID:  workspaceID,
		ContactID:    contactID,
		TicketStatus: domain.TicketOpen,
		SLAStatus:    "on_track",
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	res := db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&c)
	if res.Error != nil {
		return nil, false, res.Error
	}
	if res.RowsAffected == 0 {
		// Lost the race to a concurrent creator; return the winner's row.
		if err := db.WithContext(ctx).Where("workspace_id = ? AND contact_id = ?", workspaceID, contactID).First(&c).Error; err != nil {
			return nil, false, err
		}
		return &c, false, nil
	}
	return &c, true, nil
}

// UpdateConversationCAS applies updates only if the row still carries
// version, bumping assign_version. ErrConflict means another writer won.
func UpdateConversationCAS(ctx context.Context, db *gorm.DB, workspaceID, id string, version int64, updates map[string]any) error {
	set := make(map[string]any, len(updates)+2)
	for k, v := range updates {
		set[k] = v
	}
	set["assign_version"] = gorm.Expr("assign_version + 1")
	if _, ok := set["updated_at"]; !ok {
		set["updated_at"] = time.Now().UTC()
	}
	res := db.WithContext(ctx).
		Model(&domain.Conversation{}).
		Where("id = ? AND workspace_id = ? AND assign_version = ?", id, workspaceID, version).
		Updates(set)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrConflict
	}
	return nil
}

// UpdateConversation applies updates unconditionally (single-row UPDATE).
// Use SQL expressions for counters.
func UpdateConversation(ctx context.Context, db *gorm.DB, workspaceID, id string, updates map[string]any) error {
	res := db.WithContext(ctx).
		Model(&domain.Conversation{}).
		Where("id = ? AND workspace_id = ?", id, workspaceID).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// NextMessageSeq atomically reserves the next message sequence number of a
// thread. It must run inside the transaction that inserts the message.
func NextMessageSeq(ctx context.Context, tx *gorm.DB, workspaceID, conversationID string) (int64, error) {
	res := tx.WithContext(ctx).
		Model(&domain.Conversation{}).
		Where("id = ? AND workspace_id = ?", conversationID, workspaceID).
		UpdateColumn("message_seq", gorm.Expr("message_seq + 1"))
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected == 0 {
		return 0, gorm.ErrRecordNotFound
	}
	var seq int64
	err := tx.WithContext(ctx).
		Model(&domain.Conversation{}).
		Select("message_seq").
		Where("id = ?", conversationID).
		Scan(&seq).Error
	return seq, err
}

// ConversationFilter narrows ListConversationsPage.
type ConversationFilter struct {
	TeamID           string
	AssignedMemberID string
	UnassignedOnly   bool
	IncludeArchived  bool
}

func conversationQuery(ctx context.Context, db *gorm.DB, workspaceID string, f ConversationFilter) *gorm.DB {
	q := db.WithContext(ctx).Model(&domain.Conversation{}).Where("workspace_id = ?", workspaceID)
	if f.TeamID != "" {
		q = q.Where("team_id = ?", f.TeamID)
	}
	if f.AssignedMemberID != "" {
		q = q.Where("assigned_member_id = ?", f.AssignedMemberID)
	}
	if f.UnassignedOnly {
		q = q.Where("assigned_member_id IS NULL")
	}
	if !f.IncludeArchived {
		q = q.Where("is_archived = ?", false)
	}
	return q
}

// CountConversations returns the number of conversations matching f.
func CountConversations(ctx context.Context, db *gorm.DB, workspaceID string, f ConversationFilter) (int64, error) {
	var n int64
	err := conversationQuery(ctx, db, workspaceID, f).Count(&n).Error
	return n, err
}

// ListConversationsPage returns conversations matching f, pinned first, then
// most recent activity.
func ListConversationsPage(ctx context.Context, db *gorm.DB, workspaceID string, f ConversationFilter, offset, limit int) ([]domain.Conversation, error) {
	var out []domain.Conversation
	err := conversationQuery(ctx, db, workspaceID, f).
		Order("pinned DESC").
		Order("CASE WHEN last_message_at IS NULL THEN 1 ELSE 0 END ASC").
		Order("last_message_at DESC, id ASC").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// AppendEvent inserts an audit event. meta is marshalled to JSON.
func AppendEvent(ctx context.Context, db *gorm.DB, workspaceID, conversationID, typ, createdBy string, meta map[string]any) (*domain.ConversationEvent, error) {
	raw := []byte("{}")
	if len(meta) > 0 {
		b, err := json.Marshal(meta)
		if err != nil {
			return nil, err
		}
		raw = b
	}
	ev := &domain.ConversationEvent{
		ID:             uuid.NewString(),
		WorkspaceID:    workspaceID,
		ConversationID: conversationID,
		Type:           typ,
		Meta:           string(raw),
		CreatedBy:      createdBy,
		CreatedAt:      time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(ev).Error; err != nil {
		return nil, err
	}
	return ev, nil
}

// ListEvents returns a conversation's audit events, oldest first.
func ListEvents(ctx context.Context, db *gorm.DB, workspaceID, conversationID string, offset, limit int) ([]domain.ConversationEvent, error) {
	var out []domain.ConversationEvent
	q := db.WithContext(ctx).
		Where("workspace_id = ? AND conversation_id = ?", workspaceID, conversationID).
		Order("created_at ASC, id ASC")
	if limit > 0 {
		q = q.Offset(offset).Limit(limit)
	}
	err := q.Find(&out).Error
	return out, err
}
