// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Message model.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-wa-inbox/internal/domain"
)

// AppendMessage reserves the thread's next sequence number and inserts m.
// ID, Seq, SortAt and CreatedAt are filled in when empty. tx must be a
// transaction handle.
func AppendMessage(ctx context.Context, tx *gorm.DB, m *domain.Message) error {
	seq, err := NextMessageSeq(ctx, tx, m.WorkspaceID, m.ThreadID)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now
	}
	if m.SortAt.IsZero() {
		m.SortAt = m.CreatedAt
		if m.WATimestamp != nil {
			m.SortAt = m.WATimestamp.UTC()
		}
	}
	if m.PayloadJSON == "" {
		m.PayloadJSON = "{}"
	}
	m.Seq = seq
	return tx.WithContext(ctx).Create(m).Error
}

// CountMessages uses a raw COUNT so a missing table surfaces as an error.
func CountMessages(ctx context.Context, db *gorm.DB, workspaceID, threadID string) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Raw("SELECT COUNT(*) FROM messages WHERE workspace_id = ? AND thread_id = ?", workspaceID, threadID).
		Scan(&total).Error
	return total, err
}

// ListMessagesPage returns a page of a thread's messages in thread order:
// provider timestamp when present (else ingestion time), then sequence.
func ListMessagesPage(ctx context.Context, db *gorm.DB, workspaceID, threadID string, offset, limit int) ([]domain.Message, error) {
	var out []domain.Message
	err := db.WithContext(ctx).
		Where("workspace_id = ? AND thread_id = ?", workspaceID, threadID).
		Order("sort_at ASC, seq ASC").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// deliveryRank orders outbound delivery states; a receipt may only move a
// message forward.
var deliveryRank = map[string]int{
	"queued":    0,
	"sent":      1,
	"delivered": 2,
	"read":      3,
	"failed":    4,
}

// ApplyDeliveryStatus advances the status of the outbound message with the
// given provider id. Out-of-order receipts (e.g. "delivered" after "read")
// are ignored. It reports whether a row changed.
func ApplyDeliveryStatus(ctx context.Context, db *gorm.DB, workspaceID, providerMessageID, status string) (bool, error) {
	rank, ok := deliveryRank[status]
	if !ok {
		return false, nil
	}
	lower := make([]string, 0, len(deliveryRank))
	for s, r := range deliveryRank {
		if r < rank {
			lower = append(lower, s)
		}
	}
	if len(lower) == 0 {
		return false, nil
	}
	res := db.WithContext(ctx).
		Model(&domain.Message{}).
		Where("workspace_id = ? AND provider_message_id = ? AND direction = ? AND status IN ?",
			workspaceID, providerMessageID, domain.DirectionOut, lower).
		Update("status", status)
	return res.RowsAffected > 0, res.Error
}
