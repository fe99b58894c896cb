// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides the Outbox queue primitives.
//
// Every state transition is a single conditional UPDATE guarded on the
// current status, so two drain workers can never both move the same row out
// of "queued":
//
//	queued --ClaimOutbox--> processing --MarkOutboxSent--> sent
//	                                    --MarkOutboxFailure--> queued | failed
//	failed --RequeueOutbox--> queued
//	queued | failed --ReconcileOutboxSent--> sent
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-wa-inbox/internal/domain"
)

// CreateOutbox durably inserts a queued outbox row due immediately.
func CreateOutbox(ctx context.Context, db *gorm.DB, m *domain.OutboxMessage) error {
	now := time.Now().UTC()
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.PayloadJSON == "" {
		m.PayloadJSON = "{}"
	}
	if m.Author == "" {
		m.Author = domain.AuthorAgent
	}
	m.Status = domain.StatusQueued
	m.Attempts = 0
	if m.NextAttemptAt.IsZero() {
		m.NextAttemptAt = now
	}
	m.CreatedAt = now
	m.UpdatedAt = now
	return db.WithContext(ctx).Create(m).Error
}

// GetOutbox fetches an outbox row scoped to its workspace.
func GetOutbox(ctx context.Context, db *gorm.DB, workspaceID, id string) (*domain.OutboxMessage, error) {
	var m domain.OutboxMessage
	if err := db.WithContext(ctx).Where("id = ? AND workspace_id = ?", id, workspaceID).First(&m).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

// ClaimOutbox flips a row queued -> processing. ErrConflict means the row was
// not queued (already claimed, or terminal).
func ClaimOutbox(ctx context.Context, db *gorm.DB, workspaceID, id string, now time.Time) error {
	res := db.WithContext(ctx).
		Model(&domain.OutboxMessage{}).
		Where("id = ? AND workspace_id = ? AND status = ?", id, workspaceID, domain.StatusQueued).
		Updates(map[string]any{"status": domain.StatusProcessing, "updated_at": now})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrConflict
	}
	return nil
}

// MarkOutboxSent moves a claimed row processing -> sent.
func MarkOutboxSent(ctx context.Context, db *gorm.DB, workspaceID, id, providerMessageID string, now time.Time) error {
	res := db.WithContext(ctx).
		Model(&domain.OutboxMessage{}).
		Where("id = ? AND workspace_id = ? AND status = ?", id, workspaceID, domain.StatusProcessing).
		Updates(map[string]any{
			"status":              domain.StatusSent,
			"provider_message_id": providerMessageID,
			"sent_at":             now,
			"last_error":          nil,
			"updated_at":          now,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrConflict
	}
	return nil
}

// MarkOutboxFailure records a failed attempt on a claimed row: attempts is
// set to attempts (the caller's incremented value), and the row returns to
// status (queued or failed) due at next.
func MarkOutboxFailure(ctx context.Context, db *gorm.DB, workspaceID, id string, attempts int, status, lastErr string, next, now time.Time) error {
	res := db.WithContext(ctx).
		Model(&domain.OutboxMessage{}).
		Where("id = ? AND workspace_id = ? AND status = ?", id, workspaceID, domain.StatusProcessing).
		Updates(map[string]any{
			"status":          status,
			"attempts":        attempts,
			"last_error":      lastErr,
			"next_attempt_at": next,
			"updated_at":      now,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrConflict
	}
	return nil
}

// RequeueOutbox moves a failed row back to queued if it has fewer than
// maxAttempts attempts.
func RequeueOutbox(ctx context.Context, db *gorm.DB, workspaceID, id string, maxAttempts int, now time.Time) error {
	res := db.WithContext(ctx).
		Model(&domain.OutboxMessage{}).
		Where("id = ? AND workspace_id = ? AND status = ? AND attempts < ?", id, workspaceID, domain.StatusFailed, maxAttempts).
		Updates(map[string]any{"status": domain.StatusQueued, "next_attempt_at": now, "updated_at": now})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrConflict
	}
	return nil
}

// ReconcileOutboxSent marks a queued or failed row sent once a delivery
// receipt proves the provider accepted an attempt whose outcome was recorded
// as a failure (typically a local timeout). It reports whether a row changed.
func ReconcileOutboxSent(ctx context.Context, db *gorm.DB, workspaceID, id, providerMessageID string, now time.Time) (bool, error) {
	res := db.WithContext(ctx).
		Model(&domain.OutboxMessage{}).
		Where("id = ? AND workspace_id = ? AND status IN ?", id, workspaceID,
			[]string{domain.StatusQueued, domain.StatusFailed}).
		Updates(map[string]any{
			"status":              domain.StatusSent,
			"provider_message_id": providerMessageID,
			"sent_at":             now,
			"updated_at":          now,
		})
	return res.RowsAffected > 0, res.Error
}

// DueOutbox is an (id, workspace) pair ready to drain.
type DueOutbox struct {
	ID          string
	WorkspaceID string
}

// ListDueOutbox returns up to limit queued rows whose next attempt is due,
// oldest due first, across all workspaces.
func ListDueOutbox(ctx context.Context, db *gorm.DB, now time.Time, limit int) ([]DueOutbox, error) {
	var out []DueOutbox
	err := db.WithContext(ctx).
		Model(&domain.OutboxMessage{}).
		Select("id, workspace_id").
		Where("status = ? AND next_attempt_at <= ?", domain.StatusQueued, now).
		Order("next_attempt_at ASC, id ASC").
		Limit(limit).
		Scan(&out).Error
	return out, err
}

// CountOutbox returns the number of rows in a workspace, optionally by status.
func CountOutbox(ctx context.Context, db *gorm.DB, workspaceID, status string) (int64, error) {
	var n int64
	q := db.WithContext(ctx).Model(&domain.OutboxMessage{}).Where("workspace_id = ?", workspaceID)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	err := q.Count(&n).Error
	return n, err
}

// ListOutboxPage returns a page of a workspace's outbox, newest first.
func ListOutboxPage(ctx context.Context, db *gorm.DB, workspaceID, status string, offset, limit int) ([]domain.OutboxMessage, error) {
	var out []domain.OutboxMessage
	q := db.WithContext(ctx).Where("workspace_id = ?", workspaceID)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	err := q.Order("created_at DESC, id DESC").Offset(offset).Limit(limit).Find(&out).Error
	return out, err
}

// ListStaleOutbox returns up to limit rows stuck in processing since before
// cutoff, which means the worker that claimed them died mid-send.
func ListStaleOutbox(ctx context.Context, db *gorm.DB, cutoff time.Time, limit int) ([]DueOutbox, error) {
	var out []DueOutbox
	err := db.WithContext(ctx).
		Model(&domain.OutboxMessage{}).
		Select("id, workspace_id").
		Where("status = ? AND updated_at < ?", domain.StatusProcessing, cutoff).
		Order("updated_at ASC, id ASC").
		Limit(limit).
		Scan(&out).Error
	return out, err
}
