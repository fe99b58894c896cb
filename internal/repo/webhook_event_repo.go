package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-wa-inbox/internal/domain"
)

// RecordWebhookEvent claims the (workspaceID, providerEventID) dedup key.
// It returns ErrDuplicate when the event was already recorded; any other
// error is a storage failure and the caller must not proceed.
func RecordWebhookEvent(ctx context.Context, db *gorm.DB, workspaceID, providerEventID, messageID string) error {
	ev := &domain.WebhookEvent{
		ID:              uuid.NewString(),
		WorkspaceID:     workspaceID,
		ProviderEventID: providerEventID,
		MessageID:       messageID,
		CreatedAt:       time.Now().UTC(),
	}
	res := db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(ev)
	if res.Error != nil {
		if IsDuplicate(res.Error) {
			return ErrDuplicate
		}
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrDuplicate
	}
	return nil
}

// CountWebhookEvents returns the number of recorded events for a workspace.
func CountWebhookEvents(ctx context.Context, db *gorm.DB, workspaceID string) (int64, error) {
	var n int64
	err := db.WithContext(ctx).Model(&domain.WebhookEvent{}).
		Where("workspace_id = ?", workspaceID).
		Count(&n).Error
	return n, err
}
