// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for templates,
// campaigns and campaign recipients.
package repo

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-wa-inbox/internal/domain"
)

// GetTemplate fetches a workspace template by name and language. An empty
// language matches any language (the most recently updated row wins).
func GetTemplate(ctx context.Context, db *gorm.DB, workspaceID, name, language string) (*domain.MessageTemplate, error) {
	var t domain.MessageTemplate
	q := db.WithContext(ctx).Where("workspace_id = ? AND name = ?", workspaceID, strings.TrimSpace(name))
	if language != "" {
		q = q.Where("language = ?", language)
	}
	if err := q.Order("updated_at DESC").First(&t).Error; err != nil {
		return nil, err
	}
	return &t, nil
}

// CreateCampaign inserts a queued campaign.
func CreateCampaign(ctx context.Context, db *gorm.DB, c *domain.Campaign) error {
	now := time.Now().UTC()
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	c.Status = domain.CampaignQueued
	c.CreatedAt = now
	c.UpdatedAt = now
	return db.WithContext(ctx).Create(c).Error
}

// GetCampaign fetches a campaign scoped to its workspace.
func GetCampaign(ctx context.Context, db *gorm.DB, workspaceID, id string) (*domain.Campaign, error) {
	var c domain.Campaign
	if err := db.WithContext(ctx).Where("id = ? AND workspace_id = ?", id, workspaceID).First(&c).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

// InsertRecipients inserts rows in a single statement, skipping contacts
// already present in the campaign. It returns the number of rows inserted.
func InsertRecipients(ctx context.Context, db *gorm.DB, rows []domain.CampaignRecipient) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	res := db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "campaign_id"}, {Name: "contact_id"}},
			DoNothing: true,
		}).
		Create(&rows)
	return res.RowsAffected, res.Error
}

// AddRecipientCount increments a campaign's recipient_count by n.
func AddRecipientCount(ctx context.Context, db *gorm.DB, campaignID string, n int64) error {
	return db.WithContext(ctx).
		Model(&domain.Campaign{}).
		Where("id = ?", campaignID).
		Updates(map[string]any{
			"recipient_count": gorm.Expr("recipient_count + ?", n),
			"updated_at":      time.Now().UTC(),
		}).Error
}

// SetCampaignStatus moves a campaign from one of from to status.
// ErrConflict means the campaign was not in any of from.
func SetCampaignStatus(ctx context.Context, db *gorm.DB, workspaceID, id, status string, from []string, now time.Time) error {
	set := map[string]any{"status": status, "updated_at": now}
	switch status {
	case domain.CampaignRunning:
		set["started_at"] = now
	case domain.CampaignCompleted, domain.CampaignFailed:
		set["completed_at"] = now
	}
	res := db.WithContext(ctx).
		Model(&domain.Campaign{}).
		Where("id = ? AND workspace_id = ? AND status IN ?", id, workspaceID, from).
		Updates(set)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrConflict
	}
	return nil
}

// ListCampaignsByStatus returns up to limit campaigns in status across all
// workspaces, least recently touched first.
func ListCampaignsByStatus(ctx context.Context, db *gorm.DB, status string, limit int) ([]domain.Campaign, error) {
	var out []domain.Campaign
	err := db.WithContext(ctx).
		Where("status = ?", status).
		Order("updated_at ASC, id ASC").
		Limit(limit).
		Find(&out).Error
	return out, err
}

// ListQueuedRecipients returns up to limit queued recipients of a campaign.
func ListQueuedRecipients(ctx context.Context, db *gorm.DB, workspaceID, campaignID string, limit int) ([]domain.CampaignRecipient, error) {
	var out []domain.CampaignRecipient
	err := db.WithContext(ctx).
		Where("workspace_id = ? AND campaign_id = ? AND status = ?", workspaceID, campaignID, domain.StatusQueued).
		Order("id ASC").
		Limit(limit).
		Find(&out).Error
	return out, err
}

// ClaimRecipient flips a recipient queued -> processing.
func ClaimRecipient(ctx context.Context, db *gorm.DB, id string, now time.Time) error {
	res := db.WithContext(ctx).
		Model(&domain.CampaignRecipient{}).
		Where("id = ? AND status = ?", id, domain.StatusQueued).
		Updates(map[string]any{"status": domain.StatusProcessing, "attempted_at": now})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrConflict
	}
	return nil
}

// FinishRecipient records the terminal outcome of a processing recipient.
func FinishRecipient(ctx context.Context, db *gorm.DB, id, status string, reason *string, now time.Time) error {
	return db.WithContext(ctx).
		Model(&domain.CampaignRecipient{}).
		Where("id = ? AND status = ?", id, domain.StatusProcessing).
		Updates(map[string]any{"status": status, "error_reason": reason, "attempted_at": now}).Error
}

// GetRecipient fetches a recipient by id.
func GetRecipient(ctx context.Context, db *gorm.DB, id string) (*domain.CampaignRecipient, error) {
	var r domain.CampaignRecipient
	if err := db.WithContext(ctx).Where("id = ?", id).First(&r).Error; err != nil {
		return nil, err
	}
	return &r, nil
}
