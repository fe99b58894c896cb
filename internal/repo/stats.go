// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides small aggregate queries used for
// campaign status polling. Both queries are served by the
// (campaign_id, status) index and never scan recipient payloads.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-wa-inbox/internal/domain"
)

// RecipientCounts holds per-status recipient totals for a campaign.
type RecipientCounts struct {
	Queued     int64 `json:"queued"`
	Processing int64 `json:"processing"`
	Sent       int64 `json:"sent"`
	Failed     int64 `json:"failed"`
}

// Total returns the sum of all buckets.
func (c RecipientCounts) Total() int64 {
	return c.Queued + c.Processing + c.Sent + c.Failed
}

// CampaignRecipientCounts aggregates recipient rows of a campaign by status.
func CampaignRecipientCounts(ctx context.Context, db *gorm.DB, workspaceID, campaignID string) (RecipientCounts, error) {
	var rows []struct {
		Status string
		N      int64
	}
	err := db.WithContext(ctx).
		Model(&domain.CampaignRecipient{}).
		Select("status, COUNT(*) AS n").
		Where("workspace_id = ? AND campaign_id = ?", workspaceID, campaignID).
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return RecipientCounts{}, err
	}
	var out RecipientCounts
	for _, r := range rows {
		switch r.Status {
		case domain.StatusQueued:
			out.Queued = r.N
		case domain.StatusProcessing:
			out.Processing = r.N
		case domain.StatusSent:
			out.Sent = r.N
		case domain.StatusFailed:
			out.Failed = r.N
		}
	}
	return out, nil
}

// RecipientFailure is one sampled failure for operator visibility.
type RecipientFailure struct {
	ContactID   string     `json:"contact_id"`
	Phone       string     `json:"phone"`
	ErrorReason string     `json:"error_reason"`
	AttemptedAt *time.Time `json:"attempted_at,omitempty"`
}

// RecentRecipientFailures returns up to limit most recent failures.
func RecentRecipientFailures(ctx context.Context, db *gorm.DB, workspaceID, campaignID string, limit int) ([]RecipientFailure, error) {
	var out []RecipientFailure
	err := db.WithContext(ctx).
		Model(&domain.CampaignRecipient{}).
		Select("contact_id, phone, COALESCE(error_reason, '') AS error_reason, attempted_at").
		Where("workspace_id = ? AND campaign_id = ? AND status = ?", workspaceID, campaignID, domain.StatusFailed).
		Order("attempted_at DESC, id DESC").
		Limit(limit).
		Scan(&out).Error
	return out, err
}
