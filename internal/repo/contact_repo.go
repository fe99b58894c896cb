package repo

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-wa-inbox/internal/domain"
)

// GetOrCreateContact resolves the contact for (workspaceID, phone), creating
// it if absent. Created contacts are not opted in: writing to the business
// is not consent to campaigns. Losing the insert race to a concurrent
// creator yields the winner's row.
func GetOrCreateContact(ctx context.Context, db *gorm.DB, workspaceID, phone, name string) (*domain.Contact, error) {
	var c domain.Contact
	err := db.WithContext(ctx).Where("workspace_id = ? AND phone = ?", workspaceID, phone).First(&c).Error
	if err == nil {
		return &c, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	now := time.Now().UTC()
	c = domain.Contact{
		ID:          uuid.NewString(),
		WorkspaceID: workspaceID,
		Phone:       phone,
		Name:        name,
		OptedIn:     false,
		Tags:        "[]",
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	res := db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&c)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		if err := db.WithContext(ctx).Where("workspace_id = ? AND phone = ?", workspaceID, phone).First(&c).Error; err != nil {
			return nil, err
		}
	}
	return &c, nil
}

// Segment filters contacts for campaign audiences. Opt-in/opt-out are always
// enforced; Tag and CreatedAfter are optional.
type Segment struct {
	Tag          string
	CreatedAfter *time.Time
}

// SegmentContacts streams contacts matching seg in pages of batchSize to fn,
// walking the primary key. fn must copy anything it keeps, the slice is
// reused between pages. It stops at the first error from fn.
func SegmentContacts(ctx context.Context, db *gorm.DB, workspaceID string, seg Segment, batchSize int, fn func([]domain.Contact) error) error {
	if batchSize <= 0 {
		batchSize = 500
	}
	q := db.WithContext(ctx).Model(&domain.Contact{}).
		Where("workspace_id = ? AND opted_in = ? AND opted_out = ?", workspaceID, true, false)
	if tag := strings.TrimSpace(seg.Tag); tag != "" {
		// Tags is a JSON array of strings; match the quoted element.
		q = q.Where("tags LIKE ?", "%\""+stripLikeWildcards(tag)+"\"%")
	}
	if seg.CreatedAfter != nil {
		q = q.Where("created_at >= ?", seg.CreatedAfter.UTC())
	}

	var batch []domain.Contact
	res := q.FindInBatches(&batch, batchSize, func(tx *gorm.DB, _ int) error {
		return fn(batch)
	})
	return res.Error
}

func stripLikeWildcards(s string) string {
	return strings.NewReplacer(`%`, ``, `_`, ``).Replace(s)
}
