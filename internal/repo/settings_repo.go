package repo

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	"github.com/tbourn/go-wa-inbox/internal/domain"
)

// GetSettings returns the workspace's settings row, or defaults when the
// workspace has none.
func GetSettings(ctx context.Context, db *gorm.DB, workspaceID string) (domain.WorkspaceSettings, error) {
	var s domain.WorkspaceSettings
	err := db.WithContext(ctx).Where("workspace_id = ?", workspaceID).First(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.DefaultWorkspaceSettings(workspaceID), nil
	}
	if err != nil {
		return domain.WorkspaceSettings{}, err
	}
	return s, nil
}

// FindWorkspaceByPhoneNumberID resolves the workspace that owns a provider
// phone-number id. It returns ErrNotFound when no workspace claims it.
func FindWorkspaceByPhoneNumberID(ctx context.Context, db *gorm.DB, phoneNumberID string) (string, error) {
	if strings.TrimSpace(phoneNumberID) == "" {
		return "", ErrNotFound
	}
	var s domain.WorkspaceSettings
	err := db.WithContext(ctx).
		Select("workspace_id").
		Where("phone_number_id = ?", phoneNumberID).
		First(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return s.WorkspaceID, nil
}

// SaveSettings upserts a workspace settings row.
func SaveSettings(ctx context.Context, db *gorm.DB, s *domain.WorkspaceSettings) error {
	return db.WithContext(ctx).Save(s).Error
}
