package repo

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-wa-inbox/internal/domain"
)

// GetTeam fetches a team scoped to its workspace.
func GetTeam(ctx context.Context, db *gorm.DB, workspaceID, teamID string) (*domain.Team, error) {
	var t domain.Team
	if err := db.WithContext(ctx).Where("id = ? AND workspace_id = ?", teamID, workspaceID).First(&t).Error; err != nil {
		return nil, err
	}
	return &t, nil
}

// DefaultTeam returns the workspace's default team: the settings'
// DefaultTeamID when set, otherwise the team flagged is_default (oldest first).
func DefaultTeam(ctx context.Context, db *gorm.DB, ws domain.WorkspaceSettings) (*domain.Team, error) {
	if ws.DefaultTeamID != nil && *ws.DefaultTeamID != "" {
		return GetTeam(ctx, db, ws.WorkspaceID, *ws.DefaultTeamID)
	}
	var t domain.Team
	err := db.WithContext(ctx).
		Where("workspace_id = ? AND is_default = ?", ws.WorkspaceID, true).
		Order("created_at ASC, id ASC").
		First(&t).Error
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// NextRoundRobinMember picks the active member of teamID that is next in
// round-robin order: fewest assignments first, then least recently assigned
// (never-assigned first), then the earliest joined. On Postgres the chosen
// row is locked until the surrounding transaction ends.
func NextRoundRobinMember(ctx context.Context, db *gorm.DB, workspaceID, teamID string) (*domain.TeamMember, error) {
	var m domain.TeamMember
	err := db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("workspace_id = ? AND team_id = ? AND is_active = ?", workspaceID, teamID, true).
		Order("assigned_count ASC").
		Order("CASE WHEN last_assigned_at IS NULL THEN 0 ELSE 1 END ASC").
		Order("last_assigned_at ASC").
		Order("created_at ASC, id ASC").
		First(&m).Error
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// GetActiveMembership returns memberID's active membership in teamID, or
// ErrNotFound.
func GetActiveMembership(ctx context.Context, db *gorm.DB, workspaceID, teamID, memberID string) (*domain.TeamMember, error) {
	var m domain.TeamMember
	err := db.WithContext(ctx).
		Where("workspace_id = ? AND team_id = ? AND member_id = ? AND is_active = ?", workspaceID, teamID, memberID, true).
		First(&m).Error
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// RecordAssignment bumps the round-robin counters of a team membership.
func RecordAssignment(ctx context.Context, db *gorm.DB, teamMemberID string, at time.Time) error {
	return db.WithContext(ctx).
		Model(&domain.TeamMember{}).
		Where("id = ?", teamMemberID).
		Updates(map[string]any{
			"assigned_count":   gorm.Expr("assigned_count + 1"),
			"last_assigned_at": at,
		}).Error
}

// GetCategory fetches a routing category by id.
func GetCategory(ctx context.Context, db *gorm.DB, workspaceID, categoryID string) (*domain.RoutingCategory, error) {
	var c domain.RoutingCategory
	if err := db.WithContext(ctx).Where("id = ? AND workspace_id = ?", categoryID, workspaceID).First(&c).Error; err != nil {
		return nil, err
	}
	return &c, nil
}
