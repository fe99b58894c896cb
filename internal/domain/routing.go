package domain

import (
	"errors"
	"strings"
	"time"
)

// Team groups members for routing.
type Team struct {
	ID          string    `json:"id"           gorm:"type:char(36);primaryKey"`
	WorkspaceID string    `json:"workspace_id" gorm:"type:varchar(64);not null;index"`
	Name        string    `json:"name"         gorm:"type:varchar(255);not null"`
	IsDefault   bool      `json:"is_default"   gorm:"not null;default:false"`
	CreatedAt   time.Time `json:"created_at"`
}

// TableName returns the database table name for Team.
func (Team) TableName() string { return "teams" }

// TeamMember binds a workspace member to a team. A member may belong to
// several teams; (team_id, member_id) is unique.
//
// AssignedCount and LastAssignedAt carry round-robin state for the team.
type TeamMember struct {
	ID             string     `json:"id"               gorm:"type:char(36);primaryKey"`
	WorkspaceID    string     `json:"workspace_id"     gorm:"type:varchar(64);not null;index"`
	TeamID         string     `json:"team_id"          gorm:"type:char(36);not null;uniqueIndex:ux_team_member,priority:1"`
	MemberID       string     `json:"member_id"        gorm:"type:char(36);not null;uniqueIndex:ux_team_member,priority:2"`
	UserRef        string     `json:"user_ref"         gorm:"type:varchar(64)"`
	IsActive       bool       `json:"is_active"        gorm:"not null"`
	AssignedCount  int64      `json:"assigned_count"   gorm:"not null;default:0"`
	LastAssignedAt *time.Time `json:"last_assigned_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// TableName returns the database table name for TeamMember.
func (TeamMember) TableName() string { return "team_members" }

// RoutingCategory is a workspace-scoped tag optionally bound to a default team.
type RoutingCategory struct {
	ID            string    `json:"id"                        gorm:"type:char(36);primaryKey"`
	WorkspaceID   string    `json:"workspace_id"              gorm:"type:varchar(64);not null;uniqueIndex:ux_category_key,priority:1"`
	Key           string    `json:"key"                       gorm:"type:varchar(64);not null;uniqueIndex:ux_category_key,priority:2"`
	Label         string    `json:"label"                     gorm:"type:varchar(255);not null"`
	DefaultTeamID *string   `json:"default_team_id,omitempty" gorm:"type:char(36)"`
	CreatedAt     time.Time `json:"created_at"`
}

// TableName returns the database table name for RoutingCategory.
func (RoutingCategory) TableName() string { return "routing_categories" }

// Role is the caller's workspace role as supplied by the auth collaborator.
type Role int

const (
	RoleUnknown Role = iota
	RoleAgent
	RoleSupervisor
	RoleAdmin
)

// ErrUnknownRole is returned by ParseRole for unrecognised role strings.
var ErrUnknownRole = errors.New("unknown role")

// ParseRole maps an external role string onto the closed Role set.
func ParseRole(s string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "agent":
		return RoleAgent, nil
	case "supervisor":
		return RoleSupervisor, nil
	case "admin", "owner":
		return RoleAdmin, nil
	}
	return RoleUnknown, ErrUnknownRole
}

func (r Role) String() string {
	switch r {
	case RoleAgent:
		return "agent"
	case RoleSupervisor:
		return "supervisor"
	case RoleAdmin:
		return "admin"
	}
	return "unknown"
}

// Actor is the member performing a routing operation.
type Actor struct {
	MemberID string
	Role     Role
}
