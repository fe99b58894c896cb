package domain

import "time"

// WorkspaceSettings is the per-workspace policy consulted by the core.
// A missing row means defaults (see DefaultWorkspaceSettings).
type WorkspaceSettings struct {
	WorkspaceID         string    `json:"workspace_id"           gorm:"type:varchar(64);primaryKey"`
	ResponseSLAMinutes  int       `json:"response_sla_minutes"   gorm:"not null;default:60"`
	ResolutionSLAHours  int       `json:"resolution_sla_hours"   gorm:"not null;default:24"`
	DueSoonPercent      int       `json:"due_soon_percent"       gorm:"not null;default:25"`
	SkillRoutingEnabled bool      `json:"skill_routing_enabled"  gorm:"not null;default:false"`
	TakeoverEnabled     bool      `json:"takeover_enabled"       gorm:"not null;default:false"`
	MaxAttempts         int       `json:"max_attempts"           gorm:"not null;default:5"`
	DefaultTeamID       *string   `json:"default_team_id,omitempty" gorm:"type:char(36)"`
	PhoneNumberID       string    `json:"phone_number_id"        gorm:"type:varchar(64);index"`
	AccessToken         string    `json:"-"                      gorm:"type:text"`
	SendingAllowed      bool      `json:"sending_allowed"        gorm:"not null"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// TableName returns the database table name for WorkspaceSettings.
func (WorkspaceSettings) TableName() string { return "workspace_settings" }

// DefaultWorkspaceSettings returns the policy used when a workspace has no row.
func DefaultWorkspaceSettings(workspaceID string) WorkspaceSettings {
	return WorkspaceSettings{
		WorkspaceID:        workspaceID,
		ResponseSLAMinutes: 60,
		ResolutionSLAHours: 24,
		DueSoonPercent:     25,
		MaxAttempts:        5,
		SendingAllowed:     true,
	}
}

// WebhookEvent records a processed provider event. (workspace_id,
// provider_event_id) is unique and is the ingestion deduplication key.
type WebhookEvent struct {
	ID              string    `gorm:"type:TEXT NOT NULL;primaryKey"`
	WorkspaceID     string    `gorm:"type:TEXT NOT NULL;uniqueIndex:ux_workspace_event,priority:1"`
	ProviderEventID string    `gorm:"type:TEXT NOT NULL;uniqueIndex:ux_workspace_event,priority:2"`
	MessageID       string    `gorm:"type:TEXT NOT NULL"`
	CreatedAt       time.Time `gorm:"type:DATETIME NOT NULL;autoCreateTime"`
}

// TableName implements the GORM tabler interface.
func (WebhookEvent) TableName() string { return "webhook_events" }
