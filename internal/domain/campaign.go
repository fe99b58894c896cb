package domain

import "time"

// Campaign statuses.
const (
	CampaignQueued    = "queued"
	CampaignRunning   = "running"
	CampaignCompleted = "completed"
	CampaignFailed    = "failed"
)

// MessageTemplate is a provider-side template as synced for a workspace.
// Status holds the provider's review state verbatim (e.g. "APPROVED").
type MessageTemplate struct {
	ID          string    `json:"id"           gorm:"type:char(36);primaryKey"`
	WorkspaceID string    `json:"workspace_id" gorm:"type:varchar(64);not null;uniqueIndex:ux_template_name,priority:1"`
	Name        string    `json:"name"         gorm:"type:varchar(255);not null;uniqueIndex:ux_template_name,priority:2"`
	Language    string    `json:"language"     gorm:"type:varchar(16);not null;uniqueIndex:ux_template_name,priority:3"`
	Status      string    `json:"status"       gorm:"type:varchar(32);not null"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// TableName returns the database table name for MessageTemplate.
func (MessageTemplate) TableName() string { return "message_templates" }

// Campaign is a template blast to a resolved audience segment.
type Campaign struct {
	ID             string     `json:"id"              gorm:"type:char(36);primaryKey"`
	WorkspaceID    string     `json:"workspace_id"    gorm:"type:varchar(64);not null;index"`
	Name           string     `json:"name"            gorm:"type:varchar(255);not null"`
	TemplateName   string     `json:"template_name"   gorm:"type:varchar(255);not null"`
	Language       string     `json:"language"        gorm:"type:varchar(16);not null"`
	Status         string     `json:"status"          gorm:"type:varchar(16);not null;default:'queued';check:status IN ('queued','running','completed','failed')"`
	RecipientCount int        `json:"recipient_count" gorm:"not null;default:0"`
	StartedAt      *time.Time `json:"started_at,omitempty"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// TableName returns the database table name for Campaign.
func (Campaign) TableName() string { return "campaigns" }

// CampaignRecipient is one contact of one campaign. (campaign_id, contact_id)
// is unique; the identity columns never change after insert.
type CampaignRecipient struct {
	ID          string     `json:"id"                     gorm:"type:char(36);primaryKey"`
	WorkspaceID string     `json:"workspace_id"           gorm:"type:varchar(64);not null;index"`
	CampaignID  string     `json:"campaign_id"            gorm:"type:char(36);not null;uniqueIndex:ux_campaign_contact,priority:1;index:idx_campaign_status,priority:1"`
	ContactID   string     `json:"contact_id"             gorm:"type:char(36);not null;uniqueIndex:ux_campaign_contact,priority:2"`
	Phone       string     `json:"phone"                  gorm:"type:varchar(32);not null"`
	Status      string     `json:"status"                 gorm:"type:varchar(16);not null;default:'queued';index:idx_campaign_status,priority:2"`
	ErrorReason *string    `json:"error_reason,omitempty" gorm:"type:text"`
	AttemptedAt *time.Time `json:"attempted_at,omitempty" gorm:"index"`
	CreatedAt   time.Time  `json:"created_at"`
}

// TableName returns the database table name for CampaignRecipient.
func (CampaignRecipient) TableName() string { return "campaign_recipients" }
