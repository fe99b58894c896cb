package domain

import "time"

// Outbox and campaign recipient statuses.
const (
	StatusQueued     = "queued"
	StatusProcessing = "processing"
	StatusSent       = "sent"
	StatusFailed     = "failed"
)

// OutboxMessage is a durable queue entry for a single outbound send.
// Only the dispatcher mutates it after insert, always via conditional updates
// on Status.
type OutboxMessage struct {
	ID                  string     `json:"id"                              gorm:"type:char(36);primaryKey"`
	WorkspaceID         string     `json:"workspace_id"                    gorm:"type:varchar(64);not null;index:idx_outbox_due,priority:1"`
	ToPhone             string     `json:"to_phone"                        gorm:"type:varchar(32);not null"`
	MessageType         string     `json:"message_type"                    gorm:"type:varchar(32);not null"`
	PayloadJSON         string     `json:"payload_json"                    gorm:"type:text;not null;default:'{}'"`
	Status              string     `json:"status"                          gorm:"type:varchar(16);not null;default:'queued';index:idx_outbox_due,priority:2;check:status IN ('queued','processing','sent','failed')"`
	Attempts            int        `json:"attempts"                        gorm:"not null;default:0"`
	NextAttemptAt       time.Time  `json:"next_attempt_at"                 gorm:"not null;index:idx_outbox_due,priority:3"`
	LastError           *string    `json:"last_error,omitempty"            gorm:"type:text"`
	ProviderMessageID   *string    `json:"provider_message_id,omitempty"   gorm:"type:varchar(128);index"`
	Author              string     `json:"author"                          gorm:"type:varchar(16);not null;default:'agent'"`
	CountsAsReply       bool       `json:"counts_as_reply"                 gorm:"not null"`
	CampaignRecipientID *string    `json:"campaign_recipient_id,omitempty" gorm:"type:char(36);index"`
	SentAt              *time.Time `json:"sent_at,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

// TableName returns the database table name for OutboxMessage.
func (OutboxMessage) TableName() string { return "outbox_messages" }

// Message authors. Author decides whether an outbound message stops the
// response SLA clock.
const (
	AuthorCustomer   = "customer"
	AuthorAgent      = "agent"
	AuthorAutomation = "automation"
	AuthorCampaign   = "campaign"
)
