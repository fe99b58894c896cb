// Package domain defines the persistence models for the conversation routing
// and delivery core. These types are mapped with GORM and shared across the
// repository and service layers. Every row carries a workspace_id and every
// query made against them is expected to filter on it.
package domain

import (
	"time"
)

// Ticket statuses a Conversation can be in.
const (
	TicketOpen     = "open"
	TicketPending  = "pending"
	TicketResolved = "resolved"
)

// Message directions.
const (
	DirectionIn  = "in"
	DirectionOut = "out"
)

// Contact is an external customer identity reachable on WhatsApp.
// (workspace_id, phone) is unique.
type Contact struct {
	ID          string    `json:"id"           gorm:"type:char(36);primaryKey"`
	WorkspaceID string    `json:"workspace_id" gorm:"type:varchar(64);not null;uniqueIndex:ux_contact_phone,priority:1;index:idx_contact_segment,priority:1"`
	Phone       string    `json:"phone"        gorm:"type:varchar(32);not null;uniqueIndex:ux_contact_phone,priority:2"`
	Name        string    `json:"name"         gorm:"type:varchar(255)"`
	OptedIn     bool      `json:"opted_in"     gorm:"not null;default:false;index:idx_contact_segment,priority:2"`
	OptedOut    bool      `json:"opted_out"    gorm:"not null;default:false;index:idx_contact_segment,priority:3"`
	Tags        string    `json:"tags"         gorm:"type:text;not null;default:'[]'"` // JSON array of strings
	CreatedAt   time.Time `json:"created_at"   gorm:"index"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// TableName returns the database table name for Contact.
func (Contact) TableName() string { return "contacts" }

// Conversation is the thread between a workspace and one contact identity.
//
// Routing state lives in TeamID, AssignedMemberID and the takeover fields.
// AssignVersion is bumped on every routing mutation and is the compare-and-swap
// guard used by the routing engine. MessageSeq is the last sequence number
// handed out to a message in this thread.
type Conversation struct {
	ID          string `json:"id"           gorm:"type:char(36);primaryKey"`
	WorkspaceID string `json:"workspace_id" gorm:"type:varchar(64);not null;uniqueIndex:ux_conv_contact,priority:1;index:idx_conv_list,priority:1"`
	ContactID   string `json:"contact_id"   gorm:"type:char(36);not null;uniqueIndex:ux_conv_contact,priority:2"`

	TeamID           *string `json:"team_id,omitempty"            gorm:"type:char(36);index"`
	AssignedMemberID *string `json:"assigned_member_id,omitempty" gorm:"type:char(36);index"`
	AssignedTo       *string `json:"assigned_to,omitempty"        gorm:"type:varchar(64)"`
	CategoryID       *string `json:"category_id,omitempty"        gorm:"type:char(36)"`
	AssignVersion    int64   `json:"-"                            gorm:"not null;default:0"`

	TicketStatus string `json:"ticket_status" gorm:"type:varchar(16);not null;default:'open';check:ticket_status IN ('open','pending','resolved')"`
	Priority     int    `json:"priority"      gorm:"not null;default:0"`
	UnreadCount  int    `json:"unread_count"  gorm:"not null;default:0"`
	MessageSeq   int64  `json:"-"             gorm:"not null;default:0"`

	LastMessageAt         *time.Time `json:"last_message_at,omitempty" gorm:"index:idx_conv_list,priority:2"`
	LastCustomerMessageAt *time.Time `json:"last_customer_message_at,omitempty"`
	LastAgentReplyAt      *time.Time `json:"last_agent_reply_at,omitempty"`
	NextResponseDueAt     *time.Time `json:"next_response_due_at,omitempty"`
	ResolutionDueAt       *time.Time `json:"resolution_due_at,omitempty"`
	SLAStatus             string     `json:"sla_status" gorm:"type:varchar(16);not null;default:'on_track'"`

	TakeoverByMemberID           *string    `json:"takeover_by_member_id,omitempty"            gorm:"type:char(36)"`
	TakeoverPrevAssignedMemberID *string    `json:"takeover_prev_assigned_member_id,omitempty" gorm:"type:char(36)"`
	TakeoverAt                   *time.Time `json:"takeover_at,omitempty"`

	IsArchived   bool       `json:"is_archived" gorm:"not null;default:false"`
	Pinned       bool       `json:"pinned"      gorm:"not null;default:false"`
	SnoozedUntil *time.Time `json:"snoozed_until,omitempty"`
	LastReadAt   *time.Time `json:"last_read_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the database table name for Conversation.
func (Conversation) TableName() string { return "conversations" }

// Message is an append-only entry within a Conversation. Only the delivery
// Status of outbound messages is ever updated after insert.
//
// SortAt is the provider timestamp when present, otherwise ingestion time;
// Seq breaks ties in ingestion order.
type Message struct {
	ID                string     `json:"id"                            gorm:"type:char(36);primaryKey"`
	WorkspaceID       string     `json:"workspace_id"                  gorm:"type:varchar(64);not null;index"`
	ThreadID          string     `json:"thread_id"                     gorm:"type:char(36);not null;index:idx_thread_msgs,priority:1;uniqueIndex:ux_thread_seq,priority:1"`
	Seq               int64      `json:"seq"                           gorm:"not null;uniqueIndex:ux_thread_seq,priority:2"`
	Direction         string     `json:"direction"                     gorm:"type:varchar(8);not null;check:direction IN ('in','out')"`
	MsgType           string     `json:"msg_type"                      gorm:"type:varchar(32);not null"`
	PayloadJSON       string     `json:"payload_json"                  gorm:"type:text;not null;default:'{}'"`
	ProviderMessageID *string    `json:"provider_message_id,omitempty" gorm:"type:varchar(128);index"`
	Author            string     `json:"author"                        gorm:"type:varchar(16);not null;default:'customer'"`
	WATimestamp       *time.Time `json:"wa_timestamp,omitempty"`
	SentAt            *time.Time `json:"sent_at,omitempty"`
	SortAt            time.Time  `json:"-"                             gorm:"not null;index:idx_thread_msgs,priority:2"`
	Status            string     `json:"status"                        gorm:"type:varchar(16);not null;default:'received'"`
	CreatedAt         time.Time  `json:"created_at"`
}

// TableName returns the database table name for Message.
func (Message) TableName() string { return "messages" }

// Conversation event types.
const (
	EventAssigned         = "assigned"
	EventTransfer         = "transfer"
	EventTakeover         = "takeover"
	EventTakeoverReleased = "takeover_released"
	EventCategoryChanged  = "category_changed"
)

// ConversationEvent is the append-only audit log of routing mutations.
type ConversationEvent struct {
	ID             string    `json:"id"              gorm:"type:char(36);primaryKey"`
	WorkspaceID    string    `json:"workspace_id"    gorm:"type:varchar(64);not null;index"`
	ConversationID string    `json:"conversation_id" gorm:"type:char(36);not null;index:idx_conv_events,priority:1"`
	Type           string    `json:"type"            gorm:"type:varchar(32);not null"`
	Meta           string    `json:"meta"            gorm:"type:text;not null;default:'{}'"`
	CreatedBy      string    `json:"created_by"      gorm:"type:varchar(64)"`
	CreatedAt      time.Time `json:"created_at"      gorm:"index:idx_conv_events,priority:2"`
}

// TableName returns the database table name for ConversationEvent.
func (ConversationEvent) TableName() string { return "conversation_events" }
