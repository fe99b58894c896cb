// Package handlers exposes the operator REST API and the provider webhook.
//
// Handlers are transport-thin: they read the workspace and actor installed
// by middleware.Identity, bind and validate input, call the services, and
// translate service errors through mapError. Every call is scoped by the
// X-Workspace-ID header; a resource id from another workspace is reported
// as not found.
package handlers

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-wa-inbox/internal/domain"
	"github.com/tbourn/go-wa-inbox/internal/http/middleware"
	"github.com/tbourn/go-wa-inbox/internal/repo"
	"github.com/tbourn/go-wa-inbox/internal/services"
	"github.com/tbourn/go-wa-inbox/internal/utils"
	"github.com/tbourn/go-wa-inbox/internal/webhook"
)

//
// Service contracts (context-aware)
//

// IntakeService ingests normalized events and raw webhook batches.
type IntakeService interface {
	Materialize(ctx context.Context, ev domain.Event) (*services.MaterializeResult, error)
	IngestBatch(ctx context.Context, b webhook.Batch) (services.IntakeStats, error)
}

// EventDecoder validates a normalized event body against its schema.
type EventDecoder interface {
	Decode(body []byte) (domain.Event, error)
}

// InboxService serves conversation reads.
type InboxService interface {
	ListConversations(ctx context.Context, workspaceID string, f repo.ConversationFilter, page, pageSize int) ([]services.ConversationView, int64, error)
	ListMessages(ctx context.Context, workspaceID, conversationID string, page, pageSize int) ([]domain.Message, int64, error)
	ListEvents(ctx context.Context, workspaceID, conversationID string) ([]domain.ConversationEvent, error)
	MarkRead(ctx context.Context, workspaceID, conversationID string) error
}

// RoutingService performs assignment, transfer and takeover.
type RoutingService interface {
	AutoAssign(ctx context.Context, workspaceID, actorID string, in services.AutoAssignInput) (*domain.Conversation, error)
	AssignMember(ctx context.Context, workspaceID string, actor domain.Actor, conversationID, memberID string) (*domain.Conversation, error)
	Transfer(ctx context.Context, workspaceID string, actor domain.Actor, conversationID, newTeamID string) (*domain.Conversation, error)
	Takeover(ctx context.Context, workspaceID string, actor domain.Actor, conversationID string) (*domain.Conversation, error)
	ReleaseTakeover(ctx context.Context, workspaceID string, actor domain.Actor, conversationID string) (*domain.Conversation, error)
	SetCategory(ctx context.Context, workspaceID string, actor domain.Actor, conversationID, categoryID string) (*services.CategoryResult, error)
}

// OutboxService enqueues and drains outbound messages.
type OutboxService interface {
	Enqueue(ctx context.Context, workspaceID string, in services.EnqueueInput) (*domain.OutboxMessage, error)
	DrainOne(ctx context.Context, workspaceID, outboxID string) (*domain.OutboxMessage, error)
	Requeue(ctx context.Context, workspaceID, outboxID string) (*domain.OutboxMessage, error)
	Get(ctx context.Context, workspaceID, outboxID string) (*domain.OutboxMessage, error)
	List(ctx context.Context, workspaceID, status string, page, pageSize int) ([]domain.OutboxMessage, int64, error)
}

// CampaignService creates, inspects and launches campaigns.
type CampaignService interface {
	CreateBlast(ctx context.Context, workspaceID string, in services.BlastInput) (*services.BlastResult, error)
	Status(ctx context.Context, workspaceID, campaignID string) (*services.CampaignStatus, error)
	Launch(ctx context.Context, workspaceID, campaignID string) (*services.LaunchResult, error)
}

// IdempotencyStore remembers which resource an Idempotency-Key produced.
type IdempotencyStore interface {
	Lookup(ctx context.Context, workspaceID, scope, key string, now time.Time) (resourceID string, found bool, err error)
	Remember(ctx context.Context, workspaceID, scope, key, resourceID string, status int) error
}

//
// Handler wiring
//

// Deps lists the collaborators of Handlers. Nil services leave their routes
// unusable; the router only mounts what it is given.
type Deps struct {
	Intake      IntakeService
	Decoder     EventDecoder
	Inbox       InboxService
	Routing     RoutingService
	Outbox      OutboxService
	Campaigns   CampaignService
	Idempotency IdempotencyStore

	// VerifyToken answers the provider's webhook subscription handshake.
	VerifyToken string
}

// Handlers groups every HTTP endpoint.
type Handlers struct {
	intake      IntakeService
	decoder     EventDecoder
	inbox       InboxService
	routing     RoutingService
	outbox      OutboxService
	campaigns   CampaignService
	idem        IdempotencyStore
	verifyToken string
}

// New constructs Handlers bound to d.
func New(d Deps) *Handlers {
	return &Handlers{
		intake:      d.Intake,
		decoder:     d.Decoder,
		inbox:       d.Inbox,
		routing:     d.Routing,
		outbox:      d.Outbox,
		campaigns:   d.Campaigns,
		idem:        d.Idempotency,
		verifyToken: d.VerifyToken,
	}
}

//
// DTOs
//

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

//
// Helpers
//

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// clampPagination parses page and page_size and bounds them.
func clampPagination(c *gin.Context) (page, pageSize int) {
	page, pageSize, _ = utils.Page(
		utils.AtoiDefault(c.Query("page"), 1),
		utils.AtoiDefault(c.Query("page_size"), defaultPageSize),
		defaultPageSize, maxPageSize,
	)
	return page, pageSize
}

func paginate(page, pageSize int, total int64) Pagination {
	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))
	return Pagination{
		Page:       page,
		PageSize:   pageSize,
		Total:      total,
		TotalPages: totalPages,
		HasNext:    page < totalPages,
	}
}

func workspace(c *gin.Context) string { return middleware.WorkspaceID(c) }

func actor(c *gin.Context) domain.Actor { return middleware.ActorFrom(c) }
