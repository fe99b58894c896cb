// Conversation read endpoints:
//   - GET  /conversations                (inbox list with SLA state)
//   - GET  /conversations/{id}/messages  (thread, oldest first)
//   - GET  /conversations/{id}/events    (routing audit trail)
//   - POST /conversations/{id}/read      (reset unread count)
package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-wa-inbox/internal/domain"
	"github.com/tbourn/go-wa-inbox/internal/repo"
	"github.com/tbourn/go-wa-inbox/internal/services"
)

// ListConversationsResponse wraps an inbox page.
type ListConversationsResponse struct {
	Conversations []services.ConversationView `json:"conversations"`
	Pagination    Pagination                  `json:"pagination"`
}

// ListMessagesResponse wraps a page of thread messages.
type ListMessagesResponse struct {
	Messages   []domain.Message `json:"messages"`
	Pagination Pagination       `json:"pagination"`
}

// ListEventsResponse wraps a conversation's routing events.
type ListEventsResponse struct {
	Events []domain.ConversationEvent `json:"events"`
}

// ListConversations godoc
// @ID          listConversations
// @Summary     List conversations (paginated)
// @Description Returns the workspace inbox, most recent activity first, each row carrying its computed SLA state.
// @Tags        Conversations
// @Produce     json
// @Param       X-Workspace-ID  header  string  true   "Workspace ID"
// @Param       team_id         query   string  false  "Only this team"
// @Param       assignee        query   string  false  "Only this assigned member"
// @Param       unassigned      query   bool    false  "Only unassigned conversations"
// @Param       archived        query   bool    false  "Include archived conversations"
// @Param       page            query   int     false  "Page number"     minimum(1) default(1)
// @Param       page_size       query   int     false  "Items per page"  minimum(1) maximum(100) default(20)
// @Success     200  {object}  handlers.ListConversationsResponse
// @Failure     400  {object}  handlers.ErrorResponse
// @Failure     500  {object}  handlers.ErrorResponse
// @Router      /conversations [get]
func (h *Handlers) ListConversations(c *gin.Context) {
	page, pageSize := clampPagination(c)
	unassigned, _ := strconv.ParseBool(c.Query("unassigned"))
	archived, _ := strconv.ParseBool(c.Query("archived"))
	f := repo.ConversationFilter{
		TeamID:           c.Query("team_id"),
		AssignedMemberID: c.Query("assignee"),
		UnassignedOnly:   unassigned,
		IncludeArchived:  archived,
	}

	items, total, err := h.inbox.ListConversations(c.Request.Context(), workspace(c), f, page, pageSize)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, ListConversationsResponse{Conversations: items, Pagination: paginate(page, pageSize, total)})
}

// ListMessages godoc
// @ID          listConversationMessages
// @Summary     List thread messages
// @Tags        Conversations
// @Produce     json
// @Param       X-Workspace-ID  header  string  true   "Workspace ID"
// @Param       id              path    string  true   "Conversation ID"
// @Param       page            query   int     false  "Page number"     minimum(1) default(1)
// @Param       page_size       query   int     false  "Items per page"  minimum(1) maximum(100) default(20)
// @Success     200  {object}  handlers.ListMessagesResponse
// @Failure     404  {object}  handlers.ErrorResponse  "Conversation not found"
// @Router      /conversations/{id}/messages [get]
func (h *Handlers) ListMessages(c *gin.Context) {
	page, pageSize := clampPagination(c)
	items, total, err := h.inbox.ListMessages(c.Request.Context(), workspace(c), c.Param("id"), page, pageSize)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, ListMessagesResponse{Messages: items, Pagination: paginate(page, pageSize, total)})
}

// ListEvents godoc
// @ID          listConversationEvents
// @Summary     List routing events of a conversation
// @Tags        Conversations
// @Produce     json
// @Param       X-Workspace-ID  header  string  true  "Workspace ID"
// @Param       id              path    string  true  "Conversation ID"
// @Success     200  {object}  handlers.ListEventsResponse
// @Failure     404  {object}  handlers.ErrorResponse  "Conversation not found"
// @Router      /conversations/{id}/events [get]
func (h *Handlers) ListEvents(c *gin.Context) {
	evs, err := h.inbox.ListEvents(c.Request.Context(), workspace(c), c.Param("id"))
	if err != nil {
		failErr(c, err)
		return
	}
	if evs == nil {
		evs = []domain.ConversationEvent{}
	}
	ok(c, http.StatusOK, ListEventsResponse{Events: evs})
}

// MarkRead godoc
// @ID          markConversationRead
// @Summary     Mark a conversation read
// @Tags        Conversations
// @Param       X-Workspace-ID  header  string  true  "Workspace ID"
// @Param       id              path    string  true  "Conversation ID"
// @Success     204  {string}  string  "No Content"
// @Failure     404  {object}  handlers.ErrorResponse  "Conversation not found"
// @Router      /conversations/{id}/read [post]
func (h *Handlers) MarkRead(c *gin.Context) {
	if err := h.inbox.MarkRead(c.Request.Context(), workspace(c), c.Param("id")); err != nil {
		failErr(c, err)
		return
	}
	noContent(c)
}
