// Routing endpoints. The acting member and role come from X-Member-ID and
// X-Role; permission rules live in the routing service.
//   - POST   /conversations/{id}/auto-assign
//   - POST   /conversations/{id}/assign
//   - PUT    /conversations/{id}/category
//   - POST   /conversations/{id}/transfer
//   - POST   /conversations/{id}/takeover
//   - DELETE /conversations/{id}/takeover
package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-wa-inbox/internal/domain"
	"github.com/tbourn/go-wa-inbox/internal/services"
)

// AutoAssignRequest optionally pins the team and forces reassignment.
type AutoAssignRequest struct {
	TeamID   string `json:"team_id,omitempty" example:"3f0c3a52-7c53-4a5e-9a57-08c44c8d1f0b"`
	Reassign bool   `json:"reassign,omitempty"`
}

// AssignRequest names the member to assign.
type AssignRequest struct {
	MemberID string `json:"member_id" binding:"required" example:"m-42"`
}

// TransferRequest names the destination team.
type TransferRequest struct {
	TeamID string `json:"team_id" binding:"required"`
}

// CategoryRequest sets the routing category; an empty id clears it.
type CategoryRequest struct {
	CategoryID string `json:"category_id"`
}

// CategoryResponse reports the category change and the routing attempt that
// may have followed it.
type CategoryResponse struct {
	Conversation *domain.Conversation `json:"conversation"`
	Routed       bool                 `json:"routed"`
	// RoutingError is the error code of a failed follow-up route.
	RoutingError string `json:"routing_error,omitempty" example:"no_active_member"`
}

// AutoAssign godoc
// @ID          autoAssignConversation
// @Summary     Round-robin assign a conversation
// @Description Assigns the next active member of the resolved team (explicit team, then the conversation's team, then the workspace default team). Already-assigned conversations are returned unchanged unless reassign is set.
// @Tags        Routing
// @Accept      json
// @Produce     json
// @Param       X-Workspace-ID  header  string  true   "Workspace ID"
// @Param       X-Member-ID     header  string  false  "Acting member"
// @Param       id              path    string  true   "Conversation ID"
// @Param       body            body    handlers.AutoAssignRequest  false  "Options"
// @Success     200  {object}  domain.Conversation
// @Failure     404  {object}  handlers.ErrorResponse
// @Failure     409  {object}  handlers.ErrorResponse  "No active member, taken over, or concurrent update"
// @Router      /conversations/{id}/auto-assign [post]
func (h *Handlers) AutoAssign(c *gin.Context) {
	var req AutoAssignRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
			return
		}
	}
	conv, err := h.routing.AutoAssign(c.Request.Context(), workspace(c), actor(c).MemberID, services.AutoAssignInput{
		ConversationID: c.Param("id"),
		TeamID:         strings.TrimSpace(req.TeamID),
		Reassign:       req.Reassign,
	})
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, conv)
}

// Assign godoc
// @ID          assignConversation
// @Summary     Assign a specific member
// @Tags        Routing
// @Accept      json
// @Produce     json
// @Param       X-Workspace-ID  header  string  true  "Workspace ID"
// @Param       X-Member-ID     header  string  true  "Acting member"
// @Param       X-Role          header  string  true  "agent | supervisor | admin"
// @Param       id              path    string  true  "Conversation ID"
// @Param       body            body    handlers.AssignRequest  true  "Member"
// @Success     200  {object}  domain.Conversation
// @Failure     403  {object}  handlers.ErrorResponse
// @Failure     404  {object}  handlers.ErrorResponse
// @Router      /conversations/{id}/assign [post]
func (h *Handlers) Assign(c *gin.Context) {
	var req AssignRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.MemberID) == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "member_id required")
		return
	}
	conv, err := h.routing.AssignMember(c.Request.Context(), workspace(c), actor(c), c.Param("id"), strings.TrimSpace(req.MemberID))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, conv)
}

// SetCategory godoc
// @ID          setConversationCategory
// @Summary     Set the routing category
// @Description With skill routing enabled, a category bound to a default team routes the conversation there. A failed route does not undo the category change; it is reported in routing_error.
// @Tags        Routing
// @Accept      json
// @Produce     json
// @Param       X-Workspace-ID  header  string  true  "Workspace ID"
// @Param       X-Member-ID     header  string  true  "Acting member"
// @Param       X-Role          header  string  true  "agent | supervisor | admin"
// @Param       id              path    string  true  "Conversation ID"
// @Param       body            body    handlers.CategoryRequest  true  "Category"
// @Success     200  {object}  handlers.CategoryResponse
// @Failure     404  {object}  handlers.ErrorResponse
// @Router      /conversations/{id}/category [put]
func (h *Handlers) SetCategory(c *gin.Context) {
	var req CategoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	res, err := h.routing.SetCategory(c.Request.Context(), workspace(c), actor(c), c.Param("id"), strings.TrimSpace(req.CategoryID))
	if err != nil {
		failErr(c, err)
		return
	}
	resp := CategoryResponse{Conversation: res.Conversation, Routed: res.Routed}
	if res.RoutingError != nil {
		_, resp.RoutingError, _ = mapError(res.RoutingError)
	}
	ok(c, http.StatusOK, resp)
}

// Transfer godoc
// @ID          transferConversation
// @Summary     Transfer to another team
// @Description Moves the conversation to the team and leaves it unassigned there. Supervisors may only transfer into their own teams.
// @Tags        Routing
// @Accept      json
// @Produce     json
// @Param       X-Workspace-ID  header  string  true  "Workspace ID"
// @Param       X-Member-ID     header  string  true  "Acting member"
// @Param       X-Role          header  string  true  "supervisor | admin"
// @Param       id              path    string  true  "Conversation ID"
// @Param       body            body    handlers.TransferRequest  true  "Destination team"
// @Success     200  {object}  domain.Conversation
// @Failure     403  {object}  handlers.ErrorResponse
// @Failure     404  {object}  handlers.ErrorResponse
// @Router      /conversations/{id}/transfer [post]
func (h *Handlers) Transfer(c *gin.Context) {
	var req TransferRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.TeamID) == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "team_id required")
		return
	}
	conv, err := h.routing.Transfer(c.Request.Context(), workspace(c), actor(c), c.Param("id"), strings.TrimSpace(req.TeamID))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, conv)
}

// Takeover godoc
// @ID          takeoverConversation
// @Summary     Take over a conversation
// @Description Reassigns the conversation to the acting supervisor or admin. Fails with already_taken_over when a takeover is active.
// @Tags        Routing
// @Produce     json
// @Param       X-Workspace-ID  header  string  true  "Workspace ID"
// @Param       X-Member-ID     header  string  true  "Acting member"
// @Param       X-Role          header  string  true  "supervisor | admin"
// @Param       id              path    string  true  "Conversation ID"
// @Success     200  {object}  domain.Conversation
// @Failure     403  {object}  handlers.ErrorResponse
// @Failure     409  {object}  handlers.ErrorResponse
// @Router      /conversations/{id}/takeover [post]
func (h *Handlers) Takeover(c *gin.Context) {
	conv, err := h.routing.Takeover(c.Request.Context(), workspace(c), actor(c), c.Param("id"))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, conv)
}

// ReleaseTakeover godoc
// @ID          releaseTakeover
// @Summary     Release a takeover
// @Description Hands the conversation back to the member it was taken from.
// @Tags        Routing
// @Produce     json
// @Param       X-Workspace-ID  header  string  true  "Workspace ID"
// @Param       X-Member-ID     header  string  true  "Acting member"
// @Param       X-Role          header  string  true  "supervisor | admin"
// @Param       id              path    string  true  "Conversation ID"
// @Success     200  {object}  domain.Conversation
// @Failure     403  {object}  handlers.ErrorResponse
// @Failure     409  {object}  handlers.ErrorResponse  "Not taken over"
// @Router      /conversations/{id}/takeover [delete]
func (h *Handlers) ReleaseTakeover(c *gin.Context) {
	conv, err := h.routing.ReleaseTakeover(c.Request.Context(), workspace(c), actor(c), c.Param("id"))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, conv)
}
