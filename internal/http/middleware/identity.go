// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file extracts the caller identity supplied by the upstream auth
// collaborator. Requests reach this service already authenticated; the
// gateway forwards the tenant and member as plain headers:
//
//   - X-Workspace-ID: the tenant every operation is scoped to
//   - X-Member-ID:    the acting workspace member (optional for intake)
//   - X-Role:         agent | supervisor | admin (owner is an alias of admin)
package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-wa-inbox/internal/domain"
)

const (
	HeaderWorkspaceID = "X-Workspace-ID"
	HeaderMemberID    = "X-Member-ID"
	HeaderRole        = "X-Role"

	ctxKeyWorkspace = "workspaceID"
	ctxKeyActor     = "actor"
)

// Identity stashes the workspace and actor headers in the Gin context. It
// never rejects a request; see RequireWorkspace.
func Identity() gin.HandlerFunc {
	return func(c *gin.Context) {
		if ws := strings.TrimSpace(c.GetHeader(HeaderWorkspaceID)); ws != "" {
			c.Set(ctxKeyWorkspace, ws)
		}
		role, _ := domain.ParseRole(c.GetHeader(HeaderRole))
		c.Set(ctxKeyActor, domain.Actor{
			MemberID: strings.TrimSpace(c.GetHeader(HeaderMemberID)),
			Role:     role,
		})
		c.Next()
	}
}

// RequireWorkspace rejects requests that carry no workspace id.
func RequireWorkspace() gin.HandlerFunc {
	return func(c *gin.Context) {
		if WorkspaceID(c) == "" {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"request_id": c.Writer.Header().Get(requestIDHeader),
				"code":       "missing_workspace",
				"message":    HeaderWorkspaceID + " header is required",
			})
			return
		}
		c.Next()
	}
}

// WorkspaceID returns the workspace set by Identity, or "".
func WorkspaceID(c *gin.Context) string {
	v, _ := c.Get(ctxKeyWorkspace)
	return asString(v)
}

// ActorFrom returns the actor set by Identity. Absent identity yields the
// zero Actor (RoleUnknown), which every role check rejects.
func ActorFrom(c *gin.Context) domain.Actor {
	if v, ok := c.Get(ctxKeyActor); ok {
		if a, ok := v.(domain.Actor); ok {
			return a
		}
	}
	return domain.Actor{}
}
