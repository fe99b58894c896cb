// Package services – Router
//
// This file implements the Routing Engine: round-robin auto-assign, manual
// assign, category routing, transfer, takeover and takeover release.
//
// Every mutation runs as one transaction that reads the conversation,
// checks preconditions, and applies the change with a compare-and-swap on
// assign_version together with its audit event. Losing the CAS rolls the
// whole unit back (including round-robin counters) and the operation is
// re-evaluated against the fresh row, so preconditions such as "not yet
// taken over" are always checked against committed state.
package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/tbourn/go-wa-inbox/internal/domain"
	"github.com/tbourn/go-wa-inbox/internal/repo"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const defaultRoutingRetries = 5

// Router owns routing state on conversations.
type Router struct {
	DB  *gorm.DB
	Now func() time.Time
	// Retries bounds CAS re-evaluations per operation.
	Retries int
}

// NewRouter constructs a Router using the wall clock.
func NewRouter(db *gorm.DB) *Router {
	return &Router{DB: db, Now: func() time.Time { return time.Now().UTC() }, Retries: defaultRoutingRetries}
}

func (s *Router) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

// AutoAssignInput selects the conversation and, optionally, the team to
// assign from. Without TeamID the conversation's team is used, then the
// workspace default team. An already-assigned conversation is left alone
// unless Reassign is set.
type AutoAssignInput struct {
	ConversationID string `json:"-"`
	TeamID         string `json:"team_id,omitempty"`
	Reassign       bool   `json:"reassign,omitempty"`
}

// CategoryResult reports a category change and the outcome of the
// best-effort route that may follow it.
type CategoryResult struct {
	Conversation *domain.Conversation `json:"conversation"`
	Routed       bool                 `json:"routed"`
	RoutingError error                `json:"-"`
}

// change is a pending conversation mutation produced by a routing rule.
type change struct {
	kind    string
	updates map[string]any
	event   string
	meta    map[string]any
	// after runs inside the transaction once the CAS has succeeded.
	after func(tx *gorm.DB) error
}

// mutate runs fn against the current conversation and applies the change
// it returns atomically. A nil change is a no-op returning the current row.
func (s *Router) mutate(ctx context.Context, workspaceID, conversationID, actorID string,
	fn func(tx *gorm.DB, c *domain.Conversation) (*change, error)) (*domain.Conversation, error) {

	retries := s.Retries
	if retries <= 0 {
		retries = defaultRoutingRetries
	}
	for attempt := 0; attempt < retries; attempt++ {
		var (
			out  *domain.Conversation
			kind string
		)
		err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			c, err := repo.GetConversation(ctx, tx, workspaceID, conversationID)
			if errors.Is(err, repo.ErrNotFound) {
				return ErrConversationNotFound
			}
			if err != nil {
				return err
			}
			ch, err := fn(tx, c)
			if err != nil {
				return err
			}
			if ch == nil {
				out = c
				return nil
			}
			ch.updates["updated_at"] = s.now()
			if err := repo.UpdateConversationCAS(ctx, tx, workspaceID, conversationID, c.AssignVersion, ch.updates); err != nil {
				return err
			}
			if ch.after != nil {
				if err := ch.after(tx); err != nil {
					return err
				}
			}
			if ch.event != "" {
				createdBy := actorID
				if createdBy == "" {
					createdBy = "system"
				}
				if _, err := repo.AppendEvent(ctx, tx, workspaceID, conversationID, ch.event, createdBy, ch.meta); err != nil {
					return err
				}
			}
			kind = ch.kind
			out, err = repo.GetConversation(ctx, tx, workspaceID, conversationID)
			return err
		})
		if errors.Is(err, repo.ErrConflict) {
			log.Ctx(ctx).Debug().
				Str("workspace_id", workspaceID).
				Str("conversation_id", conversationID).
				Int("attempt", attempt+1).
				Msg("routing CAS lost, re-evaluating")
			continue
		}
		if err != nil {
			return nil, err
		}
		if kind != "" {
			assignments.WithLabelValues(kind).Inc()
			log.Ctx(ctx).Info().
				Str("workspace_id", workspaceID).
				Str("conversation_id", conversationID).
				Str("kind", kind).
				Str("actor", actorID).
				Msg("conversation routed")
		}
		return out, nil
	}
	return nil, ErrConcurrentUpdate
}

// AutoAssign assigns the next round-robin member of the resolved team. When
// the team has no active member it fails with ErrNoActiveMember and leaves
// the conversation untouched.
func (s *Router) AutoAssign(ctx context.Context, workspaceID, actorID string, in AutoAssignInput) (*domain.Conversation, error) {
	tr := otel.Tracer("services/Router")
	ctx, span := tr.Start(ctx, "AutoAssign",
		trace.WithAttributes(
			attribute.String("workspace.id", workspaceID),
			attribute.String("conversation.id", in.ConversationID),
			attribute.String("team.id", in.TeamID),
		),
	)
	defer span.End()

	ws, err := repo.GetSettings(ctx, s.DB, workspaceID)
	if err != nil {
		return nil, err
	}

	return s.mutate(ctx, workspaceID, in.ConversationID, actorID, func(tx *gorm.DB, c *domain.Conversation) (*change, error) {
		if c.AssignedMemberID != nil && !in.Reassign {
			return nil, nil
		}
		if c.TakeoverByMemberID != nil {
			return nil, ErrAlreadyTakenOver
		}

		team, err := s.resolveTeam(ctx, tx, ws, c, strings.TrimSpace(in.TeamID))
		if err != nil {
			return nil, err
		}
		member, err := repo.NextRoundRobinMember(ctx, tx, workspaceID, team.ID)
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrNoActiveMember
		}
		if err != nil {
			return nil, err
		}

		now := s.now()
		return &change{
			kind: "auto",
			updates: map[string]any{
				"team_id":            team.ID,
				"assigned_member_id": member.MemberID,
				"assigned_to":        assigneeRef(member),
			},
			event: domain.EventAssigned,
			meta: map[string]any{
				"mode":              "round_robin",
				"team_id":           team.ID,
				"member_id":         member.MemberID,
				"previous_assignee": deref(c.AssignedMemberID),
			},
			after: func(tx *gorm.DB) error {
				return repo.RecordAssignment(ctx, tx, member.ID, now)
			},
		}, nil
	})
}

// AssignMember assigns a specific member, who must be an active member of
// the conversation's team (or the default team if it has none). Agents may
// only assign themselves.
func (s *Router) AssignMember(ctx context.Context, workspaceID string, actor domain.Actor, conversationID, memberID string) (*domain.Conversation, error) {
	tr := otel.Tracer("services/Router")
	ctx, span := tr.Start(ctx, "AssignMember",
		trace.WithAttributes(
			attribute.String("workspace.id", workspaceID),
			attribute.String("conversation.id", conversationID),
			attribute.String("member.id", memberID),
		),
	)
	defer span.End()

	memberID = strings.TrimSpace(memberID)
	switch actor.Role {
	case domain.RoleAdmin, domain.RoleSupervisor:
	case domain.RoleAgent:
		if memberID != actor.MemberID {
			return nil, ErrForbiddenRole
		}
	default:
		return nil, ErrForbiddenRole
	}

	ws, err := repo.GetSettings(ctx, s.DB, workspaceID)
	if err != nil {
		return nil, err
	}

	return s.mutate(ctx, workspaceID, conversationID, actor.MemberID, func(tx *gorm.DB, c *domain.Conversation) (*change, error) {
		if c.TakeoverByMemberID != nil {
			return nil, ErrAlreadyTakenOver
		}
		team, err := s.resolveTeam(ctx, tx, ws, c, "")
		if err != nil {
			return nil, err
		}
		m, err := repo.GetActiveMembership(ctx, tx, workspaceID, team.ID, memberID)
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrNotTeamMember
		}
		if err != nil {
			return nil, err
		}
		if c.AssignedMemberID != nil && *c.AssignedMemberID == memberID && c.TeamID != nil && *c.TeamID == team.ID {
			return nil, nil
		}
		now := s.now()
		return &change{
			kind: "manual",
			updates: map[string]any{
				"team_id":            team.ID,
				"assigned_member_id": m.MemberID,
				"assigned_to":        assigneeRef(m),
			},
			event: domain.EventAssigned,
			meta: map[string]any{
				"mode":              "manual",
				"team_id":           team.ID,
				"member_id":         m.MemberID,
				"previous_assignee": deref(c.AssignedMemberID),
			},
			after: func(tx *gorm.DB) error {
				return repo.RecordAssignment(ctx, tx, m.ID, now)
			},
		}, nil
	})
}

// Transfer moves a conversation to newTeamID and leaves it unassigned there.
// Admins may transfer anywhere; supervisors only into teams they are an
// active member of.
func (s *Router) Transfer(ctx context.Context, workspaceID string, actor domain.Actor, conversationID, newTeamID string) (*domain.Conversation, error) {
	tr := otel.Tracer("services/Router")
	ctx, span := tr.Start(ctx, "Transfer",
		trace.WithAttributes(
			attribute.String("workspace.id", workspaceID),
			attribute.String("conversation.id", conversationID),
			attribute.String("team.id", newTeamID),
		),
	)
	defer span.End()

	newTeamID = strings.TrimSpace(newTeamID)
	if newTeamID == "" {
		return nil, ErrTeamNotFound
	}
	if actor.Role != domain.RoleAdmin && actor.Role != domain.RoleSupervisor {
		return nil, ErrForbiddenRole
	}

	return s.mutate(ctx, workspaceID, conversationID, actor.MemberID, func(tx *gorm.DB, c *domain.Conversation) (*change, error) {
		if _, err := repo.GetTeam(ctx, tx, workspaceID, newTeamID); err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return nil, ErrTeamNotFound
			}
			return nil, err
		}
		if actor.Role == domain.RoleSupervisor {
			if _, err := repo.GetActiveMembership(ctx, tx, workspaceID, newTeamID, actor.MemberID); err != nil {
				if errors.Is(err, repo.ErrNotFound) {
					return nil, ErrNotTeamMember
				}
				return nil, err
			}
		}
		return &change{
			kind: "transfer",
			updates: map[string]any{
				"team_id":                          newTeamID,
				"assigned_member_id":               nil,
				"assigned_to":                      nil,
				"takeover_by_member_id":            nil,
				"takeover_prev_assigned_member_id": nil,
				"takeover_at":                      nil,
			},
			event: domain.EventTransfer,
			meta: map[string]any{
				"from_team_id":      deref(c.TeamID),
				"to_team_id":        newTeamID,
				"previous_assignee": deref(c.AssignedMemberID),
			},
		}, nil
	})
}

// Takeover lets a supervisor or admin claim a conversation from its current
// assignee. A second takeover fails with ErrAlreadyTakenOver.
func (s *Router) Takeover(ctx context.Context, workspaceID string, actor domain.Actor, conversationID string) (*domain.Conversation, error) {
	tr := otel.Tracer("services/Router")
	ctx, span := tr.Start(ctx, "Takeover",
		trace.WithAttributes(
			attribute.String("workspace.id", workspaceID),
			attribute.String("conversation.id", conversationID),
			attribute.String("actor.id", actor.MemberID),
		),
	)
	defer span.End()

	ws, err := repo.GetSettings(ctx, s.DB, workspaceID)
	if err != nil {
		return nil, err
	}
	if !ws.TakeoverEnabled {
		return nil, ErrFeatureDisabled
	}
	if actor.Role != domain.RoleAdmin && actor.Role != domain.RoleSupervisor {
		return nil, ErrForbiddenRole
	}
	if strings.TrimSpace(actor.MemberID) == "" {
		return nil, ErrNotTeamMember
	}

	return s.mutate(ctx, workspaceID, conversationID, actor.MemberID, func(tx *gorm.DB, c *domain.Conversation) (*change, error) {
		if c.TakeoverByMemberID != nil {
			return nil, ErrAlreadyTakenOver
		}
		assignedTo := actor.MemberID
		if c.TeamID != nil {
			m, err := repo.GetActiveMembership(ctx, tx, workspaceID, *c.TeamID, actor.MemberID)
			if errors.Is(err, repo.ErrNotFound) {
				return nil, ErrNotTeamMember
			}
			if err != nil {
				return nil, err
			}
			assignedTo = assigneeRef(m)
		}
		return &change{
			kind: "takeover",
			updates: map[string]any{
				"takeover_prev_assigned_member_id": c.AssignedMemberID,
				"takeover_by_member_id":            actor.MemberID,
				"takeover_at":                      s.now(),
				"assigned_member_id":               actor.MemberID,
				"assigned_to":                      assignedTo,
			},
			event: domain.EventTakeover,
			meta: map[string]any{
				"previous_assignee": deref(c.AssignedMemberID),
				"team_id":           deref(c.TeamID),
			},
		}, nil
	})
}

// ReleaseTakeover hands a taken-over conversation back to the member it was
// taken from. Only the member holding the takeover or an admin may release.
// If the previous assignee is no longer an active member of the team the
// conversation is left unassigned.
func (s *Router) ReleaseTakeover(ctx context.Context, workspaceID string, actor domain.Actor, conversationID string) (*domain.Conversation, error) {
	tr := otel.Tracer("services/Router")
	ctx, span := tr.Start(ctx, "ReleaseTakeover",
		trace.WithAttributes(
			attribute.String("workspace.id", workspaceID),
			attribute.String("conversation.id", conversationID),
		),
	)
	defer span.End()

	return s.mutate(ctx, workspaceID, conversationID, actor.MemberID, func(tx *gorm.DB, c *domain.Conversation) (*change, error) {
		if c.TakeoverByMemberID == nil {
			return nil, ErrNotTakenOver
		}
		if actor.Role != domain.RoleAdmin && *c.TakeoverByMemberID != actor.MemberID {
			return nil, ErrForbiddenRole
		}

		var restoreID, restoreRef any
		prev := c.TakeoverPrevAssignedMemberID
		if prev != nil && c.TeamID != nil {
			m, err := repo.GetActiveMembership(ctx, tx, workspaceID, *c.TeamID, *prev)
			switch {
			case err == nil:
				restoreID, restoreRef = m.MemberID, assigneeRef(m)
			case !errors.Is(err, repo.ErrNotFound):
				return nil, err
			}
		} else if prev != nil {
			restoreID, restoreRef = *prev, *prev
		}
		return &change{
			kind: "release",
			updates: map[string]any{
				"assigned_member_id":               restoreID,
				"assigned_to":                      restoreRef,
				"takeover_by_member_id":            nil,
				"takeover_prev_assigned_member_id": nil,
				"takeover_at":                      nil,
			},
			event: domain.EventTakeoverReleased,
			meta: map[string]any{
				"released_by": actor.MemberID,
				"restored_to": restoreID,
			},
		}, nil
	})
}

// SetCategory sets (or clears, with an empty id) a conversation's routing
// category. With skill routing enabled and a category bound to a default
// team, the conversation is then routed to that team. Routing runs after
// the category change has committed; its failure is reported in the result
// and never undoes the category change.
func (s *Router) SetCategory(ctx context.Context, workspaceID string, actor domain.Actor, conversationID, categoryID string) (*CategoryResult, error) {
	tr := otel.Tracer("services/Router")
	ctx, span := tr.Start(ctx, "SetCategory",
		trace.WithAttributes(
			attribute.String("workspace.id", workspaceID),
			attribute.String("conversation.id", conversationID),
			attribute.String("category.id", categoryID),
		),
	)
	defer span.End()

	ws, err := repo.GetSettings(ctx, s.DB, workspaceID)
	if err != nil {
		return nil, err
	}

	categoryID = strings.TrimSpace(categoryID)
	var cat *domain.RoutingCategory
	if categoryID != "" {
		cat, err = repo.GetCategory(ctx, s.DB, workspaceID, categoryID)
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrCategoryNotFound
		}
		if err != nil {
			return nil, err
		}
	}

	conv, err := s.mutate(ctx, workspaceID, conversationID, actor.MemberID, func(tx *gorm.DB, c *domain.Conversation) (*change, error) {
		if deref(c.CategoryID) == categoryID {
			return nil, nil
		}
		var next any
		if categoryID != "" {
			next = categoryID
		}
		return &change{
			kind:    "category",
			updates: map[string]any{"category_id": next},
			event:   domain.EventCategoryChanged,
			meta: map[string]any{
				"from_category_id": deref(c.CategoryID),
				"to_category_id":   categoryID,
			},
		}, nil
	})
	if err != nil {
		return nil, err
	}

	res := &CategoryResult{Conversation: conv}
	if cat == nil || cat.DefaultTeamID == nil || !ws.SkillRoutingEnabled {
		return res, nil
	}
	target := *cat.DefaultTeamID
	if deref(conv.TeamID) == target && conv.AssignedMemberID != nil {
		return res, nil
	}

	routed, rerr := s.AutoAssign(ctx, workspaceID, actor.MemberID, AutoAssignInput{
		ConversationID: conversationID,
		TeamID:         target,
		Reassign:       deref(conv.TeamID) != target,
	})
	if rerr != nil {
		res.RoutingError = rerr
		log.Ctx(ctx).Warn().Err(rerr).
			Str("workspace_id", workspaceID).
			Str("conversation_id", conversationID).
			Str("team_id", target).
			Msg("category routing failed")
		return res, nil
	}
	res.Conversation = routed
	res.Routed = true
	return res, nil
}

// resolveTeam picks explicit, then the conversation's own, then the
// workspace default team.
func (s *Router) resolveTeam(ctx context.Context, tx *gorm.DB, ws domain.WorkspaceSettings, c *domain.Conversation, explicit string) (*domain.Team, error) {
	var (
		team *domain.Team
		err  error
	)
	switch {
	case explicit != "":
		team, err = repo.GetTeam(ctx, tx, ws.WorkspaceID, explicit)
	case c.TeamID != nil:
		team, err = repo.GetTeam(ctx, tx, ws.WorkspaceID, *c.TeamID)
	default:
		team, err = repo.DefaultTeam(ctx, tx, ws)
	}
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrTeamNotFound
	}
	return team, err
}

func assigneeRef(m *domain.TeamMember) string {
	if m.UserRef != "" {
		return m.UserRef
	}
	return m.MemberID
}

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
